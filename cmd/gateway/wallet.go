package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/uhyunpark/energy-gateway/params"
	"github.com/uhyunpark/energy-gateway/pkg/wallet"
)

var walletCmd = &cobra.Command{
	Use:   "wallet",
	Short: "Manage signing identities",
}

var importLabel, importMSP, importCert, importKey string

var walletImportCmd = &cobra.Command{
	Use:   "import",
	Short: "Import an X.509 identity from PEM files",
	Long: `Import an X.509 identity from PEM files.

With the pebble backend the wallet is locked while a gateway is serving
from it; stop the gateway before importing. File wallets can be updated
at any time and the gateway picks the identity up on its next session.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := params.Load(configFile, envFile)
		if err != nil {
			return err
		}
		certPEM, err := os.ReadFile(importCert)
		if err != nil {
			return fmt.Errorf("read certificate: %w", err)
		}
		keyPEM, err := os.ReadFile(importKey)
		if err != nil {
			return fmt.Errorf("read private key: %w", err)
		}

		id := wallet.NewX509(importMSP, certPEM, keyPEM)
		if err := id.Validate(); err != nil {
			return err
		}

		store, closeStore, err := openWallet(cfg.Wallet)
		if err != nil {
			return err
		}
		defer closeStore()

		label := importLabel
		if label == "" {
			label = cfg.Ledger.Identity
		}
		if err := store.Put(label, id); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "imported identity %q (%s) into %s wallet at %s\n",
			label, importMSP, cfg.Wallet.Backend, cfg.Wallet.Path)
		return nil
	},
}

var walletListCmd = &cobra.Command{
	Use:   "list",
	Short: "List identity labels in the wallet",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := params.Load(configFile, envFile)
		if err != nil {
			return err
		}
		store, closeStore, err := openWallet(cfg.Wallet)
		if err != nil {
			return err
		}
		defer closeStore()

		labels, err := store.List()
		if err != nil {
			return err
		}
		for _, l := range labels {
			fmt.Fprintln(cmd.OutOrStdout(), l)
		}
		return nil
	},
}

func init() {
	f := walletImportCmd.Flags()
	f.StringVar(&importLabel, "label", "", "wallet label (default: ledger.identity)")
	f.StringVar(&importMSP, "msp-id", "Org1MSP", "membership service provider id")
	f.StringVar(&importCert, "cert", "", "PEM certificate file")
	f.StringVar(&importKey, "key", "", "PEM private key file")
	walletImportCmd.MarkFlagRequired("cert")
	walletImportCmd.MarkFlagRequired("key")
}
