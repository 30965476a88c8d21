package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// global flags
var configFile, envFile string

var rootCmd = &cobra.Command{
	Use:           "gateway",
	Short:         "Web gateway to the energy trading ledger",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "YAML config file (optional)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env", "", ".env file (default: ./.env)")
	rootCmd.AddCommand(serveCmd, walletCmd)
	walletCmd.AddCommand(walletImportCmd, walletListCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
