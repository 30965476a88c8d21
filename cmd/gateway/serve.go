package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/uhyunpark/energy-gateway/params"
	"github.com/uhyunpark/energy-gateway/pkg/api"
	"github.com/uhyunpark/energy-gateway/pkg/broadcast"
	"github.com/uhyunpark/energy-gateway/pkg/ledger"
	"github.com/uhyunpark/energy-gateway/pkg/storage"
	"github.com/uhyunpark/energy-gateway/pkg/util"
	"github.com/uhyunpark/energy-gateway/pkg/wallet"
)

const metricsNamespace = "energy_gateway"

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP and websocket gateway",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := params.Load(configFile, envFile)
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()
	sugar.Infow("logger_initialized", "log_file", cfg.Log.File, "level", cfg.Log.Level)

	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	store, closeStore, err := openWallet(cfg.Wallet)
	if err != nil {
		return fmt.Errorf("wallet: %w", err)
	}
	defer closeStore()
	checkIdentity(sugar, store, cfg.Ledger.Identity)

	journal, closeJournal, err := openJournal(cfg.Audit.JournalPath)
	if err != nil {
		return fmt.Errorf("journal: %w", err)
	}
	defer closeJournal()

	connector, err := ledger.NewFabricConnector(ledger.FabricConfig{
		PeerEndpoint:  cfg.Ledger.PeerEndpoint,
		GatewayPeer:   cfg.Ledger.GatewayPeer,
		TLSCertPath:   cfg.Ledger.TLSCertPath,
		Channel:       cfg.Ledger.Channel,
		Chaincode:     cfg.Ledger.Chaincode,
		CommitTimeout: cfg.Ledger.CommitTimeout,
	})
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	mgr := ledger.NewManager(ledger.Config{
		Identity:        cfg.Ledger.Identity,
		ConnectTimeout:  cfg.Ledger.ConnectTimeout,
		EvaluateTimeout: cfg.Ledger.EvalTimeout,
		SubmitTimeout:   cfg.Ledger.SubmitTimeout,
	}, store, connector, sugar.Named("ledger"), ledger.PrometheusMetrics(reg, metricsNamespace))

	bc := broadcast.New(
		broadcast.Config{Interval: cfg.Broadcast.Interval},
		api.FetchOrderBook(mgr),
		util.RealClock{},
		sugar.Named("broadcast"),
		broadcast.PrometheusMetrics(reg, metricsNamespace),
	)

	srv := api.NewServer(mgr, bc, api.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Location:       loc,
		Journal:        journal,
		Logger:         sugar.Named("api"),
		Metrics:        api.PrometheusMetrics(reg, metricsNamespace),
		Gatherer:       reg,
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sugar.Infow("gateway_starting",
		"addr", cfg.Server.Addr,
		"peer", cfg.Ledger.PeerEndpoint,
		"channel", cfg.Ledger.Channel,
		"chaincode", cfg.Ledger.Chaincode,
		"identity", cfg.Ledger.Identity,
		"wallet", cfg.Wallet.Backend,
		"broadcast_interval", cfg.Broadcast.Interval,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Serve(gctx, cfg.Server.Addr, cfg.Server.ShutdownTimeout)
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return bc.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		sugar.Errorw("gateway_stopped", "err", err)
		return err
	}
	sugar.Infow("gateway_stopped")
	return nil
}

// newLogger logs to stdout, and to cfg.File as well when one is set.
func newLogger(cfg params.Log) (*zap.Logger, error) {
	if cfg.File == "" {
		return util.NewLogger(cfg.Level)
	}
	return util.NewLoggerWithFile(cfg.File, cfg.Level)
}

// openWallet opens the configured identity store and returns its closer.
func openWallet(cfg params.Wallet) (wallet.Store, func() error, error) {
	switch cfg.Backend {
	case "pebble":
		s, err := storage.NewPebbleStore(cfg.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("open pebble wallet %s (a running gateway keeps it locked): %w", cfg.Path, err)
		}
		return s, s.Close, nil
	default:
		s, err := wallet.NewFileStore(cfg.Path)
		if err != nil {
			return nil, nil, err
		}
		return s, func() error { return nil }, nil
	}
}

func openJournal(path string) (storage.Journal, func() error, error) {
	if path == "" {
		return storage.NewNopJournal(), func() error { return nil }, nil
	}
	j, err := storage.NewFileJournal(path)
	if err != nil {
		return nil, nil, err
	}
	return j, j.Close, nil
}

// checkIdentity warns at startup when the signing identity is missing. The
// gateway still starts; every ledger call fails with IdentityNotFound until
// the identity is imported.
func checkIdentity(logger *zap.SugaredLogger, store wallet.Store, label string) {
	_, err := store.Get(label)
	switch {
	case err == nil:
		logger.Infow("wallet_identity_found", "identity", label)
	case errors.Is(err, wallet.ErrNotFound):
		logger.Warnw("wallet_identity_missing", "identity", label,
			"hint", "import it with: gateway wallet import --label "+label)
	default:
		logger.Warnw("wallet_identity_unreadable", "identity", label, "err", err)
	}
}
