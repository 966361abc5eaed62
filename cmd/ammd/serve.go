package main

import (
	"fmt"
	"log/slog"

	dbm "github.com/cosmos/cosmos-db"
	"github.com/defistate/defistate-amm-go/cmd/ammd/config"
	"github.com/defistate/defistate-amm-go/engine"
	"github.com/defistate/defistate-amm-go/internal/logging"
	"github.com/defistate/defistate-amm-go/ledger"
	"github.com/defistate/defistate-amm-go/protocols/pairregistry"
	"github.com/defistate/defistate-amm-go/router"
	"github.com/defistate/defistate-amm-go/streams/jsonrpc/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
)

// ServeCmd runs the daemon until interrupted.
func ServeCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the exchange daemon",
		Long: `Run the exchange daemon. JSON-RPC is served over HTTP at /, websocket
subscriptions at /ws, Prometheus metrics at /metrics and liveness at /healthz.

Example:
  $ ammd serve --config ammd.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			logger, err := logging.New(cmd.OutOrStdout(), cfg.Log.Level, cfg.Log.Format)
			if err != nil {
				return err
			}

			d, err := newDaemon(cfg, logger)
			if err != nil {
				logger.Error("Failed to initialize daemon", "error", err)
				return err
			}
			defer d.Close()

			return d.server.ListenAndServe(cmd.Context())
		},
	}
}

// daemon is the wired exchange behind the RPC server.
type daemon struct {
	bank     *ledger.Bank
	router   *router.Router
	server   *server.Server
	store    dbm.DB
	registry *prometheus.Registry
	logger   *slog.Logger
}

func newDaemon(cfg *config.Config, logger *slog.Logger) (*daemon, error) {
	bank, err := cfg.Genesis.NewBank()
	if err != nil {
		return nil, fmt.Errorf("failed to build genesis ledger: %w", err)
	}

	store, err := cfg.OpenStore()
	if err != nil {
		return nil, err
	}

	d, err := wire(cfg, logger, bank, store)
	if err != nil {
		store.Close()
		return nil, err
	}
	logger.Info("Daemon initialized",
		"assets", len(bank.Tokens()),
		"pools", d.router.Registry().Len(),
		"store", cfg.Store.Backend,
		"registry", cfg.RegistryAddress().Hex(),
	)
	return d, nil
}

func wire(cfg *config.Config, logger *slog.Logger, bank *ledger.Bank, store dbm.DB) (*daemon, error) {
	feed := engine.NewFeed()
	registry, err := pairregistry.NewRegistry(&pairregistry.Config{
		Address:      cfg.RegistryAddress(),
		PoolTemplate: cfg.PoolTemplate(),
		Assets:       bank,
		Store:        store,
		Events:       feed,
		Logger:       logger.With("component", "registry"),
	})
	if err != nil {
		return nil, err
	}

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	r, err := router.NewRouter(&router.Config{
		Registry:   registry,
		Feed:       feed,
		Registerer: promRegistry,
		Logger:     logger.With("component", "router"),
	})
	if err != nil {
		return nil, err
	}

	var gatherer prometheus.Gatherer
	if cfg.Server.Metrics {
		gatherer = promRegistry
	}
	srv, err := server.NewServer(&server.Config{
		ListenAddr:     cfg.Server.ListenAddr,
		Router:         r,
		Bank:           bank,
		Gatherer:       gatherer,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		EventBuffer:    cfg.Server.EventBuffer,
		Logger:         logger.With("component", "jsonrpc-server"),
	})
	if err != nil {
		return nil, err
	}

	return &daemon{
		bank:     bank,
		router:   r,
		server:   srv,
		store:    store,
		registry: promRegistry,
		logger:   logger,
	}, nil
}

func (d *daemon) Close() {
	if err := d.store.Close(); err != nil {
		d.logger.Warn("Failed to close store", "error", err)
	}
}

// ConfigCmd groups configuration helpers.
func ConfigCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration helpers",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Long: `Print the configuration the daemon would run with, after defaults, the
config file, .env and AMMD_ environment variables are applied.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			out, err := cfg.YAML()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	})
	return cmd
}
