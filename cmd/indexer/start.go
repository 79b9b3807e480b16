package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/aethernet/indexer/internal/config"
	"github.com/aethernet/indexer/internal/reconciler"
	"github.com/aethernet/indexer/internal/registry"
	"github.com/aethernet/indexer/internal/server"
	"github.com/aethernet/indexer/internal/store"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the indexer",
	Args:  cobra.NoArgs,
	RunE:  startService,
}

func init() {
	startCmd.Flags().Int(
		"port",
		3000,
		"Port to listen on",
	)
	cobra.CheckErr(viper.BindPFlag("port", startCmd.Flags().Lookup("port")))

	startCmd.Flags().String(
		"database-url",
		"",
		"Postgres connection string; omit to run against an in-memory store",
	)
	cobra.CheckErr(viper.BindPFlag("database_url", startCmd.Flags().Lookup("database-url")))
	cobra.CheckErr(viper.BindEnv("database_url", "DATABASE_URL"))

	startCmd.Flags().String(
		"rpc-endpoint",
		"http://127.0.0.1:8899",
		"Solana RPC endpoint the registry program lives on",
	)
	cobra.CheckErr(viper.BindPFlag("rpc_endpoint", startCmd.Flags().Lookup("rpc-endpoint")))
	cobra.CheckErr(viper.BindEnv("rpc_endpoint", "RPC_ENDPOINT"))

	startCmd.Flags().String(
		"program-id",
		"",
		"Registry program id whose accounts are mirrored",
	)
	cobra.CheckErr(viper.BindPFlag("program_id", startCmd.Flags().Lookup("program-id")))
	cobra.CheckErr(viper.BindEnv("program_id", "PROGRAM_ID"))

	startCmd.Flags().Int(
		"poll-interval",
		10,
		"Interval in seconds between reconciliation cycles",
	)
	cobra.CheckErr(viper.BindPFlag("poll_interval", startCmd.Flags().Lookup("poll-interval")))

	startCmd.Flags().Float64(
		"poll-jitter",
		0,
		"Fraction of the poll interval to randomize each cycle by",
	)
	cobra.CheckErr(viper.BindPFlag("poll_jitter", startCmd.Flags().Lookup("poll-jitter")))

	startCmd.Flags().Int(
		"fetch-timeout",
		30,
		"Timeout in seconds for a registry fetch",
	)
	cobra.CheckErr(viper.BindPFlag("fetch_timeout", startCmd.Flags().Lookup("fetch-timeout")))

	startCmd.Flags().Int(
		"apply-timeout",
		30,
		"Timeout in seconds for the store transaction",
	)
	cobra.CheckErr(viper.BindPFlag("apply_timeout", startCmd.Flags().Lookup("apply-timeout")))

	cobra.CheckErr(viper.BindEnv("metrics_auth_token"))
}

func startService(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Create the store
	var sto store.Store
	if cfg.DatabaseURL == "" {
		log.Warn("no database URL configured, using in-memory store")
		sto = store.NewMemoryStore()
	} else {
		pg, err := store.NewPostgresStore(cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("creating store: %w", err)
		}
		defer pg.Close()

		if err := pg.Ping(ctx); err != nil {
			return fmt.Errorf("probing database: %w", err)
		}
		if err := pg.Migrate(ctx); err != nil {
			return fmt.Errorf("migrating database: %w", err)
		}
		log.Info("connected to database")
		sto = pg
	}

	// Create the registry client and probe the endpoint
	reg, err := registry.NewSolanaClient(cfg.RPCEndpoint, cfg.ProgramID)
	if err != nil {
		return fmt.Errorf("creating registry client: %w", err)
	}

	slot, err := reg.Healthcheck(ctx)
	if err != nil {
		log.Warnf("registry endpoint not responding yet, cycles will retry: %v", err)
	} else {
		log.Infof("connected to registry endpoint, current slot %d", slot)
	}

	// Create and start the reconciler
	recon, err := reconciler.New(
		reg,
		sto,
		time.Duration(cfg.PollInterval)*time.Second,
		reconciler.WithJitter(cfg.PollJitter),
		reconciler.WithTimeouts(
			time.Duration(cfg.FetchTimeout)*time.Second,
			time.Duration(cfg.ApplyTimeout)*time.Second,
		),
	)
	if err != nil {
		return fmt.Errorf("creating reconciler: %w", err)
	}

	go recon.Start(ctx)

	// Create the server
	srv, err := server.New(sto, recon, server.WithMetricsEndpoint(cfg.MetricsAuthToken))
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		log.Infof("starting server on port %d", cfg.Port)
		errCh <- srv.ListenAndServe(fmt.Sprintf(":%d", cfg.Port))
	}()

	select {
	case err := <-errCh:
		log.Errorf("server error: %v", err)
		recon.Stop()
		return err
	case sig := <-sigCh:
		log.Infof("received signal %v, shutting down gracefully", sig)
		recon.Stop()
		cancel()
		return nil
	}
}
