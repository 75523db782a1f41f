// Package main provides the aperture-aggregator binary: the central
// ingest and query service that collects pushed batches from agents over
// gRPC and serves admin/query traffic over HTTP (§4).
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/aperture-systems/aperture/internal/aggregator/alerts"
	"github.com/aperture-systems/aperture/internal/aggregator/buffer"
	"github.com/aperture-systems/aperture/internal/aggregator/config"
	"github.com/aperture-systems/aperture/internal/aggregator/grpcapi"
	"github.com/aperture-systems/aperture/internal/aggregator/httpapi"
	"github.com/aperture-systems/aperture/internal/aggregator/metrics"
	"github.com/aperture-systems/aperture/internal/aggregator/store"
	"github.com/aperture-systems/aperture/internal/logging"
	"github.com/aperture-systems/aperture/pkg/version"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "aperture-aggregator",
		Short:         "Aperture Aggregator - central ingest and query service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newVersionCmd())

	if err := rootCmd.Execute(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("Aperture Aggregator version %s\n", version.Version)
			cmd.Printf("Git commit: %s\n", version.GitCommit)
			cmd.Printf("Build date: %s\n", version.BuildDate)
			cmd.Printf("Go version: %s\n", version.GoVersion)
		},
	}
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Start the gRPC ingest and admin HTTP servers",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			return run(cfg)
		},
	}
}

func run(cfg config.Config) error {
	logCfg := logging.DefaultConfig()
	logCfg.Pretty = cfg.LogFormat != "json"
	logger := logging.NewWithComponent(logCfg, "aggregator")

	if cfg.ClickhouseConfigured() {
		logger.Warn().Msg("aggregator: APERTURE_CLICKHOUSE_* is set but has no effect; batches are persisted to the DuckDB store")
	}

	buf := buffer.New(cfg.BufferSize)
	reg := metrics.New()
	alertStore := alerts.New()

	var st *store.Store
	if cfg.StorePath != "" {
		if dir := filepath.Dir(cfg.StorePath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("aperture-aggregator: create store directory: %w", err)
			}
		}
		var err error
		st, err = store.Open(cfg.StorePath, logger)
		if err != nil {
			return fmt.Errorf("aperture-aggregator: open store: %w", err)
		}
	}

	grpcSrv := grpcapi.NewGRPCServer(cfg, buf, st, reg, logger)
	_, httpHandler := httpapi.New(buf, st, reg, alertStore, logger)

	grpcLis, err := net.Listen("tcp", cfg.AggregatorListen)
	if err != nil {
		return fmt.Errorf("aperture-aggregator: listen %q: %w", cfg.AggregatorListen, err)
	}
	httpSrv := &http.Server{Addr: cfg.AdminListen, Handler: httpHandler}

	go func() {
		logger.Info().Str("addr", cfg.AggregatorListen).Msg("aggregator: gRPC server listening")
		if err := grpcSrv.Serve(grpcLis); err != nil {
			logger.Error().Err(err).Msg("aggregator: gRPC server stopped")
		}
	}()
	go func() {
		logger.Info().Str("addr", cfg.AdminListen).Msg("aggregator: admin HTTP server listening")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("aggregator: admin HTTP server stopped")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	logger.Info().Msg("aggregator: shutting down")

	grpcSrv.GracefulStop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("aggregator: error shutting down admin HTTP server")
	}

	if st != nil {
		st.Shutdown()
	}

	return nil
}
