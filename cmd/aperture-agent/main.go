//go:build linux

// Package main provides the aperture-agent binary: the per-host profiler
// that samples CPU, lock, and syscall activity via the shared ring
// buffers (§1) and streams batches to an aggregator.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/aperture-systems/aperture/internal/agent/collector"
	agentconfig "github.com/aperture-systems/aperture/internal/agent/config"
	"github.com/aperture-systems/aperture/internal/agent/grpcclient"
	"github.com/aperture-systems/aperture/internal/agent/loader"
	"github.com/aperture-systems/aperture/internal/agent/pusher"
	"github.com/aperture-systems/aperture/internal/agent/reader"
	"github.com/aperture-systems/aperture/internal/agent/symbolizer"
	"github.com/aperture-systems/aperture/internal/logging"
	"github.com/aperture-systems/aperture/pkg/version"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "aperture-agent",
		Short:         "Aperture Agent - per-host profiler",
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
			cmd.Printf("Aperture Agent version %s\n", version.Version)
			cmd.Printf("Git commit: %s\n", version.GitCommit)
			cmd.Printf("Build date: %s\n", version.BuildDate)
			cmd.Printf("Go version: %s\n", version.GoVersion)
		},
	}
}

func newRunCmd() *cobra.Command {
	var (
		mode          string
		pid           int
		duration      string
		sampleRateHz  int
		output        string
		jsonOut       bool
		aggregatorURL string
		verbose       bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Collect profiles and stream them to an aggregator",
		RunE: func(cmd *cobra.Command, args []string) error {
			hasPID := cmd.Flags().Changed("pid")
			cfg, err := agentconfig.Load(mode, pid, hasPID, duration, sampleRateHz, output, jsonOut, aggregatorURL, verbose)
			if err != nil {
				return err
			}
			return run(cfg)
		},
	}

	cmd.Flags().StringVar(&mode, "mode", "cpu", "Probe kind to collect: cpu, lock, syscall, or all")
	cmd.Flags().IntVar(&pid, "pid", 0, "Restrict symbolization to a single process")
	cmd.Flags().StringVar(&duration, "duration", "30s", "How long to run before stopping")
	cmd.Flags().IntVar(&sampleRateHz, "sample-rate", 99, "CPU sampling rate in Hz")
	cmd.Flags().StringVar(&output, "output", "profile", "Output path prefix")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Write JSON output instead of a flamegraph-ready format")
	cmd.Flags().StringVar(&aggregatorURL, "aggregator-url", "", "Aggregator gRPC address (host:port); disables streaming when empty")
	cmd.Flags().BoolVar(&verbose, "verbose", false, "Enable debug logging")

	return cmd
}

func run(cfg agentconfig.Config) error {
	logCfg := logging.DefaultConfig()
	logCfg.Pretty = cfg.LogFormat != "json"
	if cfg.Verbose {
		logCfg.Level = "debug"
	}
	logger := logging.NewWithComponent(logCfg, "agent")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info().Msg("agent: received interrupt, stopping early")
		cancel()
	}()

	collectors := make(map[reader.Kind]*collector.Collector, len(cfg.ActiveModes()))
	for _, m := range cfg.ActiveModes() {
		collectors[modeToKind(m)] = collector.New()
	}

	cache := symbolizer.NewSymbolCache(logger)

	stacks, err := loader.OpenStackTraces(cfg.BPFMapPinDir)
	if err != nil {
		return fmt.Errorf("aperture-agent: %w", err)
	}

	var dropEvents atomic.Uint64
	onDrop := func() { dropEvents.Add(1) }

	mgr, err := reader.Start(ctx, collectors, loader.OpenPinned(cfg.BPFMapPinDir), stacks, logger, onDrop)
	if err != nil {
		return fmt.Errorf("aperture-agent: start readers: %w", err)
	}
	defer mgr.Stop()

	if cfg.AggregatorURL != "" {
		agentID, _ := os.Hostname()
		if agentID == "" {
			agentID = uuid.NewString()
		}
		connect := grpcclient.NewConnector(cfg.AggregatorURL, agentID, cfg.AuthToken, cfg.MaxMessageSizeMB)

		for _, c := range collectors {
			p := pusher.New(connect, c, cache, cfg.PID, cfg.PushInterval, logger)
			go p.Run(ctx)
		}
	}

	<-ctx.Done()
	// Give in-flight pushers their final drain-and-push window before exiting.
	time.Sleep(200 * time.Millisecond)

	logger.Info().
		Uint64("lost_samples", mgr.TotalLostSamples()).
		Uint64("ring_buffer_drop_events", dropEvents.Load()).
		Msg("aperture-agent: stopped")
	return nil
}

func modeToKind(m agentconfig.Mode) reader.Kind {
	switch m {
	case agentconfig.ModeLock:
		return reader.KindLock
	case agentconfig.ModeSyscall:
		return reader.KindSyscall
	default:
		return reader.KindCPU
	}
}
