package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/telemetry/internal/observability"
	"github.com/Sumatoshi-tech/telemetry/internal/telcfg"
	"github.com/Sumatoshi-tech/telemetry/pkg/healthgraph"
	"github.com/Sumatoshi-tech/telemetry/pkg/monitor"
)

// defaultDiagnosticsAddr is the default bind address for the /healthz,
// /readyz, and /metrics endpoints.
const defaultDiagnosticsAddr = ":8090"

// NewServeCommand builds the "serve" subcommand: starts a Monitor and
// exposes its health/metrics over HTTP until interrupted.
func NewServeCommand() *cobra.Command {
	var configPath string

	var addr string

	var statsDBlockSize string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start a monitor and serve /healthz, /readyz, /metrics",
		RunE: func(_ *cobra.Command, _ []string) error {
			return serveDemo(configPath, addr, statsDBlockSize)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config.yaml")
	cmd.Flags().StringVar(&addr, "addr", defaultDiagnosticsAddr, "diagnostics server bind address")
	cmd.Flags().StringVar(&statsDBlockSize, "statsd-block-size", "", "StatsD datagram arena block size (e.g. 1.4KB), defaults to "+defaultStatsDBlockSize)

	return cmd
}

func serveDemo(configPath, addr, statsDBlockSize string) error {
	cfg, err := telcfg.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	exporter, err := buildExporter(cfg.Export, statsDBlockSize)
	if err != nil {
		return fmt.Errorf("build exporter: %w", err)
	}

	obs, err := observability.Init(cfg.ToObservabilityConfig(observability.ModeServe))
	if err != nil {
		return fmt.Errorf("init self-observability: %w", err)
	}
	defer func() { _ = obs.Shutdown(context.Background()) }()

	mon, err := monitor.New(cfg.ToMonitorConfig(), exporter)
	if err != nil {
		return fmt.Errorf("construct monitor: %w", err)
	}

	if err := loadAggregationRules(cfg, mon); err != nil {
		return err
	}

	mon.Start()

	ready := func(ctx context.Context) error {
		status, checkErr := mon.CheckHealth(ctx)
		if checkErr != nil {
			return fmt.Errorf("check health: %w", checkErr)
		}

		if status == healthgraph.StatusUnhealthy {
			return errors.New("monitor reports unhealthy")
		}

		return nil
	}

	diag, err := observability.NewDiagnosticsServer(addr, obs.Meter, ready)
	if err != nil {
		return fmt.Errorf("start diagnostics server: %w", err)
	}

	fmt.Printf("serving diagnostics on %s (/healthz, /readyz, /metrics)\n", diag.Addr())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	fmt.Println("shutting down")

	if closeErr := diag.Close(); closeErr != nil {
		return fmt.Errorf("close diagnostics server: %w", closeErr)
	}

	return mon.Stop(context.Background())
}
