// Package commands implements the telemetrydemo CLI subcommands.
package commands

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/telemetry/internal/telcfg"
	"github.com/Sumatoshi-tech/telemetry/pkg/metricstore"
	"github.com/Sumatoshi-tech/telemetry/pkg/monitor"
	"github.com/Sumatoshi-tech/telemetry/pkg/tsstore"
)

// sampleObservationCount is how many synthetic observations a demo run feeds
// through the ingestion ring before collecting a snapshot.
const sampleObservationCount = 50

// NewRunCommand builds the "run" subcommand: starts a Monitor, feeds it a
// burst of synthetic metric observations and spans, collects one snapshot,
// and prints a summary table.
func NewRunCommand() *cobra.Command {
	var configPath string

	var statsDBlockSize string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start a monitor, ingest sample telemetry, and print a snapshot",
		RunE: func(_ *cobra.Command, _ []string) error {
			return runDemo(configPath, statsDBlockSize)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config.yaml")
	cmd.Flags().StringVar(&statsDBlockSize, "statsd-block-size", "", "StatsD datagram arena block size (e.g. 1.4KB), defaults to "+defaultStatsDBlockSize)

	return cmd
}

func runDemo(configPath, statsDBlockSize string) error {
	cfg, err := telcfg.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	exporter, err := buildExporter(cfg.Export, statsDBlockSize)
	if err != nil {
		return fmt.Errorf("build exporter: %w", err)
	}

	mon, err := monitor.New(cfg.ToMonitorConfig(), exporter)
	if err != nil {
		return fmt.Errorf("construct monitor: %w", err)
	}

	if err := loadAggregationRules(cfg, mon); err != nil {
		return err
	}

	mon.Start()
	defer func() { _ = mon.Stop(context.Background()) }()

	feedSampleTelemetry(mon)

	ctx := context.Background()

	snap := mon.CollectNow(ctx)

	printSnapshot(snap)

	status, err := mon.CheckHealth(ctx)
	if err != nil {
		return fmt.Errorf("check health: %w", err)
	}

	printStatusLine(status)

	return nil
}

// feedSampleTelemetry ingests a burst of synthetic gauge observations and
// records a handful of spans, so the snapshot printed below has something
// to show.
func feedSampleTelemetry(mon *monitor.Monitor) {
	engine := mon.Metrics()

	for i := range sampleObservationCount {
		_ = engine.Ingest(metricstore.Observation{
			Name: "demo.requests.latency_ms",
			Kind: tsstore.KindGauge,
			Value: metricstore.Value{
				Kind:  metricstore.ValueFloat,
				Float: 10 + rand.Float64()*40, //nolint:gosec // demo jitter, not security sensitive
			},
			Timestamp: time.Now(),
			Tags:      map[string]string{"run": fmt.Sprint(i % 5)},
		})
	}

	ctx, root := mon.Spans().StartSpan(context.Background(), "telemetrydemo.run", "telemetrydemo")
	_, ingest := mon.Spans().StartChildSpan(ctx, root, "telemetrydemo.ingest")
	_ = mon.Spans().Finish(ingest)
	_ = mon.Spans().Finish(root)
}

func printSnapshot(snap monitor.Snapshot) {
	fmt.Printf("snapshot at %s\n", snap.Timestamp.Format(time.RFC3339))
	fmt.Printf("  metrics: flushed_batches=%d flushed_points=%d ingress_dropped=%d\n",
		snap.Metrics.FlushedBatches, snap.Metrics.FlushedPoints, snap.Metrics.IngressDropped)
	fmt.Printf("  spans:   traces=%d dropped=%d evicted=%d\n",
		snap.Spans.TraceCount, snap.Spans.SpansDropped, snap.Spans.TracesEvicted)
	fmt.Printf("  degradation: %s\n", snap.DegradationLevel)

	for name, result := range snap.Health {
		fmt.Printf("  health:  %s=%s\n", name, result.Status)
	}
}

func printStatusLine(status monitor.HealthStatus) {
	label := status.String()

	switch label {
	case "healthy":
		color.New(color.FgGreen).Printf("overall status: %s\n", label)
	case "degraded":
		color.New(color.FgYellow).Printf("overall status: %s\n", label)
	default:
		color.New(color.FgRed).Printf("overall status: %s\n", label)
	}
}
