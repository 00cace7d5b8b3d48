package telcfg

import (
	"github.com/Sumatoshi-tech/telemetry/internal/observability"
	"github.com/Sumatoshi-tech/telemetry/pkg/export"
	"github.com/Sumatoshi-tech/telemetry/pkg/healthgraph"
	"github.com/Sumatoshi-tech/telemetry/pkg/metricstore"
	"github.com/Sumatoshi-tech/telemetry/pkg/monitor"
	"github.com/Sumatoshi-tech/telemetry/pkg/spanrt"
)

// ToMonitorConfig converts the loaded file/env configuration into the
// monitor package's Config, wiring an export pipeline only when enabled.
func (c *Config) ToMonitorConfig() monitor.Config {
	cfg := monitor.Config{
		HistorySize:        c.Monitor.HistorySize,
		CollectionInterval: c.Monitor.CollectionInterval,
		BufferSize:         c.Monitor.BufferSize,
		Metrics: metricstore.Config{
			RingCapacity:    c.Metrics.RingCapacity,
			FlushInterval:   c.Metrics.FlushInterval,
			MaxPoints:       c.Metrics.MaxPoints,
			MaxMetrics:      c.Metrics.MaxMetrics,
			RetentionPeriod: c.Metrics.RetentionPeriod,
		},
		Health: healthgraph.Config{},
		Spans: spanrt.Config{
			MaxSpansPerTrace: c.Spans.MaxSpansPerTrace,
			MaxTraces:        c.Spans.MaxTraces,
		},
	}

	if c.Export.Enabled {
		cfg.Export = &export.Config{
			QueueCapacity:     c.Export.QueueCapacity,
			BatchSize:         c.Export.BatchSize,
			BatchTimeout:      c.Export.BatchTimeout,
			MaxRetryAttempts:  c.Export.MaxRetryAttempts,
			InitialBackoff:    c.Export.InitialBackoff,
			BackoffMultiplier: c.Export.BackoffMultiplier,
		}
	}

	return cfg
}

// ToObservabilityConfig converts the loaded self-observability section into
// internal/observability's Config for the given mode. An empty Endpoint (the
// zero value when self_observability.enabled is false) leaves Init's tracer
// and meter providers as no-ops.
func (c *Config) ToObservabilityConfig(mode observability.AppMode) observability.Config {
	cfg := observability.DefaultConfig()
	cfg.Mode = mode

	if !c.SelfObserve.Enabled {
		return cfg
	}

	cfg.OTLPEndpoint = c.SelfObserve.Endpoint
	cfg.OTLPProtocol = c.SelfObserve.Protocol
	cfg.OTLPInsecure = c.SelfObserve.Insecure
	cfg.SampleRatio = c.SelfObserve.SampleRatio

	return cfg
}
