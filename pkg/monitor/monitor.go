// Package monitor is the facade (C12) binding metrics, health, and
// traces into one lifecycle: configure, start, record/query/check, stop.
package monitor

import (
	"context"
	"time"

	"github.com/Sumatoshi-tech/telemetry/internal/terr"
	"github.com/Sumatoshi-tech/telemetry/pkg/aggproc"
	"github.com/Sumatoshi-tech/telemetry/pkg/export"
	"github.com/Sumatoshi-tech/telemetry/pkg/healthgraph"
	"github.com/Sumatoshi-tech/telemetry/pkg/metricstore"
	"github.com/Sumatoshi-tech/telemetry/pkg/spanrt"
)

// Config configures a Monitor's history and collection cadence.
type Config struct {
	HistorySize       int
	CollectionInterval time.Duration
	BufferSize        int

	Metrics metricstore.Config
	Health  healthgraph.Config
	Spans   spanrt.Config
	Export  *export.Config // nil disables the export pipeline
}

func (c Config) validate() error {
	if c.HistorySize <= 0 {
		return terr.New(terr.KindInvalidConfiguration, "monitor.New", "history_size must be positive")
	}

	if c.CollectionInterval < 10*time.Millisecond {
		return terr.New(terr.KindInvalidConfiguration, "monitor.New", "collection_interval must be at least 10ms")
	}

	if c.BufferSize < c.HistorySize {
		return terr.New(terr.KindInvalidConfiguration, "monitor.New", "buffer_size must be >= history_size")
	}

	return nil
}

// Snapshot is the composite result of CollectNow: one merged view across
// metrics, health, and trace subsystems, enriched with ambient context
// tags.
type Snapshot struct {
	Timestamp        time.Time
	Metrics          metricstore.Stats
	Health           map[string]healthgraph.Result
	Spans            spanrt.Stats
	Tags             map[string]string
	DegradationLevel DegradationLevel
}

// HealthStatus is the aggregate status returned by CheckHealth.
type HealthStatus = healthgraph.Status

// Monitor is the telemetry runtime facade: configure once, start, then
// record/query/check repeatedly, stop once.
type Monitor struct {
	cfg Config

	metrics  *metricstore.Engine
	agg      *aggproc.Processor
	spans    *spanrt.Runtime
	health   *healthgraph.Graph
	pipe     *export.Pipeline
	exporter export.Exporter

	started bool
}

// New constructs a Monitor per cfg. Equivalent to "configure" in the
// lifecycle.
func New(cfg Config, exporter export.Exporter) (*Monitor, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	metrics, err := metricstore.New(cfg.Metrics)
	if err != nil {
		return nil, err
	}

	var pipe *export.Pipeline
	if cfg.Export != nil && exporter != nil {
		pipe, err = export.New(*cfg.Export, exporter)
		if err != nil {
			return nil, err
		}

		cfg.Spans.Sink = pipe
	}

	spans, err := spanrt.New(cfg.Spans)
	if err != nil {
		return nil, err
	}

	return &Monitor{
		cfg:      cfg,
		metrics:  metrics,
		agg:      aggproc.New(metrics),
		spans:    spans,
		health:   healthgraph.New(cfg.Health),
		pipe:     pipe,
		exporter: exporter,
	}, nil
}

// Metrics returns the underlying metric storage engine.
func (m *Monitor) Metrics() *metricstore.Engine { return m.metrics }

// Aggregation returns the underlying derived-metric processor.
func (m *Monitor) Aggregation() *aggproc.Processor { return m.agg }

// Spans returns the underlying trace runtime.
func (m *Monitor) Spans() *spanrt.Runtime { return m.spans }

// Health returns the underlying health dependency graph.
func (m *Monitor) Health() *healthgraph.Graph { return m.health }

// Start spawns the storage flusher and, if configured, the health
// scheduler and export consumer.
func (m *Monitor) Start() {
	if m.started {
		return
	}

	m.started = true

	m.metrics.Start()
	m.health.Start()

	if m.pipe != nil {
		m.pipe.Start()
	}
}

// CollectNow runs every enabled collector, merges their snapshots, and
// enriches the result with the trace_id and every baggage entry of the
// active span in ctx, if any. request_id and correlation_id appear only
// when the span carries them as baggage; they are not added otherwise.
func (m *Monitor) CollectNow(ctx context.Context) Snapshot {
	snap := Snapshot{
		Timestamp:        time.Now(),
		Metrics:          m.metrics.Snapshot(),
		Spans:            m.spans.Snapshot(),
		Tags:             enrichmentTags(ctx),
		DegradationLevel: m.DegradationLevel(),
	}

	order, err := m.health.TopologicalSort()
	if err == nil {
		snap.Health = make(map[string]healthgraph.Result, len(order))

		for _, name := range order {
			result, err := m.health.Check(ctx, name)
			if err == nil {
				snap.Health[name] = result
			}
		}
	}

	return snap
}

// enrichmentTags returns the active span's trace_id plus its baggage
// entries, if there is an active span, as a flat tag map. No other
// identifiers are looked up.
func enrichmentTags(ctx context.Context) map[string]string {
	span, ok := spanrt.SpanFromContext(ctx)
	if !ok {
		return nil
	}

	tags := make(map[string]string, len(span.Baggage())+1)

	traceID := span.TraceID()
	tags["trace_id"] = traceID.String()

	for k, v := range span.Baggage() {
		tags[k] = v
	}

	return tags
}

// CheckHealth returns the aggregate status across every registered
// probe: healthy if all are healthy, degraded if any is degraded but
// none unhealthy, unhealthy if any probe is unhealthy. A probe's critical
// flag is not consulted; a non-critical unhealthy probe also makes the
// aggregate unhealthy.
func (m *Monitor) CheckHealth(ctx context.Context) (HealthStatus, error) {
	order, err := m.health.TopologicalSort()
	if err != nil {
		return healthgraph.StatusUnknown, err
	}

	best := healthgraph.StatusHealthy

	for _, name := range order {
		result, err := m.health.Check(ctx, name)
		if err != nil {
			continue
		}

		switch result.Status {
		case healthgraph.StatusUnhealthy:
			return healthgraph.StatusUnhealthy, nil
		case healthgraph.StatusDegraded:
			best = healthgraph.StatusDegraded
		}
	}

	return best, nil
}

// Stop halts every background worker and flushes pending state.
// Idempotent.
func (m *Monitor) Stop(ctx context.Context) error {
	if !m.started {
		return nil
	}

	m.started = false

	m.metrics.ForceFlush()
	m.metrics.Stop()
	m.health.Stop()

	if m.pipe != nil {
		m.pipe.ForceFlush(ctx)
		m.pipe.Stop()
	}

	return nil
}
