package observability_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/Sumatoshi-tech/telemetry/internal/observability"
)

// acceptanceSpanCount is the expected number of spans in the acceptance test
// (root + ingest + export).
const acceptanceSpanCount = 3

// acceptanceObservationCount is the simulated observation count used in log
// assertions.
const acceptanceObservationCount = 42

// TestAcceptance_EndToEnd verifies all three self-instrumentation signals
// (traces, metrics, structured logs with trace context) work together in a
// single simulated collection run.
func TestAcceptance_EndToEnd(t *testing.T) {
	t.Parallel()

	spanExporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(spanExporter))

	t.Cleanup(func() { require.NoError(t, tp.Shutdown(context.Background())) })

	tracer := tp.Tracer("telemetry")

	metricReader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(metricReader))
	meter := mp.Meter("telemetry")

	red, err := observability.NewREDMetrics(meter)
	require.NoError(t, err)

	ingest, err := observability.NewIngestMetrics(meter)
	require.NoError(t, err)

	var logBuf bytes.Buffer

	innerHandler := slog.NewJSONHandler(&logBuf, &slog.HandlerOptions{Level: slog.LevelDebug})
	selfHandler := observability.NewSelfLogHandler(innerHandler, "telemetry-runtime", "test", observability.ModeWorker)
	logger := slog.New(selfHandler)

	ctx, rootSpan := tracer.Start(context.Background(), "telemetry.collect")

	_, ingestSpan := tracer.Start(ctx, "telemetry.ingest")
	ingestSpan.End()

	_, exportSpan := tracer.Start(ctx, "telemetry.export.otlp")
	exportSpan.End()

	red.RecordRequest(ctx, "worker.collect", "ok", time.Second)

	ingest.RecordRun(ctx, observability.IngestStats{
		Observations:      acceptanceObservationCount,
		Batches:           3,
		BatchDurations:    []time.Duration{time.Second, 2 * time.Second, 3 * time.Second},
		SeriesCacheHits:   100,
		SeriesCacheMisses: 10,
		ExportCacheHits:   50,
		ExportCacheMisses: 5,
	})

	logger.InfoContext(ctx, "pipeline.complete", "observations", acceptanceObservationCount)

	rootSpan.End()

	spans := spanExporter.GetSpans()
	require.Len(t, spans, acceptanceSpanCount, "expected root + 2 child spans")

	spanNames := make(map[string]bool, len(spans))
	for _, s := range spans {
		spanNames[s.Name] = true
	}

	assert.True(t, spanNames["telemetry.collect"], "root span should exist")
	assert.True(t, spanNames["telemetry.ingest"], "ingest span should exist")
	assert.True(t, spanNames["telemetry.export.otlp"], "export span should exist")

	traceID := spans[0].SpanContext.TraceID()
	for _, s := range spans[1:] {
		assert.Equal(t, traceID, s.SpanContext.TraceID(),
			"span %q should share trace ID", s.Name)
	}

	var rm metricdata.ResourceMetrics

	err = metricReader.Collect(ctx, &rm)
	require.NoError(t, err)

	reqTotal := findMetric(rm, "telemetry.requests.total")
	require.NotNil(t, reqTotal, "request counter should be recorded")

	reqDuration := findMetric(rm, "telemetry.request.duration.seconds")
	require.NotNil(t, reqDuration, "duration histogram should be recorded")

	observationsTotal := findMetric(rm, "telemetry.ingest.observations.total")
	require.NotNil(t, observationsTotal, "ingest observations counter should be recorded")

	batchesTotal := findMetric(rm, "telemetry.ingest.batches.total")
	require.NotNil(t, batchesTotal, "ingest batches counter should be recorded")

	batchDuration := findMetric(rm, "telemetry.ingest.batch.duration.seconds")
	require.NotNil(t, batchDuration, "batch duration histogram should be recorded")

	cacheHits := findMetric(rm, "telemetry.ingest.cache.hits.total")
	require.NotNil(t, cacheHits, "cache hits counter should be recorded")

	cacheMisses := findMetric(rm, "telemetry.ingest.cache.misses.total")
	require.NotNil(t, cacheMisses, "cache misses counter should be recorded")

	var logRecord map[string]any

	err = json.Unmarshal(logBuf.Bytes(), &logRecord)
	require.NoError(t, err)

	assert.Equal(t, traceID.String(), logRecord["trace_id"],
		"log line should contain the active trace_id")
	assert.Contains(t, logRecord, "span_id",
		"log line should contain span_id")
	assert.Equal(t, "telemetry-runtime", logRecord["service"],
		"log line should contain service name")

	observations, ok := logRecord["observations"].(float64)
	require.True(t, ok, "observations should be a number")
	assert.InDelta(t, acceptanceObservationCount, observations, 0,
		"log line should contain custom attributes")
}
