package observability_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/Sumatoshi-tech/telemetry/internal/observability"
)

func setupIngestMeter(t *testing.T) (*observability.IngestMetrics, *sdkmetric.ManualReader) {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	meter := mp.Meter("test")

	im, err := observability.NewIngestMetrics(meter)
	require.NoError(t, err)

	return im, reader
}

func TestNewIngestMetrics(t *testing.T) {
	t.Parallel()

	im, _ := setupIngestMeter(t)
	assert.NotNil(t, im)
}

func TestIngestMetrics_RecordRun(t *testing.T) {
	t.Parallel()

	im, reader := setupIngestMeter(t)
	ctx := context.Background()

	im.RecordRun(ctx, observability.IngestStats{
		Observations:      100,
		Batches:           5,
		BatchDurations:    []time.Duration{time.Second, 2 * time.Second, 3 * time.Second},
		SeriesCacheHits:   50,
		SeriesCacheMisses: 10,
		ExportCacheHits:   30,
		ExportCacheMisses: 5,
	})

	rm := collectMetrics(t, reader)

	observations := findMetric(rm, "telemetry.ingest.observations.total")
	require.NotNil(t, observations, "observations counter should exist")

	batches := findMetric(rm, "telemetry.ingest.batches.total")
	require.NotNil(t, batches, "batches counter should exist")

	batchDur := findMetric(rm, "telemetry.ingest.batch.duration.seconds")
	require.NotNil(t, batchDur, "batch duration histogram should exist")

	hist, ok := batchDur.Data.(metricdata.Histogram[float64])
	require.True(t, ok, "expected Histogram data type")
	require.NotEmpty(t, hist.DataPoints)
	assert.Equal(t, uint64(3), hist.DataPoints[0].Count, "should have 3 duration recordings")

	cacheHits := findMetric(rm, "telemetry.ingest.cache.hits.total")
	require.NotNil(t, cacheHits, "cache hits counter should exist")

	cacheMisses := findMetric(rm, "telemetry.ingest.cache.misses.total")
	require.NotNil(t, cacheMisses, "cache misses counter should exist")
}

func TestIngestMetrics_RecordRun_NilReceiver(t *testing.T) {
	t.Parallel()

	var im *observability.IngestMetrics

	// Should not panic.
	im.RecordRun(context.Background(), observability.IngestStats{
		Observations: 10,
		Batches:      1,
	})
}
