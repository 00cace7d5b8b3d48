package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	metricObservationsTotal = "telemetry.ingest.observations.total"
	metricBatchesTotal      = "telemetry.ingest.batches.total"
	metricBatchDuration     = "telemetry.ingest.batch.duration.seconds"
	metricCacheHitsTotal    = "telemetry.ingest.cache.hits.total"
	metricCacheMissesTotal  = "telemetry.ingest.cache.misses.total"

	attrCache = "cache"
)

// IngestMetrics holds OTel instruments tracking the runtime's own metric
// and span ingestion, separate from the data the runtime collects on
// behalf of its host application.
type IngestMetrics struct {
	observationsTotal metric.Int64Counter
	batchesTotal      metric.Int64Counter
	batchDuration     metric.Float64Histogram
	cacheHits         metric.Int64Counter
	cacheMisses       metric.Int64Counter
}

// IngestStats holds the statistics for a single flush/export cycle,
// decoupled from metricstore/export types.
type IngestStats struct {
	Observations      int64
	Batches           int
	BatchDurations    []time.Duration
	SeriesCacheHits   int64
	SeriesCacheMisses int64
	ExportCacheHits   int64
	ExportCacheMisses int64
}

// NewIngestMetrics creates ingestion metric instruments from the given meter.
func NewIngestMetrics(mt metric.Meter) (*IngestMetrics, error) {
	b := newMetricBuilder(mt)

	im := &IngestMetrics{
		observationsTotal: b.counter(metricObservationsTotal, "Total observations ingested", "{observation}"),
		batchesTotal:      b.counter(metricBatchesTotal, "Total batches flushed", "{batch}"),
		batchDuration:     b.histogram(metricBatchDuration, "Per-batch flush duration in seconds", "s", durationBucketBoundaries...),
		cacheHits:         b.counter(metricCacheHitsTotal, "Cache hits by type", "{hit}"),
		cacheMisses:       b.counter(metricCacheMissesTotal, "Cache misses by type", "{miss}"),
	}

	if b.err != nil {
		return nil, b.err
	}

	return im, nil
}

// RecordRun records ingestion statistics for a completed flush cycle.
// Safe to call on a nil receiver (no-op).
func (im *IngestMetrics) RecordRun(ctx context.Context, stats IngestStats) {
	if im == nil {
		return
	}

	im.observationsTotal.Add(ctx, stats.Observations)
	im.batchesTotal.Add(ctx, int64(stats.Batches))

	for _, d := range stats.BatchDurations {
		im.batchDuration.Record(ctx, d.Seconds())
	}

	seriesAttrs := metric.WithAttributes(attribute.String(attrCache, "series"))
	im.cacheHits.Add(ctx, stats.SeriesCacheHits, seriesAttrs)
	im.cacheMisses.Add(ctx, stats.SeriesCacheMisses, seriesAttrs)

	exportAttrs := metric.WithAttributes(attribute.String(attrCache, "export"))
	im.cacheHits.Add(ctx, stats.ExportCacheHits, exportAttrs)
	im.cacheMisses.Add(ctx, stats.ExportCacheMisses, exportAttrs)
}
