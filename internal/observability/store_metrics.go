package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/Sumatoshi-tech/telemetry/pkg/tsstore"
)

const (
	metricStoreSeries    = "telemetry.store.series"
	metricStoreEvictions = "telemetry.store.evictions"
)

// StoreStatsProvider exposes a point-in-time series-store snapshot for OTel
// export. TSStoreAdapter adapts a tsstore.Store to this shape.
type StoreStatsProvider interface {
	SeriesCount() int64
	EvictedLRU() int64
}

// TSStoreAdapter adapts a *tsstore.Store to StoreStatsProvider by snapshotting
// it on every call, since tsstore.Store exposes counters only via Snapshot.
type TSStoreAdapter struct {
	Store *tsstore.Store
}

// SeriesCount implements StoreStatsProvider.
func (a TSStoreAdapter) SeriesCount() int64 { return int64(a.Store.Snapshot().SeriesCount) }

// EvictedLRU implements StoreStatsProvider.
func (a TSStoreAdapter) EvictedLRU() int64 { return a.Store.Snapshot().EvictedLRU }

// RegisterStoreMetrics registers observable gauges reporting live series
// count and LRU eviction totals from up to two stores (e.g. the metric
// store and a secondary span-index store). Either provider may be nil.
func RegisterStoreMetrics(mt metric.Meter, primary, secondary StoreStatsProvider) error {
	providers := make([]struct {
		name     string
		provider StoreStatsProvider
	}, 0, 2)

	if primary != nil {
		providers = append(providers, struct {
			name     string
			provider StoreStatsProvider
		}{"metrics", primary})
	}

	if secondary != nil {
		providers = append(providers, struct {
			name     string
			provider StoreStatsProvider
		}{"spans", secondary})
	}

	if len(providers) == 0 {
		return nil
	}

	_, err := mt.Int64ObservableGauge(metricStoreSeries,
		metric.WithDescription("Live series/trace count"),
		metric.WithUnit("{series}"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			for _, p := range providers {
				o.Observe(p.provider.SeriesCount(), metric.WithAttributes(
					attribute.String("store", p.name),
				))
			}

			return nil
		}),
	)
	if err != nil {
		return fmt.Errorf("create %s: %w", metricStoreSeries, err)
	}

	_, err = mt.Int64ObservableGauge(metricStoreEvictions,
		metric.WithDescription("LRU eviction count"),
		metric.WithUnit("{eviction}"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			for _, p := range providers {
				o.Observe(p.provider.EvictedLRU(), metric.WithAttributes(
					attribute.String("store", p.name),
				))
			}

			return nil
		}),
	)
	if err != nil {
		return fmt.Errorf("create %s: %w", metricStoreEvictions, err)
	}

	return nil
}
