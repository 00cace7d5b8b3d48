package observability_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/Sumatoshi-tech/telemetry/internal/observability"
)

type fakeStoreStats struct {
	series    int64
	evictions int64
}

func (f fakeStoreStats) SeriesCount() int64 { return f.series }
func (f fakeStoreStats) EvictedLRU() int64  { return f.evictions }

func TestRegisterStoreMetrics_BothProvidersRegisterGauges(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	err := observability.RegisterStoreMetrics(mp.Meter("test"),
		fakeStoreStats{series: 10, evictions: 2},
		fakeStoreStats{series: 5, evictions: 1},
	)
	require.NoError(t, err)

	rm := collectMetrics(t, reader)

	series := findMetric(rm, "telemetry.store.series")
	assert.NotNil(t, series, "series gauge should exist")

	evictions := findMetric(rm, "telemetry.store.evictions")
	assert.NotNil(t, evictions, "evictions gauge should exist")
}

func TestRegisterStoreMetrics_NoProvidersIsNoop(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	err := observability.RegisterStoreMetrics(mp.Meter("test"), nil, nil)
	require.NoError(t, err)
}
