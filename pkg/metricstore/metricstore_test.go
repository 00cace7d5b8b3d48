package metricstore_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/telemetry/internal/terr"
	"github.com/Sumatoshi-tech/telemetry/pkg/metricstore"
	"github.com/Sumatoshi-tech/telemetry/pkg/tsstore"
)

func newTestEngine(t *testing.T) *metricstore.Engine {
	t.Helper()

	e, err := metricstore.New(metricstore.Config{
		RingCapacity:  64,
		FlushInterval: time.Hour, // tests force-flush explicitly
		MaxPoints:     32,
		MaxMetrics:    8,
	})
	require.NoError(t, err)

	return e
}

func TestEngine_IngestAndForceFlush(t *testing.T) {
	e := newTestEngine(t)

	require.NoError(t, e.Ingest(metricstore.Observation{
		Name:      "requests.count",
		Kind:      tsstore.KindCounter,
		Value:     metricstore.Value{Kind: metricstore.ValueInt, Int: 5},
		Timestamp: time.Unix(1000, 0),
	}))

	e.ForceFlush()

	latest, ok := e.Store().Latest("requests.count")
	require.True(t, ok)
	assert.Equal(t, 5.0, latest.Value)

	stats := e.Snapshot()
	assert.EqualValues(t, 1, stats.FlushedBatches)
	assert.EqualValues(t, 1, stats.FlushedPoints)
}

func TestEngine_IngressDropsWhenRingFull(t *testing.T) {
	e, err := metricstore.New(metricstore.Config{
		RingCapacity:  2,
		FlushInterval: time.Hour,
		MaxPoints:     8,
		MaxMetrics:    8,
	})
	require.NoError(t, err)

	for range 2 {
		require.NoError(t, e.Ingest(metricstore.Observation{Name: "x", Timestamp: time.Unix(1, 0)}))
	}

	err = e.Ingest(metricstore.Observation{Name: "x", Timestamp: time.Unix(2, 0)})
	require.Error(t, err)

	var te *terr.Error

	require.ErrorAs(t, err, &te)
	assert.Equal(t, terr.KindResourceExhausted, te.Kind)
	assert.EqualValues(t, 1, e.Snapshot().IngressDropped)
}

func TestEngine_StartStopLifecycleDrainsOnShutdown(t *testing.T) {
	e, err := metricstore.New(metricstore.Config{
		RingCapacity:  64,
		FlushInterval: 5 * time.Millisecond,
		MaxPoints:     8,
		MaxMetrics:    8,
	})
	require.NoError(t, err)

	e.Start()

	require.NoError(t, e.Ingest(metricstore.Observation{Name: "y", Timestamp: time.Unix(1, 0)}))

	e.Stop()
	// Stop performs a final drain synchronously before returning.

	_, ok := e.Store().Latest("y")
	assert.True(t, ok)

	// Stop/Start are idempotent-safe to call again without blocking forever.
	e.Stop()
}

func TestEngine_FlushStoresEachDistinctSeries(t *testing.T) {
	// Three series stay under MaxMetrics, so no creation is rejected; this
	// test only checks that the flush path stores every distinct name.
	e := newTestEngine(t)

	for i := range 3 {
		require.NoError(t, e.Ingest(metricstore.Observation{
			Name:      "series." + string(rune('a'+i)),
			Timestamp: time.Unix(int64(i), 0),
			Value:     metricstore.Value{Float: float64(i)},
		}))
	}

	e.ForceFlush()

	for i := range 3 {
		_, ok := e.Store().Latest("series." + string(rune('a'+i)))
		assert.True(t, ok)
	}
}

func TestEngine_IngressSaturationTracksRingFill(t *testing.T) {
	e := newTestEngine(t)

	assert.InDelta(t, 0, e.IngressSaturation(), 0.001)

	for i := range 32 {
		require.NoError(t, e.Ingest(metricstore.Observation{
			Name:      "x",
			Timestamp: time.Unix(int64(i), 0),
			Value:     metricstore.Value{Float: float64(i)},
		}))
	}

	assert.InDelta(t, 0.5, e.IngressSaturation(), 0.01)
}
