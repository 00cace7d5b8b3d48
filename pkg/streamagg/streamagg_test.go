package streamagg_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Sumatoshi-tech/telemetry/pkg/streamagg"
)

func TestAggregator_BasicMoments(t *testing.T) {
	a := streamagg.New(streamagg.Config{})

	for i := 1; i <= 8; i++ {
		a.Observe(float64(i))
	}

	stats := a.GetStatistics()
	assert.EqualValues(t, 8, stats.Count)
	assert.InDelta(t, 4.5, stats.Mean, 1e-10)
	assert.InDelta(t, 36.0, stats.Sum, 1e-10)
	assert.InDelta(t, 1.0, stats.Min, 1e-10)
	assert.InDelta(t, 8.0, stats.Max, 1e-10)
	assert.Contains(t, stats.Percentiles, 0.5)
	assert.Contains(t, stats.Percentiles, 0.9)
	assert.Contains(t, stats.Percentiles, 0.95)
	assert.Contains(t, stats.Percentiles, 0.99)
}

func TestAggregator_OutlierDetectionRequiresMinimumSamples(t *testing.T) {
	a := streamagg.New(streamagg.Config{DetectOutliers: true})

	for range 10 {
		a.Observe(1.0)
	}

	a.Observe(1000.0)

	stats := a.GetStatistics()
	assert.Zero(t, stats.OutlierCount, "outlier detection should not flag before the minimum sample count is exceeded")
}

func TestAggregator_FlagsOutlierPastThreshold(t *testing.T) {
	a := streamagg.New(streamagg.Config{DetectOutliers: true, OutlierThreshold: 3})

	for range 20 {
		a.Observe(10.0)
	}

	a.Observe(10.5)
	a.Observe(9.5)

	a.Observe(10000.0)

	// After twenty identical samples the stddev is zero, so 10.5 is flagged;
	// 9.5 then sits more than 3 stddevs from the mean, and so does 10000.
	stats := a.GetStatistics()
	assert.Equal(t, 3, stats.OutlierCount)
	assert.Contains(t, stats.Outliers, 10000.0)
}

func TestAggregator_OutlierRingIsBoundedAndFIFO(t *testing.T) {
	a := streamagg.New(streamagg.Config{DetectOutliers: true, OutlierThreshold: 3})

	for range 20 {
		a.Observe(0.0)
	}

	for i := range 150 {
		a.Observe(float64(1000 + i))
	}

	stats := a.GetStatistics()
	assert.LessOrEqual(t, stats.OutlierCount, 150)
	assert.LessOrEqual(t, len(stats.Outliers), 100)

	if len(stats.Outliers) == 100 {
		assert.Equal(t, float64(1000+149), stats.Outliers[len(stats.Outliers)-1])
	}
}

func TestAggregator_Reset(t *testing.T) {
	a := streamagg.New(streamagg.Config{DetectOutliers: true})

	for i := range 20 {
		a.Observe(float64(i))
	}

	a.Reset()

	stats := a.GetStatistics()
	assert.Zero(t, stats.Count)
	assert.Zero(t, stats.OutlierCount)
	assert.Empty(t, stats.Outliers)
}
