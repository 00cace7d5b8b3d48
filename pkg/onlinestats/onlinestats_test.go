package onlinestats_test

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/telemetry/pkg/onlinestats"
)

func TestWelford_MatchesClosedForm(t *testing.T) {
	values := []float64{1, 2, 3, 4, 5, 6, 7, 8}

	var w onlinestats.Welford
	for _, v := range values {
		w.Observe(v)
	}

	assert.EqualValues(t, 8, w.Count())
	assert.InDelta(t, 4.5, w.Mean(), 1e-10)
	assert.InDelta(t, 36.0, w.Sum(), 1e-10)
	assert.InDelta(t, 1.0, w.Min(), 1e-10)
	assert.InDelta(t, 8.0, w.Max(), 1e-10)

	// Population variance of 1..8 is 5.25; sample variance (÷ n-1) is 6.0.
	assert.InDelta(t, 6.0, w.Variance(), 1e-9)
}

func TestWelford_EmptyAndSingleton(t *testing.T) {
	var w onlinestats.Welford
	assert.Equal(t, 0.0, w.Variance())

	w.Observe(42)
	assert.Equal(t, 0.0, w.Variance())
	assert.Equal(t, 42.0, w.Min())
	assert.Equal(t, 42.0, w.Max())
}

func TestWelford_Reset(t *testing.T) {
	var w onlinestats.Welford

	w.Observe(1)
	w.Observe(2)
	w.Reset()

	var fresh onlinestats.Welford

	assert.Equal(t, fresh, w)
}

func TestP2Estimator_RejectsOutOfRangeP(t *testing.T) {
	_, err := onlinestats.NewP2Estimator(0)
	require.Error(t, err)

	_, err = onlinestats.NewP2Estimator(1)
	require.Error(t, err)
}

func TestP2Estimator_ConvergesOnShuffledIntegers(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))

	values := make([]float64, 1000)
	for i := range values {
		values[i] = float64(i + 1)
	}

	rng.Shuffle(len(values), func(i, j int) { values[i], values[j] = values[j], values[i] })

	percentiles := []float64{0.5, 0.9, 0.99}
	expected := []float64{500, 900, 990}

	estimators := make([]*onlinestats.P2Estimator, len(percentiles))

	for i, p := range percentiles {
		est, err := onlinestats.NewP2Estimator(p)
		require.NoError(t, err)

		estimators[i] = est
	}

	for _, v := range values {
		for _, est := range estimators {
			est.Observe(v)
		}
	}

	for i, est := range estimators {
		got := est.Quantile()
		tolerance := expected[i] * 0.02
		assert.InDelta(t, expected[i], got, tolerance,
			"p=%.2f expected ~%.0f got %.2f", percentiles[i], expected[i], got)
	}
}

func TestP2Estimator_ExactBeforeFiveSamples(t *testing.T) {
	est, err := onlinestats.NewP2Estimator(0.5)
	require.NoError(t, err)

	est.Observe(10)
	est.Observe(20)

	assert.InDelta(t, 15.0, est.Quantile(), 1e-9)
}

func TestP2Estimator_Reset(t *testing.T) {
	est, err := onlinestats.NewP2Estimator(0.9)
	require.NoError(t, err)

	for i := 1; i <= 20; i++ {
		est.Observe(float64(i))
	}

	est.Reset()

	fresh, err := onlinestats.NewP2Estimator(0.9)
	require.NoError(t, err)

	assert.Equal(t, fresh.Quantile(), est.Quantile())
	assert.Equal(t, 0, est.Count())
}

func TestP2Estimator_MonotonicMarkersUnderMonotonicInput(t *testing.T) {
	est, err := onlinestats.NewP2Estimator(0.5)
	require.NoError(t, err)

	for i := 1; i <= 200; i++ {
		est.Observe(float64(i))
		q := est.Quantile()
		assert.False(t, math.IsNaN(q))
	}
}
