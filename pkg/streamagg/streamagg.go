// Package streamagg composes Welford moments and P² quantile estimators into
// a single streaming aggregator with optional z-score outlier detection,
// the summary object every aggregation rule and span-duration collector in
// the telemetry runtime is built on.
package streamagg

import (
	"math"
	"sync"

	"github.com/Sumatoshi-tech/telemetry/pkg/onlinestats"
)

// DefaultPercentiles are the percentiles tracked when Config.Percentiles is
// left empty.
var DefaultPercentiles = []float64{0.5, 0.9, 0.95, 0.99}

// DefaultOutlierThreshold is the z-score magnitude past which a sample is
// flagged as an outlier, once enough samples have accumulated.
const DefaultOutlierThreshold = 3.0

// outlierMinSamples is the minimum sample count before outlier detection
// activates; below this, mean/stddev are too noisy to be meaningful.
const outlierMinSamples = 10

// maxOutliers bounds the retained outlier sample to the most recent values;
// older entries are evicted FIFO.
const maxOutliers = 100

// Config configures an Aggregator.
type Config struct {
	// Percentiles is the set of quantiles to track. Defaults to
	// DefaultPercentiles.
	Percentiles []float64

	// DetectOutliers enables z-score based outlier flagging.
	DetectOutliers bool

	// OutlierThreshold is the z-score magnitude past which a sample is
	// flagged. Defaults to DefaultOutlierThreshold.
	OutlierThreshold float64
}

// Aggregator accumulates a stream of float64 observations into moments,
// percentile estimates, and (optionally) a bounded sample of outliers. Safe
// for concurrent use.
type Aggregator struct {
	mu sync.Mutex

	moments     onlinestats.Welford
	percentiles map[float64]*onlinestats.P2Estimator

	detectOutliers   bool
	outlierThreshold float64
	outliers         []float64
}

// New constructs an Aggregator per cfg. Invalid percentiles (outside (0,1))
// are silently skipped, mirroring the permissive defaulting used elsewhere
// in the aggregation layer.
func New(cfg Config) *Aggregator {
	percentiles := cfg.Percentiles
	if len(percentiles) == 0 {
		percentiles = DefaultPercentiles
	}

	threshold := cfg.OutlierThreshold
	if threshold == 0 {
		threshold = DefaultOutlierThreshold
	}

	a := &Aggregator{
		percentiles:      make(map[float64]*onlinestats.P2Estimator, len(percentiles)),
		detectOutliers:   cfg.DetectOutliers,
		outlierThreshold: threshold,
	}

	for _, p := range percentiles {
		est, err := onlinestats.NewP2Estimator(p)
		if err != nil {
			continue
		}

		a.percentiles[p] = est
	}

	return a
}

// Observe feeds x into the aggregator.
func (a *Aggregator) Observe(x float64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.detectOutliers && a.moments.Count() > outlierMinSamples {
		if isOutlier(x, a.moments.Mean(), a.moments.StdDev(), a.outlierThreshold) {
			a.outliers = append(a.outliers, x)
			if len(a.outliers) > maxOutliers {
				a.outliers = a.outliers[len(a.outliers)-maxOutliers:]
			}
		}
	}

	a.moments.Observe(x)

	for _, est := range a.percentiles {
		est.Observe(x)
	}
}

// isOutlier reports whether x is more than threshold standard deviations
// from mean. A zero stddev with x != mean is treated as maximally anomalous.
func isOutlier(x, mean, stddev, threshold float64) bool {
	if stddev == 0 {
		return x != mean
	}

	return math.Abs((x-mean)/stddev) > threshold
}

// Statistics is a point-in-time snapshot of an Aggregator.
type Statistics struct {
	Count        int64
	Mean         float64
	Variance     float64
	StdDev       float64
	Min          float64
	Max          float64
	Sum          float64
	OutlierCount int
	Outliers     []float64
	Percentiles  map[float64]float64
}

// GetStatistics returns a snapshot of the aggregator's current state.
func (a *Aggregator) GetStatistics() Statistics {
	a.mu.Lock()
	defer a.mu.Unlock()

	percentiles := make(map[float64]float64, len(a.percentiles))
	for p, est := range a.percentiles {
		percentiles[p] = est.Quantile()
	}

	outliers := make([]float64, len(a.outliers))
	copy(outliers, a.outliers)

	return Statistics{
		Count:        a.moments.Count(),
		Mean:         a.moments.Mean(),
		Variance:     a.moments.Variance(),
		StdDev:       a.moments.StdDev(),
		Min:          a.moments.Min(),
		Max:          a.moments.Max(),
		Sum:          a.moments.Sum(),
		OutlierCount: len(a.outliers),
		Outliers:     outliers,
		Percentiles:  percentiles,
	}
}

// Reset clears all accumulated state, preserving configuration.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.moments.Reset()
	a.outliers = nil

	for _, est := range a.percentiles {
		est.Reset()
	}
}
