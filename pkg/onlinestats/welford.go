// Package onlinestats provides constant-memory streaming estimators: Welford
// moments and the P² quantile algorithm, the building blocks behind every
// higher-level aggregator in the telemetry runtime.
package onlinestats

import "math"

// Welford accumulates count, mean, and variance of a stream in O(1) memory
// using Welford's numerically stable recurrence, alongside running min/max/
// sum. The zero value is ready to use.
type Welford struct {
	count int64
	mean  float64
	m2    float64
	min   float64
	max   float64
	sum   float64
}

// Observe feeds x into the estimator.
func (w *Welford) Observe(x float64) {
	w.count++
	delta := x - w.mean
	w.mean += delta / float64(w.count)
	delta2 := x - w.mean
	w.m2 += delta * delta2

	w.sum += x

	if w.count == 1 {
		w.min, w.max = x, x

		return
	}

	w.min = math.Min(w.min, x)
	w.max = math.Max(w.max, x)
}

// Count returns the number of observations.
func (w *Welford) Count() int64 { return w.count }

// Mean returns the running mean, 0 with no observations.
func (w *Welford) Mean() float64 { return w.mean }

// Sum returns the running sum.
func (w *Welford) Sum() float64 { return w.sum }

// Min returns the running minimum, 0 with no observations.
func (w *Welford) Min() float64 { return w.min }

// Max returns the running maximum, 0 with no observations.
func (w *Welford) Max() float64 { return w.max }

// Variance returns the sample variance (M2/(n-1)), 0 for n<2.
func (w *Welford) Variance() float64 {
	if w.count < 2 {
		return 0
	}

	return w.m2 / float64(w.count-1)
}

// StdDev returns the sample standard deviation, 0 for n<2.
func (w *Welford) StdDev() float64 {
	return math.Sqrt(w.Variance())
}

// Reset restores the estimator to its zero value.
func (w *Welford) Reset() {
	*w = Welford{}
}
