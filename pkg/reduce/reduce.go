// Package reduce provides vectorised reductions (sum, mean, min, max,
// variance) over contiguous float64 slices, the numeric core behind window
// aggregation in the telemetry runtime. Reduction is dispatched at
// construction time based on detected CPU features; the vectorised paths are
// manually unrolled Go loops rather than assembly, widened to the detected
// lane count.
package reduce

import (
	"math"

	"golang.org/x/sys/cpu"

	"github.com/Sumatoshi-tech/telemetry/internal/terr"
)

// Width is the SIMD lane width a Reducer dispatches to.
type Width int

// Supported lane widths, widest first in dispatch preference.
const (
	WidthScalar Width = 1
	WidthWide4  Width = 4
	WidthWide8  Width = 8
)

// String returns a human-readable name for the width.
func (w Width) String() string {
	switch w {
	case WidthWide8:
		return "wide8"
	case WidthWide4:
		return "wide4"
	default:
		return "scalar"
	}
}

// Reducer performs sum/mean/min/max/variance reductions over []float64,
// vectorising when the input is long enough to amortise the wider loop.
type Reducer struct {
	width Width
}

// New constructs a Reducer, detecting the widest lane width the current CPU
// supports. AVX2 (x86_64) and ASIMD/NEON (arm64) select the 8-wide path;
// otherwise the 4-wide path is used, which every supported platform executes
// correctly (it is a plain unrolled loop, not an intrinsic).
func New() *Reducer {
	width := WidthWide4

	if cpu.X86.HasAVX2 || cpu.ARM64.HasASIMD {
		width = WidthWide8
	}

	return &Reducer{width: width}
}

// Width reports the lane width this Reducer dispatches to.
func (r *Reducer) Width() Width { return r.width }

// vectorThreshold returns the minimum slice length for which the wide path
// is used; per the numeric contract, vectorisation only pays off at
// len >= 2*width.
func (r *Reducer) vectorThreshold() int { return 2 * int(r.width) }

// Sum returns the sum of values. Empty input is an invalid_argument error.
func (r *Reducer) Sum(values []float64) (float64, error) {
	if len(values) == 0 {
		return 0, terr.New(terr.KindInvalidArgument, "reduce.Sum", "values must be non-empty")
	}

	return r.sum(values), nil
}

func (r *Reducer) sum(values []float64) float64 {
	if len(values) < r.vectorThreshold() {
		var total float64
		for _, v := range values {
			total += v
		}

		return total
	}

	switch r.width {
	case WidthWide8:
		return sumWide8(values)
	default:
		return sumWide4(values)
	}
}

func sumWide4(values []float64) float64 {
	var acc0, acc1, acc2, acc3 float64

	n := len(values)
	i := 0

	for ; i+4 <= n; i += 4 {
		acc0 += values[i]
		acc1 += values[i+1]
		acc2 += values[i+2]
		acc3 += values[i+3]
	}

	total := acc0 + acc1 + acc2 + acc3

	for ; i < n; i++ {
		total += values[i]
	}

	return total
}

func sumWide8(values []float64) float64 {
	var acc [8]float64

	n := len(values)
	i := 0

	for ; i+8 <= n; i += 8 {
		for lane := range 8 {
			acc[lane] += values[i+lane]
		}
	}

	var total float64
	for _, a := range acc {
		total += a
	}

	for ; i < n; i++ {
		total += values[i]
	}

	return total
}

// Mean returns the arithmetic mean. Empty input is an invalid_argument
// error.
func (r *Reducer) Mean(values []float64) (float64, error) {
	total, err := r.Sum(values)
	if err != nil {
		return 0, terr.New(terr.KindInvalidArgument, "reduce.Mean", "values must be non-empty")
	}

	return total / float64(len(values)), nil
}

// Min returns the smallest value, or +Inf for empty input.
func (r *Reducer) Min(values []float64) float64 {
	if len(values) == 0 {
		return math.Inf(1)
	}

	result := values[0]

	for _, v := range values[1:] {
		if v < result {
			result = v
		}
	}

	return result
}

// Max returns the largest value, or -Inf for empty input.
func (r *Reducer) Max(values []float64) float64 {
	if len(values) == 0 {
		return math.Inf(-1)
	}

	result := values[0]

	for _, v := range values[1:] {
		if v > result {
			result = v
		}
	}

	return result
}

// Variance returns the sample variance (Welford, to avoid catastrophic
// cancellation on large sums). Empty input is an invalid_argument error.
func (r *Reducer) Variance(values []float64) (float64, error) {
	if len(values) == 0 {
		return 0, terr.New(terr.KindInvalidArgument, "reduce.Variance", "values must be non-empty")
	}

	if len(values) == 1 {
		return 0, nil
	}

	var (
		mean float64
		m2   float64
	)

	for i, v := range values {
		n := float64(i + 1)
		delta := v - mean
		mean += delta / n
		delta2 := v - mean
		m2 += delta * delta2
	}

	return m2 / float64(len(values)-1), nil
}

// Summary is the result of a single-pass reduction over a batch.
type Summary struct {
	Count    int
	Sum      float64
	Mean     float64
	Min      float64
	Max      float64
	Variance float64
	StdDev   float64
}

// Summarize computes every reduction over values in one call (separate
// passes for the width-dispatched sum, the variance, min and max),
// suitable for window-close processing. Empty input is an
// invalid_argument error.
func (r *Reducer) Summarize(values []float64) (Summary, error) {
	if len(values) == 0 {
		return Summary{}, terr.New(terr.KindInvalidArgument, "reduce.Summarize", "values must be non-empty")
	}

	total := r.sum(values)
	mean := total / float64(len(values))

	variance, err := r.Variance(values)
	if err != nil {
		return Summary{}, err
	}

	return Summary{
		Count:    len(values),
		Sum:      total,
		Mean:     mean,
		Min:      r.Min(values),
		Max:      r.Max(values),
		Variance: variance,
		StdDev:   math.Sqrt(variance),
	}, nil
}
