package onlinestats

import (
	"slices"

	"github.com/Sumatoshi-tech/telemetry/internal/terr"
)

// markerCount is the fixed number of P² markers (the algorithm is defined
// for exactly five).
const markerCount = 5

// P2Estimator is a streaming estimator for a single quantile p in (0,1)
// using Jain & Chlamtac's P² algorithm: five markers track the quantile in
// O(1) memory regardless of stream length.
type P2Estimator struct {
	p float64

	n  [markerCount]int     // marker positions
	np [markerCount]float64 // desired marker positions
	dn [markerCount]float64 // desired position increments
	q  [markerCount]float64 // marker heights

	count  int
	buffer []float64 // holds the first markerCount observations
}

// NewP2Estimator creates an estimator for quantile p, which must lie in
// (0, 1).
func NewP2Estimator(p float64) (*P2Estimator, error) {
	if p <= 0 || p >= 1 {
		return nil, terr.New(terr.KindInvalidArgument, "onlinestats.NewP2Estimator", "p must be in (0, 1)")
	}

	e := &P2Estimator{p: p}
	e.dn = [markerCount]float64{0, p / 2, p, (1 + p) / 2, 1}
	e.buffer = make([]float64, 0, markerCount)

	return e, nil
}

// P returns the target quantile.
func (e *P2Estimator) P() float64 { return e.p }

// Observe feeds a new sample into the estimator.
func (e *P2Estimator) Observe(x float64) {
	e.count++

	if len(e.buffer) < markerCount {
		e.buffer = append(e.buffer, x)

		if len(e.buffer) == markerCount {
			e.initializeFromBuffer()
		}

		return
	}

	e.observeSteadyState(x)
}

func (e *P2Estimator) initializeFromBuffer() {
	sorted := slices.Clone(e.buffer)
	slices.Sort(sorted)

	for i := range markerCount {
		e.q[i] = sorted[i]
		e.n[i] = i + 1
	}

	p := e.p
	e.np = [markerCount]float64{1, 1 + 2*p, 1 + 4*p, 3 + 2*p, 5}
}

func (e *P2Estimator) observeSteadyState(x float64) {
	k := e.locateCell(x)

	for i := k + 1; i < markerCount; i++ {
		e.n[i]++
	}

	for i := range markerCount {
		e.np[i] += e.dn[i]
	}

	for i := 1; i <= 3; i++ {
		d := e.np[i] - float64(e.n[i])

		if (d >= 1 && e.n[i+1]-e.n[i] > 1) || (d <= -1 && e.n[i-1]-e.n[i] < -1) {
			sign := 1
			if d < 0 {
				sign = -1
			}

			qp := e.parabolic(i, sign)

			if e.q[i-1] < qp && qp < e.q[i+1] {
				e.q[i] = qp
			} else {
				e.q[i] = e.linear(i, sign)
			}

			e.n[i] += sign
		}
	}
}

// locateCell finds marker index k (0-based, 0..3) such that
// q[k] <= x < q[k+1], extending the outer markers if x lies outside the
// current range.
func (e *P2Estimator) locateCell(x float64) int {
	switch {
	case x < e.q[0]:
		e.q[0] = x

		return 0
	case x >= e.q[markerCount-1]:
		e.q[markerCount-1] = x

		return markerCount - 2
	}

	for i := 0; i < markerCount-1; i++ {
		if e.q[i] <= x && x < e.q[i+1] {
			return i
		}
	}

	return markerCount - 2
}

func (e *P2Estimator) parabolic(i, sign int) float64 {
	s := float64(sign)

	return e.q[i] + s/(float64(e.n[i+1]-e.n[i-1]))*
		((float64(e.n[i]-e.n[i-1])+s)*(e.q[i+1]-e.q[i])/float64(e.n[i+1]-e.n[i])+
			(float64(e.n[i+1]-e.n[i])-s)*(e.q[i]-e.q[i-1])/float64(e.n[i]-e.n[i-1]))
}

func (e *P2Estimator) linear(i, sign int) float64 {
	j := i + sign

	return e.q[i] + float64(sign)*(e.q[j]-e.q[i])/float64(e.n[j]-e.n[i])
}

// Quantile returns the current estimate of the p-quantile. Before
// markerCount observations have been seen, it falls back to the exact
// quantile of the buffered values (linear interpolation).
func (e *P2Estimator) Quantile() float64 {
	if e.count == 0 {
		return 0
	}

	if len(e.buffer) < markerCount {
		sorted := slices.Clone(e.buffer)
		slices.Sort(sorted)

		idx := e.p * float64(len(sorted)-1)
		lo := int(idx)
		hi := lo + 1

		if hi >= len(sorted) {
			return sorted[lo]
		}

		frac := idx - float64(lo)

		return sorted[lo]*(1-frac) + sorted[hi]*frac
	}

	return e.q[2]
}

// Count returns the number of observations fed to the estimator.
func (e *P2Estimator) Count() int { return e.count }

// Reset restores the estimator's initial marker positions, as if freshly
// constructed for the same p.
func (e *P2Estimator) Reset() {
	p := e.p
	*e = P2Estimator{p: p}
	e.dn = [markerCount]float64{0, p / 2, p, (1 + p) / 2, 1}
	e.buffer = make([]float64, 0, markerCount)
}
