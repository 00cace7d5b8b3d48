// Package ring provides a bounded, lock-free multi-producer/multi-consumer
// queue used as the hand-off structure between hot-path producers and
// background consumers throughout the telemetry runtime.
package ring

import "sync/atomic"

// cacheLinePad is sized to separate independently-written fields onto their
// own cache line, avoiding false sharing between producer and consumer
// cursors under contention.
type cacheLinePad [7]uint64

type slot[T any] struct {
	seq   atomic.Uint64
	value T
}

// Ring is a bounded MPMC queue of capacity N, N forced up to the next power
// of two. Producers and consumers never block; Push/Pop are wait-free in
// the uncontended case and bounded-retry under contention.
type Ring[T any] struct {
	mask uint64
	buf  []slot[T]

	_    cacheLinePad
	tail atomic.Uint64 // next slot a producer will claim
	_    cacheLinePad
	head atomic.Uint64 // next slot a consumer will claim
	_    cacheLinePad

	pushAttempts  atomic.Int64
	pushSuccesses atomic.Int64
	pushFailures  atomic.Int64
	popAttempts   atomic.Int64
	popSuccesses  atomic.Int64
	popFailures   atomic.Int64
}

// New creates a Ring with capacity rounded up to the next power of two
// (minimum 2).
func New[T any](capacity int) *Ring[T] {
	if capacity < 2 {
		capacity = 2
	}

	capacity = nextPowerOfTwo(capacity)

	r := &Ring[T]{
		mask: uint64(capacity - 1),
		buf:  make([]slot[T], capacity),
	}

	for i := range r.buf {
		r.buf[i].seq.Store(uint64(i))
	}

	return r
}

func nextPowerOfTwo(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}

	return p
}

// Capacity returns the fixed slot count.
func (r *Ring[T]) Capacity() int {
	return len(r.buf)
}

// Len returns an instantaneous estimate of the number of queued elements.
// Under concurrent use this is a snapshot, not a linearizable count.
func (r *Ring[T]) Len() int {
	tail := r.tail.Load()
	head := r.head.Load()

	if tail < head {
		return 0
	}

	return int(tail - head)
}

// Push enqueues value, returning false without mutating any slot if the
// ring is full.
func (r *Ring[T]) Push(value T) bool {
	r.pushAttempts.Add(1)

	pos := r.tail.Load()

	for {
		s := &r.buf[pos&r.mask]
		seq := s.seq.Load()

		diff := int64(seq) - int64(pos)

		switch {
		case diff == 0:
			if r.tail.CompareAndSwap(pos, pos+1) {
				s.value = value
				s.seq.Store(pos + 1)
				r.pushSuccesses.Add(1)

				return true
			}
			// Lost the race for this slot; reload and retry.
			pos = r.tail.Load()
		case diff < 0:
			// Ring is full: the slot we'd claim hasn't been consumed yet.
			r.pushFailures.Add(1)

			return false
		default:
			pos = r.tail.Load()
		}
	}
}

// Pop dequeues the oldest value. ok is false if the ring is empty.
func (r *Ring[T]) Pop() (value T, ok bool) {
	r.popAttempts.Add(1)

	pos := r.head.Load()

	for {
		s := &r.buf[pos&r.mask]
		seq := s.seq.Load()

		diff := int64(seq) - int64(pos+1)

		switch {
		case diff == 0:
			if r.head.CompareAndSwap(pos, pos+1) {
				value = s.value
				s.seq.Store(pos + r.mask + 1)
				r.popSuccesses.Add(1)

				return value, true
			}

			pos = r.head.Load()
		case diff < 0:
			r.popFailures.Add(1)

			var zero T

			return zero, false
		default:
			pos = r.head.Load()
		}
	}
}

// Stats is a point-in-time copy of the ring's operation counters.
type Stats struct {
	PushAttempts  int64
	PushSuccesses int64
	PushFailures  int64
	PopAttempts   int64
	PopSuccesses  int64
	PopFailures   int64
}

// Snapshot returns the current counter values.
func (r *Ring[T]) Snapshot() Stats {
	return Stats{
		PushAttempts:  r.pushAttempts.Load(),
		PushSuccesses: r.pushSuccesses.Load(),
		PushFailures:  r.pushFailures.Load(),
		PopAttempts:   r.popAttempts.Load(),
		PopSuccesses:  r.popSuccesses.Load(),
		PopFailures:   r.popFailures.Load(),
	}
}

// PushSuccessRate returns the percentage of push attempts that succeeded,
// 100.0 when no attempts have been made.
func (s Stats) PushSuccessRate() float64 {
	if s.PushAttempts == 0 {
		return 100.0
	}

	return float64(s.PushSuccesses) / float64(s.PushAttempts) * 100.0
}

// PopSuccessRate returns the percentage of pop attempts that succeeded,
// 100.0 when no attempts have been made.
func (s Stats) PopSuccessRate() float64 {
	if s.PopAttempts == 0 {
		return 100.0
	}

	return float64(s.PopSuccesses) / float64(s.PopAttempts) * 100.0
}
