package ring_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/telemetry/pkg/ring"
)

func TestRing_OrderAndBoundaryScenario(t *testing.T) {
	r := ring.New[int](4)

	for i := 1; i <= 4; i++ {
		ok := r.Push(i)
		require.True(t, ok)
	}

	assert.False(t, r.Push(5), "push to full ring must return false")
	assert.Equal(t, 4, r.Len())

	for i := 1; i <= 4; i++ {
		v, ok := r.Pop()
		require.True(t, ok)
		assert.Equal(t, i, v)
	}

	_, ok := r.Pop()
	assert.False(t, ok, "pop from empty ring must fail")
}

func TestRing_CapacityRoundsUpToPowerOfTwo(t *testing.T) {
	r := ring.New[int](5)
	assert.Equal(t, 8, r.Capacity())
}

func TestRing_FullPushDoesNotMutateSlots(t *testing.T) {
	r := ring.New[int](2)
	require.True(t, r.Push(10))
	require.True(t, r.Push(20))

	require.False(t, r.Push(30))

	v1, ok := r.Pop()
	require.True(t, ok)
	assert.Equal(t, 10, v1)

	v2, ok := r.Pop()
	require.True(t, ok)
	assert.Equal(t, 20, v2)
}

func TestRing_Stats(t *testing.T) {
	r := ring.New[int](2)
	r.Push(1)
	r.Push(2)
	r.Push(3) // fails, ring full
	r.Pop()
	r.Pop()
	r.Pop() // fails, ring empty

	stats := r.Snapshot()
	assert.EqualValues(t, 3, stats.PushAttempts)
	assert.EqualValues(t, 2, stats.PushSuccesses)
	assert.EqualValues(t, 1, stats.PushFailures)
	assert.EqualValues(t, 3, stats.PopAttempts)
	assert.EqualValues(t, 2, stats.PopSuccesses)
	assert.EqualValues(t, 1, stats.PopFailures)
	assert.InDelta(t, 66.66, stats.PushSuccessRate(), 0.1)
}

// TestRing_ConcurrentProducersConsumers exercises the MPMC contract: every
// value pushed is observed by exactly one popper, with no duplication and
// no loss, across many producer/consumer goroutines.
func TestRing_ConcurrentProducersConsumers(t *testing.T) {
	const (
		producers  = 8
		perProd    = 2000
		total      = producers * perProd
		numConsume = 4
	)

	r := ring.New[int](256)

	var wgProd sync.WaitGroup

	for p := range producers {
		wgProd.Add(1)

		go func(base int) {
			defer wgProd.Done()

			for i := range perProd {
				for !r.Push(base*perProd + i) {
					// ring momentarily full; spin until a consumer drains.
				}
			}
		}(p)
	}

	seen := make(chan int, total)

	var wgCons sync.WaitGroup

	done := make(chan struct{})

	var closeOnce sync.Once

	var popped int
	var mu sync.Mutex

	for range numConsume {
		wgCons.Add(1)

		go func() {
			defer wgCons.Done()

			for {
				select {
				case <-done:
					return
				default:
				}

				v, ok := r.Pop()
				if !ok {
					continue
				}

				seen <- v

				mu.Lock()
				popped++
				reached := popped == total
				mu.Unlock()

				if reached {
					closeOnce.Do(func() { close(done) })

					return
				}
			}
		}()
	}

	wgProd.Wait()
	wgCons.Wait()
	close(seen)

	counts := make(map[int]int, total)
	for v := range seen {
		counts[v]++
	}

	assert.Len(t, counts, total, "every pushed value must be observed exactly once")

	for v, c := range counts {
		if c != 1 {
			t.Fatalf("value %d observed %d times", v, c)
		}
	}
}
