// Package metricstore is the metric storage engine (C7): it owns the
// lock-free ingress ring (C1), a background flusher that drains batches of
// observations into the time-series store (C6), and a per-engine name
// symbol table.
package metricstore

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Sumatoshi-tech/telemetry/internal/terr"
	"github.com/Sumatoshi-tech/telemetry/pkg/ring"
	"github.com/Sumatoshi-tech/telemetry/pkg/toposort"
	"github.com/Sumatoshi-tech/telemetry/pkg/tsstore"
)

// ValueKind tags the numeric union carried by an Observation.
type ValueKind int

// Supported value kinds.
const (
	ValueFloat ValueKind = iota
	ValueInt
)

// Value is a tagged float64/int64 union, kept as a small struct (rather than
// `any`) to keep the ingestion hot path allocation-free.
type Value struct {
	Kind  ValueKind
	Float float64
	Int   int64
}

// AsFloat returns the value as a float64 regardless of Kind.
func (v Value) AsFloat() float64 {
	if v.Kind == ValueInt {
		return float64(v.Int)
	}

	return v.Float
}

// Observation is a single metric sample accepted on the ingress ring.
type Observation struct {
	Name      string
	Kind      tsstore.Kind
	Value     Value
	Timestamp time.Time
	Tags      map[string]string
}

// Config configures an Engine.
type Config struct {
	// RingCapacity sizes the ingress ring (rounded up to a power of two).
	RingCapacity int

	// FlushInterval is how often the background flusher drains the ring.
	FlushInterval time.Duration

	// Store settings forwarded to the underlying tsstore.Store.
	MaxPoints       int
	MaxMetrics      int
	RetentionPeriod time.Duration
}

func (c Config) validate() error {
	if c.RingCapacity <= 0 {
		return terr.New(terr.KindInvalidConfiguration, "metricstore.New", "ring_capacity must be positive")
	}

	if c.FlushInterval <= 0 {
		return terr.New(terr.KindInvalidConfiguration, "metricstore.New", "flush_interval must be positive")
	}

	return nil
}

// Engine is the ingress-ring-to-time-series-store pipeline.
type Engine struct {
	cfg Config

	ingress *ring.Ring[Observation]
	store   *tsstore.Store
	symbols *toposort.SymbolTable

	running atomic.Bool
	done    chan struct{}
	wg      sync.WaitGroup

	ingressDropped  atomic.Int64
	creationDropped atomic.Int64
	flushFailures   atomic.Int64
	flushedBatches  atomic.Int64
	flushedPoints   atomic.Int64
}

// New constructs an Engine per cfg.
func New(cfg Config) (*Engine, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	store, err := tsstore.New(tsstore.Config{
		MaxPoints:       cfg.MaxPoints,
		MaxMetrics:      cfg.MaxMetrics,
		RetentionPeriod: cfg.RetentionPeriod,
	})
	if err != nil {
		return nil, err
	}

	return &Engine{
		cfg:     cfg,
		ingress: ring.New[Observation](cfg.RingCapacity),
		store:   store,
		symbols: toposort.NewSymbolTable(),
	}, nil
}

// Store returns the underlying time-series store, for query access.
func (e *Engine) Store() *tsstore.Store { return e.store }

// Ingest pushes an observation onto the ingress ring. Returns
// resource_exhausted (and increments the drop counter) if the ring is full.
func (e *Engine) Ingest(obs Observation) error {
	e.symbols.Intern(obs.Name)

	if !e.ingress.Push(obs) {
		e.ingressDropped.Add(1)

		return terr.New(terr.KindResourceExhausted, "metricstore.Ingest", "ingress ring is full")
	}

	return nil
}

// Start launches the background flusher goroutine. Calling Start twice is a
// no-op.
func (e *Engine) Start() {
	if !e.running.CompareAndSwap(false, true) {
		return
	}

	e.done = make(chan struct{})
	e.wg.Add(1)

	go e.run()
}

func (e *Engine) run() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			e.flush()
		case <-e.done:
			e.flush() // final drain

			return
		}
	}
}

// flush drains up to the ring's capacity in one batch and appends each
// observation to its series, in the order it was drained.
func (e *Engine) flush() {
	batch := make([]Observation, 0, e.ingress.Capacity())

	for i := 0; i < e.ingress.Capacity(); i++ {
		obs, ok := e.ingress.Pop()
		if !ok {
			break
		}

		batch = append(batch, obs)
	}

	if len(batch) == 0 {
		return
	}

	for _, obs := range batch {
		meta := tsstore.SeriesMeta{Name: obs.Name, Kind: obs.Kind}
		point := tsstore.Point{Timestamp: obs.Timestamp, Value: obs.Value.AsFloat()}

		if err := e.store.Write(obs.Name, meta, point); err != nil {
			var te *terr.Error
			if errors.As(err, &te) && te.Kind == terr.KindResourceExhausted {
				e.creationDropped.Add(1)

				continue
			}

			e.flushFailures.Add(1)

			continue
		}

		e.flushedPoints.Add(1)
	}

	e.flushedBatches.Add(1)
}

// ForceFlush synchronously drains the ingress ring without waiting for the
// next tick, useful for tests and explicit flush requests.
func (e *Engine) ForceFlush() {
	e.flush()
}

// Stop halts the flusher, performing a final drain, and waits for it to
// exit. Calling Stop twice is a no-op.
func (e *Engine) Stop() {
	if !e.running.CompareAndSwap(true, false) {
		return
	}

	close(e.done)
	e.wg.Wait()
}

// Stats is a point-in-time snapshot of engine-wide counters.
type Stats struct {
	IngressDropped  int64
	CreationDropped int64
	FlushFailures   int64
	FlushedBatches  int64
	FlushedPoints   int64
	RingStats       ring.Stats
	StoreStats      tsstore.Stats
}

// Snapshot returns current engine statistics.
func (e *Engine) Snapshot() Stats {
	return Stats{
		IngressDropped:  e.ingressDropped.Load(),
		CreationDropped: e.creationDropped.Load(),
		FlushFailures:   e.flushFailures.Load(),
		FlushedBatches:  e.flushedBatches.Load(),
		FlushedPoints:   e.flushedPoints.Load(),
		RingStats:       e.ingress.Snapshot(),
		StoreStats:      e.store.Snapshot(),
	}
}

// IngressSaturation returns the ingress ring's instantaneous fill ratio,
// in [0, 1]. A facade uses this to decide whether to shed load before
// the ring starts rejecting pushes outright.
func (e *Engine) IngressSaturation() float64 {
	capacity := e.ingress.Capacity()
	if capacity <= 0 {
		return 0
	}

	return float64(e.ingress.Len()) / float64(capacity)
}
