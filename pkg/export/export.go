// Package export is the batching, retrying export pipeline (C10): spans
// and metric points queue on a bounded ring, are grouped into batches by
// size or time, and handed to a Sink with bounded-attempt exponential
// backoff on transient failures.
package export

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/Sumatoshi-tech/telemetry/internal/terr"
	"github.com/Sumatoshi-tech/telemetry/pkg/ring"
	"github.com/Sumatoshi-tech/telemetry/pkg/spanrt"
)

// DropPolicy controls what the pipeline does when the queue is full.
type DropPolicy int

// Supported drop policies.
const (
	// DropIncoming discards the item that didn't fit (oldest kept).
	DropIncoming DropPolicy = iota
	// DropOldest evicts the queue's oldest item to make room.
	DropOldest
)

// Config configures a Pipeline.
type Config struct {
	QueueCapacity     int
	BatchSize         int
	BatchTimeout      time.Duration
	MaxRetryAttempts  int
	InitialBackoff    time.Duration
	BackoffMultiplier float64
	DropPolicy        DropPolicy
}

func (c Config) validate() error {
	if c.QueueCapacity <= 0 {
		return terr.New(terr.KindInvalidConfiguration, "export.New", "queue_capacity must be positive")
	}

	if c.BatchSize <= 0 {
		return terr.New(terr.KindInvalidConfiguration, "export.New", "batch_size must be positive")
	}

	if c.BatchTimeout <= 0 {
		return terr.New(terr.KindInvalidConfiguration, "export.New", "batch_timeout must be positive")
	}

	return nil
}

// BackoffDuration returns the delay before retry attempt (0-indexed), as
// an immediate-then-doubling sequence: 0s, initial, initial*multiplier,
// initial*multiplier^2, ...
func BackoffDuration(attempt int, initial time.Duration, multiplier float64) time.Duration {
	if attempt <= 0 {
		return 0
	}

	if multiplier <= 1 {
		multiplier = 2
	}

	dur := initial

	for range attempt - 1 {
		dur = time.Duration(float64(dur) * multiplier)
	}

	return dur
}

// Exporter ships one encoded batch of spans to a collector, returning an
// error classified via terr.Kind.Retryable() when the pipeline should
// retry.
type Exporter interface {
	Export(ctx context.Context, spans []*spanrt.Span) error
}

type batchIDKey struct{}

// BatchIDFromContext returns the batch identity the pipeline attached to
// ctx before calling Exporter.Export, if any. The id is stable across
// retry attempts of the same batch, so an Exporter that forwards it to the
// collector (e.g. as a request header) gets best-effort dedup for free:
// a collector that has already seen the id can discard a retried batch
// instead of double-counting it.
func BatchIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(batchIDKey{}).(uuid.UUID)

	return id, ok
}

// Stats is a point-in-time snapshot of a Pipeline's counters.
type Stats struct {
	Enqueued       int64
	Dropped        int64
	ExportedBatches int64
	ExportedSpans   int64
	FailedExports   int64
	Retries         int64
	QueueLen        int
	QueueCapacity   int
}

// Pipeline batches spans from a bounded queue and exports them via an
// Exporter, retrying transient failures with exponential backoff.
type Pipeline struct {
	cfg     Config
	queue   *ring.Ring[*spanrt.Span]
	sink    Exporter

	enqueued        atomic.Int64
	dropped         atomic.Int64
	exportedBatches atomic.Int64
	exportedSpans   atomic.Int64
	failedExports   atomic.Int64
	retries         atomic.Int64

	running atomic.Bool
	done    chan struct{}
	wg      sync.WaitGroup
}

// New constructs a Pipeline per cfg, exporting batches via sink.
func New(cfg Config, sink Exporter) (*Pipeline, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	if sink == nil {
		return nil, terr.New(terr.KindInvalidConfiguration, "export.New", "sink must not be nil")
	}

	return &Pipeline{
		cfg:   cfg,
		queue: ring.New[*spanrt.Span](cfg.QueueCapacity),
		sink:  sink,
	}, nil
}

// EnqueueSpan implements spanrt.Sink, letting a Pipeline receive finished
// spans directly from the trace runtime.
func (p *Pipeline) EnqueueSpan(s *spanrt.Span) {
	p.enqueued.Add(1)

	if p.queue.Push(s) {
		return
	}

	switch p.cfg.DropPolicy {
	case DropOldest:
		if _, ok := p.queue.Pop(); ok {
			if p.queue.Push(s) {
				return
			}
		}

		p.dropped.Add(1)
	default:
		p.dropped.Add(1)
	}
}

// Start launches the background batching/export loop.
func (p *Pipeline) Start() {
	if !p.running.CompareAndSwap(false, true) {
		return
	}

	p.done = make(chan struct{})
	p.wg.Add(1)

	go p.run()
}

func (p *Pipeline) run() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.BatchTimeout)
	defer ticker.Stop()

	batch := make([]*spanrt.Span, 0, p.cfg.BatchSize)

	flush := func() {
		if len(batch) == 0 {
			return
		}

		p.exportBatch(batch)
		batch = make([]*spanrt.Span, 0, p.cfg.BatchSize)
	}

	for {
		select {
		case <-ticker.C:
			for len(batch) < p.cfg.BatchSize {
				s, ok := p.queue.Pop()
				if !ok {
					break
				}

				batch = append(batch, s)
			}

			flush()
		case <-p.done:
			for {
				s, ok := p.queue.Pop()
				if !ok {
					break
				}

				batch = append(batch, s)

				if len(batch) >= p.cfg.BatchSize {
					flush()
				}
			}

			flush()

			return
		}
	}
}

// ForceFlush drains the queue into batches and exports them synchronously,
// bypassing the ticker.
func (p *Pipeline) ForceFlush(ctx context.Context) {
	batch := make([]*spanrt.Span, 0, p.cfg.BatchSize)

	for {
		s, ok := p.queue.Pop()
		if !ok {
			break
		}

		batch = append(batch, s)

		if len(batch) >= p.cfg.BatchSize {
			p.exportBatchCtx(ctx, batch)
			batch = make([]*spanrt.Span, 0, p.cfg.BatchSize)
		}
	}

	if len(batch) > 0 {
		p.exportBatchCtx(ctx, batch)
	}
}

func (p *Pipeline) exportBatch(batch []*spanrt.Span) {
	p.exportBatchCtx(context.Background(), batch)
}

func (p *Pipeline) exportBatchCtx(ctx context.Context, batch []*spanrt.Span) {
	ctx = context.WithValue(ctx, batchIDKey{}, uuid.New())

	attempt := 0

	for {
		err := p.sink.Export(ctx, batch)
		if err == nil {
			p.exportedBatches.Add(1)
			p.exportedSpans.Add(int64(len(batch)))

			return
		}

		var te *terr.Error
		if !errors.As(err, &te) || !te.Kind.Retryable() {
			p.failedExports.Add(1)

			return
		}

		attempt++

		if p.cfg.MaxRetryAttempts > 0 && attempt > p.cfg.MaxRetryAttempts {
			p.failedExports.Add(1)

			return
		}

		p.retries.Add(1)

		wait := BackoffDuration(attempt, p.cfg.InitialBackoff, p.cfg.BackoffMultiplier)
		if wait > 0 {
			time.Sleep(wait)
		}
	}
}

// Stop halts the background loop, flushing any remaining queued spans
// first. Idempotent.
func (p *Pipeline) Stop() {
	if !p.running.CompareAndSwap(true, false) {
		return
	}

	close(p.done)
	p.wg.Wait()
}

// Snapshot returns a point-in-time view of the pipeline's counters.
func (p *Pipeline) Snapshot() Stats {
	return Stats{
		Enqueued:        p.enqueued.Load(),
		Dropped:         p.dropped.Load(),
		ExportedBatches: p.exportedBatches.Load(),
		ExportedSpans:   p.exportedSpans.Load(),
		FailedExports:   p.failedExports.Load(),
		Retries:         p.retries.Load(),
		QueueLen:        p.queue.Len(),
		QueueCapacity:   p.queue.Capacity(),
	}
}
