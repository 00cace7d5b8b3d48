package spanrt

import (
	"context"
	"crypto/rand"
	"math/rand/v2"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/Sumatoshi-tech/telemetry/internal/terr"
)

// Sink receives finished spans for export. pkg/export implements this to
// decouple the trace runtime from any particular transport.
type Sink interface {
	EnqueueSpan(*Span)
}

// Config configures a Runtime.
type Config struct {
	// MaxSpansPerTrace bounds the retained span count for a single trace;
	// oldest spans are dropped once exceeded.
	MaxSpansPerTrace int

	// MaxTraces bounds the number of distinct traces retained in memory;
	// the least recently touched trace is evicted on overflow.
	MaxTraces int

	// Sink receives every finished span. May be nil (spans are simply
	// dropped from export, still retained in per-trace storage).
	Sink Sink
}

func (c Config) validate() error {
	if c.MaxSpansPerTrace <= 0 {
		return terr.New(terr.KindInvalidConfiguration, "spanrt.New", "max_spans_per_trace must be positive")
	}

	if c.MaxTraces <= 0 {
		return terr.New(terr.KindInvalidConfiguration, "spanrt.New", "max_traces must be positive")
	}

	return nil
}

// traceRecord holds every retained span for one trace, plus LRU linkage.
type traceRecord struct {
	id    trace.TraceID
	spans []*Span

	prev, next *traceRecord
}

// Runtime owns span id generation, per-trace storage, and the "current
// span" context plumbing.
type Runtime struct {
	cfg Config

	genMu sync.Mutex
	gen   *rand.ChaCha8

	mu      sync.Mutex
	byTrace map[trace.TraceID]*traceRecord
	lruHead *traceRecord
	lruTail *traceRecord

	tracesEvicted int64
	spansDropped  int64
	doubleFinish  int64
}

// New constructs a Runtime per cfg.
func New(cfg Config) (*Runtime, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	var seed [32]byte
	if _, err := rand.Read(seed[:]); err != nil {
		return nil, terr.New(terr.KindCollectionFailed, "spanrt.New", "failed to seed id generator: "+err.Error())
	}

	return &Runtime{
		cfg:     cfg,
		gen:     rand.NewChaCha8(seed),
		byTrace: make(map[trace.TraceID]*traceRecord),
	}, nil
}

func (rt *Runtime) newTraceID() trace.TraceID {
	var id trace.TraceID

	rt.genMu.Lock()
	for {
		_, _ = rt.gen.Read(id[:])

		if id.IsValid() {
			break
		}
	}
	rt.genMu.Unlock()

	return id
}

func (rt *Runtime) newSpanID() trace.SpanID {
	var id trace.SpanID

	rt.genMu.Lock()
	for {
		_, _ = rt.gen.Read(id[:])

		if id.IsValid() {
			break
		}
	}
	rt.genMu.Unlock()

	return id
}

// StartSpan creates a new root span with a fresh trace id and span id.
func (rt *Runtime) StartSpan(ctx context.Context, operation, service string) (context.Context, *Span) {
	span := &Span{
		traceID:   rt.newTraceID(),
		spanID:    rt.newSpanID(),
		operation: operation,
		service:   service,
		start:     time.Now(),
		st:        stateRecording,
	}

	rt.record(span)

	return ContextWithSpan(ctx, span), span
}

// StartChildSpan creates a span inheriting parent's trace id and baggage,
// with parent_span_id set to parent's span id.
func (rt *Runtime) StartChildSpan(ctx context.Context, parent *Span, operation string) (context.Context, *Span) {
	baggage := parent.Baggage()

	span := &Span{
		traceID:      parent.traceID,
		spanID:       rt.newSpanID(),
		parentSpanID: parent.spanID,
		operation:    operation,
		service:      parent.service,
		start:        time.Now(),
		baggage:      baggage,
		st:           stateRecording,
	}

	rt.record(span)

	return ContextWithSpan(ctx, span), span
}

// StartSpanFromContext adopts the trace id and parent span id from ctx's
// current span, if any; otherwise behaves like StartSpan.
func (rt *Runtime) StartSpanFromContext(ctx context.Context, operation, service string) (context.Context, *Span) {
	if parent, ok := SpanFromContext(ctx); ok {
		return rt.StartChildSpan(ctx, parent, operation)
	}

	return rt.StartSpan(ctx, operation, service)
}

// Finish ends span, computing its duration, defaulting status to ok, and
// enqueuing it to the configured Sink. Double-finish returns already_exists.
func (rt *Runtime) Finish(span *Span) error {
	if err := span.finish(time.Now()); err != nil {
		rt.mu.Lock()
		rt.doubleFinish++
		rt.mu.Unlock()

		return err
	}

	if rt.cfg.Sink != nil {
		rt.cfg.Sink.EnqueueSpan(span)
	}

	return nil
}

// record appends span to its trace's span list, evicting the oldest span
// if the per-trace bound is exceeded and the oldest trace if the
// trace-count bound is exceeded.
func (rt *Runtime) record(span *Span) {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	rec, ok := rt.byTrace[span.traceID]
	if !ok {
		if len(rt.byTrace) >= rt.cfg.MaxTraces {
			rt.evictLRULocked()
		}

		rec = &traceRecord{id: span.traceID}
		rt.byTrace[span.traceID] = rec
	}

	rec.spans = append(rec.spans, span)
	if len(rec.spans) > rt.cfg.MaxSpansPerTrace {
		rec.spans = rec.spans[len(rec.spans)-rt.cfg.MaxSpansPerTrace:]
		rt.spansDropped++
	}

	rt.moveToFrontLocked(rec)
}

func (rt *Runtime) evictLRULocked() {
	victim := rt.lruTail
	if victim == nil {
		return
	}

	rt.unlinkLocked(victim)
	delete(rt.byTrace, victim.id)
	rt.tracesEvicted++
}

func (rt *Runtime) moveToFrontLocked(rec *traceRecord) {
	if rt.lruHead == rec {
		return
	}

	rt.unlinkLocked(rec)

	rec.prev = nil
	rec.next = rt.lruHead

	if rt.lruHead != nil {
		rt.lruHead.prev = rec
	}

	rt.lruHead = rec

	if rt.lruTail == nil {
		rt.lruTail = rec
	}
}

func (rt *Runtime) unlinkLocked(rec *traceRecord) {
	if rec.prev != nil {
		rec.prev.next = rec.next
	}

	if rec.next != nil {
		rec.next.prev = rec.prev
	}

	if rt.lruHead == rec {
		rt.lruHead = rec.next
	}

	if rt.lruTail == rec {
		rt.lruTail = rec.prev
	}

	rec.prev, rec.next = nil, nil
}

// Spans returns the retained spans for traceID, oldest first, or nil if
// the trace is unknown.
func (rt *Runtime) Spans(traceID trace.TraceID) []*Span {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	rec, ok := rt.byTrace[traceID]
	if !ok {
		return nil
	}

	out := make([]*Span, len(rec.spans))
	copy(out, rec.spans)

	return out
}

// Stats is a point-in-time snapshot of runtime-wide counters.
type Stats struct {
	TraceCount    int
	TracesEvicted int64
	SpansDropped  int64
	DoubleFinish  int64
}

// Snapshot returns current runtime statistics.
func (rt *Runtime) Snapshot() Stats {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	return Stats{
		TraceCount:    len(rt.byTrace),
		TracesEvicted: rt.tracesEvicted,
		SpansDropped:  rt.spansDropped,
		DoubleFinish:  rt.doubleFinish,
	}
}

// spanContextKey is the unexported context key type for the current span.
type spanContextKey struct{}

// ContextWithSpan returns a copy of ctx carrying span as the current span.
func ContextWithSpan(ctx context.Context, span *Span) context.Context {
	return context.WithValue(ctx, spanContextKey{}, span)
}

// SpanFromContext returns the current span carried by ctx, if any.
func SpanFromContext(ctx context.Context) (*Span, bool) {
	span, ok := ctx.Value(spanContextKey{}).(*Span)

	return span, ok
}

// SpanScope is an explicit attach/detach guard for call sites that cannot
// thread a context.Context through every call, mirroring a scoped
// acquire-with-guaranteed-release pattern rather than any implicit
// goroutine-local magic. The caller owns the context variable; SpanScope
// only remembers how to restore it.
type SpanScope struct {
	ctx  *context.Context
	prev context.Context
}

// Attach sets *ctx to carry span as current, returning a guard whose Detach
// restores the previous value.
func Attach(ctx *context.Context, span *Span) *SpanScope {
	prev := *ctx
	*ctx = ContextWithSpan(*ctx, span)

	return &SpanScope{ctx: ctx, prev: prev}
}

// Detach restores the context to what it was before Attach.
func (s *SpanScope) Detach() {
	*s.ctx = s.prev
}
