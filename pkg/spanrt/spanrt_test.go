package spanrt_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/telemetry/internal/terr"
	"github.com/Sumatoshi-tech/telemetry/pkg/spanrt"
)

type fakeSink struct {
	mu    sync.Mutex
	spans []*spanrt.Span
}

func (f *fakeSink) EnqueueSpan(s *spanrt.Span) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.spans = append(f.spans, s)
}

func newTestRuntime(t *testing.T, sink spanrt.Sink) *spanrt.Runtime {
	t.Helper()

	rt, err := spanrt.New(spanrt.Config{MaxSpansPerTrace: 16, MaxTraces: 16, Sink: sink})
	require.NoError(t, err)

	return rt
}

func TestRuntime_SpanParentingScenario(t *testing.T) {
	sink := &fakeSink{}
	rt := newTestRuntime(t, sink)

	ctx, root := rt.StartSpan(context.Background(), "root", "svc")
	_, child := rt.StartChildSpan(ctx, root, "child")

	assert.Equal(t, root.TraceID(), child.TraceID())
	assert.Equal(t, root.SpanID(), child.ParentSpanID())

	require.NoError(t, rt.Finish(child))
	require.NoError(t, rt.Finish(root))

	require.Len(t, sink.spans, 2)
	assert.Same(t, child, sink.spans[0])
	assert.Same(t, root, sink.spans[1])
}

func TestRuntime_DoubleFinishRejected(t *testing.T) {
	rt := newTestRuntime(t, nil)

	_, span := rt.StartSpan(context.Background(), "op", "svc")
	require.NoError(t, rt.Finish(span))

	err := rt.Finish(span)
	require.Error(t, err)

	var te *terr.Error

	require.ErrorAs(t, err, &te)
	assert.Equal(t, terr.KindAlreadyExists, te.Kind)
	assert.EqualValues(t, 1, rt.Snapshot().DoubleFinish)
}

func TestRuntime_StartSpanFromContextAdoptsParent(t *testing.T) {
	rt := newTestRuntime(t, nil)

	ctx, root := rt.StartSpan(context.Background(), "root", "svc")

	ctx2, child := rt.StartSpanFromContext(ctx, "nested")
	assert.Equal(t, root.TraceID(), child.TraceID())
	assert.Equal(t, root.SpanID(), child.ParentSpanID())

	current, ok := spanrt.SpanFromContext(ctx2)
	require.True(t, ok)
	assert.Same(t, child, current)
}

func TestRuntime_FinishDefaultsStatusToOK(t *testing.T) {
	rt := newTestRuntime(t, nil)

	_, span := rt.StartSpan(context.Background(), "op", "svc")
	require.NoError(t, rt.Finish(span))

	assert.Equal(t, spanrt.StatusOK, span.StatusCode())
	assert.True(t, span.IsFinished())
	assert.False(t, span.End().IsZero())
	assert.GreaterOrEqual(t, span.Duration(), time.Duration(0))
}

func TestRuntime_MaxSpansPerTraceEvictsOldest(t *testing.T) {
	rt := newTestRuntime(t, nil)

	ctx, root := rt.StartSpan(context.Background(), "root", "svc")

	var last *spanrt.Span

	for range 20 {
		_, last = rt.StartChildSpan(ctx, root, "child")
	}

	spans := rt.Spans(root.TraceID())
	assert.LessOrEqual(t, len(spans), 16)
	assert.Same(t, last, spans[len(spans)-1])
	assert.Positive(t, rt.Snapshot().SpansDropped)
}

func TestRuntime_MaxTracesEvictsLRU(t *testing.T) {
	rt := newTestRuntime(t, nil)

	var first *spanrt.Span

	for i := range 17 {
		_, span := rt.StartSpan(context.Background(), "root", "svc")
		if i == 0 {
			first = span
		}
	}

	assert.Nil(t, rt.Spans(first.TraceID()))
	assert.EqualValues(t, 1, rt.Snapshot().TracesEvicted)
}

func TestSpanScope_AttachDetachRestoresPrevious(t *testing.T) {
	rt := newTestRuntime(t, nil)

	ctx := context.Background()
	_, span := rt.StartSpan(ctx, "op", "svc")

	workingCtx := ctx
	scope := spanrt.Attach(&workingCtx, span)

	current, ok := spanrt.SpanFromContext(workingCtx)
	require.True(t, ok)
	assert.Same(t, span, current)

	scope.Detach()

	_, ok = spanrt.SpanFromContext(workingCtx)
	assert.False(t, ok)
}

func TestFormatAndParseTraceParent_RoundTrip(t *testing.T) {
	rt := newTestRuntime(t, nil)

	_, span := rt.StartSpan(context.Background(), "op", "svc")

	tc := spanrt.ExtractContext(span)
	header := spanrt.FormatTraceParent(tc)

	parsed, err := spanrt.ParseTraceParent(header)
	require.NoError(t, err)
	assert.Equal(t, span.TraceID(), parsed.TraceID)
	assert.Equal(t, span.SpanID(), parsed.SpanID)
	assert.True(t, parsed.Sampled())
}

func TestParseTraceParent_ToleratesUppercaseHex(t *testing.T) {
	header := "00-4BF92F3577B34DA6A3CE929D0E0E4736-00F067AA0BA902B7-01"

	parsed, err := spanrt.ParseTraceParent(header)
	require.NoError(t, err)
	assert.True(t, parsed.TraceID.IsValid())
	assert.True(t, parsed.SpanID.IsValid())
}

func TestParseTraceParent_RejectsMalformedLength(t *testing.T) {
	_, err := spanrt.ParseTraceParent("00-short-00f067aa0ba902b7-01")
	require.Error(t, err)

	var te *terr.Error

	require.ErrorAs(t, err, &te)
	assert.Equal(t, terr.KindInvalidArgument, te.Kind)
}

func TestParseTraceParent_RejectsAllZeroTraceID(t *testing.T) {
	_, err := spanrt.ParseTraceParent("00-00000000000000000000000000000000-00f067aa0ba902b7-01")
	require.Error(t, err)
}

func TestParseTraceParent_RejectsUnsupportedVersion(t *testing.T) {
	_, err := spanrt.ParseTraceParent("01-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
	require.Error(t, err)

	var te *terr.Error

	require.ErrorAs(t, err, &te)
	assert.Equal(t, terr.KindInvalidArgument, te.Kind)
}
