// Package obslog wraps an slog.Handler to inject the active span's trace
// and span id into every log record.
package obslog

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/Sumatoshi-tech/telemetry/pkg/spanrt"
)

const (
	attrTraceID = "trace_id"
	attrSpanID  = "span_id"
	attrService = "service"
)

// SpanHandler is an slog.Handler that injects the active spanrt span's
// trace_id and span_id into every log record. Service metadata is
// pre-attached at construction so it stays at the top level even when
// groups are used.
type SpanHandler struct {
	inner slog.Handler
}

// NewSpanHandler wraps inner, pre-attaching service as a top-level attr.
func NewSpanHandler(inner slog.Handler, service string) *SpanHandler {
	return &SpanHandler{inner: inner.WithAttrs([]slog.Attr{slog.String(attrService, service)})}
}

// Enabled delegates to the inner handler.
func (h *SpanHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle adds trace_id/span_id from the context's active span, then
// delegates.
func (h *SpanHandler) Handle(ctx context.Context, record slog.Record) error {
	if span, ok := spanrt.SpanFromContext(ctx); ok {
		traceID := span.TraceID()
		spanID := span.SpanID()
		record.AddAttrs(
			slog.String(attrTraceID, traceID.String()),
			slog.String(attrSpanID, spanID.String()),
		)
	}

	if err := h.inner.Handle(ctx, record); err != nil {
		return fmt.Errorf("obslog: %w", err)
	}

	return nil
}

// WithAttrs returns a new SpanHandler with additional attrs on the inner
// handler.
func (h *SpanHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &SpanHandler{inner: h.inner.WithAttrs(attrs)}
}

// WithGroup returns a new SpanHandler with a group prefix on the inner
// handler.
func (h *SpanHandler) WithGroup(name string) slog.Handler {
	return &SpanHandler{inner: h.inner.WithGroup(name)}
}

// New builds a ready-to-use *slog.Logger for service, writing JSON if
// jsonOutput is true, text otherwise.
func New(service string, level slog.Level, jsonOutput bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}

	var inner slog.Handler
	if jsonOutput {
		inner = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		inner = slog.NewTextHandler(os.Stderr, opts)
	}

	return slog.New(NewSpanHandler(inner, service))
}
