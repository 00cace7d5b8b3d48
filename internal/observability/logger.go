package observability

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/trace"
)

const (
	attrTraceID = "trace_id"
	attrSpanID  = "span_id"
	attrService = "service"
	attrEnv     = "env"
	attrMode    = "mode"
)

// selfLogHandler is an [slog.Handler] that injects the OpenTelemetry trace
// context (trace_id, span_id) of the runtime's own self-instrumentation
// spans into every log record, plus service metadata. Service attributes
// (service, env, mode) are pre-attached at construction so they remain at
// the top level even when groups are used.
type selfLogHandler struct {
	inner slog.Handler
}

// NewSelfLogHandler wraps an [slog.Handler], injecting trace context and
// service metadata. Service attributes are pre-attached to the inner
// handler so they appear at the top level regardless of later WithGroup
// calls.
func NewSelfLogHandler(inner slog.Handler, service, env string, appMode AppMode) slog.Handler {
	attrs := []slog.Attr{
		slog.String(attrService, service),
		slog.String(attrMode, string(appMode)),
	}

	if env != "" {
		attrs = append(attrs, slog.String(attrEnv, env))
	}

	return &selfLogHandler{
		inner: inner.WithAttrs(attrs),
	}
}

// Enabled delegates to the inner handler.
func (h *selfLogHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle adds trace context attributes from the span context, then delegates.
func (h *selfLogHandler) Handle(ctx context.Context, record slog.Record) error {
	sc := trace.SpanContextFromContext(ctx)
	if sc.IsValid() {
		record.AddAttrs(
			slog.String(attrTraceID, sc.TraceID().String()),
			slog.String(attrSpanID, sc.SpanID().String()),
		)
	}

	err := h.inner.Handle(ctx, record)
	if err != nil {
		return fmt.Errorf("self log handler: %w", err)
	}

	return nil
}

// WithAttrs returns a new selfLogHandler with additional attrs on the inner
// handler.
func (h *selfLogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &selfLogHandler{
		inner: h.inner.WithAttrs(attrs),
	}
}

// WithGroup returns a new selfLogHandler with a group prefix on the inner
// handler.
func (h *selfLogHandler) WithGroup(name string) slog.Handler {
	return &selfLogHandler{
		inner: h.inner.WithGroup(name),
	}
}
