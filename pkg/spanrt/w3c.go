package spanrt

import (
	"strings"

	"go.opentelemetry.io/otel/trace"

	"github.com/Sumatoshi-tech/telemetry/internal/terr"
)

// TraceContext carries the W3C-compatible propagation fields for a span.
type TraceContext struct {
	TraceID    trace.TraceID
	SpanID     trace.SpanID
	TraceFlags byte
	Baggage    map[string]string
}

// Sampled reports whether the sampled bit (bit 0) is set in TraceFlags.
func (tc TraceContext) Sampled() bool {
	return tc.TraceFlags&0x01 != 0
}

// ExtractContext returns span's propagation context, always marked sampled
// (trace_flags "01") per the runtime's trivial on/off sampling model.
func ExtractContext(span *Span) TraceContext {
	return TraceContext{
		TraceID:    span.traceID,
		SpanID:     span.spanID,
		TraceFlags: 0x01,
		Baggage:    span.Baggage(),
	}
}

// traceParentVersion is the only W3C traceparent version this runtime
// emits and accepts.
const traceParentVersion = "00"

// FormatTraceParent renders tc as a W3C traceparent header value:
// 00-<trace_id:32hex>-<span_id:16hex>-<flags:2hex>.
func FormatTraceParent(tc TraceContext) string {
	flags := "00"
	if tc.Sampled() {
		flags = "01"
	}

	return traceParentVersion + "-" + tc.TraceID.String() + "-" + tc.SpanID.String() + "-" + flags
}

// ParseTraceParent parses a W3C traceparent header value. It tolerates
// case (hex digits may be upper or lower case) but rejects malformed
// lengths or an invalid (all-zero) trace/span id.
func ParseTraceParent(header string) (TraceContext, error) {
	parts := strings.Split(header, "-")
	if len(parts) != 4 {
		return TraceContext{}, terr.New(terr.KindInvalidArgument, "spanrt.ParseTraceParent", "expected 4 dash-separated fields")
	}

	version, traceIDHex, spanIDHex, flagsHex := parts[0], parts[1], parts[2], parts[3]

	if len(version) != 2 {
		return TraceContext{}, terr.New(terr.KindInvalidArgument, "spanrt.ParseTraceParent", "version must be 2 hex characters")
	}

	if strings.ToLower(version) != traceParentVersion {
		return TraceContext{}, terr.New(terr.KindInvalidArgument, "spanrt.ParseTraceParent", "unsupported traceparent version").WithContext(version)
	}

	if len(traceIDHex) != 32 {
		return TraceContext{}, terr.New(terr.KindInvalidArgument, "spanrt.ParseTraceParent", "trace_id must be 32 hex characters")
	}

	if len(spanIDHex) != 16 {
		return TraceContext{}, terr.New(terr.KindInvalidArgument, "spanrt.ParseTraceParent", "span_id must be 16 hex characters")
	}

	if len(flagsHex) != 2 {
		return TraceContext{}, terr.New(terr.KindInvalidArgument, "spanrt.ParseTraceParent", "flags must be 2 hex characters")
	}

	traceID, err := trace.TraceIDFromHex(strings.ToLower(traceIDHex))
	if err != nil {
		return TraceContext{}, terr.New(terr.KindInvalidArgument, "spanrt.ParseTraceParent", "invalid trace_id: "+err.Error())
	}

	if !traceID.IsValid() {
		return TraceContext{}, terr.New(terr.KindInvalidArgument, "spanrt.ParseTraceParent", "trace_id must not be all zero")
	}

	spanID, err := trace.SpanIDFromHex(strings.ToLower(spanIDHex))
	if err != nil {
		return TraceContext{}, terr.New(terr.KindInvalidArgument, "spanrt.ParseTraceParent", "invalid span_id: "+err.Error())
	}

	if !spanID.IsValid() {
		return TraceContext{}, terr.New(terr.KindInvalidArgument, "spanrt.ParseTraceParent", "span_id must not be all zero")
	}

	flags, err := parseHexByte(strings.ToLower(flagsHex))
	if err != nil {
		return TraceContext{}, terr.New(terr.KindInvalidArgument, "spanrt.ParseTraceParent", "invalid flags: "+err.Error())
	}

	return TraceContext{TraceID: traceID, SpanID: spanID, TraceFlags: flags}, nil
}

func parseHexByte(s string) (byte, error) {
	var b byte

	for _, c := range s {
		var v byte

		switch {
		case c >= '0' && c <= '9':
			v = byte(c - '0')
		case c >= 'a' && c <= 'f':
			v = byte(c-'a') + 10
		default:
			return 0, terr.New(terr.KindInvalidArgument, "spanrt.parseHexByte", "not a hex digit")
		}

		b = b<<4 | v
	}

	return b, nil
}
