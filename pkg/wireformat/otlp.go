// Package wireformat encodes telemetry domain types (spans, aggregated
// metric points) onto the wire formats the export pipeline (C10) speaks:
// OTLP, Jaeger, Zipkin v2, Prometheus text exposition, and StatsD.
package wireformat

import (
	"encoding/binary"

	commonpb "go.opentelemetry.io/proto/otlp/common/v1"
	resourcepb "go.opentelemetry.io/proto/otlp/resource/v1"
	tracepb "go.opentelemetry.io/proto/otlp/trace/v1"

	"github.com/Sumatoshi-tech/telemetry/pkg/spanrt"
)

// ResourceInfo identifies the process emitting telemetry, mirroring the
// OTLP resource attributes service.name and service.version.
type ResourceInfo struct {
	ServiceName    string
	ServiceVersion string
}

func (r ResourceInfo) toOTLP() *resourcepb.Resource {
	attrs := []*commonpb.KeyValue{
		{Key: "service.name", Value: stringValue(r.ServiceName)},
	}

	if r.ServiceVersion != "" {
		attrs = append(attrs, &commonpb.KeyValue{Key: "service.version", Value: stringValue(r.ServiceVersion)})
	}

	return &resourcepb.Resource{Attributes: attrs}
}

func stringValue(s string) *commonpb.AnyValue {
	return &commonpb.AnyValue{Value: &commonpb.AnyValue_StringValue{StringValue: s}}
}

// spanKindInternal is OTLP's SPAN_KIND_INTERNAL (1), the only kind the
// runtime's spans carry.
const spanKindInternal = tracepb.Span_SPAN_KIND_INTERNAL

// EncodeOTLPSpans converts spans into an OTLP ResourceSpans, grouped under
// a single resource and instrumentation scope.
func EncodeOTLPSpans(resource ResourceInfo, spans []*spanrt.Span) *tracepb.ResourceSpans {
	pbSpans := make([]*tracepb.Span, 0, len(spans))

	for _, s := range spans {
		pbSpans = append(pbSpans, encodeSpan(s))
	}

	return &tracepb.ResourceSpans{
		Resource: resource.toOTLP(),
		ScopeSpans: []*tracepb.ScopeSpans{
			{
				Scope: &commonpb.InstrumentationScope{Name: "github.com/Sumatoshi-tech/telemetry"},
				Spans: pbSpans,
			},
		},
	}
}

func encodeSpan(s *spanrt.Span) *tracepb.Span {
	traceID := s.TraceID()
	spanID := s.SpanID()

	pb := &tracepb.Span{
		TraceId:           traceID[:],
		SpanId:            spanID[:],
		Name:              s.Operation(),
		Kind:              spanKindInternal,
		StartTimeUnixNano: uint64(s.Start().UnixNano()),
		EndTimeUnixNano:   uint64(s.End().UnixNano()),
		Status:            encodeStatus(s.StatusCode()),
	}

	if parent := s.ParentSpanID(); parent.IsValid() {
		pb.ParentSpanId = parent[:]
	}

	for k, v := range s.Tags() {
		pb.Attributes = append(pb.Attributes, &commonpb.KeyValue{Key: k, Value: stringValue(v)})
	}

	return pb
}

func encodeStatus(status spanrt.Status) *tracepb.Status {
	switch status {
	case spanrt.StatusOK:
		return &tracepb.Status{Code: tracepb.Status_STATUS_CODE_OK}
	case spanrt.StatusError:
		return &tracepb.Status{Code: tracepb.Status_STATUS_CODE_ERROR}
	default:
		return &tracepb.Status{Code: tracepb.Status_STATUS_CODE_UNSET}
	}
}

// RetryableGRPCCodes are the gRPC status codes the export pipeline retries
// on (CANCELLED, DEADLINE_EXCEEDED, RESOURCE_EXHAUSTED, ABORTED,
// UNAVAILABLE).
var RetryableGRPCCodes = map[int]bool{1: true, 4: true, 8: true, 10: true, 14: true}

// IsRetryableGRPCCode reports whether code is in RetryableGRPCCodes.
func IsRetryableGRPCCode(code int) bool { return RetryableGRPCCodes[code] }

// IsRetryableHTTPStatus reports whether an OTLP/HTTP response status
// should be retried: any 5xx.
func IsRetryableHTTPStatus(status int) bool { return status >= 500 && status < 600 }

// traceIDHighLow splits a 16-byte trace id into Jaeger's high/low 64-bit
// halves (big-endian, as Jaeger's model defines them).
func traceIDHighLow(id [16]byte) (high, low uint64) {
	high = binary.BigEndian.Uint64(id[:8])
	low = binary.BigEndian.Uint64(id[8:])

	return high, low
}

// spanIDToUint64 reinterprets an 8-byte span id as Jaeger's flat uint64
// span identifier.
func spanIDToUint64(id [8]byte) uint64 {
	return binary.BigEndian.Uint64(id[:])
}
