package wireformat

import (
	"github.com/Sumatoshi-tech/telemetry/pkg/spanrt"
)

// JaegerTag is a single Jaeger span tag. The corpus carries no Thrift
// codec, so Jaeger spans are modelled as plain structs and left to the
// caller's chosen marshaller (encoding/json for the HTTP collector's
// JSON-over-Thrift-model variant).
type JaegerTag struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// JaegerProcess identifies the service that produced a batch of spans.
type JaegerProcess struct {
	ServiceName string      `json:"serviceName"`
	Tags        []JaegerTag `json:"tags,omitempty"`
}

// JaegerSpan is a Jaeger-model span: trace id as high/low 64-bit halves,
// microsecond timestamps, flat tags.
type JaegerSpan struct {
	TraceIDHigh   uint64      `json:"traceIdHigh"`
	TraceIDLow    uint64      `json:"traceIdLow"`
	SpanID        uint64      `json:"spanId"`
	ParentSpanID  uint64      `json:"parentSpanId"`
	OperationName string      `json:"operationName"`
	StartTime     int64       `json:"startTime"`
	Duration      int64       `json:"duration"`
	Tags          []JaegerTag `json:"tags,omitempty"`
}

// JaegerBatch is a Jaeger collector submission: one process, many spans.
type JaegerBatch struct {
	Process JaegerProcess `json:"process"`
	Spans   []JaegerSpan  `json:"spans"`
}

// EncodeJaegerBatch converts spans into a JaegerBatch for serviceName.
func EncodeJaegerBatch(serviceName string, spans []*spanrt.Span) JaegerBatch {
	out := make([]JaegerSpan, 0, len(spans))

	for _, s := range spans {
		out = append(out, encodeJaegerSpan(s))
	}

	return JaegerBatch{Process: JaegerProcess{ServiceName: serviceName}, Spans: out}
}

func encodeJaegerSpan(s *spanrt.Span) JaegerSpan {
	high, low := traceIDHighLow(s.TraceID())

	var parentID uint64
	if parent := s.ParentSpanID(); parent.IsValid() {
		parentID = spanIDToUint64(parent)
	}

	tags := make([]JaegerTag, 0, len(s.Tags()))
	for k, v := range s.Tags() {
		tags = append(tags, JaegerTag{Key: k, Value: v})
	}

	return JaegerSpan{
		TraceIDHigh:   high,
		TraceIDLow:    low,
		SpanID:        spanIDToUint64(s.SpanID()),
		ParentSpanID:  parentID,
		OperationName: s.Operation(),
		StartTime:     s.Start().UnixMicro(),
		Duration:      s.Duration().Microseconds(),
		Tags:          tags,
	}
}
