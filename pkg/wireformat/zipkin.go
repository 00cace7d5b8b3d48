package wireformat

import (
	"encoding/hex"

	"github.com/Sumatoshi-tech/telemetry/pkg/spanrt"
)

// ZipkinEndpoint identifies a service in a Zipkin span.
type ZipkinEndpoint struct {
	ServiceName string `json:"serviceName"`
}

// ZipkinSpan is a Zipkin v2 API span, POSTed as a JSON array to
// /api/v2/spans.
type ZipkinSpan struct {
	TraceID       string            `json:"traceId"`
	ID            string            `json:"id"`
	ParentID      string            `json:"parentId,omitempty"`
	Name          string            `json:"name"`
	Kind          string            `json:"kind,omitempty"`
	Timestamp     int64             `json:"timestamp"`
	Duration      int64             `json:"duration"`
	LocalEndpoint ZipkinEndpoint    `json:"localEndpoint"`
	Tags          map[string]string `json:"tags,omitempty"`
	Shared        bool              `json:"shared,omitempty"`
}

// EncodeZipkinSpans converts spans into Zipkin v2 spans for serviceName.
func EncodeZipkinSpans(serviceName string, spans []*spanrt.Span) []ZipkinSpan {
	out := make([]ZipkinSpan, 0, len(spans))

	for _, s := range spans {
		out = append(out, encodeZipkinSpan(serviceName, s))
	}

	return out
}

func encodeZipkinSpan(serviceName string, s *spanrt.Span) ZipkinSpan {
	traceID := s.TraceID()
	spanID := s.SpanID()

	zs := ZipkinSpan{
		TraceID:       hex.EncodeToString(traceID[:]),
		ID:            hex.EncodeToString(spanID[:]),
		Name:          s.Operation(),
		Kind:          "INTERNAL",
		Timestamp:     s.Start().UnixMicro(),
		Duration:      s.Duration().Microseconds(),
		LocalEndpoint: ZipkinEndpoint{ServiceName: serviceName},
	}

	if parent := s.ParentSpanID(); parent.IsValid() {
		zs.ParentID = hex.EncodeToString(parent[:])
	}

	if tags := s.Tags(); len(tags) > 0 {
		zs.Tags = tags
	}

	return zs
}
