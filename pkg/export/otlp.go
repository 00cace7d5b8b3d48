package export

import (
	"context"

	"google.golang.org/protobuf/proto"

	collectortracepb "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	tracepb "go.opentelemetry.io/proto/otlp/trace/v1"

	"github.com/Sumatoshi-tech/telemetry/internal/terr"
	"github.com/Sumatoshi-tech/telemetry/pkg/spanrt"
	"github.com/Sumatoshi-tech/telemetry/pkg/transport"
	"github.com/Sumatoshi-tech/telemetry/pkg/wireformat"
)

// OTLPGRPCExporter ships span batches to an OTLP/gRPC collector's
// TraceService.Export method.
type OTLPGRPCExporter struct {
	transport transport.GRPCTransport
	resource  wireformat.ResourceInfo
}

// NewOTLPGRPCExporter constructs an OTLPGRPCExporter over t, tagging
// every export with resource.
func NewOTLPGRPCExporter(t transport.GRPCTransport, resource wireformat.ResourceInfo) *OTLPGRPCExporter {
	return &OTLPGRPCExporter{transport: t, resource: resource}
}

// Export implements Exporter.
func (e *OTLPGRPCExporter) Export(ctx context.Context, spans []*spanrt.Span) error {
	rs := wireformat.EncodeOTLPSpans(e.resource, spans)

	req := &collectortracepb.ExportTraceServiceRequest{ResourceSpans: []*tracepb.ResourceSpans{rs}}

	body, err := proto.Marshal(req)
	if err != nil {
		return terr.New(terr.KindExportFailed, "export.OTLPGRPCExporter.Export", "failed to marshal request: "+err.Error())
	}

	resp, err := e.transport.Send(ctx, transport.GRPCRequest{
		Service: "opentelemetry.proto.collector.trace.v1.TraceService",
		Method:  "Export",
		Body:    body,
	})
	if err != nil {
		return terr.New(terr.KindNetworkError, "export.OTLPGRPCExporter.Export", err.Error())
	}

	if resp.StatusCode != 0 {
		kind := terr.KindExportFailed
		if wireformat.IsRetryableGRPCCode(resp.StatusCode) {
			kind = terr.KindNetworkError
		}

		return terr.New(kind, "export.OTLPGRPCExporter.Export", resp.StatusMessage).WithContext(resp.StatusMessage)
	}

	return nil
}
