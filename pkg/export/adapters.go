package export

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"strconv"

	"github.com/pierrec/lz4/v4"

	"github.com/Sumatoshi-tech/telemetry/internal/terr"
	"github.com/Sumatoshi-tech/telemetry/pkg/blockpool"
	"github.com/Sumatoshi-tech/telemetry/pkg/spanrt"
	"github.com/Sumatoshi-tech/telemetry/pkg/transport"
	"github.com/Sumatoshi-tech/telemetry/pkg/tsstore"
	"github.com/Sumatoshi-tech/telemetry/pkg/wireformat"
)

// uint64ByteSize is the width of the uncompressed-length prefix written
// ahead of an LZ4-compressed body.
const uint64ByteSize = 8

var byteOrder = binary.LittleEndian

// errIncompressible is returned by compressLZ4 when lz4 declines to
// compress the input (reports zero bytes written).
var errIncompressible = errors.New("export: lz4 compression produced no output")

// JaegerHTTPExporter ships span batches to a Jaeger collector's
// /api/traces endpoint.
type JaegerHTTPExporter struct {
	transport   transport.HTTPTransport
	endpoint    string
	serviceName string
	compress    bool
}

// NewJaegerHTTPExporter constructs a JaegerHTTPExporter posting to
// endpoint+"/api/traces".
func NewJaegerHTTPExporter(t transport.HTTPTransport, endpoint, serviceName string) *JaegerHTTPExporter {
	return &JaegerHTTPExporter{transport: t, endpoint: endpoint, serviceName: serviceName}
}

// NewJaegerHTTPExporterWithCompression is NewJaegerHTTPExporter with
// LZ4 block compression applied to the JSON body before it's sent.
func NewJaegerHTTPExporterWithCompression(t transport.HTTPTransport, endpoint, serviceName string) *JaegerHTTPExporter {
	return &JaegerHTTPExporter{transport: t, endpoint: endpoint, serviceName: serviceName, compress: true}
}

// Export implements Exporter.
func (e *JaegerHTTPExporter) Export(ctx context.Context, spans []*spanrt.Span) error {
	batch := wireformat.EncodeJaegerBatch(e.serviceName, spans)

	body, err := json.Marshal(batch)
	if err != nil {
		return terr.New(terr.KindExportFailed, "export.JaegerHTTPExporter.Export", err.Error())
	}

	if !e.compress {
		return sendHTTP(ctx, e.transport, e.endpoint+"/api/traces", body, "application/json")
	}

	compressed, err := compressLZ4(body)
	if errors.Is(err, errIncompressible) {
		return sendHTTP(ctx, e.transport, e.endpoint+"/api/traces", body, "application/json")
	}

	if err != nil {
		return terr.New(terr.KindExportFailed, "export.JaegerHTTPExporter.Export", err.Error())
	}

	return sendHTTPCompressed(ctx, e.transport, e.endpoint+"/api/traces", compressed, "application/json")
}

// ZipkinHTTPExporter ships span batches to a Zipkin collector's
// /api/v2/spans endpoint.
type ZipkinHTTPExporter struct {
	transport   transport.HTTPTransport
	endpoint    string
	serviceName string
	compress    bool
}

// NewZipkinHTTPExporter constructs a ZipkinHTTPExporter posting to
// endpoint+"/api/v2/spans".
func NewZipkinHTTPExporter(t transport.HTTPTransport, endpoint, serviceName string) *ZipkinHTTPExporter {
	return &ZipkinHTTPExporter{transport: t, endpoint: endpoint, serviceName: serviceName}
}

// NewZipkinHTTPExporterWithCompression is NewZipkinHTTPExporter with
// LZ4 block compression applied to the JSON body before it's sent.
func NewZipkinHTTPExporterWithCompression(t transport.HTTPTransport, endpoint, serviceName string) *ZipkinHTTPExporter {
	return &ZipkinHTTPExporter{transport: t, endpoint: endpoint, serviceName: serviceName, compress: true}
}

// Export implements Exporter.
func (e *ZipkinHTTPExporter) Export(ctx context.Context, spans []*spanrt.Span) error {
	zspans := wireformat.EncodeZipkinSpans(e.serviceName, spans)

	body, err := json.Marshal(zspans)
	if err != nil {
		return terr.New(terr.KindExportFailed, "export.ZipkinHTTPExporter.Export", err.Error())
	}

	if !e.compress {
		return sendHTTP(ctx, e.transport, e.endpoint+"/api/v2/spans", body, "application/json")
	}

	compressed, err := compressLZ4(body)
	if errors.Is(err, errIncompressible) {
		return sendHTTP(ctx, e.transport, e.endpoint+"/api/v2/spans", body, "application/json")
	}

	if err != nil {
		return terr.New(terr.KindExportFailed, "export.ZipkinHTTPExporter.Export", err.Error())
	}

	return sendHTTPCompressed(ctx, e.transport, e.endpoint+"/api/v2/spans", compressed, "application/json")
}

// compressLZ4 block-compresses body, prefixing the result with the
// uncompressed length (uvarint-free, fixed uint64 little-endian) so the
// receiving side knows how large a buffer to allocate before calling
// lz4.UncompressBlock.
func compressLZ4(body []byte) ([]byte, error) {
	bound := lz4.CompressBlockBound(len(body))
	out := make([]byte, uint64ByteSize+bound)

	byteOrder.PutUint64(out[:uint64ByteSize], uint64(len(body)))

	var compressor lz4.Compressor

	n, err := compressor.CompressBlock(body, out[uint64ByteSize:])
	if err != nil {
		return nil, err
	}

	if n == 0 {
		// Incompressible input: lz4 reports 0 written rather than
		// growing the block. Fall back to storing it uncompressed.
		return nil, errIncompressible
	}

	return out[:uint64ByteSize+n], nil
}

func sendHTTP(ctx context.Context, t transport.HTTPTransport, url string, body []byte, contentType string) error {
	return sendHTTPRequest(ctx, t, url, body, map[string]string{"Content-Type": contentType})
}

// sendHTTPCompressed sends an already LZ4-block-compressed body with
// Content-Encoding lz4-block. It does no fallback itself; callers send
// uncompressed via sendHTTP when compressLZ4 reports errIncompressible.
func sendHTTPCompressed(ctx context.Context, t transport.HTTPTransport, url string, compressed []byte, contentType string) error {
	return sendHTTPRequest(ctx, t, url, compressed, map[string]string{
		"Content-Type":     contentType,
		"Content-Encoding": "lz4-block",
	})
}

func sendHTTPRequest(ctx context.Context, t transport.HTTPTransport, url string, body []byte, headers map[string]string) error {
	if id, ok := BatchIDFromContext(ctx); ok {
		headers["X-Batch-Id"] = id.String()
	}

	resp, err := t.Send(ctx, transport.HTTPRequest{
		URL:     url,
		Method:  "POST",
		Headers: headers,
		Body:    body,
	})
	if err != nil {
		return terr.New(terr.KindNetworkError, "export.sendHTTP", err.Error())
	}

	if wireformat.IsRetryableHTTPStatus(resp.Status) {
		return terr.New(terr.KindNetworkError, "export.sendHTTP", "retryable HTTP status").WithContext(strconv.Itoa(resp.Status))
	}

	if resp.Status >= 400 {
		return terr.New(terr.KindExportFailed, "export.sendHTTP", "non-retryable HTTP status")
	}

	return nil
}

const (
	// statsDBlockSize keeps one exported datagram under a conservative
	// UDP MTU budget.
	statsDBlockSize      = 1400
	statsDBlocksPerChunk = 32
)

// StatsDUDPExporter ships one StatsD datagram per Export call to a UDP
// transport, holding one `<prefix>.span.duration_us` timer line per span,
// newline-separated. Lines that do not fit the datagram block are
// dropped.
type StatsDUDPExporter struct {
	transport transport.UDPTransport
	prefix    string
	pool      *blockpool.Pool
}

// NewStatsDUDPExporter constructs a StatsDUDPExporter over t, using the
// default datagram block size.
func NewStatsDUDPExporter(t transport.UDPTransport, prefix string) *StatsDUDPExporter {
	return NewStatsDUDPExporterWithBlockSize(t, prefix, statsDBlockSize)
}

// NewStatsDUDPExporterWithBlockSize is NewStatsDUDPExporter with an
// explicit per-datagram block size, for callers sizing the arena to a
// known network path's MTU.
func NewStatsDUDPExporterWithBlockSize(t transport.UDPTransport, prefix string, blockSizeBytes int) *StatsDUDPExporter {
	return &StatsDUDPExporter{
		transport: t,
		prefix:    prefix,
		pool:      blockpool.New(blockSizeBytes, statsDBlocksPerChunk),
	}
}

// Export implements Exporter.
func (e *StatsDUDPExporter) Export(ctx context.Context, spans []*spanrt.Span) error {
	block, err := e.pool.Get()
	if err != nil {
		return terr.New(terr.KindResourceExhausted, "export.StatsDUDPExporter.Export", err.Error())
	}

	defer func() { _ = e.pool.Put(block) }()

	for _, s := range spans {
		line := wireformat.EncodeStatsD(e.prefix+".span.duration_us", tsstore.KindTimer, float64(s.Duration().Microseconds()), wireformat.StatsDOptions{})

		if _, err := block.Write([]byte(line)); err != nil {
			// Datagram budget exhausted; ship what's already buffered
			// rather than blocking on a bigger allocation.
			break
		}

		_ = block.WriteByte('\n')
	}

	if err := e.transport.Send(block.Bytes()); err != nil {
		return terr.New(terr.KindNetworkError, "export.StatsDUDPExporter.Export", err.Error())
	}

	return nil
}

// Utilization implements PoolStatsProvider, reporting the datagram
// arena's checked-out fraction.
func (e *StatsDUDPExporter) Utilization() float64 {
	return e.pool.Utilization()
}

// PoolStatsProvider is implemented by an Exporter backed by a
// pkg/blockpool arena, letting a caller fold its checked-out fraction
// into a broader resource-pressure signal without depending on
// pkg/blockpool directly.
type PoolStatsProvider interface {
	Utilization() float64
}
