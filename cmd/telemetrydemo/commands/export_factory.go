package commands

import (
	"fmt"

	"github.com/dustin/go-humanize"

	"github.com/Sumatoshi-tech/telemetry/internal/telcfg"
	"github.com/Sumatoshi-tech/telemetry/pkg/export"
	"github.com/Sumatoshi-tech/telemetry/pkg/transport"
	"github.com/Sumatoshi-tech/telemetry/pkg/wireformat"
)

// defaultDemoServiceName names the resource attached to OTLP-encoded
// exports when none is otherwise configured.
const defaultDemoServiceName = "telemetrydemo"

// defaultStatsDBlockSize is the datagram arena block size used when
// --statsd-block-size is left at its default.
const defaultStatsDBlockSize = "1.4KB"

// buildExporter constructs the span export.Exporter named by cfg.Target.
// The underlying wire transport is always a stub (this runtime ships
// transport as an interface its host wires to a real network client;
// see pkg/transport) so `run`/`serve` produce deterministic demo output
// without requiring a live collector. statsDBlockSize is a human-readable
// size (e.g. "1.4KB", "512B") sizing the StatsD exporter's datagram arena.
func buildExporter(cfg telcfg.ExportConfig, statsDBlockSize string) (export.Exporter, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	switch cfg.Target {
	case "", "otlp-grpc":
		return export.NewOTLPGRPCExporter(
			transport.NewStubGRPCTransport(),
			wireformat.ResourceInfo{ServiceName: defaultDemoServiceName},
		), nil
	case "jaeger":
		if cfg.CompressionEnabled {
			return export.NewJaegerHTTPExporterWithCompression(transport.NewStubHTTPTransport(), cfg.Endpoint, defaultDemoServiceName), nil
		}

		return export.NewJaegerHTTPExporter(transport.NewStubHTTPTransport(), cfg.Endpoint, defaultDemoServiceName), nil
	case "zipkin":
		if cfg.CompressionEnabled {
			return export.NewZipkinHTTPExporterWithCompression(transport.NewStubHTTPTransport(), cfg.Endpoint, defaultDemoServiceName), nil
		}

		return export.NewZipkinHTTPExporter(transport.NewStubHTTPTransport(), cfg.Endpoint, defaultDemoServiceName), nil
	case "statsd":
		if statsDBlockSize == "" {
			statsDBlockSize = defaultStatsDBlockSize
		}

		blockSize, err := humanize.ParseBytes(statsDBlockSize)
		if err != nil {
			return nil, fmt.Errorf("parse statsd block size %q: %w", statsDBlockSize, err)
		}

		return export.NewStatsDUDPExporterWithBlockSize(transport.NewStubUDPTransport(), defaultDemoServiceName, int(blockSize)), nil
	default:
		return nil, fmt.Errorf("unknown export target %q", cfg.Target)
	}
}
