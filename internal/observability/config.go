// Package observability provides OpenTelemetry-based self-instrumentation
// (tracing, metrics, structured logging) for the telemetry runtime's own
// operation, independent of the application data it collects on behalf of
// its host process.
package observability

import "log/slog"

// AppMode identifies the hosting process's execution mode.
type AppMode string

const (
	// ModeCLI is the one-shot CLI command execution mode.
	ModeCLI AppMode = "cli"
	// ModeWorker is a long-running background collection/export mode.
	ModeWorker AppMode = "worker"
	// ModeServe is the HTTP diagnostics server mode.
	ModeServe AppMode = "serve"
)

const (
	// defaultServiceName is the default OTel service name.
	defaultServiceName = "telemetry-runtime"

	// defaultShutdownTimeoutSec is the default shutdown timeout in seconds.
	defaultShutdownTimeoutSec = 5
)

// Config holds all observability configuration.
type Config struct {
	// ServiceName is the OTel resource service name.
	ServiceName string

	// ServiceVersion is the semantic version of the running binary.
	ServiceVersion string

	// Environment is the deployment environment (e.g. "production", "staging", "dev").
	Environment string

	// Mode identifies how the binary was launched.
	Mode AppMode

	// OTLPEndpoint is the OTLP collector address for the protocol chosen by
	// OTLPProtocol (e.g. "localhost:4317" for gRPC, "localhost:4318" for HTTP).
	// Empty disables export; providers become no-op.
	OTLPEndpoint string

	// OTLPHeaders are additional headers sent by the OTLP exporters, as gRPC
	// metadata or HTTP headers depending on OTLPProtocol.
	OTLPHeaders map[string]string

	// OTLPInsecure disables TLS for the OTLP connection.
	OTLPInsecure bool

	// OTLPProtocol selects the OTLP wire transport: "grpc" (default) or
	// "http", matching OTEL_EXPORTER_OTLP_PROTOCOL. Any other value falls
	// back to gRPC.
	OTLPProtocol string

	// DebugTrace forces 100% trace sampling when true.
	DebugTrace bool

	// SampleRatio is the trace sampling ratio (0.0 to 1.0) when DebugTrace is false.
	// Zero uses the OTel SDK default (parent-based with always-on root).
	SampleRatio float64

	// LogLevel controls the minimum slog severity.
	LogLevel slog.Level

	// TraceVerbose enables hot-path spans. When false (default) and an
	// OTLPEndpoint is set, spans from the telemetry.ring and
	// telemetry.tsstore tracers and telemetry.spanrt.finish spans are
	// filtered out.
	TraceVerbose bool

	// LogJSON enables JSON-formatted log output.
	LogJSON bool

	// ShutdownTimeoutSec is the maximum seconds to wait for flush on shutdown.
	ShutdownTimeoutSec int
}

// DefaultConfig returns a Config with sensible defaults for zero-config startup.
func DefaultConfig() Config {
	return Config{
		ServiceName:        defaultServiceName,
		Mode:               ModeCLI,
		LogLevel:           slog.LevelInfo,
		ShutdownTimeoutSec: defaultShutdownTimeoutSec,
	}
}
