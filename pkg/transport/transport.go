// Package transport defines the wire-level surfaces the export pipeline
//(C10) consumes: UDP, HTTP, and gRPC, each with a stub implementation
// suitable for tests. Encoding onto these surfaces is pkg/wireformat's
// concern; transport only moves bytes.
package transport

import (
	"context"
	"sync/atomic"
	"time"
)

// UDPStats is a point-in-time snapshot of a UDPTransport's counters.
type UDPStats struct {
	Packets  int64
	Bytes    int64
	Failures int64
}

// UDPTransport sends best-effort datagrams, e.g. to a StatsD collector.
type UDPTransport interface {
	Name() string
	IsAvailable() bool
	Connect(host string, port int) error
	Send(payload []byte) error
	Disconnect() error
	IsConnected() bool
	Statistics() UDPStats
}

// HTTPRequest is a transport-agnostic HTTP request.
type HTTPRequest struct {
	URL     string
	Method  string
	Headers map[string]string
	Body    []byte
	Timeout time.Duration
}

// HTTPResponse is a transport-agnostic HTTP response.
type HTTPResponse struct {
	Status  int
	Headers map[string]string
	Body    []byte
	Elapsed time.Duration
}

// HTTPTransport sends request/response style calls, e.g. to an OTLP/HTTP
// or Jaeger/Zipkin collector.
type HTTPTransport interface {
	Name() string
	IsAvailable() bool
	Send(ctx context.Context, req HTTPRequest) (HTTPResponse, error)
}

// GRPCRequest is a transport-agnostic gRPC call.
type GRPCRequest struct {
	Service  string
	Method   string
	Body     []byte
	Metadata map[string]string
	Timeout  time.Duration
}

// GRPCResponse is a transport-agnostic gRPC call result.
type GRPCResponse struct {
	StatusCode    int
	StatusMessage string
	Body          []byte
	Elapsed       time.Duration
}

// GRPCTransport sends request/response style calls over gRPC, e.g. to an
// OTLP/gRPC collector.
type GRPCTransport interface {
	Name() string
	IsAvailable() bool
	Connect(target string) error
	Send(ctx context.Context, req GRPCRequest) (GRPCResponse, error)
	IsConnected() bool
}

// StubUDPTransport is an in-memory UDPTransport for tests: every Send
// appends to Sent and always succeeds unless Fail is set.
type StubUDPTransport struct {
	Fail bool

	connected atomic.Bool
	packets   atomic.Int64
	bytes     atomic.Int64
	failures  atomic.Int64

	Sent [][]byte
}

// NewStubUDPTransport constructs a StubUDPTransport.
func NewStubUDPTransport() *StubUDPTransport { return &StubUDPTransport{} }

// Name implements UDPTransport.
func (s *StubUDPTransport) Name() string { return "stub-udp" }

// IsAvailable implements UDPTransport.
func (s *StubUDPTransport) IsAvailable() bool { return true }

// Connect implements UDPTransport.
func (s *StubUDPTransport) Connect(host string, port int) error {
	s.connected.Store(true)

	return nil
}

// Send implements UDPTransport.
func (s *StubUDPTransport) Send(payload []byte) error {
	if s.Fail {
		s.failures.Add(1)

		return errTransportFailure
	}

	s.packets.Add(1)
	s.bytes.Add(int64(len(payload)))
	s.Sent = append(s.Sent, payload)

	return nil
}

// Disconnect implements UDPTransport.
func (s *StubUDPTransport) Disconnect() error {
	s.connected.Store(false)

	return nil
}

// IsConnected implements UDPTransport.
func (s *StubUDPTransport) IsConnected() bool { return s.connected.Load() }

// Statistics implements UDPTransport.
func (s *StubUDPTransport) Statistics() UDPStats {
	return UDPStats{Packets: s.packets.Load(), Bytes: s.bytes.Load(), Failures: s.failures.Load()}
}

// StubHTTPTransport is an in-memory HTTPTransport for tests. Responses is
// consumed in FIFO order; once exhausted, DefaultResponse is returned.
type StubHTTPTransport struct {
	Responses       []HTTPResponse
	ResponseErr     []error
	DefaultResponse HTTPResponse

	Requests []HTTPRequest
}

// NewStubHTTPTransport constructs a StubHTTPTransport.
func NewStubHTTPTransport() *StubHTTPTransport {
	return &StubHTTPTransport{DefaultResponse: HTTPResponse{Status: 200}}
}

// Name implements HTTPTransport.
func (s *StubHTTPTransport) Name() string { return "stub-http" }

// IsAvailable implements HTTPTransport.
func (s *StubHTTPTransport) IsAvailable() bool { return true }

// Send implements HTTPTransport.
func (s *StubHTTPTransport) Send(ctx context.Context, req HTTPRequest) (HTTPResponse, error) {
	s.Requests = append(s.Requests, req)

	if len(s.Responses) == 0 {
		return s.DefaultResponse, nil
	}

	resp := s.Responses[0]
	s.Responses = s.Responses[1:]

	var err error
	if len(s.ResponseErr) > 0 {
		err = s.ResponseErr[0]
		s.ResponseErr = s.ResponseErr[1:]
	}

	return resp, err
}

// StubGRPCTransport is an in-memory GRPCTransport for tests. Responses is
// consumed in FIFO order; once exhausted, DefaultResponse is returned.
type StubGRPCTransport struct {
	Responses       []GRPCResponse
	ResponseErr     []error
	DefaultResponse GRPCResponse

	connected atomic.Bool
	Requests  []GRPCRequest
}

// NewStubGRPCTransport constructs a StubGRPCTransport.
func NewStubGRPCTransport() *StubGRPCTransport {
	return &StubGRPCTransport{DefaultResponse: GRPCResponse{StatusCode: 0}}
}

// Name implements GRPCTransport.
func (s *StubGRPCTransport) Name() string { return "stub-grpc" }

// IsAvailable implements GRPCTransport.
func (s *StubGRPCTransport) IsAvailable() bool { return true }

// Connect implements GRPCTransport.
func (s *StubGRPCTransport) Connect(target string) error {
	s.connected.Store(true)

	return nil
}

// IsConnected implements GRPCTransport.
func (s *StubGRPCTransport) IsConnected() bool { return s.connected.Load() }

// Send implements GRPCTransport.
func (s *StubGRPCTransport) Send(ctx context.Context, req GRPCRequest) (GRPCResponse, error) {
	s.Requests = append(s.Requests, req)

	if len(s.Responses) == 0 {
		return s.DefaultResponse, nil
	}

	resp := s.Responses[0]
	s.Responses = s.Responses[1:]

	var err error
	if len(s.ResponseErr) > 0 {
		err = s.ResponseErr[0]
		s.ResponseErr = s.ResponseErr[1:]
	}

	return resp, err
}

var errTransportFailure = &stubError{"stub transport configured to fail"}

type stubError struct{ msg string }

func (e *stubError) Error() string { return e.msg }
