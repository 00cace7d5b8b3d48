package transport_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/telemetry/pkg/transport"
)

func TestStubUDPTransport_SendAccumulatesStatistics(t *testing.T) {
	tr := transport.NewStubUDPTransport()

	require.NoError(t, tr.Connect("127.0.0.1", 8125))
	assert.True(t, tr.IsConnected())

	require.NoError(t, tr.Send([]byte("hello")))
	require.NoError(t, tr.Send([]byte("world!")))

	stats := tr.Statistics()
	assert.EqualValues(t, 2, stats.Packets)
	assert.EqualValues(t, 11, stats.Bytes)
	assert.EqualValues(t, 0, stats.Failures)

	require.NoError(t, tr.Disconnect())
	assert.False(t, tr.IsConnected())
}

func TestStubUDPTransport_FailCountsFailures(t *testing.T) {
	tr := transport.NewStubUDPTransport()
	tr.Fail = true

	err := tr.Send([]byte("x"))
	require.Error(t, err)
	assert.EqualValues(t, 1, tr.Statistics().Failures)
}

func TestStubHTTPTransport_ReturnsQueuedResponsesInOrder(t *testing.T) {
	tr := transport.NewStubHTTPTransport()
	tr.Responses = []transport.HTTPResponse{{Status: 503}, {Status: 200}}

	resp, err := tr.Send(context.Background(), transport.HTTPRequest{URL: "http://x/v1/traces", Method: "POST"})
	require.NoError(t, err)
	assert.Equal(t, 503, resp.Status)

	resp, err = tr.Send(context.Background(), transport.HTTPRequest{URL: "http://x/v1/traces", Method: "POST"})
	require.NoError(t, err)
	assert.Equal(t, 200, resp.Status)

	resp, err = tr.Send(context.Background(), transport.HTTPRequest{URL: "http://x/v1/traces", Method: "POST"})
	require.NoError(t, err)
	assert.Equal(t, 200, resp.Status, "default response once queue exhausted")

	assert.Len(t, tr.Requests, 3)
}

func TestStubGRPCTransport_ConnectAndSend(t *testing.T) {
	tr := transport.NewStubGRPCTransport()
	tr.Responses = []transport.GRPCResponse{{StatusCode: 14, StatusMessage: "unavailable"}, {StatusCode: 0}}

	require.NoError(t, tr.Connect("collector:4317"))
	assert.True(t, tr.IsConnected())

	resp, err := tr.Send(context.Background(), transport.GRPCRequest{Service: "TraceService", Method: "Export"})
	require.NoError(t, err)
	assert.Equal(t, 14, resp.StatusCode)

	resp, err = tr.Send(context.Background(), transport.GRPCRequest{Service: "TraceService", Method: "Export"})
	require.NoError(t, err)
	assert.Equal(t, 0, resp.StatusCode)
}
