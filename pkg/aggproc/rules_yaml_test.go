package aggproc_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/telemetry/pkg/aggproc"
)

const sampleRuleSet = `
rules:
  - name: request_latency
    source: http.request.duration_ms
    target_prefix: http.request.latency
    interval: 10s
    percentiles: [0.5, 0.95, 0.99]
  - name: request_rate
    source: http.request.count
    target_prefix: http.request.rate
    interval: 1s
    rate: true
`

func TestProcessor_LoadRulesRegistersEveryDocumentedRule(t *testing.T) {
	p := aggproc.New(newTestSink(t))

	require.NoError(t, p.LoadRules([]byte(sampleRuleSet)))

	assert.ElementsMatch(t, []string{"request_latency", "request_rate"}, p.Rules())
}

func TestProcessor_LoadRulesRejectsBadInterval(t *testing.T) {
	p := aggproc.New(newTestSink(t))

	err := p.LoadRules([]byte(`
rules:
  - name: bad
    source: x
    target_prefix: y
    interval: not-a-duration
`))
	assert.Error(t, err)
}

func TestProcessor_LoadRulesRejectsMalformedYAML(t *testing.T) {
	p := aggproc.New(newTestSink(t))

	err := p.LoadRules([]byte("not: [valid: yaml"))
	assert.Error(t, err)
}
