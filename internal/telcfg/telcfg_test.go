package telcfg_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/telemetry/internal/observability"
	"github.com/Sumatoshi-tech/telemetry/internal/telcfg"
)

func TestLoad_AppliesDefaultsWithoutConfigFile(t *testing.T) {
	t.Setenv("TELEMETRY_MONITOR_HISTORY_SIZE", "")

	cfg, err := telcfg.Load("/nonexistent/path/config.yaml")
	require.Error(t, err, "explicit nonexistent file should error, unlike the default search path")
	assert.Nil(t, cfg)
}

func TestLoad_DefaultSearchPathAppliesDefaults(t *testing.T) {
	cfg, err := telcfg.Load("")
	require.NoError(t, err)

	assert.Equal(t, 100, cfg.Monitor.HistorySize)
	assert.Equal(t, time.Second, cfg.Monitor.CollectionInterval)
	assert.Equal(t, 4096, cfg.Metrics.RingCapacity)
	assert.False(t, cfg.Export.Enabled)
}

func TestToMonitorConfig_LeavesExportNilWhenDisabled(t *testing.T) {
	cfg, err := telcfg.Load("")
	require.NoError(t, err)

	mc := cfg.ToMonitorConfig()
	assert.Nil(t, mc.Export)
	assert.Equal(t, cfg.Monitor.HistorySize, mc.HistorySize)
}

func TestToMonitorConfig_WiresExportWhenEnabled(t *testing.T) {
	cfg, err := telcfg.Load("")
	require.NoError(t, err)

	cfg.Export.Enabled = true

	mc := cfg.ToMonitorConfig()
	require.NotNil(t, mc.Export)
	assert.Equal(t, cfg.Export.BatchSize, mc.Export.BatchSize)
}

func TestToObservabilityConfig_LeavesEndpointEmptyWhenDisabled(t *testing.T) {
	cfg, err := telcfg.Load("")
	require.NoError(t, err)

	oc := cfg.ToObservabilityConfig(observability.ModeServe)
	assert.Empty(t, oc.OTLPEndpoint, "no-op providers until self_observability.enabled is set")
	assert.Equal(t, observability.ModeServe, oc.Mode)
}

func TestToObservabilityConfig_WiresOTLPSettingsWhenEnabled(t *testing.T) {
	cfg, err := telcfg.Load("")
	require.NoError(t, err)

	cfg.SelfObserve.Enabled = true
	cfg.SelfObserve.Endpoint = "localhost:4318"
	cfg.SelfObserve.Protocol = "http"
	cfg.SelfObserve.Insecure = true

	oc := cfg.ToObservabilityConfig(observability.ModeServe)
	assert.Equal(t, "localhost:4318", oc.OTLPEndpoint)
	assert.Equal(t, "http", oc.OTLPProtocol)
	assert.True(t, oc.OTLPInsecure)
}
