package commands

import (
	"fmt"

	"github.com/Sumatoshi-tech/telemetry/internal/telcfg"
	"github.com/Sumatoshi-tech/telemetry/pkg/monitor"
)

// loadAggregationRules loads cfg's optional YAML rule-set file (if any)
// and registers every rule it describes on mon's aggregation processor.
func loadAggregationRules(cfg *telcfg.Config, mon *monitor.Monitor) error {
	data, err := cfg.LoadAggregationRules()
	if err != nil {
		return fmt.Errorf("load aggregation rules: %w", err)
	}

	if data == nil {
		return nil
	}

	if err := mon.Aggregation().LoadRules(data); err != nil {
		return fmt.Errorf("register aggregation rules: %w", err)
	}

	return nil
}
