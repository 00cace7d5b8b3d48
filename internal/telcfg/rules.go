package telcfg

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ruleSetProbe is unmarshalled purely to validate a rule-set file's
// syntax at config-load time, before it is handed to the aggregation
// processor's own loader.
type ruleSetProbe struct {
	Rules []map[string]any `yaml:"rules"`
}

// LoadAggregationRules reads and syntax-checks the YAML rule-set file
// named by Config.Aggregation.RulesFile, returning its raw bytes for
// aggproc.Processor.LoadRules to parse into rules. Returns (nil, nil) if
// no rules file is configured.
func (c *Config) LoadAggregationRules() ([]byte, error) {
	if c.Aggregation.RulesFile == "" {
		return nil, nil
	}

	data, err := os.ReadFile(c.Aggregation.RulesFile)
	if err != nil {
		return nil, fmt.Errorf("read rules file %q: %w", c.Aggregation.RulesFile, err)
	}

	var probe ruleSetProbe
	if err := yaml.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("parse rules file %q: %w", c.Aggregation.RulesFile, err)
	}

	return data, nil
}
