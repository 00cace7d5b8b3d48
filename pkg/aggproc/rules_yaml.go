package aggproc

import (
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Sumatoshi-tech/telemetry/internal/terr"
)

// ruleSetDocument is the on-disk shape of a YAML aggregation rule set.
type ruleSetDocument struct {
	Rules []ruleDocument `yaml:"rules"`
}

type ruleDocument struct {
	Name             string    `yaml:"name"`
	Source           string    `yaml:"source"`
	TargetPrefix     string    `yaml:"target_prefix"`
	Interval         string    `yaml:"interval"`
	Percentiles      []float64 `yaml:"percentiles"`
	Rate             bool      `yaml:"rate"`
	Outliers         bool      `yaml:"outliers"`
	OutlierThreshold float64   `yaml:"outlier_threshold"`
}

// LoadRules parses a YAML rule-set document and registers every rule it
// describes. A document looks like:
//
//	rules:
//	  - name: request_latency
//	    source: http.request.duration_ms
//	    target_prefix: http.request.latency
//	    interval: 10s
//	    percentiles: [0.5, 0.95, 0.99]
func (p *Processor) LoadRules(data []byte) error {
	var doc ruleSetDocument

	if err := yaml.Unmarshal(data, &doc); err != nil {
		return terr.New(terr.KindInvalidConfiguration, "aggproc.LoadRules", err.Error())
	}

	for _, rd := range doc.Rules {
		interval, err := time.ParseDuration(rd.Interval)
		if err != nil {
			return terr.New(terr.KindInvalidConfiguration, "aggproc.LoadRules", "invalid interval for rule "+rd.Name+": "+err.Error())
		}

		rule := Rule{
			Name:             rd.Name,
			Source:           rd.Source,
			TargetPrefix:     rd.TargetPrefix,
			Interval:         interval,
			Percentiles:      rd.Percentiles,
			RateFlag:         rd.Rate,
			OutlierFlag:      rd.Outliers,
			OutlierThreshold: rd.OutlierThreshold,
		}

		if err := p.AddRule(rule); err != nil {
			return err
		}
	}

	return nil
}
