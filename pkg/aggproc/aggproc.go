// Package aggproc is the aggregation processor (C8): a registry of
// rule-driven fan-outs from raw observations to stream aggregators (C5),
// emitting derived summary metrics back into the metric storage engine
// (C7) on interval boundaries or explicit request.
package aggproc

import (
	"fmt"
	"sync"
	"time"

	"github.com/Sumatoshi-tech/telemetry/internal/terr"
	"github.com/Sumatoshi-tech/telemetry/pkg/metricstore"
	"github.com/Sumatoshi-tech/telemetry/pkg/streamagg"
	"github.com/Sumatoshi-tech/telemetry/pkg/tsstore"
)

// Rule describes one aggregation mapping from a raw observation source name
// to a family of derived metrics under TargetPrefix.
type Rule struct {
	Name             string
	Source           string
	TargetPrefix     string
	Interval         time.Duration
	Percentiles      []float64
	RateFlag         bool
	OutlierFlag      bool
	OutlierThreshold float64
}

func (r Rule) validate() error {
	switch {
	case r.Name == "":
		return terr.New(terr.KindInvalidConfiguration, "aggproc.AddRule", "rule name must not be empty")
	case r.Source == "":
		return terr.New(terr.KindInvalidConfiguration, "aggproc.AddRule", "rule source must not be empty")
	case r.TargetPrefix == "":
		return terr.New(terr.KindInvalidConfiguration, "aggproc.AddRule", "rule target_prefix must not be empty")
	case r.Interval <= 0:
		return terr.New(terr.KindInvalidConfiguration, "aggproc.AddRule", "rule interval must be positive")
	}

	return nil
}

// ruleState pairs a Rule with its live aggregator and last-emit bookkeeping.
type ruleState struct {
	rule       Rule
	aggregator *streamagg.Aggregator
	lastValue  float64
	haveLast   bool
	lastEmit   time.Time
}

// Processor owns the rule registry and the sink derived metrics are emitted
// into.
type Processor struct {
	mu    sync.RWMutex
	rules map[string]*ruleState
	// bySource indexes rule names by source, since multiple rules may share
	// a source (rare, but not forbidden).
	bySource map[string][]string

	sink *metricstore.Engine
}

// New constructs a Processor emitting derived metrics into sink.
func New(sink *metricstore.Engine) *Processor {
	return &Processor{
		rules:    make(map[string]*ruleState),
		bySource: make(map[string][]string),
		sink:     sink,
	}
}

// AddRule registers a rule. Rule names must be unique.
func (p *Processor) AddRule(rule Rule) error {
	if err := rule.validate(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.rules[rule.Name]; exists {
		return terr.New(terr.KindAlreadyExists, "aggproc.AddRule", "rule already registered: "+rule.Name)
	}

	p.rules[rule.Name] = &ruleState{
		rule:       rule,
		aggregator: streamagg.New(streamagg.Config{Percentiles: rule.Percentiles, DetectOutliers: rule.OutlierFlag, OutlierThreshold: rule.OutlierThreshold}),
	}
	p.bySource[rule.Source] = append(p.bySource[rule.Source], rule.Name)

	return nil
}

// RemoveRule deregisters a rule by name.
func (p *Processor) RemoveRule(name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	st, ok := p.rules[name]
	if !ok {
		return terr.New(terr.KindNotFound, "aggproc.RemoveRule", "rule not found: "+name)
	}

	delete(p.rules, name)

	names := p.bySource[st.rule.Source]
	for i, n := range names {
		if n == name {
			p.bySource[st.rule.Source] = append(names[:i], names[i+1:]...)

			break
		}
	}

	return nil
}

// Observe routes a raw observation value to every rule watching source,
// feeding the value into its aggregator and emitting if the rule's interval
// has elapsed.
func (p *Processor) Observe(source string, value float64, now time.Time) {
	p.mu.RLock()
	names := p.bySource[source]
	p.mu.RUnlock()

	for _, name := range names {
		p.mu.RLock()
		st, ok := p.rules[name]
		p.mu.RUnlock()

		if !ok {
			continue
		}

		p.feedAndMaybeEmit(st, value, now)
	}
}

func (p *Processor) feedAndMaybeEmit(st *ruleState, value float64, now time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if st.rule.RateFlag && st.haveLast {
		st.aggregator.Observe(value - st.lastValue)
	} else if !st.rule.RateFlag {
		st.aggregator.Observe(value)
	}

	st.lastValue = value
	st.haveLast = true

	// The interval is measured on the caller's clock, starting at the
	// first observation the rule sees.
	if st.lastEmit.IsZero() {
		st.lastEmit = now
	}

	if now.Sub(st.lastEmit) >= st.rule.Interval {
		p.emitLocked(st)
		st.lastEmit = now
	}
}

// ForceAggregation emits a rule's derived metrics immediately regardless of
// the interval boundary, then resets the aggregator.
func (p *Processor) ForceAggregation(name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	st, ok := p.rules[name]
	if !ok {
		return terr.New(terr.KindNotFound, "aggproc.ForceAggregation", "rule not found: "+name)
	}

	p.emitLocked(st)
	st.lastEmit = time.Now()

	return nil
}

// emitLocked emits a rule's derived metrics and resets its aggregator.
// Caller must hold p.mu.
func (p *Processor) emitLocked(st *ruleState) {
	stats := st.aggregator.GetStatistics()
	if stats.Count == 0 {
		return
	}

	now := time.Now()
	prefix := st.rule.TargetPrefix

	emit := func(suffix string, value float64) {
		_ = p.sink.Ingest(metricstore.Observation{
			Name:      prefix + suffix,
			Kind:      tsstore.KindGauge,
			Value:     metricstore.Value{Float: value},
			Timestamp: now,
		})
	}

	emit(".mean", stats.Mean)
	emit(".min", stats.Min)
	emit(".max", stats.Max)
	emit(".stddev", stats.StdDev)
	emit(".count", float64(stats.Count))

	for p, v := range stats.Percentiles {
		emit(fmt.Sprintf(".p%d", int(p*100)), v)
	}

	st.aggregator.Reset()
}

// Rules returns the names of every registered rule.
func (p *Processor) Rules() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	names := make([]string, 0, len(p.rules))
	for name := range p.rules {
		names = append(names, name)
	}

	return names
}
