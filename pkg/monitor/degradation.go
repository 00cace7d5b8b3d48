package monitor

// DegradationLevel summarizes resource pressure across the facade's
// internal buffers (ingestion ring, export queue, export arena), letting
// a host decide whether to shed load before any individual buffer starts
// rejecting writes outright.
type DegradationLevel int

// Degradation thresholds and levels.
const (
	// DegradationNormal means every tracked buffer is comfortably below
	// capacity.
	DegradationNormal DegradationLevel = iota
	// DegradationElevated means at least one buffer has crossed
	// elevatedSaturationThreshold.
	DegradationElevated
	// DegradationCritical means at least one buffer has crossed
	// criticalSaturationThreshold.
	DegradationCritical
)

const (
	elevatedSaturationThreshold = 0.75
	criticalSaturationThreshold = 0.90
)

// String renders the level as the lowercase word a log line or CLI
// status table would show.
func (l DegradationLevel) String() string {
	switch l {
	case DegradationElevated:
		return "elevated"
	case DegradationCritical:
		return "critical"
	default:
		return "normal"
	}
}

// DegradationLevel derives the facade's current resource-pressure level
// from ingress ring saturation, export queue saturation, and (if the
// configured Exporter tracks one) its backing arena's utilization.
func (m *Monitor) DegradationLevel() DegradationLevel {
	return levelFromSaturation(m.saturationSignals())
}

// saturationSignals collects every fraction-in-[0,1] resource signal
// currently available; signals from subsystems that aren't configured
// (no export pipeline, an exporter with no pool to report) are omitted
// rather than treated as zero.
func (m *Monitor) saturationSignals() []float64 {
	signals := make([]float64, 0, 3)

	signals = append(signals, m.metrics.IngressSaturation())

	if m.pipe != nil {
		stats := m.pipe.Snapshot()
		if stats.QueueCapacity > 0 {
			signals = append(signals, float64(stats.QueueLen)/float64(stats.QueueCapacity))
		}
	}

	if provider, ok := m.exporter.(poolStatsProvider); ok {
		signals = append(signals, provider.Utilization())
	}

	return signals
}

// poolStatsProvider mirrors export.PoolStatsProvider without importing
// pkg/export's exporter implementations directly.
type poolStatsProvider interface {
	Utilization() float64
}

func levelFromSaturation(signals []float64) DegradationLevel {
	level := DegradationNormal

	for _, s := range signals {
		switch {
		case s >= criticalSaturationThreshold:
			return DegradationCritical
		case s >= elevatedSaturationThreshold:
			level = DegradationElevated
		}
	}

	return level
}
