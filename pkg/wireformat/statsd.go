package wireformat

import (
	"sort"
	"strconv"
	"strings"

	"github.com/Sumatoshi-tech/telemetry/pkg/tsstore"
)

// StatsDType is the single-character StatsD metric type code.
type StatsDType string

// Supported StatsD metric types.
const (
	StatsDCounter   StatsDType = "c"
	StatsDGauge     StatsDType = "g"
	StatsDTiming    StatsDType = "ms"
	StatsDHistogram StatsDType = "h"
	StatsDSet       StatsDType = "s"
)

func kindToStatsDType(k tsstore.Kind) StatsDType {
	switch k {
	case tsstore.KindGauge:
		return StatsDGauge
	case tsstore.KindTimer:
		return StatsDTiming
	case tsstore.KindHistogram, tsstore.KindSummary:
		return StatsDHistogram
	case tsstore.KindSet:
		return StatsDSet
	default:
		return StatsDCounter
	}
}

// StatsDOptions controls optional datagram fields.
type StatsDOptions struct {
	SampleRate float64 // 0 disables the |@rate suffix
	Tags       map[string]string
	DataDogTags bool // only meaningful when Tags is non-empty
}

// EncodeStatsD builds a single StatsD datagram:
// <name>:<value>|<type>[|@<sample_rate>][|#<k>:<v>,...].
func EncodeStatsD(name string, kind tsstore.Kind, value float64, opts StatsDOptions) string {
	var b strings.Builder

	b.WriteString(name)
	b.WriteByte(':')
	b.WriteString(strconv.FormatFloat(value, 'g', -1, 64))
	b.WriteByte('|')
	b.WriteString(string(kindToStatsDType(kind)))

	if opts.SampleRate > 0 && opts.SampleRate < 1 {
		b.WriteString("|@")
		b.WriteString(strconv.FormatFloat(opts.SampleRate, 'g', -1, 64))
	}

	if opts.DataDogTags && len(opts.Tags) > 0 {
		keys := make([]string, 0, len(opts.Tags))
		for k := range opts.Tags {
			keys = append(keys, k)
		}

		sort.Strings(keys)

		b.WriteString("|#")

		for i, k := range keys {
			if i > 0 {
				b.WriteByte(',')
			}

			b.WriteString(k)
			b.WriteByte(':')
			b.WriteString(opts.Tags[k])
		}
	}

	return b.String()
}
