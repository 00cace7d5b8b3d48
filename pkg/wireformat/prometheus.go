package wireformat

import (
	"bytes"
	"regexp"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"google.golang.org/protobuf/proto"

	"github.com/Sumatoshi-tech/telemetry/pkg/tsstore"
)

var (
	metricNameRe = regexp.MustCompile(`[^a-zA-Z0-9_:]`)
	labelNameRe  = regexp.MustCompile(`[^a-zA-Z0-9_]`)
)

// SanitizeMetricName rewrites s so it matches [a-zA-Z_:][a-zA-Z0-9_:]*,
// replacing disallowed characters with underscores and prefixing a leading
// digit.
func SanitizeMetricName(s string) string {
	return sanitize(s, metricNameRe, true)
}

// SanitizeLabelName rewrites s so it matches [a-zA-Z_][a-zA-Z0-9_]*.
func SanitizeLabelName(s string) string {
	return sanitize(s, labelNameRe, false)
}

func sanitize(s string, disallowed *regexp.Regexp, allowColon bool) string {
	if s == "" {
		return "_"
	}

	out := disallowed.ReplaceAllString(s, "_")

	first := out[0]
	validFirst := first == '_' || (first >= 'a' && first <= 'z') || (first >= 'A' && first <= 'Z') || (allowColon && first == ':')

	if !validFirst {
		out = "_" + out
	}

	return out
}

// PrometheusSeries is one metric series to render in text exposition
// format.
type PrometheusSeries struct {
	Name   string
	Kind   tsstore.Kind
	Help   string
	Labels map[string]string
	Value  float64
}

func kindToMetricType(k tsstore.Kind) dto.MetricType {
	switch k {
	case tsstore.KindGauge:
		return dto.MetricType_GAUGE
	case tsstore.KindCounter, tsstore.KindTimer, tsstore.KindHistogram, tsstore.KindSummary, tsstore.KindSet:
		return dto.MetricType_COUNTER
	default:
		return dto.MetricType_UNTYPED
	}
}

// EncodeSeriesPrometheus renders series as Prometheus text exposition
// format (# HELP / # TYPE preamble followed by one sample line per
// series), via the same expfmt encoder client_golang's HTTP handler uses.
func EncodeSeriesPrometheus(series []PrometheusSeries) (string, error) {
	var buf bytes.Buffer

	for _, s := range series {
		name := SanitizeMetricName(s.Name)
		metricType := kindToMetricType(s.Kind)

		mf := &dto.MetricFamily{
			Name: proto.String(name),
			Help: proto.String(s.Help),
			Type: metricType.Enum(),
			Metric: []*dto.Metric{
				{Label: encodeLabels(s.Labels), Untyped: nil},
			},
		}

		m := mf.Metric[0]

		switch metricType {
		case dto.MetricType_GAUGE:
			m.Gauge = &dto.Gauge{Value: proto.Float64(s.Value)}
		case dto.MetricType_COUNTER:
			m.Counter = &dto.Counter{Value: proto.Float64(s.Value)}
		default:
			m.Untyped = &dto.Untyped{Value: proto.Float64(s.Value)}
		}

		if _, err := expfmt.MetricFamilyToText(&buf, mf); err != nil {
			return "", err
		}
	}

	return buf.String(), nil
}

func encodeLabels(labels map[string]string) []*dto.LabelPair {
	if len(labels) == 0 {
		return nil
	}

	out := make([]*dto.LabelPair, 0, len(labels))
	for k, v := range labels {
		out = append(out, &dto.LabelPair{Name: proto.String(SanitizeLabelName(k)), Value: proto.String(v)})
	}

	return out
}
