package perf

import "strings"

// Output precisions, in decimal places.
const (
	TimePrecision  = 6
	ValuePrecision = 2
)

const nameSeparator = "."

// Kind tells how a metric must be published.
type Kind uint8

const (
	KindGauge Kind = iota
	KindCounter
)

func (k Kind) String() string {
	if k == KindCounter {
		return "counter"
	}
	return "gauge"
}

// Metric is one normalized output value.
type Metric struct {
	Name      string
	Value     float64
	Precision int
	Kind      Kind
}

// MetricName joins prefix and segments with dots, skipping empty parts.
func MetricName(prefix string, segments ...string) string {
	parts := make([]string, 0, len(segments)+1)
	if prefix != "" {
		parts = append(parts, prefix)
	}
	for _, segment := range segments {
		if segment == "" {
			continue
		}
		parts = append(parts, segment)
	}
	return strings.Join(parts, nameSeparator)
}
