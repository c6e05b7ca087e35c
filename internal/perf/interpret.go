package perf

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"cephagent/internal/units"
)

const (
	typeSegment     = "type"
	sumSegment      = "sum"
	avgCountSegment = "avgcount"
	avgPrefix       = "avg_"
)

// Interpreter turns a perf dump into metrics using the matching perf schema.
// It keeps no state between calls and may be shared by sources.
type Interpreter struct {
	byteUnits []string
	logger    *slog.Logger
}

// NewInterpreter builds an interpreter that expands byte counters into byteUnits.
// A nil logger discards skip notices.
func NewInterpreter(byteUnits []string, logger *slog.Logger) (*Interpreter, error) {
	if err := units.Validate(byteUnits); err != nil {
		return nil, fmt.Errorf("byte units: %w", err)
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Interpreter{
		byteUnits: append([]string(nil), byteUnits...),
		logger:    logger,
	}, nil
}

// Interpret returns the metrics of one source, named below prefix.
//
// Counters whose type is not usable or whose value cannot be parsed are
// logged and skipped. A malformed schema or a schema path missing from
// stats aborts the whole source: no metrics are returned in that case.
func (in *Interpreter) Interpret(prefix string, stats, schema map[string]any) ([]Metric, error) {
	var out []Metric

	for leaf, err := range Flatten(schema) {
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformedSchema, err)
		}

		if leaf.Path.Last() != typeSegment || len(leaf.Path) < 2 {
			return nil, fmt.Errorf("%w: leaf %s is not a %q marker", ErrMalformedSchema, leaf.Path, typeSegment)
		}
		tag, err := typeTagOf(leaf.Value)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformedSchema, leaf.Path, err)
		}

		path := leaf.Path.Parent()
		var metrics []Metric
		if tag.LongRunAvg {
			metrics, err = in.longRunAverage(prefix, path, tag, stats)
		} else {
			metrics, err = in.plain(prefix, path, tag, stats)
		}
		if err != nil {
			if skippable(err) {
				in.logger.Warn(
					"skipping perf counter",
					slog.String("counter", MetricName(prefix, path...)),
					slog.String("type", tag.String()),
					slog.String("error", err.Error()),
				)
				continue
			}
			return nil, err
		}
		out = append(out, metrics...)
	}

	return out, nil
}

// longRunAverage handles counters stored as {sum, avgcount}.
func (in *Interpreter) longRunAverage(prefix string, path KeyPath, tag TypeTag, stats map[string]any) ([]Metric, error) {
	rawSum, err := Lookup(stats, path, sumSegment)
	if err != nil {
		return nil, err
	}
	rawCount, err := Lookup(stats, path, avgCountSegment)
	if err != nil {
		return nil, err
	}

	var sum float64
	if tag.Time {
		sum, err = timeValue(rawSum)
	} else {
		sum, err = Number(rawSum)
	}
	if err != nil {
		return nil, fmt.Errorf("%s.%s: %w", path, sumSegment, err)
	}
	count, err := Number(rawCount)
	if err != nil {
		return nil, fmt.Errorf("%s.%s: %w", path, avgCountSegment, err)
	}

	// No samples yet reports as zero.
	average := 0.0
	if count != 0 {
		average = sum / count
	}

	name := MetricName(prefix, path.WithLast(avgPrefix+path.Last())...)
	switch {
	case tag.Time:
		return []Metric{{Name: name, Value: average, Precision: TimePrecision, Kind: KindGauge}}, nil
	case tag.U64:
		return in.u64(name, average, KindGauge), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnexpectedType, tag)
	}
}

// plain handles counters stored as a single value.
func (in *Interpreter) plain(prefix string, path KeyPath, tag TypeTag, stats map[string]any) ([]Metric, error) {
	raw, err := Lookup(stats, path)
	if err != nil {
		return nil, err
	}

	name := MetricName(prefix, path...)
	switch {
	case tag.Time:
		value, err := timeValue(raw)
		if err != nil {
			return nil, err
		}
		return []Metric{{Name: name, Value: value, Precision: TimePrecision, Kind: KindGauge}}, nil
	case tag.U64:
		value, err := Number(raw)
		if err != nil {
			return nil, err
		}
		kind := KindGauge
		if tag.Counter {
			kind = KindCounter
		}
		return in.u64(name, value, kind), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnexpectedType, tag)
	}
}

// u64 emits an integer-valued metric, expanding byte counters into the
// configured units.
func (in *Interpreter) u64(name string, value float64, kind Kind) []Metric {
	if !strings.HasSuffix(name, units.ByteSuffix) {
		return []Metric{{Name: name, Value: value, Precision: ValuePrecision, Kind: kind}}
	}

	expanded := units.Expand(name, value, in.byteUnits)
	out := make([]Metric, 0, len(expanded))
	for _, item := range expanded {
		out = append(out, Metric{Name: item.Name, Value: item.Value, Precision: ValuePrecision, Kind: kind})
	}
	return out
}

// Flat returns every numeric leaf of stats as a gauge. It is used when a
// daemon is polled without its schema; non-numeric leaves are skipped.
func (in *Interpreter) Flat(prefix string, stats map[string]any) ([]Metric, error) {
	var out []Metric
	for leaf, err := range Flatten(stats) {
		if err != nil {
			return nil, err
		}
		value, err := Number(leaf.Value)
		if err != nil {
			in.logger.Debug("skipping non-numeric value", slog.String("counter", MetricName(prefix, leaf.Path...)))
			continue
		}
		out = append(out, Metric{
			Name:      MetricName(prefix, leaf.Path...),
			Value:     value,
			Precision: ValuePrecision,
			Kind:      KindGauge,
		})
	}
	return out, nil
}
