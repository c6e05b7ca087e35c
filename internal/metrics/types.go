package metrics

import "context"

// Publisher receives normalized metric values. Implementations must not
// block the caller on transport and report their own failures.
// Params: metric name, value, and output precision in decimal places.
// Returns: none.
type Publisher interface {
	PublishGauge(name string, value float64, precision int)
	PublishCounter(name string, value float64, precision int)
}

// Collector gathers one group of metrics per scheduled cycle.
// Params: context for cancellation and deadlines; publisher for results.
// Returns: error when the whole cycle failed.
type Collector interface {
	Name() string
	Collect(ctx context.Context, publisher Publisher) error
}
