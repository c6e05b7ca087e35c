package pipeline

import (
	"context"
	"log/slog"
	"math"
	"sync/atomic"
	"time"

	"cephagent/internal/metrics"
)

const (
	kindGauge   = "gauge"
	kindCounter = "counter"
)

// Dispatcher turns published values into tagged samples and hands them to a sink.
// Params: sink destination; tags global tags; logger for sink failures.
// Returns: dispatcher instance shared by all collectors.
type Dispatcher struct {
	sink   Sink
	tags   SampleTags
	logger *slog.Logger
	now    func() time.Time

	published atomic.Uint64
	failed    atomic.Uint64
}

// NewDispatcher creates a dispatcher.
// Params: sink destination; tags global tags; logger for sink failures.
// Returns: dispatcher instance.
func NewDispatcher(sink Sink, tags SampleTags, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		sink:   sink,
		tags:   tags,
		logger: logger,
		now:    time.Now,
	}
}

// Bind returns a publisher whose samples are consumed under ctx.
// Params: ctx consume context for one collection pass.
// Returns: metrics publisher.
func (d *Dispatcher) Bind(ctx context.Context) metrics.Publisher {
	return boundPublisher{dispatcher: d, ctx: ctx}
}

// Published reports how many samples reached the sink without error.
// Params: none.
// Returns: sample count.
func (d *Dispatcher) Published() uint64 {
	return d.published.Load()
}

// Failed reports how many samples were rejected by the sink.
// Params: none.
// Returns: sample count.
func (d *Dispatcher) Failed() uint64 {
	return d.failed.Load()
}

// dispatch builds one sample and forwards it.
// Params: ctx consume context; kind sample kind; name metric name; value raw value; precision decimals.
// Returns: none.
func (d *Dispatcher) dispatch(ctx context.Context, kind, name string, value float64, precision int) {
	sample := Sample{
		DT:        uint64(d.now().UnixMilli()),
		Metric:    name,
		Kind:      kind,
		Value:     roundTo(value, precision),
		Precision: precision,
		DC:        d.tags.DC,
		Host:      d.tags.Host,
		Project:   d.tags.Project,
		Role:      d.tags.Role,
	}

	if err := d.sink.Consume(ctx, sample); err != nil {
		d.failed.Add(1)
		d.logger.Warn("sink rejected sample", slog.String("metric", name), slog.String("error", err.Error()))
		return
	}
	d.published.Add(1)
}

type boundPublisher struct {
	dispatcher *Dispatcher
	ctx        context.Context
}

// PublishGauge forwards one gauge value.
// Params: name metric name; value raw value; precision decimals.
// Returns: none.
func (p boundPublisher) PublishGauge(name string, value float64, precision int) {
	p.dispatcher.dispatch(p.ctx, kindGauge, name, value, precision)
}

// PublishCounter forwards one counter value.
// Params: name metric name; value raw value; precision decimals.
// Returns: none.
func (p boundPublisher) PublishCounter(name string, value float64, precision int) {
	p.dispatcher.dispatch(p.ctx, kindCounter, name, value, precision)
}

// roundTo rounds value half away from zero to precision decimals.
// Params: value number; precision decimals, negative means no rounding.
// Returns: rounded value.
func roundTo(value float64, precision int) float64 {
	if precision < 0 || math.IsNaN(value) || math.IsInf(value, 0) {
		return value
	}
	scale := math.Pow10(precision)
	rounded := math.Round(value*scale) / scale
	if math.IsInf(rounded, 0) {
		return value
	}
	return rounded
}
