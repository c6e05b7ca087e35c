package ceph

import (
	"context"
	"fmt"
	"log/slog"

	"cephagent/internal/metrics"
	"cephagent/internal/perf"
)

// CollectorOptions configures one ceph collector.
// Params: discovery/querier collaborators, prefix deriver, interpreter, schema mode, logger.
// Returns: options for NewCollector.
type CollectorOptions struct {
	Discovery   Discovery
	Querier     Querier
	Prefix      PrefixDeriver
	Interpreter *perf.Interpreter
	UseSchema   bool
	Logger      *slog.Logger
}

// Collector polls every discovered admin socket and publishes its counters.
// Params: see CollectorOptions.
// Returns: metrics.Collector implementation.
type Collector struct {
	opts CollectorOptions
}

// CycleReport summarizes one collection pass.
type CycleReport struct {
	Sources   int
	Failed    int
	Published int
}

var _ metrics.Collector = (*Collector)(nil)

// NewCollector validates options and builds a collector.
// Params: opts collector options.
// Returns: collector or validation error.
func NewCollector(opts CollectorOptions) (*Collector, error) {
	if opts.Discovery == nil {
		return nil, fmt.Errorf("discovery is required")
	}
	if opts.Querier == nil {
		return nil, fmt.Errorf("querier is required")
	}
	if opts.Interpreter == nil {
		return nil, fmt.Errorf("interpreter is required")
	}
	if opts.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &Collector{opts: opts}, nil
}

// Name returns logical collector name.
// Params: none.
// Returns: collector name string.
func (c *Collector) Name() string {
	return "ceph"
}

// Collect runs one cycle and logs its summary.
// Params: ctx for cancellation; publisher receives metrics of healthy sources.
// Returns: discovery error only; per-source failures are logged.
func (c *Collector) Collect(ctx context.Context, publisher metrics.Publisher) error {
	report, err := c.Cycle(ctx, publisher)
	if err != nil {
		return err
	}
	c.opts.Logger.Debug(
		"ceph cycle finished",
		slog.Int("sources", report.Sources),
		slog.Int("failed", report.Failed),
		slog.Int("published", report.Published),
	)
	return nil
}

// Cycle polls sources sequentially. A failing source is logged and skipped
// without publishing any of its metrics.
// Params: ctx for cancellation; publisher metric sink.
// Returns: cycle report or discovery error.
func (c *Collector) Cycle(ctx context.Context, publisher metrics.Publisher) (CycleReport, error) {
	sockets, err := c.opts.Discovery.Sources(ctx)
	if err != nil {
		return CycleReport{}, fmt.Errorf("discover sockets: %w", err)
	}

	report := CycleReport{Sources: len(sockets)}
	for _, socket := range sockets {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}

		c.opts.Logger.Debug("checking socket", slog.String("socket", socket))
		collected, err := c.collectSource(ctx, socket)
		if err != nil {
			report.Failed++
			c.opts.Logger.Error(
				"collect ceph source failed",
				slog.String("socket", socket),
				slog.String("error", err.Error()),
			)
			continue
		}

		publish(publisher, collected)
		report.Published += len(collected)
	}

	return report, nil
}

// collectSource queries and interprets one admin socket.
// Params: ctx for cancellation; socket admin socket path.
// Returns: all metrics of the source or the first fatal error.
func (c *Collector) collectSource(ctx context.Context, socket string) ([]perf.Metric, error) {
	prefix := c.opts.Prefix.Derive(socket)

	stats, err := c.queryTree(ctx, socket, CommandPerfDump)
	if err != nil {
		return nil, err
	}

	if !c.opts.UseSchema {
		return c.opts.Interpreter.Flat(prefix, stats)
	}

	schema, err := c.queryTree(ctx, socket, CommandPerfSchema)
	if err != nil {
		return nil, err
	}

	collected, err := c.opts.Interpreter.Interpret(prefix, stats, schema)
	if err != nil {
		return nil, fmt.Errorf("interpret %s: %w", prefix, err)
	}
	return collected, nil
}

// queryTree runs one admin socket command and decodes its JSON reply.
// Params: ctx for cancellation; socket path; command admin command.
// Returns: decoded tree or query/decode error.
func (c *Collector) queryTree(ctx context.Context, socket, command string) (map[string]any, error) {
	payload, err := c.opts.Querier.Query(ctx, socket, command)
	if err != nil {
		return nil, err
	}

	tree, err := DecodeTree(payload)
	if err != nil {
		c.opts.Logger.Error("could not parse JSON output", slog.String("socket", socket), slog.String("command", command))
		return nil, fmt.Errorf("%q on %s: %w", command, socket, err)
	}
	return tree, nil
}

// publish hands metrics to the publisher by kind.
// Params: publisher sink; collected metrics.
// Returns: none.
func publish(publisher metrics.Publisher, collected []perf.Metric) {
	for _, metric := range collected {
		switch metric.Kind {
		case perf.KindCounter:
			publisher.PublishCounter(metric.Name, metric.Value, metric.Precision)
		default:
			publisher.PublishGauge(metric.Name, metric.Value, metric.Precision)
		}
	}
}
