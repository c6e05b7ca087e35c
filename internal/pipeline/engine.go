package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"cephagent/internal/ceph"
	"cephagent/internal/config"
	"cephagent/internal/metrics"
	"cephagent/internal/perf"
)

const (
	hostPrefix = "host"
	// staleIntervals is how many missed intervals a series survives in the exposition.
	staleIntervals = 3
)

// Engine owns scheduled collectors and the sinks they publish into.
// Params: scheduled collectors, dispatcher, and optional exposition sink.
// Returns: pipeline runtime engine.
type Engine struct {
	schedules  []schedule
	dispatcher *Dispatcher
	prometheus *PrometheusSink
	collectors *CollectorSink
	stats      *selfMetrics
	logger     *slog.Logger
}

type schedule struct {
	collector metrics.Collector
	every     time.Duration
}

// EngineOptions wires an engine from explicit parts.
// Params: schedules per collector, sink destination, tags, logger.
// Returns: options value for NewEngine.
type EngineOptions struct {
	Collectors []metrics.Collector
	Intervals  []time.Duration
	Sink       Sink
	Tags       SampleTags
	Logger     *slog.Logger
}

// NewEngine builds an engine from explicit collectors and a sink.
// Params: opts collectors, intervals (one per collector), sink, tags, logger.
// Returns: engine or validation error.
func NewEngine(opts EngineOptions) (*Engine, error) {
	if opts.Sink == nil {
		return nil, fmt.Errorf("sink is required")
	}
	if opts.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if len(opts.Collectors) != len(opts.Intervals) {
		return nil, fmt.Errorf("collectors and intervals differ in length")
	}

	engine := &Engine{
		dispatcher: NewDispatcher(opts.Sink, opts.Tags, opts.Logger),
		logger:     opts.Logger,
	}
	for idx, collector := range opts.Collectors {
		if opts.Intervals[idx] <= 0 {
			return nil, fmt.Errorf("collector %s: interval must be > 0", collector.Name())
		}
		engine.schedules = append(engine.schedules, schedule{collector: collector, every: opts.Intervals[idx]})
	}
	return engine, nil
}

// NewFromConfig builds collectors and sinks for the validated config.
// Params: ctx lifecycle context for collector workers; cfg validated config; logger initialized logger.
// Returns: engine or error.
func NewFromConfig(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Engine, error) {
	collectors, intervals, err := buildCollectors(cfg, logger)
	if err != nil {
		return nil, err
	}

	sinks := []Sink{NewLogSink(logger)}

	var (
		promSink *PrometheusSink
		stats    *selfMetrics
	)
	if cfg.Prometheus.Enabled {
		longest := cfg.Ceph.Interval.Duration
		if cfg.Host.Enabled && cfg.Host.Interval.Duration > longest {
			longest = cfg.Host.Interval.Duration
		}
		promSink, err = NewPrometheusSink(staleIntervals * longest)
		if err != nil {
			return nil, fmt.Errorf("init prometheus sink: %w", err)
		}
		stats, err = newSelfMetrics(promSink.Registry())
		if err != nil {
			return nil, fmt.Errorf("register agent metrics: %w", err)
		}
		sinks = append(sinks, promSink)
	}

	var collectorSink *CollectorSink
	if len(cfg.Collector) > 0 {
		collectorSink, err = NewCollectorSink(ctx, cfg.Collector, logger, &GRPCSender{}, stats)
		if err != nil {
			return nil, fmt.Errorf("init collector sink: %w", err)
		}
		sinks = append(sinks, collectorSink)
	}

	engine, err := NewEngine(EngineOptions{
		Collectors: collectors,
		Intervals:  intervals,
		Sink:       NewMultiSink(sinks...),
		Tags: SampleTags{
			DC:      cfg.Global.DC,
			Host:    cfg.Global.Host,
			Project: cfg.Global.Project,
			Role:    cfg.Global.Role,
		},
		Logger: logger,
	})
	if err != nil {
		return nil, err
	}
	engine.prometheus = promSink
	engine.collectors = collectorSink
	engine.stats = stats
	return engine, nil
}

// RunOnce performs a single pass of every configured collector into sink.
// Params: ctx pass context; cfg validated config; sink destination; logger initialized logger.
// Returns: joined collector errors or nil.
func RunOnce(ctx context.Context, cfg *config.Config, sink Sink, logger *slog.Logger) error {
	collectors, _, err := buildCollectors(cfg, logger)
	if err != nil {
		return err
	}

	dispatcher := NewDispatcher(sink, SampleTags{
		DC:      cfg.Global.DC,
		Host:    cfg.Global.Host,
		Project: cfg.Global.Project,
		Role:    cfg.Global.Role,
	}, logger)

	var errs []error
	for _, collector := range collectors {
		if err := collector.Collect(ctx, dispatcher.Bind(ctx)); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", collector.Name(), err))
		}
	}
	if dispatcher.Failed() > 0 {
		errs = append(errs, fmt.Errorf("%d samples rejected by sink", dispatcher.Failed()))
	}
	return errors.Join(errs...)
}

// buildCollectors creates the ceph collector and, when enabled, the host collector.
// Params: cfg validated config; logger root logger.
// Returns: collectors with their intervals, or init error.
func buildCollectors(cfg *config.Config, logger *slog.Logger) ([]metrics.Collector, []time.Duration, error) {
	cephCollector, err := newCephCollector(cfg.Ceph, logger)
	if err != nil {
		return nil, nil, err
	}

	collectors := []metrics.Collector{cephCollector}
	intervals := []time.Duration{cfg.Ceph.Interval.Duration}

	if cfg.Host.Enabled {
		hostCollector, hostErr := metrics.NewHostCollector(hostPrefix, cfg.Ceph.ByteUnit, cfg.Host.Paths, logger)
		if hostErr != nil {
			return nil, nil, fmt.Errorf("init host collector: %w", hostErr)
		}
		collectors = append(collectors, hostCollector)
		intervals = append(intervals, cfg.Host.Interval.Duration)
	}
	return collectors, intervals, nil
}

// newCephCollector wires discovery, querying, and interpretation for admin sockets.
// Params: cfg ceph section; logger root logger.
// Returns: ceph collector or error.
func newCephCollector(cfg config.CephConfig, logger *slog.Logger) (*ceph.Collector, error) {
	cephLogger := logger.With(slog.String("collector", "ceph"))

	interpreter, err := perf.NewInterpreter(cfg.ByteUnit, cephLogger)
	if err != nil {
		return nil, fmt.Errorf("init interpreter: %w", err)
	}

	collector, err := ceph.NewCollector(ceph.CollectorOptions{
		Discovery: ceph.GlobDiscovery{
			Dir:    cfg.SocketPath,
			Prefix: cfg.Prefix(),
			Ext:    cfg.SocketExt,
		},
		Querier: ceph.CommandQuerier{
			Binary:  cfg.Binary,
			Timeout: cfg.Timeout.Duration,
		},
		Prefix: ceph.PrefixDeriver{
			SocketPrefix: cfg.Prefix(),
			Namespace:    cfg.Namespace,
		},
		Interpreter: interpreter,
		UseSchema:   cfg.SchemaEnabled(),
		Logger:      cephLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("init ceph collector: %w", err)
	}
	return collector, nil
}

// MetricsHandler returns the exposition handler, or nil when exposition is disabled.
// Params: none.
// Returns: HTTP handler or nil.
func (e *Engine) MetricsHandler() http.Handler {
	if e.prometheus == nil {
		return nil
	}
	return e.prometheus.Handler()
}

// Run starts all scheduled collectors and waits for context cancellation.
// Params: ctx lifecycle context.
// Returns: nil on graceful stop.
func (e *Engine) Run(ctx context.Context) error {
	if len(e.schedules) == 0 {
		e.logger.Warn("no collectors configured")
		<-ctx.Done()
		return nil
	}

	var wg sync.WaitGroup
	wg.Add(len(e.schedules))

	for _, item := range e.schedules {
		go func(active schedule) {
			defer wg.Done()
			e.runSchedule(ctx, active)
		}(item)
	}

	<-ctx.Done()
	wg.Wait()
	if e.collectors != nil {
		e.collectors.Wait()
	}
	return nil
}

// runSchedule runs one collector immediately and then on every tick.
// Params: ctx lifecycle context; item collector and interval.
// Returns: none.
func (e *Engine) runSchedule(ctx context.Context, item schedule) {
	ticker := time.NewTicker(item.every)
	defer ticker.Stop()

	e.collectOnce(ctx, item.collector)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.collectOnce(ctx, item.collector)
		}
	}
}

// collectOnce runs a single collection pass and logs its failure.
// Params: ctx pass context; collector to run.
// Returns: none.
func (e *Engine) collectOnce(ctx context.Context, collector metrics.Collector) {
	e.stats.collectStarted(collector.Name())
	if err := collector.Collect(ctx, e.dispatcher.Bind(ctx)); err != nil {
		if ctx.Err() != nil {
			return
		}
		e.stats.collectFailed(collector.Name())
		e.logger.Error(
			"collection failed",
			slog.String("collector", collector.Name()),
			slog.String("error", err.Error()),
		)
	}
}
