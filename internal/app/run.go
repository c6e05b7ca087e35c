package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"strings"

	"cephagent/internal/config"
	"cephagent/internal/logging"
	"cephagent/internal/pipeline"
)

// Runtime defines runtime inputs required to start the agent.
// Params: ConfigPath points to the TOML configuration file or directory;
// Reload delivers SIGHUP-style reload requests.
// Returns: Runtime value used by Run.
type Runtime struct {
	ConfigPath string
	Reload     <-chan struct{}
}

type engineRunner interface {
	Run(context.Context) error
	MetricsHandler() http.Handler
}

type runDeps struct {
	loadConfig    func(string) (*config.Config, error)
	newLogger     func(config.LogConfig) (*slog.Logger, func(), error)
	startExporter func(context.Context, config.PrometheusConfig, http.Handler, *slog.Logger) (func(), error)
	newEngine     func(context.Context, *config.Config, *slog.Logger) (engineRunner, error)
}

// errRunnerExited reports an engine that returned while its context was still live.
var errRunnerExited = errors.New("runner exited without context cancellation")

// generation is one running engine and exporter bound to a config snapshot.
type generation struct {
	cfg          *config.Config
	logger       *slog.Logger
	closeLogger  func()
	cancel       context.CancelFunc
	done         chan error
	stopExporter func()
}

// Run loads configuration, starts the agent, and applies reloads until ctx ends.
// Params: ctx controls lifecycle; rt provides config path and optional reload trigger channel.
// Returns: error on startup failure or unrecoverable reload, nil on graceful stop.
func Run(ctx context.Context, rt Runtime) error {
	return runWithDeps(ctx, rt, defaultRunDeps())
}

// defaultRunDeps provides production runtime dependencies.
// Params: none.
// Returns: dependency set used by Run.
func defaultRunDeps() runDeps {
	return runDeps{
		loadConfig:    config.Load,
		newLogger:     logging.New,
		startExporter: startExporter,
		newEngine: func(ctx context.Context, cfg *config.Config, logger *slog.Logger) (engineRunner, error) {
			return pipeline.NewFromConfig(ctx, cfg, logger)
		},
	}
}

// runWithDeps executes the runtime lifecycle using injectable dependencies.
// Params: ctx controls lifecycle; rt runtime inputs; deps start/reload dependencies.
// Returns: runtime error or nil on graceful stop.
func runWithDeps(ctx context.Context, rt Runtime, deps runDeps) error {
	if strings.TrimSpace(rt.ConfigPath) == "" {
		return fmt.Errorf("config path is required")
	}

	cfg, err := deps.loadConfig(rt.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	current, err := startGeneration(ctx, cfg, deps, nil, nil)
	if err != nil {
		return err
	}

	reloads := rt.Reload
	for {
		select {
		case <-ctx.Done():
			current.halt()
			current.finish(ctx.Err())
			return nil

		case runErr := <-current.done:
			current.done = nil
			current.halt()
			if ctx.Err() != nil {
				current.finish(ctx.Err())
				return nil
			}
			if runErr == nil {
				runErr = errRunnerExited
			}
			current.logger.Error("pipeline stopped unexpectedly", slog.String("error", runErr.Error()))
			current.release()
			return fmt.Errorf("run pipeline: %w", runErr)

		case _, ok := <-reloads:
			if !ok {
				reloads = nil
				continue
			}
			if ctx.Err() != nil {
				continue
			}
			next, reloadErr := reloadGeneration(ctx, rt.ConfigPath, current, deps)
			if next == nil {
				return reloadErr
			}
			current = next
		}
	}
}

// startGeneration builds the engine, starts its exporter, and launches Run.
// Params: ctx root lifecycle context; cfg validated config; deps dependency set;
// logger/closeLogger reuse an existing logger when non-nil.
// Returns: running generation or startup error.
func startGeneration(
	ctx context.Context,
	cfg *config.Config,
	deps runDeps,
	logger *slog.Logger,
	closeLogger func(),
) (*generation, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}
	if ctx.Err() != nil {
		return nil, fmt.Errorf("runtime context canceled: %w", ctx.Err())
	}

	ownsLogger := logger == nil
	if ownsLogger {
		var err error
		logger, closeLogger, err = deps.newLogger(cfg.Log)
		if err != nil {
			return nil, fmt.Errorf("init logger: %w", err)
		}
	}
	abort := func(cancel context.CancelFunc) {
		cancel()
		if ownsLogger && closeLogger != nil {
			closeLogger()
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	engine, err := deps.newEngine(runCtx, cfg, logger)
	if err != nil {
		abort(cancel)
		return nil, fmt.Errorf("build pipeline: %w", err)
	}

	stopExporter, err := deps.startExporter(runCtx, cfg.Prometheus, engine.MetricsHandler(), logger)
	if err != nil {
		abort(cancel)
		return nil, fmt.Errorf("start exporter: %w", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- engine.Run(runCtx)
	}()

	logStartup(logger, cfg)
	return &generation{
		cfg:          cfg,
		logger:       logger,
		closeLogger:  closeLogger,
		cancel:       cancel,
		done:         done,
		stopExporter: stopExporter,
	}, nil
}

// reloadGeneration swaps current for a generation built from the reloaded config.
// An invalid or unchanged config keeps current running. A generation that fails
// to start is replaced by a restart of the previous config.
// Params: ctx root lifecycle context; path config path; current running generation; deps dependency set.
// Returns: generation to keep running (nil when even rollback failed) and optional reload error.
func reloadGeneration(ctx context.Context, path string, current *generation, deps runDeps) (*generation, error) {
	current.logger.Info("config reload requested")

	nextCfg, err := deps.loadConfig(path)
	if err != nil {
		current.logger.Error("config reload validation failed", slog.String("error", err.Error()))
		return current, fmt.Errorf("reload config: %w", err)
	}

	changed := changedSections(current.cfg, nextCfg)
	if len(changed) == 0 {
		current.logger.Info("config unchanged, reload skipped")
		return current, nil
	}

	nextLogger, nextCloseLogger, err := deps.newLogger(nextCfg.Log)
	if err != nil {
		current.logger.Error("config reload logger init failed", slog.String("error", err.Error()))
		return current, fmt.Errorf("init reload logger: %w", err)
	}

	current.halt()
	next, startErr := startGeneration(ctx, nextCfg, deps, nextLogger, nextCloseLogger)
	if startErr == nil {
		current.release()
		next.logger.Info("config reload applied", slog.Any("changed", changed))
		return next, nil
	}
	nextCloseLogger()

	if ctx.Err() != nil {
		current.logger.Info("config reload interrupted by shutdown")
		return current, nil
	}

	current.logger.Error("config reload apply failed, restoring previous runtime", slog.String("error", startErr.Error()))
	restored, rollbackErr := startGeneration(ctx, current.cfg, deps, current.logger, current.closeLogger)
	if rollbackErr != nil {
		current.release()
		return nil, fmt.Errorf("apply reload: %w; rollback failed: %w", startErr, rollbackErr)
	}

	restored.logger.Warn("config reload rejected, previous runtime restored", slog.String("error", startErr.Error()))
	return restored, fmt.Errorf("apply reload: %w", startErr)
}

// changedSections names the top-level config sections that differ.
// Params: prev running config; next reloaded config.
// Returns: section names in file order; empty when configs are equal.
func changedSections(prev, next *config.Config) []string {
	if prev == nil || next == nil {
		return []string{"all"}
	}

	sections := []struct {
		name string
		a, b any
	}{
		{"global", prev.Global, next.Global},
		{"log", prev.Log, next.Log},
		{"ceph", prev.Ceph, next.Ceph},
		{"host", prev.Host, next.Host},
		{"prometheus", prev.Prometheus, next.Prometheus},
		{"collector", prev.Collector, next.Collector},
	}

	var changed []string
	for _, section := range sections {
		if !reflect.DeepEqual(section.a, section.b) {
			changed = append(changed, section.name)
		}
	}
	return changed
}

// halt stops the engine and exporter while keeping the logger open.
// Params: none.
// Returns: none.
func (g *generation) halt() {
	if g == nil {
		return
	}
	if g.cancel != nil {
		g.cancel()
		g.cancel = nil
	}
	if g.done != nil {
		<-g.done
		g.done = nil
	}
	if g.stopExporter != nil {
		g.stopExporter()
		g.stopExporter = nil
	}
}

// finish logs a graceful stop and releases the logger.
// Params: cause context error that ended the run.
// Returns: none.
func (g *generation) finish(cause error) {
	reason := "canceled"
	if cause != nil {
		reason = cause.Error()
	}
	g.logger.Info("agent stopped", slog.String("reason", reason))
	g.release()
}

// release closes the generation's logger sink once.
// Params: none.
// Returns: none.
func (g *generation) release() {
	if g == nil {
		return
	}
	if g.closeLogger != nil {
		g.closeLogger()
		g.closeLogger = nil
	}
}

// logStartup emits initial startup metadata.
// Params: logger is initialized slog logger; cfg is validated runtime config.
// Returns: none.
func logStartup(logger *slog.Logger, cfg *config.Config) {
	logger.Info(
		"agent started",
		slog.String("dc", cfg.Global.DC),
		slog.String("project", cfg.Global.Project),
		slog.String("role", cfg.Global.Role),
		slog.String("host", cfg.Global.Host),
		slog.String("socket_path", cfg.Ceph.SocketPath),
		slog.Duration("interval", cfg.Ceph.Interval.Duration),
		slog.Bool("schema", cfg.Ceph.SchemaEnabled()),
		slog.Bool("host_metrics", cfg.Host.Enabled),
		slog.Bool("prometheus", cfg.Prometheus.Enabled),
		slog.Int("collectors", len(cfg.Collector)),
	)
}
