package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"cephagent/internal/config"
	"cephagent/internal/logging"
	"cephagent/internal/pipeline"
)

// Check loads and validates configuration without starting collectors.
// Params: path config file or directory; out receives a one-line summary.
// Returns: load/validation error or nil.
func Check(path string, out io.Writer) error {
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	_, err = fmt.Fprintf(
		out,
		"config ok: host=%s socket_path=%s interval=%s byte_unit=%s host_metrics=%t prometheus=%t collectors=%d\n",
		cfg.Global.Host,
		cfg.Ceph.SocketPath,
		cfg.Ceph.Interval.Duration,
		strings.Join(cfg.Ceph.ByteUnit, ","),
		cfg.Host.Enabled,
		cfg.Prometheus.Enabled,
		len(cfg.Collector),
	)
	return err
}

// Once runs a single collection pass and writes samples as JSON lines.
// Params: ctx pass context; path config file or directory; out sample destination.
// Returns: config, logger, or collection error.
func Once(ctx context.Context, path string, out io.Writer) error {
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, closeLogger, err := logging.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer closeLogger()

	if err := pipeline.RunOnce(ctx, cfg, pipeline.NewWriterSink(out), logger); err != nil {
		logger.Error("single pass failed", slog.String("error", err.Error()))
		return err
	}
	return nil
}
