package logging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"cephagent/internal/config"
)

// New builds the agent logger from console and file sink settings.
// Params: cfg validated log config.
// Returns: logger, close function for file resources, and setup error.
func New(cfg config.LogConfig) (*slog.Logger, func(), error) {
	handlers := make([]slog.Handler, 0, 2)
	closers := make([]io.Closer, 0, 1)

	if cfg.Console.Enabled {
		level, err := parseLevel(cfg.Console.Level)
		if err != nil {
			return nil, nil, fmt.Errorf("console level: %w", err)
		}
		var out io.Writer = os.Stderr
		if cfg.Console.Format != "json" && isTerminal(os.Stderr) {
			out = &colorLineWriter{dst: os.Stderr}
		}
		handlers = append(handlers, newHandler(out, cfg.Console.Format, level))
	}

	if cfg.File.Enabled {
		level, err := parseLevel(cfg.File.Level)
		if err != nil {
			return nil, nil, fmt.Errorf("file level: %w", err)
		}
		if err := os.MkdirAll(filepath.Dir(cfg.File.Path), 0o755); err != nil {
			return nil, nil, fmt.Errorf("create log dir: %w", err)
		}
		file, err := os.OpenFile(cfg.File.Path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file %q: %w", cfg.File.Path, err)
		}
		closers = append(closers, file)
		handlers = append(handlers, newHandler(file, cfg.File.Format, level))
	}

	closeFn := func() {
		for _, closer := range closers {
			_ = closer.Close()
		}
	}

	if len(handlers) == 0 {
		return slog.New(slog.NewTextHandler(io.Discard, nil)), closeFn, nil
	}
	if len(handlers) == 1 {
		return slog.New(handlers[0]), closeFn, nil
	}
	return slog.New(fanoutHandler(handlers)), closeFn, nil
}

// newHandler builds one slog handler for the sink format.
// Params: out destination; format "line" or "json"; level minimum level.
// Returns: slog handler.
func newHandler(out io.Writer, format string, level slog.Level) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(format, "json") {
		return slog.NewJSONHandler(out, opts)
	}
	return slog.NewTextHandler(out, opts)
}

// parseLevel maps config level names to slog levels.
// Params: value level name.
// Returns: slog level or error.
func parseLevel(value string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unsupported level %q", value)
	}
}

// isTerminal reports whether file is attached to a character device.
// Params: file to inspect.
// Returns: true for terminals.
func isTerminal(file *os.File) bool {
	info, err := file.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}

// fanoutHandler sends each record to every child handler.
type fanoutHandler []slog.Handler

// Enabled reports whether any child accepts level.
func (h fanoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, child := range h {
		if child.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

// Handle forwards record to children that accept its level.
func (h fanoutHandler) Handle(ctx context.Context, record slog.Record) error {
	var errs []error
	for _, child := range h {
		if !child.Enabled(ctx, record.Level) {
			continue
		}
		if err := child.Handle(ctx, record.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (h fanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(fanoutHandler, 0, len(h))
	for _, child := range h {
		out = append(out, child.WithAttrs(attrs))
	}
	return out
}

func (h fanoutHandler) WithGroup(name string) slog.Handler {
	out := make(fanoutHandler, 0, len(h))
	for _, child := range h {
		out = append(out, child.WithGroup(name))
	}
	return out
}
