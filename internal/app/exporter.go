package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	pprofhttp "net/http/pprof"
	"sync"
	"time"

	"cephagent/internal/config"
)

const (
	exporterShutdownTimeout = 3 * time.Second
	exporterReadHeaderTO    = 2 * time.Second
)

// startExporter serves the metrics handler and, when enabled, pprof endpoints.
// Params: ctx controls lifecycle; cfg listen/path options; handler exposition handler; logger reports runtime events.
// Returns: stop function (idempotent) and startup error.
func startExporter(ctx context.Context, cfg config.PrometheusConfig, handler http.Handler, logger *slog.Logger) (func(), error) {
	if !cfg.Enabled || handler == nil {
		return func() {}, nil
	}

	listener, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return nil, fmt.Errorf("listen %q: %w", cfg.Listen, err)
	}

	mux := http.NewServeMux()
	mux.Handle(cfg.Path, handler)
	if cfg.Pprof {
		mux.HandleFunc("/debug/pprof/", pprofhttp.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprofhttp.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprofhttp.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprofhttp.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprofhttp.Trace)
	}

	server := &http.Server{
		Addr:              cfg.Listen,
		Handler:           mux,
		ReadHeaderTimeout: exporterReadHeaderTO,
	}

	var once sync.Once
	stop := func() {
		once.Do(func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), exporterShutdownTimeout)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Warn("exporter shutdown error", slog.String("error", err.Error()))
			}
		})
	}

	go func() {
		<-ctx.Done()
		stop()
	}()

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("exporter server failed", slog.String("addr", cfg.Listen), slog.String("error", err.Error()))
		}
	}()

	logger.Info(
		"exporter started",
		slog.String("addr", listener.Addr().String()),
		slog.String("path", cfg.Path),
		slog.Bool("pprof", cfg.Pprof),
	)
	return stop, nil
}
