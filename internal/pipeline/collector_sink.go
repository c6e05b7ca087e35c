package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"cephagent/internal/config"
)

const (
	defaultCollectorInputBuffer = 4096
	maxPendingBatches           = 16
)

// CollectorSink fans out samples to per-collector workers.
// Params: collector worker list.
// Returns: sink implementation with lifecycle goroutines.
type CollectorSink struct {
	workers []*collectorWorker
	logger  *slog.Logger
	sender  CollectorSender
	stats   *selfMetrics

	workersWG sync.WaitGroup
	closeOnce sync.Once
}

type collectorWorker struct {
	name   string
	cfg    config.CollectorConfig
	logger *slog.Logger
	sender CollectorSender
	stats  *selfMetrics

	input chan Sample

	batch      []Sample
	batchStart time.Time
	pending    [][]Sample
}

type senderCloser interface {
	Close() error
}

// NewCollectorSink creates sink workers and starts their loops.
// Params: ctx lifecycle context; collectors config list; logger root logger; sender transport; stats optional self metrics.
// Returns: collector sink or error.
func NewCollectorSink(
	ctx context.Context,
	collectors []config.CollectorConfig,
	logger *slog.Logger,
	sender CollectorSender,
	stats *selfMetrics,
) (*CollectorSink, error) {
	if len(collectors) == 0 {
		return nil, fmt.Errorf("collector list is empty")
	}
	if sender == nil {
		return nil, fmt.Errorf("collector sender is nil")
	}

	out := &CollectorSink{
		workers: make([]*collectorWorker, 0, len(collectors)),
		logger:  logger,
		sender:  sender,
		stats:   stats,
	}

	for idx, cfg := range collectors {
		name := strings.TrimSpace(cfg.Name)
		if name == "" {
			name = fmt.Sprintf("collector-%d", idx)
		}
		if cfg.Timeout.Duration <= 0 {
			cfg.Timeout.Duration = 5 * time.Second
		}
		if cfg.RetryInterval.Duration <= 0 {
			cfg.RetryInterval.Duration = 3 * time.Second
		}
		if cfg.Batch.MaxEvents == 0 {
			cfg.Batch.MaxEvents = 1
		}

		out.workers = append(out.workers, &collectorWorker{
			name:   name,
			cfg:    cfg,
			logger: logger.With(slog.String("collector", name)),
			sender: sender,
			stats:  stats,
			input:  make(chan Sample, defaultCollectorInputBuffer),
			batch:  make([]Sample, 0, cfg.Batch.MaxEvents),
		})
	}

	out.workersWG.Add(len(out.workers))
	for _, worker := range out.workers {
		go func(active *collectorWorker) {
			defer out.workersWG.Done()
			active.run(ctx)
		}(worker)
	}
	go func() {
		out.workersWG.Wait()
		out.closeSender()
	}()

	return out, nil
}

// Consume enqueues sample for all collectors (fan-out).
// Params: ctx consume context; sample payload.
// Returns: context error when consume is canceled while waiting for backpressure release.
func (s *CollectorSink) Consume(ctx context.Context, sample Sample) error {
	if ctx == nil {
		ctx = context.Background()
	}

	for _, worker := range s.workers {
		select {
		case worker.input <- sample:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return nil
}

// Wait blocks until all workers have flushed and exited.
// Params: none.
// Returns: none.
func (s *CollectorSink) Wait() {
	s.workersWG.Wait()
}

// closeSender closes collector sender resources once after worker shutdown.
// Params: none.
// Returns: none.
func (s *CollectorSink) closeSender() {
	if s == nil {
		return
	}
	s.closeOnce.Do(func() {
		closer, ok := s.sender.(senderCloser)
		if !ok {
			return
		}
		if err := closer.Close(); err != nil && s.logger != nil {
			s.logger.Error("close collector sender failed", slog.String("error", err.Error()))
		}
	})
}

// run executes collector worker loop: batching, sending, and retrying.
// Params: ctx worker lifecycle context.
// Returns: none.
func (w *collectorWorker) run(ctx context.Context) {
	flushTicker := time.NewTicker(time.Second)
	retryTicker := time.NewTicker(w.cfg.RetryInterval.Duration)
	defer flushTicker.Stop()
	defer retryTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), w.shutdownDrainTimeout())
			w.drainInput()
			w.flushBatch(shutdownCtx)
			w.retryPending(shutdownCtx)
			cancel()
			return
		case sample := <-w.input:
			w.appendBatch(sample)
			if uint64(len(w.batch)) >= w.cfg.Batch.MaxEvents {
				w.flushBatch(ctx)
			}
		case <-flushTicker.C:
			w.flushByAge(ctx)
		case <-retryTicker.C:
			w.retryPending(ctx)
		}
	}
}

// drainInput moves samples already buffered in the input channel into the batch.
// Params: none.
// Returns: none.
func (w *collectorWorker) drainInput() {
	for {
		select {
		case sample := <-w.input:
			w.appendBatch(sample)
		default:
			return
		}
	}
}

// shutdownDrainTimeout calculates bounded timeout used for final flush after root context cancellation.
// Params: none.
// Returns: timeout duration for graceful collector shutdown.
func (w *collectorWorker) shutdownDrainTimeout() time.Duration {
	base := w.cfg.Timeout.Duration
	if base <= 0 {
		base = 5 * time.Second
	}

	addresses := 0
	for _, address := range w.cfg.Addr {
		if strings.TrimSpace(address) != "" {
			addresses++
		}
	}
	if addresses == 0 {
		addresses = 1
	}

	timeout := time.Duration(addresses)*base + 2*time.Second
	if timeout < 3*time.Second {
		timeout = 3 * time.Second
	}
	if timeout > time.Minute {
		timeout = time.Minute
	}
	return timeout
}

// appendBatch appends one sample into current in-memory batch.
// Params: sample payload.
// Returns: none.
func (w *collectorWorker) appendBatch(sample Sample) {
	if math.IsNaN(sample.Value) || math.IsInf(sample.Value, 0) {
		w.logger.Warn("dropping non-finite sample", slog.String("metric", sample.Metric))
		return
	}
	if len(w.batch) == 0 {
		w.batchStart = time.Now()
	}
	w.batch = append(w.batch, sample)
}

// flushByAge flushes batch when max_age threshold is reached.
// Params: ctx lifecycle context.
// Returns: none.
func (w *collectorWorker) flushByAge(ctx context.Context) {
	if len(w.batch) == 0 {
		return
	}
	if w.cfg.Batch.MaxAge.Duration <= 0 {
		return
	}
	if time.Since(w.batchStart) < w.cfg.Batch.MaxAge.Duration {
		return
	}
	w.flushBatch(ctx)
}

// flushBatch tries to send current batch and keeps it for retry on failure.
// Params: ctx lifecycle context.
// Returns: none.
func (w *collectorWorker) flushBatch(ctx context.Context) {
	if len(w.batch) == 0 {
		return
	}

	batch := append([]Sample(nil), w.batch...)
	w.batch = w.batch[:0]

	if err := w.sendBatchWithFailover(ctx, batch); err != nil {
		if errors.Is(err, ErrEncode) {
			w.dropBatch(batch, err)
			return
		}
		w.keepPending(batch, err)
		return
	}
	w.stats.batchSent(w.name, len(batch))
	w.retryPending(ctx)
}

// dropBatch discards a batch that cannot be encoded.
// Params: batch rejected samples; err encode error.
// Returns: none.
func (w *collectorWorker) dropBatch(batch []Sample, err error) {
	w.stats.batchDropped(w.name)
	w.logger.Error(
		"dropping unencodable batch",
		slog.Int("samples", len(batch)),
		slog.String("error", err.Error()),
	)
}

// keepPending stores one failed batch, evicting the oldest when the retry buffer is full.
// Params: batch failed samples; err last send error.
// Returns: none.
func (w *collectorWorker) keepPending(batch []Sample, err error) {
	if len(w.pending) >= maxPendingBatches {
		dropped := w.pending[0]
		w.pending = w.pending[1:]
		w.stats.batchDropped(w.name)
		w.logger.Error(
			"collector unavailable, dropping oldest batch",
			slog.Int("samples", len(dropped)),
			slog.String("error", err.Error()),
		)
	}
	w.pending = append(w.pending, batch)
	w.logger.Warn(
		"collector unavailable, batch kept for retry",
		slog.Int("samples", len(batch)),
		slog.Int("pending", len(w.pending)),
	)
}

// retryPending resends held batches in order while the collector is reachable.
// Params: ctx lifecycle context.
// Returns: none.
func (w *collectorWorker) retryPending(ctx context.Context) {
	for len(w.pending) > 0 {
		head := w.pending[0]
		err := w.sendBatchWithFailover(ctx, head)
		switch {
		case err == nil:
			w.stats.batchSent(w.name, len(head))
		case errors.Is(err, ErrEncode):
			w.dropBatch(head, err)
		default:
			return
		}
		w.pending = w.pending[1:]
	}
}

// sendBatchWithFailover attempts batch delivery to collector addresses in order.
// Params: ctx lifecycle context; samples batch payload.
// Returns: nil on first successful send, error when all addresses fail.
func (w *collectorWorker) sendBatchWithFailover(ctx context.Context, samples []Sample) error {
	var lastErr error

	for _, address := range w.cfg.Addr {
		addressValue := strings.TrimSpace(address)
		if addressValue == "" {
			continue
		}

		sendCtx, cancel := context.WithTimeout(ctx, w.cfg.Timeout.Duration)
		err := w.sender.SendBatch(sendCtx, addressValue, samples, w.cfg.Timeout.Duration)
		cancel()
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrEncode) {
			return err
		}
		lastErr = err
		w.logger.Warn("send attempt failed", slog.String("address", addressValue), slog.String("error", err.Error()))
	}

	if lastErr == nil {
		return fmt.Errorf("no collector addresses configured")
	}
	return lastErr
}
