package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
)

// Sink consumes emitted metric samples.
// Params: context and one sample.
// Returns: error if sink cannot process sample.
type Sink interface {
	Consume(ctx context.Context, sample Sample) error
}

// LogSink writes samples into debug logs.
// Params: logger used for output.
// Returns: debug sink instance.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a debug sink.
// Params: logger instance.
// Returns: sample sink implementation.
func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

// Consume logs one sample as compact JSON.
// Params: ctx gates the debug level check; sample to log.
// Returns: marshal error when payload cannot be encoded.
func (s *LogSink) Consume(ctx context.Context, sample Sample) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if !s.logger.Enabled(ctx, slog.LevelDebug) {
		return nil
	}

	payload, err := json.Marshal(sample)
	if err != nil {
		return fmt.Errorf("marshal sample: %w", err)
	}

	s.logger.Debug(
		"metric sample",
		slog.String("metric", sample.Metric),
		slog.String("kind", sample.Kind),
		slog.String("payload", string(payload)),
	)

	return nil
}

// WriterSink writes samples as JSON lines.
type WriterSink struct {
	mu      sync.Mutex
	encoder *json.Encoder
}

// NewWriterSink creates a JSON-lines sink over out.
// Params: out destination writer.
// Returns: writer sink.
func NewWriterSink(out io.Writer) *WriterSink {
	return &WriterSink{encoder: json.NewEncoder(out)}
}

// Consume encodes one sample followed by a newline.
// Params: ctx unused; sample payload.
// Returns: encode or write error.
func (s *WriterSink) Consume(_ context.Context, sample Sample) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.encoder.Encode(sample); err != nil {
		return fmt.Errorf("write sample: %w", err)
	}
	return nil
}

// MultiSink dispatches one sample to multiple sink implementations.
// Params: sink list.
// Returns: composite sink.
type MultiSink struct {
	sinks []Sink
}

// NewMultiSink builds composite sink from sink list.
// Params: sinks target list; nil entries are skipped.
// Returns: multi sink implementation.
func NewMultiSink(sinks ...Sink) *MultiSink {
	out := make([]Sink, 0, len(sinks))
	for _, sink := range sinks {
		if sink == nil {
			continue
		}
		out = append(out, sink)
	}
	return &MultiSink{sinks: out}
}

// Consume forwards sample to each child sink.
// Params: ctx consume context; sample payload.
// Returns: first error from downstream sinks, if any.
func (s *MultiSink) Consume(ctx context.Context, sample Sample) error {
	var firstErr error
	for _, sink := range s.sinks {
		if err := sink.Consume(ctx, sample); err != nil {
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
