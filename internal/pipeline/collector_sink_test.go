package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"sync"
	"testing"
	"time"

	"cephagent/internal/config"
)

type fakeSender struct {
	mu            sync.Mutex
	sendCalls     []string
	sendTimeouts  []time.Duration
	sendDeadlines []bool
	batchSizes    []int
	failMap       map[string]error
}

// SendBatch records call order and returns configured error by address.
// Params: ctx deadline is recorded; address selects simulated result; samples size is recorded.
// Returns: configured error or nil.
func (s *fakeSender) SendBatch(ctx context.Context, address string, samples []Sample, timeout time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sendCalls = append(s.sendCalls, address)
	s.sendTimeouts = append(s.sendTimeouts, timeout)
	s.batchSizes = append(s.batchSizes, len(samples))
	_, hasDeadline := ctx.Deadline()
	s.sendDeadlines = append(s.sendDeadlines, hasDeadline)
	if err, ok := s.failMap[address]; ok {
		return err
	}
	return nil
}

// testLogger returns a logger that discards output.
// Params: none.
// Returns: slog logger.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// TestCollectorWorker_SendWithFailover verifies address failover order.
// Params: testing.T for assertions.
// Returns: none.
func TestCollectorWorker_SendWithFailover(t *testing.T) {
	sender := &fakeSender{
		failMap: map[string]error{
			"127.0.0.1:1": errors.New("down"),
		},
	}

	worker := &collectorWorker{
		name: "c1",
		cfg: config.CollectorConfig{
			Addr:    []string{"127.0.0.1:1", " ", "127.0.0.1:2"},
			Timeout: config.Duration{Duration: time.Second},
		},
		logger: testLogger(),
		sender: sender,
	}

	if err := worker.sendBatchWithFailover(context.Background(), []Sample{{Metric: "ceph.osd_0.osd.op"}}); err != nil {
		t.Fatalf("sendBatchWithFailover: %v", err)
	}
	if len(sender.sendCalls) != 2 {
		t.Fatalf("unexpected send attempts: %d", len(sender.sendCalls))
	}
	if sender.sendCalls[0] != "127.0.0.1:1" || sender.sendCalls[1] != "127.0.0.1:2" {
		t.Fatalf("unexpected failover order: %#v", sender.sendCalls)
	}
}

// TestCollectorWorker_SendWithFailoverUsesConfiguredTimeout verifies timeout/deadline propagation.
// Params: testing.T for assertions.
// Returns: none.
func TestCollectorWorker_SendWithFailoverUsesConfiguredTimeout(t *testing.T) {
	configuredTimeout := 250 * time.Millisecond
	sender := &fakeSender{
		failMap: map[string]error{
			"127.0.0.1:1": errors.New("down"),
			"127.0.0.1:2": errors.New("down"),
		},
	}

	worker := &collectorWorker{
		name: "c1",
		cfg: config.CollectorConfig{
			Addr:    []string{"127.0.0.1:1", "127.0.0.1:2"},
			Timeout: config.Duration{Duration: configuredTimeout},
		},
		logger: testLogger(),
		sender: sender,
	}

	if err := worker.sendBatchWithFailover(context.Background(), nil); err == nil {
		t.Fatalf("expected failover error when all collector addresses fail")
	}

	if len(sender.sendTimeouts) != 2 {
		t.Fatalf("unexpected timeout call count: %d", len(sender.sendTimeouts))
	}
	for idx, got := range sender.sendTimeouts {
		if got != configuredTimeout {
			t.Fatalf("unexpected timeout at send[%d]: %v", idx, got)
		}
		if !sender.sendDeadlines[idx] {
			t.Fatalf("expected deadline on send[%d]", idx)
		}
	}
}

// TestCollectorWorker_FailedBatchIsRetried verifies failed batches are held and resent in order.
// Params: testing.T for assertions.
// Returns: none.
func TestCollectorWorker_FailedBatchIsRetried(t *testing.T) {
	sender := &fakeSender{
		failMap: map[string]error{
			"127.0.0.1:1": errors.New("down"),
		},
	}
	worker := &collectorWorker{
		name: "c1",
		cfg: config.CollectorConfig{
			Addr:    []string{"127.0.0.1:1"},
			Timeout: config.Duration{Duration: time.Second},
		},
		logger: testLogger(),
		sender: sender,
	}

	worker.appendBatch(Sample{Metric: "a"})
	worker.appendBatch(Sample{Metric: "b"})
	worker.flushBatch(context.Background())
	if len(worker.pending) != 1 || len(worker.pending[0]) != 2 {
		t.Fatalf("expected failed batch to be held, got %#v", worker.pending)
	}
	if len(worker.batch) != 0 {
		t.Fatalf("expected current batch to be reset")
	}

	sender.mu.Lock()
	sender.failMap = nil
	sender.mu.Unlock()

	worker.appendBatch(Sample{Metric: "c"})
	worker.flushBatch(context.Background())
	if len(worker.pending) != 0 {
		t.Fatalf("expected pending batches to drain, got %d", len(worker.pending))
	}
	want := []int{2, 1, 2}
	if len(sender.batchSizes) != len(want) {
		t.Fatalf("unexpected sends: %v", sender.batchSizes)
	}
	for idx := range want {
		if sender.batchSizes[idx] != want[idx] {
			t.Fatalf("unexpected batch sizes: %v", sender.batchSizes)
		}
	}
}

// TestCollectorWorker_PendingIsBounded verifies the oldest held batch is evicted.
// Params: testing.T for assertions.
// Returns: none.
func TestCollectorWorker_PendingIsBounded(t *testing.T) {
	worker := &collectorWorker{
		name: "c1",
		cfg: config.CollectorConfig{
			Addr:    []string{"127.0.0.1:1"},
			Timeout: config.Duration{Duration: time.Second},
		},
		logger: testLogger(),
		sender: &fakeSender{failMap: map[string]error{"127.0.0.1:1": errors.New("down")}},
	}

	for idx := 0; idx < maxPendingBatches+3; idx++ {
		worker.appendBatch(Sample{Metric: "m", Value: float64(idx)})
		worker.flushBatch(context.Background())
	}

	if len(worker.pending) != maxPendingBatches {
		t.Fatalf("expected %d pending batches, got %d", maxPendingBatches, len(worker.pending))
	}
	if got := worker.pending[0][0].Value; got != 3 {
		t.Fatalf("expected oldest batches evicted, first pending value=%v", got)
	}
}

// encodingSender runs the real encoder before recording a delivered batch.
type encodingSender struct {
	mu        sync.Mutex
	delivered [][]Sample
}

// SendBatch encodes samples and records them when encoding succeeds.
// Params: samples batch; other params unused.
// Returns: encode error.
func (s *encodingSender) SendBatch(_ context.Context, _ string, samples []Sample, _ time.Duration) error {
	if _, err := EncodeBatch(samples, ""); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delivered = append(s.delivered, append([]Sample(nil), samples...))
	return nil
}

// TestCollectorWorker_NonFiniteSampleIsDropped verifies one bad value does not poison its batch.
// Params: testing.T for assertions.
// Returns: none.
func TestCollectorWorker_NonFiniteSampleIsDropped(t *testing.T) {
	sender := &encodingSender{}
	worker := &collectorWorker{
		name: "c1",
		cfg: config.CollectorConfig{
			Addr:    []string{"127.0.0.1:1"},
			Timeout: config.Duration{Duration: time.Second},
		},
		logger: testLogger(),
		sender: sender,
	}

	worker.appendBatch(Sample{Metric: "good", Value: 1})
	worker.appendBatch(Sample{Metric: "nan", Value: math.NaN()})
	worker.appendBatch(Sample{Metric: "inf", Value: math.Inf(1)})
	worker.flushBatch(context.Background())

	if len(worker.pending) != 0 {
		t.Fatalf("expected nothing pending, got %d", len(worker.pending))
	}
	if len(sender.delivered) != 1 || len(sender.delivered[0]) != 1 || sender.delivered[0][0].Metric != "good" {
		t.Fatalf("unexpected deliveries: %+v", sender.delivered)
	}
}

// TestCollectorWorker_EncodeFailureIsNotRetried verifies unencodable batches leave the retry buffer.
// Params: testing.T for assertions.
// Returns: none.
func TestCollectorWorker_EncodeFailureIsNotRetried(t *testing.T) {
	sender := &encodingSender{}
	worker := &collectorWorker{
		name: "c1",
		cfg: config.CollectorConfig{
			Addr:    []string{"127.0.0.1:1", "127.0.0.1:2"},
			Timeout: config.Duration{Duration: time.Second},
		},
		logger: testLogger(),
		sender: sender,
		pending: [][]Sample{
			{{Metric: "poisoned", Value: math.NaN()}},
			{{Metric: "held", Value: 2}},
		},
	}

	worker.batch = append(worker.batch, Sample{Metric: "bad", Value: math.Inf(-1)})
	worker.flushBatch(context.Background())
	if len(worker.pending) != 2 {
		t.Fatalf("encode failure must not be held for retry, pending=%d", len(worker.pending))
	}

	worker.retryPending(context.Background())
	if len(worker.pending) != 0 {
		t.Fatalf("expected retry buffer to drain past the unencodable batch, pending=%d", len(worker.pending))
	}
	if len(sender.delivered) != 1 || sender.delivered[0][0].Metric != "held" {
		t.Fatalf("unexpected deliveries: %+v", sender.delivered)
	}
}

// TestCollectorSink_ConsumeBackpressure verifies consume blocks when worker channel is full.
// Params: testing.T for assertions.
// Returns: none.
func TestCollectorSink_ConsumeBackpressure(t *testing.T) {
	worker := &collectorWorker{
		name:   "c1",
		logger: testLogger(),
		input:  make(chan Sample, 1),
	}
	worker.input <- Sample{Metric: "prefilled"}

	sink := &CollectorSink{
		workers: []*collectorWorker{worker},
		logger:  testLogger(),
	}

	done := make(chan error, 1)
	go func() {
		done <- sink.Consume(context.Background(), Sample{Metric: "next"})
	}()

	select {
	case err := <-done:
		t.Fatalf("consume must block on full channel, got err=%v", err)
	case <-time.After(50 * time.Millisecond):
	}

	<-worker.input

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("consume after backpressure release: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("consume did not finish after channel release")
	}

	got := <-worker.input
	if got.Metric != "next" {
		t.Fatalf("unexpected enqueued sample: %q", got.Metric)
	}
}

// TestCollectorSink_ConsumeCanceled verifies consume returns context error under backpressure.
// Params: testing.T for assertions.
// Returns: none.
func TestCollectorSink_ConsumeCanceled(t *testing.T) {
	worker := &collectorWorker{
		name:   "c1",
		logger: testLogger(),
		input:  make(chan Sample, 1),
	}
	worker.input <- Sample{Metric: "prefilled"}

	sink := &CollectorSink{
		workers: []*collectorWorker{worker},
		logger:  testLogger(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := sink.Consume(ctx, Sample{Metric: "blocked"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected context deadline exceeded, got %v", err)
	}
}

type cancelAwareSender struct {
	mu         sync.Mutex
	successful int
}

// SendBatch succeeds only with non-canceled contexts.
// Params: ctx/address/samples/timeout.
// Returns: context error when canceled.
func (s *cancelAwareSender) SendBatch(ctx context.Context, _ string, _ []Sample, _ time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	s.successful++
	s.mu.Unlock()
	return nil
}

// Successful returns count of successful SendBatch calls.
// Params: none.
// Returns: successful call count.
func (s *cancelAwareSender) Successful() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.successful
}

// TestCollectorWorker_RunFlushesBatchOnShutdown verifies final flush uses graceful context after cancellation.
// Params: testing.T for assertions.
// Returns: none.
func TestCollectorWorker_RunFlushesBatchOnShutdown(t *testing.T) {
	sender := &cancelAwareSender{}

	worker := &collectorWorker{
		name: "c1",
		cfg: config.CollectorConfig{
			Addr:          []string{"127.0.0.1:6000"},
			Timeout:       config.Duration{Duration: 50 * time.Millisecond},
			RetryInterval: config.Duration{Duration: time.Hour},
			Batch: config.CollectorBatchConfig{
				MaxEvents: 100,
				MaxAge:    config.Duration{Duration: time.Minute},
			},
		},
		logger: testLogger(),
		sender: sender,
		input:  make(chan Sample, 4),
		batch:  []Sample{{Metric: "ceph.osd_0.osd.op"}},
	}
	worker.input <- Sample{Metric: "ceph.osd_0.osd.op_w"}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		worker.run(ctx)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("worker did not stop after cancel")
	}

	if sender.Successful() == 0 {
		t.Fatalf("expected final shutdown flush to send at least one batch")
	}
}

type closeAwareSender struct {
	mu       sync.Mutex
	closeCnt int
}

// SendBatch succeeds in tests.
// Params: ctx/address/samples/timeout ignored.
// Returns: nil.
func (s *closeAwareSender) SendBatch(_ context.Context, _ string, _ []Sample, _ time.Duration) error {
	return nil
}

// Close tracks sender close invocations.
// Params: none.
// Returns: nil.
func (s *closeAwareSender) Close() error {
	s.mu.Lock()
	s.closeCnt++
	s.mu.Unlock()
	return nil
}

// CloseCount returns total Close invocations.
// Params: none.
// Returns: close call count.
func (s *closeAwareSender) CloseCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeCnt
}

// TestCollectorSink_ClosesSenderOnceAfterWorkersStop verifies sender lifecycle close on sink shutdown.
// Params: testing.T for assertions.
// Returns: none.
func TestCollectorSink_ClosesSenderOnceAfterWorkersStop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sender := &closeAwareSender{}
	collectors := []config.CollectorConfig{
		{Name: "c1", Addr: []string{"127.0.0.1:6000"}},
		{Name: "c2", Addr: []string{"127.0.0.1:6001"}},
	}

	sink, err := NewCollectorSink(ctx, collectors, testLogger(), sender, nil)
	if err != nil {
		t.Fatalf("NewCollectorSink: %v", err)
	}

	cancel()
	sink.Wait()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if sender.CloseCount() == 1 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}

	t.Fatalf("expected sender Close() to be called once, got %d", sender.CloseCount())
}

// TestNewCollectorSink_Validation verifies required inputs.
// Params: testing.T for assertions.
// Returns: none.
func TestNewCollectorSink_Validation(t *testing.T) {
	if _, err := NewCollectorSink(context.Background(), nil, testLogger(), &closeAwareSender{}, nil); err == nil {
		t.Fatalf("expected error for empty collector list")
	}
	collectors := []config.CollectorConfig{{Addr: []string{"127.0.0.1:1"}}}
	if _, err := NewCollectorSink(context.Background(), collectors, testLogger(), nil, nil); err == nil {
		t.Fatalf("expected error for nil sender")
	}
}

type recordingSink struct {
	id     string
	calls  *[]string
	mu     *sync.Mutex
	retErr error
}

// Consume records sink call order for assertions.
// Params: ctx/sample are ignored.
// Returns: configured sink error.
func (s *recordingSink) Consume(_ context.Context, _ Sample) error {
	s.mu.Lock()
	*s.calls = append(*s.calls, s.id)
	s.mu.Unlock()
	return s.retErr
}

// TestMultiSink_ConsumeSequential verifies all sinks are called and first error is returned.
// Params: testing.T for assertions.
// Returns: none.
func TestMultiSink_ConsumeSequential(t *testing.T) {
	calls := make([]string, 0, 3)
	var mu sync.Mutex

	sink := NewMultiSink(
		&recordingSink{id: "s1", calls: &calls, mu: &mu},
		nil,
		&recordingSink{id: "s2", calls: &calls, mu: &mu, retErr: errors.New("sink s2 failed")},
		&recordingSink{id: "s3", calls: &calls, mu: &mu},
	)

	err := sink.Consume(context.Background(), Sample{Metric: "ceph.mon_a.mon.num_sessions"})
	if err == nil || err.Error() != "sink s2 failed" {
		t.Fatalf("unexpected consume error: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(calls) != 3 {
		t.Fatalf("unexpected sink call count: %d", len(calls))
	}
	if calls[0] != "s1" || calls[1] != "s2" || calls[2] != "s3" {
		t.Fatalf("unexpected sink call order: %#v", calls)
	}
}
