package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
)

// selfMetrics tracks the agent's own delivery and collection health.
// A nil receiver is valid and records nothing.
type selfMetrics struct {
	collectRuns    *prometheus.CounterVec
	collectErrors  *prometheus.CounterVec
	samplesSent    *prometheus.CounterVec
	batchesDropped *prometheus.CounterVec
}

// newSelfMetrics creates and registers agent counters.
// Params: registerer target registry.
// Returns: self metrics or registration error.
func newSelfMetrics(registerer prometheus.Registerer) (*selfMetrics, error) {
	m := &selfMetrics{
		collectRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "cephagent",
				Name:      "collect_runs_total",
				Help:      "Collection passes started per collector.",
			},
			[]string{"collector"},
		),
		collectErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "cephagent",
				Name:      "collect_errors_total",
				Help:      "Collection passes that returned an error.",
			},
			[]string{"collector"},
		),
		samplesSent: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "cephagent",
				Name:      "samples_sent_total",
				Help:      "Samples accepted by a push collector.",
			},
			[]string{"collector"},
		),
		batchesDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "cephagent",
				Name:      "batches_dropped_total",
				Help:      "Batches discarded after the retry buffer filled up.",
			},
			[]string{"collector"},
		),
	}

	for _, collector := range []prometheus.Collector{m.collectRuns, m.collectErrors, m.samplesSent, m.batchesDropped} {
		if err := registerer.Register(collector); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *selfMetrics) collectStarted(collector string) {
	if m == nil {
		return
	}
	m.collectRuns.WithLabelValues(collector).Inc()
}

func (m *selfMetrics) collectFailed(collector string) {
	if m == nil {
		return
	}
	m.collectErrors.WithLabelValues(collector).Inc()
}

func (m *selfMetrics) batchSent(collector string, samples int) {
	if m == nil {
		return
	}
	m.samplesSent.WithLabelValues(collector).Add(float64(samples))
}

func (m *selfMetrics) batchDropped(collector string) {
	if m == nil {
		return
	}
	m.batchesDropped.WithLabelValues(collector).Inc()
}
