package pipeline

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusSink keeps the latest value of every sample and exposes them for scraping.
// Params: ttl after which an unrefreshed series disappears (0 keeps forever).
// Returns: sink that also implements prometheus.Collector.
type PrometheusSink struct {
	registry *prometheus.Registry
	ttl      time.Duration
	now      func() time.Time

	mu       sync.RWMutex
	series   map[string]promSeries
	owners   map[string]string
	reported map[string]struct{}
}

type promSeries struct {
	name    string
	kind    string
	value   float64
	labels  prometheus.Labels
	updated time.Time
}

// NewPrometheusSink creates a sink with its own registry.
// Params: ttl stale series expiry.
// Returns: sink or registration error.
func NewPrometheusSink(ttl time.Duration) (*PrometheusSink, error) {
	s := &PrometheusSink{
		registry: prometheus.NewRegistry(),
		ttl:      ttl,
		now:      time.Now,
		series:   make(map[string]promSeries),
		owners:   make(map[string]string),
		reported: make(map[string]struct{}),
	}
	if err := s.registry.Register(s); err != nil {
		return nil, err
	}
	return s, nil
}

// Registry returns the registry served by Handler.
// Params: none.
// Returns: prometheus registry.
func (s *PrometheusSink) Registry() *prometheus.Registry {
	return s.registry
}

// Handler returns the HTTP handler for the exposition endpoint.
// Params: none.
// Returns: promhttp handler bound to the sink registry.
func (s *PrometheusSink) Handler() http.Handler {
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Consume records sample as the current value of its series.
// The first metric to claim a Prometheus name keeps it; a different metric
// that sanitizes to the same name is not exposed.
// Params: ctx is unused; sample payload.
// Returns: collision error the first time a metric is shadowed, nil otherwise.
func (s *PrometheusSink) Consume(_ context.Context, sample Sample) error {
	name := PromName(sample.Metric)

	s.mu.Lock()
	defer s.mu.Unlock()
	if owner, ok := s.owners[name]; ok && owner != sample.Metric {
		if _, seen := s.reported[sample.Metric]; seen {
			return nil
		}
		s.reported[sample.Metric] = struct{}{}
		return fmt.Errorf("prometheus name %q of %q already used by %q", name, sample.Metric, owner)
	}
	s.owners[name] = sample.Metric
	s.series[sample.Metric] = promSeries{
		name:   name,
		kind:   sample.Kind,
		value:  sample.Value,
		labels: prometheus.Labels{
			"dc":      sample.DC,
			"host":    sample.Host,
			"project": sample.Project,
			"role":    sample.Role,
		},
		updated: s.now(),
	}
	return nil
}

// Describe sends nothing so the sink is registered as an unchecked collector.
// Params: ch descriptor channel.
// Returns: none.
func (s *PrometheusSink) Describe(chan<- *prometheus.Desc) {}

// Collect emits one const metric per live series.
// Params: ch metric channel.
// Returns: none.
func (s *PrometheusSink) Collect(ch chan<- prometheus.Metric) {
	now := s.now()

	s.mu.Lock()
	snapshot := make([]promSeries, 0, len(s.series))
	sources := make(map[string]string, len(s.series))
	for source, item := range s.series {
		if s.ttl > 0 && now.Sub(item.updated) > s.ttl {
			delete(s.series, source)
			delete(s.owners, item.name)
			continue
		}
		snapshot = append(snapshot, item)
		sources[item.name] = source
	}
	s.mu.Unlock()

	sort.Slice(snapshot, func(i, j int) bool { return snapshot[i].name < snapshot[j].name })
	for _, item := range snapshot {
		desc := prometheus.NewDesc(item.name, "Ceph metric "+sources[item.name], nil, item.labels)
		valueType := prometheus.GaugeValue
		if item.kind == kindCounter {
			valueType = prometheus.CounterValue
		}
		metric, err := prometheus.NewConstMetric(desc, valueType, item.value)
		if err != nil {
			ch <- prometheus.NewInvalidMetric(desc, err)
			continue
		}
		ch <- metric
	}
}

// PromName maps a dotted metric name to a valid Prometheus metric name.
// Params: name dotted metric name.
// Returns: name with invalid characters replaced by underscores.
func PromName(name string) string {
	var builder strings.Builder
	builder.Grow(len(name) + 1)
	for idx, r := range name {
		valid := r == '_' || r == ':' ||
			(r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
			(idx > 0 && r >= '0' && r <= '9')
		if idx == 0 && r >= '0' && r <= '9' {
			builder.WriteByte('_')
			valid = true
		}
		if valid {
			builder.WriteRune(r)
			continue
		}
		builder.WriteByte('_')
	}
	if builder.Len() == 0 {
		return "_"
	}
	return builder.String()
}
