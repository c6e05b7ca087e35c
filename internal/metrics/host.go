package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"cephagent/internal/units"
)

// HostPrecision is the decimal precision of host gauges.
const HostPrecision = 2

// HostCollector runs a set of host probes as one scheduled collector.
// Params: prefix metric name root; probes host readers; byteUnits expansion targets.
// Returns: collector publishing host.* gauges.
type HostCollector struct {
	prefix string
	probes []Collector
	logger *slog.Logger
}

// NewHostCollector builds the default host probe set.
// Params: prefix metric name root (e.g. "host"); byteUnits units for byte gauges; paths filesystems to report; logger for probe failures.
// Returns: host collector or error on invalid units.
func NewHostCollector(prefix string, byteUnits []string, paths []string, logger *slog.Logger) (*HostCollector, error) {
	if err := units.Validate(byteUnits); err != nil {
		return nil, fmt.Errorf("byte units: %w", err)
	}
	if strings.TrimSpace(prefix) == "" {
		prefix = "host"
	}

	bytes := byteEmitter{units: append([]string(nil), byteUnits...)}
	probes := []Collector{
		NewCPUCollector(prefix + ".cpu"),
		NewRAMCollector(prefix+".memory", bytes),
		NewSWAPCollector(prefix+".swap", bytes),
		NewLoadCollector(prefix + ".load"),
		NewDiskCollector(prefix+".disk", bytes),
	}
	if len(paths) > 0 {
		probes = append(probes, NewFSCollector(prefix+".fs", paths, bytes))
	}

	return newHostCollector(prefix, probes, logger), nil
}

// newHostCollector wires explicit probes.
// Params: prefix name; probes collectors; logger for probe failures.
// Returns: host collector.
func newHostCollector(prefix string, probes []Collector, logger *slog.Logger) *HostCollector {
	return &HostCollector{prefix: prefix, probes: probes, logger: logger}
}

// Name returns logical collector name.
// Params: none.
// Returns: collector name.
func (c *HostCollector) Name() string {
	return c.prefix
}

// Collect runs every probe; one failing probe does not stop the others.
// Params: ctx for cancellation; publisher for results.
// Returns: joined probe errors when every probe failed, nil otherwise.
func (c *HostCollector) Collect(ctx context.Context, publisher Publisher) error {
	var errs []error
	for _, probe := range c.probes {
		if err := probe.Collect(ctx, publisher); err != nil {
			if c.logger != nil {
				c.logger.Warn("host probe failed", slog.String("probe", probe.Name()), slog.String("error", err.Error()))
			}
			errs = append(errs, fmt.Errorf("%s: %w", probe.Name(), err))
		}
	}
	if len(errs) > 0 && len(errs) == len(c.probes) {
		return errors.Join(errs...)
	}
	return nil
}

// byteEmitter publishes byte gauges once per configured unit.
type byteEmitter struct {
	units []string
}

// gauge publishes name (which must end in "bytes") converted to every unit.
// Params: publisher target; name metric name ending in "bytes"; value in bytes.
// Returns: none.
func (b byteEmitter) gauge(publisher Publisher, name string, value float64) {
	targets := b.units
	if len(targets) == 0 {
		targets = []string{"byte"}
	}
	for _, item := range units.Expand(name, value, targets) {
		publisher.PublishGauge(item.Name, item.Value, HostPrecision)
	}
}

// counter publishes a cumulative byte counter once per configured unit.
// Params: publisher target; name metric name ending in "bytes"; value in bytes.
// Returns: none.
func (b byteEmitter) counter(publisher Publisher, name string, value float64) {
	targets := b.units
	if len(targets) == 0 {
		targets = []string{"byte"}
	}
	for _, item := range units.Expand(name, value, targets) {
		publisher.PublishCounter(item.Name, item.Value, HostPrecision)
	}
}
