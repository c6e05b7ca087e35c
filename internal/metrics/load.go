package metrics

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v4/load"
)

// LoadCollector reports 1/5/15 minute load averages.
type LoadCollector struct {
	prefix string
	read   func(ctx context.Context) (*load.AvgStat, error)
}

// NewLoadCollector creates a load average collector.
// Params: prefix metric name root (e.g. "host.load").
// Returns: configured load collector.
func NewLoadCollector(prefix string) *LoadCollector {
	return &LoadCollector{prefix: prefix, read: load.AvgWithContext}
}

// Name returns logical metric name.
// Params: none.
// Returns: metric name string.
func (c *LoadCollector) Name() string {
	return c.prefix
}

// Collect reads load averages.
// Params: ctx for cancellation; publisher for results.
// Returns: read error.
func (c *LoadCollector) Collect(ctx context.Context, publisher Publisher) error {
	avg, err := c.read(ctx)
	if err != nil {
		return fmt.Errorf("read load average: %w", err)
	}

	publisher.PublishGauge(c.prefix+".load1", avg.Load1, HostPrecision)
	publisher.PublishGauge(c.prefix+".load5", avg.Load5, HostPrecision)
	publisher.PublishGauge(c.prefix+".load15", avg.Load15, HostPrecision)
	return nil
}
