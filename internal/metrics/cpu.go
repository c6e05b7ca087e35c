package metrics

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v4/cpu"
)

// CPUCollector reports total CPU utilization.
// Params: prefix metric name root.
// Returns: CPU collector instance.
type CPUCollector struct {
	prefix  string
	percent func(ctx context.Context) ([]float64, error)
}

// NewCPUCollector creates a CPU collector.
// Params: prefix metric name root (e.g. "host.cpu").
// Returns: configured CPU collector.
func NewCPUCollector(prefix string) *CPUCollector {
	return &CPUCollector{
		prefix: prefix,
		percent: func(ctx context.Context) ([]float64, error) {
			return cpu.PercentWithContext(ctx, 0, false)
		},
	}
}

// Name returns logical metric name.
// Params: none.
// Returns: metric name string.
func (c *CPUCollector) Name() string {
	return c.prefix
}

// Collect reads CPU utilization since the previous call.
// Params: ctx for cancellation; publisher for results.
// Returns: read error.
func (c *CPUCollector) Collect(ctx context.Context, publisher Publisher) error {
	total, err := c.percent(ctx)
	if err != nil {
		return fmt.Errorf("read total CPU percent: %w", err)
	}
	if len(total) == 0 {
		return fmt.Errorf("read total CPU percent: empty result")
	}

	publisher.PublishGauge(c.prefix+".util", total[0], HostPrecision)
	return nil
}
