package metrics

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v4/mem"
)

// RAMCollector reports RAM totals, usage, and utilization.
// Params: prefix metric name root; bytes unit expansion.
// Returns: RAM collector instance.
type RAMCollector struct {
	prefix string
	bytes  byteEmitter
	read   func(ctx context.Context) (*mem.VirtualMemoryStat, error)
}

// NewRAMCollector creates a RAM collector.
// Params: prefix metric name root (e.g. "host.memory"); bytes unit expansion.
// Returns: configured RAM collector.
func NewRAMCollector(prefix string, bytes byteEmitter) *RAMCollector {
	return &RAMCollector{prefix: prefix, bytes: bytes, read: mem.VirtualMemoryWithContext}
}

// Name returns logical metric name.
// Params: none.
// Returns: metric name string.
func (c *RAMCollector) Name() string {
	return c.prefix
}

// Collect reads RAM state from the kernel.
// Params: ctx for cancellation; publisher for results.
// Returns: read error.
func (c *RAMCollector) Collect(ctx context.Context, publisher Publisher) error {
	vm, err := c.read(ctx)
	if err != nil {
		return fmt.Errorf("read virtual memory: %w", err)
	}

	util := 0.0
	if vm.Total > 0 {
		util = (float64(vm.Used) / float64(vm.Total)) * 100
	}

	c.bytes.gauge(publisher, c.prefix+".total_bytes", float64(vm.Total))
	c.bytes.gauge(publisher, c.prefix+".used_bytes", float64(vm.Used))
	c.bytes.gauge(publisher, c.prefix+".available_bytes", float64(vm.Available))
	publisher.PublishGauge(c.prefix+".util", util, HostPrecision)
	return nil
}
