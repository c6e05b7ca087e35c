package metrics

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v4/mem"
)

// SWAPCollector reports swap usage.
// Params: prefix metric name root; bytes unit expansion.
// Returns: SWAP collector instance.
type SWAPCollector struct {
	prefix string
	bytes  byteEmitter
	read   func(ctx context.Context) (*mem.SwapMemoryStat, error)
}

// NewSWAPCollector creates a swap collector.
// Params: prefix metric name root (e.g. "host.swap"); bytes unit expansion.
// Returns: configured swap collector.
func NewSWAPCollector(prefix string, bytes byteEmitter) *SWAPCollector {
	return &SWAPCollector{prefix: prefix, bytes: bytes, read: mem.SwapMemoryWithContext}
}

// Name returns logical metric name.
// Params: none.
// Returns: metric name string.
func (c *SWAPCollector) Name() string {
	return c.prefix
}

// Collect reads swap state.
// Params: ctx for cancellation; publisher for results.
// Returns: read error.
func (c *SWAPCollector) Collect(ctx context.Context, publisher Publisher) error {
	sm, err := c.read(ctx)
	if err != nil {
		return fmt.Errorf("read swap memory: %w", err)
	}

	util := 0.0
	if sm.Total > 0 {
		util = (float64(sm.Used) / float64(sm.Total)) * 100
	}

	c.bytes.gauge(publisher, c.prefix+".total_bytes", float64(sm.Total))
	c.bytes.gauge(publisher, c.prefix+".used_bytes", float64(sm.Used))
	publisher.PublishGauge(c.prefix+".util", util, HostPrecision)
	return nil
}
