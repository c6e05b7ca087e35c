package metrics

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/shirou/gopsutil/v4/disk"
)

// FSCollector reports filesystem and inode usage for configured paths.
// Params: prefix metric name root; paths to stat; bytes unit expansion.
// Returns: FS collector instance.
type FSCollector struct {
	prefix string
	paths  []string
	bytes  byteEmitter
	usage  func(ctx context.Context, path string) (*disk.UsageStat, error)
}

// NewFSCollector creates an FS collector.
// Params: prefix metric name root (e.g. "host.fs"); paths filesystem paths; bytes unit expansion.
// Returns: configured FS collector.
func NewFSCollector(prefix string, paths []string, bytes byteEmitter) *FSCollector {
	return &FSCollector{
		prefix: prefix,
		paths:  append([]string(nil), paths...),
		bytes:  bytes,
		usage:  disk.UsageWithContext,
	}
}

// Name returns logical metric name.
// Params: none.
// Returns: metric name string.
func (c *FSCollector) Name() string {
	return c.prefix
}

// Collect reads usage for each configured path.
// Params: ctx for cancellation; publisher for results.
// Returns: error when every path failed.
func (c *FSCollector) Collect(ctx context.Context, publisher Publisher) error {
	skipped := 0
	var lastErr error

	for _, path := range c.paths {
		usage, err := c.usage(ctx, path)
		if err != nil {
			skipped++
			lastErr = err
			continue
		}

		inodesUtil := usage.InodesUsedPercent
		if math.IsNaN(inodesUtil) || math.IsInf(inodesUtil, 0) {
			inodesUtil = 0
		}

		name := c.prefix + "." + pathKey(path)
		c.bytes.gauge(publisher, name+".total_bytes", float64(usage.Total))
		c.bytes.gauge(publisher, name+".used_bytes", float64(usage.Used))
		c.bytes.gauge(publisher, name+".free_bytes", float64(usage.Free))
		publisher.PublishGauge(name+".util", usage.UsedPercent, HostPrecision)
		publisher.PublishGauge(name+".inodes_util", inodesUtil, HostPrecision)
	}

	if skipped > 0 && skipped == len(c.paths) {
		return fmt.Errorf("all filesystem usage reads failed: %w", lastErr)
	}
	return nil
}

// pathKey turns a filesystem path into one metric name segment.
// Params: path absolute filesystem path.
// Returns: segment such as "var_lib_ceph", or "root" for "/".
func pathKey(path string) string {
	trimmed := strings.Trim(strings.TrimSpace(path), "/")
	if trimmed == "" {
		return "root"
	}
	return strings.NewReplacer("/", "_", ".", "_").Replace(trimmed)
}
