package metrics

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/disk"
)

// partitionPattern matches partition names whose parent disk is reported separately.
var partitionPattern = regexp.MustCompile(`^((s|v|xv|h)d[a-z]+\d+|(nvme\d+n\d+|mmcblk\d+)p\d+)$`)

// pseudoPattern matches block devices that never back an OSD.
var pseudoPattern = regexp.MustCompile(`^(loop|ram)\d+$`)

// DiskCollector reports cumulative IO counters and utilization of whole block devices.
// Params: prefix metric name root; bytes unit expansion.
// Returns: disk collector instance.
type DiskCollector struct {
	prefix string
	bytes  byteEmitter

	mu     sync.Mutex
	prevAt time.Time
	prevIO map[string]uint64

	readIO func(context.Context, ...string) (map[string]disk.IOCountersStat, error)
	now    func() time.Time
}

// NewDiskCollector creates a disk IO collector.
// Params: prefix metric name root (e.g. "host.disk"); bytes unit expansion.
// Returns: configured disk collector.
func NewDiskCollector(prefix string, bytes byteEmitter) *DiskCollector {
	return &DiskCollector{
		prefix: prefix,
		bytes:  bytes,
		readIO: disk.IOCountersWithContext,
		now:    time.Now,
	}
}

// Name returns logical metric name.
// Params: none.
// Returns: metric name string.
func (c *DiskCollector) Name() string {
	return c.prefix
}

// Collect reads device counters. Utilization needs a previous sample and is
// reported from the second call on.
// Params: ctx for cancellation; publisher for results.
// Returns: read error.
func (c *DiskCollector) Collect(ctx context.Context, publisher Publisher) error {
	stats, err := c.readIO(ctx)
	if err != nil {
		return fmt.Errorf("read disk counters: %w", err)
	}
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	elapsedMS := float64(now.Sub(c.prevAt).Milliseconds())
	ioTimes := make(map[string]uint64, len(stats))

	devices := make([]string, 0, len(stats))
	for name := range stats {
		if isWholeDisk(name) {
			devices = append(devices, name)
		}
	}
	sort.Strings(devices)

	for _, device := range devices {
		stat := stats[device]
		name := c.prefix + "." + strings.ReplaceAll(normalizeDeviceName(device), "-", "_")

		publisher.PublishCounter(name+".read_ops", float64(stat.ReadCount), HostPrecision)
		publisher.PublishCounter(name+".write_ops", float64(stat.WriteCount), HostPrecision)
		c.bytes.counter(publisher, name+".read_bytes", float64(stat.ReadBytes))
		c.bytes.counter(publisher, name+".write_bytes", float64(stat.WriteBytes))
		publisher.PublishGauge(name+".inflight", float64(stat.IopsInProgress), HostPrecision)

		ioTimes[device] = stat.IoTime
		prev, ok := c.prevIO[device]
		if ok && elapsedMS > 0 && stat.IoTime >= prev {
			util := float64(stat.IoTime-prev) / elapsedMS * 100
			publisher.PublishGauge(name+".util", util, HostPrecision)
		}
	}

	c.prevAt = now
	c.prevIO = ioTimes
	return nil
}

// isWholeDisk reports whether name is a whole block device rather than a
// partition or a pseudo device.
// Params: name kernel device name with or without /dev/.
// Returns: true for whole disks.
func isWholeDisk(name string) bool {
	device := normalizeDeviceName(name)
	if device == "" {
		return false
	}
	return !partitionPattern.MatchString(device) && !pseudoPattern.MatchString(device)
}

// normalizeDeviceName trims whitespace and the /dev/ prefix.
// Params: name raw device name.
// Returns: bare device name.
func normalizeDeviceName(name string) string {
	return strings.TrimPrefix(strings.TrimSpace(name), "/dev/")
}
