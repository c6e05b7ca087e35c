package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"cephagent/internal/units"
)

const (
	defaultLogLevel        = "info"
	defaultLogFormat       = "line"
	defaultSocketPath      = "/var/run/ceph"
	defaultSocketPrefix    = "ceph-"
	defaultSocketExt       = "asok"
	defaultCephBinary      = "/usr/bin/ceph"
	defaultNamespace       = "ceph"
	defaultCephInterval    = 30 * time.Second
	defaultCephTimeout     = 10 * time.Second
	defaultHostInterval    = 30 * time.Second
	defaultPromListen      = "127.0.0.1:9283"
	defaultPromPath        = "/metrics"
	defaultCollectorTO     = 5 * time.Second
	defaultCollectorRetry  = 3 * time.Second
	defaultCollectorBatchN = 500
	defaultCollectorBatchA = 5 * time.Second
)

var defaultByteUnits = []string{"byte"}

// Duration wraps time.Duration for TOML parsing.
// Params: text duration string (e.g. "5s", "1m").
// Returns: parse error on invalid duration.
type Duration struct {
	time.Duration
}

// UnmarshalText parses TOML duration values.
// Params: text is raw duration bytes from TOML.
// Returns: error when value is not a valid Go duration.
func (d *Duration) UnmarshalText(text []byte) error {
	value := strings.TrimSpace(string(text))
	if value == "" {
		d.Duration = 0
		return nil
	}

	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", value, err)
	}

	d.Duration = parsed
	return nil
}

// Config represents the root agent configuration.
// Params: TOML document sections.
// Returns: validated runtime configuration.
type Config struct {
	Global     GlobalConfig      `toml:"global"`
	Log        LogConfig         `toml:"log"`
	Ceph       CephConfig        `toml:"ceph"`
	Host       HostConfig        `toml:"host"`
	Prometheus PrometheusConfig  `toml:"prometheus"`
	Collector  []CollectorConfig `toml:"collector"`
}

// GlobalConfig contains tags attached to every published sample.
// Params: configured global tags.
// Returns: global tag settings.
type GlobalConfig struct {
	DC      string `toml:"dc"`
	Project string `toml:"project"`
	Role    string `toml:"role"`
	Host    string `toml:"host"`
}

// LogConfig contains console/file logging configuration.
// Params: console and file sink options.
// Returns: logger sink settings.
type LogConfig struct {
	Console LogSinkConfig `toml:"console"`
	File    LogSinkConfig `toml:"file"`
}

// LogSinkConfig defines one logging sink.
// Params: sink options from TOML.
// Returns: sink setup.
type LogSinkConfig struct {
	Enabled bool   `toml:"enabled"`
	Level   string `toml:"level"`
	Format  string `toml:"format"`
	Path    string `toml:"path"`
}

// CephConfig defines admin socket discovery and perf counter polling.
// Params: socket location, ceph binary, schedule, and byte-unit expansion.
// Returns: ceph collector settings.
type CephConfig struct {
	SocketPath   string   `toml:"socket_path"`
	SocketPrefix *string  `toml:"socket_prefix"`
	SocketExt    string   `toml:"socket_ext"`
	Binary       string   `toml:"ceph_binary"`
	Namespace    string   `toml:"namespace"`
	Interval     Duration `toml:"interval"`
	Timeout      Duration `toml:"timeout"`
	ByteUnit     []string `toml:"byte_unit"`
	UseSchema    *bool    `toml:"use_schema"`
}

// SchemaEnabled reports whether counters are interpreted with `perf schema`.
// Params: none.
// Returns: true unless use_schema = false.
func (c CephConfig) SchemaEnabled() bool {
	return c.UseSchema == nil || *c.UseSchema
}

// Prefix returns the socket name prefix. An explicit empty prefix is kept.
// Params: none.
// Returns: configured prefix, or "ceph-" when socket_prefix is absent.
func (c CephConfig) Prefix() string {
	if c.SocketPrefix == nil {
		return defaultSocketPrefix
	}
	return *c.SocketPrefix
}

// HostConfig defines host self-metrics collection.
// Params: enabled flag, interval, and filesystem paths to report.
// Returns: host collector settings.
type HostConfig struct {
	Enabled  bool     `toml:"enabled"`
	Interval Duration `toml:"interval"`
	Paths    []string `toml:"paths"`
}

// PrometheusConfig defines the optional exposition endpoint.
// Params: enabled flag, listen address, HTTP path, and pprof toggle.
// Returns: prometheus sink settings.
type PrometheusConfig struct {
	Enabled bool   `toml:"enabled"`
	Listen  string `toml:"listen"`
	Path    string `toml:"path"`
	Pprof   bool   `toml:"pprof"`
}

// CollectorConfig defines one gRPC push target group.
// Params: collector endpoints, timeout, retry and batch settings.
// Returns: one collector runtime config.
type CollectorConfig struct {
	Name          string               `toml:"name"`
	Addr          []string             `toml:"addr"`
	Timeout       Duration             `toml:"timeout"`
	RetryInterval Duration             `toml:"retry_interval"`
	Batch         CollectorBatchConfig `toml:"batch"`
}

// CollectorBatchConfig defines in-memory batch limits.
// Params: batch controls from TOML.
// Returns: per-collector batch settings.
type CollectorBatchConfig struct {
	MaxEvents uint64   `toml:"max_events"`
	MaxAge    Duration `toml:"max_age"`
}

// Load reads, expands, validates, and returns config from path.
// Params: path to TOML config file or directory with *.toml files.
// Returns: validated config pointer or error.
func Load(path string) (*Config, error) {
	raw, err := readConfigSource(path)
	if err != nil {
		return nil, err
	}

	return Parse(path, raw)
}

// Parse decodes, defaults, and validates raw TOML.
// Params: source name used in errors; raw TOML bytes.
// Returns: validated config pointer or error.
func Parse(source string, raw []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(raw))

	var cfg Config
	if err := toml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("decode TOML %q: %w", source, err)
	}

	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// readConfigSource reads one TOML file or concatenates *.toml files from directory.
// Params: path to config file or directory.
// Returns: raw TOML bytes or error.
func readConfigSource(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat config %q: %w", path, err)
	}

	if !info.IsDir() {
		raw, readErr := os.ReadFile(path)
		if readErr != nil {
			return nil, fmt.Errorf("read config %q: %w", path, readErr)
		}
		return raw, nil
	}

	return readConfigDir(path)
}

// readConfigDir concatenates config snippets from one directory in name order.
// Params: path to directory that contains *.toml files.
// Returns: concatenated TOML content or error.
func readConfigDir(path string) ([]byte, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("read config dir %q: %w", path, err)
	}

	files := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() && strings.EqualFold(filepath.Ext(entry.Name()), ".toml") {
			files = append(files, entry.Name())
		}
	}

	sort.Strings(files)
	if len(files) == 0 {
		return nil, fmt.Errorf("read config dir %q: no *.toml files", path)
	}

	var builder strings.Builder
	for _, name := range files {
		filePath := filepath.Join(path, name)
		raw, readErr := os.ReadFile(filePath)
		if readErr != nil {
			return nil, fmt.Errorf("read config %q: %w", filePath, readErr)
		}
		builder.Write(raw)
		builder.WriteString("\n\n")
	}

	return []byte(builder.String()), nil
}

// applyDefaults fills defaults for optional configuration fields.
// Params: receiver config pointer.
// Returns: error if defaulting needs host lookup and it fails.
func (c *Config) applyDefaults() error {
	c.Log.Console.Level = lowerOrDefault(c.Log.Console.Level, defaultLogLevel)
	c.Log.Console.Format = lowerOrDefault(c.Log.Console.Format, defaultLogFormat)
	c.Log.File.Level = lowerOrDefault(c.Log.File.Level, defaultLogLevel)
	c.Log.File.Format = lowerOrDefault(c.Log.File.Format, "json")

	if !c.Log.Console.Enabled && !c.Log.File.Enabled {
		c.Log.Console.Enabled = true
	}

	if strings.TrimSpace(c.Global.Host) == "" {
		host, err := os.Hostname()
		if err != nil {
			return fmt.Errorf("resolve hostname: %w", err)
		}
		c.Global.Host = host
	}

	c.Ceph.SocketPath = trimOrDefault(c.Ceph.SocketPath, defaultSocketPath)
	c.Ceph.SocketExt = strings.TrimPrefix(trimOrDefault(c.Ceph.SocketExt, defaultSocketExt), ".")
	c.Ceph.Binary = trimOrDefault(c.Ceph.Binary, defaultCephBinary)
	c.Ceph.Namespace = trimOrDefault(c.Ceph.Namespace, defaultNamespace)
	if c.Ceph.SocketPrefix == nil {
		prefix := defaultSocketPrefix
		c.Ceph.SocketPrefix = &prefix
	}
	if c.Ceph.Interval.Duration == 0 {
		c.Ceph.Interval.Duration = defaultCephInterval
	}
	if c.Ceph.Timeout.Duration == 0 {
		c.Ceph.Timeout.Duration = defaultCephTimeout
	}
	if len(c.Ceph.ByteUnit) == 0 {
		c.Ceph.ByteUnit = append([]string(nil), defaultByteUnits...)
	}

	if c.Host.Interval.Duration == 0 {
		c.Host.Interval.Duration = defaultHostInterval
	}

	if c.Prometheus.Enabled {
		c.Prometheus.Listen = trimOrDefault(c.Prometheus.Listen, defaultPromListen)
		c.Prometheus.Path = trimOrDefault(c.Prometheus.Path, defaultPromPath)
	}

	for i := range c.Collector {
		if c.Collector[i].Timeout.Duration <= 0 {
			c.Collector[i].Timeout.Duration = defaultCollectorTO
		}
		if c.Collector[i].RetryInterval.Duration <= 0 {
			c.Collector[i].RetryInterval.Duration = defaultCollectorRetry
		}
		if c.Collector[i].Batch.MaxEvents == 0 {
			c.Collector[i].Batch.MaxEvents = defaultCollectorBatchN
		}
		if c.Collector[i].Batch.MaxAge.Duration <= 0 {
			c.Collector[i].Batch.MaxAge.Duration = defaultCollectorBatchA
		}
	}

	return nil
}

// validate checks config consistency and required fields.
// Params: receiver config pointer.
// Returns: validation error for invalid or incomplete config.
func (c *Config) validate() error {
	if strings.TrimSpace(c.Global.Host) == "" {
		return fmt.Errorf("global.host resolved to empty value")
	}

	if err := validateSink("log.console", c.Log.Console, false); err != nil {
		return err
	}
	if err := validateSink("log.file", c.Log.File, true); err != nil {
		return err
	}

	if err := c.Ceph.validate("ceph"); err != nil {
		return err
	}

	if c.Host.Interval.Duration < 0 {
		return fmt.Errorf("host.interval cannot be negative")
	}

	if c.Prometheus.Enabled {
		if _, _, err := net.SplitHostPort(c.Prometheus.Listen); err != nil {
			return fmt.Errorf("prometheus.listen must be host:port: %w", err)
		}
		if !strings.HasPrefix(c.Prometheus.Path, "/") {
			return fmt.Errorf("prometheus.path must start with /")
		}
		if c.Prometheus.Pprof && strings.HasPrefix(c.Prometheus.Path, "/debug/pprof") {
			return fmt.Errorf("prometheus.path overlaps /debug/pprof/")
		}
	}

	for idx, collector := range c.Collector {
		path := fmt.Sprintf("collector[%d]", idx)
		if len(collector.Addr) == 0 {
			return fmt.Errorf("%s.addr must contain at least one host:port", path)
		}

		for addrIdx, addr := range collector.Addr {
			if strings.TrimSpace(addr) == "" {
				return fmt.Errorf("%s.addr[%d] cannot be empty", path, addrIdx)
			}
		}
	}

	return nil
}

// validate checks ceph polling settings.
// Params: path config section path for errors.
// Returns: validation error or nil.
func (c CephConfig) validate(path string) error {
	if c.Interval.Duration < 0 {
		return fmt.Errorf("%s.interval cannot be negative", path)
	}
	if c.Timeout.Duration < 0 {
		return fmt.Errorf("%s.timeout cannot be negative", path)
	}
	if strings.ContainsAny(c.Prefix(), `/\`) {
		return fmt.Errorf("%s.socket_prefix cannot contain path separators", path)
	}
	if strings.ContainsAny(c.Namespace, " \t") {
		return fmt.Errorf("%s.namespace cannot contain whitespace", path)
	}
	if err := units.Validate(c.ByteUnit); err != nil {
		return fmt.Errorf("%s.byte_unit: %w", path, err)
	}
	return nil
}

// validateSink validates one logging sink configuration.
// Params: name is sink path for errors; sink is sink config; requirePath means path required when enabled.
// Returns: validation error or nil.
func validateSink(name string, sink LogSinkConfig, requirePath bool) error {
	if sink.Enabled && requirePath && strings.TrimSpace(sink.Path) == "" {
		return fmt.Errorf("%s.path is required when sink is enabled", name)
	}

	if err := validateLogLevel(sink.Level); err != nil {
		return fmt.Errorf("%s.level: %w", name, err)
	}
	if err := validateLogFormat(sink.Format); err != nil {
		return fmt.Errorf("%s.format: %w", name, err)
	}

	return nil
}

// validateLogLevel validates known log levels.
// Params: level is lower-case level name.
// Returns: error when level is unsupported.
func validateLogLevel(level string) error {
	switch strings.TrimSpace(strings.ToLower(level)) {
	case "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("unsupported value %q", level)
	}
}

// validateLogFormat validates supported sink formats.
// Params: format is lower-case format name.
// Returns: error when format is unsupported.
func validateLogFormat(format string) error {
	switch strings.TrimSpace(strings.ToLower(format)) {
	case "line", "json":
		return nil
	default:
		return fmt.Errorf("unsupported value %q", format)
	}
}

// lowerOrDefault returns a trimmed lower-case value or default fallback.
// Params: value to normalize; fallback value when empty.
// Returns: normalized value.
func lowerOrDefault(value, fallback string) string {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "" {
		return fallback
	}
	return normalized
}

// trimOrDefault returns a trimmed value or default fallback.
// Params: value to normalize; fallback value when empty.
// Returns: normalized value.
func trimOrDefault(value, fallback string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fallback
	}
	return trimmed
}
