// Package config loads the sentinel process configuration from a YAML file
// and SENTINEL_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Store backends understood by the CLI.
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Config holds everything needed to assemble a running sentinel process.
type Config struct {
	Store   StoreConfig   `yaml:"store"`
	Redis   RedisConfig   `yaml:"redis"`
	Queue   QueueConfig   `yaml:"queue"`
	Workers WorkersConfig `yaml:"workers"`
	Metrics MetricsConfig `yaml:"metrics"`
	Logging LoggingConfig `yaml:"logging"`

	// TimeZone is the IANA zone CLOCK checks are judged in. Empty means the
	// host's local zone.
	TimeZone string `yaml:"time_zone"`
}

// StoreConfig selects the event/contract/cursor backend.
type StoreConfig struct {
	Backend string `yaml:"backend"` // memory, sqlite, postgres
	DSN     string `yaml:"dsn"`
}

// RedisConfig optionally moves the event log and cursors to Redis. Contracts
// stay in the SQL/memory store.
type RedisConfig struct {
	Addr   string `yaml:"addr"`
	Prefix string `yaml:"prefix"`
	DB     int    `yaml:"db"`
}

// QueueConfig tunes the Sentinel's checkpointed consumer.
type QueueConfig struct {
	BatchSize     int           `yaml:"batch_size"`
	PollInterval  time.Duration `yaml:"poll_interval"`
	RetryInterval time.Duration `yaml:"retry_interval"`
	StartAtLatest bool          `yaml:"start_at_latest"`
}

// WorkersConfig controls the supervised units.
type WorkersConfig struct {
	SentinelEnabled    bool          `yaml:"sentinel_enabled"`
	SweeperEnabled     bool          `yaml:"sweeper_enabled"`
	SweepInterval      time.Duration `yaml:"sweep_interval"`
	WatchInterval      time.Duration `yaml:"watch_interval"`
	ExcludedEventTypes []string      `yaml:"excluded_event_types"`
}

// MetricsConfig configures the Prometheus endpoint. An empty Addr disables it.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
	Path string `yaml:"path"`
}

// LoggingConfig configures the slog handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// Default returns a configuration usable without any file: SQLite on a local
// file, both workers enabled.
func Default() *Config {
	return &Config{
		Store: StoreConfig{
			Backend: BackendSQLite,
			DSN:     "file:sentinel.db?_pragma=busy_timeout(5000)",
		},
		Redis: RedisConfig{
			Prefix: "sentinel:",
		},
		Queue: QueueConfig{
			BatchSize:     10,
			PollInterval:  5 * time.Second,
			RetryInterval: 5 * time.Second,
		},
		Workers: WorkersConfig{
			SentinelEnabled: true,
			SweeperEnabled:  true,
			SweepInterval:   time.Minute,
			WatchInterval:   10 * time.Second,
		},
		Metrics: MetricsConfig{
			Path: "/metrics",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads path (if non-empty and present) over the defaults and then
// applies environment overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	c.Store.Backend = getenv("SENTINEL_STORE", c.Store.Backend)
	c.Store.DSN = getenv("SENTINEL_DSN", c.Store.DSN)

	c.Redis.Addr = getenv("SENTINEL_REDIS_ADDR", c.Redis.Addr)
	c.Redis.Prefix = getenv("SENTINEL_REDIS_PREFIX", c.Redis.Prefix)
	c.Redis.DB = getenvInt("SENTINEL_REDIS_DB", c.Redis.DB)

	c.Queue.BatchSize = getenvInt("SENTINEL_BATCH_SIZE", c.Queue.BatchSize)
	c.Queue.PollInterval = getenvDuration("SENTINEL_POLL_INTERVAL", c.Queue.PollInterval)
	c.Queue.RetryInterval = getenvDuration("SENTINEL_RETRY_INTERVAL", c.Queue.RetryInterval)
	c.Queue.StartAtLatest = getenvBool("SENTINEL_START_AT_LATEST", c.Queue.StartAtLatest)

	c.Workers.SentinelEnabled = getenvBool("SENTINEL_SENTINEL_ENABLED", c.Workers.SentinelEnabled)
	c.Workers.SweeperEnabled = getenvBool("SENTINEL_SWEEPER_ENABLED", c.Workers.SweeperEnabled)
	c.Workers.SweepInterval = getenvDuration("SENTINEL_SWEEP_INTERVAL", c.Workers.SweepInterval)
	c.Workers.WatchInterval = getenvDuration("SENTINEL_WATCH_INTERVAL", c.Workers.WatchInterval)
	if v, ok := lookup("SENTINEL_EXCLUDED_EVENT_TYPES"); ok {
		c.Workers.ExcludedEventTypes = splitList(v)
	}

	c.Metrics.Addr = getenv("SENTINEL_METRICS_ADDR", c.Metrics.Addr)
	c.Logging.Level = getenv("SENTINEL_LOG_LEVEL", c.Logging.Level)
	c.Logging.Format = getenv("SENTINEL_LOG_FORMAT", c.Logging.Format)
	c.TimeZone = getenv("SENTINEL_TIME_ZONE", c.TimeZone)
}

// Validate reports every problem found, joined.
func (c *Config) Validate() error {
	var errs []error

	switch c.Store.Backend {
	case BackendMemory:
	case BackendSQLite, BackendPostgres:
		if c.Store.DSN == "" {
			errs = append(errs, fmt.Errorf("store.dsn is required for backend %q", c.Store.Backend))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store.backend %q", c.Store.Backend))
	}

	if c.Queue.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("queue.batch_size must be positive, got %d", c.Queue.BatchSize))
	}
	if c.Queue.PollInterval <= 0 {
		errs = append(errs, errors.New("queue.poll_interval must be positive"))
	}
	if c.Queue.RetryInterval <= 0 {
		errs = append(errs, errors.New("queue.retry_interval must be positive"))
	}
	if c.Workers.SweepInterval <= 0 {
		errs = append(errs, errors.New("workers.sweep_interval must be positive"))
	}
	if c.Workers.WatchInterval <= 0 {
		errs = append(errs, errors.New("workers.watch_interval must be positive"))
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown logging.format %q", c.Logging.Format))
	}

	return errors.Join(errs...)
}

// Location resolves TimeZone.
func (c *Config) Location() (*time.Location, error) {
	if c.TimeZone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("time_zone: %w", err)
	}
	return loc, nil
}

func lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	return strings.TrimSpace(v), ok
}

func getenv(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func getenvInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getenvBool(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func splitList(s string) []string {
	out := []string{}
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
