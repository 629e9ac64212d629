// ABOUTME: Configuration loading and parsing for regionsync
// ABOUTME: Supports YAML or TOML files with environment variable expansion, defaults and duration parsing

package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// EnvDBPath overrides database.path when set.
const EnvDBPath = "REGIONSYNC_DB_PATH"

// Defaults applied by Load for omitted settings.
const (
	DefaultRadiusMiles         = 1.0
	DefaultFetchTimeout        = 10 * time.Second
	DefaultRetryAttempts       = 1
	DefaultRetryInitial        = 500 * time.Millisecond
	DefaultRetryMax            = 10 * time.Second
	DefaultWorkers             = 4
	DefaultQueueSize           = 64
	DefaultDedupeTTL           = 2 * time.Minute
	DefaultDedupeSize          = 1024
	DefaultRegionRadiusMeters  = 1609
	DefaultMetricsPath         = "/metrics"
	DefaultDatabaseDriver      = "sqlite"
	DefaultLoggingLevel        = "info"
	defaultInitialTriggerEnter = true
)

// Config represents the complete regionsync configuration
type Config struct {
	Server     ServerConfig     `yaml:"server" toml:"server"`
	Database   DatabaseConfig   `yaml:"database" toml:"database"`
	Fetch      FetchConfig      `yaml:"fetch" toml:"fetch"`
	Dispatcher DispatcherConfig `yaml:"dispatcher" toml:"dispatcher"`
	Regions    RegionsConfig    `yaml:"regions" toml:"regions"`
	Resync     ResyncConfig     `yaml:"resync" toml:"resync"`
	Auth       AuthConfig       `yaml:"auth" toml:"auth"`
	Logging    LoggingConfig    `yaml:"logging" toml:"logging"`
	Metrics    MetricsConfig    `yaml:"metrics" toml:"metrics"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr" toml:"http_addr"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path   string `yaml:"path" toml:"path"`
	Driver string `yaml:"driver" toml:"driver"` // "sqlite" (pure Go) or "sqlite3" (cgo)
}

// FetchConfig configures the remote nearby-records client
type FetchConfig struct {
	BaseURL     string        `yaml:"base_url" toml:"base_url"`
	RadiusMiles float64       `yaml:"radius_miles" toml:"radius_miles"`
	Timeout     time.Duration `yaml:"-" toml:"-"`
	Retry       RetryConfig   `yaml:"retry" toml:"retry"`

	TimeoutRaw string `yaml:"timeout" toml:"timeout"`
}

// RetryConfig configures bounded exponential backoff for fetches
type RetryConfig struct {
	MaxAttempts     int           `yaml:"max_attempts" toml:"max_attempts"`
	InitialInterval time.Duration `yaml:"-" toml:"-"`
	MaxInterval     time.Duration `yaml:"-" toml:"-"`

	InitialIntervalRaw string `yaml:"initial_interval" toml:"initial_interval"`
	MaxIntervalRaw     string `yaml:"max_interval" toml:"max_interval"`
}

// DispatcherConfig sizes the transition worker pool
type DispatcherConfig struct {
	Workers    int           `yaml:"workers" toml:"workers"`
	QueueSize  int           `yaml:"queue_size" toml:"queue_size"`
	DedupeTTL  time.Duration `yaml:"-" toml:"-"`
	DedupeSize int           `yaml:"dedupe_size" toml:"dedupe_size"`

	DedupeTTLRaw string `yaml:"dedupe_ttl" toml:"dedupe_ttl"`
}

// RegionsConfig holds region monitoring configuration
type RegionsConfig struct {
	LocationPermission  bool           `yaml:"location_permission" toml:"location_permission"`
	DefaultRadiusMeters float64        `yaml:"default_radius_meters" toml:"default_radius_meters"`
	InitialTriggerEnter *bool          `yaml:"initial_trigger_enter" toml:"initial_trigger_enter"`
	Static              []StaticRegion `yaml:"static" toml:"static"`
}

// TriggerOnEnter reports whether newly registered regions fire ENTER when
// the device is already inside.
func (r RegionsConfig) TriggerOnEnter() bool {
	if r.InitialTriggerEnter == nil {
		return defaultInitialTriggerEnter
	}
	return *r.InitialTriggerEnter
}

// StaticRegion is a region registered at startup
type StaticRegion struct {
	ID           string  `yaml:"id" toml:"id"`
	Lat          float64 `yaml:"lat" toml:"lat"`
	Lon          float64 `yaml:"lon" toml:"lon"`
	RadiusMeters float64 `yaml:"radius_meters" toml:"radius_meters"`
}

// ResyncConfig configures periodic re-sync of occupied regions
type ResyncConfig struct {
	Interval time.Duration `yaml:"-" toml:"-"` // zero disables

	IntervalRaw string `yaml:"interval" toml:"interval"`
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret" toml:"jwt_secret"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// MetricsConfig holds metrics endpoint configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	Path    string `yaml:"path" toml:"path"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are decoded as TOML, everything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg, err := Parse(data, strings.EqualFold(filepath.Ext(path), ".toml"))
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes configuration content. It expands environment variables,
// applies env overrides and defaults, parses durations and validates.
func Parse(data []byte, isTOML bool) (*Config, error) {
	expanded := expandEnvVars(string(data))

	var cfg Config
	if isTOML {
		if _, err := toml.Decode(expanded, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if dbPath := os.Getenv(EnvDBPath); dbPath != "" {
		cfg.Database.Path = dbPath
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

func (c *Config) applyDefaults() {
	if c.Database.Driver == "" {
		c.Database.Driver = DefaultDatabaseDriver
	}
	if c.Fetch.RadiusMiles == 0 {
		c.Fetch.RadiusMiles = DefaultRadiusMiles
	}
	if c.Fetch.Timeout == 0 {
		c.Fetch.Timeout = DefaultFetchTimeout
	}
	if c.Fetch.Retry.MaxAttempts == 0 {
		c.Fetch.Retry.MaxAttempts = DefaultRetryAttempts
	}
	if c.Fetch.Retry.InitialInterval == 0 {
		c.Fetch.Retry.InitialInterval = DefaultRetryInitial
	}
	if c.Fetch.Retry.MaxInterval == 0 {
		c.Fetch.Retry.MaxInterval = DefaultRetryMax
	}
	if c.Dispatcher.Workers == 0 {
		c.Dispatcher.Workers = DefaultWorkers
	}
	if c.Dispatcher.QueueSize == 0 {
		c.Dispatcher.QueueSize = DefaultQueueSize
	}
	if c.Dispatcher.DedupeTTL == 0 {
		c.Dispatcher.DedupeTTL = DefaultDedupeTTL
	}
	if c.Dispatcher.DedupeSize == 0 {
		c.Dispatcher.DedupeSize = DefaultDedupeSize
	}
	if c.Regions.DefaultRadiusMeters == 0 {
		c.Regions.DefaultRadiusMeters = DefaultRegionRadiusMeters
	}
	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLoggingLevel
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return errors.New("server.http_addr is required")
	}

	if c.Database.Path == "" {
		return errors.New("database.path is required")
	}
	switch c.Database.Driver {
	case "sqlite", "sqlite3":
	default:
		return fmt.Errorf("database.driver must be sqlite or sqlite3, got %q", c.Database.Driver)
	}

	if c.Fetch.BaseURL == "" {
		return errors.New("fetch.base_url is required")
	}
	u, err := url.Parse(c.Fetch.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("fetch.base_url must be an http(s) URL, got %q", c.Fetch.BaseURL)
	}
	if c.Fetch.RadiusMiles < 0 {
		return errors.New("fetch.radius_miles must not be negative")
	}
	if c.Fetch.Retry.MaxAttempts < 0 {
		return errors.New("fetch.retry.max_attempts must not be negative")
	}

	if c.Dispatcher.Workers < 0 || c.Dispatcher.QueueSize < 0 || c.Dispatcher.DedupeSize < 0 {
		return errors.New("dispatcher sizes must not be negative")
	}

	if c.Regions.DefaultRadiusMeters < 0 {
		return errors.New("regions.default_radius_meters must not be negative")
	}
	seen := make(map[string]bool, len(c.Regions.Static))
	for i, r := range c.Regions.Static {
		if r.ID == "" {
			return fmt.Errorf("regions.static[%d].id is required", i)
		}
		if seen[r.ID] {
			return fmt.Errorf("regions.static: duplicate id %q", r.ID)
		}
		seen[r.ID] = true
		if r.Lat < -90 || r.Lat > 90 || r.Lon < -180 || r.Lon > 180 {
			return fmt.Errorf("regions.static[%d]: coordinates out of range", i)
		}
		if r.RadiusMeters < 0 {
			return fmt.Errorf("regions.static[%d].radius_meters must not be negative", i)
		}
	}

	if c.Resync.Interval < 0 {
		return errors.New("resync.interval must not be negative")
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error, got %q", c.Logging.Level)
	}

	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with /, got %q", c.Metrics.Path)
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"fetch.timeout", cfg.Fetch.TimeoutRaw, &cfg.Fetch.Timeout},
		{"fetch.retry.initial_interval", cfg.Fetch.Retry.InitialIntervalRaw, &cfg.Fetch.Retry.InitialInterval},
		{"fetch.retry.max_interval", cfg.Fetch.Retry.MaxIntervalRaw, &cfg.Fetch.Retry.MaxInterval},
		{"dispatcher.dedupe_ttl", cfg.Dispatcher.DedupeTTLRaw, &cfg.Dispatcher.DedupeTTL},
		{"resync.interval", cfg.Resync.IntervalRaw, &cfg.Resync.Interval},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}

	return nil
}
