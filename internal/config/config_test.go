// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML and TOML loading, env var expansion, defaults, durations and validation

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalYAML = `
server:
  http_addr: "127.0.0.1:8088"
database:
  path: "./regionsync.db"
fetch:
  base_url: "http://localhost:9090"
`

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_ValidYAML(t *testing.T) {
	path := writeConfig(t, "regionsync.yaml", `
server:
  http_addr: "0.0.0.0:8088"

database:
  path: "/var/lib/regionsync/regionsync.db"
  driver: "sqlite3"

fetch:
  base_url: "https://ads.example.com/api/"
  radius_miles: 2.5
  timeout: "3s"
  retry:
    max_attempts: 4
    initial_interval: "250ms"
    max_interval: "5s"

dispatcher:
  workers: 8
  queue_size: 128
  dedupe_ttl: "30s"
  dedupe_size: 256

regions:
  location_permission: true
  default_radius_meters: 500
  initial_trigger_enter: false
  static:
    - id: "storeA"
      lat: 40.0
      lon: -73.0
    - id: "storeB"
      lat: 40.5
      lon: -73.5
      radius_meters: 200

resync:
  interval: "2m"

auth:
  jwt_secret: "s3cret"

logging:
  level: "debug"
  format: "json"

metrics:
  enabled: true
  path: "/metrics"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8088", cfg.Server.HTTPAddr)
	assert.Equal(t, "sqlite3", cfg.Database.Driver)
	assert.Equal(t, "https://ads.example.com/api/", cfg.Fetch.BaseURL)
	assert.Equal(t, 2.5, cfg.Fetch.RadiusMiles)
	assert.Equal(t, 3*time.Second, cfg.Fetch.Timeout)
	assert.Equal(t, 4, cfg.Fetch.Retry.MaxAttempts)
	assert.Equal(t, 250*time.Millisecond, cfg.Fetch.Retry.InitialInterval)
	assert.Equal(t, 5*time.Second, cfg.Fetch.Retry.MaxInterval)
	assert.Equal(t, 8, cfg.Dispatcher.Workers)
	assert.Equal(t, 128, cfg.Dispatcher.QueueSize)
	assert.Equal(t, 30*time.Second, cfg.Dispatcher.DedupeTTL)
	assert.Equal(t, 256, cfg.Dispatcher.DedupeSize)
	assert.True(t, cfg.Regions.LocationPermission)
	assert.Equal(t, 500.0, cfg.Regions.DefaultRadiusMeters)
	assert.False(t, cfg.Regions.TriggerOnEnter())
	require.Len(t, cfg.Regions.Static, 2)
	assert.Equal(t, StaticRegion{ID: "storeB", Lat: 40.5, Lon: -73.5, RadiusMeters: 200}, cfg.Regions.Static[1])
	assert.Equal(t, 2*time.Minute, cfg.Resync.Interval)
	assert.Equal(t, "s3cret", cfg.Auth.JWTSecret)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.True(t, cfg.Metrics.Enabled)
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "regionsync.yaml", minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, DefaultDatabaseDriver, cfg.Database.Driver)
	assert.Equal(t, DefaultRadiusMiles, cfg.Fetch.RadiusMiles)
	assert.Equal(t, DefaultFetchTimeout, cfg.Fetch.Timeout)
	assert.Equal(t, 1, cfg.Fetch.Retry.MaxAttempts)
	assert.Equal(t, DefaultWorkers, cfg.Dispatcher.Workers)
	assert.Equal(t, DefaultQueueSize, cfg.Dispatcher.QueueSize)
	assert.Equal(t, DefaultDedupeTTL, cfg.Dispatcher.DedupeTTL)
	assert.Equal(t, float64(DefaultRegionRadiusMeters), cfg.Regions.DefaultRadiusMeters)
	assert.True(t, cfg.Regions.TriggerOnEnter())
	assert.False(t, cfg.Regions.LocationPermission)
	assert.Zero(t, cfg.Resync.Interval)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
}

func TestLoad_TOML(t *testing.T) {
	path := writeConfig(t, "regionsync.toml", `
[server]
http_addr = "127.0.0.1:8088"

[database]
path = ":memory:"

[fetch]
base_url = "http://localhost:9090"
timeout = "1s"

[regions]
location_permission = true

[[regions.static]]
id = "storeA"
lat = 40.0
lon = -73.0
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":memory:", cfg.Database.Path)
	assert.Equal(t, time.Second, cfg.Fetch.Timeout)
	assert.True(t, cfg.Regions.LocationPermission)
	require.Len(t, cfg.Regions.Static, 1)
	assert.Equal(t, "storeA", cfg.Regions.Static[0].ID)
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("TEST_ADSERVER_URL", "http://ads.internal:9090")
	t.Setenv("TEST_JWT_SECRET", "from-env")

	path := writeConfig(t, "regionsync.yaml", `
server:
  http_addr: "127.0.0.1:8088"
database:
  path: "./regionsync.db"
fetch:
  base_url: "${TEST_ADSERVER_URL}"
auth:
  jwt_secret: "${TEST_JWT_SECRET}"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://ads.internal:9090", cfg.Fetch.BaseURL)
	assert.Equal(t, "from-env", cfg.Auth.JWTSecret)
}

func TestLoad_DBPathOverride(t *testing.T) {
	t.Setenv(EnvDBPath, "/tmp/override.db")

	cfg, err := Load(writeConfig(t, "regionsync.yaml", minimalYAML))
	require.NoError(t, err)
	assert.Equal(t, "/tmp/override.db", cfg.Database.Path)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_InvalidDuration(t *testing.T) {
	_, err := Load(writeConfig(t, "regionsync.yaml", minimalYAML+`
resync:
  interval: "soon"
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "resync.interval")
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg, err := Parse([]byte(minimalYAML), false)
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"ok", func(c *Config) {}, ""},
		{"missing http addr", func(c *Config) { c.Server.HTTPAddr = "" }, "server.http_addr"},
		{"missing db path", func(c *Config) { c.Database.Path = "" }, "database.path"},
		{"bad driver", func(c *Config) { c.Database.Driver = "postgres" }, "database.driver"},
		{"missing base url", func(c *Config) { c.Fetch.BaseURL = "" }, "fetch.base_url"},
		{"non-http base url", func(c *Config) { c.Fetch.BaseURL = "ftp://x" }, "fetch.base_url"},
		{"negative retry", func(c *Config) { c.Fetch.Retry.MaxAttempts = -1 }, "max_attempts"},
		{"static without id", func(c *Config) {
			c.Regions.Static = []StaticRegion{{Lat: 1, Lon: 1}}
		}, "regions.static[0].id"},
		{"duplicate static id", func(c *Config) {
			c.Regions.Static = []StaticRegion{{ID: "a"}, {ID: "a"}}
		}, "duplicate"},
		{"static out of range", func(c *Config) {
			c.Regions.Static = []StaticRegion{{ID: "a", Lat: 91}}
		}, "out of range"},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }, "logging.level"},
		{"bad metrics path", func(c *Config) {
			c.Metrics.Enabled = true
			c.Metrics.Path = "metrics"
		}, "metrics.path"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestExpandEnvVars_Unset(t *testing.T) {
	assert.Equal(t, "a--b", expandEnvVars("a-${REGIONSYNC_SURELY_UNSET_VAR}-b"))
}
