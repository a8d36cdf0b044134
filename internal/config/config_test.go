package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(origDir) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "enrich.db", cfg.Store.SQLitePath)
	assert.Equal(t, int32(10), cfg.Store.MaxConns)
	assert.Equal(t, "store", cfg.Cache.Backend)
	assert.Equal(t, 3600, cfg.Cache.SweepIntervalSecs)
	assert.Equal(t, "enrich:cache", cfg.Redis.Prefix)
	assert.Equal(t, 4, cfg.Waterfall.FieldConcurrency)
	assert.True(t, cfg.Waterfall.AcceptBestEffort)
	assert.Zero(t, cfg.Waterfall.MaxCostPerJob)
	assert.Equal(t, 5, cfg.Circuit.FailureThreshold)
	assert.Equal(t, 60, cfg.Circuit.OpenDurationSecs)
	assert.Equal(t, 2, cfg.Retry.MaxAttempts)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, []string{"*"}, cfg.Server.CORSOrigins)
	assert.False(t, cfg.Monitor.Enabled)
	assert.Equal(t, 300, cfg.Monitor.CheckIntervalSecs)
	assert.Equal(t, 24, cfg.Monitor.LookbackWindowHours)
	assert.InDelta(t, 0.2, cfg.Monitor.FailureRateThreshold, 1e-9)
	assert.InDelta(t, 0.5, cfg.Monitor.ExhaustionRateThreshold, 1e-9)
	assert.Empty(t, cfg.Providers)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
  sqlite_path: /tmp/x.db
log:
  level: debug
  format: console
server:
  port: 9090
waterfall:
  config_path: waterfall.yaml
  accept_best_effort: false
  max_cost_per_job: 0.25
providers:
  - id: clearbit
    name: Clearbit
    base_url: https://clearbit.example
    api_key: secret
    fields: [email, title]
    cost_per_lookup: 0.05
    priority: 1
  - id: fixture
    type: static
    fields: [phone]
    values:
      phone: "+1 555 0100"
    confidence: 0.9
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "/tmp/x.db", cfg.Store.SQLitePath)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "waterfall.yaml", cfg.Waterfall.ConfigPath)
	assert.False(t, cfg.Waterfall.AcceptBestEffort)
	assert.InDelta(t, 0.25, cfg.Waterfall.MaxCostPerJob, 1e-9)
	// Defaults still apply for unset values
	assert.Equal(t, 4, cfg.Waterfall.FieldConcurrency)

	require.Len(t, cfg.Providers, 2)
	assert.Equal(t, "clearbit", cfg.Providers[0].ID)
	assert.Equal(t, []string{"email", "title"}, cfg.Providers[0].Fields)
	assert.InDelta(t, 0.05, cfg.Providers[0].CostPerLookup, 1e-9)
	assert.Equal(t, "static", cfg.Providers[1].Type)
	assert.Equal(t, "+1 555 0100", cfg.Providers[1].Values["phone"])
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	t.Setenv("ENRICH_STORE_DRIVER", "postgres")
	t.Setenv("ENRICH_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chdirTemp(t)

	t.Setenv("ENRICH_SERVER_PORT", "3000")
	t.Setenv("ENRICH_CIRCUIT_FAILURE_THRESHOLD", "3")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, 3, cfg.Circuit.FailureThreshold)
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("store: [unclosed"), 0o644))

	_, err := Load()
	assert.Error(t, err)
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config with all defaults populated for validation tests.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Store.Driver = "memory"
	cfg.Cache.Backend = "memory"
	cfg.Waterfall.FieldConcurrency = 4
	cfg.Circuit.FailureThreshold = 5
	cfg.Circuit.OpenDurationSecs = 60
	cfg.Server.Port = 8080
	return cfg
}

func TestValidate_Defaults(t *testing.T) {
	cfg := validDefaults()
	assert.NoError(t, cfg.Validate("serve"))
	assert.NoError(t, cfg.Validate("enrich"))
	assert.NoError(t, cfg.Validate("store"))
}

func TestValidate_Store(t *testing.T) {
	tests := []struct {
		name    string
		driver  string
		url     string
		path    string
		wantErr string
	}{
		{name: "postgres with url", driver: "postgres", url: "postgres://localhost/enrich"},
		{name: "postgres without url", driver: "postgres", wantErr: "store.database_url is required"},
		{name: "sqlite with path", driver: "sqlite", path: "enrich.db"},
		{name: "sqlite without path", driver: "sqlite", wantErr: "store.sqlite_path is required"},
		{name: "unknown driver", driver: "mysql", wantErr: `store.driver "mysql"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validDefaults()
			cfg.Store.Driver = tt.driver
			cfg.Store.DatabaseURL = tt.url
			cfg.Store.SQLitePath = tt.path

			err := cfg.Validate("store")
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidate_EnrichCollectsAllProblems(t *testing.T) {
	cfg := validDefaults()
	cfg.Cache.Backend = "redis"
	cfg.Waterfall.FieldConcurrency = 0
	cfg.Waterfall.MaxCostPerJob = -1
	cfg.Circuit.FailureThreshold = 0
	cfg.Providers = []ProviderConfig{
		{ID: "a", BaseURL: "http://a"},
		{ID: "a", Type: "static"},
		{Type: "http"},
		{ID: "b"},
		{ID: "c", Type: "grpc"},
	}

	err := cfg.Validate("enrich")
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "redis.addr is required")
	assert.Contains(t, msg, "waterfall.field_concurrency")
	assert.Contains(t, msg, "waterfall.max_cost_per_job")
	assert.Contains(t, msg, "circuit.failure_threshold")
	assert.Contains(t, msg, `providers[1].id "a" is duplicated`)
	assert.Contains(t, msg, "providers[2].id is required")
	assert.Contains(t, msg, "providers[3].base_url is required")
	assert.Contains(t, msg, `providers[4].type "grpc"`)
}

func TestValidate_StoreModeSkipsEngineChecks(t *testing.T) {
	cfg := validDefaults()
	cfg.Cache.Backend = "bogus"
	cfg.Server.Port = 0

	assert.NoError(t, cfg.Validate("store"))
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port")
}

func TestValidateServe_MonitoringLookback(t *testing.T) {
	cfg := validDefaults()
	cfg.Monitor.Enabled = true

	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "monitoring.lookback_window_hours")

	cfg.Monitor.LookbackWindowHours = 24
	assert.NoError(t, cfg.Validate("serve"))
}
