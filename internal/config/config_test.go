package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "prism.db", cfg.Store.DatabaseURL)
	assert.Equal(t, time.Hour, cfg.Store.SnapshotTTL())
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.Server.CORSOrigins)
	assert.InDelta(t, 20.0, cfg.Server.RateLimitRPS, 0.001)
	assert.Equal(t, 40, cfg.Server.RateLimitBurst)
	assert.Equal(t, 0, cfg.Optimizer.Year)
	assert.Empty(t, cfg.Optimizer.CostTablesPath)
	assert.Equal(t, 4, cfg.Ingest.MaxConcurrentFiles)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.NoError(t, cfg.Validate("serve"))
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/prism
log:
  level: debug
  format: console
server:
  port: 9090
  cors_origins:
    - https://prism.example.org
optimizer:
  year: 2024
ingest:
  max_concurrent_files: 8
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/prism", cfg.Store.DatabaseURL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, []string{"https://prism.example.org"}, cfg.Server.CORSOrigins)
	assert.Equal(t, 2024, cfg.Optimizer.Year)
	assert.Equal(t, 8, cfg.Ingest.MaxConcurrentFiles)
	// Defaults still apply for unset values
	assert.Equal(t, 60, cfg.Store.SnapshotTTLMins)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: postgres
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	t.Setenv("PRISM_STORE_DRIVER", "sqlite")
	t.Setenv("PRISM_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chdirTemp(t)

	t.Setenv("PRISM_SERVER_PORT", "3000")
	t.Setenv("PRISM_OPTIMIZER_YEAR", "2030")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, 2030, cfg.Optimizer.Year)
}

func TestLoadMalformedFile(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("store: [unterminated"), 0o644))

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: read file")
}

func TestCurrentYear(t *testing.T) {
	now := time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, 2026, OptimizerConfig{}.CurrentYear(now))
	assert.Equal(t, 2020, OptimizerConfig{Year: 2020}.CurrentYear(now))
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
	cfg.Store.Driver = "sqlite"
	cfg.Store.DatabaseURL = "prism.db"
	cfg.Store.SnapshotTTLMins = 60
	cfg.Server.Port = 8080
	cfg.Server.RateLimitRPS = 20
	cfg.Server.RateLimitBurst = 40
	cfg.Ingest.MaxConcurrentFiles = 4
	cfg.Retry.MaxAttempts = 3
	return cfg
}

func TestValidate_AllModes(t *testing.T) {
	cfg := validDefaults()
	for _, mode := range []string{"serve", "ingest", "query", "migrate"} {
		assert.NoError(t, cfg.Validate(mode), mode)
	}
}

func TestValidate_UnknownMode(t *testing.T) {
	err := validDefaults().Validate("unknown")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestValidate_StoreSettings(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "mysql"
	cfg.Store.DatabaseURL = ""
	cfg.Store.SnapshotTTLMins = -1

	err := cfg.Validate("query")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.driver must be sqlite or postgres")
	assert.Contains(t, err.Error(), "store.database_url is required")
	assert.Contains(t, err.Error(), "store.snapshot_ttl_mins must be >= 0")
}

func TestValidate_ServeSettings(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0
	cfg.Server.RateLimitRPS = 0
	cfg.Server.RateLimitBurst = 0

	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
	assert.Contains(t, err.Error(), "server.rate_limit_rps must be > 0")
	assert.Contains(t, err.Error(), "server.rate_limit_burst must be >= 1")

	// Server settings do not matter outside serve.
	assert.NoError(t, cfg.Validate("query"))
}

func TestValidate_IngestConcurrencyBounds(t *testing.T) {
	cfg := validDefaults()

	cfg.Ingest.MaxConcurrentFiles = 0
	err := cfg.Validate("ingest")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "ingest.max_concurrent_files must be between 1 and 32")

	cfg.Ingest.MaxConcurrentFiles = 33
	assert.Error(t, cfg.Validate("ingest"))

	cfg.Ingest.MaxConcurrentFiles = 32
	assert.NoError(t, cfg.Validate("ingest"))
}

func TestValidate_RetryBounds(t *testing.T) {
	cfg := validDefaults()
	cfg.Retry.MaxAttempts = 0

	err := cfg.Validate("migrate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "retry.max_attempts must be between 1 and 10")
}
