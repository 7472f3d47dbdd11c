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
	// Change to temp dir so no stray config.yaml is found
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "floodcover.db", cfg.Store.DatabaseURL)
	assert.Equal(t, 10, cfg.Store.KeepSnapshots)
	assert.InDelta(t, 12.0, cfg.Engine.DefaultThresholdFeet, 0.001)
	assert.Equal(t, "https://waterservices.usgs.gov/nwis/iv/", cfg.Oracle.BaseURL)
	assert.Equal(t, 300, cfg.Oracle.UpdateIntervalSecs)
	assert.Equal(t, 3, cfg.Oracle.MaxRetries)
	assert.Equal(t, 4, cfg.Oracle.BatchConcurrency)
	assert.Equal(t, "floodcover", cfg.Events.TopicPrefix)
	assert.Empty(t, cfg.Events.BrokerURL)
	assert.InDelta(t, 0.5, cfg.Monitoring.FailureRateThreshold, 0.001)
	assert.Equal(t, 1800, cfg.Monitoring.StaleAfterSecs)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, []string{"*"}, cfg.Server.CORSOrigins)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/floodcover
engine:
  admin: aaaaa-aa
  oracle_updaters: [feeder-1, feeder-2]
oracle:
  update_interval_secs: 120
  controllers: [ctrl]
log:
  level: debug
  format: console
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "aaaaa-aa", cfg.Engine.Admin)
	assert.Equal(t, []string{"feeder-1", "feeder-2"}, cfg.Engine.OracleUpdaters)
	assert.Equal(t, 120, cfg.Oracle.UpdateIntervalSecs)
	assert.Equal(t, []string{"ctrl"}, cfg.Oracle.Controllers)
	assert.Equal(t, "debug", cfg.Log.Level)
	// Defaults still apply for unset values
	assert.Equal(t, 3, cfg.Oracle.MaxRetries)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("FLOODCOVER_STORE_DRIVER", "postgres")
	t.Setenv("FLOODCOVER_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chdirTemp(t)

	t.Setenv("FLOODCOVER_SERVER_PORT", "3000")
	t.Setenv("FLOODCOVER_ENGINE_ADMIN", "bootstrap")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, "bootstrap", cfg.Engine.Admin)
}

func TestLoadMalformedFile(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("store: [unclosed"), 0644))

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: read file")
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
	cfg.Store.DatabaseURL = "floodcover.db"
	cfg.Engine.Admin = "aaaaa-aa"
	cfg.Engine.DefaultThresholdFeet = 12
	cfg.Oracle.BaseURL = "https://waterservices.usgs.gov/nwis/iv/"
	cfg.Oracle.UpdateIntervalSecs = 300
	cfg.Oracle.BatchConcurrency = 4
	cfg.Oracle.RateLimitPerSec = 2
	cfg.Monitoring.CheckIntervalSecs = 60
	cfg.Monitoring.FailureRateThreshold = 0.5
	cfg.Server.Port = 8080
	return cfg
}

func TestValidateServe_AllPresent(t *testing.T) {
	assert.NoError(t, validDefaults().Validate("serve"))
}

func TestValidateServe_MissingFields(t *testing.T) {
	cfg := validDefaults()
	cfg.Engine.Admin = ""
	cfg.Store.DatabaseURL = ""
	cfg.Oracle.UpdateIntervalSecs = 59

	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "engine.admin is required")
	assert.Contains(t, err.Error(), "store.database_url is required")
	assert.Contains(t, err.Error(), "update_interval_secs must be >= 60")
}

func TestValidateServe_Bounds(t *testing.T) {
	cfg := validDefaults()

	cfg.Engine.DefaultThresholdFeet = 101
	assert.ErrorContains(t, cfg.Validate("serve"), "default_threshold_feet")
	cfg.Engine.DefaultThresholdFeet = 100
	assert.NoError(t, cfg.Validate("serve"))

	cfg.Server.Port = 0
	assert.ErrorContains(t, cfg.Validate("serve"), "server.port")
	cfg.Server.Port = 8080

	cfg.Monitoring.FailureRateThreshold = 1.5
	assert.ErrorContains(t, cfg.Validate("serve"), "failure_rate_threshold")
	cfg.Monitoring.FailureRateThreshold = 0.5

	cfg.Oracle.BatchConcurrency = 0
	assert.ErrorContains(t, cfg.Validate("serve"), "batch_concurrency")
}

func TestValidateStore(t *testing.T) {
	cfg := validDefaults()
	cfg.Engine.Admin = ""
	assert.NoError(t, cfg.Validate("store"))

	cfg.Store.Driver = "mysql"
	assert.ErrorContains(t, cfg.Validate("store"), "store.driver")
}

func TestValidateFetch(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = ""
	assert.NoError(t, cfg.Validate("fetch"))

	cfg.Oracle.BaseURL = ""
	assert.ErrorContains(t, cfg.Validate("fetch"), "oracle.base_url")
}

func TestValidateUnknownMode(t *testing.T) {
	err := validDefaults().Validate("unknown")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}
