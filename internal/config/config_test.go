package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	cfg := Defaults()
	cfg.Instruments = []string{"BTC", "ETH"}
	return cfg
}

func TestDefaultsAreValidWithInstruments(t *testing.T) {
	cfg := validConfig()
	assert.NoError(t, cfg.Validate())
}

func TestValidateRejectsEmptyInstruments(t *testing.T) {
	cfg := Defaults()

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least one instrument")
}

func TestValidateRejectsNonPositiveDurations(t *testing.T) {
	cfg := validConfig()
	cfg.Features.Retention = duration{0}
	cfg.Features.PublishInterval = duration{-time.Second}

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "retention must be positive")
	assert.Contains(t, err.Error(), "publish_interval must be positive")
}

func TestValidateRejectsDuplicateInstruments(t *testing.T) {
	cfg := validConfig()
	cfg.Instruments = []string{"BTC", "BTC"}

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `duplicate instrument "BTC"`)
}

func TestValidateRejectsUnknownMode(t *testing.T) {
	cfg := validConfig()
	cfg.Mode = "turbo"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown mode "turbo"`)
}

func TestValidateRejectsBackoffCeilingBelowFloor(t *testing.T) {
	cfg := validConfig()
	cfg.Feed.BackoffFloor = duration{10 * time.Second}
	cfg.Feed.BackoffCeiling = duration{5 * time.Second}

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "backoff_ceiling")
}

func TestValidateCollectsAllProblems(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "bogus"
	cfg.Feed.Depth = 0

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
	assert.Contains(t, err.Error(), "instrument")
	assert.Contains(t, err.Error(), "depth")
}

func TestValidateSkipsDisabledSections(t *testing.T) {
	cfg := validConfig()
	cfg.Postgres.Enabled = false
	cfg.Postgres.Database = ""
	cfg.S3.Enabled = false
	cfg.S3.Bucket = ""

	assert.NoError(t, cfg.Validate())
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
instruments = ["BTC", "SOL"]
mode = "engine"

[features]
retention = "90s"

[feed]
depth = 25
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"BTC", "SOL"}, cfg.Instruments)
	assert.Equal(t, "engine", cfg.Mode)
	assert.Equal(t, 90*time.Second, cfg.Features.Retention.Duration)
	assert.Equal(t, 25, cfg.Feed.Depth)

	// Untouched fields keep their defaults.
	assert.Equal(t, 10*time.Second, cfg.Features.PublishInterval.Duration)
	assert.Equal(t, "wss://stream.bybit.com/v5/public/linear", cfg.Feed.WSURL)
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`instruments = ["BTC"]`), 0o644))

	t.Setenv("MICROFLOW_INSTRUMENTS", "ETH, SOL")
	t.Setenv("MICROFLOW_MODE", "serve")
	t.Setenv("MICROFLOW_FEATURES_PUBLISH_INTERVAL", "30s")
	t.Setenv("MICROFLOW_REDIS_ADDR", "redis.internal:6380")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"ETH", "SOL"}, cfg.Instruments)
	assert.Equal(t, "serve", cfg.Mode)
	assert.Equal(t, 30*time.Second, cfg.Features.PublishInterval.Duration)
	assert.Equal(t, "redis.internal:6380", cfg.Redis.Addr)
}

func TestLoadMissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	assert.Error(t, err)
}
