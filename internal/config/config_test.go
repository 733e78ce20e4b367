package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsAreValid(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 30*time.Second, cfg.Engine.OptionsPricingInterval.Duration)
	assert.Equal(t, 5*time.Second, cfg.Engine.OrderMatchingInterval.Duration)
	assert.Equal(t, 5*time.Minute, cfg.Engine.MarginCheckInterval.Duration)
	assert.Equal(t, 60*time.Second, cfg.Engine.LiquidityInterval.Duration)
	assert.Equal(t, 2*time.Minute, cfg.Engine.NewsDistributionInterval.Duration)
	assert.Equal(t, 10*time.Minute, cfg.Engine.TierSyncInterval.Duration)

	assert.InDelta(t, 0.05, cfg.Engine.RiskFreeRate, 1e-9)
	assert.InDelta(t, 0.25, cfg.Engine.DefaultVolatility, 1e-9)
	assert.InDelta(t, 0.001, cfg.Engine.TradeFeeRate, 1e-9)
	assert.True(t, cfg.Engine.RefreshMarginCalls)
	assert.False(t, cfg.Archive.Enabled)
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
log_level = "debug"

[database]
host = "db.internal"
port = 5433

[engine]
order_matching_interval = "2s"
trade_fee_rate = 0.002
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, 5433, cfg.Database.Port)
	assert.Equal(t, 2*time.Second, cfg.Engine.OrderMatchingInterval.Duration)
	assert.InDelta(t, 0.002, cfg.Engine.TradeFeeRate, 1e-9)

	// Untouched fields keep their defaults.
	assert.Equal(t, "longbox", cfg.Database.Database)
	assert.Equal(t, 30*time.Second, cfg.Engine.OptionsPricingInterval.Duration)
}

func TestLoadMissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.Error(t, err)
}

func TestEnvOverridesWinOverFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[redis]
addr = "file-redis:6379"
`), 0o600))

	t.Setenv("LONGBOX_REDIS_ADDR", "env-redis:6380")
	t.Setenv("LONGBOX_DATABASE_PASSWORD", "s3cret")
	t.Setenv("LONGBOX_ENGINE_MARGIN_CHECK_INTERVAL", "90s")
	t.Setenv("LONGBOX_SERVER_CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("LONGBOX_ARCHIVE_ENABLED", "true")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "env-redis:6380", cfg.Redis.Addr)
	assert.Equal(t, "s3cret", cfg.Database.Password)
	assert.Equal(t, 90*time.Second, cfg.Engine.MarginCheckInterval.Duration)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
	assert.True(t, cfg.Archive.Enabled)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Config)
		wantMsg string
	}{
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.LogLevel = "verbose" },
			wantMsg: "unknown log_level",
		},
		{
			name:    "zero interval",
			mutate:  func(c *Config) { c.Engine.OrderMatchingInterval.Duration = 0 },
			wantMsg: "order_matching_interval must be positive",
		},
		{
			name:    "negative fee",
			mutate:  func(c *Config) { c.Engine.TradeFeeRate = -0.01 },
			wantMsg: "trade_fee_rate must be >= 0",
		},
		{
			name:    "zero default volatility",
			mutate:  func(c *Config) { c.Engine.DefaultVolatility = 0 },
			wantMsg: "default_volatility must be > 0",
		},
		{
			name:    "missing redis addr",
			mutate:  func(c *Config) { c.Redis.Addr = "" },
			wantMsg: "redis: addr must not be empty",
		},
		{
			name: "archive enabled without bucket",
			mutate: func(c *Config) {
				c.Archive.Enabled = true
				c.S3.Bucket = ""
			},
			wantMsg: "s3: bucket must not be empty",
		},
		{
			name:    "bad server port",
			mutate:  func(c *Config) { c.Server.Port = 70000 },
			wantMsg: "server: port must be 1-65535",
		},
		{
			name: "pool min above max",
			mutate: func(c *Config) {
				c.Database.PoolMinConns = 20
				c.Database.PoolMaxConns = 10
			},
			wantMsg: "pool_min_conns must not exceed pool_max_conns",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Defaults()
			tc.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantMsg)
		})
	}
}

func TestValidateReportsAllProblemsAtOnce(t *testing.T) {
	cfg := Defaults()
	cfg.LogLevel = "loud"
	cfg.Redis.Addr = ""
	cfg.Engine.TierSyncInterval.Duration = -time.Second

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown log_level")
	assert.Contains(t, err.Error(), "redis: addr")
	assert.Contains(t, err.Error(), "tier_sync_interval")
}

func TestDSNValidationSkippedWhenDSNSet(t *testing.T) {
	cfg := Defaults()
	cfg.Database.DSN = "postgres://u:p@remote:5432/longbox"
	cfg.Database.Host = ""
	cfg.Database.Database = ""

	require.NoError(t, cfg.Validate())
}

func TestDurationRoundTrip(t *testing.T) {
	d := duration{90 * time.Second}
	text, err := d.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "1m30s", string(text))

	var back duration
	require.NoError(t, back.UnmarshalText(text))
	assert.Equal(t, d.Duration, back.Duration)

	assert.Error(t, back.UnmarshalText([]byte("not-a-duration")))
}
