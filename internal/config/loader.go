package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies LONGBOX_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known LONGBOX_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Database ──
	setStr(&cfg.Database.DSN, "LONGBOX_DATABASE_DSN")
	setStr(&cfg.Database.DSN, "LONGBOX_DATABASE_URL") // compatibility alias
	setStr(&cfg.Database.Host, "LONGBOX_DATABASE_HOST")
	setInt(&cfg.Database.Port, "LONGBOX_DATABASE_PORT")
	setStr(&cfg.Database.Database, "LONGBOX_DATABASE_NAME")
	setStr(&cfg.Database.User, "LONGBOX_DATABASE_USER")
	setStr(&cfg.Database.Password, "LONGBOX_DATABASE_PASSWORD")
	setStr(&cfg.Database.SSLMode, "LONGBOX_DATABASE_SSLMODE")
	setInt(&cfg.Database.PoolMaxConns, "LONGBOX_DATABASE_POOL_MAX_CONNS")
	setInt(&cfg.Database.PoolMinConns, "LONGBOX_DATABASE_POOL_MIN_CONNS")
	setBool(&cfg.Database.RunMigrations, "LONGBOX_DATABASE_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "LONGBOX_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "LONGBOX_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "LONGBOX_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "LONGBOX_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "LONGBOX_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "LONGBOX_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "LONGBOX_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "LONGBOX_S3_REGION")
	setStr(&cfg.S3.Bucket, "LONGBOX_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "LONGBOX_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "LONGBOX_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "LONGBOX_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "LONGBOX_S3_FORCE_PATH_STYLE")

	// ── Engine ──
	setDuration(&cfg.Engine.OptionsPricingInterval, "LONGBOX_ENGINE_OPTIONS_PRICING_INTERVAL")
	setDuration(&cfg.Engine.OrderMatchingInterval, "LONGBOX_ENGINE_ORDER_MATCHING_INTERVAL")
	setDuration(&cfg.Engine.MarginCheckInterval, "LONGBOX_ENGINE_MARGIN_CHECK_INTERVAL")
	setDuration(&cfg.Engine.LiquidityInterval, "LONGBOX_ENGINE_LIQUIDITY_INTERVAL")
	setDuration(&cfg.Engine.NewsDistributionInterval, "LONGBOX_ENGINE_NEWS_DISTRIBUTION_INTERVAL")
	setDuration(&cfg.Engine.TierSyncInterval, "LONGBOX_ENGINE_TIER_SYNC_INTERVAL")
	setFloat64(&cfg.Engine.RiskFreeRate, "LONGBOX_ENGINE_RISK_FREE_RATE")
	setFloat64(&cfg.Engine.DefaultVolatility, "LONGBOX_ENGINE_DEFAULT_VOLATILITY")
	setFloat64(&cfg.Engine.TradeFeeRate, "LONGBOX_ENGINE_TRADE_FEE_RATE")
	setBool(&cfg.Engine.RefreshMarginCalls, "LONGBOX_ENGINE_REFRESH_MARGIN_CALLS")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "LONGBOX_ARCHIVE_ENABLED")
	setDuration(&cfg.Archive.Interval, "LONGBOX_ARCHIVE_INTERVAL")
	setInt(&cfg.Archive.RetentionDays, "LONGBOX_ARCHIVE_RETENTION_DAYS")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "LONGBOX_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "LONGBOX_SERVER_PORT")
	setStr(&cfg.Server.APIKey, "LONGBOX_SERVER_API_KEY")
	setStringSlice(&cfg.Server.CORSOrigins, "LONGBOX_SERVER_CORS_ORIGINS")
	setInt(&cfg.Server.RateLimitPerMinute, "LONGBOX_SERVER_RATE_LIMIT_PER_MINUTE")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "LONGBOX_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "LONGBOX_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "LONGBOX_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "LONGBOX_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.LogLevel, "LONGBOX_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
