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
// built-in defaults, applies MICROFLOW_* environment variable overrides, and
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

// applyEnvOverrides reads well-known MICROFLOW_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Instruments ──
	setStringSlice(&cfg.Instruments, "MICROFLOW_INSTRUMENTS")

	// ── Feed ──
	setStr(&cfg.Feed.WSURL, "MICROFLOW_FEED_WS_URL")
	setStr(&cfg.Feed.QuoteSuffix, "MICROFLOW_FEED_QUOTE_SUFFIX")
	setInt(&cfg.Feed.Depth, "MICROFLOW_FEED_DEPTH")
	setDuration(&cfg.Feed.IdleTimeout, "MICROFLOW_FEED_IDLE_TIMEOUT")
	setDuration(&cfg.Feed.BackoffFloor, "MICROFLOW_FEED_BACKOFF_FLOOR")
	setDuration(&cfg.Feed.BackoffCeiling, "MICROFLOW_FEED_BACKOFF_CEILING")

	// ── Features ──
	setDuration(&cfg.Features.Retention, "MICROFLOW_FEATURES_RETENTION")
	setDuration(&cfg.Features.PublishInterval, "MICROFLOW_FEATURES_PUBLISH_INTERVAL")
	setStr(&cfg.Features.SnapshotPath, "MICROFLOW_FEATURES_SNAPSHOT_PATH")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "MICROFLOW_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "MICROFLOW_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "MICROFLOW_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "MICROFLOW_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "MICROFLOW_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "MICROFLOW_REDIS_TLS_ENABLED")
	setStr(&cfg.Redis.SnapshotChannel, "MICROFLOW_REDIS_SNAPSHOT_CHANNEL")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "MICROFLOW_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "MICROFLOW_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "MICROFLOW_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "MICROFLOW_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "MICROFLOW_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "MICROFLOW_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "MICROFLOW_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "MICROFLOW_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "MICROFLOW_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "MICROFLOW_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "MICROFLOW_POSTGRES_RUN_MIGRATIONS")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "MICROFLOW_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "MICROFLOW_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "MICROFLOW_S3_REGION")
	setStr(&cfg.S3.Bucket, "MICROFLOW_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "MICROFLOW_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "MICROFLOW_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "MICROFLOW_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "MICROFLOW_S3_FORCE_PATH_STYLE")
	setStr(&cfg.S3.ObjectKey, "MICROFLOW_S3_OBJECT_KEY")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "MICROFLOW_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "MICROFLOW_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "MICROFLOW_SERVER_CORS_ORIGINS")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "MICROFLOW_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "MICROFLOW_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "MICROFLOW_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "MICROFLOW_NOTIFY_EVENTS")
	setDuration(&cfg.Notify.StaleAfter, "MICROFLOW_NOTIFY_STALE_AFTER")
	setDuration(&cfg.Notify.CheckInterval, "MICROFLOW_NOTIFY_CHECK_INTERVAL")

	// ── Top-level ──
	setStr(&cfg.Mode, "MICROFLOW_MODE")
	setStr(&cfg.LogLevel, "MICROFLOW_LOG_LEVEL")
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
