// Package config defines the top-level configuration for the feature engine
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by MICROFLOW_* environment
// variables.
type Config struct {
	Instruments []string       `toml:"instruments"`
	Feed        FeedConfig     `toml:"feed"`
	Features    FeaturesConfig `toml:"features"`
	Redis       RedisConfig    `toml:"redis"`
	Postgres    PostgresConfig `toml:"postgres"`
	S3          S3Config       `toml:"s3"`
	Server      ServerConfig   `toml:"server"`
	Notify      NotifyConfig   `toml:"notify"`
	Mode        string         `toml:"mode"`
	LogLevel    string         `toml:"log_level"`
}

// FeedConfig holds exchange stream parameters.
type FeedConfig struct {
	WSURL       string   `toml:"ws_url"`
	QuoteSuffix string   `toml:"quote_suffix"`
	Depth       int      `toml:"depth"`
	IdleTimeout duration `toml:"idle_timeout"`

	// BackoffFloor is the initial reconnect delay; BackoffCeiling caps the
	// exponential growth.
	BackoffFloor   duration `toml:"backoff_floor"`
	BackoffCeiling duration `toml:"backoff_ceiling"`
}

// FeaturesConfig holds aggregation and publishing parameters.
type FeaturesConfig struct {
	// Retention is the sliding-window length for trade aggregation.
	Retention duration `toml:"retention"`

	// PublishInterval is the snapshot publish period.
	PublishInterval duration `toml:"publish_interval"`

	// SnapshotPath is the snapshot file destination.
	SnapshotPath string `toml:"snapshot_path"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`

	// SnapshotChannel is the pub/sub channel announcing snapshot publishes.
	SnapshotChannel string `toml:"snapshot_channel"`
}

// PostgresConfig holds PostgreSQL connection parameters. The store is
// optional; when disabled, snapshots only go to the file and the cache.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled"`
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// S3Config holds S3-compatible object storage parameters. Optional.
type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`

	// ObjectKey is where the latest snapshot is kept in the bucket.
	ObjectKey string `toml:"object_key"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
}

// NotifyConfig holds notification channel credentials and staleness alerting
// parameters.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`

	// StaleAfter is how long an instrument may go without an update before
	// an alert fires. CheckInterval is the scan period.
	StaleAfter    duration `toml:"stale_after"`
	CheckInterval duration `toml:"check_interval"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "60s", "10s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "60s" or "5m".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values. These
// match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Instruments: []string{},
		Feed: FeedConfig{
			WSURL:          "wss://stream.bybit.com/v5/public/linear",
			QuoteSuffix:    "USDT",
			Depth:          50,
			IdleTimeout:    duration{90 * time.Second},
			BackoffFloor:   duration{5 * time.Second},
			BackoffCeiling: duration{60 * time.Second},
		},
		Features: FeaturesConfig{
			Retention:       duration{60 * time.Second},
			PublishInterval: duration{10 * time.Second},
			SnapshotPath:    "data/features.json",
		},
		Redis: RedisConfig{
			Addr:            "localhost:6379",
			DB:              0,
			PoolSize:        20,
			MaxRetries:      3,
			TLSEnabled:      false,
			SnapshotChannel: "microflow:snapshots",
		},
		Postgres: PostgresConfig{
			Enabled:       false,
			Host:          "localhost",
			Port:          5432,
			Database:      "microflow",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		S3: S3Config{
			Enabled:        false,
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "microflow-data",
			UseSSL:         false,
			ForcePathStyle: true,
			ObjectKey:      "snapshots/features.json",
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000"},
		},
		Notify: NotifyConfig{
			Events:        []string{"feature_stale", "engine_stop"},
			StaleAfter:    duration{2 * time.Minute},
			CheckInterval: duration{30 * time.Second},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"engine": true,
	"serve":  true,
	"full":   true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found. A non-nil result is fatal
// at startup.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: engine, serve, full)", c.Mode))
	}

	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Instruments
	if len(c.Instruments) == 0 {
		errs = append(errs, "instruments: at least one instrument must be configured")
	}
	seen := make(map[string]bool, len(c.Instruments))
	for _, inst := range c.Instruments {
		if strings.TrimSpace(inst) == "" {
			errs = append(errs, "instruments: empty instrument name")
			continue
		}
		if seen[inst] {
			errs = append(errs, fmt.Sprintf("instruments: duplicate instrument %q", inst))
		}
		seen[inst] = true
	}

	// Feed
	if c.Feed.WSURL == "" {
		errs = append(errs, "feed: ws_url must not be empty")
	}
	if c.Feed.Depth <= 0 {
		errs = append(errs, fmt.Sprintf("feed: depth must be positive, got %d", c.Feed.Depth))
	}
	if c.Feed.BackoffFloor.Duration <= 0 {
		errs = append(errs, "feed: backoff_floor must be positive")
	}
	if c.Feed.BackoffCeiling.Duration < c.Feed.BackoffFloor.Duration {
		errs = append(errs, "feed: backoff_ceiling must not be less than backoff_floor")
	}
	if c.Feed.IdleTimeout.Duration < 0 {
		errs = append(errs, "feed: idle_timeout must not be negative")
	}

	// Features
	if c.Features.Retention.Duration <= 0 {
		errs = append(errs, "features: retention must be positive")
	}
	if c.Features.PublishInterval.Duration <= 0 {
		errs = append(errs, "features: publish_interval must be positive")
	}
	if strings.TrimSpace(c.Features.SnapshotPath) == "" {
		errs = append(errs, "features: snapshot_path must not be empty")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}
	if c.Redis.SnapshotChannel == "" {
		errs = append(errs, "redis: snapshot_channel must not be empty")
	}

	// Postgres
	if c.Postgres.Enabled {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	// S3
	if c.S3.Enabled {
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
		if c.S3.Region == "" {
			errs = append(errs, "s3: region must not be empty")
		}
		if c.S3.ObjectKey == "" {
			errs = append(errs, "s3: object_key must not be empty")
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	// Notify
	if c.Notify.StaleAfter.Duration <= 0 {
		errs = append(errs, "notify: stale_after must be positive")
	}
	if c.Notify.CheckInterval.Duration <= 0 {
		errs = append(errs, "notify: check_interval must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
