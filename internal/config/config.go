package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds all runtime settings, parsed from the environment.
type Config struct {
	AppEnv   string `env:"APP_ENV" envDefault:"development"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	HTTPListenAddr string `env:"HTTP_LISTEN_ADDR" envDefault:":8080"`
	PublicBasePath string `env:"PUBLIC_BASE_PATH"`

	// Telegram
	TelegramBotToken string        `env:"TELEGRAM_BOT_TOKEN"`
	TelegramDryRun   bool          `env:"TELEGRAM_DRY_RUN" envDefault:"false"`
	TelegramTimeout  time.Duration `env:"TELEGRAM_TIMEOUT" envDefault:"20s"`

	// Bot polling
	PollTimeout      time.Duration `env:"POLL_TIMEOUT" envDefault:"30s"`
	PollInterval     time.Duration `env:"POLL_INTERVAL" envDefault:"1s"`
	PollErrorBackoff time.Duration `env:"POLL_ERROR_BACKOFF" envDefault:"2s"`

	// Storage: Postgres when DATABASE_URL is set, SQLite otherwise.
	DatabaseURL    string `env:"DATABASE_URL"`
	DatabaseSchema string `env:"DATABASE_SCHEMA"`
	SQLitePath     string `env:"SQLITE_PATH" envDefault:"data/app.db"`

	// Redis (optional)
	RedisAddr      string        `env:"REDIS_ADDR"`
	RedisPassword  string        `env:"REDIS_PASSWORD"`
	RedisDB        int           `env:"REDIS_DB" envDefault:"0"`
	RedisTLS       bool          `env:"REDIS_TLS" envDefault:"false"`
	TenantCacheTTL time.Duration `env:"TENANT_CACHE_TTL" envDefault:"5m"`

	MetricsNamespace string `env:"METRICS_NAMESPACE" envDefault:"leadrelay"`
}

// Load parses configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if cfg.TelegramBotToken == "" && !cfg.TelegramDryRun {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN is required (or set TELEGRAM_DRY_RUN=true)")
	}

	return cfg, nil
}
