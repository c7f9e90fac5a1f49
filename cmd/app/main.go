package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/NixLone/Inbox-SaaS/internal/bot"
	"github.com/NixLone/Inbox-SaaS/internal/cache"
	"github.com/NixLone/Inbox-SaaS/internal/config"
	"github.com/NixLone/Inbox-SaaS/internal/httpserver"
	"github.com/NixLone/Inbox-SaaS/internal/logging"
	"github.com/NixLone/Inbox-SaaS/internal/metrics"
	"github.com/NixLone/Inbox-SaaS/internal/notify"
	"github.com/NixLone/Inbox-SaaS/internal/repo"
	"github.com/NixLone/Inbox-SaaS/internal/tg"
	"github.com/NixLone/Inbox-SaaS/migrations"

	"github.com/joho/godotenv"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := logging.NewLogger(cfg.AppEnv, cfg.LogLevel)
	logger.Info("starting lead-relay", "env", cfg.AppEnv, "dry_run", cfg.TelegramDryRun)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metricRegistry := metrics.Registry(cfg.MetricsNamespace)

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer store.Close()

	if err := store.RunMigrations(ctx, migrations.Files); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("database migrated")

	var redisClient *cache.Redis
	if cfg.RedisAddr != "" {
		redisClient = cache.New(cache.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			UseTLS:   cfg.RedisTLS,
		}, logger)
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("failed closing redis", "error", err)
			}
		}()
		if err := redisClient.Ping(ctx); err != nil {
			logger.Warn("redis ping failed", "error", err)
		}
	}

	tgClient := tg.New(tg.Config{
		Token:   cfg.TelegramBotToken,
		Timeout: cfg.TelegramTimeout,
		DryRun:  cfg.TelegramDryRun,
	}, logger, metricRegistry)

	binder := notify.New(store, tgClient, logger, metricRegistry)

	leadBot := bot.New(store, tgClient, binder, logger, metricRegistry, bot.Config{
		PollTimeout:  cfg.PollTimeout,
		PollInterval: cfg.PollInterval,
		ErrorBackoff: cfg.PollErrorBackoff,
	})

	botCtx, botCancel := context.WithCancel(ctx)
	defer botCancel()
	go func() {
		if err := leadBot.Run(botCtx); err != nil && botCtx.Err() == nil {
			logger.Error("bot loop stopped", "error", err)
			stop()
		}
	}()

	httpSrv := httpserver.New(cfg.HTTPListenAddr, logger, metricRegistry, httpserver.Dependencies{
		Store:  store,
		Cache:  redisClient,
		Binder: binder,
	}, httpserver.Config{
		BasePath:       cfg.PublicBasePath,
		TenantCacheTTL: cfg.TenantCacheTTL,
	})

	errCh := make(chan error, 1)
	go func() {
		if err := httpSrv.Start(); err != nil {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}

	return nil
}

// openStore selects Postgres when DATABASE_URL is configured and falls back
// to the local SQLite database otherwise.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (repo.Store, error) {
	if cfg.DatabaseURL != "" {
		logger.Info("using postgres store")
		return repo.New(ctx, cfg.DatabaseURL, cfg.DatabaseSchema, logger)
	}
	logger.Info("using sqlite store", "path", cfg.SQLitePath)
	if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755); err != nil {
		return nil, fmt.Errorf("ensure sqlite dir: %w", err)
	}
	return repo.NewSQLite(ctx, cfg.SQLitePath, logger)
}
