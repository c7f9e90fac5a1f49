package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTPListenAddr != ":8080" {
		t.Fatalf("unexpected listen addr %q", cfg.HTTPListenAddr)
	}
	if cfg.SQLitePath != "data/app.db" {
		t.Fatalf("unexpected sqlite path %q", cfg.SQLitePath)
	}
	if cfg.PollTimeout.Seconds() != 30 {
		t.Fatalf("unexpected poll timeout %s", cfg.PollTimeout)
	}
	if cfg.MetricsNamespace != "leadrelay" {
		t.Fatalf("unexpected namespace %q", cfg.MetricsNamespace)
	}
}

func TestLoadRequiresTokenUnlessDryRun(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "")
	t.Setenv("TELEGRAM_DRY_RUN", "false")
	if _, err := Load(); err == nil {
		t.Fatal("expected an error without a bot token")
	}

	t.Setenv("TELEGRAM_DRY_RUN", "true")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load in dry-run: %v", err)
	}
	if !cfg.TelegramDryRun {
		t.Fatal("expected dry-run to be enabled")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")
	t.Setenv("HTTP_LISTEN_ADDR", ":9999")
	t.Setenv("TENANT_CACHE_TTL", "90s")
	t.Setenv("REDIS_ADDR", "localhost:6379")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HTTPListenAddr != ":9999" {
		t.Fatalf("unexpected listen addr %q", cfg.HTTPListenAddr)
	}
	if cfg.TenantCacheTTL.Seconds() != 90 {
		t.Fatalf("unexpected cache ttl %s", cfg.TenantCacheTTL)
	}
	if cfg.RedisAddr != "localhost:6379" {
		t.Fatalf("unexpected redis addr %q", cfg.RedisAddr)
	}
}
