package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadAndValidate(t *testing.T) {
	path := writeConfig(t, `
api:
  base_url: "http://backend:8000"
  timeout: 5s

panels:
  steam:
    interval: 120s
  news:
    cron: "*/15 * * * *"

refresh:
  discard_stale: true

watchlist:
  backend: sqlite

trend:
  default_days: 14

monitor:
  enabled: true
  threshold: 2.5

telegram:
  enabled: true
  bot_token: "test_token"
  chat_id: "12345"

logging:
  level: "debug"
  format: "text"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.API.BaseURL != "http://backend:8000" {
		t.Errorf("Unexpected base url: %s", cfg.API.BaseURL)
	}
	if cfg.API.Timeout != 5*time.Second {
		t.Errorf("Unexpected timeout: %v", cfg.API.Timeout)
	}
	if cfg.Panels.Steam.Interval != 2*time.Minute {
		t.Errorf("Unexpected steam interval: %v", cfg.Panels.Steam.Interval)
	}
	if cfg.Panels.WeeklyDigest.Interval != 30*time.Minute {
		t.Errorf("Expected default digest interval, got %v", cfg.Panels.WeeklyDigest.Interval)
	}
	if !cfg.Refresh.DiscardStale {
		t.Error("Expected discard_stale to be true")
	}
	if cfg.Monitor.Threshold != 2.5 {
		t.Errorf("Unexpected threshold: %f", cfg.Monitor.Threshold)
	}
	if cfg.Monitor.MinSamples != 5 {
		t.Errorf("Expected default min_samples, got %d", cfg.Monitor.MinSamples)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate failed: %v", err)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Defaults should validate: %v", err)
	}

	if cfg.API.BaseURL != "http://localhost:8000" {
		t.Errorf("Unexpected default base url: %s", cfg.API.BaseURL)
	}
	if cfg.Watchlist.Key != "gameinfo_watchlist" || cfg.Watchlist.Backend != "file" {
		t.Errorf("Unexpected watchlist defaults: %+v", cfg.Watchlist)
	}
	if cfg.Storage.KeepDays != 90 {
		t.Errorf("Unexpected keep_days: %d", cfg.Storage.KeepDays)
	}
	if len(cfg.Trend.AllowedDays) != 3 || cfg.Trend.DefaultDays != 7 {
		t.Errorf("Unexpected trend defaults: %+v", cfg.Trend)
	}
	if cfg.Server.Port != 8090 {
		t.Errorf("Unexpected port: %d", cfg.Server.Port)
	}
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("GAMEPULSE_API_BASE_URL", "http://env:9000")
	t.Setenv("GAMEPULSE_SERVER_PORT", "9999")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.API.BaseURL != "http://env:9000" {
		t.Errorf("Env override not applied: %s", cfg.API.BaseURL)
	}
	if cfg.Server.Port != 9999 {
		t.Errorf("Env override not applied: %d", cfg.Server.Port)
	}
}

func TestSchedules(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	cfg.Panels.News.Cron = "@every 5m"

	schedules, err := cfg.Panels.Schedules()
	if err != nil {
		t.Fatalf("Schedules failed: %v", err)
	}
	if schedules["discussions"] != nil || schedules["mobile"] != nil {
		t.Error("Zero-interval panels should fetch once")
	}

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	if got := schedules["steam"].Next(now); got != now.Add(10*time.Minute) {
		t.Errorf("Unexpected steam next tick: %v", got)
	}
	if got := schedules["news"].Next(now); got != now.Add(5*time.Minute) {
		t.Errorf("Unexpected news next tick: %v", got)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"missing base url", func(c *Config) { c.API.BaseURL = "" }, "api.base_url"},
		{"negative interval", func(c *Config) { c.Panels.Steam.Interval = -time.Second }, "panels.steam.interval"},
		{"bad cron", func(c *Config) { c.Panels.News.Cron = "not a cron" }, "panels.news.cron"},
		{"unknown backend", func(c *Config) { c.Watchlist.Backend = "etcd" }, "watchlist.backend"},
		{"empty key", func(c *Config) { c.Watchlist.Key = "" }, "watchlist.key"},
		{"days out of range", func(c *Config) { c.Trend.AllowedDays = []int{7, 60} }, "trend.allowed_days"},
		{"default not allowed", func(c *Config) { c.Trend.DefaultDays = 3 }, "trend.default_days"},
		{"telegram without token", func(c *Config) { c.Telegram.Enabled = true; c.Telegram.ChatID = "1" }, "telegram.bot_token"},
		{"monitor ceiling", func(c *Config) { c.Monitor.Enabled = true; c.Monitor.Ceiling = 1 }, "monitor.ceiling"},
		{"bad log level", func(c *Config) { c.Logging.Level = "trace" }, "logging.level"},
		{"bad port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load("")
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			tt.mutate(cfg)
			err = cfg.Validate()
			if err == nil {
				t.Fatalf("Expected validation error containing %q", tt.want)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Error %q does not mention %q", err, tt.want)
			}
		})
	}
}
