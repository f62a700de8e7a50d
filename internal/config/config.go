package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"

	"github.com/rewired-gh/gamepulse/internal/scheduler"
)

// Config represents the complete application configuration
type Config struct {
	API        APIConfig        `mapstructure:"api" yaml:"api"`
	Panels     PanelsConfig     `mapstructure:"panels" yaml:"panels"`
	Refresh    RefreshConfig    `mapstructure:"refresh" yaml:"refresh"`
	Watchlist  WatchlistConfig  `mapstructure:"watchlist" yaml:"watchlist"`
	Storage    StorageConfig    `mapstructure:"storage" yaml:"storage"`
	Redis      RedisConfig      `mapstructure:"redis" yaml:"redis"`
	Aggregator AggregatorConfig `mapstructure:"aggregator" yaml:"aggregator"`
	Trend      TrendConfig      `mapstructure:"trend" yaml:"trend"`
	Monitor    MonitorConfig    `mapstructure:"monitor" yaml:"monitor"`
	Telegram   TelegramConfig   `mapstructure:"telegram" yaml:"telegram"`
	Server     ServerConfig     `mapstructure:"server" yaml:"server"`
	Logging    LoggingConfig    `mapstructure:"logging" yaml:"logging"`
}

// APIConfig holds the game-info backend connection settings
type APIConfig struct {
	BaseURL        string        `mapstructure:"base_url" yaml:"base_url"`
	Timeout        time.Duration `mapstructure:"timeout" yaml:"timeout"`
	MaxRetries     int           `mapstructure:"max_retries" yaml:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base" yaml:"retry_delay_base"`
}

// PanelSchedule is the refresh cadence of one panel. Cron wins over
// Interval; a zero Interval without Cron fetches once.
type PanelSchedule struct {
	Interval time.Duration `mapstructure:"interval" yaml:"interval"`
	Cron     string        `mapstructure:"cron" yaml:"cron,omitempty"`
}

// Schedule converts the cadence into a cron.Schedule. nil means fetch once.
func (p PanelSchedule) Schedule() (cron.Schedule, error) {
	if p.Cron != "" {
		return scheduler.ParseSchedule(p.Cron)
	}
	if p.Interval > 0 {
		return scheduler.Interval(p.Interval), nil
	}
	return nil, nil
}

type PanelsConfig struct {
	Steam        PanelSchedule `mapstructure:"steam" yaml:"steam"`
	Twitch       PanelSchedule `mapstructure:"twitch" yaml:"twitch"`
	Discussions  PanelSchedule `mapstructure:"discussions" yaml:"discussions"`
	News         PanelSchedule `mapstructure:"news" yaml:"news"`
	Mobile       PanelSchedule `mapstructure:"mobile" yaml:"mobile"`
	WeeklyDigest PanelSchedule `mapstructure:"weekly_digest" yaml:"weekly_digest"`
	GoogleTrends PanelSchedule `mapstructure:"google_trends" yaml:"google_trends"`
	Ticker       PanelSchedule `mapstructure:"ticker" yaml:"ticker"`
}

// ByName keys every panel schedule by its panel name.
func (p PanelsConfig) ByName() map[string]PanelSchedule {
	return map[string]PanelSchedule{
		"steam":         p.Steam,
		"twitch":        p.Twitch,
		"discussions":   p.Discussions,
		"news":          p.News,
		"mobile":        p.Mobile,
		"weekly_digest": p.WeeklyDigest,
		"google_trends": p.GoogleTrends,
		"ticker":        p.Ticker,
	}
}

// Schedules parses every panel schedule.
func (p PanelsConfig) Schedules() (map[string]cron.Schedule, error) {
	out := make(map[string]cron.Schedule)
	for name, ps := range p.ByName() {
		s, err := ps.Schedule()
		if err != nil {
			return nil, fmt.Errorf("panels.%s: %w", name, err)
		}
		out[name] = s
	}
	return out, nil
}

type RefreshConfig struct {
	DiscardStale bool `mapstructure:"discard_stale" yaml:"discard_stale"`
}

type WatchlistConfig struct {
	Backend string `mapstructure:"backend" yaml:"backend"`
	Dir     string `mapstructure:"dir" yaml:"dir"`
	Key     string `mapstructure:"key" yaml:"key"`
}

type StorageConfig struct {
	DBPath   string `mapstructure:"db_path" yaml:"db_path"`
	KeepDays int    `mapstructure:"keep_days" yaml:"keep_days"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr" yaml:"addr"`
	Password string `mapstructure:"password" yaml:"password"`
	DB       int    `mapstructure:"db" yaml:"db"`
	Prefix   string `mapstructure:"prefix" yaml:"prefix"`
}

type AggregatorConfig struct {
	Timeout    time.Duration `mapstructure:"timeout" yaml:"timeout"`
	Interval   time.Duration `mapstructure:"interval" yaml:"interval"`
	MaxWorkers int           `mapstructure:"max_workers" yaml:"max_workers"`
}

type TrendConfig struct {
	DefaultDays int   `mapstructure:"default_days" yaml:"default_days"`
	AllowedDays []int `mapstructure:"allowed_days" yaml:"allowed_days"`
	Forecast    bool  `mapstructure:"forecast" yaml:"forecast"`
}

// MonitorConfig holds surge detection configuration
type MonitorConfig struct {
	Enabled            bool          `mapstructure:"enabled" yaml:"enabled"`
	Threshold          float64       `mapstructure:"threshold" yaml:"threshold"`
	MinSamples         int           `mapstructure:"min_samples" yaml:"min_samples"`
	Ceiling            float64       `mapstructure:"ceiling" yaml:"ceiling"`
	Cooldown           time.Duration `mapstructure:"cooldown" yaml:"cooldown"`
	CheckpointInterval int           `mapstructure:"checkpoint_interval" yaml:"checkpoint_interval"`
	TopK               int           `mapstructure:"top_k" yaml:"top_k"`
}

// TelegramConfig holds Telegram notification configuration
type TelegramConfig struct {
	Enabled        bool          `mapstructure:"enabled" yaml:"enabled"`
	BotToken       string        `mapstructure:"bot_token" yaml:"bot_token"`
	ChatID         string        `mapstructure:"chat_id" yaml:"chat_id"`
	MaxRetries     int           `mapstructure:"max_retries" yaml:"max_retries"`
	RetryDelayBase time.Duration `mapstructure:"retry_delay_base" yaml:"retry_delay_base"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host" yaml:"host"`
	Port            int           `mapstructure:"port" yaml:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// Load reads configuration from defaults, the optional file at path and
// GAMEPULSE_* environment variables, in increasing precedence.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("GAMEPULSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

// setDefaults configures default values for all configuration options
func setDefaults(v *viper.Viper) {
	v.SetDefault("api.base_url", "http://localhost:8000")
	v.SetDefault("api.timeout", "10s")
	v.SetDefault("api.max_retries", 1)
	v.SetDefault("api.retry_delay_base", "500ms")

	v.SetDefault("panels.steam.interval", "600s")
	v.SetDefault("panels.twitch.interval", "600s")
	v.SetDefault("panels.discussions.interval", "0s") // fetch once on mount
	v.SetDefault("panels.news.interval", "600s")
	v.SetDefault("panels.mobile.interval", "0s")
	v.SetDefault("panels.weekly_digest.interval", "1800s")
	v.SetDefault("panels.google_trends.interval", "600s")
	v.SetDefault("panels.ticker.interval", "600s")

	v.SetDefault("refresh.discard_stale", false)

	v.SetDefault("watchlist.backend", "file")
	v.SetDefault("watchlist.dir", "./data")
	v.SetDefault("watchlist.key", "gameinfo_watchlist")

	v.SetDefault("storage.db_path", "./data/gamepulse.db")
	v.SetDefault("storage.keep_days", 90)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "gamepulse")

	v.SetDefault("aggregator.timeout", "10s")
	v.SetDefault("aggregator.interval", "0s") // only on watch-list change
	v.SetDefault("aggregator.max_workers", 8)

	v.SetDefault("trend.default_days", 7)
	v.SetDefault("trend.allowed_days", []int{7, 14, 30})
	v.SetDefault("trend.forecast", false)

	v.SetDefault("monitor.enabled", false)
	v.SetDefault("monitor.threshold", 3.0)
	v.SetDefault("monitor.min_samples", 5)
	v.SetDefault("monitor.ceiling", 10.0)
	v.SetDefault("monitor.cooldown", "1h")
	v.SetDefault("monitor.checkpoint_interval", 12)
	v.SetDefault("monitor.top_k", 10)

	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.bot_token", "")
	v.SetDefault("telegram.chat_id", "")
	v.SetDefault("telegram.max_retries", 3)
	v.SetDefault("telegram.retry_delay_base", "1s")

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8090)
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "10s")
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("api.base_url is required")
	}
	if c.API.Timeout <= 0 {
		return fmt.Errorf("api.timeout must be positive")
	}
	if c.API.MaxRetries < 1 {
		return fmt.Errorf("api.max_retries must be at least 1")
	}

	for name, ps := range c.Panels.ByName() {
		if ps.Interval < 0 {
			return fmt.Errorf("panels.%s.interval must not be negative", name)
		}
		if ps.Interval > 0 && ps.Interval < time.Second {
			return fmt.Errorf("panels.%s.interval must be at least 1s", name)
		}
		if _, err := ps.Schedule(); err != nil {
			return fmt.Errorf("panels.%s.cron is invalid: %w", name, err)
		}
	}

	switch c.Watchlist.Backend {
	case "file":
		if c.Watchlist.Dir == "" {
			return fmt.Errorf("watchlist.dir is required for the file backend")
		}
	case "sqlite":
		if c.Storage.DBPath == "" {
			return fmt.Errorf("storage.db_path is required for the sqlite backend")
		}
	case "redis":
		if c.Redis.Addr == "" {
			return fmt.Errorf("redis.addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("watchlist.backend must be one of: file, sqlite, redis")
	}
	if c.Watchlist.Key == "" {
		return fmt.Errorf("watchlist.key is required")
	}

	if c.Storage.KeepDays < 1 {
		return fmt.Errorf("storage.keep_days must be at least 1")
	}

	if c.Aggregator.Timeout <= 0 {
		return fmt.Errorf("aggregator.timeout must be positive")
	}
	if c.Aggregator.Interval < 0 {
		return fmt.Errorf("aggregator.interval must not be negative")
	}

	if len(c.Trend.AllowedDays) == 0 {
		return fmt.Errorf("trend.allowed_days must contain at least one value")
	}
	for _, d := range c.Trend.AllowedDays {
		if d < 1 || d > 30 {
			return fmt.Errorf("trend.allowed_days values must be between 1 and 30")
		}
	}
	if !slices.Contains(c.Trend.AllowedDays, c.Trend.DefaultDays) {
		return fmt.Errorf("trend.default_days must be one of trend.allowed_days")
	}

	if c.Monitor.Enabled {
		if c.Monitor.Threshold <= 0 {
			return fmt.Errorf("monitor.threshold must be positive")
		}
		if c.Monitor.MinSamples < 2 {
			return fmt.Errorf("monitor.min_samples must be at least 2")
		}
		if c.Monitor.Ceiling < c.Monitor.Threshold {
			return fmt.Errorf("monitor.ceiling must not be below monitor.threshold")
		}
	}

	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
		}
		if c.Telegram.ChatID == "" {
			return fmt.Errorf("telegram.chat_id is required when telegram is enabled")
		}
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	return nil
}
