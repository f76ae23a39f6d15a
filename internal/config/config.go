package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

// Config represents the complete application configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Analytics AnalyticsConfig `mapstructure:"analytics"`
	Alerts    AlertsConfig    `mapstructure:"alerts"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig holds HTTP API configuration
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// StorageConfig holds storage and persistence configuration
type StorageConfig struct {
	DBPath             string `mapstructure:"db_path"`
	MaxSealedSnapshots int    `mapstructure:"max_sealed_snapshots"`
	RotationCron       string `mapstructure:"rotation_cron"`
}

// AnalyticsConfig holds read-side defaults
type AnalyticsConfig struct {
	DefaultHistoryLimit    int    `mapstructure:"default_history_limit"`
	DefaultRecentChanges   int    `mapstructure:"default_recent_changes"`
	LeaderboardRefreshCron string `mapstructure:"leaderboard_refresh_cron"`
}

// AlertsConfig holds consensus movement alert configuration
type AlertsConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Threshold float64       `mapstructure:"threshold"` // percentage points
	Cooldown  time.Duration `mapstructure:"cooldown"`
}

// TelegramConfig holds Telegram notification configuration
type TelegramConfig struct {
	BotToken        string        `mapstructure:"bot_token"`
	ChatID          string        `mapstructure:"chat_id"`
	Enabled         bool          `mapstructure:"enabled"`
	MaxRetries      int           `mapstructure:"max_retries"`
	RetryDelayBase  time.Duration `mapstructure:"retry_delay_base"`
	LeaderboardSize int           `mapstructure:"leaderboard_size"`
}

// RedisConfig holds the change stream publisher configuration
type RedisConfig struct {
	URL          string `mapstructure:"url"`
	Enabled      bool   `mapstructure:"enabled"`
	StreamMaxLen int64  `mapstructure:"stream_max_len"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file, an optional .env file and environment variables.
// An empty path skips the config file and uses defaults plus environment.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	// FORECASTODDS_TELEGRAM_BOT_TOKEN overrides telegram.bot_token
	v.SetEnvPrefix("FORECASTODDS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
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
	// Server defaults
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.shutdown_timeout", "10s")

	// Storage defaults
	v.SetDefault("storage.db_path", "./data/forecastodds.db")
	v.SetDefault("storage.max_sealed_snapshots", 366)
	v.SetDefault("storage.rotation_cron", "0 3 * * *")

	// Analytics defaults
	v.SetDefault("analytics.default_history_limit", 30)
	v.SetDefault("analytics.default_recent_changes", 10)
	v.SetDefault("analytics.leaderboard_refresh_cron", "*/15 * * * *")

	// Alert defaults
	v.SetDefault("alerts.enabled", true)
	v.SetDefault("alerts.threshold", 10.0)
	v.SetDefault("alerts.cooldown", "1h")

	// Telegram defaults
	v.SetDefault("telegram.bot_token", "")
	v.SetDefault("telegram.chat_id", "")
	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.max_retries", 3)
	v.SetDefault("telegram.retry_delay_base", "2s")
	v.SetDefault("telegram.leaderboard_size", 10)

	// Redis defaults
	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.stream_max_len", 10000)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Validate checks that all configuration values are valid
func (c *Config) Validate() error {
	// Validate Server config
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if c.Server.ReadTimeout <= 0 || c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server.read_timeout and server.write_timeout must be positive")
	}

	// Validate Storage config
	if c.Storage.DBPath == "" {
		return fmt.Errorf("storage.db_path is required")
	}
	if c.Storage.MaxSealedSnapshots < 1 {
		return fmt.Errorf("storage.max_sealed_snapshots must be at least 1")
	}
	if _, err := cron.ParseStandard(c.Storage.RotationCron); err != nil {
		return fmt.Errorf("storage.rotation_cron is invalid: %w", err)
	}

	// Validate Analytics config
	if c.Analytics.DefaultHistoryLimit < 1 {
		return fmt.Errorf("analytics.default_history_limit must be at least 1")
	}
	if c.Analytics.DefaultRecentChanges < 0 {
		return fmt.Errorf("analytics.default_recent_changes must not be negative")
	}
	if _, err := cron.ParseStandard(c.Analytics.LeaderboardRefreshCron); err != nil {
		return fmt.Errorf("analytics.leaderboard_refresh_cron is invalid: %w", err)
	}

	// Validate Alerts config
	if c.Alerts.Threshold <= 0 || c.Alerts.Threshold > 100 {
		return fmt.Errorf("alerts.threshold must be in (0, 100] percentage points")
	}
	if c.Alerts.Cooldown < 0 {
		return fmt.Errorf("alerts.cooldown must not be negative")
	}

	// Validate Telegram config
	if c.Telegram.Enabled {
		if c.Telegram.BotToken == "" {
			return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
		}
		if c.Telegram.ChatID == "" {
			return fmt.Errorf("telegram.chat_id is required when telegram is enabled")
		}
	}
	if c.Telegram.MaxRetries < 0 {
		return fmt.Errorf("telegram.max_retries must not be negative")
	}
	if c.Telegram.LeaderboardSize < 1 {
		return fmt.Errorf("telegram.leaderboard_size must be at least 1")
	}

	// Validate Redis config
	if c.Redis.Enabled && c.Redis.URL == "" {
		return fmt.Errorf("redis.url is required when redis is enabled")
	}

	// Validate Logging config
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
