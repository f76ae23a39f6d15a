package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadAndValidate(t *testing.T) {
	content := `
server:
  addr: ":9090"
  cors_origins:
    - "https://forecast.example.org"

storage:
  db_path: "./data/test.db"
  max_sealed_snapshots: 90

alerts:
  threshold: 7.5
  cooldown: 30m

telegram:
  bot_token: "test_token"
  chat_id: "test_chat_id"
  enabled: true

logging:
  level: "debug"
  format: "text"
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Addr != ":9090" {
		t.Errorf("Unexpected addr: %s", cfg.Server.Addr)
	}
	if len(cfg.Server.CORSOrigins) != 1 {
		t.Errorf("Expected 1 CORS origin, got %d", len(cfg.Server.CORSOrigins))
	}
	if cfg.Storage.MaxSealedSnapshots != 90 {
		t.Errorf("Unexpected max sealed snapshots: %d", cfg.Storage.MaxSealedSnapshots)
	}
	if cfg.Alerts.Threshold != 7.5 || cfg.Alerts.Cooldown != 30*time.Minute {
		t.Errorf("Unexpected alerts config: %+v", cfg.Alerts)
	}
	// Defaults fill what the file omits.
	if cfg.Storage.RotationCron != "0 3 * * *" {
		t.Errorf("Unexpected rotation cron: %q", cfg.Storage.RotationCron)
	}
	if cfg.Telegram.MaxRetries != 3 || cfg.Telegram.RetryDelayBase != 2*time.Second {
		t.Errorf("Unexpected telegram retry config: %+v", cfg.Telegram)
	}

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("FORECASTODDS_SERVER_ADDR", ":7070")
	t.Setenv("FORECASTODDS_REDIS_ENABLED", "true")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Addr != ":7070" {
		t.Errorf("Server.Addr = %q, want :7070", cfg.Server.Addr)
	}
	if !cfg.Redis.Enabled {
		t.Error("Redis.Enabled not overridden from environment")
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("Load() succeeded for a missing file")
	}
}

func validConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:         ":8080",
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
		},
		Storage: StorageConfig{
			DBPath:             "./data/test.db",
			MaxSealedSnapshots: 100,
			RotationCron:       "0 3 * * *",
		},
		Analytics: AnalyticsConfig{
			DefaultHistoryLimit:    30,
			DefaultRecentChanges:   10,
			LeaderboardRefreshCron: "*/15 * * * *",
		},
		Alerts: AlertsConfig{
			Enabled:   true,
			Threshold: 10,
			Cooldown:  time.Hour,
		},
		Telegram: TelegramConfig{
			MaxRetries:      3,
			LeaderboardSize: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{
			name:    "valid",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name: "missing telegram token when enabled",
			mutate: func(c *Config) {
				c.Telegram.Enabled = true
				c.Telegram.ChatID = "123"
			},
			wantErr: true,
		},
		{
			name:    "threshold above 100 points",
			mutate:  func(c *Config) { c.Alerts.Threshold = 150 },
			wantErr: true,
		},
		{
			name:    "bad rotation cron",
			mutate:  func(c *Config) { c.Storage.RotationCron = "every night" },
			wantErr: true,
		},
		{
			name:    "redis enabled without url",
			mutate:  func(c *Config) { c.Redis.Enabled = true },
			wantErr: true,
		},
		{
			name:    "unknown log level",
			mutate:  func(c *Config) { c.Logging.Level = "trace" },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
