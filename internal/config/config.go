// Package config manages marzbot configuration from multiple sources.
//
// Configuration file separation:
//   - .env: process settings (bot token, panel URL, webhook secret, intervals)
//   - admins.json: admin groups (chat IDs mapped to panel credentials)
//   - monitoring.json: runtime monitoring state, owned by internal/statestore
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Config holds all application configuration.
type Config struct {
	// Telegram bot settings
	BotToken string

	// Panel settings
	PanelURL       string
	RequestTimeout time.Duration

	// Webhook ingress settings
	WebhookSecret  string
	WebhookAddress string
	WebhookPort    int

	// Monitoring knobs
	PollInterval     time.Duration
	ReminderInterval time.Duration

	// Paths
	DataDir    string
	StateFile  string
	AdminsFile string

	// Logging settings
	LogLevel  string
	LogFormat string

	// Admin groups, first entry acts as the sudo admin unless one is flagged
	Admins []Admin
}

// Load reads configuration from the environment, optionally seeded from a
// .env file, plus the admins document.
func Load() (*Config, error) {
	dataDir := "./data"
	if dir := os.Getenv("MARZBOT_DATA_DIR"); dir != "" {
		dataDir = dir
	}

	// Load .env file if it exists (for deployment overrides)
	envFile := filepath.Join(dataDir, ".env")
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			log.Warn().Err(err).Str("file", envFile).Msg("Failed to load .env file")
		}
	}
	// Also try loading from the current directory for development
	_ = godotenv.Load()

	cfg := &Config{
		RequestTimeout:   20 * time.Second,
		WebhookAddress:   "0.0.0.0",
		WebhookPort:      8080,
		PollInterval:     60 * time.Second,
		ReminderInterval: time.Hour,
		DataDir:          dataDir,
		StateFile:        filepath.Join(dataDir, "monitoring.json"),
		AdminsFile:       filepath.Join(dataDir, "admins.json"),
		LogLevel:         "info",
		LogFormat:        "auto",
	}

	cfg.BotToken = os.Getenv("BOT_TOKEN")
	cfg.PanelURL = os.Getenv("PANEL_URL")
	cfg.WebhookSecret = os.Getenv("WEBHOOK_SECRET")

	if v := os.Getenv("WEBHOOK_ADDRESS"); v != "" {
		cfg.WebhookAddress = v
	}
	if v := os.Getenv("WEBHOOK_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil || port <= 0 || port > 65535 {
			return nil, fmt.Errorf("invalid WEBHOOK_PORT %q", v)
		}
		cfg.WebhookPort = port
	}
	if v := os.Getenv("ADMINS_FILE"); v != "" {
		cfg.AdminsFile = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}

	cfg.PollInterval = durationEnv("POLL_INTERVAL", cfg.PollInterval)
	cfg.ReminderInterval = durationEnv("REMINDER_INTERVAL", cfg.ReminderInterval)
	cfg.RequestTimeout = durationEnv("REQUEST_TIMEOUT", cfg.RequestTimeout)

	if cfg.BotToken == "" {
		return nil, fmt.Errorf("BOT_TOKEN is required")
	}
	if cfg.PanelURL == "" {
		return nil, fmt.Errorf("PANEL_URL is required")
	}

	admins, err := LoadAdmins(cfg.AdminsFile)
	if err != nil {
		return nil, err
	}
	cfg.Admins = admins

	log.Info().
		Int("adminGroups", len(cfg.Admins)).
		Dur("pollInterval", cfg.PollInterval).
		Msg("Configuration loaded")

	return cfg, nil
}

// SudoAdmin returns the admin used as the alerting identity for node
// monitoring: the first flagged entry, or the first entry overall.
func (c *Config) SudoAdmin() (Admin, bool) {
	for _, admin := range c.Admins {
		if admin.Sudo {
			return admin, true
		}
	}
	if len(c.Admins) > 0 {
		return c.Admins[0], true
	}
	return Admin{}, false
}

func durationEnv(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		log.Warn().Str("key", key).Str("value", v).Msg("Invalid duration, using default")
		return fallback
	}
	return d
}
