// Package config holds the relayclaw configuration model and loads it from
// defaults, a YAML file, .env files, environment variables and the OS
// keyring, in that order of increasing precedence.
package config

import (
	"time"

	"github.com/jholhewres/relayclaw/pkg/relayclaw/channels/telegram"
	"github.com/jholhewres/relayclaw/pkg/relayclaw/database"
	"github.com/jholhewres/relayclaw/pkg/relayclaw/keepalive"
	"github.com/jholhewres/relayclaw/pkg/relayclaw/relay"
)

// Config is the full service configuration.
type Config struct {
	// BaseURL is the public URL Telegram reaches this service on.
	BaseURL string `yaml:"base_url"`

	// Port the HTTP server listens on (default: 3000).
	Port int `yaml:"port"`

	Telegram  TelegramConfig   `yaml:"telegram"`
	Assistant AssistantConfig  `yaml:"assistant"`
	Sessions  SessionsConfig   `yaml:"sessions"`
	Database  database.Config  `yaml:"database"`
	Relay     relay.Config     `yaml:"relay"`
	Gateway   GatewayConfig    `yaml:"gateway"`
	Keepalive keepalive.Config `yaml:"keepalive"`
	Logging   LoggingConfig    `yaml:"logging"`
}

// TelegramConfig configures the bot.
type TelegramConfig struct {
	telegram.Config `yaml:",inline"`

	// BotUsername is used for group mentions. Empty means ask getMe.
	BotUsername string `yaml:"bot_username"`

	// WebhookSecret is the secret path segment of the webhook URL.
	WebhookSecret string `yaml:"webhook_secret"`

	// RegisterWebhook calls setWebhook at startup (default: true).
	RegisterWebhook bool `yaml:"register_webhook"`

	// DropPendingUpdates discards queued updates when registering.
	DropPendingUpdates bool `yaml:"drop_pending_updates"`
}

// AssistantConfig configures the hosted assistant and the run polling.
type AssistantConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	ID      string `yaml:"assistant_id"`

	// InstructionVersion tags every session record; changing it replaces
	// all sessions lazily (default: "v1").
	InstructionVersion string `yaml:"instruction_version"`

	PollInterval    time.Duration `yaml:"poll_interval"`
	PollMaxAttempts int           `yaml:"poll_max_attempts"`
	RunTimeout      time.Duration `yaml:"run_timeout"`
	RecentTurns     int           `yaml:"recent_turns"`
	FallbackReply   string        `yaml:"fallback_reply"`
	MaxRetries      int           `yaml:"max_retries"`
}

// SessionsConfig selects the session store.
type SessionsConfig struct {
	// Backend is "file" (default), "memory" or "database".
	Backend string `yaml:"backend"`

	// Path of the JSON file for the file backend.
	Path string `yaml:"path"`

	// ResetOnStart clears every session at startup.
	ResetOnStart bool `yaml:"reset_on_start"`

	// SerializePerKey holds a per-participant lock for a whole exchange
	// (default: true).
	SerializePerKey bool `yaml:"serialize_per_key"`
}

// Session store backends.
const (
	SessionsFile     = "file"
	SessionsMemory   = "memory"
	SessionsDatabase = "database"
)

// GatewayConfig configures the HTTP server beyond the port.
type GatewayConfig struct {
	StatusToken  string `yaml:"status_token"`
	MaxBodyBytes int64  `yaml:"max_body_bytes"`
}

// LoggingConfig configures slog.
type LoggingConfig struct {
	// Level is debug, info, warn or error (default: info).
	Level string `yaml:"level"`

	// Format is json (default) or text.
	Format string `yaml:"format"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Port: 3000,
		Telegram: TelegramConfig{
			Config:          telegram.Config{APIBase: telegram.DefaultAPIBase, Timeout: 30 * time.Second},
			RegisterWebhook: true,
		},
		Assistant: AssistantConfig{
			InstructionVersion: "v1",
			PollInterval:       time.Second,
			PollMaxAttempts:    60,
			RunTimeout:         2 * time.Minute,
			RecentTurns:        10,
			FallbackReply:      "Sorry, I couldn't come up with a reply.",
		},
		Sessions: SessionsConfig{
			Backend:         SessionsFile,
			Path:            "./data/sessions.json",
			SerializePerKey: true,
		},
		Database:  database.DefaultConfig(),
		Relay:     relay.DefaultConfig(),
		Keepalive: keepalive.Config{Enabled: true, Schedule: "@every 10m", Timeout: 10 * time.Second},
		Logging:   LoggingConfig{Level: "info", Format: "json"},
	}
}

// WebhookURL is the URL registered with Telegram.
func (c *Config) WebhookURL() string {
	return trimSlash(c.BaseURL) + "/telegram/webhook/" + c.Telegram.WebhookSecret
}

func trimSlash(s string) string {
	for len(s) > 0 && s[len(s)-1] == '/' {
		s = s[:len(s)-1]
	}
	return s
}
