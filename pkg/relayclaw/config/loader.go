package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/jholhewres/relayclaw/pkg/relayclaw/database"
)

// Environment variables read after the YAML file.
const (
	EnvTelegramToken      = "TELEGRAM_BOT_TOKEN"
	EnvOpenAIKey          = "OPENAI_API_KEY"
	EnvAssistantID        = "ASSISTANT_ID"
	EnvWebhookSecret      = "WEBHOOK_SECRET"
	EnvBaseURL            = "BASE_URL"
	EnvBotUsername        = "BOT_USERNAME"
	EnvPort               = "PORT"
	EnvInstructionVersion = "ASSISTANT_INSTRUCTION_VERSION"
	EnvResetSessions      = "RESET_SESSIONS_ON_START"
	EnvSessionsBackend    = "SESSIONS_BACKEND"
	EnvLogLevel           = "LOG_LEVEL"
	EnvDatabaseURL        = "DATABASE_URL"
)

// envVarPattern matches environment variable patterns in config values:
//   - ${VAR_NAME}          - simple variable
//   - ${VAR_NAME:-default} - default value if not set
//   - ${VAR_NAME:?error}   - error if not set
//
// Capture groups: 1 variable name, 2 modifier ("-" or "?"), 3 default value
// or error message.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::(-|\?)([^}]*))?\}`)

// Load builds the configuration. path may be empty, in which case a config
// file is discovered and, failing that, defaults plus environment are used.
// It does not validate; call Validate before serving.
func Load(path string, logger *slog.Logger) (*Config, string, error) {
	if logger == nil {
		logger = slog.Default()
	}

	// Load .env files (silently ignore if not found).
	loadEnvFiles()

	if path == "" {
		path = FindConfigFile()
	}

	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, "", fmt.Errorf("reading config file: %w", err)
		}
		expanded, err := expandEnvVars(string(data))
		if err != nil {
			return nil, "", fmt.Errorf("expanding environment variables: %w", err)
		}
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, "", fmt.Errorf("parsing config YAML: %w", err)
		}
		checkFilePermissions(path, logger)
	}

	if err := applyEnv(cfg); err != nil {
		return nil, "", err
	}
	resolveKeyringSecrets(cfg, logger)
	applyDerivedDefaults(cfg)

	return cfg, path, nil
}

// FindConfigFile searches for config files in standard locations.
func FindConfigFile() string {
	candidates := []string{
		"config.yaml",
		"config.yml",
		"relayclaw.yaml",
		"relayclaw.yml",
		"configs/config.yaml",
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// SaveConfigToFile writes cfg as YAML with owner-only permissions. Secrets
// that match an environment variable are written as ${VAR} references.
func SaveConfigToFile(cfg *Config, path string) error {
	sanitized := *cfg
	sanitized.Telegram.Token = sanitizeSecret(cfg.Telegram.Token, EnvTelegramToken)
	sanitized.Telegram.WebhookSecret = sanitizeSecret(cfg.Telegram.WebhookSecret, EnvWebhookSecret)
	sanitized.Assistant.APIKey = sanitizeSecret(cfg.Assistant.APIKey, EnvOpenAIKey)

	data, err := yaml.Marshal(&sanitized)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}
	}

	// Backup existing file before overwriting.
	if existing, err := os.ReadFile(path); err == nil {
		_ = os.WriteFile(path+".bak", existing, 0o600)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// ---------- Internal ----------

// loadEnvFiles loads .env files from the working directory.
// godotenv.Load does NOT overwrite existing env vars.
func loadEnvFiles() {
	for _, f := range []string{".env", ".env.local"} {
		_ = godotenv.Load(f)
	}
}

// expandEnvVars replaces ${VAR}, ${VAR:-default} and ${VAR:?error}. An
// unset ${VAR} without modifier expands to the empty string; an unset
// ${VAR:?error} is an error.
func expandEnvVars(input string) (string, error) {
	var firstErr error
	out := envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		sub := envVarPattern.FindStringSubmatch(match)
		name, modifier, value := sub[1], sub[2], sub[3]

		if val, ok := os.LookupEnv(name); ok && val != "" {
			return val
		}
		switch modifier {
		case "-":
			return value
		case "?":
			if firstErr == nil {
				if value == "" {
					value = "required environment variable not set"
				}
				firstErr = fmt.Errorf("config error: %s - %s", name, value)
			}
			return ""
		}
		return ""
	})
	if firstErr != nil {
		return "", firstErr
	}
	return out, nil
}

// applyEnv overlays the well-known environment variables.
func applyEnv(cfg *Config) error {
	setString := func(dst *string, env string) {
		if v := strings.TrimSpace(os.Getenv(env)); v != "" {
			*dst = v
		}
	}
	setString(&cfg.Telegram.Token, EnvTelegramToken)
	setString(&cfg.Assistant.APIKey, EnvOpenAIKey)
	setString(&cfg.Assistant.ID, EnvAssistantID)
	setString(&cfg.Telegram.WebhookSecret, EnvWebhookSecret)
	setString(&cfg.BaseURL, EnvBaseURL)
	setString(&cfg.Telegram.BotUsername, EnvBotUsername)
	setString(&cfg.Assistant.InstructionVersion, EnvInstructionVersion)
	setString(&cfg.Sessions.Backend, EnvSessionsBackend)
	setString(&cfg.Logging.Level, EnvLogLevel)
	if v := strings.TrimSpace(os.Getenv(EnvDatabaseURL)); v != "" {
		cfg.Database.PostgreSQL.URL = v
		cfg.Database.Backend = database.BackendPostgreSQL
	}

	if v := strings.TrimSpace(os.Getenv(EnvPort)); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: %s=%q is not a number", EnvPort, v)
		}
		cfg.Port = port
	}
	if v := strings.TrimSpace(os.Getenv(EnvResetSessions)); v != "" {
		reset, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: %s=%q is not a boolean", EnvResetSessions, v)
		}
		cfg.Sessions.ResetOnStart = reset
	}
	return nil
}

// applyDerivedDefaults fills values that depend on other settings.
func applyDerivedDefaults(cfg *Config) {
	cfg.Telegram.BotUsername = strings.TrimPrefix(cfg.Telegram.BotUsername, "@")
	if cfg.Keepalive.URL == "" {
		cfg.Keepalive.URL = cfg.BaseURL
	}
}

// sanitizeSecret replaces a real secret with an env var reference for safe
// storage in config files.
func sanitizeSecret(value, envVar string) string {
	if value == "" || IsEnvReference(value) {
		return value
	}
	if os.Getenv(envVar) == value {
		return "${" + envVar + "}"
	}
	return value
}

// IsEnvReference checks if a string is an environment variable reference.
func IsEnvReference(s string) bool {
	return strings.HasPrefix(s, "${")
}

// checkFilePermissions warns if config file is group or world readable.
func checkFilePermissions(path string, logger *slog.Logger) {
	info, err := os.Stat(path)
	if err != nil {
		return
	}
	if mode := info.Mode().Perm(); mode&0o044 != 0 {
		logger.Warn("config file has open permissions, consider restricting",
			"path", path,
			"current", fmt.Sprintf("%04o", mode),
			"recommended", "0600",
		)
	}
}
