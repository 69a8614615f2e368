package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrConfigurationMissing matches every MissingError with errors.Is.
var ErrConfigurationMissing = errors.New("required configuration missing")

// MissingError lists the required settings that are unset.
type MissingError struct {
	Fields []string
}

func (e *MissingError) Error() string {
	return fmt.Sprintf("%s: %s", ErrConfigurationMissing, strings.Join(e.Fields, ", "))
}

func (e *MissingError) Is(target error) bool {
	return target == ErrConfigurationMissing
}

// Validate checks what serve needs before anything starts. Missing required
// values yield a *MissingError; other problems a plain error.
func (c *Config) Validate() error {
	var missing []string
	check := func(v, env string) {
		if strings.TrimSpace(v) == "" {
			missing = append(missing, env)
		}
	}
	check(c.Telegram.Token, EnvTelegramToken)
	check(c.Assistant.APIKey, EnvOpenAIKey)
	check(c.Assistant.ID, EnvAssistantID)
	check(c.Telegram.WebhookSecret, EnvWebhookSecret)
	check(c.BaseURL, EnvBaseURL)
	if len(missing) > 0 {
		return &MissingError{Fields: missing}
	}

	u, err := url.Parse(c.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("config: %s must be an absolute http(s) URL, got %q", EnvBaseURL, c.BaseURL)
	}
	if strings.ContainsAny(c.Telegram.WebhookSecret, "/?#") {
		return fmt.Errorf("config: %s must not contain '/', '?' or '#'", EnvWebhookSecret)
	}
	if err := c.checkInstructionVersion(); err != nil {
		return err
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: port %d out of range", c.Port)
	}
	switch c.Sessions.Backend {
	case SessionsFile, SessionsMemory, SessionsDatabase:
	default:
		return fmt.Errorf("config: unknown sessions backend %q", c.Sessions.Backend)
	}
	return nil
}

// ValidateAssistant checks only what talking to the assistant needs, for
// commands that do not serve Telegram.
func (c *Config) ValidateAssistant() error {
	var missing []string
	if strings.TrimSpace(c.Assistant.APIKey) == "" {
		missing = append(missing, EnvOpenAIKey)
	}
	if strings.TrimSpace(c.Assistant.ID) == "" {
		missing = append(missing, EnvAssistantID)
	}
	if len(missing) > 0 {
		return &MissingError{Fields: missing}
	}
	return c.checkInstructionVersion()
}

// checkInstructionVersion rejects a blank version. Records are only current
// under a non-empty version, so a blank one would start a new session on
// every message.
func (c *Config) checkInstructionVersion() error {
	if strings.TrimSpace(c.Assistant.InstructionVersion) == "" {
		return fmt.Errorf("config: %s must not be empty", EnvInstructionVersion)
	}
	return nil
}
