package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/zalando/go-keyring"
	"golang.org/x/term"
)

// keyringService is the service name used in the OS keyring.
const keyringService = "relayclaw"

// Keyring entry names.
const (
	KeyringTelegramToken = "telegram_token"
	KeyringOpenAIKey     = "openai_api_key"
)

// KeyringKeys lists the secrets that may live in the OS keyring.
var KeyringKeys = []string{KeyringTelegramToken, KeyringOpenAIKey}

// StoreKeyring saves a secret to the OS keyring.
func StoreKeyring(key, value string) error {
	return keyring.Set(keyringService, key, value)
}

// GetKeyring retrieves a secret from the OS keyring.
// Returns empty string if not found.
func GetKeyring(key string) string {
	val, err := keyring.Get(keyringService, key)
	if err != nil {
		return ""
	}
	return val
}

// DeleteKeyring removes a secret from the OS keyring.
func DeleteKeyring(key string) error {
	return keyring.Delete(keyringService, key)
}

// ValidKeyringKey reports whether key is a known keyring entry.
func ValidKeyringKey(key string) bool {
	for _, k := range KeyringKeys {
		if k == key {
			return true
		}
	}
	return false
}

// resolveKeyringSecrets fills secrets still empty after env loading.
func resolveKeyringSecrets(cfg *Config, logger *slog.Logger) {
	if cfg.Telegram.Token == "" {
		if val := GetKeyring(KeyringTelegramToken); val != "" {
			cfg.Telegram.Token = val
			logger.Debug("telegram token loaded from OS keyring")
		}
	}
	if cfg.Assistant.APIKey == "" {
		if val := GetKeyring(KeyringOpenAIKey); val != "" {
			cfg.Assistant.APIKey = val
			logger.Debug("OpenAI API key loaded from OS keyring")
		}
	}
}

// ReadPassword prompts on stdout and reads a line without echo. Piped input
// falls back to a plain read.
func ReadPassword(prompt string) (string, error) {
	fmt.Print(prompt)

	fd := int(os.Stdin.Fd())
	password, err := term.ReadPassword(fd)
	if err != nil {
		var buf [1024]byte
		n, readErr := os.Stdin.Read(buf[:])
		if readErr != nil {
			return "", fmt.Errorf("reading password: %w", readErr)
		}
		password = buf[:n]
	}
	fmt.Println()

	return strings.TrimRight(string(password), "\r\n"), nil
}
