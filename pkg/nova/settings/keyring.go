// Secure credential storage using the operating system's native keyring
// (Linux: Secret Service/GNOME Keyring, macOS: Keychain, Windows:
// Credential Manager).
//
// Priority for resolving the API key:
//  1. OS keyring (most secure — encrypted by the OS)
//  2. Environment variable (NOVA_API_KEY, OPENAI_API_KEY)
//  3. settings.txt value (least secure — plaintext on disk)
package settings

import (
	"log/slog"
	"os"

	"github.com/zalando/go-keyring"
)

const (
	// keyringService is the service name used in the OS keyring.
	keyringService = "nova"

	// keyringAPIKey is the key name for the LLM API key.
	keyringAPIKey = "api_key"
)

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

// KeyringAvailable checks if the OS keyring is accessible.
func KeyringAvailable() bool {
	testKey := "__nova_test__"
	if err := keyring.Set(keyringService, testKey, "test"); err != nil {
		return false
	}
	_ = keyring.Delete(keyringService, testKey)
	return true
}

// StoreAPIKey saves the LLM API key to the OS keyring.
func StoreAPIKey(value string) error {
	return StoreKeyring(keyringAPIKey, value)
}

// ResolveAPIKey applies the keyring → env → settings chain and, when a more
// secure source wins, overwrites the in-memory api_key so the pipeline only
// ever reads the resolved value. The settings file itself is not rewritten.
func ResolveAPIKey(s Settings, logger *slog.Logger) Settings {
	if logger == nil {
		logger = slog.Default()
	}

	if val := GetKeyring(keyringAPIKey); val != "" {
		s["api_key"] = val
		logger.Debug("API key loaded from OS keyring")
		return s
	}

	for _, env := range []string{"NOVA_API_KEY", "OPENAI_API_KEY"} {
		if val := os.Getenv(env); val != "" {
			s["api_key"] = val
			logger.Debug("API key loaded from environment", "var", env)
			return s
		}
	}

	if s.String("api_key", "") == "" {
		logger.Warn("no API key found. Set one with: nova config set-key")
	}
	return s
}
