package config

import (
	"errors"
	"os"
	"strings"
)

// ErrNoAPIKey is returned when no API key is configured for the
// selected provider.
var ErrNoAPIKey = errors.New("no provider API key configured")

// providerKeyEnv maps provider kinds to their conventional environment
// variables, checked before the config file.
var providerKeyEnv = map[string]string{
	"anthropic": "ANTHROPIC_API_KEY",
	"openai":    "OPENAI_API_KEY",
	"googleai":  "GOOGLE_API_KEY",
}

// GetAPIKey returns the API key for the configured provider.
// It checks in order: the provider's conventional environment variable,
// then the config file.
func GetAPIKey(cfg *Config) (string, error) {
	kind := "anthropic"
	if cfg != nil && cfg.Provider.Kind != "" {
		kind = cfg.Provider.Kind
	}

	if env, ok := providerKeyEnv[kind]; ok {
		if key := os.Getenv(env); key != "" {
			return key, nil
		}
	}

	if cfg != nil && cfg.Provider.APIKey != "" {
		// Expand any remaining env var references
		key := os.ExpandEnv(cfg.Provider.APIKey)
		if key != "" && !strings.HasPrefix(key, "${") {
			return key, nil
		}
	}

	return "", ErrNoAPIKey
}

// MaskKey returns a masked version of an API key for display.
func MaskKey(key string) string {
	if len(key) <= 8 {
		return strings.Repeat("*", len(key))
	}
	return key[:4] + strings.Repeat("*", len(key)-8) + key[len(key)-4:]
}
