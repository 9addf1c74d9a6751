package config

import (
	"errors"
	"os"
	"strings"
)

// ErrNoAPIKey is returned when no API key is configured.
var ErrNoAPIKey = errors.New("no API key configured")

// KeySource represents where an API key was loaded from.
type KeySource string

const (
	KeySourceEnv    KeySource = "environment"
	KeySourceConfig KeySource = "config_file"
	KeySourceNone   KeySource = "none"
)

// AnthropicKey returns the Anthropic API key, preferring the environment.
func AnthropicKey(cfg *Config) (string, KeySource, error) {
	var configured string
	if cfg != nil {
		configured = cfg.Anthropic.APIKey
	}
	return resolveKey("ANTHROPIC_API_KEY", configured)
}

// OpenAIKey returns the OpenAI API key, preferring the environment.
func OpenAIKey(cfg *Config) (string, KeySource, error) {
	var configured string
	if cfg != nil {
		configured = cfg.OpenAI.APIKey
	}
	return resolveKey("OPENAI_API_KEY", configured)
}

func resolveKey(envVar, configured string) (string, KeySource, error) {
	if key := os.Getenv(envVar); key != "" {
		return key, KeySourceEnv, nil
	}

	if configured != "" {
		// Unresolved ${VAR} references count as missing
		key := os.ExpandEnv(configured)
		if key != "" && !strings.HasPrefix(key, "${") {
			return key, KeySourceConfig, nil
		}
	}

	return "", KeySourceNone, ErrNoAPIKey
}

// MaskAPIKey returns a masked version of the API key for display.
// Shows the first 7 characters and last 4 characters.
func MaskAPIKey(key string) string {
	if key == "" {
		return "(not set)"
	}

	if len(key) <= 15 {
		return "***"
	}

	return key[:7] + "..." + key[len(key)-4:]
}
