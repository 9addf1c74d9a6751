// Package config handles configuration loading and management for longform.
// It supports XDG config paths, project-level overrides, and environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// ProjectConfigName is the per-project override file searched for upward
// from the working directory.
const ProjectConfigName = ".longform.yaml"

// Config holds all configuration for longform.
type Config struct {
	Anthropic  AnthropicConfig  `mapstructure:"anthropic"`
	OpenAI     OpenAIConfig     `mapstructure:"openai"`
	Ollama     OllamaConfig     `mapstructure:"ollama"`
	Oracle     OracleConfig     `mapstructure:"oracle"`
	Generation GenerationConfig `mapstructure:"generation"`
	Review     ReviewConfig     `mapstructure:"review"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	APIKey     string `mapstructure:"api_key"`
	UseBedrock bool   `mapstructure:"use_bedrock"`
	AWSRegion  string `mapstructure:"aws_region"`
	AWSProfile string `mapstructure:"aws_profile"`
}

// OpenAIConfig holds settings for OpenAI-compatible endpoints.
type OpenAIConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url" validate:"omitempty,url"`
	// Model is used instead of oracle.model when that names a Claude model.
	Model string `mapstructure:"model"`
}

// OllamaConfig holds settings for a local Ollama server.
type OllamaConfig struct {
	ServerURL string `mapstructure:"server_url" validate:"omitempty,url"`
	// Model is used instead of oracle.model when that names a Claude model.
	Model string `mapstructure:"model"`
}

// OracleConfig selects and tunes the generation backend.
type OracleConfig struct {
	// Strategy is one of auto, api, cli, openai, ollama.
	Strategy string `mapstructure:"strategy" validate:"oneof=auto api cli openai ollama"`
	// Preference is the order tried when Strategy is auto.
	Preference []string `mapstructure:"preference" validate:"dive,oneof=api cli openai ollama"`
	// Model is passed to the selected backend. The openai and ollama
	// backends swap a Claude model name for their own model setting.
	Model string `mapstructure:"model"`
	// MaxTokens bounds a single response.
	MaxTokens int `mapstructure:"max_tokens" validate:"gt=0"`
	// MinInterval is the minimum spacing between two oracle calls; 0 disables pacing.
	MinInterval time.Duration `mapstructure:"min_interval" validate:"gte=0"`
	// CLIPath is the claude binary used by the cli strategy.
	CLIPath string `mapstructure:"cli_path"`
}

// GenerationConfig holds pipeline settings.
type GenerationConfig struct {
	ExcerptLines int           `mapstructure:"excerpt_lines" validate:"gt=0"`
	ExcerptChars int           `mapstructure:"excerpt_chars" validate:"gte=0"`
	OutputDir    string        `mapstructure:"output_dir" validate:"required"`
	DocumentName string        `mapstructure:"document_name" validate:"required"`
	HTML         bool          `mapstructure:"html"`
	Timeout      time.Duration `mapstructure:"timeout" validate:"gte=0"`
}

// ReviewConfig toggles the consistency review pass.
type ReviewConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

var validate = validator.New()

// Validate checks field constraints declared in struct tags.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// Load loads configuration from XDG paths, project overrides, and environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (ANTHROPIC_API_KEY, OPENAI_API_KEY, OLLAMA_HOST, LONGFORM_MODEL)
// 2. Project config (.longform.yaml in current directory or parent)
// 3. User config (~/.config/longform/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(getUserConfigDir())

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	if projectConfig := findProjectConfig(); projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	bindEnv(v)

	return unmarshal(v)
}

// LoadFromPath loads configuration from a specific path (for testing).
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	return unmarshal(v)
}

func bindEnv(v *viper.Viper) {
	v.AutomaticEnv()
	v.BindEnv("anthropic.api_key", "ANTHROPIC_API_KEY")
	v.BindEnv("openai.api_key", "OPENAI_API_KEY")
	v.BindEnv("ollama.server_url", "OLLAMA_HOST")
	v.BindEnv("oracle.model", "LONGFORM_MODEL")
}

// LoadUserFile reads only the user config file, over the defaults, and
// leaves ${VAR} references in secrets unexpanded so the result can be saved
// back. A missing file yields the defaults.
func LoadUserFile() (*Config, error) {
	path := GetUserConfigPath()
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}

	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return decode(v)
}

func decode(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	return cfg, nil
}

func unmarshal(v *viper.Viper) (*Config, error) {
	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}

	// Expand ${VAR} references in secrets
	cfg.Anthropic.APIKey = os.ExpandEnv(cfg.Anthropic.APIKey)
	cfg.OpenAI.APIKey = os.ExpandEnv(cfg.OpenAI.APIKey)

	return cfg, nil
}

// Save writes the current configuration to the user config file.
func Save(cfg *Config) error {
	userConfigDir := getUserConfigDir()
	if err := os.MkdirAll(userConfigDir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(filepath.Join(userConfigDir, "config.yaml"))

	for key, value := range Flatten(cfg) {
		v.Set(key, value)
	}

	return v.WriteConfig()
}

// Flatten returns every persisted key with its value, using the same
// dot-notation the config command accepts.
func Flatten(cfg *Config) map[string]interface{} {
	return map[string]interface{}{
		"anthropic.api_key":        cfg.Anthropic.APIKey,
		"anthropic.use_bedrock":    cfg.Anthropic.UseBedrock,
		"anthropic.aws_region":     cfg.Anthropic.AWSRegion,
		"anthropic.aws_profile":    cfg.Anthropic.AWSProfile,
		"openai.api_key":           cfg.OpenAI.APIKey,
		"openai.base_url":          cfg.OpenAI.BaseURL,
		"openai.model":             cfg.OpenAI.Model,
		"ollama.server_url":        cfg.Ollama.ServerURL,
		"ollama.model":             cfg.Ollama.Model,
		"oracle.strategy":          cfg.Oracle.Strategy,
		"oracle.preference":        cfg.Oracle.Preference,
		"oracle.model":             cfg.Oracle.Model,
		"oracle.max_tokens":        cfg.Oracle.MaxTokens,
		"oracle.min_interval":      cfg.Oracle.MinInterval.String(),
		"oracle.cli_path":          cfg.Oracle.CLIPath,
		"generation.excerpt_lines": cfg.Generation.ExcerptLines,
		"generation.excerpt_chars": cfg.Generation.ExcerptChars,
		"generation.output_dir":    cfg.Generation.OutputDir,
		"generation.document_name": cfg.Generation.DocumentName,
		"generation.html":          cfg.Generation.HTML,
		"generation.timeout":       cfg.Generation.Timeout.String(),
		"review.enabled":           cfg.Review.Enabled,
	}
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the path to the project config file if it exists.
func GetProjectConfigPath() string {
	return findProjectConfig()
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("anthropic.api_key", "")
	v.SetDefault("anthropic.use_bedrock", d.Anthropic.UseBedrock)
	v.SetDefault("openai.base_url", "")
	v.SetDefault("openai.model", d.OpenAI.Model)
	v.SetDefault("ollama.server_url", "")
	v.SetDefault("ollama.model", d.Ollama.Model)

	v.SetDefault("oracle.strategy", d.Oracle.Strategy)
	v.SetDefault("oracle.preference", d.Oracle.Preference)
	v.SetDefault("oracle.model", d.Oracle.Model)
	v.SetDefault("oracle.max_tokens", d.Oracle.MaxTokens)
	v.SetDefault("oracle.min_interval", "0s")
	v.SetDefault("oracle.cli_path", d.Oracle.CLIPath)

	v.SetDefault("generation.excerpt_lines", d.Generation.ExcerptLines)
	v.SetDefault("generation.excerpt_chars", d.Generation.ExcerptChars)
	v.SetDefault("generation.output_dir", d.Generation.OutputDir)
	v.SetDefault("generation.document_name", d.Generation.DocumentName)
	v.SetDefault("generation.html", d.Generation.HTML)
	v.SetDefault("generation.timeout", "0s")

	v.SetDefault("review.enabled", d.Review.Enabled)
}

// getUserConfigDir returns the XDG config directory for longform.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "longform")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "longform")
	}
	return filepath.Join(home, ".config", "longform")
}

// findProjectConfig searches for .longform.yaml in the current directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ProjectConfigName)
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	return ""
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		OpenAI: OpenAIConfig{
			Model: "gpt-4o-mini",
		},
		Ollama: OllamaConfig{
			Model: "llama3.1",
		},
		Oracle: OracleConfig{
			Strategy:   "auto",
			Preference: []string{"api", "cli", "openai", "ollama"},
			Model:      "claude-sonnet-4-5-20250929",
			MaxTokens:  8192,
			CLIPath:    "claude",
		},
		Generation: GenerationConfig{
			ExcerptLines: 2000,
			OutputDir:    ".longform",
			DocumentName: "document.md",
		},
		Review: ReviewConfig{
			Enabled: true,
		},
	}
}
