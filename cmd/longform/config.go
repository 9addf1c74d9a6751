package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/longform/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config [key] [value]",
	Short: "Manage configuration",
	Long: `View or modify longform configuration.

Without arguments, displays current configuration.
With one argument (key), displays the value for that key.
With two arguments (key value), sets the configuration value.

Configuration is stored at ~/.config/longform/config.yaml
Project-specific overrides can be placed in .longform.yaml
API keys are always displayed masked.`,
	Args: cobra.MaximumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		switch len(args) {
		case 0:
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			displayAllConfig(cfg)
		case 1:
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			value, err := getConfigValue(cfg, args[0])
			if err != nil {
				return err
			}
			fmt.Println(value)
		default:
			return setConfigKey(args[0], args[1])
		}
		return nil
	},
}

// displayAllConfig prints all configuration values in key order.
func displayAllConfig(cfg *config.Config) {
	values := config.Flatten(cfg)
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		v, _ := getConfigValue(cfg, k)
		fmt.Printf("%s: %s\n", k, v)
	}
	if path := config.GetProjectConfigPath(); path != "" {
		fmt.Printf("\n(project overrides from %s)\n", path)
	}
}

// setConfigKey updates the user config file only, so values that came
// from the environment or a project file are not copied into it.
func setConfigKey(key, value string) error {
	cfg, err := config.LoadUserFile()
	if err != nil {
		return err
	}

	if err := setConfigValue(cfg, key, value); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := config.Save(cfg); err != nil {
		return fmt.Errorf("save config: %w", err)
	}

	if isSecret(key) {
		value = config.MaskAPIKey(value)
	}
	fmt.Printf("Set %s = %s\n", key, value)
	return nil
}

func isSecret(key string) bool {
	return strings.HasSuffix(strings.ToLower(key), "api_key")
}

// getConfigValue retrieves a configuration value by dot-notation key.
func getConfigValue(cfg *config.Config, key string) (string, error) {
	key = strings.ToLower(key)
	value, ok := config.Flatten(cfg)[key]
	if !ok {
		return "", fmt.Errorf("unknown configuration key: %s", key)
	}

	switch key {
	case "anthropic.api_key":
		k, _, _ := config.AnthropicKey(cfg)
		return config.MaskAPIKey(k), nil
	case "openai.api_key":
		k, _, _ := config.OpenAIKey(cfg)
		return config.MaskAPIKey(k), nil
	}

	switch v := value.(type) {
	case []string:
		return strings.Join(v, ","), nil
	case string:
		if v == "" {
			return "(not set)", nil
		}
		return v, nil
	default:
		return fmt.Sprint(v), nil
	}
}

// setConfigValue sets a configuration value by dot-notation key.
func setConfigValue(cfg *config.Config, key, value string) error {
	var err error
	switch strings.ToLower(key) {
	case "anthropic.api_key":
		cfg.Anthropic.APIKey = value
	case "anthropic.use_bedrock":
		cfg.Anthropic.UseBedrock, err = parseBool(key, value)
	case "anthropic.aws_region":
		cfg.Anthropic.AWSRegion = value
	case "anthropic.aws_profile":
		cfg.Anthropic.AWSProfile = value
	case "openai.api_key":
		cfg.OpenAI.APIKey = value
	case "openai.base_url":
		cfg.OpenAI.BaseURL = value
	case "openai.model":
		cfg.OpenAI.Model = value
	case "ollama.server_url":
		cfg.Ollama.ServerURL = value
	case "ollama.model":
		cfg.Ollama.Model = value
	case "oracle.strategy":
		cfg.Oracle.Strategy = value
	case "oracle.preference":
		var prefs []string
		for _, p := range strings.Split(value, ",") {
			if p = strings.TrimSpace(p); p != "" {
				prefs = append(prefs, p)
			}
		}
		cfg.Oracle.Preference = prefs
	case "oracle.model":
		cfg.Oracle.Model = value
	case "oracle.max_tokens":
		cfg.Oracle.MaxTokens, err = parseInt(key, value)
	case "oracle.min_interval":
		cfg.Oracle.MinInterval, err = parseDuration(key, value)
	case "oracle.cli_path":
		cfg.Oracle.CLIPath = value
	case "generation.excerpt_lines":
		cfg.Generation.ExcerptLines, err = parseInt(key, value)
	case "generation.excerpt_chars":
		cfg.Generation.ExcerptChars, err = parseInt(key, value)
	case "generation.output_dir":
		cfg.Generation.OutputDir = value
	case "generation.document_name":
		cfg.Generation.DocumentName = value
	case "generation.html":
		cfg.Generation.HTML, err = parseBool(key, value)
	case "generation.timeout":
		cfg.Generation.Timeout, err = parseDuration(key, value)
	case "review.enabled":
		cfg.Review.Enabled, err = parseBool(key, value)
	default:
		return fmt.Errorf("unknown configuration key: %s", key)
	}
	return err
}

func parseBool(key, value string) (bool, error) {
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("invalid boolean for %s: %w", key, err)
	}
	return b, nil
}

func parseInt(key, value string) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %w", key, err)
	}
	return n, nil
}

func parseDuration(key, value string) (time.Duration, error) {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid duration for %s: %w", key, err)
	}
	return d, nil
}
