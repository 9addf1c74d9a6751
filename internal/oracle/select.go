package oracle

import (
	"fmt"
	"strings"

	"github.com/ShayCichocki/longform/internal/config"
)

// New builds the oracle for one named strategy from configuration.
func New(strategy string, cfg *config.Config) (Oracle, error) {
	switch strategy {
	case StrategyAPI:
		key, _, _ := config.AnthropicKey(cfg)
		return NewAnthropic(AnthropicOptions{
			APIKey:     key,
			UseBedrock: cfg.Anthropic.UseBedrock,
			AWSRegion:  cfg.Anthropic.AWSRegion,
			AWSProfile: cfg.Anthropic.AWSProfile,
			MaxTokens:  int64(cfg.Oracle.MaxTokens),
		}), nil
	case StrategyCLI:
		return NewCLI(cfg.Oracle.CLIPath, ""), nil
	case StrategyOpenAI:
		key, _, _ := config.OpenAIKey(cfg)
		return NewOpenAI(OpenAIOptions{
			APIKey:    key,
			BaseURL:   cfg.OpenAI.BaseURL,
			Model:     cfg.OpenAI.Model,
			MaxTokens: cfg.Oracle.MaxTokens,
		}), nil
	case StrategyOllama:
		return NewOllama(OllamaOptions{
			ServerURL: cfg.Ollama.ServerURL,
			Model:     cfg.Ollama.Model,
			MaxTokens: cfg.Oracle.MaxTokens,
		}), nil
	default:
		return nil, fmt.Errorf("unknown oracle strategy %q", strategy)
	}
}

// Select resolves strategy (or cfg.Oracle.Strategy when empty) to an
// available oracle, wrapped with the configured call pacing. For auto the
// preference order is walked and the first available strategy wins. When
// nothing can be used the error wraps ErrUnavailable and lists the reasons.
func Select(cfg *config.Config, strategy string) (Oracle, error) {
	if strategy == "" {
		strategy = cfg.Oracle.Strategy
	}

	candidates := []string{strategy}
	if strategy == StrategyAuto || strategy == "" {
		candidates = cfg.Oracle.Preference
		if len(candidates) == 0 {
			candidates = []string{StrategyAPI, StrategyCLI, StrategyOpenAI, StrategyOllama}
		}
	}

	var reasons []string
	for _, name := range candidates {
		o, err := New(name, cfg)
		if err != nil {
			return nil, err
		}
		if err := o.Available(); err != nil {
			reasons = append(reasons, fmt.Sprintf("%s: %v", name, err))
			continue
		}
		return WithMinInterval(o, cfg.Oracle.MinInterval), nil
	}

	return nil, fmt.Errorf("%w (%s)", ErrUnavailable, strings.Join(reasons, "; "))
}
