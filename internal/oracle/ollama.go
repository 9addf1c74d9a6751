package oracle

import (
	"context"
	"errors"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
)

// OllamaOptions configures the ollama strategy.
type OllamaOptions struct {
	ServerURL string
	// Model replaces Claude model names, which this backend cannot serve.
	Model     string
	MaxTokens int
}

// Ollama implements the ollama strategy: single-prompt batch generation
// against a local Ollama server.
type Ollama struct {
	opts OllamaOptions
}

// NewOllama creates an ollama strategy oracle.
func NewOllama(opts OllamaOptions) *Ollama {
	return &Ollama{opts: opts}
}

// Name implements Oracle.
func (o *Ollama) Name() string { return StrategyOllama }

// Available implements Oracle. Only configuration is checked.
func (o *Ollama) Available() error {
	if o.opts.ServerURL == "" {
		return errors.New("no Ollama server URL configured")
	}
	return nil
}

// Generate implements Oracle. A client is built per call since the model
// is chosen by the caller.
func (o *Ollama) Generate(ctx context.Context, model, prompt string) (string, error) {
	llm, err := ollama.New(
		ollama.WithModel(backendModel(model, o.opts.Model)),
		ollama.WithServerURL(o.opts.ServerURL),
	)
	if err != nil {
		return "", fmt.Errorf("create ollama client: %w", err)
	}

	var callOpts []llms.CallOption
	if o.opts.MaxTokens > 0 {
		callOpts = append(callOpts, llms.WithMaxTokens(o.opts.MaxTokens))
	}

	out, err := llms.GenerateFromSinglePrompt(ctx, llm, prompt, callOpts...)
	if err != nil {
		return "", fmt.Errorf("ollama generate: %w", err)
	}
	return out, nil
}
