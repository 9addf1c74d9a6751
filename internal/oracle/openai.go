package oracle

import (
	"context"
	"errors"
	"fmt"

	"github.com/sashabaranov/go-openai"
)

// OpenAIOptions configures the openai strategy.
type OpenAIOptions struct {
	APIKey string
	// BaseURL points at any OpenAI-compatible endpoint; empty uses the default.
	BaseURL string
	// Model replaces Claude model names, which this backend cannot serve.
	Model     string
	MaxTokens int
}

// OpenAI implements the openai strategy: one chat completion per prompt.
type OpenAI struct {
	opts    OpenAIOptions
	client  *openai.Client
	tracker *TokenTracker
}

// NewOpenAI creates an openai strategy oracle.
func NewOpenAI(opts OpenAIOptions) *OpenAI {
	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}
	return &OpenAI{
		opts:    opts,
		client:  openai.NewClientWithConfig(cfg),
		tracker: NewTokenTracker(),
	}
}

// Name implements Oracle.
func (o *OpenAI) Name() string { return StrategyOpenAI }

// Available implements Oracle.
func (o *OpenAI) Available() error {
	if o.opts.APIKey == "" {
		return errors.New("no OpenAI API key configured")
	}
	return nil
}

// Tracker implements Metered.
func (o *OpenAI) Tracker() *TokenTracker {
	return o.tracker
}

// Generate implements Oracle.
func (o *OpenAI) Generate(ctx context.Context, model, prompt string) (string, error) {
	model = backendModel(model, o.opts.Model)
	req := openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	}
	if o.opts.MaxTokens > 0 {
		req.MaxCompletionTokens = o.opts.MaxTokens
	}

	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("openai chat completion: %w", err)
	}

	o.tracker.Add(model, int64(resp.Usage.PromptTokens), int64(resp.Usage.CompletionTokens))

	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}
