package oracle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/bedrock"
	"github.com/anthropics/anthropic-sdk-go/option"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
)

// AnthropicOptions configures the api strategy.
type AnthropicOptions struct {
	// APIKey is the Anthropic API key. Ignored when UseBedrock is set.
	APIKey string
	// UseBedrock routes requests through AWS Bedrock.
	UseBedrock bool
	// AWSRegion is the AWS region for Bedrock (e.g., "us-west-2").
	AWSRegion string
	// AWSProfile is the optional AWS profile name to use.
	AWSProfile string
	// MaxTokens bounds a single response.
	MaxTokens int64
	// BaseURL overrides the API endpoint.
	BaseURL string
}

// Anthropic implements the api strategy: one Messages request per prompt.
type Anthropic struct {
	opts    AnthropicOptions
	tracker *TokenTracker

	once   sync.Once
	client anthropic.Client
}

// NewAnthropic creates an api strategy oracle. The SDK client is built on first use.
func NewAnthropic(opts AnthropicOptions) *Anthropic {
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 8192
	}
	return &Anthropic{opts: opts, tracker: NewTokenTracker()}
}

// Name implements Oracle.
func (a *Anthropic) Name() string { return StrategyAPI }

// Available implements Oracle.
func (a *Anthropic) Available() error {
	if a.opts.UseBedrock {
		return nil
	}
	if a.opts.APIKey == "" {
		return errors.New("no Anthropic API key configured")
	}
	return nil
}

// Tracker implements Metered.
func (a *Anthropic) Tracker() *TokenTracker {
	return a.tracker
}

func (a *Anthropic) sdk(ctx context.Context) *anthropic.Client {
	a.once.Do(func() {
		var opts []option.RequestOption
		if a.opts.UseBedrock {
			var loadOpts []func(*awsconfig.LoadOptions) error
			if a.opts.AWSRegion != "" {
				loadOpts = append(loadOpts, awsconfig.WithRegion(a.opts.AWSRegion))
			}
			if a.opts.AWSProfile != "" {
				loadOpts = append(loadOpts, awsconfig.WithSharedConfigProfile(a.opts.AWSProfile))
			}
			opts = append(opts, bedrock.WithLoadDefaultConfig(ctx, loadOpts...))
		} else {
			opts = append(opts, option.WithAPIKey(a.opts.APIKey))
		}
		if a.opts.BaseURL != "" {
			opts = append(opts, option.WithBaseURL(a.opts.BaseURL))
		}
		a.client = anthropic.NewClient(opts...)
	})
	return &a.client
}

// Generate implements Oracle.
func (a *Anthropic) Generate(ctx context.Context, model, prompt string) (string, error) {
	if err := a.Available(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	sdkModel := anthropic.Model(model)
	if a.opts.UseBedrock {
		sdkModel = translateModelForBedrock(sdkModel)
	}

	resp, err := a.sdk(ctx).Messages.New(ctx, anthropic.MessageNewParams{
		Model:     sdkModel,
		MaxTokens: a.opts.MaxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic messages request: %w", err)
	}

	a.tracker.Add(model, resp.Usage.InputTokens, resp.Usage.OutputTokens)

	var sb strings.Builder
	for _, block := range resp.Content {
		if variant, ok := block.AsAny().(anthropic.TextBlock); ok {
			sb.WriteString(variant.Text)
		}
	}
	return sb.String(), nil
}

// translateModelForBedrock converts standard model names to Bedrock
// cross-region inference profiles (us.anthropic.{model}-v1:0).
func translateModelForBedrock(model anthropic.Model) anthropic.Model {
	s := string(model)
	if s == "" || strings.HasPrefix(s, "us.anthropic.") || strings.HasPrefix(s, "anthropic.") {
		return model
	}
	if strings.HasPrefix(s, "claude-") {
		return anthropic.Model("us.anthropic." + s + "-v1:0")
	}
	return model
}
