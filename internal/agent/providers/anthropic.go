package providers

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"

	"github.com/ibeckermayer/rina/internal/config"
	"github.com/ibeckermayer/rina/internal/store"
)

// AnthropicProvider implements agent.Completer using Anthropic's Go SDK
type AnthropicProvider struct {
	client   *anthropic.Client
	provider string // e.g. "anthropic"
	opts     Options
	recorder Recorder
	log      *zap.SugaredLogger
}

// NewAnthropicProvider creates a new Anthropic provider. The SDK's built-in
// retries are disabled; a failed call surfaces to the caller as-is.
func NewAnthropicProvider(apiKey string, opts Options, rec Recorder, log *zap.Logger) *AnthropicProvider {
	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}

	client := anthropic.NewClient(reqOpts...)
	return &AnthropicProvider{
		client:   &client,
		provider: config.ProviderAnthropic,
		opts:     opts,
		recorder: rec,
		log:      log.Named("anthropic").Sugar(),
	}
}

// Complete sends a single user prompt under the given system preamble and
// returns the first text block of the reply. An answer without text yields "".
func (c *AnthropicProvider) Complete(ctx context.Context, system, prompt string) (string, error) {
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(c.opts.Model),
		MaxTokens:   int64(c.opts.MaxTokens),
		Temperature: anthropic.Float(c.opts.Temperature),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	exchange := store.LLMExchange{
		Provider: c.provider,
		Model:    c.opts.Model,
		System:   system,
		Prompt:   prompt,
	}

	message, err := c.client.Messages.New(ctx, params)
	if err != nil {
		exchange.Error = err.Error()
		record(c.recorder, c.log, exchange)
		return "", fmt.Errorf("failed to call Claude API: %w", err)
	}

	var responseText string
	for _, block := range message.Content {
		if block.Type == "text" {
			responseText = block.Text
			break
		}
	}

	exchange.Response = responseText
	record(c.recorder, c.log, exchange)

	return responseText, nil
}
