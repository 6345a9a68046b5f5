package agent

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ibeckermayer/rina/internal/agent/providers"
	"github.com/ibeckermayer/rina/internal/config"
	"github.com/ibeckermayer/rina/internal/imagegen"
	"github.com/ibeckermayer/rina/internal/store"
	"github.com/ibeckermayer/rina/internal/types"
)

// MaxPostChars is the length budget given to the model. It is an
// instruction only; generated text is not truncated.
const MaxPostChars = 280

// Completer defines the interface for LLM providers
type Completer interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// ImageSource submits image jobs and downloads their results
type ImageSource interface {
	Submit(ctx context.Context, prompt string) (string, error)
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Agent binds a persona to a completion provider
type Agent struct {
	name        string
	persona     string
	completer   Completer
	images      ImageSource
	imagePrompt string
}

// New creates an agent. images may be nil when the agent never posts images.
func New(name, persona string, completer Completer, images ImageSource, imagePrompt string) *Agent {
	return &Agent{
		name:        name,
		persona:     persona,
		completer:   completer,
		images:      images,
		imagePrompt: imagePrompt,
	}
}

// NewCompleter creates the configured LLM provider
func NewCompleter(cfg config.LLMConfig, rec providers.Recorder, log *zap.Logger) (Completer, error) {
	opts := providers.Options{
		Model:       cfg.Model,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
		BaseURL:     cfg.BaseURL,
	}

	switch cfg.Provider {
	case config.ProviderAnthropic:
		return providers.NewAnthropicProvider(cfg.APIKey, opts, rec, log), nil
	case config.ProviderAnthropicHTTP:
		return providers.NewHTTPProvider(cfg.APIKey, opts, rec, log), nil
	default:
		return nil, fmt.Errorf("unknown LLM provider: %s", cfg.Provider)
	}
}

// FromConfig builds one agent per configured persona, all sharing a
// single provider and image client.
func FromConfig(cfg *config.Config, log *zap.Logger) ([]*Agent, error) {
	var rec providers.Recorder
	if cfg.LLM.CacheExchanges {
		dir, err := store.LLMCacheDir()
		if err != nil {
			return nil, err
		}
		cache := store.NewExchangeCache(dir)
		log.Debug("caching LLM exchanges", zap.String("dir", cache.Dir()))
		rec = cache
	}

	completer, err := NewCompleter(cfg.LLM, rec, log)
	if err != nil {
		return nil, err
	}
	images := imagegen.New(cfg.Image)

	agents := make([]*Agent, 0, len(cfg.Agents))
	for i, a := range cfg.Agents {
		name := a.Name
		if name == "" {
			name = fmt.Sprintf("agent-%d", i)
		}
		agents = append(agents, New(name, a.Prompt, completer, images, cfg.Image.Prompt))
	}
	return agents, nil
}

// Name returns the persona's name
func (a *Agent) Name() string {
	return a.name
}

// Classify decides whether an inbound post deserves a reply
func (a *Agent) Classify(ctx context.Context, post string) (Decision, error) {
	raw, err := a.completer.Complete(ctx, a.persona, BuildClassifyPrompt(post))
	if err != nil {
		return Decision{}, fmt.Errorf("failed to classify post: %w", err)
	}
	return ParseDecision(raw), nil
}

// GenerateReply writes a reply to an inbound post
func (a *Agent) GenerateReply(ctx context.Context, post string) (string, error) {
	return a.generate(ctx, "reply", BuildReplyPrompt(post))
}

// GeneratePost writes a standalone post
func (a *Agent) GeneratePost(ctx context.Context) (string, error) {
	return a.generate(ctx, "post", BuildPostPrompt())
}

// GenerateChatReply writes a conversational reply for the chat relay
func (a *Agent) GenerateChatReply(ctx context.Context, message string) (string, error) {
	return a.generate(ctx, "chat reply", BuildChatPrompt(message))
}

func (a *Agent) generate(ctx context.Context, what, prompt string) (string, error) {
	response, err := a.completer.Complete(ctx, a.persona, prompt)
	if err != nil {
		return "", fmt.Errorf("failed to generate %s: %w", what, err)
	}
	text := strings.TrimSpace(response)
	if text == "" {
		return "", fmt.Errorf("failed to generate %s: %w", what, types.ErrEmptyResponse)
	}
	return text, nil
}

// GenerateImage submits an image job using the configured base prompt and
// returns the resulting image URL
func (a *Agent) GenerateImage(ctx context.Context) (string, error) {
	if a.images == nil {
		return "", fmt.Errorf("agent %s has no image source", a.name)
	}
	return a.images.Submit(ctx, a.imagePrompt)
}

// FetchImage downloads a generated image
func (a *Agent) FetchImage(ctx context.Context, url string) ([]byte, error) {
	if a.images == nil {
		return nil, fmt.Errorf("agent %s has no image source", a.name)
	}
	return a.images.Fetch(ctx, url)
}
