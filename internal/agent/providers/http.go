package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ibeckermayer/rina/internal/config"
	"github.com/ibeckermayer/rina/internal/store"
)

const (
	defaultMessagesURL = "https://api.anthropic.com/v1/messages"
	anthropicVersion   = "2023-06-01"
)

// HTTPProvider implements agent.Completer by calling the Messages API
// directly. It is meant for gateways that speak the Anthropic wire format.
type HTTPProvider struct {
	apiKey   string
	url      string
	opts     Options
	client   *http.Client
	recorder Recorder
	log      *zap.SugaredLogger
}

// NewHTTPProvider creates a new raw-HTTP provider
func NewHTTPProvider(apiKey string, opts Options, rec Recorder, log *zap.Logger) *HTTPProvider {
	url := defaultMessagesURL
	if opts.BaseURL != "" {
		url = strings.TrimRight(opts.BaseURL, "/") + "/v1/messages"
	}
	return &HTTPProvider{
		apiKey: apiKey,
		url:    url,
		opts:   opts,
		client: &http.Client{
			Timeout: 120 * time.Second, // LLM calls can be slow
		},
		recorder: rec,
		log:      log.Named("anthropic-http").Sugar(),
	}
}

// messagesRequest represents the request body for the Messages API
type messagesRequest struct {
	Model       string           `json:"model"`
	MaxTokens   int              `json:"max_tokens"`
	Temperature float64          `json:"temperature"`
	System      string           `json:"system,omitempty"`
	Messages    []messageContent `json:"messages"`
}

type messageContent struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// messagesResponse represents the response from the Messages API
type messagesResponse struct {
	Content []contentBlock `json:"content"`
	Error   *apiError      `json:"error,omitempty"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type apiError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Complete sends a prompt and returns the first text block of the reply
func (c *HTTPProvider) Complete(ctx context.Context, system, prompt string) (string, error) {
	exchange := store.LLMExchange{
		Provider: config.ProviderAnthropicHTTP,
		Model:    c.opts.Model,
		System:   system,
		Prompt:   prompt,
	}

	text, err := c.complete(ctx, system, prompt)
	if err != nil {
		exchange.Error = err.Error()
	}
	exchange.Response = text
	record(c.recorder, c.log, exchange)

	return text, err
}

func (c *HTTPProvider) complete(ctx context.Context, system, prompt string) (string, error) {
	reqBody := messagesRequest{
		Model:       c.opts.Model,
		MaxTokens:   c.opts.MaxTokens,
		Temperature: c.opts.Temperature,
		System:      system,
		Messages: []messageContent{
			{Role: "user", Content: prompt},
		},
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(jsonBody))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to call Claude API: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("Claude API returned status %d: %s", resp.StatusCode, string(body))
	}

	var parsed messagesResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("failed to parse Claude response: %w", err)
	}

	if parsed.Error != nil {
		return "", fmt.Errorf("Claude API error: %s - %s", parsed.Error.Type, parsed.Error.Message)
	}

	for _, block := range parsed.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}
	return "", nil
}
