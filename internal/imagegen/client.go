// Package imagegen submits image jobs to the Heurist sequencer and fetches
// the rendered images.
package imagegen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/ibeckermayer/rina/internal/config"
	"github.com/ibeckermayer/rina/internal/types"
)

const (
	imageWidth    = 1024
	imageHeight   = 1024
	guidanceScale = 7.5
)

// Client talks to the image job queue
type Client struct {
	apiKey string
	cfg    config.ImageConfig
	http   *http.Client
	now    func() time.Time
}

// New creates an image job client
func New(cfg config.ImageConfig) *Client {
	return &Client{
		apiKey: cfg.APIKey,
		cfg:    cfg,
		http:   &http.Client{},
		now:    time.Now,
	}
}

// JobRequest is the body posted to the job queue
type JobRequest struct {
	ModelInput ModelInput `json:"model_input"`
	ModelID    string     `json:"model_id"`
	Deadline   int64      `json:"deadline"`
	Priority   int        `json:"priority"`
	JobID      string     `json:"job_id"`
}

type ModelInput struct {
	SD StableDiffusionInput `json:"SD"`
}

type StableDiffusionInput struct {
	Width         int     `json:"width"`
	Height        int     `json:"height"`
	Prompt        string  `json:"prompt"`
	NegPrompt     string  `json:"neg_prompt"`
	NumIterations int     `json:"num_iterations"`
	GuidanceScale float64 `json:"guidance_scale"`
}

// NewJobRequest builds the job body for prompt at time now
func (c *Client) NewJobRequest(prompt string, now time.Time) JobRequest {
	return JobRequest{
		ModelInput: ModelInput{
			SD: StableDiffusionInput{
				Width:         imageWidth,
				Height:        imageHeight,
				Prompt:        prompt,
				NegPrompt:     c.cfg.NegPrompt,
				NumIterations: c.cfg.Iterations,
				GuidanceScale: guidanceScale,
			},
		},
		ModelID:  c.cfg.Model,
		Deadline: now.Add(time.Duration(c.cfg.DeadlineS) * time.Second).Unix(),
		Priority: c.cfg.Priority,
		// A ULID starts with the millisecond timestamp, so ids sort by submission time.
		JobID: "job_" + ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String(),
	}
}

// Submit posts a single blocking job and returns the image URL the queue
// answers with. There is no polling; completion is up to the remote side.
func (c *Client) Submit(ctx context.Context, prompt string) (string, error) {
	if c.apiKey == "" {
		return "", fmt.Errorf("%w: image.api_key (HEURIS_API)", config.ErrMissingConfig)
	}
	if prompt == "" {
		return "", fmt.Errorf("%w: image.prompt (IMAGE_PROMPT)", config.ErrMissingConfig)
	}

	jsonBody, err := json.Marshal(c.NewJobRequest(prompt, c.now()))
	if err != nil {
		return "", fmt.Errorf("failed to marshal job: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.SubmitURL, bytes.NewReader(jsonBody))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to submit image job: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read job response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("image job returned status %d: %s", resp.StatusCode, string(body))
	}

	url := ParseJobURL(string(body))
	if url == "" {
		return "", fmt.Errorf("image job: %w", types.ErrEmptyResponse)
	}
	return url, nil
}

// ParseJobURL extracts the image URL from a raw job response, which the
// queue returns as a JSON string literal.
func ParseJobURL(body string) string {
	return strings.Trim(strings.TrimSpace(body), `"`)
}

// Fetch downloads the image at url
func (c *Client) Fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("image download returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("image download: %w", types.ErrEmptyResponse)
	}
	return data, nil
}
