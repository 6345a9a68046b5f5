package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/ibeckermayer/rina/internal/config"
)

// LLMExchange represents a prompt/response pair for caching
type LLMExchange struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Provider  string    `json:"provider"` // e.g. "anthropic"
	Model     string    `json:"model"`
	System    string    `json:"system,omitempty"`
	Prompt    string    `json:"prompt"`
	Response  string    `json:"response"`
	Error     string    `json:"error,omitempty"`
}

// ExchangeCache writes LLM exchanges to a directory, one JSON file each.
type ExchangeCache struct {
	dir string
}

// NewExchangeCache returns a cache rooted at dir.
func NewExchangeCache(dir string) *ExchangeCache {
	return &ExchangeCache{dir: dir}
}

// LLMCacheDir returns the path to the LLM cache directory.
// On Linux this is ~/.cache/rina/llm/
func LLMCacheDir() (string, error) {
	cacheDir, err := config.CacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(cacheDir, "llm"), nil
}

// Dir returns the directory exchanges are written to.
func (c *ExchangeCache) Dir() string {
	return c.dir
}

// Record serializes an LLM exchange to JSON and writes it to a timestamped file.
// Returns the path to the saved file.
func (c *ExchangeCache) Record(exchange LLMExchange) (string, error) {
	if err := os.MkdirAll(c.dir, 0755); err != nil {
		return "", err
	}

	if exchange.ID == "" {
		exchange.ID = uuid.NewString()
	}
	if exchange.Timestamp.IsZero() {
		exchange.Timestamp = time.Now()
	}

	// Several exchanges can land in the same second, so the id disambiguates.
	filename := exchange.Timestamp.Format("2006-01-02T15-04-05") + "-" + exchange.ID[:8] + ".json"
	path := filepath.Join(c.dir, filename)

	data, err := json.MarshalIndent(exchange, "", "  ")
	if err != nil {
		return "", err
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", err
	}

	return path, nil
}
