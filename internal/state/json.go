package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

const (
	memoryFile    = "memory.json"
	processedFile = "processed.json"
)

// processedNotifications is the on-disk layout of the processed set
type processedNotifications struct {
	TweetIDs []string `json:"tweet_ids"`
}

// JSONBackend keeps state in two JSON files under a directory
type JSONBackend struct {
	dir string
}

// NewJSONBackend returns a backend rooted at dir
func NewJSONBackend(dir string) *JSONBackend {
	return &JSONBackend{dir: dir}
}

// Load reads both files. Missing files load as empty collections.
func (b *JSONBackend) Load(_ context.Context) (State, error) {
	s := New()

	if err := readJSON(filepath.Join(b.dir, memoryFile), &s.Memory); err != nil {
		return State{}, err
	}

	var pn processedNotifications
	if err := readJSON(filepath.Join(b.dir, processedFile), &pn); err != nil {
		return State{}, err
	}
	for _, id := range pn.TweetIDs {
		s.Processed[id] = struct{}{}
	}

	return s, nil
}

// Save rewrites both files
func (b *JSONBackend) Save(_ context.Context, s State) error {
	if err := os.MkdirAll(b.dir, 0700); err != nil {
		return err
	}

	memory := s.Memory
	if memory == nil {
		memory = []string{}
	}
	if err := writeJSON(filepath.Join(b.dir, memoryFile), memory); err != nil {
		return err
	}
	return writeJSON(filepath.Join(b.dir, processedFile), processedNotifications{TweetIDs: s.ProcessedIDs()})
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}

// writeJSON writes through a temp file and rename so a crash mid-write
// never leaves a truncated file behind.
func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
