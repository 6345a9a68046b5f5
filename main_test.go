package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadOrCreateConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rina", "config.toml")

	cfg, created, err := loadOrCreateConfig(path)
	require.NoError(t, err)
	assert.True(t, created)
	require.NotNil(t, cfg)
	assert.FileExists(t, path)

	_, created, err = loadOrCreateConfig(path)
	require.NoError(t, err)
	assert.False(t, created)
}

func TestLoadOrCreateConfig_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("not = [valid"), 0600))

	_, _, err := loadOrCreateConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load config")
}
