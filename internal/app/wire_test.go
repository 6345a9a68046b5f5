package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ibeckermayer/rina/internal/config"
	"github.com/ibeckermayer/rina/internal/state"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.State.Dir = t.TempDir()
	cfg.LLM.CacheExchanges = false
	cfg.Telegram.Enabled = false
	cfg.Agents = []config.AgentConfig{{Name: "rina", Prompt: "p"}, {Prompt: "q"}}
	return cfg
}

func TestBuild_BatchedJSON(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.State.FlushPolicy = string(state.FlushBatched)

	rt, err := Build(ctx, cfg, zap.NewNop(), true)
	require.NoError(t, err)

	assert.Len(t, rt.Agents, 2)
	assert.Equal(t, []string{"rina", "agent-1"}, rt.App.Status().Agents)
	assert.Nil(t, rt.App.Status().Relay)

	jobs := rt.Scheduler.ListJobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, "flush-state", jobs[0].Name)

	require.NoError(t, rt.State.Append(ctx, state.MemoryEntry("pending")))
	require.NoError(t, rt.Close(ctx))

	reloaded, err := state.NewJSONBackend(cfg.State.Dir).Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"pending"}, reloaded.Memory)
}

func TestBuild_SQLiteWithRelay(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	cfg.State.Backend = config.BackendSQLite
	cfg.Telegram.Enabled = true
	cfg.Telegram.Token = "123:abc"

	rt, err := Build(ctx, cfg, zap.NewNop(), true)
	require.NoError(t, err)

	assert.Empty(t, rt.Scheduler.ListJobs())
	require.NotNil(t, rt.App.Status().Relay)
	assert.FileExists(t, filepath.Join(cfg.State.Dir, "rina.db"))

	require.NoError(t, rt.Close(ctx))
}

func TestBuild_BadPolicy(t *testing.T) {
	cfg := testConfig(t)
	cfg.Notifications.MarkPolicy = "sometimes"

	_, err := Build(context.Background(), cfg, zap.NewNop(), false)
	assert.Error(t, err)
}
