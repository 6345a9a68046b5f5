package app

import (
	"context"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/ibeckermayer/rina/internal/agent"
	"github.com/ibeckermayer/rina/internal/chat"
	"github.com/ibeckermayer/rina/internal/config"
	"github.com/ibeckermayer/rina/internal/scheduler"
	"github.com/ibeckermayer/rina/internal/social"
	"github.com/ibeckermayer/rina/internal/state"
	"github.com/ibeckermayer/rina/internal/store"
)

// Runtime is an App wired from config, plus what must be shut down with it.
type Runtime struct {
	App       *App
	Agents    []*agent.Agent
	State     *state.Manager
	Scheduler *scheduler.Scheduler

	closeState func() error
}

// OpenState opens the configured backend and loads it into a Manager.
// The returned func closes the backend.
func OpenState(ctx context.Context, cfg *config.Config) (*state.Manager, func() error, error) {
	policy, err := state.ParseFlushPolicy(cfg.State.FlushPolicy)
	if err != nil {
		return nil, nil, err
	}
	dir, err := cfg.StateDir()
	if err != nil {
		return nil, nil, err
	}

	var backend state.Backend
	closer := func() error { return nil }
	switch cfg.State.Backend {
	case config.BackendSQLite:
		s, err := store.New(filepath.Join(dir, "rina.db"))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open state database: %w", err)
		}
		backend, closer = s, s.Close
	case config.BackendJSON, "":
		backend = state.NewJSONBackend(dir)
	default:
		return nil, nil, fmt.Errorf("unknown state backend: %s", cfg.State.Backend)
	}

	m := state.NewManager(backend, policy, cfg.State.MemoryLimit)
	if _, err := m.Load(ctx); err != nil {
		closer()
		return nil, nil, err
	}
	return m, closer, nil
}

// Build wires every component named in cfg. withRelay false skips the
// chat relay, for one-shot CLI runs.
func Build(ctx context.Context, cfg *config.Config, log *zap.Logger, withRelay bool) (*Runtime, error) {
	opts, err := OptionsFromConfig(cfg)
	if err != nil {
		return nil, err
	}

	st, closeState, err := OpenState(ctx, cfg)
	if err != nil {
		return nil, err
	}

	agents, err := agent.FromConfig(cfg, log)
	if err != nil {
		closeState()
		return nil, fmt.Errorf("failed to build agents: %w", err)
	}
	driven := make([]Agent, 0, len(agents))
	for _, ag := range agents {
		driven = append(driven, ag)
	}

	sched, err := scheduler.New("Local", log)
	if err != nil {
		closeState()
		return nil, err
	}
	if st.Policy() == state.FlushBatched {
		if err := sched.AddJob("flush-state", cfg.State.FlushSchedule, st.Flush); err != nil {
			closeState()
			return nil, err
		}
	}

	deps := Deps{
		Agents:    driven,
		Social:    social.NewTwitter(cfg.Twitter, log),
		State:     st,
		Scheduler: sched,
	}
	if withRelay && cfg.Telegram.Enabled && len(agents) > 0 {
		relay := chat.NewRelay(chat.NewTelegram(cfg.Telegram.Token, log), agents[0], cfg.Telegram.BotName, log)
		deps.Relay = chat.NewSupervisor(relay, chat.SupervisorOptions{
			RestartDelay: cfg.Relay.RestartDelay.Duration,
			MaxRestarts:  cfg.Relay.MaxRestarts,
			OnRestart:    CountRelayRestart,
		}, log)
	}

	return &Runtime{
		App:        New(deps, opts, log),
		Agents:     agents,
		State:      st,
		Scheduler:  sched,
		closeState: closeState,
	}, nil
}

// Close stops scheduled jobs, writes any pending state and closes the backend.
func (r *Runtime) Close(ctx context.Context) error {
	<-r.Scheduler.Stop().Done()

	flushErr := r.State.Flush(ctx)
	if err := r.closeState(); err != nil && flushErr == nil {
		return err
	}
	return flushErr
}
