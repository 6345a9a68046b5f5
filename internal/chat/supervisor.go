package chat

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Runner is anything the supervisor can keep alive
type Runner interface {
	Run(ctx context.Context) error
}

// RelayState is the supervisor's view of the relay
type RelayState string

const (
	StateIdle       RelayState = "idle"
	StateRunning    RelayState = "running"
	StateRestarting RelayState = "restarting"
	StateStopped    RelayState = "stopped"
	StateFailed     RelayState = "failed"
)

// RelayStatus is published on every state change
type RelayStatus struct {
	State     RelayState `json:"state"`
	Restarts  int        `json:"restarts"`
	LastError string     `json:"last_error,omitempty"`
	Since     time.Time  `json:"since"`
	// Handled and Failed count messages across restarts, when the runner reports them.
	Handled int64 `json:"handled"`
	Failed  int64 `json:"failed"`
}

// counter is implemented by runners that count handled messages, like *Relay
type counter interface {
	Counts() (handled, failed int64)
}

// SupervisorOptions controls the restart policy
type SupervisorOptions struct {
	RestartDelay time.Duration
	// MaxRestarts of 0 means restart forever.
	MaxRestarts int
	// OnRestart is called before each restart.
	OnRestart func()
}

// Supervisor runs a Runner and restarts it when it fails
type Supervisor struct {
	runner Runner
	opts   SupervisorOptions
	log    *zap.SugaredLogger

	mu     sync.Mutex
	status RelayStatus
	ch     chan RelayStatus
}

// NewSupervisor creates a supervisor for runner
func NewSupervisor(runner Runner, opts SupervisorOptions, log *zap.Logger) *Supervisor {
	return &Supervisor{
		runner: runner,
		opts:   opts,
		log:    log.Named("relay").Sugar(),
		status: RelayStatus{State: StateIdle, Since: time.Now()},
		ch:     make(chan RelayStatus, 16),
	}
}

// Run blocks until ctx is done or the restart budget is spent
func (s *Supervisor) Run(ctx context.Context) error {
	restarts := 0
	for {
		s.set(StateRunning, restarts, nil)
		err := s.runner.Run(ctx)

		if ctx.Err() != nil {
			s.set(StateStopped, restarts, nil)
			return nil
		}
		if err == nil {
			err = ErrUpdatesClosed
		}

		if s.opts.MaxRestarts > 0 && restarts >= s.opts.MaxRestarts {
			s.set(StateFailed, restarts, err)
			return fmt.Errorf("relay gave up after %d restarts: %w", restarts, err)
		}

		restarts++
		s.set(StateRestarting, restarts, err)
		s.log.Warnw("relay stopped, restarting", "error", err, "restarts", restarts, "delay", s.opts.RestartDelay)
		if s.opts.OnRestart != nil {
			s.opts.OnRestart()
		}

		t := time.NewTimer(s.opts.RestartDelay)
		select {
		case <-ctx.Done():
			t.Stop()
			s.set(StateStopped, restarts, err)
			return nil
		case <-t.C:
		}
	}
}

// Status returns the latest status
func (s *Supervisor) Status() RelayStatus {
	s.mu.Lock()
	st := s.status
	s.mu.Unlock()

	if c, ok := s.runner.(counter); ok {
		st.Handled, st.Failed = c.Counts()
	}
	return st
}

// Updates streams status changes. Slow readers miss intermediate states.
func (s *Supervisor) Updates() <-chan RelayStatus {
	return s.ch
}

func (s *Supervisor) set(state RelayState, restarts int, err error) {
	st := RelayStatus{State: state, Restarts: restarts, Since: time.Now()}
	if err != nil {
		st.LastError = err.Error()
	}

	s.mu.Lock()
	s.status = st
	s.mu.Unlock()

	select {
	case s.ch <- st:
	default:
	}
}
