package app

import (
	"time"

	"github.com/ibeckermayer/rina/internal/chat"
)

const (
	cyclePublish       = "publish"
	cycleNotifications = "notifications"
)

// CycleStatus summarizes one kind of cycle
type CycleStatus struct {
	Runs      int       `json:"runs"`
	Failures  int       `json:"failures"`
	LastRun   time.Time `json:"last_run,omitempty"`
	LastError string    `json:"last_error,omitempty"`
}

// Status is a snapshot for the status endpoint and CLI
type Status struct {
	Agents        []string          `json:"agents"`
	Publish       CycleStatus       `json:"publish"`
	Notifications CycleStatus       `json:"notifications"`
	MemorySize    int               `json:"memory_size"`
	Processed     int               `json:"processed"`
	Relay         *chat.RelayStatus `json:"relay,omitempty"`
}

// Status returns the current snapshot
func (a *App) Status() Status {
	a.mu.Lock()
	st := a.status
	a.mu.Unlock()

	st.Agents = a.agentNames()
	if a.state != nil {
		snap := a.state.Snapshot()
		st.MemorySize = len(snap.Memory)
		st.Processed = len(snap.Processed)
	}
	if a.relay != nil {
		rs := a.relay.Status()
		st.Relay = &rs
	}
	return st
}

// finish records the outcome of a cycle in Status and metrics
func (a *App) finish(cycle string, start time.Time, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	cyclesTotal.WithLabelValues(cycle, result).Inc()
	cycleDuration.WithLabelValues(cycle).Observe(time.Since(start).Seconds())

	a.mu.Lock()
	defer a.mu.Unlock()

	cs := &a.status.Publish
	if cycle == cycleNotifications {
		cs = &a.status.Notifications
	}
	cs.Runs++
	cs.LastRun = start
	cs.LastError = ""
	if err != nil {
		cs.Failures++
		cs.LastError = err.Error()
	}
}
