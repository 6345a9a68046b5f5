// Package state holds the bot's persisted memory log and processed
// notification set, and decides when they are written to disk.
package state

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// State is a point-in-time copy of everything the bot persists.
type State struct {
	// Memory is every generated post or reply, oldest first.
	Memory []string
	// Processed holds the ids of notifications that have been handled.
	Processed map[string]struct{}
}

// New returns an empty state
func New() State {
	return State{Processed: make(map[string]struct{})}
}

// EntryKind says which collection an Entry belongs to
type EntryKind int

const (
	EntryMemory EntryKind = iota
	EntryProcessed
)

// Entry is a single mutation of the state
type Entry struct {
	Kind  EntryKind
	Value string
}

// MemoryEntry records generated text
func MemoryEntry(text string) Entry {
	return Entry{Kind: EntryMemory, Value: text}
}

// ProcessedEntry records a handled notification id
func ProcessedEntry(id string) Entry {
	return Entry{Kind: EntryProcessed, Value: id}
}

// IsProcessed reports whether id is in the processed set
func (s State) IsProcessed(id string) bool {
	_, ok := s.Processed[id]
	return ok
}

// ProcessedIDs returns the processed set sorted, for stable encoding.
func (s State) ProcessedIDs() []string {
	ids := make([]string, 0, len(s.Processed))
	for id := range s.Processed {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Clone returns a deep copy
func (s State) Clone() State {
	c := State{
		Memory:    append([]string(nil), s.Memory...),
		Processed: make(map[string]struct{}, len(s.Processed)),
	}
	for id := range s.Processed {
		c.Processed[id] = struct{}{}
	}
	return c
}

// Append returns s with e applied. s itself is not modified. A processed id
// that is already present leaves the set unchanged. When memoryLimit is
// positive only the newest memoryLimit texts are kept.
func Append(s State, e Entry, memoryLimit int) State {
	next := s.Clone()
	switch e.Kind {
	case EntryMemory:
		next.Memory = append(next.Memory, e.Value)
		if memoryLimit > 0 && len(next.Memory) > memoryLimit {
			next.Memory = next.Memory[len(next.Memory)-memoryLimit:]
		}
	case EntryProcessed:
		next.Processed[e.Value] = struct{}{}
	}
	return next
}

// Backend loads and saves whole states
type Backend interface {
	Load(ctx context.Context) (State, error)
	Save(ctx context.Context, s State) error
}

// FlushPolicy decides when appended entries reach the backend
type FlushPolicy string

const (
	// FlushPerWrite saves after every append, so a crash loses at most the
	// entry being written.
	FlushPerWrite FlushPolicy = "per_write"
	// FlushBatched saves only when Flush is called.
	FlushBatched FlushPolicy = "batched"
)

// ParseFlushPolicy validates a config value
func ParseFlushPolicy(s string) (FlushPolicy, error) {
	switch FlushPolicy(s) {
	case FlushPerWrite, FlushBatched:
		return FlushPolicy(s), nil
	case "":
		return FlushPerWrite, nil
	default:
		return "", fmt.Errorf("unknown flush policy: %s", s)
	}
}

// Manager owns the live state and applies the flush policy
type Manager struct {
	mu          sync.Mutex
	backend     Backend
	policy      FlushPolicy
	memoryLimit int
	state       State
	dirty       bool
}

// NewManager creates a manager over backend. Call Load before use.
func NewManager(backend Backend, policy FlushPolicy, memoryLimit int) *Manager {
	return &Manager{
		backend:     backend,
		policy:      policy,
		memoryLimit: memoryLimit,
		state:       New(),
	}
}

// Load replaces the in-memory state with the backend's
func (m *Manager) Load(ctx context.Context) (State, error) {
	s, err := m.backend.Load(ctx)
	if err != nil {
		return State{}, fmt.Errorf("failed to load state: %w", err)
	}
	if s.Processed == nil {
		s.Processed = make(map[string]struct{})
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = s
	m.dirty = false
	return s.Clone(), nil
}

// Append applies e and, under the per-write policy, saves immediately. On a
// save failure the entry stays applied in memory and is retried by the next
// flush.
func (m *Manager) Append(ctx context.Context, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e.Kind == EntryProcessed && m.state.IsProcessed(e.Value) {
		return nil
	}

	m.state = Append(m.state, e, m.memoryLimit)
	m.dirty = true

	if m.policy == FlushPerWrite {
		return m.flushLocked(ctx)
	}
	return nil
}

// Flush saves pending changes. It is a no-op when nothing changed.
func (m *Manager) Flush(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.flushLocked(ctx)
}

func (m *Manager) flushLocked(ctx context.Context) error {
	if !m.dirty {
		return nil
	}
	if err := m.backend.Save(ctx, m.state); err != nil {
		return fmt.Errorf("failed to save state: %w", err)
	}
	m.dirty = false
	return nil
}

// Snapshot returns a copy of the live state
func (m *Manager) Snapshot() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Clone()
}

// IsProcessed reports whether id has been handled
func (m *Manager) IsProcessed(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.IsProcessed(id)
}

// Dirty reports whether there are unsaved changes
func (m *Manager) Dirty() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dirty
}

// Policy returns the configured flush policy
func (m *Manager) Policy() FlushPolicy {
	return m.policy
}
