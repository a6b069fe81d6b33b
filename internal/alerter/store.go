package alerter

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/alertline/alertline/internal/types"
)

// HistoryOp names the operation that produced a history entry.
type HistoryOp string

const (
	OpCreated  HistoryOp = "created"
	OpMerged   HistoryOp = "merged"
	OpResolved HistoryOp = "resolved"
)

// HistoryEntry is an immutable snapshot appended on every store write.
type HistoryEntry struct {
	Op    HistoryOp   `json:"op"`
	At    time.Time   `json:"at"`
	Alert types.Alert `json:"alert"`
}

// Mutation edits a working copy of an alert. Returning an error aborts the
// update and nothing is committed.
type Mutation func(a *types.Alert) error

// Store is the authoritative set of alerts. Implementations must be safe for
// concurrent use and must hand out copies, never internal records.
type Store interface {
	Insert(alert types.Alert) error
	Get(id string) (types.Alert, bool)
	Update(id string, op HistoryOp, mutate Mutation) (types.Alert, error)
	ListActive(filter types.Filter) []types.Alert
	// Each visits every stored alert until fn returns false.
	Each(fn func(a *types.Alert) bool)
	History() []HistoryEntry
	CountActive() int
}

// MemoryStore keeps alerts in a map and history in a slice.
type MemoryStore struct {
	mu      sync.RWMutex
	alerts  map[string]*types.Alert
	history []HistoryEntry
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		alerts: make(map[string]*types.Alert),
	}
}

// Insert adds a new alert. Ids must be unique for the lifetime of the store.
func (s *MemoryStore) Insert(alert types.Alert) error {
	if alert.ID == "" {
		return fmt.Errorf("%w: alert id is empty", ErrInvalidArgument)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.alerts[alert.ID]; exists {
		return fmt.Errorf("%w: duplicate alert id %s", ErrInvalidArgument, alert.ID)
	}
	stored := alert.Clone()
	s.alerts[alert.ID] = &stored
	s.history = append(s.history, HistoryEntry{
		Op:    OpCreated,
		At:    stored.CreatedAt,
		Alert: stored.Clone(),
	})
	return nil
}

// Get returns a copy of the alert with the given id.
func (s *MemoryStore) Get(id string) (types.Alert, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.alerts[id]
	if !ok {
		return types.Alert{}, false
	}
	return a.Clone(), true
}

// Update applies mutate to a working copy and commits it when mutate succeeds.
func (s *MemoryStore) Update(id string, op HistoryOp, mutate Mutation) (types.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.alerts[id]
	if !ok {
		return types.Alert{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	working := current.Clone()
	if err := mutate(&working); err != nil {
		return types.Alert{}, err
	}
	if working.ID != id {
		return types.Alert{}, fmt.Errorf("%w: alert id is immutable", ErrInvalidArgument)
	}

	s.alerts[id] = &working
	s.history = append(s.history, HistoryEntry{
		Op:    op,
		At:    working.UpdatedAt,
		Alert: working.Clone(),
	})
	return working.Clone(), nil
}

// ListActive returns active alerts matching filter, oldest first.
func (s *MemoryStore) ListActive(filter types.Filter) []types.Alert {
	s.mu.RLock()
	out := make([]types.Alert, 0, len(s.alerts))
	for _, a := range s.alerts {
		if !a.IsActive() || !filter.Matches(a) {
			continue
		}
		out = append(out, a.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Each visits stored records under the read lock. fn must not retain or
// mutate the pointer it receives.
func (s *MemoryStore) Each(fn func(a *types.Alert) bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.alerts {
		if !fn(a) {
			return
		}
	}
}

// History returns a copy of the history log in append order.
func (s *MemoryStore) History() []HistoryEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]HistoryEntry, len(s.history))
	for i, entry := range s.history {
		out[i] = HistoryEntry{Op: entry.Op, At: entry.At, Alert: entry.Alert.Clone()}
	}
	return out
}

// CountActive returns the number of active alerts.
func (s *MemoryStore) CountActive() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, a := range s.alerts {
		if a.IsActive() {
			n++
		}
	}
	return n
}
