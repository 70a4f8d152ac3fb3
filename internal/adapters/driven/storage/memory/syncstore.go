package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/custodia-labs/sercha-mirror/internal/core/domain"
	"github.com/custodia-labs/sercha-mirror/internal/core/ports/driven"
)

// Ensure SyncStateStore implements the interface.
var _ driven.SyncStateStore = (*SyncStateStore)(nil)

// SyncStateStore is an in-memory implementation of driven.SyncStateStore.
type SyncStateStore struct {
	mu     sync.RWMutex
	states map[string]domain.UnitState
}

// NewSyncStateStore creates a new in-memory sync state store.
func NewSyncStateStore() *SyncStateStore {
	return &SyncStateStore{
		states: make(map[string]domain.UnitState),
	}
}

// Save stores or updates unit state.
func (s *SyncStateStore) Save(_ context.Context, state domain.UnitState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[state.UnitID] = state
	return nil
}

// Get retrieves the state of a unit.
func (s *SyncStateStore) Get(_ context.Context, unitID string) (*domain.UnitState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.states[unitID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &state, nil
}

// List returns all unit states ordered by unit ID.
func (s *SyncStateStore) List(_ context.Context) ([]domain.UnitState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.UnitState, 0, len(s.states))
	for _, st := range s.states {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UnitID < out[j].UnitID })
	return out, nil
}
