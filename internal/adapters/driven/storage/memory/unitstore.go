package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/custodia-labs/sercha-mirror/internal/core/domain"
	"github.com/custodia-labs/sercha-mirror/internal/core/ports/driven"
)

// Ensure SyncUnitStore implements the interface.
var _ driven.SyncUnitStore = (*SyncUnitStore)(nil)

// SyncUnitStore is an in-memory implementation of driven.SyncUnitStore.
type SyncUnitStore struct {
	mu    sync.RWMutex
	units map[string]domain.SyncUnit
}

// NewSyncUnitStore creates a store holding the given units.
func NewSyncUnitStore(units ...domain.SyncUnit) *SyncUnitStore {
	s := &SyncUnitStore{units: make(map[string]domain.SyncUnit)}
	for _, u := range units {
		s.units[u.ID] = u
	}
	return s
}

// Put stores or replaces a unit.
func (s *SyncUnitStore) Put(unit domain.SyncUnit) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.units[unit.ID] = unit
}

// Get retrieves a unit by ID.
func (s *SyncUnitStore) Get(_ context.Context, id string) (*domain.SyncUnit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	unit, ok := s.units[id]
	if !ok {
		return nil, domain.ErrUnitNotFound
	}
	return &unit, nil
}

// List returns all units ordered by ID.
func (s *SyncUnitStore) List(_ context.Context) ([]domain.SyncUnit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.SyncUnit, 0, len(s.units))
	for _, u := range s.units {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
