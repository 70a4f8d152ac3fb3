package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/custodia-labs/sercha-mirror/internal/core/domain"
	"github.com/custodia-labs/sercha-mirror/internal/core/ports/driven"
)

// Ensure CheckpointStore implements the interface.
var _ driven.CheckpointStore = (*CheckpointStore)(nil)

// CheckpointStore is an in-memory implementation of driven.CheckpointStore.
type CheckpointStore struct {
	mu      sync.RWMutex
	entries map[string]domain.Checkpoint
	history map[string][]domain.Checkpoint
}

// NewCheckpointStore creates a new in-memory checkpoint store.
func NewCheckpointStore() *CheckpointStore {
	return &CheckpointStore{
		entries: make(map[string]domain.Checkpoint),
		history: make(map[string][]domain.Checkpoint),
	}
}

// Get retrieves the checkpoint of a scope.
func (s *CheckpointStore) Get(_ context.Context, scope domain.SyncScope) (*domain.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cp, ok := s.entries[scope.String()]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &cp, nil
}

// Save stores a checkpoint unless it would move the watermark backwards.
func (s *CheckpointStore) Save(_ context.Context, cp domain.Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := cp.Scope.String()
	if cur, ok := s.entries[key]; ok && cur.Watermark.After(cp.Watermark) {
		return domain.ErrStaleCheckpoint
	}
	if cp.UpdatedAt.IsZero() {
		cp.UpdatedAt = time.Now()
	}
	s.entries[key] = cp
	s.history[key] = append(s.history[key], cp)
	return nil
}

// Reset removes the checkpoint of a scope.
func (s *CheckpointStore) Reset(_ context.Context, scope domain.SyncScope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, scope.String())
	return nil
}

// List returns every checkpoint of a connector ordered by scope.
func (s *CheckpointStore) List(_ context.Context, connector string) ([]domain.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Checkpoint
	for _, cp := range s.entries {
		if connector == "" || cp.Scope.Connector == connector {
			out = append(out, cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Scope.String() < out[j].Scope.String() })
	return out, nil
}

// History returns every successful write of a scope in order.
func (s *CheckpointStore) History(scope domain.SyncScope) []domain.Checkpoint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Checkpoint(nil), s.history[scope.String()]...)
}
