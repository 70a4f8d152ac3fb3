package driven

import (
	"context"

	"github.com/custodia-labs/sercha-mirror/internal/core/domain"
)

// SyncStateStore persists the lifecycle state of sync units.
type SyncStateStore interface {
	// Save stores or updates unit state.
	Save(ctx context.Context, state domain.UnitState) error

	// Get retrieves the state of a unit.
	// Returns domain.ErrNotFound when the unit never ran.
	Get(ctx context.Context, unitID string) (*domain.UnitState, error)

	// List returns the state of every unit that ran at least once.
	List(ctx context.Context) ([]domain.UnitState, error)
}

// SyncUnitStore provides the configured sync units.
type SyncUnitStore interface {
	// Get retrieves a unit by ID.
	// Returns domain.ErrUnitNotFound if it is not configured.
	Get(ctx context.Context, id string) (*domain.SyncUnit, error)

	// List returns all configured units.
	List(ctx context.Context) ([]domain.SyncUnit, error)
}
