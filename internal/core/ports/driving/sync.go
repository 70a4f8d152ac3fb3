package driving

import (
	"context"

	"github.com/custodia-labs/sercha-mirror/internal/core/domain"
)

// SyncController drives the lifecycle of sync units.
// Every transition is validated by domain.Transition; illegal ones return
// domain.ErrInvalidTransition.
type SyncController interface {
	// Start launches a run from the committed checkpoints.
	// Legal from NOT_STARTED, COMPLETED and FAILED.
	Start(ctx context.Context, unitID string) error

	// Pause asks the running loop to stop after the batch in flight.
	Pause(ctx context.Context, unitID string) error

	// Resume relaunches a paused unit once its previous run has exited.
	Resume(ctx context.Context, unitID string) error

	// Status returns the current state of a unit.
	Status(ctx context.Context, unitID string) (*domain.UnitState, error)

	// Reindex re-fetches specific items and republishes those whose revision changed.
	Reindex(ctx context.Context, unitID string, scope domain.SyncScope, externalIDs []string) (*domain.BatchResult, error)

	// Wait blocks until the unit's current run exits and returns its state.
	Wait(ctx context.Context, unitID string) (*domain.UnitState, error)

	// Reset removes every checkpoint of a unit that is not running,
	// so the next Start performs a full resync.
	Reset(ctx context.Context, unitID string) error
}
