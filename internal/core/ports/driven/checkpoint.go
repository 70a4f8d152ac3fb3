package driven

import (
	"context"

	"github.com/custodia-labs/sercha-mirror/internal/core/domain"
)

// CheckpointStore persists the sync position of every scope.
type CheckpointStore interface {
	// Get retrieves the checkpoint of a scope.
	// Returns domain.ErrNotFound when none was written yet.
	Get(ctx context.Context, scope domain.SyncScope) (*domain.Checkpoint, error)

	// Save stores a checkpoint, last write wins.
	// A checkpoint whose watermark is older than the stored one is rejected
	// with domain.ErrStaleCheckpoint.
	Save(ctx context.Context, cp domain.Checkpoint) error

	// Reset removes the checkpoint of a scope, forcing a full resync.
	Reset(ctx context.Context, scope domain.SyncScope) error

	// List returns every checkpoint of a connector, or of all connectors when empty.
	List(ctx context.Context, connector string) ([]domain.Checkpoint, error)
}
