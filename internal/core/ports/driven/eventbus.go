package driven

import (
	"context"

	"github.com/custodia-labs/sercha-mirror/internal/core/domain"
)

// EventPublisher notifies downstream indexing of changed records.
// Publish may be called more than once for the same event; consumers
// deduplicate on the event ID.
type EventPublisher interface {
	Publish(ctx context.Context, events []domain.RecordEvent) error
}
