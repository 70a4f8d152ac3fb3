package driven

import (
	"context"
	"strings"

	"github.com/custodia-labs/sercha-mirror/internal/core/domain"
)

// GraphStore persists records, principals and their edges.
// Reads happen outside transactions; every write goes through a GraphTx
// except principal creation, which the resolver performs in bulk.
type GraphStore interface {
	// FindRecordsByExternalID returns the existing records of a connector keyed by external id.
	// Unknown identifiers are absent from the map.
	FindRecordsByExternalID(ctx context.Context, connector string, externalIDs []string) (map[string]domain.Record, error)

	// FindPrincipals returns the existing principals keyed by normalized key.
	FindPrincipals(ctx context.Context, refs []domain.PrincipalRef) (map[string]domain.Principal, error)

	// CreatePrincipals inserts principals in one round trip.
	// Principals whose key already exists are left untouched and reported
	// through a *DuplicateKeyError; the others are created.
	CreatePrincipals(ctx context.Context, principals []domain.Principal) error

	// Begin starts a write transaction.
	Begin(ctx context.Context) (GraphTx, error)

	// PendingEvents returns outbox events that were committed but not acknowledged.
	PendingEvents(ctx context.Context, limit int) ([]domain.RecordEvent, error)

	// AckEvents removes delivered events from the outbox.
	AckEvents(ctx context.Context, eventIDs []string) error
}

// GraphTx is a write transaction on the graph store.
type GraphTx interface {
	// UpsertRecords inserts new records and updates existing ones in place,
	// keyed by (connector, external id). Local ids are never changed.
	UpsertRecords(ctx context.Context, records []domain.Record) error

	// CreateRelations inserts edges. Existing edges are ignored.
	CreateRelations(ctx context.Context, relations []domain.Relation) error

	// ReplacePermissions replaces every permission edge of a record.
	ReplacePermissions(ctx context.Context, recordID string, edges []domain.PermissionEdge) error

	// EnqueueEvents stores record events in the outbox.
	EnqueueEvents(ctx context.Context, events []domain.RecordEvent) error

	// Commit makes the transaction's writes durable.
	Commit() error

	// Rollback discards the transaction. Safe to call after Commit.
	Rollback() error
}

// DuplicateKeyError reports principals that already existed on insert.
type DuplicateKeyError struct {
	Keys []string
}

// Error implements the error interface.
func (e *DuplicateKeyError) Error() string {
	return "duplicate principal keys: " + strings.Join(e.Keys, ", ")
}

// Unwrap allows errors.Is(err, domain.ErrDuplicateKey).
func (e *DuplicateKeyError) Unwrap() error {
	return domain.ErrDuplicateKey
}
