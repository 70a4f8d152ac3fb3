package domain

import (
	"strings"
	"time"
)

// EntityPermissionAudit is the entity type of the permission scanner's own checkpoint scope.
const EntityPermissionAudit = "permission-audit"

// SyncScope identifies one independently checkpointed stream,
// e.g. "threads in mailbox X" or "pages in database Y".
type SyncScope struct {
	// Connector is the connector type that owns the stream.
	Connector string

	// EntityType is the kind of entity fetched (thread, page, issue).
	EntityType string

	// Key distinguishes streams of the same entity type (mailbox, database id, repo).
	Key string
}

// String returns the canonical "connector/entity/key" form used as a storage key.
func (s SyncScope) String() string {
	return s.Connector + "/" + s.EntityType + "/" + s.Key
}

// IsZero reports whether the scope is unset.
func (s SyncScope) IsZero() bool {
	return s.Connector == "" && s.EntityType == "" && s.Key == ""
}

// ParseSyncScope parses the "connector/entity/key" form.
// The key may itself contain slashes (e.g. "owner/repo").
func ParseSyncScope(s string) (SyncScope, error) {
	parts := strings.SplitN(s, "/", 3)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return SyncScope{}, ErrInvalidInput
	}
	return SyncScope{Connector: parts[0], EntityType: parts[1], Key: parts[2]}, nil
}

// PermissionAuditScope returns the checkpoint scope of the permission scanner for a unit.
func PermissionAuditScope(connector, unitID string) SyncScope {
	return SyncScope{Connector: connector, EntityType: EntityPermissionAudit, Key: unitID}
}

// Checkpoint is the durable sync position of a scope.
type Checkpoint struct {
	// Scope is the stream this checkpoint belongs to.
	Scope SyncScope

	// Cursor is the opaque token of the next page of an unfinished pagination.
	// Empty once the scope has been exhausted.
	Cursor string

	// Offset is the next offset of an unfinished offset-mode pagination.
	Offset int

	// Since is the lower bound the unfinished pagination was started with.
	// A resumed cursor must be replayed against the same query.
	Since *time.Time

	// Watermark is the latest source update time among committed items.
	Watermark time.Time

	// UpdatedAt is when the checkpoint was last written.
	UpdatedAt time.Time
}

// Resumable reports whether the checkpoint holds the position of an unfinished pagination.
func (c *Checkpoint) Resumable() bool {
	return c != nil && (c.Cursor != "" || c.Offset > 0)
}

// Advance returns the checkpoint that follows a committed page.
// The watermark never moves backwards.
func (c *Checkpoint) Advance(scope SyncScope, next PageStart, since *time.Time, watermark time.Time) Checkpoint {
	cp := Checkpoint{Scope: scope, Cursor: next.Cursor, Offset: next.Offset}
	if c != nil && c.Watermark.After(watermark) {
		watermark = c.Watermark
	}
	cp.Watermark = watermark
	if next.Cursor != "" || next.Offset > 0 {
		cp.Since = since
	}
	return cp
}
