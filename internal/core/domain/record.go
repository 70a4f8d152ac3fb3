package domain

import "time"

// Record is a normalized node in the graph store.
// (Connector, ExternalID) is unique; ID is assigned once and never changes.
type Record struct {
	ID                 string
	Connector          string
	ExternalID         string
	ExternalRevisionID string
	RecordType         string
	ParentID           string
	GroupID            string
	Title              string
	SourceCreatedAt    time.Time
	SourceUpdatedAt    time.Time
	IsDeleted          bool
}

// RelationType is the type of an edge between two records.
type RelationType string

const (
	RelationSibling      RelationType = "sibling"
	RelationAttachmentOf RelationType = "attachment_of"
	RelationCommentOf    RelationType = "comment_of"
)

// RelationForChild maps a child kind to the edge that links it to its parent.
func RelationForChild(kind ChildKind) RelationType {
	if kind == ChildComment {
		return RelationCommentOf
	}
	return RelationAttachmentOf
}

// Relation is a typed edge between two records.
type Relation struct {
	FromID string
	ToID   string
	Type   RelationType
}

// Principal is a user or group identity, resolved by its natural key.
type Principal struct {
	ID          string
	Kind        PrincipalKind
	Key         string
	DisplayName string
}

// PermissionEdge grants a principal access to a record.
type PermissionEdge struct {
	RecordID    string
	PrincipalID string
	Type        PermissionType
}

// EventKind is the kind of change a record event announces.
type EventKind string

const (
	EventRecordCreated EventKind = "created"
	EventRecordUpdated EventKind = "updated"
	EventPermissions   EventKind = "permissions"
)

// RecordEvent notifies downstream indexing that a record changed.
// Delivered at least once.
type RecordEvent struct {
	ID         string
	Kind       EventKind
	RecordID   string
	Connector  string
	ExternalID string
	Revision   string
	At         time.Time
}

// BatchResult summarizes one materialized batch.
type BatchResult struct {
	RecordsWritten     int
	RelationsWritten   int
	PermissionsWritten int

	// Unchanged counts items and children whose revision matched the store.
	Unchanged int

	// Malformed counts items skipped by validation.
	Malformed int

	// Watermark is the latest source update time among processed items.
	Watermark time.Time

	// Events are the record events enqueued by the commit.
	Events []RecordEvent
}

// ScanResult summarizes one permission diff scan.
type ScanResult struct {
	// Initialized is true when the scan only created its checkpoint.
	Initialized bool

	// Affected are the identifiers matched in the audit feed.
	Affected []string

	// Refreshed counts identifiers whose permissions were overwritten.
	Refreshed int

	// Skipped counts identifiers not present locally.
	Skipped int

	// PermissionsWritten counts edges written.
	PermissionsWritten int
}
