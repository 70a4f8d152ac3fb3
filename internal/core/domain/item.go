package domain

import (
	"fmt"
	"strings"
	"time"
)

// PrincipalKind distinguishes users from groups.
type PrincipalKind string

const (
	PrincipalUser  PrincipalKind = "user"
	PrincipalGroup PrincipalKind = "group"
)

// PermissionType is the access level a permission edge grants.
type PermissionType string

const (
	PermissionOwner     PermissionType = "owner"
	PermissionWriter    PermissionType = "writer"
	PermissionCommenter PermissionType = "commenter"
	PermissionReader    PermissionType = "reader"
)

// PrincipalRef is a principal as referenced by a source payload.
type PrincipalRef struct {
	// Kind is user or group.
	Kind PrincipalKind

	// Key is the natural key: an email for users, an external group id for groups.
	Key string

	// DisplayName is informational.
	DisplayName string
}

// NormalizedKey returns the key used for principal identity.
// Emails are case-insensitive.
func (p PrincipalRef) NormalizedKey() string {
	k := strings.TrimSpace(p.Key)
	if p.Kind != PrincipalGroup {
		k = strings.ToLower(k)
	}
	return k
}

// Grant is a permission reported by the source for an item.
type Grant struct {
	Principal PrincipalRef
	Type      PermissionType
}

// ChildKind is the relation of an embedded sub-item to its parent.
type ChildKind string

const (
	ChildAttachment ChildKind = "attachment"
	ChildComment    ChildKind = "comment"
)

// ChildItem is an embedded sub-item (attachment, comment) of an ExternalItem.
type ChildItem struct {
	ExternalID string
	Revision   string
	Kind       ChildKind
	Title      string
	CreatedAt  time.Time
	UpdatedAt  time.Time

	// Grants are permissions specific to the child (e.g. the comment author).
	Grants []Grant
}

// ExternalItem is a raw payload fetched from a source, normalized into one
// canonical shape by the connector adapter.
type ExternalItem struct {
	// ExternalID is the source identifier. Unique per connector.
	ExternalID string

	// Revision is the source version marker (version number, history id, timestamp).
	Revision string

	// Type is the record type (message, page, issue).
	Type string

	// ParentExternalID links to a parent item (thread root, parent page).
	ParentExternalID string

	// SiblingExternalID links the item to a peer in the same conversation (thread root).
	SiblingExternalID string

	// GroupID is the container (mailbox, space, repository).
	GroupID string

	// Title is informational.
	Title string

	// CreatedAt and UpdatedAt are source timestamps.
	CreatedAt time.Time
	UpdatedAt time.Time

	// Deleted marks an item the source reports as archived or trashed.
	Deleted bool

	// Children are embedded sub-items.
	Children []ChildItem

	// Grants are the permissions of the item.
	Grants []Grant

	// Metadata holds connector-specific fields.
	Metadata map[string]any
}

// Validate checks the fields the materializer depends on.
// Returns an error wrapping ErrMalformedItem.
func (i *ExternalItem) Validate() error {
	if strings.TrimSpace(i.ExternalID) == "" {
		return fmt.Errorf("%w: empty external id", ErrMalformedItem)
	}
	if i.UpdatedAt.IsZero() {
		return fmt.Errorf("%w: item %s has no update time", ErrMalformedItem, i.ExternalID)
	}
	for _, c := range i.Children {
		if strings.TrimSpace(c.ExternalID) == "" {
			return fmt.Errorf("%w: item %s has a child without external id", ErrMalformedItem, i.ExternalID)
		}
		if err := validateGrants(i.ExternalID, c.Grants); err != nil {
			return err
		}
	}
	return validateGrants(i.ExternalID, i.Grants)
}

func validateGrants(externalID string, grants []Grant) error {
	for _, g := range grants {
		if g.Principal.NormalizedKey() == "" {
			return fmt.Errorf("%w: item %s has a grant without principal key", ErrMalformedItem, externalID)
		}
	}
	return nil
}

// AuditObject is one object referenced by an audit record.
type AuditObject struct {
	Type string
	ID   string
}

// AuditEvent is one entry of a source's audit or activity feed.
type AuditEvent struct {
	ID      string
	Kind    string
	At      time.Time
	Objects []AuditObject
}
