package driven

import (
	"context"
	"time"

	"github.com/custodia-labs/sercha-mirror/internal/core/domain"
)

// Connector fetches items from a data source.
// Each connector type (gmail, notion, github, etc.) implements this interface.
// Connectors hold no sync state: the engine passes the position and filters
// of every page explicitly.
type Connector interface {
	// Type returns the connector type identifier.
	Type() string

	// Capabilities returns what this connector supports.
	Capabilities() ConnectorCapabilities

	// Scopes returns the independently checkpointed streams of the unit.
	Scopes(ctx context.Context) ([]domain.SyncScope, error)

	// FetchPage fetches one page of a scope.
	// Network and rate-limit failures wrap domain.ErrTransientFetch.
	FetchPage(ctx context.Context, scope domain.SyncScope, req domain.PageRequest) (*domain.RawPage, error)

	// FetchItems fetches specific items by external id, bypassing pagination.
	// Identifiers unknown to the source are omitted from the result.
	FetchItems(ctx context.Context, scope domain.SyncScope, externalIDs []string) ([]domain.ExternalItem, error)

	// Close releases resources.
	Close() error
}

// ConnectorCapabilities describes what a connector supports.
type ConnectorCapabilities struct {
	// PageMode is how the connector addresses pages.
	PageMode domain.PageMode

	// MaxPageSize caps the page size the engine may request. Zero means no cap.
	MaxPageSize int

	// SupportsTimeFilter indicates the source applies the modification-time
	// filters itself. When false the paginator filters fetched items.
	SupportsTimeFilter bool

	// SupportsPermissionAudit indicates the connector implements PermissionSource.
	SupportsPermissionAudit bool

	// SupportsRateLimiting indicates the connector handles rate limiting internally.
	SupportsRateLimiting bool
}

// PermissionSource is implemented by connectors that expose an audit or
// activity feed and can re-fetch the permissions of a single item.
type PermissionSource interface {
	// AuditEvents returns the feed entries in the window (since, until].
	AuditEvents(ctx context.Context, since, until time.Time) ([]domain.AuditEvent, error)

	// FetchPermissions returns the current grants of an item.
	FetchPermissions(ctx context.Context, externalID string) ([]domain.Grant, error)
}
