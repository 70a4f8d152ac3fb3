package driven

import (
	"context"

	"github.com/custodia-labs/sercha-mirror/internal/core/domain"
)

// ConnectorBuilder creates a Connector from a SyncUnit.
// TokenProvider may be nil for connectors that don't require authentication.
type ConnectorBuilder func(unit domain.SyncUnit, tokenProvider TokenProvider) (Connector, error)

// ConnectorFactory creates connectors from unit configuration.
// It maintains a registry of connector types and their builders.
type ConnectorFactory interface {
	// Create returns a Connector for the given unit.
	// Returns ErrUnsupportedType if the connector type is unknown.
	Create(ctx context.Context, unit domain.SyncUnit) (Connector, error)

	// Register adds a connector builder for the given type.
	Register(connectorType string, builder ConnectorBuilder)

	// SupportedTypes returns all registered connector types.
	SupportedTypes() []string
}
