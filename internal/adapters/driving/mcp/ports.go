package mcp

import (
	"context"

	"github.com/custodia-labs/sercha-mirror/internal/core/domain"
	"github.com/custodia-labs/sercha-mirror/internal/core/ports/driving"
)

// UnitLister lists the configured sync units.
type UnitLister interface {
	List(ctx context.Context) ([]domain.SyncUnit, error)
}

// ConnectorCatalog describes the available connector types.
type ConnectorCatalog interface {
	List() []domain.ConnectorType
}

// Ports aggregates all driving port interfaces required by the MCP server.
// This provides a single injection point for dependency injection.
type Ports struct {
	// Sync drives unit lifecycles.
	Sync driving.SyncController

	// Units lists configured units for the units resource.
	Units UnitLister

	// Connectors describes connector types for the connectors resource.
	Connectors ConnectorCatalog
}

// Validate ensures all required ports are set.
func (p *Ports) Validate() error {
	if p.Sync == nil {
		return ErrMissingSyncController
	}
	// Units and Connectors are optional; their resources then list nothing.
	return nil
}
