// Package domain defines the core business entities of the sync engine.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies and defines the fundamental types:
//
//   - SyncUnit: A configured top-level unit (mailbox, workspace, repository set)
//   - SyncScope / Checkpoint: An independently checkpointed stream and its position
//   - ExternalItem: A fetched payload in canonical form
//   - Record / Relation / PermissionEdge / Principal: The mirrored graph
//   - UnitState: The lifecycle state machine of a unit
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. It may only import
// the Go standard library. All other packages depend on domain,
// never the reverse.
//
// # Import Rules
//
//   - Can Import: Standard library only
//   - Cannot Import: Any internal/ package, any external dependency
package domain
