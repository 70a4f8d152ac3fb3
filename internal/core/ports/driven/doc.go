// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Required Interfaces
//
//   - Connector: Fetches pages of items from a data source
//   - ConnectorFactory: Creates connectors from unit configuration
//   - GraphStore: Records, principals, edges and the event outbox
//   - CheckpointStore: Per-scope sync positions
//   - SyncStateStore: Per-unit lifecycle state
//   - SyncUnitStore: Configured sync units
//   - ConfigStore: Application configuration
//
// # Optional Interfaces
//
//   - PermissionSource: Audit feed of a connector. Without it the permission scan is skipped.
//   - EventPublisher: Downstream notification. Without it events stay in the outbox.
//   - TokenProvider: API credentials. Nil for connectors that need none.
//   - SchedulerStore: Scheduler history.
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter or connector package
package driven
