// Package sqlite provides a unified SQLite-based implementation of driven port interfaces.
//
// This adapter uses modernc.org/sqlite, a pure Go SQLite implementation that requires
// no CGO. It implements multiple store interfaces through a single database connection:
//
//   - GraphStore: records, principals, relations, permission edges and the event outbox
//   - CheckpointStore: per-scope sync positions with monotonic watermarks
//   - SyncStateStore: unit lifecycle state and progress
//   - SchedulerStore: scheduled tasks and their run history
//
// # Schema
//
// The database schema is managed through versioned migrations stored in the
// migrations/ directory. Each migration is a pair of .up.sql and .down.sql files;
// applied versions are recorded in schema_migrations.
//
// # Data Location
//
// By default, the database is stored at ~/.sercha-mirror/data/mirror.db
package sqlite
