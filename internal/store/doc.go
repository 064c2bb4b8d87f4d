// Package store provides the persistent audit trail for cell operations
// using SQLite.
//
// # Data Model
//
// AuditEntry records one operation: what happened (open, read, write, close,
// or a rejection), which session handle, how many bytes, and any error text.
// Secret content is never recorded, so no resource state survives a restart.
//
// # Implementations
//
//   - SQLiteStore: SQLite with WAL mode, automatic schema creation
//   - NopStore: used when auditing is disabled; appends vanish
//
// # SQLite Configuration
//
//	PRAGMA journal_mode=WAL;
//
// Use NewSQLiteStore(":memory:") for tests that want a real database without
// touching disk.
package store
