// Package store provides persistent storage for the orchestrator using SQLite.
//
// # Data Models
//
//   - DelegationDecision: one routing outcome per boss command, appended to
//     a per-boss history and never mutated after leaving pending
//   - RememberedPattern: auto-approval rules derived from approved
//     permission requests, unique by (tool, pattern)
//   - LedgerEvent: append-only record of every broadcast event, used for
//     observer reconnect backfill and the admin history view
//
// # SQLite Configuration
//
// The store uses SQLite with WAL mode for concurrent reads:
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA foreign_keys=ON;
//
// All mutations are write-through; the orchestration core persists on every
// change rather than batching. Mutation frequency is low relative to I/O
// cost at this system's scale.
//
// # Testing
//
// Use NewMockStore() for unit tests. Use NewSQLiteStore(":memory:") for
// integration tests with real SQLite.
package store
