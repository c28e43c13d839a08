// Package store provides persistent storage for drover using SQLite.
//
// # Data Models
//
//   - Command: one unit of work with its full lifecycle (status, result,
//     delivery bookkeeping, lease and deadline timestamps)
//   - Agent: an enrolled device with facts and last-seen tracking
//   - EnrollmentKey: bcrypt-hashed shared secret authorizing enrollment
//
// # Lifecycle Semantics
//
// A command moves pending -> sent -> {completed | failed | timeout}, or
// pending -> cancelled. The four terminal states are written exclusively
// through conditional updates (Complete, Cancel) that report whether they
// applied. Callers use that signal to enforce at-most-one resolution per
// command: the first terminal write wins, later ones are no-ops.
//
// Pull delivery leases rows via ClaimPending: one conditional UPDATE tags
// claimable pending rows, so concurrent claims never hand out the same
// command within a lease. Lapsed leases become claimable again, making
// pull delivery at-least-once; the terminal-transition guard keeps
// duplicate results harmless.
//
// # SQLite Configuration
//
// The store uses SQLite with WAL mode for concurrent reads:
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA foreign_keys=ON;
//
// Timestamps are stored as UTC RFC3339 text, so SQL string comparison is
// chronological.
//
// # Error Handling
//
// Common errors:
//
//   - ErrNotFound: requested entity does not exist
//   - ErrDuplicateCommand, ErrDuplicateAgent, ErrDuplicateKey
//
// All methods accept context.Context for cancellation support.
//
// # Testing
//
// Use NewMockStore() for unit tests; it honors the same conditional
// semantics. Use NewSQLiteStore with a temp path for integration tests.
package store
