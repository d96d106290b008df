/*
store.go - Persistence interfaces for the ledger engine

PURPOSE:
  Defines the interface between the engine and the database. The engine
  never touches SQL; it reads and writes through Store, and wraps every
  multi-write operation in WithTx so a crash or error mid-batch leaves
  no partial state.

KEY INTERFACES:
  Store:    Row-level reads and writes (employees, balances, markers, audit)
  TxStore:  Store plus WithTx for atomic multi-row operations
  AuditLog: Read side of the append-only audit trail

APPEND-ONLY CONTRACT:
  The audit trail has exactly one write operation: AppendAudit. There is
  no update and no delete. The single permitted re-pointing is
  DetachAuditEntries, which nulls the employee reference when an employee
  record is purged; the entries themselves survive.

ORDERING:
  EntriesByEmployee returns a single employee's history oldest-first with
  monotonically non-decreasing timestamps, because reconciliation replays
  it in order. Entries (the admin view) returns newest-first.

IMPLEMENTATIONS:
  - store/sqlite: production SQLite store
  - ledger/store: in-memory store for engine tests

SEE ALSO:
  - engine.go: every operation funnels through these interfaces
*/
package ledger

import "context"

// =============================================================================
// STORE - Row-level persistence
// =============================================================================

type Store interface {
	// GetEmployee returns nil (no error) if the employee does not exist.
	GetEmployee(ctx context.Context, id EmployeeID) (*Employee, error)

	// ListActiveEmployees returns active employees ordered by name.
	ListActiveEmployees(ctx context.Context) ([]Employee, error)

	// SaveEmployee inserts or updates a roster record.
	SaveEmployee(ctx context.Context, emp Employee) error

	// DeleteEmployee permanently removes an employee. The balance row is
	// cascaded; audit entries must already be detached by the caller.
	DeleteEmployee(ctx context.Context, id EmployeeID) error

	// GetBalance returns nil (no error) if no balance row exists.
	GetBalance(ctx context.Context, id EmployeeID) (*Balance, error)

	// SaveBalance inserts or updates the balance row for an employee.
	SaveBalance(ctx context.Context, b *Balance) error

	// GetMarker returns nil (no error) if the job has never run.
	GetMarker(ctx context.Context, key string) (*RunMarker, error)

	// SaveMarker inserts or updates a period run marker.
	SaveMarker(ctx context.Context, m RunMarker) error

	// AppendAudit adds one immutable audit entry.
	// This is the ONLY write operation on the audit trail.
	AppendAudit(ctx context.Context, e AuditEntry) error

	// DetachAuditEntries nulls the employee reference on all entries for an
	// employee about to be purged. The entries themselves are kept.
	DetachAuditEntries(ctx context.Context, id EmployeeID) error
}

// =============================================================================
// TRANSACTIONAL STORE - Atomic multi-row operations
// =============================================================================

// TxStore wraps Store with transaction support. If fn returns an error the
// transaction is rolled back and no write in it is observable.
type TxStore interface {
	Store

	WithTx(ctx context.Context, fn func(Store) error) error
}

// =============================================================================
// AUDIT LOG - Read side of the audit trail
// =============================================================================

// AuditQuery filters and pages the admin audit view.
type AuditQuery struct {
	EmployeeID *EmployeeID
	Category   *Category
	Action     *Action
	Limit      int
	Offset     int
}

type AuditLog interface {
	// Entries returns matching entries newest-first. A zero Limit applies
	// the implementation's default page size.
	Entries(ctx context.Context, q AuditQuery) ([]AuditEntry, error)

	// EntriesByEmployee returns one employee's full history oldest-first.
	EntriesByEmployee(ctx context.Context, id EmployeeID) ([]AuditEntry, error)
}
