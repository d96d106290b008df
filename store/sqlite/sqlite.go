/*
Package sqlite provides the SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements ledger.Store, ledger.TxStore, and ledger.AuditLog using SQLite.
  In production, the same patterns apply to PostgreSQL - only minor SQL
  dialect differences.

KEY TABLES:
  employees:    Roster records (id, name, hire date, active flag)
  balances:     One row per employee, four decimal hour buckets
  system_state: Period run markers for the recurring batch jobs
  audit_log:    Append-only trail of every balance-affecting action

APPEND-ONLY ENFORCEMENT:
  The audit_log table has INSERT plus exactly one UPDATE: nulling the
  employee reference when an employee record is purged. Entries are never
  deleted and their hours are never rewritten.

DECIMALS AND TIMES:
  Hour quantities are stored as decimal strings (TEXT), never floats.
  Timestamps are stored as RFC3339 TEXT.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety plus WAL mode for better concurrency.
  SQLITE_BUSY and locked-database errors surface as ledger.ErrTxConflict so
  the engine's bounded retry can re-run the transaction.

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - ledger/store.go: Interface definitions
  - ledger/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/warp/pto-ledger/ledger"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Roster
	CREATE TABLE IF NOT EXISTS employees (
		id TEXT PRIMARY KEY,
		full_name TEXT NOT NULL,
		hire_date TEXT NOT NULL,
		is_active INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_employees_active
		ON employees(is_active);

	-- Balances (one row per employee, cascaded on purge)
	CREATE TABLE IF NOT EXISTS balances (
		employee_id TEXT PRIMARY KEY REFERENCES employees(id) ON DELETE CASCADE,
		sick_current TEXT NOT NULL DEFAULT '0',
		sick_rollover TEXT NOT NULL DEFAULT '0',
		vac_current TEXT NOT NULL DEFAULT '0',
		vac_rollover TEXT NOT NULL DEFAULT '0',
		updated_at TEXT NOT NULL
	);

	-- Period run markers (one row per recurring job key)
	CREATE TABLE IF NOT EXISTS system_state (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		run_count INTEGER NOT NULL DEFAULT 0,
		last_run_at TEXT NOT NULL,
		last_run_by TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Audit trail (append-only; employee_id nulled on purge, rows kept)
	CREATE TABLE IF NOT EXISTS audit_log (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		timestamp TEXT NOT NULL,
		employee_id TEXT,
		action_type TEXT NOT NULL,
		category TEXT NOT NULL,
		balance_field TEXT,
		hours TEXT,
		note TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_audit_employee
		ON audit_log(employee_id) WHERE employee_id IS NOT NULL;
	CREATE INDEX IF NOT EXISTS idx_audit_timestamp
		ON audit_log(timestamp DESC);
	CREATE INDEX IF NOT EXISTS idx_audit_category
		ON audit_log(category);
	CREATE INDEX IF NOT EXISTS idx_audit_action
		ON audit_log(action_type);
	`

	_, err := s.db.Exec(schema)
	return err
}

// dbtx covers *sql.DB and *sql.Tx so row operations can run either directly
// or inside WithTx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// EMPLOYEES (ledger.Store)
// =============================================================================

func (s *Store) GetEmployee(ctx context.Context, id ledger.EmployeeID) (*ledger.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getEmployee(ctx, s.db, id)
}

func getEmployee(ctx context.Context, db dbtx, id ledger.EmployeeID) (*ledger.Employee, error) {
	var emp ledger.Employee
	var hireDate, createdAt string
	var active int

	err := db.QueryRowContext(ctx,
		"SELECT id, full_name, hire_date, is_active, created_at FROM employees WHERE id = ?",
		string(id),
	).Scan(&emp.ID, &emp.Name, &hireDate, &active, &createdAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, mapBusy(err)
	}

	emp.Active = active != 0
	emp.HireDate, _ = time.Parse(time.RFC3339, hireDate)
	emp.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &emp, nil
}

func (s *Store) ListActiveEmployees(ctx context.Context) ([]ledger.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listActiveEmployees(ctx, s.db)
}

func listActiveEmployees(ctx context.Context, db dbtx) ([]ledger.Employee, error) {
	rows, err := db.QueryContext(ctx,
		"SELECT id, full_name, hire_date, is_active, created_at FROM employees WHERE is_active = 1 ORDER BY full_name",
	)
	if err != nil {
		return nil, mapBusy(err)
	}
	defer rows.Close()

	var employees []ledger.Employee
	for rows.Next() {
		var emp ledger.Employee
		var hireDate, createdAt string
		var active int
		if err := rows.Scan(&emp.ID, &emp.Name, &hireDate, &active, &createdAt); err != nil {
			return nil, err
		}
		emp.Active = active != 0
		emp.HireDate, _ = time.Parse(time.RFC3339, hireDate)
		emp.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		employees = append(employees, emp)
	}
	return employees, rows.Err()
}

// ListEmployees returns every roster record, inactive included. The admin
// roster view needs this; batch jobs use ListActiveEmployees.
func (s *Store) ListEmployees(ctx context.Context) ([]ledger.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, full_name, hire_date, is_active, created_at FROM employees ORDER BY full_name",
	)
	if err != nil {
		return nil, mapBusy(err)
	}
	defer rows.Close()

	var employees []ledger.Employee
	for rows.Next() {
		var emp ledger.Employee
		var hireDate, createdAt string
		var active int
		if err := rows.Scan(&emp.ID, &emp.Name, &hireDate, &active, &createdAt); err != nil {
			return nil, err
		}
		emp.Active = active != 0
		emp.HireDate, _ = time.Parse(time.RFC3339, hireDate)
		emp.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		employees = append(employees, emp)
	}
	return employees, rows.Err()
}

func (s *Store) SaveEmployee(ctx context.Context, emp ledger.Employee) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveEmployee(ctx, s.db, emp)
}

func saveEmployee(ctx context.Context, db dbtx, emp ledger.Employee) error {
	query := `
		INSERT INTO employees (id, full_name, hire_date, is_active, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			full_name = excluded.full_name,
			hire_date = excluded.hire_date,
			is_active = excluded.is_active
	`

	_, err := db.ExecContext(ctx, query,
		string(emp.ID), emp.Name,
		emp.HireDate.Format(time.RFC3339),
		boolToInt(emp.Active),
		emp.CreatedAt.Format(time.RFC3339),
	)
	return mapBusy(err)
}

func (s *Store) DeleteEmployee(ctx context.Context, id ledger.EmployeeID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return deleteEmployee(ctx, s.db, id)
}

func deleteEmployee(ctx context.Context, db dbtx, id ledger.EmployeeID) error {
	// Balance row goes with it via ON DELETE CASCADE.
	_, err := db.ExecContext(ctx, "DELETE FROM employees WHERE id = ?", string(id))
	return mapBusy(err)
}

// =============================================================================
// BALANCES (ledger.Store)
// =============================================================================

func (s *Store) GetBalance(ctx context.Context, id ledger.EmployeeID) (*ledger.Balance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getBalance(ctx, s.db, id)
}

func getBalance(ctx context.Context, db dbtx, id ledger.EmployeeID) (*ledger.Balance, error) {
	var b ledger.Balance
	var sickCur, sickRoll, vacCur, vacRoll, updatedAt string

	err := db.QueryRowContext(ctx,
		`SELECT employee_id, sick_current, sick_rollover, vac_current, vac_rollover, updated_at
		 FROM balances WHERE employee_id = ?`,
		string(id),
	).Scan(&b.EmployeeID, &sickCur, &sickRoll, &vacCur, &vacRoll, &updatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, mapBusy(err)
	}

	b.SickCurrent = ledger.MustParseHours(sickCur)
	b.SickRollover = ledger.MustParseHours(sickRoll)
	b.VacCurrent = ledger.MustParseHours(vacCur)
	b.VacRollover = ledger.MustParseHours(vacRoll)
	b.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &b, nil
}

func (s *Store) SaveBalance(ctx context.Context, b *ledger.Balance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveBalance(ctx, s.db, b)
}

func saveBalance(ctx context.Context, db dbtx, b *ledger.Balance) error {
	query := `
		INSERT INTO balances (employee_id, sick_current, sick_rollover, vac_current, vac_rollover, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(employee_id) DO UPDATE SET
			sick_current = excluded.sick_current,
			sick_rollover = excluded.sick_rollover,
			vac_current = excluded.vac_current,
			vac_rollover = excluded.vac_rollover,
			updated_at = excluded.updated_at
	`

	_, err := db.ExecContext(ctx, query,
		string(b.EmployeeID),
		b.SickCurrent.String(),
		b.SickRollover.String(),
		b.VacCurrent.String(),
		b.VacRollover.String(),
		b.UpdatedAt.Format(time.RFC3339),
	)
	return mapBusy(err)
}

// =============================================================================
// RUN MARKERS (ledger.Store)
// =============================================================================

func (s *Store) GetMarker(ctx context.Context, key string) (*ledger.RunMarker, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getMarker(ctx, s.db, key)
}

func getMarker(ctx context.Context, db dbtx, key string) (*ledger.RunMarker, error) {
	var m ledger.RunMarker
	var lastRunAt string

	err := db.QueryRowContext(ctx,
		"SELECT key, value, run_count, last_run_at, last_run_by FROM system_state WHERE key = ?",
		key,
	).Scan(&m.Key, &m.Period, &m.RunCount, &lastRunAt, &m.LastRunBy)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, mapBusy(err)
	}

	m.LastRunAt, _ = time.Parse(time.RFC3339, lastRunAt)
	return &m, nil
}

func (s *Store) SaveMarker(ctx context.Context, m ledger.RunMarker) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveMarker(ctx, s.db, m)
}

func saveMarker(ctx context.Context, db dbtx, m ledger.RunMarker) error {
	query := `
		INSERT INTO system_state (key, value, run_count, last_run_at, last_run_by, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			run_count = excluded.run_count,
			last_run_at = excluded.last_run_at,
			last_run_by = excluded.last_run_by,
			updated_at = excluded.updated_at
	`

	_, err := db.ExecContext(ctx, query,
		m.Key, m.Period, m.RunCount,
		m.LastRunAt.Format(time.RFC3339),
		m.LastRunBy,
		time.Now().UTC().Format(time.RFC3339),
	)
	return mapBusy(err)
}

// =============================================================================
// AUDIT TRAIL (write side, ledger.Store)
// =============================================================================

func (s *Store) AppendAudit(ctx context.Context, e ledger.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return appendAudit(ctx, s.db, e)
}

func appendAudit(ctx context.Context, db dbtx, e ledger.AuditEntry) error {
	var employeeID, field, hours sql.NullString
	if e.EmployeeID != nil {
		employeeID = sql.NullString{String: string(*e.EmployeeID), Valid: true}
	}
	if e.Field != nil {
		field = sql.NullString{String: string(*e.Field), Valid: true}
	}
	if e.Hours != nil {
		hours = sql.NullString{String: e.Hours.String(), Valid: true}
	}

	query := `
		INSERT INTO audit_log (id, timestamp, employee_id, action_type, category, balance_field, hours, note)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := db.ExecContext(ctx, query,
		e.ID,
		e.Timestamp.Format(time.RFC3339),
		employeeID,
		string(e.Action),
		string(e.Category),
		field,
		hours,
		e.Note,
	)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", mapBusy(err))
	}
	return nil
}

func (s *Store) DetachAuditEntries(ctx context.Context, id ledger.EmployeeID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return detachAuditEntries(ctx, s.db, id)
}

func detachAuditEntries(ctx context.Context, db dbtx, id ledger.EmployeeID) error {
	// The only permitted UPDATE on audit_log.
	_, err := db.ExecContext(ctx,
		"UPDATE audit_log SET employee_id = NULL WHERE employee_id = ?",
		string(id),
	)
	return mapBusy(err)
}

// =============================================================================
// AUDIT TRAIL (read side, ledger.AuditLog)
// =============================================================================

const defaultAuditPageSize = 50

// Entries returns matching audit entries newest-first.
func (s *Store) Entries(ctx context.Context, q ledger.AuditQuery) ([]ledger.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var where []string
	var args []any
	if q.EmployeeID != nil {
		where = append(where, "employee_id = ?")
		args = append(args, string(*q.EmployeeID))
	}
	if q.Category != nil {
		where = append(where, "category = ?")
		args = append(args, string(*q.Category))
	}
	if q.Action != nil {
		where = append(where, "action_type = ?")
		args = append(args, string(*q.Action))
	}

	query := "SELECT id, timestamp, employee_id, action_type, category, balance_field, hours, note FROM audit_log"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY timestamp DESC, seq DESC LIMIT ? OFFSET ?"

	limit := q.Limit
	if limit <= 0 {
		limit = defaultAuditPageSize
	}
	args = append(args, limit, q.Offset)

	return s.queryEntries(ctx, query, args...)
}

// EntriesByEmployee returns one employee's full history oldest-first.
func (s *Store) EntriesByEmployee(ctx context.Context, id ledger.EmployeeID) ([]ledger.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, timestamp, employee_id, action_type, category, balance_field, hours, note
		FROM audit_log
		WHERE employee_id = ?
		ORDER BY timestamp ASC, seq ASC
	`

	return s.queryEntries(ctx, query, string(id))
}

func (s *Store) queryEntries(ctx context.Context, query string, args ...any) ([]ledger.AuditEntry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit entries: %w", mapBusy(err))
	}
	defer rows.Close()

	var entries []ledger.AuditEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func scanEntry(rows *sql.Rows) (ledger.AuditEntry, error) {
	var (
		e          ledger.AuditEntry
		timestamp  string
		employeeID sql.NullString
		field      sql.NullString
		hours      sql.NullString
	)

	err := rows.Scan(&e.ID, &timestamp, &employeeID, &e.Action, &e.Category, &field, &hours, &e.Note)
	if err != nil {
		return e, fmt.Errorf("failed to scan audit entry: %w", err)
	}

	e.Timestamp, _ = time.Parse(time.RFC3339, timestamp)
	if employeeID.Valid {
		id := ledger.EmployeeID(employeeID.String)
		e.EmployeeID = &id
	}
	if field.Valid {
		f := ledger.Field(field.String)
		e.Field = &f
	}
	if hours.Valid {
		h := ledger.MustParseHours(hours.String)
		e.Hours = &h
	}
	return e, nil
}

// =============================================================================
// TRANSACTIONAL STORE (ledger.TxStore)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store ledger.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", mapBusy(err))
	}
	defer sqlTx.Rollback()

	txStore := &txStore{tx: sqlTx}
	if err := fn(txStore); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", mapBusy(err))
	}
	return nil
}

type txStore struct {
	tx *sql.Tx
}

func (ts *txStore) GetEmployee(ctx context.Context, id ledger.EmployeeID) (*ledger.Employee, error) {
	return getEmployee(ctx, ts.tx, id)
}

func (ts *txStore) ListActiveEmployees(ctx context.Context) ([]ledger.Employee, error) {
	return listActiveEmployees(ctx, ts.tx)
}

func (ts *txStore) SaveEmployee(ctx context.Context, emp ledger.Employee) error {
	return saveEmployee(ctx, ts.tx, emp)
}

func (ts *txStore) DeleteEmployee(ctx context.Context, id ledger.EmployeeID) error {
	return deleteEmployee(ctx, ts.tx, id)
}

func (ts *txStore) GetBalance(ctx context.Context, id ledger.EmployeeID) (*ledger.Balance, error) {
	return getBalance(ctx, ts.tx, id)
}

func (ts *txStore) SaveBalance(ctx context.Context, b *ledger.Balance) error {
	return saveBalance(ctx, ts.tx, b)
}

func (ts *txStore) GetMarker(ctx context.Context, key string) (*ledger.RunMarker, error) {
	return getMarker(ctx, ts.tx, key)
}

func (ts *txStore) SaveMarker(ctx context.Context, m ledger.RunMarker) error {
	return saveMarker(ctx, ts.tx, m)
}

func (ts *txStore) AppendAudit(ctx context.Context, e ledger.AuditEntry) error {
	return appendAudit(ctx, ts.tx, e)
}

func (ts *txStore) DetachAuditEntries(ctx context.Context, id ledger.EmployeeID) error {
	return detachAuditEntries(ctx, ts.tx, id)
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"audit_log", "balances", "system_state", "employees"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return mapBusy(err)
		}
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// mapBusy converts SQLite lock contention into the retryable conflict error.
func mapBusy(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if strings.Contains(msg, "database is locked") || strings.Contains(msg, "database table is locked") {
		return fmt.Errorf("%w: %v", ledger.ErrTxConflict, err)
	}
	return err
}

// compile-time interface checks
var (
	_ ledger.TxStore  = (*Store)(nil)
	_ ledger.AuditLog = (*Store)(nil)
)
