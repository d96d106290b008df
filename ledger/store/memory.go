// Package store provides an in-memory TxStore for tests and development.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/pto-ledger/ledger"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

const defaultAuditPageSize = 50

type Memory struct {
	mu        sync.RWMutex
	employees map[ledger.EmployeeID]ledger.Employee
	balances  map[ledger.EmployeeID]ledger.Balance
	markers   map[string]ledger.RunMarker
	audit     []ledger.AuditEntry // append order; ties broken by position
}

func NewMemory() *Memory {
	return &Memory{
		employees: make(map[ledger.EmployeeID]ledger.Employee),
		balances:  make(map[ledger.EmployeeID]ledger.Balance),
		markers:   make(map[string]ledger.RunMarker),
	}
}

func (m *Memory) GetEmployee(_ context.Context, id ledger.EmployeeID) (*ledger.Employee, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getEmployeeLocked(id), nil
}

func (m *Memory) getEmployeeLocked(id ledger.EmployeeID) *ledger.Employee {
	emp, ok := m.employees[id]
	if !ok {
		return nil
	}
	return &emp
}

func (m *Memory) ListActiveEmployees(_ context.Context) ([]ledger.Employee, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listActiveLocked(), nil
}

func (m *Memory) listActiveLocked() []ledger.Employee {
	var result []ledger.Employee
	for _, emp := range m.employees {
		if emp.Active {
			result = append(result, emp)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

// ListEmployees returns every roster record, inactive included.
func (m *Memory) ListEmployees(_ context.Context) ([]ledger.Employee, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []ledger.Employee
	for _, emp := range m.employees {
		result = append(result, emp)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

func (m *Memory) SaveEmployee(_ context.Context, emp ledger.Employee) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.employees[emp.ID] = emp
	return nil
}

func (m *Memory) DeleteEmployee(_ context.Context, id ledger.EmployeeID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteEmployeeLocked(id)
	return nil
}

func (m *Memory) deleteEmployeeLocked(id ledger.EmployeeID) {
	delete(m.employees, id)
	delete(m.balances, id) // cascade, same as the SQL schema
}

func (m *Memory) GetBalance(_ context.Context, id ledger.EmployeeID) (*ledger.Balance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getBalanceLocked(id), nil
}

func (m *Memory) getBalanceLocked(id ledger.EmployeeID) *ledger.Balance {
	b, ok := m.balances[id]
	if !ok {
		return nil
	}
	return &b
}

func (m *Memory) SaveBalance(_ context.Context, b *ledger.Balance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[b.EmployeeID] = *b
	return nil
}

func (m *Memory) GetMarker(_ context.Context, key string) (*ledger.RunMarker, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getMarkerLocked(key), nil
}

func (m *Memory) getMarkerLocked(key string) *ledger.RunMarker {
	mk, ok := m.markers[key]
	if !ok {
		return nil
	}
	return &mk
}

func (m *Memory) SaveMarker(_ context.Context, mk ledger.RunMarker) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.markers[mk.Key] = mk
	return nil
}

func (m *Memory) AppendAudit(_ context.Context, e ledger.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audit = append(m.audit, e)
	return nil
}

func (m *Memory) DetachAuditEntries(_ context.Context, id ledger.EmployeeID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.detachLocked(id)
	return nil
}

func (m *Memory) detachLocked(id ledger.EmployeeID) {
	for i := range m.audit {
		if m.audit[i].EmployeeID != nil && *m.audit[i].EmployeeID == id {
			m.audit[i].EmployeeID = nil
		}
	}
}

// =============================================================================
// AUDIT LOG - Read side
// =============================================================================

func (m *Memory) Entries(_ context.Context, q ledger.AuditQuery) ([]ledger.AuditEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var matched []ledger.AuditEntry
	// Walk append order backwards: newest-first.
	for i := len(m.audit) - 1; i >= 0; i-- {
		e := m.audit[i]
		if q.EmployeeID != nil && (e.EmployeeID == nil || *e.EmployeeID != *q.EmployeeID) {
			continue
		}
		if q.Category != nil && e.Category != *q.Category {
			continue
		}
		if q.Action != nil && e.Action != *q.Action {
			continue
		}
		matched = append(matched, e)
	}

	limit := q.Limit
	if limit <= 0 {
		limit = defaultAuditPageSize
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}
	if offset > len(matched) {
		offset = len(matched)
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end], nil
}

func (m *Memory) EntriesByEmployee(_ context.Context, id ledger.EmployeeID) ([]ledger.AuditEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []ledger.AuditEntry
	for _, e := range m.audit {
		if e.EmployeeID != nil && *e.EmployeeID == id {
			result = append(result, e)
		}
	}
	// Append order already matches timestamp order for a single writer;
	// sort anyway so the oldest-first contract holds under mixed clocks.
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Timestamp.Before(result[j].Timestamp)
	})
	return result, nil
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with transaction support.
type TxMemory struct {
	*Memory
}

func NewTxMemory() *TxMemory {
	return &TxMemory{Memory: NewMemory()}
}

// WithTx executes fn within a transaction.
// For memory store, this is simulated with a snapshot + rollback on error.
func (tm *TxMemory) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	snapshot := tm.snapshot()

	txStore := &txMemoryView{parent: tm}

	if err := fn(txStore); err != nil {
		tm.restore(snapshot)
		return err
	}

	// Commit (already done via direct writes)
	return nil
}

func (tm *TxMemory) snapshot() memorySnapshot {
	empCopy := make(map[ledger.EmployeeID]ledger.Employee, len(tm.employees))
	for k, v := range tm.employees {
		empCopy[k] = v
	}
	balCopy := make(map[ledger.EmployeeID]ledger.Balance, len(tm.balances))
	for k, v := range tm.balances {
		balCopy[k] = v
	}
	mkCopy := make(map[string]ledger.RunMarker, len(tm.markers))
	for k, v := range tm.markers {
		mkCopy[k] = v
	}
	auditCopy := append([]ledger.AuditEntry{}, tm.audit...)
	return memorySnapshot{employees: empCopy, balances: balCopy, markers: mkCopy, audit: auditCopy}
}

func (tm *TxMemory) restore(s memorySnapshot) {
	tm.employees = s.employees
	tm.balances = s.balances
	tm.markers = s.markers
	tm.audit = s.audit
}

type memorySnapshot struct {
	employees map[ledger.EmployeeID]ledger.Employee
	balances  map[ledger.EmployeeID]ledger.Balance
	markers   map[string]ledger.RunMarker
	audit     []ledger.AuditEntry
}

// txMemoryView operates directly on the parent's maps while the parent's
// lock is held by WithTx. Rollback is the snapshot restore above.
type txMemoryView struct {
	parent *TxMemory
}

func (tv *txMemoryView) GetEmployee(_ context.Context, id ledger.EmployeeID) (*ledger.Employee, error) {
	return tv.parent.getEmployeeLocked(id), nil
}

func (tv *txMemoryView) ListActiveEmployees(_ context.Context) ([]ledger.Employee, error) {
	return tv.parent.listActiveLocked(), nil
}

func (tv *txMemoryView) SaveEmployee(_ context.Context, emp ledger.Employee) error {
	tv.parent.employees[emp.ID] = emp
	return nil
}

func (tv *txMemoryView) DeleteEmployee(_ context.Context, id ledger.EmployeeID) error {
	tv.parent.deleteEmployeeLocked(id)
	return nil
}

func (tv *txMemoryView) GetBalance(_ context.Context, id ledger.EmployeeID) (*ledger.Balance, error) {
	return tv.parent.getBalanceLocked(id), nil
}

func (tv *txMemoryView) SaveBalance(_ context.Context, b *ledger.Balance) error {
	tv.parent.balances[b.EmployeeID] = *b
	return nil
}

func (tv *txMemoryView) GetMarker(_ context.Context, key string) (*ledger.RunMarker, error) {
	return tv.parent.getMarkerLocked(key), nil
}

func (tv *txMemoryView) SaveMarker(_ context.Context, mk ledger.RunMarker) error {
	tv.parent.markers[mk.Key] = mk
	return nil
}

func (tv *txMemoryView) AppendAudit(_ context.Context, e ledger.AuditEntry) error {
	tv.parent.audit = append(tv.parent.audit, e)
	return nil
}

func (tv *txMemoryView) DetachAuditEntries(_ context.Context, id ledger.EmployeeID) error {
	tv.parent.detachLocked(id)
	return nil
}

var (
	_ ledger.Store    = (*Memory)(nil)
	_ ledger.AuditLog = (*Memory)(nil)
	_ ledger.TxStore  = (*TxMemory)(nil)
	_ ledger.Store    = (*txMemoryView)(nil)
)
