/*
reconcile.go - Audit-vs-balance verification

PURPOSE:
  The audit trail is not decoration: for any employee, summing the signed
  hours of their entries per field must equal that field's stored value
  (balances start at zero, and every entry records the delta actually
  applied). Reconcile replays an employee's history and reports any drift.

  Forced batch re-runs intentionally double-apply, but their entries carry
  the real applied deltas, so the sum still matches the stored state.
*/
package ledger

import (
	"context"

	"github.com/shopspring/decimal"
)

// FieldCheck compares one field's replayed ledger total with stored state.
type FieldCheck struct {
	Field  Field
	Ledger decimal.Decimal
	Stored decimal.Decimal
	Match  bool
}

// ReconcileReport is the outcome of replaying one employee's audit history.
type ReconcileReport struct {
	EmployeeID EmployeeID
	Entries    int
	Fields     []FieldCheck
	Balanced   bool
}

// Reconcile verifies that an employee's stored balance equals the sum of
// their audit entries per field. The audit log must return the history
// oldest-first with monotonic timestamps; the sum is order-independent but
// the ordering contract is what makes the history replayable at all.
func (e *Engine) Reconcile(ctx context.Context, log AuditLog, id EmployeeID) (*ReconcileReport, error) {
	bal, err := e.Store.GetBalance(ctx, id)
	if err != nil {
		return nil, err
	}
	if bal == nil {
		return nil, ErrUnknownEmployee
	}

	entries, err := log.EntriesByEmployee(ctx, id)
	if err != nil {
		return nil, err
	}

	totals := map[Field]decimal.Decimal{}
	for _, f := range AllFields() {
		totals[f] = decimal.Zero
	}
	counted := 0
	for _, entry := range entries {
		if entry.Field == nil || entry.Hours == nil {
			continue // roster events touch no balance
		}
		totals[*entry.Field] = totals[*entry.Field].Add(*entry.Hours)
		counted++
	}

	report := &ReconcileReport{EmployeeID: id, Entries: counted, Balanced: true}
	for _, f := range AllFields() {
		check := FieldCheck{
			Field:  f,
			Ledger: totals[f],
			Stored: bal.Get(f),
		}
		check.Match = check.Ledger.Equal(check.Stored)
		if !check.Match {
			report.Balanced = false
		}
		report.Fields = append(report.Fields, check)
	}
	return report, nil
}
