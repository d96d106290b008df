/*
mutator.go - The single-field read-modify-write primitive

PURPOSE:
  Every balance change in the system goes through Mutator.Apply: read the
  balance row, compute the new value under a Rule, write it back, and
  append exactly one audit entry - as one unit of work.

ATOMICITY:
  Apply operates on whatever Store it is given. Callers that need the
  read-modify-write to be atomic against concurrent mutations (all of
  them do) run it inside TxStore.WithTx, so the row read, the row write,
  and the audit append commit or roll back together.

AUDIT CONTRACT:
  The entry records the delta ACTUALLY applied, not the delta requested.
  For a clamped subtraction that hits the floor the two differ, and
  reconciliation depends on the applied value.
*/
package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Mutator applies one Rule to one balance field of one employee.
type Mutator struct {
	Store Store
	Clock func() time.Time
}

func NewMutator(store Store) *Mutator {
	return &Mutator{Store: store, Clock: time.Now}
}

// Mutation describes one call to Apply.
type Mutation struct {
	EmployeeID EmployeeID
	Field      Field
	Rule       Rule
	Action     Action
	Category   Category
	Note       string
}

// Applied is the outcome of a successful mutation.
type Applied struct {
	Previous decimal.Decimal
	Value    decimal.Decimal
	Delta    decimal.Decimal // signed delta actually applied
}

// Apply performs the read-modify-write and appends the audit entry.
// Invariant violations are rejected before any write.
func (m *Mutator) Apply(ctx context.Context, mut Mutation) (*Applied, error) {
	bal, err := m.Store.GetBalance(ctx, mut.EmployeeID)
	if err != nil {
		return nil, err
	}
	if bal == nil {
		return nil, ErrUnknownEmployee
	}

	current := bal.Get(mut.Field)
	next, applied, err := mut.Rule.Apply(current)
	if err != nil {
		// Attach identity so the caller can report precisely.
		var insufficient *InsufficientBalanceError
		if errors.As(err, &insufficient) {
			insufficient.EmployeeID = mut.EmployeeID
			insufficient.Field = mut.Field
		}
		var negative *NegativeResultError
		if errors.As(err, &negative) {
			negative.EmployeeID = mut.EmployeeID
			negative.Field = mut.Field
		}
		return nil, err
	}

	now := m.now()
	bal.Set(mut.Field, next)
	bal.UpdatedAt = now
	if err := m.Store.SaveBalance(ctx, bal); err != nil {
		return nil, err
	}

	field := mut.Field
	hours := applied
	entry := AuditEntry{
		ID:         uuid.NewString(),
		Timestamp:  now,
		EmployeeID: &mut.EmployeeID,
		Action:     mut.Action,
		Category:   mut.Category,
		Field:      &field,
		Hours:      &hours,
		Note:       mut.Note,
	}
	if err := m.Store.AppendAudit(ctx, entry); err != nil {
		return nil, err
	}

	return &Applied{Previous: current, Value: next, Delta: applied}, nil
}

func (m *Mutator) now() time.Time {
	if m.Clock != nil {
		return m.Clock()
	}
	return time.Now()
}
