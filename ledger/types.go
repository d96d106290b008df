/*
Package ledger provides the PTO balance ledger engine.

PURPOSE:
  This package contains the core types and algorithms for tracking paid
  time off balances: per-employee sick/vacation buckets, the mutation
  primitive that keeps them non-negative, date-gated batch jobs (monthly
  accrual, year-end rollover), bulk administrative adjustments, and the
  append-only audit trail that must reconcile exactly with balance state.

KEY CONCEPTS IN THIS FILE (types.go):
  - Field: closed enumeration of the four balance fields
  - Balance: one row per employee, four non-negative hour buckets
  - Rule: how a mutation computes the new value (delta, clamp, set)
  - RunMarker: persisted record of the last period a batch job processed
  - AuditEntry: immutable record of one balance-affecting action

DESIGN PRINCIPLES:
  1. Precision: Uses decimal.Decimal to avoid floating-point errors
  2. Closed fields: balance fields are an enum, not free-form strings,
     so a typo cannot silently create a fifth bucket
  3. Auditability: every mutation records the delta actually applied,
     not the delta requested (they differ for clamped subtractions)
  4. Immutability: audit entries are never updated or deleted; the only
     permitted change is detaching the employee reference on purge

SEE ALSO:
  - mutator.go: the single-field read-modify-write primitive
  - gate.go: the period gate state machine
  - engine.go: batch jobs and the external operation surface
  - store.go: persistence interfaces
*/
package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// HOURS - All balance quantities are decimal hours
// =============================================================================

// Hours builds a decimal hour quantity from a float literal.
// Convenience for call sites and tests; storage always round-trips strings.
func Hours(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v)
}

// MustParseHours parses a stored decimal string, returning zero on failure.
func MustParseHours(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

type EmployeeID string

// =============================================================================
// FIELD - Closed enumeration of the four balance fields
// =============================================================================

type Field string

const (
	FieldSickCurrent  Field = "sick_current"
	FieldSickRollover Field = "sick_rollover"
	FieldVacCurrent   Field = "vac_current"
	FieldVacRollover  Field = "vac_rollover"
)

// AllFields lists every balance field in canonical order.
func AllFields() []Field {
	return []Field{FieldSickCurrent, FieldSickRollover, FieldVacCurrent, FieldVacRollover}
}

// ParseField validates a wire-level field name.
func ParseField(s string) (Field, error) {
	f := Field(s)
	switch f {
	case FieldSickCurrent, FieldSickRollover, FieldVacCurrent, FieldVacRollover:
		return f, nil
	}
	return "", &UnknownFieldError{Name: s}
}

// Leave identifies which leave category a field belongs to.
type Leave string

const (
	LeaveSick     Leave = "sick"
	LeaveVacation Leave = "vacation"
)

func (f Field) Leave() Leave {
	if f == FieldSickCurrent || f == FieldSickRollover {
		return LeaveSick
	}
	return LeaveVacation
}

// =============================================================================
// SCOPE - Field selector for clear-balance
// =============================================================================

type Scope string

const (
	ScopeSick     Scope = "sick"
	ScopeVacation Scope = "vacation"
	ScopeAll      Scope = "all"
)

func ParseScope(s string) (Scope, error) {
	sc := Scope(s)
	switch sc {
	case ScopeSick, ScopeVacation, ScopeAll:
		return sc, nil
	}
	return "", &UnknownScopeError{Name: s}
}

// Fields returns the balance fields covered by the scope.
func (s Scope) Fields() []Field {
	switch s {
	case ScopeSick:
		return []Field{FieldSickCurrent, FieldSickRollover}
	case ScopeVacation:
		return []Field{FieldVacCurrent, FieldVacRollover}
	default:
		return AllFields()
	}
}

// =============================================================================
// EMPLOYEE - Roster record (thin; the engine only reads the active flag)
// =============================================================================

type Employee struct {
	ID        EmployeeID
	Name      string
	HireDate  time.Time
	Active    bool
	CreatedAt time.Time
}

// =============================================================================
// BALANCE - One row per employee, four non-negative hour buckets
// =============================================================================

// Balance holds the four buckets. Fields are accessed through Get/Set so
// every read and write goes through the closed Field enumeration.
type Balance struct {
	EmployeeID   EmployeeID
	SickCurrent  decimal.Decimal
	SickRollover decimal.Decimal
	VacCurrent   decimal.Decimal
	VacRollover  decimal.Decimal
	UpdatedAt    time.Time
}

// NewBalance returns a zeroed balance for a freshly created employee.
func NewBalance(id EmployeeID, now time.Time) *Balance {
	return &Balance{
		EmployeeID:   id,
		SickCurrent:  decimal.Zero,
		SickRollover: decimal.Zero,
		VacCurrent:   decimal.Zero,
		VacRollover:  decimal.Zero,
		UpdatedAt:    now,
	}
}

func (b *Balance) Get(f Field) decimal.Decimal {
	switch f {
	case FieldSickCurrent:
		return b.SickCurrent
	case FieldSickRollover:
		return b.SickRollover
	case FieldVacCurrent:
		return b.VacCurrent
	default:
		return b.VacRollover
	}
}

func (b *Balance) Set(f Field, v decimal.Decimal) {
	switch f {
	case FieldSickCurrent:
		b.SickCurrent = v
	case FieldSickRollover:
		b.SickRollover = v
	case FieldVacCurrent:
		b.VacCurrent = v
	default:
		b.VacRollover = v
	}
}

// =============================================================================
// RULE - How a mutation computes the new field value
// =============================================================================

type RuleKind string

const (
	RuleDelta        RuleKind = "delta"         // add signed amount, strict floor
	RuleDeltaClamped RuleKind = "delta_clamped" // add signed amount, clamp floor at zero
	RuleSet          RuleKind = "set"           // override to absolute value
)

// Rule describes one mutation of one balance field.
/// Usage marks a strict deduction: going below zero is InsufficientBalance
// rather than NegativeResult, so callers get the right remediation message.
type Rule struct {
	Kind   RuleKind
	Amount decimal.Decimal
	Usage  bool
}

// Delta adds a signed amount; the result must not go below zero.
func Delta(amount decimal.Decimal) Rule {
	return Rule{Kind: RuleDelta, Amount: amount}
}

// Deduct subtracts hours as a strict usage deduction.
func Deduct(hours decimal.Decimal) Rule {
	return Rule{Kind: RuleDelta, Amount: hours.Neg(), Usage: true}
}

// DeltaClamped adds a signed amount, clamping the floor at zero.
// Used by subtract-type administrative adjustments.
func DeltaClamped(amount decimal.Decimal) Rule {
	return Rule{Kind: RuleDeltaClamped, Amount: amount}
}

// SetTo overrides the field to an absolute non-negative value.
func SetTo(amount decimal.Decimal) Rule {
	return Rule{Kind: RuleSet, Amount: amount}
}

// Apply computes the next value from the current one.
// Returns the new value and the delta actually applied (which differs from
// the requested amount when a clamped subtraction hits the floor).
func (r Rule) Apply(current decimal.Decimal) (next, applied decimal.Decimal, err error) {
	switch r.Kind {
	case RuleDelta:
		next = current.Add(r.Amount)
		if next.IsNegative() {
			if r.Usage {
				return current, decimal.Zero, &InsufficientBalanceError{
					Available: current,
					Requested: r.Amount.Neg(),
					Shortfall: next.Neg(),
				}
			}
			return current, decimal.Zero, &NegativeResultError{Current: current, Delta: r.Amount}
		}
		return next, r.Amount, nil

	case RuleDeltaClamped:
		next = current.Add(r.Amount)
		if next.IsNegative() {
			next = decimal.Zero
		}
		return next, next.Sub(current), nil

	case RuleSet:
		if r.Amount.IsNegative() {
			return current, decimal.Zero, ErrInvalidAmount
		}
		return r.Amount, r.Amount.Sub(current), nil

	default:
		return current, decimal.Zero, ErrInvalidRule
	}
}

// =============================================================================
// RUN MARKER - Persisted state of the period gate
// =============================================================================

// Job keys for the two recurring batch jobs.
const (
	JobMonthlyAccrual = "monthly_accrual"
	JobYearlyRollover = "yearly_rollover"
)

// RunMarker records the last period a recurring job successfully processed.
// Created on first run, mutated on every subsequent run, never deleted.
type RunMarker struct {
	Key       string
	Period    string // "2025-03" for monthly jobs, "2025" for yearly
	RunCount  int    // incremented on every successful run, forced included
	LastRunAt time.Time
	LastRunBy string
}

// =============================================================================
// AUDIT ENTRY - Immutable record of one mutation
// =============================================================================

type Category string

const (
	CategoryUsage      Category = "USAGE"
	CategoryAdjustment Category = "ADJUSTMENT"
	CategoryAccrual    Category = "ACCRUAL"
	CategoryRollover   Category = "ROLLOVER"
	CategoryEmployee   Category = "EMPLOYEE"
)

type Action string

const (
	ActionUsage               Action = "PTO_USAGE"
	ActionAdjustment          Action = "ADJUSTMENT"
	ActionMonthlyAccrual      Action = "MONTHLY_ACCRUAL"
	ActionYearEndRollover     Action = "YEAR_END_ROLLOVER"
	ActionMassAdjustment      Action = "MASS_ADJUSTMENT"
	ActionBalanceCleared      Action = "BALANCE_CLEARED"
	ActionEmployeeCreated     Action = "EMPLOYEE_CREATED"
	ActionEmployeeActivated   Action = "EMPLOYEE_ACTIVATED"
	ActionEmployeeDeactivated Action = "EMPLOYEE_DEACTIVATED"
	ActionEmployeeDeleted     Action = "EMPLOYEE_DELETED"
)

// AuditEntry records one balance-affecting action.
// EmployeeID is a pointer so the entry survives employee deletion: purge
// re-points it to nil instead of dropping the history.
// Field and Hours are nil for roster events, which touch no balance.
type AuditEntry struct {
	ID         string
	Timestamp  time.Time
	EmployeeID *EmployeeID
	Action     Action
	Category   Category
	Field      *Field
	Hours      *decimal.Decimal // signed delta actually applied
	Note       string
}
