/*
engine.go - The external operation surface of the balance ledger

PURPOSE:
  Engine is what collaborators call: single-employee usage/adjustments,
  the two date-gated batch jobs, mass adjustment, clear-balance, and the
  roster lifecycle events that create and purge balance rows. Every
  operation funnels through the Mutator and runs inside one storage
  transaction, with the period gate checked in that same transaction for
  the batch jobs.

CONCURRENCY:
  The store serializes conflicting writers; when it reports ErrTxConflict
  the engine retries the whole transaction a bounded number of times
  before surfacing the error. A transaction that fails mid-batch rolls
  back completely: marker unmarked, balances unmodified.

AUTHORIZATION:
  Callers are pre-authorized externally. The engine only records WHICH
  identity triggered a run, for display in already-run metadata.

SEE ALSO:
  - mutator.go: the per-field mutation primitive
  - gate.go: CheckAndMark
  - reconcile.go: audit-vs-balance verification
*/
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// =============================================================================
// CONFIGURATION
// =============================================================================

var twelve = decimal.NewFromInt(12)

// Config carries the accrual policy. All employees share one
// organization-wide monthly/annual cycle; there is no per-employee
// anniversary schedule and no pro-ration.
type Config struct {
	AnnualSickHours decimal.Decimal
	AnnualVacHours  decimal.Decimal

	// RolloverCapHours caps the rollover buckets at year-end when positive.
	// Zero means unlimited accumulation, the observed default policy.
	RolloverCapHours decimal.Decimal
}

func DefaultConfig() Config {
	return Config{
		AnnualSickHours:  decimal.NewFromInt(40),
		AnnualVacHours:   decimal.NewFromInt(40),
		RolloverCapHours: decimal.Zero,
	}
}

// MonthlySickGrant is AnnualSickHours/12 rounded to 2 places (40 -> 3.33).
func (c Config) MonthlySickGrant() decimal.Decimal {
	return c.AnnualSickHours.Div(twelve).Round(2)
}

func (c Config) MonthlyVacGrant() decimal.Decimal {
	return c.AnnualVacHours.Div(twelve).Round(2)
}

// =============================================================================
// ENGINE
// =============================================================================

const maxTxRetries = 3

type Engine struct {
	Store  TxStore
	Config Config
	Clock  func() time.Time
	Log    *zap.Logger
}

func NewEngine(store TxStore, cfg Config, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{Store: store, Config: cfg, Clock: time.Now, Log: log}
}

// inTx runs fn in one storage transaction, retrying bounded on conflict.
func (e *Engine) inTx(ctx context.Context, fn func(Store) error) error {
	backoff := retry.WithMaxRetries(maxTxRetries, retry.NewConstant(25*time.Millisecond))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := e.Store.WithTx(ctx, fn)
		if errors.Is(err, ErrTxConflict) {
			return retry.RetryableError(err)
		}
		return err
	})
}

func (e *Engine) mutator(s Store) *Mutator {
	return &Mutator{Store: s, Clock: e.Clock}
}

func (e *Engine) now() time.Time {
	if e.Clock != nil {
		return e.Clock()
	}
	return time.Now()
}

// =============================================================================
// SINGLE-EMPLOYEE OPERATIONS
// =============================================================================

// RecordUsage deducts used hours from one field, strictly: a request for
// more than the available balance is rejected and the balance unchanged.
func (e *Engine) RecordUsage(ctx context.Context, id EmployeeID, field Field, hours decimal.Decimal) (*Applied, error) {
	if !hours.IsPositive() {
		return nil, ErrInvalidAmount
	}

	var applied *Applied
	err := e.inTx(ctx, func(s Store) error {
		emp, err := s.GetEmployee(ctx, id)
		if err != nil {
			return err
		}
		if emp == nil {
			return ErrUnknownEmployee
		}

		applied, err = e.mutator(s).Apply(ctx, Mutation{
			EmployeeID: id,
			Field:      field,
			Rule:       Deduct(hours),
			Action:     ActionUsage,
			Category:   CategoryUsage,
			Note:       fmt.Sprintf("Used %s hours from %s for %q", hours, field, emp.Name),
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return applied, nil
}

// RecordAdjustment applies a signed correction to one field. A delta that
// would bring the balance below zero is rejected with NegativeResult.
func (e *Engine) RecordAdjustment(ctx context.Context, id EmployeeID, field Field, delta decimal.Decimal, note string) (*Applied, error) {
	if delta.IsZero() {
		return nil, ErrInvalidAmount
	}

	var applied *Applied
	err := e.inTx(ctx, func(s Store) error {
		emp, err := s.GetEmployee(ctx, id)
		if err != nil {
			return err
		}
		if emp == nil {
			return ErrUnknownEmployee
		}

		applied, err = e.mutator(s).Apply(ctx, Mutation{
			EmployeeID: id,
			Field:      field,
			Rule:       Delta(delta),
			Action:     ActionAdjustment,
			Category:   CategoryAdjustment,
			Note:       fmt.Sprintf("Adjustment for %q: %s", emp.Name, note),
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return applied, nil
}

// =============================================================================
// BATCH JOBS
// =============================================================================

// RunResult reports a batch job outcome. Ran=false is not an error: the
// period gate refused, and AlreadyRun carries the existing marker metadata
// so the caller can decide whether to force.
type RunResult struct {
	Ran        bool
	Period     string
	Count      int
	AlreadyRun *RunInfo
}

// RunMonthlyAccrual grants the fixed monthly sick and vacation hours to the
// current buckets of every active employee, gated on the current month.
func (e *Engine) RunMonthlyAccrual(ctx context.Context, actor string, forced bool) (*RunResult, error) {
	now := e.now()
	period := MonthKey(now)
	sickGrant := e.Config.MonthlySickGrant()
	vacGrant := e.Config.MonthlyVacGrant()

	result := &RunResult{Period: period}
	err := e.inTx(ctx, func(s Store) error {
		// Reset per attempt: a conflict retry must not accumulate counts
		// from the rolled-back transaction.
		*result = RunResult{Period: period}

		proceed, info, err := CheckAndMark(ctx, s, JobMonthlyAccrual, period, actor, forced, now)
		if err != nil {
			return err
		}
		if !proceed {
			result.AlreadyRun = info
			return nil
		}

		employees, err := s.ListActiveEmployees(ctx)
		if err != nil {
			return err
		}

		note := fmt.Sprintf("Monthly accrual %s", period)
		if forced {
			note += " (forced re-run)"
		}

		mut := e.mutator(s)
		for _, emp := range employees {
			grants := []struct {
				field Field
				hours decimal.Decimal
			}{
				{FieldSickCurrent, sickGrant},
				{FieldVacCurrent, vacGrant},
			}
			for _, g := range grants {
				if _, err := mut.Apply(ctx, Mutation{
					EmployeeID: emp.ID,
					Field:      g.field,
					Rule:       Delta(g.hours),
					Action:     ActionMonthlyAccrual,
					Category:   CategoryAccrual,
					Note:       note,
				}); err != nil {
					return err
				}
			}
			result.Count++
		}
		result.Ran = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.Ran {
		e.Log.Info("monthly accrual complete",
			zap.String("period", period),
			zap.Int("employees", result.Count),
			zap.Bool("forced", forced),
			zap.String("actor", actor))
	}
	return result, nil
}

// RunYearEndRollover folds every active employee's current buckets into
// their rollover buckets and zeroes current, gated on the current year.
// Rollover accumulates across years; it is never drained automatically.
func (e *Engine) RunYearEndRollover(ctx context.Context, actor string, forced bool) (*RunResult, error) {
	now := e.now()
	period := YearKey(now)
	capHours := e.Config.RolloverCapHours

	result := &RunResult{Period: period}
	err := e.inTx(ctx, func(s Store) error {
		*result = RunResult{Period: period}

		proceed, info, err := CheckAndMark(ctx, s, JobYearlyRollover, period, actor, forced, now)
		if err != nil {
			return err
		}
		if !proceed {
			result.AlreadyRun = info
			return nil
		}

		employees, err := s.ListActiveEmployees(ctx)
		if err != nil {
			return err
		}

		mut := e.mutator(s)
		for _, emp := range employees {
			bal, err := s.GetBalance(ctx, emp.ID)
			if err != nil {
				return err
			}
			if bal == nil {
				return ErrUnknownEmployee
			}

			moves := []struct {
				from, to Field
			}{
				{FieldSickCurrent, FieldSickRollover},
				{FieldVacCurrent, FieldVacRollover},
			}
			for _, mv := range moves {
				current := bal.Get(mv.from)
				if !current.IsPositive() {
					continue
				}

				carried := current
				if capHours.IsPositive() {
					room := capHours.Sub(bal.Get(mv.to))
					if room.IsNegative() {
						room = decimal.Zero
					}
					if carried.GreaterThan(room) {
						carried = room
					}
				}
				forfeited := current.Sub(carried)

				note := fmt.Sprintf("Year-end rollover %s", period)
				if forced {
					note += " (forced re-run)"
				}
				if forfeited.IsPositive() {
					note += fmt.Sprintf("; %s hours forfeited at cap %s", forfeited, capHours)
				}

				// A move, not an add-on-top: current always drains to zero.
				if _, err := mut.Apply(ctx, Mutation{
					EmployeeID: emp.ID,
					Field:      mv.from,
					Rule:       Delta(current.Neg()),
					Action:     ActionYearEndRollover,
					Category:   CategoryRollover,
					Note:       note,
				}); err != nil {
					return err
				}
				if carried.IsPositive() {
					if _, err := mut.Apply(ctx, Mutation{
						EmployeeID: emp.ID,
						Field:      mv.to,
						Rule:       Delta(carried),
						Action:     ActionYearEndRollover,
						Category:   CategoryRollover,
						Note:       note,
					}); err != nil {
						return err
					}
				}
			}
			result.Count++
		}
		result.Ran = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.Ran {
		e.Log.Info("year-end rollover complete",
			zap.String("period", period),
			zap.Int("employees", result.Count),
			zap.Bool("forced", forced),
			zap.String("actor", actor))
	}
	return result, nil
}

// =============================================================================
// MASS ADJUSTMENT
// =============================================================================

type AdjustKind string

const (
	AdjustAdd      AdjustKind = "add"
	AdjustSubtract AdjustKind = "subtract"
	AdjustSet      AdjustKind = "set"
)

func ParseAdjustKind(s string) (AdjustKind, error) {
	k := AdjustKind(s)
	switch k {
	case AdjustAdd, AdjustSubtract, AdjustSet:
		return k, nil
	}
	return "", fmt.Errorf("%w: unknown adjustment type %q", ErrInvalidAmount, s)
}

// MassAdjustInput targets one field across an explicit set of employees.
// EffectiveDate is informational: stored in the audit note, not enforced
// against execution time.
type MassAdjustInput struct {
	EmployeeIDs   []EmployeeID
	Field         Field
	Kind          AdjustKind
	Amount        decimal.Decimal
	Reason        string
	EffectiveDate time.Time
	Actor         string
}

type MassAdjustResult struct {
	EmployeeID EmployeeID
	Name       string
	Previous   decimal.Decimal
	Value      decimal.Decimal
	Delta      decimal.Decimal
}

type MassAdjustOutcome struct {
	Count   int
	Results []MassAdjustResult
}

func (in MassAdjustInput) validate() (Rule, error) {
	if len(in.EmployeeIDs) == 0 {
		return Rule{}, ErrNoEmployees
	}
	if in.Reason == "" {
		return Rule{}, ErrEmptyReason
	}

	switch in.Kind {
	case AdjustAdd:
		if !in.Amount.IsPositive() {
			return Rule{}, ErrInvalidAmount
		}
		return Delta(in.Amount), nil
	case AdjustSubtract:
		if !in.Amount.IsPositive() {
			return Rule{}, ErrInvalidAmount
		}
		return DeltaClamped(in.Amount.Neg()), nil
	case AdjustSet:
		if in.Amount.IsNegative() {
			return Rule{}, ErrInvalidAmount
		}
		return SetTo(in.Amount), nil
	default:
		return Rule{}, fmt.Errorf("%w: unknown adjustment type %q", ErrInvalidAmount, in.Kind)
	}
}

// MassAdjust applies one adjustment rule across all targeted employees in a
// single all-or-nothing transaction. An unknown or inactive employee fails
// the whole batch; there is no silent skip.
func (e *Engine) MassAdjust(ctx context.Context, in MassAdjustInput) (*MassAdjustOutcome, error) {
	rule, err := in.validate()
	if err != nil {
		return nil, err
	}

	note := fmt.Sprintf("Mass adjustment (%s %s %s) effective %s: %s",
		in.Kind, in.Amount, in.Field, in.EffectiveDate.Format("2006-01-02"), in.Reason)

	outcome := &MassAdjustOutcome{}
	err = e.inTx(ctx, func(s Store) error {
		outcome.Count = 0
		outcome.Results = outcome.Results[:0]

		mut := e.mutator(s)
		for _, id := range in.EmployeeIDs {
			emp, err := s.GetEmployee(ctx, id)
			if err != nil {
				return err
			}
			if emp == nil {
				return fmt.Errorf("%w: %s", ErrUnknownEmployee, id)
			}
			if !emp.Active {
				return &InactiveEmployeeError{EmployeeID: id, Name: emp.Name}
			}

			applied, err := mut.Apply(ctx, Mutation{
				EmployeeID: id,
				Field:      in.Field,
				Rule:       rule,
				Action:     ActionMassAdjustment,
				Category:   CategoryAdjustment,
				Note:       note,
			})
			if err != nil {
				return err
			}

			outcome.Results = append(outcome.Results, MassAdjustResult{
				EmployeeID: id,
				Name:       emp.Name,
				Previous:   applied.Previous,
				Value:      applied.Value,
				Delta:      applied.Delta,
			})
			outcome.Count++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.Log.Info("mass adjustment complete",
		zap.String("field", string(in.Field)),
		zap.String("kind", string(in.Kind)),
		zap.Int("employees", outcome.Count),
		zap.String("actor", in.Actor))
	return outcome, nil
}

// PreviewMassAdjust computes the per-employee outcome without committing,
// so the caller can show the actual floored deltas before confirmation.
func (e *Engine) PreviewMassAdjust(ctx context.Context, in MassAdjustInput) (*MassAdjustOutcome, error) {
	rule, err := in.validate()
	if err != nil {
		return nil, err
	}

	outcome := &MassAdjustOutcome{}
	for _, id := range in.EmployeeIDs {
		emp, err := e.Store.GetEmployee(ctx, id)
		if err != nil {
			return nil, err
		}
		if emp == nil {
			return nil, fmt.Errorf("%w: %s", ErrUnknownEmployee, id)
		}
		if !emp.Active {
			return nil, &InactiveEmployeeError{EmployeeID: id, Name: emp.Name}
		}

		bal, err := e.Store.GetBalance(ctx, id)
		if err != nil {
			return nil, err
		}
		if bal == nil {
			return nil, fmt.Errorf("%w: %s", ErrUnknownEmployee, id)
		}

		current := bal.Get(in.Field)
		next, applied, err := rule.Apply(current)
		if err != nil {
			return nil, err
		}

		outcome.Results = append(outcome.Results, MassAdjustResult{
			EmployeeID: id,
			Name:       emp.Name,
			Previous:   current,
			Value:      next,
			Delta:      applied,
		})
		outcome.Count++
	}
	return outcome, nil
}

// =============================================================================
// CLEAR BALANCE
// =============================================================================

type ClearOutcome struct {
	Cleared []Field
}

// ClearBalance zeroes the fields selected by scope. Writes one audit entry
// per field that actually held a non-zero value, so the trail reconciles;
// if every targeted field is already zero the call fails with
// ErrNothingToClear. Irreversible - the caller boundary is responsible for
// explicit confirmation.
func (e *Engine) ClearBalance(ctx context.Context, actor string, id EmployeeID, scope Scope) (*ClearOutcome, error) {
	outcome := &ClearOutcome{}
	err := e.inTx(ctx, func(s Store) error {
		outcome.Cleared = outcome.Cleared[:0]

		emp, err := s.GetEmployee(ctx, id)
		if err != nil {
			return err
		}
		if emp == nil {
			return ErrUnknownEmployee
		}

		bal, err := s.GetBalance(ctx, id)
		if err != nil {
			return err
		}
		if bal == nil {
			return ErrUnknownEmployee
		}

		mut := e.mutator(s)
		for _, field := range scope.Fields() {
			if bal.Get(field).IsZero() {
				continue
			}
			if _, err := mut.Apply(ctx, Mutation{
				EmployeeID: id,
				Field:      field,
				Rule:       SetTo(decimal.Zero),
				Action:     ActionBalanceCleared,
				Category:   CategoryAdjustment,
				Note:       fmt.Sprintf("Balance cleared (%s) for %q by %s", scope, emp.Name, actor),
			}); err != nil {
				return err
			}
			outcome.Cleared = append(outcome.Cleared, field)
		}

		if len(outcome.Cleared) == 0 {
			return ErrNothingToClear
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return outcome, nil
}

// =============================================================================
// ROSTER LIFECYCLE - thin CRUD, kept here so balance rows and audit entries
// stay consistent with employee records
// =============================================================================

// CreateEmployee registers an employee with a zeroed balance row, atomically.
func (e *Engine) CreateEmployee(ctx context.Context, actor, name string, hireDate time.Time) (*Employee, error) {
	now := e.now()
	emp := Employee{
		ID:        EmployeeID(uuid.NewString()),
		Name:      name,
		HireDate:  hireDate,
		Active:    true,
		CreatedAt: now,
	}

	err := e.inTx(ctx, func(s Store) error {
		if err := s.SaveEmployee(ctx, emp); err != nil {
			return err
		}
		if err := s.SaveBalance(ctx, NewBalance(emp.ID, now)); err != nil {
			return err
		}
		return s.AppendAudit(ctx, AuditEntry{
			ID:         uuid.NewString(),
			Timestamp:  now,
			EmployeeID: &emp.ID,
			Action:     ActionEmployeeCreated,
			Category:   CategoryEmployee,
			Note:       fmt.Sprintf("Employee %q created with hire date %s", name, hireDate.Format("2006-01-02")),
		})
	})
	if err != nil {
		return nil, err
	}
	return &emp, nil
}

// SetEmployeeActive flips the active flag. Balances are untouched:
// deactivation only removes the employee from batch eligibility.
func (e *Engine) SetEmployeeActive(ctx context.Context, actor string, id EmployeeID, active bool) error {
	now := e.now()
	return e.inTx(ctx, func(s Store) error {
		emp, err := s.GetEmployee(ctx, id)
		if err != nil {
			return err
		}
		if emp == nil {
			return ErrUnknownEmployee
		}

		emp.Active = active
		if err := s.SaveEmployee(ctx, *emp); err != nil {
			return err
		}

		action := ActionEmployeeDeactivated
		verb := "deactivated"
		if active {
			action = ActionEmployeeActivated
			verb = "activated"
		}
		return s.AppendAudit(ctx, AuditEntry{
			ID:         uuid.NewString(),
			Timestamp:  now,
			EmployeeID: &id,
			Action:     action,
			Category:   CategoryEmployee,
			Note:       fmt.Sprintf("Employee %q %s by %s", emp.Name, verb, actor),
		})
	})
}

// DeleteEmployee permanently purges an employee. The balance row cascades;
// existing audit entries are detached (employee reference nulled) rather
// than deleted - the single permitted re-pointing of the audit trail.
func (e *Engine) DeleteEmployee(ctx context.Context, actor string, id EmployeeID) error {
	now := e.now()
	return e.inTx(ctx, func(s Store) error {
		emp, err := s.GetEmployee(ctx, id)
		if err != nil {
			return err
		}
		if emp == nil {
			return ErrUnknownEmployee
		}

		if err := s.DetachAuditEntries(ctx, id); err != nil {
			return err
		}
		if err := s.DeleteEmployee(ctx, id); err != nil {
			return err
		}
		return s.AppendAudit(ctx, AuditEntry{
			ID:        uuid.NewString(),
			Timestamp: now,
			Action:    ActionEmployeeDeleted,
			Category:  CategoryEmployee,
			Note:      fmt.Sprintf("Employee %q permanently deleted by %s", emp.Name, actor),
		})
	})
}
