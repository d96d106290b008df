package ledger_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/pto-ledger/ledger"
	"github.com/warp/pto-ledger/ledger/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type testClock struct {
	now time.Time
}

func (tc *testClock) Now() time.Time { return tc.now }

func newTestEngine(t *testing.T) (*ledger.Engine, *store.TxMemory, *testClock) {
	t.Helper()
	mem := store.NewTxMemory()
	clock := &testClock{now: time.Date(2025, time.March, 15, 10, 0, 0, 0, time.UTC)}
	engine := ledger.NewEngine(mem, ledger.DefaultConfig(), nil)
	engine.Clock = clock.Now
	return engine, mem, clock
}

func mustCreate(t *testing.T, e *ledger.Engine, name string) ledger.EmployeeID {
	t.Helper()
	emp, err := e.CreateEmployee(context.Background(), "admin", name,
		time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	return emp.ID
}

func setField(t *testing.T, e *ledger.Engine, id ledger.EmployeeID, f ledger.Field, hours float64) {
	t.Helper()
	_, err := e.RecordAdjustment(context.Background(), id, f, ledger.Hours(hours), "test seed")
	require.NoError(t, err)
}

func fieldValue(t *testing.T, mem *store.TxMemory, id ledger.EmployeeID, f ledger.Field) decimal.Decimal {
	t.Helper()
	bal, err := mem.GetBalance(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, bal)
	return bal.Get(f)
}

// =============================================================================
// USAGE AND ADJUSTMENTS
// =============================================================================

func TestRecordUsage_DeductsAndAudits(t *testing.T) {
	// GIVEN: An employee with 10 sick hours
	// WHEN: Recording 6 hours of usage
	// THEN: Balance is 4 and the audit entry carries -6

	engine, mem, _ := newTestEngine(t)
	ctx := context.Background()

	id := mustCreate(t, engine, "Ana Ruiz")
	setField(t, engine, id, ledger.FieldSickCurrent, 10)

	applied, err := engine.RecordUsage(ctx, id, ledger.FieldSickCurrent, ledger.Hours(6))
	require.NoError(t, err)
	assert.True(t, applied.Value.Equal(ledger.Hours(4)))
	assert.True(t, applied.Delta.Equal(ledger.Hours(-6)))

	entries, err := mem.EntriesByEmployee(ctx, id)
	require.NoError(t, err)
	last := entries[len(entries)-1]
	assert.Equal(t, ledger.ActionUsage, last.Action)
	assert.Equal(t, ledger.CategoryUsage, last.Category)
	require.NotNil(t, last.Hours)
	assert.True(t, last.Hours.Equal(ledger.Hours(-6)))
}

func TestRecordUsage_InsufficientBalance_Rejected(t *testing.T) {
	// GIVEN: An employee with 2 vacation hours
	// WHEN: Recording 8 hours of usage
	// THEN: Rejected with the shortfall, balance untouched

	engine, mem, _ := newTestEngine(t)
	ctx := context.Background()

	id := mustCreate(t, engine, "Ben Okafor")
	setField(t, engine, id, ledger.FieldVacCurrent, 2)

	_, err := engine.RecordUsage(ctx, id, ledger.FieldVacCurrent, ledger.Hours(8))
	require.Error(t, err)
	assert.ErrorIs(t, err, ledger.ErrInsufficientBalance)

	var insufficient *ledger.InsufficientBalanceError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, id, insufficient.EmployeeID)
	assert.True(t, insufficient.Shortfall.Equal(ledger.Hours(6)))

	assert.True(t, fieldValue(t, mem, id, ledger.FieldVacCurrent).Equal(ledger.Hours(2)))
}

func TestRecordUsage_InvalidAmounts(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	ctx := context.Background()
	id := mustCreate(t, engine, "Cara Lim")

	_, err := engine.RecordUsage(ctx, id, ledger.FieldSickCurrent, ledger.Hours(0))
	assert.ErrorIs(t, err, ledger.ErrInvalidAmount)

	_, err = engine.RecordUsage(ctx, id, ledger.FieldSickCurrent, ledger.Hours(-3))
	assert.ErrorIs(t, err, ledger.ErrInvalidAmount)
}

func TestRecordAdjustment_NegativeResult_Rejected(t *testing.T) {
	// GIVEN: An employee with 1 hour in sick rollover
	// WHEN: Adjusting by -5
	// THEN: Rejected as a negative result (not insufficient balance)

	engine, mem, _ := newTestEngine(t)
	ctx := context.Background()

	id := mustCreate(t, engine, "Drew Patel")
	setField(t, engine, id, ledger.FieldSickRollover, 1)

	_, err := engine.RecordAdjustment(ctx, id, ledger.FieldSickRollover, ledger.Hours(-5), "correction")
	assert.ErrorIs(t, err, ledger.ErrNegativeResult)
	assert.NotErrorIs(t, err, ledger.ErrInsufficientBalance)

	assert.True(t, fieldValue(t, mem, id, ledger.FieldSickRollover).Equal(ledger.Hours(1)))
}

func TestRecordUsage_UnknownEmployee(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	_, err := engine.RecordUsage(context.Background(), "nobody", ledger.FieldSickCurrent, ledger.Hours(1))
	assert.ErrorIs(t, err, ledger.ErrUnknownEmployee)
}

// =============================================================================
// MONTHLY ACCRUAL
// =============================================================================

func TestMonthlyAccrual_GrantsAndMarks(t *testing.T) {
	// GIVEN: Two active employees, one inactive, in March 2025
	// WHEN: Running the monthly accrual
	// THEN: Active employees gain 3.33 in both current buckets, the
	//       inactive one gains nothing, and the marker reads count=1

	engine, mem, _ := newTestEngine(t)
	ctx := context.Background()

	a := mustCreate(t, engine, "Ana Ruiz")
	b := mustCreate(t, engine, "Ben Okafor")
	c := mustCreate(t, engine, "Cara Lim")
	require.NoError(t, engine.SetEmployeeActive(ctx, "admin", c, false))

	result, err := engine.RunMonthlyAccrual(ctx, "admin", false)
	require.NoError(t, err)
	assert.True(t, result.Ran)
	assert.Equal(t, "2025-03", result.Period)
	assert.Equal(t, 2, result.Count)

	grant := ledger.Hours(3.33)
	assert.True(t, fieldValue(t, mem, a, ledger.FieldSickCurrent).Equal(grant))
	assert.True(t, fieldValue(t, mem, a, ledger.FieldVacCurrent).Equal(grant))
	assert.True(t, fieldValue(t, mem, b, ledger.FieldSickCurrent).Equal(grant))
	assert.True(t, fieldValue(t, mem, c, ledger.FieldSickCurrent).IsZero())

	marker, err := mem.GetMarker(ctx, ledger.JobMonthlyAccrual)
	require.NoError(t, err)
	require.NotNil(t, marker)
	assert.Equal(t, "2025-03", marker.Period)
	assert.Equal(t, 1, marker.RunCount)
	assert.Equal(t, "admin", marker.LastRunBy)
}

func TestMonthlyAccrual_SamePeriod_Refused(t *testing.T) {
	// GIVEN: Accrual already ran for March
	// WHEN: Running again without force
	// THEN: Ran=false with the existing marker metadata, balances unchanged

	engine, mem, _ := newTestEngine(t)
	ctx := context.Background()
	id := mustCreate(t, engine, "Ana Ruiz")

	first, err := engine.RunMonthlyAccrual(ctx, "admin", false)
	require.NoError(t, err)
	require.True(t, first.Ran)

	second, err := engine.RunMonthlyAccrual(ctx, "hr-bot", false)
	require.NoError(t, err)
	assert.False(t, second.Ran)
	require.NotNil(t, second.AlreadyRun)
	assert.Equal(t, "2025-03", second.AlreadyRun.Period)
	assert.Equal(t, 1, second.AlreadyRun.RunCount)
	assert.Equal(t, "admin", second.AlreadyRun.LastRunBy)

	assert.True(t, fieldValue(t, mem, id, ledger.FieldSickCurrent).Equal(ledger.Hours(3.33)))
}

func TestMonthlyAccrual_Forced_RunsAgain(t *testing.T) {
	// GIVEN: Accrual already ran for March
	// WHEN: Running again with force
	// THEN: Grants apply a second time and run_count becomes 2

	engine, mem, _ := newTestEngine(t)
	ctx := context.Background()
	id := mustCreate(t, engine, "Ana Ruiz")

	_, err := engine.RunMonthlyAccrual(ctx, "admin", false)
	require.NoError(t, err)

	forced, err := engine.RunMonthlyAccrual(ctx, "admin", true)
	require.NoError(t, err)
	assert.True(t, forced.Ran)

	assert.True(t, fieldValue(t, mem, id, ledger.FieldSickCurrent).Equal(ledger.Hours(6.66)))

	marker, err := mem.GetMarker(ctx, ledger.JobMonthlyAccrual)
	require.NoError(t, err)
	assert.Equal(t, 2, marker.RunCount)
}

func TestMonthlyAccrual_NewMonth_RunsAgain(t *testing.T) {
	// GIVEN: Accrual ran for March
	// WHEN: The clock moves to April and accrual runs unforced
	// THEN: It proceeds and the marker resets to count=1 for the new period

	engine, mem, clock := newTestEngine(t)
	ctx := context.Background()
	mustCreate(t, engine, "Ana Ruiz")

	_, err := engine.RunMonthlyAccrual(ctx, "admin", false)
	require.NoError(t, err)

	clock.now = time.Date(2025, time.April, 1, 9, 0, 0, 0, time.UTC)
	result, err := engine.RunMonthlyAccrual(ctx, "admin", false)
	require.NoError(t, err)
	assert.True(t, result.Ran)
	assert.Equal(t, "2025-04", result.Period)

	marker, err := mem.GetMarker(ctx, ledger.JobMonthlyAccrual)
	require.NoError(t, err)
	assert.Equal(t, "2025-04", marker.Period)
	assert.Equal(t, 1, marker.RunCount)
}

// =============================================================================
// YEAR-END ROLLOVER
// =============================================================================

func TestRollover_MovesCurrentIntoRollover(t *testing.T) {
	// GIVEN: An employee with current hours and prior rollover hours
	// WHEN: Running the year-end rollover
	// THEN: Current drains to zero and rollover accumulates

	engine, mem, _ := newTestEngine(t)
	ctx := context.Background()

	id := mustCreate(t, engine, "Ana Ruiz")
	setField(t, engine, id, ledger.FieldSickCurrent, 3.33)
	setField(t, engine, id, ledger.FieldSickRollover, 12)
	setField(t, engine, id, ledger.FieldVacCurrent, 20)

	result, err := engine.RunYearEndRollover(ctx, "admin", false)
	require.NoError(t, err)
	assert.True(t, result.Ran)
	assert.Equal(t, "2025", result.Period)

	assert.True(t, fieldValue(t, mem, id, ledger.FieldSickCurrent).IsZero())
	assert.True(t, fieldValue(t, mem, id, ledger.FieldSickRollover).Equal(ledger.Hours(15.33)))
	assert.True(t, fieldValue(t, mem, id, ledger.FieldVacCurrent).IsZero())
	assert.True(t, fieldValue(t, mem, id, ledger.FieldVacRollover).Equal(ledger.Hours(20)))

	marker, err := mem.GetMarker(ctx, ledger.JobYearlyRollover)
	require.NoError(t, err)
	assert.Equal(t, "2025", marker.Period)
	assert.Equal(t, 1, marker.RunCount)
}

func TestRollover_ZeroCurrent_NoEntries(t *testing.T) {
	// GIVEN: An employee with nothing in the current buckets
	// WHEN: Running the rollover
	// THEN: No balance entries are written for them

	engine, mem, _ := newTestEngine(t)
	ctx := context.Background()
	id := mustCreate(t, engine, "Ben Okafor")

	before, err := mem.EntriesByEmployee(ctx, id)
	require.NoError(t, err)

	_, err = engine.RunYearEndRollover(ctx, "admin", false)
	require.NoError(t, err)

	after, err := mem.EntriesByEmployee(ctx, id)
	require.NoError(t, err)
	assert.Len(t, after, len(before))
}

func TestRollover_CapForfeitsExcess(t *testing.T) {
	// GIVEN: A 10-hour rollover cap, 8 already banked, 5 current
	// WHEN: Running the rollover
	// THEN: Only 2 carry over, 3 are forfeited, and the audit deltas
	//       still sum to the stored balances

	engine, mem, _ := newTestEngine(t)
	engine.Config.RolloverCapHours = ledger.Hours(10)
	ctx := context.Background()

	id := mustCreate(t, engine, "Ana Ruiz")
	setField(t, engine, id, ledger.FieldVacCurrent, 5)
	setField(t, engine, id, ledger.FieldVacRollover, 8)

	_, err := engine.RunYearEndRollover(ctx, "admin", false)
	require.NoError(t, err)

	assert.True(t, fieldValue(t, mem, id, ledger.FieldVacCurrent).IsZero())
	assert.True(t, fieldValue(t, mem, id, ledger.FieldVacRollover).Equal(ledger.Hours(10)))

	report, err := engine.Reconcile(ctx, mem, id)
	require.NoError(t, err)
	assert.True(t, report.Balanced)
}

// =============================================================================
// MASS ADJUSTMENT
// =============================================================================

func TestMassAdjust_SubtractClampsAtZero(t *testing.T) {
	// GIVEN: A with 10 vacation hours, B with 8
	// WHEN: Mass-subtracting 3
	// THEN: A lands on 7, B on 5, deterministically

	engine, mem, _ := newTestEngine(t)
	ctx := context.Background()

	a := mustCreate(t, engine, "Ana Ruiz")
	b := mustCreate(t, engine, "Ben Okafor")
	setField(t, engine, a, ledger.FieldVacCurrent, 10)
	setField(t, engine, b, ledger.FieldVacCurrent, 8)

	outcome, err := engine.MassAdjust(ctx, ledger.MassAdjustInput{
		EmployeeIDs:   []ledger.EmployeeID{a, b},
		Field:         ledger.FieldVacCurrent,
		Kind:          ledger.AdjustSubtract,
		Amount:        ledger.Hours(3),
		Reason:        "policy correction",
		EffectiveDate: time.Date(2025, time.March, 15, 0, 0, 0, 0, time.UTC),
		Actor:         "admin",
	})
	require.NoError(t, err)
	assert.Equal(t, 2, outcome.Count)

	assert.True(t, fieldValue(t, mem, a, ledger.FieldVacCurrent).Equal(ledger.Hours(7)))
	assert.True(t, fieldValue(t, mem, b, ledger.FieldVacCurrent).Equal(ledger.Hours(5)))
}

func TestMassAdjust_ClampedDeltaRecorded(t *testing.T) {
	// GIVEN: An employee with only 1 hour
	// WHEN: Mass-subtracting 3
	// THEN: Balance floors at zero and the audit delta is -1, not -3

	engine, mem, _ := newTestEngine(t)
	ctx := context.Background()

	id := mustCreate(t, engine, "Cara Lim")
	setField(t, engine, id, ledger.FieldSickCurrent, 1)

	outcome, err := engine.MassAdjust(ctx, ledger.MassAdjustInput{
		EmployeeIDs: []ledger.EmployeeID{id},
		Field:       ledger.FieldSickCurrent,
		Kind:        ledger.AdjustSubtract,
		Amount:      ledger.Hours(3),
		Reason:      "sweep",
		Actor:       "admin",
	})
	require.NoError(t, err)
	assert.True(t, outcome.Results[0].Delta.Equal(ledger.Hours(-1)))
	assert.True(t, fieldValue(t, mem, id, ledger.FieldSickCurrent).IsZero())

	report, err := engine.Reconcile(ctx, mem, id)
	require.NoError(t, err)
	assert.True(t, report.Balanced)
}

func TestMassAdjust_InactiveTarget_FailsWholeBatch(t *testing.T) {
	// GIVEN: One active and one inactive target
	// WHEN: Mass-adjusting both
	// THEN: The whole batch fails and neither balance changes

	engine, mem, _ := newTestEngine(t)
	ctx := context.Background()

	a := mustCreate(t, engine, "Ana Ruiz")
	b := mustCreate(t, engine, "Ben Okafor")
	setField(t, engine, a, ledger.FieldVacCurrent, 10)
	setField(t, engine, b, ledger.FieldVacCurrent, 10)
	require.NoError(t, engine.SetEmployeeActive(ctx, "admin", b, false))

	_, err := engine.MassAdjust(ctx, ledger.MassAdjustInput{
		EmployeeIDs: []ledger.EmployeeID{a, b},
		Field:       ledger.FieldVacCurrent,
		Kind:        ledger.AdjustAdd,
		Amount:      ledger.Hours(4),
		Reason:      "bonus hours",
		Actor:       "admin",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ledger.ErrEmployeeInactive)

	// Rollback: A's balance must not show the partial add.
	assert.True(t, fieldValue(t, mem, a, ledger.FieldVacCurrent).Equal(ledger.Hours(10)))
	assert.True(t, fieldValue(t, mem, b, ledger.FieldVacCurrent).Equal(ledger.Hours(10)))
}

func TestMassAdjust_Validation(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	ctx := context.Background()
	id := mustCreate(t, engine, "Ana Ruiz")

	_, err := engine.MassAdjust(ctx, ledger.MassAdjustInput{
		Field: ledger.FieldVacCurrent, Kind: ledger.AdjustAdd, Amount: ledger.Hours(1), Reason: "x",
	})
	assert.ErrorIs(t, err, ledger.ErrNoEmployees)

	_, err = engine.MassAdjust(ctx, ledger.MassAdjustInput{
		EmployeeIDs: []ledger.EmployeeID{id},
		Field:       ledger.FieldVacCurrent, Kind: ledger.AdjustAdd, Amount: ledger.Hours(1),
	})
	assert.ErrorIs(t, err, ledger.ErrEmptyReason)

	_, err = engine.MassAdjust(ctx, ledger.MassAdjustInput{
		EmployeeIDs: []ledger.EmployeeID{id},
		Field:       ledger.FieldVacCurrent, Kind: ledger.AdjustAdd, Amount: ledger.Hours(-1), Reason: "x",
	})
	assert.ErrorIs(t, err, ledger.ErrInvalidAmount)
}

func TestPreviewMassAdjust_DoesNotCommit(t *testing.T) {
	// GIVEN: An employee with 10 hours
	// WHEN: Previewing a subtract of 4
	// THEN: The preview shows 6 but the stored balance stays 10

	engine, mem, _ := newTestEngine(t)
	ctx := context.Background()

	id := mustCreate(t, engine, "Ana Ruiz")
	setField(t, engine, id, ledger.FieldVacCurrent, 10)

	outcome, err := engine.PreviewMassAdjust(ctx, ledger.MassAdjustInput{
		EmployeeIDs: []ledger.EmployeeID{id},
		Field:       ledger.FieldVacCurrent,
		Kind:        ledger.AdjustSubtract,
		Amount:      ledger.Hours(4),
		Reason:      "preview",
		Actor:       "admin",
	})
	require.NoError(t, err)
	assert.True(t, outcome.Results[0].Value.Equal(ledger.Hours(6)))

	assert.True(t, fieldValue(t, mem, id, ledger.FieldVacCurrent).Equal(ledger.Hours(10)))
}

// =============================================================================
// CLEAR BALANCE
// =============================================================================

func TestClearBalance_SickScope(t *testing.T) {
	// GIVEN: Sick current 4, sick rollover 0, vacation untouched
	// WHEN: Clearing the sick scope
	// THEN: Exactly one field clears, vacation survives

	engine, mem, _ := newTestEngine(t)
	ctx := context.Background()

	id := mustCreate(t, engine, "Ana Ruiz")
	setField(t, engine, id, ledger.FieldSickCurrent, 4)
	setField(t, engine, id, ledger.FieldVacCurrent, 9)

	outcome, err := engine.ClearBalance(ctx, "admin", id, ledger.ScopeSick)
	require.NoError(t, err)
	assert.Equal(t, []ledger.Field{ledger.FieldSickCurrent}, outcome.Cleared)

	assert.True(t, fieldValue(t, mem, id, ledger.FieldSickCurrent).IsZero())
	assert.True(t, fieldValue(t, mem, id, ledger.FieldVacCurrent).Equal(ledger.Hours(9)))

	report, err := engine.Reconcile(ctx, mem, id)
	require.NoError(t, err)
	assert.True(t, report.Balanced)
}

func TestClearBalance_AlreadyZero(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	id := mustCreate(t, engine, "Ben Okafor")

	_, err := engine.ClearBalance(context.Background(), "admin", id, ledger.ScopeAll)
	assert.ErrorIs(t, err, ledger.ErrNothingToClear)
}

// =============================================================================
// CONFLICT RETRY AND CONCURRENT MUTATIONS
// =============================================================================

// conflictingTxStore reports a transaction conflict for the first N WithTx
// calls: each attempt runs against the real data and is rolled back, then
// the conflict surfaces so the engine's bounded retry kicks in.
type conflictingTxStore struct {
	*store.TxMemory
	conflicts int
}

var errDiscardAttempt = errors.New("discard attempt")

func (cs *conflictingTxStore) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	if cs.conflicts > 0 {
		cs.conflicts--
		err := cs.TxMemory.WithTx(ctx, func(s ledger.Store) error {
			if err := fn(s); err != nil {
				return err
			}
			return errDiscardAttempt
		})
		if err != nil && !errors.Is(err, errDiscardAttempt) {
			return err
		}
		return fmt.Errorf("%w: lock contention", ledger.ErrTxConflict)
	}
	return cs.TxMemory.WithTx(ctx, fn)
}

func newConflictingEngine(t *testing.T) (*ledger.Engine, *conflictingTxStore, *store.TxMemory) {
	t.Helper()
	mem := store.NewTxMemory()
	cs := &conflictingTxStore{TxMemory: mem}
	clock := &testClock{now: time.Date(2025, time.March, 15, 10, 0, 0, 0, time.UTC)}
	engine := ledger.NewEngine(cs, ledger.DefaultConfig(), nil)
	engine.Clock = clock.Now
	return engine, cs, mem
}

func TestMonthlyAccrual_ConflictRetry_CountsOnce(t *testing.T) {
	// GIVEN: One active employee and a store that conflicts on the first attempt
	// WHEN: Running the monthly accrual
	// THEN: The retried run reports one employee granted, not the sum of
	//       the rolled-back attempt and the successful one

	engine, cs, mem := newConflictingEngine(t)
	ctx := context.Background()

	id := mustCreate(t, engine, "Ana Ruiz")
	cs.conflicts = 1

	result, err := engine.RunMonthlyAccrual(ctx, "admin", false)
	require.NoError(t, err)
	assert.True(t, result.Ran)
	assert.Equal(t, 1, result.Count)
	assert.Nil(t, result.AlreadyRun)

	assert.True(t, fieldValue(t, mem, id, ledger.FieldSickCurrent).Equal(ledger.Hours(3.33)))

	marker, err := mem.GetMarker(ctx, ledger.JobMonthlyAccrual)
	require.NoError(t, err)
	assert.Equal(t, 1, marker.RunCount)
}

func TestRollover_ConflictRetry_CountsOnce(t *testing.T) {
	engine, cs, mem := newConflictingEngine(t)
	ctx := context.Background()

	id := mustCreate(t, engine, "Ben Okafor")
	setField(t, engine, id, ledger.FieldSickCurrent, 5)
	cs.conflicts = 1

	result, err := engine.RunYearEndRollover(ctx, "admin", false)
	require.NoError(t, err)
	assert.True(t, result.Ran)
	assert.Equal(t, 1, result.Count)

	assert.True(t, fieldValue(t, mem, id, ledger.FieldSickRollover).Equal(ledger.Hours(5)))
}

func TestRecordUsage_ConcurrentDeductions_OnlyOneSucceeds(t *testing.T) {
	// GIVEN: 8 vacation hours and two callers racing to deduct 6 each
	// WHEN: Both deductions run concurrently
	// THEN: Exactly one succeeds and the balance never goes negative

	engine, mem, _ := newTestEngine(t)
	ctx := context.Background()

	id := mustCreate(t, engine, "Ana Ruiz")
	setField(t, engine, id, ledger.FieldVacCurrent, 8)

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = engine.RecordUsage(ctx, id, ledger.FieldVacCurrent, ledger.Hours(6))
		}(i)
	}
	wg.Wait()

	var failed int
	for _, err := range errs {
		if err != nil {
			assert.ErrorIs(t, err, ledger.ErrInsufficientBalance)
			failed++
		}
	}
	assert.Equal(t, 1, failed)

	final := fieldValue(t, mem, id, ledger.FieldVacCurrent)
	assert.False(t, final.IsNegative())
	assert.True(t, final.Equal(ledger.Hours(2)))
}

// =============================================================================
// RECONCILIATION
// =============================================================================

func TestReconcile_BalancedAfterMixedHistory(t *testing.T) {
	// GIVEN: Accruals (one forced re-run), usage, and an adjustment
	// WHEN: Replaying the audit history
	// THEN: Every field's entry sum equals its stored value

	engine, mem, _ := newTestEngine(t)
	ctx := context.Background()

	id := mustCreate(t, engine, "Ana Ruiz")

	_, err := engine.RunMonthlyAccrual(ctx, "admin", false)
	require.NoError(t, err)
	_, err = engine.RunMonthlyAccrual(ctx, "admin", true)
	require.NoError(t, err)

	_, err = engine.RecordUsage(ctx, id, ledger.FieldSickCurrent, ledger.Hours(2.5))
	require.NoError(t, err)
	_, err = engine.RecordAdjustment(ctx, id, ledger.FieldVacRollover, ledger.Hours(8), "prior-year credit")
	require.NoError(t, err)

	report, err := engine.Reconcile(ctx, mem, id)
	require.NoError(t, err)
	assert.True(t, report.Balanced)
	for _, fc := range report.Fields {
		assert.True(t, fc.Match, "field %s: ledger %s vs stored %s", fc.Field, fc.Ledger, fc.Stored)
	}
}

// =============================================================================
// ROSTER LIFECYCLE
// =============================================================================

func TestCreateEmployee_ZeroedBalance(t *testing.T) {
	engine, mem, _ := newTestEngine(t)
	ctx := context.Background()

	id := mustCreate(t, engine, "New Hire")

	bal, err := mem.GetBalance(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, bal)
	for _, f := range ledger.AllFields() {
		assert.True(t, bal.Get(f).IsZero())
	}

	entries, err := mem.EntriesByEmployee(ctx, id)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, ledger.ActionEmployeeCreated, entries[0].Action)
	assert.Equal(t, ledger.CategoryEmployee, entries[0].Category)
	assert.Nil(t, entries[0].Field)
}

func TestDeleteEmployee_DetachesAudit(t *testing.T) {
	// GIVEN: An employee with balance history
	// WHEN: Permanently deleting them
	// THEN: The roster and balance rows are gone, but the audit entries
	//       survive with their employee reference nulled

	engine, mem, _ := newTestEngine(t)
	ctx := context.Background()

	id := mustCreate(t, engine, "Ana Ruiz")
	setField(t, engine, id, ledger.FieldSickCurrent, 5)

	require.NoError(t, engine.DeleteEmployee(ctx, "admin", id))

	emp, err := mem.GetEmployee(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, emp)

	bal, err := mem.GetBalance(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, bal)

	byEmployee, err := mem.EntriesByEmployee(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, byEmployee)

	all, err := mem.Entries(ctx, ledger.AuditQuery{})
	require.NoError(t, err)
	var deleted, detached int
	for _, e := range all {
		if e.Action == ledger.ActionEmployeeDeleted {
			deleted++
		}
		if e.EmployeeID == nil {
			detached++
		}
	}
	assert.Equal(t, 1, deleted)
	assert.GreaterOrEqual(t, detached, 3) // created + adjustment + deletion record
}

func TestSetEmployeeActive_AuditsFlip(t *testing.T) {
	engine, mem, _ := newTestEngine(t)
	ctx := context.Background()

	id := mustCreate(t, engine, "Ana Ruiz")
	require.NoError(t, engine.SetEmployeeActive(ctx, "admin", id, false))
	require.NoError(t, engine.SetEmployeeActive(ctx, "admin", id, true))

	entries, err := mem.EntriesByEmployee(ctx, id)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, ledger.ActionEmployeeDeactivated, entries[1].Action)
	assert.Equal(t, ledger.ActionEmployeeActivated, entries[2].Action)
}
