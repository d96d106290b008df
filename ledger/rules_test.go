package ledger

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// RULE APPLICATION
// =============================================================================

func TestRuleDelta_Add(t *testing.T) {
	next, applied, err := Delta(Hours(3.33)).Apply(Hours(10))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !next.Equal(Hours(13.33)) {
		t.Errorf("expected 13.33, got %v", next)
	}
	if !applied.Equal(Hours(3.33)) {
		t.Errorf("expected applied 3.33, got %v", applied)
	}
}

func TestRuleDelta_BelowZero_NegativeResult(t *testing.T) {
	_, _, err := Delta(Hours(-5)).Apply(Hours(2))
	if !errors.Is(err, ErrNegativeResult) {
		t.Errorf("expected ErrNegativeResult, got %v", err)
	}
}

func TestRuleDeduct_BelowZero_InsufficientBalance(t *testing.T) {
	_, _, err := Deduct(Hours(5)).Apply(Hours(2))
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}

	var insufficient *InsufficientBalanceError
	if !errors.As(err, &insufficient) {
		t.Fatal("expected InsufficientBalanceError")
	}
	if !insufficient.Shortfall.Equal(Hours(3)) {
		t.Errorf("expected shortfall 3, got %v", insufficient.Shortfall)
	}
}

func TestRuleDeduct_ExactBalance_Allowed(t *testing.T) {
	next, _, err := Deduct(Hours(2)).Apply(Hours(2))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !next.IsZero() {
		t.Errorf("expected zero, got %v", next)
	}
}

func TestRuleDeltaClamped_FloorsAtZero(t *testing.T) {
	next, applied, err := DeltaClamped(Hours(-3)).Apply(Hours(1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !next.IsZero() {
		t.Errorf("expected zero, got %v", next)
	}
	// The applied delta is what actually happened, not what was asked.
	if !applied.Equal(Hours(-1)) {
		t.Errorf("expected applied -1, got %v", applied)
	}
}

func TestRuleSet_RecordsDeltaFromCurrent(t *testing.T) {
	next, applied, err := SetTo(Hours(8)).Apply(Hours(3))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !next.Equal(Hours(8)) {
		t.Errorf("expected 8, got %v", next)
	}
	if !applied.Equal(Hours(5)) {
		t.Errorf("expected applied 5, got %v", applied)
	}
}

func TestRuleSet_NegativeRejected(t *testing.T) {
	_, _, err := SetTo(Hours(-1)).Apply(Hours(3))
	if !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("expected ErrInvalidAmount, got %v", err)
	}
}

// =============================================================================
// PARSERS
// =============================================================================

func TestParseField(t *testing.T) {
	for _, name := range []string{"sick_current", "sick_rollover", "vac_current", "vac_rollover"} {
		if _, err := ParseField(name); err != nil {
			t.Errorf("ParseField(%q): %v", name, err)
		}
	}

	if _, err := ParseField("bonus_hours"); err == nil {
		t.Error("expected unknown field to be rejected")
	}
	var fieldErr *UnknownFieldError
	_, err := ParseField("sick")
	if !errors.As(err, &fieldErr) {
		t.Errorf("expected UnknownFieldError, got %v", err)
	}
}

func TestScopeFields(t *testing.T) {
	if got := len(ScopeSick.Fields()); got != 2 {
		t.Errorf("sick scope: expected 2 fields, got %d", got)
	}
	if got := len(ScopeAll.Fields()); got != 4 {
		t.Errorf("all scope: expected 4 fields, got %d", got)
	}
	if _, err := ParseScope("everything"); err == nil {
		t.Error("expected unknown scope to be rejected")
	}
}

// =============================================================================
// PERIOD KEYS AND GRANTS
// =============================================================================

func TestPeriodKeys(t *testing.T) {
	at := time.Date(2025, time.March, 31, 23, 59, 0, 0, time.UTC)
	if got := MonthKey(at); got != "2025-03" {
		t.Errorf("MonthKey: expected 2025-03, got %s", got)
	}
	if got := YearKey(at); got != "2025" {
		t.Errorf("YearKey: expected 2025, got %s", got)
	}
}

func TestMonthlyGrant_Rounding(t *testing.T) {
	cfg := DefaultConfig()
	if !cfg.MonthlySickGrant().Equal(decimal.RequireFromString("3.33")) {
		t.Errorf("expected 3.33, got %v", cfg.MonthlySickGrant())
	}

	cfg.AnnualVacHours = decimal.NewFromInt(60)
	if !cfg.MonthlyVacGrant().Equal(decimal.NewFromInt(5)) {
		t.Errorf("expected 5, got %v", cfg.MonthlyVacGrant())
	}
}
