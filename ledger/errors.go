/*
errors.go - Centralized error types for the ledger engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Callers match with errors.Is / errors.As; structured errors carry the
  context needed for a precise remediation message (current balance,
  offending employee, conflicting period).

ERROR CATEGORIES:
  1. Validation errors - rejected before any write
  2. Eligibility errors - operation references an ineligible employee
  3. Storage errors - transaction conflicts and persistence failures

NOTE:
  "Already run this period" is NOT an error. It is a normal decision
  outcome returned as RunResult{Ran: false} with the existing marker's
  metadata, so the caller can decide whether to force.

SEE ALSO:
  - types.go: Rule.Apply produces the validation errors
  - engine.go: eligibility checks and retry on ErrTxConflict
*/
package ledger

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInsufficientBalance is returned when a strict usage deduction would
	// bring the balance below zero. The balance is left untouched.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrNegativeResult is returned when a signed adjustment would bring the
	// balance below zero. The balance is left untouched.
	ErrNegativeResult = errors.New("adjustment would result in negative balance")

	// ErrInvalidAmount is returned for non-positive or negative amounts where
	// the operation disallows them.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrInvalidRule is returned for an unrecognized mutation rule kind.
	ErrInvalidRule = errors.New("invalid mutation rule")

	// ErrUnknownEmployee is returned when an operation references an employee
	// that does not exist.
	ErrUnknownEmployee = errors.New("unknown employee")

	// ErrEmployeeInactive is returned when a batch operation targets an
	// employee that is not active.
	ErrEmployeeInactive = errors.New("employee is not active")

	// ErrNothingToClear is returned when clear-balance targets fields that
	// are all already zero.
	ErrNothingToClear = errors.New("nothing to clear")

	// ErrEmptyReason is returned when a mass adjustment is submitted without
	// a reason string.
	ErrEmptyReason = errors.New("reason is required")

	// ErrNoEmployees is returned when a mass adjustment targets an empty
	// employee list.
	ErrNoEmployees = errors.New("no employees selected")

	// ErrTxConflict signals a concurrent-mutation conflict in the store.
	// The engine retries a bounded number of times before surfacing it.
	ErrTxConflict = errors.New("transaction conflict")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InsufficientBalanceError details a rejected usage deduction.
type InsufficientBalanceError struct {
	EmployeeID EmployeeID
	Field      Field
	Available  decimal.Decimal
	Requested  decimal.Decimal
	Shortfall  decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: available %s, requested %s, shortfall %s",
		e.Available, e.Requested, e.Shortfall)
}

func (e *InsufficientBalanceError) Unwrap() error { return ErrInsufficientBalance }

// NegativeResultError details a rejected signed adjustment.
type NegativeResultError struct {
	EmployeeID EmployeeID
	Field      Field
	Current    decimal.Decimal
	Delta      decimal.Decimal
}

func (e *NegativeResultError) Error() string {
	return fmt.Sprintf("adjustment of %s would take balance below zero (current %s)",
		e.Delta, e.Current)
}

func (e *NegativeResultError) Unwrap() error { return ErrNegativeResult }

// InactiveEmployeeError identifies which employee made a batch ineligible.
type InactiveEmployeeError struct {
	EmployeeID EmployeeID
	Name       string
}

func (e *InactiveEmployeeError) Error() string {
	return fmt.Sprintf("employee %s (%s) is not active", e.EmployeeID, e.Name)
}

func (e *InactiveEmployeeError) Unwrap() error { return ErrEmployeeInactive }

// UnknownFieldError rejects a field name outside the closed enumeration.
type UnknownFieldError struct {
	Name string
}

func (e *UnknownFieldError) Error() string {
	return fmt.Sprintf("unknown balance field %q", e.Name)
}

// UnknownScopeError rejects a clear-balance scope outside sick/vacation/all.
type UnknownScopeError struct {
	Name string
}

func (e *UnknownScopeError) Error() string {
	return fmt.Sprintf("unknown balance scope %q", e.Name)
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTxConflict)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	var fieldErr *UnknownFieldError
	var scopeErr *UnknownScopeError
	return errors.Is(err, ErrInsufficientBalance) ||
		errors.Is(err, ErrNegativeResult) ||
		errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrEmployeeInactive) ||
		errors.Is(err, ErrNothingToClear) ||
		errors.Is(err, ErrEmptyReason) ||
		errors.Is(err, ErrNoEmployees) ||
		errors.As(err, &fieldErr) ||
		errors.As(err, &scopeErr)
}

// IsConflict returns true for well-formed requests forbidden by the
// current ledger state, as opposed to malformed input.
func IsConflict(err error) bool {
	return errors.Is(err, ErrInsufficientBalance) ||
		errors.Is(err, ErrNegativeResult) ||
		errors.Is(err, ErrEmployeeInactive) ||
		errors.Is(err, ErrNothingToClear)
}

// IsNotFound returns true if the error indicates a missing employee.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrUnknownEmployee)
}
