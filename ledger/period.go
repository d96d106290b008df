package ledger

import "time"

// =============================================================================
// PERIOD KEYS - Both batch jobs share one organization-wide calendar cycle
// =============================================================================

// MonthKey formats the accrual period for a point in time, e.g. "2025-03".
func MonthKey(t time.Time) string {
	return t.Format("2006-01")
}

// YearKey formats the rollover period for a point in time, e.g. "2025".
func YearKey(t time.Time) string {
	return t.Format("2006")
}
