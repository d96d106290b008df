/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/warp/pto-ledger/ledger"
)

// =============================================================================
// REQUEST/RESPONSE TYPES
// =============================================================================

// EmployeeDTO represents an employee in API responses.
type EmployeeDTO struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	HireDate  string `json:"hire_date"`
	Active    bool   `json:"active"`
	CreatedAt string `json:"created_at,omitempty"`
}

// CreateEmployeeRequest is the request to create an employee.
type CreateEmployeeRequest struct {
	Name     string `json:"name"`
	HireDate string `json:"hire_date"` // ISO date
}

// SetActiveRequest flips the roster active flag.
type SetActiveRequest struct {
	Active bool `json:"active"`
}

// EmployeeWithBalanceDTO pairs a roster record with its hour buckets.
type EmployeeWithBalanceDTO struct {
	EmployeeDTO
	Balance *BalanceDTO `json:"balance,omitempty"`
}

// BalanceDTO represents one employee's four hour buckets.
type BalanceDTO struct {
	EmployeeID   string  `json:"employee_id"`
	SickCurrent  float64 `json:"sick_current"`
	SickRollover float64 `json:"sick_rollover"`
	VacCurrent   float64 `json:"vac_current"`
	VacRollover  float64 `json:"vac_rollover"`
	SickTotal    float64 `json:"sick_total"`
	VacTotal     float64 `json:"vac_total"`
	UpdatedAt    string  `json:"updated_at,omitempty"`
}

// UsageRequest records hours used against one balance field.
type UsageRequest struct {
	EmployeeID string  `json:"employee_id"`
	Field      string  `json:"field"`
	Hours      float64 `json:"hours"`
}

// AdjustmentRequest applies a signed correction to one balance field.
type AdjustmentRequest struct {
	EmployeeID string  `json:"employee_id"`
	Field      string  `json:"field"`
	Delta      float64 `json:"delta"`
	Note       string  `json:"note"`
}

// AppliedDTO reports one executed mutation.
type AppliedDTO struct {
	Previous float64 `json:"previous"`
	Value    float64 `json:"value"`
	Delta    float64 `json:"delta"`
}

// RunRequest triggers one of the gated batch jobs.
type RunRequest struct {
	Force bool `json:"force"`
}

// RunResultDTO reports a batch job outcome. When the period gate refused,
// ran is false and already_run carries the existing marker metadata.
type RunResultDTO struct {
	Ran        bool        `json:"ran"`
	Period     string      `json:"period"`
	Count      int         `json:"count"`
	AlreadyRun *RunInfoDTO `json:"already_run,omitempty"`
}

// RunInfoDTO is the already-run metadata.
type RunInfoDTO struct {
	Period    string `json:"period"`
	RunCount  int    `json:"run_count"`
	LastRunAt string `json:"last_run_at"`
	LastRunBy string `json:"last_run_by"`
}

// MassAdjustRequest targets one field across a set of employees.
type MassAdjustRequest struct {
	EmployeeIDs   []string `json:"employee_ids"`
	Field         string   `json:"field"`
	Type          string   `json:"type"` // add, subtract, set
	Amount        float64  `json:"amount"`
	Reason        string   `json:"reason"`
	EffectiveDate string   `json:"effective_date"` // ISO date
}

// MassAdjustResultDTO is one employee's outcome in a mass adjustment.
type MassAdjustResultDTO struct {
	EmployeeID string  `json:"employee_id"`
	Name       string  `json:"name"`
	Previous   float64 `json:"previous"`
	Value      float64 `json:"value"`
	Delta      float64 `json:"delta"`
}

// MassAdjustResponse wraps the per-employee outcomes.
type MassAdjustResponse struct {
	Count   int                   `json:"count"`
	Results []MassAdjustResultDTO `json:"results"`
}

// ClearBalanceRequest zeroes the scoped fields of one employee.
// Confirm must be true: the operation is irreversible.
type ClearBalanceRequest struct {
	EmployeeID string `json:"employee_id"`
	Scope      string `json:"scope"` // sick, vacation, all
	Confirm    bool   `json:"confirm"`
}

// ClearBalanceResponse lists the fields that actually held hours.
type ClearBalanceResponse struct {
	Cleared []string `json:"cleared"`
}

// AuditEntryDTO represents one audit trail entry.
type AuditEntryDTO struct {
	ID         string   `json:"id"`
	Timestamp  string   `json:"timestamp"`
	EmployeeID *string  `json:"employee_id,omitempty"`
	Action     string   `json:"action"`
	Category   string   `json:"category"`
	Field      *string  `json:"field,omitempty"`
	Hours      *float64 `json:"hours,omitempty"`
	Note       string   `json:"note,omitempty"`
}

// ReconcileDTO reports the audit-vs-balance comparison for one employee.
type ReconcileDTO struct {
	EmployeeID string          `json:"employee_id"`
	Entries    int             `json:"entries"`
	Fields     []FieldCheckDTO `json:"fields"`
	Balanced   bool            `json:"balanced"`
}

// FieldCheckDTO is one field's replayed-vs-stored comparison.
type FieldCheckDTO struct {
	Field  string  `json:"field"`
	Ledger float64 `json:"ledger"`
	Stored float64 `json:"stored"`
	Match  bool    `json:"match"`
}

// StateDTO exposes the period run markers for the batch jobs.
type StateDTO struct {
	MonthlyAccrual *RunInfoDTO `json:"monthly_accrual,omitempty"`
	YearlyRollover *RunInfoDTO `json:"yearly_rollover,omitempty"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toEmployeeDTO(e ledger.Employee) EmployeeDTO {
	return EmployeeDTO{
		ID:        string(e.ID),
		Name:      e.Name,
		HireDate:  e.HireDate.Format("2006-01-02"),
		Active:    e.Active,
		CreatedAt: e.CreatedAt.Format(time.RFC3339),
	}
}

func toBalanceDTO(b *ledger.Balance) BalanceDTO {
	sickCur, _ := b.SickCurrent.Float64()
	sickRoll, _ := b.SickRollover.Float64()
	vacCur, _ := b.VacCurrent.Float64()
	vacRoll, _ := b.VacRollover.Float64()
	sickTotal, _ := b.SickCurrent.Add(b.SickRollover).Float64()
	vacTotal, _ := b.VacCurrent.Add(b.VacRollover).Float64()
	return BalanceDTO{
		EmployeeID:   string(b.EmployeeID),
		SickCurrent:  sickCur,
		SickRollover: sickRoll,
		VacCurrent:   vacCur,
		VacRollover:  vacRoll,
		SickTotal:    sickTotal,
		VacTotal:     vacTotal,
		UpdatedAt:    b.UpdatedAt.Format(time.RFC3339),
	}
}

func toAppliedDTO(a *ledger.Applied) AppliedDTO {
	prev, _ := a.Previous.Float64()
	value, _ := a.Value.Float64()
	delta, _ := a.Delta.Float64()
	return AppliedDTO{Previous: prev, Value: value, Delta: delta}
}

func toRunInfoDTO(info *ledger.RunInfo) *RunInfoDTO {
	if info == nil {
		return nil
	}
	return &RunInfoDTO{
		Period:    info.Period,
		RunCount:  info.RunCount,
		LastRunAt: info.LastRunAt.Format(time.RFC3339),
		LastRunBy: info.LastRunBy,
	}
}

func toRunResultDTO(r *ledger.RunResult) RunResultDTO {
	return RunResultDTO{
		Ran:        r.Ran,
		Period:     r.Period,
		Count:      r.Count,
		AlreadyRun: toRunInfoDTO(r.AlreadyRun),
	}
}

func toMassAdjustResponse(out *ledger.MassAdjustOutcome) MassAdjustResponse {
	resp := MassAdjustResponse{Count: out.Count, Results: make([]MassAdjustResultDTO, 0, len(out.Results))}
	for _, res := range out.Results {
		prev, _ := res.Previous.Float64()
		value, _ := res.Value.Float64()
		delta, _ := res.Delta.Float64()
		resp.Results = append(resp.Results, MassAdjustResultDTO{
			EmployeeID: string(res.EmployeeID),
			Name:       res.Name,
			Previous:   prev,
			Value:      value,
			Delta:      delta,
		})
	}
	return resp
}

func toAuditEntryDTO(e ledger.AuditEntry) AuditEntryDTO {
	dto := AuditEntryDTO{
		ID:        e.ID,
		Timestamp: e.Timestamp.Format(time.RFC3339),
		Action:    string(e.Action),
		Category:  string(e.Category),
		Note:      e.Note,
	}
	if e.EmployeeID != nil {
		id := string(*e.EmployeeID)
		dto.EmployeeID = &id
	}
	if e.Field != nil {
		f := string(*e.Field)
		dto.Field = &f
	}
	if e.Hours != nil {
		h, _ := e.Hours.Float64()
		dto.Hours = &h
	}
	return dto
}

func toAuditEntryDTOs(entries []ledger.AuditEntry) []AuditEntryDTO {
	dtos := make([]AuditEntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toAuditEntryDTO(e)
	}
	return dtos
}

func toReconcileDTO(r *ledger.ReconcileReport) ReconcileDTO {
	dto := ReconcileDTO{
		EmployeeID: string(r.EmployeeID),
		Entries:    r.Entries,
		Balanced:   r.Balanced,
	}
	for _, fc := range r.Fields {
		ledgerSum, _ := fc.Ledger.Float64()
		stored, _ := fc.Stored.Float64()
		dto.Fields = append(dto.Fields, FieldCheckDTO{
			Field:  string(fc.Field),
			Ledger: ledgerSum,
			Stored: stored,
			Match:  fc.Match,
		})
	}
	return dto
}
