/*
handlers.go - HTTP API handlers for the PTO balance ledger

PURPOSE:
  Exposes the ledger engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Employees:
    GET    /api/employees                 List all employees
    POST   /api/employees                 Create employee
    GET    /api/employees/{id}            Get employee details
    GET    /api/employees/{id}/balance    Get the four hour buckets
    GET    /api/employees/{id}/reconcile  Audit-vs-balance verification
    PUT    /api/employees/{id}/active     Activate/deactivate
    DELETE /api/employees/{id}            Permanent purge

  Balance operations:
    POST   /api/usage                     Record hours used
    POST   /api/adjustments               Single-employee correction

  Admin:
    POST   /api/admin/accrual             Run monthly accrual (gated)
    POST   /api/admin/rollover            Run year-end rollover (gated)
    POST   /api/admin/mass-adjust         Bulk adjustment
    POST   /api/admin/mass-adjust/preview Dry run of a bulk adjustment
    POST   /api/admin/clear-balance       Zero out scoped fields

  Audit:
    GET    /api/audit                     Audit trail (newest-first, paged)
    GET    /api/state                     Batch job run markers

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Unknown employee
  - 409: Invariant conflicts (insufficient balance, inactive target,
         nothing to clear)
  - 500: Internal errors
  - 503: Transaction conflict after bounded retries

IDENTITY:
  Callers are pre-authorized externally. The X-Actor header names the
  identity recorded in run markers and audit notes; it defaults to
  "admin" when absent.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/warp/pto-ledger/ledger"
	"github.com/warp/pto-ledger/store/sqlite"
	"go.uber.org/zap"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Engine *ledger.Engine
	Store  *sqlite.Store
	Log    *zap.Logger
}

// NewHandler creates a new handler.
func NewHandler(engine *ledger.Engine, store *sqlite.Store, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{Engine: engine, Store: store, Log: log}
}

// actor reads the caller identity recorded in markers and audit notes.
func actor(r *http.Request) string {
	if a := r.Header.Get("X-Actor"); a != "" {
		return a
	}
	return "admin"
}

// =============================================================================
// EMPLOYEE HANDLERS
// =============================================================================

// ListEmployees returns all employees, inactive included, each with
// their balance so roster views need a single round trip.
func (h *Handler) ListEmployees(w http.ResponseWriter, r *http.Request) {
	employees, err := h.Store.ListEmployees(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list employees", err)
		return
	}

	dtos := make([]EmployeeWithBalanceDTO, len(employees))
	for i, e := range employees {
		dtos[i] = EmployeeWithBalanceDTO{EmployeeDTO: toEmployeeDTO(e)}
		bal, err := h.Store.GetBalance(r.Context(), e.ID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to get balance", err)
			return
		}
		if bal != nil {
			b := toBalanceDTO(bal)
			dtos[i].Balance = &b
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateEmployee registers an employee with a zeroed balance row.
func (h *Handler) CreateEmployee(w http.ResponseWriter, r *http.Request) {
	var req CreateEmployeeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "Name is required", nil)
		return
	}

	hireDate := time.Now()
	if req.HireDate != "" {
		parsed, err := time.Parse("2006-01-02", req.HireDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid hire_date, expected YYYY-MM-DD", err)
			return
		}
		hireDate = parsed
	}

	emp, err := h.Engine.CreateEmployee(r.Context(), actor(r), req.Name, hireDate)
	if err != nil {
		h.writeEngineError(w, "Failed to create employee", err)
		return
	}
	writeJSON(w, http.StatusCreated, toEmployeeDTO(*emp))
}

// GetEmployee returns one employee with their balance.
func (h *Handler) GetEmployee(w http.ResponseWriter, r *http.Request) {
	id := ledger.EmployeeID(chi.URLParam(r, "id"))

	emp, err := h.Store.GetEmployee(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get employee", err)
		return
	}
	if emp == nil {
		writeError(w, http.StatusNotFound, "Employee not found", nil)
		return
	}

	bal, err := h.Store.GetBalance(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get balance", err)
		return
	}

	resp := EmployeeWithBalanceDTO{EmployeeDTO: toEmployeeDTO(*emp)}
	if bal != nil {
		b := toBalanceDTO(bal)
		resp.Balance = &b
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetBalance returns one employee's four hour buckets.
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	id := ledger.EmployeeID(chi.URLParam(r, "id"))

	bal, err := h.Store.GetBalance(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get balance", err)
		return
	}
	if bal == nil {
		writeError(w, http.StatusNotFound, "Employee not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, toBalanceDTO(bal))
}

// SetEmployeeActive flips the roster active flag.
func (h *Handler) SetEmployeeActive(w http.ResponseWriter, r *http.Request) {
	id := ledger.EmployeeID(chi.URLParam(r, "id"))

	var req SetActiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if err := h.Engine.SetEmployeeActive(r.Context(), actor(r), id, req.Active); err != nil {
		h.writeEngineError(w, "Failed to update employee", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": string(id), "active": req.Active})
}

// DeleteEmployee permanently purges an employee. Audit entries survive with
// their employee reference nulled.
func (h *Handler) DeleteEmployee(w http.ResponseWriter, r *http.Request) {
	id := ledger.EmployeeID(chi.URLParam(r, "id"))

	if err := h.Engine.DeleteEmployee(r.Context(), actor(r), id); err != nil {
		h.writeEngineError(w, "Failed to delete employee", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// ReconcileEmployee replays one employee's audit history against stored state.
func (h *Handler) ReconcileEmployee(w http.ResponseWriter, r *http.Request) {
	id := ledger.EmployeeID(chi.URLParam(r, "id"))

	report, err := h.Engine.Reconcile(r.Context(), h.Store, id)
	if err != nil {
		h.writeEngineError(w, "Failed to reconcile", err)
		return
	}
	writeJSON(w, http.StatusOK, toReconcileDTO(report))
}

// =============================================================================
// BALANCE OPERATION HANDLERS
// =============================================================================

// RecordUsage deducts used hours from one balance field.
func (h *Handler) RecordUsage(w http.ResponseWriter, r *http.Request) {
	var req UsageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	field, err := ledger.ParseField(req.Field)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid field", err)
		return
	}

	applied, err := h.Engine.RecordUsage(r.Context(),
		ledger.EmployeeID(req.EmployeeID), field, decimal.NewFromFloat(req.Hours))
	if err != nil {
		h.writeEngineError(w, "Failed to record usage", err)
		return
	}
	writeJSON(w, http.StatusCreated, toAppliedDTO(applied))
}

// RecordAdjustment applies a signed correction to one balance field.
func (h *Handler) RecordAdjustment(w http.ResponseWriter, r *http.Request) {
	var req AdjustmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	field, err := ledger.ParseField(req.Field)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid field", err)
		return
	}

	applied, err := h.Engine.RecordAdjustment(r.Context(),
		ledger.EmployeeID(req.EmployeeID), field, decimal.NewFromFloat(req.Delta), req.Note)
	if err != nil {
		h.writeEngineError(w, "Failed to record adjustment", err)
		return
	}
	writeJSON(w, http.StatusCreated, toAppliedDTO(applied))
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// RunAccrual triggers the monthly accrual batch job.
func (h *Handler) RunAccrual(w http.ResponseWriter, r *http.Request) {
	req, err := decodeRunRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	result, err := h.Engine.RunMonthlyAccrual(r.Context(), actor(r), req.Force)
	if err != nil {
		h.writeEngineError(w, "Failed to run monthly accrual", err)
		return
	}
	writeJSON(w, http.StatusOK, toRunResultDTO(result))
}

// RunRollover triggers the year-end rollover batch job.
func (h *Handler) RunRollover(w http.ResponseWriter, r *http.Request) {
	req, err := decodeRunRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	result, err := h.Engine.RunYearEndRollover(r.Context(), actor(r), req.Force)
	if err != nil {
		h.writeEngineError(w, "Failed to run year-end rollover", err)
		return
	}
	writeJSON(w, http.StatusOK, toRunResultDTO(result))
}

// decodeRunRequest reads the optional batch-job request body. An empty
// body means force=false; a malformed one is a client error, not a
// silent unforced run.
func decodeRunRequest(r *http.Request) (RunRequest, error) {
	var req RunRequest
	if r.Body == nil {
		return req, nil
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if errors.Is(err, io.EOF) {
			return RunRequest{}, nil
		}
		return RunRequest{}, err
	}
	return req, nil
}

func massAdjustInput(r *http.Request) (ledger.MassAdjustInput, error) {
	var req MassAdjustRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return ledger.MassAdjustInput{}, err
	}

	field, err := ledger.ParseField(req.Field)
	if err != nil {
		return ledger.MassAdjustInput{}, err
	}
	kind, err := ledger.ParseAdjustKind(req.Type)
	if err != nil {
		return ledger.MassAdjustInput{}, err
	}

	effective := time.Now()
	if req.EffectiveDate != "" {
		parsed, err := time.Parse("2006-01-02", req.EffectiveDate)
		if err != nil {
			return ledger.MassAdjustInput{}, err
		}
		effective = parsed
	}

	ids := make([]ledger.EmployeeID, len(req.EmployeeIDs))
	for i, id := range req.EmployeeIDs {
		ids[i] = ledger.EmployeeID(id)
	}

	return ledger.MassAdjustInput{
		EmployeeIDs:   ids,
		Field:         field,
		Kind:          kind,
		Amount:        decimal.NewFromFloat(req.Amount),
		Reason:        req.Reason,
		EffectiveDate: effective,
		Actor:         actor(r),
	}, nil
}

// MassAdjust applies one adjustment across a set of employees, all-or-nothing.
func (h *Handler) MassAdjust(w http.ResponseWriter, r *http.Request) {
	in, err := massAdjustInput(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request", err)
		return
	}

	outcome, err := h.Engine.MassAdjust(r.Context(), in)
	if err != nil {
		h.writeEngineError(w, "Failed to apply mass adjustment", err)
		return
	}
	writeJSON(w, http.StatusOK, toMassAdjustResponse(outcome))
}

// PreviewMassAdjust computes the per-employee outcome without committing.
func (h *Handler) PreviewMassAdjust(w http.ResponseWriter, r *http.Request) {
	in, err := massAdjustInput(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request", err)
		return
	}

	outcome, err := h.Engine.PreviewMassAdjust(r.Context(), in)
	if err != nil {
		h.writeEngineError(w, "Failed to preview mass adjustment", err)
		return
	}
	writeJSON(w, http.StatusOK, toMassAdjustResponse(outcome))
}

// ClearBalance zeroes the scoped fields of one employee. Irreversible,
// so the request must carry confirm=true.
func (h *Handler) ClearBalance(w http.ResponseWriter, r *http.Request) {
	var req ClearBalanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if !req.Confirm {
		writeError(w, http.StatusBadRequest, "Confirmation required: set confirm=true", nil)
		return
	}

	scope, err := ledger.ParseScope(req.Scope)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid scope", err)
		return
	}

	outcome, err := h.Engine.ClearBalance(r.Context(), actor(r), ledger.EmployeeID(req.EmployeeID), scope)
	if err != nil {
		h.writeEngineError(w, "Failed to clear balance", err)
		return
	}

	resp := ClearBalanceResponse{Cleared: make([]string, len(outcome.Cleared))}
	for i, f := range outcome.Cleared {
		resp.Cleared[i] = string(f)
	}
	writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// AUDIT HANDLERS
// =============================================================================

// ListAudit returns audit entries newest-first with optional filters.
// Query parameters: employee_id, category, action, limit, offset.
func (h *Handler) ListAudit(w http.ResponseWriter, r *http.Request) {
	q := ledger.AuditQuery{}

	if v := r.URL.Query().Get("employee_id"); v != "" {
		id := ledger.EmployeeID(v)
		q.EmployeeID = &id
	}
	if v := r.URL.Query().Get("category"); v != "" {
		c := ledger.Category(v)
		q.Category = &c
	}
	if v := r.URL.Query().Get("action"); v != "" {
		a := ledger.Action(v)
		q.Action = &a
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			q.Limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			q.Offset = n
		}
	}

	entries, err := h.Store.Entries(r.Context(), q)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to query audit log", err)
		return
	}
	writeJSON(w, http.StatusOK, toAuditEntryDTOs(entries))
}

// GetState exposes the period run markers for both batch jobs.
func (h *Handler) GetState(w http.ResponseWriter, r *http.Request) {
	state := StateDTO{}

	for _, job := range []struct {
		key  string
		dest **RunInfoDTO
	}{
		{ledger.JobMonthlyAccrual, &state.MonthlyAccrual},
		{ledger.JobYearlyRollover, &state.YearlyRollover},
	} {
		marker, err := h.Store.GetMarker(r.Context(), job.key)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to read run markers", err)
			return
		}
		if marker != nil {
			*job.dest = toRunInfoDTO(&ledger.RunInfo{
				Period:    marker.Period,
				RunCount:  marker.RunCount,
				LastRunAt: marker.LastRunAt,
				LastRunBy: marker.LastRunBy,
			})
		}
	}
	writeJSON(w, http.StatusOK, state)
}

// ResetDatabase clears all data (dev only).
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeEngineError maps domain errors to HTTP status codes.
func (h *Handler) writeEngineError(w http.ResponseWriter, message string, err error) {
	switch {
	case ledger.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case ledger.IsClientError(err):
		writeError(w, clientStatus(err), message, err)
	case ledger.IsRetryable(err):
		writeError(w, http.StatusServiceUnavailable, message, err)
	default:
		h.Log.Error("request failed", zap.String("message", message), zap.Error(err))
		writeError(w, http.StatusInternalServerError, message, err)
	}
}

// clientStatus distinguishes invariant conflicts (409) from malformed
// input (400). A conflict request is well-formed; the current state of
// the ledger just forbids it.
func clientStatus(err error) int {
	if ledger.IsConflict(err) {
		return http.StatusConflict
	}
	return http.StatusBadRequest
}
