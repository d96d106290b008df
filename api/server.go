/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:
  /api/employees/*   Roster and per-employee reads
  /api/usage         Record hours used
  /api/adjustments   Single-employee corrections
  /api/admin/*       Batch jobs and bulk operations
  /api/audit         Audit trail
  /api/state         Batch job run markers
  /api/reset         Database reset (dev only)

SECURITY NOTE:
  No authentication middleware. Callers are pre-authorized externally;
  X-Actor only names the identity for the audit trail.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, corsOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Actor"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Roster
		r.Route("/employees", func(r chi.Router) {
			r.Get("/", h.ListEmployees)
			r.Post("/", h.CreateEmployee)
			r.Get("/{id}", h.GetEmployee)
			r.Get("/{id}/balance", h.GetBalance)
			r.Get("/{id}/reconcile", h.ReconcileEmployee)
			r.Put("/{id}/active", h.SetEmployeeActive)
			r.Delete("/{id}", h.DeleteEmployee)
		})

		// Balance operations
		r.Post("/usage", h.RecordUsage)
		r.Post("/adjustments", h.RecordAdjustment)

		// Admin operations
		r.Route("/admin", func(r chi.Router) {
			r.Post("/accrual", h.RunAccrual)
			r.Post("/rollover", h.RunRollover)
			r.Post("/mass-adjust", h.MassAdjust)
			r.Post("/mass-adjust/preview", h.PreviewMassAdjust)
			r.Post("/clear-balance", h.ClearBalance)
		})

		// Audit trail and job state
		r.Get("/audit", h.ListAudit)
		r.Get("/state", h.GetState)

		// Dev only
		r.Post("/reset", h.ResetDatabase)
	})

	return r
}
