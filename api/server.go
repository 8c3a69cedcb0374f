/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

ROUTER: chi
  Chi was chosen for:
  - Lightweight and fast
  - Context-based
  - Middleware support
  - RESTful route patterns

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for admin tooling

ROUTE GROUPS:
  /api/members/*      Genealogy and wallet read models
  /api/purchases/*    Purchase event ingestion and receipts
  /api/structures/*   Commission structure versions
  /api/pool/*         Passive pool status and distribution

SECURITY NOTE:
  No authentication middleware. The engine sits behind the commerce
  platform, which owns identity.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Member routes
		r.Route("/members", func(r chi.Router) {
			r.Get("/", h.ListMembers)
			r.Post("/", h.CreateMember)
			r.Get("/{id}", h.GetMember)
			r.Get("/{id}/wallet", h.GetMemberWallet)
			r.Get("/{id}/ledger", h.GetMemberLedger)
			r.Get("/{id}/upline", h.GetMemberUpline)
		})

		// Purchase routes
		r.Route("/purchases", func(r chi.Router) {
			r.Post("/", h.SubmitPurchase)
			r.Get("/{id}", h.GetPurchase)
			r.Get("/{id}/entries", h.GetPurchaseEntries)
		})

		// Structure routes
		r.Route("/structures", func(r chi.Router) {
			r.Post("/", h.CreateStructure)
			r.Get("/current", h.GetCurrentStructure)
			r.Get("/{version}", h.GetStructureVersion)
		})

		// Activation threshold routes
		r.Route("/activation", func(r chi.Router) {
			r.Get("/", h.GetActivation)
			r.Post("/", h.UpdateActivation)
		})

		// Pool routes
		r.Route("/pool", func(r chi.Router) {
			r.Get("/", h.GetPoolStatus)
			r.Get("/balance", h.GetPoolBalance)
			r.Post("/distribute", h.DistributePool)
		})

		// Company fund read model
		r.Get("/company/fund", h.GetCompanyFund)

		// Scenario routes (demo data)
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Post("/load", h.LoadScenario)
		})

		r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})
	})

	return r
}
