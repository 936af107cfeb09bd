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
  4. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:
  /api/books/*         Catalog and reservable listings
  /api/users/*         Borrowers, loan and fine history
  /api/loans/*         Borrow and return
  /api/fines/*         Fine settlement
  /api/reservations/*  Holds on fully-lent titles
  /api/demo/*          Seed and reset (dev only)

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public.

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
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Catalog routes
		r.Route("/books", func(r chi.Router) {
			r.Get("/", h.ListBooks)
			r.Post("/", h.CreateBook)
			r.Get("/reservable", h.ListReservableBooks)
			r.Get("/{id}", h.GetBook)
			r.Get("/{id}/reservations", h.ListBookReservations)
		})

		// Borrower routes
		r.Route("/users", func(r chi.Router) {
			r.Get("/", h.ListUsers)
			r.Post("/", h.CreateUser)
			r.Get("/{id}/loans", h.ListUserLoans)
			r.Get("/{id}/fines", h.ListUserFines)
		})

		// Loan routes
		r.Route("/loans", func(r chi.Router) {
			r.Post("/", h.CreateLoan)
			r.Post("/{id}/return", h.ReturnLoan)
		})

		// Fine routes
		r.Route("/fines", func(r chi.Router) {
			r.Post("/{id}/pay", h.PayFine)
		})

		// Reservation routes
		r.Route("/reservations", func(r chi.Router) {
			r.Post("/", h.CreateReservation)
			r.Post("/{id}/cancel", h.CancelReservation)
			r.Post("/{id}/fulfill", h.FulfillReservation)
		})

		// Demo routes
		r.Route("/demo", func(r chi.Router) {
			r.Post("/seed", h.SeedDemo)
			r.Post("/reset", h.ResetDemo)
		})
	})

	return r
}
