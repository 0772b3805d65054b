/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the chi router, middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for the mobile/web clients

SECURITY NOTE:
  No authentication middleware currently. The QR clients send the session
  user ID in the request body; a gateway in front of this service is
  expected to authenticate it.

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

// NewRouter creates a router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
	}))

	r.Route("/api", func(r chi.Router) {
		// QR scan endpoints
		r.Route("/attendance", func(r chi.Router) {
			r.Post("/check-in", h.CheckIn)
			r.Post("/check-out", h.CheckOut)
		})

		// User routes
		r.Route("/users", func(r chi.Router) {
			r.Get("/", h.ListUsers)
			r.Post("/", h.CreateUser)
			r.Get("/{id}", h.GetUser)
			r.Delete("/{id}", h.DeleteUser)
			r.Post("/{id}/site", h.AssignSite)
			r.Get("/{id}/attendance", h.UserAttendance)
			r.Get("/{id}/entitlement", h.Entitlement)
			r.Post("/{id}/leave-requests", h.SubmitLeave)
			r.Get("/{id}/leave-requests", h.ListUserLeave)
		})

		// Site routes
		r.Route("/sites", func(r chi.Router) {
			r.Post("/", h.CreateSite)
			r.Get("/{id}", h.GetSite)
			r.Get("/{id}/attendance", h.SiteAttendance)
		})

		// Leave lifecycle routes
		r.Route("/leave-requests", func(r chi.Router) {
			r.Get("/pending", h.ListPendingLeave)
			r.Patch("/{id}", h.UpdateLeave)
			r.Delete("/{id}", h.DeleteLeave)
		})

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Put("/attendance/{userID}/{date}", h.AdminSetAttendance)
			r.Delete("/attendance/{userID}/{date}", h.AdminDeleteAttendance)
			r.Get("/company-drift", h.CompanyDrift)
		})
	})

	return r
}
