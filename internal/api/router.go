package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/opencadhq/cad-core/internal/auth"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Health check (no auth required)
		r.Get("/health", s.handleHealth)

		// Admission endpoints (no auth required)
		r.Post("/auth/login", s.handleLogin)
		r.Post("/auth/register", s.handleRegister)

		// Protected routes: session token required
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Get("/auth/me", s.handleMe)
		})
	})

	return r
}

// handleHealth reports service liveness and version.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"version":     s.version,
		"session_ttl": auth.SessionTTL.Milliseconds(),
	})
}
