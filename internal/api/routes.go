package api

import (
	"github.com/go-chi/chi/v5"
)

// setupAPIRoutes sets up API routes
func (s *RESTServer) setupAPIRoutes(r chi.Router) {
	r.Get("/", s.HandleRoot)

	// Auth routes (public)
	r.Post("/login", s.HandleLogin)
	r.Post("/refresh", s.HandleRefresh)

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)

		// Printer state
		r.Get("/status", s.HandleStatus)
		r.Get("/alerts", s.HandleAlerts)

		// Settings
		r.Get("/config", s.HandleGetConfig)
		r.Put("/config", s.HandleUpdateConfig)

		// Raw printer requests
		r.Post("/request", s.HandlePublishRequest)

		// Live event stream
		r.Get("/live", s.HandleLive)
	})
}
