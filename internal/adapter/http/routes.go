package http

import (
	"github.com/go-chi/chi/v5"
)

// MountRoutes registers all API routes on the given chi router.
func MountRoutes(r chi.Router, h *Handlers) {
	r.Get("/health", h.Health)
	r.Get("/health/ready", h.Ready)
	r.Get("/metrics", h.Metrics)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/tasks", h.DispatchTask)
		r.Post("/tasks/route", h.RouteTask)

		r.Get("/agents", h.ListAgents)
		r.Get("/sessions/{id}/budget", h.SessionBudget)
		r.Get("/circuits", h.ListCircuits)

		r.Get("/tools/{key}", h.GetToolFlag)
		r.Put("/tools/{key}", h.SetToolFlag)
	})
}
