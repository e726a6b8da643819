package http

import (
	"github.com/go-chi/chi/v5"
)

// MountRoutes registers all API routes on the given chi router.
func MountRoutes(r chi.Router, h *Handlers) {
	r.Get("/", h.Root)

	r.Post("/tasks", h.CreateTask)
	r.Get("/tasks/{id}", h.GetTask)
	r.Get("/tasks/{id}/result", h.GetTaskResult)

	r.Get("/status", h.GetStatus)
	r.Get("/status/html", h.GetStatusHTML)

	r.Get("/health", h.Health)
}
