package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter builds the API router over the handler set.
func NewRouter(h *Handlers) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Post("/metrics/evaluate", h.EvaluateMetric)
		r.Get("/metrics", h.ListMetrics)
		r.Get("/models", h.ListModels)
		r.Post("/models/{id}/refresh", h.TriggerRefresh)
		r.Get("/jobs/{id}", h.JobStatus)
	})

	return r
}
