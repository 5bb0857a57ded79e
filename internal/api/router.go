// Package api wires the HTTP handlers and middleware into a router.
package api

import (
	"net/http"
	"time"

	"github.com/dvloznov/cashflow-engine/internal/api/handlers"
	"github.com/dvloznov/cashflow-engine/internal/api/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Options holds what the router needs besides the handlers.
type Options struct {
	AuthToken    string
	MaxBodyBytes int64
}

// NewRouter builds the API router.
func NewRouter(analysis *handlers.AnalysisHandler, jobsHandler *handlers.JobsHandler, log zerolog.Logger, opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recovery(log))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(log))
	r.Use(middleware.CORS)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteError(w, http.StatusNotFound, "Not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(opts.AuthToken))
		r.Use(middleware.MaxBody(opts.MaxBodyBytes))

		r.Post("/events", analysis.Events)
		r.Post("/timeline", analysis.Timeline)
		r.Post("/summary", analysis.Summary)
		r.Post("/anomalies", analysis.Anomalies)
		r.Post("/subscriptions", analysis.Subscriptions)
		r.Post("/analyze", analysis.Analyze)

		r.Post("/jobs", jobsHandler.EnqueueAnalysis)
		r.Get("/jobs", jobsHandler.ListJobs)
		r.Get("/jobs/{id}", jobsHandler.GetJob)
	})

	return r
}
