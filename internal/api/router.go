package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Get("/reports/daily", s.handleDailyUsage)

		r.Route("/devices", func(r chi.Router) {
			r.Get("/status", s.handleLatestStatus)
			r.Get("/{name}/history", s.handleDeviceHistory)
		})
	})

	// Pre-v1 path kept for existing dashboards.
	r.Get("/api/reports/daily", s.handleDailyUsage)

	if s.metrics != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.metrics, promhttp.HandlerOpts{}))
	}

	return r
}
