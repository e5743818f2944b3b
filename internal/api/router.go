package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/star-labs/logscanner/internal/api/logs"
	"github.com/star-labs/logscanner/internal/api/middleware"
	"github.com/star-labs/logscanner/pkg/config"
)

// setupRouter creates and configures the chi router with all routes.
func (s *Server) setupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestLogger(s.config.Verbose))
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.PrometheusMiddleware)
	r.Use(middleware.Recoverer)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		JSONError(w, ErrNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		JSONError(w, ErrMethodNotAllowed)
	})

	logsHandler := logs.NewHandler(
		s.controller,
		s.executor,
		s.exporter,
		s.registry,
		s.config.MaxFileSize,
		s.config.AllowedTypes,
	)
	r.Route("/logs", logsHandler.Routes)

	r.Get("/health", s.healthHandler.Health)
	r.Get("/health/live", s.healthHandler.Live)
	r.Get("/health/ready", s.healthHandler.Ready)
	r.Get("/version", handleVersion)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	return r
}

func handleVersion(w http.ResponseWriter, _ *http.Request) {
	OK(w, config.GetBuildInfo())
}
