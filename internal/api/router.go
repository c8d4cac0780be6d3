package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// healthCheckTimeout bounds each component probe in /health.
const healthCheckTimeout = 2 * time.Second

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.instrumentMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// UI push hub
	r.Get(s.wsPath(), s.handleWebSocket)

	if s.metricsCfg.Enabled {
		r.Handle(s.metricsPath(), promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/system", s.handleSystem)

		r.Route("/widgets", func(r chi.Router) {
			r.Get("/", s.handleListWidgets)
			r.Post("/", s.handleCreateWidget)
			r.Delete("/", s.handleClearWidgets)
			r.Put("/order", s.handleReorderWidgets)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetWidget)
				r.Patch("/", s.handleUpdateWidget)
				r.Delete("/", s.handleDeleteWidget)
				r.Post("/refresh", s.handleRefreshWidget)
				r.Post("/acquisition/start", s.handleStartAcquisition)
				r.Post("/acquisition/stop", s.handleStopAcquisition)
				r.Get("/fields", s.handleWidgetFields)
				r.Get("/view", s.handleWidgetView)
			})
		})

		r.Post("/fields", s.handleFields)
		r.Post("/fields/discover", s.handleDiscoverFields)
		r.Post("/resolve", s.handleResolve)

		r.Get("/templates", s.handleListTemplates)
		r.Post("/templates/{id}/apply", s.handleApplyTemplate)

		r.Get("/dashboard", s.handleDashboard)
		r.Get("/export", s.handleExport)
		r.Post("/import", s.handleImport)

		r.Get("/sessions", s.handleListSessions)

		if s.audit != nil {
			r.Get("/audit", s.handleListAudit)
		}
	})

	return r
}

func (s *Server) wsPath() string {
	if s.wsCfg.Path != "" {
		return s.wsCfg.Path
	}
	return "/ws"
}

func (s *Server) metricsPath() string {
	if s.metricsCfg.Path != "" {
		return s.metricsCfg.Path
	}
	return "/metrics"
}

// handleHealth reports the server and its dependencies. Any failing
// dependency turns the response into a 503 with status "degraded".
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{
		"database": s.check(r.Context(), s.db),
		"mqtt":     s.check(r.Context(), s.mqtt),
	}

	status, code := "ok", http.StatusOK
	for _, c := range checks {
		if c != "ok" && c != "disabled" {
			status, code = "degraded", http.StatusServiceUnavailable
		}
	}

	writeJSON(w, code, map[string]any{
		"status":   status,
		"version":  s.version,
		"checks":   checks,
		"widgets":  s.store.Count(),
		"sessions": len(s.engine.Sessions()),
	})
}

func (s *Server) check(ctx context.Context, hc HealthChecker) string {
	if hc == nil {
		return "disabled"
	}
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()
	if err := hc.HealthCheck(ctx); err != nil {
		return err.Error()
	}
	return "ok"
}
