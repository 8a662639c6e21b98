// TractionSync - TractionRec Fetch and Import Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tractionsync

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/tractionsync/internal/config"
	"github.com/tomtom215/tractionsync/internal/middleware"
)

// NewRouter wires the admin endpoints.
//
//	GET  /healthz
//	GET  /metrics
//	GET  /api/v1/status
//	POST /api/v1/pipelines/{pipeline}/import
//	POST /api/v1/pipelines/{pipeline}/cleanup
//	POST /api/v1/pipelines/{pipeline}/fetch
func NewRouter(h *Handler, cfg config.ServerConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.PrometheusMetrics)
	if h.deps.Performance != nil {
		r.Use(h.deps.Performance.Middleware)
	}
	r.Use(middleware.Compression)

	r.Get("/healthz", h.Healthz)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		if cfg.RateLimitRequests > 0 {
			window := cfg.RateLimitWindow
			if window <= 0 {
				window = time.Minute
			}
			r.Use(httprate.LimitByIP(cfg.RateLimitRequests, window))
		}
		if cfg.Timeout > 0 {
			r.Use(chimiddleware.Timeout(cfg.Timeout))
		}

		r.Get("/status", h.Status)
		r.Route("/pipelines/{pipeline}", func(r chi.Router) {
			r.Post("/import", h.Import)
			r.Post("/cleanup", h.Cleanup)
			r.Post("/fetch", h.Fetch)
		})
	})

	return r
}
