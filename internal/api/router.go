// Depotwatch - Depot Manifest Tracking and Mirroring
// Copyright 2026 Depotwatch Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/depotwatch/depotwatch

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter assembles the HTTP surface: health and metrics plus the
// versioned title API. CORS is global so OPTIONS preflights work;
// rate limiting covers the API routes only.
func NewRouter(h *Handler, cfg MiddlewareConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDWithLogging())
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(CORS(cfg))
	r.Use(RequestLogging())
	r.Use(Metrics())

	r.Get("/healthz", h.Health)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(RateLimit(cfg))

		r.Route("/titles", func(r chi.Router) {
			r.Get("/", h.ListTitles)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetTitle)
				r.Get("/files", h.ListTitleFiles)
				r.Get("/files/{name}", h.GetTitleFile)
				r.Get("/depots", h.GetTitleDepots)
				r.Get("/dlc", h.GetTitleDLC)
				r.Post("/sync", h.SyncTitle)
			})
		})
	})

	return r
}
