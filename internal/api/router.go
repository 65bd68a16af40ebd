// SceneMirror - OBS Studio LAN Scene Synchronization
// Copyright 2026 SceneMirror contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/scenemirror/scenemirror

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/scenemirror/scenemirror/internal/engine"
)

// Handler serves the control API for one engine.
type Handler struct {
	engine *engine.Engine
}

// NewHandler wires the boundary commands to HTTP routes.
func NewHandler(eng *engine.Engine) *Handler {
	return &Handler{engine: eng}
}

// Routes builds the chi router. The API is loopback-only; there is no
// authentication layer, the trust boundary is the local machine.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", h.health)
		r.Get("/version", h.versionInfo)
		r.Get("/events", h.events)

		r.Route("/obs", func(r chi.Router) {
			r.Post("/connect", h.obsConnect)
			r.Post("/disconnect", h.obsDisconnect)
			r.Get("/status", h.obsStatus)
			r.Get("/sources", h.obsSources)
		})

		r.Get("/mode", h.getMode)
		r.Put("/mode", h.setMode)

		r.Route("/sync", func(r chi.Router) {
			r.Get("/targets", h.getTargets)
			r.Put("/targets", h.setTargets)
		})

		r.Route("/master", func(r chi.Router) {
			r.Post("/start", h.masterStart)
			r.Post("/stop", h.masterStop)
			r.Get("/clients", h.masterClients)
			r.Get("/slave-statuses", h.slaveStatuses)
			r.Post("/resync", h.resyncAll)
			r.Post("/resync/{clientID}", h.resyncOne)
		})

		r.Route("/slave", func(r chi.Router) {
			r.Post("/connect", h.slaveConnect)
			r.Post("/disconnect", h.slaveDisconnect)
			r.Get("/status", h.slaveStatus)
			r.Post("/resync-request", h.resyncRequest)
		})

		r.Get("/metrics/performance", h.perfMetrics)
		r.Get("/discovery/masters", h.discoverMasters)

		r.Get("/settings", h.getSettings)
		r.Put("/settings", h.putSettings)
	})

	return r
}
