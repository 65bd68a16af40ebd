// SceneMirror - OBS Studio LAN Scene Synchronization
// Copyright 2026 SceneMirror contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/scenemirror/scenemirror

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/scenemirror/scenemirror/internal/config"
	"github.com/scenemirror/scenemirror/internal/models"
)

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) versionInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"version": h.engine.AppVersion(),
		"commit":  h.engine.GitCommit(),
	})
}

// ---- OBS ----

type obsConnectRequest struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Password string `json:"password"`
}

func (h *Handler) obsConnect(w http.ResponseWriter, r *http.Request) {
	var req obsConnectRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Host == "" || req.Port <= 0 {
		writeError(w, http.StatusBadRequest, "bad_request", "host and port are required")
		return
	}
	if err := h.engine.ConnectOBS(r.Context(), req.Host, req.Port, req.Password); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

func (h *Handler) obsDisconnect(w http.ResponseWriter, r *http.Request) {
	h.engine.DisconnectOBS()
	writeJSON(w, http.StatusOK, nil)
}

func (h *Handler) obsStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.OBSStatus(r.Context()))
}

func (h *Handler) obsSources(w http.ResponseWriter, r *http.Request) {
	sources, err := h.engine.OBSSources(r.Context())
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if sources == nil {
		sources = []models.OBSSource{}
	}
	writeJSON(w, http.StatusOK, sources)
}

// ---- Mode ----

func (h *Handler) getMode(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"mode": string(h.engine.Mode())})
}

func (h *Handler) setMode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Mode string `json:"mode"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.engine.SetMode(models.AppMode(req.Mode)); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

// ---- Sync targets ----

func (h *Handler) getTargets(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.SyncTargets())
}

func (h *Handler) setTargets(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Targets []models.SyncTarget `json:"targets"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.engine.SetSyncTargets(req.Targets); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_target", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

// ---- Master role ----

func (h *Handler) masterStart(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Port int `json:"port"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Port < 0 || req.Port > 65535 {
		writeError(w, http.StatusBadRequest, "bad_request", "port out of range")
		return
	}
	if err := h.engine.StartMasterServer(req.Port); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"running": true})
}

func (h *Handler) masterStop(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.StopMasterServer(); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"running": false})
}

func (h *Handler) masterClients(w http.ResponseWriter, r *http.Request) {
	clients := h.engine.ConnectedClientsInfo()
	if clients == nil {
		clients = []models.ClientInfo{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":   h.engine.ConnectedClientsCount(),
		"clients": clients,
	})
}

func (h *Handler) slaveStatuses(w http.ResponseWriter, r *http.Request) {
	statuses := h.engine.SlaveStatuses()
	if statuses == nil {
		statuses = []models.SlaveStatus{}
	}
	writeJSON(w, http.StatusOK, statuses)
}

func (h *Handler) resyncAll(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.ResyncAllSlaves(r.Context()); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

func (h *Handler) resyncOne(w http.ResponseWriter, r *http.Request) {
	clientID := chi.URLParam(r, "clientID")
	if err := h.engine.ResyncSpecificSlave(r.Context(), clientID); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

// ---- Slave role ----

func (h *Handler) slaveConnect(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Host string `json:"host"`
		Port int    `json:"port"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Host == "" || req.Port <= 0 {
		writeError(w, http.StatusBadRequest, "bad_request", "host and port are required")
		return
	}
	if err := h.engine.ConnectToMaster(req.Host, req.Port); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

func (h *Handler) slaveDisconnect(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.DisconnectFromMaster(); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

func (h *Handler) slaveStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"connected":    h.engine.SlaveConnected(),
		"reconnection": h.engine.ReconnectionStatus(),
	})
}

func (h *Handler) resyncRequest(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.RequestResyncFromMaster(); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

// ---- Metrics, discovery, settings ----

func (h *Handler) perfMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.PerformanceMetrics())
}

func (h *Handler) discoverMasters(w http.ResponseWriter, r *http.Request) {
	masters, err := h.engine.DiscoverMasters(r.Context())
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if masters == nil {
		masters = []models.DiscoveredMaster{}
	}
	writeJSON(w, http.StatusOK, masters)
}

func (h *Handler) getSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.engine.LoadSettings()
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

func (h *Handler) putSettings(w http.ResponseWriter, r *http.Request) {
	var settings config.Settings
	if !decodeBody(w, r, &settings) {
		return
	}
	if err := h.engine.SaveSettings(settings); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}
