// SceneMirror - OBS Studio LAN Scene Synchronization
// Copyright 2026 SceneMirror contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/scenemirror/scenemirror

package api

import (
	"errors"
	"net/http"

	"github.com/scenemirror/scenemirror/internal/engine"
	"github.com/scenemirror/scenemirror/internal/master"
	"github.com/scenemirror/scenemirror/internal/obs"
)

// writeEngineError maps the core error taxonomy onto HTTP statuses so the
// shell can branch on the code without parsing messages.
func writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, engine.ErrInvalidMode):
		writeError(w, http.StatusBadRequest, "invalid_mode", err.Error())
	case errors.Is(err, engine.ErrModeNotSet):
		writeError(w, http.StatusConflict, "mode_not_set", err.Error())
	case errors.Is(err, engine.ErrWrongMode):
		writeError(w, http.StatusConflict, "wrong_mode", err.Error())
	case errors.Is(err, engine.ErrNotConnected):
		writeError(w, http.StatusConflict, "not_connected", err.Error())
	case errors.Is(err, master.ErrNotRunning):
		writeError(w, http.StatusConflict, "server_not_running", err.Error())
	case errors.Is(err, master.ErrUnknownClient):
		writeError(w, http.StatusNotFound, "unknown_client", err.Error())
	case errors.Is(err, master.ErrBindInUse):
		writeError(w, http.StatusConflict, "port_in_use", err.Error())
	case errors.Is(err, master.ErrBindPermission):
		writeError(w, http.StatusForbidden, "port_forbidden", err.Error())
	case errors.Is(err, obs.ErrAuth):
		writeError(w, http.StatusUnauthorized, "obs_auth_failed", err.Error())
	case errors.Is(err, obs.ErrNotConnected):
		writeError(w, http.StatusConflict, "obs_not_connected", err.Error())
	case errors.Is(err, obs.ErrConnectRefused), errors.Is(err, obs.ErrTimeout):
		writeError(w, http.StatusBadGateway, "obs_unreachable", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
	}
}
