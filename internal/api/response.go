// SceneMirror - OBS Studio LAN Scene Synchronization
// Copyright 2026 SceneMirror contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/scenemirror/scenemirror

// Package api exposes the shell boundary as a local HTTP control API:
// request/response commands under /api/v1 and the event stream over SSE.
package api

import (
	"net/http"

	json "github.com/goccy/go-json"

	"github.com/scenemirror/scenemirror/internal/logging"
)

// APIResponse is the uniform response wrapper.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *APIError   `json:"error,omitempty"`
}

// APIError carries a machine-readable code and a human-readable message.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(APIResponse{Success: true, Data: data}); err != nil {
		logging.Warn().Err(err).Msg("response encode failed")
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	resp := APIResponse{Success: false, Error: &APIError{Code: code, Message: message}}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logging.Warn().Err(err).Msg("error response encode failed")
	}
}

// decodeBody parses a JSON request body into v, rejecting unknown shapes
// politely rather than with a 500.
func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid JSON body: "+err.Error())
		return false
	}
	return true
}
