// SceneMirror - OBS Studio LAN Scene Synchronization
// Copyright 2026 SceneMirror contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/scenemirror/scenemirror

package engine

import "errors"

var (
	// ErrModeNotSet means the operator has not chosen master or slave yet.
	ErrModeNotSet = errors.New("application mode not set")

	// ErrWrongMode means the command belongs to the other role.
	ErrWrongMode = errors.New("command not valid in current mode")

	// ErrInvalidMode means the requested mode string is unknown.
	ErrInvalidMode = errors.New("invalid application mode")

	// ErrNotConnected means the slave link is down.
	ErrNotConnected = errors.New("not connected to master")
)
