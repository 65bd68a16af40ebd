// SceneMirror - OBS Studio LAN Scene Synchronization
// Copyright 2026 SceneMirror contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/scenemirror/scenemirror

package master

import "errors"

var (
	// ErrBindInUse indicates the listen port is already taken.
	ErrBindInUse = errors.New("listen port already in use")

	// ErrBindPermission indicates the OS refused the bind (privileged port).
	ErrBindPermission = errors.New("permission denied binding listen port")

	// ErrNotRunning indicates a stop or send against a server that was
	// never started or is already stopped.
	ErrNotRunning = errors.New("master server not running")

	// ErrUnknownClient indicates a targeted send to a session id that does
	// not exist (the client disconnected).
	ErrUnknownClient = errors.New("unknown client session")
)
