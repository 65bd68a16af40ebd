// SceneMirror - OBS Studio LAN Scene Synchronization
// Copyright 2026 SceneMirror contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/scenemirror/scenemirror

package obs

import "errors"

// Sentinel errors for the OBS client. Callers branch on these with
// errors.Is; the concrete error carries the detail.
var (
	// ErrAuth indicates the obs-websocket password was rejected.
	ErrAuth = errors.New("obs authentication failed")

	// ErrConnectRefused indicates OBS is not listening on the target port.
	ErrConnectRefused = errors.New("obs connection refused")

	// ErrTimeout indicates a connect attempt or RPC exceeded its deadline.
	ErrTimeout = errors.New("obs request timed out")

	// ErrProtocol indicates an obs-websocket frame that violates protocol
	// expectations (bad opcode, unparseable JSON, unknown request id).
	ErrProtocol = errors.New("obs protocol error")

	// ErrNotConnected indicates an RPC was issued with no live connection.
	ErrNotConnected = errors.New("obs client not connected")

	// ErrUnsupported indicates a request OBS rejected as inapplicable in
	// its current state, e.g. a preview scene change without Studio Mode.
	ErrUnsupported = errors.New("obs request unsupported in current state")

	// ErrRequestFailed indicates a request OBS rejected for any other
	// reason; the wrapped message carries OBS's comment.
	ErrRequestFailed = errors.New("obs request failed")
)
