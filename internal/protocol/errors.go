// SceneMirror - OBS Studio LAN Scene Synchronization
// Copyright 2026 SceneMirror contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/scenemirror/scenemirror

package protocol

import "errors"

// Sentinel errors surfaced by decode and apply paths. Boundary handlers
// report these verbatim; the shell maps them to user-facing messages.
var (
	// ErrMalformedPayload indicates a message that could not be parsed or
	// failed payload validation.
	ErrMalformedPayload = errors.New("malformed payload")

	// ErrImageTooLarge indicates image bytes beyond the configured cap.
	ErrImageTooLarge = errors.New("image too large")

	// ErrApplyFailed indicates a sync message that could not be applied to
	// the local OBS instance.
	ErrApplyFailed = errors.New("apply failed")

	// ErrSceneResolutionFailed indicates a source that could not be located
	// in any scene.
	ErrSceneResolutionFailed = errors.New("scene resolution failed")
)
