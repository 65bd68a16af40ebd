// SceneMirror - OBS Studio LAN Scene Synchronization
// Copyright 2026 SceneMirror contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/scenemirror/scenemirror

// Package version carries build identification, overridden at link time:
//
//	go build -ldflags "-X .../internal/version.Version=v1.2.0 -X .../internal/version.Commit=abc1234"
package version

var (
	// Version is the release tag of this build.
	Version = "dev"
	// Commit is the short git commit hash of this build.
	Commit = "unknown"
)
