// SceneMirror - OBS Studio LAN Scene Synchronization
// Copyright 2026 SceneMirror contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/scenemirror/scenemirror

package master

import (
	"sync/atomic"

	"github.com/scenemirror/scenemirror/internal/models"
)

// TargetSet is the operator-controlled filter deciding which event classes
// the translator emits. Reads are lock-free; Set swaps the whole set so a
// change takes effect on the next event.
type TargetSet struct {
	v atomic.Value // map[models.SyncTarget]struct{}
}

// NewTargetSet starts with the default {Source, Program}.
func NewTargetSet() *TargetSet {
	ts := &TargetSet{}
	ts.Set(models.DefaultTargets())
	return ts
}

// Set replaces the active targets. Invalid entries are ignored.
func (ts *TargetSet) Set(targets []models.SyncTarget) {
	set := make(map[models.SyncTarget]struct{}, len(targets))
	for _, t := range targets {
		if models.ValidTarget(t) {
			set[t] = struct{}{}
		}
	}
	ts.v.Store(set)
}

// Contains reports whether t is currently enabled.
func (ts *TargetSet) Contains(t models.SyncTarget) bool {
	set, _ := ts.v.Load().(map[models.SyncTarget]struct{})
	_, ok := set[t]
	return ok
}

// List returns the enabled targets in a stable order.
func (ts *TargetSet) List() []models.SyncTarget {
	set, _ := ts.v.Load().(map[models.SyncTarget]struct{})
	out := make([]models.SyncTarget, 0, len(set))
	for _, t := range []models.SyncTarget{models.TargetSource, models.TargetPreview, models.TargetProgram} {
		if _, ok := set[t]; ok {
			out = append(out, t)
		}
	}
	return out
}
