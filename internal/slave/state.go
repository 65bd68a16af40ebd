// SceneMirror - OBS Studio LAN Scene Synchronization
// Copyright 2026 SceneMirror contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/scenemirror/scenemirror

// Package slave implements the receiving side of the sync protocol: the
// upstream link to the master, the applier driving the local OBS, the image
// staging sink, and the drift monitor.
package slave

import (
	"sort"
	"sync"

	"github.com/scenemirror/scenemirror/internal/drift"
	"github.com/scenemirror/scenemirror/internal/models"
	"github.com/scenemirror/scenemirror/internal/protocol"
)

type sourceKey struct {
	scene  string
	source string
}

// ExpectedState is the cumulative projection of everything the master has
// told this slave: the scene selection and the last-known per-source
// transform, filters, and staged image path. The applier is the only
// writer; the drift monitor reads copies. It survives momentary
// disconnects so drift detection keeps working while the link recovers.
type ExpectedState struct {
	mu           sync.RWMutex
	programScene string
	previewScene *string
	transforms   map[sourceKey]models.Transform
	filters      map[sourceKey]map[string]models.FilterSpec
	images       map[sourceKey]string
	populated    bool
}

// NewExpectedState returns an empty state.
func NewExpectedState() *ExpectedState {
	return &ExpectedState{
		transforms: make(map[sourceKey]models.Transform),
		filters:    make(map[sourceKey]map[string]models.FilterSpec),
		images:     make(map[sourceKey]string),
	}
}

// Populated reports whether any master intent has been recorded yet. The
// drift monitor stays quiet until it has.
func (es *ExpectedState) Populated() bool {
	es.mu.RLock()
	defer es.mu.RUnlock()
	return es.populated
}

// SetProgramScene records the intended program scene.
func (es *ExpectedState) SetProgramScene(name string) {
	es.mu.Lock()
	es.programScene = name
	es.populated = true
	es.mu.Unlock()
}

// SetPreviewScene records the intended preview scene.
func (es *ExpectedState) SetPreviewScene(name string) {
	es.mu.Lock()
	es.previewScene = &name
	es.populated = true
	es.mu.Unlock()
}

// SetTransform records the transform the source should now have.
func (es *ExpectedState) SetTransform(scene, source string, t models.Transform) {
	es.mu.Lock()
	es.transforms[sourceKey{scene, source}] = t
	es.populated = true
	es.mu.Unlock()
}

// SetFilter records a filter's settings, merging over any previous spec.
// A nil enabled keeps the stored enabled flag.
func (es *ExpectedState) SetFilter(scene, source, filterName string, settings map[string]interface{}, enabled *bool) {
	key := sourceKey{scene, source}
	es.mu.Lock()
	defer es.mu.Unlock()
	byName := es.filters[key]
	if byName == nil {
		byName = make(map[string]models.FilterSpec)
		es.filters[key] = byName
	}
	spec, ok := byName[filterName]
	if !ok {
		spec = models.FilterSpec{Name: filterName, Enabled: true}
	}
	if spec.Settings == nil {
		spec.Settings = make(map[string]interface{})
	}
	for k, v := range settings {
		spec.Settings[k] = v
	}
	if enabled != nil {
		spec.Enabled = *enabled
	}
	byName[filterName] = spec
	es.populated = true
}

// SetImage records the staged file path serving a source's content.
func (es *ExpectedState) SetImage(scene, source, path string) {
	es.mu.Lock()
	es.images[sourceKey{scene, source}] = path
	es.populated = true
	es.mu.Unlock()
}

// ReplaceFromSnapshot rebuilds the whole state from a state_sync payload.
func (es *ExpectedState) ReplaceFromSnapshot(snapshot protocol.StateSync) {
	es.mu.Lock()
	defer es.mu.Unlock()
	es.programScene = snapshot.CurrentProgramScene
	es.previewScene = snapshot.CurrentPreviewScene
	es.transforms = make(map[sourceKey]models.Transform)
	es.filters = make(map[sourceKey]map[string]models.FilterSpec)
	es.images = make(map[sourceKey]string)

	for _, scene := range snapshot.Scenes {
		for _, item := range scene.Items {
			key := sourceKey{scene.Name, item.Ref.SourceName}
			es.transforms[key] = item.Transform
			if len(item.Filters) > 0 {
				byName := make(map[string]models.FilterSpec, len(item.Filters))
				for _, f := range item.Filters {
					byName[f.Name] = f
				}
				es.filters[key] = byName
			}
		}
	}
	es.populated = true
}

// Reset drops all recorded intent, e.g. on explicit disconnect.
func (es *ExpectedState) Reset() {
	es.mu.Lock()
	es.programScene = ""
	es.previewScene = nil
	es.transforms = make(map[sourceKey]models.Transform)
	es.filters = make(map[sourceKey]map[string]models.FilterSpec)
	es.images = make(map[sourceKey]string)
	es.populated = false
	es.mu.Unlock()
}

// DriftState copies the comparable projection for the drift monitor.
// Sources come out in a stable scene-then-source order.
func (es *ExpectedState) DriftState() drift.State {
	es.mu.RLock()
	defer es.mu.RUnlock()

	state := drift.State{ProgramScene: es.programScene}
	if es.previewScene != nil {
		preview := *es.previewScene
		state.PreviewScene = &preview
	}
	for key, transform := range es.transforms {
		state.Sources = append(state.Sources, drift.SourceState{
			SceneName:  key.scene,
			SourceName: key.source,
			Transform:  transform,
		})
	}
	sort.Slice(state.Sources, func(i, j int) bool {
		if state.Sources[i].SceneName != state.Sources[j].SceneName {
			return state.Sources[i].SceneName < state.Sources[j].SceneName
		}
		return state.Sources[i].SourceName < state.Sources[j].SourceName
	})
	return state
}

// Transform returns the stored transform for a source, if any.
func (es *ExpectedState) Transform(scene, source string) (models.Transform, bool) {
	es.mu.RLock()
	defer es.mu.RUnlock()
	t, ok := es.transforms[sourceKey{scene, source}]
	return t, ok
}

// ProgramScene returns the intended program scene, empty when unknown.
func (es *ExpectedState) ProgramScene() string {
	es.mu.RLock()
	defer es.mu.RUnlock()
	return es.programScene
}
