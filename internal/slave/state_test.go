// SceneMirror - OBS Studio LAN Scene Synchronization
// Copyright 2026 SceneMirror contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/scenemirror/scenemirror

package slave

import (
	"testing"

	"github.com/scenemirror/scenemirror/internal/models"
	"github.com/scenemirror/scenemirror/internal/protocol"
)

func TestExpectedStateStartsEmpty(t *testing.T) {
	es := NewExpectedState()
	if es.Populated() {
		t.Error("fresh state must not be populated")
	}
	if ds := es.DriftState(); ds.ProgramScene != "" || len(ds.Sources) != 0 {
		t.Errorf("drift state = %+v", ds)
	}
}

func TestExpectedStateRecordsIntent(t *testing.T) {
	es := NewExpectedState()
	es.SetProgramScene("Main")
	es.SetPreviewScene("Backstage")
	es.SetTransform("Main", "Cam", models.Transform{PositionX: models.Float(10)})
	es.SetFilter("Main", "Cam", "Color", map[string]interface{}{"gamma": 0.5}, nil)
	es.SetImage("Main", "Logo", "/tmp/obs-sync/Logo.png")

	if !es.Populated() {
		t.Fatal("state must be populated")
	}
	ds := es.DriftState()
	if ds.ProgramScene != "Main" {
		t.Errorf("program = %q", ds.ProgramScene)
	}
	if ds.PreviewScene == nil || *ds.PreviewScene != "Backstage" {
		t.Error("preview lost")
	}
	if len(ds.Sources) != 1 || ds.Sources[0].SourceName != "Cam" {
		t.Errorf("sources = %v", ds.Sources)
	}

	if tr, ok := es.Transform("Main", "Cam"); !ok || *tr.PositionX != 10 {
		t.Error("transform lost")
	}
}

func TestExpectedStateFilterMerge(t *testing.T) {
	es := NewExpectedState()
	es.SetFilter("Main", "Cam", "Color", map[string]interface{}{"gamma": 0.5, "contrast": 1.0}, nil)
	es.SetFilter("Main", "Cam", "Color", map[string]interface{}{"gamma": 0.8}, models.Bool(false))

	es.mu.RLock()
	spec := es.filters[sourceKey{"Main", "Cam"}]["Color"]
	es.mu.RUnlock()

	if spec.Settings["gamma"] != 0.8 {
		t.Errorf("gamma = %v, want overwritten 0.8", spec.Settings["gamma"])
	}
	if spec.Settings["contrast"] != 1.0 {
		t.Error("untouched keys must survive the merge")
	}
	if spec.Enabled {
		t.Error("enabled flag must track the latest update")
	}
}

func TestExpectedStateDriftCopyIsIndependent(t *testing.T) {
	es := NewExpectedState()
	es.SetPreviewScene("A")
	ds := es.DriftState()
	es.SetPreviewScene("B")
	if *ds.PreviewScene != "A" {
		t.Error("DriftState must return a copy")
	}
}

func TestExpectedStateReplaceFromSnapshot(t *testing.T) {
	es := NewExpectedState()
	es.SetProgramScene("Old")
	es.SetTransform("Old", "Gone", models.Transform{PositionX: models.Float(1)})

	preview := "Backstage"
	es.ReplaceFromSnapshot(protocol.StateSync{
		CurrentProgramScene: "Main",
		CurrentPreviewScene: &preview,
		Scenes: []models.SceneSnapshot{
			{
				Name: "Main",
				Items: []models.SceneItemSnapshot{
					{
						Ref:       models.SceneItemRef{SceneName: "Main", SceneItemID: 7, SourceName: "Cam"},
						Transform: models.Transform{PositionX: models.Float(42)},
						Filters:   []models.FilterSpec{{Name: "Color", Enabled: true}},
					},
				},
			},
		},
	})

	ds := es.DriftState()
	if ds.ProgramScene != "Main" {
		t.Errorf("program = %q", ds.ProgramScene)
	}
	if _, ok := es.Transform("Old", "Gone"); ok {
		t.Error("previous intent must be dropped")
	}
	if tr, ok := es.Transform("Main", "Cam"); !ok || *tr.PositionX != 42 {
		t.Error("snapshot transform lost")
	}
}

func TestExpectedStateReset(t *testing.T) {
	es := NewExpectedState()
	es.SetProgramScene("Main")
	es.Reset()
	if es.Populated() {
		t.Error("reset state must not be populated")
	}
}
