// SceneMirror - OBS Studio LAN Scene Synchronization
// Copyright 2026 SceneMirror contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/scenemirror/scenemirror

package master

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/scenemirror/scenemirror/internal/metrics"
	"github.com/scenemirror/scenemirror/internal/models"
	"github.com/scenemirror/scenemirror/internal/obs"
	"github.com/scenemirror/scenemirror/internal/protocol"
)

// fakeOBSState implements the OBS read surface from fixed data.
type fakeOBSState struct {
	program  string
	preview  string
	noStudio bool
	scenes   []string
	items    map[string][]obs.SceneItem
	kinds    map[string]string
	settings map[string]map[string]interface{}
	filters  map[string][]models.FilterSpec
}

func (f *fakeOBSState) ListScenes(context.Context) ([]string, error) { return f.scenes, nil }

func (f *fakeOBSState) ListSceneItems(_ context.Context, scene string) ([]obs.SceneItem, error) {
	return f.items[scene], nil
}

func (f *fakeOBSState) SceneItemTransform(_ context.Context, scene string, itemID int64) (models.Transform, error) {
	return models.Transform{PositionX: models.Float(float64(itemID) * 10)}, nil
}

func (f *fakeOBSState) CurrentProgramScene(context.Context) (string, error) {
	return f.program, nil
}

func (f *fakeOBSState) CurrentPreviewScene(context.Context) (string, error) {
	if f.noStudio {
		return "", obs.ErrUnsupported
	}
	return f.preview, nil
}

func (f *fakeOBSState) InputSettings(_ context.Context, name string) (string, map[string]interface{}, error) {
	return f.kinds[name], f.settings[name], nil
}

func (f *fakeOBSState) ListFilters(_ context.Context, source string) ([]models.FilterSpec, error) {
	return f.filters[source], nil
}

func newFakeState() *fakeOBSState {
	return &fakeOBSState{
		program: "Main",
		preview: "Backstage",
		scenes:  []string{"Main", "Backstage"},
		items: map[string][]obs.SceneItem{
			"Main": {
				{ID: 1, SourceName: "Cam", InputKind: "dshow_input", Enabled: true},
				{ID: 2, SourceName: "Logo", InputKind: "image_source", Enabled: true},
			},
			"Backstage": {
				{ID: 5, SourceName: "Cam", InputKind: "dshow_input", Enabled: true},
			},
		},
		kinds: map[string]string{"Cam": "dshow_input", "Logo": "image_source"},
		settings: map[string]map[string]interface{}{
			"Logo": {"file": ""},
		},
		filters: map[string][]models.FilterSpec{
			"Cam": {{Name: "Color", Enabled: true, Settings: map[string]interface{}{"gamma": 0.5}}},
		},
	}
}

type capture struct {
	msgs []protocol.Message
}

func (c *capture) send(msg protocol.Message) { c.msgs = append(c.msgs, msg) }

func newTestTranslator(state *fakeOBSState, out *capture, imageCap int64) *Translator {
	return NewTranslator(state, NewTargetSet(), out.send, imageCap, metrics.NewWindow())
}

func TestTranslatorProgramSceneChange(t *testing.T) {
	out := &capture{}
	tr := newTestTranslator(newFakeState(), out, 0)

	tr.translate(context.Background(), obs.Event{
		Type: obs.EventProgramSceneChanged, SceneName: "Backstage",
	})
	if len(out.msgs) != 1 {
		t.Fatalf("emitted %d messages", len(out.msgs))
	}
	msg := out.msgs[0]
	if msg.Type != protocol.KindSceneChange || msg.TargetType != models.TargetProgram {
		t.Errorf("msg = %+v", msg)
	}
}

func TestTranslatorPreviewGatedByTargets(t *testing.T) {
	out := &capture{}
	tr := newTestTranslator(newFakeState(), out, 0)

	// Preview is off in the default target set.
	tr.translate(context.Background(), obs.Event{
		Type: obs.EventPreviewSceneChanged, SceneName: "Backstage",
	})
	if len(out.msgs) != 0 {
		t.Fatalf("preview must be gated, got %d messages", len(out.msgs))
	}

	tr.targets.Set([]models.SyncTarget{models.TargetPreview})
	tr.translate(context.Background(), obs.Event{
		Type: obs.EventPreviewSceneChanged, SceneName: "Backstage",
	})
	if len(out.msgs) != 1 || out.msgs[0].TargetType != models.TargetPreview {
		t.Fatalf("msgs = %v", out.msgs)
	}
}

func TestTranslatorTransformResolvesSourceName(t *testing.T) {
	out := &capture{}
	tr := newTestTranslator(newFakeState(), out, 0)

	transform := models.Transform{PositionX: models.Float(50)}
	tr.translate(context.Background(), obs.Event{
		Type:        obs.EventSceneItemTransformChanged,
		SceneName:   "Main",
		SceneItemID: 2,
		Transform:   &transform,
	})
	if len(out.msgs) != 1 {
		t.Fatalf("emitted %d messages", len(out.msgs))
	}
	p, err := protocol.DecodeTransformUpdate(out.msgs[0])
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p.SourceName != "Logo" {
		t.Errorf("sourceName = %q, want Logo", p.SourceName)
	}
}

func TestTranslatorTransformUnknownItemDropped(t *testing.T) {
	out := &capture{}
	tr := newTestTranslator(newFakeState(), out, 0)

	transform := models.Transform{}
	tr.translate(context.Background(), obs.Event{
		Type:        obs.EventSceneItemTransformChanged,
		SceneName:   "Main",
		SceneItemID: 999,
		Transform:   &transform,
	})
	if len(out.msgs) != 0 {
		t.Errorf("unknown item must be dropped, got %v", out.msgs)
	}
}

func TestTranslatorFilterSceneResolution(t *testing.T) {
	out := &capture{}
	tr := newTestTranslator(newFakeState(), out, 0)

	tr.translate(context.Background(), obs.Event{
		Type:       obs.EventFilterSettingsChanged,
		SourceName: "Cam",
		FilterName: "Color",
		Settings:   map[string]interface{}{"gamma": 0.7},
	})
	if len(out.msgs) != 1 {
		t.Fatalf("emitted %d messages", len(out.msgs))
	}
	p, err := protocol.DecodeFilterUpdate(out.msgs[0])
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	// Cam appears in Main (first) and Backstage; first match wins.
	if p.SceneName != "Main" || p.SceneItemID != 1 {
		t.Errorf("resolved to %q item %d, want Main item 1", p.SceneName, p.SceneItemID)
	}
}

func TestTranslatorFilterUnresolvableDropped(t *testing.T) {
	out := &capture{}
	tr := newTestTranslator(newFakeState(), out, 0)

	tr.translate(context.Background(), obs.Event{
		Type:       obs.EventFilterSettingsChanged,
		SourceName: "Ghost",
		FilterName: "Color",
	})
	if len(out.msgs) != 0 {
		t.Errorf("unresolvable filter must be dropped, got %v", out.msgs)
	}
}

func TestTranslatorImageUpdate(t *testing.T) {
	state := newFakeState()
	path := filepath.Join(t.TempDir(), "logo.png")
	content := []byte{0x89, 0x50, 0x4E, 0x47, 1, 2, 3}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatal(err)
	}
	state.settings["Logo"] = map[string]interface{}{"file": path}

	out := &capture{}
	tr := newTestTranslator(state, out, 1<<20)

	tr.translate(context.Background(), obs.Event{
		Type:       obs.EventInputSettingsChanged,
		SourceName: "Logo",
		Settings:   map[string]interface{}{"file": path},
	})
	if len(out.msgs) != 1 {
		t.Fatalf("emitted %d messages", len(out.msgs))
	}
	p, err := protocol.DecodeImageUpdate(out.msgs[0])
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p.File != path || p.Size != int64(len(content)) {
		t.Errorf("payload = %+v", p)
	}
	data, err := protocol.DecodeImageData(p.Data, p.Size, 0)
	if err != nil {
		t.Fatalf("image data: %v", err)
	}
	if len(data) != len(content) {
		t.Errorf("decoded %d bytes", len(data))
	}
}

func TestTranslatorImageOverCapDropped(t *testing.T) {
	state := newFakeState()
	path := filepath.Join(t.TempDir(), "big.png")
	if err := os.WriteFile(path, make([]byte, 2048), 0o644); err != nil {
		t.Fatal(err)
	}
	state.settings["Logo"] = map[string]interface{}{"file": path}

	out := &capture{}
	tr := newTestTranslator(state, out, 1024)

	tr.translate(context.Background(), obs.Event{
		Type:       obs.EventInputSettingsChanged,
		SourceName: "Logo",
	})
	if len(out.msgs) != 0 {
		t.Errorf("oversized image must be dropped, got %d messages", len(out.msgs))
	}
}

func TestTranslatorNonImageInputIgnored(t *testing.T) {
	out := &capture{}
	tr := newTestTranslator(newFakeState(), out, 0)

	tr.translate(context.Background(), obs.Event{
		Type:       obs.EventInputSettingsChanged,
		SourceName: "Cam",
	})
	if len(out.msgs) != 0 {
		t.Errorf("non-image settings change must be ignored, got %v", out.msgs)
	}
}
