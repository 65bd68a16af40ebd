// SceneMirror - OBS Studio LAN Scene Synchronization
// Copyright 2026 SceneMirror contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/scenemirror/scenemirror

package slave

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/scenemirror/scenemirror/internal/models"
	"github.com/scenemirror/scenemirror/internal/obs"
	"github.com/scenemirror/scenemirror/internal/protocol"
)

// fakeOBS is an in-memory OBS for applier and monitor tests. calls records
// mutating operations in order.
type fakeOBS struct {
	connected bool
	program   string
	preview   string
	noStudio  bool

	items      map[string][]obs.SceneItem
	transforms map[string]map[int64]models.Transform
	inputs     map[string]map[string]interface{}
	filterSet  map[string]map[string]map[string]interface{}
	filterOn   map[string]map[string]bool

	calls []string
}

func newFakeOBS() *fakeOBS {
	return &fakeOBS{
		connected: true,
		program:   "Main",
		items: map[string][]obs.SceneItem{
			// Local ids deliberately differ from any master-sent id.
			"Main": {
				{ID: 101, SourceName: "Cam", InputKind: "dshow_input", Enabled: true},
				{ID: 102, SourceName: "Logo", InputKind: "image_source", Enabled: true},
			},
		},
		transforms: map[string]map[int64]models.Transform{
			"Main": {
				101: {PositionX: models.Float(0), PositionY: models.Float(0), Rotation: models.Float(0)},
				102: {PositionX: models.Float(5)},
			},
		},
		inputs:    map[string]map[string]interface{}{},
		filterSet: map[string]map[string]map[string]interface{}{},
		filterOn:  map[string]map[string]bool{},
	}
}

func (f *fakeOBS) record(format string, args ...interface{}) {
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
}

func (f *fakeOBS) Connected() bool { return f.connected }

func (f *fakeOBS) SetCurrentProgramScene(_ context.Context, name string) error {
	f.record("program=%s", name)
	f.program = name
	return nil
}

func (f *fakeOBS) SetCurrentPreviewScene(_ context.Context, name string) error {
	if f.noStudio {
		return fmt.Errorf("%w: studio mode not active", obs.ErrUnsupported)
	}
	f.record("preview=%s", name)
	f.preview = name
	return nil
}

func (f *fakeOBS) CurrentProgramScene(context.Context) (string, error) { return f.program, nil }

func (f *fakeOBS) CurrentPreviewScene(context.Context) (string, error) {
	if f.noStudio {
		return "", obs.ErrUnsupported
	}
	return f.preview, nil
}

func (f *fakeOBS) ListSceneItems(_ context.Context, scene string) ([]obs.SceneItem, error) {
	return f.items[scene], nil
}

func (f *fakeOBS) SceneItemTransform(_ context.Context, scene string, id int64) (models.Transform, error) {
	t, ok := f.transforms[scene][id]
	if !ok {
		return models.Transform{}, fmt.Errorf("no item %d", id)
	}
	return t, nil
}

func (f *fakeOBS) SetSceneItemTransform(_ context.Context, scene string, id int64, t models.Transform) error {
	f.record("transform scene=%s id=%d", scene, id)
	if f.transforms[scene] == nil {
		f.transforms[scene] = map[int64]models.Transform{}
	}
	f.transforms[scene][id] = f.transforms[scene][id].Merge(t)
	return nil
}

func (f *fakeOBS) SetSceneItemEnabled(_ context.Context, scene string, id int64, enabled bool) error {
	f.record("enabled scene=%s id=%d %v", scene, id, enabled)
	return nil
}

func (f *fakeOBS) CreateSceneItem(_ context.Context, scene, source string) (int64, error) {
	f.record("create scene=%s source=%s", scene, source)
	id := int64(900 + len(f.items[scene]))
	f.items[scene] = append(f.items[scene], obs.SceneItem{ID: id, SourceName: source, Enabled: true})
	return id, nil
}

func (f *fakeOBS) RemoveSceneItem(_ context.Context, scene string, id int64) error {
	f.record("remove scene=%s id=%d", scene, id)
	return nil
}

func (f *fakeOBS) SetInputSettings(_ context.Context, name string, settings map[string]interface{}) error {
	f.record("input=%s", name)
	f.inputs[name] = settings
	return nil
}

func (f *fakeOBS) SetSourceFilterSettings(_ context.Context, source, filter string, settings map[string]interface{}) error {
	f.record("filterset source=%s filter=%s", source, filter)
	if f.filterSet[source] == nil {
		f.filterSet[source] = map[string]map[string]interface{}{}
	}
	f.filterSet[source][filter] = settings
	return nil
}

func (f *fakeOBS) SetSourceFilterEnabled(_ context.Context, source, filter string, enabled bool) error {
	f.record("filteron source=%s filter=%s %v", source, filter, enabled)
	if f.filterOn[source] == nil {
		f.filterOn[source] = map[string]bool{}
	}
	f.filterOn[source][filter] = enabled
	return nil
}

func newTestApplier(t *testing.T, client *fakeOBS) (*Applier, *ExpectedState, *[]models.DesyncAlert) {
	t.Helper()
	state := NewExpectedState()
	alerts := &[]models.DesyncAlert{}
	a := NewApplier(client, state, NewImageSink(t.TempDir()), 1<<20,
		func(alert models.DesyncAlert) { *alerts = append(*alerts, alert) })
	return a, state, alerts
}

func TestApplySceneChangeProgram(t *testing.T) {
	client := newFakeOBS()
	a, state, _ := newTestApplier(t, client)

	msg := protocol.MustNew(protocol.KindSceneChange, models.TargetProgram,
		protocol.SceneChange{SceneName: "Other"})
	if err := a.Apply(context.Background(), msg); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if client.program != "Other" {
		t.Errorf("program = %q", client.program)
	}
	if state.ProgramScene() != "Other" {
		t.Error("expected state not updated")
	}
}

func TestApplyPreviewWithoutStudioModeTolerated(t *testing.T) {
	client := newFakeOBS()
	client.noStudio = true
	a, state, alerts := newTestApplier(t, client)

	msg := protocol.MustNew(protocol.KindSceneChange, models.TargetPreview,
		protocol.SceneChange{SceneName: "Backstage"})
	if err := a.Apply(context.Background(), msg); err != nil {
		t.Fatalf("no-studio preview must not error, got %v", err)
	}
	if len(*alerts) != 0 {
		t.Error("no alert expected")
	}
	// The intent is still recorded.
	if ds := state.DriftState(); ds.PreviewScene == nil || *ds.PreviewScene != "Backstage" {
		t.Error("preview intent not recorded")
	}
}

func TestApplyTransformTranslatesIDAndMerges(t *testing.T) {
	client := newFakeOBS()
	a, state, _ := newTestApplier(t, client)

	// Master's id 7 means nothing here; Cam is local id 101.
	msg := protocol.MustNew(protocol.KindTransformUpdate, models.TargetSource,
		protocol.TransformUpdate{
			SceneName:   "Main",
			SceneItemID: 7,
			SourceName:  "Cam",
			Transform:   models.Transform{PositionX: models.Float(250)},
		})
	if err := a.Apply(context.Background(), msg); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	got := client.transforms["Main"][101]
	if *got.PositionX != 250 {
		t.Errorf("positionX = %v", *got.PositionX)
	}
	if got.PositionY == nil || *got.PositionY != 0 {
		t.Error("fields absent from the update must keep their current value")
	}

	stored, ok := state.Transform("Main", "Cam")
	if !ok || *stored.PositionX != 250 || stored.PositionY == nil {
		t.Error("expected state must hold the merged transform")
	}
}

func TestApplyTransformUnknownSourceFails(t *testing.T) {
	client := newFakeOBS()
	a, _, _ := newTestApplier(t, client)

	msg := protocol.MustNew(protocol.KindTransformUpdate, models.TargetSource,
		protocol.TransformUpdate{SceneName: "Main", SceneItemID: 1, SourceName: "Ghost",
			Transform: models.Transform{PositionX: models.Float(1)}})
	err := a.Apply(context.Background(), msg)
	if !errors.Is(err, protocol.ErrApplyFailed) {
		t.Errorf("expected ErrApplyFailed, got %v", err)
	}
}

func TestConsecutiveFailuresRaiseOneAlert(t *testing.T) {
	client := newFakeOBS()
	a, _, alerts := newTestApplier(t, client)

	bad := protocol.MustNew(protocol.KindTransformUpdate, models.TargetSource,
		protocol.TransformUpdate{SceneName: "Main", SceneItemID: 1, SourceName: "Ghost",
			Transform: models.Transform{PositionX: models.Float(1)}})

	for i := 0; i < failureAlertThreshold+2; i++ {
		_ = a.Apply(context.Background(), bad)
	}
	if len(*alerts) != 1 {
		t.Fatalf("alerts = %d, want exactly 1 at the threshold", len(*alerts))
	}
	if (*alerts)[0].Severity != models.SeverityCritical {
		t.Errorf("severity = %q", (*alerts)[0].Severity)
	}

	// A success resets the streak; the next run of failures alerts again.
	good := protocol.MustNew(protocol.KindSceneChange, models.TargetProgram,
		protocol.SceneChange{SceneName: "Main"})
	if err := a.Apply(context.Background(), good); err != nil {
		t.Fatalf("good apply: %v", err)
	}
	for i := 0; i < failureAlertThreshold; i++ {
		_ = a.Apply(context.Background(), bad)
	}
	if len(*alerts) != 2 {
		t.Errorf("alerts = %d, want 2 after reset", len(*alerts))
	}
}

func TestApplyFilterUpdate(t *testing.T) {
	client := newFakeOBS()
	a, _, _ := newTestApplier(t, client)

	msg := protocol.MustNew(protocol.KindFilterUpdate, models.TargetSource,
		protocol.FilterUpdate{
			SceneName:      "Main",
			SourceName:     "Cam",
			FilterName:     "Color",
			FilterSettings: map[string]interface{}{"gamma": 0.7},
			Enabled:        models.Bool(false),
		})
	if err := a.Apply(context.Background(), msg); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if client.filterSet["Cam"]["Color"]["gamma"] != 0.7 {
		t.Error("filter settings not applied")
	}
	if on, ok := client.filterOn["Cam"]["Color"]; !ok || on {
		t.Error("filter enabled state not applied")
	}
}

func TestApplyImageUpdate(t *testing.T) {
	client := newFakeOBS()
	a, state, _ := newTestApplier(t, client)

	raw := []byte{0x89, 0x50, 0x4E, 0x47, 1, 2, 3}
	msg := protocol.MustNew(protocol.KindImageUpdate, models.TargetSource,
		protocol.ImageUpdate{
			SceneName:  "Main",
			SourceName: "Logo",
			File:       "/master/path/logo.png",
			Data:       protocol.EncodeImageData(raw),
			Size:       int64(len(raw)),
		})
	if err := a.Apply(context.Background(), msg); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	path, _ := client.inputs["Logo"]["file"].(string)
	if path == "" || path == "/master/path/logo.png" {
		t.Fatalf("input must point at the staged local path, got %q", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("staged file: %v", err)
	}
	if len(data) != len(raw) {
		t.Errorf("staged %d bytes", len(data))
	}
	if !state.Populated() {
		t.Error("image update must record intent")
	}
}

func TestApplyImageOverCapFails(t *testing.T) {
	client := newFakeOBS()
	state := NewExpectedState()
	a := NewApplier(client, state, NewImageSink(t.TempDir()), 16, nil)

	raw := make([]byte, 64)
	msg := protocol.MustNew(protocol.KindImageUpdate, models.TargetSource,
		protocol.ImageUpdate{SceneName: "Main", SourceName: "Logo",
			Data: protocol.EncodeImageData(raw), Size: int64(len(raw))})
	if err := a.Apply(context.Background(), msg); !errors.Is(err, protocol.ErrApplyFailed) {
		t.Errorf("expected ErrApplyFailed, got %v", err)
	}
	if len(client.inputs) != 0 {
		t.Error("oversized image must not reach OBS")
	}
}

func TestApplySourceEnabledStateChanged(t *testing.T) {
	client := newFakeOBS()
	a, _, _ := newTestApplier(t, client)

	msg := protocol.MustNew(protocol.KindSourceUpdate, models.TargetSource,
		protocol.SourceUpdate{
			SceneName:        "Main",
			SourceName:       "Cam",
			Action:           protocol.SourceEnabledStateChanged,
			SceneItemEnabled: models.Bool(false),
		})
	if err := a.Apply(context.Background(), msg); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	want := "enabled scene=Main id=101 false"
	found := false
	for _, c := range client.calls {
		if c == want {
			found = true
		}
	}
	if !found {
		t.Errorf("calls = %v, want %q", client.calls, want)
	}
}

func TestApplyStateSyncOrderAndState(t *testing.T) {
	client := newFakeOBS()
	a, state, _ := newTestApplier(t, client)

	raw := []byte{0x89, 0x50, 0x4E, 0x47, 9}
	preview := "Backstage"
	client.items["Backstage"] = []obs.SceneItem{{ID: 201, SourceName: "Cam"}}
	client.transforms["Backstage"] = map[int64]models.Transform{201: {}}

	snapshot := protocol.StateSync{
		CurrentProgramScene: "Main",
		CurrentPreviewScene: &preview,
		Scenes: []models.SceneSnapshot{
			{
				Name: "Main",
				Items: []models.SceneItemSnapshot{
					{
						Ref:       models.SceneItemRef{SceneName: "Main", SceneItemID: 1, SourceName: "Cam"},
						Transform: models.Transform{PositionX: models.Float(11)},
						Filters:   []models.FilterSpec{{Name: "Color", Enabled: true, Settings: map[string]interface{}{"gamma": 0.3}}},
					},
					{
						Ref:       models.SceneItemRef{SceneName: "Main", SceneItemID: 2, SourceName: "Logo"},
						Transform: models.Transform{PositionX: models.Float(22)},
						ImageFile: "/master/logo.png",
						ImageData: protocol.EncodeImageData(raw),
					},
				},
			},
		},
	}
	msg := protocol.MustNew(protocol.KindStateSync, models.TargetProgram, snapshot)
	if err := a.Apply(context.Background(), msg); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	// Expected order: Cam transform, Cam filter settings, Cam filter
	// enabled, Logo transform, Logo image, then preview, then program last.
	wantPrefix := []string{
		"transform scene=Main id=101",
		"filterset source=Cam filter=Color",
		"filteron source=Cam filter=Color true",
		"transform scene=Main id=102",
		"input=Logo",
		"preview=Backstage",
		"program=Main",
	}
	if len(client.calls) != len(wantPrefix) {
		t.Fatalf("calls = %v", client.calls)
	}
	for i, want := range wantPrefix {
		if client.calls[i] != want {
			t.Errorf("call %d = %q, want %q", i, client.calls[i], want)
		}
	}

	// ExpectedState mirrors the snapshot modulo id translation.
	if tr, ok := state.Transform("Main", "Cam"); !ok || *tr.PositionX != 11 {
		t.Error("expected state does not mirror the snapshot")
	}
	if state.ProgramScene() != "Main" {
		t.Error("program scene not recorded")
	}
}

func TestApplyStateSyncSkipsBrokenItem(t *testing.T) {
	client := newFakeOBS()
	a, _, _ := newTestApplier(t, client)

	snapshot := protocol.StateSync{
		CurrentProgramScene: "Main",
		Scenes: []models.SceneSnapshot{
			{
				Name: "Main",
				Items: []models.SceneItemSnapshot{
					{Ref: models.SceneItemRef{SceneName: "Main", SceneItemID: 1, SourceName: "Ghost"},
						Transform: models.Transform{PositionX: models.Float(1)}},
					{Ref: models.SceneItemRef{SceneName: "Main", SceneItemID: 2, SourceName: "Cam"},
						Transform: models.Transform{PositionX: models.Float(2)}},
				},
			},
		},
	}
	msg := protocol.MustNew(protocol.KindStateSync, models.TargetProgram, snapshot)
	if err := a.Apply(context.Background(), msg); err != nil {
		t.Fatalf("one broken item must not abort the snapshot: %v", err)
	}
	if got := client.transforms["Main"][101]; *got.PositionX != 2 {
		t.Error("later items must still apply")
	}
}

func TestApplyHeartbeatIsNoop(t *testing.T) {
	client := newFakeOBS()
	a, _, _ := newTestApplier(t, client)
	if err := a.Apply(context.Background(), protocol.Heartbeat()); err != nil {
		t.Errorf("heartbeat: %v", err)
	}
	if len(client.calls) != 0 {
		t.Errorf("heartbeat must not touch OBS: %v", client.calls)
	}
}
