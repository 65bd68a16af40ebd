// SceneMirror - OBS Studio LAN Scene Synchronization
// Copyright 2026 SceneMirror contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/scenemirror/scenemirror

package obs

import (
	"context"
	"testing"

	"github.com/goccy/go-json"

	"github.com/scenemirror/scenemirror/internal/models"
)

func TestListScenesReversesToDisplayOrder(t *testing.T) {
	f := newFakeOBS(t, "")
	f.handle = func(requestType string, data json.RawMessage) (interface{}, int) {
		return map[string]interface{}{
			"scenes": []map[string]interface{}{
				{"sceneName": "Third", "sceneIndex": 0},
				{"sceneName": "Second", "sceneIndex": 1},
				{"sceneName": "First", "sceneIndex": 2},
			},
		}, 100
	}
	client := connect(t, f, "")

	scenes, err := client.ListScenes(context.Background())
	if err != nil {
		t.Fatalf("ListScenes: %v", err)
	}
	want := []string{"First", "Second", "Third"}
	if len(scenes) != len(want) {
		t.Fatalf("got %d scenes", len(scenes))
	}
	for i := range want {
		if scenes[i] != want[i] {
			t.Errorf("scenes[%d] = %q, want %q", i, scenes[i], want[i])
		}
	}
}

func TestListSceneItems(t *testing.T) {
	f := newFakeOBS(t, "")
	f.handle = func(requestType string, data json.RawMessage) (interface{}, int) {
		var req struct {
			SceneName string `json:"sceneName"`
		}
		_ = json.Unmarshal(data, &req)
		if req.SceneName != "Main" {
			t.Errorf("sceneName = %q", req.SceneName)
		}
		return map[string]interface{}{
			"sceneItems": []map[string]interface{}{
				{"sceneItemId": 1, "sourceName": "Cam", "inputKind": "dshow_input", "sceneItemEnabled": true},
				{"sceneItemId": 2, "sourceName": "Logo", "inputKind": "image_source", "sceneItemEnabled": false},
			},
		}, 100
	}
	client := connect(t, f, "")

	items, err := client.ListSceneItems(context.Background(), "Main")
	if err != nil {
		t.Fatalf("ListSceneItems: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("got %d items", len(items))
	}
	if items[0].ID != 1 || items[0].SourceName != "Cam" || !items[0].Enabled {
		t.Errorf("item 0 = %+v", items[0])
	}
	if items[1].InputKind != "image_source" || items[1].Enabled {
		t.Errorf("item 1 = %+v", items[1])
	}
}

func TestSceneItemTransformRoundTrip(t *testing.T) {
	f := newFakeOBS(t, "")
	f.handle = func(requestType string, data json.RawMessage) (interface{}, int) {
		return map[string]interface{}{
			"sceneItemTransform": map[string]interface{}{
				"positionX": 120.5, "positionY": 80.0,
				"rotation": 45.0, "scaleX": 1.5, "scaleY": 1.5,
				"width": 960.0, "height": 540.0,
				"alignment": 5, "boundsType": "OBS_BOUNDS_NONE",
				"boundsAlignment": 0, "boundsWidth": 0.0, "boundsHeight": 0.0,
			},
		}, 100
	}
	client := connect(t, f, "")

	tf, err := client.SceneItemTransform(context.Background(), "Main", 1)
	if err != nil {
		t.Fatalf("SceneItemTransform: %v", err)
	}
	if tf.PositionX == nil || *tf.PositionX != 120.5 {
		t.Error("positionX lost")
	}
	if tf.BoundsType == nil || *tf.BoundsType != "OBS_BOUNDS_NONE" {
		t.Error("boundsType lost")
	}
	if tf.Alignment == nil || *tf.Alignment != 5 {
		t.Error("alignment lost")
	}
}

func TestSetSceneItemTransformSendsOnlyPresentFields(t *testing.T) {
	f := newFakeOBS(t, "")
	var got map[string]interface{}
	f.handle = func(requestType string, data json.RawMessage) (interface{}, int) {
		var req struct {
			SceneItemTransform map[string]interface{} `json:"sceneItemTransform"`
		}
		_ = json.Unmarshal(data, &req)
		got = req.SceneItemTransform
		return nil, 100
	}
	client := connect(t, f, "")

	err := client.SetSceneItemTransform(context.Background(), "Main", 1, models.Transform{
		PositionX: models.Float(10),
		Rotation:  models.Float(90),
		// Width/Height are derived values and must never be written.
		Width: models.Float(1920),
	})
	if err != nil {
		t.Fatalf("SetSceneItemTransform: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("sent %d fields, want 2: %v", len(got), got)
	}
	if got["positionX"] != 10.0 || got["rotation"] != 90.0 {
		t.Errorf("fields = %v", got)
	}
	if _, ok := got["width"]; ok {
		t.Error("width must not be written")
	}
}

func TestSetSceneItemTransformEmptySkipsRPC(t *testing.T) {
	f := newFakeOBS(t, "")
	called := false
	f.handle = func(requestType string, data json.RawMessage) (interface{}, int) {
		called = true
		return nil, 100
	}
	client := connect(t, f, "")

	if err := client.SetSceneItemTransform(context.Background(), "Main", 1, models.Transform{}); err != nil {
		t.Fatalf("SetSceneItemTransform: %v", err)
	}
	if called {
		t.Error("empty transform must not issue an RPC")
	}
}

func TestInputSettings(t *testing.T) {
	f := newFakeOBS(t, "")
	f.handle = func(requestType string, data json.RawMessage) (interface{}, int) {
		switch requestType {
		case "GetInputSettings":
			return map[string]interface{}{
				"inputKind":     "image_source",
				"inputSettings": map[string]interface{}{"file": "/tmp/a.png"},
			}, 100
		case "SetInputSettings":
			var req struct {
				Overlay bool `json:"overlay"`
			}
			_ = json.Unmarshal(data, &req)
			if !req.Overlay {
				t.Error("SetInputSettings must overlay")
			}
			return nil, 100
		}
		t.Errorf("unexpected request %q", requestType)
		return nil, 600
	}
	client := connect(t, f, "")

	kind, settings, err := client.InputSettings(context.Background(), "Logo")
	if err != nil {
		t.Fatalf("InputSettings: %v", err)
	}
	if kind != "image_source" || settings["file"] != "/tmp/a.png" {
		t.Errorf("kind=%q settings=%v", kind, settings)
	}

	if err := client.SetInputSettings(context.Background(), "Logo", map[string]interface{}{"file": "/tmp/b.png"}); err != nil {
		t.Fatalf("SetInputSettings: %v", err)
	}
}

func TestListFilters(t *testing.T) {
	f := newFakeOBS(t, "")
	f.handle = func(requestType string, data json.RawMessage) (interface{}, int) {
		return map[string]interface{}{
			"filters": []map[string]interface{}{
				{"filterName": "Color", "filterEnabled": true, "filterSettings": map[string]interface{}{"gamma": 0.5}},
				{"filterName": "Crop", "filterEnabled": false, "filterSettings": map[string]interface{}{}},
			},
		}, 100
	}
	client := connect(t, f, "")

	filters, err := client.ListFilters(context.Background(), "Cam")
	if err != nil {
		t.Fatalf("ListFilters: %v", err)
	}
	if len(filters) != 2 {
		t.Fatalf("got %d filters", len(filters))
	}
	if filters[0].Name != "Color" || !filters[0].Enabled {
		t.Errorf("filter 0 = %+v", filters[0])
	}
	if filters[1].Enabled {
		t.Error("filter 1 must be disabled")
	}
}

func TestCreateSceneItem(t *testing.T) {
	f := newFakeOBS(t, "")
	f.handle = func(requestType string, data json.RawMessage) (interface{}, int) {
		return map[string]interface{}{"sceneItemId": 42}, 100
	}
	client := connect(t, f, "")

	id, err := client.CreateSceneItem(context.Background(), "Main", "Cam")
	if err != nil {
		t.Fatalf("CreateSceneItem: %v", err)
	}
	if id != 42 {
		t.Errorf("id = %d, want 42", id)
	}
}

func TestParseEventTable(t *testing.T) {
	tests := []struct {
		name      string
		eventType string
		data      string
		wantOK    bool
		check     func(t *testing.T, evt Event)
	}{
		{
			name:      "program scene",
			eventType: "CurrentProgramSceneChanged",
			data:      `{"sceneName":"Main"}`,
			wantOK:    true,
			check: func(t *testing.T, evt Event) {
				if evt.SceneName != "Main" {
					t.Errorf("sceneName = %q", evt.SceneName)
				}
			},
		},
		{
			name:      "transform",
			eventType: "SceneItemTransformChanged",
			data:      `{"sceneName":"Main","sceneItemId":7,"sceneItemTransform":{"positionX":10,"positionY":20,"rotation":0,"scaleX":1,"scaleY":1,"width":100,"height":100,"alignment":5,"boundsType":"OBS_BOUNDS_NONE","boundsAlignment":0,"boundsWidth":0,"boundsHeight":0}}`,
			wantOK:    true,
			check: func(t *testing.T, evt Event) {
				if evt.SceneItemID != 7 {
					t.Errorf("sceneItemId = %d", evt.SceneItemID)
				}
				if evt.Transform == nil || *evt.Transform.PositionX != 10 {
					t.Error("transform lost")
				}
			},
		},
		{
			name:      "filter settings",
			eventType: "SourceFilterSettingsChanged",
			data:      `{"sourceName":"Cam","filterName":"Color","filterSettings":{"gamma":0.4}}`,
			wantOK:    true,
			check: func(t *testing.T, evt Event) {
				if evt.SourceName != "Cam" || evt.FilterName != "Color" {
					t.Errorf("source=%q filter=%q", evt.SourceName, evt.FilterName)
				}
			},
		},
		{
			name:      "input settings",
			eventType: "InputSettingsChanged",
			data:      `{"inputName":"Logo","inputSettings":{"file":"/tmp/x.png"}}`,
			wantOK:    true,
			check: func(t *testing.T, evt Event) {
				if evt.SourceName != "Logo" {
					t.Errorf("sourceName = %q", evt.SourceName)
				}
				if evt.Settings["file"] != "/tmp/x.png" {
					t.Errorf("settings = %v", evt.Settings)
				}
			},
		},
		{
			name:      "unsubscribed type",
			eventType: "StreamStateChanged",
			data:      `{"outputActive":true}`,
			wantOK:    false,
		},
		{
			name:      "malformed payload",
			eventType: "SceneItemTransformChanged",
			data:      `{"sceneItemId":"not a number"}`,
			wantOK:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			evt, ok := parseEvent(eventData{
				EventType: tt.eventType,
				EventData: json.RawMessage(tt.data),
			})
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if tt.check != nil {
				tt.check(t, evt)
			}
		})
	}
}
