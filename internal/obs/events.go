// SceneMirror - OBS Studio LAN Scene Synchronization
// Copyright 2026 SceneMirror contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/scenemirror/scenemirror

package obs

import (
	"github.com/goccy/go-json"

	"github.com/scenemirror/scenemirror/internal/logging"
	"github.com/scenemirror/scenemirror/internal/models"
)

// EventType names the OBS events the sync engine subscribes to.
type EventType string

const (
	EventProgramSceneChanged       EventType = "CurrentProgramSceneChanged"
	EventPreviewSceneChanged       EventType = "CurrentPreviewSceneChanged"
	EventSceneItemTransformChanged EventType = "SceneItemTransformChanged"
	EventFilterSettingsChanged     EventType = "SourceFilterSettingsChanged"
	EventInputSettingsChanged      EventType = "InputSettingsChanged"
)

// Event is one OBS event, flattened: only the fields relevant to the
// event's type are populated.
type Event struct {
	Type        EventType
	SceneName   string
	SceneItemID int64
	Transform   *models.Transform
	SourceName  string
	FilterName  string
	Settings    map[string]interface{}
}

// parseEvent maps a raw obs-websocket event onto Event. Events outside the
// subscribed set return ok=false and are discarded.
func parseEvent(evt eventData) (Event, bool) {
	switch EventType(evt.EventType) {
	case EventProgramSceneChanged, EventPreviewSceneChanged:
		var d struct {
			SceneName string `json:"sceneName"`
		}
		if err := json.Unmarshal(evt.EventData, &d); err != nil {
			logging.Warn().Err(err).Str("event", evt.EventType).Msg("bad obs event payload")
			return Event{}, false
		}
		return Event{Type: EventType(evt.EventType), SceneName: d.SceneName}, true

	case EventSceneItemTransformChanged:
		var d struct {
			SceneName          string       `json:"sceneName"`
			SceneItemID        int64        `json:"sceneItemId"`
			SceneItemTransform obsTransform `json:"sceneItemTransform"`
		}
		if err := json.Unmarshal(evt.EventData, &d); err != nil {
			logging.Warn().Err(err).Str("event", evt.EventType).Msg("bad obs event payload")
			return Event{}, false
		}
		transform := d.SceneItemTransform.toModel()
		return Event{
			Type:        EventSceneItemTransformChanged,
			SceneName:   d.SceneName,
			SceneItemID: d.SceneItemID,
			Transform:   &transform,
		}, true

	case EventFilterSettingsChanged:
		var d struct {
			SourceName     string                 `json:"sourceName"`
			FilterName     string                 `json:"filterName"`
			FilterSettings map[string]interface{} `json:"filterSettings"`
		}
		if err := json.Unmarshal(evt.EventData, &d); err != nil {
			logging.Warn().Err(err).Str("event", evt.EventType).Msg("bad obs event payload")
			return Event{}, false
		}
		return Event{
			Type:       EventFilterSettingsChanged,
			SourceName: d.SourceName,
			FilterName: d.FilterName,
			Settings:   d.FilterSettings,
		}, true

	case EventInputSettingsChanged:
		var d struct {
			InputName     string                 `json:"inputName"`
			InputSettings map[string]interface{} `json:"inputSettings"`
		}
		if err := json.Unmarshal(evt.EventData, &d); err != nil {
			logging.Warn().Err(err).Str("event", evt.EventType).Msg("bad obs event payload")
			return Event{}, false
		}
		return Event{
			Type:       EventInputSettingsChanged,
			SourceName: d.InputName,
			Settings:   d.InputSettings,
		}, true
	}

	return Event{}, false
}
