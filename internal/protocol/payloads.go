// SceneMirror - OBS Studio LAN Scene Synchronization
// Copyright 2026 SceneMirror contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/scenemirror/scenemirror

package protocol

import (
	"encoding/base64"
	"fmt"

	"github.com/scenemirror/scenemirror/internal/models"
)

// TransformUpdate moves or resizes one scene item. SourceName rides along
// so that the receiving side can translate the sender's scene-item id into
// its own.
type TransformUpdate struct {
	SceneName   string           `json:"sceneName"`
	SceneItemID int64            `json:"sceneItemId"`
	SourceName  string           `json:"sourceName"`
	Transform   models.Transform `json:"transform"`
}

// SceneChange switches the program or preview scene; the envelope's
// targetType distinguishes the two.
type SceneChange struct {
	SceneName string `json:"sceneName"`
}

// FilterUpdate carries new settings for one filter on one source. Enabled
// is optional; when present the filter's enabled state is set too.
type FilterUpdate struct {
	SceneName      string                 `json:"sceneName"`
	SceneItemID    int64                  `json:"sceneItemId"`
	SourceName     string                 `json:"sourceName"`
	FilterName     string                 `json:"filterName"`
	FilterSettings map[string]interface{} `json:"filterSettings"`
	Enabled        *bool                  `json:"enabled,omitempty"`
}

// ImageUpdate replaces the content of an image source. Data holds the raw
// file bytes Base64-encoded; Size is the decoded byte count and is checked
// on decode.
type ImageUpdate struct {
	SceneName  string   `json:"sceneName"`
	SourceName string   `json:"sourceName"`
	File       string   `json:"file"`
	Data       string   `json:"data,omitempty"`
	Size       int64    `json:"size,omitempty"`
	Width      *float64 `json:"width,omitempty"`
	Height     *float64 `json:"height,omitempty"`
}

// SourceUpdateAction enumerates scene-item lifecycle changes a snapshot
// sender may describe.
type SourceUpdateAction string

const (
	SourceCreated             SourceUpdateAction = "created"
	SourceRemoved             SourceUpdateAction = "removed"
	SourceEnabledStateChanged SourceUpdateAction = "enabled_state_changed"
	SourceSettingsChanged     SourceUpdateAction = "settings_changed"
)

// SourceUpdate describes a scene-item lifecycle change. The master's event
// translator never emits these, but the applier understands them so resyncs
// from peers that do remain forward compatible.
type SourceUpdate struct {
	SceneName        string             `json:"sceneName"`
	SceneItemID      int64              `json:"sceneItemId"`
	SourceName       string             `json:"sourceName"`
	Action           SourceUpdateAction `json:"action"`
	SourceType       string             `json:"sourceType,omitempty"`
	SceneItemEnabled *bool              `json:"sceneItemEnabled,omitempty"`
	Transform        *models.Transform  `json:"transform,omitempty"`
}

// StateSync is the full-state snapshot payload.
type StateSync struct {
	CurrentProgramScene string                 `json:"currentProgramScene"`
	CurrentPreviewScene *string                `json:"currentPreviewScene,omitempty"`
	Scenes              []models.SceneSnapshot `json:"scenes"`
}

// SlaveStatusReport summarizes a slave's drift check result.
type SlaveStatusReport struct {
	IsSynced      bool                  `json:"isSynced"`
	DesyncDetails []models.DesyncDetail `json:"desyncDetails"`
}

// DecodeTransformUpdate extracts a transform_update payload.
func DecodeTransformUpdate(msg Message) (TransformUpdate, error) {
	var p TransformUpdate
	if err := decodeInto(msg, KindTransformUpdate, &p); err != nil {
		return TransformUpdate{}, err
	}
	if p.SceneName == "" {
		return TransformUpdate{}, fmt.Errorf("%w: transform_update missing sceneName", ErrMalformedPayload)
	}
	return p, nil
}

// DecodeSceneChange extracts a scene_change payload.
func DecodeSceneChange(msg Message) (SceneChange, error) {
	var p SceneChange
	if err := decodeInto(msg, KindSceneChange, &p); err != nil {
		return SceneChange{}, err
	}
	if p.SceneName == "" {
		return SceneChange{}, fmt.Errorf("%w: scene_change missing sceneName", ErrMalformedPayload)
	}
	return p, nil
}

// DecodeFilterUpdate extracts a filter_update payload.
func DecodeFilterUpdate(msg Message) (FilterUpdate, error) {
	var p FilterUpdate
	if err := decodeInto(msg, KindFilterUpdate, &p); err != nil {
		return FilterUpdate{}, err
	}
	if p.SourceName == "" || p.FilterName == "" {
		return FilterUpdate{}, fmt.Errorf("%w: filter_update missing sourceName or filterName", ErrMalformedPayload)
	}
	return p, nil
}

// DecodeImageUpdate extracts an image_update payload.
func DecodeImageUpdate(msg Message) (ImageUpdate, error) {
	var p ImageUpdate
	if err := decodeInto(msg, KindImageUpdate, &p); err != nil {
		return ImageUpdate{}, err
	}
	if p.SourceName == "" {
		return ImageUpdate{}, fmt.Errorf("%w: image_update missing sourceName", ErrMalformedPayload)
	}
	return p, nil
}

// DecodeSourceUpdate extracts a source_update payload.
func DecodeSourceUpdate(msg Message) (SourceUpdate, error) {
	var p SourceUpdate
	if err := decodeInto(msg, KindSourceUpdate, &p); err != nil {
		return SourceUpdate{}, err
	}
	switch p.Action {
	case SourceCreated, SourceRemoved, SourceEnabledStateChanged, SourceSettingsChanged:
	default:
		return SourceUpdate{}, fmt.Errorf("%w: source_update unknown action %q", ErrMalformedPayload, p.Action)
	}
	return p, nil
}

// DecodeStateSync extracts a state_sync payload.
func DecodeStateSync(msg Message) (StateSync, error) {
	var p StateSync
	if err := decodeInto(msg, KindStateSync, &p); err != nil {
		return StateSync{}, err
	}
	return p, nil
}

// DecodeSlaveStatusReport extracts a slave_status_report payload.
func DecodeSlaveStatusReport(msg Message) (SlaveStatusReport, error) {
	var p SlaveStatusReport
	if err := decodeInto(msg, KindSlaveStatusReport, &p); err != nil {
		return SlaveStatusReport{}, err
	}
	return p, nil
}

// EncodeImageData Base64-encodes raw image bytes for the wire.
func EncodeImageData(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// DecodeImageData decodes Base64 image bytes, validating the declared size
// and the receiver's cap. declaredSize 0 skips the size cross-check (older
// senders omit it); maxBytes 0 means no cap.
func DecodeImageData(encoded string, declaredSize, maxBytes int64) ([]byte, error) {
	// Reject before decoding when the encoded length already exceeds what
	// the declared size or the cap could ever permit.
	upperBound := int64(base64.StdEncoding.DecodedLen(len(encoded)))
	if maxBytes > 0 && upperBound > maxBytes+2 {
		return nil, fmt.Errorf("%w: encoded image is at most %d bytes, cap is %d", ErrImageTooLarge, upperBound, maxBytes)
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid base64 image data: %v", ErrMalformedPayload, err)
	}
	if declaredSize > 0 && int64(len(data)) != declaredSize {
		return nil, fmt.Errorf("%w: image data is %d bytes, payload declared %d", ErrMalformedPayload, len(data), declaredSize)
	}
	if maxBytes > 0 && int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("%w: image data is %d bytes, cap is %d", ErrImageTooLarge, len(data), maxBytes)
	}
	return data, nil
}
