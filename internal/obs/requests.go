// SceneMirror - OBS Studio LAN Scene Synchronization
// Copyright 2026 SceneMirror contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/scenemirror/scenemirror

package obs

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/scenemirror/scenemirror/internal/models"
)

// obsTransform mirrors the sceneItemTransform object obs-websocket returns.
// All fields are concrete because OBS always sends the full set.
type obsTransform struct {
	PositionX       float64 `json:"positionX"`
	PositionY       float64 `json:"positionY"`
	Rotation        float64 `json:"rotation"`
	ScaleX          float64 `json:"scaleX"`
	ScaleY          float64 `json:"scaleY"`
	Width           float64 `json:"width"`
	Height          float64 `json:"height"`
	Alignment       int     `json:"alignment"`
	BoundsType      string  `json:"boundsType"`
	BoundsAlignment int     `json:"boundsAlignment"`
	BoundsWidth     float64 `json:"boundsWidth"`
	BoundsHeight    float64 `json:"boundsHeight"`
}

func (t obsTransform) toModel() models.Transform {
	return models.Transform{
		PositionX:       models.Float(t.PositionX),
		PositionY:       models.Float(t.PositionY),
		Rotation:        models.Float(t.Rotation),
		ScaleX:          models.Float(t.ScaleX),
		ScaleY:          models.Float(t.ScaleY),
		Width:           models.Float(t.Width),
		Height:          models.Float(t.Height),
		Alignment:       models.Int(t.Alignment),
		BoundsType:      models.Str(t.BoundsType),
		BoundsAlignment: models.Int(t.BoundsAlignment),
		BoundsWidth:     models.Float(t.BoundsWidth),
		BoundsHeight:    models.Float(t.BoundsHeight),
	}
}

// transformToRequest builds the partial sceneItemTransform object for
// SetSceneItemTransform. Only fields present in t are sent; OBS keeps the
// rest untouched. Width and height are derived by OBS and rejected on
// write, so they are never included.
func transformToRequest(t models.Transform) map[string]interface{} {
	fields := make(map[string]interface{}, 10)
	if t.PositionX != nil {
		fields["positionX"] = *t.PositionX
	}
	if t.PositionY != nil {
		fields["positionY"] = *t.PositionY
	}
	if t.Rotation != nil {
		fields["rotation"] = *t.Rotation
	}
	if t.ScaleX != nil {
		fields["scaleX"] = *t.ScaleX
	}
	if t.ScaleY != nil {
		fields["scaleY"] = *t.ScaleY
	}
	if t.Alignment != nil {
		fields["alignment"] = *t.Alignment
	}
	if t.BoundsType != nil {
		fields["boundsType"] = *t.BoundsType
	}
	if t.BoundsAlignment != nil {
		fields["boundsAlignment"] = *t.BoundsAlignment
	}
	if t.BoundsWidth != nil {
		fields["boundsWidth"] = *t.BoundsWidth
	}
	if t.BoundsHeight != nil {
		fields["boundsHeight"] = *t.BoundsHeight
	}
	return fields
}

// SceneItem is one item in a scene's source list, in OBS z-order.
type SceneItem struct {
	ID         int64
	SourceName string
	InputKind  string
	Enabled    bool
}

// Version reports the OBS Studio and obs-websocket versions.
func (c *Client) Version(ctx context.Context) (obsVersion, wsVersion string, err error) {
	raw, err := c.call(ctx, "GetVersion", nil)
	if err != nil {
		return "", "", err
	}
	var d struct {
		OBSVersion          string `json:"obsVersion"`
		OBSWebSocketVersion string `json:"obsWebSocketVersion"`
	}
	if err := json.Unmarshal(raw, &d); err != nil {
		return "", "", fmt.Errorf("%w: GetVersion response: %v", ErrProtocol, err)
	}
	return d.OBSVersion, d.OBSWebSocketVersion, nil
}

// ListScenes returns scene names in OBS display order.
func (c *Client) ListScenes(ctx context.Context) ([]string, error) {
	raw, err := c.call(ctx, "GetSceneList", nil)
	if err != nil {
		return nil, err
	}
	var d struct {
		Scenes []struct {
			SceneName string `json:"sceneName"`
		} `json:"scenes"`
	}
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("%w: GetSceneList response: %v", ErrProtocol, err)
	}
	// obs-websocket lists scenes bottom-up; reverse to display order.
	names := make([]string, 0, len(d.Scenes))
	for i := len(d.Scenes) - 1; i >= 0; i-- {
		names = append(names, d.Scenes[i].SceneName)
	}
	return names, nil
}

// ListInputs returns every input defined in the OBS instance.
func (c *Client) ListInputs(ctx context.Context) ([]models.OBSSource, error) {
	raw, err := c.call(ctx, "GetInputList", nil)
	if err != nil {
		return nil, err
	}
	var d struct {
		Inputs []struct {
			InputName string `json:"inputName"`
			InputKind string `json:"inputKind"`
		} `json:"inputs"`
	}
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("%w: GetInputList response: %v", ErrProtocol, err)
	}
	sources := make([]models.OBSSource, 0, len(d.Inputs))
	for _, in := range d.Inputs {
		sources = append(sources, models.OBSSource{Name: in.InputName, Kind: in.InputKind})
	}
	return sources, nil
}

// CurrentProgramScene returns the active program scene name.
func (c *Client) CurrentProgramScene(ctx context.Context) (string, error) {
	raw, err := c.call(ctx, "GetCurrentProgramScene", nil)
	if err != nil {
		return "", err
	}
	var d struct {
		SceneName string `json:"currentProgramSceneName"`
	}
	if err := json.Unmarshal(raw, &d); err != nil {
		return "", fmt.Errorf("%w: GetCurrentProgramScene response: %v", ErrProtocol, err)
	}
	return d.SceneName, nil
}

// SetCurrentProgramScene switches the program output to the named scene.
func (c *Client) SetCurrentProgramScene(ctx context.Context, sceneName string) error {
	_, err := c.call(ctx, "SetCurrentProgramScene", map[string]interface{}{
		"sceneName": sceneName,
	})
	return err
}

// CurrentPreviewScene returns the preview scene name. Returns
// ErrUnsupported when Studio Mode is off.
func (c *Client) CurrentPreviewScene(ctx context.Context) (string, error) {
	raw, err := c.call(ctx, "GetCurrentPreviewScene", nil)
	if err != nil {
		return "", err
	}
	var d struct {
		SceneName string `json:"currentPreviewSceneName"`
	}
	if err := json.Unmarshal(raw, &d); err != nil {
		return "", fmt.Errorf("%w: GetCurrentPreviewScene response: %v", ErrProtocol, err)
	}
	return d.SceneName, nil
}

// SetCurrentPreviewScene switches the preview output to the named scene.
// Returns ErrUnsupported when Studio Mode is off.
func (c *Client) SetCurrentPreviewScene(ctx context.Context, sceneName string) error {
	_, err := c.call(ctx, "SetCurrentPreviewScene", map[string]interface{}{
		"sceneName": sceneName,
	})
	return err
}

// ListSceneItems returns the items of a scene in OBS z-order.
func (c *Client) ListSceneItems(ctx context.Context, sceneName string) ([]SceneItem, error) {
	raw, err := c.call(ctx, "GetSceneItemList", map[string]interface{}{
		"sceneName": sceneName,
	})
	if err != nil {
		return nil, err
	}
	var d struct {
		SceneItems []struct {
			SceneItemID      int64  `json:"sceneItemId"`
			SourceName       string `json:"sourceName"`
			InputKind        string `json:"inputKind"`
			SceneItemEnabled bool   `json:"sceneItemEnabled"`
		} `json:"sceneItems"`
	}
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("%w: GetSceneItemList response: %v", ErrProtocol, err)
	}
	items := make([]SceneItem, 0, len(d.SceneItems))
	for _, item := range d.SceneItems {
		items = append(items, SceneItem{
			ID:         item.SceneItemID,
			SourceName: item.SourceName,
			InputKind:  item.InputKind,
			Enabled:    item.SceneItemEnabled,
		})
	}
	return items, nil
}

// SceneItemTransform fetches the full transform of one scene item.
func (c *Client) SceneItemTransform(ctx context.Context, sceneName string, itemID int64) (models.Transform, error) {
	raw, err := c.call(ctx, "GetSceneItemTransform", map[string]interface{}{
		"sceneName":   sceneName,
		"sceneItemId": itemID,
	})
	if err != nil {
		return models.Transform{}, err
	}
	var d struct {
		SceneItemTransform obsTransform `json:"sceneItemTransform"`
	}
	if err := json.Unmarshal(raw, &d); err != nil {
		return models.Transform{}, fmt.Errorf("%w: GetSceneItemTransform response: %v", ErrProtocol, err)
	}
	return d.SceneItemTransform.toModel(), nil
}

// SetSceneItemTransform applies the present fields of transform to one
// scene item, leaving absent fields unchanged.
func (c *Client) SetSceneItemTransform(ctx context.Context, sceneName string, itemID int64, transform models.Transform) error {
	fields := transformToRequest(transform)
	if len(fields) == 0 {
		return nil
	}
	_, err := c.call(ctx, "SetSceneItemTransform", map[string]interface{}{
		"sceneName":          sceneName,
		"sceneItemId":        itemID,
		"sceneItemTransform": fields,
	})
	return err
}

// SetSceneItemEnabled shows or hides a scene item.
func (c *Client) SetSceneItemEnabled(ctx context.Context, sceneName string, itemID int64, enabled bool) error {
	_, err := c.call(ctx, "SetSceneItemEnabled", map[string]interface{}{
		"sceneName":        sceneName,
		"sceneItemId":      itemID,
		"sceneItemEnabled": enabled,
	})
	return err
}

// CreateSceneItem adds an existing source to a scene and returns the new
// scene item id.
func (c *Client) CreateSceneItem(ctx context.Context, sceneName, sourceName string) (int64, error) {
	raw, err := c.call(ctx, "CreateSceneItem", map[string]interface{}{
		"sceneName":  sceneName,
		"sourceName": sourceName,
	})
	if err != nil {
		return 0, err
	}
	var d struct {
		SceneItemID int64 `json:"sceneItemId"`
	}
	if err := json.Unmarshal(raw, &d); err != nil {
		return 0, fmt.Errorf("%w: CreateSceneItem response: %v", ErrProtocol, err)
	}
	return d.SceneItemID, nil
}

// RemoveSceneItem removes one item from a scene.
func (c *Client) RemoveSceneItem(ctx context.Context, sceneName string, itemID int64) error {
	_, err := c.call(ctx, "RemoveSceneItem", map[string]interface{}{
		"sceneName":   sceneName,
		"sceneItemId": itemID,
	})
	return err
}

// InputSettings returns an input's kind and its current settings blob.
func (c *Client) InputSettings(ctx context.Context, inputName string) (kind string, settings map[string]interface{}, err error) {
	raw, err := c.call(ctx, "GetInputSettings", map[string]interface{}{
		"inputName": inputName,
	})
	if err != nil {
		return "", nil, err
	}
	var d struct {
		InputKind     string                 `json:"inputKind"`
		InputSettings map[string]interface{} `json:"inputSettings"`
	}
	if err := json.Unmarshal(raw, &d); err != nil {
		return "", nil, fmt.Errorf("%w: GetInputSettings response: %v", ErrProtocol, err)
	}
	return d.InputKind, d.InputSettings, nil
}

// SetInputSettings overlays settings onto an input, preserving keys not
// present in the update.
func (c *Client) SetInputSettings(ctx context.Context, inputName string, settings map[string]interface{}) error {
	_, err := c.call(ctx, "SetInputSettings", map[string]interface{}{
		"inputName":     inputName,
		"inputSettings": settings,
		"overlay":       true,
	})
	return err
}

// ListFilters returns the filters attached to a source, in order.
func (c *Client) ListFilters(ctx context.Context, sourceName string) ([]models.FilterSpec, error) {
	raw, err := c.call(ctx, "GetSourceFilterList", map[string]interface{}{
		"sourceName": sourceName,
	})
	if err != nil {
		return nil, err
	}
	var d struct {
		Filters []struct {
			FilterName     string                 `json:"filterName"`
			FilterEnabled  bool                   `json:"filterEnabled"`
			FilterSettings map[string]interface{} `json:"filterSettings"`
		} `json:"filters"`
	}
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("%w: GetSourceFilterList response: %v", ErrProtocol, err)
	}
	filters := make([]models.FilterSpec, 0, len(d.Filters))
	for _, f := range d.Filters {
		filters = append(filters, models.FilterSpec{
			Name:     f.FilterName,
			Enabled:  f.FilterEnabled,
			Settings: f.FilterSettings,
		})
	}
	return filters, nil
}

// SetSourceFilterSettings overlays settings onto a source filter.
func (c *Client) SetSourceFilterSettings(ctx context.Context, sourceName, filterName string, settings map[string]interface{}) error {
	_, err := c.call(ctx, "SetSourceFilterSettings", map[string]interface{}{
		"sourceName":     sourceName,
		"filterName":     filterName,
		"filterSettings": settings,
		"overlay":        true,
	})
	return err
}

// SetSourceFilterEnabled toggles a source filter on or off.
func (c *Client) SetSourceFilterEnabled(ctx context.Context, sourceName, filterName string, enabled bool) error {
	_, err := c.call(ctx, "SetSourceFilterEnabled", map[string]interface{}{
		"sourceName":    sourceName,
		"filterName":    filterName,
		"filterEnabled": enabled,
	})
	return err
}
