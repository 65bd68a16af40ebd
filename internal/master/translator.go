// SceneMirror - OBS Studio LAN Scene Synchronization
// Copyright 2026 SceneMirror contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/scenemirror/scenemirror

package master

import (
	"context"
	"os"
	"strings"

	"github.com/scenemirror/scenemirror/internal/logging"
	"github.com/scenemirror/scenemirror/internal/metrics"
	"github.com/scenemirror/scenemirror/internal/models"
	"github.com/scenemirror/scenemirror/internal/obs"
	"github.com/scenemirror/scenemirror/internal/protocol"
)

// OBS is the slice of the OBS client the translator and snapshot builder
// read from. *obs.Client satisfies it.
type OBS interface {
	ListScenes(ctx context.Context) ([]string, error)
	ListSceneItems(ctx context.Context, sceneName string) ([]obs.SceneItem, error)
	SceneItemTransform(ctx context.Context, sceneName string, itemID int64) (models.Transform, error)
	CurrentProgramScene(ctx context.Context) (string, error)
	CurrentPreviewScene(ctx context.Context) (string, error)
	InputSettings(ctx context.Context, inputName string) (kind string, settings map[string]interface{}, err error)
	ListFilters(ctx context.Context, sourceName string) ([]models.FilterSpec, error)
}

// Translator turns the OBS event stream into sync messages, gated by the
// operator's target set. Translation failures drop the event with a log
// line; they never stop the stream.
type Translator struct {
	obs      OBS
	targets  *TargetSet
	send     func(protocol.Message)
	imageCap int64
	window   *metrics.Window

	// itemNames caches scene item id -> source name per scene; invalidated
	// on miss since topology changes are not synced but do happen.
	itemNames map[string]map[int64]string
}

// NewTranslator wires a translator to its output. send is typically
// Server.Broadcast.
func NewTranslator(client OBS, targets *TargetSet, send func(protocol.Message), imageCap int64, window *metrics.Window) *Translator {
	return &Translator{
		obs:       client,
		targets:   targets,
		send:      send,
		imageCap:  imageCap,
		window:    window,
		itemNames: make(map[string]map[int64]string),
	}
}

// Run consumes events until the channel closes or ctx is done.
func (tr *Translator) Run(ctx context.Context, events <-chan obs.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			tr.translate(ctx, evt)
		}
	}
}

func (tr *Translator) translate(ctx context.Context, evt obs.Event) {
	switch evt.Type {
	case obs.EventProgramSceneChanged:
		if !tr.targets.Contains(models.TargetProgram) {
			return
		}
		tr.emit(protocol.MustNew(protocol.KindSceneChange, models.TargetProgram,
			protocol.SceneChange{SceneName: evt.SceneName}))

	case obs.EventPreviewSceneChanged:
		if !tr.targets.Contains(models.TargetPreview) {
			return
		}
		tr.emit(protocol.MustNew(protocol.KindSceneChange, models.TargetPreview,
			protocol.SceneChange{SceneName: evt.SceneName}))

	case obs.EventSceneItemTransformChanged:
		if !tr.targets.Contains(models.TargetSource) || evt.Transform == nil {
			return
		}
		sourceName, ok := tr.sourceNameFor(ctx, evt.SceneName, evt.SceneItemID)
		if !ok {
			logging.Warn().
				Str("scene", evt.SceneName).
				Int64("item_id", evt.SceneItemID).
				Msg("transform event for unknown scene item, dropped")
			return
		}
		tr.emit(protocol.MustNew(protocol.KindTransformUpdate, models.TargetSource,
			protocol.TransformUpdate{
				SceneName:   evt.SceneName,
				SceneItemID: evt.SceneItemID,
				SourceName:  sourceName,
				Transform:   *evt.Transform,
			}))

	case obs.EventFilterSettingsChanged:
		if !tr.targets.Contains(models.TargetSource) {
			return
		}
		sceneName, itemID, ok := tr.resolveScene(ctx, evt.SourceName)
		if !ok {
			logging.Warn().
				Str("source", evt.SourceName).
				Str("filter", evt.FilterName).
				Msg("filter event for source hosted by no scene, dropped")
			return
		}
		tr.emit(protocol.MustNew(protocol.KindFilterUpdate, models.TargetSource,
			protocol.FilterUpdate{
				SceneName:      sceneName,
				SceneItemID:    itemID,
				SourceName:     evt.SourceName,
				FilterName:     evt.FilterName,
				FilterSettings: evt.Settings,
			}))

	case obs.EventInputSettingsChanged:
		if !tr.targets.Contains(models.TargetSource) {
			return
		}
		tr.translateImageChange(ctx, evt)
	}
}

// translateImageChange emits an image_update when an image_* input points
// at a new file. Non-image inputs are ignored; unreadable or oversized
// files drop the event.
func (tr *Translator) translateImageChange(ctx context.Context, evt obs.Event) {
	kind, settings, err := tr.obs.InputSettings(ctx, evt.SourceName)
	if err != nil {
		logging.Warn().Err(err).Str("source", evt.SourceName).Msg("cannot read input settings, dropped")
		return
	}
	if !strings.HasPrefix(kind, "image_") {
		return
	}
	path, _ := settings["file"].(string)
	if path == "" {
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		logging.Warn().Err(err).Str("path", path).Msg("cannot read image file, dropped")
		return
	}
	if tr.imageCap > 0 && int64(len(data)) > tr.imageCap {
		logging.Warn().
			Str("path", path).
			Int("bytes", len(data)).
			Int64("cap", tr.imageCap).
			Msg("image exceeds size cap, dropped")
		return
	}

	sceneName, _, ok := tr.resolveScene(ctx, evt.SourceName)
	if !ok {
		logging.Warn().Str("source", evt.SourceName).Msg("image source hosted by no scene, dropped")
		return
	}

	tr.emit(protocol.MustNew(protocol.KindImageUpdate, models.TargetSource,
		protocol.ImageUpdate{
			SceneName:  sceneName,
			SourceName: evt.SourceName,
			File:       path,
			Data:       protocol.EncodeImageData(data),
			Size:       int64(len(data)),
		}))
}

func (tr *Translator) emit(msg protocol.Message) {
	if tr.window != nil {
		tr.window.Record(string(msg.Type), 0, len(msg.Payload))
	}
	tr.send(msg)
}

// sourceNameFor maps a scene item id to its source name through a per-scene
// cache, re-querying OBS once on a miss.
func (tr *Translator) sourceNameFor(ctx context.Context, sceneName string, itemID int64) (string, bool) {
	if names, ok := tr.itemNames[sceneName]; ok {
		if name, ok := names[itemID]; ok {
			return name, true
		}
	}

	items, err := tr.obs.ListSceneItems(ctx, sceneName)
	if err != nil {
		logging.Warn().Err(err).Str("scene", sceneName).Msg("cannot list scene items")
		return "", false
	}
	names := make(map[int64]string, len(items))
	for _, item := range items {
		names[item.ID] = item.SourceName
	}
	tr.itemNames[sceneName] = names

	name, ok := names[itemID]
	return name, ok
}

// resolveScene finds the first (scene, itemId) hosting sourceName, walking
// scenes in OBS order. Filter and input events carry only the source name.
func (tr *Translator) resolveScene(ctx context.Context, sourceName string) (string, int64, bool) {
	scenes, err := tr.obs.ListScenes(ctx)
	if err != nil {
		logging.Warn().Err(err).Msg("cannot list scenes for source resolution")
		return "", 0, false
	}
	for _, sceneName := range scenes {
		items, err := tr.obs.ListSceneItems(ctx, sceneName)
		if err != nil {
			continue
		}
		for _, item := range items {
			if item.SourceName == sourceName {
				return sceneName, item.ID, true
			}
		}
	}
	return "", 0, false
}
