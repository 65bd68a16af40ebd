// SceneMirror - OBS Studio LAN Scene Synchronization
// Copyright 2026 SceneMirror contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/scenemirror/scenemirror

package master

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/scenemirror/scenemirror/internal/logging"
	"github.com/scenemirror/scenemirror/internal/models"
	"github.com/scenemirror/scenemirror/internal/obs"
	"github.com/scenemirror/scenemirror/internal/protocol"
)

// BuildStateSync captures the master's full OBS state: every scene, every
// item in OBS order with transform and filters, and the raw bytes of
// image_* sources. Items or images that fail to read are skipped with a
// warning; a snapshot is best-effort, not transactional.
func BuildStateSync(ctx context.Context, client OBS, imageCap int64) (protocol.StateSync, error) {
	program, err := client.CurrentProgramScene(ctx)
	if err != nil {
		return protocol.StateSync{}, fmt.Errorf("reading program scene: %w", err)
	}

	snapshot := protocol.StateSync{CurrentProgramScene: program}

	if preview, err := client.CurrentPreviewScene(ctx); err == nil {
		snapshot.CurrentPreviewScene = &preview
	} else if !errors.Is(err, obs.ErrUnsupported) {
		logging.Warn().Err(err).Msg("cannot read preview scene for snapshot")
	}

	scenes, err := client.ListScenes(ctx)
	if err != nil {
		return protocol.StateSync{}, fmt.Errorf("listing scenes: %w", err)
	}

	for _, sceneName := range scenes {
		scene, err := buildSceneSnapshot(ctx, client, sceneName, imageCap)
		if err != nil {
			logging.Warn().Err(err).Str("scene", sceneName).Msg("skipping scene in snapshot")
			continue
		}
		snapshot.Scenes = append(snapshot.Scenes, scene)
	}
	return snapshot, nil
}

func buildSceneSnapshot(ctx context.Context, client OBS, sceneName string, imageCap int64) (models.SceneSnapshot, error) {
	items, err := client.ListSceneItems(ctx, sceneName)
	if err != nil {
		return models.SceneSnapshot{}, fmt.Errorf("listing items: %w", err)
	}

	scene := models.SceneSnapshot{Name: sceneName}
	for _, item := range items {
		snap := models.SceneItemSnapshot{
			Ref: models.SceneItemRef{
				SceneName:   sceneName,
				SceneItemID: item.ID,
				SourceName:  item.SourceName,
			},
			SourceType: item.InputKind,
		}

		transform, err := client.SceneItemTransform(ctx, sceneName, item.ID)
		if err != nil {
			logging.Warn().Err(err).
				Str("scene", sceneName).
				Str("source", item.SourceName).
				Msg("skipping item in snapshot")
			continue
		}
		snap.Transform = transform

		filters, err := client.ListFilters(ctx, item.SourceName)
		if err != nil {
			logging.Warn().Err(err).Str("source", item.SourceName).Msg("snapshot omits filters")
		} else {
			snap.Filters = filters
		}

		if strings.HasPrefix(item.InputKind, "image_") {
			attachImage(ctx, client, &snap, imageCap)
		}

		scene.Items = append(scene.Items, snap)
	}
	return scene, nil
}

// attachImage adds the source's current file path and Base64 bytes to the
// item snapshot. Failures leave the item without image data.
func attachImage(ctx context.Context, client OBS, snap *models.SceneItemSnapshot, imageCap int64) {
	_, settings, err := client.InputSettings(ctx, snap.Ref.SourceName)
	if err != nil {
		logging.Warn().Err(err).Str("source", snap.Ref.SourceName).Msg("snapshot omits image settings")
		return
	}
	path, _ := settings["file"].(string)
	if path == "" {
		return
	}
	snap.ImageFile = path

	data, err := os.ReadFile(path)
	if err != nil {
		logging.Warn().Err(err).Str("path", path).Msg("snapshot omits image bytes")
		return
	}
	if imageCap > 0 && int64(len(data)) > imageCap {
		logging.Warn().
			Str("path", path).
			Int("bytes", len(data)).
			Int64("cap", imageCap).
			Msg("snapshot omits oversized image")
		return
	}
	snap.ImageData = protocol.EncodeImageData(data)
}
