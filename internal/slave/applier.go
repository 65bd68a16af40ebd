// SceneMirror - OBS Studio LAN Scene Synchronization
// Copyright 2026 SceneMirror contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/scenemirror/scenemirror

package slave

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/scenemirror/scenemirror/internal/logging"
	"github.com/scenemirror/scenemirror/internal/metrics"
	"github.com/scenemirror/scenemirror/internal/models"
	"github.com/scenemirror/scenemirror/internal/obs"
	"github.com/scenemirror/scenemirror/internal/protocol"
)

// failureAlertThreshold is the consecutive apply failure count that raises
// a visible alert. The link is never torn down for apply failures.
const failureAlertThreshold = 5

// OBS is the slice of the OBS client the applier drives. *obs.Client
// satisfies it.
type OBS interface {
	SetCurrentProgramScene(ctx context.Context, name string) error
	SetCurrentPreviewScene(ctx context.Context, name string) error
	ListSceneItems(ctx context.Context, sceneName string) ([]obs.SceneItem, error)
	SceneItemTransform(ctx context.Context, sceneName string, itemID int64) (models.Transform, error)
	SetSceneItemTransform(ctx context.Context, sceneName string, itemID int64, transform models.Transform) error
	SetSceneItemEnabled(ctx context.Context, sceneName string, itemID int64, enabled bool) error
	CreateSceneItem(ctx context.Context, sceneName, sourceName string) (int64, error)
	RemoveSceneItem(ctx context.Context, sceneName string, itemID int64) error
	SetInputSettings(ctx context.Context, inputName string, settings map[string]interface{}) error
	SetSourceFilterSettings(ctx context.Context, sourceName, filterName string, settings map[string]interface{}) error
	SetSourceFilterEnabled(ctx context.Context, sourceName, filterName string, enabled bool) error
}

// Applier consumes inbound sync messages strictly in arrival order and
// drives the local OBS to match. Every message updates ExpectedState
// before touching OBS, so the drift monitor always sees the intent even
// when the apply fails.
type Applier struct {
	obs      OBS
	state    *ExpectedState
	sink     *ImageSink
	imageCap int64

	// alertFn receives the alert raised after persistent failures. May be
	// nil.
	alertFn func(models.DesyncAlert)

	failures int
}

// NewApplier wires an applier; imageCap 0 means unlimited.
func NewApplier(client OBS, state *ExpectedState, sink *ImageSink, imageCap int64, alertFn func(models.DesyncAlert)) *Applier {
	return &Applier{obs: client, state: state, sink: sink, imageCap: imageCap, alertFn: alertFn}
}

// Apply handles one message. Errors are returned for the caller's log but
// never stop the stream; the applier tracks its own failure streak.
func (a *Applier) Apply(ctx context.Context, msg protocol.Message) error {
	var (
		err           error
		scene, source string
	)

	switch msg.Type {
	case protocol.KindHeartbeat:
		return nil
	case protocol.KindSceneChange:
		scene, err = a.applySceneChange(ctx, msg)
	case protocol.KindTransformUpdate:
		scene, source, err = a.applyTransform(ctx, msg)
	case protocol.KindFilterUpdate:
		scene, source, err = a.applyFilter(ctx, msg)
	case protocol.KindImageUpdate:
		scene, source, err = a.applyImage(ctx, msg)
	case protocol.KindSourceUpdate:
		scene, source, err = a.applySourceUpdate(ctx, msg)
	case protocol.KindStateSync:
		err = a.applySnapshot(ctx, msg)
	default:
		logging.Debug().Str("kind", string(msg.Type)).Msg("unexpected inbound kind on slave")
		return nil
	}

	if err != nil {
		a.failures++
		metrics.ApplyFailures.WithLabelValues(string(msg.Type)).Inc()
		logging.Warn().Err(err).
			Str("kind", string(msg.Type)).
			Str("scene", scene).
			Str("source", source).
			Int("streak", a.failures).
			Msg("apply failed")
		if a.failures == failureAlertThreshold && a.alertFn != nil {
			a.alertFn(models.DesyncAlert{
				ID:         uuid.NewString(),
				Timestamp:  models.NowMillis(),
				SceneName:  scene,
				SourceName: source,
				Message:    fmt.Sprintf("%d consecutive sync messages failed to apply; latest: %v", a.failures, err),
				Severity:   models.SeverityCritical,
			})
		}
		return fmt.Errorf("%w: %v", protocol.ErrApplyFailed, err)
	}

	a.failures = 0
	return nil
}

func (a *Applier) applySceneChange(ctx context.Context, msg protocol.Message) (string, error) {
	p, err := protocol.DecodeSceneChange(msg)
	if err != nil {
		return "", err
	}

	if msg.TargetType == models.TargetPreview {
		a.state.SetPreviewScene(p.SceneName)
		if err := a.obs.SetCurrentPreviewScene(ctx, p.SceneName); err != nil {
			if errors.Is(err, obs.ErrUnsupported) {
				// No Studio Mode locally; the master's preview intent is
				// recorded but cannot be shown.
				logging.Debug().Str("scene", p.SceneName).Msg("preview change skipped, no studio mode")
				return p.SceneName, nil
			}
			return p.SceneName, err
		}
		return p.SceneName, nil
	}

	a.state.SetProgramScene(p.SceneName)
	return p.SceneName, a.obs.SetCurrentProgramScene(ctx, p.SceneName)
}

func (a *Applier) applyTransform(ctx context.Context, msg protocol.Message) (string, string, error) {
	p, err := protocol.DecodeTransformUpdate(msg)
	if err != nil {
		return "", "", err
	}

	itemID, err := a.resolveItem(ctx, p.SceneName, p.SourceName)
	if err != nil {
		return p.SceneName, p.SourceName, err
	}

	current, err := a.obs.SceneItemTransform(ctx, p.SceneName, itemID)
	if err != nil {
		return p.SceneName, p.SourceName, err
	}
	merged := current.Merge(p.Transform)

	a.state.SetTransform(p.SceneName, p.SourceName, merged)
	return p.SceneName, p.SourceName, a.obs.SetSceneItemTransform(ctx, p.SceneName, itemID, merged)
}

func (a *Applier) applyFilter(ctx context.Context, msg protocol.Message) (string, string, error) {
	p, err := protocol.DecodeFilterUpdate(msg)
	if err != nil {
		return "", "", err
	}

	a.state.SetFilter(p.SceneName, p.SourceName, p.FilterName, p.FilterSettings, p.Enabled)

	if len(p.FilterSettings) > 0 {
		if err := a.obs.SetSourceFilterSettings(ctx, p.SourceName, p.FilterName, p.FilterSettings); err != nil {
			return p.SceneName, p.SourceName, err
		}
	}
	if p.Enabled != nil {
		if err := a.obs.SetSourceFilterEnabled(ctx, p.SourceName, p.FilterName, *p.Enabled); err != nil {
			return p.SceneName, p.SourceName, err
		}
	}
	return p.SceneName, p.SourceName, nil
}

func (a *Applier) applyImage(ctx context.Context, msg protocol.Message) (string, string, error) {
	p, err := protocol.DecodeImageUpdate(msg)
	if err != nil {
		return "", "", err
	}

	data, err := protocol.DecodeImageData(p.Data, p.Size, a.imageCap)
	if err != nil {
		return p.SceneName, p.SourceName, err
	}
	path, err := a.sink.Stage(p.SourceName, data)
	if err != nil {
		return p.SceneName, p.SourceName, err
	}

	a.state.SetImage(p.SceneName, p.SourceName, path)
	return p.SceneName, p.SourceName,
		a.obs.SetInputSettings(ctx, p.SourceName, map[string]interface{}{"file": path})
}

func (a *Applier) applySourceUpdate(ctx context.Context, msg protocol.Message) (string, string, error) {
	p, err := protocol.DecodeSourceUpdate(msg)
	if err != nil {
		return "", "", err
	}

	switch p.Action {
	case protocol.SourceCreated:
		// The source must already exist locally; only the scene membership
		// is mirrored.
		itemID, err := a.obs.CreateSceneItem(ctx, p.SceneName, p.SourceName)
		if err != nil {
			return p.SceneName, p.SourceName, err
		}
		if p.Transform != nil {
			a.state.SetTransform(p.SceneName, p.SourceName, *p.Transform)
			return p.SceneName, p.SourceName, a.obs.SetSceneItemTransform(ctx, p.SceneName, itemID, *p.Transform)
		}
		return p.SceneName, p.SourceName, nil

	case protocol.SourceRemoved:
		itemID, err := a.resolveItem(ctx, p.SceneName, p.SourceName)
		if err != nil {
			return p.SceneName, p.SourceName, err
		}
		return p.SceneName, p.SourceName, a.obs.RemoveSceneItem(ctx, p.SceneName, itemID)

	case protocol.SourceEnabledStateChanged:
		if p.SceneItemEnabled == nil {
			return p.SceneName, p.SourceName, fmt.Errorf("%w: enabled_state_changed without state", protocol.ErrMalformedPayload)
		}
		itemID, err := a.resolveItem(ctx, p.SceneName, p.SourceName)
		if err != nil {
			return p.SceneName, p.SourceName, err
		}
		return p.SceneName, p.SourceName, a.obs.SetSceneItemEnabled(ctx, p.SceneName, itemID, *p.SceneItemEnabled)

	case protocol.SourceSettingsChanged:
		return p.SceneName, p.SourceName, nil

	default:
		return p.SceneName, p.SourceName, fmt.Errorf("%w: action %q", protocol.ErrMalformedPayload, p.Action)
	}
}

// applySnapshot ingests a full state_sync in the defined order: per item
// transform, then image, then filters (settings before enabled); after all
// scenes, preview, then program. Per-item failures are logged and skipped
// so one broken item does not abort the resync.
func (a *Applier) applySnapshot(ctx context.Context, msg protocol.Message) error {
	snapshot, err := protocol.DecodeStateSync(msg)
	if err != nil {
		return err
	}

	a.state.ReplaceFromSnapshot(snapshot)

	for _, scene := range snapshot.Scenes {
		for _, item := range scene.Items {
			if err := a.applySnapshotItem(ctx, scene.Name, item); err != nil {
				logging.Warn().Err(err).
					Str("scene", scene.Name).
					Str("source", item.Ref.SourceName).
					Msg("snapshot item skipped")
			}
		}
	}

	if snapshot.CurrentPreviewScene != nil {
		if err := a.obs.SetCurrentPreviewScene(ctx, *snapshot.CurrentPreviewScene); err != nil &&
			!errors.Is(err, obs.ErrUnsupported) {
			logging.Warn().Err(err).Msg("snapshot preview scene not applied")
		}
	}
	return a.obs.SetCurrentProgramScene(ctx, snapshot.CurrentProgramScene)
}

func (a *Applier) applySnapshotItem(ctx context.Context, sceneName string, item models.SceneItemSnapshot) error {
	itemID, err := a.resolveItem(ctx, sceneName, item.Ref.SourceName)
	if err != nil {
		return err
	}

	if err := a.obs.SetSceneItemTransform(ctx, sceneName, itemID, item.Transform); err != nil {
		return err
	}

	if item.ImageData != "" {
		data, err := protocol.DecodeImageData(item.ImageData, 0, a.imageCap)
		if err != nil {
			return err
		}
		path, err := a.sink.Stage(item.Ref.SourceName, data)
		if err != nil {
			return err
		}
		a.state.SetImage(sceneName, item.Ref.SourceName, path)
		if err := a.obs.SetInputSettings(ctx, item.Ref.SourceName, map[string]interface{}{"file": path}); err != nil {
			return err
		}
	}

	for _, filter := range item.Filters {
		if len(filter.Settings) > 0 {
			if err := a.obs.SetSourceFilterSettings(ctx, item.Ref.SourceName, filter.Name, filter.Settings); err != nil {
				return err
			}
		}
		if err := a.obs.SetSourceFilterEnabled(ctx, item.Ref.SourceName, filter.Name, filter.Enabled); err != nil {
			return err
		}
	}
	return nil
}

// resolveItem translates (scene, sourceName) into the local scene item id.
// Master-sent ids are meaningless here.
func (a *Applier) resolveItem(ctx context.Context, sceneName, sourceName string) (int64, error) {
	items, err := a.obs.ListSceneItems(ctx, sceneName)
	if err != nil {
		return 0, fmt.Errorf("%w: listing %q: %v", protocol.ErrSceneResolutionFailed, sceneName, err)
	}
	for _, item := range items {
		if item.SourceName == sourceName {
			return item.ID, nil
		}
	}
	return 0, fmt.Errorf("%w: %q has no item %q", protocol.ErrSceneResolutionFailed, sceneName, sourceName)
}
