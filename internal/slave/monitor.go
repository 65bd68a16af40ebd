// SceneMirror - OBS Studio LAN Scene Synchronization
// Copyright 2026 SceneMirror contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/scenemirror/scenemirror

package slave

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/scenemirror/scenemirror/internal/drift"
	"github.com/scenemirror/scenemirror/internal/logging"
	"github.com/scenemirror/scenemirror/internal/metrics"
	"github.com/scenemirror/scenemirror/internal/models"
	"github.com/scenemirror/scenemirror/internal/obs"
	"github.com/scenemirror/scenemirror/internal/protocol"
)

// driftInterval is the drift check cadence; it also naturally coalesces
// slave_status_reports to at most one per cycle.
const driftInterval = 5 * time.Second

// MonitorOBS is the read surface the drift monitor polls. *obs.Client
// satisfies it.
type MonitorOBS interface {
	Connected() bool
	CurrentProgramScene(ctx context.Context) (string, error)
	CurrentPreviewScene(ctx context.Context) (string, error)
	ListSceneItems(ctx context.Context, sceneName string) ([]obs.SceneItem, error)
	SceneItemTransform(ctx context.Context, sceneName string, itemID int64) (models.Transform, error)
}

// Monitor periodically compares the local OBS state against ExpectedState,
// raising desync alerts for the shell and status reports for the master.
type Monitor struct {
	obs    MonitorOBS
	state  *ExpectedState
	report func(protocol.Message) error
	alert  func(models.DesyncAlert)
}

// NewMonitor wires a drift monitor. report sends to the master (may fail
// while disconnected); alert reaches the shell (may be nil).
func NewMonitor(client MonitorOBS, state *ExpectedState, report func(protocol.Message) error, alert func(models.DesyncAlert)) *Monitor {
	return &Monitor{obs: client, state: state, report: report, alert: alert}
}

// Run checks every driftInterval until ctx is done.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(driftInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.CheckOnce(ctx)
		}
	}
}

// CheckOnce performs one drift check. It is a no-op until ExpectedState
// holds some master intent and OBS is reachable.
func (m *Monitor) CheckOnce(ctx context.Context) []models.DesyncDetail {
	if !m.state.Populated() || !m.obs.Connected() {
		return nil
	}

	expected := m.state.DriftState()
	observed, err := m.observe(ctx, expected)
	if err != nil {
		logging.Warn().Err(err).Msg("drift check skipped, cannot read obs state")
		return nil
	}

	details := drift.Compare(expected, observed)
	metrics.DriftDetails.Set(float64(len(details)))

	for _, d := range details {
		if m.alert != nil {
			m.alert(models.DesyncAlert{
				ID:         uuid.NewString(),
				Timestamp:  models.NowMillis(),
				SceneName:  d.SceneName,
				SourceName: d.SourceName,
				Message:    d.Description,
				Severity:   models.AlertSeverity(d.Severity),
			})
		}
	}

	msg, err := protocol.New(protocol.KindSlaveStatusReport, models.TargetProgram,
		protocol.SlaveStatusReport{
			IsSynced:      len(details) == 0,
			DesyncDetails: details,
		})
	if err == nil {
		if err := m.report(msg); err != nil {
			logging.Debug().Err(err).Msg("status report not sent")
		}
	}
	return details
}

// observe gathers the local OBS counterpart of the expected state. Sources
// that cannot be found stay absent from the observation, which Compare
// reads as missing.
func (m *Monitor) observe(ctx context.Context, expected drift.State) (drift.Observation, error) {
	program, err := m.obs.CurrentProgramScene(ctx)
	if err != nil {
		return drift.Observation{}, err
	}
	observed := drift.Observation{
		ProgramScene: program,
		Transforms:   make(map[string]map[string]models.Transform),
	}

	if preview, err := m.obs.CurrentPreviewScene(ctx); err == nil {
		observed.PreviewScene = &preview
	}

	// Scene item lists are fetched once per distinct scene.
	itemsByScene := make(map[string][]obs.SceneItem)
	for _, src := range expected.Sources {
		items, ok := itemsByScene[src.SceneName]
		if !ok {
			items, err = m.obs.ListSceneItems(ctx, src.SceneName)
			if err != nil {
				logging.Debug().Err(err).Str("scene", src.SceneName).Msg("scene not listable during drift check")
				items = nil
			}
			itemsByScene[src.SceneName] = items
		}

		var itemID int64
		found := false
		for _, item := range items {
			if item.SourceName == src.SourceName {
				itemID = item.ID
				found = true
				break
			}
		}
		if !found {
			continue
		}

		transform, err := m.obs.SceneItemTransform(ctx, src.SceneName, itemID)
		if err != nil {
			continue
		}
		bySource := observed.Transforms[src.SceneName]
		if bySource == nil {
			bySource = make(map[string]models.Transform)
			observed.Transforms[src.SceneName] = bySource
		}
		bySource[src.SourceName] = transform
	}

	return observed, nil
}
