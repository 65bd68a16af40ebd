// SceneMirror - OBS Studio LAN Scene Synchronization
// Copyright 2026 SceneMirror contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/scenemirror/scenemirror

// Package engine orchestrates the core components behind the shell
// boundary: the OBS client, the master transport and translator, the slave
// link and applier, and LAN discovery. Every shell command maps to one
// method here.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/scenemirror/scenemirror/internal/config"
	"github.com/scenemirror/scenemirror/internal/discovery"
	"github.com/scenemirror/scenemirror/internal/logging"
	"github.com/scenemirror/scenemirror/internal/master"
	"github.com/scenemirror/scenemirror/internal/metrics"
	"github.com/scenemirror/scenemirror/internal/models"
	"github.com/scenemirror/scenemirror/internal/obs"
	"github.com/scenemirror/scenemirror/internal/protocol"
	"github.com/scenemirror/scenemirror/internal/slave"
	"github.com/scenemirror/scenemirror/internal/version"
)

// snapshotTimeout bounds building one full-state snapshot. Apply on the
// slave side has no overall deadline, only per-item progress.
const snapshotTimeout = 30 * time.Second

// applyTimeout bounds applying one inbound message to local OBS.
const applyTimeout = 15 * time.Second

// Engine wires the components for whichever role is active. One Engine
// per process.
type Engine struct {
	cfg    *config.Config
	obs    *obs.Client
	events *broker

	mu   sync.Mutex
	mode models.AppMode

	// Master role.
	server           *master.Server
	targets          *master.TargetSet
	translatorCancel context.CancelFunc
	masterWindow     *metrics.Window
	advertiser       *discovery.Advertiser

	// Slave role. ExpectedState outlives individual connections so drift
	// detection keeps working across momentary disconnects.
	state       *slave.ExpectedState
	applier     *slave.Applier
	link        *slave.Link
	monitorStop context.CancelFunc
	slaveWindow *metrics.Window

	settingsPath string
}

// New builds an idle engine. No network activity happens until the shell
// issues commands.
func New(cfg *config.Config) *Engine {
	path, err := config.DefaultSettingsPath()
	if err != nil {
		logging.Warn().Err(err).Msg("no per-user config dir, settings will not persist")
	}
	return &Engine{
		cfg:          cfg,
		obs:          obs.NewClient(),
		events:       newBroker(),
		targets:      master.NewTargetSet(),
		masterWindow: metrics.NewWindow(),
		state:        slave.NewExpectedState(),
		slaveWindow:  metrics.NewWindow(),
		advertiser:   discovery.NewAdvertiser(),
		settingsPath: path,
	}
}

// Subscribe attaches a shell event listener.
func (e *Engine) Subscribe() (<-chan Event, func()) {
	return e.events.Subscribe()
}

// Shutdown tears down both roles. Used on process exit.
func (e *Engine) Shutdown() {
	_ = e.DisconnectFromMaster()
	_ = e.StopMasterServer()
	e.DisconnectOBS()
}

// ---- OBS commands ----

// ConnectOBS connects the local OBS client. When the master server is
// already running the event translator is (re)started on the fresh
// event subscription.
func (e *Engine) ConnectOBS(ctx context.Context, host string, port int, password string) error {
	if err := e.obs.Connect(ctx, host, port, password); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.server != nil && e.server.Running() {
		e.stopTranslatorLocked()
		e.startTranslatorLocked()
	}
	return nil
}

// DisconnectOBS drops the OBS connection. Idempotent.
func (e *Engine) DisconnectOBS() {
	e.mu.Lock()
	e.stopTranslatorLocked()
	e.mu.Unlock()
	e.obs.Disconnect()
}

// OBSStatus reports the local OBS connection.
func (e *Engine) OBSStatus(ctx context.Context) models.OBSConnectionStatus {
	return e.obs.Status(ctx)
}

// OBSSources lists the inputs of the local OBS instance.
func (e *Engine) OBSSources(ctx context.Context) ([]models.OBSSource, error) {
	return e.obs.ListInputs(ctx)
}

// ---- Mode ----

// SetMode selects master or slave. Switching roles tears down the
// previous role's connections.
func (e *Engine) SetMode(mode models.AppMode) error {
	if mode != models.ModeMaster && mode != models.ModeSlave {
		return fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	}
	e.mu.Lock()
	previous := e.mode
	e.mode = mode
	e.mu.Unlock()
	if previous == mode {
		return nil
	}
	switch mode {
	case models.ModeMaster:
		_ = e.DisconnectFromMaster()
	case models.ModeSlave:
		_ = e.StopMasterServer()
	}
	logging.Info().Str("mode", string(mode)).Msg("application mode set")
	return nil
}

// Mode returns the selected role, empty until SetMode is called.
func (e *Engine) Mode() models.AppMode {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mode
}

// ---- Sync targets ----

// SetSyncTargets replaces the master-side target filter. Takes effect on
// the next translated event.
func (e *Engine) SetSyncTargets(targets []models.SyncTarget) error {
	for _, t := range targets {
		if !models.ValidTarget(t) {
			return fmt.Errorf("unknown sync target %q", t)
		}
	}
	e.targets.Set(targets)
	return nil
}

// SyncTargets returns the active target filter.
func (e *Engine) SyncTargets() []models.SyncTarget {
	return e.targets.List()
}

// ---- Master role ----

// StartMasterServer opens the sync listener and, when configured,
// advertises it over mDNS. Requires master mode.
func (e *Engine) StartMasterServer(port int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.mode != models.ModeMaster {
		return ErrWrongMode
	}
	if e.server != nil && e.server.Running() {
		return fmt.Errorf("master server already running on port %d", e.server.Port())
	}

	srv := master.NewServer()
	srv.SetSyncRequestHandler(e.sendSnapshotTo)
	srv.SetStatusReportHandler(e.onSlaveStatusReport)
	if err := srv.Start(port); err != nil {
		return err
	}
	e.server = srv
	if e.obs.Connected() {
		e.startTranslatorLocked()
	}
	if e.cfg.Master.Advertise {
		if err := e.advertiser.Start(e.cfg.Master.Instance, srv.Port()); err != nil {
			// Discovery is a convenience, never fatal.
			logging.Warn().Err(err).Msg("mDNS advertisement failed")
		}
	}
	return nil
}

// StopMasterServer stops the listener and frees the port immediately.
func (e *Engine) StopMasterServer() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.advertiser.Stop()
	e.stopTranslatorLocked()
	if e.server == nil {
		return nil
	}
	err := e.server.Stop()
	e.server = nil
	return err
}

// MasterRunning reports whether the sync listener is up.
func (e *Engine) MasterRunning() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.server != nil && e.server.Running()
}

// ConnectedClientsCount returns the number of live slave sessions.
func (e *Engine) ConnectedClientsCount() int {
	e.mu.Lock()
	srv := e.server
	e.mu.Unlock()
	if srv == nil {
		return 0
	}
	return srv.ConnectedCount()
}

// ConnectedClientsInfo lists the live slave sessions.
func (e *Engine) ConnectedClientsInfo() []models.ClientInfo {
	e.mu.Lock()
	srv := e.server
	e.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Clients()
}

// SlaveStatuses returns the last sync report from each slave.
func (e *Engine) SlaveStatuses() []models.SlaveStatus {
	e.mu.Lock()
	srv := e.server
	e.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.SlaveStatuses()
}

// ResyncAllSlaves builds one snapshot and broadcasts it.
func (e *Engine) ResyncAllSlaves(ctx context.Context) error {
	e.mu.Lock()
	srv := e.server
	e.mu.Unlock()
	if srv == nil || !srv.Running() {
		return master.ErrNotRunning
	}
	msg, err := e.buildSnapshotMessage(ctx)
	if err != nil {
		return err
	}
	srv.Broadcast(msg)
	return nil
}

// ResyncSpecificSlave sends a fresh snapshot to one client.
func (e *Engine) ResyncSpecificSlave(ctx context.Context, clientID string) error {
	e.mu.Lock()
	srv := e.server
	e.mu.Unlock()
	if srv == nil || !srv.Running() {
		return master.ErrNotRunning
	}
	msg, err := e.buildSnapshotMessage(ctx)
	if err != nil {
		return err
	}
	return srv.SendTo(clientID, msg)
}

func (e *Engine) buildSnapshotMessage(ctx context.Context) (protocol.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, snapshotTimeout)
	defer cancel()
	snap, err := master.BuildStateSync(ctx, e.obs, int64(e.cfg.Sync.ImageMaxBytes))
	if err != nil {
		return protocol.Message{}, fmt.Errorf("build state snapshot: %w", err)
	}
	return protocol.New(protocol.KindStateSync, models.TargetProgram, snap)
}

// sendSnapshotTo answers a slave's state_sync_request.
func (e *Engine) sendSnapshotTo(clientID string) {
	e.mu.Lock()
	srv := e.server
	e.mu.Unlock()
	if srv == nil {
		return
	}
	msg, err := e.buildSnapshotMessage(context.Background())
	if err != nil {
		logging.Warn().Err(err).Str("client_id", clientID).Msg("snapshot build failed")
		return
	}
	if err := srv.SendTo(clientID, msg); err != nil {
		logging.Warn().Err(err).Str("client_id", clientID).Msg("snapshot send failed")
	}
}

// startTranslatorLocked spawns the OBS event translator against the
// current event subscription. Caller holds e.mu.
func (e *Engine) startTranslatorLocked() {
	if e.translatorCancel != nil || e.server == nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	e.translatorCancel = cancel
	tr := master.NewTranslator(e.obs, e.targets, e.server.Broadcast,
		int64(e.cfg.Sync.ImageMaxBytes), e.masterWindow)
	go tr.Run(ctx, e.obs.Events())
}

func (e *Engine) stopTranslatorLocked() {
	if e.translatorCancel != nil {
		e.translatorCancel()
		e.translatorCancel = nil
	}
}

// ---- Slave role ----

// ConnectToMaster dials the master sync server. Requires slave mode. On
// dial failure the reconnect supervisor keeps retrying in the background
// and the error is still returned so the shell can surface it.
func (e *Engine) ConnectToMaster(host string, port int) error {
	e.mu.Lock()
	if e.mode != models.ModeSlave {
		e.mu.Unlock()
		return ErrWrongMode
	}
	if e.link != nil {
		if e.link.Connected() {
			e.mu.Unlock()
			return fmt.Errorf("already connected to master")
		}
		// Abandon any reconnect loop on the previous link.
		e.link.Disconnect()
	}
	if e.applier == nil {
		sink := slave.NewImageSink(e.cfg.Sync.StagingDir)
		e.applier = slave.NewApplier(e.obs, e.state, sink,
			int64(e.cfg.Sync.ImageMaxBytes), e.publishAlert)
	}
	e.link = slave.NewLink(e.applyInbound, e.publishConnStatus, e.slaveWindow)
	link := e.link

	if e.monitorStop == nil {
		ctx, cancel := context.WithCancel(context.Background())
		e.monitorStop = cancel
		monitor := slave.NewMonitor(e.obs, e.state, e.sendReport, e.publishAlert)
		go monitor.Run(ctx)
	}
	e.mu.Unlock()

	return link.Connect(host, port)
}

// DisconnectFromMaster drops the link and cancels any pending reconnect.
// Idempotent.
func (e *Engine) DisconnectFromMaster() error {
	e.mu.Lock()
	link := e.link
	stop := e.monitorStop
	e.link = nil
	e.monitorStop = nil
	e.mu.Unlock()
	if stop != nil {
		stop()
	}
	if link != nil {
		link.Disconnect()
	}
	return nil
}

// SlaveConnected reports whether the upstream link is live.
func (e *Engine) SlaveConnected() bool {
	e.mu.Lock()
	link := e.link
	e.mu.Unlock()
	return link != nil && link.Connected()
}

// ReconnectionStatus reports reconnect progress, nil when no link exists.
func (e *Engine) ReconnectionStatus() *models.ReconnectionStatus {
	e.mu.Lock()
	link := e.link
	e.mu.Unlock()
	if link == nil {
		return nil
	}
	status := link.ReconnectionStatus()
	return &status
}

// RequestResyncFromMaster asks the master for a fresh full snapshot.
func (e *Engine) RequestResyncFromMaster() error {
	e.mu.Lock()
	link := e.link
	e.mu.Unlock()
	if link == nil {
		return ErrNotConnected
	}
	return link.RequestSync()
}

// applyInbound is the link's message callback. Runs on the link reader so
// messages apply in FIFO order.
func (e *Engine) applyInbound(msg protocol.Message) {
	e.mu.Lock()
	applier := e.applier
	e.mu.Unlock()
	if applier == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), applyTimeout)
	defer cancel()
	if err := applier.Apply(ctx, msg); err != nil {
		logging.Warn().Err(err).Str("kind", string(msg.Type)).Msg("apply failed")
	}
}

// sendReport forwards a drift report upstream, quietly dropping it when
// the link is down.
func (e *Engine) sendReport(msg protocol.Message) error {
	e.mu.Lock()
	link := e.link
	e.mu.Unlock()
	if link == nil || !link.Connected() {
		return nil
	}
	return link.Send(msg)
}

func (e *Engine) publishConnStatus(connected bool) {
	e.events.Publish(Event{Name: EventSlaveConnectionStatus, Payload: connected})
}

func (e *Engine) publishAlert(alert models.DesyncAlert) {
	e.events.Publish(Event{Name: EventDesyncAlert, Payload: alert})
}

// onSlaveStatusReport surfaces slave-reported drift on the master's own
// shell event stream, one alert per detail.
func (e *Engine) onSlaveStatusReport(clientID string, report protocol.SlaveStatusReport) {
	if report.IsSynced {
		return
	}
	for _, d := range report.DesyncDetails {
		e.publishAlert(models.DesyncAlert{
			ID:         uuid.NewString(),
			Timestamp:  models.NowMillis(),
			SceneName:  d.SceneName,
			SourceName: d.SourceName,
			Message:    fmt.Sprintf("%s: %s", clientID, d.Description),
			Severity:   models.AlertSeverity(d.Severity),
		})
	}
}

// ---- Metrics, discovery, settings, version ----

// PerformanceMetrics aggregates the rolling window of the active role.
func (e *Engine) PerformanceMetrics() models.PerfMetrics {
	switch e.Mode() {
	case models.ModeMaster:
		return e.masterWindow.Snapshot()
	case models.ModeSlave:
		return e.slaveWindow.Snapshot()
	}
	return models.PerfMetrics{}
}

// DiscoverMasters performs one mDNS browse pass.
func (e *Engine) DiscoverMasters(ctx context.Context) ([]models.DiscoveredMaster, error) {
	return discovery.Browse(ctx)
}

// LoadSettings reads the persisted operator settings record.
func (e *Engine) LoadSettings() (config.Settings, error) {
	if e.settingsPath == "" {
		return config.DefaultSettings(), nil
	}
	return config.LoadSettings(e.settingsPath)
}

// SaveSettings persists the operator settings record.
func (e *Engine) SaveSettings(s config.Settings) error {
	if e.settingsPath == "" {
		return fmt.Errorf("no settings path available")
	}
	return config.SaveSettings(e.settingsPath, s)
}

// AppVersion returns the build's release tag.
func (e *Engine) AppVersion() string { return version.Version }

// GitCommit returns the build's git commit hash.
func (e *Engine) GitCommit() string { return version.Commit }
