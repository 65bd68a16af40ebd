// SceneMirror - OBS Studio LAN Scene Synchronization
// Copyright 2026 SceneMirror contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/scenemirror/scenemirror

// Package master hosts the sync server a master instance runs: a WebSocket
// listener accepting slave sessions, per-session bounded outbound queues,
// the OBS event translator, and the snapshot builder.
package master

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	"github.com/scenemirror/scenemirror/internal/logging"
	"github.com/scenemirror/scenemirror/internal/metrics"
	"github.com/scenemirror/scenemirror/internal/models"
	"github.com/scenemirror/scenemirror/internal/protocol"
)

const (
	heartbeatInterval = 5 * time.Second

	// stopDrain is the best-effort window Stop gives outbound queues.
	stopDrain = 2 * time.Second
)

// Server accepts slave connections and fans sync messages out to them.
// Sessions are owned by the server; a slow or dead session is closed
// without affecting the others.
type Server struct {
	mu        sync.Mutex
	listener  net.Listener
	httpSrv   *http.Server
	sessions  map[string]*session
	statuses  map[string]models.SlaveStatus
	running   bool
	stopHeart chan struct{}

	nextID uint64

	upgrader websocket.Upgrader

	// callbackMu guards the engine-installed callbacks below.
	callbackMu sync.Mutex
	// syncRequestFn, when set, is invoked with the requesting client id so
	// the engine can build and send a snapshot.
	syncRequestFn  func(clientID string)
	statusReportFn func(clientID string, report protocol.SlaveStatusReport)
	countChangedFn func(count int)
}

// NewServer creates a stopped server.
func NewServer() *Server {
	return &Server{
		sessions: make(map[string]*session),
		statuses: make(map[string]models.SlaveStatus),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// LAN peers only; no origin policy applies to non-browser clients.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// SetSyncRequestHandler installs the snapshot trigger. Must be set before
// Start.
func (srv *Server) SetSyncRequestHandler(fn func(clientID string)) {
	srv.callbackMu.Lock()
	srv.syncRequestFn = fn
	srv.callbackMu.Unlock()
}

// SetStatusReportHandler installs a listener for slave drift reports.
func (srv *Server) SetStatusReportHandler(fn func(clientID string, report protocol.SlaveStatusReport)) {
	srv.callbackMu.Lock()
	srv.statusReportFn = fn
	srv.callbackMu.Unlock()
}

// SetCountChangedHandler installs a listener for session count changes.
func (srv *Server) SetCountChangedHandler(fn func(count int)) {
	srv.callbackMu.Lock()
	srv.countChangedFn = fn
	srv.callbackMu.Unlock()
}

// Start binds the listen port and begins accepting slaves.
func (srv *Server) Start(port int) error {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	if srv.running {
		return fmt.Errorf("master server already running on %s", srv.listener.Addr())
	}

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return classifyBindError(port, err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", srv.handleUpgrade)
	srv.httpSrv = &http.Server{Handler: mux}
	srv.listener = listener
	srv.running = true
	srv.stopHeart = make(chan struct{})

	go func() {
		if err := srv.httpSrv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error().Err(err).Msg("master listener failed")
		}
	}()
	go srv.heartbeatLoop(srv.stopHeart)

	logging.Info().Int("port", port).Msg("master server listening")
	return nil
}

func classifyBindError(port int, err error) error {
	if errors.Is(err, syscall.EADDRINUSE) {
		return fmt.Errorf("%w: port %d", ErrBindInUse, port)
	}
	if errors.Is(err, syscall.EACCES) || errors.Is(err, syscall.EPERM) {
		return fmt.Errorf("%w: port %d", ErrBindPermission, port)
	}
	return fmt.Errorf("binding port %d: %w", port, err)
}

// Stop closes the listener, lets queues drain briefly, then force-closes
// every session. The port is free again when Stop returns.
func (srv *Server) Stop() error {
	srv.mu.Lock()
	if !srv.running {
		srv.mu.Unlock()
		return ErrNotRunning
	}
	srv.running = false
	listener := srv.listener
	httpSrv := srv.httpSrv
	close(srv.stopHeart)
	sessions := make([]*session, 0, len(srv.sessions))
	for _, s := range srv.sessions {
		sessions = append(sessions, s)
	}
	srv.mu.Unlock()

	// Closing the listener first frees the port even while sessions drain.
	_ = listener.Close()

	deadline := time.Now().Add(stopDrain)
	for time.Now().Before(deadline) {
		drained := true
		for _, s := range sessions {
			if s.queueLen() > 0 {
				drained = false
				break
			}
		}
		if drained {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}

	for _, s := range sessions {
		s.close("shutdown")
	}
	_ = httpSrv.Close()

	srv.mu.Lock()
	srv.sessions = make(map[string]*session)
	srv.statuses = make(map[string]models.SlaveStatus)
	srv.mu.Unlock()
	metrics.ConnectedSlaves.Set(0)

	logging.Info().Msg("master server stopped")
	return nil
}

// Running reports whether the listener is up.
func (srv *Server) Running() bool {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	return srv.running
}

// Port returns the bound port, 0 when stopped. Useful when started on :0.
func (srv *Server) Port() int {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	if !srv.running {
		return 0
	}
	if addr, ok := srv.listener.Addr().(*net.TCPAddr); ok {
		return addr.Port
	}
	return 0
}

func (srv *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := srv.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("websocket upgrade failed")
		return
	}

	srv.mu.Lock()
	if !srv.running {
		srv.mu.Unlock()
		_ = conn.Close()
		return
	}
	srv.nextID++
	id := fmt.Sprintf("slave-%d", srv.nextID)
	s := newSession(id, conn, srv)
	srv.sessions[id] = s
	count := len(srv.sessions)
	srv.mu.Unlock()

	metrics.ConnectedSlaves.Set(float64(count))
	srv.notifyCount(count)
	logging.Info().Str("client_id", id).Str("remote", s.remoteAddr).Msg("slave connected")

	go s.sendLoop()
	go s.readLoop()

	// Push a fresh snapshot to the new session right away instead of
	// waiting for its state_sync_request.
	go srv.onSyncRequest(id)
}

// Broadcast enqueues msg for every live session. Transform updates coalesce
// in place per (scene, item).
func (srv *Server) Broadcast(msg protocol.Message) {
	key := coalesceKeyFor(msg)
	for _, s := range srv.snapshotSessions() {
		s.enqueue(msg, key)
	}
}

// SendTo enqueues msg for one session.
func (srv *Server) SendTo(clientID string, msg protocol.Message) error {
	srv.mu.Lock()
	s, ok := srv.sessions[clientID]
	srv.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownClient, clientID)
	}
	s.enqueue(msg, coalesceKeyFor(msg))
	return nil
}

// coalesceKeyFor derives the in-queue coalescing key. Only transform
// updates coalesce; everything else must survive verbatim.
func coalesceKeyFor(msg protocol.Message) string {
	if msg.Type != protocol.KindTransformUpdate {
		return ""
	}
	p, err := protocol.DecodeTransformUpdate(msg)
	if err != nil {
		return ""
	}
	return fmt.Sprintf("%s\x00%d", p.SceneName, p.SceneItemID)
}

// Clients lists connected sessions ordered by connection time.
func (srv *Server) Clients() []models.ClientInfo {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	out := make([]models.ClientInfo, 0, len(srv.sessions))
	for _, s := range srv.sessions {
		out = append(out, s.info())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ConnectedAt != out[j].ConnectedAt {
			return out[i].ConnectedAt < out[j].ConnectedAt
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// ConnectedCount is the live session count.
func (srv *Server) ConnectedCount() int {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	return len(srv.sessions)
}

// SlaveStatuses returns the last drift report per connected slave.
func (srv *Server) SlaveStatuses() []models.SlaveStatus {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	out := make([]models.SlaveStatus, 0, len(srv.statuses))
	for _, st := range srv.statuses {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ClientID < out[j].ClientID })
	return out
}

// heartbeatLoop broadcasts heartbeats and polices stalled sessions.
func (srv *Server) heartbeatLoop(stop <-chan struct{}) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		srv.Broadcast(protocol.Heartbeat())

		for _, s := range srv.snapshotSessions() {
			if s.stalled() {
				logging.Warn().Str("client_id", s.id).Msg("session queue stalled, closing")
				s.close("stalled")
			}
		}
	}
}

func (srv *Server) snapshotSessions() []*session {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	out := make([]*session, 0, len(srv.sessions))
	for _, s := range srv.sessions {
		out = append(out, s)
	}
	return out
}

func (srv *Server) notifyCount(count int) {
	srv.callbackMu.Lock()
	fn := srv.countChangedFn
	srv.callbackMu.Unlock()
	if fn != nil {
		fn(count)
	}
}

// sessionHandler implementation.

func (srv *Server) onStatusReport(clientID string, report protocol.SlaveStatusReport) {
	srv.mu.Lock()
	srv.statuses[clientID] = models.SlaveStatus{
		ClientID:       clientID,
		IsSynced:       report.IsSynced,
		DesyncDetails:  report.DesyncDetails,
		LastReportTime: models.NowMillis(),
	}
	srv.mu.Unlock()

	srv.callbackMu.Lock()
	fn := srv.statusReportFn
	srv.callbackMu.Unlock()
	if fn != nil {
		fn(clientID, report)
	}
}

func (srv *Server) onSyncRequest(clientID string) {
	srv.callbackMu.Lock()
	fn := srv.syncRequestFn
	srv.callbackMu.Unlock()
	if fn != nil {
		fn(clientID)
	}
}

func (srv *Server) onSessionClosed(clientID string, reason string) {
	srv.mu.Lock()
	_, existed := srv.sessions[clientID]
	delete(srv.sessions, clientID)
	delete(srv.statuses, clientID)
	count := len(srv.sessions)
	srv.mu.Unlock()
	if !existed {
		return
	}
	metrics.ConnectedSlaves.Set(float64(count))
	srv.notifyCount(count)
	logging.Info().Str("client_id", clientID).Str("reason", reason).Msg("slave disconnected")
}
