// SceneMirror - OBS Studio LAN Scene Synchronization
// Copyright 2026 SceneMirror contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/scenemirror/scenemirror

package master

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/scenemirror/scenemirror/internal/logging"
	"github.com/scenemirror/scenemirror/internal/metrics"
	"github.com/scenemirror/scenemirror/internal/models"
	"github.com/scenemirror/scenemirror/internal/protocol"
)

const (
	queueCapacity = 256
	writeWait     = 10 * time.Second

	// drainGrace is how long the queue head may sit unsent before the
	// session counts as stalled.
	drainGrace = 15 * time.Second

	// idleTimeout closes a session whose peer sent nothing at all.
	idleTimeout = 30 * time.Second

	// maxOverflowStrikes closes a session that keeps overflowing with
	// nothing droppable in its queue.
	maxOverflowStrikes = 3

	maxInboundFrame = 1 << 20 // 1 MiB; status reports and requests are tiny
)

// queued is one slot in a session's outbound queue. coalesceKey is non-empty
// only for transform updates; a newer update with the same key replaces the
// payload in place, keeping the slot's position.
type queued struct {
	msg         protocol.Message
	coalesceKey string
	at          time.Time
}

// sessionHandler receives a session's inbound traffic and lifecycle.
type sessionHandler interface {
	onStatusReport(clientID string, report protocol.SlaveStatusReport)
	onSyncRequest(clientID string)
	onSessionClosed(clientID string, reason string)
}

// session is one connected slave: a bounded outbound queue drained by a
// sender goroutine, and a reader goroutine handling the slave's few inbound
// kinds. A slow session only ever loses its own messages.
type session struct {
	id          string
	remoteAddr  string
	connectedAt int64

	conn    *websocket.Conn
	handler sessionHandler

	lastActivity atomic.Int64

	mu        sync.Mutex
	queue     []queued
	headSince time.Time
	strikes   int
	closed    bool

	notify chan struct{}
	done   chan struct{}

	closeOnce sync.Once
}

func newSession(id string, conn *websocket.Conn, handler sessionHandler) *session {
	s := &session{
		id:          id,
		remoteAddr:  conn.RemoteAddr().String(),
		connectedAt: models.NowMillis(),
		conn:        conn,
		handler:     handler,
		notify:      make(chan struct{}, 1),
		done:        make(chan struct{}),
	}
	s.lastActivity.Store(s.connectedAt)
	return s
}

func (s *session) info() models.ClientInfo {
	return models.ClientInfo{
		ID:           s.id,
		IPAddress:    s.remoteAddr,
		ConnectedAt:  s.connectedAt,
		LastActivity: s.lastActivity.Load(),
	}
}

// enqueue appends a message for this session. Reports false when the
// session is closed or the message was dropped on overflow.
func (s *session) enqueue(msg protocol.Message, coalesceKey string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}

	if coalesceKey != "" {
		for i := range s.queue {
			if s.queue[i].coalesceKey == coalesceKey {
				s.queue[i].msg = msg
				metrics.QueueDrops.WithLabelValues("coalesced").Inc()
				return true
			}
		}
	}

	if len(s.queue) >= queueCapacity {
		if !s.dropOldestDroppableLocked() {
			s.strikes++
			metrics.QueueDrops.WithLabelValues("overflow").Inc()
			logging.Warn().
				Str("client_id", s.id).
				Int("strikes", s.strikes).
				Msg("session queue full with nothing droppable")
			if s.strikes >= maxOverflowStrikes {
				go s.close("overflow")
			}
			return false
		}
	}

	if len(s.queue) == 0 {
		s.headSince = time.Now()
	}
	s.queue = append(s.queue, queued{msg: msg, coalesceKey: coalesceKey, at: time.Now()})

	select {
	case s.notify <- struct{}{}:
	default:
	}
	return true
}

// dropOldestDroppableLocked evicts the oldest queue entry that may be lost:
// transforms coalesce, heartbeats are periodic anyway. Scene, filter, image,
// and snapshot messages are never dropped. Caller holds s.mu.
func (s *session) dropOldestDroppableLocked() bool {
	for i := range s.queue {
		kind := s.queue[i].msg.Type
		if s.queue[i].coalesceKey != "" || kind == protocol.KindHeartbeat {
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			metrics.QueueDrops.WithLabelValues("overflow").Inc()
			if i == 0 && len(s.queue) > 0 {
				s.headSince = time.Now()
			}
			return true
		}
	}
	return false
}

// stalled reports whether the queue head has been stuck past the grace
// period. Checked by the server's heartbeat tick.
func (s *session) stalled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue) > 0 && time.Since(s.headSince) > drainGrace
}

func (s *session) queueLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// sendLoop drains the queue to the socket in order.
func (s *session) sendLoop() {
	for {
		select {
		case <-s.done:
			return
		case <-s.notify:
		}

		for {
			s.mu.Lock()
			if len(s.queue) == 0 {
				s.strikes = 0
				s.mu.Unlock()
				break
			}
			entry := s.queue[0]
			s.queue = s.queue[1:]
			s.headSince = time.Now()
			s.mu.Unlock()

			data, err := protocol.Encode(entry.msg)
			if err != nil {
				logging.Error().Err(err).Str("client_id", s.id).Msg("unencodable sync message")
				continue
			}
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				logging.Debug().Err(err).Str("client_id", s.id).Msg("session write failed")
				s.close("peer_gone")
				return
			}
			metrics.MessagesSent.WithLabelValues(string(entry.msg.Type)).Inc()
			metrics.BytesSent.Add(float64(len(data)))
		}
	}
}

// readLoop consumes inbound frames. Slaves send little: heartbeats, status
// reports, snapshot requests. Anything the peer sends counts as liveness.
func (s *session) readLoop() {
	defer s.close("peer_gone")

	s.conn.SetReadLimit(maxInboundFrame)
	_ = s.conn.SetReadDeadline(time.Now().Add(idleTimeout))
	s.conn.SetPongHandler(func(string) error {
		s.lastActivity.Store(models.NowMillis())
		return s.conn.SetReadDeadline(time.Now().Add(idleTimeout))
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logging.Debug().Err(err).Str("client_id", s.id).Msg("session read failed")
			}
			return
		}
		s.lastActivity.Store(models.NowMillis())
		_ = s.conn.SetReadDeadline(time.Now().Add(idleTimeout))

		msg, err := protocol.Decode(data)
		if err != nil {
			logging.Warn().Err(err).Str("client_id", s.id).Msg("malformed inbound frame")
			continue
		}
		metrics.MessagesReceived.WithLabelValues(string(msg.Type)).Inc()
		metrics.BytesReceived.Add(float64(len(data)))

		switch msg.Type {
		case protocol.KindHeartbeat:
			// Liveness only.
		case protocol.KindSlaveStatusReport:
			report, err := protocol.DecodeSlaveStatusReport(msg)
			if err != nil {
				logging.Warn().Err(err).Str("client_id", s.id).Msg("bad status report")
				continue
			}
			s.handler.onStatusReport(s.id, report)
		case protocol.KindStateSyncRequest:
			s.handler.onSyncRequest(s.id)
		default:
			logging.Debug().
				Str("client_id", s.id).
				Str("kind", string(msg.Type)).
				Msg("unexpected inbound kind from slave")
		}
	}
}

// close tears the session down once; reason feeds metrics and the registry.
func (s *session) close(reason string) {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.queue = nil
		s.mu.Unlock()
		close(s.done)

		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		_ = s.conn.Close()

		metrics.SessionsClosed.WithLabelValues(reason).Inc()
		s.handler.onSessionClosed(s.id, reason)
	})
}
