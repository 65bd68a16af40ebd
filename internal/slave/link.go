// SceneMirror - OBS Studio LAN Scene Synchronization
// Copyright 2026 SceneMirror contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/scenemirror/scenemirror

package slave

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"

	"github.com/scenemirror/scenemirror/internal/logging"
	"github.com/scenemirror/scenemirror/internal/metrics"
	"github.com/scenemirror/scenemirror/internal/models"
	"github.com/scenemirror/scenemirror/internal/protocol"
)

// ConnState is the slave transport's connection state.
type ConnState string

const (
	StateDisconnected ConnState = "disconnected"
	StateConnecting   ConnState = "connecting"
	StateConnected    ConnState = "connected"
	StateReconnecting ConnState = "reconnecting"
)

const (
	dialTimeout          = 5 * time.Second
	linkWriteWait        = 10 * time.Second
	maxReconnectAttempts = 10
	maxReconnectDelay    = 30 * time.Second

	// syncRequestDelay lets master-side session bookkeeping settle before
	// the snapshot request arrives.
	syncRequestDelay = 500 * time.Millisecond

	slaveHeartbeatInterval = 5 * time.Second

	outboundBuffer = 64
)

// Link is the slave's single upstream connection to a master. Inbound
// messages are handed to apply in strict arrival order; a lost connection
// triggers exponential-backoff reconnects while the operator still wants
// connectivity.
type Link struct {
	apply    func(protocol.Message)
	statusFn func(connected bool)
	window   *metrics.Window

	mu            sync.Mutex
	state         ConnState
	conn          *websocket.Conn
	host          string
	port          int
	wantConnected bool
	recon         models.ReconnectionStatus
	cancelRetry   context.CancelFunc

	outbound chan protocol.Message
	connDone chan struct{}

	// Reconnect delay schedule. Tests shorten these.
	retryInitialInterval time.Duration
	retryMaxInterval     time.Duration

	writeMu sync.Mutex
}

// NewLink creates a disconnected link. apply receives every inbound
// message; statusFn (may be nil) sees connectivity transitions.
func NewLink(apply func(protocol.Message), statusFn func(bool), window *metrics.Window) *Link {
	return &Link{
		apply:                apply,
		statusFn:             statusFn,
		window:               window,
		state:                StateDisconnected,
		recon:                models.ReconnectionStatus{MaxAttempts: maxReconnectAttempts},
		retryInitialInterval: time.Second,
		retryMaxInterval:     maxReconnectDelay,
	}
}

// Connect dials the master. On dial failure the reconnect supervisor takes
// over in the background and the dial error is returned for the operator.
func (l *Link) Connect(host string, port int) error {
	l.mu.Lock()
	if l.state == StateConnected || l.state == StateConnecting {
		l.mu.Unlock()
		return fmt.Errorf("already connected to %s:%d", l.host, l.port)
	}
	l.host = host
	l.port = port
	l.wantConnected = true
	l.state = StateConnecting
	l.mu.Unlock()

	if err := l.dial(); err != nil {
		l.startReconnect()
		return err
	}
	return nil
}

// Disconnect tears the link down and cancels any pending reconnect.
// Idempotent.
func (l *Link) Disconnect() {
	l.mu.Lock()
	l.wantConnected = false
	if l.cancelRetry != nil {
		l.cancelRetry()
		l.cancelRetry = nil
	}
	conn := l.conn
	l.conn = nil
	l.state = StateDisconnected
	l.recon = models.ReconnectionStatus{MaxAttempts: maxReconnectAttempts}
	l.mu.Unlock()

	if conn != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		_ = conn.Close()
	}
	l.notifyStatus(false)
}

// Send queues a message for the master, typically a slave_status_report.
func (l *Link) Send(msg protocol.Message) error {
	l.mu.Lock()
	outbound := l.outbound
	connected := l.state == StateConnected
	l.mu.Unlock()
	if !connected || outbound == nil {
		return fmt.Errorf("not connected to master")
	}
	select {
	case outbound <- msg:
		return nil
	default:
		return fmt.Errorf("outbound queue full")
	}
}

// RequestSync asks the master for a full snapshot immediately.
func (l *Link) RequestSync() error {
	return l.Send(protocol.StateSyncRequest())
}

// State returns the connection state.
func (l *Link) State() ConnState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Connected reports whether the link is up.
func (l *Link) Connected() bool {
	return l.State() == StateConnected
}

// ReconnectionStatus reports reconnect progress for the shell.
func (l *Link) ReconnectionStatus() models.ReconnectionStatus {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.recon
}

// dial makes one connection attempt and, on success, installs the
// connection and starts its pumps.
func (l *Link) dial() error {
	l.mu.Lock()
	url := fmt.Sprintf("ws://%s:%d/", l.host, l.port)
	l.mu.Unlock()

	dialer := websocket.Dialer{HandshakeTimeout: dialTimeout}
	conn, _, err := dialer.Dial(url, nil)
	if err != nil {
		l.mu.Lock()
		l.recon.LastError = err.Error()
		l.mu.Unlock()
		return err
	}

	l.mu.Lock()
	if !l.wantConnected || l.conn != nil {
		l.mu.Unlock()
		_ = conn.Close()
		return nil
	}
	l.conn = conn
	l.state = StateConnected
	l.recon = models.ReconnectionStatus{MaxAttempts: maxReconnectAttempts}
	l.outbound = make(chan protocol.Message, outboundBuffer)
	l.connDone = make(chan struct{})
	outbound, done := l.outbound, l.connDone
	l.mu.Unlock()

	go l.readLoop(conn)
	go l.sendLoop(conn, outbound, done)
	go l.requestInitialSync(done)

	logging.Info().Str("url", url).Msg("connected to master")
	l.notifyStatus(true)
	return nil
}

// requestInitialSync sends state_sync_request shortly after connecting.
func (l *Link) requestInitialSync(done <-chan struct{}) {
	timer := time.NewTimer(syncRequestDelay)
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C:
		if err := l.RequestSync(); err != nil {
			logging.Warn().Err(err).Msg("initial state sync request not sent")
		}
	}
}

func (l *Link) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			l.onConnLost(conn, err)
			return
		}

		msg, err := protocol.Decode(data)
		if err != nil {
			logging.Warn().Err(err).Msg("malformed message from master")
			continue
		}

		metrics.MessagesReceived.WithLabelValues(string(msg.Type)).Inc()
		metrics.BytesReceived.Add(float64(len(data)))
		if l.window != nil {
			latency := float64(models.NowMillis() - msg.Timestamp)
			if latency < 0 {
				latency = 0
			}
			l.window.Record(string(msg.Type), latency, len(data))
			metrics.MessageLatency.Observe(latency / 1000)
		}

		// Applied inline so messages keep their arrival order.
		l.apply(msg)
	}
}

func (l *Link) sendLoop(conn *websocket.Conn, outbound <-chan protocol.Message, done <-chan struct{}) {
	ticker := time.NewTicker(slaveHeartbeatInterval)
	defer ticker.Stop()
	for {
		var msg protocol.Message
		select {
		case <-done:
			return
		case msg = <-outbound:
		case <-ticker.C:
			msg = protocol.Heartbeat()
		}

		data, err := protocol.Encode(msg)
		if err != nil {
			logging.Error().Err(err).Msg("unencodable outbound message")
			continue
		}
		l.writeMu.Lock()
		_ = conn.SetWriteDeadline(time.Now().Add(linkWriteWait))
		err = conn.WriteMessage(websocket.TextMessage, data)
		l.writeMu.Unlock()
		if err != nil {
			logging.Debug().Err(err).Msg("write to master failed")
			return
		}
		metrics.MessagesSent.WithLabelValues(string(msg.Type)).Inc()
		metrics.BytesSent.Add(float64(len(data)))
	}
}

// onConnLost handles an involuntary connection loss: clean up this
// connection and, if the operator still wants connectivity, start the
// reconnect supervisor.
func (l *Link) onConnLost(conn *websocket.Conn, cause error) {
	_ = conn.Close()

	l.mu.Lock()
	if l.conn != conn {
		// Already replaced or torn down by Disconnect.
		l.mu.Unlock()
		return
	}
	l.conn = nil
	close(l.connDone)
	l.connDone = nil
	l.outbound = nil
	want := l.wantConnected
	if want {
		l.state = StateReconnecting
		l.recon.IsReconnecting = true
		l.recon.LastError = cause.Error()
	} else {
		l.state = StateDisconnected
	}
	l.mu.Unlock()

	logging.Warn().Err(cause).Msg("connection to master lost")
	l.notifyStatus(false)

	if want {
		l.startReconnect()
	}
}

// startReconnect runs the backoff dial loop: attempt n fires after a delay
// of min(2^(n-1), 30) s, and the loop gives up after the attempt cap. The
// delay always precedes the dial, so a master that just vanished is never
// redialed back-to-back.
func (l *Link) startReconnect() {
	ctx, cancel := context.WithCancel(context.Background())

	l.mu.Lock()
	if !l.wantConnected || l.cancelRetry != nil {
		l.mu.Unlock()
		cancel()
		return
	}
	l.cancelRetry = cancel
	l.state = StateReconnecting
	l.recon.IsReconnecting = true
	l.recon.AttemptCount = 0
	l.mu.Unlock()

	go func() {
		defer func() {
			l.mu.Lock()
			if l.cancelRetry != nil {
				l.cancelRetry()
				l.cancelRetry = nil
			}
			l.mu.Unlock()
		}()

		policy := backoff.NewExponentialBackOff()
		policy.InitialInterval = l.retryInitialInterval
		policy.Multiplier = 2
		policy.RandomizationFactor = 0
		policy.MaxInterval = l.retryMaxInterval
		policy.MaxElapsedTime = 0

		var lastErr error
		for attempt := uint32(1); attempt <= maxReconnectAttempts; attempt++ {
			timer := time.NewTimer(policy.NextBackOff())
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}

			l.mu.Lock()
			l.recon.AttemptCount = attempt
			l.mu.Unlock()
			metrics.ReconnectAttempts.Inc()
			logging.Info().Uint32("attempt", attempt).Msg("reconnecting to master")

			err := l.dial()
			if err == nil {
				return
			}
			lastErr = err
			if ctx.Err() != nil {
				return
			}
		}

		l.mu.Lock()
		l.state = StateDisconnected
		l.recon.IsReconnecting = false
		if lastErr != nil {
			l.recon.LastError = lastErr.Error()
		}
		l.mu.Unlock()
		logging.Error().Err(lastErr).Msg("reconnect attempts exhausted")
	}()
}

func (l *Link) notifyStatus(connected bool) {
	if l.statusFn != nil {
		l.statusFn(connected)
	}
}
