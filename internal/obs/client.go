// SceneMirror - OBS Studio LAN Scene Synchronization
// Copyright 2026 SceneMirror contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/scenemirror/scenemirror

// Package obs is a typed client for the obs-websocket v5 protocol
// (OBS Studio >= 28, default port 4455). It covers the request surface the
// sync engine needs plus an event subscription stream.
//
// Requests and responses interleave freely on the OBS socket; the client
// correlates them by request id, so callers may issue RPCs concurrently.
// Every RPC runs through a circuit breaker so a hung OBS instance fails
// fast instead of stacking up blocked callers.
package obs

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sony/gobreaker/v2"

	"github.com/scenemirror/scenemirror/internal/logging"
	"github.com/scenemirror/scenemirror/internal/models"
)

const (
	connectTimeout = 5 * time.Second
	requestTimeout = 10 * time.Second
	writeWait      = 10 * time.Second

	// eventBuffer absorbs bursts (drag-rate transform events) between the
	// read loop and the subscriber.
	eventBuffer = 256
)

// Client is a connection to one local OBS instance. The zero value is not
// usable; call NewClient.
type Client struct {
	mu      sync.Mutex
	conn    *websocket.Conn
	pending map[string]chan responseData
	events  chan Event
	done    chan struct{}
	status  models.OBSConnectionStatus

	// writeMu serializes frame writes; gorilla permits one writer at a time.
	writeMu sync.Mutex

	breaker *gobreaker.CircuitBreaker[json.RawMessage]
}

// NewClient creates a disconnected client.
func NewClient() *Client {
	settings := gobreaker.Settings{
		Name:    "obs-rpc",
		Timeout: 15 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}
	return &Client{
		pending: make(map[string]chan responseData),
		breaker: gobreaker.NewCircuitBreaker[json.RawMessage](settings),
	}
}

// Connect dials the obs-websocket server and performs the Hello/Identify
// handshake, authenticating when the server demands it.
func (c *Client) Connect(ctx context.Context, host string, port int, password string) error {
	c.mu.Lock()
	if c.conn != nil {
		c.mu.Unlock()
		return errors.New("obs client already connected")
	}
	c.mu.Unlock()

	url := fmt.Sprintf("ws://%s:%d", host, port)
	dialer := websocket.Dialer{HandshakeTimeout: connectTimeout}

	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return classifyDialError(url, err)
	}

	status, err := c.handshake(conn, password)
	if err != nil {
		_ = conn.Close()
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.status = status
	c.pending = make(map[string]chan responseData)
	c.events = make(chan Event, eventBuffer)
	c.done = make(chan struct{})
	c.mu.Unlock()

	go c.readLoop(conn)

	logging.Info().
		Str("url", url).
		Str("obs_version", status.OBSVersion).
		Str("ws_version", status.WSVersion).
		Msg("connected to obs")
	return nil
}

// handshake runs Hello -> Identify -> Identified on a fresh socket and
// returns the version info gathered along the way.
func (c *Client) handshake(conn *websocket.Conn, password string) (models.OBSConnectionStatus, error) {
	var status models.OBSConnectionStatus

	if err := conn.SetReadDeadline(time.Now().Add(connectTimeout)); err != nil {
		return status, fmt.Errorf("%w: %v", ErrProtocol, err)
	}

	var hello envelope
	if err := conn.ReadJSON(&hello); err != nil {
		return status, fmt.Errorf("%w: reading hello: %v", ErrProtocol, err)
	}
	if hello.Op != opHello {
		return status, fmt.Errorf("%w: expected hello, got op %d", ErrProtocol, hello.Op)
	}

	var helloPayload helloData
	if err := json.Unmarshal(hello.D, &helloPayload); err != nil {
		return status, fmt.Errorf("%w: hello payload: %v", ErrProtocol, err)
	}

	identify := identifyData{
		RPCVersion:         rpcVersion,
		EventSubscriptions: eventSubscriptions,
	}
	if helloPayload.Authentication != nil {
		if password == "" {
			return status, fmt.Errorf("%w: server requires a password", ErrAuth)
		}
		identify.Authentication = authResponse(password,
			helloPayload.Authentication.Salt, helloPayload.Authentication.Challenge)
	}

	identifyRaw, err := json.Marshal(identify)
	if err != nil {
		return status, fmt.Errorf("%w: %v", ErrProtocol, err)
	}
	if err := conn.WriteJSON(envelope{Op: opIdentify, D: identifyRaw}); err != nil {
		return status, fmt.Errorf("%w: sending identify: %v", ErrProtocol, err)
	}

	var identified envelope
	if err := conn.ReadJSON(&identified); err != nil {
		// obs-websocket closes with 4009 on a bad password.
		if websocket.IsCloseError(err, 4009) || strings.Contains(err.Error(), "4009") {
			return status, fmt.Errorf("%w: password rejected", ErrAuth)
		}
		return status, fmt.Errorf("%w: reading identified: %v", ErrProtocol, err)
	}
	if identified.Op != opIdentified {
		return status, fmt.Errorf("%w: expected identified, got op %d", ErrProtocol, identified.Op)
	}

	var identifiedPayload identifiedData
	if err := json.Unmarshal(identified.D, &identifiedPayload); err != nil {
		return status, fmt.Errorf("%w: identified payload: %v", ErrProtocol, err)
	}

	if err := conn.SetReadDeadline(time.Time{}); err != nil {
		return status, fmt.Errorf("%w: %v", ErrProtocol, err)
	}

	status.Connected = true
	status.WSVersion = helloPayload.OBSWebSocketVersion
	status.RPCVersion = identifiedPayload.NegotiatedRPCVersion
	return status, nil
}

// authResponse computes the obs-websocket challenge response:
// base64(sha256(base64(sha256(password+salt)) + challenge)).
func authResponse(password, salt, challenge string) string {
	secretHash := sha256.Sum256([]byte(password + salt))
	secret := base64.StdEncoding.EncodeToString(secretHash[:])
	responseHash := sha256.Sum256([]byte(secret + challenge))
	return base64.StdEncoding.EncodeToString(responseHash[:])
}

// classifyDialError maps dial failures onto the client's sentinels.
func classifyDialError(url string, err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: dialing %s: %v", ErrTimeout, url, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: dialing %s: %v", ErrTimeout, url, err)
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return fmt.Errorf("%w: dialing %s: %v", ErrConnectRefused, url, err)
	}
	return fmt.Errorf("%w: dialing %s: %v", ErrProtocol, url, err)
}

// readLoop dispatches inbound frames: responses to their waiting callers,
// events to the subscriber channel. It owns teardown on socket failure.
func (c *Client) readLoop(conn *websocket.Conn) {
	defer c.teardown(conn)

	for {
		var frame envelope
		if err := conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logging.Warn().Err(err).Msg("obs socket closed unexpectedly")
			}
			return
		}

		switch frame.Op {
		case opResponse:
			var resp responseData
			if err := json.Unmarshal(frame.D, &resp); err != nil {
				logging.Warn().Err(err).Msg("unparseable obs response frame")
				continue
			}
			c.deliverResponse(resp)

		case opEvent:
			var evt eventData
			if err := json.Unmarshal(frame.D, &evt); err != nil {
				logging.Warn().Err(err).Msg("unparseable obs event frame")
				continue
			}
			c.deliverEvent(evt)

		default:
			// Batches and unknown opcodes are ignored; this client never
			// issues op 8 requests.
		}
	}
}

func (c *Client) deliverResponse(resp responseData) {
	c.mu.Lock()
	ch, ok := c.pending[resp.RequestID]
	if ok {
		delete(c.pending, resp.RequestID)
	}
	c.mu.Unlock()
	if !ok {
		logging.Debug().Str("request_id", resp.RequestID).Msg("response for unknown request id")
		return
	}
	ch <- resp
}

func (c *Client) deliverEvent(evt eventData) {
	parsed, ok := parseEvent(evt)
	if !ok {
		return
	}
	c.mu.Lock()
	events := c.events
	c.mu.Unlock()
	if events == nil {
		return
	}
	select {
	case events <- parsed:
	default:
		// The subscriber is behind; dropping is safe because every event
		// class is either re-queried (transforms via the translator) or
		// superseded by the next occurrence.
		logging.Warn().Str("event", string(parsed.Type)).Msg("obs event buffer full, dropping event")
	}
}

// teardown closes the socket, fails all pending requests, and ends the
// event stream. Safe against concurrent Disconnect.
func (c *Client) teardown(conn *websocket.Conn) {
	_ = conn.Close()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != conn {
		return
	}
	c.conn = nil
	c.status = models.OBSConnectionStatus{}
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
	if c.events != nil {
		close(c.events)
		c.events = nil
	}
	if c.done != nil {
		close(c.done)
		c.done = nil
	}
}

// Disconnect closes the connection. Idempotent.
func (c *Client) Disconnect() {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	_ = conn.Close()
	// readLoop observes the close and runs teardown.
}

// Connected reports whether a live connection exists.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Events returns the event stream for the current connection. The channel
// closes when the connection does; it is not restartable, so take a fresh
// stream after reconnecting. Returns nil when disconnected.
func (c *Client) Events() <-chan Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.events
}

// Done returns a channel closed when the current connection ends. Returns
// a closed channel when already disconnected.
func (c *Client) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return c.done
}

// call issues one RPC and waits for its response through the breaker.
func (c *Client) call(ctx context.Context, requestType string, payload interface{}) (json.RawMessage, error) {
	return c.breaker.Execute(func() (json.RawMessage, error) {
		return c.callDirect(ctx, requestType, payload)
	})
}

func (c *Client) callDirect(ctx context.Context, requestType string, payload interface{}) (json.RawMessage, error) {
	c.mu.Lock()
	conn := c.conn
	if conn == nil {
		c.mu.Unlock()
		return nil, ErrNotConnected
	}
	id := uuid.NewString()
	ch := make(chan responseData, 1)
	c.pending[id] = ch
	c.mu.Unlock()

	req := requestData{RequestType: requestType, RequestID: id, RequestData: payload}
	raw, err := json.Marshal(req)
	if err != nil {
		c.abandon(id)
		return nil, fmt.Errorf("%w: %v", ErrProtocol, err)
	}

	c.writeMu.Lock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	err = conn.WriteJSON(envelope{Op: opRequest, D: raw})
	c.writeMu.Unlock()
	if err != nil {
		c.abandon(id)
		return nil, fmt.Errorf("%w: writing %s: %v", ErrNotConnected, requestType, err)
	}

	timer := time.NewTimer(requestTimeout)
	defer timer.Stop()

	select {
	case resp, ok := <-ch:
		if !ok {
			return nil, ErrNotConnected
		}
		if !resp.RequestStatus.Result {
			return nil, requestError(requestType, resp.RequestStatus.Code, resp.RequestStatus.Comment)
		}
		return resp.ResponseData, nil
	case <-timer.C:
		c.abandon(id)
		return nil, fmt.Errorf("%w: %s", ErrTimeout, requestType)
	case <-ctx.Done():
		c.abandon(id)
		return nil, ctx.Err()
	}
}

// abandon drops a pending request entry after a local failure.
func (c *Client) abandon(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

// requestError maps an OBS RequestStatus failure to a sentinel.
func requestError(requestType string, code int, comment string) error {
	if code == statusStudioModeNotActive {
		return fmt.Errorf("%w: %s: %s", ErrUnsupported, requestType, comment)
	}
	return fmt.Errorf("%w: %s: code %d: %s", ErrRequestFailed, requestType, code, comment)
}

// Status reports the connection state and the versions gathered during the
// handshake (obsVersion is filled by the GetVersion call on first use).
func (c *Client) Status(ctx context.Context) models.OBSConnectionStatus {
	c.mu.Lock()
	status := c.status
	connected := c.conn != nil
	c.mu.Unlock()
	if !connected {
		return models.OBSConnectionStatus{}
	}
	if status.OBSVersion == "" {
		if obsVersion, _, err := c.Version(ctx); err == nil {
			c.mu.Lock()
			c.status.OBSVersion = obsVersion
			status = c.status
			c.mu.Unlock()
		}
	}
	return status
}
