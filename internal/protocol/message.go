// SceneMirror - OBS Studio LAN Scene Synchronization
// Copyright 2026 SceneMirror contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/scenemirror/scenemirror

// Package protocol defines the master/slave wire protocol: the sync message
// envelope, typed payloads, and the Base64 framing of image bytes.
//
// Messages travel as JSON over WebSocket text frames. Every message shares
// the same envelope:
//
//	{"type": ..., "timestamp": <ms-epoch>, "targetType": ..., "payload": {...}}
package protocol

import (
	"fmt"

	"github.com/goccy/go-json"

	"github.com/scenemirror/scenemirror/internal/models"
)

// Kind identifies a sync message type.
type Kind string

// Message kinds. The set is closed; unknown kinds are rejected on decode.
const (
	KindSourceUpdate      Kind = "source_update"
	KindTransformUpdate   Kind = "transform_update"
	KindSceneChange       Kind = "scene_change"
	KindFilterUpdate      Kind = "filter_update"
	KindImageUpdate       Kind = "image_update"
	KindStateSync         Kind = "state_sync"
	KindStateSyncRequest  Kind = "state_sync_request"
	KindHeartbeat         Kind = "heartbeat"
	KindSlaveStatusReport Kind = "slave_status_report"
)

// knownKinds gates decode; a message with any other type is malformed.
var knownKinds = map[Kind]struct{}{
	KindSourceUpdate:      {},
	KindTransformUpdate:   {},
	KindSceneChange:       {},
	KindFilterUpdate:      {},
	KindImageUpdate:       {},
	KindStateSync:         {},
	KindStateSyncRequest:  {},
	KindHeartbeat:         {},
	KindSlaveStatusReport: {},
}

// Message is the sync message envelope.
type Message struct {
	Type       Kind              `json:"type"`
	Timestamp  int64             `json:"timestamp"` // ms epoch, sender clock
	TargetType models.SyncTarget `json:"targetType"`
	Payload    json.RawMessage   `json:"payload"`
}

// New builds a message of the given kind, stamping the sender clock.
func New(kind Kind, target models.SyncTarget, payload interface{}) (Message, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("encode %s payload: %w", kind, err)
	}
	return Message{
		Type:       kind,
		Timestamp:  models.NowMillis(),
		TargetType: target,
		Payload:    raw,
	}, nil
}

// MustNew is New for payloads that cannot fail to marshal (struct literals
// built by this package's callers). It panics on error.
func MustNew(kind Kind, target models.SyncTarget, payload interface{}) Message {
	msg, err := New(kind, target, payload)
	if err != nil {
		panic(err)
	}
	return msg
}

// Heartbeat builds an empty heartbeat message.
func Heartbeat() Message {
	return MustNew(KindHeartbeat, models.TargetProgram, struct{}{})
}

// StateSyncRequest builds the empty snapshot request a slave sends after
// connecting or on operator-triggered resync.
func StateSyncRequest() Message {
	return MustNew(KindStateSyncRequest, models.TargetProgram, struct{}{})
}

// Encode serializes a message for a WebSocket text frame.
func Encode(msg Message) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode sync message: %w", err)
	}
	return data, nil
}

// Decode parses and validates a message envelope. The payload stays raw;
// callers pick the typed payload with the Decode* helpers.
func Decode(data []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if _, ok := knownKinds[msg.Type]; !ok {
		return Message{}, fmt.Errorf("%w: unknown message type %q", ErrMalformedPayload, msg.Type)
	}
	if msg.TargetType != "" && !models.ValidTarget(msg.TargetType) {
		return Message{}, fmt.Errorf("%w: unknown target type %q", ErrMalformedPayload, msg.TargetType)
	}
	return msg, nil
}

// decodeInto unmarshals a payload, mapping failures to ErrMalformedPayload.
func decodeInto(msg Message, kind Kind, v interface{}) error {
	if msg.Type != kind {
		return fmt.Errorf("%w: expected %s, got %s", ErrMalformedPayload, kind, msg.Type)
	}
	if err := json.Unmarshal(msg.Payload, v); err != nil {
		return fmt.Errorf("%w: %s payload: %v", ErrMalformedPayload, kind, err)
	}
	return nil
}
