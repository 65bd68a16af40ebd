// SceneMirror - OBS Studio LAN Scene Synchronization
// Copyright 2026 SceneMirror contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/scenemirror/scenemirror

package engine

import "sync"

// Event names delivered to the shell over the event stream.
const (
	EventSlaveConnectionStatus = "slave-connection-status"
	EventDesyncAlert           = "desync-alert"
)

// Event is one notification pushed to the shell.
type Event struct {
	Name    string      `json:"name"`
	Payload interface{} `json:"payload"`
}

// broker fans events out to any number of shell subscribers. A slow
// subscriber loses events rather than blocking the publisher.
type broker struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]chan Event
}

func newBroker() *broker {
	return &broker{subs: make(map[int]chan Event)}
}

// Subscribe returns a channel of events and a cancel function that must be
// called when the subscriber goes away.
func (b *broker) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	ch := make(chan Event, 16)
	b.subs[id] = ch
	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
}

// Publish delivers evt to every subscriber without blocking.
func (b *broker) Publish(evt Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- evt:
		default:
		}
	}
}
