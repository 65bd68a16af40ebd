// SceneMirror - OBS Studio LAN Scene Synchronization
// Copyright 2026 SceneMirror contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/scenemirror/scenemirror

package metrics

import (
	"sync"
	"time"

	"github.com/scenemirror/scenemirror/internal/models"
)

// windowSize bounds the rolling sample ring.
const windowSize = 512

// Sample is one recorded message observation.
type Sample struct {
	At        time.Time
	Kind      string
	LatencyMs float64
	Bytes     int
}

// Window is a fixed-size ring of recent message samples. It aggregates to
// the PerfMetrics the shell displays. Safe for concurrent use; the
// expected pattern is one writer per role plus occasional readers.
type Window struct {
	mu      sync.Mutex
	samples [windowSize]Sample
	next    int
	filled  int

	totalMessages int
	totalBytes    int64
}

// NewWindow returns an empty rolling window.
func NewWindow() *Window {
	return &Window{}
}

// Record adds one sample, evicting the oldest when the ring is full.
func (w *Window) Record(kind string, latencyMs float64, bytes int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.samples[w.next] = Sample{At: time.Now(), Kind: kind, LatencyMs: latencyMs, Bytes: bytes}
	w.next = (w.next + 1) % windowSize
	if w.filled < windowSize {
		w.filled++
	}
	w.totalMessages++
	w.totalBytes += int64(bytes)
}

// Snapshot aggregates the current window.
func (w *Window) Snapshot() models.PerfMetrics {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := models.PerfMetrics{
		TotalMessages: w.totalMessages,
		TotalBytes:    w.totalBytes,
	}
	if w.filled == 0 {
		return out
	}

	var latencySum float64
	oldest := time.Now()
	newest := time.Time{}
	for i := 0; i < w.filled; i++ {
		s := w.sampleAt(i)
		latencySum += s.LatencyMs
		if s.At.Before(oldest) {
			oldest = s.At
		}
		if s.At.After(newest) {
			newest = s.At
		}
	}
	out.AverageLatencyMs = latencySum / float64(w.filled)

	span := newest.Sub(oldest).Seconds()
	if span > 0 {
		out.MessagesPerSec = float64(w.filled) / span
	} else {
		out.MessagesPerSec = float64(w.filled)
	}
	return out
}

// Reset clears the window and the running totals.
func (w *Window) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.next = 0
	w.filled = 0
	w.totalMessages = 0
	w.totalBytes = 0
}

// sampleAt indexes the ring from its logical start. Caller holds w.mu.
func (w *Window) sampleAt(i int) Sample {
	if w.filled < windowSize {
		return w.samples[i]
	}
	return w.samples[(w.next+i)%windowSize]
}
