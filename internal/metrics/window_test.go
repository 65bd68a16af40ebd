// SceneMirror - OBS Studio LAN Scene Synchronization
// Copyright 2026 SceneMirror contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/scenemirror/scenemirror

package metrics

import (
	"sync"
	"testing"
)

func TestWindowEmptySnapshot(t *testing.T) {
	w := NewWindow()
	snap := w.Snapshot()
	if snap.TotalMessages != 0 || snap.TotalBytes != 0 {
		t.Errorf("empty window snapshot = %+v", snap)
	}
	if snap.AverageLatencyMs != 0 || snap.MessagesPerSec != 0 {
		t.Errorf("empty window rates = %+v", snap)
	}
}

func TestWindowAverages(t *testing.T) {
	w := NewWindow()
	w.Record("transform_update", 10, 100)
	w.Record("transform_update", 20, 100)
	w.Record("heartbeat", 30, 2)

	snap := w.Snapshot()
	if snap.TotalMessages != 3 {
		t.Errorf("totalMessages = %d", snap.TotalMessages)
	}
	if snap.TotalBytes != 202 {
		t.Errorf("totalBytes = %d", snap.TotalBytes)
	}
	if snap.AverageLatencyMs != 20 {
		t.Errorf("averageLatencyMs = %v, want 20", snap.AverageLatencyMs)
	}
	if snap.MessagesPerSec <= 0 {
		t.Errorf("messagesPerSec = %v", snap.MessagesPerSec)
	}
}

func TestWindowEvictsButKeepsTotals(t *testing.T) {
	w := NewWindow()
	for i := 0; i < windowSize+100; i++ {
		w.Record("scene_change", 1, 1)
	}
	snap := w.Snapshot()
	if snap.TotalMessages != windowSize+100 {
		t.Errorf("totalMessages = %d, want %d", snap.TotalMessages, windowSize+100)
	}
	if snap.TotalBytes != int64(windowSize+100) {
		t.Errorf("totalBytes = %d", snap.TotalBytes)
	}
}

func TestWindowReset(t *testing.T) {
	w := NewWindow()
	w.Record("heartbeat", 5, 2)
	w.Reset()
	snap := w.Snapshot()
	if snap.TotalMessages != 0 || snap.AverageLatencyMs != 0 {
		t.Errorf("snapshot after reset = %+v", snap)
	}
}

func TestWindowConcurrentRecord(t *testing.T) {
	w := NewWindow()
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				w.Record("transform_update", 1, 10)
			}
		}()
	}
	wg.Wait()
	if snap := w.Snapshot(); snap.TotalMessages != 1600 {
		t.Errorf("totalMessages = %d, want 1600", snap.TotalMessages)
	}
}
