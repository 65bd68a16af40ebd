// SceneMirror - OBS Studio LAN Scene Synchronization
// Copyright 2026 SceneMirror contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/scenemirror/scenemirror

// Package metrics instruments the sync engine for Prometheus and keeps the
// rolling in-process window the shell reads its performance panel from.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Sync traffic
	MessagesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scenemirror_messages_sent_total",
			Help: "Sync messages sent, by message kind",
		},
		[]string{"kind"},
	)

	MessagesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scenemirror_messages_received_total",
			Help: "Sync messages received, by message kind",
		},
		[]string{"kind"},
	)

	BytesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "scenemirror_bytes_sent_total",
			Help: "Total sync payload bytes sent",
		},
	)

	BytesReceived = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "scenemirror_bytes_received_total",
			Help: "Total sync payload bytes received",
		},
	)

	MessageLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "scenemirror_message_latency_seconds",
			Help:    "Sender-timestamp to local-receipt latency; clocks are unsynchronized so this is indicative only",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
	)

	// Master transport
	ConnectedSlaves = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "scenemirror_connected_slaves",
			Help: "Slave sessions currently connected to the master",
		},
	)

	QueueDrops = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scenemirror_queue_drops_total",
			Help: "Outbound messages dropped per session queue, by reason",
		},
		[]string{"reason"}, // "coalesced", "overflow"
	)

	SessionsClosed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scenemirror_sessions_closed_total",
			Help: "Slave sessions closed, by reason",
		},
		[]string{"reason"}, // "peer_gone", "overflow", "idle", "shutdown"
	)

	// Slave side
	ApplyFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scenemirror_apply_failures_total",
			Help: "Inbound sync messages that failed to apply, by message kind",
		},
		[]string{"kind"},
	)

	DriftDetails = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "scenemirror_drift_details",
			Help: "Desync details found in the most recent drift check",
		},
	)

	ReconnectAttempts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "scenemirror_reconnect_attempts_total",
			Help: "Reconnect attempts against the master",
		},
	)

	// OBS boundary
	OBSRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scenemirror_obs_request_duration_seconds",
			Help:    "Duration of obs-websocket requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"request_type"},
	)

	OBSRequestErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scenemirror_obs_request_errors_total",
			Help: "Failed obs-websocket requests",
		},
		[]string{"request_type"},
	)

	ImagesStaged = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "scenemirror_images_staged_total",
			Help: "Image payloads written to the staging directory",
		},
	)
)
