// SceneMirror - OBS Studio LAN Scene Synchronization
// Copyright 2026 SceneMirror contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/scenemirror/scenemirror

// Package models defines the core entities shared between the master and
// slave roles: scene-item transforms, filter specs, snapshots, session and
// status records, and alerts.
package models

import "time"

// AppMode selects the role of this instance.
type AppMode string

const (
	ModeMaster AppMode = "master"
	ModeSlave  AppMode = "slave"
)

// SyncTarget is one class of state the master propagates.
type SyncTarget string

const (
	TargetSource  SyncTarget = "source"
	TargetPreview SyncTarget = "preview"
	TargetProgram SyncTarget = "program"
)

// ValidTarget reports whether t is a known sync target.
func ValidTarget(t SyncTarget) bool {
	switch t {
	case TargetSource, TargetPreview, TargetProgram:
		return true
	}
	return false
}

// DefaultTargets is the target set active until the operator changes it.
func DefaultTargets() []SyncTarget {
	return []SyncTarget{TargetSource, TargetProgram}
}

// SceneItemRef identifies a placed source inside a scene. Scene-item ids are
// assigned by the local OBS instance and are not portable across instances;
// slaves re-resolve by (SceneName, SourceName) and use the local id.
type SceneItemRef struct {
	SceneName   string `json:"sceneName"`
	SceneItemID int64  `json:"sceneItemId"`
	SourceName  string `json:"sourceName"`
}

// Transform holds the geometric parameters of a scene item. All fields are
// pointers so that a partial update can carry only the fields that changed;
// merging a partial transform onto a full one overwrites the non-nil fields.
type Transform struct {
	PositionX       *float64 `json:"positionX,omitempty"`
	PositionY       *float64 `json:"positionY,omitempty"`
	Rotation        *float64 `json:"rotation,omitempty"`
	ScaleX          *float64 `json:"scaleX,omitempty"`
	ScaleY          *float64 `json:"scaleY,omitempty"`
	Width           *float64 `json:"width,omitempty"`
	Height          *float64 `json:"height,omitempty"`
	Alignment       *int     `json:"alignment,omitempty"`
	BoundsType      *string  `json:"boundsType,omitempty"`
	BoundsAlignment *int     `json:"boundsAlignment,omitempty"`
	BoundsWidth     *float64 `json:"boundsWidth,omitempty"`
	BoundsHeight    *float64 `json:"boundsHeight,omitempty"`
}

// Merge returns a copy of t with every non-nil field of update applied.
func (t Transform) Merge(update Transform) Transform {
	merged := t
	if update.PositionX != nil {
		merged.PositionX = update.PositionX
	}
	if update.PositionY != nil {
		merged.PositionY = update.PositionY
	}
	if update.Rotation != nil {
		merged.Rotation = update.Rotation
	}
	if update.ScaleX != nil {
		merged.ScaleX = update.ScaleX
	}
	if update.ScaleY != nil {
		merged.ScaleY = update.ScaleY
	}
	if update.Width != nil {
		merged.Width = update.Width
	}
	if update.Height != nil {
		merged.Height = update.Height
	}
	if update.Alignment != nil {
		merged.Alignment = update.Alignment
	}
	if update.BoundsType != nil {
		merged.BoundsType = update.BoundsType
	}
	if update.BoundsAlignment != nil {
		merged.BoundsAlignment = update.BoundsAlignment
	}
	if update.BoundsWidth != nil {
		merged.BoundsWidth = update.BoundsWidth
	}
	if update.BoundsHeight != nil {
		merged.BoundsHeight = update.BoundsHeight
	}
	return merged
}

// Float returns a pointer to v. Convenience for building transforms.
func Float(v float64) *float64 { return &v }

// Int returns a pointer to v.
func Int(v int) *int { return &v }

// Str returns a pointer to v.
func Str(v string) *string { return &v }

// Bool returns a pointer to v.
func Bool(v bool) *bool { return &v }

// FilterSpec describes one filter attached to a source. Settings is an
// opaque blob owned by the filter kind; it is forwarded, never interpreted.
type FilterSpec struct {
	Name     string                 `json:"name"`
	Enabled  bool                   `json:"enabled"`
	Settings map[string]interface{} `json:"settings,omitempty"`
}

// SceneItemSnapshot is one item inside a SceneSnapshot. ImageFile and
// ImageData are set only for image_* sources.
type SceneItemSnapshot struct {
	Ref        SceneItemRef `json:"ref"`
	SourceType string       `json:"sourceType"`
	Transform  Transform    `json:"transform"`
	Filters    []FilterSpec `json:"filters,omitempty"`
	ImageFile  string       `json:"imageFile,omitempty"`
	ImageData  string       `json:"imageData,omitempty"` // base64
}

// SceneSnapshot is the full captured state of one scene. Item order matches
// OBS enumeration order and snapshot apply iterates in this order.
type SceneSnapshot struct {
	Name  string              `json:"name"`
	Items []SceneItemSnapshot `json:"items"`
}

// ClientInfo describes one connected slave session on the master.
type ClientInfo struct {
	ID           string `json:"id"`
	IPAddress    string `json:"ipAddress"`
	ConnectedAt  int64  `json:"connectedAt"`  // ms epoch
	LastActivity int64  `json:"lastActivity"` // ms epoch
}

// DesyncDetail is one observed disagreement between a slave's local OBS
// state and the state the master intended.
type DesyncDetail struct {
	Category    string `json:"category"`
	SceneName   string `json:"sceneName"`
	SourceName  string `json:"sourceName"`
	Description string `json:"description"`
	Severity    string `json:"severity"`
}

// SlaveStatus is the last sync report received from one slave.
type SlaveStatus struct {
	ClientID       string         `json:"clientId"`
	IsSynced       bool           `json:"isSynced"`
	DesyncDetails  []DesyncDetail `json:"desyncDetails"`
	LastReportTime int64          `json:"lastReportTime"` // ms epoch
}

// AlertSeverity grades a desync alert.
type AlertSeverity string

const (
	SeverityWarning  AlertSeverity = "warning"
	SeverityCritical AlertSeverity = "critical"
)

// DesyncAlert is delivered to the shell when drift is detected or an apply
// fails persistently.
type DesyncAlert struct {
	ID         string        `json:"id"`
	Timestamp  int64         `json:"timestamp"` // ms epoch
	SceneName  string        `json:"sceneName"`
	SourceName string        `json:"sourceName"`
	Message    string        `json:"message"`
	Severity   AlertSeverity `json:"severity"`
}

// ReconnectionStatus reports the slave transport's reconnect progress.
type ReconnectionStatus struct {
	IsReconnecting bool   `json:"isReconnecting"`
	AttemptCount   uint32 `json:"attemptCount"`
	MaxAttempts    uint32 `json:"maxAttempts"`
	LastError      string `json:"lastError,omitempty"`
}

// OBSConnectionStatus reports the local OBS client connection.
type OBSConnectionStatus struct {
	Connected  bool   `json:"connected"`
	OBSVersion string `json:"obsVersion,omitempty"`
	WSVersion  string `json:"wsVersion,omitempty"`
	RPCVersion int    `json:"rpcVersion,omitempty"`
}

// OBSSource is one input as listed for the shell's source picker.
type OBSSource struct {
	Name string `json:"name"`
	Kind string `json:"kind"`
}

// PerfMetrics aggregates the rolling metrics window. Latency is computed
// from sender timestamps against the local clock; the two clocks are not
// synchronized, so the value is indicative only.
type PerfMetrics struct {
	AverageLatencyMs float64 `json:"averageLatencyMs"`
	TotalMessages    int     `json:"totalMessages"`
	MessagesPerSec   float64 `json:"messagesPerSec"`
	TotalBytes       int64   `json:"totalBytes"`
}

// DiscoveredMaster is one master instance found via LAN discovery.
type DiscoveredMaster struct {
	Instance string `json:"instance"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
}

// NowMillis returns the current wall clock in milliseconds since the epoch,
// the timestamp unit used throughout the wire protocol.
func NowMillis() int64 {
	return time.Now().UnixMilli()
}
