// SceneMirror - OBS Studio LAN Scene Synchronization
// Copyright 2026 SceneMirror contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/scenemirror/scenemirror

package obs

import "github.com/goccy/go-json"

// obs-websocket v5 opcodes. Only the subset this client speaks.
const (
	opHello        = 0
	opIdentify     = 1
	opIdentified   = 2
	opEvent        = 5
	opRequest      = 6
	opResponse     = 7
	opRequestBatch = 8
)

// rpcVersion is the obs-websocket RPC version this client negotiates.
const rpcVersion = 1

// eventSubscriptions is the EventSubscription bitmask sent in Identify:
// General | Scenes | Inputs | Filters | SceneItems.
const eventSubscriptions = 1<<0 | 1<<2 | 1<<3 | 1<<5 | 1<<7

// envelope is the outer obs-websocket frame.
type envelope struct {
	Op int             `json:"op"`
	D  json.RawMessage `json:"d"`
}

// helloData is the server's op 0 payload.
type helloData struct {
	OBSWebSocketVersion string `json:"obsWebSocketVersion"`
	RPCVersion          int    `json:"rpcVersion"`
	Authentication      *struct {
		Challenge string `json:"challenge"`
		Salt      string `json:"salt"`
	} `json:"authentication,omitempty"`
}

// identifyData is the client's op 1 payload.
type identifyData struct {
	RPCVersion         int    `json:"rpcVersion"`
	Authentication     string `json:"authentication,omitempty"`
	EventSubscriptions int    `json:"eventSubscriptions"`
}

// identifiedData is the server's op 2 payload.
type identifiedData struct {
	NegotiatedRPCVersion int `json:"negotiatedRpcVersion"`
}

// requestData is the client's op 6 payload.
type requestData struct {
	RequestType string      `json:"requestType"`
	RequestID   string      `json:"requestId"`
	RequestData interface{} `json:"requestData,omitempty"`
}

// responseData is the server's op 7 payload.
type responseData struct {
	RequestType   string `json:"requestType"`
	RequestID     string `json:"requestId"`
	RequestStatus struct {
		Result  bool   `json:"result"`
		Code    int    `json:"code"`
		Comment string `json:"comment,omitempty"`
	} `json:"requestStatus"`
	ResponseData json.RawMessage `json:"responseData,omitempty"`
}

// eventData is the server's op 5 payload.
type eventData struct {
	EventType   string          `json:"eventType"`
	EventIntent int             `json:"eventIntent"`
	EventData   json.RawMessage `json:"eventData,omitempty"`
}

// obs-websocket RequestStatus codes this client gives dedicated handling.
const (
	statusStudioModeNotActive = 506
)
