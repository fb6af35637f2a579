package models

import "encoding/json"

// PushRequest is the body of POST /sync.
type PushRequest struct {
	Key       string          `json:"key"`
	Action    Action          `json:"action"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"timestamp"`
	ClientID  string          `json:"clientId"`
}

// PushResponse is the response of POST /sync.
type PushResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// RemoteUpdate is a single record returned by GET /sync/updates.
// Type names the logical key (or domain tag) the update applies to.
type RemoteUpdate struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"` // epoch millis
}
