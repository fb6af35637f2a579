// Package models provides data model definitions for the sync core.
package models

import "encoding/json"

// StoredRecord is the unit of persisted domain data in the local store.
// Exactly one record exists per key; writes overwrite in place.
type StoredRecord struct {
	Key        string          `json:"key"`
	Value      json.RawMessage `json:"value"`
	Timestamp  int64           `json:"timestamp"` // epoch millis, set at every write
	Compressed bool            `json:"compressed,omitempty"`
}

// Action represents the kind of mutation an outbox entry carries.
type Action string

const (
	// ActionCreate is accepted on the wire but creates are modeled as
	// updates to a new key, so the queue normalizes it to ActionUpdate.
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// OutboxEntry is a pending mutation awaiting remote application.
type OutboxEntry struct {
	ID         string          `json:"id"`
	Key        string          `json:"key"`
	Action     Action          `json:"action"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	Timestamp  int64           `json:"timestamp"` // epoch millis when queued
	RetryCount int             `json:"retry_count"`
}
