package main

import (
	"io"
	"testing"
	"time"

	"github.com/dmaraujo/retrosync/internal/logging"
)

func testWSLogger() *logging.Logger {
	return logging.New(io.Discard, "error")
}

func recvWithin(t *testing.T, ch chan []byte, d time.Duration) []byte {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(d):
		t.Fatal("Expected a message, got none")
		return nil
	}
}

func expectNothing(t *testing.T, ch chan []byte, d time.Duration) {
	t.Helper()
	select {
	case msg := <-ch:
		t.Fatalf("Expected no message, got %s", msg)
	case <-time.After(d):
	}
}

// TestClientWants tests the subscription filter. An empty subscription set
// means the client receives every event.
func TestClientWants(t *testing.T) {
	c := &WSClient{subscriptions: make(map[string]bool)}

	if !c.wants(EventSyncCompleted) {
		t.Error("Expected unsubscribed client to receive everything")
	}

	c.subscriptions[EventSyncFailed] = true
	if c.wants(EventSyncCompleted) {
		t.Error("Expected subscribed client to skip other events")
	}
	if !c.wants(EventSyncFailed) {
		t.Error("Expected subscribed client to receive its event")
	}
}

// TestHubBroadcastFiltersSubscriptions tests that the hub delivers an event
// only to clients subscribed to it, while clients with no subscriptions get
// everything.
func TestHubBroadcastFiltersSubscriptions(t *testing.T) {
	hub := NewWSHub(testWSLogger())

	all := &WSClient{
		id:            "all",
		send:          make(chan []byte, 4),
		hub:           hub,
		subscriptions: make(map[string]bool),
	}
	only := &WSClient{
		id:            "only",
		send:          make(chan []byte, 4),
		hub:           hub,
		subscriptions: map[string]bool{EventSyncFailed: true},
	}

	// register is unbuffered, so run has handled both before we broadcast.
	hub.register <- all
	hub.register <- only

	hub.Broadcast(EventSyncCompleted, map[string]interface{}{"pushed": 2})

	recvWithin(t, all.send, time.Second)
	expectNothing(t, only.send, 50*time.Millisecond)

	hub.Broadcast(EventSyncFailed, map[string]interface{}{"error": "boom"})

	recvWithin(t, all.send, time.Second)
	recvWithin(t, only.send, time.Second)
}
