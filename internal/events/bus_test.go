// Package events provides unit tests for the typed event bus.
package events

import (
	"fmt"
	"testing"
	"time"
)

// TestBusDeliversToSubscribers tests synchronous fan-out per event type.
func TestBusDeliversToSubscribers(t *testing.T) {
	bus := NewBus()

	var started []SyncStarted
	var completed []SyncCompleted
	bus.SubscribeSyncStarted(func(e SyncStarted) {
		started = append(started, e)
	})
	bus.SubscribeSyncCompleted(func(e SyncCompleted) {
		completed = append(completed, e)
	})

	at := time.Now()
	bus.PublishSyncStarted(SyncStarted{At: at})
	bus.PublishSyncCompleted(SyncCompleted{Pushed: 3, Pulled: 1, Duration: time.Second})

	if len(started) != 1 || !started[0].At.Equal(at) {
		t.Errorf("Expected 1 start event, got %+v", started)
	}
	if len(completed) != 1 || completed[0].Pushed != 3 {
		t.Errorf("Expected 1 completion event with 3 pushed, got %+v", completed)
	}
}

// TestBusMultipleSubscribers tests that every subscriber sees each event.
func TestBusMultipleSubscribers(t *testing.T) {
	bus := NewBus()

	count := 0
	for i := 0; i < 3; i++ {
		bus.SubscribeSyncFailed(func(e SyncFailed) {
			count++
		})
	}

	bus.PublishSyncFailed(SyncFailed{Code: "SYNC_FAILED", Err: fmt.Errorf("boom")})

	if count != 3 {
		t.Errorf("Expected 3 deliveries, got %d", count)
	}
}

// TestBusNoSubscribers tests that publishing without subscribers is a no-op.
func TestBusNoSubscribers(t *testing.T) {
	bus := NewBus()

	bus.PublishMergeApplied(MergeApplied{Key: "local_posts", Added: 1})
	bus.PublishEntryDropped(EntryDropped{Key: "user_profile", Retries: 3})
}

// TestBusDistinctEventTypes tests that subscriptions only receive their own
// event type.
func TestBusDistinctEventTypes(t *testing.T) {
	bus := NewBus()

	var drops []EntryDropped
	bus.SubscribeEntryDropped(func(e EntryDropped) {
		drops = append(drops, e)
	})

	bus.PublishSyncStarted(SyncStarted{At: time.Now()})
	bus.PublishMergeApplied(MergeApplied{Key: "x"})

	if len(drops) != 0 {
		t.Errorf("Expected no drop deliveries, got %d", len(drops))
	}

	bus.PublishEntryDropped(EntryDropped{Key: "user_profile", Action: "update", Retries: 3})
	if len(drops) != 1 {
		t.Errorf("Expected 1 drop delivery, got %d", len(drops))
	}
}
