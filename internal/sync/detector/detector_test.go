// Package detector provides unit tests for poll-based change detection.
package detector

import (
	"encoding/json"
	"io"
	"testing"

	"github.com/dmaraujo/retrosync/internal/logging"
	"github.com/dmaraujo/retrosync/internal/models"
	"github.com/dmaraujo/retrosync/internal/store"
)

func testLogger() *logging.Logger {
	return logging.New(io.Discard, "error")
}

func testStore() *store.Store {
	return store.New(store.NewMemoryBackend(), &store.Config{Namespace: "test_"}, testLogger())
}

// captureEnqueuer records enqueued changes for assertions.
type captureEnqueuer struct {
	entries []models.OutboxEntry
}

func (c *captureEnqueuer) EnqueueChange(key string, action models.Action, payload json.RawMessage) {
	c.entries = append(c.entries, models.OutboxEntry{
		Key:     key,
		Action:  action,
		Payload: payload,
	})
}

// TestDetectorObjectChange tests that an object key change queues one whole
// update.
func TestDetectorObjectChange(t *testing.T) {
	st := testStore()
	enq := &captureEnqueuer{}
	d := New(st, enq, "user_profile", KindObject, testLogger())

	st.Set("user_profile", map[string]interface{}{"name": "a"}, store.NoSync)
	d.Check()

	if len(enq.entries) != 1 {
		t.Fatalf("Expected 1 entry, got %d", len(enq.entries))
	}
	if enq.entries[0].Key != "user_profile" {
		t.Errorf("Expected key user_profile, got %s", enq.entries[0].Key)
	}
	if enq.entries[0].Action != models.ActionUpdate {
		t.Errorf("Expected update action, got %s", enq.entries[0].Action)
	}
}

// TestDetectorUnchangedSkipped tests that an unchanged value queues nothing.
func TestDetectorUnchangedSkipped(t *testing.T) {
	st := testStore()
	enq := &captureEnqueuer{}
	d := New(st, enq, "user_profile", KindObject, testLogger())

	st.Set("user_profile", map[string]interface{}{"name": "a"}, store.NoSync)
	d.Check()
	d.Check()
	d.Check()

	if len(enq.entries) != 1 {
		t.Errorf("Expected 1 entry for repeated checks, got %d", len(enq.entries))
	}
}

// TestDetectorBaselinePrimed tests that data present at construction is not
// re-queued on the first check.
func TestDetectorBaselinePrimed(t *testing.T) {
	st := testStore()
	st.Set("user_profile", map[string]interface{}{"name": "existing"}, store.NoSync)

	enq := &captureEnqueuer{}
	d := New(st, enq, "user_profile", KindObject, testLogger())
	d.Check()

	if len(enq.entries) != 0 {
		t.Errorf("Expected baseline not re-queued, got %d entries", len(enq.entries))
	}

	st.Set("user_profile", map[string]interface{}{"name": "changed"}, store.NoSync)
	d.Check()

	if len(enq.entries) != 1 {
		t.Errorf("Expected change after baseline queued, got %d entries", len(enq.entries))
	}
}

// TestDetectorMissingKeySkipped tests that an absent key is a no-op.
func TestDetectorMissingKeySkipped(t *testing.T) {
	st := testStore()
	enq := &captureEnqueuer{}
	d := New(st, enq, "user_profile", KindObject, testLogger())

	d.Check()

	if len(enq.entries) != 0 {
		t.Errorf("Expected no entries for missing key, got %d", len(enq.entries))
	}
}

// TestDetectorArrayNewElements tests that only elements absent from the
// previous snapshot are queued, each under its own element key.
func TestDetectorArrayNewElements(t *testing.T) {
	st := testStore()
	enq := &captureEnqueuer{}
	d := New(st, enq, "local_posts", KindArray, testLogger())

	st.Set("local_posts", []map[string]interface{}{
		{"id": "p1", "text": "first", "timestamp": 100},
	}, store.NoSync)
	d.Check()

	if len(enq.entries) != 1 {
		t.Fatalf("Expected 1 entry, got %d", len(enq.entries))
	}
	if enq.entries[0].Key != "local_posts/p1" {
		t.Errorf("Expected element key local_posts/p1, got %s", enq.entries[0].Key)
	}

	// Appending one element queues only the new one.
	st.Set("local_posts", []map[string]interface{}{
		{"id": "p1", "text": "first", "timestamp": 100},
		{"id": "p2", "text": "second", "timestamp": 200},
	}, store.NoSync)
	d.Check()

	if len(enq.entries) != 2 {
		t.Fatalf("Expected 2 entries total, got %d", len(enq.entries))
	}
	if enq.entries[1].Key != "local_posts/p2" {
		t.Errorf("Expected only new element queued, got %s", enq.entries[1].Key)
	}
}

// TestDetectorArraySyncedElementsSkipped tests that elements already marked
// synced are not queued.
func TestDetectorArraySyncedElementsSkipped(t *testing.T) {
	st := testStore()
	enq := &captureEnqueuer{}
	d := New(st, enq, "interactions", KindArray, testLogger())

	st.Set("interactions", []map[string]interface{}{
		{"id": "i1", "synced": true, "timestamp": 100},
		{"id": "i2", "synced": false, "timestamp": 200},
	}, store.NoSync)
	d.Check()

	if len(enq.entries) != 1 {
		t.Fatalf("Expected 1 entry, got %d", len(enq.entries))
	}
	if enq.entries[0].Key != "interactions/i2" {
		t.Errorf("Expected unsynced element queued, got %s", enq.entries[0].Key)
	}
}

// TestDetectorArrayMalformedSkipped tests that a non-array value under an
// array key queues nothing and keeps the old snapshot.
func TestDetectorArrayMalformedSkipped(t *testing.T) {
	st := testStore()
	enq := &captureEnqueuer{}
	d := New(st, enq, "local_posts", KindArray, testLogger())

	st.Set("local_posts", map[string]interface{}{"oops": true}, store.NoSync)
	d.Check()

	if len(enq.entries) != 0 {
		t.Errorf("Expected malformed value skipped, got %d entries", len(enq.entries))
	}

	// A later valid write is still detected in full.
	st.Set("local_posts", []map[string]interface{}{
		{"id": "p1", "timestamp": 100},
	}, store.NoSync)
	d.Check()

	if len(enq.entries) != 1 {
		t.Errorf("Expected recovery after malformed value, got %d entries", len(enq.entries))
	}
}

// TestDetectorArrayTimestampFallbackID tests element identity without an id
// field.
func TestDetectorArrayTimestampFallbackID(t *testing.T) {
	st := testStore()
	enq := &captureEnqueuer{}
	d := New(st, enq, "interactions", KindArray, testLogger())

	st.Set("interactions", []map[string]interface{}{
		{"kind": "wink", "timestamp": 123},
	}, store.NoSync)
	d.Check()

	if len(enq.entries) != 1 {
		t.Fatalf("Expected 1 entry, got %d", len(enq.entries))
	}
	if enq.entries[0].Key != "interactions/ts:123" {
		t.Errorf("Expected timestamp fallback key, got %s", enq.entries[0].Key)
	}
}

// TestStandardDetectors tests the default watched key set.
func TestStandardDetectors(t *testing.T) {
	st := testStore()
	enq := &captureEnqueuer{}

	detectors := Standard(st, enq, testLogger())
	if len(detectors) != 4 {
		t.Fatalf("Expected 4 detectors, got %d", len(detectors))
	}

	want := map[string]bool{
		"user_profile":  true,
		"user_settings": true,
		"local_posts":   true,
		"interactions":  true,
	}
	for _, d := range detectors {
		if !want[d.Key()] {
			t.Errorf("Unexpected watched key %s", d.Key())
		}
	}
}
