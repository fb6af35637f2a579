// Package outbox provides the ordered, deduplicated, size-bounded queue of
// mutations awaiting remote application. The queue persists itself through
// the local store so it survives process restarts.
package outbox

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmaraujo/retrosync/internal/logging"
	"github.com/dmaraujo/retrosync/internal/models"
	"github.com/dmaraujo/retrosync/internal/store"
)

const (
	// StateKey is the reserved store key holding the persisted queue.
	StateKey = "_outbox"
	// EmergencyKey is the reserved store key written by DrainForShutdown
	// and merged back into the main queue on the next startup.
	EmergencyKey = "_outbox_emergency"
)

// Outbox manages pending sync mutations.
//
// Invariants:
//   - at most one entry per (key, action) pair; re-enqueues coalesce into
//     the existing entry, updating payload and timestamp in place
//   - FIFO order for distinct keys; failed entries re-inserted at the front
//   - bounded to capacity entries, evicting from the front (oldest first)
type Outbox struct {
	mu       sync.Mutex
	entries  []*models.OutboxEntry
	st       *store.Store
	capacity int
	logger   *logging.Logger
}

// New creates an Outbox backed by st, restoring any persisted queue state.
// Entries saved by a previous emergency drain are merged in and the
// emergency key is cleared.
func New(st *store.Store, capacity int, logger *logging.Logger) *Outbox {
	if logger == nil {
		logger = logging.Get()
	}

	o := &Outbox{
		st:       st,
		capacity: capacity,
		logger:   logger,
	}

	o.entries = o.loadEntries(StateKey)

	if emergency := o.loadEntries(EmergencyKey); len(emergency) > 0 {
		seen := make(map[string]bool, len(o.entries))
		for _, e := range o.entries {
			seen[e.ID] = true
		}
		merged := 0
		for _, e := range emergency {
			if !seen[e.ID] {
				o.entries = append(o.entries, e)
				merged++
			}
		}
		st.Remove(EmergencyKey, store.NoSync)
		o.persistLocked()
		logger.Info("recovered emergency outbox state",
			map[string]interface{}{"recovered": merged, "total": len(o.entries)})
	}

	return o
}

// EnqueueChange builds an entry for the given mutation and enqueues it.
// It implements store.Enqueuer.
func (o *Outbox) EnqueueChange(key string, action models.Action, payload json.RawMessage) {
	o.Enqueue(&models.OutboxEntry{
		ID:        uuid.New().String(),
		Key:       key,
		Action:    action,
		Payload:   payload,
		Timestamp: time.Now().UnixMilli(),
	})
}

// Enqueue adds entry to the queue, coalescing with any pending entry for the
// same (key, action): the pending entry keeps its identity, position, and
// retry count but takes the new payload and timestamp.
func (o *Outbox) Enqueue(entry *models.OutboxEntry) {
	if entry.Action == models.ActionCreate {
		// Creates are updates to a new key.
		entry.Action = models.ActionUpdate
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	for _, pending := range o.entries {
		if pending.Key == entry.Key && pending.Action == entry.Action {
			pending.Payload = entry.Payload
			pending.Timestamp = entry.Timestamp
			o.persistLocked()
			return
		}
	}

	o.entries = append(o.entries, entry)

	if o.capacity > 0 && len(o.entries) > o.capacity {
		evicted := len(o.entries) - o.capacity
		o.entries = o.entries[evicted:]
		o.logger.Warn("outbox at capacity, evicted oldest entries",
			map[string]interface{}{"evicted": evicted, "capacity": o.capacity})
	}

	o.persistLocked()
}

// DequeueBatch removes and returns up to n entries from the front.
func (o *Outbox) DequeueBatch(n int) []*models.OutboxEntry {
	o.mu.Lock()
	defer o.mu.Unlock()

	if n > len(o.entries) {
		n = len(o.entries)
	}
	if n == 0 {
		return nil
	}

	batch := make([]*models.OutboxEntry, n)
	copy(batch, o.entries[:n])
	o.entries = append([]*models.OutboxEntry{}, o.entries[n:]...)
	o.persistLocked()

	return batch
}

// RequeueFront re-inserts entries at the front of the queue, preserving
// their order, so failed work is retried before newer work.
func (o *Outbox) RequeueFront(entries []*models.OutboxEntry) {
	if len(entries) == 0 {
		return
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	o.entries = append(append([]*models.OutboxEntry{}, entries...), o.entries...)
	o.persistLocked()
}

// Len returns the number of pending entries.
func (o *Outbox) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.entries)
}

// Entries returns a copy of the pending entries in order.
func (o *Outbox) Entries() []*models.OutboxEntry {
	o.mu.Lock()
	defer o.mu.Unlock()

	out := make([]*models.OutboxEntry, len(o.entries))
	for i, e := range o.entries {
		c := *e
		out[i] = &c
	}
	return out
}

// Clear drops all pending entries.
func (o *Outbox) Clear() {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.entries = nil
	o.persistLocked()
}

// DrainForShutdown persists the full in-memory queue under the emergency
// key. Called on shutdown paths where no network work is possible; the next
// startup merges the state back.
func (o *Outbox) DrainForShutdown() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.st.Set(EmergencyKey, o.entries, store.NoSync) {
		o.logger.Error("emergency outbox drain failed", nil,
			map[string]interface{}{"pending": len(o.entries)})
		return
	}
	o.logger.Info("emergency outbox state persisted",
		map[string]interface{}{"pending": len(o.entries)})
}

// persistLocked writes the queue under its reserved key. The write is marked
// no-sync so persisting the queue never enqueues into itself.
func (o *Outbox) persistLocked() {
	if !o.st.Set(StateKey, o.entries, store.NoSync) {
		o.logger.Error("failed to persist outbox state", nil,
			map[string]interface{}{"pending": len(o.entries)})
	}
}

// loadEntries reads a persisted entry list from the store, returning nil on
// absence or corruption.
func (o *Outbox) loadEntries(key string) []*models.OutboxEntry {
	rec, ok := o.st.GetRecord(key)
	if !ok {
		return nil
	}

	var entries []*models.OutboxEntry
	if err := json.Unmarshal(rec.Value, &entries); err != nil {
		o.logger.Warn("persisted outbox state is corrupt, starting empty",
			map[string]interface{}{"key": key, "error": err.Error()})
		return nil
	}
	return entries
}
