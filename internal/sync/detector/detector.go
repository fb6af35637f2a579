// Package detector provides poll-based change detection over local store
// keys. Detectors diff a key's current value against the last-seen snapshot
// and translate differences into outbox entries.
//
// Polling exists because the reference storage layer fires no change events
// in the writer's own context; the store's ChangeNotifier hook is the
// push-based alternative for callers that can use it.
package detector

import (
	"encoding/json"
	"fmt"

	"github.com/dmaraujo/retrosync/internal/logging"
	"github.com/dmaraujo/retrosync/internal/models"
	"github.com/dmaraujo/retrosync/internal/store"
)

// Kind selects the diffing strategy for a watched key.
type Kind int

const (
	// KindObject queues the whole value as one update when it changes.
	KindObject Kind = iota
	// KindArray queues only elements absent from the previous snapshot,
	// so history is not re-sent on every change.
	KindArray
)

// Detector watches a single store key.
type Detector struct {
	key    string
	kind   Kind
	st     *store.Store
	enq    store.Enqueuer
	last   string
	primed bool
	logger *logging.Logger
}

// New creates a detector for key. The current stored value, if any, becomes
// the baseline snapshot so existing data is not re-queued on startup.
func New(st *store.Store, enq store.Enqueuer, key string, kind Kind, logger *logging.Logger) *Detector {
	if logger == nil {
		logger = logging.Get()
	}

	d := &Detector{
		key:    key,
		kind:   kind,
		st:     st,
		enq:    enq,
		logger: logger,
	}

	if rec, ok := st.GetRecord(key); ok {
		d.last = string(rec.Value)
		d.primed = true
	}

	return d
}

// Key returns the watched key.
func (d *Detector) Key() string {
	return d.key
}

// Check compares the current value against the last-seen snapshot and
// enqueues outbox entries for detected changes. Detectors never fail: a
// missing or malformed value is treated as no data and skipped until the
// next successful write.
func (d *Detector) Check() {
	rec, ok := d.st.GetRecord(d.key)
	if !ok {
		return
	}

	current := string(rec.Value)
	if d.primed && current == d.last {
		return
	}

	switch d.kind {
	case KindObject:
		d.enq.EnqueueChange(d.key, models.ActionUpdate, rec.Value)
	case KindArray:
		if !d.checkArray(rec.Value) {
			return
		}
	}

	d.last = current
	d.primed = true
}

// checkArray queues elements that were not present in the previous snapshot
// and are not already marked synced. Returns false when the stored value is
// not a valid array, leaving the snapshot untouched.
func (d *Detector) checkArray(raw json.RawMessage) bool {
	var current []map[string]interface{}
	if err := json.Unmarshal(raw, &current); err != nil {
		d.logger.Warn("watched key is not an array, skipping",
			map[string]interface{}{"key": d.key, "error": err.Error()})
		return false
	}

	seen := make(map[string]bool)
	if d.primed && d.last != "" {
		var previous []map[string]interface{}
		if err := json.Unmarshal([]byte(d.last), &previous); err == nil {
			for _, item := range previous {
				seen[elementID(item)] = true
			}
		}
	}

	queued := 0
	for _, item := range current {
		id := elementID(item)
		if seen[id] {
			continue
		}
		if synced, ok := item["synced"].(bool); ok && synced {
			continue
		}
		payload, err := json.Marshal(item)
		if err != nil {
			continue
		}
		d.enq.EnqueueChange(d.key+"/"+id, models.ActionUpdate, payload)
		queued++
	}

	if queued > 0 {
		d.logger.Debug("queued new array elements",
			map[string]interface{}{"key": d.key, "queued": queued})
	}
	return true
}

// elementID identifies an array element by its id field, falling back to
// its timestamp when no id is present.
func elementID(item map[string]interface{}) string {
	if id, ok := item["id"]; ok && id != nil {
		return fmt.Sprintf("%v", id)
	}
	if ts, ok := item["timestamp"]; ok {
		return fmt.Sprintf("ts:%v", ts)
	}
	return ""
}

// Standard returns the detector set for the domain keys the application
// writes: profile and settings as whole objects, posts and interactions as
// element-diffed arrays.
func Standard(st *store.Store, enq store.Enqueuer, logger *logging.Logger) []*Detector {
	return []*Detector{
		New(st, enq, "user_profile", KindObject, logger),
		New(st, enq, "user_settings", KindObject, logger),
		New(st, enq, "local_posts", KindArray, logger),
		New(st, enq, "interactions", KindArray, logger),
	}
}
