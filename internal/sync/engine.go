// Package sync provides the engine that drains the outbox against the
// remote API and pulls remote updates back into the local store.
package sync

import (
	"context"
	"encoding/json"
	stdsync "sync"
	"time"

	"github.com/dmaraujo/retrosync/internal/errors"
	"github.com/dmaraujo/retrosync/internal/events"
	"github.com/dmaraujo/retrosync/internal/logging"
	"github.com/dmaraujo/retrosync/internal/models"
	"github.com/dmaraujo/retrosync/internal/store"
	"github.com/dmaraujo/retrosync/internal/sync/conflict"
	"github.com/dmaraujo/retrosync/internal/sync/outbox"
)

// CursorKey is the reserved store key holding the pull watermark as epoch
// millis. It starts at zero so the first pull requests everything.
const CursorKey = "_sync_cursor"

// Config holds engine tuning parameters.
type Config struct {
	// BatchSize bounds per-round drain work.
	BatchSize int
	// MaxRetries is the number of failed attempts before an entry is
	// dropped as permanently failed.
	MaxRetries int
	// RequestTimeout bounds each individual remote call so a hung request
	// cannot wedge the single-flight guard forever.
	RequestTimeout time.Duration
	// DrainBackoff is the pause between drain rounds when entries remain.
	DrainBackoff time.Duration
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() *Config {
	return &Config{
		BatchSize:      50,
		MaxRetries:     3,
		RequestTimeout: 30 * time.Second,
		DrainBackoff:   time.Second,
	}
}

// Engine orchestrates outbound draining and inbound pulling. A cycle runs
// Idle -> Draining -> Pulling -> Idle; overlapping cycles are rejected by a
// running guard cleared on every exit path.
type Engine struct {
	st     *store.Store
	outbox *outbox.Outbox
	remote RemoteClient
	bus    *events.Bus
	cfg    *Config
	logger *logging.Logger

	mu       stdsync.Mutex
	running  bool
	lastSync time.Time
	lastErr  error
}

// NewEngine creates an Engine. A nil cfg uses DefaultConfig.
func NewEngine(st *store.Store, ob *outbox.Outbox, remote RemoteClient, bus *events.Bus, cfg *Config, logger *logging.Logger) *Engine {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if bus == nil {
		bus = events.NewBus()
	}
	if logger == nil {
		logger = logging.Get()
	}
	return &Engine{
		st:     st,
		outbox: ob,
		remote: remote,
		bus:    bus,
		cfg:    cfg,
		logger: logger,
	}
}

// PerformSync runs one drain-then-pull cycle. If a cycle is already in
// flight the call is a logged no-op. Per-entry send failures are non-fatal;
// only a failed pull ends the cycle in error, and the cursor advances only
// after a fully successful pull and merge.
func (e *Engine) PerformSync(ctx context.Context) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		e.logger.Debug("sync already in progress, skipping", nil)
		return nil
	}
	e.running = true
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
	}()

	start := time.Now()
	e.bus.PublishSyncStarted(events.SyncStarted{At: start})

	pushed := e.drain(ctx)

	pulled, err := e.pull(ctx)
	if err != nil {
		e.mu.Lock()
		e.lastErr = err
		e.mu.Unlock()

		code := string(errors.ErrSyncFailed)
		if appErr, ok := err.(*errors.AppError); ok {
			code = string(appErr.Code)
		}
		e.bus.PublishSyncFailed(events.SyncFailed{Code: code, Err: err})
		e.logger.Error("sync cycle failed", err,
			map[string]interface{}{"pushed": pushed})
		return err
	}

	now := time.Now()
	e.mu.Lock()
	e.lastSync = now
	e.lastErr = nil
	e.mu.Unlock()

	e.bus.PublishSyncCompleted(events.SyncCompleted{
		Pushed:   pushed,
		Pulled:   pulled,
		Duration: now.Sub(start),
	})
	e.logger.Info("sync cycle completed", map[string]interface{}{
		"pushed":      pushed,
		"pulled":      pulled,
		"duration_ms": now.Sub(start).Milliseconds(),
	})

	return nil
}

// EmergencyFlush persists the in-memory outbox for resumption on next load.
// It makes no network calls; shutdown paths are too late for async work.
func (e *Engine) EmergencyFlush() {
	e.outbox.DrainForShutdown()
}

// LastSync returns when the last cycle fully succeeded.
func (e *Engine) LastSync() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastSync
}

// LastError returns the error of the most recent failed cycle, nil after a
// successful one.
func (e *Engine) LastError() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastErr
}

// IsRunning reports whether a cycle is in flight.
func (e *Engine) IsRunning() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// Cursor returns the current pull watermark.
func (e *Engine) Cursor() time.Time {
	return e.loadCursor()
}

// drain sends outbox batches until the queue empties, a whole batch fails,
// or the context ends. Failed entries go back to the front with their retry
// count bumped; entries at the retry limit are dropped and reported.
func (e *Engine) drain(ctx context.Context) int {
	pushed := 0

	for {
		batch := e.outbox.DequeueBatch(e.cfg.BatchSize)
		if len(batch) == 0 {
			return pushed
		}

		var failed []*models.OutboxEntry
		for i, entry := range batch {
			if ctx.Err() != nil {
				// Put unsent work back untouched.
				failed = append(failed, batch[i:]...)
				e.outbox.RequeueFront(failed)
				return pushed
			}

			sendCtx, cancel := context.WithTimeout(ctx, e.cfg.RequestTimeout)
			err := e.remote.Push(sendCtx, entry)
			cancel()

			if err == nil {
				pushed++
				continue
			}

			entry.RetryCount++
			if entry.RetryCount >= e.cfg.MaxRetries {
				e.logger.Error("entry permanently failed, dropping", err,
					map[string]interface{}{
						"key":     entry.Key,
						"action":  entry.Action,
						"retries": entry.RetryCount,
					})
				e.bus.PublishEntryDropped(events.EntryDropped{
					Key:     entry.Key,
					Action:  string(entry.Action),
					Retries: entry.RetryCount,
				})
				continue
			}

			e.logger.Warn("entry send failed, requeueing",
				map[string]interface{}{
					"key":     entry.Key,
					"retries": entry.RetryCount,
					"error":   err.Error(),
				})
			failed = append(failed, entry)
		}

		e.outbox.RequeueFront(failed)

		if len(failed) == len(batch) {
			// Remote looks unreachable; let the periodic trigger retry.
			return pushed
		}
		if e.outbox.Len() == 0 {
			return pushed
		}

		select {
		case <-ctx.Done():
			return pushed
		case <-time.After(e.cfg.DrainBackoff):
		}
	}
}

// pull fetches remote updates newer than the cursor, merges them into the
// local store, and advances the cursor. The cursor moves only when the
// whole pull and merge succeeded.
func (e *Engine) pull(ctx context.Context) (int, error) {
	pullCtx, cancel := context.WithTimeout(ctx, e.cfg.RequestTimeout)
	defer cancel()

	updates, err := e.remote.Pull(pullCtx, e.loadCursor())
	if err != nil {
		return 0, err
	}

	applied := 0
	var mergeErr error
	for _, update := range updates {
		ok, err := e.applyUpdate(update)
		if err != nil && mergeErr == nil {
			mergeErr = err
		}
		if ok {
			applied++
		}
	}

	if mergeErr != nil {
		// The cursor stays put so the updates whose writes failed are
		// re-fetched on the next cycle. Re-applying the others is safe;
		// the merge is idempotent.
		return applied, mergeErr
	}

	e.saveCursor(time.Now())
	return applied, nil
}

// applyUpdate merges one remote update into the local store. Array payloads
// go through the last-write-wins array merge; scalar/object payloads
// replace the local record only when strictly newer. Malformed or stale
// updates are skipped without error; a failed store write is an error so the
// cycle does not advance the cursor past an update that never landed.
func (e *Engine) applyUpdate(update models.RemoteUpdate) (bool, error) {
	if update.Type == "" || len(update.Data) == 0 {
		return false, nil
	}

	var remoteItems []conflict.Record
	if err := json.Unmarshal(update.Data, &remoteItems); err == nil {
		local := e.loadArray(update.Type)
		merged, result := conflict.MergeByID(local, remoteItems)
		if !e.st.Set(update.Type, merged, store.NoSync) {
			return false, errors.New(errors.ErrStoreWriteFailed,
				"failed to persist merged array for "+update.Type)
		}
		e.bus.PublishMergeApplied(events.MergeApplied{
			Key:      update.Type,
			Added:    result.Added,
			Replaced: result.Replaced,
		})
		return true, nil
	}

	var value interface{}
	if err := json.Unmarshal(update.Data, &value); err != nil {
		e.logger.Warn("remote update payload is not valid JSON, skipping",
			map[string]interface{}{"type": update.Type, "error": err.Error()})
		return false, nil
	}

	if rec, ok := e.st.GetRecord(update.Type); ok && update.Timestamp <= rec.Timestamp {
		// Local copy is at least as new; ties keep local.
		return false, nil
	}

	if !e.st.Set(update.Type, value, store.NoSync) {
		return false, errors.New(errors.ErrStoreWriteFailed,
			"failed to persist remote update for "+update.Type)
	}
	return true, nil
}

// loadArray reads the local array stored under key, nil when absent or not
// an array.
func (e *Engine) loadArray(key string) []conflict.Record {
	rec, ok := e.st.GetRecord(key)
	if !ok {
		return nil
	}

	var items []conflict.Record
	if err := json.Unmarshal(rec.Value, &items); err != nil {
		return nil
	}
	return items
}

func (e *Engine) loadCursor() time.Time {
	rec, ok := e.st.GetRecord(CursorKey)
	if !ok {
		return time.UnixMilli(0)
	}

	var millis int64
	if err := json.Unmarshal(rec.Value, &millis); err != nil {
		return time.UnixMilli(0)
	}
	return time.UnixMilli(millis)
}

func (e *Engine) saveCursor(t time.Time) {
	e.st.Set(CursorKey, t.UnixMilli(), store.NoSync)
}
