// Package manager exposes the high-level local-first surface consumed by
// UI and domain code: reads and writes that land locally and sync remotely
// best-effort, diagnostics, and full backup/restore.
package manager

import (
	"context"
	"encoding/json"
	"time"

	"github.com/dmaraujo/retrosync/internal/errors"
	"github.com/dmaraujo/retrosync/internal/logging"
	"github.com/dmaraujo/retrosync/internal/store"
	syncpkg "github.com/dmaraujo/retrosync/internal/sync"
	"github.com/dmaraujo/retrosync/internal/sync/outbox"
	"github.com/dmaraujo/retrosync/internal/sync/scheduler"
)

// Stats is the diagnostics snapshot surfaced to status views.
type Stats struct {
	IsOnline          bool  `json:"is_online"`
	SyncQueueLength   int   `json:"sync_queue_length"`
	LastSync          int64 `json:"last_sync"` // epoch millis, zero when never synced
	LocalStorageUsage int64 `json:"local_storage_usage"`
}

// backupDoc is the single JSON document produced by CreateFullBackup.
type backupDoc struct {
	Version   int                        `json:"version"`
	CreatedAt int64                      `json:"created_at"`
	Records   map[string]json.RawMessage `json:"records"`
}

// Manager wires the store, outbox, engine, and scheduler behind one facade.
type Manager struct {
	st     *store.Store
	ob     *outbox.Outbox
	engine *syncpkg.Engine
	sched  *scheduler.Scheduler
	logger *logging.Logger
}

// New creates a Manager. The scheduler may be nil when triggers are managed
// externally (tests drive PerformSync directly).
func New(st *store.Store, ob *outbox.Outbox, engine *syncpkg.Engine, sched *scheduler.Scheduler, logger *logging.Logger) *Manager {
	if logger == nil {
		logger = logging.Get()
	}
	return &Manager{
		st:     st,
		ob:     ob,
		engine: engine,
		sched:  sched,
		logger: logger,
	}
}

// Save writes data locally and, unless opts disables it, queues the write
// for remote sync. Always succeeds from the user's perspective when the
// local write lands; remote unavailability degrades to "will sync later".
func (m *Manager) Save(key string, data interface{}, opts *store.WriteOptions) bool {
	return m.st.Set(key, data, opts)
}

// Load reads the value stored under key, def when absent.
func (m *Manager) Load(key string, def interface{}) interface{} {
	return m.st.Get(key, def)
}

// Remove deletes the value under key and queues the deletion for sync
// unless opts disables it.
func (m *Manager) Remove(key string, opts *store.WriteOptions) bool {
	return m.st.Remove(key, opts)
}

// GetStats returns the current diagnostics snapshot.
func (m *Manager) GetStats() Stats {
	stats := Stats{
		IsOnline:          true,
		SyncQueueLength:   m.ob.Len(),
		LocalStorageUsage: m.st.UsedBytes(),
	}
	if m.sched != nil {
		stats.IsOnline = m.sched.IsOnline()
	}
	if last := m.engine.LastSync(); !last.IsZero() {
		stats.LastSync = last.UnixMilli()
	}
	return stats
}

// ForceSyncNow runs detectors once and triggers an immediate sync cycle,
// bypassing the periodic timer.
func (m *Manager) ForceSyncNow(ctx context.Context) error {
	if m.sched != nil {
		m.sched.CheckNow()
	}
	return m.engine.PerformSync(ctx)
}

// CreateFullBackup snapshots every namespaced key into one JSON document.
func (m *Manager) CreateFullBackup() ([]byte, error) {
	records, err := m.st.Snapshot()
	if err != nil {
		return nil, errors.Wrap(errors.ErrBackupFailed, "failed to snapshot store", err)
	}

	doc := backupDoc{
		Version:   1,
		CreatedAt: time.Now().UnixMilli(),
		Records:   records,
	}

	data, err := json.Marshal(&doc)
	if err != nil {
		return nil, errors.Wrap(errors.ErrBackupFailed, "failed to encode backup", err)
	}

	m.logger.Info("full backup created",
		map[string]interface{}{"records": len(records), "bytes": len(data)})
	return data, nil
}

// RestoreFromBackup writes a backup document's records back into the store.
// Restored writes bypass the outbox; restoring is a local operation.
func (m *Manager) RestoreFromBackup(data []byte) error {
	var doc backupDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return errors.Wrap(errors.ErrCorruptedBackup, "backup is not valid JSON", err)
	}
	if doc.Records == nil {
		return errors.New(errors.ErrCorruptedBackup, "backup has no records")
	}

	if err := m.st.RestoreSnapshot(doc.Records); err != nil {
		return errors.Wrap(errors.ErrRestoreFailed, "failed to restore records", err)
	}

	m.logger.Info("backup restored",
		map[string]interface{}{"records": len(doc.Records)})
	return nil
}

// ClearAllData removes every namespaced record and drops pending outbox
// entries.
func (m *Manager) ClearAllData() error {
	m.ob.Clear()
	return m.st.Clear()
}
