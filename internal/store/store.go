package store

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/dmaraujo/retrosync/internal/logging"
	"github.com/dmaraujo/retrosync/internal/models"
)

// Enqueuer receives outbox entries for writes that request remote sync.
// It is implemented by the outbox queue; the store only knows this interface
// so the two can be wired without a dependency cycle.
type Enqueuer interface {
	EnqueueChange(key string, action models.Action, payload json.RawMessage)
}

// ChangeNotifier is notified synchronously after every successful write,
// as a push-based alternative to polling change detectors.
type ChangeNotifier interface {
	RecordChanged(key string)
}

// WriteOptions controls the sync side effect of Set and Remove.
type WriteOptions struct {
	// Sync requests an outbox entry for this mutation.
	Sync bool
}

// NoSync skips the outbox side effect. Used for sync bookkeeping keys and
// for merge writes coming back from the remote.
var NoSync = &WriteOptions{Sync: false}

// Config holds store construction parameters.
type Config struct {
	// Namespace prefixes every backend key.
	Namespace string
	// Codec encodes serialized values above CompressionThreshold bytes.
	// Nil disables compression.
	Codec Codec
	// CompressionThreshold in bytes; zero disables compression.
	CompressionThreshold int
}

// Store is the namespaced key-value persistence layer. All reads and writes
// of domain data and sync state go through it; bypassing it breaks the
// detectors' diffing and the last-write-wins overwrite invariant.
type Store struct {
	backend   Backend
	namespace string
	codec     Codec
	threshold int
	enqueuer  Enqueuer
	notifier  ChangeNotifier
	logger    *logging.Logger
}

// New creates a Store over the given backend.
func New(backend Backend, cfg *Config, logger *logging.Logger) *Store {
	if cfg == nil {
		cfg = &Config{}
	}
	if logger == nil {
		logger = logging.Get()
	}
	return &Store{
		backend:   backend,
		namespace: cfg.Namespace,
		codec:     cfg.Codec,
		threshold: cfg.CompressionThreshold,
		logger:    logger,
	}
}

// SetEnqueuer wires the outbox. Must be called before writes that request
// sync; writes without an enqueuer only land locally.
func (s *Store) SetEnqueuer(e Enqueuer) {
	s.enqueuer = e
}

// SetNotifier wires an optional synchronous change listener.
func (s *Store) SetNotifier(n ChangeNotifier) {
	s.notifier = n
}

// Set serializes value into a timestamped record and writes it under key.
// Returns false if serialization or the backend write fails; failures are
// logged and never propagate as errors. Unless opts disables it, the write
// also enqueues an update entry into the outbox.
func (s *Store) Set(key string, value interface{}, opts *WriteOptions) bool {
	raw, err := json.Marshal(value)
	if err != nil {
		s.logger.Error("failed to serialize value", err, map[string]interface{}{"key": key})
		return false
	}

	rec := models.StoredRecord{
		Key:       key,
		Value:     raw,
		Timestamp: time.Now().UnixMilli(),
	}

	if s.codec != nil && s.threshold > 0 && len(raw) > s.threshold {
		encoded, err := s.codec.Encode(raw)
		if err != nil {
			// Store uncompressed rather than losing the write.
			s.logger.Warn("codec encode failed, storing uncompressed",
				map[string]interface{}{"key": key, "codec": s.codec.Name(), "error": err.Error()})
		} else {
			quoted, err := json.Marshal(encoded)
			if err == nil {
				rec.Value = quoted
				rec.Compressed = true
			}
		}
	}

	data, err := json.Marshal(&rec)
	if err != nil {
		s.logger.Error("failed to serialize record", err, map[string]interface{}{"key": key})
		return false
	}

	if err := s.backend.SetItem(s.namespaced(key), string(data)); err != nil {
		s.logger.Error("backend write failed", err, map[string]interface{}{"key": key})
		return false
	}

	if s.syncRequested(opts) && s.enqueuer != nil {
		s.enqueuer.EnqueueChange(key, models.ActionUpdate, raw)
	}
	if s.notifier != nil {
		s.notifier.RecordChanged(key)
	}

	return true
}

// Get reads and deserializes the record stored under key, decompressing if
// flagged. Returns def when the key is absent or the stored value cannot be
// parsed.
func (s *Store) Get(key string, def interface{}) interface{} {
	rec, ok := s.GetRecord(key)
	if !ok {
		return def
	}

	var value interface{}
	if err := json.Unmarshal(rec.Value, &value); err != nil {
		s.logger.Warn("stored value is not valid JSON",
			map[string]interface{}{"key": key, "error": err.Error()})
		return def
	}
	return value
}

// GetRecord returns the record envelope for key with its value already
// decoded to plain JSON. Returns false when absent or unreadable.
func (s *Store) GetRecord(key string) (*models.StoredRecord, bool) {
	data, ok, err := s.backend.GetItem(s.namespaced(key))
	if err != nil {
		s.logger.Error("backend read failed", err, map[string]interface{}{"key": key})
		return nil, false
	}
	if !ok {
		return nil, false
	}

	var rec models.StoredRecord
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		s.logger.Warn("stored record is corrupt",
			map[string]interface{}{"key": key, "error": err.Error()})
		return nil, false
	}

	if rec.Compressed {
		if s.codec == nil {
			s.logger.Warn("compressed record but no codec configured",
				map[string]interface{}{"key": key})
			return nil, false
		}
		var encoded string
		if err := json.Unmarshal(rec.Value, &encoded); err != nil {
			s.logger.Warn("compressed record envelope is corrupt",
				map[string]interface{}{"key": key, "error": err.Error()})
			return nil, false
		}
		raw, err := s.codec.Decode(encoded)
		if err != nil {
			s.logger.Warn("codec decode failed",
				map[string]interface{}{"key": key, "codec": s.codec.Name(), "error": err.Error()})
			return nil, false
		}
		rec.Value = raw
		rec.Compressed = false
	}

	return &rec, true
}

// Remove deletes the record under key. Unless opts disables it, a delete
// entry is enqueued into the outbox.
func (s *Store) Remove(key string, opts *WriteOptions) bool {
	if err := s.backend.RemoveItem(s.namespaced(key)); err != nil {
		s.logger.Error("backend remove failed", err, map[string]interface{}{"key": key})
		return false
	}

	if s.syncRequested(opts) && s.enqueuer != nil {
		s.enqueuer.EnqueueChange(key, models.ActionDelete, nil)
	}
	if s.notifier != nil {
		s.notifier.RecordChanged(key)
	}

	return true
}

// Keys returns the logical keys currently stored under this namespace.
func (s *Store) Keys() ([]string, error) {
	all, err := s.backend.Keys()
	if err != nil {
		return nil, err
	}

	var keys []string
	for _, k := range all {
		if strings.HasPrefix(k, s.namespace) {
			keys = append(keys, strings.TrimPrefix(k, s.namespace))
		}
	}
	return keys, nil
}

// UsedBytes reports total backend storage usage for diagnostics.
func (s *Store) UsedBytes() int64 {
	used, err := s.backend.UsedBytes()
	if err != nil {
		s.logger.Warn("failed to read storage usage",
			map[string]interface{}{"error": err.Error()})
		return 0
	}
	return used
}

// Snapshot returns every namespaced record envelope keyed by logical key.
// Used by full backup.
func (s *Store) Snapshot() (map[string]json.RawMessage, error) {
	keys, err := s.Keys()
	if err != nil {
		return nil, err
	}

	snap := make(map[string]json.RawMessage, len(keys))
	for _, key := range keys {
		data, ok, err := s.backend.GetItem(s.namespaced(key))
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		snap[key] = json.RawMessage(data)
	}
	return snap, nil
}

// RestoreSnapshot writes record envelopes back verbatim, without touching
// the outbox.
func (s *Store) RestoreSnapshot(snap map[string]json.RawMessage) error {
	for key, data := range snap {
		if err := s.backend.SetItem(s.namespaced(key), string(data)); err != nil {
			return err
		}
	}
	return nil
}

// Clear removes every record under this namespace.
func (s *Store) Clear() error {
	keys, err := s.Keys()
	if err != nil {
		return err
	}
	for _, key := range keys {
		if err := s.backend.RemoveItem(s.namespaced(key)); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) syncRequested(opts *WriteOptions) bool {
	return opts == nil || opts.Sync
}

func (s *Store) namespaced(key string) string {
	return s.namespace + key
}
