// Package store provides the namespaced key-value persistence layer used for
// both domain data and sync bookkeeping.
package store

import (
	"sort"
	"sync"

	"github.com/dmaraujo/retrosync/internal/errors"
)

// Backend is a synchronous string key-value storage with a quota.
// It mirrors the contract of browser-style origin storage: setItem/getItem/
// removeItem plus total used bytes for diagnostics.
type Backend interface {
	// SetItem stores value under key, overwriting any previous value.
	SetItem(key, value string) error

	// GetItem returns the value for key and whether it exists.
	GetItem(key string) (string, bool, error)

	// RemoveItem deletes key. Removing a missing key is not an error.
	RemoveItem(key string) error

	// Keys returns all stored keys.
	Keys() ([]string, error)

	// UsedBytes returns the total size of stored keys and values.
	UsedBytes() (int64, error)
}

// MemoryBackend is an in-process Backend used in tests and as a fallback
// when no durable storage is configured. A non-zero Quota makes writes fail
// once the stored size would exceed it, which simulates storage pressure.
type MemoryBackend struct {
	mu    sync.RWMutex
	items map[string]string
	quota int64
}

// NewMemoryBackend creates an empty MemoryBackend without a quota.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{items: make(map[string]string)}
}

// NewMemoryBackendWithQuota creates a MemoryBackend that rejects writes
// pushing total storage above quota bytes.
func NewMemoryBackendWithQuota(quota int64) *MemoryBackend {
	return &MemoryBackend{items: make(map[string]string), quota: quota}
}

// SetItem implements Backend.
func (b *MemoryBackend) SetItem(key, value string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.quota > 0 {
		used := b.usedLocked()
		// Overwrites free the previous value first.
		if prev, ok := b.items[key]; ok {
			used -= int64(len(key) + len(prev))
		}
		if used+int64(len(key)+len(value)) > b.quota {
			return errors.New(errors.ErrStoreQuotaExceeded, "storage quota exceeded")
		}
	}

	b.items[key] = value
	return nil
}

// GetItem implements Backend.
func (b *MemoryBackend) GetItem(key string) (string, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	value, ok := b.items[key]
	return value, ok, nil
}

// RemoveItem implements Backend.
func (b *MemoryBackend) RemoveItem(key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.items, key)
	return nil
}

// Keys implements Backend.
func (b *MemoryBackend) Keys() ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	keys := make([]string, 0, len(b.items))
	for k := range b.items {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// UsedBytes implements Backend.
func (b *MemoryBackend) UsedBytes() (int64, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.usedLocked(), nil
}

func (b *MemoryBackend) usedLocked() int64 {
	var used int64
	for k, v := range b.items {
		used += int64(len(k) + len(v))
	}
	return used
}
