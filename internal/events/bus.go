// Package events provides a typed publish/subscribe bus for sync lifecycle
// notifications. It replaces ad-hoc named events with explicit payload types.
package events

import (
	"sync"
	"time"
)

// SyncStarted is published when a sync cycle begins.
type SyncStarted struct {
	At time.Time
}

// SyncCompleted is published after a fully successful cycle.
type SyncCompleted struct {
	Pushed   int
	Pulled   int
	Duration time.Duration
}

// SyncFailed is published when a cycle ends in error.
type SyncFailed struct {
	Code string
	Err  error
}

// MergeApplied is published after a remote pull merged into a local key.
type MergeApplied struct {
	Key      string
	Added    int
	Replaced int
}

// EntryDropped is published when an outbox entry exhausts its retries and is
// discarded as permanently failed.
type EntryDropped struct {
	Key     string
	Action  string
	Retries int
}

// Bus fans events out to registered subscribers. Delivery is synchronous in
// the publisher's goroutine; subscribers must not block.
type Bus struct {
	mu           sync.RWMutex
	syncStarted  []func(SyncStarted)
	syncDone     []func(SyncCompleted)
	syncFailed   []func(SyncFailed)
	mergeApplied []func(MergeApplied)
	entryDropped []func(EntryDropped)
}

// NewBus creates an empty Bus.
func NewBus() *Bus {
	return &Bus{}
}

func (b *Bus) SubscribeSyncStarted(fn func(SyncStarted)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.syncStarted = append(b.syncStarted, fn)
}

func (b *Bus) SubscribeSyncCompleted(fn func(SyncCompleted)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.syncDone = append(b.syncDone, fn)
}

func (b *Bus) SubscribeSyncFailed(fn func(SyncFailed)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.syncFailed = append(b.syncFailed, fn)
}

func (b *Bus) SubscribeMergeApplied(fn func(MergeApplied)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.mergeApplied = append(b.mergeApplied, fn)
}

func (b *Bus) SubscribeEntryDropped(fn func(EntryDropped)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entryDropped = append(b.entryDropped, fn)
}

func (b *Bus) PublishSyncStarted(e SyncStarted) {
	b.mu.RLock()
	subs := b.syncStarted
	b.mu.RUnlock()
	for _, fn := range subs {
		fn(e)
	}
}

func (b *Bus) PublishSyncCompleted(e SyncCompleted) {
	b.mu.RLock()
	subs := b.syncDone
	b.mu.RUnlock()
	for _, fn := range subs {
		fn(e)
	}
}

func (b *Bus) PublishSyncFailed(e SyncFailed) {
	b.mu.RLock()
	subs := b.syncFailed
	b.mu.RUnlock()
	for _, fn := range subs {
		fn(e)
	}
}

func (b *Bus) PublishMergeApplied(e MergeApplied) {
	b.mu.RLock()
	subs := b.mergeApplied
	b.mu.RUnlock()
	for _, fn := range subs {
		fn(e)
	}
}

func (b *Bus) PublishEntryDropped(e EntryDropped) {
	b.mu.RLock()
	subs := b.entryDropped
	b.mu.RUnlock()
	for _, fn := range subs {
		fn(e)
	}
}
