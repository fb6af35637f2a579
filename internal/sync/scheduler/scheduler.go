// Package scheduler decides when the sync engine runs: periodic timers,
// detector polling, connectivity edges, visibility changes, and shutdown.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/dmaraujo/retrosync/internal/logging"
	syncpkg "github.com/dmaraujo/retrosync/internal/sync"
	"github.com/dmaraujo/retrosync/internal/sync/detector"
)

// Config holds scheduler timing.
type Config struct {
	// SyncInterval is how often a periodic sync fires while online.
	SyncInterval time.Duration
	// PollInterval is how often change detectors re-check their keys.
	PollInterval time.Duration
	// VisibilityDelay is the pause before a visibility-triggered sync,
	// to avoid a thundering herd on focus.
	VisibilityDelay time.Duration
}

// DefaultConfig returns default scheduler timing.
func DefaultConfig() *Config {
	return &Config{
		SyncInterval:    30 * time.Second,
		PollInterval:    2 * time.Second,
		VisibilityDelay: time.Second,
	}
}

// Scheduler runs the detector poll loop and triggers sync cycles.
type Scheduler struct {
	runner    syncpkg.Runner
	detectors []*detector.Detector
	cfg       *Config
	logger    *logging.Logger

	stopCh chan struct{}
	wg     sync.WaitGroup
	ctx    context.Context

	mu      sync.RWMutex
	running bool
	online  bool
}

// New creates a Scheduler. A nil cfg uses DefaultConfig. The scheduler
// assumes it is online until told otherwise.
func New(runner syncpkg.Runner, detectors []*detector.Detector, cfg *Config, logger *logging.Logger) *Scheduler {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = logging.Get()
	}
	return &Scheduler{
		runner:    runner,
		detectors: detectors,
		cfg:       cfg,
		logger:    logger,
		stopCh:    make(chan struct{}),
		ctx:       context.Background(),
		online:    true,
	}
}

// Start launches the periodic sync and detector poll loops.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.ctx = ctx
	s.stopCh = make(chan struct{})
	stopCh := s.stopCh
	s.mu.Unlock()

	s.wg.Add(2)
	go s.syncLoop(ctx, stopCh)
	go s.pollLoop(ctx, stopCh)

	s.logger.Info("sync scheduler started", map[string]interface{}{
		"sync_interval": s.cfg.SyncInterval.String(),
		"poll_interval": s.cfg.PollInterval.String(),
		"detectors":     len(s.detectors),
	})
}

// Stop halts the loops without flushing. Idempotent, and the scheduler can
// be started again afterwards.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	stopCh := s.stopCh
	s.mu.Unlock()

	close(stopCh)
	s.wg.Wait()

	s.logger.Info("sync scheduler stopped", nil)
}

// Shutdown stops the loops and persists pending outbox state. Used on
// process exit; no network calls are attempted.
func (s *Scheduler) Shutdown() {
	s.Stop()
	s.runner.EmergencyFlush()
}

// SetOnline updates connectivity. A transition from offline to online
// triggers an immediate sync, matching the "came back online" event.
func (s *Scheduler) SetOnline(online bool) {
	s.mu.Lock()
	wasOnline := s.online
	s.online = online
	ctx := s.ctx
	s.mu.Unlock()

	if wasOnline != online {
		s.logger.Info("online status changed", map[string]interface{}{
			"was_online": wasOnline,
			"is_online":  online,
		})
	}

	if !wasOnline && online {
		go s.run(ctx)
	}
}

// NotifyVisible reports the UI becoming visible. Triggers a sync after a
// short delay while still online.
func (s *Scheduler) NotifyVisible() {
	time.AfterFunc(s.cfg.VisibilityDelay, func() {
		if !s.IsOnline() || !s.IsRunning() {
			return
		}
		s.mu.RLock()
		ctx := s.ctx
		s.mu.RUnlock()
		s.run(ctx)
	})
}

// TriggerSync forces an immediate sync cycle, bypassing the timer.
func (s *Scheduler) TriggerSync() {
	s.mu.RLock()
	ctx := s.ctx
	s.mu.RUnlock()
	go s.run(ctx)
}

// CheckNow runs every detector once, outside the poll loop. Useful for
// tests and for flushing just before an explicit sync.
func (s *Scheduler) CheckNow() {
	for _, d := range s.detectors {
		d.Check()
	}
}

// IsOnline reports current connectivity.
func (s *Scheduler) IsOnline() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.online
}

// IsRunning reports whether the loops are active.
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// syncLoop fires periodic sync cycles while online.
func (s *Scheduler) syncLoop(ctx context.Context, stopCh <-chan struct{}) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.SyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			if !s.IsOnline() {
				continue
			}
			go s.run(ctx)
		}
	}
}

// pollLoop drives the change detectors.
func (s *Scheduler) pollLoop(ctx context.Context, stopCh <-chan struct{}) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			s.CheckNow()
		}
	}
}

// run executes one sync cycle. Overlap is rejected inside the engine, so
// concurrent triggers collapse into one cycle.
func (s *Scheduler) run(ctx context.Context) {
	if err := s.runner.PerformSync(ctx); err != nil {
		s.logger.Warn("triggered sync failed",
			map[string]interface{}{"error": err.Error()})
	}
}
