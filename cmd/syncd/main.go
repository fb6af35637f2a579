// Command syncd runs the local-first sync daemon. It persists application
// data in a local SQLite store, queues outbound mutations, drains them
// against the remote API, and serves a localhost status/websocket API.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"

	"github.com/dmaraujo/retrosync/internal/config"
	"github.com/dmaraujo/retrosync/internal/events"
	"github.com/dmaraujo/retrosync/internal/logging"
	"github.com/dmaraujo/retrosync/internal/manager"
	"github.com/dmaraujo/retrosync/internal/store"
	syncpkg "github.com/dmaraujo/retrosync/internal/sync"
	"github.com/dmaraujo/retrosync/internal/sync/detector"
	"github.com/dmaraujo/retrosync/internal/sync/outbox"
	"github.com/dmaraujo/retrosync/internal/sync/scheduler"
)

func main() {
	cfg := config.Load()

	logging.Init(os.Stdout, cfg.LogLevel)
	logger := logging.Get()

	backend, err := store.OpenSQLite(cfg.DataDir)
	if err != nil {
		logger.Error("failed to open local store", err,
			map[string]interface{}{"data_dir": cfg.DataDir})
		os.Exit(1)
	}
	defer backend.Close()

	st := store.New(backend, &store.Config{
		Namespace:            cfg.Namespace,
		Codec:                store.GzipCodec{},
		CompressionThreshold: cfg.CompressionThreshold,
	}, logger)

	ob := outbox.New(st, cfg.OutboxCap, logger)
	st.SetEnqueuer(ob)

	detectors := detector.Standard(st, ob, logger)

	remote := syncpkg.NewHTTPRemoteClient(
		cfg.RemoteBaseURL,
		clientID(cfg, st),
		syncpkg.NewStoreTokenSource(st),
		nil,
	)

	bus := events.NewBus()

	engine := syncpkg.NewEngine(st, ob, remote, bus, &syncpkg.Config{
		BatchSize:      cfg.DrainBatchSize,
		MaxRetries:     cfg.MaxRetries,
		RequestTimeout: cfg.RequestTimeout,
		DrainBackoff:   cfg.DrainBackoff,
	}, logger)

	sched := scheduler.New(engine, detectors, &scheduler.Config{
		SyncInterval:    cfg.SyncInterval,
		PollInterval:    cfg.PollInterval,
		VisibilityDelay: cfg.VisibilityDelay,
	}, logger)

	mgr := manager.New(st, ob, engine, sched, logger)

	hub := NewWSHub(logger)
	hub.AttachBus(bus)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sched.Start(ctx)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", handleHealth())
	mux.HandleFunc("/sync/status", handleSyncStatus(mgr))
	mux.HandleFunc("/sync/now", handleSyncNow(mgr))
	mux.HandleFunc("/backup", handleBackup(mgr))
	mux.HandleFunc("/restore", handleRestore(mgr))
	mux.HandleFunc("/ws", HandleWebSocket(hub))

	server := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: mux,
	}

	go func() {
		logger.Info("sync daemon listening", map[string]interface{}{
			"addr":   cfg.ListenAddr,
			"remote": cfg.RemoteBaseURL,
		})
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server failed", err)
			cancel()
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal received",
			map[string]interface{}{"signal": sig.String()})
	case <-ctx.Done():
	}

	// Stop triggers first so no new cycle starts mid-shutdown, then persist
	// whatever the outbox still holds.
	sched.Shutdown()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.RequestTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown incomplete",
			map[string]interface{}{"error": err.Error()})
	}

	logger.Info("sync daemon stopped", nil)
}

// clientID returns the configured client identifier, or a generated one
// persisted locally so the same installation keeps its identity across runs.
func clientID(cfg *config.Config, st *store.Store) string {
	if cfg.ClientID != "" {
		return cfg.ClientID
	}

	if id, ok := st.Get("client_id", "").(string); ok && id != "" {
		return id
	}

	id := uuid.New().String()
	st.Set("client_id", id, store.NoSync)
	return id
}
