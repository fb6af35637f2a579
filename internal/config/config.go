// Package config provides application configuration through environment variables.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/allisson/go-env"
	"github.com/joho/godotenv"
)

// Config holds all sync daemon configuration.
type Config struct {
	// DataDir is the directory holding the local store database.
	DataDir string
	// Namespace prefixes every key written to the local store backend.
	Namespace string

	// RemoteBaseURL is the base URL of the remote sync API.
	RemoteBaseURL string
	// ClientID identifies this client in push requests. Generated and
	// persisted on first run when empty.
	ClientID string

	// ListenAddr is the address the status/websocket server binds to.
	ListenAddr string

	// LogLevel is the logging level (debug, info, warn, error).
	LogLevel string

	// SyncInterval is how often the periodic sync trigger fires.
	SyncInterval time.Duration
	// PollInterval is how often change detectors re-check their keys.
	PollInterval time.Duration
	// VisibilityDelay is the pause before a visibility-triggered sync.
	VisibilityDelay time.Duration
	// DrainBackoff is the pause between consecutive drain rounds when the
	// outbox still holds entries after a batch.
	DrainBackoff time.Duration
	// RequestTimeout bounds every individual remote API call.
	RequestTimeout time.Duration

	// DrainBatchSize is the maximum number of outbox entries sent per round.
	DrainBatchSize int
	// MaxRetries is the number of failed send attempts before an entry is
	// dropped as permanently failed.
	MaxRetries int
	// OutboxCap bounds the outbox; oldest entries are evicted beyond it.
	OutboxCap int

	// CompressionThreshold is the serialized-value size in bytes above which
	// the store codec kicks in. Zero disables compression.
	CompressionThreshold int
}

// Load loads configuration from environment variables and .env file.
func Load() *Config {
	loadDotEnv()

	return &Config{
		DataDir:   env.GetString("SYNC_DATA_DIR", "./data"),
		Namespace: env.GetString("SYNC_NAMESPACE", "orkut2025_"),

		RemoteBaseURL: env.GetString("SYNC_REMOTE_BASE_URL", "http://localhost:3000/api"),
		ClientID:      env.GetString("SYNC_CLIENT_ID", ""),

		ListenAddr: env.GetString("SYNC_LISTEN_ADDR", "127.0.0.1:8090"),

		LogLevel: env.GetString("LOG_LEVEL", "info"),

		SyncInterval:    env.GetDuration("SYNC_INTERVAL_SECONDS", 30, time.Second),
		PollInterval:    env.GetDuration("SYNC_POLL_INTERVAL_SECONDS", 2, time.Second),
		VisibilityDelay: env.GetDuration("SYNC_VISIBILITY_DELAY_SECONDS", 1, time.Second),
		DrainBackoff:    env.GetDuration("SYNC_DRAIN_BACKOFF_SECONDS", 1, time.Second),
		RequestTimeout:  env.GetDuration("SYNC_REQUEST_TIMEOUT_SECONDS", 30, time.Second),

		DrainBatchSize: env.GetInt("SYNC_DRAIN_BATCH_SIZE", 50),
		MaxRetries:     env.GetInt("SYNC_MAX_RETRIES", 3),
		OutboxCap:      env.GetInt("SYNC_OUTBOX_CAP", 1000),

		CompressionThreshold: env.GetInt("SYNC_COMPRESSION_THRESHOLD", 1000),
	}
}

// loadDotEnv searches for a .env file recursively from the current directory
// up to the root directory and loads it if found.
func loadDotEnv() {
	cwd, err := os.Getwd()
	if err != nil {
		return
	}

	dir := cwd
	for {
		envPath := filepath.Join(dir, ".env")
		if _, err := os.Stat(envPath); err == nil {
			_ = godotenv.Load(envPath)
			return
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
}
