package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// SQLiteBackend is the durable Backend, a single key-value table in SQLite.
type SQLiteBackend struct {
	db *sql.DB
}

// OpenSQLite opens (creating if necessary) the local store database under
// dataDir. The database is opened with:
// - WAL mode for concurrent reads/writes
// - a single writer connection (SQLite doesn't support multiple writers)
func OpenSQLite(dataDir string) (*SQLiteBackend, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "localstore.db")

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	schema := `CREATE TABLE IF NOT EXISTS kv_store (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);`
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to create kv_store table: %w", err)
	}

	return &SQLiteBackend{db: db}, nil
}

// Close closes the database connection.
func (b *SQLiteBackend) Close() error {
	return b.db.Close()
}

// SetItem implements Backend.
func (b *SQLiteBackend) SetItem(key, value string) error {
	_, err := b.db.Exec(
		`INSERT INTO kv_store (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	return err
}

// GetItem implements Backend.
func (b *SQLiteBackend) GetItem(key string) (string, bool, error) {
	var value string
	err := b.db.QueryRow(`SELECT value FROM kv_store WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// RemoveItem implements Backend.
func (b *SQLiteBackend) RemoveItem(key string) error {
	_, err := b.db.Exec(`DELETE FROM kv_store WHERE key = ?`, key)
	return err
}

// Keys implements Backend.
func (b *SQLiteBackend) Keys() ([]string, error) {
	rows, err := b.db.Query(`SELECT key FROM kv_store ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// UsedBytes implements Backend.
func (b *SQLiteBackend) UsedBytes() (int64, error) {
	var used int64
	err := b.db.QueryRow(
		`SELECT COALESCE(SUM(LENGTH(key) + LENGTH(value)), 0) FROM kv_store`,
	).Scan(&used)
	return used, err
}
