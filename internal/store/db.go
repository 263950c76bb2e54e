package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const schema = `
PRAGMA journal_mode = WAL;
PRAGMA synchronous = NORMAL;
PRAGMA busy_timeout = 5000;

CREATE TABLE IF NOT EXISTS meta (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`

// Well-known meta keys.
const (
	KeyUserID        = "user_id"
	KeyLastSessionID = "last_session_id"
	keySchemaVersion = "schema_version"
)

// schemaVersion should be bumped whenever the layout of meta values changes.
const schemaVersion = "1"

// DB holds the client-local state: the installation's user identifier and
// the session to resume.
type DB struct {
	db *sql.DB
}

func OpenDB(dbPath string) (*DB, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	d := &DB{db: db}
	if err := d.Set(keySchemaVersion, schemaVersion); err != nil {
		db.Close()
		return nil, fmt.Errorf("record schema version: %w", err)
	}
	return d, nil
}

func (d *DB) Close() error {
	return d.db.Close()
}

// Get returns the value stored under key; ok is false when the key is absent.
func (d *DB) Get(key string) (value string, ok bool, err error) {
	err = d.db.QueryRow("SELECT value FROM meta WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get %s: %w", key, err)
	}
	return value, true, nil
}

func (d *DB) Set(key, value string) error {
	if _, err := d.db.Exec("INSERT OR REPLACE INTO meta (key, value) VALUES (?, ?)", key, value); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// SetIfAbsent stores value under key unless a value is already present and
// returns whichever value ends up stored.
func (d *DB) SetIfAbsent(key, value string) (string, error) {
	tx, err := d.db.Begin()
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("INSERT OR IGNORE INTO meta (key, value) VALUES (?, ?)", key, value); err != nil {
		return "", fmt.Errorf("insert %s: %w", key, err)
	}
	var stored string
	if err := tx.QueryRow("SELECT value FROM meta WHERE key = ?", key).Scan(&stored); err != nil {
		return "", fmt.Errorf("read back %s: %w", key, err)
	}
	if err := tx.Commit(); err != nil {
		return "", err
	}
	return stored, nil
}

func (d *DB) Delete(key string) error {
	if _, err := d.db.Exec("DELETE FROM meta WHERE key = ?", key); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// Count returns the number of meta rows, used by guru doctor.
func (d *DB) Count() (int, error) {
	var n int
	err := d.db.QueryRow("SELECT COUNT(*) FROM meta").Scan(&n)
	return n, err
}
