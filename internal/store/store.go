// Package store provides the SQLite-backed plan record store.
//
// The store holds one row per plan. A plan's structured content is stored as a
// JSON document next to a version column; every mutation of the structured
// content goes through a conditional write guarded by that column, so a writer
// whose observed version is stale is rejected rather than silently
// overwritten. This version-guarded update contract is the store's real
// external interface: any backing implementation must honor it for the sync
// layer to be correct.
//
// The database runs embedded with WAL mode for concurrent readers during
// writes.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// ErrNotFound is returned when no plan exists for the given id.
// It is distinct from a plan whose document has no sections.
var ErrNotFound = errors.New("plan not found")

// ErrConflict is returned when a conditional write observes a version
// mismatch: another writer advanced the record since the caller last read it.
var ErrConflict = errors.New("version conflict")

// DB wraps the SQLite connection with plan-store functionality.
type DB struct {
	conn *sql.DB
	path string
}

// Open creates a new database connection at the specified path.
//
// The parent directory is created if missing. The caller MUST call Close()
// when done.
//
// Example:
//
//	db, err := store.Open(".pathwise/pathwise.db")
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
func Open(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	connStr := fmt.Sprintf("file:%s", path)
	conn, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	db := &DB{
		conn: conn,
		path: path,
	}

	// WAL mode for concurrent reads
	if _, err := db.conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if _, err := db.conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if _, err := db.conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// RawDB returns the underlying sql.DB connection.
// This is useful for integrating with other layers that expect *sql.DB.
func (db *DB) RawDB() *sql.DB {
	return db.conn
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// Close closes the database connection.
// Performs a WAL checkpoint to ensure all changes are persisted.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}

	if _, err := db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}

	if err := db.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	db.conn = nil
	return nil
}

// InitSchema creates the database schema if it doesn't exist.
// Idempotent - safe to call multiple times.
func (db *DB) InitSchema() error {
	return db.InitSchemaContext(context.Background())
}

// InitSchemaContext creates the database schema with context support.
func (db *DB) InitSchemaContext(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS plans (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		topic TEXT NOT NULL,
		raw_content TEXT NOT NULL,

		-- Set for importer-managed plans: the file the plan mirrors
		source_path TEXT,

		-- JSON document; NULL for legacy rows that predate structuring
		structured_content TEXT,

		-- Redundant with the document, persisted for fast listing
		progress INTEGER NOT NULL DEFAULT 0,

		-- Optimistic concurrency stamp; every accepted write increments it
		version INTEGER NOT NULL DEFAULT 0,

		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS calendar_tasks (
		plan_id TEXT NOT NULL,
		section_id TEXT NOT NULL,
		item_id TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		due_at TEXT,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (plan_id, section_id, item_id),
		FOREIGN KEY (plan_id) REFERENCES plans(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_plans_owner ON plans(owner_id);
	CREATE INDEX IF NOT EXISTS idx_plans_source ON plans(owner_id, source_path);
	CREATE INDEX IF NOT EXISTS idx_plans_updated ON plans(updated_at);
	CREATE INDEX IF NOT EXISTS idx_calendar_status ON calendar_tasks(status);
	`

	if _, err := db.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	return nil
}
