// Package db provides the embedded SQLite record store behind zonesync.
//
// The store plays the role of the remote record backend for local use and
// tests: it implements gateway.Backend over a records table with a global
// write version, gateway.TokenStore over a tokens table, and share.Account.
//
// Architecture:
//   - Database file: .zonesync/zonesync.db
//   - WAL mode: Concurrent readers during writes
//   - Schema: zones, records, tokens, sequence tables
//   - Change feeds: every write bumps the sequence; tokens are versions
//
// Records live in one of two scopes (local, shared) keyed by
// (scope, owner, zone, name). Accepting a share copies the shared subtree
// from the local scope into the shared scope.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"github.com/rs/zerolog"

	"github.com/mschirtzinger/zonesync/internal/cloudsync/record"
	"github.com/mschirtzinger/zonesync/internal/logging"
)

// DefaultPageSize is the number of zones or records returned per change page.
const DefaultPageSize = 100

// DB wraps the SQLite connection.
type DB struct {
	conn     *sql.DB
	path     string
	pageSize int
	logger   *zerolog.Logger
}

// Open creates a new database connection at the specified path.
//
// The database is opened with WAL for concurrent reads. The caller MUST call
// Close() when done.
//
// Example:
//
//	store, err := db.Open(".zonesync/zonesync.db", nil)
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
func Open(path string, logger *zerolog.Logger) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// Pragmas go in the DSN so every pooled connection gets them.
	dsn := fmt.Sprintf("file:%s?_txlock=immediate"+
		"&_pragma=journal_mode(wal)"+
		"&_pragma=busy_timeout(5000)"+
		"&_pragma=foreign_keys(on)", path)
	conn, err := sql.Open("sqlite3", dsn)
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
		conn:     conn,
		path:     path,
		pageSize: DefaultPageSize,
		logger:   logging.OrDefault(logger, "db"),
	}

	var mode string
	if err := db.conn.QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to read journal mode: %w", err)
	}
	if mode != "wal" {
		db.logger.Warn().Str("mode", mode).Msg("WAL mode not enabled")
	}

	return db, nil
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// SetPageSize sets how many zones or records a change page holds.
// Values below 1 restore DefaultPageSize.
func (db *DB) SetPageSize(n int) {
	if n < 1 {
		n = DefaultPageSize
	}
	db.pageSize = n
}

// Close closes the database connection after checkpointing the WAL.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}

	if _, err := db.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		db.logger.Warn().Err(err).Msg("Failed to checkpoint WAL")
	}

	if err := db.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	db.conn = nil
	return nil
}

// InitSchema creates the database schema if it doesn't exist.
// This is idempotent.
func (db *DB) InitSchema() error {
	return db.InitSchemaContext(context.Background())
}

// InitSchemaContext creates the database schema with context support.
func (db *DB) InitSchemaContext(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS zones (
		scope TEXT NOT NULL,
		owner TEXT NOT NULL,
		name TEXT NOT NULL,
		created_at TEXT NOT NULL,
		PRIMARY KEY (scope, owner, name)
	);

	CREATE TABLE IF NOT EXISTS records (
		scope TEXT NOT NULL,
		owner TEXT NOT NULL,
		zone TEXT NOT NULL,
		name TEXT NOT NULL,
		type TEXT NOT NULL,
		fields TEXT NOT NULL,  -- JSON object of typed envelopes
		parent_name TEXT,
		parent_action INTEGER NOT NULL DEFAULT 0,
		share_name TEXT,
		version INTEGER NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (scope, owner, zone, name),
		FOREIGN KEY (scope, owner, zone) REFERENCES zones(scope, owner, name) ON DELETE CASCADE
	);

	-- Continuation tokens; zone = '' holds the database token
	CREATE TABLE IF NOT EXISTS tokens (
		scope TEXT NOT NULL,
		owner TEXT NOT NULL DEFAULT '',
		zone TEXT NOT NULL DEFAULT '',
		token BLOB NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (scope, owner, zone)
	);

	CREATE TABLE IF NOT EXISTS sequence (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		version INTEGER NOT NULL
	);
	INSERT OR IGNORE INTO sequence (id, version) VALUES (1, 0);

	CREATE INDEX IF NOT EXISTS idx_records_version ON records(scope, owner, zone, version);
	CREATE INDEX IF NOT EXISTS idx_records_parent ON records(scope, owner, zone, parent_name);
	`

	if _, err := db.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	return nil
}

// RecordCount returns the number of records in scope.
func (db *DB) RecordCount(ctx context.Context, scope record.Scope) (int, error) {
	var count int
	err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM records WHERE scope = ?`, scope.String()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}
	return count, nil
}

// ZoneCount returns the number of zones in scope.
func (db *DB) ZoneCount(ctx context.Context, scope record.Scope) (int, error) {
	var count int
	err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM zones WHERE scope = ?`, scope.String()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count zones: %w", err)
	}
	return count, nil
}

// Version returns the current global write version.
func (db *DB) Version(ctx context.Context) (int64, error) {
	return currentVersion(ctx, db.conn)
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func currentVersion(ctx context.Context, q queryer) (int64, error) {
	var v int64
	if err := q.QueryRowContext(ctx, `SELECT version FROM sequence WHERE id = 1`).Scan(&v); err != nil {
		return 0, fmt.Errorf("failed to read version: %w", err)
	}
	return v, nil
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}
