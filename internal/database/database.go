package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// Config holds datastore configuration. The store is a single SQLite file;
// there is no connection pool to speak of because the design is
// single-writer, short-lived invocation.
type Config struct {
	// Path is the location of the datastore file. ":memory:" is accepted
	// for tests.
	Path string
	// BusyTimeout bounds how long a statement waits on a locked file.
	BusyTimeout time.Duration
}

// DefaultConfig returns sensible defaults for datastore configuration.
func DefaultConfig() Config {
	return Config{
		BusyTimeout: 5 * time.Second,
	}
}

// Open opens (creating if necessary) the SQLite datastore file and applies
// connection pragmas. The parent directory is created when missing.
func Open(ctx context.Context, cfg Config) (*sql.DB, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("datastore path is required")
	}

	if cfg.Path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
			return nil, &StorageError{Op: "open", Err: err}
		}
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, &StorageError{Op: "open", Err: err}
	}

	// A single writer is assumed; more connections would only invite
	// SQLITE_BUSY on the shared file.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()),
		"PRAGMA journal_mode = WAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, &StorageError{Op: "pragma", Err: err}
		}
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, &StorageError{Op: "ping", Err: err}
	}

	return db, nil
}

// Execer is the subset of database/sql shared by *sql.DB and *sql.Tx, so
// repositories can run standalone or inside a caller-owned transaction.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const timestampLayout = time.RFC3339

func nowText() string {
	return time.Now().UTC().Format(timestampLayout)
}

func parseTimestamp(s string) time.Time {
	t, err := time.Parse(timestampLayout, s)
	if err != nil {
		// Legacy rows written by SQLite's CURRENT_TIMESTAMP.
		t, _ = time.Parse("2006-01-02 15:04:05", s)
	}
	return t
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func strPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
