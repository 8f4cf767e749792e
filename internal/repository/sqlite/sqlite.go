// Package sqlite implements the repository interfaces on top of SQLite.
//
// The store runs on modernc.org/sqlite (pure Go, no CGo) through database/sql.
// The pool is capped at one connection: SQLite allows a single writer anyway,
// and a single connection keeps ":memory:" databases coherent in tests.
// Every statement goes through db.q(ctx), which picks up a transaction stored
// in the context by WithinTx, so services can compose several repository calls
// into one atomic write.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sqlitedriver "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/sakif/knowledge-library/internal/apperror"
	"github.com/sakif/knowledge-library/internal/repository"
)

const defaultBusyTimeout = 5 * time.Second

var _ repository.Transactor = (*DB)(nil)

// DB wraps the sql.DB pool and implements every repository interface.
type DB struct {
	conn *sql.DB
}

type options struct {
	busyTimeout time.Duration
}

// Option configures New.
type Option func(*options)

// WithBusyTimeout sets how long a statement waits on a locked database before
// failing with apperror.ErrUnavailable.
func WithBusyTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.busyTimeout = d
		}
	}
}

// New opens the database at dbPath (":memory:" for an ephemeral one) and runs
// migrations.
func New(dbPath string, opts ...Option) (*DB, error) {
	o := options{busyTimeout: defaultBusyTimeout}
	for _, opt := range opts {
		opt(&o)
	}

	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}
	conn.SetMaxOpenConns(1)
	conn.SetConnMaxLifetime(0)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		fmt.Sprintf("PRAGMA busy_timeout=%d", o.busyTimeout.Milliseconds()),
	}
	for _, p := range pragmas {
		if _, err := conn.Exec(p); err != nil {
			conn.Close()
			return nil, fmt.Errorf("sqlite: %s: %w", p, err)
		}
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping reports whether the database is reachable.
func (db *DB) Ping(ctx context.Context) error {
	if err := db.conn.PingContext(ctx); err != nil {
		return classify("ping", err)
	}
	return nil
}

// ===== TRANSACTIONS =====

type txKey struct{}

// querier is the subset of *sql.DB and *sql.Tx the repositories use.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (db *DB) q(ctx context.Context) querier {
	if tx, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return tx
	}
	return db.conn
}

// WithinTx runs fn in a transaction. A transaction already present in ctx is
// reused, so nested calls commit or roll back with the outermost one.
func (db *DB) WithinTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if _, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return fn(ctx)
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return classify("beginning transaction", err)
	}
	ctx = context.WithValue(ctx, txKey{}, tx)

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		if commitErr := tx.Commit(); commitErr != nil {
			err = classify("committing transaction", commitErr)
		}
	}()

	err = fn(ctx)
	return err
}

// ===== ERROR MAPPING =====

// classify turns driver failures into apperror kinds. Lock contention and
// expired deadlines are retryable; everything else stays a plain wrapped error
// that callers treat as internal.
func classify(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return apperror.Unavailable("database operation timed out", fmt.Errorf("sqlite: %s: %w", op, err))
	}
	var se *sqlitedriver.Error
	if errors.As(err, &se) {
		switch se.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
			return apperror.Unavailable("database is busy, retry later", fmt.Errorf("sqlite: %s: %w", op, err))
		}
	}
	return fmt.Errorf("sqlite: %s: %w", op, err)
}

func isUniqueViolation(err error) bool {
	var se *sqlitedriver.Error
	return errors.As(err, &se) && se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
}

// ===== MIGRATIONS =====

func (db *DB) migrate() error {
	stmts := []struct {
		name string
		sql  string
	}{
		{"users", `
			CREATE TABLE IF NOT EXISTS users (
				id            TEXT PRIMARY KEY,
				username      TEXT NOT NULL UNIQUE,
				password_hash TEXT NOT NULL,
				created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
			);`},
		{"categories", `
			CREATE TABLE IF NOT EXISTS categories (
				id         TEXT PRIMARY KEY,
				name       TEXT NOT NULL,
				parent_id  TEXT REFERENCES categories(id),
				created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
			);
			CREATE INDEX IF NOT EXISTS idx_categories_parent_id ON categories(parent_id);
			CREATE INDEX IF NOT EXISTS idx_categories_name ON categories(name);`},
		{"entries", `
			CREATE TABLE IF NOT EXISTS entries (
				id         TEXT PRIMARY KEY,
				user_id    TEXT NOT NULL REFERENCES users(id),
				title      TEXT NOT NULL,
				content    TEXT NOT NULL,
				created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
			);
			CREATE INDEX IF NOT EXISTS idx_entries_user_updated ON entries(user_id, updated_at);`},
		{"links", `
			CREATE TABLE IF NOT EXISTS links (
				id       TEXT PRIMARY KEY,
				entry_id TEXT NOT NULL REFERENCES entries(id) ON DELETE CASCADE,
				title    TEXT NOT NULL DEFAULT '',
				url      TEXT NOT NULL DEFAULT '',
				position INTEGER NOT NULL DEFAULT 0
			);
			CREATE INDEX IF NOT EXISTS idx_links_entry_id ON links(entry_id);`},
		{"videos", `
			CREATE TABLE IF NOT EXISTS videos (
				id         TEXT PRIMARY KEY,
				entry_id   TEXT NOT NULL REFERENCES entries(id) ON DELETE CASCADE,
				title      TEXT NOT NULL DEFAULT '',
				youtube_id TEXT NOT NULL DEFAULT '',
				position   INTEGER NOT NULL DEFAULT 0
			);
			CREATE INDEX IF NOT EXISTS idx_videos_entry_id ON videos(entry_id);`},
		{"entry_categories", `
			CREATE TABLE IF NOT EXISTS entry_categories (
				entry_id    TEXT NOT NULL REFERENCES entries(id) ON DELETE CASCADE,
				category_id TEXT NOT NULL REFERENCES categories(id) ON DELETE CASCADE,
				PRIMARY KEY (entry_id, category_id)
			);
			CREATE INDEX IF NOT EXISTS idx_entry_categories_category ON entry_categories(category_id);`},
	}

	for _, s := range stmts {
		if _, err := db.conn.Exec(s.sql); err != nil {
			return fmt.Errorf("creating %s table: %w", s.name, err)
		}
	}
	return nil
}
