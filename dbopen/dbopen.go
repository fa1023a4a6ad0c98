// Package dbopen opens the local SQLite database backing the offline mirror.
//
// Every handle gets WAL journaling, NORMAL synchronous mode, foreign keys and
// a busy timeout, applied with plain EXEC statements after sql.Open so the
// settings do not depend on driver-specific DSN parameters. Callers
// blank-import modernc.org/sqlite, which registers the "sqlite" driver.
//
//	db, err := dbopen.Open("data/vitrine.db", dbopen.WithMkdirAll())
//
// Tests use an in-memory database closed with the test:
//
//	db := dbopen.OpenMemory(t)
package dbopen

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

const (
	driverName         = "sqlite"
	defaultBusyTimeout = 10_000
)

type options struct {
	busyTimeout int
	mkdirAll    bool
	statements  []string
}

// Option tunes Open.
type Option func(*options)

// WithBusyTimeout overrides PRAGMA busy_timeout (milliseconds).
func WithBusyTimeout(ms int) Option { return func(o *options) { o.busyTimeout = ms } }

// WithMkdirAll creates the parent directory of the database file if needed.
func WithMkdirAll() Option { return func(o *options) { o.mkdirAll = true } }

// WithSchema runs stmt once the pragmas are in place. Statements run in the
// order they were given.
func WithSchema(stmt string) Option {
	return func(o *options) { o.statements = append(o.statements, stmt) }
}

// Open returns a verified handle on the database at path.
func Open(path string, opts ...Option) (*sql.DB, error) {
	o := options{busyTimeout: defaultBusyTimeout}
	for _, fn := range opts {
		fn(&o)
	}

	if o.mkdirAll && path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("dbopen: create directory for %s: %w", path, err)
		}
	}

	db, err := sql.Open(driverName, path)
	if err != nil {
		return nil, fmt.Errorf("dbopen: open %s: %w", path, err)
	}
	if err := prepare(db, o); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// OpenMemory opens a private in-memory database for a test. The pool is
// capped at one connection because each ":memory:" connection is its own
// database.
func OpenMemory(t testing.TB, opts ...Option) *sql.DB {
	t.Helper()
	db, err := Open(":memory:", opts...)
	if err != nil {
		t.Fatalf("dbopen: in-memory database: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

func prepare(db *sql.DB, o options) error {
	stmts := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
		fmt.Sprintf("PRAGMA busy_timeout = %d", o.busyTimeout),
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return fmt.Errorf("dbopen: %s: %w", s, err)
		}
	}
	for i, s := range o.statements {
		if _, err := db.Exec(s); err != nil {
			return fmt.Errorf("dbopen: schema statement %d: %w", i, err)
		}
	}
	// sql.Open is lazy; a missing parent directory only surfaces here.
	if err := db.Ping(); err != nil {
		return fmt.Errorf("dbopen: ping: %w", err)
	}
	return nil
}
