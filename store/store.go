// Package store is the local durable key-value substrate of the catalog
// mirror. It exposes exactly two collections: "catalog" holds the whole
// snapshot, "media-cache" holds one entry per media URL.
//
// The handle is opened once per process and injected into every component
// that needs it:
//
//	st, err := store.Open(ctx, "data/vitrine.db")
//	if err != nil { ... } // errors.Is(err, store.ErrStoreUnavailable)
//	defer st.Close()
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/hazyhaar/vitrine/dbopen"
)

// Collection names.
const (
	CollectionCatalog = "catalog"
	CollectionMedia   = "media-cache"
)

// ErrStoreUnavailable is returned by Open when local storage cannot be used.
var ErrStoreUnavailable = errors.New("store: storage unavailable")

// ErrWriteFailed is returned when a transactional write did not commit.
// The prior state is left intact.
var ErrWriteFailed = errors.New("store: write failed")

// ErrUnknownCollection is returned for any collection name other than the two
// declared ones.
var ErrUnknownCollection = errors.New("store: unknown collection")

// Store wraps the SQLite handle.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option { return func(s *Store) { s.logger = l } }

// WithClock overrides time.Now (tests).
func WithClock(fn func() time.Time) Option { return func(s *Store) { s.now = fn } }

// Open opens (creating if needed) the database at path and migrates it to
// SchemaVersion. Any failure is reported as ErrStoreUnavailable.
func Open(ctx context.Context, path string, opts ...Option) (*Store, error) {
	db, err := dbopen.Open(path, dbopen.WithMkdirAll())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	s, err := New(ctx, db, opts...)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an already-opened database and migrates it. Schema creation only
// happens when absent, so calling New repeatedly on the same file is safe.
func New(ctx context.Context, db *sql.DB, opts ...Option) (*Store, error) {
	s := &Store{db: db, logger: slog.Default(), now: time.Now}
	for _, o := range opts {
		o(s)
	}
	if err := s.migrate(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return s, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	return dbopen.RunTx(ctx, s.db, func(tx *sql.Tx) error {
		var current int
		if err := tx.QueryRowContext(ctx, "PRAGMA user_version").Scan(&current); err != nil {
			return fmt.Errorf("read user_version: %w", err)
		}
		if current > SchemaVersion {
			// Written by a newer build. Reads stay compatible since
			// unknown fields are ignored by the decoders.
			s.logger.Warn("store: schema newer than this build", "on_disk", current, "supported", SchemaVersion)
			return nil
		}
		for v := current; v < SchemaVersion; v++ {
			if _, err := tx.ExecContext(ctx, migrations[v]); err != nil {
				return fmt.Errorf("migrate to v%d: %w", v+1, err)
			}
		}
		if current < SchemaVersion {
			if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", SchemaVersion)); err != nil {
				return fmt.Errorf("set user_version: %w", err)
			}
			s.logger.Info("store: schema migrated", "from", current, "to", SchemaVersion)
		}
		return nil
	})
}

func checkCollection(c string) error {
	if c != CollectionCatalog && c != CollectionMedia {
		return fmt.Errorf("%w: %q", ErrUnknownCollection, c)
	}
	return nil
}

// TransactionalWrite upserts all entries in one transaction: they become
// visible together or not at all. Values must be non-nil.
func (s *Store) TransactionalWrite(ctx context.Context, collection string, entries map[string][]byte) error {
	if err := checkCollection(collection); err != nil {
		return err
	}
	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	now := s.now().UnixMilli()
	err := dbopen.RunTx(ctx, s.db, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO kv (collection, key, value, updated_at) VALUES (?, ?, ?, ?)
			ON CONFLICT (collection, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, k := range keys {
			v := entries[k]
			if v == nil {
				return fmt.Errorf("nil value for key %q", k)
			}
			if _, err := stmt.ExecContext(ctx, collection, k, v, now); err != nil {
				return fmt.Errorf("put %q: %w", k, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrWriteFailed, collection, err)
	}
	return nil
}

// Read returns the value stored under key. The boolean is false when the key
// is absent.
func (s *Store) Read(ctx context.Context, collection, key string) ([]byte, bool, error) {
	if err := checkCollection(collection); err != nil {
		return nil, false, err
	}
	var v []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM kv WHERE collection = ? AND key = ?`, collection, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("store: read %s/%s: %w", collection, key, err)
	}
	return v, true, nil
}

// ReadHead returns at most the first n bytes of the value under key, plus
// the full value length. Large values are not copied out of SQLite.
func (s *Store) ReadHead(ctx context.Context, collection, key string, n int) (head []byte, size int64, ok bool, err error) {
	if err := checkCollection(collection); err != nil {
		return nil, 0, false, err
	}
	err = s.db.QueryRowContext(ctx,
		`SELECT substr(value, 1, ?), length(value) FROM kv WHERE collection = ? AND key = ?`,
		n, collection, key).Scan(&head, &size)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, 0, false, nil
	}
	if err != nil {
		return nil, 0, false, fmt.Errorf("store: read head %s/%s: %w", collection, key, err)
	}
	return head, size, true, nil
}

// ReadMany reads several keys from one consistent snapshot of the database.
// Absent keys are omitted from the result.
func (s *Store) ReadMany(ctx context.Context, collection string, keys ...string) (map[string][]byte, error) {
	if err := checkCollection(collection); err != nil {
		return nil, err
	}
	out := make(map[string][]byte, len(keys))
	err := dbopen.ReadTx(ctx, s.db, func(tx *sql.Tx) error {
		for _, k := range keys {
			var v []byte
			err := tx.QueryRowContext(ctx,
				`SELECT value FROM kv WHERE collection = ? AND key = ?`, collection, k).Scan(&v)
			if errors.Is(err, sql.ErrNoRows) {
				continue
			}
			if err != nil {
				return fmt.Errorf("read %q: %w", k, err)
			}
			out[k] = v
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("store: read %s: %w", collection, err)
	}
	return out, nil
}

// Keys lists every key of a collection in lexical order.
func (s *Store) Keys(ctx context.Context, collection string) ([]string, error) {
	if err := checkCollection(collection); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT key FROM kv WHERE collection = ? ORDER BY key`, collection)
	if err != nil {
		return nil, fmt.Errorf("store: keys %s: %w", collection, err)
	}
	defer rows.Close()
	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// Clear deletes every entry of a collection (whole-cache eviction).
func (s *Store) Clear(ctx context.Context, collection string) (int64, error) {
	if err := checkCollection(collection); err != nil {
		return 0, err
	}
	res, err := dbopen.Exec(ctx, s.db, `DELETE FROM kv WHERE collection = ?`, collection)
	if err != nil {
		return 0, fmt.Errorf("%w: clear %s: %v", ErrWriteFailed, collection, err)
	}
	n, _ := res.RowsAffected()
	s.logger.Info("store: collection cleared", "collection", collection, "entries", n)
	return n, nil
}
