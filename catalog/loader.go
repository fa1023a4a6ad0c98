package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// Origin tells where a loaded snapshot came from.
type Origin string

const (
	OriginRemote Origin = "remote"
	OriginCache  Origin = "cache"
	OriginMemory Origin = "memory"
)

// Result is what Load hands to the presentation layer.
type Result struct {
	Snapshot *Snapshot `json:"snapshot"`
	Origin   Origin    `json:"origin"`
	// Offline is true when the remote could not be reached and the snapshot
	// may be out of date.
	Offline bool `json:"offline"`
}

// Loader runs the version check, refetches when stale and falls back to the
// cache when the remote is unreachable. Loads are serialized, so at most one
// catalog write is in flight.
type Loader struct {
	remote      RemoteSource
	mapper      RowMapper
	cache       *Cache
	checker     *VersionChecker
	productsRef string
	featureRef  string
	logger      *slog.Logger

	mu   sync.Mutex
	last *Snapshot // last snapshot served, kept for network-only mode
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithProductsRef sets the sheet reference holding product rows. Without it
// rows are read from the same sheet as the version.
func WithProductsRef(ref string) LoaderOption { return func(l *Loader) { l.productsRef = ref } }

// WithFeatureRef sets the sheet reference holding feature records. Without
// it no features are fetched.
func WithFeatureRef(ref string) LoaderOption { return func(l *Loader) { l.featureRef = ref } }

// WithLoaderLogger sets the logger. Default: slog.Default().
func WithLoaderLogger(lg *slog.Logger) LoaderOption { return func(l *Loader) { l.logger = lg } }

// NewLoader wires the remote source, the row mapper and the cache.
func NewLoader(remote RemoteSource, mapper RowMapper, cache *Cache, opts ...LoaderOption) *Loader {
	l := &Loader{
		remote:  remote,
		mapper:  mapper,
		cache:   cache,
		checker: NewVersionChecker(remote, cache),
		logger:  slog.Default(),
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Checker exposes the loader's version checker.
func (l *Loader) Checker() *VersionChecker { return l.checker }

// Current returns the last snapshot served, or nil before the first
// successful Load.
func (l *Loader) Current() *Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.last
}

// Load returns the freshest snapshot available. ref names the sheet holding
// the version cell. It returns ErrNoData when the remote fails and neither
// the cache nor memory holds a snapshot.
func (l *Loader) Load(ctx context.Context, ref string) (*Result, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	d, err := l.checker.ShouldFetch(ctx, ref)
	if err != nil {
		l.logger.Warn("catalog: version check failed, using local data", "ref", ref, "error", err)
		return l.fallback(ctx, err)
	}

	if !d.ShouldFetch {
		if snap, ok := l.cache.Get(ctx); ok {
			l.last = snap
			return &Result{Snapshot: snap, Origin: OriginCache}, nil
		}
		// Meta was readable but the snapshot is not; refetch below.
		l.logger.Warn("catalog: cached version present but snapshot unreadable", "version", d.RemoteVersion)
	}

	snap, err := l.fetch(ctx, ref, d.RemoteVersion)
	if err != nil {
		l.logger.Warn("catalog: refetch failed, using local data", "ref", ref, "error", err)
		return l.fallback(ctx, err)
	}
	l.last = snap
	return &Result{Snapshot: snap, Origin: OriginRemote}, nil
}

func (l *Loader) fetch(ctx context.Context, versionRef, version string) (*Snapshot, error) {
	ref := l.productsRef
	if ref == "" {
		ref = versionRef
	}
	rows, err := l.remote.FetchTabularRows(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("%w: rows from %q: %v", ErrRemoteFetchFailed, ref, err)
	}
	products, err := l.mapper.MapProducts(rows)
	if err != nil {
		return nil, fmt.Errorf("%w: map rows: %v", ErrRemoteFetchFailed, err)
	}

	var features map[string]Feature
	if l.featureRef != "" {
		frows, err := l.remote.FetchTabularRows(ctx, l.featureRef)
		if err != nil {
			return nil, fmt.Errorf("%w: feature rows: %v", ErrRemoteFetchFailed, err)
		}
		if features, err = l.mapper.MapFeatures(frows); err != nil {
			return nil, fmt.Errorf("%w: map features: %v", ErrRemoteFetchFailed, err)
		}
	}

	snap, err := l.cache.Set(ctx, products, version, features, rows)
	if err != nil {
		l.logger.Error("catalog: snapshot not cached, serving from memory", "version", version, "error", err)
	}
	return snap, nil
}

func (l *Loader) fallback(ctx context.Context, cause error) (*Result, error) {
	if snap, ok := l.cache.Get(ctx); ok {
		l.last = snap
		return &Result{Snapshot: snap, Origin: OriginCache, Offline: true}, nil
	}
	if l.last != nil {
		return &Result{Snapshot: l.last, Origin: OriginMemory, Offline: true}, nil
	}
	return nil, errors.Join(ErrNoData, cause)
}
