package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/vitrine/store"
)

// Keys of the catalog collection.
const (
	keyProducts = "products"
	keyMeta     = "meta"
	keyFeatures = "features"
	keyRawRows  = "rawRows"
)

// Cache presents a Snapshot over the four keys of the catalog collection.
// A nil store puts the cache in network-only mode: every Get misses and every
// Set fails with ErrCacheWriteFailed.
type Cache struct {
	store  *store.Store
	logger *slog.Logger
	now    func() time.Time
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithCacheLogger sets the logger. Default: slog.Default().
func WithCacheLogger(l *slog.Logger) CacheOption { return func(c *Cache) { c.logger = l } }

// WithCacheClock overrides time.Now for LastUpdated stamps.
func WithCacheClock(fn func() time.Time) CacheOption { return func(c *Cache) { c.now = fn } }

// NewCache creates a Cache on top of st.
func NewCache(st *store.Store, opts ...CacheOption) *Cache {
	c := &Cache{store: st, logger: slog.Default(), now: time.Now}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Get returns the cached snapshot. Missing or malformed meta or products is
// a miss; storage errors are logged and reported as a miss too.
func (c *Cache) Get(ctx context.Context) (*Snapshot, bool) {
	if c.store == nil {
		return nil, false
	}
	raw, err := c.store.ReadMany(ctx, store.CollectionCatalog, keyProducts, keyMeta, keyFeatures, keyRawRows)
	if err != nil {
		c.logger.Warn("catalog: cache read failed", "error", err)
		return nil, false
	}

	var snap Snapshot
	metaRaw, ok := raw[keyMeta]
	if !ok || json.Unmarshal(metaRaw, &snap.Meta) != nil {
		return nil, false
	}
	productsRaw, ok := raw[keyProducts]
	if !ok || json.Unmarshal(productsRaw, &snap.Products) != nil {
		return nil, false
	}
	if b, ok := raw[keyFeatures]; ok {
		if err := json.Unmarshal(b, &snap.Features); err != nil {
			c.logger.Warn("catalog: cached features unreadable, ignoring", "error", err)
			snap.Features = nil
		}
	}
	if b, ok := raw[keyRawRows]; ok {
		if err := json.Unmarshal(b, &snap.RawRows); err != nil {
			c.logger.Warn("catalog: cached raw rows unreadable, ignoring", "error", err)
			snap.RawRows = nil
		}
	}
	if snap.Products == nil {
		snap.Products = []Product{}
	}
	return &snap, true
}

// CachedVersion returns the version of the cached snapshot, reading meta only.
func (c *Cache) CachedVersion(ctx context.Context) (string, bool) {
	if c.store == nil {
		return "", false
	}
	b, ok, err := c.store.Read(ctx, store.CollectionCatalog, keyMeta)
	if err != nil {
		c.logger.Warn("catalog: cache meta read failed", "error", err)
		return "", false
	}
	if !ok {
		return "", false
	}
	var m Meta
	if err := json.Unmarshal(b, &m); err != nil {
		return "", false
	}
	return m.Version, true
}

// Set stamps LastUpdated and writes the whole snapshot in one transaction.
// The returned snapshot is valid even when the write failed, so the caller
// can keep serving it from memory.
func (c *Cache) Set(ctx context.Context, products []Product, version string, features map[string]Feature, rawRows [][]string) (*Snapshot, error) {
	if products == nil {
		products = []Product{}
	}
	snap := &Snapshot{
		Products: products,
		Meta:     Meta{Version: version, LastUpdated: c.now().UTC()},
		Features: features,
		RawRows:  rawRows,
	}
	if c.store == nil {
		return snap, fmt.Errorf("%w: %v", ErrCacheWriteFailed, store.ErrStoreUnavailable)
	}

	entries := make(map[string][]byte, 4)
	for key, v := range map[string]any{
		keyProducts: snap.Products,
		keyMeta:     snap.Meta,
		keyFeatures: orEmptyMap(features),
		keyRawRows:  orEmptyRows(rawRows),
	} {
		b, err := json.Marshal(v)
		if err != nil {
			return snap, fmt.Errorf("%w: encode %s: %v", ErrCacheWriteFailed, key, err)
		}
		entries[key] = b
	}

	if err := c.store.TransactionalWrite(ctx, store.CollectionCatalog, entries); err != nil {
		return snap, fmt.Errorf("%w: %v", ErrCacheWriteFailed, err)
	}
	c.logger.Info("catalog: snapshot cached", "version", version, "products", len(products))
	return snap, nil
}

func orEmptyMap(m map[string]Feature) map[string]Feature {
	if m == nil {
		return map[string]Feature{}
	}
	return m
}

func orEmptyRows(r [][]string) [][]string {
	if r == nil {
		return [][]string{}
	}
	return r
}
