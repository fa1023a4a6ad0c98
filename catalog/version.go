package catalog

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"
)

// Decision is the outcome of a version check.
type Decision struct {
	ShouldFetch   bool    `json:"shouldFetch"`
	CachedVersion *string `json:"cachedVersion"`
	RemoteVersion string  `json:"remoteVersion"`
}

// VersionChecker decides whether the local snapshot is stale.
type VersionChecker struct {
	remote VersionFetcher
	cache  *Cache
}

// NewVersionChecker creates a checker comparing remote against cache.
func NewVersionChecker(remote VersionFetcher, cache *Cache) *VersionChecker {
	return &VersionChecker{remote: remote, cache: cache}
}

// ShouldFetch fetches the remote version token and reads the cached one
// concurrently. A remote failure is returned wrapped in ErrRemoteFetchFailed
// so the caller can fall back to the cache.
func (v *VersionChecker) ShouldFetch(ctx context.Context, ref string) (Decision, error) {
	var (
		remote    string
		cached    string
		hasCached bool
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		tok, err := v.remote.FetchRemoteVersion(gctx, ref)
		if err != nil {
			return fmt.Errorf("%w: version: %v", ErrRemoteFetchFailed, err)
		}
		remote = tok
		return nil
	})
	g.Go(func() error {
		cached, hasCached = v.cache.CachedVersion(gctx)
		return nil
	})
	if err := g.Wait(); err != nil {
		return Decision{}, err
	}

	d := Decision{RemoteVersion: remote}
	if hasCached {
		d.CachedVersion = &cached
	}
	d.ShouldFetch = Stale(d.CachedVersion, remote)
	return d, nil
}

// Stale reports whether a cached version must be refetched. Tokens are
// opaque: any difference, in either direction, is staleness. Only exact
// equality (after trimming surrounding whitespace) is fresh.
func Stale(cached *string, remote string) bool {
	if cached == nil {
		return true
	}
	return strings.TrimSpace(*cached) != strings.TrimSpace(remote)
}
