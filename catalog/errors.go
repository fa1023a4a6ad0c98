package catalog

import "errors"

// ErrCacheWriteFailed is returned when the snapshot could not be persisted.
// The caller keeps serving the in-memory data it already fetched.
var ErrCacheWriteFailed = errors.New("catalog: cache write failed")

// ErrRemoteFetchFailed wraps network or parse failures of the version or row
// fetch.
var ErrRemoteFetchFailed = errors.New("catalog: remote fetch failed")

// ErrNoData is returned when the remote is unreachable and nothing is cached.
var ErrNoData = errors.New("catalog: offline and no cached data, connect to the internet")
