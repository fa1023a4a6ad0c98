// Package media keeps a local mirror of remote product media.
//
// Three pieces share the "media-cache" collection of the store:
//
//   - Tracker records, per URL, the payload and the freshness token observed
//     when it was downloaded.
//   - Syncer brings the mirror up to date with a bounded worker pool, probing
//     each URL before deciding whether to download it.
//   - Resolver maps a remote URL to a local handle at display time, or passes
//     the remote URL through when nothing is cached.
//
// Caching is best effort: storage failures degrade to network access, never
// to errors surfaced to the user.
package media

import (
	"context"
	"errors"
	"time"
)

// ErrProbeFailed is wrapped by sources when the freshness probe fails.
var ErrProbeFailed = errors.New("media: probe failed")

// ErrDownloadFailed is wrapped by sources on a failed or non-success download.
var ErrDownloadFailed = errors.New("media: download failed")

// ErrSyncInProgress is returned when Sync is called while another run of the
// same Syncer is active.
var ErrSyncInProgress = errors.New("media: sync already in progress")

// Payload is a downloaded media body.
type Payload struct {
	Bytes       []byte
	ContentType string
	// Token is the freshness token the remote returned with the body, empty
	// when it sent none.
	Token string
}

// Source is the remote side of the media mirror.
type Source interface {
	// Probe returns the remote freshness token without transferring the body.
	// An empty token with a nil error means the remote does not expose one.
	Probe(ctx context.Context, url string) (string, error)
	// Download fetches the full body.
	Download(ctx context.Context, url string) (*Payload, error)
}

// Entry is one cached media file.
type Entry struct {
	URL            string
	FreshnessToken string
	ContentType    string
	Payload        []byte
	UpdatedAt      time.Time
}
