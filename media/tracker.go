package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/vitrine/store"
)

// entryHeader precedes the payload in the stored value:
//
//	<json header>\n<payload bytes>
//
// encoding/json never emits a raw newline, so the first '\n' always ends
// the header.
type entryHeader struct {
	Token       string    `json:"token"`
	ContentType string    `json:"contentType"`
	Size        int       `json:"size"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Tracker stores per-URL freshness tokens and payloads. Storage errors are
// logged and swallowed.
type Tracker struct {
	store  *store.Store
	logger *slog.Logger
	now    func() time.Time
}

// TrackerOption configures a Tracker.
type TrackerOption func(*Tracker)

// WithTrackerLogger sets the logger. Default: slog.Default().
func WithTrackerLogger(l *slog.Logger) TrackerOption { return func(t *Tracker) { t.logger = l } }

// WithTrackerClock overrides time.Now.
func WithTrackerClock(fn func() time.Time) TrackerOption { return func(t *Tracker) { t.now = fn } }

// NewTracker creates a Tracker. A nil store disables caching.
func NewTracker(st *store.Store, opts ...TrackerOption) *Tracker {
	t := &Tracker{store: st, logger: slog.Default(), now: time.Now}
	for _, o := range opts {
		o(t)
	}
	return t
}

// maxHeaderLen bounds the prefix read by FreshnessToken. Headers longer than
// this fall back to a full read.
const maxHeaderLen = 4 << 10

// FreshnessToken returns the token recorded for url, or "" when unknown. Only
// the entry header is read; the payload stays in the store.
func (t *Tracker) FreshnessToken(ctx context.Context, url string) string {
	if t.store == nil {
		return ""
	}
	head, size, ok, err := t.store.ReadHead(ctx, store.CollectionMedia, url, maxHeaderLen)
	if err != nil {
		t.logger.Warn("media: cache read failed", "url", url, "error", err)
		return ""
	}
	if !ok {
		return ""
	}
	i := bytes.IndexByte(head, '\n')
	if i < 0 {
		if e, ok := t.Lookup(ctx, url); ok {
			return e.FreshnessToken
		}
		return ""
	}
	var h entryHeader
	if err := json.Unmarshal(head[:i], &h); err != nil || size != int64(i+1+h.Size) {
		t.logger.Warn("media: cache entry unreadable, treating as absent", "url", url)
		return ""
	}
	return h.Token
}

// Lookup returns the cached entry for url.
func (t *Tracker) Lookup(ctx context.Context, url string) (*Entry, bool) {
	if t.store == nil {
		return nil, false
	}
	b, ok, err := t.store.Read(ctx, store.CollectionMedia, url)
	if err != nil {
		t.logger.Warn("media: cache read failed", "url", url, "error", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	e, err := decodeEntry(url, b)
	if err != nil {
		t.logger.Warn("media: cache entry unreadable, treating as absent", "url", url, "error", err)
		return nil, false
	}
	return e, true
}

// RecordDownload replaces the entry for url with a new token and payload in
// one write. It reports whether the entry was persisted.
func (t *Tracker) RecordDownload(ctx context.Context, url, token, contentType string, payload []byte) bool {
	if t.store == nil {
		return false
	}
	b, err := encodeEntry(entryHeader{
		Token:       token,
		ContentType: contentType,
		Size:        len(payload),
		UpdatedAt:   t.now().UTC(),
	}, payload)
	if err != nil {
		t.logger.Warn("media: encode entry", "url", url, "error", err)
		return false
	}
	if err := t.store.TransactionalWrite(ctx, store.CollectionMedia, map[string][]byte{url: b}); err != nil {
		t.logger.Warn("media: cache write failed", "url", url, "error", err)
		return false
	}
	return true
}

// URLs lists every cached URL.
func (t *Tracker) URLs(ctx context.Context) []string {
	if t.store == nil {
		return nil
	}
	keys, err := t.store.Keys(ctx, store.CollectionMedia)
	if err != nil {
		t.logger.Warn("media: list cache", "error", err)
		return nil
	}
	return keys
}

// Evict removes every cached entry and returns how many were deleted.
func (t *Tracker) Evict(ctx context.Context) (int64, error) {
	if t.store == nil {
		return 0, nil
	}
	return t.store.Clear(ctx, store.CollectionMedia)
}

func encodeEntry(h entryHeader, payload []byte) ([]byte, error) {
	head, err := json.Marshal(h)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, 0, len(head)+1+len(payload))
	buf = append(buf, head...)
	buf = append(buf, '\n')
	return append(buf, payload...), nil
}

func decodeEntry(url string, b []byte) (*Entry, error) {
	i := bytes.IndexByte(b, '\n')
	if i < 0 {
		return nil, fmt.Errorf("missing header separator")
	}
	var h entryHeader
	if err := json.Unmarshal(b[:i], &h); err != nil {
		return nil, fmt.Errorf("header: %w", err)
	}
	payload := b[i+1:]
	if len(payload) != h.Size {
		return nil, fmt.Errorf("payload size %d, header says %d", len(payload), h.Size)
	}
	return &Entry{
		URL:            url,
		FreshnessToken: h.Token,
		ContentType:    h.ContentType,
		Payload:        payload,
		UpdatedAt:      h.UpdatedAt,
	}, nil
}
