package media

import (
	"net/http"
	"strings"
	"time"
)

// Decision is what a sync worker does with one URL.
type Decision int

const (
	// Download fetches the payload and records it.
	Download Decision = iota
	// UpToDate leaves the cached entry alone.
	UpToDate
	// Skip leaves the URL unsynced; the next run retries it.
	Skip
)

func (d Decision) String() string {
	switch d {
	case Download:
		return "download"
	case UpToDate:
		return "up_to_date"
	case Skip:
		return "skip"
	}
	return "unknown"
}

// Decide applies the freshness rule to one URL.
//
//   - nothing cached: download, unless the probe failed (skip, retry later);
//   - cached and probe failed: keep what we have;
//   - cached: download only when both tokens are timestamps and the remote
//     one is strictly newer. Ambiguous tokens never trigger a download.
func Decide(local, remote string, probeErr error) Decision {
	if local == "" {
		if probeErr != nil {
			return Skip
		}
		return Download
	}
	if probeErr != nil || remote == "" {
		return UpToDate
	}
	lt, lok := ParseToken(local)
	rt, rok := ParseToken(remote)
	if !lok || !rok {
		return UpToDate
	}
	if rt.After(lt) {
		return Download
	}
	return UpToDate
}

// ParseToken parses a freshness token as an HTTP date or RFC 3339 timestamp.
func ParseToken(tok string) (time.Time, bool) {
	tok = strings.TrimSpace(tok)
	if tok == "" {
		return time.Time{}, false
	}
	if t, err := http.ParseTime(tok); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339Nano, tok); err == nil {
		return t, true
	}
	return time.Time{}, false
}

// FormatToken renders t the way HTTP Last-Modified headers do.
func FormatToken(t time.Time) string {
	return t.UTC().Format(http.TimeFormat)
}
