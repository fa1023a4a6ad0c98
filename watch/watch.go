// Package watch polls a remote version token and runs an action when it
// changes. vitrine uses it to refresh the catalog and resync media while the
// device is online.
//
// Typical usage:
//
//	w := watch.New(watch.FromFetcher(client, "Version"), watch.Options{Interval: time.Minute})
//	go w.OnChange(ctx, func(ctx context.Context, version string) error { return refresh(ctx) })
package watch

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hazyhaar/vitrine/catalog"
)

// Detector returns the current version token. Two different tokens mean
// "something changed"; only equality is meaningful.
type Detector func(ctx context.Context) (string, error)

// FromFetcher adapts a catalog.VersionFetcher to a Detector.
func FromFetcher(f catalog.VersionFetcher, ref string) Detector {
	return func(ctx context.Context) (string, error) {
		return f.FetchRemoteVersion(ctx, ref)
	}
}

// Options tunes the watcher.
type Options struct {
	// Interval is the polling frequency. Default: 1m.
	Interval time.Duration
	// Debounce is the quiet period after a change before the action fires.
	// Further changes during the window restart it. 0 fires immediately.
	Debounce time.Duration
	// Heartbeat re-runs the action with the current version even when
	// nothing changed, so work skipped while offline gets retried.
	// 0 disables it.
	Heartbeat time.Duration
	// Logger overrides the default slog logger.
	Logger *slog.Logger
}

func (o *Options) defaults() {
	if o.Interval <= 0 {
		o.Interval = time.Minute
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Action is run with the version that triggered it.
type Action func(ctx context.Context, version string) error

// Watcher polls a Detector. It is safe for concurrent use.
type Watcher struct {
	detect Detector
	opts   Options

	mu        sync.Mutex
	version   string
	processed bool          // version holds a successfully processed token
	advanced  chan struct{} // closed and replaced on every advance

	checks   atomic.Int64
	changes  atomic.Int64
	errors   atomic.Int64
	reloads  atomic.Int64
	reloadNs atomic.Int64
}

// Stats are point-in-time counters.
type Stats struct {
	Checks          int64         `json:"checks"`
	ChangesDetected int64         `json:"changes_detected"`
	Errors          int64         `json:"errors"`
	Reloads         int64         `json:"reloads"`
	AvgReloadTime   time.Duration `json:"avg_reload_time"`
}

// New creates a Watcher. Call OnChange to start the loop.
func New(detect Detector, opts Options) *Watcher {
	opts.defaults()
	return &Watcher{detect: detect, opts: opts, advanced: make(chan struct{})}
}

// Stats returns the current counters.
func (w *Watcher) Stats() Stats {
	s := Stats{
		Checks:          w.checks.Load(),
		ChangesDetected: w.changes.Load(),
		Errors:          w.errors.Load(),
		Reloads:         w.reloads.Load(),
	}
	if s.Reloads > 0 {
		s.AvgReloadTime = time.Duration(w.reloadNs.Load() / s.Reloads)
	}
	return s
}

// Version returns the last successfully processed token and whether there
// is one.
func (w *Watcher) Version() (string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.version, w.processed
}

// OnChange blocks until ctx is cancelled. It checks once immediately, then
// every Interval. The first token observed counts as a change. When action
// fails the version is not advanced and the next poll retries.
func (w *Watcher) OnChange(ctx context.Context, action Action) {
	log := w.opts.Logger

	ticker := time.NewTicker(w.opts.Interval)
	defer ticker.Stop()

	var heartbeat <-chan time.Time
	if w.opts.Heartbeat > 0 {
		hb := time.NewTicker(w.opts.Heartbeat)
		defer hb.Stop()
		heartbeat = hb.C
	}

	var (
		debounceTimer *time.Timer
		debounceCh    <-chan time.Time
		pending       string
		hasPending    bool
	)
	defer func() {
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
	}()

	poll := func() {
		w.checks.Add(1)
		cur, err := w.detect(ctx)
		if err != nil {
			w.errors.Add(1)
			log.Warn("watch: version check failed", "error", err)
			return
		}
		if v, ok := w.Version(); ok && v == cur {
			return
		}
		if hasPending && pending == cur {
			return
		}
		w.changes.Add(1)
		pending, hasPending = cur, true

		if w.opts.Debounce <= 0 {
			w.fire(ctx, action, pending)
			hasPending = false
			return
		}
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
		debounceTimer = time.NewTimer(w.opts.Debounce)
		debounceCh = debounceTimer.C
		log.Debug("watch: change detected, debouncing", "pending_version", cur)
	}

	log.Info("watch: started", "interval", w.opts.Interval, "debounce", w.opts.Debounce, "heartbeat", w.opts.Heartbeat)
	poll()

	for {
		select {
		case <-ctx.Done():
			log.Info("watch: stopped")
			return

		case <-ticker.C:
			poll()

		case <-debounceCh:
			debounceCh = nil
			if hasPending {
				w.fire(ctx, action, pending)
				hasPending = false
			}

		case <-heartbeat:
			if v, ok := w.Version(); ok && !hasPending {
				log.Debug("watch: heartbeat", "version", v)
				w.fire(ctx, action, v)
			}
		}
	}
}

// WaitForVersion blocks until target has been processed successfully, or
// ctx expires.
func (w *Watcher) WaitForVersion(ctx context.Context, target string) error {
	for {
		w.mu.Lock()
		if w.processed && w.version == target {
			w.mu.Unlock()
			return nil
		}
		ch := w.advanced
		w.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (w *Watcher) fire(ctx context.Context, action Action, ver string) {
	log := w.opts.Logger
	old, _ := w.Version()
	log.Info("watch: reloading", "old_version", old, "new_version", ver)
	start := time.Now()
	if err := action(ctx, ver); err != nil {
		w.errors.Add(1)
		log.Error("watch: reload failed", "error", err, "version", ver)
		return
	}
	elapsed := time.Since(start)
	w.reloads.Add(1)
	w.reloadNs.Add(int64(elapsed))
	w.setVersion(ver)
	log.Info("watch: reload complete", "version", ver, "duration", elapsed)
}

func (w *Watcher) setVersion(v string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.version = v
	w.processed = true
	close(w.advanced)
	w.advanced = make(chan struct{})
}
