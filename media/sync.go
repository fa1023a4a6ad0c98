package media

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hazyhaar/vitrine/catalog"
)

// Outcome is the result of one URL job.
type Outcome string

const (
	OutcomeDownloaded Outcome = "downloaded"
	OutcomeUpToDate   Outcome = "up_to_date"
	OutcomeSkipped    Outcome = "skipped"
	OutcomeFailed     Outcome = "failed"
)

// Progress is emitted once per finished URL. The event with Done set is the
// last one of a run.
type Progress struct {
	Completed int     `json:"completed"`
	Total     int     `json:"total"`
	URL       string  `json:"url,omitempty"`
	Outcome   Outcome `json:"outcome,omitempty"`
	Done      bool    `json:"done"`
	Message   string  `json:"message,omitempty"`
}

// Report summarizes a run.
type Report struct {
	Total      int           `json:"total"`
	Downloaded int           `json:"downloaded"`
	UpToDate   int           `json:"upToDate"`
	Skipped    int           `json:"skipped"`
	Failed     int           `json:"failed"`
	Duration   time.Duration `json:"duration"`
}

// Config configures a Syncer.
type Config struct {
	// Concurrency is the number of workers. Default: 5.
	Concurrency int
	// BaseURL prefixes product image filenames.
	BaseURL string
}

func (c *Config) defaults() {
	if c.Concurrency <= 0 {
		c.Concurrency = 5
	}
}

// SyncOptions are the per-run inputs besides the products.
type SyncOptions struct {
	Features map[string]catalog.Feature
	// Progress receives one event per URL. Sync closes it once every event
	// has been delivered, or when ctx is done. Workers never block on it.
	Progress chan<- Progress
}

// Syncer brings the media cache up to date.
type Syncer struct {
	source  Source
	tracker *Tracker
	config  Config
	logger  *slog.Logger
	now     func() time.Time
	running atomic.Bool
}

// NewSyncer creates a Syncer.
func NewSyncer(src Source, tr *Tracker, cfg Config, logger *slog.Logger) *Syncer {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Syncer{source: src, tracker: tr, config: cfg, logger: logger, now: time.Now}
}

// Sync mirrors the media referenced by products and opts.Features.
func (s *Syncer) Sync(ctx context.Context, products []catalog.Product, opts SyncOptions) (Report, error) {
	urls := TargetURLs(s.config.BaseURL, products, opts.Features)
	return s.SyncURLs(ctx, urls, opts.Progress)
}

// SyncURLs runs the worker pool over urls. Cancelling ctx stops workers from
// taking new URLs; each finished URL is already durable, so a later run
// resumes where this one stopped.
func (s *Syncer) SyncURLs(ctx context.Context, urls []string, progress chan<- Progress) (Report, error) {
	if !s.running.CompareAndSwap(false, true) {
		if progress != nil {
			close(progress)
		}
		return Report{}, ErrSyncInProgress
	}
	defer s.running.Store(false)

	start := s.now()
	total := len(urls)
	rep := Report{Total: total}

	// events holds every notification of the run, so sends never block.
	events := make(chan Progress, max(total, 1))
	go relay(ctx, events, progress)

	if total == 0 {
		events <- Progress{Done: true, Message: "nothing to sync"}
		close(events)
		s.logger.Info("media: nothing to sync")
		return rep, nil
	}

	jobs := make(chan string, total)
	for _, u := range urls {
		jobs <- u
	}
	close(jobs)

	var (
		mu        sync.Mutex
		completed int
	)
	finish := func(u string, o Outcome) {
		mu.Lock()
		defer mu.Unlock()
		completed++
		switch o {
		case OutcomeDownloaded:
			rep.Downloaded++
		case OutcomeUpToDate:
			rep.UpToDate++
		case OutcomeSkipped:
			rep.Skipped++
		case OutcomeFailed:
			rep.Failed++
		}
		p := Progress{Completed: completed, Total: total, URL: u, Outcome: o, Done: completed == total}
		if p.Done {
			p.Message = "sync complete"
		}
		events <- p
	}

	workers := min(s.config.Concurrency, total)
	s.logger.Info("media: sync started", "urls", total, "workers", workers)

	var g errgroup.Group
	for range workers {
		g.Go(func() error {
			for u := range jobs {
				if ctx.Err() != nil {
					return nil
				}
				finish(u, s.syncOne(ctx, u))
			}
			return nil
		})
	}
	_ = g.Wait()
	close(events)

	rep.Duration = s.now().Sub(start)
	if err := ctx.Err(); err != nil {
		s.logger.Warn("media: sync interrupted", "completed", completed, "total", total, "error", err)
		return rep, err
	}
	s.logger.Info("media: sync complete",
		"total", rep.Total, "downloaded", rep.Downloaded, "up_to_date", rep.UpToDate,
		"skipped", rep.Skipped, "failed", rep.Failed, "duration", rep.Duration)
	return rep, nil
}

// relay forwards events to out until events is closed or ctx is done, then
// closes out. A slow consumer only delays the relay, never the workers.
func relay(ctx context.Context, events <-chan Progress, out chan<- Progress) {
	if out == nil {
		return
	}
	defer close(out)
	for p := range events {
		select {
		case out <- p:
		case <-ctx.Done():
			return
		}
	}
}

// syncOne runs probe, decision and conditional download for one URL.
func (s *Syncer) syncOne(ctx context.Context, u string) Outcome {
	local := s.tracker.FreshnessToken(ctx, u)
	remote, perr := s.source.Probe(ctx, u)
	if perr != nil {
		s.logger.Debug("media: probe failed", "url", u, "error", perr)
	}

	switch Decide(local, remote, perr) {
	case Skip:
		return OutcomeSkipped
	case UpToDate:
		return OutcomeUpToDate
	}

	p, err := s.source.Download(ctx, u)
	if err != nil {
		s.logger.Debug("media: download failed", "url", u, "error", err)
		return OutcomeFailed
	}
	token := p.Token
	if token == "" {
		token = FormatToken(s.now())
	}
	if !s.tracker.RecordDownload(ctx, u, token, p.ContentType, p.Bytes) {
		return OutcomeFailed
	}
	return OutcomeDownloaded
}
