package media

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/hazyhaar/vitrine/connectivity"
)

// GuardConfig tunes Guard.
type GuardConfig struct {
	// Retries is the number of extra download attempts on transient errors.
	// Probes are never retried: a failed probe is already handled by the
	// freshness rule. Default: 2.
	Retries int
	// Backoff is the first retry delay, doubled each time. Default: 500ms.
	Backoff time.Duration
	// Breaker applies per remote host.
	Breaker connectivity.BreakerConfig
	Logger  *slog.Logger
}

// Guarded wraps a Source with a circuit breaker per host and download
// retries, so a dead CDN costs one timeout per host instead of one per URL.
type Guarded struct {
	next     Source
	breakers *connectivity.Breakers
	policy   connectivity.RetryPolicy
}

var _ Source = (*Guarded)(nil)

// Guard wraps src.
func Guard(src Source, cfg GuardConfig) *Guarded {
	if cfg.Retries == 0 {
		cfg.Retries = 2
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 500 * time.Millisecond
	}
	return &Guarded{
		next:     src,
		breakers: connectivity.NewBreakers(cfg.Breaker),
		policy:   connectivity.RetryPolicy{MaxRetries: cfg.Retries, BaseBackoff: cfg.Backoff, Logger: cfg.Logger},
	}
}

// Hosts reports the breaker state per host.
func (g *Guarded) Hosts() map[string]string { return g.breakers.States() }

func (g *Guarded) breaker(raw string) (*connectivity.CircuitBreaker, string) {
	host := raw
	if u, err := url.Parse(raw); err == nil && u.Host != "" {
		host = u.Scheme + "://" + u.Host
	}
	return g.breakers.Get(host), host
}

// Probe implements Source.
func (g *Guarded) Probe(ctx context.Context, u string) (string, error) {
	cb, host := g.breaker(u)
	if !cb.Allow() {
		return "", fmt.Errorf("%w: %s: %w", ErrProbeFailed, host, connectivity.ErrCircuitOpen)
	}
	tok, err := g.next.Probe(ctx, u)
	if ctx.Err() == nil {
		cb.Record(err)
	}
	return tok, err
}

// Download implements Source.
func (g *Guarded) Download(ctx context.Context, u string) (*Payload, error) {
	cb, host := g.breaker(u)
	var p *Payload
	err := connectivity.Retry(ctx, g.policy, func(ctx context.Context) error {
		if !cb.Allow() {
			return fmt.Errorf("%w: %s: %w", ErrDownloadFailed, host, connectivity.ErrCircuitOpen)
		}
		var err error
		p, err = g.next.Download(ctx, u)
		if ctx.Err() == nil {
			cb.Record(err)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}
