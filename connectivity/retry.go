package connectivity

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// RetryPolicy configures Retry.
type RetryPolicy struct {
	MaxRetries  int           // 0 = single attempt
	BaseBackoff time.Duration // doubled after each attempt
	Logger      *slog.Logger  // nil = silent
}

// Retry calls fn until it succeeds, returns a Permanent or ErrCircuitOpen
// error, ctx is done, or the retries are spent. The last error is returned.
func Retry(ctx context.Context, p RetryPolicy, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if ctx.Err() != nil || IsPermanent(err) || errors.Is(err, ErrCircuitOpen) {
			return lastErr
		}
		if attempt == p.MaxRetries {
			break
		}

		wait := p.BaseBackoff * (1 << uint(attempt))
		if p.Logger != nil {
			p.Logger.DebugContext(ctx, "connectivity: retrying",
				"attempt", attempt+1,
				"max_retries", p.MaxRetries,
				"backoff_ms", wait.Milliseconds(),
				"error", err)
		}
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return lastErr
		case <-t.C:
		}
	}
	return lastErr
}
