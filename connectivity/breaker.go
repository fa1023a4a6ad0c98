package connectivity

import (
	"sync"
	"time"
)

// BreakerState represents the circuit breaker state.
type BreakerState int

const (
	BreakerClosed   BreakerState = iota // calls pass through
	BreakerOpen                         // calls rejected immediately
	BreakerHalfOpen                     // trial calls allowed
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half_open"
	}
	return "unknown"
}

// BreakerConfig tunes a CircuitBreaker. Zero fields take the defaults.
type BreakerConfig struct {
	Threshold    int           // consecutive failures that open it. Default: 5.
	ResetTimeout time.Duration // time open before half-open. Default: 30s.
	HalfOpenMax  int           // successes in half-open that close it. Default: 2.
	Now          func() time.Time
}

func (c *BreakerConfig) defaults() {
	if c.Threshold <= 0 {
		c.Threshold = 5
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = 30 * time.Second
	}
	if c.HalfOpenMax <= 0 {
		c.HalfOpenMax = 2
	}
	if c.Now == nil {
		c.Now = time.Now
	}
}

// CircuitBreaker is safe for concurrent use.
type CircuitBreaker struct {
	cfg BreakerConfig

	mu          sync.Mutex
	state       BreakerState
	failures    int
	successes   int
	lastFailure time.Time
}

// NewCircuitBreaker creates a closed breaker.
func NewCircuitBreaker(cfg BreakerConfig) *CircuitBreaker {
	cfg.defaults()
	return &CircuitBreaker{cfg: cfg}
}

// State returns the current state.
func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.maybeHalfOpen()
	return cb.state
}

// Allow reports whether a call may proceed.
func (cb *CircuitBreaker) Allow() bool {
	return cb.State() != BreakerOpen
}

// Record feeds the outcome of a call. Permanent errors count as a success:
// the remote answered.
func (cb *CircuitBreaker) Record(err error) {
	if err == nil || IsPermanent(err) {
		cb.recordSuccess()
		return
	}
	cb.recordFailure()
}

func (cb *CircuitBreaker) recordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	switch cb.state {
	case BreakerHalfOpen:
		cb.successes++
		if cb.successes >= cb.cfg.HalfOpenMax {
			cb.state = BreakerClosed
			cb.failures, cb.successes = 0, 0
		}
	case BreakerClosed:
		cb.failures = 0
	}
}

func (cb *CircuitBreaker) recordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.lastFailure = cb.cfg.Now()
	switch cb.state {
	case BreakerClosed:
		cb.failures++
		if cb.failures >= cb.cfg.Threshold {
			cb.state = BreakerOpen
		}
	case BreakerHalfOpen:
		cb.state = BreakerOpen
		cb.successes = 0
	}
}

// must hold mu
func (cb *CircuitBreaker) maybeHalfOpen() {
	if cb.state == BreakerOpen && cb.cfg.Now().Sub(cb.lastFailure) >= cb.cfg.ResetTimeout {
		cb.state = BreakerHalfOpen
		cb.successes = 0
	}
}

// Breakers lazily holds one CircuitBreaker per key (a host name).
type Breakers struct {
	cfg BreakerConfig

	mu sync.Mutex
	m  map[string]*CircuitBreaker
}

// NewBreakers creates an empty set sharing cfg.
func NewBreakers(cfg BreakerConfig) *Breakers {
	return &Breakers{cfg: cfg, m: make(map[string]*CircuitBreaker)}
}

// Get returns the breaker for key, creating it closed.
func (b *Breakers) Get(key string) *CircuitBreaker {
	b.mu.Lock()
	defer b.mu.Unlock()
	cb, ok := b.m[key]
	if !ok {
		cb = NewCircuitBreaker(b.cfg)
		b.m[key] = cb
	}
	return cb
}

// States snapshots the state of every known breaker.
func (b *Breakers) States() map[string]string {
	b.mu.Lock()
	keys := make([]string, 0, len(b.m))
	cbs := make([]*CircuitBreaker, 0, len(b.m))
	for k, cb := range b.m {
		keys = append(keys, k)
		cbs = append(cbs, cb)
	}
	b.mu.Unlock()

	out := make(map[string]string, len(keys))
	for i, k := range keys {
		out[k] = cbs[i].State().String()
	}
	return out
}
