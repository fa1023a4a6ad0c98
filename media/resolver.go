package media

import (
	"context"
	"log/slog"
	"sync"

	"github.com/hazyhaar/vitrine/idgen"
)

// Display is what the presentation layer renders.
type Display struct {
	URL   string `json:"displayUrl"`
	Ready bool   `json:"isReady"`
	// Local is true when URL points at a handle served from the cache.
	Local  bool   `json:"local"`
	Handle string `json:"handle,omitempty"`
}

type handle struct {
	id          string
	consumer    string
	url         string
	contentType string
	payload     []byte
}

// Resolver hands out process-local handles for cached payloads. Each consumer
// (a view, a connection) holds at most one handle; resolving again or
// releasing the consumer frees the previous one.
type Resolver struct {
	tracker *Tracker
	prefix  string
	newID   idgen.Generator
	logger  *slog.Logger

	mu         sync.Mutex
	handles    map[string]*handle // handle id -> handle
	byConsumer map[string]string  // consumer -> handle id
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithHandleIDs sets the handle ID generator. Default: idgen.Compact.
func WithHandleIDs(gen idgen.Generator) ResolverOption { return func(r *Resolver) { r.newID = gen } }

// WithResolverLogger sets the logger. Default: slog.Default().
func WithResolverLogger(l *slog.Logger) ResolverOption { return func(r *Resolver) { r.logger = l } }

// NewResolver creates a Resolver. Local display URLs are prefix + handle id.
func NewResolver(tr *Tracker, prefix string, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		tracker:    tr,
		prefix:     prefix,
		newID:      idgen.Compact(),
		logger:     slog.Default(),
		handles:    make(map[string]*handle),
		byConsumer: make(map[string]string),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Resolve returns the display URL for url on behalf of consumer. A cached
// payload, under url or else under its case variant, yields a fresh local
// handle; otherwise the remote URL is returned as is. Either way the result
// is ready immediately and the consumer's previous handle has been released.
func (r *Resolver) Resolve(ctx context.Context, consumer, url string) Display {
	entry, ok := r.tracker.Lookup(ctx, url)
	if !ok {
		if v := CaseVariant(url); v != "" {
			entry, ok = r.tracker.Lookup(ctx, v)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.releaseLocked(consumer)

	if !ok {
		return Display{URL: url, Ready: true}
	}
	h := &handle{
		id:          r.newID(),
		consumer:    consumer,
		url:         url,
		contentType: entry.ContentType,
		payload:     entry.Payload,
	}
	r.handles[h.id] = h
	r.byConsumer[consumer] = h.id
	return Display{URL: r.prefix + h.id, Ready: true, Local: true, Handle: h.id}
}

// Release frees the consumer's handle, if any. Safe to call repeatedly.
func (r *Resolver) Release(consumer string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.releaseLocked(consumer)
}

func (r *Resolver) releaseLocked(consumer string) {
	id, ok := r.byConsumer[consumer]
	if !ok {
		return
	}
	delete(r.byConsumer, consumer)
	delete(r.handles, id)
	r.logger.Debug("media: handle released", "consumer", consumer, "handle", id)
}

// Open returns the payload behind a live handle.
func (r *Resolver) Open(id string) (contentType string, payload []byte, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.handles[id]
	if !ok {
		return "", nil, false
	}
	return h.contentType, h.payload, true
}

// Active returns the number of live handles.
func (r *Resolver) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handles)
}

// Close releases every handle.
func (r *Resolver) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.handles)
	clear(r.byConsumer)
}
