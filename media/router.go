package media

import (
	"context"
	"net/url"
	"strings"
)

// Router dispatches to a Source by URL scheme, falling back to a default.
type Router struct {
	byScheme map[string]Source
	fallback Source
}

// NewRouter creates a Router with fallback for unregistered schemes.
func NewRouter(fallback Source) *Router {
	return &Router{byScheme: make(map[string]Source), fallback: fallback}
}

// Handle registers src for scheme (e.g. "s3").
func (r *Router) Handle(scheme string, src Source) {
	r.byScheme[strings.ToLower(scheme)] = src
}

func (r *Router) pick(raw string) Source {
	if u, err := url.Parse(raw); err == nil {
		if src, ok := r.byScheme[strings.ToLower(u.Scheme)]; ok {
			return src
		}
	}
	return r.fallback
}

// Probe implements Source.
func (r *Router) Probe(ctx context.Context, u string) (string, error) {
	return r.pick(u).Probe(ctx, u)
}

// Download implements Source.
func (r *Router) Download(ctx context.Context, u string) (*Payload, error) {
	return r.pick(u).Download(ctx, u)
}
