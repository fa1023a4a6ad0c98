// Package api exposes the catalog and media operations to the presentation
// layer over HTTP.
package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hazyhaar/vitrine/catalog"
	"github.com/hazyhaar/vitrine/media"
	"github.com/hazyhaar/vitrine/shield"
	"github.com/hazyhaar/vitrine/watch"
)

// LocalPrefix is the path under which resolver handles are served. Pass it
// to media.NewResolver.
const LocalPrefix = "/media/local/"

// maxBody caps request bodies; no endpoint takes more than a small JSON.
const maxBody = 64 << 10

// Deps are the components the server drives. Watcher is optional.
type Deps struct {
	Loader     *catalog.Loader
	Cache      *catalog.Cache
	Syncer     *media.Syncer
	Tracker    *media.Tracker
	Resolver   *media.Resolver
	Watcher    *watch.Watcher
	Sources    *media.Guarded // optional, for per-host breaker states
	VersionRef string
	// Offline reports that the store could not be opened and the process
	// runs network-only.
	Offline bool
	Logger  *slog.Logger
}

// Server serves the HTTP API.
type Server struct {
	deps   Deps
	logger *slog.Logger
}

// New creates a Server.
func New(deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{deps: deps, logger: logger}
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	for _, mw := range shield.DefaultStack(maxBody) {
		r.Use(mw)
	}

	r.Get("/healthz", s.handleHealth)

	r.Route("/catalog", func(r chi.Router) {
		r.Get("/", s.handleLoad)
		r.Get("/cached", s.handleCached)
		r.Get("/check", s.handleCheck)
	})

	r.Route("/media", func(r chi.Router) {
		r.Post("/sync", s.handleSync)
		r.Get("/resolve", s.handleResolve)
		r.Delete("/resolve/{consumer}", s.handleRelease)
		r.Get("/local/{handle}", s.handleLocal)
		r.Delete("/cache", s.handleEvict)
	})
	return r
}
