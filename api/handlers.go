package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hazyhaar/vitrine/catalog"
	"github.com/hazyhaar/vitrine/horosafe"
	"github.com/hazyhaar/vitrine/media"
	"github.com/hazyhaar/vitrine/shield"
)

const offlineMessage = "offline and no cached catalog: connect to the internet and retry"

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"status":          "ok",
		"store":           "ok",
		"display_handles": s.deps.Resolver.Active(),
	}
	if s.deps.Offline {
		resp["store"] = "unavailable"
	}
	if s.deps.Sources != nil {
		resp["hosts"] = s.deps.Sources.Hosts()
	}
	if s.deps.Watcher != nil {
		v, _ := s.deps.Watcher.Version()
		resp["version"] = v
		resp["watch"] = s.deps.Watcher.Stats()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleLoad(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.Loader.Load(r.Context(), s.deps.VersionRef)
	if errors.Is(err, catalog.ErrNoData) {
		jsonErr(w, offlineMessage, http.StatusServiceUnavailable)
		return
	}
	if err != nil {
		shield.GetLogger(r.Context()).Error("api: load catalog", "error", err)
		jsonErr(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleCached(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.deps.Cache.Get(r.Context())
	if !ok {
		jsonErr(w, "no cached catalog", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	d, err := s.deps.Loader.Checker().ShouldFetch(r.Context(), s.deps.VersionRef)
	if err != nil {
		shield.GetLogger(r.Context()).Warn("api: version check", "error", err)
		jsonErr(w, "remote version unavailable", http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// handleSync mirrors the media of the current catalog. With ?stream=true the
// response is NDJSON: one progress event per line, then the report.
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	snap := s.deps.Loader.Current()
	if snap == nil {
		res, err := s.deps.Loader.Load(ctx, s.deps.VersionRef)
		if err != nil {
			jsonErr(w, offlineMessage, http.StatusServiceUnavailable)
			return
		}
		snap = res.Snapshot
	}

	stream, _ := strconv.ParseBool(r.URL.Query().Get("stream"))
	progress := make(chan media.Progress)
	done := make(chan struct{})
	flusher, _ := w.(http.Flusher)
	logger := shield.GetLogger(ctx)

	if stream {
		w.Header().Set("Content-Type", "application/x-ndjson")
		w.WriteHeader(http.StatusOK)
	}
	go func() {
		defer close(done)
		enc := json.NewEncoder(w)
		for p := range progress {
			if !stream {
				logger.Debug("api: sync progress", "completed", p.Completed, "total", p.Total, "url", p.URL, "outcome", p.Outcome)
				continue
			}
			enc.Encode(p)
			if flusher != nil {
				flusher.Flush()
			}
		}
	}()

	rep, err := s.deps.Syncer.Sync(ctx, snap.Products, media.SyncOptions{Features: snap.Features, Progress: progress})
	<-done

	if stream {
		json.NewEncoder(w).Encode(map[string]any{"report": rep, "error": errString(err)})
		return
	}
	switch {
	case errors.Is(err, media.ErrSyncInProgress):
		jsonErr(w, err.Error(), http.StatusConflict)
	case err != nil:
		jsonErr(w, err.Error(), http.StatusServiceUnavailable)
	default:
		writeJSON(w, http.StatusOK, rep)
	}
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	consumer := r.URL.Query().Get("consumer")
	if err := horosafe.ValidateIdentifier(consumer); err != nil {
		jsonErr(w, "consumer: "+err.Error(), http.StatusBadRequest)
		return
	}
	u := r.URL.Query().Get("url")
	if u == "" {
		jsonErr(w, "url is required", http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Resolver.Resolve(r.Context(), consumer, u))
}

func (s *Server) handleRelease(w http.ResponseWriter, r *http.Request) {
	s.deps.Resolver.Release(chi.URLParam(r, "consumer"))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleLocal(w http.ResponseWriter, r *http.Request) {
	ct, payload, ok := s.deps.Resolver.Open(chi.URLParam(r, "handle"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	if ct == "" {
		ct = http.DetectContentType(payload)
	}
	w.Header().Set("Content-Type", ct)
	w.Header().Set("Content-Length", strconv.Itoa(len(payload)))
	w.Header().Set("Cache-Control", "private, no-store")
	w.Write(payload)
}

func (s *Server) handleEvict(w http.ResponseWriter, r *http.Request) {
	n, err := s.deps.Tracker.Evict(r.Context())
	if err != nil {
		shield.GetLogger(r.Context()).Error("api: evict media cache", "error", err)
		jsonErr(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"evicted": n})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func jsonErr(w http.ResponseWriter, msg string, code int) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
