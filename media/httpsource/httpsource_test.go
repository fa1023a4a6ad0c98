package httpsource

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hazyhaar/vitrine/connectivity"
	"github.com/hazyhaar/vitrine/horosafe"
	"github.com/hazyhaar/vitrine/media"
)

// noopValidator allows all URLs (httptest listens on loopback).
func noopValidator(_ string) error { return nil }

const lastMod = "Mon, 01 Jan 2024 00:00:00 GMT"

func TestProbe_LastModified(t *testing.T) {
	// WHAT: HEAD returns the Last-Modified header without a body transfer.
	var gets atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			gets.Add(1)
		}
		w.Header().Set("Last-Modified", lastMod)
		w.Write([]byte("image"))
	}))
	defer srv.Close()

	s := New(Config{URLValidator: noopValidator})
	tok, err := s.Probe(context.Background(), srv.URL+"/a.jpg")
	if err != nil {
		t.Fatalf("probe: %v", err)
	}
	if tok != lastMod {
		t.Errorf("token = %q", tok)
	}
	if gets.Load() != 0 {
		t.Error("probe must not GET")
	}
}

func TestProbe_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := New(Config{URLValidator: noopValidator}).Probe(context.Background(), srv.URL+"/missing.jpg")
	if !errors.Is(err, media.ErrProbeFailed) {
		t.Fatalf("err = %v, want ErrProbeFailed", err)
	}
}

func TestProbe_HeadNotAllowed(t *testing.T) {
	// WHAT: A server that rejects HEAD yields no token and no error.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		w.Write([]byte("x"))
	}))
	defer srv.Close()

	tok, err := New(Config{URLValidator: noopValidator}).Probe(context.Background(), srv.URL)
	if err != nil || tok != "" {
		t.Fatalf("probe = %q, %v", tok, err)
	}
}

func TestDownload_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Last-Modified", lastMod)
		w.Write([]byte("\x89PNG..."))
	}))
	defer srv.Close()

	p, err := New(Config{URLValidator: noopValidator}).Download(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	if p.ContentType != "image/png" || p.Token != lastMod || string(p.Bytes) != "\x89PNG..." {
		t.Fatalf("payload = %+v", p)
	}
}

func TestDownload_SniffsContentType(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header()["Content-Type"] = nil
		w.Write([]byte("GIF89a......"))
	}))
	defer srv.Close()

	p, err := New(Config{URLValidator: noopValidator}).Download(context.Background(), srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	if p.ContentType != "image/gif" {
		t.Errorf("content type = %q", p.ContentType)
	}
}

func TestDownload_NonSuccess(t *testing.T) {
	// WHAT: Only 2xx counts; a 3xx without Location or a 5xx is a failure.
	for _, code := range []int{http.StatusNotModified, http.StatusForbidden, http.StatusBadGateway} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(code)
		}))
		_, err := New(Config{URLValidator: noopValidator}).Download(context.Background(), srv.URL)
		srv.Close()
		if !errors.Is(err, media.ErrDownloadFailed) {
			t.Errorf("status %d: err = %v, want ErrDownloadFailed", code, err)
		}
	}
}

func TestDownload_MaxBytes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.Repeat("x", 2048)))
	}))
	defer srv.Close()

	_, err := New(Config{URLValidator: noopValidator, MaxBytes: 1024}).Download(context.Background(), srv.URL)
	if !errors.Is(err, media.ErrDownloadFailed) || !errors.Is(err, horosafe.ErrResponseTooLarge) {
		t.Fatalf("err = %v", err)
	}
	if !connectivity.IsPermanent(err) {
		t.Errorf("oversized payload should be permanent: %v", err)
	}
}

func TestDownload_OversizedNotRetried(t *testing.T) {
	// WHAT: A payload over the cap, declared or streamed, is fetched once
	// even behind the retrying guard.
	// WHY: Retrying a large video that will never fit wastes bandwidth on
	// every sync pass.
	for _, declared := range []bool{true, false} {
		var hits atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			body := strings.Repeat("v", 8192)
			if declared {
				w.Header().Set("Content-Length", strconv.Itoa(len(body)))
			} else if f, ok := w.(http.Flusher); ok {
				f.Flush() // forces chunked encoding, no length up front
			}
			io.WriteString(w, body)
		}))

		src := New(Config{URLValidator: noopValidator, MaxBytes: 1024})
		g := media.Guard(src, media.GuardConfig{Retries: 3, Backoff: time.Millisecond})
		_, err := g.Download(context.Background(), srv.URL+"/clip.mp4")
		srv.Close()

		if !errors.Is(err, horosafe.ErrResponseTooLarge) {
			t.Fatalf("declared=%v: err = %v", declared, err)
		}
		if n := hits.Load(); n != 1 {
			t.Errorf("declared=%v: server hit %d times, want 1", declared, n)
		}
	}
}

func TestSSRFBlocked(t *testing.T) {
	// WHAT: The default validator rejects loopback targets.
	s := New(Config{})
	if _, err := s.Probe(context.Background(), "http://127.0.0.1:1/a.jpg"); !errors.Is(err, horosafe.ErrSSRF) {
		t.Errorf("probe err = %v, want ErrSSRF", err)
	}
	if _, err := s.Download(context.Background(), "http://127.0.0.1:1/a.jpg"); !errors.Is(err, horosafe.ErrSSRF) {
		t.Errorf("download err = %v, want ErrSSRF", err)
	}
}

func TestRedirectRevalidated(t *testing.T) {
	// WHAT: Redirect targets go through the validator too.
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("secret"))
	}))
	defer target.Close()
	front := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, target.URL+"/internal", http.StatusFound)
	}))
	defer front.Close()

	validate := func(u string) error {
		if strings.HasPrefix(u, target.URL) {
			return horosafe.ErrSSRF
		}
		return nil
	}
	_, err := New(Config{URLValidator: validate}).Download(context.Background(), front.URL)
	if !errors.Is(err, horosafe.ErrSSRF) {
		t.Fatalf("err = %v, want ErrSSRF", err)
	}
}

func TestStatusError_Permanence(t *testing.T) {
	tests := map[int]bool{
		http.StatusNotFound:           true,
		http.StatusForbidden:          true,
		http.StatusTooManyRequests:    false,
		http.StatusRequestTimeout:     false,
		http.StatusBadGateway:         false,
		http.StatusServiceUnavailable: false,
	}
	for code, want := range tests {
		err := statusError(media.ErrDownloadFailed, code)
		if got := connectivity.IsPermanent(err); got != want {
			t.Errorf("status %d: permanent = %v, want %v", code, got, want)
		}
		if !errors.Is(err, media.ErrDownloadFailed) {
			t.Errorf("status %d: sentinel lost", code)
		}
	}
}
