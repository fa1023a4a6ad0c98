package shield

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func chain(h http.Handler, mws []func(http.Handler) http.Handler) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

func TestDefaultStack(t *testing.T) {
	var gotTrace, gotMethod string
	h := chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotTrace = GetTraceID(r.Context())
		gotMethod = r.Method
		if GetLogger(r.Context()) == nil {
			t.Error("nil logger")
		}
		w.Write([]byte("ok"))
	}), DefaultStack(1024))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodHead, "/catalog", nil))

	if gotMethod != http.MethodGet {
		t.Errorf("method = %s, want GET", gotMethod)
	}
	if gotTrace == "" || rec.Header().Get("X-Trace-ID") != gotTrace {
		t.Errorf("trace id %q, header %q", gotTrace, rec.Header().Get("X-Trace-ID"))
	}
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("missing nosniff")
	}
	if !strings.Contains(rec.Header().Get("Content-Security-Policy"), "img-src 'self'") {
		t.Errorf("csp = %q", rec.Header().Get("Content-Security-Policy"))
	}
}

func TestSecurityHeaders_SkipsEmpty(t *testing.T) {
	h := SecurityHeaders(HeaderConfig{XFrameOptions: "DENY"})(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Header().Get("X-Frame-Options") != "DENY" {
		t.Error("missing X-Frame-Options")
	}
	if _, ok := rec.Header()["Content-Security-Policy"]; ok {
		t.Error("empty CSP should not be set")
	}
}

func TestMaxBody(t *testing.T) {
	var readErr error
	h := MaxBody(8)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, readErr = io.ReadAll(r.Body)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"much":"too long"}`)))
	if readErr == nil {
		t.Fatal("expected body limit error")
	}
}

func TestGetLogger_Default(t *testing.T) {
	if GetLogger(httptest.NewRequest(http.MethodGet, "/", nil).Context()) == nil {
		t.Fatal("expected default logger")
	}
}

func TestTraceID_ReusesIncoming(t *testing.T) {
	// WHAT: A well-formed upstream trace id is kept; a malformed one is replaced.
	// WHY: Logs from a fronting proxy and from vitrine must correlate, but a
	// client must not be able to inject arbitrary text into log lines.
	var got string
	h := TraceID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = GetTraceID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Trace-ID", "edge-42ab")
	h.ServeHTTP(httptest.NewRecorder(), req)
	if got != "edge-42ab" {
		t.Errorf("trace id = %q, want edge-42ab", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Trace-ID", "bad id\nforged=1")
	h.ServeHTTP(httptest.NewRecorder(), req)
	if got == "" || strings.ContainsAny(got, " \n=") {
		t.Errorf("trace id = %q, want a fresh id", got)
	}
}
