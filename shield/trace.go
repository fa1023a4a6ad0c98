package shield

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"net/http"
)

const traceHeader = "X-Trace-ID"

// TraceID gives every request an id, reusing a well-formed one supplied by a
// fronting proxy. The id is echoed in the response and carried by a request
// logger stored in the context.
func TraceID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(traceHeader)
		if !validTraceID(id) {
			id = newTraceID()
		}
		w.Header().Set(traceHeader, id)

		logger := slog.Default().With("trace_id", id, "method", r.Method, "path", r.URL.Path)
		ctx := context.WithValue(r.Context(), TraceIDKey, id)
		ctx = context.WithValue(ctx, LoggerKey, logger)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func newTraceID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

func validTraceID(s string) bool {
	if s == "" || len(s) > 64 {
		return false
	}
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c == '-':
		default:
			return false
		}
	}
	return true
}

// GetTraceID returns the request's trace id, or "" outside a traced request.
func GetTraceID(ctx context.Context) string {
	id, _ := ctx.Value(TraceIDKey).(string)
	return id
}

// GetLogger returns the request logger, falling back to slog.Default().
func GetLogger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(LoggerKey).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}
