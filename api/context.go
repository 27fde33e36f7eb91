package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

type contextKey int

const requestContextKey contextKey = iota

// RequestContext carries per-request identity explicitly through the call
// chain instead of ambient globals. UserID and SID are empty until the
// auth middleware fills them in; the pointer is shared so later middleware
// updates are visible to the access logger.
type RequestContext struct {
	RequestID string
	UserID    string
	SID       string
}

// withRequestContext stores rc on ctx.
func withRequestContext(ctx context.Context, rc *RequestContext) context.Context {
	return context.WithValue(ctx, requestContextKey, rc)
}

// requestContextFrom returns the RequestContext for ctx. It never returns
// nil; requests outside the middleware chain get a zero context.
func requestContextFrom(ctx context.Context) *RequestContext {
	if rc, ok := ctx.Value(requestContextKey).(*RequestContext); ok {
		return rc
	}
	return &RequestContext{}
}

// RequestContextMiddleware assigns a request id (honoring X-Request-ID),
// attaches the typed RequestContext, echoes the id back to the client and
// writes one structured access-log line per request.
func (a *API) RequestContextMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rid := r.Header.Get("X-Request-ID")
		if rid == "" {
			rid = uuid.NewString()
		}
		rc := &RequestContext{RequestID: rid}
		ctx := withRequestContext(r.Context(), rc)
		w.Header().Set("X-Request-ID", rid)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r.WithContext(ctx))

		a.logger.LogAttrs(ctx, slog.LevelInfo, "access",
			slog.String("request_id", rid),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", rec.status),
			slog.Int64("elapsed_ms", time.Since(start).Milliseconds()),
			slog.String("user_id", rc.UserID),
			slog.String("remote_addr", r.RemoteAddr),
			slog.String("user_agent", r.UserAgent()),
		)
	})
}

// statusRecorder captures the response status for the access log.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
