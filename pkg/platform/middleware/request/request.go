// Package request holds the per-request HTTP middleware: request ids, panic recovery,
// access logging, and handler timeouts.
package request

import (
	"context"
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"shelterops/pkg/requestcontext"
)

// HeaderRequestID is echoed back on every response.
const HeaderRequestID = "X-Request-ID"

// requestIDMaxLen bounds caller-supplied ids so they cannot flood log lines.
const requestIDMaxLen = 64

// GetRequestID retrieves the request id from the context.
func GetRequestID(ctx context.Context) string {
	return requestcontext.RequestID(ctx)
}

// RequestID reads X-Request-ID or generates one, stores it in the context,
// and echoes it on the response.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rid := r.Header.Get(HeaderRequestID)
		if rid == "" || len(rid) > requestIDMaxLen {
			rid = uuid.NewString()
		}
		w.Header().Set(HeaderRequestID, rid)
		ctx := requestcontext.WithRequestID(r.Context(), rid)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Recovery converts handler panics into a 500 with the standard error body.
func Recovery(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					ctx := r.Context()
					logger.ErrorContext(ctx, "panic recovered",
						"panic", rec,
						"request_id", GetRequestID(ctx),
						"stack", string(debug.Stack()),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_, _ = w.Write([]byte(`{"error":"internal_error"}`))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	n, err := s.ResponseWriter.Write(b)
	s.bytes += n
	return n, err
}

// LatencyObserver receives the duration of every request. The metrics bundle
// in internal/platform/metrics satisfies it.
type LatencyObserver interface {
	ObserveRequest(method, route string, status int, d time.Duration)
}

// Logger writes one structured line per request and forwards timings to observer
// when one is supplied.
func Logger(logger *slog.Logger, observer LatencyObserver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w}
			next.ServeHTTP(rec, r)

			if rec.status == 0 {
				rec.status = http.StatusOK
			}
			latency := time.Since(start)
			ctx := r.Context()
			attrs := []any{
				"status", rec.status,
				"method", r.Method,
				"path", r.URL.Path,
				"bytes", rec.bytes,
				"latency_ms", latency.Milliseconds(),
				"request_id", GetRequestID(ctx),
				"client_ip", requestcontext.ClientIP(ctx),
			}
			if actor := requestcontext.ActorFrom(ctx); !actor.IsZero() {
				attrs = append(attrs, "user_id", actor.UserID)
			}

			switch {
			case rec.status >= 500:
				logger.ErrorContext(ctx, "request failed", attrs...)
			case rec.status >= 400:
				logger.WarnContext(ctx, "client error", attrs...)
			default:
				logger.InfoContext(ctx, "request completed", attrs...)
			}

			if observer != nil {
				observer.ObserveRequest(r.Method, routePattern(r), rec.status, latency)
			}
		})
	}
}

// Timeout bounds the handler's context. Engine operations observe the deadline
// through RunInTx, which rolls back when it expires.
func Timeout(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if d <= 0 {
				next.ServeHTTP(w, r)
				return
			}
			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
