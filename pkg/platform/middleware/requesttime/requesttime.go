// Package requesttime pins one "now" per HTTP request. Every event log entry,
// registration timestamp and scheduled start derived from a request agrees.
package requesttime

import (
	"net/http"
	"time"

	"shelterops/pkg/requestcontext"
)

// Middleware stamps each request with the UTC wall clock.
func Middleware(next http.Handler) http.Handler {
	return WithClock(time.Now)(next)
}

// WithClock stamps requests with clock() instead of the wall clock.
func WithClock(clock func() time.Time) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := requestcontext.WithTime(r.Context(), clock().UTC())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
