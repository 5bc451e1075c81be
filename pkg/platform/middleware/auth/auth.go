// Package auth trusts the identity asserted by the fronting gateway.
//
// The gateway authenticates staff and forwards the principal in headers; this
// middleware turns those headers into a requestcontext.Actor. Role checks are
// left to the host.
package auth

import (
	"log/slog"
	"net/http"
	"strings"

	"shelterops/pkg/platform/middleware/request"
	"shelterops/pkg/requestcontext"
)

const (
	HeaderUserID   = "X-User-ID"
	HeaderUserName = "X-User-Name"
	HeaderRoles    = "X-User-Roles"
)

// ActorFromHeaders builds an Actor from gateway headers. Roles are comma separated.
func ActorFromHeaders(h http.Header) requestcontext.Actor {
	actor := requestcontext.Actor{
		UserID: strings.TrimSpace(h.Get(HeaderUserID)),
		Name:   strings.TrimSpace(h.Get(HeaderUserName)),
	}
	for _, role := range strings.Split(h.Get(HeaderRoles), ",") {
		if role = strings.TrimSpace(role); role != "" {
			actor.Roles = append(actor.Roles, role)
		}
	}
	return actor
}

// RequireActor rejects requests without an asserted user with 401.
func RequireActor(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor := ActorFromHeaders(r.Header)
			if actor.IsZero() {
				ctx := r.Context()
				logger.WarnContext(ctx, "unauthorized access - missing actor",
					"request_id", request.GetRequestID(ctx),
				)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"unauthorized","error_description":"Missing X-User-ID header"}`))
				return
			}
			ctx := requestcontext.WithActor(r.Context(), actor)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
