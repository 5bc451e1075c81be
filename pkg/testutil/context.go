package testutil

import (
	"context"
	"time"

	"shelterops/pkg/requestcontext"
)

// ActorContext returns a background context carrying a staff actor and a fixed
// request clock, as the HTTP middleware would set them.
func ActorContext(userID string, now time.Time) context.Context {
	ctx := requestcontext.WithActor(context.Background(), requestcontext.Actor{UserID: userID, Name: userID})
	return requestcontext.WithTime(ctx, now)
}
