package requestcontext

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestActor(t *testing.T) {
	t.Run("zero actor when unset", func(t *testing.T) {
		assert.True(t, ActorFrom(context.Background()).IsZero())
	})

	t.Run("round trips actor", func(t *testing.T) {
		ctx := WithActor(context.Background(), Actor{UserID: "u-1", Name: "Ada", Roles: []string{"staff"}})
		actor := ActorFrom(ctx)
		assert.Equal(t, "u-1", actor.UserID)
		assert.Equal(t, "Ada", actor.DisplayName())
	})

	t.Run("display name falls back to user id", func(t *testing.T) {
		assert.Equal(t, "u-2", Actor{UserID: "u-2"}.DisplayName())
	})
}

func TestNow(t *testing.T) {
	fixed := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	ctx := WithTime(context.Background(), fixed)
	assert.Equal(t, fixed, Now(ctx))

	before := time.Now()
	assert.False(t, Now(context.Background()).Before(before))
}

func TestRequestMetadata(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-9")
	ctx = WithClientMetadata(ctx, "10.0.0.1", "curl/8")
	assert.Equal(t, "req-9", RequestID(ctx))
	assert.Equal(t, "10.0.0.1", ClientIP(ctx))
	assert.Equal(t, "curl/8", UserAgent(ctx))
}
