package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shelterops/internal/platform/config"
)

func TestNewWithoutURLSelectsNoClient(t *testing.T) {
	client, err := New(context.Background(), config.RedisConfig{})
	require.NoError(t, err)
	assert.Nil(t, client)
}

func TestOptions(t *testing.T) {
	t.Run("overlays pool settings on the URL", func(t *testing.T) {
		opts, err := options(config.RedisConfig{
			URL:          "redis://locks.internal:6380/2",
			PoolSize:     7,
			MinIdleConns: 2,
			DialTimeout:  4 * time.Second,
		})
		require.NoError(t, err)
		assert.Equal(t, "locks.internal:6380", opts.Addr)
		assert.Equal(t, 2, opts.DB)
		assert.Equal(t, 7, opts.PoolSize)
		assert.Equal(t, 2, opts.MinIdleConns)
		assert.Equal(t, 4*time.Second, opts.DialTimeout)
	})

	t.Run("zero settings keep the driver defaults", func(t *testing.T) {
		opts, err := options(config.RedisConfig{URL: "redis://localhost:6379/0"})
		require.NoError(t, err)
		assert.Zero(t, opts.PoolSize)
		assert.Zero(t, opts.ReadTimeout)
	})

	t.Run("rejects a malformed URL", func(t *testing.T) {
		_, err := options(config.RedisConfig{URL: "http://not-redis"})
		assert.ErrorContains(t, err, "SHELTERD_REDIS_URL")
	})
}
