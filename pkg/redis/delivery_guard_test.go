package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupGuard(t *testing.T) (*DeliveryGuard, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewDeliveryGuard(client, time.Hour), mr
}

func TestDeliveryGuard(t *testing.T) {
	ctx := context.Background()
	guard, mr := setupGuard(t)

	seen, err := guard.Seen(ctx, "msg_1")
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, guard.Mark(ctx, "msg_1"))

	seen, err = guard.Seen(ctx, "msg_1")
	require.NoError(t, err)
	assert.True(t, seen)
	assert.Equal(t, time.Hour, mr.TTL(deliveryKeyPrefix+"msg_1"))

	mr.FastForward(2 * time.Hour)
	seen, err = guard.Seen(ctx, "msg_1")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestDeliveryGuard_ServerDown(t *testing.T) {
	guard, mr := setupGuard(t)
	mr.Close()

	_, err := guard.Seen(context.Background(), "msg_1")
	assert.Error(t, err)
}

func TestOptions(t *testing.T) {
	t.Run("tls with default port", func(t *testing.T) {
		opts, err := Options(Config{URL: "rediss://default:pw@eu1-example.upstash.io"})
		require.NoError(t, err)
		assert.Equal(t, "eu1-example.upstash.io:6379", opts.Addr)
		assert.Equal(t, "pw", opts.Password)
		assert.NotNil(t, opts.TLSConfig)
	})

	t.Run("explicit password wins", func(t *testing.T) {
		opts, err := Options(Config{URL: "redis://:fromurl@localhost:6380", Password: "explicit"})
		require.NoError(t, err)
		assert.Equal(t, "localhost:6380", opts.Addr)
		assert.Equal(t, "explicit", opts.Password)
		assert.Nil(t, opts.TLSConfig)
	})

	t.Run("missing url", func(t *testing.T) {
		_, err := Options(Config{})
		assert.Error(t, err)
	})

	t.Run("bad scheme", func(t *testing.T) {
		_, err := Options(Config{URL: "http://localhost"})
		assert.Error(t, err)
	})
}
