package redis_test

import (
	"context"
	"os"
	"testing"
	"time"

	"decivue/infrastructure/cache/redis"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// Runs against a real server when REDIS_ADDR is set.
func newCache(t *testing.T) *redis.Cache {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	c, err := redis.New(context.Background(), redis.Options{
		Addr:      addr,
		KeyPrefix: "decivue-test:" + uuid.NewString() + ":",
	}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = c.Clear(context.Background())
		_ = c.Close()
	})
	return c
}

func TestCache_SetGetDelete(t *testing.T) {
	ctx := context.Background()
	c := newCache(t)

	_, found := c.Get(ctx, "missing")
	assert.False(t, found)

	require.NoError(t, c.Set(ctx, "decision_stats:u1", []byte(`{"total":2}`), time.Minute))
	val, found := c.Get(ctx, "decision_stats:u1")
	require.True(t, found)
	assert.JSONEq(t, `{"total":2}`, string(val))

	require.NoError(t, c.Delete(ctx, "decision_stats:u1"))
	_, found = c.Get(ctx, "decision_stats:u1")
	assert.False(t, found)
}

func TestCache_Clear(t *testing.T) {
	ctx := context.Background()
	c := newCache(t)

	for _, k := range []string{"a", "b", "c"} {
		require.NoError(t, c.Set(ctx, k, []byte(k), time.Minute))
	}
	require.NoError(t, c.Clear(ctx))

	for _, k := range []string{"a", "b", "c"} {
		_, found := c.Get(ctx, k)
		assert.False(t, found, k)
	}
}

func TestCache_Expiry(t *testing.T) {
	ctx := context.Background()
	c := newCache(t)

	require.NoError(t, c.Set(ctx, "short", []byte("x"), 50*time.Millisecond))
	time.Sleep(150 * time.Millisecond)
	_, found := c.Get(ctx, "short")
	assert.False(t, found)
}
