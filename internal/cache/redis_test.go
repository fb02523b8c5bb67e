package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xivtracker/internal/models"
)

func newTestRedis(t *testing.T) *Redis {
	t.Helper()
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set, skipping Redis tests")
	}

	r, err := NewRedis(context.Background(), models.RedisConfig{
		Addr:      addr,
		DB:        15,
		KeyPrefix: "xivtracker-test:",
	}, time.Minute)
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

func TestRedis_GetSetDelete(t *testing.T) {
	r := newTestRedis(t)
	ctx := context.Background()
	t.Cleanup(func() { r.Delete(ctx, "quest:65") })

	require.NoError(t, r.Set(ctx, "quest:65", []byte(`{"id":65}`), 0))

	val, ok, err := r.Get(ctx, "quest:65")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.JSONEq(t, `{"id":65}`, string(val))

	ttl, err := r.client.TTL(ctx, "xivtracker-test:quest:65").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))

	require.NoError(t, r.Delete(ctx, "quest:65"))
	_, ok, err = r.Get(ctx, "quest:65")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNewRedis_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := NewRedis(ctx, models.RedisConfig{Addr: "127.0.0.1:1"}, 0)
	assert.Error(t, err)
}
