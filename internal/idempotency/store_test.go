package idempotency

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreLifecycle(t *testing.T) {
	store := NewStore(nil, NewMemoryBackend(), time.Minute)
	ctx := context.Background()

	_, err := store.Lookup(ctx, "k1", "h1")
	require.ErrorIs(t, err, ErrNotFound)

	reserved, err := store.Reserve(ctx, "k1", "h1", "POST", "/v1/sessions/s/confirm")
	require.NoError(t, err)
	require.True(t, reserved)

	reserved, err = store.Reserve(ctx, "k1", "h1", "POST", "/v1/sessions/s/confirm")
	require.NoError(t, err)
	require.False(t, reserved)

	_, err = store.Lookup(ctx, "k1", "h1")
	require.ErrorIs(t, err, ErrInProgress)
	_, err = store.Lookup(ctx, "k1", "other")
	require.ErrorIs(t, err, ErrHashMismatch)

	rec, err := store.Finalize(ctx, "k1", "h1", 201, []byte(`{"ok":true}`), "application/json")
	require.NoError(t, err)
	assert.Equal(t, 201, rec.Status)

	rec, err = store.Lookup(ctx, "k1", "h1")
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, string(rec.Body))
	assert.Equal(t, "application/json", rec.ContentType)

	_, err = store.Finalize(ctx, "k1", "other", 200, nil, "")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestStoreWaitForCompletion(t *testing.T) {
	store := NewStore(nil, NewMemoryBackend(), time.Minute)
	ctx := context.Background()
	_, err := store.Reserve(ctx, "k", "h", "POST", "/x")
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		time.Sleep(60 * time.Millisecond)
		_, _ = store.Finalize(ctx, "k", "h", 200, []byte("done"), "text/plain")
	}()

	rec, err := store.WaitForCompletion(ctx, "k", "h")
	require.NoError(t, err)
	assert.Equal(t, "done", string(rec.Body))
	wg.Wait()

	_, err = store.Reserve(ctx, "slow", "h", "POST", "/x")
	require.NoError(t, err)
	waitCtx, cancel := context.WithTimeout(ctx, 30*time.Millisecond)
	defer cancel()
	_, err = store.WaitForCompletion(waitCtx, "slow", "h")
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestStoreRelease(t *testing.T) {
	store := NewStore(nil, NewMemoryBackend(), time.Minute)
	ctx := context.Background()

	reserved, err := store.Reserve(ctx, "k", "h", "POST", "/v1/sessions/s/transfer")
	require.NoError(t, err)
	require.True(t, reserved)

	// A different body cannot release someone else's reservation.
	require.NoError(t, store.Release(ctx, "k", "other"))
	_, err = store.Lookup(ctx, "k", "h")
	require.ErrorIs(t, err, ErrInProgress)

	require.NoError(t, store.Release(ctx, "k", "h"))
	_, err = store.Lookup(ctx, "k", "h")
	require.ErrorIs(t, err, ErrNotFound)

	reserved, err = store.Reserve(ctx, "k", "h", "POST", "/v1/sessions/s/transfer")
	require.NoError(t, err)
	assert.True(t, reserved)

	// Finished keys are never released.
	_, err = store.Finalize(ctx, "k", "h", 200, []byte("{}"), "application/json")
	require.NoError(t, err)
	require.NoError(t, store.Release(ctx, "k", "h"))
	rec, err := store.Lookup(ctx, "k", "h")
	require.NoError(t, err)
	assert.Equal(t, 200, rec.Status)
}

func TestStoreWaitSeesRelease(t *testing.T) {
	store := NewStore(nil, NewMemoryBackend(), time.Minute)
	ctx := context.Background()
	_, err := store.Reserve(ctx, "k", "h", "POST", "/x")
	require.NoError(t, err)

	go func() {
		time.Sleep(60 * time.Millisecond)
		_ = store.Release(ctx, "k", "h")
	}()
	_, err = store.WaitForCompletion(ctx, "k", "h")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryHashGuard(t *testing.T) {
	g := NewMemoryHashGuard()
	ctx := context.Background()

	ok, err := g.Claim(ctx, "t-1", "0xABC")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = g.Claim(ctx, "t-1", "0xabc")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = g.Claim(ctx, "t-2", "0xabc")
	require.NoError(t, err)
	assert.True(t, ok)
}

func redisClient(t *testing.T) *redis.Client {
	t.Helper()
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("Skipping integration test: REDIS_URL not set")
	}
	opts, err := redis.ParseURL(url)
	require.NoError(t, err)
	client := redis.NewClient(opts)
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Ping(context.Background()).Err())
	return client
}

func TestRedisHashGuard(t *testing.T) {
	client := redisClient(t)
	g := NewRedisHashGuard(client, time.Minute)
	ctx := context.Background()
	transferID := "t-" + uuid.NewString()
	t.Cleanup(func() { client.Del(ctx, hashGuardKey(transferID)) })

	ok, err := g.Claim(ctx, transferID, "0xabc")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = g.Claim(ctx, transferID, "0xabc")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStoreRedisCache(t *testing.T) {
	client := redisClient(t)
	ctx := context.Background()
	key := "k-" + uuid.NewString()
	t.Cleanup(func() { client.Del(ctx, cachePrefix+key) })

	backend := NewMemoryBackend()
	store := NewStore(client, backend, time.Minute)
	_, err := store.Reserve(ctx, key, "h", "POST", "/x")
	require.NoError(t, err)
	_, err = store.Finalize(ctx, key, "h", 200, []byte("cached"), "text/plain")
	require.NoError(t, err)

	// A fresh backend proves the replay came from redis.
	replay := NewStore(client, NewMemoryBackend(), time.Minute)
	rec, err := replay.Lookup(ctx, key, "h")
	require.NoError(t, err)
	assert.Equal(t, "redis", rec.ServedBy)
	assert.Equal(t, "cached", string(rec.Body))

	_, err = replay.Lookup(ctx, key, "different")
	require.ErrorIs(t, err, ErrHashMismatch)
}
