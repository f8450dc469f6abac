package kv

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"
)

func exerciseStore(t *testing.T, s Store) {
	ctx := context.Background()

	_, err := s.Get(ctx, "otp:missing")
	require.ErrorIs(t, err, ErrMiss)

	require.NoError(t, s.Set(ctx, "otp:1", "hash", time.Minute))
	v, err := s.Get(ctx, "otp:1")
	require.NoError(t, err)
	require.Equal(t, "hash", v)

	require.NoError(t, s.Del(ctx, "otp:1"))
	_, err = s.Get(ctx, "otp:1")
	require.ErrorIs(t, err, ErrMiss)

	n, err := s.Incr(ctx, "otp:2:attempts", time.Minute)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	// Concurrent increments each see a distinct value.
	const workers = 20
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = make(map[int64]bool)
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := s.Incr(ctx, "otp:2:attempts", time.Minute)
			if err != nil {
				return
			}
			mu.Lock()
			seen[v] = true
			mu.Unlock()
		}()
	}
	wg.Wait()
	require.Len(t, seen, workers)
	for v := int64(2); v <= workers+1; v++ {
		require.True(t, seen[v], "missing counter value %d", v)
	}
}

func TestRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	s := NewRedis(client)
	exerciseStore(t, s)

	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "session:abc", "u1", time.Minute))
	_, err := s.Incr(ctx, "otp:3:attempts", time.Minute)
	require.NoError(t, err)
	mr.FastForward(2 * time.Minute)
	_, err = s.Get(ctx, "session:abc")
	require.ErrorIs(t, err, ErrMiss)
	n, err := s.Incr(ctx, "otp:3:attempts", time.Minute)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
}

func TestMemory(t *testing.T) {
	s := NewMemory()
	exerciseStore(t, s)

	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "session:abc", "u1", time.Minute))
	require.NoError(t, s.Set(ctx, "forever", "x", 0))

	now = now.Add(2 * time.Minute)
	_, err := s.Get(ctx, "session:abc")
	require.ErrorIs(t, err, ErrMiss)
	v, err := s.Get(ctx, "forever")
	require.NoError(t, err)
	require.Equal(t, "x", v)

	_, err = s.Incr(ctx, "forever", time.Minute)
	require.Error(t, err)

	n, err := s.Incr(ctx, "otp:3:attempts", time.Minute)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
	now = now.Add(2 * time.Minute)
	n, err = s.Incr(ctx, "otp:3:attempts", time.Minute)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
}
