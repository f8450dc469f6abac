// Package kv is a small TTL key/value abstraction for short-lived auth state
// (pending OTP challenges, session tokens).
package kv

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// ErrMiss is returned when a key does not exist or has expired.
var ErrMiss = errors.New("kv: key not found")

type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Del(ctx context.Context, key string) error
	// Incr atomically adds one to the counter at key, sets its lifetime to
	// ttl and returns the new value.
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

type Redis struct {
	client *redis.Client
}

func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

func (r *Redis) Get(ctx context.Context, key string) (string, error) {
	val, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return "", ErrMiss
		}
		return "", err
	}
	return val, nil
}

func (r *Redis) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

func (r *Redis) Del(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

func (r *Redis) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	pipe := r.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	if ttl > 0 {
		pipe.Expire(ctx, key, ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

// Memory is the single-process fallback when no Redis is configured.
type Memory struct {
	mu   sync.Mutex
	now  func() time.Time
	data map[string]memoryItem
}

type memoryItem struct {
	value   string
	expires time.Time // zero = no ttl
}

func NewMemory() *Memory {
	return &Memory{now: time.Now, data: make(map[string]memoryItem)}
}

func (m *Memory) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, ok := m.data[key]
	if !ok {
		return "", ErrMiss
	}
	if !item.expires.IsZero() && m.now().After(item.expires) {
		delete(m.data, key)
		return "", ErrMiss
	}
	return item.value, nil
}

func (m *Memory) Set(_ context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var exp time.Time
	if ttl > 0 {
		exp = m.now().Add(ttl)
	}
	m.data[key] = memoryItem{value: value, expires: exp}
	return nil
}

func (m *Memory) Del(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *Memory) Incr(_ context.Context, key string, ttl time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	item, ok := m.data[key]
	if ok && !item.expires.IsZero() && m.now().After(item.expires) {
		ok = false
	}
	var n int64
	if ok {
		v, err := strconv.ParseInt(item.value, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("kv: %s is not a counter", key)
		}
		n = v
	}
	n++
	item = memoryItem{value: strconv.FormatInt(n, 10)}
	if ttl > 0 {
		item.expires = m.now().Add(ttl)
	}
	m.data[key] = item
	return n, nil
}
