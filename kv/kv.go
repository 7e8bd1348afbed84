// Package kv wraps Redis as the gateway's shared KV store (C1): a small
// linearizable verb set backing rate counters and ephemeral auth state.
// Every verb is bound to a short, per-call timeout so a stalled store fails
// fast rather than stalling the request pipeline.
package kv

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alfreddev/aigateway/config"
)

// shortCircuitTimeout bounds every KV operation per spec §4.1.
const shortCircuitTimeout = 50 * time.Millisecond

// Store is the C1 shared KV store.
type Store struct {
	c *redis.Client
}

// New dials Redis from the configured URL. Dialing is lazy in go-redis;
// reachability is confirmed by the first Ping.
func New(cfg *config.Config) (*Store, error) {
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	return &Store{c: redis.NewClient(opt)}, nil
}

// Ping reports whether the store is currently reachable.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, shortCircuitTimeout)
	defer cancel()
	return s.c.Ping(ctx).Err()
}

// Incr increments key by 1, (re)setting its ttl on every call, and returns
// the new count.
func (s *Store) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, shortCircuitTimeout)
	defer cancel()

	pipe := s.c.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("kv incr %s: %w", key, err)
	}
	return incr.Val(), nil
}

// ZAdd adds member with score to the sorted set at key.
func (s *Store) ZAdd(ctx context.Context, key string, score float64, member string) error {
	ctx, cancel := context.WithTimeout(ctx, shortCircuitTimeout)
	defer cancel()
	if err := s.c.ZAdd(ctx, key, redis.Z{Score: score, Member: member}).Err(); err != nil {
		return fmt.Errorf("kv zadd %s: %w", key, err)
	}
	return nil
}

// ZRangeCount returns the number of members in the sorted set at key with
// score >= since (unix nanoseconds), after first trimming entries older
// than since so the set does not grow without bound.
func (s *Store) ZRangeCount(ctx context.Context, key string, since int64) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, shortCircuitTimeout)
	defer cancel()

	pipe := s.c.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "-inf", fmt.Sprintf("(%d", since))
	count := pipe.ZCount(ctx, key, fmt.Sprintf("%d", since), "+inf")
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("kv zrange-count %s: %w", key, err)
	}
	return count.Val(), nil
}

// Expire sets or refreshes a key's TTL.
func (s *Store) Expire(ctx context.Context, key string, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, shortCircuitTimeout)
	defer cancel()
	if err := s.c.Expire(ctx, key, ttl).Err(); err != nil {
		return fmt.Errorf("kv expire %s: %w", key, err)
	}
	return nil
}

// Get returns the string value of key ("", false) when absent.
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, shortCircuitTimeout)
	defer cancel()
	v, err := s.c.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("kv get %s: %w", key, err)
	}
	return v, true, nil
}

// Set stores value at key with the given ttl (0 = no expiry).
func (s *Store) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, shortCircuitTimeout)
	defer cancel()
	if err := s.c.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("kv set %s: %w", key, err)
	}
	return nil
}

// Del removes key.
func (s *Store) Del(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, shortCircuitTimeout)
	defer cancel()
	if err := s.c.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("kv del %s: %w", key, err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.c.Close()
}
