// Package guard suppresses concurrent duplicate deliveries of the same
// firing before they reach the store.
package guard

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "reconciler:fired:"

// Guard claims a short-lived lease per key.
type Guard interface {
	// Acquire returns true when the caller owns key for ttl.
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// RedisGuard leases keys with SET NX PX.
type RedisGuard struct {
	client *redis.Client
}

func NewRedisGuard(client *redis.Client) *RedisGuard {
	return &RedisGuard{client: client}
}

// NewRedisGuardFromURL parses a redis:// URL and builds a guard on a new client.
func NewRedisGuardFromURL(rawURL string) (*RedisGuard, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return NewRedisGuard(redis.NewClient(opts)), nil
}

func (g *RedisGuard) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := g.client.SetNX(ctx, keyPrefix+key, time.Now().UTC().Format(time.RFC3339Nano), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx: %w", err)
	}
	return ok, nil
}

func (g *RedisGuard) Release(ctx context.Context, key string) error {
	if err := g.client.Del(ctx, keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Ping checks connectivity.
func (g *RedisGuard) Ping(ctx context.Context) error {
	return g.client.Ping(ctx).Err()
}

// Close releases the underlying client.
func (g *RedisGuard) Close() error {
	return g.client.Close()
}

// NopGuard grants every lease; the store CAS remains the only dedupe.
type NopGuard struct{}

func (NopGuard) Acquire(context.Context, string, time.Duration) (bool, error) { return true, nil }
func (NopGuard) Release(context.Context, string) error                        { return nil }
