// Package lock provides the cross-replica lock that keeps a dispatch cycle
// from firing twice when more than one bot instance is running.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultTTL = 10 * time.Minute
	keyPrefix  = "buongiorno:cycle:"
)

// Config holds the Redis connection settings.
type Config struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// Locker acquires cycle locks with SET NX PX.
type Locker struct {
	client *redis.Client
	ttl    time.Duration
}

// New connects to Redis and verifies the connection.
func New(ctx context.Context, cfg Config) (*Locker, error) {
	if cfg.Addr == "" {
		return nil, errors.New("lock.redis_addr is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewWithClient(client, cfg.TTL), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client *redis.Client, ttl time.Duration) *Locker {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Locker{client: client, ttl: ttl}
}

// Acquire claims the cycle of job scheduled at slot. It returns false when
// another replica already holds it. The lock is never released explicitly; it
// expires after the TTL so a late replica cannot refire the same slot.
func (l *Locker) Acquire(ctx context.Context, job string, slot time.Time) (bool, error) {
	ok, err := l.client.SetNX(ctx, Key(job, slot), slot.UTC().Format(time.RFC3339), l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire cycle lock: %w", err)
	}
	return ok, nil
}

// Close closes the Redis client.
func (l *Locker) Close() error {
	if err := l.client.Close(); err != nil {
		return fmt.Errorf("close redis: %w", err)
	}
	return nil
}

// Key returns the Redis key for job at slot, truncated to the minute.
func Key(job string, slot time.Time) string {
	return keyPrefix + job + ":" + slot.UTC().Truncate(time.Minute).Format("200601021504")
}
