package lock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func setupLocker(t *testing.T, ttl time.Duration) (*miniredis.Miniredis, *Locker) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	l, err := New(context.Background(), Config{Addr: mr.Addr(), TTL: ttl})
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return mr, l
}

func TestAcquireOncePerSlot(t *testing.T) {
	t.Parallel()
	_, l := setupLocker(t, time.Minute)
	ctx := context.Background()
	slot := time.Date(2024, time.May, 30, 6, 30, 0, 0, time.UTC)

	ok, err := l.Acquire(ctx, "morning", slot)
	require.NoError(t, err)
	require.True(t, ok)

	// a second replica firing a few seconds late sees the same slot.
	ok, err = l.Acquire(ctx, "morning", slot.Add(3*time.Second))
	require.NoError(t, err)
	require.False(t, ok)

	// other jobs and other slots are independent.
	ok, err = l.Acquire(ctx, "birthday", slot)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = l.Acquire(ctx, "morning", slot.Add(24*time.Hour))
	require.NoError(t, err)
	require.True(t, ok)
}

func TestAcquireExpiresAfterTTL(t *testing.T) {
	t.Parallel()
	mr, l := setupLocker(t, time.Minute)
	ctx := context.Background()
	slot := time.Date(2024, time.May, 30, 21, 30, 0, 0, time.UTC)

	ok, err := l.Acquire(ctx, "night", slot)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, time.Minute, mr.TTL(Key("night", slot)))

	mr.FastForward(2 * time.Minute)
	ok, err = l.Acquire(ctx, "night", slot)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestAcquireReportsRedisErrors(t *testing.T) {
	t.Parallel()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	l := NewWithClient(client, 0)
	mr.Close()

	_, err = l.Acquire(context.Background(), "lunch", time.Now())
	require.Error(t, err)
	_ = l.Close()
}

func TestNewValidatesConfig(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), Config{})
	require.Error(t, err)
}

func TestKeyTruncatesToMinute(t *testing.T) {
	t.Parallel()

	a := time.Date(2024, time.May, 30, 6, 30, 0, 0, time.UTC)
	require.Equal(t, "buongiorno:cycle:morning:202405300630", Key("morning", a))
	require.Equal(t, Key("morning", a), Key("morning", a.Add(59*time.Second)))
	rome := time.FixedZone("CEST", 2*3600)
	require.Equal(t, Key("morning", a), Key("morning", a.In(rome)))
}
