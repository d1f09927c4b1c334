// Package dispatcher contains tests for per-recipient fan-out.
package dispatcher

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/buongiorno-bot/internal/message"
)

type fakeSender struct {
	mu       sync.Mutex
	sent     map[int64][]string
	failFor  map[int64]error
	panicFor int64
	delay    time.Duration
	inFlight atomic.Int32
	peak     atomic.Int32
}

func newFakeSender() *fakeSender {
	return &fakeSender{sent: make(map[int64][]string), failFor: make(map[int64]error)}
}

func (f *fakeSender) SendText(ctx context.Context, id int64, text string) error {
	return f.send(ctx, id, "text:"+text)
}

func (f *fakeSender) SendImage(ctx context.Context, id int64, url string) error {
	return f.send(ctx, id, "image:"+url)
}

func (f *fakeSender) send(ctx context.Context, id int64, what string) error {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	if f.panicFor != 0 && id == f.panicFor {
		panic("sender exploded")
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failFor[id]; err != nil {
		return err
	}
	f.sent[id] = append(f.sent[id], what)
	return nil
}

func deliveries(msg message.Message, ids ...int64) []Delivery {
	out := make([]Delivery, 0, len(ids))
	for _, id := range ids {
		out = append(out, Delivery{RecipientID: id, Message: msg})
	}
	return out
}

func TestDispatchIsolatesRecipientFailures(t *testing.T) {
	t.Parallel()

	sender := newFakeSender()
	sender.failFor[2] = errors.New("bot was blocked by the user")
	d, err := New(sender, nil, Config{Concurrency: 1}, zap.NewNop())
	require.NoError(t, err)

	report := d.Dispatch(context.Background(), "morning", deliveries(message.Text("buongiorno"), 1, 2, 3))

	require.Equal(t, 2, report.Delivered)
	require.Len(t, report.Failed, 1)
	require.ErrorContains(t, report.Failed[2], "blocked")
	require.Equal(t, []string{"text:buongiorno"}, sender.sent[1])
	require.Equal(t, []string{"text:buongiorno"}, sender.sent[3])
	require.Empty(t, sender.sent[2])
}

func TestDispatchRecoversFromSenderPanic(t *testing.T) {
	t.Parallel()

	sender := newFakeSender()
	sender.panicFor = 2
	d, err := New(sender, nil, Config{Concurrency: 2}, nil)
	require.NoError(t, err)

	report := d.Dispatch(context.Background(), "night", deliveries(message.Text("buonanotte"), 1, 2, 3))
	require.Equal(t, 2, report.Delivered)
	require.ErrorContains(t, report.Failed[2], "panic")
}

func TestDispatchBoundsParallelism(t *testing.T) {
	t.Parallel()

	sender := newFakeSender()
	sender.delay = 20 * time.Millisecond
	d, err := New(sender, nil, Config{Concurrency: 3}, nil)
	require.NoError(t, err)

	ids := []int64{1, 2, 3, 4, 5, 6, 7, 8, 9}
	report := d.Dispatch(context.Background(), "lunch", deliveries(message.Text("buon pranzo"), ids...))
	require.Equal(t, len(ids), report.Delivered)
	require.LessOrEqual(t, sender.peak.Load(), int32(3))
}

func TestDispatchAppliesDeliveryTimeout(t *testing.T) {
	t.Parallel()

	sender := newFakeSender()
	sender.delay = time.Second
	d, err := New(sender, nil, Config{DeliveryTimeout: 20 * time.Millisecond}, nil)
	require.NoError(t, err)

	report := d.Dispatch(context.Background(), "dinner", deliveries(message.Text("buona cena"), 1))
	require.Zero(t, report.Delivered)
	require.ErrorIs(t, report.Failed[1], context.DeadlineExceeded)
}

type countingLimiter struct {
	mu   sync.Mutex
	keys []string
	err  error
}

func (c *countingLimiter) Wait(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.keys = append(c.keys, key)
	return c.err
}

func TestDispatchWaitsOnLimiter(t *testing.T) {
	t.Parallel()

	limiter := &countingLimiter{}
	d, err := New(newFakeSender(), limiter, Config{}, nil)
	require.NoError(t, err)

	report := d.Dispatch(context.Background(), "evening", deliveries(message.Text("buona serata"), 10, 20))
	require.Equal(t, 2, report.Delivered)
	require.ElementsMatch(t, []string{"10", "20"}, limiter.keys)

	limiter.err = errors.New("rate: Wait(n=1) would exceed context deadline")
	require.Error(t, d.Send(context.Background(), 30, message.Text("ciao")))
}

func TestNewRequiresSender(t *testing.T) {
	t.Parallel()

	_, err := New(nil, nil, Config{}, nil)
	require.Error(t, err)
}
