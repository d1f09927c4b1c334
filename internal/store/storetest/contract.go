// Package storetest holds the behavioral suite every store.Store
// implementation must pass.
package storetest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/buongiorno-bot/internal/greeting"
	"github.com/JakeFAU/buongiorno-bot/internal/store"
)

// Run exercises newStore against the Store contract. newStore must return an
// empty store on each call.
func Run(t *testing.T, newStore func(t *testing.T) store.Store) {
	t.Helper()

	t.Run("subscribe is unique", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		require.NoError(t, s.Subscribe(ctx, 42))
		err := s.Subscribe(ctx, 42)
		require.ErrorIs(t, err, greeting.ErrAlreadySubscribed)
		require.Equal(t, greeting.ClassConflict, greeting.Classify(err))

		require.NoError(t, s.Unsubscribe(ctx, 42))
		require.NoError(t, s.Subscribe(ctx, 42))
	})

	t.Run("unsubscribe cascades birthdays", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		require.NoError(t, s.Subscribe(ctx, 7))
		require.NoError(t, s.Subscribe(ctx, 8))
		for i, name := range []string{"Anna", "Bruno", "Carla"} {
			require.NoError(t, s.RegisterBirthday(ctx, 7, name, day(1990, time.March, 1+i)))
		}
		require.NoError(t, s.RegisterBirthday(ctx, 8, "Dario", day(1985, time.July, 4)))

		require.NoError(t, s.Unsubscribe(ctx, 7))

		events, err := s.ListBirthdays(ctx)
		require.NoError(t, err)
		require.Len(t, events, 1)
		require.Equal(t, int64(8), events[0].RecipientID)

		ok, err := s.IsSubscribed(ctx, 7)
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("unsubscribe unknown recipient succeeds", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Unsubscribe(context.Background(), 999))
	})

	t.Run("list subscribers is stable and ordered", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		for _, id := range []int64{30, 10, 20} {
			require.NoError(t, s.Subscribe(ctx, id))
		}

		first, err := s.ListSubscribers(ctx)
		require.NoError(t, err)
		second, err := s.ListSubscribers(ctx)
		require.NoError(t, err)
		require.Equal(t, ids(first), ids(second))
		require.Equal(t, []int64{10, 20, 30}, ids(first))
	})

	t.Run("birthday requires subscription", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		err := s.RegisterBirthday(ctx, 5, "Anna", day(1990, time.May, 30))
		require.ErrorIs(t, err, greeting.ErrNotSubscribed)

		events, err := s.ListBirthdays(ctx)
		require.NoError(t, err)
		require.Empty(t, events)
	})

	t.Run("duplicate birthday is rejected", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		require.NoError(t, s.Subscribe(ctx, 42))
		require.NoError(t, s.RegisterBirthday(ctx, 42, "Anna", day(1990, time.May, 30)))
		err := s.RegisterBirthday(ctx, 42, "  Anna ", day(1990, time.May, 30))
		require.ErrorIs(t, err, greeting.ErrDuplicateBirthday)

		// same name on another date is a different event.
		require.NoError(t, s.RegisterBirthday(ctx, 42, "Anna", day(1991, time.May, 30)))
		require.Error(t, s.RegisterBirthday(ctx, 42, "   ", day(1991, time.May, 30)))
	})

	t.Run("birthday audience matches month and day", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		require.NoError(t, s.Subscribe(ctx, 42))
		require.NoError(t, s.RegisterBirthday(ctx, 42, "Anna", day(1990, time.May, 30)))

		events, err := s.ListBirthdays(ctx)
		require.NoError(t, err)

		today := store.BirthdaysOn(events, day(2024, time.May, 30))
		require.Len(t, today, 1)
		require.Equal(t, "Anna", today[0].Name)
		require.Equal(t, int64(42), today[0].RecipientID)

		require.Empty(t, store.BirthdaysOn(events, day(2024, time.May, 29)))
		require.Empty(t, store.BirthdaysOn(events, day(2024, time.June, 30)))
	})

	t.Run("concurrent subscribe admits one", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			success int
		)
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := s.Subscribe(ctx, 77); err == nil {
					mu.Lock()
					success++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()
		require.Equal(t, 1, success)
	})
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func ids(subs []store.Subscription) []int64 {
	out := make([]int64, 0, len(subs))
	for _, s := range subs {
		out = append(out, s.RecipientID)
	}
	return out
}
