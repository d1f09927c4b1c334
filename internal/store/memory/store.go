// Package memory provides an in-memory Store for development and testing.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/JakeFAU/buongiorno-bot/internal/greeting"
	"github.com/JakeFAU/buongiorno-bot/internal/store"
)

type birthdayKey struct {
	name string
	date time.Time
}

// Store keeps subscriptions and birthdays in maps guarded by a mutex.
type Store struct {
	mu        sync.RWMutex
	subs      map[int64]time.Time
	birthdays map[int64]map[birthdayKey]time.Time
	now       func() time.Time
}

var _ store.Store = (*Store)(nil)

// New constructs a Store.
func New() *Store {
	return &Store{
		subs:      make(map[int64]time.Time),
		birthdays: make(map[int64]map[birthdayKey]time.Time),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Subscribe adds a recipient.
func (s *Store) Subscribe(_ context.Context, recipientID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.subs[recipientID]; exists {
		return greeting.ErrAlreadySubscribed
	}
	s.subs[recipientID] = s.now()
	return nil
}

// Unsubscribe removes a recipient and its birthdays.
func (s *Store) Unsubscribe(_ context.Context, recipientID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.birthdays, recipientID)
	delete(s.subs, recipientID)
	return nil
}

// RegisterBirthday records a birthday for a subscribed recipient.
func (s *Store) RegisterBirthday(_ context.Context, recipientID int64, name string, date time.Time) error {
	name, date, err := store.NormalizeBirthday(name, date)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subs[recipientID]; !ok {
		return greeting.ErrNotSubscribed
	}
	events := s.birthdays[recipientID]
	if events == nil {
		events = make(map[birthdayKey]time.Time)
		s.birthdays[recipientID] = events
	}
	key := birthdayKey{name: name, date: date}
	if _, dup := events[key]; dup {
		return greeting.ErrDuplicateBirthday
	}
	events[key] = s.now()
	return nil
}

// IsSubscribed reports whether recipient is subscribed.
func (s *Store) IsSubscribed(_ context.Context, recipientID int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.subs[recipientID]
	return ok, nil
}

// ListSubscribers returns all subscriptions ordered by recipient id.
func (s *Store) ListSubscribers(_ context.Context) ([]store.Subscription, error) {
	s.mu.RLock()
	out := make([]store.Subscription, 0, len(s.subs))
	for id, created := range s.subs {
		out = append(out, store.Subscription{RecipientID: id, CreatedAt: created})
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].RecipientID < out[j].RecipientID })
	return out, nil
}

// ListBirthdays returns every birthday event.
func (s *Store) ListBirthdays(_ context.Context) ([]store.Birthday, error) {
	s.mu.RLock()
	var out []store.Birthday
	for id, events := range s.birthdays {
		for key, created := range events {
			out = append(out, store.Birthday{
				RecipientID: id,
				Name:        key.name,
				Date:        key.date,
				CreatedAt:   created,
			})
		}
	}
	s.mu.RUnlock()
	store.SortBirthdays(out)
	return out, nil
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// Close is a no-op.
func (s *Store) Close() {}
