package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/JakeFAU/buongiorno-bot/internal/greeting"
)

// MaxNameLength bounds the display name stored with a birthday.
const MaxNameLength = 64

// ErrInvalidBirthday means a birthday name or date failed validation.
var ErrInvalidBirthday = errors.New("invalid birthday")

// Subscription is one subscribed recipient.
type Subscription struct {
	RecipientID int64
	CreatedAt   time.Time
}

// Birthday is a birthday event owned by a subscribed recipient. Only the month
// and day of Date are meaningful for matching.
type Birthday struct {
	RecipientID int64
	Name        string
	Date        time.Time
	CreatedAt   time.Time
}

// Store persists subscriptions and birthday events.
type Store interface {
	// Subscribe adds recipient or fails with greeting.ErrAlreadySubscribed.
	Subscribe(ctx context.Context, recipientID int64) error
	// Unsubscribe removes recipient and every birthday it owns. Removing an
	// unknown recipient succeeds.
	Unsubscribe(ctx context.Context, recipientID int64) error
	// RegisterBirthday fails with greeting.ErrNotSubscribed or
	// greeting.ErrDuplicateBirthday.
	RegisterBirthday(ctx context.Context, recipientID int64, name string, date time.Time) error
	IsSubscribed(ctx context.Context, recipientID int64) (bool, error)
	// ListSubscribers returns subscriptions ordered by recipient id.
	ListSubscribers(ctx context.Context) ([]Subscription, error)
	// ListBirthdays returns events ordered by recipient, date and name.
	ListBirthdays(ctx context.Context) ([]Birthday, error)
	Ping(ctx context.Context) error
	Close()
}

// NormalizeBirthday trims name, validates it and truncates date to a UTC
// calendar day.
func NormalizeBirthday(name string, date time.Time) (string, time.Time, error) {
	name = strings.Join(strings.Fields(name), " ")
	if name == "" {
		return "", time.Time{}, fmt.Errorf("%w: name is required", ErrInvalidBirthday)
	}
	if len([]rune(name)) > MaxNameLength {
		return "", time.Time{}, fmt.Errorf("%w: name longer than %d characters", ErrInvalidBirthday, MaxNameLength)
	}
	if date.IsZero() {
		return "", time.Time{}, fmt.Errorf("%w: date is required", ErrInvalidBirthday)
	}
	return name, time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC), nil
}

// BirthdaysOn returns the events celebrated on day, ignoring the stored year.
func BirthdaysOn(events []Birthday, day time.Time) []Birthday {
	var out []Birthday
	for _, b := range events {
		if greeting.SameMonthDay(b.Date, day) {
			out = append(out, b)
		}
	}
	return out
}

// SortBirthdays orders events by recipient, date and name.
func SortBirthdays(events []Birthday) {
	sort.Slice(events, func(i, j int) bool {
		a, b := events[i], events[j]
		if a.RecipientID != b.RecipientID {
			return a.RecipientID < b.RecipientID
		}
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		return a.Name < b.Name
	})
}
