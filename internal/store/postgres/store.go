// Package postgres provides the Postgres-backed subscription store.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/JakeFAU/buongiorno-bot/internal/greeting"
	"github.com/JakeFAU/buongiorno-bot/internal/store"
)

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	// SkipMigrations leaves the schema untouched on connect.
	SkipMigrations bool
}

type pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
	Close()
}

// Store implements store.Store on Postgres.
type Store struct {
	pool pool
}

var _ store.Store = (*Store)(nil)

// Open connects to Postgres, applies migrations and returns a Store.
func Open(ctx context.Context, cfg Config, logger *zap.Logger) (*Store, error) {
	if cfg.DSN == "" {
		return nil, errors.New("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := p.Ping(ctx); err != nil {
		p.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if !cfg.SkipMigrations {
		if err := Migrate(ctx, p, logger); err != nil {
			p.Close()
			return nil, err
		}
	}
	return &Store{pool: p}, nil
}

// NewWithPool constructs a store from an existing pool (primarily for testing).
func NewWithPool(p pool) (*Store, error) {
	if p == nil {
		return nil, errors.New("pool is required")
	}
	return &Store{pool: p}, nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	return nil
}

// Subscribe inserts a subscription row.
func (s *Store) Subscribe(ctx context.Context, recipientID int64) error {
	tag, err := s.pool.Exec(ctx, `
INSERT INTO subscription (recipient_id)
VALUES ($1)
ON CONFLICT (recipient_id) DO NOTHING`, recipientID)
	if err != nil {
		if isPgCode(err, uniqueViolation) {
			return greeting.ErrAlreadySubscribed
		}
		return fmt.Errorf("insert subscription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return greeting.ErrAlreadySubscribed
	}
	return nil
}

// Unsubscribe deletes the recipient's birthdays and subscription in one
// transaction.
func (s *Store) Unsubscribe(ctx context.Context, recipientID int64) error {
	return s.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM birthday WHERE recipient_id = $1`, recipientID); err != nil {
			return fmt.Errorf("delete birthdays: %w", err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM subscription WHERE recipient_id = $1`, recipientID); err != nil {
			return fmt.Errorf("delete subscription: %w", err)
		}
		return nil
	})
}

// RegisterBirthday locks the subscription row and inserts the event.
func (s *Store) RegisterBirthday(ctx context.Context, recipientID int64, name string, date time.Time) error {
	name, date, err := store.NormalizeBirthday(name, date)
	if err != nil {
		return err
	}
	return s.inTx(ctx, func(tx pgx.Tx) error {
		var locked int64
		err := tx.QueryRow(ctx, `
SELECT recipient_id FROM subscription
WHERE recipient_id = $1
FOR UPDATE`, recipientID).Scan(&locked)
		if errors.Is(err, pgx.ErrNoRows) {
			return greeting.ErrNotSubscribed
		}
		if err != nil {
			return fmt.Errorf("lock subscription: %w", err)
		}

		tag, err := tx.Exec(ctx, `
INSERT INTO birthday (recipient_id, name, date)
VALUES ($1, $2, $3)
ON CONFLICT (recipient_id, name, date) DO NOTHING`, recipientID, name, date)
		switch {
		case isPgCode(err, uniqueViolation):
			return greeting.ErrDuplicateBirthday
		case isPgCode(err, foreignKeyViolation):
			return greeting.ErrNotSubscribed
		case err != nil:
			return fmt.Errorf("insert birthday: %w", err)
		case tag.RowsAffected() == 0:
			return greeting.ErrDuplicateBirthday
		}
		return nil
	})
}

// IsSubscribed reports whether a subscription row exists.
func (s *Store) IsSubscribed(ctx context.Context, recipientID int64) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM subscription WHERE recipient_id = $1)`, recipientID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("query subscription: %w", err)
	}
	return exists, nil
}

// ListSubscribers returns every subscription ordered by recipient id.
func (s *Store) ListSubscribers(ctx context.Context) ([]store.Subscription, error) {
	rows, err := s.pool.Query(ctx, `
SELECT recipient_id, created_at
FROM subscription
ORDER BY recipient_id`)
	if err != nil {
		return nil, fmt.Errorf("list subscribers: %w", err)
	}
	defer rows.Close()

	var out []store.Subscription
	for rows.Next() {
		var sub store.Subscription
		if err := rows.Scan(&sub.RecipientID, &sub.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan subscriber: %w", err)
		}
		out = append(out, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate subscribers: %w", err)
	}
	return out, nil
}

// ListBirthdays returns every birthday ordered by recipient, date and name.
func (s *Store) ListBirthdays(ctx context.Context) ([]store.Birthday, error) {
	rows, err := s.pool.Query(ctx, `
SELECT recipient_id, name, date, created_at
FROM birthday
ORDER BY recipient_id, date, name`)
	if err != nil {
		return nil, fmt.Errorf("list birthdays: %w", err)
	}
	defer rows.Close()

	var out []store.Birthday
	for rows.Next() {
		var b store.Birthday
		if err := rows.Scan(&b.RecipientID, &b.Name, &b.Date, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan birthday: %w", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate birthdays: %w", err)
	}
	return out, nil
}

func (s *Store) inTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func isPgCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}
