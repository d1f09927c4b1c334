package telegram

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/buongiorno-bot/internal/command"
	"github.com/JakeFAU/buongiorno-bot/internal/message"
)

// UpdateSource yields inbound updates.
type UpdateSource interface {
	GetUpdates(ctx context.Context, offset int64) ([]Update, error)
}

// CommandHandler answers the text of an inbound message.
type CommandHandler interface {
	HandleText(ctx context.Context, recipientID int64, text string) (message.Message, error)
}

// Replier delivers a reply to one chat.
type Replier interface {
	Send(ctx context.Context, recipientID int64, msg message.Message) error
}

// PollerConfig bounds concurrent command handling and error backoff.
type PollerConfig struct {
	Concurrency int
	MinBackoff  time.Duration
	MaxBackoff  time.Duration
}

// Poller long-polls for updates and answers every command it receives.
type Poller struct {
	source  UpdateSource
	handler CommandHandler
	replier Replier
	cfg     PollerConfig
	logger  *zap.Logger
}

// NewPoller creates a Poller.
func NewPoller(source UpdateSource, handler CommandHandler, replier Replier, cfg PollerConfig, logger *zap.Logger) (*Poller, error) {
	switch {
	case source == nil:
		return nil, errors.New("update source is required")
	case handler == nil:
		return nil, errors.New("command handler is required")
	case replier == nil:
		return nil, errors.New("replier is required")
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 8
	}
	if cfg.MinBackoff <= 0 {
		cfg.MinBackoff = time.Second
	}
	if cfg.MaxBackoff < cfg.MinBackoff {
		cfg.MaxBackoff = 30 * cfg.MinBackoff
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Poller{
		source:  source,
		handler: handler,
		replier: replier,
		cfg:     cfg,
		logger:  logger.Named("poller"),
	}, nil
}

// Run polls until ctx is canceled, then waits for in-flight commands and
// returns nil.
func (p *Poller) Run(ctx context.Context) error {
	var g errgroup.Group
	g.SetLimit(p.cfg.Concurrency)
	defer g.Wait() //nolint:errcheck // workers never return errors

	var offset int64
	backoff := p.cfg.MinBackoff
	for {
		updates, err := p.source.GetUpdates(ctx, offset)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			wait := backoff
			var apiErr *APIError
			if errors.As(err, &apiErr) && apiErr.RetryAfter > 0 {
				wait = apiErr.RetryAfter
			}
			p.logger.Warn("get updates failed", zap.Error(err), zap.Duration("retry_in", wait))
			if !sleep(ctx, wait) {
				return nil
			}
			backoff = min(backoff*2, p.cfg.MaxBackoff)
			continue
		}
		backoff = p.cfg.MinBackoff

		for _, u := range updates {
			if u.ID >= offset {
				offset = u.ID + 1
			}
			if u.Message == nil || u.Message.Text == "" {
				continue
			}
			msg := *u.Message
			g.Go(func() error {
				p.handle(ctx, msg)
				return nil
			})
		}
	}
}

func (p *Poller) handle(ctx context.Context, in Message) {
	log := p.logger.With(zap.Int64("recipient_id", in.Chat.ID), zap.Int64("message_id", in.ID))
	defer func() {
		if r := recover(); r != nil {
			log.Error("command handler panicked", zap.Any("panic", r))
		}
	}()

	reply, err := p.handler.HandleText(ctx, in.Chat.ID, in.Text)
	switch {
	case errors.Is(err, command.ErrNotCommand), errors.Is(err, command.ErrOtherBot):
		return
	case err != nil:
		log.Error("handle command failed", zap.Error(err))
		return
	case reply.Empty():
		return
	}
	if err := p.replier.Send(ctx, in.Chat.ID, reply); err != nil {
		log.Warn("reply failed", zap.Error(err))
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
