// Package dispatcher fans a cycle's messages out to recipients with bounded
// parallelism. Each delivery is isolated: a failure is logged and counted and
// never stops the others.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/buongiorno-bot/internal/message"
	"github.com/JakeFAU/buongiorno-bot/internal/metrics"
)

const (
	defaultConcurrency     = 4
	defaultDeliveryTimeout = 30 * time.Second
)

// Limiter paces sends per recipient.
type Limiter interface {
	Wait(ctx context.Context, key string) error
}

// Config controls fan-out.
type Config struct {
	Concurrency     int
	DeliveryTimeout time.Duration
}

// Delivery is one message for one recipient.
type Delivery struct {
	RecipientID int64
	Message     message.Message
}

// Report summarizes a fan-out. Failed keeps the last error per recipient.
type Report struct {
	Delivered int
	Failed    map[int64]error
}

// Dispatcher delivers messages through a Sender.
type Dispatcher struct {
	sender  message.Sender
	limiter Limiter
	cfg     Config
	logger  *zap.Logger
}

// New creates a Dispatcher. A nil limiter disables pacing.
func New(sender message.Sender, limiter Limiter, cfg Config, logger *zap.Logger) (*Dispatcher, error) {
	if sender == nil {
		return nil, errors.New("sender is required")
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if cfg.DeliveryTimeout <= 0 {
		cfg.DeliveryTimeout = defaultDeliveryTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		sender:  sender,
		limiter: limiter,
		cfg:     cfg,
		logger:  logger.Named("dispatcher"),
	}, nil
}

// Dispatch attempts every delivery and blocks until all have finished.
func (d *Dispatcher) Dispatch(ctx context.Context, job string, deliveries []Delivery) Report {
	report := Report{Failed: make(map[int64]error)}
	var mu sync.Mutex

	var g errgroup.Group
	g.SetLimit(d.cfg.Concurrency)
	for _, del := range deliveries {
		g.Go(func() error {
			err := d.deliver(ctx, del)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.Failed[del.RecipientID] = err
				metrics.ObserveDelivery(job, "error")
				d.logger.Warn("delivery failed",
					zap.String("job", job),
					zap.Int64("recipient_id", del.RecipientID),
					zap.Error(err),
				)
				return nil
			}
			report.Delivered++
			metrics.ObserveDelivery(job, "ok")
			return nil
		})
	}
	_ = g.Wait()
	return report
}

// Send delivers a single message outside of a cycle, e.g. a command reply.
func (d *Dispatcher) Send(ctx context.Context, recipientID int64, msg message.Message) error {
	return d.deliver(ctx, Delivery{RecipientID: recipientID, Message: msg})
}

func (d *Dispatcher) deliver(ctx context.Context, del Delivery) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("delivery panic: %v", r)
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, d.cfg.DeliveryTimeout)
	defer cancel()

	if d.limiter != nil {
		if err := d.limiter.Wait(ctx, strconv.FormatInt(del.RecipientID, 10)); err != nil {
			return fmt.Errorf("wait send budget: %w", err)
		}
	}
	if err := message.Deliver(ctx, d.sender, del.RecipientID, del.Message); err != nil {
		return fmt.Errorf("deliver to %d: %w", del.RecipientID, err)
	}
	return nil
}
