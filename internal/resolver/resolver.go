// Package resolver picks one greeting image for a category by trying the
// registered providers in random order, falling back across providers and,
// for morning greetings, to the plain buongiorno category.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/buongiorno-bot/internal/greeting"
	"github.com/JakeFAU/buongiorno-bot/internal/metrics"
	"github.com/JakeFAU/buongiorno-bot/internal/provider"
)

const defaultFetchTimeout = 20 * time.Second

// Rand is the random source used for provider order and image choice.
// *math/rand/v2.Rand satisfies it.
type Rand interface {
	IntN(n int) int
	Shuffle(n int, swap func(i, j int))
}

// Config controls resolver behavior.
type Config struct {
	// FetchTimeout bounds each individual provider call.
	FetchTimeout time.Duration
}

// Resolver implements the fallback strategy over a fixed provider list.
type Resolver struct {
	providers []provider.Provider
	rnd       Rand
	cfg       Config
	logger    *zap.Logger
}

// New creates a Resolver. The provider slice is copied.
func New(providers []provider.Provider, rnd Rand, cfg Config, logger *zap.Logger) (*Resolver, error) {
	if len(providers) == 0 {
		return nil, errors.New("at least one provider is required")
	}
	if rnd == nil {
		return nil, errors.New("random source is required")
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = defaultFetchTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		providers: append([]provider.Provider(nil), providers...),
		rnd:       rnd,
		cfg:       cfg,
		logger:    logger.Named("resolver"),
	}, nil
}

// Resolve returns one image for category. When every provider fails, for the
// category and its baseline if it has one, the returned error wraps
// greeting.ErrUnavailable and the last provider error.
func (r *Resolver) Resolve(ctx context.Context, category greeting.Category) (greeting.ImageRef, error) {
	order := append([]provider.Provider(nil), r.providers...)
	r.rnd.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

	ref, lastErr := r.sweep(ctx, order, category)
	if lastErr == nil {
		metrics.ObserveResolve(category.String(), "ok")
		return ref, nil
	}

	if baseline, ok := category.Baseline(); ok && ctx.Err() == nil {
		r.logger.Info("falling back to baseline category",
			zap.String("category", category.String()),
			zap.String("baseline", baseline.String()),
			zap.Error(lastErr),
		)
		ref, err := r.sweep(ctx, order, baseline)
		if err == nil {
			metrics.ObserveResolve(category.String(), "baseline")
			return ref, nil
		}
		lastErr = preferConcrete(lastErr, err)
	}

	metrics.ObserveResolve(category.String(), "unavailable")
	return greeting.ImageRef{}, fmt.Errorf("resolve %s: %w: %w", category, greeting.ErrUnavailable, lastErr)
}

// sweep tries each provider once, in order, and returns the first success.
func (r *Resolver) sweep(ctx context.Context, order []provider.Provider, category greeting.Category) (greeting.ImageRef, error) {
	var lastErr error
	for _, p := range order {
		if err := ctx.Err(); err != nil {
			return greeting.ImageRef{}, fmt.Errorf("resolve canceled: %w", err)
		}
		refs, err := r.fetch(ctx, p, category)
		if err == nil && len(refs) > 0 {
			ref := refs[r.rnd.IntN(len(refs))]
			r.logger.Debug("image resolved",
				zap.String("category", category.String()),
				zap.String("provider", p.Name()),
				zap.String("url", ref.String()),
			)
			return ref, nil
		}
		if err == nil {
			err = fmt.Errorf("%s: %w", p.Name(), greeting.ErrEmptyResult)
		}
		lastErr = preferConcrete(lastErr, err)
		if greeting.Classify(err) != greeting.ClassUnsupported {
			r.logger.Warn("provider failed",
				zap.String("category", category.String()),
				zap.String("provider", p.Name()),
				zap.Error(err),
			)
		}
	}
	return greeting.ImageRef{}, lastErr
}

func (r *Resolver) fetch(ctx context.Context, p provider.Provider, category greeting.Category) ([]greeting.ImageRef, error) {
	callCtx, cancel := context.WithTimeout(ctx, r.cfg.FetchTimeout)
	defer cancel()
	refs, err := p.Fetch(callCtx, category)
	if err != nil {
		return nil, fmt.Errorf("provider %s: %w", p.Name(), err)
	}
	return refs, nil
}

// preferConcrete keeps a network or empty-result error over a later
// unsupported one.
func preferConcrete(prev, next error) error {
	if prev != nil && greeting.Classify(next) == greeting.ClassUnsupported &&
		greeting.Classify(prev) != greeting.ClassUnsupported {
		return prev
	}
	return next
}
