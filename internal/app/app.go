// Package app builds the long-lived services of the bot and runs them: the
// store, the resolver, the scheduler, the command handler, the Telegram
// poller, and the ops HTTP server.
package app

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/buongiorno-bot/internal/api"
	"github.com/JakeFAU/buongiorno-bot/internal/clock/system"
	"github.com/JakeFAU/buongiorno-bot/internal/command"
	"github.com/JakeFAU/buongiorno-bot/internal/config"
	"github.com/JakeFAU/buongiorno-bot/internal/dispatcher"
	collyfetcher "github.com/JakeFAU/buongiorno-bot/internal/fetcher/colly"
	"github.com/JakeFAU/buongiorno-bot/internal/id/uuid"
	"github.com/JakeFAU/buongiorno-bot/internal/lock"
	"github.com/JakeFAU/buongiorno-bot/internal/message"
	"github.com/JakeFAU/buongiorno-bot/internal/metrics"
	"github.com/JakeFAU/buongiorno-bot/internal/provider"
	"github.com/JakeFAU/buongiorno-bot/internal/ratelimit"
	"github.com/JakeFAU/buongiorno-bot/internal/resolver"
	"github.com/JakeFAU/buongiorno-bot/internal/scheduler"
	"github.com/JakeFAU/buongiorno-bot/internal/store"
	pgstore "github.com/JakeFAU/buongiorno-bot/internal/store/postgres"
	"github.com/JakeFAU/buongiorno-bot/internal/transport/telegram"
)

// App contains the application's dependencies.
type App struct {
	cfg       *config.Config
	logger    *zap.Logger
	store     store.Store
	limiter   *ratelimit.Limiter
	resolver  *resolver.Resolver
	scheduler *scheduler.Scheduler
	commands  *command.Handler
	poller    *telegram.Poller
	apiServer *api.Server
	locker    *lock.Locker

	closeOnce sync.Once
}

// Option overrides a dependency, mostly for tests and dry runs.
type Option func(*options)

type options struct {
	store   store.Store
	sender  message.Sender
	fetcher provider.PageFetcher
}

// WithStore replaces the Postgres store.
func WithStore(st store.Store) Option {
	return func(o *options) { o.store = st }
}

// WithSender replaces the configured transport for outbound messages.
func WithSender(s message.Sender) Option {
	return func(o *options) { o.sender = s }
}

// WithPageFetcher replaces the colly page fetcher used by providers.
func WithPageFetcher(f provider.PageFetcher) Option {
	return func(o *options) { o.fetcher = f }
}

// Build creates the application's dependencies. Failing to reach the store
// is fatal.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	metrics.Init()

	a := &App{cfg: cfg, logger: logger}
	a.logger.Info("building application dependencies",
		zap.String("transport", cfg.Transport.Driver),
		zap.String("timezone", cfg.Scheduler.Timezone),
		zap.Bool("lock_enabled", cfg.Lock.RedisAddr != ""),
	)

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	clock := system.New(loc)
	rnd := sharedRand{}

	if err := a.setupStore(ctx, o.store); err != nil {
		return nil, err
	}
	if err := a.setupResolver(o.fetcher, clock, rnd); err != nil {
		a.Close()
		return nil, err
	}

	sender, client, err := a.setupTransport(o.sender)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.limiter = ratelimit.New(ratelimit.Config{
		GlobalRPS:   cfg.Scheduler.SendRPS,
		GlobalBurst: cfg.Scheduler.SendBurst,
		PeerRPS:     cfg.Scheduler.PeerRPS,
		PeerBurst:   cfg.Scheduler.PeerBurst,
	})
	dispatch, err := dispatcher.New(sender, a.limiter, dispatcher.Config{
		Concurrency:     cfg.Scheduler.DispatchConcurrency,
		DeliveryTimeout: cfg.DeliveryTimeout(),
	}, logger)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("dispatcher init failed: %w", err)
	}

	if err := a.setupLock(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.setupScheduler(dispatch, clock, rnd, loc); err != nil {
		a.Close()
		return nil, err
	}

	a.commands, err = command.NewHandler(a.store, a.resolver, clock, rnd,
		command.WithBotName(cfg.Telegram.BotName),
		command.WithRelease(command.ReleaseInfo{
			Version:    cfg.Release.Version,
			Author:     cfg.Release.Author,
			Repository: cfg.Release.Repository,
		}),
		command.WithUnsubscribeHook(func(id int64) {
			a.limiter.Forget(strconv.FormatInt(id, 10))
		}),
		command.WithLogger(logger),
	)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("command handler init failed: %w", err)
	}

	if client != nil {
		a.poller, err = telegram.NewPoller(client, a.commands, dispatch, telegram.PollerConfig{
			Concurrency: cfg.Scheduler.DispatchConcurrency,
		}, logger)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("poller init failed: %w", err)
		}
	}

	a.apiServer = api.NewServer(a.commands, a.scheduler, a.store, cfg.Server, logger.Named("api"))
	return a, nil
}

func (a *App) setupStore(ctx context.Context, override store.Store) error {
	if override != nil {
		a.logger.Info("using injected store")
		a.store = override
		return nil
	}
	st, err := pgstore.Open(ctx, pgstore.Config{
		DSN:             a.cfg.DB.DSN,
		MaxConns:        a.cfg.DB.MaxConns,
		MinConns:        a.cfg.DB.MinConns,
		MaxConnLifetime: a.cfg.MaxConnLifetime(),
	}, a.logger.Named("postgres"))
	if err != nil {
		return fmt.Errorf("store init failed: %w", err)
	}
	a.logger.Info("postgres store initialized")
	a.store = st
	return nil
}

func (a *App) setupResolver(fetcher provider.PageFetcher, clock *system.Clock, rnd sharedRand) error {
	if fetcher == nil {
		fetcher = collyfetcher.New(collyfetcher.Config{
			UserAgent:     a.cfg.HTTP.UserAgent,
			RespectRobots: a.cfg.HTTP.RespectRobots,
			Timeout:       a.cfg.FetchTimeout(),
		})
		a.logger.Info("using colly page fetcher",
			zap.String("user_agent", a.cfg.HTTP.UserAgent),
			zap.Bool("respect_robots", a.cfg.HTTP.RespectRobots),
		)
	}
	providers, err := provider.All(fetcher, provider.WithClock(clock), provider.WithLogger(a.logger))
	if err != nil {
		return fmt.Errorf("providers init failed: %w", err)
	}
	a.resolver, err = resolver.New(providers, rnd, resolver.Config{FetchTimeout: a.cfg.FetchTimeout()}, a.logger)
	if err != nil {
		return fmt.Errorf("resolver init failed: %w", err)
	}
	return nil
}

func (a *App) setupTransport(override message.Sender) (message.Sender, *telegram.Client, error) {
	if override != nil {
		return override, nil, nil
	}
	switch a.cfg.Transport.Driver {
	case config.TransportTelegram:
		client, err := telegram.New(telegram.Config{
			Token:       a.cfg.Telegram.Token,
			BaseURL:     a.cfg.Telegram.BaseURL,
			PollTimeout: a.cfg.PollTimeout(),
		}, nil, a.logger)
		if err != nil {
			return nil, nil, fmt.Errorf("telegram client init failed: %w", err)
		}
		a.logger.Info("using telegram transport")
		return client, client, nil
	default:
		a.logger.Info("using log transport; messages are logged, not sent")
		return message.NewLogSender(a.logger), nil, nil
	}
}

func (a *App) setupLock(ctx context.Context) error {
	if a.cfg.Lock.RedisAddr == "" {
		a.logger.Info("cycle lock disabled")
		return nil
	}
	locker, err := lock.New(ctx, lock.Config{
		Addr:     a.cfg.Lock.RedisAddr,
		Password: a.cfg.Lock.RedisPassword,
		DB:       a.cfg.Lock.RedisDB,
		TTL:      a.cfg.LockTTL(),
	})
	if err != nil {
		return fmt.Errorf("cycle lock init failed: %w", err)
	}
	a.logger.Info("redis cycle lock initialized", zap.String("addr", a.cfg.Lock.RedisAddr))
	a.locker = locker
	return nil
}

func (a *App) setupScheduler(dispatch *dispatcher.Dispatcher, clock *system.Clock, rnd sharedRand, loc *time.Location) error {
	jobs, err := scheduler.WithSpecs(scheduler.DefaultJobs(), a.cfg.Scheduler.Jobs)
	if err != nil {
		return fmt.Errorf("scheduler jobs: %w", err)
	}
	deps := scheduler.Deps{
		Store:      a.store,
		Resolver:   a.resolver,
		Dispatcher: dispatch,
		Clock:      clock,
		Rand:       rnd,
		IDs:        uuid.New(),
	}
	if a.locker != nil {
		deps.Locker = a.locker
	}
	a.scheduler, err = scheduler.New(deps, jobs, scheduler.Config{Location: loc}, a.logger)
	if err != nil {
		return fmt.Errorf("scheduler init failed: %w", err)
	}
	return nil
}

// Handler returns the ops HTTP handler.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Commands returns the command handler.
func (a *App) Commands() *command.Handler {
	return a.commands
}

// Scheduler returns the job scheduler.
func (a *App) Scheduler() *scheduler.Scheduler {
	return a.scheduler
}

// RunJob fires one job immediately and waits for it.
func (a *App) RunJob(ctx context.Context, name string) (scheduler.CycleReport, error) {
	report, err := a.scheduler.RunNow(ctx, name)
	if err != nil {
		return scheduler.CycleReport{}, fmt.Errorf("run job %s: %w", name, err)
	}
	return report, nil
}

// Run starts the scheduler, the poller and the ops server and blocks until
// ctx is canceled. It then drains everything within the configured
// shutdown timeout.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := context.WithCancel(ctx)
	defer stop()

	a.scheduler.Start()
	a.logger.Info("application started", zap.Int("jobs", len(a.scheduler.Jobs())))

	var wg sync.WaitGroup
	if a.poller != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.logger.Info("telegram poller started")
			if err := a.poller.Run(ctx); err != nil {
				a.logger.Error("telegram poller stopped", zap.Error(err))
				stop()
			}
		}()
	}

	var srv *http.Server
	if a.cfg.Server.Enabled {
		srv = &http.Server{
			Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
			Handler:           a.apiServer.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.logger.Error("http server error", zap.Error(err))
				stop()
			}
		}()
	}

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout())
	defer cancel()

	var errs []error
	if srv != nil {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("http server shutdown: %w", err))
		}
	}
	if err := a.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, err)
	}
	wg.Wait()
	a.Close()
	return errors.Join(errs...)
}

// Shutdown stops the scheduler and waits for running cycles within ctx.
func (a *App) Shutdown(ctx context.Context) error {
	if a.scheduler == nil {
		return nil
	}
	if err := a.scheduler.Shutdown(ctx); err != nil {
		return fmt.Errorf("scheduler shutdown: %w", err)
	}
	return nil
}

// Close releases the store and the lock client. It is safe to call more than
// once.
func (a *App) Close() {
	a.closeOnce.Do(func() {
		if a.locker != nil {
			if err := a.locker.Close(); err != nil {
				a.logger.Warn("cycle lock close failed", zap.Error(err))
			}
		}
		if a.store != nil {
			a.store.Close()
		}
		a.logger.Info("shutdown complete")
	})
}

// sharedRand draws from the goroutine-safe top-level math/rand/v2 source.
type sharedRand struct{}

func (sharedRand) IntN(n int) int { return rand.IntN(n) }

func (sharedRand) Shuffle(n int, swap func(i, j int)) { rand.Shuffle(n, swap) }
