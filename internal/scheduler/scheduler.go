// Package scheduler runs the time-of-day greeting jobs. Each cycle picks a
// category, loads its audience, resolves one image and hands the messages to
// the dispatcher.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/JakeFAU/buongiorno-bot/internal/dispatcher"
	"github.com/JakeFAU/buongiorno-bot/internal/greeting"
	"github.com/JakeFAU/buongiorno-bot/internal/message"
	"github.com/JakeFAU/buongiorno-bot/internal/metrics"
	"github.com/JakeFAU/buongiorno-bot/internal/store"
)

// Scheduler errors.
var (
	ErrUnknownJob = errors.New("unknown job")
	ErrStopped    = errors.New("scheduler stopped")
)

// AudienceStore is the part of the store a cycle reads.
type AudienceStore interface {
	ListSubscribers(ctx context.Context) ([]store.Subscription, error)
	ListBirthdays(ctx context.Context) ([]store.Birthday, error)
}

// Resolver resolves one image for a category.
type Resolver interface {
	Resolve(ctx context.Context, category greeting.Category) (greeting.ImageRef, error)
}

// Dispatcher fans messages out to recipients.
type Dispatcher interface {
	Dispatch(ctx context.Context, job string, deliveries []dispatcher.Delivery) dispatcher.Report
}

// Locker claims a job slot across replicas.
type Locker interface {
	Acquire(ctx context.Context, job string, slot time.Time) (bool, error)
}

// Clock supplies the current time in the configured zone.
type Clock interface {
	Now() time.Time
}

// Rand decides between the plain and weekday morning greeting.
type Rand interface {
	IntN(n int) int
}

// IDGenerator creates cycle ids.
type IDGenerator interface {
	NewID() (string, error)
}

// Deps are the collaborators of a Scheduler. Locker is optional.
type Deps struct {
	Store      AudienceStore
	Resolver   Resolver
	Dispatcher Dispatcher
	Clock      Clock
	Rand       Rand
	IDs        IDGenerator
	Locker     Locker
}

// Config controls scheduling.
type Config struct {
	Location *time.Location
}

// Cycle outcomes.
const (
	OutcomeDelivered   = "delivered"
	OutcomePartial     = "partial"
	OutcomeNoAudience  = "no_audience"
	OutcomeUnavailable = "unavailable"
	OutcomeLocked      = "locked"
	OutcomeError       = "error"
)

// CycleReport describes one finished cycle.
type CycleReport struct {
	CycleID   string            `json:"cycle_id"`
	Job       string            `json:"job"`
	Category  greeting.Category `json:"category,omitempty"`
	Audience  int               `json:"audience"`
	Delivered int               `json:"delivered"`
	Failed    int               `json:"failed"`
	Outcome   string            `json:"outcome"`
}

// Scheduler owns the cron runner and the job table.
type Scheduler struct {
	deps   Deps
	cron   *cron.Cron
	jobs   map[string]Job
	order  []string
	states map[string]*atomic.Int32
	logger *zap.Logger

	baseCtx context.Context
	abort   context.CancelFunc

	mu       sync.Mutex
	stopped  bool
	inFlight sync.WaitGroup
}

// New validates the jobs and registers them with a cron runner. Call Start
// to begin firing.
func New(deps Deps, jobs []Job, cfg Config, logger *zap.Logger) (*Scheduler, error) {
	switch {
	case deps.Store == nil:
		return nil, errors.New("store is required")
	case deps.Resolver == nil:
		return nil, errors.New("resolver is required")
	case deps.Dispatcher == nil:
		return nil, errors.New("dispatcher is required")
	case deps.Clock == nil:
		return nil, errors.New("clock is required")
	case deps.Rand == nil:
		return nil, errors.New("random source is required")
	case deps.IDs == nil:
		return nil, errors.New("id generator is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.Local
	}
	logger = logger.Named("scheduler")
	cronLog := newCronLogger(logger)

	baseCtx, abort := context.WithCancel(context.Background())
	s := &Scheduler{
		deps:    deps,
		jobs:    make(map[string]Job, len(jobs)),
		states:  make(map[string]*atomic.Int32, len(jobs)),
		logger:  logger,
		baseCtx: baseCtx,
		abort:   abort,
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLocation(loc),
			cron.WithLogger(cronLog),
			cron.WithChain(cron.Recover(cronLog)),
		),
	}

	for _, job := range jobs {
		if _, dup := s.jobs[job.Name]; dup {
			abort()
			return nil, fmt.Errorf("duplicate job %q", job.Name)
		}
		if _, err := s.cron.AddFunc(job.Spec, func() { s.fire(job) }); err != nil {
			abort()
			return nil, fmt.Errorf("schedule job %s: %w", job.Name, err)
		}
		s.jobs[job.Name] = job
		s.order = append(s.order, job.Name)
		s.states[job.Name] = new(atomic.Int32)
	}
	return s, nil
}

// Start begins firing triggers.
func (s *Scheduler) Start() {
	s.cron.Start()
	for _, name := range s.order {
		s.logger.Info("job scheduled", zap.String("job", name), zap.String("spec", s.jobs[name].Spec))
	}
}

// Jobs returns the registered jobs in registration order.
func (s *Scheduler) Jobs() []Job {
	out := make([]Job, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.jobs[name])
	}
	return out
}

// State returns the current state of the named job.
func (s *Scheduler) State(name string) (State, error) {
	st, ok := s.states[name]
	if !ok {
		return StateIdle, fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	return State(st.Load()), nil
}

// RunNow fires the named job immediately and waits for the cycle to finish.
// The cross-replica lock is not consulted.
func (s *Scheduler) RunNow(ctx context.Context, name string) (CycleReport, error) {
	job, ok := s.jobs[name]
	if !ok {
		return CycleReport{}, fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	if !s.begin() {
		return CycleReport{}, ErrStopped
	}
	defer s.inFlight.Done()

	ctx, cancel := mergeCancel(ctx, s.baseCtx)
	defer cancel()
	return s.runCycle(ctx, job, s.deps.Clock.Now(), false), nil
}

// Shutdown stops all triggers, refuses new cycles and waits for in-flight
// cycles to drain. If ctx expires first, running cycles are canceled and the
// context error is returned.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()

	cronDone := s.cron.Stop()
	drained := make(chan struct{})
	go func() {
		<-cronDone.Done()
		s.inFlight.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		s.abort()
		s.logger.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		s.abort()
		s.logger.Warn("scheduler drain timed out; canceling running cycles")
		return fmt.Errorf("scheduler shutdown: %w", ctx.Err())
	}
}

func (s *Scheduler) begin() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return false
	}
	s.inFlight.Add(1)
	return true
}

func (s *Scheduler) fire(job Job) {
	if !s.begin() {
		return
	}
	defer s.inFlight.Done()
	s.runCycle(s.baseCtx, job, s.deps.Clock.Now(), true)
}

func (s *Scheduler) setState(job string, st State) {
	s.states[job].Store(int32(st))
}

func (s *Scheduler) runCycle(ctx context.Context, job Job, now time.Time, useLock bool) (report CycleReport) {
	report = CycleReport{Job: job.Name}
	defer func() {
		s.setState(job.Name, StateIdle)
		metrics.ObserveJobRun(job.Name, report.Outcome)
	}()

	cycleID, err := s.deps.IDs.NewID()
	if err != nil {
		cycleID = "unknown"
	}
	report.CycleID = cycleID
	log := s.logger.With(zap.String("job", job.Name), zap.String("cycle_id", cycleID))

	if useLock && s.deps.Locker != nil {
		ok, err := s.deps.Locker.Acquire(ctx, job.Name, now)
		switch {
		case err != nil:
			log.Warn("cycle lock unavailable; firing anyway", zap.Error(err))
		case !ok:
			log.Info("cycle already claimed by another replica")
			report.Outcome = OutcomeLocked
			return report
		}
	}

	s.setState(job.Name, StateFiring)
	category := job.Category
	if category == "" {
		category = MorningCategory(now, s.deps.Rand)
	}
	report.Category = category
	log = log.With(zap.String("category", category.String()))

	recipients, err := s.audience(ctx, job, now)
	if err != nil {
		log.Error("load audience failed", zap.Error(err))
		report.Outcome = OutcomeError
		return report
	}
	report.Audience = len(recipients)
	if len(recipients) == 0 {
		log.Debug("no recipients; skipping cycle")
		report.Outcome = OutcomeNoAudience
		return report
	}

	s.setState(job.Name, StateResolving)
	image, err := s.deps.Resolver.Resolve(ctx, category)
	if err != nil {
		log.Error("no image for cycle", zap.Error(err))
		report.Outcome = OutcomeUnavailable
		return report
	}

	s.setState(job.Name, StateDispatching)
	deliveries := make([]dispatcher.Delivery, 0, len(recipients))
	for _, r := range recipients {
		deliveries = append(deliveries, dispatcher.Delivery{
			RecipientID: r.id,
			Message:     cycleMessage(image, r.name),
		})
	}
	res := s.deps.Dispatcher.Dispatch(ctx, job.Name, deliveries)
	report.Delivered = res.Delivered
	report.Failed = len(deliveries) - res.Delivered
	report.Outcome = OutcomeDelivered
	if report.Failed > 0 {
		report.Outcome = OutcomePartial
	}
	log.Info("cycle finished",
		zap.String("url", image.String()),
		zap.Int("audience", report.Audience),
		zap.Int("delivered", report.Delivered),
		zap.Int("failed", report.Failed),
	)
	return report
}

type recipient struct {
	id   int64
	name string
}

func (s *Scheduler) audience(ctx context.Context, job Job, now time.Time) ([]recipient, error) {
	if job.Audience == AudienceBirthdays {
		events, err := s.deps.Store.ListBirthdays(ctx)
		if err != nil {
			return nil, fmt.Errorf("list birthdays: %w", err)
		}
		today := store.BirthdaysOn(events, now)
		out := make([]recipient, 0, len(today))
		for _, b := range today {
			out = append(out, recipient{id: b.RecipientID, name: b.Name})
		}
		return out, nil
	}

	subs, err := s.deps.Store.ListSubscribers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list subscribers: %w", err)
	}
	out := make([]recipient, 0, len(subs))
	for _, sub := range subs {
		out = append(out, recipient{id: sub.RecipientID})
	}
	return out, nil
}

// MorningCategory returns the holiday greeting for now, or picks between the
// plain and the weekday good morning.
func MorningCategory(now time.Time, rnd Rand) greeting.Category {
	return greeting.OfTheDay(now, rnd.IntN(2) == 0)
}

// BirthdayText is the caption sent after a birthday image.
func BirthdayText(name string) string {
	return fmt.Sprintf("Buon compleanno %s!", name)
}

func cycleMessage(image greeting.ImageRef, birthdayName string) message.Message {
	b := message.NewBuilder().Image(image)
	if birthdayName != "" {
		b.Text(BirthdayText(birthdayName))
	}
	return b.Build()
}

// mergeCancel returns a context canceled when either parent is done.
func mergeCancel(ctx, other context.Context) (context.Context, context.CancelFunc) {
	merged, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(other, cancel)
	return merged, func() {
		stop()
		cancel()
	}
}
