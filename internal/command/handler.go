package command

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/buongiorno-bot/internal/greeting"
	"github.com/JakeFAU/buongiorno-bot/internal/message"
	"github.com/JakeFAU/buongiorno-bot/internal/store"
)

// Replies.
const (
	startText = "CAFFEE!? ☕ Entra subito nel mondo dei buongiornissimi con /caffeee " +
		"o se vuoi un dolce assaggio dei miei contenuti /buongiornissimo " +
		"altrimenti invia /help per vedere tutti i comandi disponibili"
	subscribedText     = "Buongiorno, CAFFEEE?! ☕☕☕  Da ora riceverai ogni giorno le migliori immagini di augurio."
	unsubscribedText   = "ti sei disinscritto dai messaggi automatici ☕"
	birthdaySavedText  = "Buongiorno, CAFFEEE?! ☕☕☕  Da ora %s riceverà gli auguri il giorno del suo compleanno."
	alreadySubText     = "Sei già iscritto ai messaggi automatici ☕"
	notSubscribedText  = "devi prima sottoscriverti ai messaggi automatici, prima di configurare un compleanno. Iscriviti con /caffeee"
	duplicateBdayText  = "Questo compleanno è già registrato ☕"
	unavailableText    = "Oggi niente caffè: non sono riuscito a trovare un'immagine. Riprova più tardi ☕"
	unknownCommandText = "Comando sconosciuto. Invia /help per vedere tutti i comandi disponibili"
	usageText          = "Uso: %s"
	internalErrorText  = "Qualcosa è andato storto, riprova più tardi ☕"
)

// Resolver resolves one image for a category.
type Resolver interface {
	Resolve(ctx context.Context, category greeting.Category) (greeting.ImageRef, error)
}

// Clock supplies the current time in the configured zone.
type Clock interface {
	Now() time.Time
}

// Rand decides between the plain and weekday morning greeting.
type Rand interface {
	IntN(n int) int
}

// ReleaseInfo describes the running build for /release.
type ReleaseInfo struct {
	Version    string
	Author     string
	Repository string
}

func (r ReleaseInfo) text() string {
	version := r.Version
	if version == "" {
		version = "dev"
	}
	out := fmt.Sprintf("buongiorno-bot ☕ %s.", version)
	if r.Author != "" {
		out += fmt.Sprintf(" Sviluppato da %s.", r.Author)
	}
	if r.Repository != "" {
		out += fmt.Sprintf(" Contribuisci al progetto su %s", r.Repository)
	}
	return out
}

// Handler answers parsed commands.
type Handler struct {
	store         store.Store
	resolver      Resolver
	clock         Clock
	rnd           Rand
	release       ReleaseInfo
	botName       string
	onUnsubscribe func(recipientID int64)
	logger        *zap.Logger
}

// Option customizes a Handler.
type Option func(*Handler)

// WithBotName makes the parser ignore commands addressed to other bots.
func WithBotName(name string) Option {
	return func(h *Handler) { h.botName = name }
}

// WithRelease sets the /release details.
func WithRelease(r ReleaseInfo) Option {
	return func(h *Handler) { h.release = r }
}

// WithUnsubscribeHook registers a callback run after a successful unsubscribe.
func WithUnsubscribeHook(fn func(recipientID int64)) Option {
	return func(h *Handler) { h.onUnsubscribe = fn }
}

// WithLogger attaches a logger.
func WithLogger(l *zap.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.logger = l
		}
	}
}

// NewHandler creates a Handler.
func NewHandler(st store.Store, resolver Resolver, clock Clock, rnd Rand, opts ...Option) (*Handler, error) {
	switch {
	case st == nil:
		return nil, errors.New("store is required")
	case resolver == nil:
		return nil, errors.New("resolver is required")
	case clock == nil:
		return nil, errors.New("clock is required")
	case rnd == nil:
		return nil, errors.New("random source is required")
	}
	h := &Handler{
		store:    st,
		resolver: resolver,
		clock:    clock,
		rnd:      rnd,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = h.logger.Named("command")
	return h, nil
}

// HandleText parses text and answers it. Text that is not a command, or is
// addressed to another bot, yields ErrNotCommand or ErrOtherBot and no reply.
func (h *Handler) HandleText(ctx context.Context, recipientID int64, text string) (message.Message, error) {
	cmd, err := Parse(text, h.botName)
	switch {
	case errors.Is(err, ErrNotCommand), errors.Is(err, ErrOtherBot):
		return message.Message{}, err
	case errors.Is(err, ErrUnknownCommand):
		return message.Text(unknownCommandText), nil
	case errors.Is(err, ErrUsage):
		return message.Text(usageFor(err)), nil
	case err != nil:
		return message.Message{}, err
	}
	return h.Handle(ctx, recipientID, cmd), nil
}

// Handle runs cmd for recipientID. Failures are turned into user-readable
// replies.
func (h *Handler) Handle(ctx context.Context, recipientID int64, cmd Command) message.Message {
	log := h.logger.With(zap.String("command", cmd.Name), zap.Int64("recipient_id", recipientID))
	log.Debug("command received")

	switch cmd.Name {
	case Help:
		return message.Text(HelpText())
	case Start:
		return message.Text(startText)
	case Release:
		return message.Text(h.release.text())
	case Buongiornissimo:
		return h.image(ctx, log, greeting.OfTheDay(h.clock.Now(), h.rnd.IntN(2) == 0), "")
	case Buonpomeriggio:
		return h.image(ctx, log, greeting.BuonPomeriggio, "")
	case Buonanotte:
		return h.image(ctx, log, greeting.BuonaNotte, "")
	case BuonNatale:
		return h.image(ctx, log, greeting.Natale, "")
	case Auguri:
		return h.image(ctx, log, greeting.Compleanno, fmt.Sprintf("Buon compleanno %s!", strings.Join(cmd.Args, " ")))
	case Caffeee:
		if err := h.store.Subscribe(ctx, recipientID); err != nil {
			return h.failure(log, err)
		}
		log.Info("recipient subscribed")
		return message.Text(subscribedText)
	case PuliziaKontatti:
		if err := h.store.Unsubscribe(ctx, recipientID); err != nil {
			return h.failure(log, err)
		}
		if h.onUnsubscribe != nil {
			h.onUnsubscribe(recipientID)
		}
		log.Info("recipient unsubscribed")
		return message.Text(unsubscribedText)
	case Compleanno:
		name, date, err := BirthdayArgs(cmd.Args)
		if err != nil {
			return message.Text(usageFor(err))
		}
		if err := h.store.RegisterBirthday(ctx, recipientID, name, date); err != nil {
			return h.failure(log, err)
		}
		log.Info("birthday registered", zap.String("name", name), zap.Time("date", date))
		return message.Text(fmt.Sprintf(birthdaySavedText, name))
	default:
		return message.Text(unknownCommandText)
	}
}

func (h *Handler) image(ctx context.Context, log *zap.Logger, category greeting.Category, caption string) message.Message {
	ref, err := h.resolver.Resolve(ctx, category)
	if err != nil {
		return h.failure(log.With(zap.String("category", category.String())), err)
	}
	b := message.NewBuilder().Image(ref)
	if caption != "" {
		b.Text(caption)
	}
	return b.Build()
}

func (h *Handler) failure(log *zap.Logger, err error) message.Message {
	switch {
	case errors.Is(err, greeting.ErrAlreadySubscribed):
		return message.Text(alreadySubText)
	case errors.Is(err, greeting.ErrNotSubscribed):
		return message.Text(notSubscribedText)
	case errors.Is(err, greeting.ErrDuplicateBirthday):
		return message.Text(duplicateBdayText)
	case errors.Is(err, store.ErrInvalidBirthday):
		return message.Text(fmt.Sprintf(usageText, Usage(Compleanno)))
	case greeting.Classify(err) == greeting.ClassUnavailable:
		log.Warn("no image available", zap.Error(err))
		return message.Text(unavailableText)
	default:
		log.Error("command failed", zap.Error(err))
		return message.Text(internalErrorText)
	}
}

func usageFor(err error) string {
	var ue *UsageError
	if errors.As(err, &ue) {
		return fmt.Sprintf(usageText, ue.Usage)
	}
	return unknownCommandText
}
