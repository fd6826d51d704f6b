// Package coordinator runs the lifecycle of gift exchange sessions.
//
// Every operation follows the same pipeline under the room's lock: load the
// session, authorize the actor, check guards, mutate, persist, and return a
// notification plan. The coordinator never talks to the chat transport; the
// plan is executed by the caller.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	serrors "github.com/p-blackswan/santa-bot/internal/errors"
	"github.com/p-blackswan/santa-bot/internal/matcher"
	"github.com/p-blackswan/santa-bot/internal/retry"
	"github.com/p-blackswan/santa-bot/internal/santa"
	"github.com/p-blackswan/santa-bot/internal/store"
	"github.com/p-blackswan/santa-bot/internal/texts"
)

// Rules are the business settings of every session.
type Rules struct {
	MinParticipants  int
	MaxParticipants  int // 0 means unlimited
	RequireEven      bool
	Timeout          time.Duration // 0 disables expiry
	RevokeEnabled    bool
	ArchiveEnabled   bool
	ArchiveRetention time.Duration
}

// DefaultRules mirrors the configuration defaults.
func DefaultRules() Rules {
	return Rules{
		MinParticipants:  2,
		RequireEven:      true,
		Timeout:          48 * time.Hour,
		ArchiveEnabled:   true,
		ArchiveRetention: 30 * 24 * time.Hour,
	}
}

func (r Rules) minimum() int {
	if r.MinParticipants < 2 {
		return 2
	}
	return r.MinParticipants
}

// Actor is the identity performing an action. Operator marks calls from the
// management API, which bypass role checks.
type Actor struct {
	ID          string
	DisplayName string
	Operator    bool
}

func (a Actor) name() string {
	if a.DisplayName != "" {
		return a.DisplayName
	}
	return a.ID
}

// Room identifies the chat room of an action.
type Room struct {
	ID        string
	Title     string
	OriginRef string // message that triggered the session, if any
}

// Prober checks that a participant can receive private messages.
type Prober interface {
	Probe(ctx context.Context, participantID string) error
}

// AdminResolver reports whether a user administers a room.
type AdminResolver interface {
	IsAdmin(ctx context.Context, room, userID string) (bool, error)
}

// Drafter pairs participants.
type Drafter interface {
	Draft(ids []string) ([]matcher.Pair, error)
}

// Recorder observes outcomes.
type Recorder interface {
	Transition(op, status string, took time.Duration)
	Drafted(participants int)
}

type nopRecorder struct{}

func (nopRecorder) Transition(string, string, time.Duration) {}
func (nopRecorder) Drafted(int)                              {}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithProber enables the reachability check run before a draft.
func WithProber(p Prober) Option { return func(c *Coordinator) { c.prober = p } }

// WithAdmins lets room administrators cancel sessions.
func WithAdmins(a AdminResolver) Option { return func(c *Coordinator) { c.admins = a } }

// WithArchive keeps summaries of sessions closed after a draft.
func WithArchive(a store.Archive) Option { return func(c *Coordinator) { c.archive = a } }

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option { return func(c *Coordinator) { c.now = now } }

// WithRetry sets the backoff for store I/O.
func WithRetry(cfg retry.Config) Option { return func(c *Coordinator) { c.retry = cfg } }

// WithTexts sets the message catalog.
func WithTexts(t *texts.Catalog) Option { return func(c *Coordinator) { c.texts = t } }

// WithRecorder sets the metrics sink.
func WithRecorder(r Recorder) Option { return func(c *Coordinator) { c.recorder = r } }

// Coordinator implements the session transitions. Safe for concurrent use.
type Coordinator struct {
	store    store.Store
	drafter  Drafter
	rules    Rules
	prober   Prober
	admins   AdminResolver
	archive  store.Archive
	now      func() time.Time
	retry    retry.Config
	texts    *texts.Catalog
	recorder Recorder
	locks    *lockTable
	seq      atomic.Uint64
	logger   zerolog.Logger
}

// New creates a Coordinator.
func New(st store.Store, drafter Drafter, rules Rules, logger zerolog.Logger, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:    st,
		drafter:  drafter,
		rules:    rules,
		now:      time.Now,
		retry:    retry.DefaultConfig(),
		texts:    texts.Default(),
		recorder: nopRecorder{},
		locks:    newLockTable(),
		logger:   logger.With().Str("component", "coordinator").Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.retry.OnRetry == nil {
		c.retry.OnRetry = func(attempt int, err error) {
			c.logger.Warn().Err(err).Int("attempt", attempt).Msg("store operation failed, retrying")
		}
	}
	return c
}

// Rules returns the active rules.
func (c *Coordinator) Rules() Rules { return c.rules }

func (c *Coordinator) load(ctx context.Context, room string) (*santa.Session, error) {
	var s *santa.Session
	err := retry.Do(ctx, c.retry, func(ctx context.Context) error {
		var err error
		s, err = c.store.Get(ctx, room)
		return err
	})
	return s, err
}

func (c *Coordinator) put(ctx context.Context, s *santa.Session) error {
	return retry.Do(ctx, c.retry, func(ctx context.Context) error {
		return c.store.Put(ctx, s)
	})
}

func (c *Coordinator) delete(ctx context.Context, room string) error {
	return retry.Do(ctx, c.retry, func(ctx context.Context) error {
		return c.store.Delete(ctx, room)
	})
}

func (c *Coordinator) move(ctx context.Context, from string, s *santa.Session) error {
	return retry.Do(ctx, c.retry, func(ctx context.Context) error {
		return c.store.Move(ctx, from, s)
	})
}

// unavailable converts a store failure into the caller-facing outcome.
// Context cancellation is passed through untouched.
func (c *Coordinator) unavailable(op, room string, err error) (Result, error) {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return Result{}, err
	}
	c.logger.Error().Err(err).Str("op", op).Str("room", room).Msg("session store unavailable")
	if !errors.Is(err, serrors.ErrUnavailable) {
		err = fmt.Errorf("%w: %w", serrors.ErrUnavailable, err)
	}
	return Result{Status: StatusUnavailable}, err
}

func (c *Coordinator) observe(op string, start time.Time, res Result) {
	c.recorder.Transition(op, string(res.Status), c.now().Sub(start))
}

func rejected(status Status, reason Reason, notice string, s *santa.Session) Result {
	return Result{Status: status, Reason: reason, Notice: notice, Session: s.Clone()}
}
