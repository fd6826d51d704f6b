// Package notify delivers coordinator notification plans through a chat transport.
package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/p-blackswan/santa-bot/internal/coordinator"
	"github.com/p-blackswan/santa-bot/lru"
)

const (
	announcementCacheSize = 4096
	announcementCacheTTL  = 72 * time.Hour
)

// Transport is the chat side of a plan. Methods returning a ref give back the
// id of the message they created.
type Transport interface {
	PostAnnouncement(ctx context.Context, room, text string, controls []coordinator.Control) (string, error)
	UpdateAnnouncement(ctx context.Context, room, ref, text string, controls []coordinator.Control) error
	SendPrivate(ctx context.Context, room, recipient, text, replyTo string, controls []coordinator.Control) (string, error)
	UpdatePrivate(ctx context.Context, recipient, ref, text string) error
}

// Binder records delivered refs.
type Binder interface {
	Bind(ctx context.Context, b coordinator.Binding) error
}

// Failure is one notification that could not be delivered.
type Failure struct {
	Kind      coordinator.Kind
	Room      string
	Recipient string
	Err       error
}

func (f Failure) Error() string {
	target := f.Room
	if f.Recipient != "" {
		target = f.Recipient
	}
	return fmt.Sprintf("%s to %s: %v", f.Kind, target, f.Err)
}

// Report aggregates the outcome of a plan.
type Report struct {
	Delivered int
	// Superseded counts announcement edits skipped because a newer one
	// was already delivered.
	Superseded int
	Failures   []Failure
}

// Undelivered returns the recipients of private messages that failed.
func (r Report) Undelivered() []string {
	var ids []string
	for _, f := range r.Failures {
		if f.Kind == coordinator.KindSendPrivate && f.Recipient != "" {
			ids = append(ids, f.Recipient)
		}
	}
	return ids
}

// OK reports whether every notification was delivered.
func (r Report) OK() bool { return len(r.Failures) == 0 }

// Recorder observes deliveries.
type Recorder interface {
	Delivery(kind string, ok bool)
}

// announcement tracks the last edit delivered to a room's announcement.
// mu serializes edits of the room.
type announcement struct {
	mu      sync.Mutex
	session string
	ref     string
	seq     uint64
}

// Executor runs plans. Delivery errors never stop the remaining items.
//
// Plans of different operations may run concurrently. Announcement edits of
// one room are applied one at a time, and an edit older than the last one
// delivered is skipped.
type Executor struct {
	transport Transport
	binder    Binder
	recorder  Recorder
	logger    zerolog.Logger

	mu            sync.Mutex
	announcements *lru.Cache[string, *announcement]
}

// NewExecutor creates an Executor. binder and recorder may be nil. Without a
// transport plans are dropped.
func NewExecutor(transport Transport, binder Binder, recorder Recorder, logger zerolog.Logger) *Executor {
	cache := lru.New[string, *announcement](announcementCacheSize,
		lru.WithTTL[string, *announcement](announcementCacheTTL))
	return &Executor{
		transport:     transport,
		binder:        binder,
		recorder:      recorder,
		logger:        logger.With().Str("component", "notify").Logger(),
		announcements: cache,
	}
}

func (e *Executor) announcement(room string) *announcement {
	e.mu.Lock()
	defer e.mu.Unlock()
	a, ok := e.announcements.Get(room)
	if !ok {
		a = &announcement{}
		e.announcements.Put(room, a)
	}
	return a
}

// Run delivers plan in order.
func (e *Executor) Run(ctx context.Context, plan []coordinator.Notification) Report {
	var report Report
	if e.transport == nil {
		e.logger.Debug().Int("notifications", len(plan)).Msg("no transport, plan dropped")
		return report
	}
	posted := make(map[string]string) // room -> announcement posted by this plan

	for _, n := range plan {
		ref, err := e.deliver(ctx, n, posted)
		if errors.Is(err, errSuperseded) {
			report.Superseded++
			e.logger.Debug().Str("kind", string(n.Kind)).Str("room", n.Room).Uint64("seq", n.Seq).Msg("stale announcement edit skipped")
			continue
		}
		e.observe(n.Kind, err == nil)
		if err != nil {
			f := Failure{Kind: n.Kind, Room: n.Room, Recipient: n.Recipient, Err: err}
			report.Failures = append(report.Failures, f)
			e.logger.Warn().Err(err).Str("kind", string(n.Kind)).Str("room", n.Room).
				Str("recipient", n.Recipient).Msg("notification delivery failed")
			continue
		}
		report.Delivered++

		if n.Kind == coordinator.KindPostAnnouncement {
			posted[n.Room] = ref
		}
		if n.Bind != nil && ref != "" && e.binder != nil {
			b := *n.Bind
			b.Ref = ref
			if err := e.binder.Bind(ctx, b); err != nil {
				e.logger.Error().Err(err).Str("room", b.Room).Str("binding", string(b.Kind)).Msg("recording message ref failed")
			}
		}
	}
	return report
}

// errSuperseded marks an announcement edit older than the last delivered one.
var errSuperseded = errors.New("announcement edit superseded")

func (e *Executor) deliver(ctx context.Context, n coordinator.Notification, posted map[string]string) (string, error) {
	switch n.Kind {
	case coordinator.KindPostAnnouncement:
		a := e.announcement(n.Room)
		a.mu.Lock()
		defer a.mu.Unlock()
		if n.Seq != 0 && n.Seq <= a.seq {
			return "", errSuperseded
		}
		ref, err := e.transport.PostAnnouncement(ctx, n.Room, n.Text, n.Controls)
		if err != nil {
			return "", err
		}
		a.session, a.ref = n.SessionID, ref
		if n.Seq != 0 {
			a.seq = n.Seq
		}
		return ref, nil
	case coordinator.KindRenderAnnouncement, coordinator.KindReplaceAnnouncement:
		a := e.announcement(n.Room)
		a.mu.Lock()
		defer a.mu.Unlock()
		if n.Seq != 0 && n.Seq <= a.seq {
			return "", errSuperseded
		}
		ref := n.Ref
		if ref == "" {
			ref = posted[n.Room]
		}
		if ref == "" && a.session == n.SessionID {
			ref = a.ref
		}
		if ref == "" {
			return "", fmt.Errorf("no announcement to update in %s", n.Room)
		}
		if err := e.transport.UpdateAnnouncement(ctx, n.Room, ref, n.Text, n.Controls); err != nil {
			return "", err
		}
		a.session, a.ref = n.SessionID, ref
		if n.Seq != 0 {
			a.seq = n.Seq
		}
		return ref, nil
	case coordinator.KindSendPrivate:
		return e.transport.SendPrivate(ctx, n.Room, n.Recipient, n.Text, n.Ref, n.Controls)
	case coordinator.KindClearPrivateControls:
		return n.Ref, e.transport.UpdatePrivate(ctx, n.Recipient, n.Ref, n.Text)
	default:
		return "", fmt.Errorf("unknown notification kind %q", n.Kind)
	}
}

func (e *Executor) observe(kind coordinator.Kind, ok bool) {
	if e.recorder != nil {
		e.recorder.Delivery(string(kind), ok)
	}
}
