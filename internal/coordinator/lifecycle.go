package coordinator

import (
	"context"
	"errors"
	"strconv"
	"strings"

	serrors "github.com/p-blackswan/santa-bot/internal/errors"
	"github.com/p-blackswan/santa-bot/internal/santa"
	"github.com/p-blackswan/santa-bot/internal/texts"
)

// CreateSession opens a new session in room with actor as creator and first
// participant.
func (c *Coordinator) CreateSession(ctx context.Context, room Room, actor Actor) (res Result, err error) {
	start := c.now()
	defer func() { c.observe("create", start, res) }()

	unlock := c.locks.lock(room.ID)
	defer unlock()

	existing, err := c.load(ctx, room.ID)
	if err != nil {
		return c.unavailable("create", room.ID, err)
	}
	if existing != nil && !existing.State.Terminal() {
		return rejected(StatusAlreadyExists, "",
			texts.Fill(c.texts.Notice.AlreadyActive, "creator", creatorName(existing)), existing), nil
	}

	now := c.now()
	s := santa.New(room.ID, room.Title, actor.ID, actor.name(), room.OriginRef, now)
	s.Add(actor.ID, actor.name(), now)
	if err := c.put(ctx, s); err != nil {
		return c.unavailable("create", room.ID, err)
	}

	c.logger.Info().Str("room", room.ID).Str("session", s.ID).Str("actor", actor.ID).Msg("session created")
	return Result{
		Status:  StatusOK,
		Notice:  c.texts.Notice.Created,
		Session: s.Clone(),
		Plan:    []Notification{c.postAnnouncement(s), c.joinConfirmation(s, actor.ID)},
	}, nil
}

// Join adds actor to the open session of room.
func (c *Coordinator) Join(ctx context.Context, room string, actor Actor) (res Result, err error) {
	start := c.now()
	defer func() { c.observe("join", start, res) }()

	unlock := c.locks.lock(room)
	defer unlock()

	s, err := c.load(ctx, room)
	if err != nil {
		return c.unavailable("join", room, err)
	}
	n := c.texts.Notice
	switch {
	case s == nil:
		return rejected(StatusNotFound, "", n.NotFound, nil), nil
	case s.IsParticipant(actor.ID):
		return rejected(StatusGuardFailed, ReasonAlreadyJoined, n.AlreadyJoined, s), nil
	case s.State != santa.StateOpen:
		return rejected(StatusGuardFailed, ReasonAlreadyStarted, n.AlreadyStarted, s), nil
	case c.rules.MaxParticipants > 0 && s.Count() >= c.rules.MaxParticipants:
		return rejected(StatusGuardFailed, ReasonFull,
			texts.Fill(n.Full, "max", strconv.Itoa(c.rules.MaxParticipants)), s), nil
	}

	s.Add(actor.ID, actor.name(), c.now())
	if err := c.put(ctx, s); err != nil {
		return c.unavailable("join", room, err)
	}

	c.logger.Info().Str("room", room).Str("actor", actor.ID).Int("participants", s.Count()).Msg("participant joined")
	return Result{
		Status:  StatusOK,
		Notice:  n.Joined,
		Session: s.Clone(),
		Plan:    []Notification{c.renderAnnouncement(s), c.joinConfirmation(s, actor.ID)},
	}, nil
}

// Leave removes actor from the session of room. After a draft it is allowed
// only when revoke is enabled, and then only updates the participant list.
func (c *Coordinator) Leave(ctx context.Context, room string, actor Actor) (res Result, err error) {
	start := c.now()
	defer func() { c.observe("leave", start, res) }()

	unlock := c.locks.lock(room)
	defer unlock()

	s, err := c.load(ctx, room)
	if err != nil {
		return c.unavailable("leave", room, err)
	}
	n := c.texts.Notice
	switch {
	case s == nil:
		return rejected(StatusNotFound, "", n.NotFound, nil), nil
	case !s.IsParticipant(actor.ID):
		return rejected(StatusGuardFailed, ReasonNotParticipant, n.NotParticipant, s), nil
	case s.State == santa.StateStarted && !c.rules.RevokeEnabled:
		return rejected(StatusGuardFailed, ReasonAlreadyStarted, n.AlreadyStarted, s), nil
	}

	p, _ := s.Remove(actor.ID, c.now())
	if err := c.put(ctx, s); err != nil {
		return c.unavailable("leave", room, err)
	}

	plan := []Notification{c.renderAnnouncement(s)}
	if p.JoinRef != "" {
		plan = append(plan, Notification{
			Kind:      KindClearPrivateControls,
			Room:      room,
			SessionID: s.ID,
			Recipient: p.ID,
			Ref:       p.JoinRef,
			Text:      texts.Fill(c.texts.Private.Left, "room", roomName(s)),
		})
	}

	c.logger.Info().Str("room", room).Str("actor", actor.ID).Int("participants", s.Count()).Msg("participant left")
	return Result{Status: StatusOK, Notice: n.Left, Session: s.Clone(), Plan: plan}, nil
}

// Start drafts the pairing of room and sends each gifter their receiver.
// Nothing is persisted unless every participant passes the reachability probe
// and the draft succeeds.
func (c *Coordinator) Start(ctx context.Context, room string, actor Actor) (res Result, err error) {
	begin := c.now()
	defer func() { c.observe("start", begin, res) }()

	unlock := c.locks.lock(room)
	defer unlock()

	s, err := c.load(ctx, room)
	if err != nil {
		return c.unavailable("start", room, err)
	}
	n := c.texts.Notice
	switch {
	case s == nil:
		return rejected(StatusNotFound, "", n.NotFound, nil), nil
	case !actor.Operator && !s.IsCreator(actor.ID):
		return rejected(StatusNotAuthorized, "",
			texts.Fill(n.OnlyCreatorStart, "creator", creatorName(s)), s), nil
	case s.State != santa.StateOpen:
		return rejected(StatusGuardFailed, ReasonAlreadyStarted, n.AlreadyStarted, s), nil
	case s.Count() < c.rules.minimum():
		return rejected(StatusGuardFailed, ReasonBelowMinimum, texts.Fill(n.BelowMinimum,
			"min", strconv.Itoa(c.rules.minimum()), "count", strconv.Itoa(s.Count())), s), nil
	case c.rules.RequireEven && s.Count()%2 != 0:
		return rejected(StatusGuardFailed, ReasonOddCount,
			texts.Fill(n.OddCount, "count", strconv.Itoa(s.Count())), s), nil
	}

	if unreachable := c.probe(ctx, s); len(unreachable) > 0 {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		names := make([]string, len(unreachable))
		for i, id := range unreachable {
			names[i] = s.DisplayName(id)
		}
		c.logger.Warn().Str("room", room).Strs("unreachable", unreachable).Msg("start blocked by unreachable participants")
		out := rejected(StatusPartialFailure, "",
			texts.Fill(n.Unreachable, "names", strings.Join(names, ", ")), s)
		out.Unreachable = unreachable
		return out, nil
	}

	pairs, err := c.drafter.Draft(s.IDs())
	if err != nil {
		c.logger.Error().Err(err).Str("room", room).Int("participants", s.Count()).Msg("drafting failed")
		return rejected(StatusDraftingFailed, "", n.DraftingFailed, s), nil
	}
	c.recorder.Drafted(len(pairs))

	s.State = santa.StateStarted
	s.Touch(c.now())
	if err := c.put(ctx, s); err != nil {
		return c.unavailable("start", room, err)
	}

	plan := make([]Notification, 0, len(pairs)+1)
	for _, pair := range pairs {
		plan = append(plan, Notification{
			Kind:      KindSendPrivate,
			Room:      room,
			SessionID: s.ID,
			Recipient: pair.Gifter,
			Text: texts.Fill(c.texts.Private.Match,
				"room", roomName(s), "receiver", s.DisplayName(pair.Receiver)),
			Bind: &Binding{Kind: BindMatch, Room: room, SessionID: s.ID, Participant: pair.Gifter},
		})
	}
	plan = append(plan, c.renderAnnouncement(s))

	c.logger.Info().Str("room", room).Str("session", s.ID).Int("participants", s.Count()).Msg("session started")
	return Result{
		Status:  StatusOK,
		Notice:  n.Started,
		Session: s.Clone(),
		Plan:    plan,
		Matches: pairs,
	}, nil
}

// AbortStart reopens a session whose match notifications could not all be
// delivered. Participants that already received a match are told it is void,
// and the announcement gets its join controls back. A session that is gone,
// was replaced or is no longer started is left alone and reported NotFound.
func (c *Coordinator) AbortStart(ctx context.Context, room, sessionID string, undelivered []string) (res Result, err error) {
	start := c.now()
	defer func() { c.observe("abort_start", start, res) }()

	unlock := c.locks.lock(room)
	defer unlock()

	s, err := c.load(ctx, room)
	if err != nil {
		return c.unavailable("abort_start", room, err)
	}
	n := c.texts.Notice
	if s == nil || s.ID != sessionID || s.State != santa.StateStarted {
		return rejected(StatusNotFound, "", n.NotFound, s), nil
	}

	now := c.now()
	var plan []Notification
	for _, p := range s.Participants {
		if p.MatchRef == "" {
			continue
		}
		plan = append(plan, Notification{
			Kind:      KindSendPrivate,
			Room:      room,
			SessionID: s.ID,
			Recipient: p.ID,
			Ref:       p.MatchRef,
			Text:      texts.Fill(c.texts.Private.CalledOff, "room", roomName(s)),
		})
		s.SetMatchRef(p.ID, "", now)
	}
	s.State = santa.StateOpen
	s.Touch(now)
	if err := c.put(ctx, s); err != nil {
		return c.unavailable("abort_start", room, err)
	}
	plan = append(plan, c.renderAnnouncement(s))

	names := make([]string, len(undelivered))
	for i, id := range undelivered {
		names[i] = s.DisplayName(id)
	}
	c.logger.Warn().Str("room", room).Str("session", s.ID).Strs("undelivered", undelivered).Msg("start rolled back")
	return Result{
		Status:      StatusPartialFailure,
		Notice:      texts.Fill(n.Undelivered, "names", strings.Join(names, ", ")),
		Unreachable: undelivered,
		Session:     s.Clone(),
		Plan:        plan,
	}, nil
}

// probe returns the participants that cannot be messaged, in join order.
func (c *Coordinator) probe(ctx context.Context, s *santa.Session) []string {
	if c.prober == nil {
		return nil
	}
	var unreachable []string
	for _, id := range s.IDs() {
		if err := c.prober.Probe(ctx, id); err != nil {
			c.logger.Debug().Err(err).Str("room", s.RoomID).Str("participant", id).Msg("participant unreachable")
			unreachable = append(unreachable, id)
		}
	}
	return unreachable
}

// Cancel removes the session of room. The creator, a room administrator or an
// operator may cancel. A drafted session can only be canceled when revoke is
// enabled, in which case every participant is told their match is void.
func (c *Coordinator) Cancel(ctx context.Context, room string, actor Actor) (res Result, err error) {
	start := c.now()
	defer func() { c.observe("cancel", start, res) }()

	unlock := c.locks.lock(room)
	defer unlock()

	s, err := c.load(ctx, room)
	if err != nil {
		return c.unavailable("cancel", room, err)
	}
	n := c.texts.Notice
	switch {
	case s == nil:
		return rejected(StatusNotFound, "", n.NotFound, nil), nil
	case !c.mayCancel(ctx, s, actor):
		return rejected(StatusNotAuthorized, "",
			texts.Fill(n.OnlyCreatorCancel, "creator", creatorName(s)), s), nil
	case s.State == santa.StateStarted && !c.rules.RevokeEnabled:
		return rejected(StatusGuardFailed, ReasonRevokeDisabled, n.RevokeDisabled, s), nil
	}

	if err := c.delete(ctx, room); err != nil {
		return c.unavailable("cancel", room, err)
	}

	var plan []Notification
	if s.State == santa.StateStarted {
		for _, p := range s.Participants {
			plan = append(plan, Notification{
				Kind:      KindSendPrivate,
				Room:      room,
				SessionID: s.ID,
				Recipient: p.ID,
				Ref:       p.MatchRef,
				Text:      texts.Fill(c.texts.Private.Revoked, "room", roomName(s), "actor", actor.name()),
			})
		}
	}
	s.State = santa.StateCanceled
	s.Touch(c.now())
	plan = append(plan, c.replaceAnnouncement(s, c.announcementText(s)))

	c.logger.Info().Str("room", room).Str("session", s.ID).Str("actor", actor.ID).Bool("operator", actor.Operator).Msg("session canceled")
	return Result{Status: StatusOK, Notice: n.Canceled, Session: s.Clone(), Plan: plan}, nil
}

func (c *Coordinator) mayCancel(ctx context.Context, s *santa.Session, actor Actor) bool {
	if actor.Operator || s.IsCreator(actor.ID) {
		return true
	}
	if c.admins == nil {
		return false
	}
	ok, err := c.admins.IsAdmin(ctx, s.RoomID, actor.ID)
	if err != nil {
		c.logger.Warn().Err(err).Str("room", s.RoomID).Str("actor", actor.ID).Msg("admin lookup failed")
		return false
	}
	return ok
}

// Expire closes the session of room once it is older than the timeout. The age
// is checked again under the lock, so a session that disappeared or was
// replaced since the caller looked is left alone.
func (c *Coordinator) Expire(ctx context.Context, room string) (res Result, err error) {
	start := c.now()
	defer func() { c.observe("expire", start, res) }()

	unlock := c.locks.lock(room)
	defer unlock()

	s, err := c.load(ctx, room)
	if err != nil {
		return c.unavailable("expire", room, err)
	}
	now := c.now()
	switch {
	case s == nil:
		return rejected(StatusNotFound, "", c.texts.Notice.NotFound, nil), nil
	case c.rules.Timeout <= 0 || s.Age(now) <= c.rules.Timeout:
		return rejected(StatusGuardFailed, ReasonNotExpired, c.texts.Notice.NotExpired, s), nil
	}

	if err := c.delete(ctx, room); err != nil {
		return c.unavailable("expire", room, err)
	}
	drafted := s.State == santa.StateStarted
	if drafted && c.rules.ArchiveEnabled && c.archive != nil {
		if err := c.archive.ArchiveSession(ctx, s, now); err != nil {
			c.logger.Warn().Err(err).Str("room", room).Str("session", s.ID).Msg("archiving session failed")
		}
	}

	text := texts.Fill(c.texts.Announcement.Closed, "participants", c.texts.ParticipantList(participantNames(s)))
	s.State = santa.StateExpired
	s.Touch(now)
	if !drafted {
		text = c.announcementText(s)
	}

	c.logger.Info().Str("room", room).Str("session", s.ID).Bool("drafted", drafted).Dur("age", s.Age(now)).Msg("session expired")
	return Result{
		Status:  StatusOK,
		Session: s.Clone(),
		Plan:    []Notification{c.replaceAnnouncement(s, text)},
	}, nil
}

// Migrate moves the session of oldRoom to newRoom, keeping its participants,
// and announces it again in the new room.
func (c *Coordinator) Migrate(ctx context.Context, oldRoom string, newRoom Room, actor Actor) (res Result, err error) {
	start := c.now()
	defer func() { c.observe("migrate", start, res) }()

	n := c.texts.Notice
	if oldRoom == newRoom.ID {
		return rejected(StatusGuardFailed, ReasonSameRoom, n.DestinationBusy, nil), nil
	}

	unlock := c.locks.lockPair(oldRoom, newRoom.ID)
	defer unlock()

	s, err := c.load(ctx, oldRoom)
	if err != nil {
		return c.unavailable("migrate", oldRoom, err)
	}
	if s == nil {
		return rejected(StatusNotFound, "", n.NotFound, nil), nil
	}
	dest, err := c.load(ctx, newRoom.ID)
	if err != nil {
		return c.unavailable("migrate", newRoom.ID, err)
	}
	if dest != nil {
		return rejected(StatusAlreadyExists, "", n.DestinationBusy, dest), nil
	}

	moved := s.Clone()
	moved.RoomID = newRoom.ID
	if newRoom.Title != "" {
		moved.RoomTitle = newRoom.Title
	}
	moved.OriginMessageID = newRoom.OriginRef
	moved.AnnouncementRef = ""
	moved.Touch(c.now())
	if err := c.move(ctx, oldRoom, moved); err != nil {
		return c.unavailable("migrate", oldRoom, err)
	}

	c.logger.Info().Str("from", oldRoom).Str("to", newRoom.ID).Str("session", moved.ID).Str("actor", actor.ID).
		Int("participants", moved.Count()).Msg("session migrated")
	return Result{
		Status:  StatusOK,
		Notice:  n.Migrated,
		Session: moved.Clone(),
		Plan:    []Notification{c.postAnnouncement(moved), c.renderAnnouncement(moved)},
	}, nil
}

// UpdateName refreshes the display name of a participant.
func (c *Coordinator) UpdateName(ctx context.Context, room string, actor Actor) (res Result, err error) {
	start := c.now()
	defer func() { c.observe("rename", start, res) }()

	unlock := c.locks.lock(room)
	defer unlock()

	s, err := c.load(ctx, room)
	if err != nil {
		return c.unavailable("rename", room, err)
	}
	n := c.texts.Notice
	switch {
	case s == nil:
		return rejected(StatusNotFound, "", n.NotFound, nil), nil
	case !s.IsParticipant(actor.ID):
		return rejected(StatusGuardFailed, ReasonNotParticipant, n.NotParticipant, s), nil
	}

	now := c.now()
	s.Rename(actor.ID, actor.name(), now)
	if s.IsCreator(actor.ID) {
		s.CreatorName = actor.name()
	}
	if err := c.put(ctx, s); err != nil {
		return c.unavailable("rename", room, err)
	}

	return Result{
		Status:  StatusOK,
		Notice:  texts.Fill(n.Renamed, "name", actor.name()),
		Session: s.Clone(),
		Plan:    []Notification{c.renderAnnouncement(s)},
	}, nil
}

// Bind records a delivered message ref. Bindings for a session that is gone,
// or for a participant that left, are ignored.
func (c *Coordinator) Bind(ctx context.Context, b Binding) error {
	unlock := c.locks.lock(b.Room)
	defer unlock()

	s, err := c.load(ctx, b.Room)
	if err != nil {
		_, err = c.unavailable("bind", b.Room, err)
		return err
	}
	if s == nil || s.ID != b.SessionID {
		return nil
	}

	now := c.now()
	var changed bool
	switch b.Kind {
	case BindAnnouncement:
		s.AnnouncementRef = b.Ref
		s.Touch(now)
		changed = true
	case BindJoin:
		changed = s.SetJoinRef(b.Participant, b.Ref, now)
	case BindMatch:
		changed = s.SetMatchRef(b.Participant, b.Ref, now)
	default:
		return errors.New("unknown binding kind " + string(b.Kind))
	}
	if !changed {
		return nil
	}
	if err := c.put(ctx, s); err != nil {
		_, err = c.unavailable("bind", b.Room, err)
		return err
	}
	return nil
}

// Get returns the active session of room, or an error wrapping ErrNotFound.
func (c *Coordinator) Get(ctx context.Context, room string) (*santa.Session, error) {
	s, err := c.load(ctx, room)
	if err != nil {
		_, err = c.unavailable("get", room, err)
		return nil, err
	}
	if s == nil {
		return nil, serrors.ErrNotFound
	}
	return s, nil
}
