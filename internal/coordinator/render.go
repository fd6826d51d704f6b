package coordinator

import (
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/p-blackswan/santa-bot/internal/santa"
	"github.com/p-blackswan/santa-bot/internal/texts"
)

func roomName(s *santa.Session) string {
	if s.RoomTitle != "" {
		return s.RoomTitle
	}
	return s.RoomID
}

func participantNames(s *santa.Session) []string {
	names := make([]string, len(s.Participants))
	for i, p := range s.Participants {
		names[i] = s.DisplayName(p.ID)
	}
	return names
}

func creatorName(s *santa.Session) string {
	if s.CreatorName != "" {
		return s.CreatorName
	}
	return s.CreatorID
}

// humanDuration formats d as "2 days" or "30 minutes".
func humanDuration(d time.Duration) string {
	var zero time.Time
	return strings.TrimSpace(humanize.RelTime(zero, zero.Add(d), "", ""))
}

func (c *Coordinator) announcementText(s *santa.Session) string {
	a := c.texts.Announcement
	switch s.State {
	case santa.StateStarted:
		return texts.Fill(a.Started, "participants", c.texts.ParticipantList(participantNames(s)))
	case santa.StateCanceled:
		return a.Canceled
	case santa.StateExpired:
		return texts.Fill(a.Expired, "timeout", humanDuration(c.rules.Timeout))
	}
	if s.Count() == 0 {
		return a.Empty
	}
	missing := ""
	if n := s.MissingCount(c.rules.minimum()); n > 0 {
		missing = texts.Fill(a.Missing, "count", strconv.Itoa(n))
	}
	return texts.Fill(a.Open,
		"participants", c.texts.ParticipantList(participantNames(s)),
		"creator", creatorName(s),
		"missing", missing,
	)
}

func (c *Coordinator) announcementControls(s *santa.Session) []Control {
	switch s.State {
	case santa.StateOpen:
		return []Control{ControlJoin, ControlLeave, ControlStart, ControlCancel}
	case santa.StateStarted:
		if c.rules.RevokeEnabled {
			return []Control{ControlCancel}
		}
	}
	return nil
}

func (c *Coordinator) postAnnouncement(s *santa.Session) Notification {
	snap := s.Clone()
	return Notification{
		Kind:      KindPostAnnouncement,
		Room:      s.RoomID,
		SessionID: s.ID,
		Text:      c.announcementText(s),
		Controls:  c.announcementControls(s),
		Seq:       c.seq.Add(1),
		Session:   snap,
		Bind:      &Binding{Kind: BindAnnouncement, Room: s.RoomID, SessionID: s.ID},
	}
}

func (c *Coordinator) renderAnnouncement(s *santa.Session) Notification {
	return Notification{
		Kind:      KindRenderAnnouncement,
		Room:      s.RoomID,
		SessionID: s.ID,
		Ref:       s.AnnouncementRef,
		Text:      c.announcementText(s),
		Controls:  c.announcementControls(s),
		Seq:       c.seq.Add(1),
		Session:   s.Clone(),
	}
}

func (c *Coordinator) replaceAnnouncement(s *santa.Session, text string) Notification {
	return Notification{
		Kind:      KindReplaceAnnouncement,
		Room:      s.RoomID,
		SessionID: s.ID,
		Ref:       s.AnnouncementRef,
		Text:      text,
		Seq:       c.seq.Add(1),
		Session:   s.Clone(),
	}
}

func (c *Coordinator) joinConfirmation(s *santa.Session, participantID string) Notification {
	p := c.texts.Private
	next := texts.Fill(p.JoinedMember, "creator", creatorName(s))
	if s.IsCreator(participantID) {
		next = texts.Fill(p.JoinedCreator, "room", roomName(s), "min", strconv.Itoa(c.rules.minimum()))
	}
	return Notification{
		Kind:      KindSendPrivate,
		Room:      s.RoomID,
		SessionID: s.ID,
		Recipient: participantID,
		Text:      texts.Fill(p.Joined, "room", roomName(s), "next", next),
		Controls:  []Control{ControlLeave, ControlRename},
		Bind:      &Binding{Kind: BindJoin, Room: s.RoomID, SessionID: s.ID, Participant: participantID},
	}
}
