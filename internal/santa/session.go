// Package santa holds the per-room gift exchange record.
package santa

import (
	"time"

	"github.com/google/uuid"
)

// State is the lifecycle flag of a Session.
type State string

const (
	StateOpen     State = "open"
	StateStarted  State = "started"
	StateExpired  State = "expired"
	StateCanceled State = "canceled"
)

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateExpired || s == StateCanceled
}

// Participant is one member of the exchange.
type Participant struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"display_name"`
	JoinRef     string    `json:"join_ref,omitempty"`  // private join confirmation message
	MatchRef    string    `json:"match_ref,omitempty"` // private match notification message
	JoinedAt    time.Time `json:"joined_at"`
}

// Session is the gift exchange of one room.
type Session struct {
	ID              string        `json:"id"`
	RoomID          string        `json:"room_id"`
	RoomTitle       string        `json:"room_title"`
	CreatorID       string        `json:"creator_id"`
	CreatorName     string        `json:"creator_name"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
	OriginMessageID string        `json:"origin_message_id,omitempty"`
	AnnouncementRef string        `json:"announcement_ref,omitempty"`
	State           State         `json:"state"`
	Participants    []Participant `json:"participants"`
}

// New creates an open session in room.
func New(roomID, roomTitle, creatorID, creatorName, originMessageID string, now time.Time) *Session {
	return &Session{
		ID:              uuid.New().String(),
		RoomID:          roomID,
		RoomTitle:       roomTitle,
		CreatorID:       creatorID,
		CreatorName:     creatorName,
		CreatedAt:       now,
		UpdatedAt:       now,
		OriginMessageID: originMessageID,
		State:           StateOpen,
	}
}

// Touch refreshes UpdatedAt.
func (s *Session) Touch(now time.Time) { s.UpdatedAt = now }

// Count returns the number of participants.
func (s *Session) Count() int { return len(s.Participants) }

// IDs returns participant ids in join order.
func (s *Session) IDs() []string {
	ids := make([]string, len(s.Participants))
	for i, p := range s.Participants {
		ids[i] = p.ID
	}
	return ids
}

func (s *Session) index(id string) int {
	for i := range s.Participants {
		if s.Participants[i].ID == id {
			return i
		}
	}
	return -1
}

// Participant returns the participant with id.
func (s *Session) Participant(id string) (Participant, bool) {
	if i := s.index(id); i >= 0 {
		return s.Participants[i], true
	}
	return Participant{}, false
}

// IsParticipant reports whether id has joined.
func (s *Session) IsParticipant(id string) bool { return s.index(id) >= 0 }

// IsCreator reports whether id created the session.
func (s *Session) IsCreator(id string) bool { return s.CreatorID == id }

// Add appends a participant. It returns false, leaving the session untouched,
// when id already joined.
func (s *Session) Add(id, displayName string, now time.Time) bool {
	if s.IsParticipant(id) {
		return false
	}
	s.Participants = append(s.Participants, Participant{
		ID:          id,
		DisplayName: displayName,
		JoinedAt:    now,
	})
	s.Touch(now)
	return true
}

// Remove drops a participant and returns its record.
func (s *Session) Remove(id string, now time.Time) (Participant, bool) {
	i := s.index(id)
	if i < 0 {
		return Participant{}, false
	}
	p := s.Participants[i]
	s.Participants = append(s.Participants[:i], s.Participants[i+1:]...)
	s.Touch(now)
	return p, true
}

// Rename updates a participant's display name.
func (s *Session) Rename(id, displayName string, now time.Time) bool {
	i := s.index(id)
	if i < 0 {
		return false
	}
	s.Participants[i].DisplayName = displayName
	s.Touch(now)
	return true
}

// SetJoinRef binds the private join confirmation of a participant.
func (s *Session) SetJoinRef(id, ref string, now time.Time) bool {
	i := s.index(id)
	if i < 0 {
		return false
	}
	s.Participants[i].JoinRef = ref
	s.Touch(now)
	return true
}

// SetMatchRef binds the private match notification of a participant.
func (s *Session) SetMatchRef(id, ref string, now time.Time) bool {
	i := s.index(id)
	if i < 0 {
		return false
	}
	s.Participants[i].MatchRef = ref
	s.Touch(now)
	return true
}

// DisplayName returns the name of id, falling back to the id itself.
func (s *Session) DisplayName(id string) string {
	if p, ok := s.Participant(id); ok && p.DisplayName != "" {
		return p.DisplayName
	}
	return id
}

// MissingCount returns how many more participants are needed to reach min.
func (s *Session) MissingCount(min int) int {
	if missing := min - s.Count(); missing > 0 {
		return missing
	}
	return 0
}

// Age returns how long ago the session was created.
func (s *Session) Age(now time.Time) time.Duration { return now.Sub(s.CreatedAt) }

// Clone returns a deep copy.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	c.Participants = append([]Participant(nil), s.Participants...)
	return &c
}
