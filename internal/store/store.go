// Package store persists gift exchange sessions, one per room.
package store

import (
	"context"
	"time"

	"github.com/p-blackswan/santa-bot/internal/santa"
)

// Store is keyed storage of the active session of each room. Implementations
// return copies: mutating a returned session never changes stored state.
type Store interface {
	// Get returns the session of room, or nil when the room has none.
	Get(ctx context.Context, room string) (*santa.Session, error)
	// Put creates or replaces the session stored under s.RoomID.
	Put(ctx context.Context, s *santa.Session) error
	// Delete removes the session of room. Deleting a missing room is not an error.
	Delete(ctx context.Context, room string) error
	// Move atomically stores s under s.RoomID and removes the session of from.
	Move(ctx context.Context, from string, s *santa.Session) error
	// List returns every stored session ordered by creation time.
	List(ctx context.Context) ([]*santa.Session, error)
	// Ping checks that the backend is reachable.
	Ping(ctx context.Context) error
}

// Archive keeps read-only summaries of sessions that closed after a draft.
type Archive interface {
	// ArchiveSession records s. Archiving the same session again replaces its
	// summary.
	ArchiveSession(ctx context.Context, s *santa.Session, closedAt time.Time) error
	ArchiveStats(ctx context.Context) (ArchiveStats, error)
	// PurgeArchive deletes entries closed before cutoff and returns how many went.
	PurgeArchive(ctx context.Context, cutoff time.Time) (int64, error)
}

// ArchivedSession is the summary kept for a closed session.
type ArchivedSession struct {
	ID               string    `json:"id"`
	RoomID           string    `json:"room_id"`
	RoomTitle        string    `json:"room_title"`
	CreatorID        string    `json:"creator_id"`
	ParticipantCount int       `json:"participant_count"`
	CreatedAt        time.Time `json:"created_at"`
	ClosedAt         time.Time `json:"closed_at"`
}

// ArchiveStats aggregates the archive.
type ArchiveStats struct {
	Sessions     int64     `json:"sessions"`
	Participants int64     `json:"participants"`
	LastClosedAt time.Time `json:"last_closed_at,omitempty"`
}

func summarize(s *santa.Session, closedAt time.Time) ArchivedSession {
	return ArchivedSession{
		ID:               s.ID,
		RoomID:           s.RoomID,
		RoomTitle:        s.RoomTitle,
		CreatorID:        s.CreatorID,
		ParticipantCount: s.Count(),
		CreatedAt:        s.CreatedAt,
		ClosedAt:         closedAt,
	}
}
