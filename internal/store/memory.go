package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/p-blackswan/santa-bot/internal/santa"
)

// Memory is an in-process Store and Archive.
type Memory struct {
	mu       sync.RWMutex
	sessions map[string]*santa.Session
	archive  []ArchivedSession
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{sessions: make(map[string]*santa.Session)}
}

func (m *Memory) Get(_ context.Context, room string) (*santa.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessions[room].Clone(), nil
}

func (m *Memory) Put(_ context.Context, s *santa.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.RoomID] = s.Clone()
	return nil
}

func (m *Memory) Delete(_ context.Context, room string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, room)
	return nil
}

func (m *Memory) Move(_ context.Context, from string, s *santa.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, from)
	m.sessions[s.RoomID] = s.Clone()
	return nil
}

func (m *Memory) List(_ context.Context) ([]*santa.Session, error) {
	m.mu.RLock()
	out := make([]*santa.Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s.Clone())
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].RoomID < out[j].RoomID
	})
	return out, nil
}

func (m *Memory) Ping(context.Context) error { return nil }

func (m *Memory) ArchiveSession(_ context.Context, s *santa.Session, closedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry := summarize(s, closedAt)
	for i, a := range m.archive {
		if a.ID == entry.ID {
			m.archive[i] = entry
			return nil
		}
	}
	m.archive = append(m.archive, entry)
	return nil
}

func (m *Memory) ArchiveStats(context.Context) (ArchiveStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var st ArchiveStats
	for _, a := range m.archive {
		st.Sessions++
		st.Participants += int64(a.ParticipantCount)
		if a.ClosedAt.After(st.LastClosedAt) {
			st.LastClosedAt = a.ClosedAt
		}
	}
	return st, nil
}

func (m *Memory) PurgeArchive(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.archive[:0]
	var purged int64
	for _, a := range m.archive {
		if a.ClosedAt.Before(cutoff) {
			purged++
			continue
		}
		kept = append(kept, a)
	}
	m.archive = kept
	return purged, nil
}
