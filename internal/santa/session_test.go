package santa

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 12, 1, 10, 0, 0, 0, time.UTC)

func newSession() *Session {
	return New("C1", "general", "UC", "Carol", "1700000000.0001", t0)
}

func TestNew(t *testing.T) {
	s := newSession()
	assert.NotEmpty(t, s.ID)
	assert.Equal(t, StateOpen, s.State)
	assert.Equal(t, t0, s.CreatedAt)
	assert.Equal(t, t0, s.UpdatedAt)
	assert.Zero(t, s.Count())
	assert.True(t, s.IsCreator("UC"))
	assert.False(t, s.IsCreator("UA"))
}

func TestAdd_IsIdempotent(t *testing.T) {
	s := newSession()
	assert.True(t, s.Add("UA", "Alice", t0.Add(time.Minute)))
	assert.False(t, s.Add("UA", "Alice again", t0.Add(2*time.Minute)))

	require.Equal(t, 1, s.Count())
	p, ok := s.Participant("UA")
	require.True(t, ok)
	assert.Equal(t, "Alice", p.DisplayName)
	assert.Equal(t, t0.Add(time.Minute), s.UpdatedAt)
}

func TestRemove_ThenAdd_ClearsBindings(t *testing.T) {
	s := newSession()
	s.Add("UA", "Alice", t0)
	require.True(t, s.SetJoinRef("UA", "D1:111", t0))

	removed, ok := s.Remove("UA", t0.Add(time.Minute))
	require.True(t, ok)
	assert.Equal(t, "D1:111", removed.JoinRef)
	assert.False(t, s.IsParticipant("UA"))

	s.Add("UA", "Alice", t0.Add(2*time.Minute))
	p, _ := s.Participant("UA")
	assert.Empty(t, p.JoinRef)
	assert.Empty(t, p.MatchRef)
}

func TestRemove_Unknown(t *testing.T) {
	s := newSession()
	_, ok := s.Remove("nobody", t0)
	assert.False(t, ok)
	assert.Equal(t, t0, s.UpdatedAt)
}

func TestOrderPreserved(t *testing.T) {
	s := newSession()
	for _, id := range []string{"U3", "U1", "U2"} {
		s.Add(id, id, t0)
	}
	s.Remove("U1", t0)
	s.Add("U1", "U1", t0)
	assert.Equal(t, []string{"U3", "U2", "U1"}, s.IDs())
}

func TestRenameAndBindings(t *testing.T) {
	s := newSession()
	s.Add("UA", "Alice", t0)

	assert.True(t, s.Rename("UA", "Ally", t0))
	assert.False(t, s.Rename("UB", "Bob", t0))
	assert.Equal(t, "Ally", s.DisplayName("UA"))
	assert.Equal(t, "UB", s.DisplayName("UB"))

	assert.True(t, s.SetMatchRef("UA", "D1:222", t0))
	assert.False(t, s.SetMatchRef("UB", "D2:333", t0))
	p, _ := s.Participant("UA")
	assert.Equal(t, "D1:222", p.MatchRef)
}

func TestMissingCount(t *testing.T) {
	s := newSession()
	s.Add("UA", "Alice", t0)
	assert.Equal(t, 2, s.MissingCount(3))
	s.Add("UB", "Bob", t0)
	s.Add("UC", "Carol", t0)
	assert.Equal(t, 0, s.MissingCount(3))
}

func TestClone_IsDeep(t *testing.T) {
	s := newSession()
	s.Add("UA", "Alice", t0)

	c := s.Clone()
	c.Rename("UA", "Changed", t0)
	c.Add("UB", "Bob", t0)
	c.State = StateStarted

	assert.Equal(t, "Alice", s.DisplayName("UA"))
	assert.Equal(t, 1, s.Count())
	assert.Equal(t, StateOpen, s.State)

	var nilSession *Session
	assert.Nil(t, nilSession.Clone())
}

func TestStateTerminal(t *testing.T) {
	assert.False(t, StateOpen.Terminal())
	assert.False(t, StateStarted.Terminal())
	assert.True(t, StateExpired.Terminal())
	assert.True(t, StateCanceled.Terminal())
}

func TestAge(t *testing.T) {
	s := newSession()
	assert.Equal(t, 25*time.Hour, s.Age(t0.Add(25*time.Hour)))
}
