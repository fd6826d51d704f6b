package matcher

import (
	"fmt"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	serrors "github.com/p-blackswan/santa-bot/internal/errors"
)

func ids(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("U%02d", i)
	}
	return out
}

func assertDerangement(t *testing.T, input []string, pairs []Pair) {
	t.Helper()
	require.Len(t, pairs, len(input))

	gifters := make(map[string]int)
	receivers := make(map[string]int)
	for _, p := range pairs {
		assert.NotEqual(t, p.Gifter, p.Receiver, "self pairing %v", p)
		gifters[p.Gifter]++
		receivers[p.Receiver]++
	}
	for _, id := range input {
		assert.Equal(t, 1, gifters[id], "gifter count for %s", id)
		assert.Equal(t, 1, receivers[id], "receiver count for %s", id)
	}
}

func TestCycle_Invariants(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for n := 2; n <= 40; n++ {
		input := ids(n)
		pairs, err := Cycle(input, rng)
		require.NoError(t, err)
		assertDerangement(t, input, pairs)
	}
}

func TestCycle_SingleRing(t *testing.T) {
	input := ids(9)
	pairs, err := Cycle(input, rand.New(rand.NewSource(1)))
	require.NoError(t, err)

	next := make(map[string]string, len(pairs))
	for _, p := range pairs {
		next[p.Gifter] = p.Receiver
	}
	cur, steps := input[0], 0
	for {
		cur = next[cur]
		steps++
		if cur == input[0] {
			break
		}
	}
	assert.Equal(t, len(input), steps)
}

func TestCycle_TwoParticipants(t *testing.T) {
	pairs, err := Cycle([]string{"a", "b"}, rand.New(rand.NewSource(3)))
	require.NoError(t, err)
	assert.ElementsMatch(t, []Pair{{Gifter: "a", Receiver: "b"}, {Gifter: "b", Receiver: "a"}}, pairs)
}

func TestCycle_DoesNotMutateInput(t *testing.T) {
	input := ids(6)
	before := append([]string(nil), input...)
	_, err := Cycle(input, rand.New(rand.NewSource(11)))
	require.NoError(t, err)
	assert.Equal(t, before, input)
}

func TestCycle_VariesAcrossRuns(t *testing.T) {
	m, err := New(StrategyCycle, rand.NewSource(42))
	require.NoError(t, err)

	input := ids(6)
	seen := make(map[string]struct{})
	for i := 0; i < 50; i++ {
		pairs, err := m.Draft(input)
		require.NoError(t, err)
		assertDerangement(t, input, pairs)

		var sb strings.Builder
		for _, p := range pairs {
			sb.WriteString(p.Gifter + ">" + p.Receiver + ";")
		}
		seen[sb.String()] = struct{}{}
	}
	assert.Greater(t, len(seen), 1)
}

func TestDraft_InvalidInput(t *testing.T) {
	m, err := New(StrategyCycle, nil)
	require.NoError(t, err)

	cases := map[string][]string{
		"empty":     nil,
		"single":    {"a"},
		"duplicate": {"a", "b", "a"},
		"blank id":  {"a", ""},
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := m.Draft(input)
			assert.ErrorIs(t, err, serrors.ErrInvalidInput)
		})
	}
}

func TestRejection_Invariants(t *testing.T) {
	rng := rand.New(rand.NewSource(99))
	for n := 2; n <= 20; n++ {
		input := ids(n)
		pairs, err := Rejection(input, rng)
		require.NoError(t, err)
		assertDerangement(t, input, pairs)
	}
}

func TestRejection_ProducesSubLoops(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	input := ids(4)
	split := 0
	for i := 0; i < 200; i++ {
		pairs, err := Rejection(input, rng)
		if err != nil {
			require.ErrorIs(t, err, serrors.ErrDraftingFailed)
			continue
		}
		next := make(map[string]string, len(pairs))
		for _, p := range pairs {
			next[p.Gifter] = p.Receiver
		}
		if next[next[input[0]]] == input[0] {
			split++
		}
	}
	assert.Positive(t, split, "rejection reaches derangements that cycle never yields")
}

func TestRejection_InvalidInput(t *testing.T) {
	_, err := Rejection([]string{"solo"}, rand.New(rand.NewSource(1)))
	assert.ErrorIs(t, err, serrors.ErrInvalidInput)
}

func TestNew_UnknownStrategy(t *testing.T) {
	_, err := New("hat", nil)
	assert.ErrorIs(t, err, serrors.ErrInvalidInput)

	m, err := New("", nil)
	require.NoError(t, err)
	assert.Equal(t, StrategyCycle, m.Strategy())
}
