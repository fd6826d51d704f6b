// Package matcher produces self-avoiding gift pairings (derangements).
//
// The default strategy shuffles the participants and links each one to the
// next, closing the ring at the end. Every participant gifts and receives
// exactly once and the ring always has length >= 2, so nobody is paired with
// themselves and no retry is ever needed. The result is uniform over the
// single-cycle derangements only: pairings that split into several smaller
// cycles (A<->B, C<->D) are never produced.
package matcher

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	serrors "github.com/p-blackswan/santa-bot/internal/errors"
)

// MaxRejectionAttempts bounds the rejection strategy.
const MaxRejectionAttempts = 12

// Strategy selects the drafting algorithm.
type Strategy string

const (
	StrategyCycle     Strategy = "cycle"
	StrategyRejection Strategy = "rejection"
)

// Pair assigns Gifter to buy a present for Receiver.
type Pair struct {
	Gifter   string `json:"gifter"`
	Receiver string `json:"receiver"`
}

// Matcher drafts pairings with a private random source. Safe for concurrent use.
type Matcher struct {
	strategy Strategy
	mu       sync.Mutex
	rng      *rand.Rand
}

// New creates a Matcher. A nil src seeds from the clock.
func New(strategy Strategy, src rand.Source) (*Matcher, error) {
	switch strategy {
	case "":
		strategy = StrategyCycle
	case StrategyCycle, StrategyRejection:
	default:
		return nil, fmt.Errorf("%w: unknown matcher strategy %q", serrors.ErrInvalidInput, strategy)
	}
	if src == nil {
		src = rand.NewSource(time.Now().UnixNano())
	}
	return &Matcher{strategy: strategy, rng: rand.New(src)}, nil
}

// Strategy returns the configured strategy.
func (m *Matcher) Strategy() Strategy { return m.strategy }

// Draft pairs every id with exactly one other id.
func (m *Matcher) Draft(ids []string) ([]Pair, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.strategy == StrategyRejection {
		return Rejection(ids, m.rng)
	}
	return Cycle(ids, m.rng)
}

// Cycle shuffles ids and links position i to position i+1 (mod n).
func Cycle(ids []string, rng *rand.Rand) ([]Pair, error) {
	if err := validate(ids); err != nil {
		return nil, err
	}

	ring := append([]string(nil), ids...)
	rng.Shuffle(len(ring), func(i, j int) { ring[i], ring[j] = ring[j], ring[i] })

	pairs := make([]Pair, len(ring))
	for i, gifter := range ring {
		pairs[i] = Pair{Gifter: gifter, Receiver: ring[(i+1)%len(ring)]}
	}
	return pairs, nil
}

// Rejection assigns each gifter a random receiver from the remaining pool,
// restarting when the only receiver left is the gifter. It gives up with
// ErrDraftingFailed after MaxRejectionAttempts restarts.
func Rejection(ids []string, rng *rand.Rand) ([]Pair, error) {
	if err := validate(ids); err != nil {
		return nil, err
	}

	for attempt := 0; attempt < MaxRejectionAttempts; attempt++ {
		if pairs, ok := rejectionAttempt(ids, rng); ok {
			return pairs, nil
		}
	}
	return nil, fmt.Errorf("%w: no valid pairing after %d attempts", serrors.ErrDraftingFailed, MaxRejectionAttempts)
}

func rejectionAttempt(ids []string, rng *rand.Rand) ([]Pair, bool) {
	pool := append([]string(nil), ids...)
	pairs := make([]Pair, 0, len(ids))

	for _, gifter := range ids {
		candidates := make([]int, 0, len(pool))
		for i, r := range pool {
			if r != gifter {
				candidates = append(candidates, i)
			}
		}
		if len(candidates) == 0 {
			return nil, false
		}
		pick := candidates[rng.Intn(len(candidates))]
		pairs = append(pairs, Pair{Gifter: gifter, Receiver: pool[pick]})
		pool = append(pool[:pick], pool[pick+1:]...)
	}
	return pairs, true
}

func validate(ids []string) error {
	if len(ids) < 2 {
		return fmt.Errorf("%w: need at least 2 participants, got %d", serrors.ErrInvalidInput, len(ids))
	}
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id == "" {
			return fmt.Errorf("%w: empty participant id", serrors.ErrInvalidInput)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%w: duplicate participant id %q", serrors.ErrInvalidInput, id)
		}
		seen[id] = struct{}{}
	}
	return nil
}
