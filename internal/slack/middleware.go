package slack

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// pruneThreshold is the number of tracked users above which idle ones are
// forgotten.
const pruneThreshold = 1024

// Middleware throttles the slash commands and button clicks of each user.
type Middleware struct {
	limiter *RateLimiter
	logger  zerolog.Logger
}

// NewMiddleware allows maxActions per user within window.
func NewMiddleware(logger zerolog.Logger, maxActions int, window time.Duration) *Middleware {
	return &Middleware{
		limiter: NewRateLimiter(maxActions, window),
		logger:  logger.With().Str("component", "slack.middleware").Logger(),
	}
}

// CheckRateLimit counts an action of userID and reports whether it may run.
func (m *Middleware) CheckRateLimit(userID string) bool {
	if m.limiter.Allow(userID) {
		return true
	}
	m.logger.Warn().
		Str("user", userID).
		Int("limit", m.limiter.limit).
		Dur("window", m.limiter.window).
		Msg("action throttled")
	return false
}

// RateLimiter admits at most limit actions per key in any sliding window.
// Rejected actions are not counted.
type RateLimiter struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	recent map[string][]time.Time // oldest first
	now    func() time.Time
}

// NewRateLimiter creates a RateLimiter.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		limit:  limit,
		window: window,
		recent: make(map[string][]time.Time),
		now:    time.Now,
	}
}

// Allow records an action for key unless key is over its limit.
func (r *RateLimiter) Allow(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	since := now.Add(-r.window)
	times := dropBefore(r.recent[key], since)
	if len(times) >= r.limit {
		r.recent[key] = times
		return false
	}
	r.recent[key] = append(times, now)

	if len(r.recent) > pruneThreshold {
		for k, ts := range r.recent {
			if len(ts) == 0 || !ts[len(ts)-1].After(since) {
				delete(r.recent, k)
			}
		}
	}
	return true
}

// dropBefore trims the times not after since from the sorted slice.
func dropBefore(times []time.Time, since time.Time) []time.Time {
	i := 0
	for i < len(times) && !times[i].After(since) {
		i++
	}
	return times[i:]
}
