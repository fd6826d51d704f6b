// Package admins caches room administrator lookups.
package admins

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/p-blackswan/santa-bot/lru"
)

// Source answers admin lookups against the chat platform.
type Source interface {
	IsAdmin(ctx context.Context, room, userID string) (bool, error)
}

// Resolver is a Source with a TTL cache in front. Failed lookups are not cached.
type Resolver struct {
	source Source
	cache  *lru.Cache[string, bool]
	logger zerolog.Logger
}

// NewResolver creates a Resolver keeping up to size answers for ttl.
func NewResolver(source Source, size int, ttl time.Duration, logger zerolog.Logger) *Resolver {
	if size < 1 {
		size = 1
	}
	return &Resolver{
		source: source,
		cache:  lru.New[string, bool](size, lru.WithTTL[string, bool](ttl)),
		logger: logger.With().Str("component", "admins").Logger(),
	}
}

// IsAdmin reports whether userID administers room.
func (r *Resolver) IsAdmin(ctx context.Context, room, userID string) (bool, error) {
	key := room + "/" + userID
	if ok, hit := r.cache.Get(key); hit {
		return ok, nil
	}
	ok, err := r.source.IsAdmin(ctx, room, userID)
	if err != nil {
		return false, err
	}
	r.cache.Put(key, ok)
	r.logger.Debug().Str("room", room).Str("user", userID).Bool("admin", ok).Msg("admin lookup cached")
	return ok, nil
}

// Metrics returns cache counters.
func (r *Resolver) Metrics() lru.Metrics { return r.cache.Metrics() }
