package coordinator

import (
	"context"
	"time"

	"github.com/p-blackswan/santa-bot/internal/retry"
	"github.com/p-blackswan/santa-bot/internal/santa"
	"github.com/p-blackswan/santa-bot/internal/store"
)

// Stats summarizes active and archived sessions.
type Stats struct {
	Active       int                 `json:"active"`
	ByState      map[santa.State]int `json:"by_state"`
	Participants int                 `json:"participants"`
	Archive      store.ArchiveStats  `json:"archive"`
}

// List returns every active session ordered by creation time.
func (c *Coordinator) List(ctx context.Context) ([]*santa.Session, error) {
	var sessions []*santa.Session
	err := retry.Do(ctx, c.retry, func(ctx context.Context) error {
		var err error
		sessions, err = c.store.List(ctx)
		return err
	})
	if err != nil {
		_, err = c.unavailable("list", "", err)
		return nil, err
	}
	return sessions, nil
}

// Stats aggregates the active sessions and, when configured, the archive.
func (c *Coordinator) Stats(ctx context.Context) (Stats, error) {
	sessions, err := c.List(ctx)
	if err != nil {
		return Stats{}, err
	}
	st := Stats{Active: len(sessions), ByState: make(map[santa.State]int)}
	for _, s := range sessions {
		st.ByState[s.State]++
		st.Participants += s.Count()
	}
	if c.archive != nil {
		if st.Archive, err = c.archive.ArchiveStats(ctx); err != nil {
			_, err = c.unavailable("archive_stats", "", err)
			return Stats{}, err
		}
	}
	return st, nil
}

// PurgeArchive drops archived sessions older than the retention and returns
// how many were removed.
func (c *Coordinator) PurgeArchive(ctx context.Context) (int64, error) {
	if c.archive == nil || c.rules.ArchiveRetention <= 0 {
		return 0, nil
	}
	cutoff := c.now().Add(-c.rules.ArchiveRetention)
	removed, err := c.archive.PurgeArchive(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		c.logger.Info().Int64("removed", removed).Time("cutoff", cutoff).Msg("purged archived sessions")
	}
	return removed, nil
}

// Expired reports whether s is past the timeout at the current time.
func (c *Coordinator) Expired(s *santa.Session) bool {
	return c.rules.Timeout > 0 && s.Age(c.now()) > c.rules.Timeout
}

// Now returns the coordinator clock.
func (c *Coordinator) Now() time.Time { return c.now() }
