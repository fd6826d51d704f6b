package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	serrors "github.com/p-blackswan/santa-bot/internal/errors"
	"github.com/p-blackswan/santa-bot/internal/santa"
)

// ArchiveSession records the summary of a session closed after its draft.
func (s *SQLite) ArchiveSession(ctx context.Context, sess *santa.Session, closedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a := summarize(sess, closedAt)
	query := `
	INSERT OR REPLACE INTO archived_sessions (
		id, room_id, room_title, creator_id, participant_count, created_at, closed_at
	) VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		a.ID, a.RoomID, a.RoomTitle, a.CreatorID, a.ParticipantCount,
		a.CreatedAt.UnixMilli(), a.ClosedAt.UnixMilli(),
	)
	if err != nil {
		return serrors.NewStoreError("archive", sess.RoomID, err)
	}
	return nil
}

// ArchiveStats aggregates the archive table.
func (s *SQLite) ArchiveStats(ctx context.Context) (ArchiveStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var st ArchiveStats
	var lastClosed sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(participant_count), 0), MAX(closed_at) FROM archived_sessions`,
	).Scan(&st.Sessions, &st.Participants, &lastClosed)
	if err != nil {
		return ArchiveStats{}, serrors.NewStoreError("archive stats", "", err)
	}
	if lastClosed.Valid {
		st.LastClosedAt = time.UnixMilli(lastClosed.Int64).UTC()
	}
	return st, nil
}

// PurgeArchive deletes archive entries closed before cutoff.
func (s *SQLite) PurgeArchive(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.ExecContext(ctx,
		"DELETE FROM archived_sessions WHERE closed_at < ?",
		cutoff.UnixMilli(),
	)
	if err != nil {
		return 0, serrors.NewStoreError("purge archive", "", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows, nil
}

// DBSizeBytes returns the database size in bytes.
func (s *SQLite) DBSizeBytes() (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var pageCount, pageSize int64
	if err := s.db.QueryRow("PRAGMA page_count").Scan(&pageCount); err != nil {
		return 0, fmt.Errorf("failed to get page count: %w", err)
	}
	if err := s.db.QueryRow("PRAGMA page_size").Scan(&pageSize); err != nil {
		return 0, fmt.Errorf("failed to get page size: %w", err)
	}
	return pageCount * pageSize, nil
}
