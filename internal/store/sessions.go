package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	serrors "github.com/p-blackswan/santa-bot/internal/errors"
	"github.com/p-blackswan/santa-bot/internal/santa"
)

const sessionColumns = `room_id, id, room_title, creator_id, creator_name, origin_message_id,
	announcement_ref, state, participants, created_at, updated_at`

// Get retrieves the session of room. Returns nil, nil when none exists.
func (s *SQLite) Get(ctx context.Context, room string) (*santa.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE room_id = ?`, room)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, serrors.NewStoreError("get", room, err)
	}
	return sess, nil
}

// Put saves the session, replacing whatever the room held.
func (s *SQLite) Put(ctx context.Context, sess *santa.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := upsertSession(ctx, s.db, sess); err != nil {
		return serrors.NewStoreError("put", sess.RoomID, err)
	}
	return nil
}

// Delete removes the session of room.
func (s *SQLite) Delete(ctx context.Context, room string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE room_id = ?`, room); err != nil {
		return serrors.NewStoreError("delete", room, err)
	}
	return nil
}

// Move re-keys a session inside one transaction.
func (s *SQLite) Move(ctx context.Context, from string, sess *santa.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return serrors.NewStoreError("move", from, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE room_id = ?`, from); err != nil {
		return serrors.NewStoreError("move", from, err)
	}
	if err := upsertSession(ctx, tx, sess); err != nil {
		return serrors.NewStoreError("move", sess.RoomID, err)
	}
	if err := tx.Commit(); err != nil {
		return serrors.NewStoreError("move", from, err)
	}
	return nil
}

// List returns all sessions, oldest first.
func (s *SQLite) List(ctx context.Context) ([]*santa.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT `+sessionColumns+` FROM sessions ORDER BY created_at ASC, room_id ASC`)
	if err != nil {
		return nil, serrors.NewStoreError("list", "", err)
	}
	defer rows.Close()

	var out []*santa.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, serrors.NewStoreError("list", "", err)
		}
		out = append(out, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, serrors.NewStoreError("list", "", err)
	}
	return out, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func upsertSession(ctx context.Context, db execer, sess *santa.Session) error {
	participants := sess.Participants
	if participants == nil {
		participants = []santa.Participant{}
	}
	raw, err := json.Marshal(participants)
	if err != nil {
		return fmt.Errorf("failed to encode participants: %w", err)
	}

	query := `
	INSERT OR REPLACE INTO sessions (` + sessionColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = db.ExecContext(ctx, query,
		sess.RoomID, sess.ID, sess.RoomTitle, sess.CreatorID, sess.CreatorName,
		sql.NullString{String: sess.OriginMessageID, Valid: sess.OriginMessageID != ""},
		sql.NullString{String: sess.AnnouncementRef, Valid: sess.AnnouncementRef != ""},
		string(sess.State), string(raw),
		sess.CreatedAt.UnixMilli(), sess.UpdatedAt.UnixMilli(),
	)
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (*santa.Session, error) {
	sess := &santa.Session{}
	var origin, announcement sql.NullString
	var state, participants string
	var createdAt, updatedAt int64

	err := row.Scan(
		&sess.RoomID, &sess.ID, &sess.RoomTitle, &sess.CreatorID, &sess.CreatorName,
		&origin, &announcement, &state, &participants, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(participants), &sess.Participants); err != nil {
		return nil, fmt.Errorf("failed to decode participants of %s: %w", sess.RoomID, err)
	}
	sess.OriginMessageID = origin.String
	sess.AnnouncementRef = announcement.String
	sess.State = santa.State(state)
	sess.CreatedAt = time.UnixMilli(createdAt).UTC()
	sess.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return sess, nil
}
