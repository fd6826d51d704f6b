package store

import (
	"fmt"
)

func (s *SQLite) migrate() error {
	if err := s.migrateV1(); err != nil {
		return err
	}
	return s.migrateV2()
}

func (s *SQLite) schemaVersion() string {
	var version string
	if err := s.db.QueryRow(`SELECT value FROM meta WHERE key = 'schema_version'`).Scan(&version); err != nil {
		return ""
	}
	return version
}

func (s *SQLite) migrateV1() error {
	schema := `
	CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS sessions (
		room_id TEXT PRIMARY KEY,
		id TEXT NOT NULL,
		room_title TEXT NOT NULL DEFAULT '',
		creator_id TEXT NOT NULL,
		creator_name TEXT NOT NULL DEFAULT '',
		origin_message_id TEXT,
		announcement_ref TEXT,
		state TEXT NOT NULL DEFAULT 'open',
		participants TEXT NOT NULL DEFAULT '[]',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_created ON sessions(created_at);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to execute migration v1: %w", err)
	}

	if s.schemaVersion() == "" {
		if _, err := s.db.Exec(`INSERT INTO meta(key, value) VALUES ('schema_version', '1')`); err != nil {
			return fmt.Errorf("failed to set schema version: %w", err)
		}
	}
	return nil
}

func (s *SQLite) migrateV2() error {
	if s.schemaVersion() >= "2" {
		return nil
	}

	schema := `
	CREATE TABLE IF NOT EXISTS archived_sessions (
		id TEXT PRIMARY KEY,
		room_id TEXT NOT NULL,
		room_title TEXT NOT NULL DEFAULT '',
		creator_id TEXT NOT NULL,
		participant_count INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		closed_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_archive_closed ON archived_sessions(closed_at);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to execute migration v2: %w", err)
	}

	if _, err := s.db.Exec(`INSERT OR REPLACE INTO meta(key, value) VALUES ('schema_version', '2')`); err != nil {
		return fmt.Errorf("failed to update schema version: %w", err)
	}
	return nil
}
