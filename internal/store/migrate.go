package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const currentSchemaVersion = 2

// Task IDs start after this value so they read as seven-digit numbers.
const taskIDSeed = 999999

var migrations = map[int][]string{
	1: {
		`CREATE TABLE IF NOT EXISTS projects (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			name        TEXT NOT NULL UNIQUE,
			description TEXT NOT NULL DEFAULT '',
			status      TEXT NOT NULL DEFAULT 'active'
			            CHECK (status IN ('active', 'paused', 'archived')),
			created_at  INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS tasks (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			content     TEXT NOT NULL,
			status      TEXT NOT NULL DEFAULT 'todo'
			            CHECK (status IN ('todo', 'in_progress', 'done', 'cancelled')),
			priority    INTEGER NOT NULL DEFAULT 3 CHECK (priority BETWEEN 1 AND 5),
			complexity  TEXT,
			deadline    INTEGER,
			tags        TEXT,
			parent_id   INTEGER REFERENCES tasks(id) ON DELETE SET NULL,
			project_id  INTEGER REFERENCES projects(id) ON DELETE SET NULL,
			created_at  INTEGER NOT NULL,
			updated_at  INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status, priority)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_parent ON tasks(parent_id)`,
		`CREATE TABLE IF NOT EXISTS chat_turns (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id  TEXT NOT NULL,
			chat_id     INTEGER,
			role        TEXT NOT NULL CHECK (role IN ('user', 'assistant', 'system')),
			content     TEXT NOT NULL,
			intent      TEXT,
			sentiment   REAL CHECK (sentiment BETWEEN -1 AND 1),
			metadata    TEXT,
			created_at  INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_chat_turns_session ON chat_turns(session_id, created_at)`,
	},
	2: {
		`CREATE TABLE IF NOT EXISTS session_usage (
			session_id    TEXT PRIMARY KEY,
			input_tokens  INTEGER NOT NULL DEFAULT 0,
			output_tokens INTEGER NOT NULL DEFAULT 0,
			calls         INTEGER NOT NULL DEFAULT 0,
			updated_at    INTEGER NOT NULL
		)`,
	},
}

func (db *DB) migrate(ctx context.Context) error {
	return db.WithTx(ctx, func(tx *Tx) error {
		if _, err := tx.tx.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_meta (
			id      INTEGER PRIMARY KEY CHECK (id = 1),
			version INTEGER NOT NULL
		)`); err != nil {
			return fmt.Errorf("create schema_meta: %w", err)
		}

		version, err := readSchemaVersion(ctx, tx.tx)
		if err != nil {
			return err
		}
		if version > currentSchemaVersion {
			return fmt.Errorf("database schema version %d is newer than supported version %d", version, currentSchemaVersion)
		}

		for v := version + 1; v <= currentSchemaVersion; v++ {
			for _, stmt := range migrations[v] {
				if _, err := tx.tx.ExecContext(ctx, stmt); err != nil {
					return fmt.Errorf("apply migration %d: %w", v, err)
				}
			}
			if v == 1 {
				if err := seedTaskSequence(ctx, tx.tx); err != nil {
					return err
				}
			}
		}

		if version != currentSchemaVersion {
			if _, err := tx.tx.ExecContext(ctx,
				`INSERT INTO schema_meta (id, version) VALUES (1, ?)
				 ON CONFLICT(id) DO UPDATE SET version = excluded.version`,
				currentSchemaVersion,
			); err != nil {
				return fmt.Errorf("write schema version: %w", err)
			}
		}
		return nil
	})
}

func readSchemaVersion(ctx context.Context, tx *sql.Tx) (int, error) {
	var version int
	err := tx.QueryRowContext(ctx, `SELECT version FROM schema_meta WHERE id = 1`).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return version, nil
}

func seedTaskSequence(ctx context.Context, tx *sql.Tx) error {
	var n int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM sqlite_sequence WHERE name = 'tasks'`).Scan(&n); err != nil {
		return fmt.Errorf("read task sequence: %w", err)
	}
	if n > 0 {
		return nil
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO sqlite_sequence (name, seq) VALUES ('tasks', ?)`, taskIDSeed); err != nil {
		return fmt.Errorf("seed task sequence: %w", err)
	}
	return nil
}
