package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// The DDL sticks to types PostgreSQL and SQLite both understand. Timestamps
// are stored in UTC; labels and attachment references are JSON text.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS tasks (
		id               TEXT PRIMARY KEY,
		title            TEXT NOT NULL,
		description      TEXT NOT NULL DEFAULT '',
		priority         TEXT NOT NULL DEFAULT '',
		status           TEXT NOT NULL,
		due_date         TIMESTAMP NULL,
		assignee_id      TEXT NOT NULL DEFAULT '',
		assignee_name    TEXT NOT NULL DEFAULT '',
		project_id       TEXT NOT NULL DEFAULT '',
		collaboration_id TEXT NOT NULL DEFAULT '',
		labels           TEXT NOT NULL DEFAULT '[]',
		time_spent       BIGINT NOT NULL DEFAULT 0,
		review_status    TEXT NOT NULL DEFAULT '',
		review_comment   TEXT NOT NULL DEFAULT '',
		review_rating    DOUBLE PRECISION NULL,
		reviewed_at      TIMESTAMP NULL,
		completed_at     TIMESTAMP NULL,
		created_at       TIMESTAMP NOT NULL,
		updated_at       TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks (status)`,
	`CREATE INDEX IF NOT EXISTS idx_tasks_assignee ON tasks (assignee_id)`,
	`CREATE TABLE IF NOT EXISTS submissions (
		id               TEXT PRIMARY KEY,
		task_id          TEXT NOT NULL REFERENCES tasks (id),
		project_id       TEXT NOT NULL DEFAULT '',
		collaboration_id TEXT NOT NULL DEFAULT '',
		user_id          TEXT NOT NULL,
		user_name        TEXT NOT NULL DEFAULT '',
		type             TEXT NOT NULL,
		file             TEXT NULL,
		link             TEXT NOT NULL DEFAULT '',
		notes            TEXT NOT NULL DEFAULT '',
		submitted_at     TIMESTAMP NOT NULL,
		status           TEXT NOT NULL,
		reviewed_at      TIMESTAMP NULL,
		reviewed_by_name TEXT NULL,
		feedback         TEXT NULL,
		rating           DOUBLE PRECISION NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_submissions_task ON submissions (task_id, submitted_at)`,
	`CREATE TABLE IF NOT EXISTS user_ranks (
		user_id    TEXT NOT NULL,
		rank_key   TEXT NOT NULL,
		rank       INTEGER NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		PRIMARY KEY (user_id, rank_key)
	)`,
}

// Migrate creates the tables and indexes the SQL store needs. It is safe to
// run on every start.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration step %d: %w", i+1, err)
		}
	}
	return nil
}
