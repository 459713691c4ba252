package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/gurkanbulca/collabdesk/internal/models"
)

// SQLStore implements Store on a relational database through sqlx.
// Queries are written with ? placeholders and rebound for the driver.
type SQLStore struct {
	db  *sqlx.DB
	ext sqlx.ExtContext
	tx  *sqlx.Tx
}

// NewSQLStore creates a store over an open database
func NewSQLStore(db *sqlx.DB) *SQLStore {
	return &SQLStore{db: db, ext: db}
}

func (s *SQLStore) Tasks() TaskRepository             { return &sqlTaskRepository{ext: s.ext} }
func (s *SQLStore) Submissions() SubmissionRepository { return &sqlSubmissionRepository{ext: s.ext} }
func (s *SQLStore) Users() UserRepository             { return &sqlUserRepository{ext: s.ext} }

// WithinTx implements Store with a database transaction
func (s *SQLStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	if s.tx != nil {
		return fn(ctx, s)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return &models.PersistenceError{Op: "begin transaction", Err: err}
	}

	if err := fn(ctx, &SQLStore{db: s.db, ext: tx, tx: tx}); err != nil {
		return rollback(tx, err)
	}

	if err := tx.Commit(); err != nil {
		return &models.PersistenceError{Op: "commit transaction", Err: err}
	}
	return nil
}

// Helper function for transaction rollback
func rollback(tx *sqlx.Tx, err error) error {
	if rerr := tx.Rollback(); rerr != nil {
		err = fmt.Errorf("%w: %v", err, rerr)
	}
	return err
}

const taskColumns = `id, title, description, priority, status, due_date, assignee_id, assignee_name,
	project_id, collaboration_id, labels, time_spent, review_status, review_comment, review_rating,
	reviewed_at, completed_at, created_at, updated_at`

type sqlTaskRepository struct {
	ext sqlx.ExtContext
}

func (r *sqlTaskRepository) GetByID(ctx context.Context, id string) (*models.Task, error) {
	var t models.Task
	query := r.ext.Rebind(`SELECT ` + taskColumns + ` FROM tasks WHERE id = ?`)
	if err := sqlx.GetContext(ctx, r.ext, &t, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", models.ErrTaskNotFound, id)
		}
		return nil, &models.PersistenceError{Op: "get task", ID: id, Err: err}
	}
	return &t, nil
}

func (r *sqlTaskRepository) Create(ctx context.Context, t *models.Task) error {
	if err := t.Validate(); err != nil {
		return err
	}
	if t.Labels == nil {
		t.Labels = models.StringSet{}
	}

	query := `INSERT INTO tasks (` + taskColumns + `) VALUES (
		:id, :title, :description, :priority, :status, :due_date, :assignee_id, :assignee_name,
		:project_id, :collaboration_id, :labels, :time_spent, :review_status, :review_comment, :review_rating,
		:reviewed_at, :completed_at, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.ext, query, t); err != nil {
		return &models.PersistenceError{Op: "create task", ID: t.ID, Err: err}
	}
	return nil
}

func (r *sqlTaskRepository) Save(ctx context.Context, t *models.Task) error {
	if err := t.Validate(); err != nil {
		return err
	}

	query := `UPDATE tasks SET
		title = :title, description = :description, priority = :priority, status = :status,
		due_date = :due_date, assignee_id = :assignee_id, assignee_name = :assignee_name,
		project_id = :project_id, collaboration_id = :collaboration_id, labels = :labels,
		time_spent = :time_spent, review_status = :review_status, review_comment = :review_comment,
		review_rating = :review_rating, reviewed_at = :reviewed_at, completed_at = :completed_at,
		updated_at = :updated_at
		WHERE id = :id`
	res, err := sqlx.NamedExecContext(ctx, r.ext, query, t)
	if err != nil {
		return &models.PersistenceError{Op: "save task", ID: t.ID, Err: err}
	}
	n, err := res.RowsAffected()
	if err != nil {
		return &models.PersistenceError{Op: "save task", ID: t.ID, Err: err}
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", models.ErrTaskNotFound, t.ID)
	}
	return nil
}

func (r *sqlTaskRepository) List(ctx context.Context, filter ListFilter) ([]*models.Task, error) {
	var (
		where []string
		args  []interface{}
	)

	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, st := range filter.Statuses {
			statuses[i] = string(st)
		}
		where = append(where, "status IN (?)")
		args = append(args, statuses)
	}
	if filter.AssigneeID != "" {
		where = append(where, "assignee_id = ?")
		args = append(args, filter.AssigneeID)
	}
	if filter.ProjectID != "" {
		where = append(where, "project_id = ?")
		args = append(args, filter.ProjectID)
	}
	if filter.CollaborationID != "" {
		where = append(where, "collaboration_id = ?")
		args = append(args, filter.CollaborationID)
	}
	if filter.Label != "" {
		// labels is a JSON array of strings
		where = append(where, "labels LIKE ?")
		args = append(args, `%"`+escapeLike(filter.Label)+`"%`)
	}
	if filter.CompletedFrom != nil {
		where = append(where, "COALESCE(completed_at, updated_at) >= ?")
		args = append(args, filter.CompletedFrom.UTC())
	}

	query := `SELECT ` + taskColumns + ` FROM tasks`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY updated_at DESC, id ASC`
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
		if filter.Offset > 0 {
			query += fmt.Sprintf(" OFFSET %d", filter.Offset)
		}
	}

	query, args, err := sqlx.In(query, args...)
	if err != nil {
		return nil, &models.PersistenceError{Op: "list tasks", Err: err}
	}

	var tasks []*models.Task
	if err := sqlx.SelectContext(ctx, r.ext, &tasks, r.ext.Rebind(query), args...); err != nil {
		return nil, &models.PersistenceError{Op: "list tasks", Err: err}
	}
	return tasks, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`%`, ``, `_`, ``, `"`, ``).Replace(s)
}

const submissionColumns = `id, task_id, project_id, collaboration_id, user_id, user_name, type, file, link,
	notes, submitted_at, status, reviewed_at, reviewed_by_name, feedback, rating`

type sqlSubmissionRepository struct {
	ext sqlx.ExtContext
}

func (r *sqlSubmissionRepository) Create(ctx context.Context, s *models.Submission) error {
	if err := s.Validate(); err != nil {
		return err
	}

	query := `INSERT INTO submissions (` + submissionColumns + `) VALUES (
		:id, :task_id, :project_id, :collaboration_id, :user_id, :user_name, :type, :file, :link,
		:notes, :submitted_at, :status, :reviewed_at, :reviewed_by_name, :feedback, :rating)`
	if _, err := sqlx.NamedExecContext(ctx, r.ext, query, s); err != nil {
		return &models.PersistenceError{Op: "create submission", ID: s.ID, Err: err}
	}
	return nil
}

func (r *sqlSubmissionRepository) GetByID(ctx context.Context, id string) (*models.Submission, error) {
	var s models.Submission
	query := r.ext.Rebind(`SELECT ` + submissionColumns + ` FROM submissions WHERE id = ?`)
	if err := sqlx.GetContext(ctx, r.ext, &s, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", models.ErrSubmissionNotFound, id)
		}
		return nil, &models.PersistenceError{Op: "get submission", ID: id, Err: err}
	}
	return &s, nil
}

func (r *sqlSubmissionRepository) ListByTask(ctx context.Context, taskID string) ([]*models.Submission, error) {
	var subs []*models.Submission
	query := r.ext.Rebind(`SELECT ` + submissionColumns + ` FROM submissions WHERE task_id = ? ORDER BY submitted_at DESC, id ASC`)
	if err := sqlx.SelectContext(ctx, r.ext, &subs, query, taskID); err != nil {
		return nil, &models.PersistenceError{Op: "list submissions", ID: taskID, Err: err}
	}
	return subs, nil
}

type sqlUserRepository struct {
	ext sqlx.ExtContext
}

func (r *sqlUserRepository) SetRank(ctx context.Context, userID, rankKey string, rank int, at time.Time) error {
	query := r.ext.Rebind(`INSERT INTO user_ranks (user_id, rank_key, rank, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id, rank_key) DO UPDATE SET rank = excluded.rank, updated_at = excluded.updated_at`)
	if _, err := r.ext.ExecContext(ctx, query, userID, rankKey, rank, at.UTC()); err != nil {
		return &models.PersistenceError{Op: "set " + rankKey, ID: userID, Err: err}
	}
	return nil
}

func (r *sqlUserRepository) ClearRanks(ctx context.Context, rankKey string, keep []string) error {
	query, args := `DELETE FROM user_ranks WHERE rank_key = ?`, []interface{}{rankKey}
	if len(keep) > 0 {
		var err error
		query, args, err = sqlx.In(`DELETE FROM user_ranks WHERE rank_key = ? AND user_id NOT IN (?)`, rankKey, keep)
		if err != nil {
			return &models.PersistenceError{Op: "clear " + rankKey, Err: err}
		}
	}
	if _, err := r.ext.ExecContext(ctx, r.ext.Rebind(query), args...); err != nil {
		return &models.PersistenceError{Op: "clear " + rankKey, Err: err}
	}
	return nil
}

func (r *sqlUserRepository) GetRanks(ctx context.Context, userID string) (map[string]int, error) {
	var rows []models.UserRank
	query := r.ext.Rebind(`SELECT user_id, rank_key, rank, updated_at FROM user_ranks WHERE user_id = ?`)
	if err := sqlx.SelectContext(ctx, r.ext, &rows, query, userID); err != nil {
		return nil, &models.PersistenceError{Op: "get ranks", ID: userID, Err: err}
	}

	ranks := make(map[string]int, len(rows))
	for _, row := range rows {
		ranks[row.RankKey] = row.Rank
	}
	return ranks, nil
}
