// Package repository persists tasks, submissions and user rank annotations.
package repository

import (
	"context"
	"time"

	"github.com/gurkanbulca/collabdesk/internal/models"
)

// TaskRepository stores tasks
type TaskRepository interface {
	GetByID(ctx context.Context, id string) (*models.Task, error)
	Create(ctx context.Context, t *models.Task) error
	// Save overwrites every mutable field of an existing task
	Save(ctx context.Context, t *models.Task) error
	List(ctx context.Context, filter ListFilter) ([]*models.Task, error)
}

// SubmissionRepository stores submissions
type SubmissionRepository interface {
	Create(ctx context.Context, s *models.Submission) error
	GetByID(ctx context.Context, id string) (*models.Submission, error)
	// ListByTask returns a task's submissions newest first
	ListByTask(ctx context.Context, taskID string) ([]*models.Submission, error)
}

// UserRepository stores rank annotations on user records
type UserRepository interface {
	SetRank(ctx context.Context, userID, rankKey string, rank int, at time.Time) error
	GetRanks(ctx context.Context, userID string) (map[string]int, error)
	// ClearRanks drops rankKey from every user not listed in keep
	ClearRanks(ctx context.Context, rankKey string, keep []string) error
}

// Store groups the repositories behind one unit of work
type Store interface {
	Tasks() TaskRepository
	Submissions() SubmissionRepository
	Users() UserRepository

	// WithinTx runs fn against a store whose writes commit together.
	// Returning an error from fn discards them. Calls nested inside fn
	// join the outer unit of work.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error
}

// ListFilter narrows a task listing. Zero values mean no constraint.
type ListFilter struct {
	Statuses        []models.Status
	AssigneeID      string
	ProjectID       string
	CollaborationID string
	Label           string
	// CompletedFrom keeps tasks whose completion time (completedAt, else
	// updatedAt) is not before it
	CompletedFrom *time.Time
	Limit         int
	Offset        int
}
