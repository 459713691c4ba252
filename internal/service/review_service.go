package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/gurkanbulca/collabdesk/internal/events"
	"github.com/gurkanbulca/collabdesk/internal/metrics"
	"github.com/gurkanbulca/collabdesk/internal/models"
	"github.com/gurkanbulca/collabdesk/internal/repository"
	"github.com/gurkanbulca/collabdesk/internal/review"
	"github.com/gurkanbulca/collabdesk/pkg/logger"
)

// ReviewService applies reviewer decisions to tasks under review
type ReviewService struct {
	base
	store repository.Store
}

// NewReviewService creates a review service
func NewReviewService(store repository.Store, publisher events.Publisher, lc LeaderboardCache, log *logger.Logger) *ReviewService {
	return &ReviewService{
		base:  newBase(publisher, lc, log, "review_service"),
		store: store,
	}
}

// Review approves a task (rating required) or sends it back for changes
func (s *ReviewService) Review(ctx context.Context, actor models.Actor, taskID string, decision review.Decision, comment string, rating *float64) (*models.Task, error) {
	if !actor.CanReview() {
		return nil, fmt.Errorf("%w: role %q cannot review", models.ErrNotPermitted, actor.Role)
	}

	task, err := s.store.Tasks().GetByID(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if err := review.Apply(task, decision, comment, rating, s.now()); err != nil {
		return nil, err
	}
	if err := s.store.Tasks().Save(ctx, task); err != nil {
		return nil, err
	}

	metrics.Reviews.WithLabelValues(string(decision)).Inc()
	s.publisher.Publish(taskChange(task, events.OpUpdate, task.UpdatedAt))
	if decision == review.DecisionApprove {
		s.invalidateLeaderboard(ctx)
	}

	fields := []zap.Field{
		zap.String("task_id", task.ID),
		zap.String("decision", string(decision)),
		zap.String("reviewer", actor.UID),
	}
	if task.ReviewRating != nil {
		fields = append(fields, zap.Float64("rating", *task.ReviewRating))
	}
	s.log.Info("task reviewed", fields...)
	return task, nil
}
