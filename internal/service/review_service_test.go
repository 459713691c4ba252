package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gurkanbulca/collabdesk/internal/attachment"
	"github.com/gurkanbulca/collabdesk/internal/models"
	"github.com/gurkanbulca/collabdesk/internal/review"
	"github.com/gurkanbulca/collabdesk/pkg/logger"
)

func newReviewService(h *TestHelpers) (*ReviewService, *recorder, *memoryCache) {
	rec := &recorder{}
	lc := newMemoryCache()
	svc := NewReviewService(h.store, rec, lc, logger.NewNop())
	svc.now = fixedClock
	return svc, rec, lc
}

func rating(v float64) *float64 { return &v }

func TestReviewService_ApproveClosesTask(t *testing.T) {
	h := NewTestHelpers(t)
	svc, rec, lc := newReviewService(h)
	h.CreateTask("t1", models.StatusWaitingReview, models.PriorityCritical)

	task, err := svc.Review(context.Background(), reviewer, "t1", review.DecisionApprove, "great work", rating(4.5))
	require.NoError(t, err)
	assert.Equal(t, models.StatusDone, task.Status)

	stored := h.GetTask("t1")
	assert.Equal(t, models.StatusDone, stored.Status)
	assert.Equal(t, models.ReviewStatusApproved, stored.ReviewStatus)
	assert.Equal(t, "great work", stored.ReviewComment)
	require.NotNil(t, stored.ReviewRating)
	assert.Equal(t, 4.5, *stored.ReviewRating)
	require.NotNil(t, stored.ReviewedAt)
	assert.True(t, fixedNow.Equal(*stored.ReviewedAt))
	require.NotNil(t, stored.CompletedAt)
	assert.True(t, fixedNow.Equal(*stored.CompletedAt))

	assert.Len(t, rec.Changes(), 1)
	assert.Equal(t, 1, lc.Invalidations())

	// approved work accepts no more submissions
	submissions := NewSubmissionService(h.store, attachment.NewRouter(nil, nil), nil, logger.NewNop())
	_, err = submissions.Submit(context.Background(), collaborator, SubmitInput{
		TaskID: "t1",
		Type:   models.SubmissionTypeLink,
		Link:   "https://example.com/v2",
	})
	assert.ErrorIs(t, err, models.ErrTaskNotSubmittable)
}

func TestReviewService_RequestChangesClearsRating(t *testing.T) {
	h := NewTestHelpers(t)
	svc, _, lc := newReviewService(h)
	task := h.CreateTask("t1", models.StatusReview, models.PriorityMedium)
	task.ReviewRating = rating(3)
	require.NoError(t, h.store.Tasks().Save(context.Background(), task))

	_, err := svc.Review(context.Background(), manager, "t1", review.DecisionRequestChanges, "needs tests", nil)
	require.NoError(t, err)

	stored := h.GetTask("t1")
	assert.Equal(t, models.StatusInProgress, stored.Status)
	assert.Equal(t, models.ReviewStatusChangesRequested, stored.ReviewStatus)
	assert.Equal(t, "needs tests", stored.ReviewComment)
	assert.Nil(t, stored.ReviewRating)
	assert.Nil(t, stored.CompletedAt)
	assert.Equal(t, 0, lc.Invalidations())
}

func TestReviewService_Rejections(t *testing.T) {
	tests := []struct {
		name     string
		actor    models.Actor
		status   models.Status
		decision review.Decision
		rating   *float64
		wantErr  error
	}{
		{name: "collaborator cannot review", actor: collaborator, status: models.StatusReview, decision: review.DecisionApprove, rating: rating(4), wantErr: models.ErrNotPermitted},
		{name: "not under review", actor: reviewer, status: models.StatusInProgress, decision: review.DecisionApprove, rating: rating(4), wantErr: models.ErrNotUnderReview},
		{name: "approval without rating", actor: reviewer, status: models.StatusReview, decision: review.DecisionApprove, wantErr: models.ErrInvalidRating},
		{name: "rating off the half step", actor: reviewer, status: models.StatusReview, decision: review.DecisionApprove, rating: rating(4.3), wantErr: models.ErrInvalidRating},
		{name: "rating above scale", actor: reviewer, status: models.StatusReview, decision: review.DecisionApprove, rating: rating(5.5), wantErr: models.ErrInvalidRating},
		{name: "negative rating", actor: reviewer, status: models.StatusReview, decision: review.DecisionApprove, rating: rating(-0.5), wantErr: models.ErrInvalidRating},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewTestHelpers(t)
			svc, rec, _ := newReviewService(h)
			h.CreateTask("t1", tt.status, models.PriorityLow)

			_, err := svc.Review(context.Background(), tt.actor, "t1", tt.decision, "", tt.rating)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)

			stored := h.GetTask("t1")
			assert.Equal(t, tt.status, stored.Status)
			assert.Nil(t, stored.ReviewRating)
			assert.Empty(t, rec.Changes())
		})
	}
}
