// Package review turns reviewer decisions into task transitions.
package review

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/gurkanbulca/collabdesk/internal/models"
	"github.com/gurkanbulca/collabdesk/internal/workflow"
)

// Decision is a reviewer's verdict
type Decision string

// Decision constants
const (
	DecisionApprove        Decision = "approve"
	DecisionRequestChanges Decision = "request_changes"
)

// Rating scale bounds
const (
	MinRating  = 0.0
	MaxRating  = 5.0
	RatingStep = 0.5

	ratingTolerance = 1e-9
)

// ParseDecision converts a string into a Decision
func ParseDecision(value string) (Decision, error) {
	switch Decision(strings.ToLower(value)) {
	case DecisionApprove:
		return DecisionApprove, nil
	case DecisionRequestChanges, "requestchanges", "changes_requested":
		return DecisionRequestChanges, nil
	}
	return "", fmt.Errorf("unknown review decision: %q", value)
}

// NormalizeRating checks a rating against the half-point scale and snaps
// floating point noise onto it
func NormalizeRating(rating float64) (float64, error) {
	if math.IsNaN(rating) || math.IsInf(rating, 0) {
		return 0, fmt.Errorf("%w: %v", models.ErrInvalidRating, rating)
	}
	if rating < MinRating-ratingTolerance || rating > MaxRating+ratingTolerance {
		return 0, fmt.Errorf("%w: %v is outside [%v, %v]", models.ErrInvalidRating, rating, MinRating, MaxRating)
	}
	snapped := math.Round(rating/RatingStep) * RatingStep
	if math.Abs(snapped-rating) > ratingTolerance {
		return 0, fmt.Errorf("%w: %v is not on a %v step", models.ErrInvalidRating, rating, RatingStep)
	}
	return snapped, nil
}

// Apply records the decision on task and moves it out of review.
// It never touches submission records.
func Apply(task *models.Task, decision Decision, comment string, rating *float64, now time.Time) error {
	if !task.Status.IsUnderReview() {
		return fmt.Errorf("%w: task %s is %q", models.ErrNotUnderReview, task.ID, task.Status)
	}

	var (
		target       models.Status
		reviewStatus models.ReviewStatus
		stored       *float64
	)
	switch decision {
	case DecisionApprove:
		if rating == nil {
			return fmt.Errorf("%w: approval requires a rating", models.ErrInvalidRating)
		}
		r, err := NormalizeRating(*rating)
		if err != nil {
			return err
		}
		target, reviewStatus, stored = models.StatusDone, models.ReviewStatusApproved, &r
	case DecisionRequestChanges:
		target, reviewStatus = models.StatusInProgress, models.ReviewStatusChangesRequested
	default:
		return fmt.Errorf("unknown review decision: %q", decision)
	}

	if err := workflow.Transition(task, target, workflow.TriggerReview, now); err != nil {
		return err
	}
	reviewedAt := task.UpdatedAt
	task.ReviewStatus = reviewStatus
	task.ReviewComment = comment
	task.ReviewRating = stored
	task.ReviewedAt = &reviewedAt
	return nil
}
