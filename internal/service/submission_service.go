package service

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gurkanbulca/collabdesk/internal/attachment"
	"github.com/gurkanbulca/collabdesk/internal/events"
	"github.com/gurkanbulca/collabdesk/internal/metrics"
	"github.com/gurkanbulca/collabdesk/internal/models"
	"github.com/gurkanbulca/collabdesk/internal/repository"
	"github.com/gurkanbulca/collabdesk/internal/workflow"
	"github.com/gurkanbulca/collabdesk/pkg/logger"
)

// SubmitInput is what a collaborator hands in for a task
type SubmitInput struct {
	TaskID string
	Type   models.SubmissionType
	File   *attachment.File
	Link   string
	Notes  string
}

// SubmissionService records deliverables and moves their task into review
type SubmissionService struct {
	base
	store  repository.Store
	router *attachment.Router
}

// NewSubmissionService creates a submission service
func NewSubmissionService(store repository.Store, router *attachment.Router, publisher events.Publisher, log *logger.Logger) *SubmissionService {
	return &SubmissionService{
		base:   newBase(publisher, nil, log, "submission_service"),
		store:  store,
		router: router,
	}
}

// Submit uploads the attachment, if any, then stores the submission and
// moves the task to Review in one unit of work. Nothing is written when the
// task is Done, the input is invalid or the upload fails.
func (s *SubmissionService) Submit(ctx context.Context, actor models.Actor, in SubmitInput) (*models.Submission, error) {
	task, err := s.store.Tasks().GetByID(ctx, in.TaskID)
	if err != nil {
		return nil, err
	}
	if !workflow.AcceptsWork(task.Status) {
		return nil, fmt.Errorf("%w: task %s is %s", models.ErrTaskNotSubmittable, task.ID, task.Status)
	}
	if err := validateSubmitInput(in); err != nil {
		return nil, err
	}

	sub := &models.Submission{
		ID:              uuid.NewString(),
		TaskID:          task.ID,
		ProjectID:       task.ProjectID,
		CollaborationID: task.CollaborationID,
		UserID:          actor.UID,
		UserName:        actor.DisplayName,
		Type:            in.Type,
		Notes:           strings.TrimSpace(in.Notes),
		Status:          models.SubmissionSubmitted,
	}

	switch in.Type {
	case models.SubmissionTypeFile:
		ref, err := s.router.Route(ctx, *in.File)
		if err != nil {
			metrics.UploadFailures.WithLabelValues(string(attachment.Classify(in.File.MimeType))).Inc()
			s.log.Warn("attachment upload failed",
				zap.String("task_id", task.ID),
				zap.String("file", in.File.Name),
				zap.Error(err))
			return nil, err
		}
		sub.File = &ref
	case models.SubmissionTypeLink:
		sub.Link = strings.TrimSpace(in.Link)
	}

	var updated *models.Task
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx repository.Store) error {
		current, err := tx.Tasks().GetByID(ctx, task.ID)
		if err != nil {
			return err
		}
		if !workflow.AcceptsWork(current.Status) {
			return fmt.Errorf("%w: task %s is %s", models.ErrTaskNotSubmittable, current.ID, current.Status)
		}

		now := s.now()
		sub.SubmittedAt = now
		if err := tx.Submissions().Create(ctx, sub); err != nil {
			return err
		}

		if err := workflow.Transition(current, models.StatusReview, workflow.TriggerSubmission, now); err != nil {
			return err
		}
		current.ReviewStatus = models.ReviewStatusPending
		if err := tx.Tasks().Save(ctx, current); err != nil {
			return err
		}
		updated = current
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.Submissions.WithLabelValues(string(sub.Type)).Inc()
	metrics.Transitions.WithLabelValues(string(workflow.TriggerSubmission), string(models.StatusReview)).Inc()
	s.publisher.Publish(
		submissionChange(sub, sub.SubmittedAt),
		taskChange(updated, events.OpUpdate, updated.UpdatedAt),
	)
	s.log.Info("submission stored",
		zap.String("submission_id", sub.ID),
		zap.String("task_id", task.ID),
		zap.String("type", string(sub.Type)),
		zap.String("user_id", actor.UID))
	return sub, nil
}

// ListSubmissions returns a task's submissions newest first
func (s *SubmissionService) ListSubmissions(ctx context.Context, taskID string) ([]*models.Submission, error) {
	if _, err := s.store.Tasks().GetByID(ctx, taskID); err != nil {
		return nil, err
	}
	return s.store.Submissions().ListByTask(ctx, taskID)
}

func validateSubmitInput(in SubmitInput) error {
	switch in.Type {
	case models.SubmissionTypeFile:
		if in.File == nil {
			return fmt.Errorf("%w: file submission without a file", models.ErrInvalidSubmission)
		}
		if strings.TrimSpace(in.File.Name) == "" {
			return fmt.Errorf("%w: file name is required", models.ErrInvalidSubmission)
		}
		if len(in.File.Bytes) == 0 {
			return fmt.Errorf("%w: file %q is empty", models.ErrInvalidSubmission, in.File.Name)
		}
		if in.Link != "" {
			return fmt.Errorf("%w: file submission cannot carry a link", models.ErrInvalidSubmission)
		}
	case models.SubmissionTypeLink:
		if in.File != nil {
			return fmt.Errorf("%w: link submission cannot carry a file", models.ErrInvalidSubmission)
		}
		link := strings.TrimSpace(in.Link)
		if link == "" {
			return fmt.Errorf("%w: link is required", models.ErrInvalidSubmission)
		}
		u, err := url.Parse(link)
		if err != nil || !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("%w: %q is not an http(s) URL", models.ErrInvalidSubmission, link)
		}
	default:
		return fmt.Errorf("%w: unknown type %q", models.ErrInvalidSubmission, in.Type)
	}
	return nil
}
