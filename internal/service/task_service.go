// internal/service/task_service.go
package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/gurkanbulca/collabdesk/internal/events"
	"github.com/gurkanbulca/collabdesk/internal/metrics"
	"github.com/gurkanbulca/collabdesk/internal/models"
	"github.com/gurkanbulca/collabdesk/internal/repository"
	"github.com/gurkanbulca/collabdesk/internal/tracking"
	"github.com/gurkanbulca/collabdesk/internal/workflow"
	"github.com/gurkanbulca/collabdesk/pkg/logger"
)

// TaskService reads tasks and applies manual status changes and tracked time
type TaskService struct {
	base
	store repository.Store
}

// NewTaskService creates a task service
func NewTaskService(store repository.Store, publisher events.Publisher, lc LeaderboardCache, log *logger.Logger) *TaskService {
	return &TaskService{
		base:  newBase(publisher, lc, log, "task_service"),
		store: store,
	}
}

// GetTask retrieves a task by ID
func (s *TaskService) GetTask(ctx context.Context, id string) (*models.Task, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: empty id", models.ErrTaskNotFound)
	}
	return s.store.Tasks().GetByID(ctx, id)
}

// ListTasks lists tasks matching filter
func (s *TaskService) ListTasks(ctx context.Context, filter repository.ListFilter) ([]*models.Task, error) {
	for _, st := range filter.Statuses {
		if !st.IsValid() {
			return nil, fmt.Errorf("unknown task status: %q", st)
		}
	}
	return s.store.Tasks().List(ctx, filter)
}

// ChangeStatus moves a task on behalf of actor. When the target is Done and a
// tracking session is given, its time is written with the same update.
func (s *TaskService) ChangeStatus(ctx context.Context, actor models.Actor, taskID string, to models.Status, session *tracking.State) (*models.Task, error) {
	task, from, err := s.changeStatus(ctx, actor, taskID, to, session)
	if err != nil {
		return nil, err
	}

	now := task.UpdatedAt
	s.publisher.Publish(taskChange(task, events.OpUpdate, now))
	if affectsLeaderboard(from, to) {
		s.invalidateLeaderboard(ctx)
	}
	return task, nil
}

func (s *TaskService) changeStatus(ctx context.Context, actor models.Actor, taskID string, to models.Status, session *tracking.State) (*models.Task, models.Status, error) {
	if !to.IsValid() {
		return nil, "", fmt.Errorf("%w: unknown status %q", models.ErrInvalidTransition, to)
	}

	task, err := s.store.Tasks().GetByID(ctx, taskID)
	if err != nil {
		return nil, "", err
	}

	trigger := workflow.TriggerFor(actor.Role)
	if trigger == workflow.TriggerCollaborator && task.AssigneeID != "" && task.AssigneeID != actor.UID {
		return nil, "", fmt.Errorf("%w: %s is not the assignee of task %s", models.ErrNotPermitted, actor.UID, taskID)
	}

	from := task.Status
	if session != nil && !workflow.AcceptsWork(from) {
		return nil, "", fmt.Errorf("%w: task %s is %s", models.ErrTrackingClosed, taskID, from)
	}
	if err := workflow.Transition(task, to, trigger, s.now()); err != nil {
		return nil, "", err
	}
	if to == models.StatusDone && session != nil && session.TaskID == task.ID {
		closed := tracking.Close(*session)
		task.TimeSpent = maxSeconds(task.TimeSpent, closed.TotalSeconds())
	}

	if err := s.store.Tasks().Save(ctx, task); err != nil {
		return nil, "", err
	}

	metrics.Transitions.WithLabelValues(string(trigger), string(to)).Inc()
	s.log.Info("task status changed",
		zap.String("task_id", task.ID),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
		zap.String("trigger", string(trigger)),
		zap.String("actor", actor.UID))
	return task, from, nil
}

// BulkResult reports the outcome of a bulk status change
type BulkResult struct {
	Succeeded []string
	Failed    map[string]error
}

// BulkChangeStatus applies the same status change to many tasks concurrently.
// Applied changes are kept when others fail; the error is then a
// *models.PartialBulkFailure with the same content as the result.
func (s *TaskService) BulkChangeStatus(ctx context.Context, actor models.Actor, taskIDs []string, to models.Status) (BulkResult, error) {
	ids := uniqueIDs(taskIDs)
	result := BulkResult{Failed: make(map[string]error)}

	var (
		mu                 sync.Mutex
		wg                 sync.WaitGroup
		changes            []events.Change
		leaderboardChanged bool
	)
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			task, from, err := s.changeStatus(ctx, actor, id, to, nil)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Failed[id] = err
				return
			}
			result.Succeeded = append(result.Succeeded, id)
			changes = append(changes, taskChange(task, events.OpUpdate, task.UpdatedAt))
			if affectsLeaderboard(from, to) {
				leaderboardChanged = true
			}
		}(id)
	}
	wg.Wait()

	sort.Strings(result.Succeeded)
	s.publisher.Publish(changes...)
	if leaderboardChanged {
		s.invalidateLeaderboard(ctx)
	}

	if len(result.Failed) > 0 {
		s.log.Warn("bulk status change partially failed",
			zap.Int("succeeded", len(result.Succeeded)),
			zap.Int("failed", len(result.Failed)),
			zap.String("to", string(to)))
		return result, &models.PartialBulkFailure{Succeeded: result.Succeeded, Failed: result.Failed}
	}
	return result, nil
}

// SaveTrackedTime persists a tracking session. Stored time never decreases
// and Done tasks accept no more time.
func (s *TaskService) SaveTrackedTime(ctx context.Context, actor models.Actor, taskID string, session tracking.State) (*models.Task, error) {
	if session.TaskID != "" && session.TaskID != taskID {
		return nil, fmt.Errorf("tracking session belongs to task %s, not %s", session.TaskID, taskID)
	}

	task, err := s.store.Tasks().GetByID(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if !workflow.AcceptsWork(task.Status) {
		return nil, fmt.Errorf("%w: task %s is %s", models.ErrTrackingClosed, taskID, task.Status)
	}
	if task.AssigneeID != "" && task.AssigneeID != actor.UID && actor.Role != models.RoleManager {
		return nil, fmt.Errorf("%w: %s is not the assignee of task %s", models.ErrNotPermitted, actor.UID, taskID)
	}

	total := maxSeconds(task.TimeSpent, session.TotalSeconds())
	if total == task.TimeSpent {
		return task, nil
	}
	task.TimeSpent = total
	task.UpdatedAt = s.now()

	if err := s.store.Tasks().Save(ctx, task); err != nil {
		return nil, err
	}
	s.publisher.Publish(taskChange(task, events.OpUpdate, task.UpdatedAt))
	return task, nil
}

func maxSeconds(a, b int64) int64 {
	if b > a {
		return b
	}
	return a
}

func uniqueIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// IsPartialFailure unwraps a *models.PartialBulkFailure
func IsPartialFailure(err error) (*models.PartialBulkFailure, bool) {
	var pbf *models.PartialBulkFailure
	if errors.As(err, &pbf) {
		return pbf, true
	}
	return nil, false
}
