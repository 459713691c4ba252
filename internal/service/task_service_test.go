package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gurkanbulca/collabdesk/internal/events"
	"github.com/gurkanbulca/collabdesk/internal/models"
	"github.com/gurkanbulca/collabdesk/internal/repository"
	"github.com/gurkanbulca/collabdesk/internal/tracking"
	"github.com/gurkanbulca/collabdesk/pkg/logger"
)

func newTaskService(h *TestHelpers) (*TaskService, *recorder, *memoryCache) {
	rec := &recorder{}
	lc := newMemoryCache()
	svc := NewTaskService(h.store, rec, lc, logger.NewNop())
	svc.now = fixedClock
	return svc, rec, lc
}

func TestTaskService_ChangeStatus(t *testing.T) {
	tests := []struct {
		name    string
		actor   models.Actor
		from    models.Status
		to      models.Status
		wantErr error
	}{
		{name: "assignee starts work", actor: collaborator, from: models.StatusToDo, to: models.StatusInProgress},
		{name: "assignee finishes", actor: collaborator, from: models.StatusInProgress, to: models.StatusDone},
		{name: "same status is allowed", actor: collaborator, from: models.StatusReview, to: models.StatusReview},
		{name: "assignee cannot skip ahead", actor: collaborator, from: models.StatusToDo, to: models.StatusDone, wantErr: models.ErrInvalidTransition},
		{name: "review needs a submission", actor: collaborator, from: models.StatusInProgress, to: models.StatusReview, wantErr: models.ErrInvalidTransition},
		{name: "assignee cannot reopen", actor: collaborator, from: models.StatusDone, to: models.StatusInProgress, wantErr: models.ErrInvalidTransition},
		{name: "someone else's task", actor: stranger, from: models.StatusToDo, to: models.StatusInProgress, wantErr: models.ErrNotPermitted},
		{name: "manager reopens", actor: manager, from: models.StatusDone, to: models.StatusInProgress},
		{name: "unknown status", actor: collaborator, from: models.StatusToDo, to: "Archived", wantErr: models.ErrInvalidTransition},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewTestHelpers(t)
			svc, rec, _ := newTaskService(h)
			h.CreateTask("t1", tt.from, models.PriorityHigh)

			task, err := svc.ChangeStatus(context.Background(), tt.actor, "t1", tt.to, nil)
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
				assert.Equal(t, tt.from, h.GetTask("t1").Status)
				assert.Empty(t, rec.Changes())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.to, task.Status)
			assert.True(t, fixedNow.Equal(task.UpdatedAt))

			stored := h.GetTask("t1")
			assert.Equal(t, tt.to, stored.Status)
			if tt.to == models.StatusDone {
				require.NotNil(t, stored.CompletedAt)
				assert.True(t, fixedNow.Equal(*stored.CompletedAt))
			} else {
				assert.Nil(t, stored.CompletedAt)
			}

			changes := rec.Changes()
			require.Len(t, changes, 1)
			assert.Equal(t, events.CollectionTasks, changes[0].Collection)
			assert.Equal(t, "t1", changes[0].DocumentID)
		})
	}
}

func TestTaskService_ChangeStatus_InvalidatesLeaderboard(t *testing.T) {
	h := NewTestHelpers(t)
	svc, _, lc := newTaskService(h)
	ctx := context.Background()
	h.CreateTask("t1", models.StatusToDo, models.PriorityLow)

	_, err := svc.ChangeStatus(ctx, collaborator, "t1", models.StatusInProgress, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, lc.Invalidations())

	_, err = svc.ChangeStatus(ctx, collaborator, "t1", models.StatusDone, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, lc.Invalidations())
}

func TestTaskService_ChangeStatus_FlushesSessionOnDone(t *testing.T) {
	h := NewTestHelpers(t)
	svc, _, _ := newTaskService(h)
	task := h.CreateTask("t1", models.StatusInProgress, models.PriorityMedium)
	task.TimeSpent = 100
	require.NoError(t, h.store.Tasks().Save(context.Background(), task))

	session := tracking.Start(tracking.NewState("t1", 100))
	session = tracking.Tick(session, 90*time.Second)

	done, err := svc.ChangeStatus(context.Background(), collaborator, "t1", models.StatusDone, &session)
	require.NoError(t, err)
	assert.Equal(t, int64(190), done.TimeSpent)
	assert.Equal(t, int64(190), h.GetTask("t1").TimeSpent)

	// Done closes tracking
	_, err = svc.SaveTrackedTime(context.Background(), collaborator, "t1", tracking.Tick(session, time.Minute))
	assert.ErrorIs(t, err, models.ErrTrackingClosed)

	// repeating Done cannot carry a session past the close
	_, err = svc.ChangeStatus(context.Background(), collaborator, "t1", models.StatusDone, &session)
	assert.ErrorIs(t, err, models.ErrTrackingClosed)
	assert.Equal(t, int64(190), h.GetTask("t1").TimeSpent)
}

func TestTaskService_ChangeStatus_DoneTaskRejectsSession(t *testing.T) {
	h := NewTestHelpers(t)
	svc, rec, _ := newTaskService(h)
	h.CreateTask("t1", models.StatusDone, models.PriorityHigh)

	late := tracking.NewState("t1", 5000)
	_, err := svc.ChangeStatus(context.Background(), collaborator, "t1", models.StatusDone, &late)
	assert.ErrorIs(t, err, models.ErrTrackingClosed)
	assert.Equal(t, int64(0), h.GetTask("t1").TimeSpent)
	assert.Empty(t, rec.Changes())

	// without a session the repeat is accepted
	done, err := svc.ChangeStatus(context.Background(), collaborator, "t1", models.StatusDone, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(0), done.TimeSpent)
}

func TestTaskService_BulkChangeStatus(t *testing.T) {
	h := NewTestHelpers(t)
	svc, rec, _ := newTaskService(h)
	h.CreateTask("t1", models.StatusToDo, models.PriorityLow)
	h.CreateTask("t2", models.StatusToDo, models.PriorityLow)
	h.CreateTask("t3", models.StatusDone, models.PriorityLow)

	result, err := svc.BulkChangeStatus(context.Background(), collaborator,
		[]string{"t2", "t1", "t3", "missing", "t1", " "}, models.StatusInProgress)
	require.Error(t, err)

	pbf, ok := IsPartialFailure(err)
	require.True(t, ok)
	assert.Equal(t, []string{"missing", "t3"}, pbf.FailedIDs())
	assert.Equal(t, []string{"t1", "t2"}, result.Succeeded)
	assert.ErrorIs(t, result.Failed["missing"], models.ErrTaskNotFound)
	assert.ErrorIs(t, result.Failed["t3"], models.ErrInvalidTransition)

	// applied transitions are kept
	assert.Equal(t, models.StatusInProgress, h.GetTask("t1").Status)
	assert.Equal(t, models.StatusInProgress, h.GetTask("t2").Status)
	assert.Equal(t, models.StatusDone, h.GetTask("t3").Status)
	assert.Len(t, rec.Changes(), 2)
}

func TestTaskService_BulkChangeStatus_AllSucceed(t *testing.T) {
	h := NewTestHelpers(t)
	svc, _, lc := newTaskService(h)
	h.CreateTask("t1", models.StatusInProgress, models.PriorityLow)
	h.CreateTask("t2", models.StatusInProgress, models.PriorityLow)

	result, err := svc.BulkChangeStatus(context.Background(), collaborator, []string{"t1", "t2"}, models.StatusDone)
	require.NoError(t, err)
	assert.Equal(t, []string{"t1", "t2"}, result.Succeeded)
	assert.Empty(t, result.Failed)
	assert.Equal(t, 1, lc.Invalidations())
}

func TestTaskService_SaveTrackedTime(t *testing.T) {
	h := NewTestHelpers(t)
	svc, rec, _ := newTaskService(h)
	ctx := context.Background()
	h.CreateTask("t1", models.StatusInProgress, models.PriorityMedium)

	session := tracking.Tick(tracking.Start(tracking.NewState("t1", 0)), 65*time.Second)
	task, err := svc.SaveTrackedTime(ctx, collaborator, "t1", session)
	require.NoError(t, err)
	assert.Equal(t, int64(65), task.TimeSpent)
	assert.Len(t, rec.Changes(), 1)

	// a stale device never lowers the stored time
	stale := tracking.Tick(tracking.Start(tracking.NewState("t1", 0)), 10*time.Second)
	task, err = svc.SaveTrackedTime(ctx, collaborator, "t1", stale)
	require.NoError(t, err)
	assert.Equal(t, int64(65), task.TimeSpent)
	assert.Len(t, rec.Changes(), 1)

	_, err = svc.SaveTrackedTime(ctx, stranger, "t1", session)
	assert.ErrorIs(t, err, models.ErrNotPermitted)

	_, err = svc.SaveTrackedTime(ctx, collaborator, "t1", tracking.NewState("t2", 500))
	assert.Error(t, err)

	_, err = svc.SaveTrackedTime(ctx, manager, "t1", tracking.NewState("t1", 120))
	require.NoError(t, err)
	assert.Equal(t, int64(120), h.GetTask("t1").TimeSpent)
}

func TestTaskService_ListTasks(t *testing.T) {
	h := NewTestHelpers(t)
	svc, _, _ := newTaskService(h)
	h.CreateTask("t1", models.StatusToDo, models.PriorityLow)
	h.CreateTask("t2", models.StatusDone, models.PriorityLow)

	tasks, err := svc.ListTasks(context.Background(), repository.ListFilter{Statuses: []models.Status{models.StatusDone}})
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "t2", tasks[0].ID)

	_, err = svc.ListTasks(context.Background(), repository.ListFilter{Statuses: []models.Status{"Archived"}})
	assert.Error(t, err)

	_, err = svc.GetTask(context.Background(), "")
	assert.ErrorIs(t, err, models.ErrTaskNotFound)
}
