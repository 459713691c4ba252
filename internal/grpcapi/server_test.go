package grpcapi

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/gurkanbulca/collabdesk/internal/attachment"
	"github.com/gurkanbulca/collabdesk/internal/database"
	"github.com/gurkanbulca/collabdesk/internal/middleware"
	"github.com/gurkanbulca/collabdesk/internal/models"
	"github.com/gurkanbulca/collabdesk/internal/repository"
	"github.com/gurkanbulca/collabdesk/internal/service"
	"github.com/gurkanbulca/collabdesk/pkg/logger"

	_ "github.com/mattn/go-sqlite3"
)

var (
	ada  = models.Actor{UID: "u1", DisplayName: "Ada", Role: models.RoleCollaborator}
	rita = models.Actor{UID: "r1", DisplayName: "Rita", Role: models.RoleReviewer}
)

type testEnv struct {
	client   *Client
	store    *repository.SQLStore
	document *attachment.MockBackend
}

func setupServer(t *testing.T) *testEnv {
	t.Helper()

	db, err := database.Open("sqlite3", "file:"+uuid.NewString()+"?mode=memory&cache=shared&_fk=1")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.Migrate(context.Background(), db))

	store := repository.NewSQLStore(db)
	log := logger.NewNop()
	media := attachment.NewMockBackend(models.StorageCloudinary)
	document := attachment.NewMockBackend(models.StorageObjectStore)

	srv := NewServer(
		service.NewTaskService(store, nil, nil, log),
		service.NewSubmissionService(store, attachment.NewRouter(media, document), nil, log),
		service.NewReviewService(store, nil, nil, log),
		service.NewLeaderboardService(store, nil, nil, log),
		log,
	)

	grpcServer := grpc.NewServer(grpc.ChainUnaryInterceptor(
		middleware.NewIdentityInterceptor().Unary(),
		middleware.LoggingInterceptor(log),
		middleware.MetricsInterceptor(),
		middleware.NewValidationInterceptor(middleware.DefaultValidationConfig()).Unary(),
	))
	RegisterCollaboratorServer(grpcServer, srv)

	lis := bufconn.Listen(1024 * 1024)
	go func() { _ = grpcServer.Serve(lis) }()
	t.Cleanup(grpcServer.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return &testEnv{client: NewClient(conn), store: store, document: document}
}

func (e *testEnv) createTask(t *testing.T, id string, st models.Status, priority models.Priority) {
	t.Helper()
	now := time.Now().UTC().Add(-time.Hour)
	task := &models.Task{
		ID:           id,
		Title:        "Task " + id,
		Priority:     priority,
		Status:       st,
		AssigneeID:   ada.UID,
		AssigneeName: ada.DisplayName,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if st == models.StatusDone {
		task.CompletedAt = &now
	}
	require.NoError(t, e.store.Tasks().Create(context.Background(), task))
}

func TestServer_SubmitReviewLeaderboardFlow(t *testing.T) {
	env := setupServer(t)
	env.createTask(t, "t1", models.StatusInProgress, models.PriorityCritical)
	ctx := WithActor(context.Background(), ada)

	sub, err := env.client.SubmitDeliverable(ctx, SubmitDeliverableRequest{
		TaskID: "t1",
		Type:   "file",
		File:   &FilePayload{Name: "brief.pdf", MimeType: "application/pdf", Data: []byte("%PDF")},
		Notes:  "ready",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, sub.ID)
	require.NotNil(t, sub.File)
	assert.Equal(t, models.StorageObjectStore, sub.File.StorageBackend)
	assert.Len(t, env.document.Uploads(), 1)

	task, err := env.client.GetTask(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusReview, task.Status)

	subs, err := env.client.ListSubmissions(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, sub.ID, subs[0].ID)

	// collaborators cannot review
	rating := 4.5
	_, err = env.client.ReviewTask(ctx, ReviewTaskRequest{TaskID: "t1", Decision: "approve", Rating: &rating})
	assert.Equal(t, codes.PermissionDenied, status.Code(err))

	reviewed, err := env.client.ReviewTask(WithActor(context.Background(), rita),
		ReviewTaskRequest{TaskID: "t1", Decision: "approve", Comment: "ship it", Rating: &rating})
	require.NoError(t, err)
	assert.Equal(t, models.StatusDone, reviewed.Status)
	require.NotNil(t, reviewed.ReviewRating)
	assert.Equal(t, 4.5, *reviewed.ReviewRating)

	_, err = env.client.SubmitDeliverable(ctx, SubmitDeliverableRequest{TaskID: "t1", Type: "link", Link: "https://example.com"})
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))

	board, err := env.client.GetLeaderboard(ctx, GetLeaderboardRequest{Window: "weekly", UserID: ada.UID})
	require.NoError(t, err)
	assert.Equal(t, "weekly", board.Window)
	require.Len(t, board.Entries, 1)
	assert.Equal(t, ada.UID, board.Entries[0].UserID)
	assert.Equal(t, 5, board.Entries[0].Points)
	assert.Equal(t, 1, board.Entries[0].Rank)
	assert.Equal(t, map[string]int{"weeklyRank": 1, "allTimeRank": 1}, board.UserRanks)
}

func TestServer_BulkPartialFailureIsAResponse(t *testing.T) {
	env := setupServer(t)
	env.createTask(t, "t1", models.StatusToDo, models.PriorityLow)
	env.createTask(t, "t2", models.StatusDone, models.PriorityLow)
	ctx := WithActor(context.Background(), ada)

	resp, err := env.client.BulkChangeTaskStatus(ctx, BulkChangeTaskStatusRequest{
		TaskIDs: []string{"t1", "t2", "missing"},
		Status:  string(models.StatusInProgress),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"t1"}, resp.Succeeded)
	require.Len(t, resp.Failed, 2)
	assert.Equal(t, "missing", resp.Failed[0].TaskID)
	assert.Equal(t, "t2", resp.Failed[1].TaskID)
}

func TestServer_ChangeStatusAndTrackedTime(t *testing.T) {
	env := setupServer(t)
	env.createTask(t, "t1", models.StatusInProgress, models.PriorityLow)
	ctx := WithActor(context.Background(), ada)

	task, err := env.client.SaveTrackedTime(ctx, SaveTrackedTimeRequest{
		TaskID:  "t1",
		Session: TrackingSession{ElapsedSeconds: 30},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(30), task.TimeSpent)

	task, err = env.client.ChangeTaskStatus(ctx, ChangeTaskStatusRequest{
		TaskID:  "t1",
		Status:  string(models.StatusDone),
		Session: &TrackingSession{BaselineSeconds: 30, ElapsedSeconds: 45},
	})
	require.NoError(t, err)
	assert.Equal(t, models.StatusDone, task.Status)
	assert.Equal(t, int64(75), task.TimeSpent)

	_, err = env.client.SaveTrackedTime(ctx, SaveTrackedTimeRequest{TaskID: "t1", Session: TrackingSession{ElapsedSeconds: 500}})
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))

	tasks, err := env.client.ListTasks(ctx, ListTasksRequest{Statuses: []string{"Done"}})
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "t1", tasks[0].ID)
}

func TestServer_ErrorCodes(t *testing.T) {
	env := setupServer(t)
	env.createTask(t, "t1", models.StatusToDo, models.PriorityLow)
	ctx := WithActor(context.Background(), ada)

	tests := []struct {
		name string
		call func() error
		want codes.Code
	}{
		{
			name: "no identity",
			call: func() error { _, err := env.client.GetTask(context.Background(), "t1"); return err },
			want: codes.Unauthenticated,
		},
		{
			name: "unknown task",
			call: func() error { _, err := env.client.GetTask(ctx, "nope"); return err },
			want: codes.NotFound,
		},
		{
			name: "missing required field",
			call: func() error { _, err := env.client.GetTask(ctx, ""); return err },
			want: codes.InvalidArgument,
		},
		{
			name: "unknown status",
			call: func() error {
				_, err := env.client.ChangeTaskStatus(ctx, ChangeTaskStatusRequest{TaskID: "t1", Status: "Archived"})
				return err
			},
			want: codes.InvalidArgument,
		},
		{
			name: "disallowed transition",
			call: func() error {
				_, err := env.client.ChangeTaskStatus(ctx, ChangeTaskStatusRequest{TaskID: "t1", Status: "Done"})
				return err
			},
			want: codes.FailedPrecondition,
		},
		{
			name: "invalid link",
			call: func() error {
				_, err := env.client.SubmitDeliverable(ctx, SubmitDeliverableRequest{TaskID: "t1", Type: "link", Link: "not a url"})
				return err
			},
			want: codes.InvalidArgument,
		},
		{
			name: "not under review",
			call: func() error {
				r := 3.0
				_, err := env.client.ReviewTask(WithActor(context.Background(), rita), ReviewTaskRequest{TaskID: "t1", Decision: "approve", Rating: &r})
				return err
			},
			want: codes.FailedPrecondition,
		},
		{
			name: "unknown window",
			call: func() error { _, err := env.client.GetLeaderboard(ctx, GetLeaderboardRequest{Window: "hourly"}); return err },
			want: codes.InvalidArgument,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call()
			require.Error(t, err)
			assert.Equal(t, tt.want, status.Code(err), err.Error())
		})
	}
}

func TestToStatus(t *testing.T) {
	tests := []struct {
		err  error
		want codes.Code
	}{
		{fmt.Errorf("x: %w", models.ErrTaskNotFound), codes.NotFound},
		{models.ErrInvalidRating, codes.InvalidArgument},
		{&models.UploadFailedError{Backend: models.StorageCloudinary, FileName: "a.png", Err: errors.New("503")}, codes.Unavailable},
		{&models.PersistenceError{Op: "save task", ID: "t1", Err: errors.New("conn reset")}, codes.Internal},
		{models.ErrTrackingClosed, codes.FailedPrecondition},
		{context.DeadlineExceeded, codes.DeadlineExceeded},
		{status.Error(codes.Aborted, "kept"), codes.Aborted},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, status.Code(toStatus(tt.err)), tt.err.Error())
	}
	assert.NoError(t, toStatus(nil))

	// driver details stay out of client messages
	st, _ := status.FromError(toStatus(&models.PersistenceError{Op: "save task", Err: errors.New("password=hunter2")}))
	assert.NotContains(t, st.Message(), "hunter2")
}
