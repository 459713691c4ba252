package grpcapi

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/gurkanbulca/collabdesk/internal/middleware"
	"github.com/gurkanbulca/collabdesk/internal/models"
)

// Client is a typed client for the collaborator service
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps a client connection
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// WithActor attaches the identity metadata the server expects
func WithActor(ctx context.Context, actor models.Actor) context.Context {
	pairs := []string{middleware.MetadataUserID, actor.UID}
	if actor.DisplayName != "" {
		pairs = append(pairs, middleware.MetadataUserName, actor.DisplayName)
	}
	if actor.Email != "" {
		pairs = append(pairs, middleware.MetadataUserEmail, actor.Email)
	}
	if actor.Role != "" {
		pairs = append(pairs, middleware.MetadataUserRole, string(actor.Role))
	}
	return metadata.AppendToOutgoingContext(ctx, pairs...)
}

func (c *Client) call(ctx context.Context, method string, req, resp interface{}, opts ...grpc.CallOption) error {
	in, err := encode(req)
	if err != nil {
		return err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, FullMethod(method), in, out, opts...); err != nil {
		return err
	}
	return decode(out, resp)
}

// GetTask fetches one task
func (c *Client) GetTask(ctx context.Context, taskID string, opts ...grpc.CallOption) (*models.Task, error) {
	var task models.Task
	if err := c.call(ctx, MethodGetTask, GetTaskRequest{TaskID: taskID}, &task, opts...); err != nil {
		return nil, err
	}
	return &task, nil
}

// ListTasks lists tasks
func (c *Client) ListTasks(ctx context.Context, req ListTasksRequest, opts ...grpc.CallOption) ([]*models.Task, error) {
	var resp ListTasksResponse
	if err := c.call(ctx, MethodListTasks, req, &resp, opts...); err != nil {
		return nil, err
	}
	return resp.Tasks, nil
}

// ChangeTaskStatus moves one task
func (c *Client) ChangeTaskStatus(ctx context.Context, req ChangeTaskStatusRequest, opts ...grpc.CallOption) (*models.Task, error) {
	var task models.Task
	if err := c.call(ctx, MethodChangeTaskStatus, req, &task, opts...); err != nil {
		return nil, err
	}
	return &task, nil
}

// BulkChangeTaskStatus moves many tasks
func (c *Client) BulkChangeTaskStatus(ctx context.Context, req BulkChangeTaskStatusRequest, opts ...grpc.CallOption) (*BulkChangeTaskStatusResponse, error) {
	var resp BulkChangeTaskStatusResponse
	if err := c.call(ctx, MethodBulkChangeTaskStatus, req, &resp, opts...); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SaveTrackedTime persists a tracking session
func (c *Client) SaveTrackedTime(ctx context.Context, req SaveTrackedTimeRequest, opts ...grpc.CallOption) (*models.Task, error) {
	var task models.Task
	if err := c.call(ctx, MethodSaveTrackedTime, req, &task, opts...); err != nil {
		return nil, err
	}
	return &task, nil
}

// SubmitDeliverable submits a file or link for a task
func (c *Client) SubmitDeliverable(ctx context.Context, req SubmitDeliverableRequest, opts ...grpc.CallOption) (*models.Submission, error) {
	var sub models.Submission
	if err := c.call(ctx, MethodSubmitDeliverable, req, &sub, opts...); err != nil {
		return nil, err
	}
	return &sub, nil
}

// ListSubmissions lists a task's submissions newest first
func (c *Client) ListSubmissions(ctx context.Context, taskID string, opts ...grpc.CallOption) ([]*models.Submission, error) {
	var resp ListSubmissionsResponse
	if err := c.call(ctx, MethodListSubmissions, ListSubmissionsRequest{TaskID: taskID}, &resp, opts...); err != nil {
		return nil, err
	}
	return resp.Submissions, nil
}

// ReviewTask approves a task or requests changes
func (c *Client) ReviewTask(ctx context.Context, req ReviewTaskRequest, opts ...grpc.CallOption) (*models.Task, error) {
	var task models.Task
	if err := c.call(ctx, MethodReviewTask, req, &task, opts...); err != nil {
		return nil, err
	}
	return &task, nil
}

// GetLeaderboard fetches the standings for a window
func (c *Client) GetLeaderboard(ctx context.Context, req GetLeaderboardRequest, opts ...grpc.CallOption) (*GetLeaderboardResponse, error) {
	var resp GetLeaderboardResponse
	if err := c.call(ctx, MethodGetLeaderboard, req, &resp, opts...); err != nil {
		return nil, err
	}
	return &resp, nil
}
