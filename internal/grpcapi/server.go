package grpcapi

import (
	"context"

	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/gurkanbulca/collabdesk/internal/attachment"
	"github.com/gurkanbulca/collabdesk/internal/middleware"
	"github.com/gurkanbulca/collabdesk/internal/models"
	"github.com/gurkanbulca/collabdesk/internal/ranking"
	"github.com/gurkanbulca/collabdesk/internal/repository"
	"github.com/gurkanbulca/collabdesk/internal/review"
	"github.com/gurkanbulca/collabdesk/internal/service"
	"github.com/gurkanbulca/collabdesk/internal/tracking"
	"github.com/gurkanbulca/collabdesk/pkg/logger"
)

// DefaultLeaderboardWindow is served when a request names no window
const DefaultLeaderboardWindow = ranking.WindowWeekly

// Server implements CollaboratorServer on top of the services
type Server struct {
	tasks       *service.TaskService
	submissions *service.SubmissionService
	reviews     *service.ReviewService
	leaderboard *service.LeaderboardService
	log         *logger.Logger
}

// NewServer creates the gRPC facade
func NewServer(
	tasks *service.TaskService,
	submissions *service.SubmissionService,
	reviews *service.ReviewService,
	leaderboard *service.LeaderboardService,
	log *logger.Logger,
) *Server {
	if log == nil {
		log = logger.NewNop()
	}
	return &Server{
		tasks:       tasks,
		submissions: submissions,
		reviews:     reviews,
		leaderboard: leaderboard,
		log:         log.Named("grpcapi"),
	}
}

var _ CollaboratorServer = (*Server)(nil)

func actorFrom(ctx context.Context) (models.Actor, error) {
	actor, ok := middleware.ActorFromContext(ctx)
	if !ok {
		return models.Actor{}, status.Error(codes.Unauthenticated, "missing caller identity")
	}
	return actor, nil
}

// GetTask returns one task
func (s *Server) GetTask(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req GetTaskRequest
	if err := decode(in, &req); err != nil {
		return nil, invalidArgument(err)
	}
	task, err := s.tasks.GetTask(ctx, req.TaskID)
	if err != nil {
		return nil, toStatus(err)
	}
	return encode(task)
}

// ListTasks lists tasks by filter
func (s *Server) ListTasks(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req ListTasksRequest
	if err := decode(in, &req); err != nil {
		return nil, invalidArgument(err)
	}

	filter := repository.ListFilter{
		AssigneeID:      req.AssigneeID,
		ProjectID:       req.ProjectID,
		CollaborationID: req.CollaborationID,
		Label:           req.Label,
		CompletedFrom:   req.CompletedFrom,
		Limit:           req.Limit,
		Offset:          req.Offset,
	}
	for _, raw := range req.Statuses {
		st, err := models.ParseStatus(raw)
		if err != nil {
			return nil, invalidArgument(err)
		}
		filter.Statuses = append(filter.Statuses, st)
	}

	tasks, err := s.tasks.ListTasks(ctx, filter)
	if err != nil {
		return nil, toStatus(err)
	}
	if tasks == nil {
		tasks = []*models.Task{}
	}
	return encode(ListTasksResponse{Tasks: tasks})
}

// ChangeTaskStatus moves one task
func (s *Server) ChangeTaskStatus(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	actor, err := actorFrom(ctx)
	if err != nil {
		return nil, err
	}
	var req ChangeTaskStatusRequest
	if err := decode(in, &req); err != nil {
		return nil, invalidArgument(err)
	}
	to, err := models.ParseStatus(req.Status)
	if err != nil {
		return nil, invalidArgument(err)
	}

	var session *tracking.State
	if req.Session != nil {
		st := req.Session.state(req.TaskID)
		session = &st
	}
	task, err := s.tasks.ChangeStatus(ctx, actor, req.TaskID, to, session)
	if err != nil {
		return nil, toStatus(err)
	}
	return encode(task)
}

// BulkChangeTaskStatus moves many tasks. A partial failure is a normal
// response listing the failed ids.
func (s *Server) BulkChangeTaskStatus(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	actor, err := actorFrom(ctx)
	if err != nil {
		return nil, err
	}
	var req BulkChangeTaskStatusRequest
	if err := decode(in, &req); err != nil {
		return nil, invalidArgument(err)
	}
	to, err := models.ParseStatus(req.Status)
	if err != nil {
		return nil, invalidArgument(err)
	}

	result, err := s.tasks.BulkChangeStatus(ctx, actor, req.TaskIDs, to)
	if err != nil {
		if _, partial := service.IsPartialFailure(err); !partial {
			return nil, toStatus(err)
		}
	}

	resp := BulkChangeTaskStatusResponse{
		Succeeded: result.Succeeded,
		Failed:    []FailedTask{},
	}
	if resp.Succeeded == nil {
		resp.Succeeded = []string{}
	}
	if pbf, ok := service.IsPartialFailure(err); ok {
		for _, id := range pbf.FailedIDs() {
			resp.Failed = append(resp.Failed, FailedTask{TaskID: id, Error: pbf.Failed[id].Error()})
		}
	}
	return encode(resp)
}

// SaveTrackedTime persists a tracking session
func (s *Server) SaveTrackedTime(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	actor, err := actorFrom(ctx)
	if err != nil {
		return nil, err
	}
	var req SaveTrackedTimeRequest
	if err := decode(in, &req); err != nil {
		return nil, invalidArgument(err)
	}

	task, err := s.tasks.SaveTrackedTime(ctx, actor, req.TaskID, req.Session.state(req.TaskID))
	if err != nil {
		return nil, toStatus(err)
	}
	return encode(task)
}

// SubmitDeliverable stores a file or link submission and moves the task to Review
func (s *Server) SubmitDeliverable(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	actor, err := actorFrom(ctx)
	if err != nil {
		return nil, err
	}
	var req SubmitDeliverableRequest
	if err := decode(in, &req); err != nil {
		return nil, invalidArgument(err)
	}

	input := service.SubmitInput{
		TaskID: req.TaskID,
		Type:   models.SubmissionType(req.Type),
		Link:   req.Link,
		Notes:  req.Notes,
	}
	if req.File != nil {
		input.File = &attachment.File{
			Name:     req.File.Name,
			MimeType: req.File.MimeType,
			ByteSize: int64(len(req.File.Data)),
			Bytes:    req.File.Data,
		}
	}

	sub, err := s.submissions.Submit(ctx, actor, input)
	if err != nil {
		return nil, toStatus(err)
	}
	return encode(sub)
}

// ListSubmissions returns a task's submissions newest first
func (s *Server) ListSubmissions(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req ListSubmissionsRequest
	if err := decode(in, &req); err != nil {
		return nil, invalidArgument(err)
	}
	subs, err := s.submissions.ListSubmissions(ctx, req.TaskID)
	if err != nil {
		return nil, toStatus(err)
	}
	if subs == nil {
		subs = []*models.Submission{}
	}
	return encode(ListSubmissionsResponse{Submissions: subs})
}

// ReviewTask applies a reviewer decision
func (s *Server) ReviewTask(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	actor, err := actorFrom(ctx)
	if err != nil {
		return nil, err
	}
	var req ReviewTaskRequest
	if err := decode(in, &req); err != nil {
		return nil, invalidArgument(err)
	}
	decision, err := review.ParseDecision(req.Decision)
	if err != nil {
		return nil, invalidArgument(err)
	}

	task, err := s.reviews.Review(ctx, actor, req.TaskID, decision, req.Comment, req.Rating)
	if err != nil {
		return nil, toStatus(err)
	}
	return encode(task)
}

// GetLeaderboard returns the standings for a window
func (s *Server) GetLeaderboard(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req GetLeaderboardRequest
	if err := decode(in, &req); err != nil {
		return nil, invalidArgument(err)
	}

	window := DefaultLeaderboardWindow
	if req.Window != "" {
		w, err := ranking.ParseWindow(req.Window)
		if err != nil {
			return nil, invalidArgument(err)
		}
		window = w
	}

	entries, err := s.leaderboard.Leaderboard(ctx, window)
	if err != nil {
		return nil, toStatus(err)
	}
	if entries == nil {
		entries = []models.LeaderboardEntry{}
	}
	resp := GetLeaderboardResponse{Window: string(window), Entries: entries}

	if req.UserID != "" {
		ranks, err := s.leaderboard.UserRanks(ctx, req.UserID)
		if err != nil {
			s.log.Warn("failed to load user ranks", zap.String("user_id", req.UserID), zap.Error(err))
		} else {
			resp.UserRanks = ranks
		}
	}
	return encode(resp)
}
