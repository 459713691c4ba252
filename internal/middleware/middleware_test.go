package middleware

import (
	"context"
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/gurkanbulca/collabdesk/internal/models"
	"github.com/gurkanbulca/collabdesk/pkg/logger"
)

const testMethod = "/collab.v1.CollaboratorService/SubmitDeliverable"

func echoActor(ctx context.Context, req interface{}) (interface{}, error) {
	actor, _ := ActorFromContext(ctx)
	return actor, nil
}

func TestIdentityInterceptor(t *testing.T) {
	interceptor := NewIdentityInterceptor().Unary()

	tests := []struct {
		name     string
		md       metadata.MD
		method   string
		wantCode codes.Code
		want     models.Actor
	}{
		{
			name:   "full identity",
			md:     metadata.Pairs(MetadataUserID, "u1", MetadataUserName, "Ada", MetadataUserEmail, "ada@example.com", MetadataUserRole, "Reviewer"),
			method: testMethod,
			want:   models.Actor{UID: "u1", DisplayName: "Ada", Email: "ada@example.com", Role: models.RoleReviewer},
		},
		{
			name:   "role defaults to collaborator",
			md:     metadata.Pairs(MetadataUserID, "u2"),
			method: testMethod,
			want:   models.Actor{UID: "u2", Role: models.RoleCollaborator},
		},
		{
			name:     "missing uid",
			md:       metadata.Pairs(MetadataUserName, "Ada"),
			method:   testMethod,
			wantCode: codes.Unauthenticated,
		},
		{
			name:     "no metadata",
			method:   testMethod,
			wantCode: codes.Unauthenticated,
		},
		{
			name:     "unknown role",
			md:       metadata.Pairs(MetadataUserID, "u1", MetadataUserRole, "admin"),
			method:   testMethod,
			wantCode: codes.Unauthenticated,
		},
		{
			name:   "health check is public",
			method: "/grpc.health.v1.Health/Check",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			if tt.md != nil {
				ctx = metadata.NewIncomingContext(ctx, tt.md)
			}

			resp, err := interceptor(ctx, nil, &grpc.UnaryServerInfo{FullMethod: tt.method}, echoActor)
			if tt.wantCode != codes.OK {
				require.Error(t, err)
				assert.Equal(t, tt.wantCode, status.Code(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, resp)
		})
	}
}

func mustStruct(t *testing.T, m map[string]interface{}) *structpb.Struct {
	t.Helper()
	s, err := structpb.NewStruct(m)
	require.NoError(t, err)
	return s
}

func TestValidationInterceptor(t *testing.T) {
	cfg := &ValidationConfig{MaxNotesLength: 10, MaxCommentLength: 5, MaxLinkLength: 30, MaxBulkSize: 2, MaxFileBytes: 8}
	interceptor := NewValidationInterceptor(cfg).Unary()
	ok := func(ctx context.Context, req interface{}) (interface{}, error) { return "ok", nil }

	tests := []struct {
		name    string
		method  string
		req     map[string]interface{}
		wantErr string
	}{
		{
			name:   "valid link submission",
			method: "SubmitDeliverable",
			req:    map[string]interface{}{"taskId": "t1", "type": "link", "link": "https://example.com", "notes": "done"},
		},
		{
			name:    "missing task id",
			method:  "SubmitDeliverable",
			req:     map[string]interface{}{"type": "link"},
			wantErr: "taskId is required",
		},
		{
			name:    "notes too long",
			method:  "SubmitDeliverable",
			req:     map[string]interface{}{"taskId": "t1", "type": "link", "notes": strings.Repeat("n", 11)},
			wantErr: "notes too long",
		},
		{
			name:    "link too long",
			method:  "SubmitDeliverable",
			req:     map[string]interface{}{"taskId": "t1", "type": "link", "link": "https://example.com/" + strings.Repeat("x", 20)},
			wantErr: "link too long",
		},
		{
			name:   "file within limit",
			method: "SubmitDeliverable",
			req: map[string]interface{}{"taskId": "t1", "type": "file", "file": map[string]interface{}{
				"name": "a.pdf", "data": base64.StdEncoding.EncodeToString([]byte("12345678")),
			}},
		},
		{
			name:   "file too large",
			method: "SubmitDeliverable",
			req: map[string]interface{}{"taskId": "t1", "type": "file", "file": map[string]interface{}{
				"name": "a.pdf", "data": base64.StdEncoding.EncodeToString([]byte("123456789")),
			}},
			wantErr: "file too large",
		},
		{
			name:    "comment too long",
			method:  "ReviewTask",
			req:     map[string]interface{}{"taskId": "t1", "decision": "approve", "comment": "too long"},
			wantErr: "comment too long",
		},
		{
			name:    "bulk too large",
			method:  "BulkChangeTaskStatus",
			req:     map[string]interface{}{"taskIds": []interface{}{"a", "b", "c"}, "status": "Done"},
			wantErr: "too many task ids",
		},
		{
			name:    "bulk empty",
			method:  "BulkChangeTaskStatus",
			req:     map[string]interface{}{"taskIds": []interface{}{}, "status": "Done"},
			wantErr: "taskIds is required",
		},
		{
			name:   "leaderboard has no required fields",
			method: "GetLeaderboard",
			req:    map[string]interface{}{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := &grpc.UnaryServerInfo{FullMethod: "/collab.v1.CollaboratorService/" + tt.method}
			resp, err := interceptor(context.Background(), mustStruct(t, tt.req), info, ok)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Equal(t, codes.InvalidArgument, status.Code(err))
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "ok", resp)
		})
	}
}

func TestObservabilityInterceptors(t *testing.T) {
	info := &grpc.UnaryServerInfo{FullMethod: testMethod}
	failing := func(ctx context.Context, req interface{}) (interface{}, error) {
		return nil, status.Error(codes.FailedPrecondition, "task is done")
	}

	ctx := ContextWithActor(context.Background(), models.Actor{UID: "u1", Role: models.RoleCollaborator})

	_, err := LoggingInterceptor(logger.NewNop())(ctx, nil, info, failing)
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))

	resp, err := MetricsInterceptor()(ctx, nil, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp)
}
