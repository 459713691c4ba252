// internal/middleware/validation.go
package middleware

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// ValidationConfig holds validation configuration
type ValidationConfig struct {
	MaxNotesLength   int
	MaxCommentLength int
	MaxLinkLength    int
	MaxBulkSize      int
	MaxFileBytes     int
}

// DefaultValidationConfig returns default validation configuration
func DefaultValidationConfig() *ValidationConfig {
	return &ValidationConfig{
		MaxNotesLength:   5000,
		MaxCommentLength: 5000,
		MaxLinkLength:    2048,
		MaxBulkSize:      100,
		MaxFileBytes:     50 << 20,
	}
}

// requiredFields lists, per RPC name, the payload fields that must be set
var requiredFields = map[string][]string{
	"GetTask":              {"taskId"},
	"ChangeTaskStatus":     {"taskId", "status"},
	"BulkChangeTaskStatus": {"taskIds", "status"},
	"SaveTrackedTime":      {"taskId"},
	"SubmitDeliverable":    {"taskId", "type"},
	"ListSubmissions":      {"taskId"},
	"ReviewTask":           {"taskId", "decision"},
}

// ValidationInterceptor rejects oversized or incomplete Struct payloads
// before they reach a handler
type ValidationInterceptor struct {
	config *ValidationConfig
}

// NewValidationInterceptor creates a new validation interceptor
func NewValidationInterceptor(config *ValidationConfig) *ValidationInterceptor {
	if config == nil {
		config = DefaultValidationConfig()
	}
	return &ValidationInterceptor{config: config}
}

// Unary returns a unary server interceptor for request validation
func (v *ValidationInterceptor) Unary() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		if s, ok := req.(*structpb.Struct); ok {
			if err := v.validate(methodName(info.FullMethod), s); err != nil {
				return nil, err
			}
		}
		return handler(ctx, req)
	}
}

func methodName(fullMethod string) string {
	if i := strings.LastIndex(fullMethod, "/"); i >= 0 {
		return fullMethod[i+1:]
	}
	return fullMethod
}

func (v *ValidationInterceptor) validate(method string, req *structpb.Struct) error {
	var errors []string
	fields := req.GetFields()

	for _, name := range requiredFields[method] {
		if isEmpty(fields[name]) {
			errors = append(errors, fmt.Sprintf("%s is required", name))
		}
	}

	if err := maxLength(fields["notes"], "notes", v.config.MaxNotesLength); err != "" {
		errors = append(errors, err)
	}
	if err := maxLength(fields["comment"], "comment", v.config.MaxCommentLength); err != "" {
		errors = append(errors, err)
	}
	if err := maxLength(fields["link"], "link", v.config.MaxLinkLength); err != "" {
		errors = append(errors, err)
	}

	if ids := fields["taskIds"].GetListValue(); ids != nil && len(ids.GetValues()) > v.config.MaxBulkSize {
		errors = append(errors, fmt.Sprintf("too many task ids (max %d)", v.config.MaxBulkSize))
	}

	if file := fields["file"].GetStructValue(); file != nil {
		data := file.GetFields()["data"].GetStringValue()
		if decodedLen(data) > v.config.MaxFileBytes {
			errors = append(errors, fmt.Sprintf("file too large (max %d bytes)", v.config.MaxFileBytes))
		}
	}

	if len(errors) > 0 {
		return status.Error(codes.InvalidArgument, strings.Join(errors, "; "))
	}
	return nil
}

func isEmpty(v *structpb.Value) bool {
	if v == nil {
		return true
	}
	switch k := v.GetKind().(type) {
	case *structpb.Value_NullValue:
		return true
	case *structpb.Value_StringValue:
		return strings.TrimSpace(k.StringValue) == ""
	case *structpb.Value_ListValue:
		return len(k.ListValue.GetValues()) == 0
	}
	return false
}

func maxLength(v *structpb.Value, field string, max int) string {
	if v == nil || max <= 0 {
		return ""
	}
	if n := utf8.RuneCountInString(v.GetStringValue()); n > max {
		return fmt.Sprintf("%s too long (max %d characters)", field, max)
	}
	return ""
}

// decodedLen is the byte length of a standard base64 payload
func decodedLen(encoded string) int {
	trimmed := strings.TrimRight(encoded, "=")
	return len(trimmed) * 6 / 8
}
