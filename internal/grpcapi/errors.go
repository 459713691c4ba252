package grpcapi

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/gurkanbulca/collabdesk/internal/models"
)

// toStatus maps service errors onto gRPC status codes
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	code := codes.Internal
	switch {
	case errors.Is(err, models.ErrTaskNotFound), errors.Is(err, models.ErrSubmissionNotFound):
		code = codes.NotFound
	case errors.Is(err, models.ErrInvalidSubmission), errors.Is(err, models.ErrInvalidRating):
		code = codes.InvalidArgument
	case errors.Is(err, models.ErrTaskNotSubmittable),
		errors.Is(err, models.ErrNotUnderReview),
		errors.Is(err, models.ErrInvalidTransition),
		errors.Is(err, models.ErrTrackingClosed):
		code = codes.FailedPrecondition
	case errors.Is(err, models.ErrNotPermitted):
		code = codes.PermissionDenied
	case errors.Is(err, models.ErrUploadFailed):
		code = codes.Unavailable
	case errors.Is(err, context.Canceled):
		code = codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		code = codes.DeadlineExceeded
	case errors.Is(err, models.ErrPersistenceFailed):
		return status.Error(codes.Internal, "failed to access task store")
	}
	return status.Error(code, err.Error())
}

func invalidArgument(err error) error {
	return status.Error(codes.InvalidArgument, err.Error())
}
