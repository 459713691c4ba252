package models

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Common errors
var (
	ErrUploadFailed       = errors.New("upload failed")
	ErrInvalidSubmission  = errors.New("invalid submission")
	ErrTaskNotSubmittable = errors.New("task is not submittable")
	ErrNotUnderReview     = errors.New("task is not under review")
	ErrInvalidRating      = errors.New("invalid rating")
	ErrPersistenceFailed  = errors.New("persistence failed")
	ErrTaskNotFound       = errors.New("task not found")
	ErrSubmissionNotFound = errors.New("submission not found")
	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrTrackingClosed     = errors.New("time tracking is closed for this task")
	ErrNotPermitted       = errors.New("actor is not permitted")
)

// UploadFailedError carries the backend and file of a failed upload
type UploadFailedError struct {
	Backend  StorageBackend
	FileName string
	Err      error
}

func (e *UploadFailedError) Error() string {
	return fmt.Sprintf("upload of %q to %s failed: %v", e.FileName, e.Backend, e.Err)
}

func (e *UploadFailedError) Unwrap() error { return e.Err }

// Is lets errors.Is match ErrUploadFailed
func (e *UploadFailedError) Is(target error) bool { return target == ErrUploadFailed }

// PersistenceError wraps a document store write or read failure
type PersistenceError struct {
	Op  string
	ID  string
	Err error
}

func (e *PersistenceError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.ID, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Is lets errors.Is match ErrPersistenceFailed
func (e *PersistenceError) Is(target error) bool { return target == ErrPersistenceFailed }

// PartialBulkFailure reports the ids a bulk operation could not apply
type PartialBulkFailure struct {
	Succeeded []string
	Failed    map[string]error
}

// FailedIDs returns the failed ids in a stable order
func (e *PartialBulkFailure) FailedIDs() []string {
	ids := make([]string, 0, len(e.Failed))
	for id := range e.Failed {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (e *PartialBulkFailure) Error() string {
	ids := e.FailedIDs()
	return fmt.Sprintf("bulk operation failed for %d of %d tasks: %s",
		len(ids), len(ids)+len(e.Succeeded), strings.Join(ids, ", "))
}
