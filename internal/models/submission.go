package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// SubmissionType tells which payload a submission carries
type SubmissionType string

// Submission type constants
const (
	SubmissionTypeFile SubmissionType = "file"
	SubmissionTypeLink SubmissionType = "link"
)

// IsValid reports whether t is a known submission type
func (t SubmissionType) IsValid() bool {
	return t == SubmissionTypeFile || t == SubmissionTypeLink
}

// SubmissionStatus is the reviewer-facing state of a submission
type SubmissionStatus string

// Submission status constants
const (
	SubmissionSubmitted         SubmissionStatus = "submitted"
	SubmissionApproved          SubmissionStatus = "approved"
	SubmissionRejected          SubmissionStatus = "rejected"
	SubmissionRevisionRequested SubmissionStatus = "revision_requested"
)

// IsValid reports whether s is a known submission status
func (s SubmissionStatus) IsValid() bool {
	switch s {
	case SubmissionSubmitted, SubmissionApproved, SubmissionRejected, SubmissionRevisionRequested:
		return true
	}
	return false
}

// StorageBackend names the binary store holding an attachment
type StorageBackend string

// Storage backend constants
const (
	StorageCloudinary  StorageBackend = "cloudinary"
	StorageObjectStore StorageBackend = "objectStore"
)

// AttachmentReference points at an uploaded file
type AttachmentReference struct {
	Name           string         `bson:"name" json:"name"`
	URL            string         `bson:"url" json:"url"`
	MimeType       string         `bson:"mimeType" json:"mimeType"`
	ByteSize       int64          `bson:"byteSize" json:"byteSize"`
	StorageBackend StorageBackend `bson:"storageType" json:"storageType"`
	PublicID       string         `bson:"publicId,omitempty" json:"publicId,omitempty"`
	Format         string         `bson:"format,omitempty" json:"format,omitempty"`
	Path           string         `bson:"path,omitempty" json:"path,omitempty"`
}

// Value implements the driver.Valuer interface for AttachmentReference
func (a AttachmentReference) Value() (driver.Value, error) {
	b, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface for AttachmentReference
func (a *AttachmentReference) Scan(value interface{}) error {
	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, a)
	case string:
		return json.Unmarshal([]byte(v), a)
	default:
		return fmt.Errorf("failed to unmarshal AttachmentReference value: %v", value)
	}
}

// Submission is a collaborator's delivered artifact for one task
type Submission struct {
	ID              string               `db:"id" bson:"_id" json:"id"`
	TaskID          string               `db:"task_id" bson:"taskId" json:"taskId"`
	ProjectID       string               `db:"project_id" bson:"projectId,omitempty" json:"projectId,omitempty"`
	CollaborationID string               `db:"collaboration_id" bson:"collaborationId,omitempty" json:"collaborationId,omitempty"`
	UserID          string               `db:"user_id" bson:"userId" json:"userId"`
	UserName        string               `db:"user_name" bson:"userName" json:"userName"`
	Type            SubmissionType       `db:"type" bson:"type" json:"type"`
	File            *AttachmentReference `db:"file" bson:"file,omitempty" json:"file,omitempty"`
	Link            string               `db:"link" bson:"link,omitempty" json:"link,omitempty"`
	Notes           string               `db:"notes" bson:"notes" json:"notes"`
	SubmittedAt     time.Time            `db:"submitted_at" bson:"submittedAt" json:"submittedAt"`
	Status          SubmissionStatus     `db:"status" bson:"status" json:"status"`
	ReviewedAt      *time.Time           `db:"reviewed_at" bson:"reviewedAt,omitempty" json:"reviewedAt,omitempty"`
	ReviewedByName  *string              `db:"reviewed_by_name" bson:"reviewedByName,omitempty" json:"reviewedByName,omitempty"`
	Feedback        *string              `db:"feedback" bson:"feedback,omitempty" json:"feedback,omitempty"`
	Rating          *float64             `db:"rating" bson:"rating,omitempty" json:"rating,omitempty"`
}

// Validate enforces that the payload matches the submission type
func (s *Submission) Validate() error {
	switch s.Type {
	case SubmissionTypeFile:
		if s.File == nil || s.File.URL == "" || s.Link != "" {
			return fmt.Errorf("%w: file submission needs exactly a file reference", ErrInvalidSubmission)
		}
	case SubmissionTypeLink:
		if strings.TrimSpace(s.Link) == "" || s.File != nil {
			return fmt.Errorf("%w: link submission needs exactly a link", ErrInvalidSubmission)
		}
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidSubmission, s.Type)
	}
	if s.ProjectID != "" && s.CollaborationID != "" {
		return fmt.Errorf("%w: project and collaboration are mutually exclusive", ErrInvalidSubmission)
	}
	if !s.Status.IsValid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidSubmission, s.Status)
	}
	return nil
}
