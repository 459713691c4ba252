package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// Status is the lifecycle state of a task
type Status string

// Task status constants
const (
	StatusBacklog       Status = "Backlog"
	StatusToDo          Status = "To Do"
	StatusInProgress    Status = "In Progress"
	StatusReview        Status = "Review"
	StatusWaitingReview Status = "Waiting Review"
	StatusDone          Status = "Done"
	StatusBlocked       Status = "Blocked"
)

// AllStatuses lists every status in board order
var AllStatuses = []Status{
	StatusBacklog,
	StatusToDo,
	StatusInProgress,
	StatusReview,
	StatusWaitingReview,
	StatusDone,
	StatusBlocked,
}

// IsValid reports whether s is a known status
func (s Status) IsValid() bool {
	switch s {
	case StatusBacklog, StatusToDo, StatusInProgress, StatusReview,
		StatusWaitingReview, StatusDone, StatusBlocked:
		return true
	}
	return false
}

// IsUnderReview treats Review and Waiting Review as the same lifecycle point
func (s Status) IsUnderReview() bool {
	return s == StatusReview || s == StatusWaitingReview
}

// ParseStatus converts a string into a Status
func ParseStatus(value string) (Status, error) {
	s := Status(value)
	if !s.IsValid() {
		return "", fmt.Errorf("unknown task status: %q", value)
	}
	return s, nil
}

// Priority is the urgency of a task
type Priority string

// Priority constants
const (
	PriorityUnspecified Priority = ""
	PriorityLow         Priority = "Low"
	PriorityMedium      Priority = "Medium"
	PriorityHigh        Priority = "High"
	PriorityCritical    Priority = "Critical"
)

// IsValid reports whether p is a known priority. The empty priority is valid.
func (p Priority) IsValid() bool {
	switch p {
	case PriorityUnspecified, PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

// ParsePriority converts a string into a Priority
func ParsePriority(value string) (Priority, error) {
	p := Priority(value)
	if !p.IsValid() {
		return "", fmt.Errorf("unknown task priority: %q", value)
	}
	return p, nil
}

// ReviewStatus is the outcome recorded by the last review
type ReviewStatus string

// Review status constants
const (
	ReviewStatusNone             ReviewStatus = ""
	ReviewStatusPending          ReviewStatus = "Pending"
	ReviewStatusApproved         ReviewStatus = "Approved"
	ReviewStatusRejected         ReviewStatus = "Rejected"
	ReviewStatusChangesRequested ReviewStatus = "Changes Requested"
)

// IsValid reports whether r is a known review status
func (r ReviewStatus) IsValid() bool {
	switch r {
	case ReviewStatusNone, ReviewStatusPending, ReviewStatusApproved,
		ReviewStatusRejected, ReviewStatusChangesRequested:
		return true
	}
	return false
}

// StringSet is a set of labels stored as a sorted JSON array
type StringSet []string

// NewStringSet returns a sorted, de-duplicated set
func NewStringSet(values ...string) StringSet {
	seen := make(map[string]struct{}, len(values))
	out := make(StringSet, 0, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// Contains reports set membership
func (s StringSet) Contains(value string) bool {
	for _, v := range s {
		if v == value {
			return true
		}
	}
	return false
}

// Value implements the driver.Valuer interface for StringSet
func (s StringSet) Value() (driver.Value, error) {
	if len(s) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal([]string(s))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface for StringSet
func (s *StringSet) Scan(value interface{}) error {
	var raw []byte
	switch v := value.(type) {
	case nil:
		*s = StringSet{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("failed to unmarshal StringSet value: %v", value)
	}
	var values []string
	if err := json.Unmarshal(raw, &values); err != nil {
		return err
	}
	*s = NewStringSet(values...)
	return nil
}

// Task is a unit of work assigned to a collaborator
type Task struct {
	ID              string       `db:"id" bson:"_id" json:"id"`
	Title           string       `db:"title" bson:"title" json:"title"`
	Description     string       `db:"description" bson:"description" json:"description"`
	Priority        Priority     `db:"priority" bson:"priority" json:"priority"`
	Status          Status       `db:"status" bson:"status" json:"status"`
	DueDate         *time.Time   `db:"due_date" bson:"dueDate,omitempty" json:"dueDate,omitempty"`
	AssigneeID      string       `db:"assignee_id" bson:"assigneeId" json:"assigneeId"`
	AssigneeName    string       `db:"assignee_name" bson:"assigneeName" json:"assigneeName"`
	ProjectID       string       `db:"project_id" bson:"projectId,omitempty" json:"projectId,omitempty"`
	CollaborationID string       `db:"collaboration_id" bson:"collaborationId,omitempty" json:"collaborationId,omitempty"`
	Labels          StringSet    `db:"labels" bson:"labels" json:"labels"`
	TimeSpent       int64        `db:"time_spent" bson:"timeSpent" json:"timeSpent"`
	ReviewStatus    ReviewStatus `db:"review_status" bson:"reviewStatus,omitempty" json:"reviewStatus,omitempty"`
	ReviewComment   string       `db:"review_comment" bson:"reviewComment,omitempty" json:"reviewComment,omitempty"`
	ReviewRating    *float64     `db:"review_rating" bson:"reviewRating,omitempty" json:"reviewRating,omitempty"`
	ReviewedAt      *time.Time   `db:"reviewed_at" bson:"reviewedAt,omitempty" json:"reviewedAt,omitempty"`
	CompletedAt     *time.Time   `db:"completed_at" bson:"completedAt,omitempty" json:"completedAt,omitempty"`
	CreatedAt       time.Time    `db:"created_at" bson:"createdAt" json:"createdAt"`
	UpdatedAt       time.Time    `db:"updated_at" bson:"updatedAt" json:"updatedAt"`
}

// Validate checks the fields a stored task must carry
func (t *Task) Validate() error {
	if t.ID == "" || t.Title == "" {
		return fmt.Errorf("task id and title are required")
	}
	if !t.Status.IsValid() {
		return fmt.Errorf("unknown task status: %q", t.Status)
	}
	if !t.Priority.IsValid() {
		return fmt.Errorf("unknown task priority: %q", t.Priority)
	}
	if !t.ReviewStatus.IsValid() {
		return fmt.Errorf("unknown review status: %q", t.ReviewStatus)
	}
	if t.ProjectID != "" && t.CollaborationID != "" {
		return fmt.Errorf("task %s has both a project and a collaboration", t.ID)
	}
	return nil
}

// CompletionTime is the moment the task entered Done, falling back to its
// last update for records written before completedAt existed
func (t *Task) CompletionTime() time.Time {
	if t.CompletedAt != nil {
		return *t.CompletedAt
	}
	return t.UpdatedAt
}

// Clone returns a deep copy of the task
func (t *Task) Clone() *Task {
	c := *t
	c.Labels = append(StringSet(nil), t.Labels...)
	c.DueDate = cloneTime(t.DueDate)
	c.ReviewedAt = cloneTime(t.ReviewedAt)
	c.CompletedAt = cloneTime(t.CompletedAt)
	if t.ReviewRating != nil {
		r := *t.ReviewRating
		c.ReviewRating = &r
	}
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
