package grpcapi

import (
	"time"

	"github.com/gurkanbulca/collabdesk/internal/models"
	"github.com/gurkanbulca/collabdesk/internal/tracking"
)

// Request and response payloads. Field names are the JSON keys carried in
// the protobuf Struct.

type GetTaskRequest struct {
	TaskID string `json:"taskId"`
}

type ListTasksRequest struct {
	Statuses        []string   `json:"statuses,omitempty"`
	AssigneeID      string     `json:"assigneeId,omitempty"`
	ProjectID       string     `json:"projectId,omitempty"`
	CollaborationID string     `json:"collaborationId,omitempty"`
	Label           string     `json:"label,omitempty"`
	CompletedFrom   *time.Time `json:"completedFrom,omitempty"`
	Limit           int        `json:"limit,omitempty"`
	Offset          int        `json:"offset,omitempty"`
}

type ListTasksResponse struct {
	Tasks []*models.Task `json:"tasks"`
}

// TrackingSession is the client-side time tracking state of one task
type TrackingSession struct {
	TaskID          string `json:"taskId,omitempty"`
	BaselineSeconds int64  `json:"baselineSeconds"`
	ElapsedSeconds  int64  `json:"elapsedSeconds"`
	Running         bool   `json:"running,omitempty"`
}

func (s TrackingSession) state(taskID string) tracking.State {
	id := s.TaskID
	if id == "" {
		id = taskID
	}
	st := tracking.NewState(id, s.BaselineSeconds)
	if s.ElapsedSeconds > 0 {
		st.Elapsed = time.Duration(s.ElapsedSeconds) * time.Second
	}
	st.Running = s.Running
	return st
}

type ChangeTaskStatusRequest struct {
	TaskID  string           `json:"taskId"`
	Status  string           `json:"status"`
	Session *TrackingSession `json:"session,omitempty"`
}

type BulkChangeTaskStatusRequest struct {
	TaskIDs []string `json:"taskIds"`
	Status  string   `json:"status"`
}

type FailedTask struct {
	TaskID string `json:"taskId"`
	Error  string `json:"error"`
}

type BulkChangeTaskStatusResponse struct {
	Succeeded []string     `json:"succeeded"`
	Failed    []FailedTask `json:"failed"`
}

type SaveTrackedTimeRequest struct {
	TaskID  string          `json:"taskId"`
	Session TrackingSession `json:"session"`
}

// FilePayload carries an upload; Data is base64 in JSON
type FilePayload struct {
	Name     string `json:"name"`
	MimeType string `json:"mimeType"`
	Data     []byte `json:"data"`
}

type SubmitDeliverableRequest struct {
	TaskID string       `json:"taskId"`
	Type   string       `json:"type"`
	File   *FilePayload `json:"file,omitempty"`
	Link   string       `json:"link,omitempty"`
	Notes  string       `json:"notes,omitempty"`
}

type ListSubmissionsRequest struct {
	TaskID string `json:"taskId"`
}

type ListSubmissionsResponse struct {
	Submissions []*models.Submission `json:"submissions"`
}

type ReviewTaskRequest struct {
	TaskID   string   `json:"taskId"`
	Decision string   `json:"decision"`
	Comment  string   `json:"comment,omitempty"`
	Rating   *float64 `json:"rating,omitempty"`
}

type GetLeaderboardRequest struct {
	Window string `json:"window,omitempty"`
	// UserID, when set, adds the user's persisted ranks to the response
	UserID string `json:"userId,omitempty"`
}

type GetLeaderboardResponse struct {
	Window    string                    `json:"window"`
	Entries   []models.LeaderboardEntry `json:"entries"`
	UserRanks map[string]int            `json:"userRanks,omitempty"`
}
