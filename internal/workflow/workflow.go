// Package workflow holds the task status state machine.
package workflow

import (
	"fmt"
	"time"

	"github.com/gurkanbulca/collabdesk/internal/models"
)

// Trigger identifies the pathway requesting a status change
type Trigger string

// Trigger constants
const (
	// TriggerCollaborator is the assignee moving their own task
	TriggerCollaborator Trigger = "collaborator"
	// TriggerSubmission is a deliverable being submitted
	TriggerSubmission Trigger = "submission"
	// TriggerReview is a reviewer decision
	TriggerReview Trigger = "review"
	// TriggerManager reopens or reassigns tasks from project tooling
	TriggerManager Trigger = "manager"
)

// IsValid reports whether t is a known trigger
func (t Trigger) IsValid() bool {
	switch t {
	case TriggerCollaborator, TriggerSubmission, TriggerReview, TriggerManager:
		return true
	}
	return false
}

// TriggerFor maps an actor role to the trigger used for manual status changes
func TriggerFor(role models.Role) Trigger {
	if role == models.RoleManager {
		return TriggerManager
	}
	return TriggerCollaborator
}

var collaboratorMoves = map[models.Status][]models.Status{
	models.StatusToDo:       {models.StatusInProgress},
	models.StatusInProgress: {models.StatusToDo, models.StatusDone},
}

var reviewMoves = map[models.Status][]models.Status{
	models.StatusReview:        {models.StatusDone, models.StatusInProgress},
	models.StatusWaitingReview: {models.StatusDone, models.StatusInProgress},
}

// CanTransition reports whether trigger may move a task from one status to another.
// Requesting the current status is always allowed.
func CanTransition(from, to models.Status, trigger Trigger) bool {
	if !from.IsValid() || !to.IsValid() || !trigger.IsValid() {
		return false
	}
	if from == to {
		return true
	}

	switch trigger {
	case TriggerManager:
		return true
	case TriggerSubmission:
		return from != models.StatusDone && to == models.StatusReview
	case TriggerReview:
		return contains(reviewMoves[from], to)
	case TriggerCollaborator:
		return contains(collaboratorMoves[from], to)
	}
	return false
}

// AllowedTargets lists the statuses trigger may move a task in status from to,
// excluding from itself
func AllowedTargets(from models.Status, trigger Trigger) []models.Status {
	var out []models.Status
	for _, to := range models.AllStatuses {
		if to != from && CanTransition(from, to, trigger) {
			out = append(out, to)
		}
	}
	return out
}

// AcceptsWork reports whether a task may still receive submissions and tracked time
func AcceptsWork(s models.Status) bool {
	return s != models.StatusDone
}

// Transition moves task to the target status in place, stamping updatedAt.
// Entering Done stamps completedAt; leaving Done clears it.
func Transition(task *models.Task, to models.Status, trigger Trigger, now time.Time) error {
	if !to.IsValid() {
		return fmt.Errorf("%w: unknown status %q", models.ErrInvalidTransition, to)
	}
	if !CanTransition(task.Status, to, trigger) {
		return fmt.Errorf("%w: %s cannot move task %s from %q to %q",
			models.ErrInvalidTransition, trigger, task.ID, task.Status, to)
	}

	now = now.UTC()
	switch {
	case to == models.StatusDone && task.Status != models.StatusDone:
		task.CompletedAt = &now
	case to != models.StatusDone:
		task.CompletedAt = nil
	}
	task.Status = to
	task.UpdatedAt = now
	return nil
}

func contains(list []models.Status, s models.Status) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
