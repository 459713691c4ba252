// Package ranking scores completed tasks and orders users on the leaderboard.
package ranking

import (
	"sort"
	"time"

	"github.com/gurkanbulca/collabdesk/internal/models"
)

// WeightFunc maps a task priority to the points it is worth
type WeightFunc func(models.Priority) int

// DefaultWeight is Critical=5, High=4, Medium=3, Low=2, anything else 1
func DefaultWeight(p models.Priority) int {
	switch p {
	case models.PriorityCritical:
		return 5
	case models.PriorityHigh:
		return 4
	case models.PriorityMedium:
		return 3
	case models.PriorityLow:
		return 2
	default:
		return 1
	}
}

// Rank aggregates Done tasks completed within [from, to] per assignee and
// assigns competition ranks. The result depends only on its arguments.
func Rank(tasks []*models.Task, from, to time.Time, weightOf WeightFunc) []models.LeaderboardEntry {
	if weightOf == nil {
		weightOf = DefaultWeight
	}

	byUser := make(map[string]*models.LeaderboardEntry)
	for _, t := range tasks {
		if t == nil || t.Status != models.StatusDone || t.AssigneeID == "" {
			continue
		}
		completedAt := t.CompletionTime()
		if completedAt.Before(from) || completedAt.After(to) {
			continue
		}

		entry, ok := byUser[t.AssigneeID]
		if !ok {
			entry = &models.LeaderboardEntry{UserID: t.AssigneeID, DisplayName: t.AssigneeName}
			byUser[t.AssigneeID] = entry
		}
		entry.CompletedTaskCount++
		entry.Points += weightOf(t.Priority)
		if !ok || completedAt.After(entry.LastCompletedAt) {
			entry.LastCompletedAt = completedAt
			if t.AssigneeName != "" {
				entry.DisplayName = t.AssigneeName
			}
		}
	}

	entries := make([]models.LeaderboardEntry, 0, len(byUser))
	for _, e := range byUser {
		entries = append(entries, *e)
	}
	sortEntries(entries)
	AssignRanks(entries)
	return entries
}

// sortEntries orders by points, then most recent completion, then user id
func sortEntries(entries []models.LeaderboardEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.Points != b.Points {
			return a.Points > b.Points
		}
		if !a.LastCompletedAt.Equal(b.LastCompletedAt) {
			return a.LastCompletedAt.After(b.LastCompletedAt)
		}
		return a.UserID < b.UserID
	})
}

// AssignRanks sets competition ranks on entries already sorted by points:
// ties share a rank and the next distinct score resumes at its index+1.
func AssignRanks(entries []models.LeaderboardEntry) {
	for i := range entries {
		if i > 0 && entries[i].Points == entries[i-1].Points {
			entries[i].Rank = entries[i-1].Rank
			continue
		}
		entries[i].Rank = i + 1
	}
}
