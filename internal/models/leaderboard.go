package models

import "time"

// LeaderboardEntry is one user's standing for a time window
type LeaderboardEntry struct {
	UserID             string    `json:"userId"`
	DisplayName        string    `json:"displayName"`
	CompletedTaskCount int       `json:"completedTaskCount"`
	Points             int       `json:"points"`
	LastCompletedAt    time.Time `json:"lastCompletedAt"`
	Rank               int       `json:"rank"`
}

// UserRank is a cached rank annotation on a user record
type UserRank struct {
	UserID    string    `db:"user_id" json:"userId"`
	RankKey   string    `db:"rank_key" json:"rankKey"`
	Rank      int       `db:"rank" json:"rank"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}
