// Package metrics holds the Prometheus collectors of the service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RPCDuration tracks gRPC handling time in seconds
	RPCDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "collabdesk_grpc_request_duration_seconds",
			Help:    "Duration of gRPC requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "code"},
	)

	// RPCTotal counts gRPC requests by outcome
	RPCTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collabdesk_grpc_requests_total",
			Help: "Total number of gRPC requests",
		},
		[]string{"method", "code"},
	)

	// Submissions counts stored submissions
	Submissions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collabdesk_submissions_total",
			Help: "Submissions stored, by type",
		},
		[]string{"type"},
	)

	// UploadFailures counts uploads a storage backend rejected
	UploadFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collabdesk_upload_failures_total",
			Help: "Failed attachment uploads, by backend",
		},
		[]string{"backend"},
	)

	// Reviews counts applied review decisions
	Reviews = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collabdesk_reviews_total",
			Help: "Review decisions applied, by decision",
		},
		[]string{"decision"},
	)

	// Transitions counts task status changes
	Transitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collabdesk_task_transitions_total",
			Help: "Task status transitions, by trigger and target status",
		},
		[]string{"trigger", "to"},
	)

	// RankPersistFailures counts user rank writes that were skipped
	RankPersistFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collabdesk_rank_persist_failures_total",
			Help: "Rank annotations that could not be written, by rank key",
		},
		[]string{"rank_key"},
	)

	// LeaderboardCacheLookups counts leaderboard cache hits and misses
	LeaderboardCacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collabdesk_leaderboard_cache_lookups_total",
			Help: "Leaderboard cache lookups, by result",
		},
		[]string{"result"},
	)
)
