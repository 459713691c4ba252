package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/gurkanbulca/collabdesk/internal/events"
	"github.com/gurkanbulca/collabdesk/internal/metrics"
	"github.com/gurkanbulca/collabdesk/internal/models"
	"github.com/gurkanbulca/collabdesk/internal/ranking"
	"github.com/gurkanbulca/collabdesk/internal/repository"
	"github.com/gurkanbulca/collabdesk/pkg/logger"
)

// LeaderboardService computes standings from Done tasks and keeps the
// per-user rank annotations current
type LeaderboardService struct {
	base
	store  repository.Store
	weight ranking.WeightFunc
}

// NewLeaderboardService creates a leaderboard service
func NewLeaderboardService(store repository.Store, lc LeaderboardCache, publisher events.Publisher, log *logger.Logger) *LeaderboardService {
	return &LeaderboardService{
		base:   newBase(publisher, lc, log, "leaderboard_service"),
		store:  store,
		weight: ranking.DefaultWeight,
	}
}

// Leaderboard returns the standings for window. Cached standings are served
// as is; otherwise they are recomputed, every user's rank for the window and
// for all time is persisted, and the result is cached.
func (s *LeaderboardService) Leaderboard(ctx context.Context, window ranking.Window) ([]models.LeaderboardEntry, error) {
	entries, err := s.cache.Get(ctx, window)
	switch {
	case err == nil:
		metrics.LeaderboardCacheLookups.WithLabelValues("hit").Inc()
		return entries, nil
	case isCacheMiss(err):
		metrics.LeaderboardCacheLookups.WithLabelValues("miss").Inc()
	default:
		metrics.LeaderboardCacheLookups.WithLabelValues("error").Inc()
		s.log.Warn("leaderboard cache read failed", zap.String("window", string(window)), zap.Error(err))
	}

	tasks, err := s.doneTasks(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now()
	entries = s.rankAndPersist(ctx, tasks, window, now)
	if window != ranking.WindowAll {
		s.rankAndPersist(ctx, tasks, ranking.WindowAll, now)
	}

	s.cacheStandings(ctx, window, entries)
	return entries, nil
}

// RefreshAll recomputes and caches every window from a single task listing
func (s *LeaderboardService) RefreshAll(ctx context.Context) error {
	tasks, err := s.doneTasks(ctx)
	if err != nil {
		return err
	}

	now := s.now()
	for _, w := range ranking.Windows {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.cacheStandings(ctx, w, s.rankAndPersist(ctx, tasks, w, now))
	}
	s.log.Debug("leaderboards refreshed", zap.Int("done_tasks", len(tasks)))
	return nil
}

// UserRanks returns the persisted rank annotations of a user keyed by rank key
func (s *LeaderboardService) UserRanks(ctx context.Context, userID string) (map[string]int, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("user id is required")
	}
	return s.store.Users().GetRanks(ctx, userID)
}

func (s *LeaderboardService) doneTasks(ctx context.Context) ([]*models.Task, error) {
	tasks, err := s.store.Tasks().List(ctx, repository.ListFilter{
		Statuses: []models.Status{models.StatusDone},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list done tasks: %w", err)
	}
	return tasks, nil
}

// rankAndPersist ranks tasks for window, writes each user's rank and clears
// the window's rank from everyone else. Write failures are logged and skipped.
func (s *LeaderboardService) rankAndPersist(ctx context.Context, tasks []*models.Task, window ranking.Window, now time.Time) []models.LeaderboardEntry {
	from, to := window.Bounds(now)
	entries := ranking.Rank(tasks, from, to, s.weight)

	key := window.RankKey()
	ranked := make([]string, 0, len(entries))
	for _, e := range entries {
		ranked = append(ranked, e.UserID)
		if err := s.store.Users().SetRank(ctx, e.UserID, key, e.Rank, now); err != nil {
			metrics.RankPersistFailures.WithLabelValues(key).Inc()
			s.log.Warn("failed to persist user rank",
				zap.String("user_id", e.UserID),
				zap.String("rank_key", key),
				zap.Int("rank", e.Rank),
				zap.Error(err))
		}
	}

	// users who fell out of the window lose the annotation
	if err := s.store.Users().ClearRanks(ctx, key, ranked); err != nil {
		metrics.RankPersistFailures.WithLabelValues(key).Inc()
		s.log.Warn("failed to clear stale ranks", zap.String("rank_key", key), zap.Error(err))
	}
	return entries
}

// cacheStandings caches standings; a failed write only costs a recomputation
func (s *LeaderboardService) cacheStandings(ctx context.Context, window ranking.Window, entries []models.LeaderboardEntry) {
	if err := s.cache.Set(ctx, window, entries); err != nil {
		s.log.Warn("failed to cache leaderboard", zap.String("window", string(window)), zap.Error(err))
	}
}
