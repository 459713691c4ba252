// Package service implements the collaborator task lifecycle on top of the store.
package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/gurkanbulca/collabdesk/internal/cache"
	"github.com/gurkanbulca/collabdesk/internal/events"
	"github.com/gurkanbulca/collabdesk/internal/models"
	"github.com/gurkanbulca/collabdesk/internal/ranking"
	"github.com/gurkanbulca/collabdesk/pkg/logger"
)

// LeaderboardCache is the cache the leaderboard and review flows use.
// *cache.LeaderboardCache implements it.
type LeaderboardCache interface {
	Get(ctx context.Context, w ranking.Window) ([]models.LeaderboardEntry, error)
	Set(ctx context.Context, w ranking.Window, entries []models.LeaderboardEntry) error
	Invalidate(ctx context.Context) error
}

type noCache struct{}

func (noCache) Get(context.Context, ranking.Window) ([]models.LeaderboardEntry, error) {
	return nil, cache.ErrCacheMiss
}
func (noCache) Set(context.Context, ranking.Window, []models.LeaderboardEntry) error { return nil }
func (noCache) Invalidate(context.Context) error                                   { return nil }

// base carries what every service needs
type base struct {
	publisher events.Publisher
	cache     LeaderboardCache
	log       *logger.Logger
	now       func() time.Time
}

func newBase(publisher events.Publisher, lc LeaderboardCache, log *logger.Logger, name string) base {
	if publisher == nil {
		publisher = events.Discard
	}
	if lc == nil {
		lc = noCache{}
	}
	if log == nil {
		log = logger.NewNop()
	}
	return base{
		publisher: publisher,
		cache:     lc,
		log:       log.Named(name),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// invalidateLeaderboard drops cached standings after a task entered or left Done.
// A failure only delays fresh standings until the cache TTL expires.
func (b base) invalidateLeaderboard(ctx context.Context) {
	if err := b.cache.Invalidate(ctx); err != nil {
		b.log.Warn("failed to invalidate leaderboard cache", zap.Error(err))
	}
}

func taskChange(t *models.Task, op events.Op, at time.Time) events.Change {
	return events.Change{
		Collection: events.CollectionTasks,
		Op:         op,
		DocumentID: t.ID,
		At:         at,
		Document:   t.Clone(),
	}
}

func submissionChange(s *models.Submission, at time.Time) events.Change {
	c := *s
	return events.Change{
		Collection: events.CollectionSubmissions,
		Op:         events.OpInsert,
		DocumentID: s.ID,
		At:         at,
		Document:   &c,
	}
}

// affectsLeaderboard reports whether a status change moves a task into or out of Done
func affectsLeaderboard(from, to models.Status) bool {
	return from != to && (from == models.StatusDone || to == models.StatusDone)
}

func isCacheMiss(err error) bool {
	return errors.Is(err, cache.ErrCacheMiss)
}
