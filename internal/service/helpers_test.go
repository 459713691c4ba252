package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/gurkanbulca/collabdesk/internal/cache"
	"github.com/gurkanbulca/collabdesk/internal/database"
	"github.com/gurkanbulca/collabdesk/internal/events"
	"github.com/gurkanbulca/collabdesk/internal/models"
	"github.com/gurkanbulca/collabdesk/internal/ranking"
	"github.com/gurkanbulca/collabdesk/internal/repository"

	_ "github.com/mattn/go-sqlite3"
)

var fixedNow = time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

var (
	collaborator = models.Actor{UID: "u1", DisplayName: "Ada", Role: models.RoleCollaborator}
	stranger     = models.Actor{UID: "u9", DisplayName: "Eve", Role: models.RoleCollaborator}
	reviewer     = models.Actor{UID: "r1", DisplayName: "Rita", Role: models.RoleReviewer}
	manager      = models.Actor{UID: "m1", DisplayName: "Max", Role: models.RoleManager}
)

// TestHelpers seeds and inspects an in-memory SQL store
type TestHelpers struct {
	t     *testing.T
	store *repository.SQLStore
}

// NewTestHelpers opens a fresh in-memory database with the schema applied
func NewTestHelpers(t *testing.T) *TestHelpers {
	t.Helper()
	db, err := database.Open("sqlite3", "file:"+uuid.NewString()+"?mode=memory&cache=shared&_fk=1")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.Migrate(context.Background(), db))

	return &TestHelpers{t: t, store: repository.NewSQLStore(db)}
}

// CreateTask stores a task assigned to the default collaborator
func (h *TestHelpers) CreateTask(id string, status models.Status, priority models.Priority) *models.Task {
	h.t.Helper()
	task := &models.Task{
		ID:           id,
		Title:        "Task " + id,
		Priority:     priority,
		Status:       status,
		AssigneeID:   collaborator.UID,
		AssigneeName: collaborator.DisplayName,
		ProjectID:    "p1",
		Labels:       models.NewStringSet("design"),
		CreatedAt:    fixedNow.Add(-72 * time.Hour),
		UpdatedAt:    fixedNow.Add(-72 * time.Hour),
	}
	if status == models.StatusDone {
		completed := fixedNow.Add(-time.Hour)
		task.CompletedAt = &completed
	}
	require.NoError(h.t, h.store.Tasks().Create(context.Background(), task))
	return task
}

// CreateDoneTask stores a Done task for assignee completed at the given time
func (h *TestHelpers) CreateDoneTask(id, assigneeID string, priority models.Priority, completedAt time.Time) *models.Task {
	h.t.Helper()
	task := &models.Task{
		ID:           id,
		Title:        "Task " + id,
		Priority:     priority,
		Status:       models.StatusDone,
		AssigneeID:   assigneeID,
		AssigneeName: "User " + assigneeID,
		CompletedAt:  &completedAt,
		CreatedAt:    completedAt.Add(-time.Hour),
		UpdatedAt:    completedAt,
	}
	require.NoError(h.t, h.store.Tasks().Create(context.Background(), task))
	return task
}

// GetTask reloads a task from the store
func (h *TestHelpers) GetTask(id string) *models.Task {
	h.t.Helper()
	task, err := h.store.Tasks().GetByID(context.Background(), id)
	require.NoError(h.t, err)
	return task
}

// recorder collects published changes
type recorder struct {
	mu      sync.Mutex
	changes []events.Change
}

func (r *recorder) Publish(changes ...events.Change) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, changes...)
}

func (r *recorder) Changes() []events.Change {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]events.Change(nil), r.changes...)
}

// memoryCache is an in-process LeaderboardCache
type memoryCache struct {
	mu            sync.Mutex
	boards        map[ranking.Window][]models.LeaderboardEntry
	invalidations int
}

func newMemoryCache() *memoryCache {
	return &memoryCache{boards: make(map[ranking.Window][]models.LeaderboardEntry)}
}

func (c *memoryCache) Get(_ context.Context, w ranking.Window) ([]models.LeaderboardEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entries, ok := c.boards[w]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	return entries, nil
}

func (c *memoryCache) Set(_ context.Context, w ranking.Window, entries []models.LeaderboardEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.boards[w] = entries
	return nil
}

func (c *memoryCache) Invalidate(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.boards = make(map[ranking.Window][]models.LeaderboardEntry)
	c.invalidations++
	return nil
}

func (c *memoryCache) Invalidations() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.invalidations
}

var errRankWrite = errors.New("rank write refused")

// flakyUsersStore refuses rank writes for one user
type flakyUsersStore struct {
	repository.Store
	failFor string
}

func (s *flakyUsersStore) Users() repository.UserRepository {
	return &flakyUsers{UserRepository: s.Store.Users(), failFor: s.failFor}
}

type flakyUsers struct {
	repository.UserRepository
	failFor string
}

func (u *flakyUsers) SetRank(ctx context.Context, userID, rankKey string, rank int, at time.Time) error {
	if userID == u.failFor {
		return errRankWrite
	}
	return u.UserRepository.SetRank(ctx, userID, rankKey, rank, at)
}
