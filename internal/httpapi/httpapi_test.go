package httpapi

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gurkanbulca/collabdesk/internal/events"
	"github.com/gurkanbulca/collabdesk/internal/models"
	"github.com/gurkanbulca/collabdesk/internal/ranking"
	"github.com/gurkanbulca/collabdesk/pkg/logger"
)

type fakeLeaderboards struct {
	entries []models.LeaderboardEntry
	err     error
	asked   ranking.Window
}

func (f *fakeLeaderboards) Leaderboard(_ context.Context, w ranking.Window) ([]models.LeaderboardEntry, error) {
	f.asked = w
	return f.entries, f.err
}

func TestGetLeaderboard(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		fake     *fakeLeaderboards
		wantCode int
	}{
		{
			name:     "weekly",
			path:     "/v1/leaderboard/weekly",
			fake:     &fakeLeaderboards{entries: []models.LeaderboardEntry{{UserID: "u1", Points: 5, Rank: 1}}},
			wantCode: http.StatusOK,
		},
		{
			name:     "all time alias",
			path:     "/v1/leaderboard/all-time",
			fake:     &fakeLeaderboards{},
			wantCode: http.StatusOK,
		},
		{
			name:     "unknown window",
			path:     "/v1/leaderboard/hourly",
			fake:     &fakeLeaderboards{},
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "store failure",
			path:     "/v1/leaderboard/daily",
			fake:     &fakeLeaderboards{err: errors.New("db down")},
			wantCode: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandler(tt.fake, events.NewBus(logger.NewNop()), nil, logger.NewNop())
			rec := httptest.NewRecorder()
			h.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))

			assert.Equal(t, tt.wantCode, rec.Code)
			if tt.wantCode != http.StatusOK {
				return
			}
			var body struct {
				Window  string                    `json:"window"`
				Entries []models.LeaderboardEntry `json:"entries"`
			}
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
			assert.Equal(t, string(tt.fake.asked), body.Window)
			assert.Len(t, body.Entries, len(tt.fake.entries))
			assert.NotNil(t, body.Entries)
		})
	}
}

func TestHealth(t *testing.T) {
	checks := map[string]HealthCheck{
		"database": func(context.Context) error { return nil },
	}
	h := NewHandler(&fakeLeaderboards{}, events.NewBus(logger.NewNop()), checks, logger.NewNop())

	rec := httptest.NewRecorder()
	h.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)

	checks["cache"] = func(context.Context) error { return errors.New("redis unreachable") }
	rec = httptest.NewRecorder()
	h.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "redis unreachable")
}

func TestMetricsEndpoint(t *testing.T) {
	h := NewHandler(&fakeLeaderboards{}, events.NewBus(logger.NewNop()), nil, logger.NewNop())
	rec := httptest.NewRecorder()
	h.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestStreamEvents(t *testing.T) {
	bus := events.NewBus(logger.NewNop())
	h := NewHandler(&fakeLeaderboards{}, bus, nil, logger.NewNop())
	srv := httptest.NewServer(h.Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v1/events/nope")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/v1/events/tasks", nil)
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	require.Eventually(t, func() bool {
		return bus.Subscribers(events.CollectionTasks) == 1
	}, 2*time.Second, 10*time.Millisecond)

	bus.Publish(events.Change{Collection: events.CollectionTasks, Op: events.OpUpdate, DocumentID: "t1"})

	reader := bufio.NewReader(resp.Body)
	var data string
	for data == "" {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		if strings.HasPrefix(line, "data: ") {
			data = strings.TrimSpace(strings.TrimPrefix(line, "data: "))
		}
	}

	var batch []events.Change
	require.NoError(t, json.Unmarshal([]byte(data), &batch))
	require.Len(t, batch, 1)
	assert.Equal(t, "t1", batch[0].DocumentID)
	assert.Equal(t, events.OpUpdate, batch[0].Op)

	cancel()
	require.Eventually(t, func() bool {
		return bus.Subscribers(events.CollectionTasks) == 0
	}, 2*time.Second, 10*time.Millisecond)
}
