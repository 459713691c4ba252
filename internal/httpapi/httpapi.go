// Package httpapi serves the admin HTTP surface: health, metrics, cached
// leaderboards and a server-sent event stream of store changes.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/gurkanbulca/collabdesk/internal/events"
	"github.com/gurkanbulca/collabdesk/internal/models"
	"github.com/gurkanbulca/collabdesk/internal/ranking"
	"github.com/gurkanbulca/collabdesk/pkg/logger"
)

// heartbeat keeps idle event streams open through proxies
const heartbeat = 25 * time.Second

// Leaderboards serves computed standings
type Leaderboards interface {
	Leaderboard(ctx context.Context, window ranking.Window) ([]models.LeaderboardEntry, error)
}

// HealthCheck reports whether a dependency is reachable
type HealthCheck func(ctx context.Context) error

// Handler holds the dependencies of the HTTP routes
type Handler struct {
	leaderboards Leaderboards
	bus          *events.Bus
	checks       map[string]HealthCheck
	log          *logger.Logger
	heartbeat    time.Duration
}

// NewHandler creates the HTTP handler set
func NewHandler(leaderboards Leaderboards, bus *events.Bus, checks map[string]HealthCheck, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.NewNop()
	}
	return &Handler{
		leaderboards: leaderboards,
		bus:          bus,
		checks:       checks,
		log:          log.Named("httpapi"),
		heartbeat:    heartbeat,
	}
}

// Router wires the routes
func (h *Handler) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", h.Health).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/v1/leaderboard/{window}", h.GetLeaderboard).Methods(http.MethodGet)
	r.HandleFunc("/v1/events/{collection}", h.StreamEvents).Methods(http.MethodGet)
	return r
}

// Health runs every dependency check
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	code := http.StatusOK
	result := map[string]string{}
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			code = http.StatusServiceUnavailable
			result[name] = err.Error()
			continue
		}
		result[name] = "ok"
	}

	state := "ok"
	if code != http.StatusOK {
		state = "degraded"
	}
	writeJSON(w, code, map[string]interface{}{"status": state, "checks": result})
}

// GetLeaderboard returns the standings for the window in the path
func (h *Handler) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	window, err := ranking.ParseWindow(mux.Vars(r)["window"])
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	entries, err := h.leaderboards.Leaderboard(r.Context(), window)
	if err != nil {
		h.log.Error("leaderboard request failed", zap.String("window", string(window)), zap.Error(err))
		code := http.StatusInternalServerError
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			code = http.StatusServiceUnavailable
		}
		writeError(w, code, "failed to compute leaderboard")
		return
	}
	if entries == nil {
		entries = []models.LeaderboardEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"window": window, "entries": entries})
}

var streamable = map[string]bool{
	events.CollectionTasks:       true,
	events.CollectionSubmissions: true,
	events.CollectionUsers:       true,
}

// StreamEvents serves one SSE connection receiving every change batch of a
// collection as a JSON array
func (h *Handler) StreamEvents(w http.ResponseWriter, r *http.Request) {
	collection := mux.Vars(r)["collection"]
	if !streamable[collection] {
		writeError(w, http.StatusNotFound, "unknown collection: "+collection)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "stream unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	msgs := make(chan []byte, 16)
	cancel := h.bus.Subscribe(collection, func(batch []events.Change) {
		data, err := json.Marshal(batch)
		if err != nil {
			h.log.Warn("failed to encode change batch", zap.String("collection", collection), zap.Error(err))
			return
		}
		select {
		case msgs <- data:
		default:
			// drop for a slow client
		}
	})
	defer cancel()

	_, _ = w.Write([]byte(": connected\n\n"))
	flusher.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			_, _ = w.Write([]byte(": ping\n\n"))
			flusher.Flush()
		case msg := <-msgs:
			_, _ = w.Write([]byte("data: "))
			_, _ = w.Write(msg)
			_, _ = w.Write([]byte("\n\n"))
			flusher.Flush()
		}
	}
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
