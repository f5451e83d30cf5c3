// Package api exposes the dashboard HTTP surface: read-only projections of
// the canonical state, refresh triggering, history, alerts, and the
// prometheus scrape endpoint.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/mlegrand/fleetdeck/internal/alerts"
	"github.com/mlegrand/fleetdeck/internal/config"
	"github.com/mlegrand/fleetdeck/internal/history"
	"github.com/mlegrand/fleetdeck/internal/models"
	"github.com/mlegrand/fleetdeck/internal/refresh"
	"github.com/mlegrand/fleetdeck/internal/websocket"
)

// Refresher triggers refresh cycles and exposes their results.
type Refresher interface {
	RefreshComponents(ctx context.Context, components []string, progress refresh.ProgressFunc) models.RefreshOutcome
	Alerts() []alerts.Alert
	LastOutcome() *models.RefreshOutcome
}

// Scorer exposes the aggregate health score.
type Scorer interface {
	CalculateHealthScore() float64
}

// VersionInfo identifies the running build.
type VersionInfo struct {
	Version   string `json:"version"`
	BuildTime string `json:"buildTime"`
	GitCommit string `json:"gitCommit"`
}

// Router handles HTTP routing.
type Router struct {
	mux       *http.ServeMux
	config    *config.Config
	state     *models.State
	refresher Refresher
	recorder  *history.Recorder
	scorer    Scorer
	wsHub     *websocket.Hub
	version   VersionInfo
	started   time.Time
}

// Deps bundles the router's collaborators.
type Deps struct {
	Config    *config.Config
	State     *models.State
	Refresher Refresher
	Recorder  *history.Recorder
	Scorer    Scorer
	Hub       *websocket.Hub
	Registry  *prometheus.Registry
	Version   VersionInfo
}

// NewRouter creates the router and wires all routes.
func NewRouter(deps Deps) http.Handler {
	r := &Router{
		mux:       http.NewServeMux(),
		config:    deps.Config,
		state:     deps.State,
		refresher: deps.Refresher,
		recorder:  deps.Recorder,
		scorer:    deps.Scorer,
		wsHub:     deps.Hub,
		version:   deps.Version,
		started:   time.Now(),
	}
	r.setupRoutes(deps.Registry)
	return r
}

func (r *Router) setupRoutes(registry *prometheus.Registry) {
	r.mux.HandleFunc("/api/health", r.handleHealth)
	r.mux.HandleFunc("/api/version", r.handleVersion)
	r.mux.HandleFunc("/api/state", r.handleState)
	r.mux.HandleFunc("/api/state/legacy", r.handleLegacyState)
	r.mux.HandleFunc("/api/summary", r.handleSummary)
	r.mux.HandleFunc("/api/alerts", r.handleAlerts)
	r.mux.HandleFunc("/api/history", r.handleHistory)
	r.mux.HandleFunc("/api/score", r.handleScore)
	r.mux.HandleFunc("/api/refresh", r.handleRefresh)
	r.mux.HandleFunc("/api/refresh/last", r.handleLastRefresh)

	if r.wsHub != nil {
		r.mux.Handle("/ws", r.wsHub)
	}
	if registry != nil {
		r.mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func requireGet(w http.ResponseWriter, req *http.Request) bool {
	if req.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func (r *Router) handleHealth(w http.ResponseWriter, req *http.Request) {
	if !requireGet(w, req) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
		"uptime":    time.Since(r.started).Seconds(),
	})
}

func (r *Router) handleVersion(w http.ResponseWriter, req *http.Request) {
	if !requireGet(w, req) {
		return
	}
	writeJSON(w, http.StatusOK, r.version)
}

func (r *Router) handleState(w http.ResponseWriter, req *http.Request) {
	if !requireGet(w, req) {
		return
	}
	writeJSON(w, http.StatusOK, r.state.GetSnapshot())
}

// handleLegacyState serves the flattened projection older dashboard
// clients expect.
func (r *Router) handleLegacyState(w http.ResponseWriter, req *http.Request) {
	if !requireGet(w, req) {
		return
	}
	writeJSON(w, http.StatusOK, r.state.GetSnapshot().ToLegacy())
}

func (r *Router) handleSummary(w http.ResponseWriter, req *http.Request) {
	if !requireGet(w, req) {
		return
	}
	writeJSON(w, http.StatusOK, r.state.Summary())
}

func (r *Router) handleAlerts(w http.ResponseWriter, req *http.Request) {
	if !requireGet(w, req) {
		return
	}
	active := r.refresher.Alerts()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"alerts": active,
		"count":  len(active),
	})
}

// handleHistory serves refresh events or health history. The component
// query parameter narrows health history to one category; limit caps the
// number of returned entries, newest last.
func (r *Router) handleHistory(w http.ResponseWriter, req *http.Request) {
	if !requireGet(w, req) {
		return
	}

	limit := 0
	if raw := req.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	if req.URL.Query().Get("type") == "events" {
		events := r.recorder.Events()
		writeJSON(w, http.StatusOK, map[string]interface{}{"events": tail(events, limit)})
		return
	}

	var entries []models.HealthHistoryEntry
	if component := req.URL.Query().Get("component"); component != "" {
		entries = r.recorder.ComponentHealth(models.Category(component))
	} else {
		entries = r.recorder.Health()
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"history": tail(entries, limit)})
}

func tail[T any](items []T, limit int) []T {
	if limit <= 0 || limit >= len(items) {
		return items
	}
	return items[len(items)-limit:]
}

func (r *Router) handleScore(w http.ResponseWriter, req *http.Request) {
	if !requireGet(w, req) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"score":       r.scorer.CalculateHealthScore(),
		"generatedAt": time.Now(),
	})
}

// handleLastRefresh reports the outcome of the most recent cycle, timer
// driven or on demand.
func (r *Router) handleLastRefresh(w http.ResponseWriter, req *http.Request) {
	if !requireGet(w, req) {
		return
	}
	outcome := r.refresher.LastOutcome()
	if outcome == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"outcome": nil})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"outcome": outcome})
}

type refreshRequest struct {
	Components []string `json:"components"`
}

// handleRefresh triggers a selective refresh. An empty component list uses
// the default subset. Progress streams out over the websocket hub while
// the response carries the final outcome.
func (r *Router) handleRefresh(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var body refreshRequest
	if req.ContentLength > 0 {
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
	}

	var progress refresh.ProgressFunc
	if r.wsHub != nil {
		progress = func(e refresh.ProgressEvent) {
			r.wsHub.BroadcastProgress(e)
		}
	}

	outcome := r.refresher.RefreshComponents(req.Context(), body.Components, progress)
	if outcome.Status == models.OutcomeError && outcome.Message == "refresh already in progress" {
		writeJSON(w, http.StatusConflict, outcome)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}
