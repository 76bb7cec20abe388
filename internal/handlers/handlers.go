package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/XavierBriggs/fortuna/services/game-replay-service/internal/detector"
	"github.com/XavierBriggs/fortuna/services/game-replay-service/internal/hub"
	"github.com/XavierBriggs/fortuna/services/game-replay-service/internal/replay"
	"github.com/XavierBriggs/fortuna/services/game-replay-service/pkg/contracts"
	"github.com/XavierBriggs/fortuna/services/game-replay-service/pkg/models"
	"github.com/go-chi/chi/v5"
)

// ScheduleFetcher lists a team's games on a date
type ScheduleFetcher interface {
	FetchSchedule(ctx context.Context, date time.Time, teamID int) ([]models.ScheduledGame, error)
}

// HighlightLister reads archived highlights
type HighlightLister interface {
	ListByGame(ctx context.Context, gameID string) ([]models.EventMatch, error)
}

// Deps are the collaborators of Handler. Schedule, Highlights and Hub are optional.
type Deps struct {
	Store      *replay.Store
	Watcher    *detector.EventWatcher
	Formatted  *FormattedHandler
	Schedule   ScheduleFetcher
	Highlights HighlightLister
	Hub        *hub.Hub
	Logger     *slog.Logger

	DefaultTeamID int
	WatchBudget   time.Duration
}

// Handler serves the replay HTTP API
type Handler struct {
	Deps
	tick    contracts.ViewSource
	tracker *detector.AtBatTracker
	started time.Time
}

// NewHandler creates a new handler with dependencies
func NewHandler(deps Deps) *Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	deps.Logger = deps.Logger.With("component", "handlers")
	if deps.WatchBudget <= 0 {
		deps.WatchBudget = 5 * time.Minute
	}

	return &Handler{
		Deps:    deps,
		tick:    contracts.ViewSourceFunc(deps.Store.AdvanceAndView),
		tracker: detector.NewAtBatTracker(),
		started: time.Now(),
	}
}

// HealthCheck returns the health status of the service
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"service":   "game-replay-service",
	})
}

// Metrics reports store, poller and hub counters
func (h *Handler) Metrics(w http.ResponseWriter, r *http.Request) {
	metrics := map[string]interface{}{
		"sessions":       len(h.Store.Sessions()),
		"loads":          h.Store.Loads(),
		"uptime_seconds": int(time.Since(h.started).Seconds()),
	}
	if h.Formatted != nil {
		metrics["formatter_pollers"] = h.Formatted.orch.Count()
	}
	if h.Hub != nil {
		metrics["hub"] = h.Hub.Metrics()
	}
	respondJSON(w, http.StatusOK, metrics)
}

// InitReplay loads a game (or reloads it with ?reset=true) and returns its summary
func (h *Handler) InitReplay(w http.ResponseWriter, r *http.Request) {
	gameID := chi.URLParam(r, "game_id")
	reset := parseBoolParam(r, "reset")

	// pollers are stopped before the reload so none of them advances the fresh session
	if reset {
		if h.Formatted != nil {
			h.Formatted.Reset(gameID)
		}
		h.tracker.Reset(gameID)
	}

	tl, err := h.Store.EnsureLoaded(r.Context(), gameID, reset)
	if err != nil {
		respondErr(w, h.Logger, err)
		return
	}

	respondJSON(w, http.StatusOK, tl)
}

// LiveReplay advances the cursor by one event and returns the revealed view.
// The game is loaded on first access.
func (h *Handler) LiveReplay(w http.ResponseWriter, r *http.Request) {
	gameID := chi.URLParam(r, "game_id")

	if _, err := h.Store.EnsureLoaded(r.Context(), gameID, false); err != nil {
		respondErr(w, h.Logger, err)
		return
	}

	view, err := h.Store.AdvanceAndView(r.Context(), gameID)
	if err != nil {
		respondErr(w, h.Logger, err)
		return
	}

	respondJSON(w, http.StatusOK, view)
}

// GetReplay returns the revealed view without advancing the cursor
func (h *Handler) GetReplay(w http.ResponseWriter, r *http.Request) {
	view, err := h.Store.View(r.Context(), chi.URLParam(r, "game_id"))
	if err != nil {
		respondErr(w, h.Logger, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

// GetStatus returns the lifecycle state of a replay and the last at-bat
// reported by next-at-bat
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	gameID := chi.URLParam(r, "game_id")
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"game_id":     gameID,
		"status":      h.Store.Status(gameID),
		"last_at_bat": h.tracker.LastProcessed(gameID),
	})
}

// ListSessions returns every replay session
func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	sessions := h.Store.Sessions()
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"sessions": sessions,
		"count":    len(sessions),
	})
}

// DeleteReplay discards a session and its pollers
func (h *Handler) DeleteReplay(w http.ResponseWriter, r *http.Request) {
	gameID := chi.URLParam(r, "game_id")

	if h.Formatted != nil {
		h.Formatted.Reset(gameID)
	}
	h.tracker.Reset(gameID)

	if !h.Store.Evict(gameID) {
		respondError(w, http.StatusNotFound, "no replay session for "+gameID)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// WatchHomeRun polls the replay until the team hits a home run, the game ends,
// or the watch window runs out.
// Query params: team_id, poll_seconds (watch window, capped at WatchBudget)
func (h *Handler) WatchHomeRun(w http.ResponseWriter, r *http.Request) {
	gameID := chi.URLParam(r, "game_id")
	teamID := parseIntParam(r, "team_id", h.DefaultTeamID)
	budget := h.watchWindow(parseIntParam(r, "poll_seconds", 0))

	if _, err := h.Store.EnsureLoaded(r.Context(), gameID, false); err != nil {
		respondErr(w, h.Logger, err)
		return
	}

	match, err := h.Watcher.Watch(r.Context(), gameID, detector.HomeRunBy(teamID), budget)
	if err != nil {
		// client went away
		h.Logger.Info("watch aborted", "game_id", gameID, "error", err)
		return
	}

	respondJSON(w, http.StatusOK, match)
}

// watchWindow converts poll_seconds into a watch budget; 0 or less means the full budget
func (h *Handler) watchWindow(pollSeconds int) time.Duration {
	window := time.Duration(pollSeconds) * time.Second
	if window <= 0 || window > h.WatchBudget {
		return h.WatchBudget
	}
	return window
}

// ListHomeRuns returns the home runs revealed so far
// Query params: team_id (0 for both teams)
func (h *Handler) ListHomeRuns(w http.ResponseWriter, r *http.Request) {
	gameID := chi.URLParam(r, "game_id")
	teamID := parseIntParam(r, "team_id", h.DefaultTeamID)

	view, err := h.Store.View(r.Context(), gameID)
	if err != nil {
		respondErr(w, h.Logger, err)
		return
	}

	homers := detector.ScanHomeRuns(view, teamID)
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"game_id":   gameID,
		"team_id":   teamID,
		"home_runs": homers,
		"count":     len(homers),
		"cursor":    view.Cursor,
	})
}

// NextAtBat advances the replay one event and reports whether a new at-bat completed
func (h *Handler) NextAtBat(w http.ResponseWriter, r *http.Request) {
	gameID := chi.URLParam(r, "game_id")

	if _, err := h.Store.EnsureLoaded(r.Context(), gameID, false); err != nil {
		respondErr(w, h.Logger, err)
		return
	}

	outcome, err := h.tracker.Next(r.Context(), h.tick, gameID)
	if err != nil {
		respondErr(w, h.Logger, err)
		return
	}

	respondJSON(w, http.StatusOK, outcome)
}

// GetHighlights lists archived home-run highlights for a game
func (h *Handler) GetHighlights(w http.ResponseWriter, r *http.Request) {
	if h.Highlights == nil {
		respondError(w, http.StatusServiceUnavailable, "highlight archive is not configured")
		return
	}

	gameID := chi.URLParam(r, "game_id")
	highlights, err := h.Highlights.ListByGame(r.Context(), gameID)
	if err != nil {
		respondErr(w, h.Logger, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"game_id":    gameID,
		"highlights": highlights,
		"count":      len(highlights),
	})
}

// GetTeamGames lists a team's games on a date
// Query params: date (YYYY-MM-DD, default today UTC)
func (h *Handler) GetTeamGames(w http.ResponseWriter, r *http.Request) {
	if h.Schedule == nil {
		respondError(w, http.StatusServiceUnavailable, "schedule source is not configured")
		return
	}

	teamID, err := strconv.Atoi(chi.URLParam(r, "team_id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "team_id must be numeric")
		return
	}

	date := time.Now().UTC()
	if d := r.URL.Query().Get("date"); d != "" {
		parsed, err := time.Parse("2006-01-02", d)
		if err != nil {
			respondError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
			return
		}
		date = parsed
	}

	games, err := h.Schedule.FetchSchedule(r.Context(), date, teamID)
	if err != nil {
		respondErr(w, h.Logger, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"team_id": teamID,
		"date":    date.Format("2006-01-02"),
		"games":   games,
		"count":   len(games),
	})
}
