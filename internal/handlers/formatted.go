package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/XavierBriggs/fortuna/services/game-replay-service/internal/detector"
	"github.com/XavierBriggs/fortuna/services/game-replay-service/pkg/models"
	"github.com/go-chi/chi/v5"
)

// Initializer makes sure a replay exists before a poller starts reading it
type Initializer interface {
	Init(ctx context.Context, gameID string, reset bool) (*models.Timeline, error)
}

// InitializerFunc adapts a function to Initializer
type InitializerFunc func(ctx context.Context, gameID string, reset bool) (*models.Timeline, error)

// Init calls f
func (f InitializerFunc) Init(ctx context.Context, gameID string, reset bool) (*models.Timeline, error) {
	return f(ctx, gameID, reset)
}

// LatestReader returns the last at-bat recorded outside this process, or nil
type LatestReader interface {
	ReadLatestAtBat(ctx context.Context, gameID string) (*models.AtBatDelta, error)
}

// FormattedResponse is the body of GET /formatted/game/{game_id}
type FormattedResponse struct {
	GameID     string                `json:"game_id"`
	Status     detector.PollerStatus `json:"status"`
	AtBatIndex *int                  `json:"at_bat_index,omitempty"`
	Game       *models.FormattedAB   `json:"game,omitempty"`
	Emitted    int                   `json:"emitted"`
}

// FormattedHandler serves the latest formatted at-bat per game, starting a
// background poller on first request
type FormattedHandler struct {
	init     Initializer
	orch     *detector.Orchestrator
	fallback LatestReader
	logger   *slog.Logger
}

// NewFormattedHandler creates a formatted play-by-play handler
func NewFormattedHandler(init Initializer, orch *detector.Orchestrator, logger *slog.Logger) *FormattedHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &FormattedHandler{
		init:   init,
		orch:   orch,
		logger: logger.With("component", "formatted_handler"),
	}
}

// WithFallback serves at-bats mirrored by an earlier run until the new poller
// emits its own
func (h *FormattedHandler) WithFallback(r LatestReader) *FormattedHandler {
	h.fallback = r
	return h
}

// Mount registers the formatted routes on r
func (h *FormattedHandler) Mount(r chi.Router) {
	r.Get("/formatted/game/{game_id}", h.GetFormatted)
}

// GetFormatted returns INITIALIZING on the first request for a game and the
// latest completed at-bat afterwards
func (h *FormattedHandler) GetFormatted(w http.ResponseWriter, r *http.Request) {
	gameID := chi.URLParam(r, "game_id")

	if _, ok := h.orch.Get(gameID); !ok {
		if _, err := h.init.Init(r.Context(), gameID, false); err != nil {
			respondErr(w, h.logger, err)
			return
		}
	}

	poller, _ := h.orch.Ensure(gameID)
	latest, status := poller.Latest()
	if latest == nil && h.fallback != nil {
		mirrored, err := h.fallback.ReadLatestAtBat(r.Context(), gameID)
		if err != nil {
			h.logger.Warn("fallback read failed", "game_id", gameID, "error", err)
		}
		latest = mirrored
	}

	resp := FormattedResponse{
		GameID:  gameID,
		Status:  status,
		Emitted: poller.Emitted(),
	}
	if latest != nil {
		idx := latest.AtBatIndex
		resp.AtBatIndex = &idx
		resp.Game = &latest.Game
	}

	respondJSON(w, http.StatusOK, resp)
}

// Reset stops the game's poller so the next request starts from the first at-bat
func (h *FormattedHandler) Reset(gameID string) {
	h.orch.Stop(gameID)
}
