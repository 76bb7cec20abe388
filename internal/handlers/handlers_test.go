package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/XavierBriggs/fortuna/services/game-replay-service/internal/detector"
	"github.com/XavierBriggs/fortuna/services/game-replay-service/internal/replay"
	"github.com/XavierBriggs/fortuna/services/game-replay-service/pkg/contracts"
	"github.com/XavierBriggs/fortuna/services/game-replay-service/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const metsID = 121

var teams = models.Teams{
	Home: models.TeamRef{ID: metsID, Name: "New York Mets"},
	Away: models.TeamRef{ID: 143, Name: "Philadelphia Phillies"},
}

// play builds an at-bat with n events
func play(idx, n int, half, eventType string) models.Play {
	p := models.Play{
		About:   models.About{AtBatIndex: idx, HalfInning: half, Inning: 1, IsComplete: true},
		Matchup: models.Matchup{Batter: models.PlayerRef{ID: idx, FullName: fmt.Sprintf("Batter %d", idx)}},
		Result:  &models.PlayResult{EventType: eventType, Description: fmt.Sprintf("ab %d %s", idx, eventType)},
	}
	for j := 0; j < n; j++ {
		p.Events = append(p.Events, models.Event{ID: fmt.Sprintf("ab%d-ev%d", idx, j), Index: j})
	}
	return p
}

type stubLoader struct {
	games map[string][]models.Play
	err   error
}

func (l *stubLoader) LoadTimeline(ctx context.Context, gameID string) (*models.TimelineData, error) {
	if l.err != nil {
		return nil, l.err
	}
	plays, ok := l.games[gameID]
	if !ok {
		return nil, fmt.Errorf("game %s: %w", gameID, contracts.ErrNotFound)
	}
	return &models.TimelineData{GameID: gameID, Plays: plays, Teams: teams}, nil
}

type stubSchedule struct {
	gotDate time.Time
	gotTeam int
}

func (s *stubSchedule) FetchSchedule(ctx context.Context, date time.Time, teamID int) ([]models.ScheduledGame, error) {
	s.gotDate, s.gotTeam = date, teamID
	return []models.ScheduledGame{{GameID: "745123", Home: teams.Home, Away: teams.Away}}, nil
}

type stubHighlights struct{}

func (stubHighlights) ListByGame(ctx context.Context, gameID string) ([]models.EventMatch, error) {
	return []models.EventMatch{{GameID: gameID, EventID: "ab1-ev1", Found: true}}, nil
}

type fixture struct {
	srv      *httptest.Server
	store    *replay.Store
	schedule *stubSchedule
}

func newFixture(t *testing.T, loader contracts.TimelineLoader) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	store := replay.NewStore(loader, logger)
	tick := contracts.ViewSourceFunc(store.AdvanceAndView)
	orch := detector.NewOrchestrator(ctx, tick, time.Millisecond, logger)
	schedule := &stubSchedule{}

	h := NewHandler(Deps{
		Store:         store,
		Watcher:       detector.NewEventWatcher(tick, time.Millisecond, logger),
		Formatted:     NewFormattedHandler(InitializerFunc(store.EnsureLoaded), orch, logger),
		Schedule:      schedule,
		Highlights:    stubHighlights{},
		Logger:        logger,
		DefaultTeamID: metsID,
		WatchBudget:   5 * time.Second,
	})

	srv := httptest.NewServer(h.Router(ctx, []string{"*"}))
	t.Cleanup(srv.Close)
	return &fixture{srv: srv, store: store, schedule: schedule}
}

func defaultGames() *stubLoader {
	return &stubLoader{games: map[string][]models.Play{
		"g1": {
			play(0, 3, models.HalfTop, "strikeout"),
			play(1, 2, models.HalfBottom, models.EventTypeHomeRun),
		},
	}}
}

func (f *fixture) do(t *testing.T, method, path string, out interface{}) int {
	t.Helper()
	req, err := http.NewRequest(method, f.srv.URL+path, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestLiveReplay_TicksThroughGame(t *testing.T) {
	f := newFixture(t, defaultGames())

	var view models.RevealedView
	cursors := []int{}
	for i := 0; i < 7; i++ {
		require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/replay/game/g1/live", &view))
		cursors = append(cursors, view.Cursor)
	}

	assert.Equal(t, []int{1, 2, 3, 4, 5, 5, 5}, cursors)
	assert.Equal(t, models.LifecycleComplete, view.Lifecycle)
	require.Len(t, view.Plays, 2)
	assert.NotNil(t, view.Plays[1].Result)
}

func TestLiveReplay_PartialPlayHasNoResult(t *testing.T) {
	f := newFixture(t, defaultGames())

	var view models.RevealedView
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/replay/game/g1/live", &view))

	require.Len(t, view.Plays, 1)
	assert.Len(t, view.Plays[0].Events, 1)
	assert.Nil(t, view.Plays[0].Result)
	assert.False(t, view.Plays[0].About.IsComplete)
}

func TestInitReplay_Reset(t *testing.T) {
	f := newFixture(t, defaultGames())

	var tl models.Timeline
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/replay/game/g1/init", &tl))
	assert.Equal(t, 5, tl.TotalEvents)
	assert.Equal(t, 0, tl.Cursor)

	f.do(t, http.MethodGet, "/replay/game/g1/live", nil)
	f.do(t, http.MethodGet, "/replay/game/g1/live", nil)

	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/replay/game/g1/init", &tl))
	assert.Equal(t, 2, tl.Cursor, "init without reset keeps the session")

	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/replay/game/g1/init?reset=true", &tl))
	assert.Equal(t, 0, tl.Cursor)
	assert.Equal(t, int64(2), tl.Generation)
}

func TestErrorMapping(t *testing.T) {
	t.Run("unknown game is 404", func(t *testing.T) {
		f := newFixture(t, defaultGames())
		var body ErrorResponse
		assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/replay/game/nope/live", &body))
		assert.Equal(t, http.StatusNotFound, body.Code)
	})

	t.Run("view before init is 409", func(t *testing.T) {
		f := newFixture(t, defaultGames())
		assert.Equal(t, http.StatusConflict, f.do(t, http.MethodGet, "/replay/game/g1", nil))
	})

	t.Run("upstream failure is 502", func(t *testing.T) {
		f := newFixture(t, &stubLoader{err: fmt.Errorf("dial: %w", contracts.ErrUpstreamUnavailable)})
		assert.Equal(t, http.StatusBadGateway, f.do(t, http.MethodPost, "/replay/game/g1/init", nil))
	})
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, StatusFor(fmt.Errorf("x: %w", contracts.ErrNotFound)))
	assert.Equal(t, http.StatusConflict, StatusFor(replay.ErrStaleSession))
	assert.Equal(t, http.StatusBadGateway, StatusFor(replay.ErrLoadFailed))
	assert.Equal(t, http.StatusInternalServerError, StatusFor(replay.ErrInvalidCursorState))
	assert.Equal(t, http.StatusInternalServerError, StatusFor(errors.New("boom")))
}

func TestGetReplay_DoesNotAdvance(t *testing.T) {
	f := newFixture(t, defaultGames())
	f.do(t, http.MethodGet, "/replay/game/g1/live", nil)

	var view models.RevealedView
	for i := 0; i < 3; i++ {
		require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/replay/game/g1", &view))
	}
	assert.Equal(t, 1, view.Cursor)
}

func TestStatusAndSessions(t *testing.T) {
	f := newFixture(t, defaultGames())

	var status map[string]interface{}
	f.do(t, http.MethodGet, "/replay/game/g1/status", &status)
	assert.Equal(t, string(models.LifecycleUninitialized), status["status"])
	assert.Equal(t, float64(detector.NoneProcessed), status["last_at_bat"])

	f.do(t, http.MethodPost, "/replay/game/g1/init", nil)
	for i := 0; i < 4; i++ {
		f.do(t, http.MethodGet, "/replay/game/g1/next-at-bat", nil)
	}
	f.do(t, http.MethodGet, "/replay/game/g1/status", &status)
	assert.Equal(t, string(models.LifecycleActive), status["status"])
	assert.Equal(t, float64(0), status["last_at_bat"])

	var sessions struct {
		Count int `json:"count"`
	}
	f.do(t, http.MethodGet, "/replay/sessions", &sessions)
	assert.Equal(t, 1, sessions.Count)

	assert.Equal(t, http.StatusNoContent, f.do(t, http.MethodDelete, "/replay/game/g1", nil))
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodDelete, "/replay/game/g1", nil))
}

func TestWatchHomeRun(t *testing.T) {
	f := newFixture(t, defaultGames())

	var match models.EventMatch
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/replay/game/g1/watch-homer", &match))
	assert.True(t, match.Found)
	assert.Equal(t, "ab1-ev1", match.EventID)
	assert.Equal(t, "New York Mets", match.Team)
}

func TestWatchHomeRun_OtherTeamNotFound(t *testing.T) {
	f := newFixture(t, defaultGames())

	var match models.EventMatch
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/replay/game/g1/watch-homer?team_id=143&poll_seconds=0", &match))
	assert.False(t, match.Found)
	assert.NotEmpty(t, match.Message)
}

func TestWatchHomeRun_PollSecondsIsTheWindow(t *testing.T) {
	// one long at-bat that cannot finish within the window
	f := newFixture(t, &stubLoader{games: map[string][]models.Play{
		"long": {play(0, 3000, models.HalfBottom, "walk")},
	}})

	start := time.Now()
	var match models.EventMatch
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/replay/game/long/watch-homer?poll_seconds=1", &match))
	elapsed := time.Since(start)

	assert.False(t, match.Found)
	assert.Contains(t, match.Message, "1s")
	assert.GreaterOrEqual(t, elapsed, 900*time.Millisecond)
	assert.Less(t, elapsed, 4*time.Second)
}

func TestWatchWindow(t *testing.T) {
	h := &Handler{Deps: Deps{WatchBudget: 5 * time.Minute}}

	tests := []struct {
		pollSeconds int
		want        time.Duration
	}{
		{0, 5 * time.Minute},
		{-3, 5 * time.Minute},
		{1, time.Second},
		{300, 5 * time.Minute},
		{3600, 5 * time.Minute},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, h.watchWindow(tt.pollSeconds), "poll_seconds=%d", tt.pollSeconds)
	}
}

func TestListHomeRuns(t *testing.T) {
	f := newFixture(t, defaultGames())
	for i := 0; i < 5; i++ {
		f.do(t, http.MethodGet, "/replay/game/g1/live", nil)
	}

	var body struct {
		Count    int              `json:"count"`
		HomeRuns []models.HomeRun `json:"home_runs"`
	}
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/replay/game/g1/homers", &body))
	assert.Equal(t, 1, body.Count)
	assert.Equal(t, "Batter 1", body.HomeRuns[0].Batter)
}

func TestNextAtBat(t *testing.T) {
	f := newFixture(t, defaultGames())

	kinds := []detector.OutcomeKind{}
	for i := 0; i < 6; i++ {
		var outcome detector.Outcome
		require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/replay/game/g1/next-at-bat", &outcome))
		kinds = append(kinds, outcome.Kind)
	}

	assert.Equal(t, []detector.OutcomeKind{
		detector.OutcomeInProgress,
		detector.OutcomeInProgress,
		detector.OutcomeDelta,
		detector.OutcomeInProgress,
		detector.OutcomeDelta,
		detector.OutcomeComplete,
	}, kinds)
}

func TestFormatted_InitializingThenLatest(t *testing.T) {
	f := newFixture(t, defaultGames())

	var first FormattedResponse
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/formatted/game/g1", &first))
	assert.Contains(t, []detector.PollerStatus{detector.PollerInitializing, detector.PollerRunning, detector.PollerComplete}, first.Status)

	var resp FormattedResponse
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		f.do(t, http.MethodGet, "/formatted/game/g1", &resp)
		if resp.Status == detector.PollerComplete {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	require.Equal(t, detector.PollerComplete, resp.Status)
	require.NotNil(t, resp.AtBatIndex)
	assert.Equal(t, 1, *resp.AtBatIndex)
	assert.Equal(t, 2, resp.Emitted)
	assert.Equal(t, 1, resp.Game.Inning.Number)
}

func TestInitReset_StopsFormatterBeforeReload(t *testing.T) {
	f := newFixture(t, &stubLoader{games: map[string][]models.Play{
		"long": {play(0, 3000, models.HalfBottom, "walk")},
	}})

	f.do(t, http.MethodGet, "/formatted/game/long", nil)
	var view models.RevealedView
	deadline := time.Now().Add(2 * time.Second)
	for view.Cursor < 10 && time.Now().Before(deadline) {
		f.do(t, http.MethodGet, "/replay/game/long", &view)
		time.Sleep(5 * time.Millisecond)
	}
	require.GreaterOrEqual(t, view.Cursor, 10, "formatter poller should be advancing the replay")

	var tl models.Timeline
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/replay/game/long/init?reset=true", &tl))
	assert.Equal(t, 0, tl.Cursor)

	time.Sleep(20 * time.Millisecond)
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/replay/game/long", &view))
	assert.Equal(t, 0, view.Cursor)

	var metrics map[string]interface{}
	f.do(t, http.MethodGet, "/metrics", &metrics)
	assert.Equal(t, float64(0), metrics["formatter_pollers"])
}

func TestFormatted_UnknownGame(t *testing.T) {
	f := newFixture(t, defaultGames())
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/formatted/game/nope", nil))
}

func TestGetTeamGames(t *testing.T) {
	f := newFixture(t, defaultGames())

	var body struct {
		Count int    `json:"count"`
		Date  string `json:"date"`
	}
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/teams/121/games?date=2024-04-01", &body))
	assert.Equal(t, 1, body.Count)
	assert.Equal(t, "2024-04-01", body.Date)
	assert.Equal(t, 121, f.schedule.gotTeam)

	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/teams/mets/games", nil))
	assert.Equal(t, http.StatusBadRequest, f.do(t, http.MethodGet, "/teams/121/games?date=april", nil))
}

func TestGetHighlights(t *testing.T) {
	f := newFixture(t, defaultGames())

	var body struct {
		Count int `json:"count"`
	}
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/highlights/game/g1", &body))
	assert.Equal(t, 1, body.Count)
}

func TestHealthAndMetrics(t *testing.T) {
	f := newFixture(t, defaultGames())
	f.do(t, http.MethodPost, "/replay/game/g1/init", nil)

	var health map[string]interface{}
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/health", &health))
	assert.Equal(t, "healthy", health["status"])

	var metrics map[string]interface{}
	require.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/metrics", &metrics))
	assert.Equal(t, float64(1), metrics["sessions"])
	assert.Equal(t, float64(1), metrics["loads"])
}

type stubLatest struct{ delta *models.AtBatDelta }

func (s stubLatest) ReadLatestAtBat(ctx context.Context, gameID string) (*models.AtBatDelta, error) {
	return s.delta, nil
}

func TestFormatted_FallsBackToMirroredAtBat(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// the remote replay is mid at-bat, so the fresh poller has nothing yet
	source := contracts.ViewSourceFunc(func(ctx context.Context, gameID string) (*models.RevealedView, error) {
		p := play(8, 2, models.HalfTop, "")
		p.Result = nil
		return &models.RevealedView{GameID: gameID, Teams: teams, Plays: []models.Play{p}, Cursor: 1, TotalEvents: 40, Lifecycle: models.LifecycleActive}, nil
	})
	orch := detector.NewOrchestrator(ctx, source, time.Millisecond, logger)
	initFn := InitializerFunc(func(ctx context.Context, gameID string, reset bool) (*models.Timeline, error) {
		return &models.Timeline{GameID: gameID}, nil
	})

	fh := NewFormattedHandler(initFn, orch, logger).WithFallback(stubLatest{delta: &models.AtBatDelta{GameID: "g1", AtBatIndex: 7}})
	r := NewBaseRouter(logger, nil)
	fh.Mount(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/formatted/game/g1", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp FormattedResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.NotNil(t, resp.AtBatIndex)
	assert.Equal(t, 7, *resp.AtBatIndex)
	assert.Equal(t, 0, resp.Emitted)

	orch.Stop("g1")
}
