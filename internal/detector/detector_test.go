package detector

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/XavierBriggs/fortuna/services/game-replay-service/internal/replay"
	"github.com/XavierBriggs/fortuna/services/game-replay-service/pkg/contracts"
	"github.com/XavierBriggs/fortuna/services/game-replay-service/pkg/models"
	"github.com/stretchr/testify/require"
)

const (
	metsID     = 121
	philliesID = 143
)

var testTeams = models.Teams{
	Home: models.TeamRef{ID: metsID, Name: "New York Mets"},
	Away: models.TeamRef{ID: philliesID, Name: "Philadelphia Phillies"},
}

// playSpec describes one at-bat of a test timeline
type playSpec struct {
	events    int
	half      string
	eventType string
}

func buildTimeline(specs ...playSpec) []models.Play {
	plays := make([]models.Play, 0, len(specs))
	home, away := 0, 0

	for i, s := range specs {
		if s.eventType == models.EventTypeHomeRun {
			if s.half == models.HalfTop {
				away++
			} else {
				home++
			}
		}

		p := models.Play{
			About:   models.About{AtBatIndex: i, HalfInning: s.half, Inning: i/6 + 1, IsComplete: true},
			Matchup: models.Matchup{Batter: models.PlayerRef{ID: 100 + i, FullName: fmt.Sprintf("Batter %d", i)}},
			Result: &models.PlayResult{
				EventType:   s.eventType,
				Description: fmt.Sprintf("at-bat %d: %s", i, s.eventType),
				AwayScore:   away,
				HomeScore:   home,
			},
		}
		for j := 0; j < s.events; j++ {
			p.Events = append(p.Events, models.Event{ID: fmt.Sprintf("ab%d-ev%d", i, j), Index: j, IsPitch: true})
		}
		plays = append(plays, p)
	}
	return plays
}

type memoryLoader struct {
	plays []models.Play
}

func (l *memoryLoader) LoadTimeline(ctx context.Context, gameID string) (*models.TimelineData, error) {
	return &models.TimelineData{GameID: gameID, Plays: l.plays, Teams: testTeams}, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// tickSource loads plays into a fresh store and returns a source that advances on every poll
func tickSource(t *testing.T, plays []models.Play) (contracts.ViewSource, *replay.Store) {
	t.Helper()
	store := replay.NewStore(&memoryLoader{plays: plays}, discardLogger())
	_, err := store.EnsureLoaded(context.Background(), "g1", false)
	require.NoError(t, err)
	return contracts.ViewSourceFunc(store.AdvanceAndView), store
}

// flakySource fails the first n polls before delegating
type flakySource struct {
	failures atomic.Int64
	next     contracts.ViewSource
}

func (f *flakySource) View(ctx context.Context, gameID string) (*models.RevealedView, error) {
	if f.failures.Add(-1) >= 0 {
		return nil, errors.New("connection refused")
	}
	return f.next.View(ctx, gameID)
}

type recordingSink struct {
	mu         sync.Mutex
	atBats     []models.AtBatDelta
	highlights []models.EventMatch
}

func (s *recordingSink) PublishAtBat(ctx context.Context, delta *models.AtBatDelta) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.atBats = append(s.atBats, *delta)
	return nil
}

func (s *recordingSink) PublishHighlight(ctx context.Context, match *models.EventMatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.highlights = append(s.highlights, *match)
	return nil
}

func (s *recordingSink) atBatIndexes() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int, len(s.atBats))
	for i, d := range s.atBats {
		out[i] = d.AtBatIndex
	}
	return out
}

// waitFor polls cond until it holds or the deadline passes
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}
