package detector

import (
	"context"
	"sync"
	"time"

	"github.com/XavierBriggs/fortuna/services/game-replay-service/pkg/contracts"
	"github.com/XavierBriggs/fortuna/services/game-replay-service/pkg/models"
)

// NoneProcessed is the sentinel for a timeline with no emitted at-bat yet
const NoneProcessed = -1

// OutcomeKind classifies the result of observing one revealed view
type OutcomeKind string

const (
	OutcomeDelta      OutcomeKind = "delta"       // a new at-bat completed
	OutcomeInProgress OutcomeKind = "in_progress" // the latest at-bat has not concluded
	OutcomeDuplicate  OutcomeKind = "duplicate"   // the latest at-bat was already emitted
	OutcomeComplete   OutcomeKind = "complete"    // the timeline ended and everything was emitted
	OutcomeWaiting    OutcomeKind = "waiting"     // nothing revealed yet
)

// Outcome is what AtBatTracker.Observe reports for one view.
// Deltas holds every at-bat completed since the previous observation, oldest
// first; more than one means other callers advanced the cursor in between.
// Delta is the newest of them.
type Outcome struct {
	Kind   OutcomeKind          `json:"kind"`
	Delta  *models.AtBatDelta   `json:"delta,omitempty"`
	Deltas []*models.AtBatDelta `json:"deltas,omitempty"`
	Cursor int                  `json:"cursor"`
}

// AtBatTracker remembers the highest at-bat index emitted per timeline so
// that every completed at-bat is reported at most once.
type AtBatTracker struct {
	mu   sync.Mutex
	last map[string]int
	now  func() time.Time
}

// NewAtBatTracker creates an empty tracker
func NewAtBatTracker() *AtBatTracker {
	return &AtBatTracker{
		last: make(map[string]int),
		now:  time.Now,
	}
}

// LastProcessed returns the highest emitted at-bat index, or NoneProcessed
func (t *AtBatTracker) LastProcessed(gameID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastLocked(gameID)
}

// Reset forgets what was emitted for gameID (used when the timeline is reloaded)
func (t *AtBatTracker) Reset(gameID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.last, gameID)
}

// Observe reports every resolved at-bat above the last emitted index, so an
// at-bat that completed between two observations is still emitted once.
// The last at-bat of a completed timeline is emitted before Complete is reported.
func (t *AtBatTracker) Observe(view *models.RevealedView) Outcome {
	out := Outcome{Cursor: view.Cursor}

	latest, ok := view.LastPlay()
	if !ok {
		out.Kind = OutcomeWaiting
		if view.Complete() {
			out.Kind = OutcomeComplete
		}
		return out
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	last := t.lastLocked(view.GameID)
	at := t.now()
	for _, play := range view.Plays {
		if !play.Resolved() || play.About.AtBatIndex <= last {
			continue
		}
		last = play.About.AtBatIndex
		out.Deltas = append(out.Deltas, FormatAtBat(view.GameID, play, view.Teams, at))
	}

	switch {
	case len(out.Deltas) > 0:
		t.last[view.GameID] = last
		out.Kind = OutcomeDelta
		out.Delta = out.Deltas[len(out.Deltas)-1]
	case view.Complete():
		out.Kind = OutcomeComplete
	case !latest.Resolved():
		out.Kind = OutcomeInProgress
	default:
		out.Kind = OutcomeDuplicate
	}
	return out
}

// Next fetches one view from source and observes it
func (t *AtBatTracker) Next(ctx context.Context, source contracts.ViewSource, gameID string) (Outcome, error) {
	view, err := source.View(ctx, gameID)
	if err != nil {
		return Outcome{}, err
	}
	return t.Observe(view), nil
}

func (t *AtBatTracker) lastLocked(gameID string) int {
	if idx, ok := t.last[gameID]; ok {
		return idx
	}
	return NoneProcessed
}

// FormatAtBat renders a resolved play as a play-by-play delta
func FormatAtBat(gameID string, play models.Play, teams models.Teams, at time.Time) *models.AtBatDelta {
	delta := &models.AtBatDelta{
		GameID:     gameID,
		AtBatIndex: play.About.AtBatIndex,
		Game: models.FormattedAB{
			Inning: models.InningLabel{
				Half:   play.About.HalfInning,
				Number: play.About.Inning,
			},
			Score: models.Scoreline{
				Away: models.TeamScore{Team: teams.Away.Name},
				Home: models.TeamScore{Team: teams.Home.Name},
			},
		},
		EmittedAt: at,
	}

	if play.Result != nil {
		delta.Game.Score.Away.Score = play.Result.AwayScore
		delta.Game.Score.Home.Score = play.Result.HomeScore
		delta.Game.GameEvent = play.Result.Description
	}

	return delta
}
