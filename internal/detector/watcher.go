package detector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/XavierBriggs/fortuna/services/game-replay-service/pkg/contracts"
	"github.com/XavierBriggs/fortuna/services/game-replay-service/pkg/models"
	"github.com/google/uuid"
)

// EventWatcher polls a timeline until a predicate matches a newly seen event
// or the watch budget runs out. Every Watch call owns its own seen-set.
type EventWatcher struct {
	source   contracts.ViewSource
	interval time.Duration
	sinks    []contracts.HighlightSink
	logger   *slog.Logger
	now      func() time.Time
}

// NewEventWatcher creates a watcher polling source every interval
func NewEventWatcher(source contracts.ViewSource, interval time.Duration, logger *slog.Logger, sinks ...contracts.HighlightSink) *EventWatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}

	return &EventWatcher{
		source:   source,
		interval: interval,
		sinks:    sinks,
		logger:   logger.With("component", "event_watcher"),
		now:      time.Now,
	}
}

// Watch polls gameID until match reports a newly seen event, the timeline
// completes, or budget elapses. The last two return a match with Found=false.
// Cancelling ctx returns ctx.Err().
func (w *EventWatcher) Watch(ctx context.Context, gameID string, match Predicate, budget time.Duration) (*models.EventMatch, error) {
	watchID := uuid.NewString()
	logger := w.logger.With("game_id", gameID, "watch_id", watchID)

	watchCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	seen := make(map[string]struct{})
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	logger.Info("watch started", "budget", budget, "interval", w.interval)

	for {
		found, complete := w.pollOnce(watchCtx, logger, gameID, seen, match)
		if found != nil {
			found.WatchID = watchID
			logger.Info("watched event found", "event_id", found.EventID, "at_bat_index", found.AtBatIndex)
			w.publish(ctx, logger, found)
			return found, nil
		}
		if complete {
			logger.Info("timeline complete without a match", "seen_events", len(seen))
			return w.notFound(watchID, gameID, "timeline completed without a match"), nil
		}

		select {
		case <-watchCtx.Done():
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			logger.Info("watch budget exhausted", "seen_events", len(seen))
			return w.notFound(watchID, gameID, fmt.Sprintf("no match detected within %s polling window", budget)), nil
		case <-ticker.C:
		}
	}
}

// pollOnce fetches one view and evaluates every event not seen before.
// Fetch errors are logged and left for the next tick.
func (w *EventWatcher) pollOnce(
	ctx context.Context,
	logger *slog.Logger,
	gameID string,
	seen map[string]struct{},
	match Predicate,
) (*models.EventMatch, bool) {
	view, err := w.source.View(ctx, gameID)
	if err != nil {
		if !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
			logger.Warn("view fetch failed, retrying next tick", "error", err)
		}
		return nil, false
	}

	for _, play := range view.Plays {
		for _, ev := range play.Events {
			if _, ok := seen[ev.ID]; ok {
				continue
			}
			seen[ev.ID] = struct{}{}

			if !evaluate(logger, match, play, ev, view.Teams) {
				continue
			}

			m := &models.EventMatch{
				GameID:     gameID,
				Found:      true,
				EventID:    ev.ID,
				AtBatIndex: play.About.AtBatIndex,
				Inning:     play.About.Inning,
				Half:       play.About.HalfInning,
				Team:       battingTeam(play, view.Teams),
				Batter:     play.Matchup.Batter.FullName,
				DetectedAt: w.now(),
			}
			if play.Result != nil {
				m.Description = play.Result.Description
			}
			return m, false
		}
	}

	return nil, view.Complete()
}

// evaluate runs a predicate, treating a panic as "no match"
func evaluate(logger *slog.Logger, match Predicate, play models.Play, ev models.Event, teams models.Teams) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("predicate panicked", "event_id", ev.ID, "panic", r)
			ok = false
		}
	}()
	return match(play, ev, teams)
}

func (w *EventWatcher) notFound(watchID, gameID, msg string) *models.EventMatch {
	return &models.EventMatch{
		WatchID:    watchID,
		GameID:     gameID,
		Found:      false,
		Message:    msg,
		DetectedAt: w.now(),
	}
}

func (w *EventWatcher) publish(ctx context.Context, logger *slog.Logger, match *models.EventMatch) {
	for _, sink := range w.sinks {
		if err := sink.PublishHighlight(ctx, match); err != nil {
			logger.Warn("highlight sink failed", "error", err)
		}
	}
}
