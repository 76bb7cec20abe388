package detector

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/XavierBriggs/fortuna/services/game-replay-service/pkg/contracts"
	"github.com/XavierBriggs/fortuna/services/game-replay-service/pkg/models"
)

// PollerStatus is the externally visible state of a FormatterPoller
type PollerStatus string

const (
	PollerInitializing PollerStatus = "INITIALIZING"
	PollerRunning      PollerStatus = "RUNNING"
	PollerComplete     PollerStatus = "COMPLETE"
	PollerStopped      PollerStatus = "STOPPED"
)

// FormatterPoller polls one game and keeps the latest formatted at-bat
type FormatterPoller struct {
	gameID   string
	source   contracts.ViewSource
	tracker  *AtBatTracker
	interval time.Duration
	sinks    []contracts.AtBatSink
	logger   *slog.Logger

	mu      sync.RWMutex
	latest  *models.AtBatDelta
	status  PollerStatus
	emitted int

	done chan struct{}
}

// NewFormatterPoller creates a poller for one game
func NewFormatterPoller(
	gameID string,
	source contracts.ViewSource,
	tracker *AtBatTracker,
	interval time.Duration,
	logger *slog.Logger,
	sinks ...contracts.AtBatSink,
) *FormatterPoller {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = time.Second
	}

	return &FormatterPoller{
		gameID:   gameID,
		source:   source,
		tracker:  tracker,
		interval: interval,
		sinks:    sinks,
		logger:   logger.With("component", "formatter_poller", "game_id", gameID),
		status:   PollerInitializing,
		done:     make(chan struct{}),
	}
}

// Run polls until the timeline completes or ctx is cancelled
func (p *FormatterPoller) Run(ctx context.Context) {
	defer close(p.done)
	p.logger.Info("starting poller", "interval", p.interval)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		if p.pollOnce(ctx) {
			p.setStatus(PollerComplete)
			p.logger.Info("timeline complete, poller finished", "emitted", p.Emitted())
			return
		}

		select {
		case <-ctx.Done():
			p.setStatus(PollerStopped)
			p.logger.Info("stopping poller")
			return
		case <-ticker.C:
		}
	}
}

// pollOnce performs one polling cycle and reports whether polling should stop
func (p *FormatterPoller) pollOnce(ctx context.Context) bool {
	outcome, err := p.tracker.Next(ctx, p.source, p.gameID)
	if err != nil {
		if ctx.Err() == nil {
			p.logger.Warn("view fetch failed, retrying next tick", "error", err)
		}
		return false
	}

	switch outcome.Kind {
	case OutcomeDelta:
		for _, delta := range outcome.Deltas {
			p.record(delta)
			p.publish(ctx, delta)
			p.logger.Info("at-bat emitted",
				"at_bat_index", delta.AtBatIndex,
				"cursor", outcome.Cursor,
				"event", delta.Game.GameEvent)
		}
		return false
	case OutcomeComplete:
		return true
	default:
		return false
	}
}

func (p *FormatterPoller) record(delta *models.AtBatDelta) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.latest = delta
	p.status = PollerRunning
	p.emitted++
}

func (p *FormatterPoller) publish(ctx context.Context, delta *models.AtBatDelta) {
	for _, sink := range p.sinks {
		if err := sink.PublishAtBat(ctx, delta); err != nil {
			p.logger.Warn("at-bat sink failed", "at_bat_index", delta.AtBatIndex, "error", err)
		}
	}
}

func (p *FormatterPoller) setStatus(status PollerStatus) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status = status
}

// Latest returns the most recent delta (nil before the first one) and the poller status
func (p *FormatterPoller) Latest() (*models.AtBatDelta, PollerStatus) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.latest, p.status
}

// Emitted returns how many deltas the poller has produced
func (p *FormatterPoller) Emitted() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.emitted
}

// Done is closed when Run returns
func (p *FormatterPoller) Done() <-chan struct{} {
	return p.done
}
