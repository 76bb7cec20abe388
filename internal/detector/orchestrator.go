package detector

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/XavierBriggs/fortuna/services/game-replay-service/pkg/contracts"
)

// Orchestrator manages one formatter poller per game
type Orchestrator struct {
	ctx      context.Context
	source   contracts.ViewSource
	tracker  *AtBatTracker
	interval time.Duration
	sinks    []contracts.AtBatSink
	logger   *slog.Logger

	mu      sync.Mutex
	pollers map[string]*managedPoller
	wg      sync.WaitGroup
}

type managedPoller struct {
	poller *FormatterPoller
	cancel context.CancelFunc
}

// NewOrchestrator creates an orchestrator whose pollers live until ctx is cancelled
func NewOrchestrator(
	ctx context.Context,
	source contracts.ViewSource,
	interval time.Duration,
	logger *slog.Logger,
	sinks ...contracts.AtBatSink,
) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}

	return &Orchestrator{
		ctx:      ctx,
		source:   source,
		tracker:  NewAtBatTracker(),
		interval: interval,
		sinks:    sinks,
		logger:   logger,
		pollers:  make(map[string]*managedPoller),
	}
}

// Ensure returns the poller for gameID, starting one if none exists.
// started reports whether this call launched it.
func (o *Orchestrator) Ensure(gameID string) (poller *FormatterPoller, started bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if mp, ok := o.pollers[gameID]; ok {
		return mp.poller, false
	}

	ctx, cancel := context.WithCancel(o.ctx)
	p := NewFormatterPoller(gameID, o.source, o.tracker, o.interval, o.logger, o.sinks...)
	o.pollers[gameID] = &managedPoller{poller: p, cancel: cancel}

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		p.Run(ctx)
	}()

	o.logger.Info("started formatter poller", "game_id", gameID, "active", len(o.pollers))
	return p, true
}

// Get returns the poller for gameID, if any
func (o *Orchestrator) Get(gameID string) (*FormatterPoller, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	mp, ok := o.pollers[gameID]
	if !ok {
		return nil, false
	}
	return mp.poller, true
}

// Stop cancels the poller for gameID and forgets its emitted at-bats,
// so the next Ensure starts from scratch. Used when a timeline is reset.
func (o *Orchestrator) Stop(gameID string) bool {
	o.mu.Lock()
	mp, ok := o.pollers[gameID]
	delete(o.pollers, gameID)
	o.mu.Unlock()

	if !ok {
		return false
	}

	mp.cancel()
	<-mp.poller.Done()
	o.tracker.Reset(gameID)
	o.logger.Info("stopped formatter poller", "game_id", gameID)
	return true
}

// Count returns the number of pollers, finished ones included
func (o *Orchestrator) Count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.pollers)
}

// Wait blocks until every poller has returned
func (o *Orchestrator) Wait() {
	o.wg.Wait()
	o.logger.Info("all formatter pollers stopped")
}
