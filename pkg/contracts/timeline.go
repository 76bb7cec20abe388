package contracts

import (
	"context"
	"errors"

	"github.com/XavierBriggs/fortuna/services/game-replay-service/pkg/models"
)

// Loader errors. Implementations wrap one of these so callers can use errors.Is.
var (
	// ErrNotFound means the identifier is unknown upstream
	ErrNotFound = errors.New("timeline not found")

	// ErrUpstreamUnavailable means the upstream could not serve the request (transient)
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
)

// TimelineLoader fetches a complete game timeline.
// It must be safe to call concurrently and must not retry internally.
type TimelineLoader interface {
	LoadTimeline(ctx context.Context, gameID string) (*models.TimelineData, error)
}

// ViewSource yields the revealed view of a timeline on every poll.
// Change detectors depend on this instead of a concrete store so they can
// sit in-process or behind an HTTP boundary.
type ViewSource interface {
	View(ctx context.Context, gameID string) (*models.RevealedView, error)
}

// ViewSourceFunc adapts a function to ViewSource
type ViewSourceFunc func(ctx context.Context, gameID string) (*models.RevealedView, error)

// View calls f(ctx, gameID)
func (f ViewSourceFunc) View(ctx context.Context, gameID string) (*models.RevealedView, error) {
	return f(ctx, gameID)
}

// AtBatSink receives formatted at-bat deltas
type AtBatSink interface {
	PublishAtBat(ctx context.Context, delta *models.AtBatDelta) error
}

// HighlightSink receives event matches (home runs)
type HighlightSink interface {
	PublishHighlight(ctx context.Context, match *models.EventMatch) error
}
