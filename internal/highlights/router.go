package highlights

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/XavierBriggs/fortuna/services/game-replay-service/internal/archive"
	"github.com/XavierBriggs/fortuna/services/game-replay-service/internal/retry"
	"github.com/XavierBriggs/fortuna/services/game-replay-service/pkg/models"
)

// Claimer decides whether a match is new (backed by internal/dedup).
// Clear releases a claim whose delivery failed so a redelivery can retry it.
type Claimer interface {
	ShouldNotify(ctx context.Context, match *models.EventMatch) (bool, error)
	Clear(ctx context.Context, match *models.EventMatch) error
}

// Recorder archives a match and reports whether it was new (backed by internal/archive)
type Recorder interface {
	Record(ctx context.Context, match *models.EventMatch) (bool, error)
}

// Notifier delivers a match to humans (backed by internal/notifier)
type Notifier interface {
	SendHighlight(ctx context.Context, match *models.EventMatch) error
}

// Router fans a found event out to the archive and the notifier, once per event.
// Every stage is optional.
type Router struct {
	claimer  Claimer
	recorder Recorder
	notifier Notifier
	retry    *retry.RetryPolicy
	logger   *slog.Logger
}

// Option configures a Router
type Option func(*Router)

// WithClaimer enables cross-process deduplication
func WithClaimer(c Claimer) Option { return func(r *Router) { r.claimer = c } }

// WithRecorder enables archiving
func WithRecorder(rec Recorder) Option { return func(r *Router) { r.recorder = rec } }

// WithNotifier enables notifications
func WithNotifier(n Notifier) Option { return func(r *Router) { r.notifier = n } }

// NewRouter creates a router
func NewRouter(logger *slog.Logger, opts ...Option) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Router{
		retry:  retry.NewRetryPolicy(3, 200*time.Millisecond),
		logger: logger.With("component", "highlight_router"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// PublishHighlight implements contracts.HighlightSink
func (r *Router) PublishHighlight(ctx context.Context, match *models.EventMatch) error {
	if !match.Found {
		return nil
	}

	claimed := false
	if r.claimer != nil {
		ok, err := r.claimer.ShouldNotify(ctx, match)
		if err != nil {
			// fail open: a duplicate notification beats a missed one
			r.logger.Warn("dedup check failed", "game_id", match.GameID, "event_id", match.EventID, "error", err)
		} else if !ok {
			r.logger.Debug("duplicate highlight suppressed", "game_id", match.GameID, "event_id", match.EventID)
			return nil
		}
		claimed = ok
	}

	var errs []error

	if r.recorder != nil {
		err := r.retry.Execute(ctx, func(ctx context.Context) error {
			_, err := r.recorder.Record(ctx, match)
			if err != nil && !archive.IsConnectionError(err) {
				return retry.Permanent(err)
			}
			return err
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("archive: %w", err))
		}
	}

	if r.notifier != nil {
		if err := r.notifier.SendHighlight(ctx, match); err != nil {
			errs = append(errs, fmt.Errorf("notify: %w", err))
		}
	}

	if len(errs) > 0 {
		if claimed {
			// archive writes are idempotent, so a retried delivery only risks a repeat post
			if err := r.claimer.Clear(context.WithoutCancel(ctx), match); err != nil {
				errs = append(errs, fmt.Errorf("release claim: %w", err))
			}
		}
		return errors.Join(errs...)
	}

	r.logger.Info("highlight routed",
		"game_id", match.GameID,
		"event_id", match.EventID,
		"team", match.Team,
		"batter", match.Batter)
	return nil
}
