package replay

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/XavierBriggs/fortuna/services/game-replay-service/pkg/contracts"
	"github.com/XavierBriggs/fortuna/services/game-replay-service/pkg/models"
	"golang.org/x/sync/singleflight"
)

// mirrorTimeout bounds a single best-effort snapshot write
const mirrorTimeout = 2 * time.Second

// SnapshotMirror receives the timeline summary after every load and tick
type SnapshotMirror interface {
	WriteTimeline(ctx context.Context, timeline *models.Timeline) error
}

// session is the mutable replay state of one game. All fields are guarded by mu.
type session struct {
	mu          sync.Mutex
	gameID      string
	plays       []models.Play
	totalEvents int
	cursor      int
	teams       models.Teams
	lifecycle   models.Lifecycle
	generation  int64
	loadedAt    time.Time
}

func (s *session) summary() *models.Timeline {
	return &models.Timeline{
		GameID:      s.gameID,
		TotalEvents: s.totalEvents,
		TotalPlays:  len(s.plays),
		Cursor:      s.cursor,
		Teams:       s.teams,
		Lifecycle:   s.lifecycle,
		Generation:  s.generation,
		LoadedAt:    s.loadedAt,
	}
}

func (s *session) view() (*models.RevealedView, error) {
	if s.cursor < 0 || s.cursor > s.totalEvents {
		return nil, fmt.Errorf("%w: game=%s cursor=%d total=%d",
			ErrInvalidCursorState, s.gameID, s.cursor, s.totalEvents)
	}

	return &models.RevealedView{
		GameID:      s.gameID,
		Teams:       s.teams,
		Plays:       Reveal(s.plays, s.cursor),
		Cursor:      s.cursor,
		TotalEvents: s.totalEvents,
		Lifecycle:   s.lifecycle,
	}, nil
}

// Store is the registry of replay sessions, keyed by game ID.
// Operations on one game are serialized by that game's lock; different games
// never wait on each other beyond the brief registry lookup.
type Store struct {
	loader contracts.TimelineLoader
	logger *slog.Logger
	mirror SnapshotMirror
	now    func() time.Time

	mu       sync.RWMutex
	sessions map[string]*session
	loading  map[string]bool

	group      singleflight.Group
	generation atomic.Int64
	loads      atomic.Int64
}

// NewStore creates an empty session store backed by loader
func NewStore(loader contracts.TimelineLoader, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}

	return &Store{
		loader:   loader,
		logger:   logger.With("component", "replay_store"),
		now:      time.Now,
		sessions: make(map[string]*session),
		loading:  make(map[string]bool),
	}
}

// SetMirror attaches a snapshot mirror. Call before serving traffic.
func (s *Store) SetMirror(m SnapshotMirror) {
	s.mirror = m
}

// EnsureLoaded returns the session summary for gameID, loading it first when
// no session exists or reset is set. Concurrent loads of the same game
// collapse into a single loader call; every waiter gets the same result or
// the same error. A failed load leaves no session behind.
func (s *Store) EnsureLoaded(ctx context.Context, gameID string, reset bool) (*models.Timeline, error) {
	if !reset {
		if sess := s.lookup(gameID); sess != nil {
			return s.lockedSummary(sess), nil
		}
	}

	v, err, shared := s.group.Do(gameID, func() (interface{}, error) {
		if !reset {
			if sess := s.lookup(gameID); sess != nil {
				return s.lockedSummary(sess), nil
			}
		}
		// the winner's cancellation must not fail the callers sharing its result
		return s.load(context.WithoutCancel(ctx), gameID, reset)
	})
	if err != nil {
		return nil, err
	}

	timeline := v.(*models.Timeline)
	if shared {
		s.logger.Debug("shared in-flight load", "game_id", gameID, "generation", timeline.Generation)
	}

	// hand each caller its own copy
	out := *timeline
	return &out, nil
}

// load fetches the timeline and installs a fresh session. Runs inside the single-flight group.
func (s *Store) load(ctx context.Context, gameID string, reset bool) (*models.Timeline, error) {
	s.mu.Lock()
	if reset {
		delete(s.sessions, gameID)
	}
	s.loading[gameID] = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.loading, gameID)
		s.mu.Unlock()
	}()

	s.logger.Info("loading timeline", "game_id", gameID, "reset", reset)
	s.loads.Add(1)

	data, err := s.loader.LoadTimeline(ctx, gameID)
	if err != nil {
		s.logger.Warn("timeline load failed", "game_id", gameID, "error", err)
		return nil, fmt.Errorf("%w: game %s: %w", ErrLoadFailed, gameID, err)
	}

	sess := &session{
		gameID:      gameID,
		plays:       data.Plays,
		totalEvents: models.CountEvents(data.Plays),
		cursor:      0,
		teams:       data.Teams,
		lifecycle:   models.LifecycleActive,
		generation:  s.generation.Add(1),
		loadedAt:    s.now(),
	}
	if sess.totalEvents == 0 {
		sess.lifecycle = models.LifecycleComplete
	}

	summary := sess.summary()

	s.mu.Lock()
	s.sessions[gameID] = sess
	s.mu.Unlock()

	s.logger.Info("timeline loaded",
		"game_id", gameID,
		"plays", summary.TotalPlays,
		"total_events", summary.TotalEvents,
		"generation", summary.Generation)

	s.mirrorSnapshot(ctx, summary)
	return summary, nil
}

// AdvanceAndView reveals one more event (while any remain) and returns the
// resulting view. After the last event it keeps returning the final view.
func (s *Store) AdvanceAndView(ctx context.Context, gameID string) (*models.RevealedView, error) {
	sess := s.lookup(gameID)
	if sess == nil {
		return nil, fmt.Errorf("%w: game %s", ErrStaleSession, gameID)
	}

	sess.mu.Lock()
	if sess.cursor < sess.totalEvents {
		sess.cursor++
	}
	if sess.cursor == sess.totalEvents {
		sess.lifecycle = models.LifecycleComplete
	}
	view, err := sess.view()
	summary := sess.summary()
	sess.mu.Unlock()

	if err != nil {
		s.logger.Error("cursor invariant violated", "game_id", gameID, "error", err)
		return nil, err
	}

	s.mirrorSnapshot(ctx, summary)
	return view, nil
}

// View returns the revealed view at the current cursor without advancing it
func (s *Store) View(ctx context.Context, gameID string) (*models.RevealedView, error) {
	sess := s.lookup(gameID)
	if sess == nil {
		return nil, fmt.Errorf("%w: game %s", ErrStaleSession, gameID)
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	view, err := sess.view()
	if err != nil {
		s.logger.Error("cursor invariant violated", "game_id", gameID, "error", err)
		return nil, err
	}
	return view, nil
}

// Status returns the lifecycle of gameID
func (s *Store) Status(gameID string) models.Lifecycle {
	s.mu.RLock()
	loading := s.loading[gameID]
	sess := s.sessions[gameID]
	s.mu.RUnlock()

	switch {
	case loading:
		return models.LifecycleLoading
	case sess == nil:
		return models.LifecycleUninitialized
	default:
		sess.mu.Lock()
		defer sess.mu.Unlock()
		return sess.lifecycle
	}
}

// Evict drops the session for gameID. Returns false if none existed.
func (s *Store) Evict(gameID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[gameID]; !ok {
		return false
	}
	delete(s.sessions, gameID)
	s.logger.Info("session evicted", "game_id", gameID)
	return true
}

// Sessions returns summaries of all sessions ordered by game ID
func (s *Store) Sessions() []models.Timeline {
	s.mu.RLock()
	sessions := make([]*session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.RUnlock()

	out := make([]models.Timeline, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, *s.lockedSummary(sess))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GameID < out[j].GameID })
	return out
}

// Loads returns how many times the loader has been invoked
func (s *Store) Loads() int64 {
	return s.loads.Load()
}

func (s *Store) lookup(gameID string) *session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessions[gameID]
}

func (s *Store) lockedSummary(sess *session) *models.Timeline {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.summary()
}

// mirrorSnapshot writes the summary to the mirror, if any. Failures are logged only.
func (s *Store) mirrorSnapshot(ctx context.Context, summary *models.Timeline) {
	if s.mirror == nil {
		return
	}

	mctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), mirrorTimeout)
	defer cancel()

	if err := s.mirror.WriteTimeline(mctx, summary); err != nil {
		s.logger.Warn("snapshot mirror write failed", "game_id", summary.GameID, "error", err)
	}
}
