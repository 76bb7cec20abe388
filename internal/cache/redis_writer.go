package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/XavierBriggs/fortuna/services/game-replay-service/pkg/models"
	"github.com/redis/go-redis/v9"
)

// TTL constants
const (
	ActiveReplayTTL   = 2 * time.Hour
	CompleteReplayTTL = 6 * time.Hour
	LatestAtBatTTL    = 6 * time.Hour
)

// RedisWriter mirrors replay state into Redis so other services can read it
// without talking to the replay process
type RedisWriter struct {
	client *redis.Client
}

// NewRedisWriter creates a new Redis writer
func NewRedisWriter(client *redis.Client) *RedisWriter {
	return &RedisWriter{
		client: client,
	}
}

func stateKey(gameID string) string  { return fmt.Sprintf("replay:%s:state", gameID) }
func latestKey(gameID string) string { return fmt.Sprintf("replay:%s:latest", gameID) }

const sessionIndexKey = "replay:sessions"

// WriteTimeline stores the session summary and indexes the game ID
func (w *RedisWriter) WriteTimeline(ctx context.Context, tl *models.Timeline) error {
	data, err := json.Marshal(tl)
	if err != nil {
		return fmt.Errorf("marshaling timeline: %w", err)
	}

	pipe := w.client.Pipeline()
	pipe.Set(ctx, stateKey(tl.GameID), data, ttlForLifecycle(tl.Lifecycle))
	pipe.SAdd(ctx, sessionIndexKey, tl.GameID)

	_, err = pipe.Exec(ctx)
	return err
}

// PublishAtBat keeps the most recent formatted at-bat per game
func (w *RedisWriter) PublishAtBat(ctx context.Context, delta *models.AtBatDelta) error {
	data, err := json.Marshal(delta)
	if err != nil {
		return fmt.Errorf("marshaling at-bat: %w", err)
	}
	return w.client.Set(ctx, latestKey(delta.GameID), data, LatestAtBatTTL).Err()
}

// ReadLatestAtBat retrieves the last mirrored at-bat for a game; nil when none is stored
func (w *RedisWriter) ReadLatestAtBat(ctx context.Context, gameID string) (*models.AtBatDelta, error) {
	data, err := w.client.Get(ctx, latestKey(gameID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading latest at-bat: %w", err)
	}

	var delta models.AtBatDelta
	if err := json.Unmarshal([]byte(data), &delta); err != nil {
		return nil, fmt.Errorf("unmarshaling at-bat: %w", err)
	}
	return &delta, nil
}

func ttlForLifecycle(l models.Lifecycle) time.Duration {
	if l == models.LifecycleComplete {
		return CompleteReplayTTL
	}
	return ActiveReplayTTL
}
