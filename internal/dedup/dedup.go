package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/XavierBriggs/fortuna/services/game-replay-service/pkg/models"
	"github.com/redis/go-redis/v9"
)

// Deduplicator suppresses repeat highlights across watchers and restarts
type Deduplicator struct {
	client *redis.Client
	ttl    time.Duration
}

// NewDeduplicator creates a new deduplicator
func NewDeduplicator(client *redis.Client, ttl time.Duration) *Deduplicator {
	return &Deduplicator{
		client: client,
		ttl:    ttl,
	}
}

// ShouldNotify returns true the first time a match for this event is seen.
// The check and the claim are a single SETNX so concurrent watchers cannot both win.
func (d *Deduplicator) ShouldNotify(ctx context.Context, match *models.EventMatch) (bool, error) {
	ok, err := d.client.SetNX(ctx, d.key(match), match.WatchID, d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to claim dedup key: %w", err)
	}
	return ok, nil
}

// key format: highlight:dedup:{game_id}:{event_id}
func (d *Deduplicator) key(match *models.EventMatch) string {
	return fmt.Sprintf("highlight:dedup:%s:%s", match.GameID, match.EventID)
}

// Clear removes a dedup entry
func (d *Deduplicator) Clear(ctx context.Context, match *models.EventMatch) error {
	return d.client.Del(ctx, d.key(match)).Err()
}
