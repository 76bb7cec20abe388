package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/XavierBriggs/fortuna/services/game-replay-service/pkg/models"
	"github.com/redis/go-redis/v9"
)

// HighlightsStream is the sport-wide stream of detected home runs
const HighlightsStream = "replay.highlights"

// defaultMaxLen caps each stream approximately
const defaultMaxLen = 10000

// StreamPublisher publishes replay output to Redis streams
type StreamPublisher struct {
	client *redis.Client
	maxLen int64
}

// NewStreamPublisher creates a new stream publisher
func NewStreamPublisher(client *redis.Client) *StreamPublisher {
	return &StreamPublisher{
		client: client,
		maxLen: defaultMaxLen,
	}
}

// AtBatStream returns the per-game stream key for formatted at-bats
func AtBatStream(gameID string) string {
	return fmt.Sprintf("replay.atbats.%s", gameID)
}

// PublishAtBat appends a formatted at-bat to the game's stream
func (p *StreamPublisher) PublishAtBat(ctx context.Context, delta *models.AtBatDelta) error {
	data, err := json.Marshal(delta)
	if err != nil {
		return fmt.Errorf("failed to marshal at-bat: %w", err)
	}

	streamKey := AtBatStream(delta.GameID)
	return p.add(ctx, streamKey, map[string]interface{}{
		"data":         string(data),
		"game_id":      delta.GameID,
		"at_bat_index": strconv.Itoa(delta.AtBatIndex),
	})
}

// PublishHighlight appends a found event to the highlights stream
func (p *StreamPublisher) PublishHighlight(ctx context.Context, match *models.EventMatch) error {
	if !match.Found {
		return nil
	}

	data, err := json.Marshal(match)
	if err != nil {
		return fmt.Errorf("failed to marshal highlight: %w", err)
	}

	return p.add(ctx, HighlightsStream, map[string]interface{}{
		"data":     string(data),
		"game_id":  match.GameID,
		"event_id": match.EventID,
	})
}

func (p *StreamPublisher) add(ctx context.Context, stream string, values map[string]interface{}) error {
	_, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		MaxLen: p.maxLen,
		Approx: true,
		Values: values,
	}).Result()
	if err != nil {
		return fmt.Errorf("failed to publish to stream %s: %w", stream, err)
	}
	return nil
}
