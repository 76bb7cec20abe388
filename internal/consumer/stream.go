package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/XavierBriggs/fortuna/services/game-replay-service/pkg/contracts"
	"github.com/XavierBriggs/fortuna/services/game-replay-service/pkg/models"
	"github.com/redis/go-redis/v9"
)

// errMalformed marks a message that can never be processed
var errMalformed = errors.New("malformed stream message")

// HighlightConsumer reads highlights from a Redis stream through a consumer
// group and hands each one to a sink. A message is acknowledged once the sink
// accepts it, or when it cannot be parsed at all. Unacknowledged messages are
// re-read on start and reclaimed once they have been idle for claimIdle.
type HighlightConsumer struct {
	client     *redis.Client
	streamKey  string
	groupName  string
	consumerID string
	sink       contracts.HighlightSink
	logger     *slog.Logger

	block        time.Duration
	count        int64
	claimIdle    time.Duration
	reclaimEvery time.Duration
}

// NewHighlightConsumer creates a new stream consumer
func NewHighlightConsumer(client *redis.Client, streamKey, groupName, consumerID string, sink contracts.HighlightSink, logger *slog.Logger) *HighlightConsumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &HighlightConsumer{
		client:     client,
		streamKey:  streamKey,
		groupName:  groupName,
		consumerID: consumerID,
		sink:       sink,
		logger:     logger.With("component", "highlight_consumer", "stream", streamKey, "consumer_id", consumerID),
		block:      time.Second,
		count:      10,

		claimIdle:    time.Minute,
		reclaimEvery: 30 * time.Second,
	}
}

// Run consumes until ctx is cancelled
func (c *HighlightConsumer) Run(ctx context.Context) error {
	err := c.client.XGroupCreateMkStream(ctx, c.streamKey, c.groupName, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}

	c.logger.Info("consuming highlights", "group", c.groupName)

	c.drainPending(ctx)
	lastReclaim := time.Now()

	for {
		if ctx.Err() != nil {
			return nil
		}

		if time.Since(lastReclaim) >= c.reclaimEvery {
			c.reclaim(ctx)
			lastReclaim = time.Now()
		}

		streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    c.groupName,
			Consumer: c.consumerID,
			Streams:  []string{c.streamKey, ">"},
			Count:    c.count,
			Block:    c.block,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Warn("error reading from stream", "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}

		for _, stream := range streams {
			for _, message := range stream.Messages {
				c.handle(ctx, message)
			}
		}
	}
}

// drainPending replays this consumer's own unacknowledged history
func (c *HighlightConsumer) drainPending(ctx context.Context) {
	lastID := "0"
	for ctx.Err() == nil {
		streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    c.groupName,
			Consumer: c.consumerID,
			Streams:  []string{c.streamKey, lastID},
			Count:    c.count,
			Block:    -1,
		}).Result()
		if err != nil {
			if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
				c.logger.Warn("error reading pending history", "error", err)
			}
			return
		}
		if len(streams) == 0 || len(streams[0].Messages) == 0 {
			return
		}

		c.logger.Info("replaying pending highlights", "count", len(streams[0].Messages))
		for _, message := range streams[0].Messages {
			c.handle(ctx, message)
			lastID = message.ID
		}
	}
}

// reclaim takes over messages idle longer than claimIdle, from any consumer in the group
func (c *HighlightConsumer) reclaim(ctx context.Context) {
	start := "0-0"
	for ctx.Err() == nil {
		messages, next, err := c.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
			Stream:   c.streamKey,
			Group:    c.groupName,
			Consumer: c.consumerID,
			MinIdle:  c.claimIdle,
			Start:    start,
			Count:    c.count,
		}).Result()
		if err != nil {
			if ctx.Err() == nil {
				c.logger.Warn("failed to reclaim pending messages", "error", err)
			}
			return
		}

		for _, message := range messages {
			c.handle(ctx, message)
		}
		if next == "0-0" || next == "" || len(messages) == 0 {
			return
		}
		start = next
	}
}

func (c *HighlightConsumer) handle(ctx context.Context, xmsg redis.XMessage) {
	match, err := parseMessage(xmsg)
	if err != nil {
		c.logger.Error("dropping message", "message_id", xmsg.ID, "error", err)
		c.ack(ctx, xmsg.ID)
		return
	}

	if err := c.sink.PublishHighlight(ctx, match); err != nil {
		// left pending; reclaim or the next start retries it
		c.logger.Warn("highlight sink failed", "message_id", xmsg.ID, "event_id", match.EventID, "error", err)
		return
	}
	c.ack(ctx, xmsg.ID)
}

func (c *HighlightConsumer) ack(ctx context.Context, messageID string) {
	if err := c.client.XAck(ctx, c.streamKey, c.groupName, messageID).Err(); err != nil {
		c.logger.Warn("failed to ack message", "message_id", messageID, "error", err)
	}
}

// parseMessage decodes the "data" field written by publisher.StreamPublisher
func parseMessage(xmsg redis.XMessage) (*models.EventMatch, error) {
	raw, ok := xmsg.Values["data"].(string)
	if !ok {
		return nil, fmt.Errorf("%w: missing 'data' field", errMalformed)
	}

	var match models.EventMatch
	if err := json.Unmarshal([]byte(raw), &match); err != nil {
		return nil, fmt.Errorf("%w: %v", errMalformed, err)
	}
	return &match, nil
}
