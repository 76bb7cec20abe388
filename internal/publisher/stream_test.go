package publisher

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/XavierBriggs/fortuna/services/game-replay-service/pkg/models"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPublisher(t *testing.T) (*StreamPublisher, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewStreamPublisher(client), client
}

func TestPublishAtBat(t *testing.T) {
	p, client := newTestPublisher(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		delta := &models.AtBatDelta{
			GameID:     "g1",
			AtBatIndex: i,
			Game:       models.FormattedAB{GameEvent: "single"},
		}
		require.NoError(t, p.PublishAtBat(ctx, delta))
	}

	msgs, err := client.XRange(ctx, AtBatStream("g1"), "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "1", msgs[1].Values["at_bat_index"])

	var got models.AtBatDelta
	require.NoError(t, json.Unmarshal([]byte(msgs[0].Values["data"].(string)), &got))
	assert.Equal(t, 0, got.AtBatIndex)
	assert.Equal(t, "single", got.Game.GameEvent)
}

func TestPublishHighlight_SkipsNotFound(t *testing.T) {
	p, client := newTestPublisher(t)
	ctx := context.Background()

	require.NoError(t, p.PublishHighlight(ctx, &models.EventMatch{GameID: "g1", Found: false}))
	require.NoError(t, p.PublishHighlight(ctx, &models.EventMatch{GameID: "g1", Found: true, EventID: "ev-9"}))

	msgs, err := client.XRange(ctx, HighlightsStream, "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "ev-9", msgs[0].Values["event_id"])
}
