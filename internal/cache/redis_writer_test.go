package cache

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/XavierBriggs/fortuna/services/game-replay-service/pkg/models"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestWriter(t *testing.T) (*RedisWriter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisWriter(client), mr
}

func TestRedisWriter_TimelineRoundTrip(t *testing.T) {
	w, mr := newTestWriter(t)
	ctx := context.Background()

	tl := &models.Timeline{
		GameID:      "745123",
		TotalEvents: 9,
		TotalPlays:  3,
		Cursor:      4,
		Lifecycle:   models.LifecycleActive,
		Generation:  2,
	}
	require.NoError(t, w.WriteTimeline(ctx, tl))

	raw, err := mr.Get("replay:745123:state")
	require.NoError(t, err)
	var got models.Timeline
	require.NoError(t, json.Unmarshal([]byte(raw), &got))
	assert.Equal(t, 4, got.Cursor)
	assert.Equal(t, int64(2), got.Generation)
	assert.Equal(t, ActiveReplayTTL, mr.TTL("replay:745123:state"))

	games, err := mr.SMembers("replay:sessions")
	require.NoError(t, err)
	assert.Equal(t, []string{"745123"}, games)
}

func TestRedisWriter_CompleteTimelineKeepsLonger(t *testing.T) {
	w, mr := newTestWriter(t)

	tl := &models.Timeline{GameID: "g1", Cursor: 9, TotalEvents: 9, Lifecycle: models.LifecycleComplete}
	require.NoError(t, w.WriteTimeline(context.Background(), tl))
	assert.Equal(t, CompleteReplayTTL, mr.TTL("replay:g1:state"))
}

func TestRedisWriter_LatestAtBatOverwrites(t *testing.T) {
	w, mr := newTestWriter(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		delta := &models.AtBatDelta{GameID: "g1", AtBatIndex: i, EmittedAt: time.Unix(int64(i), 0).UTC()}
		require.NoError(t, w.PublishAtBat(ctx, delta))
	}

	got, err := w.ReadLatestAtBat(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, 2, got.AtBatIndex)
	assert.Equal(t, LatestAtBatTTL, mr.TTL("replay:g1:latest"))
}

func TestRedisWriter_ReadLatestMissing(t *testing.T) {
	w, _ := newTestWriter(t)

	got, err := w.ReadLatestAtBat(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}
