package repository

import (
	"context"
	"testing"
	"time"

	"machrent/internal/config"
	"machrent/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisStateRepository(t *testing.T) {
	s, err := miniredis.Run()
	require.NoError(t, err)
	defer s.Close()

	client := NewRedisClient(config.RedisConfig{Address: s.Addr(), PoolSize: 2})
	repo := NewRedisStateRepository(client, time.Hour)
	ctx := context.Background()

	t.Run("SetAndGetState", func(t *testing.T) {
		state := &models.ChatState{
			ChatID:     123,
			WorkflowID: "wf-9",
			Awaiting:   models.AwaitPeriod,
			MessageID:  77,
		}

		err := repo.SetState(ctx, state)
		require.NoError(t, err)

		got, err := repo.GetState(ctx, 123)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "wf-9", got.WorkflowID)
		assert.Equal(t, models.AwaitPeriod, got.Awaiting)
		assert.Equal(t, 77, got.MessageID)
		assert.Equal(t, time.Hour, s.TTL("machrent:chat_state:123"))
	})

	t.Run("GetNonExistentState", func(t *testing.T) {
		got, err := repo.GetState(ctx, 999)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("CorruptState", func(t *testing.T) {
		require.NoError(t, s.Set("machrent:chat_state:5", "{"))
		_, err := repo.GetState(ctx, 5)
		assert.Error(t, err)
	})

	t.Run("ClearState", func(t *testing.T) {
		require.NoError(t, repo.SetState(ctx, &models.ChatState{ChatID: 456}))

		err := repo.ClearState(ctx, 456)
		require.NoError(t, err)

		got, _ := repo.GetState(ctx, 456)
		assert.Nil(t, got)
	})

	t.Run("RateLimit", func(t *testing.T) {
		userID := int64(789)
		limit := 2
		window := time.Second

		allowed, err := repo.CheckRateLimit(ctx, userID, limit, window)
		require.NoError(t, err)
		assert.True(t, allowed)

		allowed, err = repo.CheckRateLimit(ctx, userID, limit, window)
		require.NoError(t, err)
		assert.True(t, allowed)

		allowed, err = repo.CheckRateLimit(ctx, userID, limit, window)
		require.NoError(t, err)
		assert.False(t, allowed)

		s.FastForward(window + time.Millisecond)

		allowed, err = repo.CheckRateLimit(ctx, userID, limit, window)
		require.NoError(t, err)
		assert.True(t, allowed)
	})

	t.Run("NilClient", func(t *testing.T) {
		repo := NewRedisStateRepository(nil, time.Hour)
		_, err := repo.GetState(ctx, 123)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "redis client is nil")
		_, err = repo.CheckRateLimit(ctx, 1, 1, time.Second)
		assert.Error(t, err)
	})

	t.Run("Ping", func(t *testing.T) {
		assert.NoError(t, Ping(ctx, client))
	})

	t.Run("Close", func(t *testing.T) {
		assert.NoError(t, Close(client))
		assert.NoError(t, Close(nil))
	})
}

func TestRedisUnavailable(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 100 * time.Millisecond, MaxRetries: -1})
	defer client.Close()
	repo := NewRedisStateRepository(client, time.Hour)

	_, err := repo.CheckRateLimit(context.Background(), 1, 10, time.Minute)
	assert.Error(t, err)
	assert.Error(t, Ping(context.Background(), client))
}
