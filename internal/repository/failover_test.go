package repository

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"machrent/internal/config"
	"machrent/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockRepo struct {
	mock.Mock
}

func (m *mockRepo) GetState(ctx context.Context, chatID int64) (*models.ChatState, error) {
	args := m.Called(ctx, chatID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ChatState), args.Error(1)
}

func (m *mockRepo) SetState(ctx context.Context, state *models.ChatState) error {
	return m.Called(ctx, state).Error(0)
}

func (m *mockRepo) ClearState(ctx context.Context, chatID int64) error {
	return m.Called(ctx, chatID).Error(0)
}

func (m *mockRepo) CheckRateLimit(ctx context.Context, userID int64, limit int, window time.Duration) (bool, error) {
	args := m.Called(ctx, userID, limit, window)
	return args.Bool(0), args.Error(1)
}

// Redis goes away mid-session and comes back; chat state written during the
// outage stays readable from memory.
func TestFailoverRedisOutage(t *testing.T) {
	mr := miniredis.RunT(t)
	client := NewRedisClient(config.RedisConfig{Address: mr.Addr(), PoolSize: 2})
	t.Cleanup(func() { _ = client.Close() })

	logger := zerolog.New(io.Discard)
	fallback := NewMemoryStateRepository(time.Hour)
	repo := NewFailoverStateRepository(NewRedisStateRepository(client, time.Hour), fallback, &logger)
	ctx := context.Background()

	require.NoError(t, repo.SetState(ctx, &models.ChatState{ChatID: 1, WorkflowID: "wf-1"}))
	assert.True(t, mr.Exists(chatKey(1)))

	mr.Close()

	require.NoError(t, repo.SetState(ctx, &models.ChatState{ChatID: 2, WorkflowID: "wf-2", Awaiting: models.AwaitPeriod}))
	assert.True(t, repo.isDown.Load())

	got, err := repo.GetState(ctx, 2)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "wf-2", got.WorkflowID)

	allowed, err := repo.CheckRateLimit(ctx, 2, 1, time.Minute)
	require.NoError(t, err)
	assert.True(t, allowed)

	require.NoError(t, mr.Restart())
	repo.mu.Lock()
	repo.lastCheck = time.Now().Add(-2 * recoveryInterval)
	repo.mu.Unlock()

	got, err = repo.GetState(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "wf-1", got.WorkflowID)
	assert.False(t, repo.isDown.Load())

	// clearing reaches the copy that only the fallback holds
	require.NoError(t, repo.ClearState(ctx, 2))
	leftover, err := fallback.GetState(ctx, 2)
	require.NoError(t, err)
	assert.Nil(t, leftover)
}

func TestFailoverProbesOncePerInterval(t *testing.T) {
	primary := new(mockRepo)
	fallback := new(mockRepo)
	logger := zerolog.New(io.Discard)
	repo := NewFailoverStateRepository(primary, fallback, &logger)
	ctx := context.Background()

	primary.On("GetState", ctx, int64(7)).Return(nil, errors.New("connection refused")).Once()
	fallback.On("GetState", ctx, int64(7)).Return(nil, nil).Twice()

	_, err := repo.GetState(ctx, 7)
	require.NoError(t, err)
	_, err = repo.GetState(ctx, 7)
	require.NoError(t, err)

	primary.AssertNumberOfCalls(t, "GetState", 1)
	fallback.AssertExpectations(t)
}

func TestFailoverClearStateIgnoresPrimaryError(t *testing.T) {
	primary := new(mockRepo)
	fallback := new(mockRepo)
	logger := zerolog.New(io.Discard)
	repo := NewFailoverStateRepository(primary, fallback, &logger)
	ctx := context.Background()

	fallback.On("ClearState", ctx, int64(5)).Return(nil).Once()
	primary.On("ClearState", ctx, int64(5)).Return(errors.New("timeout")).Once()

	assert.NoError(t, repo.ClearState(ctx, 5))
	assert.True(t, repo.isDown.Load())
	primary.AssertExpectations(t)
	fallback.AssertExpectations(t)
}
