package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"machrent/internal/config"
	"machrent/internal/models"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
)

var errNilClient = errors.New("redis client is nil")

type RedisStateRepository struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}

func NewRedisStateRepository(client *redis.Client, ttl time.Duration) *RedisStateRepository {
	return &RedisStateRepository{
		client: client,
		ttl:    ttl,
	}
}

func chatKey(chatID int64) string {
	return fmt.Sprintf("machrent:chat_state:%d", chatID)
}

func (r *RedisStateRepository) GetState(ctx context.Context, chatID int64) (*models.ChatState, error) {
	if r.client == nil {
		return nil, errNilClient
	}
	val, err := r.client.Get(ctx, chatKey(chatID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "get chat state from redis")
	}

	var state models.ChatState
	if err := json.Unmarshal([]byte(val), &state); err != nil {
		return nil, errors.Wrap(err, "unmarshal chat state")
	}
	return &state, nil
}

func (r *RedisStateRepository) SetState(ctx context.Context, state *models.ChatState) error {
	if r.client == nil {
		return errNilClient
	}
	data, err := json.Marshal(state)
	if err != nil {
		return errors.Wrap(err, "marshal chat state")
	}
	if err := r.client.Set(ctx, chatKey(state.ChatID), data, r.ttl).Err(); err != nil {
		return errors.Wrap(err, "set chat state in redis")
	}
	return nil
}

func (r *RedisStateRepository) ClearState(ctx context.Context, chatID int64) error {
	if r.client == nil {
		return errNilClient
	}
	if err := r.client.Del(ctx, chatKey(chatID)).Err(); err != nil {
		return errors.Wrap(err, "delete chat state from redis")
	}
	return nil
}

// CheckRateLimit is a fixed-window counter; the window starts at the first
// hit.
func (r *RedisStateRepository) CheckRateLimit(ctx context.Context, userID int64, limit int, window time.Duration) (bool, error) {
	if r.client == nil {
		return false, errNilClient
	}
	key := fmt.Sprintf("machrent:rate_limit:%d", userID)

	count, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		return false, errors.Wrap(err, "increment rate limit")
	}
	if count == 1 {
		if err := r.client.Expire(ctx, key, window).Err(); err != nil {
			return false, errors.Wrap(err, "set rate limit window")
		}
	}
	return count <= int64(limit), nil
}

func Ping(ctx context.Context, client *redis.Client) error {
	if err := client.Ping(ctx).Err(); err != nil {
		return errors.Wrap(err, "ping redis")
	}
	return nil
}

func Close(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}
