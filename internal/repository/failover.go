package repository

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"machrent/internal/domain"
	"machrent/internal/models"

	"github.com/rs/zerolog"
)

const recoveryInterval = time.Minute

// FailoverStateRepository serves from primary (Redis) and switches to the
// fallback (memory) on the first primary error. While down, one call per
// recoveryInterval probes the primary again.
type FailoverStateRepository struct {
	primary  domain.StateRepository
	fallback domain.StateRepository
	logger   *zerolog.Logger
	isDown   atomic.Bool

	mu        sync.Mutex
	lastCheck time.Time
}

var _ domain.StateRepository = (*FailoverStateRepository)(nil)

func NewFailoverStateRepository(primary, fallback domain.StateRepository, logger *zerolog.Logger) *FailoverStateRepository {
	return &FailoverStateRepository{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

// usePrimary reports whether the call should try the primary.
func (r *FailoverStateRepository) usePrimary() bool {
	if !r.isDown.Load() {
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if time.Since(r.lastCheck) > recoveryInterval {
		r.lastCheck = time.Now()
		return true
	}
	return false
}

// observe records the primary's outcome and reports whether it succeeded.
func (r *FailoverStateRepository) observe(op string, err error) bool {
	if err == nil {
		if r.isDown.CompareAndSwap(true, false) {
			r.logger.Info().Str("op", op).Msg("primary state repository recovered")
		}
		return true
	}
	if !r.isDown.Swap(true) {
		r.logger.Error().Err(err).Str("op", op).Msg("primary state repository failed, falling back to memory")
	}
	r.mu.Lock()
	r.lastCheck = time.Now()
	r.mu.Unlock()
	return false
}

func (r *FailoverStateRepository) GetState(ctx context.Context, chatID int64) (*models.ChatState, error) {
	if r.usePrimary() {
		state, err := r.primary.GetState(ctx, chatID)
		if r.observe("get_state", err) {
			return state, nil
		}
	}
	return r.fallback.GetState(ctx, chatID)
}

func (r *FailoverStateRepository) SetState(ctx context.Context, state *models.ChatState) error {
	if r.usePrimary() {
		if r.observe("set_state", r.primary.SetState(ctx, state)) {
			return nil
		}
	}
	return r.fallback.SetState(ctx, state)
}

func (r *FailoverStateRepository) ClearState(ctx context.Context, chatID int64) error {
	// the fallback may hold state written while the primary was down
	_ = r.fallback.ClearState(ctx, chatID)
	if r.usePrimary() {
		if r.observe("clear_state", r.primary.ClearState(ctx, chatID)) {
			return nil
		}
	}
	return nil
}

func (r *FailoverStateRepository) CheckRateLimit(ctx context.Context, userID int64, limit int, window time.Duration) (bool, error) {
	if r.usePrimary() {
		allowed, err := r.primary.CheckRateLimit(ctx, userID, limit, window)
		if r.observe("rate_limit", err) {
			return allowed, nil
		}
	}
	return r.fallback.CheckRateLimit(ctx, userID, limit, window)
}
