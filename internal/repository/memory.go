package repository

import (
	"context"
	"sync"
	"time"

	"machrent/internal/clock"
	"machrent/internal/models"
)

// MemoryStateRepository is the in-process fallback. Entries expire lazily on
// read.
type MemoryStateRepository struct {
	states     sync.Map
	rateLimits sync.Map
	ttl        time.Duration
	clock      clock.Clock
}

type memoryState struct {
	state     models.ChatState
	expiresAt time.Time
}

func NewMemoryStateRepository(ttl time.Duration) *MemoryStateRepository {
	return &MemoryStateRepository{
		ttl:   ttl,
		clock: clock.NewRealClock(),
	}
}

// WithClock replaces the time source, for tests.
func (r *MemoryStateRepository) WithClock(c clock.Clock) *MemoryStateRepository {
	r.clock = c
	return r
}

func (r *MemoryStateRepository) GetState(_ context.Context, chatID int64) (*models.ChatState, error) {
	val, ok := r.states.Load(chatID)
	if !ok {
		return nil, nil
	}
	entry := val.(*memoryState)
	if r.ttl > 0 && r.clock.Now().After(entry.expiresAt) {
		r.states.Delete(chatID)
		return nil, nil
	}
	state := entry.state
	return &state, nil
}

func (r *MemoryStateRepository) SetState(_ context.Context, state *models.ChatState) error {
	r.states.Store(state.ChatID, &memoryState{state: *state, expiresAt: r.clock.Now().Add(r.ttl)})
	return nil
}

func (r *MemoryStateRepository) ClearState(_ context.Context, chatID int64) error {
	r.states.Delete(chatID)
	return nil
}

type rateLimitEntry struct {
	mu        sync.Mutex
	count     int
	expiresAt time.Time
}

func (r *MemoryStateRepository) CheckRateLimit(_ context.Context, userID int64, limit int, window time.Duration) (bool, error) {
	now := r.clock.Now()
	val, _ := r.rateLimits.LoadOrStore(userID, &rateLimitEntry{expiresAt: now.Add(window)})
	entry := val.(*rateLimitEntry)

	entry.mu.Lock()
	defer entry.mu.Unlock()
	if now.After(entry.expiresAt) {
		entry.count = 0
		entry.expiresAt = now.Add(window)
	}
	entry.count++
	return entry.count <= limit, nil
}
