package workflow

import (
	"context"
	"sync"
	"time"

	"machrent/internal/clock"
	"machrent/internal/domain"
	"machrent/internal/metrics"

	"github.com/rs/zerolog"
)

// Registry holds the open sessions of a process, keyed by session ID and by
// owner (a Telegram chat or an API principal). An owner has at most one open
// session; opening a new one closes the previous.
type Registry struct {
	deps Deps
	ttl  time.Duration

	mu       sync.Mutex
	sessions map[string]*entry
	byOwner  map[string]string
}

type entry struct {
	owner string
	ctrl  *Controller
}

func NewRegistry(deps Deps, ttl time.Duration) *Registry {
	if deps.Clock == nil {
		deps.Clock = clock.NewRealClock()
	}
	return &Registry{
		deps:     deps,
		ttl:      ttl,
		sessions: make(map[string]*entry),
		byOwner:  make(map[string]string),
	}
}

func (r *Registry) Open(ctx context.Context, owner string, opts Options) (*Controller, error) {
	ctrl, err := Open(ctx, opts, r.deps)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	if prevID, ok := r.byOwner[owner]; ok {
		if prev, ok := r.sessions[prevID]; ok {
			prev.ctrl.Close()
			delete(r.sessions, prevID)
		}
	}
	r.sessions[ctrl.ID()] = &entry{owner: owner, ctrl: ctrl}
	r.byOwner[owner] = ctrl.ID()
	n := len(r.sessions)
	r.mu.Unlock()

	metrics.SetActiveSessions(n)
	return ctrl, nil
}

// Get returns an open session. Closed sessions are dropped on access.
func (r *Registry) Get(id string) (*Controller, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[id]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	if e.ctrl.Closed() {
		r.removeLocked(id)
		return nil, domain.ErrSessionClosed
	}
	return e.ctrl, nil
}

// GetOwned is Get restricted to the session's owner.
func (r *Registry) GetOwned(owner, id string) (*Controller, error) {
	r.mu.Lock()
	e, ok := r.sessions[id]
	r.mu.Unlock()
	if !ok || e.owner != owner {
		return nil, domain.ErrSessionNotFound
	}
	return r.Get(id)
}

func (r *Registry) ForOwner(owner string) (*Controller, error) {
	r.mu.Lock()
	id, ok := r.byOwner[owner]
	r.mu.Unlock()
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return r.Get(id)
}

// Close closes and forgets a session.
func (r *Registry) Close(id string) {
	r.mu.Lock()
	e, ok := r.sessions[id]
	if ok {
		r.removeLocked(id)
	}
	r.mu.Unlock()
	if ok {
		e.ctrl.Close()
	}
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Sweep closes sessions idle for longer than the TTL and drops closed ones.
func (r *Registry) Sweep() int {
	now := r.deps.Clock.Now()

	r.mu.Lock()
	var expired []*Controller
	for id, e := range r.sessions {
		if e.ctrl.Closed() {
			r.removeLocked(id)
			continue
		}
		if r.ttl > 0 && now.Sub(e.ctrl.IdleSince()) > r.ttl {
			expired = append(expired, e.ctrl)
			r.removeLocked(id)
		}
	}
	n := len(r.sessions)
	r.mu.Unlock()

	for _, c := range expired {
		c.Close()
	}
	metrics.SetActiveSessions(n)
	return len(expired)
}

// Run sweeps on every interval until ctx is canceled.
func (r *Registry) Run(ctx context.Context, interval time.Duration, logger *zerolog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.Sweep(); n > 0 && logger != nil {
				logger.Info().Int("expired", n).Msg("closed idle workflow sessions")
			}
		}
	}
}

func (r *Registry) removeLocked(id string) {
	e, ok := r.sessions[id]
	if !ok {
		return
	}
	delete(r.sessions, id)
	if r.byOwner[e.owner] == id {
		delete(r.byOwner, e.owner)
	}
}
