package session

import (
	"context"
	"sync"
	"time"

	"machrent/internal/clock"
	"machrent/internal/domain"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
)

var ErrNotAuthenticated = errors.New("session is not authenticated")

// Credentials let the store log in again when no refresh token is usable.
type Credentials struct {
	Email    string
	Password string
}

// Store is the process-wide owner of the backend tokens. Consumers only see
// it as a domain.TokenSource; Login and Refresh are the only mutation paths.
type Store struct {
	auth   Authenticator
	creds  Credentials
	clock  clock.Clock
	skew   time.Duration
	logger zerolog.Logger

	mu       sync.Mutex
	access   string
	refresh  string
	claims   *Claims
	inflight *refreshCall
}

type refreshCall struct {
	stale string
	done  chan struct{}
	token string
	err   error
}

var _ domain.TokenSource = (*Store)(nil)

type Option func(*Store)

func WithCredentials(c Credentials) Option { return func(s *Store) { s.creds = c } }
func WithClock(c clock.Clock) Option       { return func(s *Store) { s.clock = c } }
func WithSkew(d time.Duration) Option      { return func(s *Store) { s.skew = d } }

func WithLogger(l *zerolog.Logger) Option {
	return func(s *Store) { s.logger = l.With().Str("component", "session").Logger() }
}

// WithTokens seeds the store, e.g. from configuration.
func WithTokens(t Tokens) Option {
	return func(s *Store) { s.set(t) }
}

func NewStore(auth Authenticator, opts ...Option) *Store {
	s := &Store{
		auth:   auth,
		clock:  clock.NewRealClock(),
		skew:   30 * time.Second,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Login(ctx context.Context, email, password string) error {
	tokens, err := s.auth.Login(ctx, email, password)
	if err != nil {
		return errors.Wrap(err, "login")
	}

	s.mu.Lock()
	s.set(tokens)
	s.creds = Credentials{Email: email, Password: password}
	s.mu.Unlock()

	s.logger.Info().Str("subject", s.subject()).Msg("session logged in")
	return nil
}

// Token returns the current access token. An expired token is refreshed
// before it is handed out.
func (s *Store) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	access := s.access
	expired := s.claims.expired(s.clock.Now(), s.skew)
	canLogin := s.creds.Email != ""
	s.mu.Unlock()

	if access == "" && !canLogin {
		return "", ErrNotAuthenticated
	}
	if access == "" || expired {
		return s.Refresh(ctx, access)
	}
	return access, nil
}

// Refresh replaces the stale token. Concurrent calls for the same stale
// token share one backend round trip; a caller whose stale token was
// already replaced gets the replacement without a call.
func (s *Store) Refresh(ctx context.Context, stale string) (string, error) {
	s.mu.Lock()
	if s.access != "" && s.access != stale {
		token := s.access
		s.mu.Unlock()
		return token, nil
	}
	if call := s.inflight; call != nil && call.stale == stale {
		s.mu.Unlock()
		select {
		case <-call.done:
			return call.token, call.err
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	call := &refreshCall{stale: stale, done: make(chan struct{})}
	s.inflight = call
	refreshToken := s.refresh
	creds := s.creds
	s.mu.Unlock()

	tokens, err := s.exchange(ctx, refreshToken, creds)

	s.mu.Lock()
	if err == nil {
		s.set(tokens)
		call.token = tokens.AccessToken
	}
	call.err = err
	s.inflight = nil
	s.mu.Unlock()
	close(call.done)

	if err != nil {
		s.logger.Warn().Err(err).Msg("token refresh failed")
		return "", err
	}
	s.logger.Debug().Msg("access token refreshed")
	return call.token, nil
}

func (s *Store) exchange(ctx context.Context, refreshToken string, creds Credentials) (Tokens, error) {
	if refreshToken != "" {
		tokens, err := s.auth.Refresh(ctx, refreshToken)
		if err == nil || creds.Email == "" {
			return tokens, errors.Wrap(err, "refresh token")
		}
		s.logger.Info().Err(err).Msg("refresh token rejected, logging in again")
	}
	if creds.Email == "" {
		return Tokens{}, ErrNotAuthenticated
	}
	tokens, err := s.auth.Login(ctx, creds.Email, creds.Password)
	return tokens, errors.Wrap(err, "login")
}

// Principal returns the user decoded from the current access token.
func (s *Store) Principal() (Principal, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.claims == nil {
		return Principal{}, false
	}
	return s.claims.principal(), true
}

func (s *Store) set(t Tokens) {
	s.access = t.AccessToken
	if t.RefreshToken != "" {
		s.refresh = t.RefreshToken
	}
	claims, err := ParseClaims(t.AccessToken)
	if err != nil {
		claims = nil
	}
	s.claims = claims
}

func (s *Store) subject() string {
	if p, ok := s.Principal(); ok {
		return p.Subject
	}
	return ""
}
