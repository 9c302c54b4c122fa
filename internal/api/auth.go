package api

import (
	"context"
	"crypto/subtle"
	"net"
	"net/http"
	"strings"

	"machrent/internal/config"

	"github.com/cockroachdb/errors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

const (
	apiKeyHeaderDefault   = "x-api-key"
	apiExtraHeaderDefault = "x-api-extra"
	permissionAll         = "*"
	clientKeyUnknown      = "unknown"
	healthServicePrefix   = "/grpc.health.v1.Health/"
)

var (
	errMissingCredentials = errors.New("missing api key headers")
	errInvalidAPIKey      = errors.New("invalid api key")
	errInvalidExtra       = errors.New("invalid extra header")
	errPermissionDenied   = errors.New("permission denied")
	errRateLimited        = errors.New("rate limit exceeded")
)

var anonymousClient = config.APIClientKey{Name: "anonymous"}

// keyring resolves API clients by key. It backs both the HTTP middleware and
// the gRPC interceptor.
type keyring struct {
	cfg     config.APIConfig
	clients map[string]config.APIClientKey
	limiter *rateLimiter
}

func newKeyring(cfg config.APIConfig) *keyring {
	m := make(map[string]config.APIClientKey, len(cfg.Auth.APIKeys))
	for _, k := range cfg.Auth.APIKeys {
		m[k.Key] = k
	}
	return &keyring{cfg: cfg, clients: m, limiter: newRateLimiter(cfg.RateLimit)}
}

func (k *keyring) headerNames() (apiKey, extra string) {
	apiKey = strings.ToLower(strings.TrimSpace(k.cfg.Auth.HeaderAPIKey))
	if apiKey == "" {
		apiKey = apiKeyHeaderDefault
	}
	extra = strings.ToLower(strings.TrimSpace(k.cfg.Auth.HeaderExtra))
	if extra == "" {
		extra = apiExtraHeaderDefault
	}
	return apiKey, extra
}

func (k *keyring) authenticate(apiKey, extra string) (config.APIClientKey, error) {
	if !k.cfg.Auth.Enabled {
		return anonymousClient, nil
	}
	if apiKey == "" || extra == "" {
		return config.APIClientKey{}, errMissingCredentials
	}
	client, ok := k.clients[apiKey]
	if !ok {
		return config.APIClientKey{}, errInvalidAPIKey
	}
	if subtle.ConstantTimeCompare([]byte(client.Extra), []byte(extra)) != 1 {
		return config.APIClientKey{}, errInvalidExtra
	}
	return client, nil
}

// allowsFlow treats an empty permission list as allow-all.
func allowsFlow(client config.APIClientKey, flow string) bool {
	if len(client.Permissions) == 0 {
		return true
	}
	for _, p := range client.Permissions {
		p = strings.TrimSpace(p)
		if p == permissionAll || p == flow {
			return true
		}
	}
	return false
}

type clientContextKey struct{}

func withClient(ctx context.Context, client config.APIClientKey) context.Context {
	return context.WithValue(ctx, clientContextKey{}, client)
}

func clientFromContext(ctx context.Context) config.APIClientKey {
	if c, ok := ctx.Value(clientContextKey{}).(config.APIClientKey); ok {
		return c
	}
	return anonymousClient
}

// HTTPAuth provides API-key auth and per-key rate limiting for HTTP endpoints.
type HTTPAuth struct {
	keys *keyring
}

func NewHTTPAuth(cfg config.APIConfig) *HTTPAuth {
	return &HTTPAuth{keys: newKeyring(cfg)}
}

func (a *HTTPAuth) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isProbe(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		keyHeader, extraHeader := a.keys.headerNames()
		apiKey := strings.TrimSpace(r.Header.Get(keyHeader))
		client, err := a.keys.authenticate(apiKey, strings.TrimSpace(r.Header.Get(extraHeader)))
		if err != nil {
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}

		key := apiKey
		if key == "" {
			key = remoteHost(r)
		}
		if !a.keys.limiter.allow(key) {
			writeError(w, http.StatusTooManyRequests, errRateLimited.Error())
			return
		}

		next.ServeHTTP(w, r.WithContext(withClient(r.Context(), client)))
	})
}

func isProbe(path string) bool {
	return path == "/healthz" || path == "/readyz"
}

func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return clientKeyUnknown
}

// AuthInterceptor applies the same keys to gRPC calls. The health service is
// open so orchestrators can probe without credentials.
type AuthInterceptor struct {
	keys *keyring
}

func NewAuthInterceptor(cfg config.APIConfig) *AuthInterceptor {
	return &AuthInterceptor{keys: newKeyring(cfg)}
}

func (a *AuthInterceptor) Unary() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if strings.HasPrefix(info.FullMethod, healthServicePrefix) {
			return handler(ctx, req)
		}

		md, _ := metadata.FromIncomingContext(ctx)
		keyHeader, extraHeader := a.keys.headerNames()
		apiKey := first(md.Get(keyHeader))
		client, err := a.keys.authenticate(apiKey, first(md.Get(extraHeader)))
		if err != nil {
			return nil, status.Error(codes.Unauthenticated, err.Error())
		}

		key := apiKey
		if key == "" {
			key = clientKeyUnknown
			if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
				key = p.Addr.String()
			}
		}
		if !a.keys.limiter.allow(key) {
			return nil, status.Error(codes.ResourceExhausted, errRateLimited.Error())
		}

		return handler(withClient(ctx, client), req)
	}
}
