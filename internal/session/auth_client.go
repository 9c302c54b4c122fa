package session

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"machrent/internal/domain"

	"github.com/cockroachdb/errors"
)

// Tokens is a backend token pair.
type Tokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Authenticator exchanges credentials or a refresh token for a new pair.
type Authenticator interface {
	Login(ctx context.Context, email, password string) (Tokens, error)
	Refresh(ctx context.Context, refreshToken string) (Tokens, error)
}

// AuthClient talks to the backend's auth endpoints.
type AuthClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewAuthClient(baseURL string, timeout time.Duration) *AuthClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &AuthClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *AuthClient) Login(ctx context.Context, email, password string) (Tokens, error) {
	return c.post(ctx, "/api/v1/auth/login", map[string]string{"email": email, "password": password})
}

func (c *AuthClient) Refresh(ctx context.Context, refreshToken string) (Tokens, error) {
	return c.post(ctx, "/api/v1/auth/refresh", map[string]string{"refresh_token": refreshToken})
}

func (c *AuthClient) post(ctx context.Context, path string, body interface{}) (Tokens, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return Tokens{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return Tokens{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Tokens{}, domain.Transport(errors.Wrapf(domain.ErrTransport, "%s: %v", path, err))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return Tokens{}, domain.Rejection(&domain.RejectionError{Op: path, Reason: resp.Status, Err: domain.ErrForbidden})
	case resp.StatusCode >= 300:
		return Tokens{}, domain.Transport(errors.Wrapf(domain.ErrTransport, "%s: status %d", path, resp.StatusCode))
	}

	var tokens Tokens
	if err := json.NewDecoder(resp.Body).Decode(&tokens); err != nil || tokens.AccessToken == "" {
		return Tokens{}, domain.Transport(errors.Wrapf(domain.ErrTransport, "%s: undecodable token response", path))
	}
	return tokens, nil
}
