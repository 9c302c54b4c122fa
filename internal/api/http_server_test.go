package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"machrent/internal/clock"
	"machrent/internal/config"
	"machrent/internal/workflow"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testAPIConfig() config.APIConfig {
	return config.APIConfig{
		Enabled: true,
		HTTP:    config.APIHTTPConfig{Enabled: true},
		Auth: config.APIAuthConfig{
			Enabled:      true,
			HeaderAPIKey: "x-api-key",
			HeaderExtra:  "x-api-extra",
			APIKeys: []config.APIClientKey{
				{Key: "desk-key", Extra: "desk-extra", Name: "desk", Permissions: []string{"staff", "self_service"}},
				{Key: "web-key", Extra: "web-extra", Name: "web", Permissions: []string{"self_service"}},
			},
		},
		RateLimit: config.APIRateLimitConfig{RPS: 100, Burst: 200},
	}
}

type apiClient struct {
	t     *testing.T
	url   string
	key   string
	extra string
	owner string
}

func (c apiClient) do(method, path string, body any) (*http.Response, map[string]any) {
	c.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(c.t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, c.url+path, &buf)
	require.NoError(c.t, err)
	if c.key != "" {
		req.Header.Set("X-Api-Key", c.key)
		req.Header.Set("X-Api-Extra", c.extra)
	}
	if c.owner != "" {
		req.Header.Set(OwnerHeader, c.owner)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(c.t, err)
	defer resp.Body.Close()

	out := map[string]any{}
	if resp.StatusCode != http.StatusNoContent {
		_ = json.NewDecoder(resp.Body).Decode(&out)
	}
	return resp, out
}

func newTestServer(t *testing.T, cfg config.APIConfig) (*HTTPServer, *fakeGateway, *httptest.Server) {
	t.Helper()
	gw := newFakeGateway()
	registry := workflow.NewRegistry(workflow.Deps{
		Gateway: gw,
		Clock:   clock.NewMockClock(time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)),
	}, time.Hour)
	rules := map[workflow.Flow]workflow.Rules{
		workflow.FlowStaff:       {MinRentalDays: 7},
		workflow.FlowSelfService: {MinRentalDays: 7},
	}
	srv := NewHTTPServer(cfg, registry, rules, nil)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, gw, ts
}

func TestStaffWorkflowOverHTTP(t *testing.T) {
	_, gw, ts := newTestServer(t, testAPIConfig())
	c := apiClient{t: t, url: ts.URL, key: "desk-key", extra: "desk-extra"}

	resp, body := c.do(http.MethodPost, "/api/v1/workflows", map[string]any{"flow": "staff", "model_id": 12})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	id, _ := body["id"].(string)
	require.NotEmpty(t, id)
	assert.Equal(t, "select_customer", body["step"])
	base := "/api/v1/workflows/" + id

	resp, body = c.do(http.MethodPost, base+"/advance", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Contains(t, body["error"], "not complete")

	resp, body = c.do(http.MethodPost, base+"/customer", map[string]string{"email": "not-an-email"})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "local_validation", body["category"])
	assert.Equal(t, 0, gw.lookups)

	resp, body = c.do(http.MethodPost, base+"/customer", map[string]string{"email": "nobody@example.com"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "remote_rejection", body["category"])

	resp, body = c.do(http.MethodPost, base+"/customer", map[string]string{"email": " Ana@Example.com "})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["can_advance"])

	resp, _ = c.do(http.MethodPost, base+"/advance", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = c.do(http.MethodGet, base+"/locations", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["locations"], 1)

	resp, _ = c.do(http.MethodPost, base+"/location", map[string]int64{"location_id": 99})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	resp, _ = c.do(http.MethodPost, base+"/location", map[string]int64{"location_id": 3})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = c.do(http.MethodPost, base+"/unit", map[string]string{"unit_id": "U-1"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = c.do(http.MethodPost, base+"/advance", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = c.do(http.MethodPost, base+"/period", map[string]string{"start_date": "2025-06-01", "end_date": "2025-06-03"})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	resp, _ = c.do(http.MethodPost, base+"/period", map[string]string{"start_date": "2025/06/01", "end_date": "2025-06-10"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = c.do(http.MethodPost, base+"/period", map[string]string{"start_date": "2025-06-01", "end_date": "2025-06-10"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = c.do(http.MethodPost, base+"/advance", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = c.do(http.MethodGet, base+"/summary", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 9, body["days"])
	assert.EqualValues(t, 9000, body["total_price"])

	resp, body = c.do(http.MethodPost, base+"/submit", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	rental, _ := body["rental"].(map[string]any)
	assert.Equal(t, "R-1", rental["id"])

	require.Len(t, gw.rentals, 1)
	req := gw.rentals[0]
	assert.True(t, req.InPerson)
	require.NotNil(t, req.CustomerID)
	assert.EqualValues(t, 7, *req.CustomerID)
	assert.EqualValues(t, 9000, req.TotalPrice)

	resp, _ = c.do(http.MethodGet, base, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestPeriodOverlapReportsConflictingRange(t *testing.T) {
	_, gw, ts := newTestServer(t, testAPIConfig())
	gw.overlap = true
	c := apiClient{t: t, url: ts.URL, key: "web-key", extra: "web-extra", owner: "user-1"}

	_, body := c.do(http.MethodPost, "/api/v1/workflows", map[string]any{"flow": "self_service", "model_id": 12})
	base := "/api/v1/workflows/" + body["id"].(string)
	c.do(http.MethodGet, base+"/locations", nil)
	c.do(http.MethodPost, base+"/location", map[string]int64{"location_id": 3})
	c.do(http.MethodPost, base+"/unit", map[string]string{"unit_id": "U-1"})
	resp, _ := c.do(http.MethodPost, base+"/advance", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = c.do(http.MethodPost, base+"/period", map[string]string{"start_date": "2025-06-01", "end_date": "2025-06-10"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "remote_rejection", body["category"])
	overlap, ok := body["overlap"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "2025-06-03T00:00:00Z", overlap["conflict_start"])
	assert.Equal(t, "unit is booked", overlap["message"])

	view, _ := body["workflow"].(map[string]any)
	assert.Equal(t, false, view["can_advance"])

	gw.overlap = false
	gw.down = true
	resp, body = c.do(http.MethodPost, base+"/period", map[string]string{"start_date": "2025-06-01", "end_date": "2025-06-10"})
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Equal(t, "transport", body["category"])
}

func TestRetreatFromFirstStepAborts(t *testing.T) {
	_, _, ts := newTestServer(t, testAPIConfig())
	c := apiClient{t: t, url: ts.URL, key: "desk-key", extra: "desk-extra"}

	_, body := c.do(http.MethodPost, "/api/v1/workflows", map[string]any{"flow": "staff", "model_id": 12})
	base := "/api/v1/workflows/" + body["id"].(string)

	resp, body := c.do(http.MethodPost, base+"/retreat", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["aborted"])

	resp, _ = c.do(http.MethodGet, base, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSessionsAreScopedToOwner(t *testing.T) {
	_, _, ts := newTestServer(t, testAPIConfig())
	alice := apiClient{t: t, url: ts.URL, key: "web-key", extra: "web-extra", owner: "alice"}
	bob := alice
	bob.owner = "bob"

	_, body := alice.do(http.MethodPost, "/api/v1/workflows", map[string]any{"flow": "self_service", "model_id": 12})
	base := "/api/v1/workflows/" + body["id"].(string)

	resp, _ := bob.do(http.MethodGet, base, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = alice.do(http.MethodDelete, base, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp, _ = alice.do(http.MethodGet, base, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestOpenValidation(t *testing.T) {
	_, _, ts := newTestServer(t, testAPIConfig())
	web := apiClient{t: t, url: ts.URL, key: "web-key", extra: "web-extra"}

	tests := []struct {
		name string
		body map[string]any
		want int
	}{
		{"UnknownFlow", map[string]any{"flow": "walk_in", "model_id": 12}, http.StatusBadRequest},
		{"MissingModel", map[string]any{"flow": "self_service"}, http.StatusBadRequest},
		{"FlowNotPermitted", map[string]any{"flow": "staff", "model_id": 12}, http.StatusForbidden},
		{"UnknownMachine", map[string]any{"flow": "self_service", "model_id": 404}, http.StatusNotFound},
		{"UnknownField", map[string]any{"flow": "self_service", "model_id": 12, "price": 1}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, _ := web.do(http.MethodPost, "/api/v1/workflows", tt.body)
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

func TestHTTPAuth(t *testing.T) {
	_, _, ts := newTestServer(t, testAPIConfig())

	t.Run("MissingHeaders", func(t *testing.T) {
		resp, body := apiClient{t: t, url: ts.URL}.do(http.MethodGet, "/api/v1/workflows/x", nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, errMissingCredentials.Error(), body["error"])
	})

	t.Run("WrongExtra", func(t *testing.T) {
		resp, _ := apiClient{t: t, url: ts.URL, key: "web-key", extra: "nope"}.do(http.MethodGet, "/api/v1/workflows/x", nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("ProbesAreOpen", func(t *testing.T) {
		resp, body := apiClient{t: t, url: ts.URL}.do(http.MethodGet, "/healthz", nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "ok", body["status"])
	})
}

func TestHTTPRateLimit(t *testing.T) {
	cfg := testAPIConfig()
	cfg.RateLimit = config.APIRateLimitConfig{RPS: 0.001, Burst: 1}
	_, _, ts := newTestServer(t, cfg)
	c := apiClient{t: t, url: ts.URL, key: "web-key", extra: "web-extra"}

	resp, _ := c.do(http.MethodGet, "/api/v1/workflows/x", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp, _ = c.do(http.MethodGet, "/api/v1/workflows/x", nil)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}

func TestReadiness(t *testing.T) {
	srv, _, ts := newTestServer(t, testAPIConfig())
	c := apiClient{t: t, url: ts.URL}

	resp, _ := c.do(http.MethodGet, "/readyz", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	srv.SetReadiness(func(context.Context) error { return errors.New("redis down") })
	resp, body := c.do(http.MethodGet, "/readyz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "redis down", body["error"])
}
