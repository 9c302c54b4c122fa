// Package gateway is the HTTP client of the rental backend. It is the only
// place that knows backend URLs, status codes and response shapes; callers
// see models and domain errors.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"machrent/internal/dates"
	"machrent/internal/domain"
	"machrent/internal/metrics"
	"machrent/internal/models"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const maxBodyBytes = 1 << 20

type Client struct {
	baseURL    string
	tokens     domain.TokenSource
	httpClient *http.Client
	logger     zerolog.Logger

	redis    *redis.Client
	cacheTTL time.Duration
}

var _ domain.Gateway = (*Client)(nil)

func NewClient(baseURL string, tokens domain.TokenSource, timeout time.Duration, logger *zerolog.Logger) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "gateway").Logger()
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		tokens:     tokens,
		httpClient: &http.Client{Timeout: timeout},
		logger:     l,
	}
}

// UseRedisCache enables read-through caching of location lists.
func (c *Client) UseRedisCache(redisClient *redis.Client, ttl time.Duration) {
	c.redis = redisClient
	c.cacheTTL = ttl
}

func (c *Client) GetMachine(ctx context.Context, modelID int64) (*models.Machine, error) {
	const op = "get_machine"
	resp, err := c.call(ctx, op, http.MethodGet, fmt.Sprintf("/api/v1/machines/%d", modelID), nil)
	if err != nil {
		return nil, err
	}

	switch resp.status {
	case http.StatusOK:
		var m struct {
			ID          int64  `json:"id"`
			Name        string `json:"name"`
			Brand       string `json:"brand"`
			DailyRate   *int64 `json:"daily_rate"`
			PricePerDay *int64 `json:"price_per_day"`
		}
		if err := resp.decode(op, &m); err != nil {
			return nil, err
		}
		machine := &models.Machine{ID: m.ID, Name: m.Name, Brand: m.Brand}
		switch {
		case m.DailyRate != nil:
			machine.DailyRate = *m.DailyRate
		case m.PricePerDay != nil:
			machine.DailyRate = *m.PricePerDay
		}
		if machine.DailyRate <= 0 {
			return nil, domain.Transport(errors.Wrapf(domain.ErrTransport, "%s: machine %d has no daily rate", op, modelID))
		}
		if machine.ID == 0 {
			machine.ID = modelID
		}
		return machine, nil
	case http.StatusNotFound:
		return nil, resp.reject(op, domain.ErrNoMachine)
	default:
		return nil, resp.unexpected(op)
	}
}

// LookupCustomerByEmail resolves a customer. Users that exist but are not
// customers are reported as not found.
func (c *Client) LookupCustomerByEmail(ctx context.Context, email string) (*models.Customer, error) {
	const op = "lookup_customer"
	resp, err := c.call(ctx, op, http.MethodGet, "/api/v1/users/lookup?email="+url.QueryEscape(email), nil)
	if err != nil {
		return nil, err
	}

	switch resp.status {
	case http.StatusOK:
		var cust models.Customer
		if err := resp.decode(op, &cust); err != nil {
			return nil, err
		}
		if cust.Role != "" && cust.Role != models.RoleCustomer {
			return nil, domain.Rejection(&domain.RejectionError{Op: op, Reason: "role " + cust.Role, Err: domain.ErrNotFound})
		}
		if cust.Email == "" {
			cust.Email = email
		}
		return &cust, nil
	case http.StatusNotFound:
		return nil, resp.reject(op, domain.ErrNotFound)
	default:
		return nil, resp.unexpected(op)
	}
}

func (c *Client) ListLocationsForModel(ctx context.Context, modelID int64) ([]models.Location, error) {
	const op = "list_locations"
	cacheKey := fmt.Sprintf("machrent:locations:%d", modelID)
	var cached []models.Location
	if c.readCache(ctx, cacheKey, &cached) {
		return cached, nil
	}

	resp, err := c.call(ctx, op, http.MethodGet, fmt.Sprintf("/api/v1/machines/%d/locations", modelID), nil)
	if err != nil {
		return nil, err
	}

	switch resp.status {
	case http.StatusOK:
		locations, err := normalizeLocations(resp.body)
		if err != nil {
			return nil, domain.Transport(errors.Wrapf(domain.ErrTransport, "%s: %v", op, err))
		}
		c.writeCache(ctx, cacheKey, locations)
		return locations, nil
	case http.StatusNotFound:
		return nil, resp.reject(op, domain.ErrNoMachine)
	default:
		return nil, resp.unexpected(op)
	}
}

func (c *Client) ListAvailableUnits(ctx context.Context, modelID, locationID int64) ([]string, error) {
	const op = "list_units"
	resp, err := c.call(ctx, op, http.MethodGet, fmt.Sprintf("/api/v1/machines/%d/locations/%d/units", modelID, locationID), nil)
	if err != nil {
		return nil, err
	}

	switch resp.status {
	case http.StatusOK:
		units, err := normalizeUnits(resp.body)
		if err != nil {
			return nil, domain.Transport(errors.Wrapf(domain.ErrTransport, "%s: %v", op, err))
		}
		return units, nil
	case http.StatusNotFound:
		return []string{}, nil
	default:
		return nil, resp.unexpected(op)
	}
}

type validateRequest struct {
	UnitID    string `json:"unit_id"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

type overlapBody struct {
	ConflictStart string `json:"conflict_start"`
	ConflictEnd   string `json:"conflict_end"`
	Message       string `json:"message"`
}

// ValidatePeriod returns Valid or Overlap as a result. Invalid periods and
// transport problems are errors.
func (c *Client) ValidatePeriod(ctx context.Context, unitID string, start, end time.Time) (models.AvailabilityResult, error) {
	const op = "validate_period"
	body := validateRequest{UnitID: unitID, StartDate: dates.Format(start), EndDate: dates.Format(end)}
	resp, err := c.call(ctx, op, http.MethodPost, "/api/v1/rentals/validate", body)
	if err != nil {
		return models.AvailabilityResult{}, err
	}

	switch resp.status {
	case http.StatusOK, http.StatusNoContent:
		return models.ValidPeriod(dates.Midnight(start), dates.Midnight(end)), nil
	case http.StatusConflict:
		var ob overlapBody
		if err := resp.decode(op, &ob); err != nil {
			return models.AvailabilityResult{}, err
		}
		cs, errStart := dates.Parse(ob.ConflictStart)
		ce, errEnd := dates.Parse(ob.ConflictEnd)
		if errStart != nil || errEnd != nil {
			return models.AvailabilityResult{}, domain.Transport(errors.Wrapf(domain.ErrTransport, "%s: bad conflict range %q..%q", op, ob.ConflictStart, ob.ConflictEnd))
		}
		if ob.Message == "" {
			ob.Message = resp.message()
		}
		return models.OverlapPeriod(dates.Midnight(start), dates.Midnight(end), cs, ce, ob.Message), nil
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return models.AvailabilityResult{}, resp.reject(op, domain.ErrInvalidPeriod)
	default:
		return models.AvailabilityResult{}, resp.unexpected(op)
	}
}

func (c *Client) CreateRental(ctx context.Context, req models.RentalRequest) (*models.Rental, error) {
	const op = "create_rental"
	resp, err := c.call(ctx, op, http.MethodPost, "/api/v1/rentals", req)
	if err != nil {
		return nil, err
	}

	switch resp.status {
	case http.StatusOK, http.StatusCreated:
		var body struct {
			ID       json.RawMessage `json:"id"`
			RentalID json.RawMessage `json:"rental_id"`
		}
		if err := resp.decode(op, &body); err != nil {
			return nil, err
		}
		id := rawID(body.ID)
		if id == "" {
			id = rawID(body.RentalID)
		}
		if id == "" {
			return nil, domain.Transport(errors.Wrapf(domain.ErrTransport, "%s: response without rental id", op))
		}
		start, _ := dates.Parse(req.StartDate)
		end, _ := dates.Parse(req.EndDate)
		return &models.Rental{
			ID:         id,
			MachineID:  req.MachineID,
			UnitID:     req.UnitID,
			CustomerID: req.CustomerID,
			StartDate:  start,
			EndDate:    end,
			TotalPrice: req.TotalPrice,
		}, nil
	case http.StatusConflict:
		return nil, resp.reject(op, domain.ErrConflict)
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return nil, resp.reject(op, domain.ErrInvalidPrice)
	default:
		return nil, resp.unexpected(op)
	}
}

type response struct {
	status int
	body   []byte
}

func (r *response) decode(op string, out interface{}) error {
	if err := json.Unmarshal(r.body, out); err != nil {
		return domain.Transport(errors.Wrapf(domain.ErrTransport, "%s: undecodable body: %v", op, err))
	}
	return nil
}

// message extracts the backend's own reason, if it sent one.
func (r *response) message() string {
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
		Detail  string `json:"detail"`
	}
	if json.Unmarshal(r.body, &body) != nil {
		return ""
	}
	for _, s := range []string{body.Message, body.Error, body.Detail} {
		if s != "" {
			return s
		}
	}
	return ""
}

func (r *response) reject(op string, sentinel error) error {
	return domain.Rejection(&domain.RejectionError{Op: op, Reason: r.message(), Err: sentinel})
}

// unexpected maps statuses no operation handles. 403 is always Forbidden;
// anything else is a transport failure the user may retry.
func (r *response) unexpected(op string) error {
	if r.status == http.StatusForbidden {
		return r.reject(op, domain.ErrForbidden)
	}
	return domain.Transport(errors.Wrapf(domain.ErrTransport, "%s: http %d", op, r.status))
}

// call performs one request. A 401 refreshes the token once and repeats the
// request; a second 401 is Forbidden. Statuses >= 500 and network errors are
// transport failures; other statuses are returned to the caller to map.
func (c *Client) call(ctx context.Context, op, method, path string, body interface{}) (*response, error) {
	started := time.Now()
	resp, err := c.callOnce(ctx, op, method, path, body)
	result := domain.Category(err)
	if err == nil && resp.status >= 400 {
		result = fmt.Sprintf("http_%d", resp.status)
	}
	metrics.ObserveGateway(op, result, time.Since(started))
	return resp, err
}

func (c *Client) callOnce(ctx context.Context, op, method, path string, body interface{}) (*response, error) {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return nil, errors.Wrapf(err, "%s: encode request", op)
		}
	}

	requestID := uuid.NewString()
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, c.tokenError(op, err)
	}

	for attempt := 0; ; attempt++ {
		resp, err := c.send(ctx, method, path, payload, token, requestID)
		if err != nil {
			c.logger.Warn().Err(err).Str("op", op).Str("request_id", requestID).Msg("backend request failed")
			return nil, domain.Transport(errors.Wrapf(domain.ErrTransport, "%s: %v", op, err))
		}

		if resp.status == http.StatusUnauthorized {
			if attempt > 0 {
				return nil, resp.reject(op, domain.ErrForbidden)
			}
			c.logger.Debug().Str("op", op).Str("request_id", requestID).Msg("access token rejected, refreshing")
			if token, err = c.tokens.Refresh(ctx, token); err != nil {
				return nil, c.tokenError(op, err)
			}
			continue
		}

		if resp.status >= 500 {
			c.logger.Warn().Str("op", op).Int("status", resp.status).Str("request_id", requestID).Msg("backend error")
			return nil, domain.Transport(errors.Wrapf(domain.ErrTransport, "%s: http %d", op, resp.status))
		}
		return resp, nil
	}
}

func (c *Client) send(ctx context.Context, method, path string, payload []byte, token, requestID string) (*response, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, err
	}
	return &response{status: resp.StatusCode, body: data}, nil
}

// tokenError keeps categorized errors and treats everything else as the
// session being unusable.
func (c *Client) tokenError(op string, err error) error {
	if errors.Is(err, domain.ErrTransportFailure) || errors.Is(err, domain.ErrRemoteRejection) {
		return err
	}
	return domain.Rejection(&domain.RejectionError{Op: op, Reason: err.Error(), Err: domain.ErrForbidden})
}

func (c *Client) readCache(ctx context.Context, key string, out interface{}) bool {
	if c.redis == nil || c.cacheTTL <= 0 {
		return false
	}
	val, err := c.redis.Get(ctx, key).Result()
	if err != nil {
		return false
	}
	if err := json.Unmarshal([]byte(val), out); err != nil {
		return false
	}
	return true
}

func (c *Client) writeCache(ctx context.Context, key string, val interface{}) {
	if c.redis == nil || c.cacheTTL <= 0 {
		return
	}
	data, err := json.Marshal(val)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, key, data, c.cacheTTL).Err(); err != nil {
		c.logger.Debug().Err(err).Str("key", key).Msg("cache write failed")
	}
}

func rawID(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	return strings.Trim(string(raw), `"`)
}
