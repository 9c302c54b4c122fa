package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"machrent/internal/config"
	"machrent/internal/metrics"
	"machrent/internal/workflow"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// OwnerHeader lets a front-end keep one session per end user behind a
// single API key.
const OwnerHeader = "X-Owner-ID"

const maxBodyBytes = 1 << 20

// ReadinessCheck reports whether the backend dependencies are reachable.
type ReadinessCheck func(ctx context.Context) error

// HTTPServer exposes the booking workflow controller as a JSON API.
type HTTPServer struct {
	cfg      config.APIConfig
	sessions *workflow.Registry
	rules    map[workflow.Flow]workflow.Rules
	server   *http.Server
	auth     *HTTPAuth
	ready    ReadinessCheck
	log      zerolog.Logger
}

func NewHTTPServer(
	cfg config.APIConfig,
	sessions *workflow.Registry,
	rules map[workflow.Flow]workflow.Rules,
	logger *zerolog.Logger,
) *HTTPServer {
	srv := &HTTPServer{
		cfg:      cfg,
		sessions: sessions,
		rules:    rules,
		auth:     NewHTTPAuth(cfg),
		log:      zerolog.Nop(),
	}
	if logger != nil {
		srv.log = logger.With().Str("component", "http").Logger()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", srv.handleHealth)
	mux.HandleFunc("GET /readyz", srv.handleReady)

	mux.HandleFunc("POST /api/v1/workflows", srv.handleOpen)
	mux.HandleFunc("GET /api/v1/workflows/{id}", srv.handleView)
	mux.HandleFunc("DELETE /api/v1/workflows/{id}", srv.handleClose)
	mux.HandleFunc("POST /api/v1/workflows/{id}/customer", srv.handleCustomer)
	mux.HandleFunc("GET /api/v1/workflows/{id}/locations", srv.handleLocations)
	mux.HandleFunc("POST /api/v1/workflows/{id}/location", srv.handleLocation)
	mux.HandleFunc("POST /api/v1/workflows/{id}/unit", srv.handleUnit)
	mux.HandleFunc("POST /api/v1/workflows/{id}/period", srv.handlePeriod)
	mux.HandleFunc("POST /api/v1/workflows/{id}/advance", srv.handleAdvance)
	mux.HandleFunc("POST /api/v1/workflows/{id}/retreat", srv.handleRetreat)
	mux.HandleFunc("GET /api/v1/workflows/{id}/summary", srv.handleSummary)
	mux.HandleFunc("POST /api/v1/workflows/{id}/submit", srv.handleSubmit)

	handler := srv.loggingMiddleware(mux, srv.auth.Wrap(mux))

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	return srv
}

// SetReadiness installs the check behind /readyz.
func (s *HTTPServer) SetReadiness(check ReadinessCheck) {
	s.ready = check
}

func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return errors.New("http server is not initialized")
	}
	s.log.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()
		if err := s.ready(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// loggingMiddleware labels metrics with the route pattern, never the raw path.
func (s *HTTPServer) loggingMiddleware(mux *http.ServeMux, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, requestID)

		_, pattern := mux.Handler(r)
		if pattern == "" {
			pattern = "unmatched"
		}

		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		metrics.IncHTTP(pattern)
		s.log.Info().
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("route", pattern).
			Int("status", recorder.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, out interface{}) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(out); err != nil {
		return errors.Wrap(err, "invalid JSON body")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
