package main

import (
	"context"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"machrent/internal/api"
	"machrent/internal/config"
	"machrent/internal/events"
	"machrent/internal/gateway"
	"machrent/internal/logging"
	"machrent/internal/metrics"
	"machrent/internal/repository"
	"machrent/internal/session"
	"machrent/internal/workflow"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}

	if !cfg.API.Enabled {
		logger.Warn().Msg("API is disabled in config, but starting API application. Check your config.")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisClient := initRedis(ctx, cfg, &logger)
	if redisClient != nil {
		defer redisClient.Close()
	}

	tokens := initSession(cfg, &logger)
	backend := gateway.NewClient(cfg.Backend.BaseURL, tokens, cfg.Backend.Timeout(), logging.Component(&logger, "gateway"))
	if redisClient != nil {
		backend.UseRedisCache(redisClient, cfg.Gateway.CacheTTL())
	}

	eventBus := events.NewEventBus(logging.Component(&logger, "events"))
	subscribeWorkflowEvents(eventBus, &logger)

	sessions := workflow.NewRegistry(workflow.Deps{
		Gateway: backend,
		Events:  eventBus,
		Logger:  logging.Component(&logger, "workflow"),
	}, cfg.Booking.SessionTTL())
	go sessions.Run(ctx, time.Minute, &logger)

	rules := map[workflow.Flow]workflow.Rules{
		workflow.FlowStaff: {
			MinRentalDays:  cfg.Booking.StaffMinDays,
			MaxAdvanceDays: cfg.Booking.MaxAdvanceDays,
		},
		workflow.FlowSelfService: {
			MinRentalDays:  cfg.Booking.SelfServiceMinDays,
			MaxAdvanceDays: cfg.Booking.MaxAdvanceDays,
		},
	}

	ready := readiness(tokens, redisClient)

	httpServer := api.NewHTTPServer(cfg.API, sessions, rules, &logger)
	httpServer.SetReadiness(ready)

	var grpcServer *api.GRPCServer
	if cfg.API.GRPC.Enabled {
		grpcServer, err = api.NewGRPCServer(cfg.API, &logger)
		if err != nil {
			logger.Error().Err(err).Msg("create grpc server")
			return err
		}
		go grpcServer.Watch(ctx, 15*time.Second, ready)
	}

	startMetrics(ctx, cfg, &logger)

	return startServers(ctx, grpcServer, httpServer, cfg, &logger)
}

func loadConfigAndLogger() (*config.Config, zerolog.Logger, io.Closer, error) {
	cfg, err := config.Load(config.Path())
	if err != nil {
		return nil, zerolog.Logger{}, nil, errors.Wrap(err, "load config")
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, zerolog.Logger{}, nil, errors.Wrap(err, "init logger")
	}
	logger := baseLogger.With().Str("component", "api-main").Logger()

	return cfg, logger, closer, nil
}

func initRedis(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	redisClient := repository.NewRedisClient(cfg.Redis)
	if err := repository.Ping(ctx, redisClient); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing without redis")
		_ = redisClient.Close()
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return redisClient
}

// initSession builds the token store. Without seeded tokens the first
// backend call logs in with the configured credentials.
func initSession(cfg *config.Config, logger *zerolog.Logger) *session.Store {
	opts := []session.Option{session.WithLogger(logger)}
	if cfg.Backend.Email != "" {
		opts = append(opts, session.WithCredentials(session.Credentials{
			Email:    cfg.Backend.Email,
			Password: cfg.Backend.Password,
		}))
	}
	if cfg.Backend.AccessToken != "" {
		opts = append(opts, session.WithTokens(session.Tokens{
			AccessToken:  cfg.Backend.AccessToken,
			RefreshToken: cfg.Backend.RefreshToken,
		}))
	}
	return session.NewStore(session.NewAuthClient(cfg.Backend.BaseURL, cfg.Backend.Timeout()), opts...)
}

// readiness reports ready once the backend session holds a usable token and
// Redis, when configured, answers.
func readiness(tokens *session.Store, redisClient *redis.Client) api.ReadinessCheck {
	return func(ctx context.Context) error {
		if _, err := tokens.Token(ctx); err != nil {
			return errors.Wrap(err, "backend session")
		}
		if redisClient != nil {
			if err := repository.Ping(ctx, redisClient); err != nil {
				return err
			}
		}
		return nil
	}
}

func subscribeWorkflowEvents(bus *events.EventBus, logger *zerolog.Logger) {
	audit := func(ev *events.Event) error {
		var payload events.WorkflowEventPayload
		if err := ev.Decode(&payload); err != nil {
			return err
		}
		logger.Info().
			Str("event", ev.Type).
			Str("workflow_id", payload.WorkflowID).
			Str("flow", payload.Flow).
			Str("rental_id", payload.RentalID).
			Int64("total_price", payload.TotalPrice).
			Msg("workflow event")
		return nil
	}
	bus.Subscribe(events.EventRentalSubmitted, audit)
	bus.Subscribe(events.EventWorkflowAborted, audit)
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	metrics.Register()
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	port := cfg.Monitoring.PrometheusPort
	if port == 0 {
		port = 9090
	}
	go startMetricsServer(ctx, port, logger)
}

func startServers(
	ctx context.Context,
	grpcServer *api.GRPCServer,
	httpServer *api.HTTPServer,
	cfg *config.Config,
	logger *zerolog.Logger,
) error {
	if grpcServer != nil {
		go func() {
			if err := grpcServer.Serve(); err != nil {
				logger.Error().Err(err).Msg("grpc server stopped")
			}
		}()
		logger.Info().Str("grpc_addr", grpcServer.Addr()).Msg("gRPC health server started")
	}

	go func() {
		if !cfg.API.HTTP.Enabled {
			return
		}
		if err := httpServer.Start(); err != nil {
			logger.Error().Err(err).Msg("http server stopped")
		}
	}()

	logger.Info().Int("http_port", cfg.API.HTTP.Port).Msg("API server started")

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if grpcServer != nil {
		grpcServer.Shutdown(shutdownCtx)
	}
	_ = httpServer.Shutdown(shutdownCtx)

	logger.Info().Msg("API server stopped")
	return nil
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: ":" + strconv.Itoa(port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
