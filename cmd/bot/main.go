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

	"machrent/internal/bot"
	"machrent/internal/config"
	"machrent/internal/domain"
	"machrent/internal/events"
	"machrent/internal/gateway"
	"machrent/internal/logging"
	"machrent/internal/metrics"
	"machrent/internal/repository"
	"machrent/internal/session"
	"machrent/internal/workflow"
	"machrent/internal/worker"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
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
		defer (func(c io.Closer) { _ = c.Close() })(closer)
	}

	if err := cfg.ValidateBot(); err != nil {
		logger.Error().Err(err).Msg("Задайте токен бота в config.yaml")
		return err
	}
	if cfg.Exports.Path != "" {
		if err := os.MkdirAll(cfg.Exports.Path, 0o755); err != nil {
			logger.Error().Err(err).Msg("Ошибка создания директории для квитанций")
			return err
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	redisClient, stateRepo := initStateRepository(ctx, cfg, &logger)
	if redisClient != nil {
		defer func() { _ = repository.Close(redisClient) }()
	}

	tokens, err := initSession(ctx, cfg, &logger)
	if err != nil {
		return err
	}

	backend := gateway.NewClient(cfg.Backend.BaseURL, tokens, cfg.Backend.Timeout(), logging.Component(&logger, "gateway"))
	if redisClient != nil {
		backend.UseRedisCache(redisClient, cfg.Gateway.CacheTTL())
	}

	eventBus := events.NewEventBus(logging.Component(&logger, "events"))
	sessions := workflow.NewRegistry(workflow.Deps{
		Gateway: backend,
		Events:  eventBus,
		Logger:  logging.Component(&logger, "workflow"),
	}, cfg.Booking.SessionTTL())
	go sessions.Run(ctx, time.Minute, &logger)

	metrics.Register()
	botMetrics := bot.NewMetrics(prometheus.DefaultRegisterer)
	if cfg.Monitoring.PrometheusEnabled {
		go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, &logger)
	}
	go startHealthServer(ctx, cfg.Monitoring.HealthCheckPort, tokens, redisClient, &logger)

	return startBot(ctx, cfg, stateRepo, sessions, eventBus, redisClient, botMetrics, &logger)
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
	logger := baseLogger.With().Str("component", "bot-main").Logger()

	return cfg, logger, closer, nil
}

// initStateRepository keeps chat state in Redis and falls back to memory
// while Redis is unreachable.
func initStateRepository(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*redis.Client, domain.StateRepository) {
	ttl := cfg.Booking.SessionTTL()

	var redisClient *redis.Client
	if cfg.Redis.Address != "" {
		redisClient = repository.NewRedisClient(cfg.Redis)
		if errPing := repository.Ping(ctx, redisClient); errPing != nil {
			logger.Warn().Err(errPing).Msg("Redis unavailable")
		}
	}

	fallbackRepo := repository.NewMemoryStateRepository(ttl)
	if redisClient == nil {
		return nil, fallbackRepo
	}
	primaryRepo := repository.NewRedisStateRepository(redisClient, ttl)
	return redisClient, repository.NewFailoverStateRepository(primaryRepo, fallbackRepo, logger)
}

// initSession seeds the token store from configured tokens or logs in with
// the configured credentials.
func initSession(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*session.Store, error) {
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

	store := session.NewStore(session.NewAuthClient(cfg.Backend.BaseURL, cfg.Backend.Timeout()), opts...)
	if cfg.Backend.AccessToken == "" {
		if err := store.Login(ctx, cfg.Backend.Email, cfg.Backend.Password); err != nil {
			logger.Error().Err(err).Msg("Не удалось войти в систему аренды")
			return nil, err
		}
	}
	if p, ok := store.Principal(); ok {
		logger.Info().Str("subject", p.Subject).Str("role", p.Role).Msg("Backend session ready")
	}
	return store, nil
}

func startBot(
	ctx context.Context,
	cfg *config.Config,
	stateRepo domain.StateRepository,
	sessions *workflow.Registry,
	eventBus *events.EventBus,
	redisClient *redis.Client,
	botMetrics *bot.Metrics,
	logger *zerolog.Logger,
) error {
	tg, err := bot.NewTelegramSender(cfg.Telegram.BotToken, cfg.Telegram.Debug)
	if err != nil {
		logger.Error().Err(err).Msg("Ошибка создания BotAPI")
		return err
	}

	telegramBot, err := bot.NewBot(tg, cfg, stateRepo, sessions, botMetrics, logger)
	if err != nil {
		logger.Error().Err(err).Msg("Ошибка создания бота")
		return err
	}

	retry := worker.RetryPolicy{MaxRetries: cfg.Bot.ReceiptRetries}
	receiptWorker := worker.NewReceiptWorker(telegramBot, redisClient, retry, logger)
	subscribeWorkflowEvents(eventBus, receiptWorker, logger)

	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		receiptWorker.Start(ctx)
	}()

	logger.Info().Msg("Бот запущен...")
	telegramBot.Start(ctx)
	telegramBot.Stop()

	<-workerDone
	logger.Info().Msg("Shutdown complete.")
	return nil
}

func subscribeWorkflowEvents(bus *events.EventBus, receipts *worker.ReceiptWorker, logger *zerolog.Logger) {
	audit := func(ev *events.Event) error {
		var payload events.WorkflowEventPayload
		if err := ev.Decode(&payload); err != nil {
			return err
		}
		logger.Info().
			Str("event", ev.Type).
			Str("workflow_id", payload.WorkflowID).
			Str("flow", payload.Flow).
			Str("step", payload.Step).
			Str("rental_id", payload.RentalID).
			Str("reason", payload.Reason).
			Msg("workflow event")
		return nil
	}

	for _, t := range []string{
		events.EventWorkflowOpened,
		events.EventCustomerResolved,
		events.EventPeriodValidated,
		events.EventRentalSubmitted,
		events.EventWorkflowAborted,
	} {
		bus.Subscribe(t, audit)
	}
	bus.Subscribe(events.EventRentalSubmitted, receipts.HandleEvent)
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	if port == 0 {
		port = 9090
	}
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

func startHealthServer(ctx context.Context, port int, tokens *session.Store, rdb *redis.Client, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		ctxPing, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		if _, err := tokens.Token(ctxPing); err != nil {
			http.Error(w, "backend session not ready", http.StatusServiceUnavailable)
			return
		}
		if rdb != nil {
			if err := rdb.Ping(ctxPing).Err(); err != nil {
				http.Error(w, "redis not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	srv := &http.Server{Addr: ":" + strconv.Itoa(port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("health server error")
	}
}
