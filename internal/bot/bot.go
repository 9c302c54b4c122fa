package bot

import (
	"context"
	"time"

	"machrent/internal/config"
	"machrent/internal/domain"
	"machrent/internal/workflow"

	"github.com/cockroachdb/errors"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Bot is the desk surface of the booking workflow. Each chat drives at most
// one workflow session, tracked through the state repository.
type Bot struct {
	tg       domain.TelegramSender
	config   *config.Config
	state    domain.StateRepository
	sessions *workflow.Registry
	rules    map[workflow.Flow]workflow.Rules
	metrics  *Metrics
	logger   *zerolog.Logger
}

func NewBot(
	tg domain.TelegramSender,
	cfg *config.Config,
	state domain.StateRepository,
	sessions *workflow.Registry,
	metrics *Metrics,
	logger *zerolog.Logger,
) (*Bot, error) {
	if tg == nil || cfg == nil || state == nil || sessions == nil {
		return nil, errors.New("bot: telegram sender, config, state and sessions are required")
	}
	if logger == nil {
		l := zerolog.Nop()
		logger = &l
	}

	return &Bot{
		tg:       tg,
		config:   cfg,
		state:    state,
		sessions: sessions,
		rules: map[workflow.Flow]workflow.Rules{
			workflow.FlowStaff: {
				MinRentalDays:  cfg.Booking.StaffMinDays,
				MaxAdvanceDays: cfg.Booking.MaxAdvanceDays,
			},
			workflow.FlowSelfService: {
				MinRentalDays:  cfg.Booking.SelfServiceMinDays,
				MaxAdvanceDays: cfg.Booking.MaxAdvanceDays,
			},
		},
		metrics: metrics,
		logger:  logger,
	}, nil
}

func (b *Bot) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.tg.GetUpdatesChan(u)

	b.logger.Info().Str("username", b.tg.GetSelf().UserName).Msg("Authorized on account")

	for {
		select {
		case <-ctx.Done():
			b.logger.Info().Msg("Bot stopping...")
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			b.processUpdate(ctx, update)
		}
	}
}

// Stop ends long polling. Start returns once its context is canceled.
func (b *Bot) Stop() {
	b.tg.StopReceivingUpdates()
}

func (b *Bot) processUpdate(ctx context.Context, update tgbotapi.Update) {
	start := time.Now()
	kind := updateKind(update)
	defer func() {
		if b.metrics != nil {
			b.metrics.UpdatesProcessed.WithLabelValues(kind).Inc()
			b.metrics.UpdateProcessingTime.Observe(time.Since(start).Seconds())
		}
	}()

	// Контекст на одно обновление: запрос к бэкенду не должен держать цикл
	updateCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	l := b.logger.With().Str("request_id", uuid.NewString()).Logger()
	updateCtx = l.WithContext(updateCtx)

	b.withRecovery(func() {
		var userID int64
		switch {
		case update.Message != nil && update.Message.From != nil:
			userID = update.Message.From.ID
		case update.CallbackQuery != nil && update.CallbackQuery.From != nil:
			userID = update.CallbackQuery.From.ID
		}
		if userID == 0 || b.config.IsBlacklisted(userID) {
			return
		}

		if !b.allow(updateCtx, update, userID) {
			return
		}

		if update.CallbackQuery != nil {
			b.handleCallbackQuery(updateCtx, update.CallbackQuery)
			return
		}
		b.handleMessage(updateCtx, update.Message)
	})
}

func updateKind(update tgbotapi.Update) string {
	switch {
	case update.CallbackQuery != nil:
		return "callback"
	case update.Message != nil && update.Message.IsCommand():
		return "command"
	case update.Message != nil:
		return "message"
	default:
		return "other"
	}
}
