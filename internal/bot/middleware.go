package bot

import (
	"context"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

func (b *Bot) withRecovery(handler func()) {
	defer func() {
		if r := recover(); r != nil {
			if b.metrics != nil {
				b.metrics.ErrorsTotal.Inc()
			}
			b.logger.Error().Interface("panic", r).Msg("Recovered from panic in update handler")
		}
	}()
	handler()
}

// allow applies the per-user message limit. Managers are never limited and a
// failing limiter lets the update through.
func (b *Bot) allow(ctx context.Context, update tgbotapi.Update, userID int64) bool {
	if b.config.IsManager(userID) {
		return true
	}
	window := time.Duration(b.config.Bot.RateLimitWindow) * time.Second
	allowed, err := b.state.CheckRateLimit(ctx, userID, b.config.Bot.RateLimitMessages, window)
	if err != nil {
		b.logger.Error().Err(err).Int64("user_id", userID).Msg("Rate limit check failed")
		return true
	}
	if allowed {
		return true
	}

	b.logger.Warn().Int64("user_id", userID).Msg("Rate limit exceeded")
	if b.metrics != nil {
		b.metrics.RateLimited.Inc()
	}
	if update.Message != nil {
		b.sendMessage(update.Message.Chat.ID, msgRateLimited)
	}
	return false
}
