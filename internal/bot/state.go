package bot

import (
	"context"
	"strconv"
	"time"

	"machrent/internal/models"
	"machrent/internal/workflow"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// owner is the registry key of a chat's session.
func owner(chatID int64) string {
	return "tg:" + strconv.FormatInt(chatID, 10)
}

func (b *Bot) setAwaiting(ctx context.Context, chatID int64, workflowID, awaiting string) {
	state := &models.ChatState{
		ChatID:     chatID,
		WorkflowID: workflowID,
		Awaiting:   awaiting,
		UpdatedAt:  time.Now(),
	}
	if err := b.state.SetState(ctx, state); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Int64("chat_id", chatID).Msg("Failed to save chat state")
	}
}

func (b *Bot) clearState(ctx context.Context, chatID int64) {
	if err := b.state.ClearState(ctx, chatID); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Int64("chat_id", chatID).Msg("Failed to clear chat state")
	}
}

// current resolves the chat's open session. When there is none the user is
// told so and nil is returned.
func (b *Bot) current(ctx context.Context, chatID int64) (*models.ChatState, *workflow.Controller) {
	state, err := b.state.GetState(ctx, chatID)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Int64("chat_id", chatID).Msg("Failed to load chat state")
		b.sendMessage(chatID, msgTryLater)
		return nil, nil
	}
	if state == nil || state.WorkflowID == "" {
		b.sendMessage(chatID, msgNoSession)
		return nil, nil
	}

	ctrl, err := b.sessions.GetOwned(owner(chatID), state.WorkflowID)
	if err != nil {
		b.clearState(ctx, chatID)
		b.sendMessage(chatID, msgSessionExpired)
		return nil, nil
	}
	return state, ctrl
}

// finish forgets the session and the chat state.
func (b *Bot) finish(ctx context.Context, chatID int64, workflowID string) {
	b.sessions.Close(workflowID)
	b.clearState(ctx, chatID)
}

func (b *Bot) sendMessage(chatID int64, text string) {
	b.send(tgbotapi.NewMessage(chatID, text))
}

func (b *Bot) sendWithKeyboard(chatID int64, text string, markup tgbotapi.InlineKeyboardMarkup) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = markup
	b.send(msg)
}

func (b *Bot) sendError(chatID int64, err error) {
	if text := userMessage(err); text != "" {
		b.sendMessage(chatID, text)
	}
}

func (b *Bot) send(c tgbotapi.Chattable) {
	if _, err := b.tg.Send(c); err != nil {
		if b.metrics != nil {
			b.metrics.ErrorsTotal.Inc()
		}
		b.logger.Error().Err(err).Msg("Failed to send message")
	}
}
