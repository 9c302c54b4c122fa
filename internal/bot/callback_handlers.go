package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"machrent/internal/workflow"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

func (b *Bot) handleCallbackQuery(ctx context.Context, callback *tgbotapi.CallbackQuery) {
	// Отвечаем на callback сразу, чтобы убрать "часики"
	if _, err := b.tg.Request(tgbotapi.NewCallback(callback.ID, "")); err != nil {
		zerolog.Ctx(ctx).Debug().Err(err).Msg("Failed to answer callback")
	}
	if callback.Message == nil || callback.Message.Chat == nil {
		return
	}

	chatID := callback.Message.Chat.ID
	userID := callback.From.ID
	data := callback.Data

	switch {
	case strings.HasPrefix(data, cbRent):
		if modelID, ok := parseID(data, cbRent); ok {
			b.openWorkflow(ctx, chatID, userID, workflow.FlowSelfService, modelID)
		}
		return
	case strings.HasPrefix(data, cbBook):
		if modelID, ok := parseID(data, cbBook); ok {
			b.openWorkflow(ctx, chatID, userID, workflow.FlowStaff, modelID)
		}
		return
	case data == cbCancel:
		b.cancelWorkflow(ctx, chatID)
		return
	}

	_, ctrl := b.current(ctx, chatID)
	if ctrl == nil {
		return
	}

	switch {
	case strings.HasPrefix(data, cbLocation):
		locationID, ok := parseID(data, cbLocation)
		if !ok {
			return
		}
		if _, err := ctrl.SelectLocation(ctx, locationID); err != nil {
			b.sendError(chatID, err)
			return
		}
		b.showStep(ctx, chatID, ctrl)

	case strings.HasPrefix(data, cbUnit):
		if err := ctrl.SelectUnit(strings.TrimPrefix(data, cbUnit)); err != nil {
			b.sendError(chatID, err)
			return
		}
		b.showStep(ctx, chatID, ctrl)

	case data == cbNext:
		if err := ctrl.Advance(); err != nil {
			b.sendError(chatID, err)
			return
		}
		b.showStep(ctx, chatID, ctrl)

	case data == cbBack:
		aborted, err := ctrl.Retreat()
		if err != nil {
			b.sendError(chatID, err)
			return
		}
		if aborted {
			b.finish(ctx, chatID, ctrl.ID())
			b.sendMessage(chatID, msgAborted)
			return
		}
		b.showStep(ctx, chatID, ctrl)

	case data == cbSubmit:
		b.submit(ctx, chatID, ctrl)
	}
}

func (b *Bot) submit(ctx context.Context, chatID int64, ctrl *workflow.Controller) {
	summary, err := ctrl.Summary()
	if err != nil {
		b.sendError(chatID, err)
		return
	}
	rental, err := ctrl.Submit(ctx)
	if err != nil {
		// черновик сохранён, можно повторить или вернуться назад
		b.sendError(chatID, err)
		return
	}

	b.finish(ctx, chatID, ctrl.ID())
	zerolog.Ctx(ctx).Info().Str("rental_id", rental.ID).Int64("chat_id", chatID).Msg("Rental submitted from chat")
	b.sendMessage(chatID, fmt.Sprintf("✅ Аренда оформлена! Номер заявки: %s\nИтого к оплате: %d\n%s",
		rental.ID, summary.TotalPrice, msgReceiptFollows))
}

func parseID(data, prefix string) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimPrefix(data, prefix), 10, 64)
	return id, err == nil && id > 0
}
