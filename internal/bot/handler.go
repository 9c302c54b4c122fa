package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"machrent/internal/dates"
	"machrent/internal/models"
	"machrent/internal/workflow"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg == nil || msg.Chat == nil || msg.From == nil {
		return
	}
	zerolog.Ctx(ctx).Debug().
		Int64("user_id", msg.From.ID).
		Str("username", msg.From.UserName).
		Str("text", msg.Text).
		Msg("Handling message")

	if msg.IsCommand() {
		b.handleCommand(ctx, msg)
		return
	}

	chatID := msg.Chat.ID
	state, ctrl := b.current(ctx, chatID)
	if ctrl == nil {
		return
	}

	text := strings.TrimSpace(msg.Text)
	switch state.Awaiting {
	case models.AwaitEmail:
		b.handleEmailInput(ctx, chatID, ctrl, text)
	case models.AwaitPeriod:
		b.handlePeriodInput(ctx, chatID, ctrl, text)
	default:
		b.sendMessage(chatID, msgUseButtons)
	}
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	switch msg.Command() {
	case "start", "help":
		b.showCatalog(chatID, msg.From.ID)
	case "rent":
		b.openFromCommand(ctx, msg, workflow.FlowSelfService, msgRentUsage)
	case "book":
		b.openFromCommand(ctx, msg, workflow.FlowStaff, msgBookUsage)
	case "status":
		if _, ctrl := b.current(ctx, chatID); ctrl != nil {
			b.showStep(ctx, chatID, ctrl)
		}
	case "cancel":
		b.cancelWorkflow(ctx, chatID)
	default:
		b.sendMessage(chatID, msgUnknownCommand)
	}
}

func (b *Bot) showCatalog(chatID, userID int64) {
	if len(b.config.Catalog) == 0 {
		b.sendMessage(chatID, msgCatalogEmpty)
		return
	}
	b.sendWithKeyboard(chatID, msgWelcome, catalogKeyboard(b.config.Catalog, b.config.IsManager(userID)))
}

func (b *Bot) openFromCommand(ctx context.Context, msg *tgbotapi.Message, flow workflow.Flow, usage string) {
	modelID, err := strconv.ParseInt(strings.TrimSpace(msg.CommandArguments()), 10, 64)
	if err != nil || modelID <= 0 {
		b.sendMessage(msg.Chat.ID, usage)
		return
	}
	b.openWorkflow(ctx, msg.Chat.ID, msg.From.ID, flow, modelID)
}

// openWorkflow starts a session for the chat, replacing any previous one.
func (b *Bot) openWorkflow(ctx context.Context, chatID, userID int64, flow workflow.Flow, modelID int64) {
	if flow == workflow.FlowStaff && !b.config.IsManager(userID) {
		b.sendMessage(chatID, msgStaffOnly)
		return
	}

	ctrl, err := b.sessions.Open(ctx, owner(chatID), workflow.Options{
		Flow:    flow,
		ModelID: modelID,
		ChatID:  chatID,
		Rules:   b.rules[flow],
	})
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Int64("model_id", modelID).Msg("Failed to open workflow")
		b.sendError(chatID, err)
		return
	}

	m := ctrl.Machine()
	b.sendMessage(chatID, fmt.Sprintf("🚜 %s\nСуточная ставка: %d", m.Name, m.DailyRate))
	b.showStep(ctx, chatID, ctrl)
}

func (b *Bot) cancelWorkflow(ctx context.Context, chatID int64) {
	state, err := b.state.GetState(ctx, chatID)
	if err == nil && state != nil && state.WorkflowID != "" {
		b.sessions.Close(state.WorkflowID)
	}
	b.clearState(ctx, chatID)
	b.sendMessage(chatID, msgCancelled)
}

// showStep renders the current step and records which free-text input the
// chat is expected to send next.
func (b *Bot) showStep(ctx context.Context, chatID int64, ctrl *workflow.Controller) {
	switch ctrl.CurrentStep() {
	case workflow.StepSelectCustomer:
		b.setAwaiting(ctx, chatID, ctrl.ID(), models.AwaitEmail)
		v := ctrl.View()
		b.sendWithKeyboard(chatID, customerText(v), stepKeyboard(v))

	case workflow.StepSelectLocationUnit:
		b.setAwaiting(ctx, chatID, ctrl.ID(), models.AwaitNothing)
		if _, err := ctrl.Locations(ctx); err != nil {
			b.sendError(chatID, err)
			v := ctrl.View()
			b.sendWithKeyboard(chatID, stepHeader(v), stepKeyboard(v))
			return
		}
		v := ctrl.View()
		b.sendWithKeyboard(chatID, locationText(v), locationKeyboard(v))

	case workflow.StepSelectPeriod:
		b.setAwaiting(ctx, chatID, ctrl.ID(), models.AwaitPeriod)
		v := ctrl.View()
		b.sendWithKeyboard(chatID, periodText(v, b.rules[ctrl.Flow()].MinRentalDays), stepKeyboard(v))

	case workflow.StepSummary:
		b.setAwaiting(ctx, chatID, ctrl.ID(), models.AwaitNothing)
		s, err := ctrl.Summary()
		if err != nil {
			b.sendError(chatID, err)
			return
		}
		b.sendWithKeyboard(chatID, summaryText(s), summaryKeyboard())
	}
}

func (b *Bot) handleEmailInput(ctx context.Context, chatID int64, ctrl *workflow.Controller, text string) {
	if _, err := ctrl.LookupCustomer(ctx, text); err != nil {
		b.sendError(chatID, err)
		return
	}
	b.showStep(ctx, chatID, ctrl)
}

func (b *Bot) handlePeriodInput(ctx context.Context, chatID int64, ctrl *workflow.Controller, text string) {
	start, end, err := dates.ParseRange(text)
	if err != nil {
		b.sendMessage(chatID, msgBadPeriodFormat)
		return
	}
	if _, err := ctrl.SetPeriod(ctx, start, end); err != nil {
		b.sendError(chatID, err)
		return
	}
	b.showStep(ctx, chatID, ctrl)
}
