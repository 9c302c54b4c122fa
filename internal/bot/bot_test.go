package bot

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"machrent/internal/clock"
	"machrent/internal/config"
	"machrent/internal/domain"
	"machrent/internal/models"
	"machrent/internal/repository"
	"machrent/internal/workflow"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	managerID  int64 = 100
	customerID int64 = 200
)

type mockTelegramService struct {
	domain.TelegramSender
	mu           sync.Mutex
	updatesChan  chan tgbotapi.Update
	sentMessages []tgbotapi.Chattable
	requests     []tgbotapi.Chattable
}

func (m *mockTelegramService) GetUpdatesChan(tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return m.updatesChan
}

func (m *mockTelegramService) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sentMessages = append(m.sentMessages, c)
	return tgbotapi.Message{}, nil
}

func (m *mockTelegramService) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (m *mockTelegramService) GetSelf() tgbotapi.User {
	return tgbotapi.User{UserName: "machrent_bot"}
}

func (m *mockTelegramService) texts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, c := range m.sentMessages {
		if msg, ok := c.(tgbotapi.MessageConfig); ok {
			out = append(out, msg.Text)
		}
	}
	return out
}

func (m *mockTelegramService) last() tgbotapi.MessageConfig {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.sentMessages) - 1; i >= 0; i-- {
		if msg, ok := m.sentMessages[i].(tgbotapi.MessageConfig); ok {
			return msg
		}
	}
	return tgbotapi.MessageConfig{}
}

type fakeGateway struct {
	mu      sync.Mutex
	rentals []models.RentalRequest
}

func (g *fakeGateway) GetMachine(_ context.Context, modelID int64) (*models.Machine, error) {
	if modelID != 12 {
		return nil, domain.Rejection(domain.ErrNoMachine)
	}
	return &models.Machine{ID: 12, Name: "Excavator X200", DailyRate: 1000}, nil
}

func (g *fakeGateway) LookupCustomerByEmail(_ context.Context, email string) (*models.Customer, error) {
	if email != "ana@example.com" {
		return nil, domain.Rejection(domain.ErrNotFound)
	}
	return &models.Customer{ID: 7, Email: email, Name: "Ana"}, nil
}

func (g *fakeGateway) ListLocationsForModel(context.Context, int64) ([]models.Location, error) {
	return []models.Location{{ID: 3, City: "Madrid", Street: "Gran Via", Number: "1"}}, nil
}

func (g *fakeGateway) ListAvailableUnits(context.Context, int64, int64) ([]string, error) {
	return []string{"U-1", "U-2"}, nil
}

func (g *fakeGateway) ValidatePeriod(_ context.Context, _ string, start, end time.Time) (models.AvailabilityResult, error) {
	if start.Day() == 20 {
		return models.OverlapPeriod(start, end, start, start.AddDate(0, 0, 3), ""), nil
	}
	return models.ValidPeriod(start, end), nil
}

func (g *fakeGateway) CreateRental(_ context.Context, req models.RentalRequest) (*models.Rental, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rentals = append(g.rentals, req)
	return &models.Rental{ID: "R-1", TotalPrice: req.TotalPrice}, nil
}

type fixture struct {
	bot   *Bot
	tg    *mockTelegramService
	gw    *fakeGateway
	state *repository.MemoryStateRepository
	cfg   *config.Config
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := &config.Config{
		Managers: []int64{managerID},
		Catalog:  []config.CatalogEntry{{ID: 12, Name: "Excavator X200"}},
		Booking:  config.BookingConfig{StaffMinDays: 7, SelfServiceMinDays: 7},
		Bot:      config.BotConfig{RateLimitMessages: 100, RateLimitWindow: 60},
	}
	tg := &mockTelegramService{updatesChan: make(chan tgbotapi.Update, 1)}
	gw := &fakeGateway{}
	mc := clock.NewMockClock(time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC))
	state := repository.NewMemoryStateRepository(time.Hour).WithClock(mc)
	sessions := workflow.NewRegistry(workflow.Deps{Gateway: gw, Clock: mc}, time.Hour)

	b, err := NewBot(tg, cfg, state, sessions, NewMetrics(prometheus.NewRegistry()), nil)
	require.NoError(t, err)
	return &fixture{bot: b, tg: tg, gw: gw, state: state, cfg: cfg}
}

func command(userID int64, text string) tgbotapi.Update {
	cmd := strings.SplitN(text, " ", 2)[0]
	return tgbotapi.Update{Message: &tgbotapi.Message{
		From:     &tgbotapi.User{ID: userID, UserName: "user"},
		Chat:     &tgbotapi.Chat{ID: userID},
		Text:     text,
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(cmd)}},
	}}
}

func text(userID int64, s string) tgbotapi.Update {
	return tgbotapi.Update{Message: &tgbotapi.Message{
		From: &tgbotapi.User{ID: userID},
		Chat: &tgbotapi.Chat{ID: userID},
		Text: s,
	}}
}

func callback(userID int64, data string) tgbotapi.Update {
	return tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "cb",
		From:    &tgbotapi.User{ID: userID},
		Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: userID}},
		Data:    data,
	}}
}

func (f *fixture) send(updates ...tgbotapi.Update) {
	for _, u := range updates {
		f.bot.processUpdate(context.Background(), u)
	}
}

func TestBotStart(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.bot.Start(ctx)
		close(done)
	}()

	f.tg.updatesChan <- command(customerID, "/start")
	require.Eventually(t, func() bool { return len(f.tg.texts()) > 0 }, time.Second, 10*time.Millisecond)
	cancel()
	<-done

	assert.Equal(t, msgWelcome, f.tg.texts()[0])
}

func TestCatalogButtons(t *testing.T) {
	f := newFixture(t)

	f.send(command(customerID, "/start"))
	markup, ok := f.tg.last().ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	require.True(t, ok)
	require.Len(t, markup.InlineKeyboard, 1)
	assert.Len(t, markup.InlineKeyboard[0], 1)
	assert.Equal(t, cbRent+"12", *markup.InlineKeyboard[0][0].CallbackData)

	f.send(command(managerID, "/start"))
	markup = f.tg.last().ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	require.Len(t, markup.InlineKeyboard[0], 2)
	assert.Equal(t, cbBook+"12", *markup.InlineKeyboard[0][1].CallbackData)
}

func TestSelfServiceRentalFromChat(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.send(callback(customerID, cbRent+"12"))
	assert.Contains(t, f.tg.last().Text, msgPickLocation)

	f.send(callback(customerID, cbLocation+"3"))
	assert.Contains(t, f.tg.last().Text, msgPickUnit)

	f.send(callback(customerID, cbUnit+"U-2"), callback(customerID, cbNext))
	st, err := f.state.GetState(ctx, customerID)
	require.NoError(t, err)
	assert.Equal(t, models.AwaitPeriod, st.Awaiting)

	f.send(text(customerID, "next week"))
	assert.Equal(t, msgBadPeriodFormat, f.tg.last().Text)

	f.send(text(customerID, "2025-06-01 2025-06-04"))
	assert.Equal(t, "⚠️ Срок аренды меньше минимального.", f.tg.last().Text)

	f.send(text(customerID, "2025-06-20 2025-06-30"))
	assert.Contains(t, f.tg.last().Text, "пересекается")

	f.send(text(customerID, "2025-06-01 2025-06-10"))
	assert.Contains(t, f.tg.last().Text, "(9 дн.)")

	f.send(callback(customerID, cbNext))
	assert.Contains(t, f.tg.last().Text, "Дней: 9 × 1000 = 9000")

	f.send(callback(customerID, cbSubmit))
	assert.Contains(t, f.tg.last().Text, "R-1")

	require.Len(t, f.gw.rentals, 1)
	assert.Equal(t, "U-2", f.gw.rentals[0].UnitID)
	assert.False(t, f.gw.rentals[0].InPerson)
	assert.Nil(t, f.gw.rentals[0].CustomerID)

	st, err = f.state.GetState(ctx, customerID)
	require.NoError(t, err)
	assert.Nil(t, st)
	assert.Equal(t, 0, f.bot.sessions.Len())
}

func TestStaffFlowAsksForCustomerEmail(t *testing.T) {
	f := newFixture(t)

	f.send(command(customerID, "/book 12"))
	assert.Equal(t, msgStaffOnly, f.tg.last().Text)

	f.send(command(managerID, "/book"))
	assert.Equal(t, msgBookUsage, f.tg.last().Text)

	f.send(command(managerID, "/book 12"))
	assert.Contains(t, f.tg.last().Text, msgAskEmail)

	f.send(text(managerID, "not-an-email"))
	assert.Contains(t, f.tg.last().Text, "Некорректный email")

	f.send(text(managerID, "bob@example.com"))
	assert.Equal(t, "⚠️ Клиент с таким email не найден.", f.tg.last().Text)

	f.send(text(managerID, "Ana@Example.com"))
	last := f.tg.last()
	assert.Contains(t, last.Text, "Ana <ana@example.com>")
	markup := last.ReplyMarkup.(tgbotapi.InlineKeyboardMarkup)
	assert.Equal(t, cbNext, *markup.InlineKeyboard[0][1].CallbackData)
}

func TestBackFromFirstStepAborts(t *testing.T) {
	f := newFixture(t)

	f.send(command(managerID, "/book 12"), callback(managerID, cbBack))
	assert.Equal(t, msgAborted, f.tg.last().Text)
	assert.Equal(t, 0, f.bot.sessions.Len())

	f.send(text(managerID, "ana@example.com"))
	assert.Equal(t, msgNoSession, f.tg.last().Text)
}

func TestCancelAndUnknownMachine(t *testing.T) {
	f := newFixture(t)

	f.send(command(customerID, "/rent 99"))
	assert.Equal(t, "⚠️ Такой техники нет в каталоге.", f.tg.last().Text)

	f.send(command(customerID, "/rent 12"), command(customerID, "/cancel"))
	assert.Equal(t, msgCancelled, f.tg.last().Text)
	assert.Equal(t, 0, f.bot.sessions.Len())
}

func TestRateLimitSkipsManagers(t *testing.T) {
	f := newFixture(t)
	f.cfg.Bot.RateLimitMessages = 1

	f.send(command(customerID, "/start"), command(customerID, "/start"))
	assert.Equal(t, msgRateLimited, f.tg.last().Text)

	f.send(command(managerID, "/start"), command(managerID, "/start"))
	assert.Equal(t, msgWelcome, f.tg.last().Text)
}

func TestBlacklistedUsersAreIgnored(t *testing.T) {
	f := newFixture(t)
	f.cfg.Blacklist = []int64{customerID}

	f.send(command(customerID, "/start"))
	assert.Empty(t, f.tg.texts())
}

func TestMessagesWithoutSenderAreIgnored(t *testing.T) {
	f := newFixture(t)
	post := &tgbotapi.Message{
		Chat:     &tgbotapi.Chat{ID: -1001, Type: "channel"},
		Text:     "/start",
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: 6}},
	}

	assert.NotPanics(t, func() { f.bot.handleMessage(context.Background(), post) })
	assert.NotPanics(t, func() {
		f.send(
			tgbotapi.Update{ChannelPost: post},
			tgbotapi.Update{Message: post},
			tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{ID: "cb", Data: cbNext}},
		)
	})
	assert.Empty(t, f.tg.texts())
}
