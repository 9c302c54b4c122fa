package domain

import (
	"context"
	"time"

	"machrent/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Gateway is the remote rental backend. It is the only source of truth for
// identity, availability and overlap; the workflow never decides these locally.
type Gateway interface {
	GetMachine(ctx context.Context, modelID int64) (*models.Machine, error)
	LookupCustomerByEmail(ctx context.Context, email string) (*models.Customer, error)
	ListLocationsForModel(ctx context.Context, modelID int64) ([]models.Location, error)
	ListAvailableUnits(ctx context.Context, modelID, locationID int64) ([]string, error)
	ValidatePeriod(ctx context.Context, unitID string, start, end time.Time) (models.AvailabilityResult, error)
	CreateRental(ctx context.Context, req models.RentalRequest) (*models.Rental, error)
}

// TokenSource hands out the session's access token. Consumers never mutate it;
// Refresh replaces a token the backend rejected.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
	Refresh(ctx context.Context, stale string) (string, error)
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

// StateRepository keeps per-chat bot state and rate-limit counters.
type StateRepository interface {
	GetState(ctx context.Context, chatID int64) (*models.ChatState, error)
	SetState(ctx context.Context, state *models.ChatState) error
	ClearState(ctx context.Context, chatID int64) error
	CheckRateLimit(ctx context.Context, userID int64, limit int, window time.Duration) (bool, error)
}

type TelegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	GetSelf() tgbotapi.User
	StopReceivingUpdates()
}

type ReceiptNotifier interface {
	Enqueue(ctx context.Context, receipt models.Receipt) error
}
