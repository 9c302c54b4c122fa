package workflow

import (
	"context"
	"time"

	"machrent/internal/models"

	"github.com/stretchr/testify/mock"
)

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) GetMachine(ctx context.Context, modelID int64) (*models.Machine, error) {
	args := m.Called(ctx, modelID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Machine), args.Error(1)
}

func (m *mockGateway) LookupCustomerByEmail(ctx context.Context, email string) (*models.Customer, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Customer), args.Error(1)
}

func (m *mockGateway) ListLocationsForModel(ctx context.Context, modelID int64) ([]models.Location, error) {
	args := m.Called(ctx, modelID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Location), args.Error(1)
}

func (m *mockGateway) ListAvailableUnits(ctx context.Context, modelID, locationID int64) ([]string, error) {
	args := m.Called(ctx, modelID, locationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *mockGateway) ValidatePeriod(ctx context.Context, unitID string, start, end time.Time) (models.AvailabilityResult, error) {
	args := m.Called(ctx, unitID, start, end)
	return args.Get(0).(models.AvailabilityResult), args.Error(1)
}

func (m *mockGateway) CreateRental(ctx context.Context, req models.RentalRequest) (*models.Rental, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Rental), args.Error(1)
}
