package api

import (
	"context"
	"sync"
	"time"

	"machrent/internal/domain"
	"machrent/internal/models"
)

// fakeGateway answers like a healthy backend with one branch and one unit.
type fakeGateway struct {
	mu       sync.Mutex
	overlap  bool
	down     bool
	rentals  []models.RentalRequest
	lookups  int
	customer *models.Customer
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{customer: &models.Customer{ID: 7, Email: "ana@example.com", Role: "customer"}}
}

func (g *fakeGateway) GetMachine(_ context.Context, modelID int64) (*models.Machine, error) {
	if modelID != 12 {
		return nil, domain.Rejection(domain.ErrNoMachine)
	}
	return &models.Machine{ID: 12, Name: "Excavator X200", DailyRate: 1000}, nil
}

func (g *fakeGateway) LookupCustomerByEmail(_ context.Context, email string) (*models.Customer, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.lookups++
	if email != g.customer.Email {
		return nil, domain.Rejection(domain.ErrNotFound)
	}
	c := *g.customer
	return &c, nil
}

func (g *fakeGateway) ListLocationsForModel(_ context.Context, _ int64) ([]models.Location, error) {
	return []models.Location{{ID: 3, City: "Madrid", Street: "Gran Via", Number: "1"}}, nil
}

func (g *fakeGateway) ListAvailableUnits(_ context.Context, _, _ int64) ([]string, error) {
	return []string{"U-1"}, nil
}

func (g *fakeGateway) ValidatePeriod(_ context.Context, _ string, start, end time.Time) (models.AvailabilityResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.down {
		return models.AvailabilityResult{}, domain.Transport(domain.ErrTransport)
	}
	if g.overlap {
		return models.OverlapPeriod(start, end, start.AddDate(0, 0, 2), start.AddDate(0, 0, 4), "unit is booked"), nil
	}
	return models.ValidPeriod(start, end), nil
}

func (g *fakeGateway) CreateRental(_ context.Context, req models.RentalRequest) (*models.Rental, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rentals = append(g.rentals, req)
	return &models.Rental{ID: "R-1", MachineID: req.MachineID, UnitID: req.UnitID, TotalPrice: req.TotalPrice}, nil
}
