package models

import "time"

// Machine is the catalog entry of a rentable machine model. DailyRate is taken
// from the record fetched when a workflow opens and is never re-read.
type Machine struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Brand     string `json:"brand,omitempty"`
	DailyRate int64  `json:"daily_rate"`
}

type Customer struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
	Role  string `json:"role,omitempty"`
}

// Location is the canonical shape of a rental branch.
type Location struct {
	ID     int64  `json:"id"`
	City   string `json:"city"`
	Street string `json:"street"`
	Number string `json:"number"`
}

func (l Location) Label() string {
	if l.Street == "" {
		return l.City
	}
	if l.Number == "" {
		return l.City + ", " + l.Street
	}
	return l.City + ", " + l.Street + " " + l.Number
}

// BookingDraft collects everything a workflow session gathered so far.
type BookingDraft struct {
	Customer      *Customer `json:"customer,omitempty"`
	LocationID    int64     `json:"location_id,omitempty"`
	UnitID        string    `json:"unit_id,omitempty"`
	StartDate     time.Time `json:"start_date,omitempty"`
	EndDate       time.Time `json:"end_date,omitempty"`
	ComputedDays  int       `json:"computed_days"`
	ComputedPrice int64     `json:"computed_price"`
}

// CustomerReference returns nil for self-service drafts.
func (d BookingDraft) CustomerReference() *int64 {
	if d.Customer == nil {
		return nil
	}
	id := d.Customer.ID
	return &id
}

func (d BookingDraft) HasPeriod() bool {
	return !d.StartDate.IsZero() && !d.EndDate.IsZero()
}

// RentalRequest is the single atomic submission sent to the backend.
type RentalRequest struct {
	MachineID  int64  `json:"machine_id"`
	UnitID     string `json:"unit_id"`
	LocationID int64  `json:"location_id"`
	CustomerID *int64 `json:"customer_id,omitempty"`
	StartDate  string `json:"start_date"`
	EndDate    string `json:"end_date"`
	TotalPrice int64  `json:"total_price"`
	InPerson   bool   `json:"in_person"`
}

type Rental struct {
	ID         string    `json:"id"`
	MachineID  int64     `json:"machine_id"`
	UnitID     string    `json:"unit_id"`
	CustomerID *int64    `json:"customer_id,omitempty"`
	StartDate  time.Time `json:"start_date"`
	EndDate    time.Time `json:"end_date"`
	TotalPrice int64     `json:"total_price"`
}
