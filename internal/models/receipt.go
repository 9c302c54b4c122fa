package models

import "time"

// Receipt is the read-only summary of a submitted rental, handed to the
// notifier for the staff chat.
type Receipt struct {
	RentalID      string    `json:"rental_id"`
	Flow          string    `json:"flow"`
	ChatID        int64     `json:"chat_id,omitempty"`
	MachineName   string    `json:"machine_name"`
	CustomerEmail string    `json:"customer_email,omitempty"`
	Location      string    `json:"location"`
	UnitID        string    `json:"unit_id"`
	StartDate     time.Time `json:"start_date"`
	EndDate       time.Time `json:"end_date"`
	Days          int       `json:"days"`
	DailyRate     int64     `json:"daily_rate"`
	TotalPrice    int64     `json:"total_price"`
	CreatedAt     time.Time `json:"created_at"`
}
