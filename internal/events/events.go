package events

import (
	"encoding/json"
	"sync"
	"time"

	"machrent/internal/models"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
)

const (
	EventWorkflowOpened   = "workflow_opened"
	EventCustomerResolved = "customer_resolved"
	EventPeriodValidated  = "period_validated"
	EventRentalSubmitted  = "rental_submitted"
	EventWorkflowAborted  = "workflow_aborted"
)

// WorkflowEventPayload is the snapshot of a booking session carried by every
// workflow event. Receipt is set only for rental_submitted.
type WorkflowEventPayload struct {
	WorkflowID string          `json:"workflow_id"`
	Flow       string          `json:"flow"`
	Step       string          `json:"step"`
	ModelID    int64           `json:"model_id"`
	CustomerID *int64          `json:"customer_id,omitempty"`
	UnitID     string          `json:"unit_id,omitempty"`
	StartDate  time.Time       `json:"start_date,omitempty"`
	EndDate    time.Time       `json:"end_date,omitempty"`
	TotalPrice int64           `json:"total_price,omitempty"`
	RentalID   string          `json:"rental_id,omitempty"`
	Reason     string          `json:"reason,omitempty"`
	Receipt    *models.Receipt `json:"receipt,omitempty"`
}

type Event struct {
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// Decode unmarshals the payload into v.
func (e *Event) Decode(v interface{}) error {
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return errors.Wrapf(err, "decode %s payload", e.Type)
	}
	return nil
}

type EventHandler func(event *Event) error

// EventBus is an in-process pub/sub. Handlers run synchronously on the
// publishing goroutine; a failing handler does not stop the others.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
	logger      *zerolog.Logger
}

func NewEventBus(logger *zerolog.Logger) *EventBus {
	return &EventBus{subscribers: make(map[string][]EventHandler), logger: logger}
}

func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish notifies subscribers of the event type and returns the combined
// handler errors.
func (b *EventBus) Publish(event *Event) error {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	var combined error
	for _, handler := range handlers {
		if err := handler(event); err != nil {
			if b.logger != nil {
				b.logger.Warn().Err(err).Str("event_type", event.Type).Msg("event handler failed")
			}
			combined = errors.CombineErrors(combined, err)
		}
	}
	return combined
}

// PublishJSON serializes the payload and publishes an event. A nil bus is a
// no-op.
func (b *EventBus) PublishJSON(eventType string, payload interface{}) error {
	if b == nil {
		return nil
	}

	event, err := NewJSONEvent(eventType, payload)
	if err != nil {
		return err
	}
	return b.Publish(&event)
}

func NewJSONEvent(eventType string, payload interface{}) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, errors.Wrapf(err, "encode %s payload", eventType)
	}

	return Event{Type: eventType, Payload: raw, CreatedAt: time.Now()}, nil
}
