package events

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventBus(t *testing.T) {
	bus := NewEventBus(nil)

	var received *Event
	var callCount int

	bus.Subscribe(EventWorkflowOpened, func(event *Event) error {
		received = event
		callCount++
		return nil
	})

	err := bus.PublishJSON(EventWorkflowOpened, WorkflowEventPayload{WorkflowID: "wf-1", Flow: "staff", ModelID: 12})
	require.NoError(t, err)

	if callCount != 1 {
		t.Fatalf("expected 1 call, got %d", callCount)
	}
	assert.Equal(t, EventWorkflowOpened, received.Type)
	assert.False(t, received.CreatedAt.IsZero())

	var decoded WorkflowEventPayload
	require.NoError(t, received.Decode(&decoded))
	assert.Equal(t, "wf-1", decoded.WorkflowID)
	assert.Equal(t, int64(12), decoded.ModelID)
	assert.Nil(t, decoded.Receipt)
}

func TestEventBusHandlerErrors(t *testing.T) {
	bus := NewEventBus(nil)
	var calls int
	errFirst := errors.New("first failed")

	bus.Subscribe(EventWorkflowAborted, func(_ *Event) error { calls++; return errFirst })
	bus.Subscribe(EventWorkflowAborted, func(_ *Event) error { calls++; return nil })

	err := bus.Publish(&Event{Type: EventWorkflowAborted})
	assert.Equal(t, 2, calls, "a failing handler must not stop the others")
	assert.True(t, errors.Is(err, errFirst))
}

func TestEventBusNoSubscribers(t *testing.T) {
	bus := NewEventBus(nil)
	assert.NoError(t, bus.Publish(&Event{Type: "unknown"}))
	assert.NoError(t, bus.PublishJSON("unknown", nil))
}

func TestNilBus(t *testing.T) {
	var bus *EventBus
	assert.NoError(t, bus.PublishJSON(EventRentalSubmitted, WorkflowEventPayload{}))
}

func TestNewJSONEventRejectsUnencodable(t *testing.T) {
	_, err := NewJSONEvent("bad", make(chan int))
	assert.Error(t, err)

	event, err := NewJSONEvent(EventPeriodValidated, WorkflowEventPayload{UnitID: "U-7"})
	require.NoError(t, err)
	assert.Contains(t, string(event.Payload), `"unit_id":"U-7"`)
}
