package schema

import "time"

// EventType defines the category of an event carried on the bus.
type EventType string

const (
	EventTick           EventType = "TICK"
	EventSignal         EventType = "SIGNAL"
	EventOrderRequest   EventType = "ORDER_REQUEST"
	EventOrderUpdate    EventType = "ORDER_UPDATE"
	EventFill           EventType = "FILL"
	EventPositionUpdate EventType = "POSITION_UPDATE"
	EventRiskBreach     EventType = "RISK_BREACH"
)

// Event is the envelope published on the bus. Payload holds exactly one of
// the schema payload structs, discriminated by Type.
type Event struct {
	Type      EventType
	Payload   any
	Timestamp time.Time
}

// NewEvent wraps a payload with its type and the current timestamp.
func NewEvent(eventType EventType, payload any) Event {
	return Event{
		Type:      eventType,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
}
