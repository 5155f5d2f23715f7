package domain

import "time"

// EventType names a committed order transition.
type EventType string

const (
	EventOrderCreated  EventType = "order.created"
	EventOrderCanceled EventType = "order.canceled"
	EventOrderMatched  EventType = "order.matched"
)

// EventTypes lists every event type in a stable order.
var EventTypes = []EventType{EventOrderCreated, EventOrderCanceled, EventOrderMatched}

// ParseEventType validates an event type string.
func ParseEventType(s string) (EventType, bool) {
	for _, e := range EventTypes {
		if string(e) == s {
			return e, true
		}
	}
	return "", false
}

// OrderEvent is emitted after a transition commits. Order is a snapshot
// taken at commit time.
type OrderEvent struct {
	EventID    string
	Type       EventType
	Order      *Order
	OccurredAt time.Time
}
