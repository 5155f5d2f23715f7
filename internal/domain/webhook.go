package domain

import "time"

// Webhook represents a customer's subscription to an order event.
type Webhook struct {
	WebhookID  string
	CustomerID string
	Event      EventType
	URL        string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
