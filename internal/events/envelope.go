// Package events carries committed order transitions to Kafka.
package events

import (
	"fmt"
	"time"

	"github.com/efreitasn/minibroker/internal/domain"
)

// EnvelopeVersion is bumped on any incompatible change to OrderEnvelope.
const EnvelopeVersion = 1

const timeLayout = "2006-01-02T15:04:05Z"

// OrderPayload is the wire form of an order snapshot.
type OrderPayload struct {
	OrderID    string `json:"orderId"`
	CustomerID string `json:"customerId"`
	AssetName  string `json:"assetName"`
	OrderSide  string `json:"orderSide"`
	Size       string `json:"size"`
	Price      string `json:"price"`
	Status     string `json:"status"`
	CreateDate string `json:"createDate"`
	UpdatedAt  string `json:"updatedAt"`
}

// OrderEnvelope is the message written for every order event.
type OrderEnvelope struct {
	EventID      string       `json:"event_id"`
	EventType    string       `json:"event_type"`
	EventVersion int          `json:"event_version"`
	Timestamp    time.Time    `json:"timestamp"`
	Order        OrderPayload `json:"order"`
}

// NewOrderEnvelope wraps ev for publication.
func NewOrderEnvelope(ev domain.OrderEvent) (OrderEnvelope, error) {
	if ev.EventID == "" {
		return OrderEnvelope{}, fmt.Errorf("event_id is required")
	}
	if ev.Order == nil {
		return OrderEnvelope{}, fmt.Errorf("event %s has no order", ev.EventID)
	}
	return OrderEnvelope{
		EventID:      ev.EventID,
		EventType:    string(ev.Type),
		EventVersion: EnvelopeVersion,
		Timestamp:    ev.OccurredAt.UTC(),
		Order:        NewOrderPayload(ev.Order),
	}, nil
}

func NewOrderPayload(o *domain.Order) OrderPayload {
	return OrderPayload{
		OrderID:    o.OrderID,
		CustomerID: o.CustomerID,
		AssetName:  o.AssetName,
		OrderSide:  string(o.Side),
		Size:       o.Size.StringFixed(domain.AmountScale),
		Price:      o.Price.StringFixed(domain.AmountScale),
		Status:     string(o.Status),
		CreateDate: o.CreateDate.UTC().Format(timeLayout),
		UpdatedAt:  o.UpdatedAt.UTC().Format(timeLayout),
	}
}
