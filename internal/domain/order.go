package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderSide indicates whether an order buys or sells its asset.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// ParseOrderSide validates a side string.
func ParseOrderSide(s string) (OrderSide, bool) {
	switch OrderSide(s) {
	case OrderSideBuy, OrderSideSell:
		return OrderSide(s), true
	}
	return "", false
}

// OrderStatus represents the lifecycle state of an order.
type OrderStatus string

const (
	OrderStatusPending  OrderStatus = "PENDING"
	OrderStatusMatched  OrderStatus = "MATCHED"
	OrderStatusCanceled OrderStatus = "CANCELED"
)

// ParseOrderStatus validates a status string.
func ParseOrderStatus(s string) (OrderStatus, bool) {
	switch OrderStatus(s) {
	case OrderStatusPending, OrderStatusMatched, OrderStatusCanceled:
		return OrderStatus(s), true
	}
	return "", false
}

// IsTerminal reports whether no further transition is allowed.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusMatched || s == OrderStatusCanceled
}

// Order is a customer's instruction to buy or sell Size units of AssetName
// at Price. Orders are never deleted; cancellation is a status change.
type Order struct {
	OrderID    string
	CustomerID string
	AssetName  string
	Side       OrderSide
	Size       decimal.Decimal
	Price      decimal.Decimal
	Status     OrderStatus
	CreateDate time.Time
	UpdatedAt  time.Time
}

// Notional returns Size × Price.
func (o *Order) Notional() decimal.Decimal {
	return o.Size.Mul(o.Price)
}

// Reservation returns what creating this order locked, which is also what
// canceling it releases.
func (o *Order) Reservation() Reservation {
	return ReservationFor(o.Side, o.AssetName, o.Size, o.Price)
}

// Key identifies the order row in lock tables.
func (o *Order) Key() string {
	return OrderKey(o.OrderID)
}

// OrderKey builds the row key for an order id.
func OrderKey(orderID string) string {
	return "order:" + orderID
}

// TransitionTo moves a PENDING order to next. op names the attempted
// operation in the returned error.
func (o *Order) TransitionTo(next OrderStatus, op string, now time.Time) error {
	if o.Status != OrderStatusPending || !next.IsTerminal() {
		return &InvalidStateError{OrderID: o.OrderID, Status: o.Status, Op: op}
	}
	o.Status = next
	o.UpdatedAt = now
	return nil
}

// Clone returns a copy that shares no state with o.
func (o *Order) Clone() *Order {
	c := *o
	return &c
}
