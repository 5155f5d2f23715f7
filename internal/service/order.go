package service

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/efreitasn/minibroker/internal/domain"
	"github.com/efreitasn/minibroker/internal/engine"
	"github.com/efreitasn/minibroker/internal/store"
)

// CreateOrderRequest represents the input for order placement.
type CreateOrderRequest struct {
	CustomerID string
	AssetName  string
	Side       domain.OrderSide
	Size       decimal.Decimal
	Price      decimal.Decimal
}

// ListOrdersRequest selects a customer's orders. Nil bounds and status do
// not filter.
type ListOrdersRequest struct {
	CustomerID string
	StartDate  *time.Time
	EndDate    *time.Time
	Status     *domain.OrderStatus
}

// OrderService validates and authorizes order requests before handing them
// to the lifecycle manager.
type OrderService struct {
	manager *engine.Manager
	store   store.Store
}

// NewOrderService creates a new OrderService.
func NewOrderService(manager *engine.Manager, s store.Store) *OrderService {
	return &OrderService{
		manager: manager,
		store:   s,
	}
}

// CreateOrder validates req, checks the caller may trade for the customer,
// and places a PENDING order with its reservation.
func (s *OrderService) CreateOrder(ctx context.Context, req CreateOrderRequest, caller Caller) (*domain.Order, error) {
	if req.CustomerID == "" {
		req.CustomerID = caller.CustomerID
	}
	if req.CustomerID == "" {
		return nil, &domain.ValidationError{Field: "customerId", Message: "customerId is required"}
	}
	symbol := domain.NormalizeSymbol(req.AssetName)
	if err := domain.ValidateTradableSymbol("assetName", symbol); err != nil {
		return nil, err
	}
	if _, ok := domain.ParseOrderSide(string(req.Side)); !ok {
		return nil, &domain.ValidationError{Field: "orderSide", Message: "orderSide must be BUY or SELL"}
	}
	if err := domain.CheckPositive("size", req.Size); err != nil {
		return nil, err
	}
	if err := domain.CheckPositive("price", req.Price); err != nil {
		return nil, err
	}
	if req.Price.LessThan(domain.MinPrice) {
		return nil, &domain.ValidationError{Field: "price", Message: "price must be >= " + domain.MinPrice.String()}
	}
	if err := domain.CheckNotional(req.Size, req.Price); err != nil {
		return nil, err
	}
	if err := authorize(caller, req.CustomerID); err != nil {
		return nil, err
	}

	return s.manager.Create(ctx, engine.CreateParams{
		CustomerID: req.CustomerID,
		AssetName:  symbol,
		Side:       req.Side,
		Size:       req.Size,
		Price:      req.Price,
	})
}

// GetOrder retrieves an order the caller may see.
func (s *OrderService) GetOrder(ctx context.Context, orderID string, caller Caller) (*domain.Order, error) {
	o, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := authorize(caller, o.CustomerID); err != nil {
		return nil, err
	}
	return o, nil
}

// CancelOrder releases a PENDING order's reservation. The ownership check
// runs on the committed order, whose customer never changes.
func (s *OrderService) CancelOrder(ctx context.Context, orderID string, caller Caller) (*domain.Order, error) {
	if _, err := s.GetOrder(ctx, orderID, caller); err != nil {
		return nil, err
	}
	return s.manager.Cancel(ctx, orderID)
}

// MatchOrder settles a PENDING order at its price. Callers must restrict
// it to administrators.
func (s *OrderService) MatchOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	if orderID == "" {
		return nil, &domain.ValidationError{Field: "orderId", Message: "orderId is required"}
	}
	return s.manager.Match(ctx, orderID)
}

// ListOrders returns the customer's orders newest first. A caller bound to
// a customer defaults to their own orders.
func (s *OrderService) ListOrders(ctx context.Context, req ListOrdersRequest, caller Caller) ([]*domain.Order, error) {
	customerID := req.CustomerID
	if customerID == "" {
		customerID = caller.CustomerID
	}
	if customerID == "" {
		return nil, &domain.ValidationError{Field: "customerId", Message: "customerId is required"}
	}
	if req.StartDate != nil && req.EndDate != nil && req.StartDate.After(*req.EndDate) {
		return nil, &domain.ValidationError{Field: "startDate", Message: "startDate must not be after endDate"}
	}
	if err := authorize(caller, customerID); err != nil {
		return nil, err
	}
	if _, err := s.store.GetCustomer(ctx, customerID); err != nil {
		return nil, err
	}

	orders, err := s.store.ListOrders(ctx, store.OrderFilter{
		CustomerID: customerID,
		StartDate:  req.StartDate,
		EndDate:    req.EndDate,
		Status:     req.Status,
	})
	if err != nil {
		return nil, fmt.Errorf("list orders of customer %s: %w", customerID, err)
	}
	return orders, nil
}
