package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/efreitasn/minibroker/internal/domain"
	"github.com/efreitasn/minibroker/internal/service"
)

// OrderHandler handles HTTP requests for order endpoints.
type OrderHandler struct {
	orderSvc *service.OrderService
	logger   *slog.Logger
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(orderSvc *service.OrderService, logger *slog.Logger) *OrderHandler {
	return &OrderHandler{orderSvc: orderSvc, logger: logger}
}

// createOrderRequest is the JSON request body for POST /api/orders.
// Sizes and prices accept both JSON numbers and strings.
type createOrderRequest struct {
	CustomerID string          `json:"customerId"`
	AssetName  string          `json:"assetName"`
	OrderSide  string          `json:"orderSide"`
	Size       decimal.Decimal `json:"size"`
	Price      decimal.Decimal `json:"price"`
}

// matchOrderRequest is the JSON request body for POST /api/orders/match.
type matchOrderRequest struct {
	OrderID string `json:"orderId"`
}

// orderResponse is the JSON representation of an order. Amounts are
// strings with two decimal places.
type orderResponse struct {
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

// orderListResponse is the JSON response for GET /api/orders.
type orderListResponse struct {
	Orders []orderResponse `json:"orders"`
}

// CreateOrder handles POST /api/orders.
func (h *OrderHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	o, err := h.orderSvc.CreateOrder(r.Context(), service.CreateOrderRequest{
		CustomerID: req.CustomerID,
		AssetName:  req.AssetName,
		Side:       domain.OrderSide(req.OrderSide),
		Size:       req.Size,
		Price:      req.Price,
	}, CallerFrom(r.Context()))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	WriteJSON(w, http.StatusCreated, buildOrderResponse(o))
}

// GetOrder handles GET /api/orders/{order_id}.
func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orderSvc.GetOrder(r.Context(), chi.URLParam(r, "order_id"), CallerFrom(r.Context()))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	WriteJSON(w, http.StatusOK, buildOrderResponse(o))
}

// CancelOrder handles DELETE /api/orders/{order_id}.
func (h *OrderHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orderSvc.CancelOrder(r.Context(), chi.URLParam(r, "order_id"), CallerFrom(r.Context()))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	WriteJSON(w, http.StatusOK, buildOrderResponse(o))
}

// MatchOrder handles POST /api/orders/match.
func (h *OrderHandler) MatchOrder(w http.ResponseWriter, r *http.Request) {
	var req matchOrderRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	o, err := h.orderSvc.MatchOrder(r.Context(), req.OrderID)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	WriteJSON(w, http.StatusOK, buildOrderResponse(o))
}

// ListOrders handles GET /api/orders.
func (h *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := service.ListOrdersRequest{CustomerID: q.Get("customerId")}

	var err error
	if req.StartDate, err = parseDateParam(q.Get("startDate"), "startDate"); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	if req.EndDate, err = parseDateParam(q.Get("endDate"), "endDate"); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	if raw := q.Get("status"); raw != "" {
		status, ok := domain.ParseOrderStatus(raw)
		if !ok {
			writeServiceError(w, r, h.logger, &domain.ValidationError{
				Field:   "status",
				Message: "status must be one of PENDING, MATCHED, CANCELED",
			})
			return
		}
		req.Status = &status
	}

	orders, err := h.orderSvc.ListOrders(r.Context(), req, CallerFrom(r.Context()))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	resp := orderListResponse{Orders: make([]orderResponse, len(orders))}
	for i, o := range orders {
		resp.Orders[i] = buildOrderResponse(o)
	}
	WriteJSON(w, http.StatusOK, resp)
}

// parseDateParam parses an optional RFC 3339 query parameter.
func parseDateParam(raw, field string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, &domain.ValidationError{
			Field:   field,
			Message: field + " must be an RFC 3339 timestamp",
		}
	}
	return &t, nil
}

func buildOrderResponse(o *domain.Order) orderResponse {
	return orderResponse{
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
