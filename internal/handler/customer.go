package handler

import (
	"log/slog"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/efreitasn/minibroker/internal/domain"
	"github.com/efreitasn/minibroker/internal/service"
)

// CustomerHandler handles HTTP requests for customer provisioning.
type CustomerHandler struct {
	customerSvc *service.CustomerService
	logger      *slog.Logger
}

// NewCustomerHandler creates a new CustomerHandler.
func NewCustomerHandler(customerSvc *service.CustomerService, logger *slog.Logger) *CustomerHandler {
	return &CustomerHandler{customerSvc: customerSvc, logger: logger}
}

// registerCustomerRequest is the JSON request body for POST /api/customers.
type registerCustomerRequest struct {
	Username        string           `json:"username"`
	Password        string           `json:"password"`
	Email           string           `json:"email"`
	Role            string           `json:"role"`
	InitialCash     decimal.Decimal  `json:"initialCash"`
	InitialHoldings []holdingRequest `json:"initialHoldings"`
}

type holdingRequest struct {
	Symbol string          `json:"symbol"`
	Size   decimal.Decimal `json:"size"`
}

// customerResponse is the JSON response for POST /api/customers. The
// password hash is never returned.
type customerResponse struct {
	CustomerID string          `json:"customerId"`
	Username   string          `json:"username"`
	Email      string          `json:"email"`
	Role       string          `json:"role"`
	CreatedAt  string          `json:"createdAt"`
	Assets     []assetResponse `json:"assets"`
}

// Register handles POST /api/customers.
func (h *CustomerHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerCustomerRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	holdings := make([]service.HoldingInput, len(req.InitialHoldings))
	for i, hr := range req.InitialHoldings {
		holdings[i] = service.HoldingInput{Symbol: hr.Symbol, Size: hr.Size}
	}

	c, assets, err := h.customerSvc.Register(r.Context(), service.RegisterCustomerRequest{
		Username:        req.Username,
		Password:        req.Password,
		Email:           req.Email,
		Role:            domain.Role(req.Role),
		InitialCash:     req.InitialCash,
		InitialHoldings: holdings,
	})
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	WriteJSON(w, http.StatusCreated, customerResponse{
		CustomerID: c.CustomerID,
		Username:   c.Username,
		Email:      c.Email,
		Role:       string(c.Role),
		CreatedAt:  c.CreatedAt.UTC().Format(timeLayout),
		Assets:     buildAssetResponses(assets),
	})
}
