package service

import (
	"context"
	"fmt"
	"net/mail"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/efreitasn/minibroker/internal/domain"
	"github.com/efreitasn/minibroker/internal/security"
	"github.com/efreitasn/minibroker/internal/store"
)

var usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9_.-]{3,64}$`)

const minPasswordLength = 8

// RegisterCustomerRequest represents the input for customer provisioning.
type RegisterCustomerRequest struct {
	Username        string
	Password        string
	Email           string
	Role            domain.Role
	InitialCash     decimal.Decimal
	InitialHoldings []HoldingInput
}

// HoldingInput represents a single opening holding.
type HoldingInput struct {
	Symbol string
	Size   decimal.Decimal
}

// CustomerService provisions customers with their opening ledger rows.
type CustomerService struct {
	store        store.Store
	argon2Params security.Argon2Params
	now          func() time.Time
}

// NewCustomerService creates a new CustomerService.
func NewCustomerService(s store.Store, params security.Argon2Params) *CustomerService {
	return &CustomerService{
		store:        s,
		argon2Params: params,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// Register validates the request and creates the customer together with a
// TRY row holding the initial cash and one row per opening holding.
func (s *CustomerService) Register(ctx context.Context, req RegisterCustomerRequest) (*domain.Customer, []*domain.Asset, error) {
	if !usernameRegex.MatchString(req.Username) {
		return nil, nil, &domain.ValidationError{
			Field:   "username",
			Message: "username must match ^[a-zA-Z0-9_.-]{3,64}$",
		}
	}
	if len(req.Password) < minPasswordLength {
		return nil, nil, &domain.ValidationError{
			Field:   "password",
			Message: fmt.Sprintf("password must be at least %d characters", minPasswordLength),
		}
	}
	if req.Email != "" {
		if _, err := mail.ParseAddress(req.Email); err != nil {
			return nil, nil, &domain.ValidationError{Field: "email", Message: "email must be a valid address"}
		}
	}
	role := req.Role
	if role == "" {
		role = domain.RoleCustomer
	}
	if _, ok := domain.ParseRole(string(role)); !ok {
		return nil, nil, &domain.ValidationError{Field: "role", Message: "role must be ADMIN or CUSTOMER"}
	}
	if err := domain.CheckNonNegative("initialCash", req.InitialCash); err != nil {
		return nil, nil, err
	}

	seen := make(map[string]bool, len(req.InitialHoldings))
	for i, h := range req.InitialHoldings {
		field := fmt.Sprintf("initialHoldings[%d]", i)
		symbol := domain.NormalizeSymbol(h.Symbol)
		if err := domain.ValidateTradableSymbol(field+".symbol", symbol); err != nil {
			return nil, nil, err
		}
		if err := domain.CheckPositive(field+".size", h.Size); err != nil {
			return nil, nil, err
		}
		if seen[symbol] {
			return nil, nil, &domain.ValidationError{
				Field:   field + ".symbol",
				Message: "duplicate symbol in initialHoldings: " + symbol,
			}
		}
		seen[symbol] = true
	}

	hash, err := security.HashPassword(req.Password, s.argon2Params)
	if err != nil {
		return nil, nil, fmt.Errorf("hash password: %w", err)
	}

	now := s.now()
	c := &domain.Customer{
		CustomerID:   uuid.New().String(),
		Username:     req.Username,
		PasswordHash: hash,
		Email:        req.Email,
		Role:         role,
		CreatedAt:    now,
	}
	assets := make([]*domain.Asset, 0, len(req.InitialHoldings)+1)
	assets = append(assets, domain.NewAsset(c.CustomerID, domain.CashSymbol, req.InitialCash, now))
	for _, h := range req.InitialHoldings {
		assets = append(assets, domain.NewAsset(c.CustomerID, domain.NormalizeSymbol(h.Symbol), h.Size, now))
	}

	if err := s.store.CreateCustomer(ctx, c, assets); err != nil {
		return nil, nil, err
	}
	return c, assets, nil
}
