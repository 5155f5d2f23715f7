// Package seed provisions demo accounts into an empty store.
package seed

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/efreitasn/minibroker/internal/domain"
	"github.com/efreitasn/minibroker/internal/service"
	"github.com/efreitasn/minibroker/internal/store"
)

// Demo credentials. Both customers share DemoPassword.
const (
	AdminPassword = "admin123"
	DemoPassword  = "customer123"
)

// Accounts returns the demo accounts in provisioning order.
func Accounts() []service.RegisterCustomerRequest {
	return []service.RegisterCustomerRequest{
		{
			Username:    "admin",
			Password:    AdminPassword,
			Email:       "admin@minibroker.local",
			Role:        domain.RoleAdmin,
			InitialCash: decimal.Zero,
		},
		{
			Username:    "customer1",
			Password:    DemoPassword,
			Email:       "customer1@minibroker.local",
			Role:        domain.RoleCustomer,
			InitialCash: decimal.NewFromInt(100_000),
			InitialHoldings: []service.HoldingInput{
				{Symbol: "AAPL", Size: decimal.NewFromInt(100)},
				{Symbol: "GOOGL", Size: decimal.NewFromInt(50)},
			},
		},
		{
			Username:    "customer2",
			Password:    DemoPassword,
			Email:       "customer2@minibroker.local",
			Role:        domain.RoleCustomer,
			InitialCash: decimal.NewFromInt(50_000),
			InitialHoldings: []service.HoldingInput{
				{Symbol: "MSFT", Size: decimal.NewFromInt(75)},
			},
		},
	}
}

// Run provisions the demo accounts when the store holds no customers. It
// returns how many accounts it created.
func Run(ctx context.Context, s store.Store, customers *service.CustomerService, logger *slog.Logger) (int, error) {
	n, err := s.CountCustomers(ctx)
	if err != nil {
		return 0, fmt.Errorf("count customers: %w", err)
	}
	if n > 0 {
		logger.Info("store not empty, skipping demo data", slog.Int("customers", n))
		return 0, nil
	}

	created := 0
	for _, req := range Accounts() {
		c, _, err := customers.Register(ctx, req)
		if err != nil {
			return created, fmt.Errorf("seed %s: %w", req.Username, err)
		}
		created++
		logger.Info("seeded demo customer",
			slog.String("username", c.Username),
			slog.String("customer_id", c.CustomerID),
			slog.String("role", string(c.Role)),
		)
	}
	return created, nil
}
