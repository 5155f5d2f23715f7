package service

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/efreitasn/minibroker/internal/domain"
	"github.com/efreitasn/minibroker/internal/engine"
	"github.com/efreitasn/minibroker/internal/security"
	"github.com/efreitasn/minibroker/internal/store"
)

var testArgon2 = security.Argon2Params{Memory: 8 * 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}

var (
	admin    = Caller{IsAdmin: true}
	anyone   = Caller{}
	asC1     = Caller{CustomerID: "c1"}
	asC2     = Caller{CustomerID: "c2"}
	baseTime = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type testServices struct {
	store  *store.Memory
	orders *OrderService
	assets *AssetService
}

func newTestServices(t *testing.T) *testServices {
	t.Helper()
	s := store.NewMemory(200 * time.Millisecond)
	m := engine.NewManager(s, engine.Options{})
	addCustomer(t, s, "c1", map[string]string{domain.CashSymbol: "1000", "AAPL": "10"})
	addCustomer(t, s, "c2", map[string]string{domain.CashSymbol: "500"})
	return &testServices{
		store:  s,
		orders: NewOrderService(m, s),
		assets: NewAssetService(s),
	}
}

func addCustomer(t *testing.T, s store.Store, id string, holdings map[string]string) {
	t.Helper()
	c := &domain.Customer{CustomerID: id, Username: "user-" + id, Role: domain.RoleCustomer, CreatedAt: baseTime}
	assets := make([]*domain.Asset, 0, len(holdings))
	for symbol, size := range holdings {
		assets = append(assets, domain.NewAsset(id, symbol, d(size), baseTime))
	}
	if err := s.CreateCustomer(context.Background(), c, assets); err != nil {
		t.Fatalf("CreateCustomer(%s): %v", id, err)
	}
}

func buyReq(customerID, symbol, size, price string) CreateOrderRequest {
	return CreateOrderRequest{
		CustomerID: customerID,
		AssetName:  symbol,
		Side:       domain.OrderSideBuy,
		Size:       d(size),
		Price:      d(price),
	}
}
