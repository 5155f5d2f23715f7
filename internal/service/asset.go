package service

import (
	"context"

	"github.com/efreitasn/minibroker/internal/domain"
	"github.com/efreitasn/minibroker/internal/store"
)

// AssetService serves read-only views of the ledger.
type AssetService struct {
	store store.Store
}

func NewAssetService(s store.Store) *AssetService {
	return &AssetService{store: s}
}

// ListAssets returns the customer's assets ordered by symbol, narrowed to
// one symbol when given. An unheld symbol yields an empty slice.
func (s *AssetService) ListAssets(ctx context.Context, customerID, symbol string, caller Caller) ([]*domain.Asset, error) {
	if customerID == "" {
		customerID = caller.CustomerID
	}
	if customerID == "" {
		return nil, &domain.ValidationError{Field: "customerId", Message: "customerId is required"}
	}
	if symbol != "" {
		symbol = domain.NormalizeSymbol(symbol)
		if err := domain.ValidateSymbol("assetName", symbol); err != nil {
			return nil, err
		}
	}
	if err := authorize(caller, customerID); err != nil {
		return nil, err
	}
	if _, err := s.store.GetCustomer(ctx, customerID); err != nil {
		return nil, err
	}
	return s.store.ListAssets(ctx, customerID, symbol)
}
