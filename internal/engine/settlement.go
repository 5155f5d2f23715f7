package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/efreitasn/minibroker/internal/domain"
	"github.com/efreitasn/minibroker/internal/store"
)

// settle moves value between the order's cash row and asset row. Both rows
// are locked up front in ascending symbol order; the spent side consumes
// the reservation by reducing Size, the received side gains Size and
// UsableSize alike.
func settle(ctx context.Context, tx store.Tx, o *domain.Order, now time.Time) error {
	rows, err := lockSettlementRows(ctx, tx, o.CustomerID, domain.CashSymbol, o.AssetName)
	if err != nil {
		return err
	}

	notional := o.Notional()
	var spent, received *domain.Asset
	var spentAmount, receivedAmount = notional, o.Size

	switch o.Side {
	case domain.OrderSideBuy:
		spent, received = rows[domain.CashSymbol], rows[o.AssetName]
		if received == nil {
			received = domain.NewAsset(o.CustomerID, o.AssetName, decimal.Zero, now)
		}
	case domain.OrderSideSell:
		spent, received = rows[o.AssetName], rows[domain.CashSymbol]
		spentAmount, receivedAmount = o.Size, notional
		if received == nil {
			received = domain.NewAsset(o.CustomerID, domain.CashSymbol, decimal.Zero, now)
		}
	default:
		return fmt.Errorf("order %s: unknown side %q", o.OrderID, o.Side)
	}

	if spent == nil {
		return fmt.Errorf("settle order %s: reserved asset row missing: %w", o.OrderID, domain.ErrAssetNotFound)
	}

	spent.Size = spent.Size.Sub(spentAmount)
	spent.UpdatedAt = now
	if err := tx.SaveAsset(ctx, spent); err != nil {
		return err
	}

	received.Size = received.Size.Add(receivedAmount)
	received.UsableSize = received.UsableSize.Add(receivedAmount)
	received.UpdatedAt = now
	return tx.SaveAsset(ctx, received)
}

// lockSettlementRows locks each distinct symbol in ascending order and
// returns the rows found. Missing rows map to nil but stay locked.
func lockSettlementRows(ctx context.Context, tx store.Tx, customerID string, symbols ...string) (map[string]*domain.Asset, error) {
	sorted := make([]string, 0, len(symbols))
	seen := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		if !seen[s] {
			seen[s] = true
			sorted = append(sorted, s)
		}
	}
	sort.Strings(sorted)

	rows := make(map[string]*domain.Asset, len(sorted))
	for _, symbol := range sorted {
		a, err := tx.GetAssetForUpdate(ctx, customerID, symbol)
		switch {
		case err == nil:
			rows[symbol] = a
		case errors.Is(err, domain.ErrAssetNotFound):
			rows[symbol] = nil
		default:
			return nil, err
		}
	}
	return rows, nil
}
