package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// CashSymbol is the symbol of the cash asset every customer is funded in.
const CashSymbol = "TRY"

// Asset represents a customer's position in a single symbol. Size is the
// total held; UsableSize is the part not reserved by pending orders.
type Asset struct {
	CustomerID string
	Symbol     string
	Size       decimal.Decimal
	UsableSize decimal.Decimal
	UpdatedAt  time.Time
}

// NewAsset returns an asset row whose full size is usable.
func NewAsset(customerID, symbol string, size decimal.Decimal, now time.Time) *Asset {
	return &Asset{
		CustomerID: customerID,
		Symbol:     symbol,
		Size:       size,
		UsableSize: size,
		UpdatedAt:  now,
	}
}

// Reserved returns the amount locked by pending orders.
func (a *Asset) Reserved() decimal.Decimal {
	return a.Size.Sub(a.UsableSize)
}

// Key identifies the asset row in lock tables and caches.
func (a *Asset) Key() string {
	return AssetKey(a.CustomerID, a.Symbol)
}

// AssetKey builds the row key for (customerID, symbol).
func AssetKey(customerID, symbol string) string {
	return "asset:" + customerID + ":" + symbol
}

// Check verifies 0 <= UsableSize <= Size.
func (a *Asset) Check() error {
	if a.UsableSize.IsNegative() {
		return fmt.Errorf("asset %s: usable size %s is negative", a.Key(), a.UsableSize)
	}
	if a.UsableSize.GreaterThan(a.Size) {
		return fmt.Errorf("asset %s: usable size %s exceeds size %s", a.Key(), a.UsableSize, a.Size)
	}
	return nil
}

// Clone returns a copy that shares no state with a.
func (a *Asset) Clone() *Asset {
	c := *a
	return &c
}
