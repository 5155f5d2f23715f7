package store

import (
	"context"
	"time"

	"github.com/efreitasn/minibroker/internal/domain"
)

// Tx is a unit of work over the asset ledger and the order table. Row reads
// ending in ForUpdate hold an exclusive lock on the row until the unit of
// work ends. Writes become visible to other callers only on commit.
type Tx interface {
	// GetAssetForUpdate locks (customerID, symbol) and returns a copy of
	// the row. If the row does not exist the lock is still held and the
	// error wraps domain.ErrAssetNotFound.
	GetAssetForUpdate(ctx context.Context, customerID, symbol string) (*domain.Asset, error)
	// SaveAsset inserts or replaces an asset row. The caller must hold the
	// row lock.
	SaveAsset(ctx context.Context, a *domain.Asset) error
	GetOrderForUpdate(ctx context.Context, orderID string) (*domain.Order, error)
	InsertOrder(ctx context.Context, o *domain.Order) error
	SaveOrder(ctx context.Context, o *domain.Order) error
	GetCustomer(ctx context.Context, customerID string) (*domain.Customer, error)
}

// OrderFilter selects a customer's orders. Zero-valued fields do not filter.
// Date bounds are inclusive.
type OrderFilter struct {
	CustomerID string
	StartDate  *time.Time
	EndDate    *time.Time
	Status     *domain.OrderStatus
}

// Matches reports whether o passes the filter.
func (f OrderFilter) Matches(o *domain.Order) bool {
	if f.CustomerID != "" && o.CustomerID != f.CustomerID {
		return false
	}
	if f.Status != nil && o.Status != *f.Status {
		return false
	}
	if f.StartDate != nil && o.CreateDate.Before(*f.StartDate) {
		return false
	}
	if f.EndDate != nil && o.CreateDate.After(*f.EndDate) {
		return false
	}
	return true
}

// Store is the persistence boundary shared by the in-memory and Postgres
// implementations. Reads outside WithinTx see committed state only.
type Store interface {
	// WithinTx runs fn in a unit of work. If fn returns an error every
	// staged write is discarded and the error is returned unchanged.
	WithinTx(ctx context.Context, fn func(tx Tx) error) error

	CreateCustomer(ctx context.Context, c *domain.Customer, assets []*domain.Asset) error
	GetCustomer(ctx context.Context, customerID string) (*domain.Customer, error)
	GetCustomerByUsername(ctx context.Context, username string) (*domain.Customer, error)
	CountCustomers(ctx context.Context) (int, error)

	GetAsset(ctx context.Context, customerID, symbol string) (*domain.Asset, error)
	// ListAssets returns the customer's assets ordered by symbol. A
	// non-empty symbol narrows the result to that row.
	ListAssets(ctx context.Context, customerID, symbol string) ([]*domain.Asset, error)

	GetOrder(ctx context.Context, orderID string) (*domain.Order, error)
	// ListOrders returns matching orders newest first.
	ListOrders(ctx context.Context, f OrderFilter) ([]*domain.Order, error)
	// ListPendingOrdersBefore returns up to limit PENDING orders created
	// before cutoff, oldest first.
	ListPendingOrdersBefore(ctx context.Context, cutoff time.Time, limit int) ([]*domain.Order, error)

	Close()
}
