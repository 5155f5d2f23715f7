package service

import (
	"fmt"

	"github.com/efreitasn/minibroker/internal/domain"
)

// Caller is the identity an operation runs on behalf of. An empty
// CustomerID means the caller is not bound to a customer.
type Caller struct {
	CustomerID string
	IsAdmin    bool
}

// authorize permits admins, callers with no customer binding, and callers
// acting on their own customer id.
func authorize(caller Caller, customerID string) error {
	if caller.IsAdmin || caller.CustomerID == "" || caller.CustomerID == customerID {
		return nil
	}
	return fmt.Errorf("customer %s cannot act on customer %s: %w", caller.CustomerID, customerID, domain.ErrForbidden)
}
