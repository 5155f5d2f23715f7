package domain

import "time"

// Role is the privilege level of a customer account.
type Role string

const (
	RoleAdmin    Role = "ADMIN"
	RoleCustomer Role = "CUSTOMER"
)

// Customer represents a registered account holder.
type Customer struct {
	CustomerID   string
	Username     string
	PasswordHash string
	Email        string
	Role         Role
	CreatedAt    time.Time
}

// IsAdmin reports whether the customer holds the ADMIN role.
func (c *Customer) IsAdmin() bool {
	return c.Role == RoleAdmin
}

// ParseRole validates a role string.
func ParseRole(s string) (Role, bool) {
	switch Role(s) {
	case RoleAdmin, RoleCustomer:
		return Role(s), true
	}
	return "", false
}
