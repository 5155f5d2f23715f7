package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// AmountScale is the number of decimal places sizes and prices carry.
const AmountScale = 2

// MinPrice is the smallest accepted order price.
var MinPrice = decimal.New(1, -AmountScale)

// CheckScale rejects values with more than AmountScale decimal places.
func CheckScale(field string, d decimal.Decimal) error {
	if !d.Equal(d.Truncate(AmountScale)) {
		return &ValidationError{
			Field:   field,
			Message: fmt.Sprintf("%s must have at most %d decimal places", field, AmountScale),
		}
	}
	return nil
}

// CheckPositive rejects zero, negative and over-scaled values.
func CheckPositive(field string, d decimal.Decimal) error {
	if !d.IsPositive() {
		return &ValidationError{Field: field, Message: fmt.Sprintf("%s must be > 0", field)}
	}
	return CheckScale(field, d)
}

// CheckNonNegative rejects negative and over-scaled values.
func CheckNonNegative(field string, d decimal.Decimal) error {
	if d.IsNegative() {
		return &ValidationError{Field: field, Message: fmt.Sprintf("%s must be >= 0", field)}
	}
	return CheckScale(field, d)
}

// CheckNotional rejects a size and price whose product needs more than
// AmountScale decimal places. A BUY reserves that product of cash, and
// every ledger column stores exactly AmountScale places.
func CheckNotional(size, price decimal.Decimal) error {
	n := size.Mul(price)
	if n.Equal(n.Truncate(AmountScale)) {
		return nil
	}
	return &ValidationError{
		Field:   "price",
		Message: fmt.Sprintf("size * price must have at most %d decimal places", AmountScale),
	}
}
