package domain

import (
	"regexp"
	"strings"
)

var symbolRegex = regexp.MustCompile(`^[A-Z][A-Z0-9.]{0,9}$`)

// NormalizeSymbol trims and upper-cases a symbol.
func NormalizeSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// ValidateSymbol checks a normalized symbol against the accepted format.
// field names the request field in the returned error.
func ValidateSymbol(field, symbol string) error {
	if !symbolRegex.MatchString(symbol) {
		return &ValidationError{
			Field:   field,
			Message: field + " must match ^[A-Z][A-Z0-9.]{0,9}$",
		}
	}
	return nil
}

// ValidateTradableSymbol additionally rejects the cash symbol, which can
// fund orders but never be their subject.
func ValidateTradableSymbol(field, symbol string) error {
	if err := ValidateSymbol(field, symbol); err != nil {
		return err
	}
	if symbol == CashSymbol {
		return &ValidationError{Field: field, Message: field + " cannot be " + CashSymbol}
	}
	return nil
}
