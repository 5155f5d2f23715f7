package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Sentinel errors for domain-level error handling.
// The handler layer maps these to HTTP status codes.
var (
	ErrCustomerAlreadyExists = errors.New("customer_already_exists")
	ErrCustomerNotFound      = errors.New("customer_not_found")
	ErrAssetNotFound         = errors.New("asset_not_found")
	ErrOrderNotFound         = errors.New("order_not_found")
	ErrWebhookNotFound       = errors.New("webhook_not_found")
	ErrForbidden             = errors.New("forbidden")
	ErrInvalidState          = errors.New("invalid_state")
	ErrInsufficientFunds     = errors.New("insufficient_funds")
	ErrContention            = errors.New("contention")
	ErrInvalidCredentials    = errors.New("invalid_credentials")
	ErrRateLimited           = errors.New("rate_limited")
)

// ErrorKind classifies an error for callers that switch on outcome rather
// than on concrete error values.
type ErrorKind string

const (
	KindUnknown           ErrorKind = "unknown"
	KindNotFound          ErrorKind = "not_found"
	KindForbidden         ErrorKind = "forbidden"
	KindInvalidState      ErrorKind = "invalid_state"
	KindInsufficientFunds ErrorKind = "insufficient_funds"
	KindContention        ErrorKind = "contention"
	KindValidation        ErrorKind = "validation_error"
	KindConflict          ErrorKind = "conflict"
	KindUnauthorized      ErrorKind = "unauthorized"
	KindRateLimited       ErrorKind = "rate_limited"
)

// ValidationError represents a request validation failure.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// InsufficientFundsError reports a reservation that exceeds the usable
// size of the asset row it targets.
type InsufficientFundsError struct {
	Symbol    string
	Required  decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient usable size for asset %s: required %s, available %s",
		e.Symbol, e.Required.StringFixed(2), e.Available.StringFixed(2))
}

func (e *InsufficientFundsError) Is(target error) bool {
	return target == ErrInsufficientFunds
}

// InvalidStateError reports an operation attempted on an order whose
// status does not allow it.
type InvalidStateError struct {
	OrderID string
	Status  OrderStatus
	Op      string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("only PENDING orders can be %s: order %s is %s", e.Op, e.OrderID, e.Status)
}

func (e *InvalidStateError) Is(target error) bool {
	return target == ErrInvalidState
}

// ContentionError reports a row lock that could not be acquired within the
// configured wait. The operation left no trace and may be retried.
type ContentionError struct {
	Resource string
	Wait     time.Duration
}

func (e *ContentionError) Error() string {
	if e.Wait > 0 {
		return fmt.Sprintf("lock on %s not acquired within %s", e.Resource, e.Wait)
	}
	return fmt.Sprintf("lock on %s not acquired", e.Resource)
}

func (e *ContentionError) Is(target error) bool {
	return target == ErrContention
}

// RateLimitError reports a throttled attempt and when to try again.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("too many attempts, retry in %s", e.RetryAfter.Round(time.Second))
}

func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimited
}

// KindOf classifies err. Wrapped errors are unwrapped.
func KindOf(err error) ErrorKind {
	var validationErr *ValidationError
	switch {
	case err == nil:
		return KindUnknown
	case errors.As(err, &validationErr):
		return KindValidation
	case errors.Is(err, ErrCustomerNotFound),
		errors.Is(err, ErrAssetNotFound),
		errors.Is(err, ErrOrderNotFound),
		errors.Is(err, ErrWebhookNotFound):
		return KindNotFound
	case errors.Is(err, ErrForbidden):
		return KindForbidden
	case errors.Is(err, ErrInvalidState):
		return KindInvalidState
	case errors.Is(err, ErrInsufficientFunds):
		return KindInsufficientFunds
	case errors.Is(err, ErrContention):
		return KindContention
	case errors.Is(err, ErrCustomerAlreadyExists):
		return KindConflict
	case errors.Is(err, ErrInvalidCredentials):
		return KindUnauthorized
	case errors.Is(err, ErrRateLimited):
		return KindRateLimited
	}
	return KindUnknown
}

// IsRetryable reports whether the failed operation may be retried as-is.
func IsRetryable(err error) bool {
	return KindOf(err) == KindContention
}
