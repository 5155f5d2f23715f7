package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestValidationError_Error(t *testing.T) {
	err := &ValidationError{Field: "size", Message: "size must be > 0"}
	if err.Error() != "size must be > 0" {
		t.Errorf("Error() = %q, want %q", err.Error(), "size must be > 0")
	}
}

func TestSentinelErrors_AreDistinct(t *testing.T) {
	errs := []error{
		ErrCustomerAlreadyExists,
		ErrCustomerNotFound,
		ErrAssetNotFound,
		ErrOrderNotFound,
		ErrWebhookNotFound,
		ErrForbidden,
		ErrInvalidState,
		ErrInsufficientFunds,
		ErrContention,
		ErrInvalidCredentials,
		ErrRateLimited,
	}
	for i := 0; i < len(errs); i++ {
		for j := i + 1; j < len(errs); j++ {
			if errors.Is(errs[i], errs[j]) {
				t.Errorf("sentinel errors %d and %d should be distinct", i, j)
			}
		}
	}
}

func TestInsufficientFundsError_Message(t *testing.T) {
	err := &InsufficientFundsError{
		Symbol:    "TRY",
		Required:  decimal.RequireFromString("1000"),
		Available: decimal.RequireFromString("999.5"),
	}
	want := "insufficient usable size for asset TRY: required 1000.00, available 999.50"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
	if !errors.Is(fmt.Errorf("create: %w", err), ErrInsufficientFunds) {
		t.Error("wrapped InsufficientFundsError should match ErrInsufficientFunds")
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"nil", nil, KindUnknown},
		{"plain", errors.New("boom"), KindUnknown},
		{"validation", &ValidationError{Message: "bad"}, KindValidation},
		{"wrapped validation", fmt.Errorf("x: %w", &ValidationError{Message: "bad"}), KindValidation},
		{"order not found", fmt.Errorf("order o1: %w", ErrOrderNotFound), KindNotFound},
		{"asset not found", ErrAssetNotFound, KindNotFound},
		{"customer not found", ErrCustomerNotFound, KindNotFound},
		{"forbidden", ErrForbidden, KindForbidden},
		{"invalid state", &InvalidStateError{OrderID: "o1", Status: OrderStatusMatched, Op: "canceled"}, KindInvalidState},
		{"insufficient funds", &InsufficientFundsError{Symbol: "TRY"}, KindInsufficientFunds},
		{"contention", &ContentionError{Resource: "asset:c1:TRY", Wait: time.Second}, KindContention},
		{"duplicate customer", ErrCustomerAlreadyExists, KindConflict},
		{"credentials", ErrInvalidCredentials, KindUnauthorized},
		{"rate limited", ErrRateLimited, KindRateLimited},
		{"rate limit error", &RateLimitError{RetryAfter: time.Second}, KindRateLimited},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf(%v) = %q, want %q", tt.err, got, tt.want)
			}
		})
	}
}

func TestIsRetryable(t *testing.T) {
	if !IsRetryable(fmt.Errorf("tx: %w", &ContentionError{Resource: "order:o1"})) {
		t.Error("contention should be retryable")
	}
	if IsRetryable(&InsufficientFundsError{Symbol: "TRY"}) {
		t.Error("insufficient funds should not be retryable")
	}
	if IsRetryable(ErrOrderNotFound) {
		t.Error("not found should not be retryable")
	}
}

func TestInvalidStateError_Message(t *testing.T) {
	err := &InvalidStateError{OrderID: "o1", Status: OrderStatusCanceled, Op: "matched"}
	want := "only PENDING orders can be matched: order o1 is CANCELED"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}
