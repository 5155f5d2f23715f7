package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/efreitasn/minibroker/internal/domain"
)

const timeLayout = "2006-01-02T15:04:05Z"

// WriteJSON writes a JSON response with the given status code and data.
// Sets Content-Type to application/json before writing the status code.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data) // Write error intentionally ignored in response helper
}

// errorResponse is the standard error response format.
type errorResponse struct {
	Error   string         `json:"error"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// WriteError writes a standard error response with the given status code,
// error code, and human-readable message.
func WriteError(w http.ResponseWriter, status int, errorCode, message string) {
	WriteErrorDetails(w, status, errorCode, message, nil)
}

// WriteErrorDetails is WriteError with a details object.
func WriteErrorDetails(w http.ResponseWriter, status int, errorCode, message string, details map[string]any) {
	WriteJSON(w, status, errorResponse{
		Error:   errorCode,
		Message: message,
		Details: details,
	})
}

// ParseJSON decodes the request body as JSON into v.
// It validates that the Content-Type header is application/json and
// returns an error for missing/incorrect content type or malformed JSON.
func ParseJSON(r *http.Request, v any) error {
	ct := r.Header.Get("Content-Type")
	if ct == "" || !strings.HasPrefix(ct, "application/json") {
		return fmt.Errorf("Request body must be valid JSON with Content-Type: application/json")
	}

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("Request body must be valid JSON with Content-Type: application/json")
	}

	return nil
}

// writeServiceError maps a service error onto the HTTP error contract.
// Server-side failures are logged at Error, client errors at Debug.
func writeServiceError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	status, code, details := classify(err)
	message := err.Error()

	switch {
	case status >= 500 && status != http.StatusServiceUnavailable:
		message = "An unexpected error occurred"
		logger.Error("request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("request_id", RequestIDFrom(r.Context())),
			slog.String("error", err.Error()),
		)
	case status == http.StatusServiceUnavailable:
		logger.Warn("request hit lock contention",
			slog.String("path", r.URL.Path),
			slog.String("request_id", RequestIDFrom(r.Context())),
			slog.String("error", err.Error()),
		)
	default:
		logger.Debug("request rejected",
			slog.String("path", r.URL.Path),
			slog.Int("status", status),
			slog.String("error", err.Error()),
		)
	}

	var contention *domain.ContentionError
	var limited *domain.RateLimitError
	switch {
	case errors.As(err, &contention):
		w.Header().Set("Retry-After", retryAfterSeconds(contention.Wait))
	case errors.As(err, &limited):
		w.Header().Set("Retry-After", retryAfterSeconds(limited.RetryAfter))
	case status == http.StatusUnauthorized:
		w.Header().Set("WWW-Authenticate", `Bearer realm="minibroker"`)
	}

	WriteErrorDetails(w, status, code, message, details)
}

// classify returns the HTTP status, error code and details for err.
func classify(err error) (int, string, map[string]any) {
	var (
		validationErr *domain.ValidationError
		fundsErr      *domain.InsufficientFundsError
		stateErr      *domain.InvalidStateError
	)

	switch domain.KindOf(err) {
	case domain.KindValidation:
		var details map[string]any
		if errors.As(err, &validationErr) && validationErr.Field != "" {
			details = map[string]any{"field": validationErr.Field}
		}
		return http.StatusBadRequest, "validation_error", details
	case domain.KindNotFound:
		return http.StatusNotFound, notFoundCode(err), nil
	case domain.KindForbidden:
		return http.StatusForbidden, "forbidden", nil
	case domain.KindInvalidState:
		var details map[string]any
		if errors.As(err, &stateErr) {
			details = map[string]any{"orderId": stateErr.OrderID, "status": string(stateErr.Status)}
		}
		return http.StatusConflict, "invalid_state", details
	case domain.KindInsufficientFunds:
		var details map[string]any
		if errors.As(err, &fundsErr) {
			details = map[string]any{
				"symbol":    fundsErr.Symbol,
				"required":  fundsErr.Required.StringFixed(domain.AmountScale),
				"available": fundsErr.Available.StringFixed(domain.AmountScale),
			}
		}
		return http.StatusUnprocessableEntity, "insufficient_funds", details
	case domain.KindContention:
		return http.StatusServiceUnavailable, "contention", nil
	case domain.KindConflict:
		return http.StatusConflict, "customer_already_exists", nil
	case domain.KindUnauthorized:
		return http.StatusUnauthorized, "unauthorized", nil
	case domain.KindRateLimited:
		return http.StatusTooManyRequests, "rate_limited", nil
	}
	return http.StatusInternalServerError, "internal_error", nil
}

func notFoundCode(err error) string {
	for _, sentinel := range []error{
		domain.ErrOrderNotFound,
		domain.ErrCustomerNotFound,
		domain.ErrAssetNotFound,
		domain.ErrWebhookNotFound,
	} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return "not_found"
}

// retryAfterSeconds rounds d up to whole seconds, at least one.
func retryAfterSeconds(d time.Duration) string {
	secs := int(math.Ceil(d.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}
