package model

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for common cases.
// Use errors.Is() to check against these.
var (
	ErrNotFound       = errors.New("not found")
	ErrInvalidRequest = errors.New("invalid request")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrUpstreamError  = errors.New("upstream error")
	ErrRemoteRejected = errors.New("remote rejected request")
	ErrRateLimited    = errors.New("rate limited")
	ErrStockLimit     = errors.New("stock limit exceeded")
	ErrPurchaseLimit  = errors.New("purchase limit exceeded")
)

// APIError represents a structured error for API responses.
// Implements error interface and supports unwrapping.
type APIError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"` // HTTP status, not serialized
	Err        error  `json:"-"` // Wrapped error, not serialized
}

func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// NewNotFoundError creates a 404 error for missing resources.
func NewNotFoundError(resource string) *APIError {
	return &APIError{
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found", resource),
		StatusCode: http.StatusNotFound,
		Err:        ErrNotFound,
	}
}

// NewValidationError creates a 400 error for invalid input.
// Local validation failures never reach the network layer.
func NewValidationError(field, reason string) *APIError {
	return &APIError{
		Code:       "VALIDATION_ERROR",
		Message:    fmt.Sprintf("invalid %s: %s", field, reason),
		StatusCode: http.StatusBadRequest,
		Err:        ErrInvalidRequest,
	}
}

// NewUnauthorizedError creates a 401 error for auth failures.
func NewUnauthorizedError(reason string) *APIError {
	return &APIError{
		Code:       "UNAUTHORIZED",
		Message:    reason,
		StatusCode: http.StatusUnauthorized,
		Err:        ErrUnauthorized,
	}
}

// NewUpstreamError creates a 502 error for transport or server failures.
func NewUpstreamError(service string, err error) *APIError {
	return &APIError{
		Code:       "UPSTREAM_ERROR",
		Message:    fmt.Sprintf("%s request failed", service),
		StatusCode: http.StatusBadGateway,
		Err:        fmt.Errorf("%w: %v", ErrUpstreamError, err),
	}
}

// NewRemoteError creates an error for a request the pricing backend refused.
// Message keeps the backend's own text (possibly HTML-escaped) so callers can
// show it after cleaning.
func NewRemoteError(statusCode int, code, message string) *APIError {
	if code == "" {
		code = "REMOTE_ERROR"
	}
	return &APIError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
		Err:        ErrRemoteRejected,
	}
}

// NewRateLimitError creates a 429 error for rate limiting.
func NewRateLimitError(service string) *APIError {
	return &APIError{
		Code:       "RATE_LIMITED",
		Message:    fmt.Sprintf("%s rate limit exceeded, please retry later", service),
		StatusCode: http.StatusTooManyRequests,
		Err:        ErrRateLimited,
	}
}

// NewStockLimitError rejects a ledger mutation that the product's stock cannot cover.
func NewStockLimitError(productName string, available int) *APIError {
	msg := fmt.Sprintf("%s is out of stock", productName)
	if available > 0 {
		msg = fmt.Sprintf("only %d of %s available", available, productName)
	}
	return &APIError{
		Code:       "STOCK_LIMIT",
		Message:    msg,
		StatusCode: http.StatusConflict,
		Err:        ErrStockLimit,
	}
}

// NewPurchaseLimitError rejects a ledger mutation above the per-product limit.
func NewPurchaseLimitError(productName string, limit int) *APIError {
	return &APIError{
		Code:       "PURCHASE_LIMIT",
		Message:    fmt.Sprintf("you can buy at most %d of %s", limit, productName),
		StatusCode: http.StatusConflict,
		Err:        ErrPurchaseLimit,
	}
}

// NewInternalError creates a 500 error for unexpected failures.
func NewInternalError(err error) *APIError {
	return &APIError{
		Code:       "INTERNAL_ERROR",
		Message:    "an internal error occurred",
		StatusCode: http.StatusInternalServerError,
		Err:        err,
	}
}

// IsNetworkError reports whether err came from a remote call, either a
// transport failure or a request the backend refused.
func IsNetworkError(err error) bool {
	return errors.Is(err, ErrUpstreamError) ||
		errors.Is(err, ErrRemoteRejected) ||
		errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrUnauthorized)
}

// UserMessage extracts the human-facing message from err.
// Falls back to a generic message for errors without an APIError in the chain.
func UserMessage(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return "something went wrong, please try again"
}
