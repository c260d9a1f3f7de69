// Package handler provides the local HTTP surface a UI shell (REST) or an
// agent (MCP) drives the cart core through.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"storefront/internal/coupon"
	"storefront/internal/model"
	"storefront/internal/notify"
	"storefront/internal/storefront"
)

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	session       *storefront.Session
	notifications *notify.Recorder
	logger        *slog.Logger
}

// New creates a Handler. notifications may be nil when the shell receives
// notifications some other way.
func New(session *storefront.Session, notifications *notify.Recorder, logger *slog.Logger) *Handler {
	return &Handler{
		session:       session,
		notifications: notifications,
		logger:        logger,
	}
}

// RegisterRoutes registers all HTTP routes with the given ServeMux.
// Uses Go 1.22+ method routing patterns.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Cart
	mux.HandleFunc("GET /cart", h.handleGetCart)
	mux.HandleFunc("DELETE /cart", h.handleClearCart)
	mux.HandleFunc("POST /cart/items", h.handleAddItem)
	mux.HandleFunc("PATCH /cart/items/{product_id}", h.handleUpdateItem)
	mux.HandleFunc("DELETE /cart/items/{product_id}", h.handleRemoveItem)

	// Checkout inputs
	mux.HandleFunc("PUT /cart/payment-method", h.handleSetPaymentMethod)
	mux.HandleFunc("PUT /cart/address", h.handleScheduleAddress)
	mux.HandleFunc("POST /cart/address", h.handleSubmitAddress)
	mux.HandleFunc("POST /cart/coupons", h.handleApplyCoupon)
	mux.HandleFunc("DELETE /cart/coupons/{code}", h.handleRemoveCoupon)
	mux.HandleFunc("GET /coupons", h.handleListCoupons)

	mux.HandleFunc("GET /notifications", h.handleNotifications)

	// MCP transport - JSON-RPC endpoint using official MCP SDK
	mux.Handle("/mcp", h.NewMCPHandler())

	// Health check
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("GET /healthz", h.handleHealth)
}

// handleHealth returns a simple health check response.
// GET /health, GET /healthz
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}

type healthResponse struct {
	Status string `json:"status"`
}

// === Response Helpers ===

// writeJSON sends a JSON response with the given status code.
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// writeError sends an error response, extracting status/code from APIError if present.
// Uses errors.As() to unwrap error chains (e.g., fmt.Errorf wrapping).
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	h.writeJSON(w, h.statusOf(err), errorResponse{Error: h.bodyOf(err)})
}

func (h *Handler) statusOf(err error) int {
	var apiErr *model.APIError
	switch {
	case errors.As(err, &apiErr):
		return apiErr.StatusCode
	case errors.Is(err, storefront.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) bodyOf(err error) errorBody {
	var apiErr *model.APIError
	switch {
	case errors.As(err, &apiErr):
		return errorBody{Code: apiErr.Code, Message: coupon.CleanMessage(model.UserMessage(err))}
	case errors.Is(err, storefront.ErrClosed):
		return errorBody{Code: "SESSION_CLOSED", Message: "session closed"}
	default:
		// Don't leak internal error details
		h.logger.Error("internal error", slog.String("error", err.Error()))
		return errorBody{Code: "INTERNAL_ERROR", Message: "an internal error occurred"}
	}
}

// errorResponse is the JSON structure for error responses.
type errorResponse struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// MaxRequestBodySize limits JSON request bodies to 1MB to prevent DoS.
const MaxRequestBodySize = 1 << 20 // 1MB

// decodeJSON reads JSON from request body into v.
// Limits body size to MaxRequestBodySize to prevent memory exhaustion.
// Returns an APIError if decoding fails.
func decodeJSON(r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(nil, r.Body, MaxRequestBodySize)

	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		// Don't expose internal error details to client
		return model.NewValidationError("body", "invalid JSON")
	}
	return nil
}
