package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"storefront/internal/ledger"
	"storefront/internal/model"
	"storefront/internal/notify"
)

// addItemRequest is the body of POST /cart/items.
type addItemRequest struct {
	Product     ledger.Product    `json:"product"`
	Quantity    int               `json:"quantity"`
	VariationID int               `json:"variation_id,omitempty"`
	Attributes  map[string]string `json:"attributes,omitempty"`
	Customized  bool              `json:"customized,omitempty"`
}

type updateItemRequest struct {
	Quantity    int  `json:"quantity"`
	VariationID int  `json:"variation_id,omitempty"`
	Customized  bool `json:"customized,omitempty"`
}

type paymentMethodRequest struct {
	PaymentMethod string `json:"payment_method"`
}

type couponRequest struct {
	Code string `json:"code"`
}

// writeCart renders the current cart with the given status.
func (h *Handler) writeCart(w http.ResponseWriter, r *http.Request, status int) {
	q, err := h.session.Quote(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, status, newCartView(q))
}

// handleGetCart returns the priced cart.
// GET /cart
func (h *Handler) handleGetCart(w http.ResponseWriter, r *http.Request) {
	h.writeCart(w, r, http.StatusOK)
}

// handleClearCart empties the ledger.
// DELETE /cart
func (h *Handler) handleClearCart(w http.ResponseWriter, r *http.Request) {
	h.session.Ledger().Clear(r.Context())
	h.writeCart(w, r, http.StatusOK)
}

// handleAddItem adds a product to the ledger.
// POST /cart/items
func (h *Handler) handleAddItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req addItemRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	if req.Product.ID == 0 {
		h.writeError(w, model.NewValidationError("product.id", "is required"))
		return
	}

	h.logger.InfoContext(ctx, "adding item",
		slog.Int("product_id", req.Product.ID),
		slog.Int("quantity", req.Quantity),
		slog.Bool("customized", req.Customized),
	)

	err := h.session.Ledger().AddItem(ctx, req.Product, req.Quantity,
		ledger.WithVariation(req.VariationID),
		ledger.WithAttributes(req.Attributes),
		ledger.WithCustomized(req.Customized),
	)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeCart(w, r, http.StatusCreated)
}

// handleUpdateItem sets a line quantity; zero removes the line.
// PATCH /cart/items/{product_id}
func (h *Handler) handleUpdateItem(w http.ResponseWriter, r *http.Request) {
	productID, err := pathProductID(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	var req updateItemRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	err = h.session.Ledger().UpdateQuantity(r.Context(), productID, req.Quantity,
		ledger.WithVariation(req.VariationID),
		ledger.WithCustomized(req.Customized),
	)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeCart(w, r, http.StatusOK)
}

// handleRemoveItem removes matching lines. Without ?customized both the
// customized and plain lines go.
// DELETE /cart/items/{product_id}?variation_id=&customized=
func (h *Handler) handleRemoveItem(w http.ResponseWriter, r *http.Request) {
	productID, err := pathProductID(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	q := r.URL.Query()
	var opts []ledger.Option
	if v := q.Get("variation_id"); v != "" {
		id, err := strconv.Atoi(v)
		if err != nil {
			h.writeError(w, model.NewValidationError("variation_id", "must be an integer"))
			return
		}
		opts = append(opts, ledger.WithVariation(id))
	}
	if v := q.Get("customized"); v != "" {
		customized, err := strconv.ParseBool(v)
		if err != nil {
			h.writeError(w, model.NewValidationError("customized", "must be true or false"))
			return
		}
		opts = append(opts, ledger.WithCustomized(customized))
	}

	h.session.Ledger().RemoveItem(r.Context(), productID, opts...)
	h.writeCart(w, r, http.StatusOK)
}

// handleSetPaymentMethod switches between cod and card.
// PUT /cart/payment-method
func (h *Handler) handleSetPaymentMethod(w http.ResponseWriter, r *http.Request) {
	var req paymentMethodRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	pm, err := model.ParsePaymentMethod(req.PaymentMethod)
	if err != nil {
		h.writeError(w, err)
		return
	}

	if _, err := h.session.SetPaymentMethod(r.Context(), pm); err != nil {
		// The switch stands; the summary below corrects for the lag
		h.logger.WarnContext(r.Context(), "cart sync after payment switch failed",
			slog.String("payment_method", string(pm)),
			slog.String("error", err.Error()))
	}
	h.writeCart(w, r, http.StatusOK)
}

// handleScheduleAddress feeds an in-progress address edit to the debounced gate.
// PUT /cart/address
func (h *Handler) handleScheduleAddress(w http.ResponseWriter, r *http.Request) {
	var addr model.Address
	if err := decodeJSON(r, &addr); err != nil {
		h.writeError(w, err)
		return
	}
	gate := h.session.Gate()
	gate.Schedule(addr)

	resp := addressStatus{Status: "accepted", Valid: gate.Rules(addr).Valid(addr)}
	if !resp.Valid {
		resp.Status = "ignored"
	}
	h.writeJSON(w, http.StatusAccepted, resp)
}

type addressStatus struct {
	Status string `json:"status"`
	Valid  bool   `json:"valid"`
}

// handleSubmitAddress sends a user-confirmed address immediately.
// POST /cart/address
func (h *Handler) handleSubmitAddress(w http.ResponseWriter, r *http.Request) {
	var addr model.Address
	if err := decodeJSON(r, &addr); err != nil {
		h.writeError(w, err)
		return
	}
	if _, err := h.session.Gate().Submit(r.Context(), addr); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeCart(w, r, http.StatusOK)
}

// handleApplyCoupon applies a coupon code.
// POST /cart/coupons
func (h *Handler) handleApplyCoupon(w http.ResponseWriter, r *http.Request) {
	var req couponRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	if _, err := h.session.Coupons().Apply(r.Context(), req.Code); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeCart(w, r, http.StatusOK)
}

// handleRemoveCoupon removes an applied coupon.
// DELETE /cart/coupons/{code}
func (h *Handler) handleRemoveCoupon(w http.ResponseWriter, r *http.Request) {
	if _, err := h.session.Coupons().Remove(r.Context(), r.PathValue("code")); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeCart(w, r, http.StatusOK)
}

// handleListCoupons returns the promotable coupons.
// GET /coupons
func (h *Handler) handleListCoupons(w http.ResponseWriter, r *http.Request) {
	coupons, err := h.session.Coupons().ListAvailable(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	if coupons == nil {
		coupons = []model.Coupon{}
	}
	h.writeJSON(w, http.StatusOK, couponsResponse{Coupons: coupons})
}

type couponsResponse struct {
	Coupons []model.Coupon `json:"coupons"`
}

// handleNotifications returns recent notifications, oldest first.
// GET /notifications
func (h *Handler) handleNotifications(w http.ResponseWriter, r *http.Request) {
	resp := notificationsResponse{Notifications: []notify.Notification{}}
	if h.notifications != nil {
		resp.Notifications = h.notifications.All()
		if r.URL.Query().Get("clear") == "true" {
			h.notifications.Reset()
		}
	}
	h.writeJSON(w, http.StatusOK, resp)
}

type notificationsResponse struct {
	Notifications []notify.Notification `json:"notifications"`
}

func pathProductID(r *http.Request) (int, error) {
	id, err := strconv.Atoi(r.PathValue("product_id"))
	if err != nil || id <= 0 {
		return 0, model.NewValidationError("product_id", "must be a positive integer")
	}
	return id, nil
}
