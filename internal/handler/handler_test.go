package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"storefront/internal/adapter"
	"storefront/internal/address"
	"storefront/internal/model"
	"storefront/internal/notify"
	"storefront/internal/storefront"
)

// idleTimer never fires; debounced address sends stay pending.
type idleTimer struct{}

func (idleTimer) Stop() bool { return true }

// mirrorMock echoes synced items back, 400.00 per unit.
func mirrorMock() *adapter.Mock {
	return &adapter.Mock{
		SyncItemsFunc: func(ctx context.Context, items []adapter.SyncItem, hint model.PaymentMethod) (*model.RemoteCart, error) {
			cart := &model.RemoteCart{}
			for _, item := range items {
				cart.Items = append(cart.Items, model.RemoteItem{ProductID: item.ProductID, Name: "Kurta", Quantity: item.Quantity})
				cart.Totals.TotalItems += int64(item.Quantity) * 40000
			}
			cart.Totals.TotalPrice = cart.Totals.TotalItems
			return cart, nil
		},
	}
}

func testHandler(t *testing.T, mock *adapter.Mock) (*Handler, *http.ServeMux) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	rec := notify.NewRecorder(0, nil)
	session, err := storefront.NewSession(context.Background(), storefront.Config{
		Backend:  mock,
		Notifier: rec,
		Logger:   logger,
		Fallback: model.AppConfig{
			CODFee:                decimal.NewFromInt(20),
			FreeShippingThreshold: decimal.NewFromInt(500),
			ShippingCost:          decimal.NewFromInt(79),
		},
		AfterFunc: func(time.Duration, func()) address.Timer { return idleTimer{} },
		Go:        func(f func()) { f() },
	})
	if err != nil {
		t.Fatalf("NewSession error: %v", err)
	}
	t.Cleanup(session.Close)

	h := New(session, rec, logger)
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	return h, mux
}

func do(mux *http.ServeMux, method, path, body string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func decodeCart(t *testing.T, w *httptest.ResponseRecorder) CartView {
	t.Helper()
	var v CartView
	if err := json.NewDecoder(w.Body).Decode(&v); err != nil {
		t.Fatalf("decoding cart: %v", err)
	}
	return v
}

func errorCode(body []byte) string {
	var resp errorResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return ""
	}
	return resp.Error.Code
}

const kurta = `{"product":{"id":1,"name":"Kurta","price":"400","in_stock":true},"quantity":1}`

func TestHandleHealth(t *testing.T) {
	_, mux := testHandler(t, &adapter.Mock{})

	for _, path := range []string{"/health", "/healthz"} {
		w := do(mux, "GET", path, "")
		if w.Code != http.StatusOK {
			t.Errorf("%s status = %d, want %d", path, w.Code, http.StatusOK)
		}
		var resp healthResponse
		json.NewDecoder(w.Body).Decode(&resp)
		if resp.Status != "ok" {
			t.Errorf("%s status = %s, want ok", path, resp.Status)
		}
	}
}

func TestHandleAddItem(t *testing.T) {
	_, mux := testHandler(t, mirrorMock())

	w := do(mux, "POST", "/cart/items", kurta)
	if w.Code != http.StatusCreated {
		t.Fatalf("Status = %d, want %d\nBody: %s", w.Code, http.StatusCreated, w.Body.String())
	}
	cart := decodeCart(t, w)
	if cart.ItemCount != 1 || len(cart.Items) != 1 {
		t.Fatalf("cart = %+v", cart)
	}
	if cart.Items[0].UnitPrice != "400.00" {
		t.Errorf("UnitPrice = %s, want 400.00", cart.Items[0].UnitPrice)
	}
	// Remote total 400 has no COD fee or shipping yet
	if cart.Total != "499.00" || !cart.Remote {
		t.Errorf("Total = %s Remote = %v, want 499.00 from a corrected remote total", cart.Total, cart.Remote)
	}
	if len(cart.Corrections) != 2 {
		t.Errorf("Corrections = %v, want missing COD fee and shipping", cart.Corrections)
	}
}

func TestHandleAddItemErrors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantCode   string
	}{
		{"invalid json", "{", http.StatusBadRequest, "VALIDATION_ERROR"},
		{"missing product", `{"quantity":1}`, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"zero quantity", `{"product":{"id":1,"name":"Kurta","price":"1","in_stock":true},"quantity":0}`, http.StatusBadRequest, "VALIDATION_ERROR"},
		{"out of stock", `{"product":{"id":1,"name":"Kurta","price":"1","in_stock":false},"quantity":1}`, http.StatusConflict, "STOCK_LIMIT"},
		{"purchase limit", `{"product":{"id":1,"name":"Kurta","price":"1","in_stock":true,"purchase_limit":2},"quantity":3}`, http.StatusConflict, "PURCHASE_LIMIT"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, mux := testHandler(t, mirrorMock())
			w := do(mux, "POST", "/cart/items", tt.body)
			if w.Code != tt.wantStatus {
				t.Errorf("Status = %d, want %d", w.Code, tt.wantStatus)
			}
			if code := errorCode(w.Body.Bytes()); code != tt.wantCode {
				t.Errorf("code = %q, want %q", code, tt.wantCode)
			}
		})
	}
}

func TestHandleUpdateAndRemoveItem(t *testing.T) {
	h, mux := testHandler(t, mirrorMock())
	do(mux, "POST", "/cart/items", kurta)
	do(mux, "POST", "/cart/items", `{"product":{"id":1,"name":"Kurta","price":"400","in_stock":true},"quantity":1,"customized":true}`)

	w := do(mux, "PATCH", "/cart/items/1", `{"quantity":3}`)
	if w.Code != http.StatusOK {
		t.Fatalf("PATCH status = %d\nBody: %s", w.Code, w.Body.String())
	}
	if got := h.session.Ledger().ItemCount(); got != 4 {
		t.Errorf("ItemCount = %d, want 4", got)
	}

	w = do(mux, "PATCH", "/cart/items/2", `{"quantity":1}`)
	if w.Code != http.StatusNotFound {
		t.Errorf("PATCH missing line status = %d, want 404", w.Code)
	}
	w = do(mux, "PATCH", "/cart/items/abc", `{"quantity":1}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("PATCH bad id status = %d, want 400", w.Code)
	}

	w = do(mux, "DELETE", "/cart/items/1?customized=true", "")
	if w.Code != http.StatusOK {
		t.Fatalf("DELETE status = %d", w.Code)
	}
	if got := h.session.Ledger().ItemCount(); got != 3 {
		t.Errorf("ItemCount after removing customized line = %d, want 3", got)
	}

	do(mux, "DELETE", "/cart/items/1", "")
	if got := h.session.Ledger().ItemCount(); got != 0 {
		t.Errorf("ItemCount after remove = %d, want 0", got)
	}
}

func TestHandleClearCart(t *testing.T) {
	h, mux := testHandler(t, mirrorMock())
	do(mux, "POST", "/cart/items", kurta)

	w := do(mux, "DELETE", "/cart", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d", w.Code)
	}
	if n := len(h.session.Ledger().Items()); n != 0 {
		t.Errorf("items = %d, want 0", n)
	}
}

func TestHandleSetPaymentMethod(t *testing.T) {
	var hints []model.PaymentMethod
	mock := mirrorMock()
	sync := mock.SyncItemsFunc
	mock.SyncItemsFunc = func(ctx context.Context, items []adapter.SyncItem, hint model.PaymentMethod) (*model.RemoteCart, error) {
		hints = append(hints, hint)
		return sync(ctx, items, hint)
	}
	_, mux := testHandler(t, mock)
	do(mux, "POST", "/cart/items", kurta)

	w := do(mux, "PUT", "/cart/payment-method", `{"payment_method":"Card"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d\nBody: %s", w.Code, w.Body.String())
	}
	cart := decodeCart(t, w)
	if cart.PaymentMethod != "card" {
		t.Errorf("PaymentMethod = %s, want card", cart.PaymentMethod)
	}
	if cart.CODFee != "0.00" || cart.Total != "479.00" {
		t.Errorf("CODFee = %s Total = %s, want 0.00 / 479.00", cart.CODFee, cart.Total)
	}
	if len(hints) != 2 || hints[1] != model.PaymentCard {
		t.Errorf("hints = %v, want [cod card]", hints)
	}

	w = do(mux, "PUT", "/cart/payment-method", `{"payment_method":"upi"}`)
	if w.Code != http.StatusBadRequest {
		t.Errorf("unknown method status = %d, want 400", w.Code)
	}
}

func TestHandleScheduleAddress(t *testing.T) {
	_, mux := testHandler(t, &adapter.Mock{})

	tests := []struct {
		name       string
		body       string
		wantStatus string
	}{
		{"partial postcode", `{"country":"IN","postcode":"5600","city":"Bengaluru"}`, "ignored"},
		{"complete postcode", `{"country":"IN","postcode":"560001","city":"Bengaluru"}`, "accepted"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(mux, "PUT", "/cart/address", tt.body)
			if w.Code != http.StatusAccepted {
				t.Fatalf("Status = %d, want 202", w.Code)
			}
			var resp addressStatus
			json.NewDecoder(w.Body).Decode(&resp)
			if resp.Status != tt.wantStatus {
				t.Errorf("status = %s, want %s", resp.Status, tt.wantStatus)
			}
		})
	}
}

func TestHandleSubmitAddress(t *testing.T) {
	var got *adapter.CustomerUpdate
	mock := mirrorMock()
	mock.UpdateCustomerFunc = func(ctx context.Context, req *adapter.CustomerUpdate) (*model.RemoteCart, error) {
		got = req
		return &model.RemoteCart{}, nil
	}
	_, mux := testHandler(t, mock)

	w := do(mux, "POST", "/cart/address", `{"country":"IN","postcode":"5600","city":"Bengaluru"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("invalid address status = %d, want 400", w.Code)
	}
	var resp errorResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Error.Message != "invalid postcode: must be exactly 6 digits" {
		t.Errorf("message = %q", resp.Error.Message)
	}
	if got != nil {
		t.Fatal("invalid address reached the backend")
	}

	full := `{"first_name":"Asha","last_name":"Rao","address_1":"12 MG Road","city":"Bengaluru",` +
		`"state":"KA","postcode":"560001","country":"IN","phone":"9999999999"}`
	w = do(mux, "POST", "/cart/address", full)
	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d\nBody: %s", w.Code, w.Body.String())
	}
	if got == nil || got.ShippingAddress.Postcode != "560001" || got.BillingAddress.City != "Bengaluru" {
		t.Errorf("update = %+v", got)
	}
}

func TestHandleApplyCoupon(t *testing.T) {
	mock := mirrorMock()
	mock.ApplyCouponFunc = func(ctx context.Context, code string) (*model.RemoteCart, error) {
		if code != "SAVE10" {
			return nil, model.NewRemoteError(http.StatusBadRequest, "woocommerce_rest_cart_coupon_error",
				"Coupon &quot;"+code+"&quot; does not exist!")
		}
		return &model.RemoteCart{
			Items:   []model.RemoteItem{{ProductID: 1, Quantity: 1}},
			Totals:  model.Totals{TotalItems: 40000, TotalDiscount: 4000, TotalPrice: 36000},
			Coupons: []model.Coupon{{Code: "save10", TotalDiscount: 4000}},
		}, nil
	}
	_, mux := testHandler(t, mock)
	do(mux, "POST", "/cart/items", kurta)

	w := do(mux, "POST", "/cart/coupons", `{"code":"SAVE10"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d\nBody: %s", w.Code, w.Body.String())
	}
	cart := decodeCart(t, w)
	if len(cart.Coupons) != 1 || cart.Discount != "40.00" {
		t.Errorf("coupons = %+v discount = %s", cart.Coupons, cart.Discount)
	}
	if len(cart.CouponFees) != 1 || cart.CouponFees[0].Total != -4000 {
		t.Errorf("coupon fee lines = %+v", cart.CouponFees)
	}

	w = do(mux, "POST", "/cart/coupons", `{"code":"BOGUS"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("Status = %d, want 400", w.Code)
	}
	var resp errorResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Error.Message != `Coupon "BOGUS" does not exist!` {
		t.Errorf("message = %q, want cleaned text", resp.Error.Message)
	}
}

func TestHandleRemoveCoupon(t *testing.T) {
	var removed string
	mock := mirrorMock()
	mock.RemoveCouponFunc = func(ctx context.Context, code string) (*model.RemoteCart, error) {
		removed = code
		return &model.RemoteCart{}, nil
	}
	_, mux := testHandler(t, mock)

	w := do(mux, "DELETE", "/cart/coupons/save10", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d\nBody: %s", w.Code, w.Body.String())
	}
	if removed != "save10" {
		t.Errorf("removed = %q, want save10", removed)
	}
}

func TestHandleListCoupons(t *testing.T) {
	mock := &adapter.Mock{
		ListCouponsFunc: func(ctx context.Context) ([]model.Coupon, error) {
			return []model.Coupon{{Code: "WELCOME", DiscountType: "percent"}}, nil
		},
	}
	_, mux := testHandler(t, mock)

	w := do(mux, "GET", "/coupons", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Status = %d", w.Code)
	}
	var resp couponsResponse
	json.NewDecoder(w.Body).Decode(&resp)
	if len(resp.Coupons) != 1 || resp.Coupons[0].Code != "WELCOME" {
		t.Errorf("coupons = %+v", resp.Coupons)
	}
}

func TestHandleNotifications(t *testing.T) {
	_, mux := testHandler(t, mirrorMock())
	do(mux, "POST", "/cart/items", kurta)

	w := do(mux, "GET", "/notifications?clear=true", "")
	var resp notificationsResponse
	json.NewDecoder(w.Body).Decode(&resp)
	if len(resp.Notifications) == 0 || resp.Notifications[0].Message != "Added Kurta to cart" {
		t.Errorf("notifications = %+v", resp.Notifications)
	}

	w = do(mux, "GET", "/notifications", "")
	resp = notificationsResponse{}
	json.NewDecoder(w.Body).Decode(&resp)
	if len(resp.Notifications) != 0 {
		t.Errorf("notifications after clear = %d, want 0", len(resp.Notifications))
	}
}

func TestHandleClosedSession(t *testing.T) {
	h, mux := testHandler(t, &adapter.Mock{})
	h.session.Close()

	w := do(mux, "GET", "/cart", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Status = %d, want 503", w.Code)
	}
	if code := errorCode(w.Body.Bytes()); code != "SESSION_CLOSED" {
		t.Errorf("code = %q", code)
	}
}

func TestDecodeJSONBodyLimit(t *testing.T) {
	big := bytes.Repeat([]byte("a"), MaxRequestBodySize+1)
	req := httptest.NewRequest("POST", "/cart/items", bytes.NewReader(append([]byte(`{"x":"`), big...)))
	var v map[string]string
	if err := decodeJSON(req, &v); err == nil {
		t.Error("expected error for oversized body")
	}
}
