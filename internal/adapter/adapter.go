// Package adapter defines the interface for the remote pricing backend.
// The backend keeps its own cart session and is authoritative for price.
package adapter

import (
	"context"

	"storefront/internal/model"
)

// Backend abstracts the remote cart endpoints the reconciliation core consumes.
// Every cart-returning method answers with the refreshed RemoteCart.
//
// Implementations must be safe for concurrent use. Errors are *model.APIError
// where the remote supplied a structured error.
type Backend interface {
	// GetCart fetches the current remote cart without pushing the ledger.
	// The payment hint lets the backend add or drop payment-dependent fees.
	GetCart(ctx context.Context, hint model.PaymentMethod) (*model.RemoteCart, error)

	// SyncItems replaces the remote cart contents with items.
	SyncItems(ctx context.Context, items []SyncItem, hint model.PaymentMethod) (*model.RemoteCart, error)

	// UpdateCustomer sets the shipping and billing addresses,
	// triggering shipping recalculation on the backend.
	UpdateCustomer(ctx context.Context, req *CustomerUpdate) (*model.RemoteCart, error)

	// SelectShippingRate selects one rate from the offered packages.
	SelectShippingRate(ctx context.Context, rateID string) (*model.RemoteCart, error)

	// ApplyCoupon applies a coupon code to the remote cart.
	ApplyCoupon(ctx context.Context, code string) (*model.RemoteCart, error)

	// RemoveCoupon removes a previously applied coupon code.
	RemoveCoupon(ctx context.Context, code string) (*model.RemoteCart, error)

	// ListCoupons returns coupons currently promoted by the store.
	ListCoupons(ctx context.Context) ([]model.Coupon, error)

	// AppConfig returns the storefront's fallback pricing constants.
	AppConfig(ctx context.Context) (*model.AppConfig, error)
}

// SyncItem is the minimal per-line payload pushed on sync.
type SyncItem struct {
	ProductID   int `json:"product_id"`
	Quantity    int `json:"quantity"`
	VariationID int `json:"variation_id,omitempty"`
}

// CustomerUpdate is the update-customer request body.
type CustomerUpdate struct {
	ShippingAddress model.Address `json:"shipping_address"`
	BillingAddress  model.Address `json:"billing_address"`
}

// Config holds connection settings shared by Backend implementations.
type Config struct {
	StoreURL string
	APIKey   string
}
