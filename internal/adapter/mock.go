package adapter

import (
	"context"

	"storefront/internal/model"
)

// Mock implements Backend for testing.
// Each method can be configured via function fields.
type Mock struct {
	GetCartFunc            func(ctx context.Context, hint model.PaymentMethod) (*model.RemoteCart, error)
	SyncItemsFunc          func(ctx context.Context, items []SyncItem, hint model.PaymentMethod) (*model.RemoteCart, error)
	UpdateCustomerFunc     func(ctx context.Context, req *CustomerUpdate) (*model.RemoteCart, error)
	SelectShippingRateFunc func(ctx context.Context, rateID string) (*model.RemoteCart, error)
	ApplyCouponFunc        func(ctx context.Context, code string) (*model.RemoteCart, error)
	RemoveCouponFunc       func(ctx context.Context, code string) (*model.RemoteCart, error)
	ListCouponsFunc        func(ctx context.Context) ([]model.Coupon, error)
	AppConfigFunc          func(ctx context.Context) (*model.AppConfig, error)
}

// GetCart calls the configured GetCartFunc or returns an empty cart.
func (m *Mock) GetCart(ctx context.Context, hint model.PaymentMethod) (*model.RemoteCart, error) {
	if m.GetCartFunc != nil {
		return m.GetCartFunc(ctx, hint)
	}
	return &model.RemoteCart{}, nil
}

// SyncItems calls the configured SyncItemsFunc or returns an empty cart.
func (m *Mock) SyncItems(ctx context.Context, items []SyncItem, hint model.PaymentMethod) (*model.RemoteCart, error) {
	if m.SyncItemsFunc != nil {
		return m.SyncItemsFunc(ctx, items, hint)
	}
	return &model.RemoteCart{}, nil
}

// UpdateCustomer calls the configured UpdateCustomerFunc or returns an error.
func (m *Mock) UpdateCustomer(ctx context.Context, req *CustomerUpdate) (*model.RemoteCart, error) {
	if m.UpdateCustomerFunc != nil {
		return m.UpdateCustomerFunc(ctx, req)
	}
	return nil, model.NewInternalError(nil)
}

// SelectShippingRate calls the configured SelectShippingRateFunc or returns an error.
func (m *Mock) SelectShippingRate(ctx context.Context, rateID string) (*model.RemoteCart, error) {
	if m.SelectShippingRateFunc != nil {
		return m.SelectShippingRateFunc(ctx, rateID)
	}
	return nil, model.NewNotFoundError("shipping rate")
}

// ApplyCoupon calls the configured ApplyCouponFunc or returns an error.
func (m *Mock) ApplyCoupon(ctx context.Context, code string) (*model.RemoteCart, error) {
	if m.ApplyCouponFunc != nil {
		return m.ApplyCouponFunc(ctx, code)
	}
	return nil, model.NewNotFoundError("coupon")
}

// RemoveCoupon calls the configured RemoveCouponFunc or returns an error.
func (m *Mock) RemoveCoupon(ctx context.Context, code string) (*model.RemoteCart, error) {
	if m.RemoveCouponFunc != nil {
		return m.RemoveCouponFunc(ctx, code)
	}
	return nil, model.NewNotFoundError("coupon")
}

// ListCoupons calls the configured ListCouponsFunc or returns no coupons.
func (m *Mock) ListCoupons(ctx context.Context) ([]model.Coupon, error) {
	if m.ListCouponsFunc != nil {
		return m.ListCouponsFunc(ctx)
	}
	return nil, nil
}

// AppConfig calls the configured AppConfigFunc or returns an error.
func (m *Mock) AppConfig(ctx context.Context) (*model.AppConfig, error) {
	if m.AppConfigFunc != nil {
		return m.AppConfigFunc(ctx)
	}
	return nil, model.NewNotFoundError("app config")
}

// Verify Mock implements Backend interface at compile time.
var _ Backend = (*Mock)(nil)
