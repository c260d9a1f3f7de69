// Package storeapi implements adapter.Backend over HTTP against a Store API
// style pricing backend. Wire types, transforms and the HTTP client live here.
package storeapi

import "storefront/internal/model"

// === Store API Response Types ===

// CartResponse is the wire shape of a cart. Amount fields are minor units,
// sent either as strings ("8900") or numbers.
type CartResponse struct {
	Items         []CartItem    `json:"items"`
	Totals        Totals        `json:"totals"`
	ShippingRates []ShippingPkg `json:"shipping_rates,omitempty"`
	Coupons       []CartCoupon  `json:"coupons,omitempty"`
	Fees          []Fee         `json:"fees,omitempty"`
	NeedsShipping bool          `json:"needs_shipping"`
	Errors        []CartError   `json:"errors,omitempty"`
}

// CartItem is one mirrored line.
type CartItem struct {
	Key         string         `json:"key"`
	ID          int            `json:"id"`
	VariationID int            `json:"variation_id,omitempty"`
	Name        string         `json:"name"`
	Quantity    int            `json:"quantity"`
	Totals      CartItemTotals `json:"totals"`
}

// CartItemTotals holds line totals.
type CartItemTotals struct {
	LineSubtotal model.Minor `json:"line_subtotal"`
	LineTotal    model.Minor `json:"line_total"` // after discounts
}

// Totals holds cart totals.
type Totals struct {
	CurrencyCode      string      `json:"currency_code"`
	CurrencySymbol    string      `json:"currency_symbol"`
	CurrencyMinorUnit int         `json:"currency_minor_unit"`
	TotalItems        model.Minor `json:"total_items"`
	TotalFees         model.Minor `json:"total_fees"`
	TotalDiscount     model.Minor `json:"total_discount"`
	TotalShipping     model.Minor `json:"total_shipping"`
	TotalTax          model.Minor `json:"total_tax"`
	TotalPrice        model.Minor `json:"total_price"`
}

// ShippingPkg groups rates for one package.
type ShippingPkg struct {
	PackageID     int            `json:"package_id"`
	Name          string         `json:"name"`
	ShippingRates []ShippingRate `json:"shipping_rates"`
}

// ShippingRate is a single shipping option.
type ShippingRate struct {
	RateID       string      `json:"rate_id"`
	Name         string      `json:"name"`
	Description  string      `json:"description,omitempty"`
	DeliveryTime string      `json:"delivery_time,omitempty"`
	Price        model.Minor `json:"price"`
	MethodID     string      `json:"method_id"`
	Selected     bool        `json:"selected"`
}

// CartCoupon is an applied coupon. The discount lives in Totals.
type CartCoupon struct {
	Code         string       `json:"code"`
	DiscountType string       `json:"discount_type"`
	Totals       CouponTotals `json:"totals"`
}

// CouponTotals holds the discount granted by one coupon.
type CouponTotals struct {
	TotalDiscount model.Minor `json:"total_discount"`
}

// Fee is an additional charge line.
type Fee struct {
	ID     string    `json:"id"`
	Name   string    `json:"name"`
	Totals FeeTotals `json:"totals"`
}

// FeeTotals holds the fee amount.
type FeeTotals struct {
	Total model.Minor `json:"total"`
}

// CartError is a notice attached to the cart.
type CartError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// PromoCoupon is an entry of the promotable coupon list.
type PromoCoupon struct {
	Code         string      `json:"code"`
	DiscountType string      `json:"discount_type"`
	Amount       model.Minor `json:"amount"`
	Description  string      `json:"description,omitempty"`
}

// ConfigResponse is the app config document. Amounts are major units.
type ConfigResponse struct {
	CODFee                string `json:"cod_fee"`
	FreeShippingThreshold string `json:"free_shipping_threshold"`
	ShippingCost          string `json:"shipping_cost"`
}

// ErrorResponse is the backend's error body.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Data    struct {
		Status int `json:"status"`
	} `json:"data"`
}

// === Store API Request Types ===

// SyncRequest replaces the remote cart contents.
type SyncRequest struct {
	Items []SyncItem `json:"items"`
}

// SyncItem is one line of a sync request.
type SyncItem struct {
	ProductID   int `json:"product_id"`
	Quantity    int `json:"quantity"`
	VariationID int `json:"variation_id,omitempty"`
}

// CustomerRequest sets the cart addresses.
type CustomerRequest struct {
	ShippingAddress Address `json:"shipping_address"`
	BillingAddress  Address `json:"billing_address"`
}

// Address is the wire address shape.
type Address struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Address1  string `json:"address_1"`
	Address2  string `json:"address_2"`
	City      string `json:"city"`
	State     string `json:"state"`
	Postcode  string `json:"postcode"`
	Country   string `json:"country"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
}

// SelectRateRequest selects a shipping rate.
type SelectRateRequest struct {
	RateID    string `json:"rate_id"`
	PackageID *int   `json:"package_id,omitempty"`
}

// CouponRequest applies a coupon.
type CouponRequest struct {
	Code string `json:"code"`
}
