package model

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// PaymentMethod is the checkout payment option the buyer has picked.
type PaymentMethod string

const (
	PaymentCOD  PaymentMethod = "cod"
	PaymentCard PaymentMethod = "card"
)

// ParsePaymentMethod normalizes a user-supplied payment method.
func ParsePaymentMethod(s string) (PaymentMethod, error) {
	switch PaymentMethod(strings.ToLower(strings.TrimSpace(s))) {
	case PaymentCOD:
		return PaymentCOD, nil
	case PaymentCard:
		return PaymentCard, nil
	default:
		return "", NewValidationError("payment_method", fmt.Sprintf("unsupported method %q", s))
	}
}

// RemoteCart is the pricing backend's view of the cart.
// Authoritative for price once present. Values are treated as immutable after
// they enter the cart cache; mutations produce a new RemoteCart.
type RemoteCart struct {
	Items            []RemoteItem      `json:"items"`
	Totals           Totals            `json:"totals"`
	ShippingPackages []ShippingPackage `json:"shipping_rates"`
	Coupons          []Coupon          `json:"coupons"`
	Fees             []FeeLine         `json:"fees"`
	NeedsShipping    bool              `json:"needs_shipping"`
	Errors           []CartError       `json:"errors,omitempty"`
}

// Totals holds the remote cart totals. All amounts are minor units.
type Totals struct {
	CurrencyCode   string `json:"currency_code"`
	CurrencySymbol string `json:"currency_symbol"`
	TotalItems     int64  `json:"total_items"`
	TotalFees      int64  `json:"total_fees"`
	TotalDiscount  int64  `json:"total_discount"`
	TotalShipping  int64  `json:"total_shipping"`
	TotalTax       int64  `json:"total_tax"`
	TotalPrice     int64  `json:"total_price"`
}

// RemoteItem is a line item as mirrored by the pricing backend.
type RemoteItem struct {
	Key         string `json:"key"`
	ProductID   int    `json:"id"`
	VariationID int    `json:"variation_id,omitempty"`
	Name        string `json:"name"`
	Quantity    int    `json:"quantity"`
	LineTotal   int64  `json:"line_total"`
}

// ShippingPackage groups the rates offered for one shipment.
type ShippingPackage struct {
	PackageID int            `json:"package_id"`
	Name      string         `json:"name"`
	Rates     []ShippingRate `json:"shipping_rates"`
}

// ShippingRate is one selectable shipping option. Price is minor units.
type ShippingRate struct {
	RateID      string `json:"rate_id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Price       int64  `json:"price"`
	Selected    bool   `json:"selected"`
	MethodID    string `json:"method_id"`
}

// Coupon is an applied (or promotable) discount code. TotalDiscount is minor units.
type Coupon struct {
	Code          string `json:"code"`
	DiscountType  string `json:"discount_type"`
	TotalDiscount int64  `json:"total_discount"`
	Description   string `json:"description,omitempty"`
}

// FeeLine is an additional charge on the cart (COD surcharge, packaging, ...).
// Total is minor units and may be negative for synthesized discount lines.
type FeeLine struct {
	ID    string `json:"id,omitempty"`
	Name  string `json:"name"`
	Total int64  `json:"total"`
}

// CartError is a notice attached to the remote cart (e.g. an item went out of stock).
type CartError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Rates flattens the shipping rates of every package, preserving order.
func (c *RemoteCart) Rates() []ShippingRate {
	if c == nil {
		return nil
	}
	var rates []ShippingRate
	for _, pkg := range c.ShippingPackages {
		rates = append(rates, pkg.Rates...)
	}
	return rates
}

// SelectedRate returns the first rate flagged as selected.
func (c *RemoteCart) SelectedRate() (ShippingRate, bool) {
	for _, rate := range c.Rates() {
		if rate.Selected {
			return rate, true
		}
	}
	return ShippingRate{}, false
}

// FeeNamed returns the first fee line whose name contains substr, case-insensitively.
func (c *RemoteCart) FeeNamed(substr string) (FeeLine, bool) {
	if c == nil {
		return FeeLine{}, false
	}
	needle := strings.ToLower(substr)
	for _, fee := range c.Fees {
		if strings.Contains(strings.ToLower(fee.Name), needle) {
			return fee, true
		}
	}
	return FeeLine{}, false
}

// Address is a shipping or billing address.
// The validate tags are the strict pre-submission schema.
type Address struct {
	FirstName string `json:"first_name" validate:"required"`
	LastName  string `json:"last_name" validate:"required"`
	Address1  string `json:"address_1" validate:"required"`
	Address2  string `json:"address_2,omitempty"`
	City      string `json:"city" validate:"required"`
	State     string `json:"state" validate:"required"`
	Postcode  string `json:"postcode" validate:"required,min=3"`
	Country   string `json:"country" validate:"required"`
	Email     string `json:"email,omitempty" validate:"omitempty,email"`
	Phone     string `json:"phone" validate:"required"`
}

// AppConfig holds the storefront's fallback pricing constants in major units.
// Only used when the remote cart cannot answer.
type AppConfig struct {
	CODFee                decimal.Decimal `json:"cod_fee"`
	FreeShippingThreshold decimal.Decimal `json:"free_shipping_threshold"`
	ShippingCost          decimal.Decimal `json:"shipping_cost"`
}
