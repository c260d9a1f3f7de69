package handler

import (
	"storefront/internal/ledger"
	"storefront/internal/model"
	"storefront/internal/storefront"
)

// CartView is the cart as rendered to the shell. Amounts are 2-decimal
// strings in major units, except *_minor fields.
type CartView struct {
	PaymentMethod  string               `json:"payment_method"`
	ItemCount      int                  `json:"item_count"`
	Items          []ItemView           `json:"items"`
	Subtotal       string               `json:"subtotal"`
	ShippingCost   string               `json:"shipping_cost"`
	CODFee         string               `json:"cod_fee"`
	Discount       string               `json:"discount"`
	Total          string               `json:"total"`
	TotalMinor     int64                `json:"total_minor"`
	CurrencyCode   string               `json:"currency_code,omitempty"`
	CurrencySymbol string               `json:"currency_symbol,omitempty"`
	Corrections    []string             `json:"corrections,omitempty"`
	ShippingState  string               `json:"shipping_state"`
	ShippingRates  []model.ShippingRate `json:"shipping_rates,omitempty"`
	Coupons        []model.Coupon       `json:"coupons,omitempty"`
	CouponFees     []model.FeeLine      `json:"coupon_fee_lines,omitempty"`
	Notices        []model.CartError    `json:"notices,omitempty"`
	Remote         bool                 `json:"remote"`
	Stale          bool                 `json:"stale"`
}

// ItemView is one ledger line.
type ItemView struct {
	ProductID   int               `json:"product_id"`
	VariationID int               `json:"variation_id,omitempty"`
	Name        string            `json:"name"`
	Quantity    int               `json:"quantity"`
	UnitPrice   string            `json:"unit_price"`
	Attributes  map[string]string `json:"attributes,omitempty"`
	Customized  bool              `json:"customized"`
}

func newCartView(q *storefront.Quote) *CartView {
	v := &CartView{
		PaymentMethod:  string(q.PaymentMethod),
		ItemCount:      q.ItemCount,
		Items:          make([]ItemView, 0, len(q.Items)),
		Subtotal:       q.Subtotal,
		ShippingCost:   q.ShippingCost,
		CODFee:         q.CODFee,
		Discount:       q.Discount,
		Total:          q.Total,
		TotalMinor:     q.TotalMinor,
		CurrencyCode:   q.CurrencyCode,
		CurrencySymbol: q.CurrencySymbol,
		ShippingState:  q.ShippingState,
		ShippingRates:  q.Rates,
		Coupons:        q.Coupons,
		CouponFees:     q.CouponFees,
		Notices:        q.Notices,
		Remote:         q.Remote,
		Stale:          q.Stale,
	}
	for _, item := range q.Items {
		v.Items = append(v.Items, newItemView(item))
	}
	for _, c := range q.Corrections {
		v.Corrections = append(v.Corrections, string(c))
	}
	return v
}

func newItemView(item ledger.LineItem) ItemView {
	return ItemView{
		ProductID:   item.Product.ID,
		VariationID: item.VariationID,
		Name:        item.Product.Name,
		Quantity:    item.Quantity,
		UnitPrice:   model.FormatMajor(item.Product.Price),
		Attributes:  item.Attributes,
		Customized:  item.Customized,
	}
}
