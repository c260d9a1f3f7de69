// Package pricing derives the shipping cost, COD fee and grand total shown to
// the buyer from the remote cart, the local subtotal and fallback constants.
//
// The remote cart is authoritative once present, but it lags behind the
// buyer: a payment-method switch or an address edit takes a round trip to be
// reflected. The grand total therefore applies three lag corrections on top
// of the remote total. Every input has a fallback, so nothing here fails.
package pricing

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"storefront/internal/model"
)

// codFeeName is matched case-insensitively against remote fee line names.
const codFeeName = "cod"

// Input is everything the engine reads.
type Input struct {
	Remote        *model.RemoteCart    // nil until the backend has answered
	LocalSubtotal decimal.Decimal      // ledger subtotal, major units
	Rates         []model.ShippingRate // usually Remote.Rates()
	PaymentMethod model.PaymentMethod
	Config        model.AppConfig // fallback constants, major units
}

// Correction names a lag heuristic that changed the remote total.
type Correction string

const (
	// MissingCODFee: COD selected, remote has not added the fee yet.
	MissingCODFee Correction = "missing_cod_fee"
	// StaleCODFee: card selected, remote still carries the COD fee.
	StaleCODFee Correction = "stale_cod_fee"
	// MissingShipping: remote has not applied shipping yet.
	MissingShipping Correction = "missing_shipping"
)

// Breakdown is the rendered price summary. Amounts are 2-decimal strings in
// major units.
type Breakdown struct {
	Subtotal       string       `json:"subtotal"`
	ShippingCost   string       `json:"shipping_cost"`
	CODFee         string       `json:"cod_fee"`
	Discount       string       `json:"discount"`
	Total          string       `json:"total"`
	TotalMinor     int64        `json:"total_minor"`
	CurrencyCode   string       `json:"currency_code,omitempty"`
	CurrencySymbol string       `json:"currency_symbol,omitempty"`
	Remote         bool         `json:"remote"`
	Corrections    []Correction `json:"corrections,omitempty"`
}

// EffectiveSubtotal is the remote items total when a remote cart exists,
// else the local subtotal. Major units.
func EffectiveSubtotal(in Input) decimal.Decimal {
	if in.Remote != nil {
		return model.MajorUnits(in.Remote.Totals.TotalItems)
	}
	return in.LocalSubtotal
}

// ShippingCost returns the shipping cost in major units:
// free above the threshold, else the selected rate, else the first rate,
// else the configured default.
func ShippingCost(in Input) decimal.Decimal {
	if EffectiveSubtotal(in).GreaterThanOrEqual(in.Config.FreeShippingThreshold) {
		return decimal.Zero
	}
	for _, rate := range in.Rates {
		if rate.Selected {
			return model.MajorUnits(rate.Price)
		}
	}
	if len(in.Rates) > 0 {
		return model.MajorUnits(in.Rates[0].Price)
	}
	return in.Config.ShippingCost
}

// CODFee predicts the COD fee in minor units: the remote COD fee line, else
// the remote fee total (which may include non-COD fees), else the configured
// fee below the free-shipping threshold.
func CODFee(in Input) int64 {
	if in.Remote != nil {
		if fee, ok := in.Remote.FeeNamed(codFeeName); ok {
			return fee.Total
		}
		if in.Remote.Totals.TotalFees > 0 {
			return in.Remote.Totals.TotalFees
		}
	}
	if EffectiveSubtotal(in).LessThan(in.Config.FreeShippingThreshold) {
		return model.MinorUnits(in.Config.CODFee)
	}
	return 0
}

// GrandTotal returns the formatted total.
func GrandTotal(in Input) string {
	total, _ := grandTotalMinor(in)
	return model.FormatMinor(total)
}

// grandTotalMinor computes the total in minor units and the corrections that
// fired. The three corrections are independent and may all apply.
func grandTotalMinor(in Input) (int64, []Correction) {
	shipping := ShippingCost(in)
	codFee := CODFee(in)

	if in.Remote == nil {
		total := model.MinorUnits(in.LocalSubtotal) + model.MinorUnits(shipping)
		if in.PaymentMethod == model.PaymentCOD {
			total += codFee
		}
		return total, nil
	}

	totals := in.Remote.Totals
	total := totals.TotalPrice
	var corrections []Correction

	if totals.TotalFees <= 0 && in.PaymentMethod == model.PaymentCOD && codFee > 0 {
		total += codFee
		corrections = append(corrections, MissingCODFee)
	}
	if in.PaymentMethod == model.PaymentCard && totals.TotalFees > 0 {
		if fee, ok := in.Remote.FeeNamed(codFeeName); ok {
			total -= fee.Total
			corrections = append(corrections, StaleCODFee)
		}
	}
	if totals.TotalShipping <= 0 && shipping.IsPositive() {
		total += model.MinorUnits(shipping)
		corrections = append(corrections, MissingShipping)
	}
	return total, corrections
}

// Compute returns the full breakdown for rendering.
func Compute(in Input) Breakdown {
	total, corrections := grandTotalMinor(in)

	var codFee int64
	if in.PaymentMethod == model.PaymentCOD {
		codFee = CODFee(in)
	}
	var discount int64
	b := Breakdown{
		Subtotal:     model.FormatMajor(EffectiveSubtotal(in)),
		ShippingCost: model.FormatMajor(ShippingCost(in)),
		CODFee:       model.FormatMinor(codFee),
		Total:        model.FormatMinor(total),
		TotalMinor:   total,
		Remote:       in.Remote != nil,
		Corrections:  corrections,
	}
	if in.Remote != nil {
		discount = in.Remote.Totals.TotalDiscount
		b.CurrencyCode = in.Remote.Totals.CurrencyCode
		b.CurrencySymbol = in.Remote.Totals.CurrencySymbol
	}
	b.Discount = model.FormatMinor(discount)
	return b
}

// CouponFeeLines synthesizes one negative fee line per applied coupon, for
// order payloads that cannot carry coupon totals directly.
func CouponFeeLines(coupons []model.Coupon) []model.FeeLine {
	if len(coupons) == 0 {
		return nil
	}
	lines := make([]model.FeeLine, 0, len(coupons))
	for _, c := range coupons {
		lines = append(lines, model.FeeLine{
			ID:    "coupon-" + strings.ToLower(c.Code),
			Name:  fmt.Sprintf("Discount (%s)", c.Code),
			Total: -c.TotalDiscount,
		})
	}
	return lines
}
