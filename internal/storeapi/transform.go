package storeapi

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"storefront/internal/adapter"
	"storefront/internal/model"
)

// CartToModel converts a wire cart to the domain RemoteCart.
func CartToModel(cart *CartResponse) *model.RemoteCart {
	if cart == nil {
		return nil
	}
	return &model.RemoteCart{
		Items:            transformItems(cart.Items),
		Totals:           transformTotals(&cart.Totals),
		ShippingPackages: transformPackages(cart.ShippingRates),
		Coupons:          transformCoupons(cart.Coupons),
		Fees:             transformFees(cart.Fees),
		NeedsShipping:    cart.NeedsShipping,
		Errors:           transformCartErrors(cart.Errors),
	}
}

func transformItems(items []CartItem) []model.RemoteItem {
	if len(items) == 0 {
		return nil
	}
	out := make([]model.RemoteItem, len(items))
	for i, item := range items {
		out[i] = model.RemoteItem{
			Key:         item.Key,
			ProductID:   item.ID,
			VariationID: item.VariationID,
			Name:        item.Name,
			Quantity:    item.Quantity,
			LineTotal:   item.Totals.LineTotal.Int64(),
		}
	}
	return out
}

func transformTotals(t *Totals) model.Totals {
	return model.Totals{
		CurrencyCode:   t.CurrencyCode,
		CurrencySymbol: t.CurrencySymbol,
		TotalItems:     t.TotalItems.Int64(),
		TotalFees:      t.TotalFees.Int64(),
		TotalDiscount:  t.TotalDiscount.Int64(),
		TotalShipping:  t.TotalShipping.Int64(),
		TotalTax:       t.TotalTax.Int64(),
		TotalPrice:     t.TotalPrice.Int64(),
	}
}

// transformPackages keeps package and rate order; the auto-selector relies on
// the first listed rate.
func transformPackages(packages []ShippingPkg) []model.ShippingPackage {
	if len(packages) == 0 {
		return nil
	}
	out := make([]model.ShippingPackage, len(packages))
	for i, pkg := range packages {
		rates := make([]model.ShippingRate, len(pkg.ShippingRates))
		for j, rate := range pkg.ShippingRates {
			desc := rate.Description
			if desc == "" {
				desc = rate.DeliveryTime
			}
			rates[j] = model.ShippingRate{
				RateID:      rate.RateID,
				Name:        rate.Name,
				Description: desc,
				Price:       rate.Price.Int64(),
				Selected:    rate.Selected,
				MethodID:    rate.MethodID,
			}
		}
		out[i] = model.ShippingPackage{
			PackageID: pkg.PackageID,
			Name:      pkg.Name,
			Rates:     rates,
		}
	}
	return out
}

func transformCoupons(coupons []CartCoupon) []model.Coupon {
	if len(coupons) == 0 {
		return nil
	}
	out := make([]model.Coupon, len(coupons))
	for i, c := range coupons {
		out[i] = model.Coupon{
			Code:          c.Code,
			DiscountType:  c.DiscountType,
			TotalDiscount: c.Totals.TotalDiscount.Int64(),
		}
	}
	return out
}

func transformFees(fees []Fee) []model.FeeLine {
	if len(fees) == 0 {
		return nil
	}
	out := make([]model.FeeLine, len(fees))
	for i, f := range fees {
		out[i] = model.FeeLine{ID: f.ID, Name: f.Name, Total: f.Totals.Total.Int64()}
	}
	return out
}

func transformCartErrors(errs []CartError) []model.CartError {
	if len(errs) == 0 {
		return nil
	}
	out := make([]model.CartError, len(errs))
	for i, e := range errs {
		out[i] = model.CartError{Code: e.Code, Message: e.Message}
	}
	return out
}

// PromoToModel converts the promotable coupon list.
func PromoToModel(coupons []PromoCoupon) []model.Coupon {
	out := make([]model.Coupon, 0, len(coupons))
	for _, c := range coupons {
		out = append(out, model.Coupon{
			Code:          c.Code,
			DiscountType:  c.DiscountType,
			TotalDiscount: c.Amount.Int64(),
			Description:   c.Description,
		})
	}
	return out
}

// ConfigToModel parses the app config document. Blank amounts are zero.
func ConfigToModel(cfg *ConfigResponse) (*model.AppConfig, error) {
	codFee, err := parseMajor("cod_fee", cfg.CODFee)
	if err != nil {
		return nil, err
	}
	threshold, err := parseMajor("free_shipping_threshold", cfg.FreeShippingThreshold)
	if err != nil {
		return nil, err
	}
	shipping, err := parseMajor("shipping_cost", cfg.ShippingCost)
	if err != nil {
		return nil, err
	}
	return &model.AppConfig{
		CODFee:                codFee,
		FreeShippingThreshold: threshold,
		ShippingCost:          shipping,
	}, nil
}

func parseMajor(field, s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parsing %s: %w", field, err)
	}
	return d, nil
}

// SyncItemsFromAdapter builds the minimal sync payload.
func SyncItemsFromAdapter(items []adapter.SyncItem) []SyncItem {
	out := make([]SyncItem, len(items))
	for i, item := range items {
		out[i] = SyncItem{
			ProductID:   item.ProductID,
			Quantity:    item.Quantity,
			VariationID: item.VariationID,
		}
	}
	return out
}

// AddressFromModel converts a domain address to the wire shape.
func AddressFromModel(addr model.Address) Address {
	return Address{
		FirstName: addr.FirstName,
		LastName:  addr.LastName,
		Address1:  addr.Address1,
		Address2:  addr.Address2,
		City:      addr.City,
		State:     addr.State,
		Postcode:  strings.TrimSpace(addr.Postcode),
		Country:   strings.ToUpper(addr.Country),
		Email:     addr.Email,
		Phone:     addr.Phone,
	}
}
