package mockstore

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"storefront/internal/model"
	"storefront/internal/storeapi"
)

// Product is a catalog entry. Price is minor units.
type Product struct {
	ID    int
	Name  string
	Price int64
}

// Promotion is an applicable coupon. Percent coupons take Amount as a whole
// percentage; fixed_cart coupons take it as minor units.
type Promotion struct {
	Code         string
	DiscountType string
	Amount       int64
	Description  string
	Promoted     bool
}

const (
	DiscountPercent   = "percent"
	DiscountFixedCart = "fixed_cart"
)

// DefaultCatalog is served when Config.Catalog is empty.
func DefaultCatalog() []Product {
	return []Product{
		{ID: 101, Name: "Cotton Kurta", Price: 49900},
		{ID: 102, Name: "Silk Dupatta", Price: 35000},
		{ID: 103, Name: "Block Print Saree", Price: 129900},
	}
}

// DefaultPromotions is served when Config.Promotions is empty.
func DefaultPromotions() []Promotion {
	return []Promotion{
		{Code: "WELCOME10", DiscountType: DiscountPercent, Amount: 10, Description: "10% off your first order", Promoted: true},
		{Code: "FLAT100", DiscountType: DiscountFixedCart, Amount: 10000, Description: "₹100 off"},
	}
}

// cart is one Cart-Token session.
type cart struct {
	items         []storeapi.SyncItem
	address       *storeapi.Address
	selectedRate  string
	coupons       []string
	paymentMethod model.PaymentMethod
}

// rate is an offered shipping option before the free-shipping rule.
type rate struct {
	id, name, methodID, delivery string
	price                        int64
}

// pricing holds the store's pricing constants, minor units.
type pricing struct {
	codFee       int64
	freeShipping int64
	rates        []rate
	currencyCode string
	symbol       string
}

func (p pricing) subtotal(c *cart, catalog map[int]Product) int64 {
	var total int64
	for _, item := range c.items {
		total += int64(item.Quantity) * catalog[item.ProductID].Price
	}
	return total
}

// discounts returns the discount granted by each applied coupon, in order.
func discounts(c *cart, promos map[string]Promotion, subtotal int64) []int64 {
	out := make([]int64, len(c.coupons))
	remaining := subtotal
	for i, code := range c.coupons {
		promo := promos[code]
		var d int64
		switch promo.DiscountType {
		case DiscountPercent:
			d = subtotal * promo.Amount / 100
		default:
			d = promo.Amount
		}
		if d > remaining {
			d = remaining
		}
		remaining -= d
		out[i] = d
	}
	return out
}

// offered returns the shipping rates for c. Rates appear once a usable
// postcode is known; the first rate is free at or above the threshold.
func (p pricing) offered(c *cart, subtotal int64) []storeapi.ShippingRate {
	if c.address == nil || strings.TrimSpace(c.address.Postcode) == "" || len(c.items) == 0 {
		return nil
	}
	rates := make([]storeapi.ShippingRate, 0, len(p.rates))
	for i, r := range p.rates {
		price := r.price
		name := r.name
		if i == 0 && subtotal >= p.freeShipping {
			price = 0
			name = "Free shipping"
		}
		rates = append(rates, storeapi.ShippingRate{
			RateID:       r.id,
			Name:         name,
			DeliveryTime: r.delivery,
			Price:        model.Minor(price),
			MethodID:     r.methodID,
			Selected:     r.id == c.selectedRate,
		})
	}
	return rates
}

func (p pricing) hasRate(id string) bool {
	for _, r := range p.rates {
		if r.id == id {
			return true
		}
	}
	return false
}

// render builds the wire cart for c.
func (p pricing) render(c *cart, catalog map[int]Product, promos map[string]Promotion) storeapi.CartResponse {
	resp := storeapi.CartResponse{
		Items:         []storeapi.CartItem{},
		NeedsShipping: len(c.items) > 0,
	}

	subtotal := p.subtotal(c, catalog)
	for _, item := range c.items {
		line := int64(item.Quantity) * catalog[item.ProductID].Price
		resp.Items = append(resp.Items, storeapi.CartItem{
			Key:         itemKey(item),
			ID:          item.ProductID,
			VariationID: item.VariationID,
			Name:        catalog[item.ProductID].Name,
			Quantity:    item.Quantity,
			Totals: storeapi.CartItemTotals{
				LineSubtotal: model.Minor(line),
				LineTotal:    model.Minor(line),
			},
		})
	}

	var discount int64
	for i, d := range discounts(c, promos, subtotal) {
		code := c.coupons[i]
		resp.Coupons = append(resp.Coupons, storeapi.CartCoupon{
			Code:         strings.ToLower(code),
			DiscountType: promos[code].DiscountType,
			Totals:       storeapi.CouponTotals{TotalDiscount: model.Minor(d)},
		})
		discount += d
	}

	var shipping int64
	if rates := p.offered(c, subtotal); len(rates) > 0 {
		for _, r := range rates {
			if r.Selected {
				shipping = r.Price.Int64()
			}
		}
		resp.ShippingRates = []storeapi.ShippingPkg{{PackageID: 0, Name: "Shipment 1", ShippingRates: rates}}
	}

	var fees int64
	if c.paymentMethod == model.PaymentCOD && len(c.items) > 0 && subtotal < p.freeShipping {
		resp.Fees = append(resp.Fees, storeapi.Fee{
			ID:     "cod-fee",
			Name:   "COD Fee",
			Totals: storeapi.FeeTotals{Total: model.Minor(p.codFee)},
		})
		fees = p.codFee
	}

	resp.Totals = storeapi.Totals{
		CurrencyCode:      p.currencyCode,
		CurrencySymbol:    p.symbol,
		CurrencyMinorUnit: 2,
		TotalItems:        model.Minor(subtotal),
		TotalFees:         model.Minor(fees),
		TotalDiscount:     model.Minor(discount),
		TotalShipping:     model.Minor(shipping),
		TotalPrice:        model.Minor(subtotal - discount + shipping + fees),
	}
	return resp
}

// merge collapses duplicate product/variation lines, keeping first-seen order.
func merge(items []storeapi.SyncItem) []storeapi.SyncItem {
	var out []storeapi.SyncItem
	index := make(map[string]int)
	for _, item := range items {
		if item.Quantity <= 0 {
			continue
		}
		key := itemKey(item)
		if i, ok := index[key]; ok {
			out[i].Quantity += item.Quantity
			continue
		}
		index[key] = len(out)
		out = append(out, item)
	}
	return out
}

func itemKey(item storeapi.SyncItem) string {
	return strconv.Itoa(item.ProductID) + ":" + strconv.Itoa(item.VariationID)
}

func hasCoupon(c *cart, code string) (int, bool) {
	for i, applied := range c.coupons {
		if strings.EqualFold(applied, code) {
			return i, true
		}
	}
	return -1, false
}

func promoted(promos map[string]Promotion) []storeapi.PromoCoupon {
	codes := make([]string, 0, len(promos))
	for code, p := range promos {
		if p.Promoted {
			codes = append(codes, code)
		}
	}
	sort.Strings(codes)

	out := make([]storeapi.PromoCoupon, 0, len(codes))
	for _, code := range codes {
		p := promos[code]
		out = append(out, storeapi.PromoCoupon{
			Code:         p.Code,
			DiscountType: p.DiscountType,
			Amount:       model.Minor(p.Amount),
			Description:  p.Description,
		})
	}
	return out
}

// escaped mimics the backend's HTML-escaped notices.
func escaped(format string, args ...any) string {
	msg := fmt.Sprintf(format, args...)
	return strings.ReplaceAll(msg, `"`, "&quot;")
}
