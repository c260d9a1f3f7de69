package ledger

import (
	"sort"
	"strconv"
	"strings"
)

// Signature derives the cart cache key from line items.
// Lines are ordered by product id (then variation, then quantity) so the result
// does not depend on storage order, and rendered as productId-variationId-quantity
// joined with "|". A missing variation renders as 0.
//
// Example: [{12, var 0, qty 2}, {7, var 31, qty 1}] → "7-31-1|12-0-2"
func Signature(items []LineItem) string {
	if len(items) == 0 {
		return ""
	}

	parts := make([]signaturePart, len(items))
	for i, item := range items {
		parts[i] = signaturePart{item.Product.ID, item.VariationID, item.Quantity}
	}
	sort.Slice(parts, func(i, j int) bool {
		a, b := parts[i], parts[j]
		if a.productID != b.productID {
			return a.productID < b.productID
		}
		if a.variationID != b.variationID {
			return a.variationID < b.variationID
		}
		return a.quantity < b.quantity
	})

	var sb strings.Builder
	for i, p := range parts {
		if i > 0 {
			sb.WriteByte('|')
		}
		sb.WriteString(strconv.Itoa(p.productID))
		sb.WriteByte('-')
		sb.WriteString(strconv.Itoa(p.variationID))
		sb.WriteByte('-')
		sb.WriteString(strconv.Itoa(p.quantity))
	}
	return sb.String()
}

type signaturePart struct {
	productID   int
	variationID int
	quantity    int
}
