// Package reconcile compares the local ledger with the remote cart after a sync.
// The ledger stays the source of truth for what is bought; a drift report only
// tells the buyer where the backend disagreed (capped stock, dropped lines,
// coupons that stopped applying).
package reconcile

import (
	"cmp"
	"fmt"
	"slices"
)

// LineItemDiff describes how the remote cart differs from the ledger.
type LineItemDiff struct {
	Missing []ItemDrift // In the ledger, absent remotely
	Changed []ItemDrift // Present on both sides with different quantities
	Extra   []ItemDrift // Present remotely, absent from the ledger
}

// ItemDrift is one disagreeing line.
type ItemDrift struct {
	ProductID   int
	VariationID int
	Name        string
	Want        int // Ledger quantity
	Got         int // Remote quantity
}

// IsEmpty returns true if both sides agree.
func (d *LineItemDiff) IsEmpty() bool {
	return len(d.Missing) == 0 && len(d.Changed) == 0 && len(d.Extra) == 0
}

// Messages renders the diff as buyer-facing sentences, in a stable order.
func (d *LineItemDiff) Messages() []string {
	var out []string
	for _, item := range d.Missing {
		out = append(out, fmt.Sprintf("%s could not be added to your cart", item.Name))
	}
	for _, item := range d.Changed {
		out = append(out, fmt.Sprintf("%s: only %d of %d could be reserved", item.Name, item.Got, item.Want))
	}
	for _, item := range d.Extra {
		out = append(out, fmt.Sprintf("%s was added by the store", item.Name))
	}
	return out
}

// CurrentItem is a line as mirrored by the remote cart.
type CurrentItem struct {
	ProductID   int
	VariationID int
	Name        string
	Quantity    int
}

// DesiredItem is a ledger line.
type DesiredItem struct {
	ProductID   int
	VariationID int
	Name        string
	Quantity    int
}

type lineKey struct {
	productID   int
	variationID int
}

type aggregate struct {
	name     string
	quantity int
}

// DiffLineItems computes the drift between the remote view and the ledger.
// Lines are matched by (product id, variation id); quantities of lines sharing
// a key are summed first, since customized and plain lines sync as one.
func DiffLineItems(current []CurrentItem, desired []DesiredItem) *LineItemDiff {
	diff := &LineItemDiff{}

	currentByKey := make(map[lineKey]*aggregate)
	for _, item := range current {
		add(currentByKey, lineKey{item.ProductID, item.VariationID}, item.Name, item.Quantity)
	}
	desiredByKey := make(map[lineKey]*aggregate)
	for _, item := range desired {
		add(desiredByKey, lineKey{item.ProductID, item.VariationID}, item.Name, item.Quantity)
	}

	for key, want := range desiredByKey {
		got, exists := currentByKey[key]
		switch {
		case !exists:
			diff.Missing = append(diff.Missing, drift(key, want.name, want.quantity, 0))
		case got.quantity != want.quantity:
			diff.Changed = append(diff.Changed, drift(key, want.name, want.quantity, got.quantity))
		}
	}
	for key, got := range currentByKey {
		if _, exists := desiredByKey[key]; !exists {
			diff.Extra = append(diff.Extra, drift(key, got.name, 0, got.quantity))
		}
	}

	sortDrift(diff.Missing)
	sortDrift(diff.Changed)
	sortDrift(diff.Extra)
	return diff
}

func add(m map[lineKey]*aggregate, key lineKey, name string, qty int) {
	if a, ok := m[key]; ok {
		a.quantity += qty
		return
	}
	m[key] = &aggregate{name: name, quantity: qty}
}

func drift(key lineKey, name string, want, got int) ItemDrift {
	if name == "" {
		name = fmt.Sprintf("Product %d", key.productID)
	}
	return ItemDrift{
		ProductID:   key.productID,
		VariationID: key.variationID,
		Name:        name,
		Want:        want,
		Got:         got,
	}
}

func sortDrift(items []ItemDrift) {
	slices.SortFunc(items, func(a, b ItemDrift) int {
		if c := cmp.Compare(a.ProductID, b.ProductID); c != 0 {
			return c
		}
		return cmp.Compare(a.VariationID, b.VariationID)
	})
}

// DiscountDiff describes coupon codes that appeared or disappeared between two
// remote cart snapshots.
type DiscountDiff struct {
	Added   []string // Codes in current but not previous
	Dropped []string // Codes in previous but not current
}

// IsEmpty returns true if the coupon sets match.
func (d *DiscountDiff) IsEmpty() bool {
	return len(d.Added) == 0 && len(d.Dropped) == 0
}

// DiffDiscounts computes the set difference between coupon codes, sorted.
func DiffDiscounts(previousCodes, currentCodes []string) *DiscountDiff {
	diff := &DiscountDiff{}

	previousSet := make(map[string]bool)
	for _, code := range previousCodes {
		previousSet[code] = true
	}
	currentSet := make(map[string]bool)
	for _, code := range currentCodes {
		currentSet[code] = true
	}

	for code := range currentSet {
		if !previousSet[code] {
			diff.Added = append(diff.Added, code)
		}
	}
	for code := range previousSet {
		if !currentSet[code] {
			diff.Dropped = append(diff.Dropped, code)
		}
	}

	slices.Sort(diff.Added)
	slices.Sort(diff.Dropped)
	return diff
}
