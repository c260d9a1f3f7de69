// Package ledger owns the local cart: the list of line items the buyer intends
// to purchase. The ledger is authoritative for what is bought; prices it derives
// are only a fallback until the remote cart answers.
package ledger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"storefront/internal/model"
	"storefront/internal/notify"
)

// DefaultPurchaseLimit caps the quantity of one line when the product sets no limit.
const DefaultPurchaseLimit = 99

// DefaultCustomizationSurcharge is added once per customized line, in major units.
var DefaultCustomizationSurcharge = decimal.NewFromInt(50)

// Product is the catalog snapshot a line item references.
type Product struct {
	ID            int             `json:"id"`
	Name          string          `json:"name"`
	Price         decimal.Decimal `json:"price"` // major units
	InStock       bool            `json:"in_stock"`
	ManageStock   bool            `json:"manage_stock"`
	StockQuantity int             `json:"stock_quantity,omitempty"`
	PurchaseLimit int             `json:"purchase_limit,omitempty"` // 0 = DefaultPurchaseLimit
}

// LineItem is one line of the local cart.
// Identity for merging is (product id, variation id, customized).
type LineItem struct {
	Product     Product           `json:"product"`
	VariationID int               `json:"variation_id,omitempty"`
	Quantity    int               `json:"quantity"`
	Attributes  map[string]string `json:"attributes,omitempty"`
	Customized  bool              `json:"customized"`
}

// Option narrows or decorates an item operation.
type Option func(*itemSpec)

type itemSpec struct {
	variationID   int
	attributes    map[string]string
	customized    bool
	customizedSet bool
}

// WithVariation selects a product variation. Omitted means no variation.
func WithVariation(id int) Option {
	return func(s *itemSpec) { s.variationID = id }
}

// WithAttributes records the selected attribute values (size, color, ...).
func WithAttributes(attrs map[string]string) Option {
	return func(s *itemSpec) { s.attributes = attrs }
}

// WithCustomized sets the customization flag explicitly.
// For RemoveItem an omitted flag matches customized and plain lines alike.
func WithCustomized(customized bool) Option {
	return func(s *itemSpec) {
		s.customized = customized
		s.customizedSet = true
	}
}

func buildSpec(opts []Option) itemSpec {
	var s itemSpec
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// matches reports whether item is addressed by productID and spec.
func (s itemSpec) matches(item LineItem, productID int) bool {
	if item.Product.ID != productID || item.VariationID != s.variationID {
		return false
	}
	return !s.customizedSet || item.Customized == s.customized
}

// Config configures a Ledger.
type Config struct {
	Store                  Store           // nil = in-memory only
	Notifier               notify.Notifier // nil = discard
	Logger                 *slog.Logger
	PurchaseLimit          int             // 0 = DefaultPurchaseLimit
	CustomizationSurcharge decimal.Decimal // zero value = DefaultCustomizationSurcharge
	OnChange               func(items []LineItem)
}

// Ledger is the local cart. All mutations are synchronous and atomic.
type Ledger struct {
	mu        sync.Mutex
	items     []LineItem
	itemCount int
	subtotal  decimal.Decimal

	store         Store
	notifier      notify.Notifier
	logger        *slog.Logger
	purchaseLimit int
	surcharge     decimal.Decimal
	onChange      func(items []LineItem)
}

// New creates an empty Ledger. Call Restore to load persisted items.
func New(cfg Config) *Ledger {
	l := &Ledger{
		store:         cfg.Store,
		notifier:      cfg.Notifier,
		logger:        cfg.Logger,
		purchaseLimit: cfg.PurchaseLimit,
		surcharge:     cfg.CustomizationSurcharge,
		onChange:      cfg.OnChange,
	}
	if l.store == nil {
		l.store = NewMemoryStore()
	}
	if l.notifier == nil {
		l.notifier = notify.Discard{}
	}
	if l.logger == nil {
		l.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if l.purchaseLimit <= 0 {
		l.purchaseLimit = DefaultPurchaseLimit
	}
	if l.surcharge.IsZero() {
		l.surcharge = DefaultCustomizationSurcharge
	}
	return l
}

// Restore replaces the ledger contents with the persisted items.
// Item count and subtotal are recomputed rather than trusted from storage.
func (l *Ledger) Restore(ctx context.Context) error {
	items, err := l.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("restoring cart: %w", err)
	}

	restored := make([]LineItem, 0, len(items))
	for _, item := range items {
		if item.Quantity < 1 || item.Product.ID == 0 {
			l.logger.WarnContext(ctx, "dropping invalid persisted line",
				slog.Int("product_id", item.Product.ID),
				slog.Int("quantity", item.Quantity))
			continue
		}
		restored = append(restored, item)
	}

	l.mu.Lock()
	l.items = restored
	l.recomputeLocked()
	snapshot := l.snapshotLocked()
	l.mu.Unlock()

	l.logger.DebugContext(ctx, "cart restored", slog.Int("lines", len(snapshot)))
	return nil
}

// AddItem adds qty of product, merging into an existing line with the same identity.
// Returns a stock or purchase limit error and leaves the ledger unchanged when
// the resulting quantity is not allowed.
func (l *Ledger) AddItem(ctx context.Context, product Product, qty int, opts ...Option) error {
	spec := buildSpec(opts)
	if qty < 1 {
		err := model.NewValidationError("quantity", "must be at least 1")
		notify.Error(ctx, l.notifier, err.Message)
		return err
	}

	l.mu.Lock()
	idx := l.indexLocked(product.ID, spec.variationID, spec.customized)
	current := 0
	if idx >= 0 {
		current = l.items[idx].Quantity
	}
	if err := l.checkLimits(product, current+qty); err != nil {
		l.mu.Unlock()
		notify.Error(ctx, l.notifier, err.Message)
		return err
	}

	if idx >= 0 {
		l.items[idx].Quantity = current + qty
		l.items[idx].Product = product
		if spec.attributes != nil {
			l.items[idx].Attributes = copyAttrs(spec.attributes)
		}
	} else {
		l.items = append(l.items, LineItem{
			Product:     product,
			VariationID: spec.variationID,
			Quantity:    qty,
			Attributes:  copyAttrs(spec.attributes),
			Customized:  spec.customized,
		})
	}
	l.recomputeLocked()
	snapshot := l.snapshotLocked()
	l.mu.Unlock()

	l.persist(ctx, snapshot)
	notify.Success(ctx, l.notifier, addedMessage(product.Name, spec))
	return nil
}

// RemoveItem removes every line matching productID and variation.
// The customization flag only narrows the match when supplied with WithCustomized.
func (l *Ledger) RemoveItem(ctx context.Context, productID int, opts ...Option) {
	spec := buildSpec(opts)

	l.mu.Lock()
	kept := l.items[:0:0]
	removed := 0
	for _, item := range l.items {
		if spec.matches(item, productID) {
			removed++
			continue
		}
		kept = append(kept, item)
	}
	if removed == 0 {
		l.mu.Unlock()
		return
	}
	l.items = kept
	l.recomputeLocked()
	snapshot := l.snapshotLocked()
	l.mu.Unlock()

	l.persist(ctx, snapshot)
	notify.Success(ctx, l.notifier, "Item removed from cart")
}

// UpdateQuantity sets the quantity of the matching line. A quantity of zero or
// less removes it. Limits are re-validated exactly as AddItem does.
func (l *Ledger) UpdateQuantity(ctx context.Context, productID, qty int, opts ...Option) error {
	if qty <= 0 {
		l.RemoveItem(ctx, productID, opts...)
		return nil
	}
	spec := buildSpec(opts)

	l.mu.Lock()
	idx := l.indexLocked(productID, spec.variationID, spec.customized)
	if idx < 0 {
		l.mu.Unlock()
		return model.NewNotFoundError("cart item")
	}
	product := l.items[idx].Product
	if err := l.checkLimits(product, qty); err != nil {
		l.mu.Unlock()
		notify.Error(ctx, l.notifier, err.Message)
		return err
	}
	if l.items[idx].Quantity == qty {
		l.mu.Unlock()
		return nil
	}
	l.items[idx].Quantity = qty
	l.recomputeLocked()
	snapshot := l.snapshotLocked()
	l.mu.Unlock()

	l.persist(ctx, snapshot)
	notify.Success(ctx, l.notifier, fmt.Sprintf("Updated %s quantity to %d", product.Name, qty))
	return nil
}

// Clear empties the ledger unconditionally.
func (l *Ledger) Clear(ctx context.Context) {
	l.mu.Lock()
	l.items = nil
	l.recomputeLocked()
	l.mu.Unlock()

	l.persist(ctx, nil)
	notify.Success(ctx, l.notifier, "Cart cleared")
}

// Quantity returns the total quantity of lines matching productID and opts.
func (l *Ledger) Quantity(productID int, opts ...Option) int {
	spec := buildSpec(opts)
	l.mu.Lock()
	defer l.mu.Unlock()
	total := 0
	for _, item := range l.items {
		if spec.matches(item, productID) {
			total += item.Quantity
		}
	}
	return total
}

// Contains reports whether any line matches productID and opts.
func (l *Ledger) Contains(productID int, opts ...Option) bool {
	return l.Quantity(productID, opts...) > 0
}

// Items returns a copy of the line items in storage order.
func (l *Ledger) Items() []LineItem {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snapshotLocked()
}

// ItemCount returns the sum of line quantities.
func (l *Ledger) ItemCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.itemCount
}

// Subtotal returns the local subtotal in major units, including
// customization surcharges. Only a fallback for pricing.
func (l *Ledger) Subtotal() decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.subtotal
}

// Signature returns the cart signature of the current contents.
func (l *Ledger) Signature() string {
	return Signature(l.Items())
}

func (l *Ledger) checkLimits(product Product, total int) *model.APIError {
	if !product.InStock {
		return model.NewStockLimitError(product.Name, 0)
	}
	if product.ManageStock && total > product.StockQuantity {
		return model.NewStockLimitError(product.Name, product.StockQuantity)
	}
	limit := product.PurchaseLimit
	if limit <= 0 {
		limit = l.purchaseLimit
	}
	if total > limit {
		return model.NewPurchaseLimitError(product.Name, limit)
	}
	return nil
}

func (l *Ledger) indexLocked(productID, variationID int, customized bool) int {
	for i, item := range l.items {
		if item.Product.ID == productID && item.VariationID == variationID && item.Customized == customized {
			return i
		}
	}
	return -1
}

func (l *Ledger) recomputeLocked() {
	count := 0
	subtotal := decimal.Zero
	for _, item := range l.items {
		count += item.Quantity
		subtotal = subtotal.Add(item.Product.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
		if item.Customized {
			subtotal = subtotal.Add(l.surcharge)
		}
	}
	l.itemCount = count
	l.subtotal = subtotal
}

func (l *Ledger) snapshotLocked() []LineItem {
	out := make([]LineItem, len(l.items))
	for i, item := range l.items {
		item.Attributes = copyAttrs(item.Attributes)
		out[i] = item
	}
	return out
}

// persist saves the snapshot and fires OnChange. Persistence failures are
// logged; the in-memory ledger stays authoritative for the session.
func (l *Ledger) persist(ctx context.Context, snapshot []LineItem) {
	if err := l.store.Save(ctx, snapshot); err != nil {
		l.logger.WarnContext(ctx, "persisting cart failed", slog.String("error", err.Error()))
	}
	if l.onChange != nil {
		l.onChange(snapshot)
	}
}

func copyAttrs(attrs map[string]string) map[string]string {
	if attrs == nil {
		return nil
	}
	out := make(map[string]string, len(attrs))
	for k, v := range attrs {
		out[k] = v
	}
	return out
}

// addedMessage names the product and its selected options,
// e.g. "Added Kurta (color: red, size: M, customized) to cart".
func addedMessage(name string, spec itemSpec) string {
	keys := make([]string, 0, len(spec.attributes))
	for k := range spec.attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var parts []string
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, spec.attributes[k]))
	}
	if spec.customized {
		parts = append(parts, "customized")
	}
	if len(parts) == 0 {
		return fmt.Sprintf("Added %s to cart", name)
	}
	return fmt.Sprintf("Added %s (%s) to cart", name, strings.Join(parts, ", "))
}
