package cartsync

import (
	"context"
	"io"
	"log/slog"

	"golang.org/x/sync/singleflight"

	"storefront/internal/adapter"
	"storefront/internal/ledger"
	"storefront/internal/model"
	"storefront/internal/notify"
	"storefront/internal/reconcile"
)

// Synchronizer pushes the ledger to the remote session and caches the result.
// Concurrent calls for the same key share one network request.
type Synchronizer struct {
	backend  adapter.Backend
	cache    *Cache
	notifier notify.Notifier
	logger   *slog.Logger
	group    singleflight.Group
}

// SyncConfig configures a Synchronizer.
type SyncConfig struct {
	Backend  adapter.Backend
	Cache    *Cache
	Notifier notify.Notifier // drift warnings; nil = discard
	Logger   *slog.Logger
}

// NewSynchronizer creates a Synchronizer.
func NewSynchronizer(cfg SyncConfig) *Synchronizer {
	s := &Synchronizer{
		backend:  cfg.Backend,
		cache:    cfg.Cache,
		notifier: cfg.Notifier,
		logger:   cfg.Logger,
	}
	if s.cache == nil {
		s.cache = NewCache()
	}
	if s.notifier == nil {
		s.notifier = notify.Discard{}
	}
	if s.logger == nil {
		s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return s
}

// Cache returns the cache the synchronizer writes to.
func (s *Synchronizer) Cache() *Cache {
	return s.cache
}

// Sync returns the remote cart for items under the payment hint.
//
// A fresh cached entry is returned as is. A stale one is returned immediately
// while a background refresh replaces it. Without an entry the call waits for
// the (shared) network request. An empty ledger only fetches the remote cart;
// otherwise the minimal item payload is pushed.
//
// Cancelling ctx abandons the wait, not the request: a late response still
// lands in the cache.
func (s *Synchronizer) Sync(ctx context.Context, items []ledger.LineItem, hint model.PaymentMethod) (*model.RemoteCart, error) {
	key := Key{Signature: ledger.Signature(items), PaymentMethod: hint}
	s.cache.SetCurrent(key)

	if cart, fresh, ok := s.cache.Get(key); ok {
		if !fresh {
			s.revalidate(ctx, key, items)
		}
		return cart, nil
	}

	ch := s.group.DoChan(flightKey(key), func() (any, error) {
		return s.fetch(context.WithoutCancel(ctx), key, items)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*model.RemoteCart), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Refresh forces a network round trip for items, sharing any in-flight request.
func (s *Synchronizer) Refresh(ctx context.Context, items []ledger.LineItem, hint model.PaymentMethod) (*model.RemoteCart, error) {
	key := Key{Signature: ledger.Signature(items), PaymentMethod: hint}
	s.cache.SetCurrent(key)

	v, err, _ := s.group.Do(flightKey(key), func() (any, error) {
		return s.fetch(context.WithoutCancel(ctx), key, items)
	})
	if err != nil {
		return nil, err
	}
	return v.(*model.RemoteCart), nil
}

func (s *Synchronizer) revalidate(ctx context.Context, key Key, items []ledger.LineItem) {
	bg := context.WithoutCancel(ctx)
	ch := s.group.DoChan(flightKey(key), func() (any, error) {
		return s.fetch(bg, key, items)
	})
	go func() {
		if res := <-ch; res.Err != nil {
			s.logger.WarnContext(bg, "background cart revalidation failed",
				slog.String("signature", key.Signature),
				slog.String("error", res.Err.Error()))
		}
	}()
}

func (s *Synchronizer) fetch(ctx context.Context, key Key, items []ledger.LineItem) (*model.RemoteCart, error) {
	since := s.cache.Generation()
	previous := s.cache.LastWritten()

	var (
		cart *model.RemoteCart
		err  error
	)
	if len(items) == 0 {
		cart, err = s.backend.GetCart(ctx, key.PaymentMethod)
	} else {
		cart, err = s.backend.SyncItems(ctx, SyncPayload(items), key.PaymentMethod)
	}
	if err != nil {
		s.logger.WarnContext(ctx, "cart sync failed",
			slog.Int("lines", len(items)),
			slog.String("error", err.Error()))
		return nil, err
	}
	if cart == nil {
		cart = &model.RemoteCart{}
	}

	if !s.cache.PutIfNewer(key, cart, since) {
		s.logger.DebugContext(ctx, "discarding superseded cart response",
			slog.String("signature", key.Signature))
		// Waiters get the write that won, not the discarded response
		if winner, _, ok := s.cache.Get(key); ok {
			return winner, nil
		}
		return cart, nil
	}

	s.reportDrift(ctx, items, cart)
	if previous != nil {
		s.reportDroppedCoupons(ctx, previous, cart)
	}
	return cart, nil
}

// reportDrift warns when the backend did not take the ledger as pushed.
// The ledger is left untouched.
func (s *Synchronizer) reportDrift(ctx context.Context, items []ledger.LineItem, cart *model.RemoteCart) {
	if len(items) == 0 {
		return
	}
	current := make([]reconcile.CurrentItem, len(cart.Items))
	for i, item := range cart.Items {
		current[i] = reconcile.CurrentItem{
			ProductID:   item.ProductID,
			VariationID: item.VariationID,
			Name:        item.Name,
			Quantity:    item.Quantity,
		}
	}
	desired := make([]reconcile.DesiredItem, len(items))
	for i, item := range items {
		desired[i] = reconcile.DesiredItem{
			ProductID:   item.Product.ID,
			VariationID: item.VariationID,
			Name:        item.Product.Name,
			Quantity:    item.Quantity,
		}
	}

	diff := reconcile.DiffLineItems(current, desired)
	if diff.IsEmpty() {
		return
	}
	s.logger.WarnContext(ctx, "remote cart drifted from ledger",
		slog.Int("missing", len(diff.Missing)),
		slog.Int("changed", len(diff.Changed)),
		slog.Int("extra", len(diff.Extra)))
	for _, msg := range diff.Messages() {
		notify.Warning(ctx, s.notifier, msg)
	}
}

func (s *Synchronizer) reportDroppedCoupons(ctx context.Context, previous, cart *model.RemoteCart) {
	diff := reconcile.DiffDiscounts(couponCodes(previous), couponCodes(cart))
	for _, code := range diff.Dropped {
		notify.Warning(ctx, s.notifier, "Coupon "+code+" no longer applies to your cart")
	}
}

// SyncPayload builds the minimal per-line payload for a push. Lines sharing a
// product and variation (customized and plain) are summed into one.
func SyncPayload(items []ledger.LineItem) []adapter.SyncItem {
	type lineKey struct{ product, variation int }
	index := make(map[lineKey]int, len(items))
	out := make([]adapter.SyncItem, 0, len(items))
	for _, item := range items {
		k := lineKey{item.Product.ID, item.VariationID}
		if i, ok := index[k]; ok {
			out[i].Quantity += item.Quantity
			continue
		}
		index[k] = len(out)
		out = append(out, adapter.SyncItem{
			ProductID:   item.Product.ID,
			Quantity:    item.Quantity,
			VariationID: item.VariationID,
		})
	}
	return out
}

func couponCodes(cart *model.RemoteCart) []string {
	if cart == nil {
		return nil
	}
	codes := make([]string, len(cart.Coupons))
	for i, c := range cart.Coupons {
		codes[i] = c.Code
	}
	return codes
}

func flightKey(key Key) string {
	return key.Signature + "#" + string(key.PaymentMethod)
}
