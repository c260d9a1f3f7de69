// Package storefront composes the cart core into a Session with an explicit
// lifecycle: created when the app starts (or a buyer logs in), closed on
// logout. Nothing in the core is process-global; every collaborator hangs off
// the Session.
package storefront

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"storefront/internal/adapter"
	"storefront/internal/address"
	"storefront/internal/cartsync"
	"storefront/internal/coupon"
	"storefront/internal/ledger"
	"storefront/internal/model"
	"storefront/internal/notify"
	"storefront/internal/pricing"
	"storefront/internal/shipping"
)

// DefaultAppConfigTTL is how long fetched app config is reused.
const DefaultAppConfigTTL = 24 * time.Hour

// ErrClosed is returned by operations on a closed Session.
var ErrClosed = errors.New("session closed")

// Config configures a Session. Only Backend is required.
type Config struct {
	Backend  adapter.Backend
	Store    ledger.Store // nil = in-memory ledger
	Notifier notify.Notifier
	Logger   *slog.Logger

	PurchaseLimit          int
	CustomizationSurcharge decimal.Decimal
	DomesticCountry        string
	AddressDebounce        time.Duration
	CartTTL                time.Duration
	CouponListTTL          time.Duration
	AppConfigTTL           time.Duration

	// Fallback is used when the backend cannot serve app config.
	Fallback model.AppConfig
	// PaymentMethod is the initial selection; defaults to cod.
	PaymentMethod model.PaymentMethod

	Now       func() time.Time
	AfterFunc address.AfterFunc
	// Go runs background work (prefetch after a ledger change, auto rate
	// selection after a cache write). Defaults to a new goroutine.
	Go func(func())
}

// Session is one buyer's cart core.
type Session struct {
	backend  adapter.Backend
	notifier notify.Notifier
	logger   *slog.Logger
	ctx      context.Context
	run      func(func())
	now      func() time.Time

	ledger   *ledger.Ledger
	cache    *cartsync.Cache
	sync     *cartsync.Synchronizer
	selector *shipping.Selector
	gate     *address.Gate
	coupons  *coupon.Manager

	fallback     model.AppConfig
	appConfigTTL time.Duration
	group        singleflight.Group

	mu          sync.RWMutex
	pm          model.PaymentMethod
	appConfig   *model.AppConfig
	appConfigAt time.Time
	closed      bool
	unsubscribe func()
	bg          sync.WaitGroup
}

// NewSession wires the components and restores the persisted ledger.
// An incompatible or unreadable ledger is logged and the session starts empty.
func NewSession(ctx context.Context, cfg Config) (*Session, error) {
	if cfg.Backend == nil {
		return nil, fmt.Errorf("session backend is required")
	}
	s := &Session{
		backend:      cfg.Backend,
		notifier:     cfg.Notifier,
		logger:       cfg.Logger,
		ctx:          context.WithoutCancel(ctx),
		run:          cfg.Go,
		now:          cfg.Now,
		fallback:     cfg.Fallback,
		appConfigTTL: cfg.AppConfigTTL,
		pm:           cfg.PaymentMethod,
	}
	if s.notifier == nil {
		s.notifier = notify.Discard{}
	}
	if s.logger == nil {
		s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if s.run == nil {
		s.run = func(f func()) { go f() }
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.appConfigTTL <= 0 {
		s.appConfigTTL = DefaultAppConfigTTL
	}
	if s.pm == "" {
		s.pm = model.PaymentCOD
	}

	s.cache = cartsync.NewCache(cartsync.WithTTL(cfg.CartTTL), cartsync.WithClock(s.now))
	s.sync = cartsync.NewSynchronizer(cartsync.SyncConfig{
		Backend:  cfg.Backend,
		Cache:    s.cache,
		Notifier: s.notifier,
		Logger:   s.logger.With(slog.String("component", "sync")),
	})
	s.selector = shipping.NewSelector(shipping.Config{
		Backend:  cfg.Backend,
		Cache:    s.cache,
		Notifier: s.notifier,
		Logger:   s.logger.With(slog.String("component", "shipping")),
	})
	s.gate = address.NewGate(address.Config{
		Backend:         cfg.Backend,
		Cache:           s.cache,
		Selector:        s.selector,
		Notifier:        s.notifier,
		Logger:          s.logger.With(slog.String("component", "address")),
		DomesticCountry: cfg.DomesticCountry,
		Debounce:        cfg.AddressDebounce,
		AfterFunc:       cfg.AfterFunc,
	})
	s.coupons = coupon.NewManager(coupon.Config{
		Backend:  cfg.Backend,
		Cache:    s.cache,
		Notifier: s.notifier,
		Logger:   s.logger.With(slog.String("component", "coupon")),
		ListTTL:  cfg.CouponListTTL,
		Now:      s.now,
	})
	s.ledger = ledger.New(ledger.Config{
		Store:                  cfg.Store,
		Notifier:               s.notifier,
		Logger:                 s.logger.With(slog.String("component", "ledger")),
		PurchaseLimit:          cfg.PurchaseLimit,
		CustomizationSurcharge: cfg.CustomizationSurcharge,
		OnChange:               s.ledgerChanged,
	})

	if err := s.ledger.Restore(ctx); err != nil {
		s.logger.WarnContext(ctx, "starting with an empty cart", slog.String("error", err.Error()))
	}
	s.cache.SetCurrent(s.currentKey(s.ledger.Items()))
	s.unsubscribe = s.cache.Subscribe(s.cartWritten)
	return s, nil
}

// Ledger returns the local cart.
func (s *Session) Ledger() *ledger.Ledger { return s.ledger }

// Cache returns the remote cart cache.
func (s *Session) Cache() *cartsync.Cache { return s.cache }

// Gate returns the address update gate.
func (s *Session) Gate() *address.Gate { return s.gate }

// Coupons returns the coupon manager.
func (s *Session) Coupons() *coupon.Manager { return s.coupons }

// Selector returns the shipping rate auto-selector.
func (s *Session) Selector() *shipping.Selector { return s.selector }

// PaymentMethod returns the selected payment method.
func (s *Session) PaymentMethod() model.PaymentMethod {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pm
}

// SetPaymentMethod switches the payment hint and syncs the cart under it.
// The switch takes effect locally even when the sync fails; the price
// summary corrects for the lag until the backend catches up.
func (s *Session) SetPaymentMethod(ctx context.Context, pm model.PaymentMethod) (*model.RemoteCart, error) {
	if pm != model.PaymentCOD && pm != model.PaymentCard {
		return nil, model.NewValidationError("payment_method", fmt.Sprintf("unsupported method %q", pm))
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	s.pm = pm
	s.mu.Unlock()

	items := s.ledger.Items()
	s.cache.SetCurrent(s.currentKey(items))
	return s.sync.Sync(ctx, items, pm)
}

// Cart returns the remote cart for the current ledger, from cache when fresh.
func (s *Session) Cart(ctx context.Context) (*model.RemoteCart, error) {
	if s.isClosed() {
		return nil, ErrClosed
	}
	return s.sync.Sync(ctx, s.ledger.Items(), s.PaymentMethod())
}

// Refresh forces a round trip for the current ledger.
func (s *Session) Refresh(ctx context.Context) (*model.RemoteCart, error) {
	if s.isClosed() {
		return nil, ErrClosed
	}
	return s.sync.Refresh(ctx, s.ledger.Items(), s.PaymentMethod())
}

// AppConfig returns the backend's fallback pricing constants, fetched once per
// TTL. Any fetch failure serves the configured fallback.
func (s *Session) AppConfig(ctx context.Context) model.AppConfig {
	if cfg, ok := s.cachedAppConfig(); ok {
		return cfg
	}

	v, _, _ := s.group.Do("app-config", func() (any, error) {
		if cfg, ok := s.cachedAppConfig(); ok {
			return cfg, nil
		}
		remote, err := s.backend.AppConfig(context.WithoutCancel(ctx))
		if err != nil || remote == nil {
			if err != nil {
				s.logger.WarnContext(ctx, "app config unavailable, using fallback",
					slog.String("error", err.Error()))
			}
			return s.fallback, nil
		}
		s.mu.Lock()
		s.appConfig = remote
		s.appConfigAt = s.now()
		s.mu.Unlock()
		return *remote, nil
	})
	return v.(model.AppConfig)
}

func (s *Session) cachedAppConfig() (model.AppConfig, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.appConfig == nil || s.now().Sub(s.appConfigAt) >= s.appConfigTTL {
		return model.AppConfig{}, false
	}
	return *s.appConfig, true
}

// Quote is the rendered price summary plus what the checkout screen shows
// around it.
type Quote struct {
	pricing.Breakdown
	PaymentMethod model.PaymentMethod  `json:"payment_method"`
	ItemCount     int                  `json:"item_count"`
	Items         []ledger.LineItem    `json:"items"`
	Rates         []model.ShippingRate `json:"shipping_rates,omitempty"`
	ShippingState string               `json:"shipping_state"`
	Coupons       []model.Coupon       `json:"coupons,omitempty"`
	CouponFees    []model.FeeLine      `json:"coupon_fee_lines,omitempty"`
	Notices       []model.CartError    `json:"notices,omitempty"`
	// Stale is set when the remote cart could not be refreshed and the
	// summary was priced from an older cart or locally.
	Stale bool `json:"stale"`
}

// Quote prices the current cart. It never fails for missing data: when the
// backend cannot answer, the latest cached cart for the same items is used,
// and without one the summary is computed locally.
func (s *Session) Quote(ctx context.Context) (*Quote, error) {
	if s.isClosed() {
		return nil, ErrClosed
	}
	items := s.ledger.Items()
	pm := s.PaymentMethod()

	stale := false
	remote, err := s.sync.Sync(ctx, items, pm)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		stale = true
		notify.Error(ctx, s.notifier, "Could not refresh your cart: "+model.UserMessage(err))
		if cart, _, ok := s.cache.Latest(); ok {
			remote = cart
		}
	}

	q := &Quote{
		Breakdown: pricing.Compute(pricing.Input{
			Remote:        remote,
			LocalSubtotal: s.ledger.Subtotal(),
			Rates:         remote.Rates(),
			PaymentMethod: pm,
			Config:        s.AppConfig(ctx),
		}),
		PaymentMethod: pm,
		ItemCount:     s.ledger.ItemCount(),
		Items:         items,
		ShippingState: s.selector.State().String(),
		Stale:         stale,
	}
	if remote != nil {
		q.Rates = remote.Rates()
		q.Coupons = remote.Coupons
		q.CouponFees = pricing.CouponFeeLines(remote.Coupons)
		q.Notices = remote.Errors
	}
	return q, nil
}

// Close ends the session: pending address sends are dropped, background work
// is drained and the cart cache is cleared. The persisted ledger is kept.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.unsubscribe()
	s.gate.Close()
	s.bg.Wait()
	s.gate.Wait()
	s.cache.Clear()
}

func (s *Session) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

func (s *Session) currentKey(items []ledger.LineItem) cartsync.Key {
	return cartsync.Key{Signature: ledger.Signature(items), PaymentMethod: s.PaymentMethod()}
}

// ledgerChanged moves the cache to the new signature and prefetches the
// remote cart for it.
func (s *Session) ledgerChanged(items []ledger.LineItem) {
	key := s.currentKey(items)
	s.cache.SetCurrent(key)
	s.spawn(func() {
		if _, err := s.sync.Sync(s.ctx, items, key.PaymentMethod); err != nil {
			s.logger.WarnContext(s.ctx, "cart prefetch failed",
				slog.String("signature", key.Signature),
				slog.String("error", err.Error()))
		}
	})
}

// cartWritten runs the shipping auto-selector on every accepted write for the
// current key.
func (s *Session) cartWritten(key cartsync.Key, cart *model.RemoteCart) {
	if key != s.cache.Current() {
		return
	}
	s.spawn(func() {
		s.selector.Evaluate(s.ctx, cart)
	})
}

func (s *Session) spawn(f func()) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return
	}
	s.bg.Add(1)
	s.mu.RUnlock()

	s.run(func() {
		defer s.bg.Done()
		f()
	})
}
