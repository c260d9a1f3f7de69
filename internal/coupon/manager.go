// Package coupon applies and removes coupon codes against the remote cart and
// caches the store's promotable coupon list.
package coupon

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"storefront/internal/model"
	"storefront/internal/notify"
)

// DefaultListTTL is how long the promotable coupon list is reused.
const DefaultListTTL = 30 * time.Minute

// Backend is the subset of the pricing backend the manager needs.
type Backend interface {
	ApplyCoupon(ctx context.Context, code string) (*model.RemoteCart, error)
	RemoveCoupon(ctx context.Context, code string) (*model.RemoteCart, error)
	ListCoupons(ctx context.Context) ([]model.Coupon, error)
}

// Committer receives the remote cart returned by a coupon mutation.
type Committer interface {
	Commit(cart *model.RemoteCart)
}

// Config configures a Manager.
type Config struct {
	Backend  Backend
	Cache    Committer
	Notifier notify.Notifier
	Logger   *slog.Logger
	ListTTL  time.Duration
	Now      func() time.Time
}

// Manager applies and removes coupons.
type Manager struct {
	backend  Backend
	cache    Committer
	notifier notify.Notifier
	logger   *slog.Logger
	listTTL  time.Duration
	now      func() time.Time

	group     singleflight.Group
	mu        sync.RWMutex
	available []model.Coupon
	listedAt  time.Time
}

// NewManager creates a Manager.
func NewManager(cfg Config) *Manager {
	m := &Manager{
		backend:  cfg.Backend,
		cache:    cfg.Cache,
		notifier: cfg.Notifier,
		logger:   cfg.Logger,
		listTTL:  cfg.ListTTL,
		now:      cfg.Now,
	}
	if m.notifier == nil {
		m.notifier = notify.Discard{}
	}
	if m.logger == nil {
		m.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if m.listTTL <= 0 {
		m.listTTL = DefaultListTTL
	}
	if m.now == nil {
		m.now = time.Now
	}
	return m
}

// Apply applies code. The confirmed cart is written to the cache before
// this returns; a background revalidation may replace it later.
func (m *Manager) Apply(ctx context.Context, code string) (*model.RemoteCart, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		err := model.NewValidationError("coupon", "enter a coupon code")
		notify.Error(ctx, m.notifier, err.Message)
		return nil, err
	}

	cart, err := m.backend.ApplyCoupon(ctx, code)
	if err != nil {
		m.fail(ctx, "apply", code, err)
		return nil, err
	}
	m.commit(cart)
	notify.Success(ctx, m.notifier, fmt.Sprintf("Coupon %s applied", strings.ToUpper(code)))
	return cart, nil
}

// Remove removes code and writes the returned cart.
func (m *Manager) Remove(ctx context.Context, code string) (*model.RemoteCart, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, model.NewValidationError("coupon", "enter a coupon code")
	}

	cart, err := m.backend.RemoveCoupon(ctx, code)
	if err != nil {
		m.fail(ctx, "remove", code, err)
		return nil, err
	}
	m.commit(cart)
	notify.Success(ctx, m.notifier, fmt.Sprintf("Coupon %s removed", strings.ToUpper(code)))
	return cart, nil
}

// ListAvailable returns the promotable coupons, fetched at most once per TTL.
// Concurrent callers share one fetch. A failed refresh keeps serving the
// previous list when there is one.
func (m *Manager) ListAvailable(ctx context.Context) ([]model.Coupon, error) {
	if list, ok := m.freshList(); ok {
		return list, nil
	}
	m.mu.RLock()
	cached := cloneCoupons(m.available)
	m.mu.RUnlock()

	fetchCtx := context.WithoutCancel(ctx)
	v, err, _ := m.group.Do("coupons", func() (any, error) {
		if list, ok := m.freshList(); ok {
			return list, nil
		}
		coupons, err := m.backend.ListCoupons(fetchCtx)
		if err != nil {
			return nil, err
		}
		m.mu.Lock()
		m.available = coupons
		m.listedAt = m.now()
		m.mu.Unlock()
		return coupons, nil
	})
	if err != nil {
		if cached != nil {
			m.logger.WarnContext(ctx, "coupon list refresh failed, serving previous list",
				slog.String("error", err.Error()))
			return cached, nil
		}
		return nil, err
	}
	return cloneCoupons(v.([]model.Coupon)), nil
}

// freshList returns a copy of the cached list while it is within the TTL.
func (m *Manager) freshList() ([]model.Coupon, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.listedAt.IsZero() || m.now().Sub(m.listedAt) >= m.listTTL {
		return nil, false
	}
	return cloneCoupons(m.available), true
}

func (m *Manager) commit(cart *model.RemoteCart) {
	if m.cache != nil {
		m.cache.Commit(cart)
	}
}

func (m *Manager) fail(ctx context.Context, op, code string, err error) {
	m.logger.WarnContext(ctx, "coupon "+op+" failed",
		slog.String("code", code),
		slog.String("error", err.Error()))
	notify.Error(ctx, m.notifier, CleanMessage(model.UserMessage(err)))
}

func cloneCoupons(in []model.Coupon) []model.Coupon {
	if in == nil {
		return nil
	}
	out := make([]model.Coupon, len(in))
	copy(out, in)
	return out
}
