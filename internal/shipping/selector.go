// Package shipping guarantees a shipping rate is selected whenever the remote
// cart offers rates and none is chosen yet.
package shipping

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"storefront/internal/model"
	"storefront/internal/notify"
)

// State is the selector's view of the current cart.
type State int

const (
	Unselected State = iota
	Selected
)

func (s State) String() string {
	if s == Selected {
		return "selected"
	}
	return "unselected"
}

// RateSelector is the backend operation the selector drives.
type RateSelector interface {
	SelectShippingRate(ctx context.Context, rateID string) (*model.RemoteCart, error)
}

// Committer receives the remote cart returned by a successful selection.
type Committer interface {
	Commit(cart *model.RemoteCart)
}

// Selector picks the first offered rate when the remote cart has rates but no
// selection. At most one selection request is in flight at a time.
type Selector struct {
	backend  RateSelector
	cache    Committer
	notifier notify.Notifier
	logger   *slog.Logger

	mu       sync.Mutex
	state    State
	inFlight bool
	// handled is the cart whose missing selection was last resolved.
	// Cached carts are immutable, so pointer identity marks a replay.
	handled *model.RemoteCart
}

// Config configures a Selector.
type Config struct {
	Backend  RateSelector
	Cache    Committer
	Notifier notify.Notifier
	Logger   *slog.Logger
}

// NewSelector creates a Selector in the Unselected state.
func NewSelector(cfg Config) *Selector {
	s := &Selector{
		backend:  cfg.Backend,
		cache:    cfg.Cache,
		notifier: cfg.Notifier,
		logger:   cfg.Logger,
	}
	if s.notifier == nil {
		s.notifier = notify.Discard{}
	}
	if s.logger == nil {
		s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return s
}

// State returns the current state.
func (s *Selector) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Evaluate runs the selection trigger against cart. It is called whenever a
// remote cart is fetched or returned by an address update, and is a no-op when
// a rate is already selected, no rates exist, or a selection is in flight.
// Reports whether a selection request was issued.
func (s *Selector) Evaluate(ctx context.Context, cart *model.RemoteCart) (bool, error) {
	rates := cart.Rates()

	s.mu.Lock()
	if len(rates) == 0 {
		s.state = Unselected
		s.mu.Unlock()
		return false, nil
	}
	if _, ok := cart.SelectedRate(); ok {
		s.state = Selected
		s.mu.Unlock()
		return false, nil
	}
	if cart == s.handled && s.state == Selected {
		s.mu.Unlock()
		return false, nil
	}
	s.state = Unselected
	if s.inFlight {
		s.mu.Unlock()
		return false, nil
	}
	s.inFlight = true
	s.mu.Unlock()

	first := rates[0]
	updated, err := s.backend.SelectShippingRate(ctx, first.RateID)

	s.mu.Lock()
	s.inFlight = false
	if err != nil {
		s.mu.Unlock()
		s.logger.WarnContext(ctx, "shipping rate selection failed",
			slog.String("rate_id", first.RateID),
			slog.String("error", err.Error()))
		notify.Error(ctx, s.notifier, "Could not select a shipping method: "+model.UserMessage(err))
		return true, err
	}
	s.state = Selected
	s.handled = cart
	s.mu.Unlock()

	s.logger.DebugContext(ctx, "shipping rate auto-selected", slog.String("rate_id", first.RateID))
	if s.cache != nil {
		s.cache.Commit(updated)
	}
	return true, nil
}
