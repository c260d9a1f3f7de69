package address

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"storefront/internal/adapter"
	"storefront/internal/model"
	"storefront/internal/notify"
)

// DefaultDebounce is the quiet period after the last valid edit before the
// address is sent.
const DefaultDebounce = time.Second

// Updater is the backend operation the gate forwards addresses to.
type Updater interface {
	UpdateCustomer(ctx context.Context, req *adapter.CustomerUpdate) (*model.RemoteCart, error)
}

// Committer receives the remote cart returned by an address update.
type Committer interface {
	Commit(cart *model.RemoteCart)
}

// RateEvaluator re-checks shipping selection after an address update.
type RateEvaluator interface {
	Evaluate(ctx context.Context, cart *model.RemoteCart) (bool, error)
}

// Timer is a pending send that can be stopped.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f after d. time.AfterFunc satisfies it via RealClock.
type AfterFunc func(d time.Duration, f func()) Timer

// RealClock schedules with time.AfterFunc.
func RealClock(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Config configures a Gate.
type Config struct {
	Backend         Updater
	Cache           Committer
	Selector        RateEvaluator
	Notifier        notify.Notifier
	Logger          *slog.Logger
	DomesticCountry string
	Debounce        time.Duration
	AfterFunc       AfterFunc
}

// Gate validates addresses and forwards them to the backend.
//
// The first valid address after the gate is opened (typically pre-filled from
// a saved profile) is sent without delay. Every later valid edit restarts a
// debounce window; an invalid edit cancels whatever is pending. Requests that
// are already on the wire are never aborted.
type Gate struct {
	backend   Updater
	cache     Committer
	selector  RateEvaluator
	notifier  notify.Notifier
	logger    *slog.Logger
	domestic  string
	debounce  time.Duration
	afterFunc AfterFunc
	validate  *validator.Validate

	mu        sync.Mutex
	pending   Timer
	seq       uint64
	seenValid bool
	closed    bool
	inFlight  sync.WaitGroup
}

// NewGate creates an open Gate.
func NewGate(cfg Config) *Gate {
	g := &Gate{
		backend:   cfg.Backend,
		cache:     cfg.Cache,
		selector:  cfg.Selector,
		notifier:  cfg.Notifier,
		logger:    cfg.Logger,
		domestic:  cfg.DomesticCountry,
		debounce:  cfg.Debounce,
		afterFunc: cfg.AfterFunc,
		validate:  newValidator(),
	}
	if g.notifier == nil {
		g.notifier = notify.Discard{}
	}
	if g.logger == nil {
		g.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if g.domestic == "" {
		g.domestic = DefaultDomesticCountry
	}
	if g.debounce <= 0 {
		g.debounce = DefaultDebounce
	}
	if g.afterFunc == nil {
		g.afterFunc = RealClock
	}
	return g
}

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Rules returns the rule set that applies to addr.
func (g *Gate) Rules(addr model.Address) RuleSet {
	return RulesFor(addr.Country, g.domestic)
}

// Schedule is called on every address field change.
func (g *Gate) Schedule(addr model.Address) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return
	}

	if !g.Rules(addr).Valid(addr) {
		g.cancelLocked()
		return
	}

	delay := g.debounce
	if !g.seenValid {
		g.seenValid = true
		delay = 0
	}

	g.cancelLocked()
	seq := g.seq
	g.pending = g.afterFunc(delay, func() { g.fire(seq, addr) })
}

// Cancel drops any pending send.
func (g *Gate) Cancel() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cancelLocked()
}

// Reset cancels any pending send and treats the next valid address as the
// first one again (a new checkout screen mount).
func (g *Gate) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cancelLocked()
	g.seenValid = false
	g.closed = false
}

// Close cancels any pending send and ignores later edits. In-flight updates
// still complete and write their result.
func (g *Gate) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cancelLocked()
	g.closed = true
}

// Wait blocks until sends already fired have finished (tests, shutdown).
func (g *Gate) Wait() {
	g.inFlight.Wait()
}

func (g *Gate) cancelLocked() {
	g.seq++
	if g.pending != nil {
		g.pending.Stop()
		g.pending = nil
	}
}

func (g *Gate) fire(seq uint64, addr model.Address) {
	g.mu.Lock()
	if seq != g.seq {
		// Superseded between the timer firing and acquiring the lock
		g.mu.Unlock()
		return
	}
	g.pending = nil
	g.inFlight.Add(1)
	g.mu.Unlock()

	defer g.inFlight.Done()
	ctx := context.Background()

	if err := g.checkSchema(addr); err != nil {
		g.logger.WarnContext(ctx, "dropping address update that failed schema validation",
			slog.String("error", err.Error()))
		return
	}
	if _, err := g.send(ctx, addr); err != nil {
		notify.Error(ctx, g.notifier, "Could not update address: "+model.UserMessage(err))
	}
}

// Submit is the explicit user-submitted flow: it bypasses the debounce,
// returns the first violated rule as a validation error, and waits for the
// backend.
func (g *Gate) Submit(ctx context.Context, addr model.Address) (*model.RemoteCart, error) {
	g.Cancel()

	if err := g.Rules(addr).Check(addr); err != nil {
		return nil, err
	}
	if err := g.checkSchema(addr); err != nil {
		return nil, err
	}

	g.mu.Lock()
	g.seenValid = true
	g.mu.Unlock()

	cart, err := g.send(ctx, addr)
	if err != nil {
		notify.Error(ctx, g.notifier, "Could not update address: "+model.UserMessage(err))
		return nil, err
	}
	notify.Success(ctx, g.notifier, "Address updated")
	return cart, nil
}

func (g *Gate) send(ctx context.Context, addr model.Address) (*model.RemoteCart, error) {
	cart, err := g.backend.UpdateCustomer(ctx, &adapter.CustomerUpdate{
		ShippingAddress: addr,
		BillingAddress:  addr,
	})
	if err != nil {
		g.logger.WarnContext(ctx, "address update failed", slog.String("error", err.Error()))
		return nil, err
	}

	if g.cache != nil {
		g.cache.Commit(cart)
	}
	if g.selector != nil {
		// Address changes usually reset the rate selection
		g.selector.Evaluate(ctx, cart)
	}
	return cart, nil
}

// checkSchema validates the strict submission schema.
func (g *Gate) checkSchema(addr model.Address) error {
	err := g.validate.Struct(addr)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return model.NewValidationError(fe.Field(), describeTag(fe))
	}
	return model.NewValidationError("address", err.Error())
}

func describeTag(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s characters", fe.Param())
	case "email":
		return "must be a valid email address"
	default:
		return fmt.Sprintf("failed %s", fe.Tag())
	}
}
