package shipping

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"storefront/internal/model"
	"storefront/internal/notify"
)

type selectFunc func(ctx context.Context, rateID string) (*model.RemoteCart, error)

func (f selectFunc) SelectShippingRate(ctx context.Context, rateID string) (*model.RemoteCart, error) {
	return f(ctx, rateID)
}

type recordingCommitter struct {
	mu    sync.Mutex
	carts []*model.RemoteCart
}

func (c *recordingCommitter) Commit(cart *model.RemoteCart) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.carts = append(c.carts, cart)
}

func cartWithRates(selected string, ids ...string) *model.RemoteCart {
	pkg := model.ShippingPackage{}
	for _, id := range ids {
		pkg.Rates = append(pkg.Rates, model.ShippingRate{RateID: id, Price: 7900, Selected: id == selected})
	}
	return &model.RemoteCart{ShippingPackages: []model.ShippingPackage{pkg}}
}

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name       string
		cart       *model.RemoteCart
		wantCalled bool
		wantState  State
	}{
		{"nil cart", nil, false, Unselected},
		{"no rates", &model.RemoteCart{}, false, Unselected},
		{"already selected", cartWithRates("b", "a", "b"), false, Selected},
		{"rates without selection", cartWithRates("", "a", "b"), true, Selected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotRate string
			committer := &recordingCommitter{}
			s := NewSelector(Config{
				Backend: selectFunc(func(ctx context.Context, rateID string) (*model.RemoteCart, error) {
					gotRate = rateID
					return cartWithRates(rateID, "a", "b"), nil
				}),
				Cache: committer,
			})

			called, err := s.Evaluate(context.Background(), tt.cart)
			if err != nil {
				t.Fatalf("Evaluate error: %v", err)
			}
			if called != tt.wantCalled {
				t.Errorf("called = %v, want %v", called, tt.wantCalled)
			}
			if s.State() != tt.wantState {
				t.Errorf("State = %s, want %s", s.State(), tt.wantState)
			}
			if tt.wantCalled {
				if gotRate != "a" {
					t.Errorf("selected %q, want first rate", gotRate)
				}
				if len(committer.carts) != 1 {
					t.Errorf("commits = %d, want 1", len(committer.carts))
				}
			}
		})
	}
}

func TestEvaluate_FailureStaysUnselected(t *testing.T) {
	rec := notify.NewRecorder(0, nil)
	committer := &recordingCommitter{}
	s := NewSelector(Config{
		Backend: selectFunc(func(ctx context.Context, rateID string) (*model.RemoteCart, error) {
			return nil, model.NewRemoteError(400, "invalid_rate", "Rate unavailable")
		}),
		Cache:    committer,
		Notifier: rec,
	})

	called, err := s.Evaluate(context.Background(), cartWithRates("", "a"))
	if !called || !errors.Is(err, model.ErrRemoteRejected) {
		t.Fatalf("Evaluate = %v, %v", called, err)
	}
	if s.State() != Unselected {
		t.Errorf("State = %s, want unselected", s.State())
	}
	if len(committer.carts) != 0 {
		t.Error("failed selection must not touch the cache")
	}
	last, _ := rec.Last()
	if last.Level != notify.LevelError || last.Message != "Could not select a shipping method: Rate unavailable" {
		t.Errorf("notification = %+v", last)
	}

	// The next refresh re-evaluates and may succeed
	s.backend = selectFunc(func(ctx context.Context, rateID string) (*model.RemoteCart, error) {
		return cartWithRates(rateID, "a"), nil
	})
	if called, err := s.Evaluate(context.Background(), cartWithRates("", "a")); !called || err != nil {
		t.Errorf("retry = %v, %v", called, err)
	}
	if s.State() != Selected {
		t.Errorf("State = %s, want selected", s.State())
	}
}

func TestEvaluate_SingleInFlight(t *testing.T) {
	var calls int32
	entered := make(chan struct{})
	release := make(chan struct{})
	s := NewSelector(Config{
		Backend: selectFunc(func(ctx context.Context, rateID string) (*model.RemoteCart, error) {
			atomic.AddInt32(&calls, 1)
			close(entered)
			<-release
			return cartWithRates(rateID, "a"), nil
		}),
	})
	cart := cartWithRates("", "a")

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Evaluate(context.Background(), cart)
	}()
	<-entered

	called, err := s.Evaluate(context.Background(), cart)
	if called || err != nil {
		t.Errorf("concurrent Evaluate = %v, %v; want no-op", called, err)
	}
	close(release)
	<-done

	if calls != 1 {
		t.Errorf("select calls = %d, want 1", calls)
	}
}

func TestEvaluate_ReplayedCartAfterSelection(t *testing.T) {
	var calls int32
	s := NewSelector(Config{
		Backend: selectFunc(func(ctx context.Context, rateID string) (*model.RemoteCart, error) {
			atomic.AddInt32(&calls, 1)
			return cartWithRates(rateID, "a", "b"), nil
		}),
	})
	cart := cartWithRates("", "a", "b")

	if called, err := s.Evaluate(context.Background(), cart); !called || err != nil {
		t.Fatalf("first Evaluate = %v, %v", called, err)
	}
	// The same pre-selection cart arriving again must not reselect
	if called, err := s.Evaluate(context.Background(), cart); called || err != nil {
		t.Errorf("replayed Evaluate = %v, %v; want no-op", called, err)
	}
	if calls != 1 {
		t.Errorf("select calls = %d, want 1", calls)
	}
	if s.State() != Selected {
		t.Errorf("State = %s, want selected", s.State())
	}

	// A new cart without a selection (e.g. after an address change) is handled
	if called, _ := s.Evaluate(context.Background(), cartWithRates("", "a", "b")); !called {
		t.Error("fresh unselected cart not evaluated")
	}
	if calls != 2 {
		t.Errorf("select calls = %d, want 2", calls)
	}
}
