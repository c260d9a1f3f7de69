// Package cartsync keeps the remote cart view in step with the local ledger.
//
// Cache holds RemoteCart snapshots keyed by (cart signature, payment hint).
// Writes come from two places: fetches issued by the Synchronizer and
// optimistic commits of mutation responses (rate selection, address update,
// coupons). A commit is a two-phase write: overwrite the current key, then mark
// every entry stale so the next read revalidates in the background. A fetch that
// started before a commit never overwrites it.
package cartsync

import (
	"sync"
	"time"

	"storefront/internal/model"
)

// DefaultTTL is how long a fetched cart is served without revalidation.
const DefaultTTL = 5 * time.Minute

// Key identifies one cached remote cart.
type Key struct {
	Signature     string
	PaymentMethod model.PaymentMethod
}

// Listener is called after every accepted cache write, outside the cache lock.
type Listener func(key Key, cart *model.RemoteCart)

type entry struct {
	cart      *model.RemoteCart
	fetchedAt time.Time
	stale     bool
	gen       uint64
}

// Cache is the process-wide cart cache, created per session and passed
// explicitly to every component that reads or writes the remote cart.
type Cache struct {
	mu        sync.RWMutex
	entries   map[Key]*entry
	current   Key
	last      *model.RemoteCart
	gen       uint64
	ttl       time.Duration
	now       func() time.Time
	listeners map[int]Listener
	nextID    int
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithTTL sets the freshness window.
func WithTTL(ttl time.Duration) CacheOption {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithClock replaces time.Now (tests).
func WithClock(now func() time.Time) CacheOption {
	return func(c *Cache) { c.now = now }
}

// NewCache creates an empty cache.
func NewCache(opts ...CacheOption) *Cache {
	c := &Cache{
		entries:   make(map[Key]*entry),
		ttl:       DefaultTTL,
		now:       time.Now,
		listeners: make(map[int]Listener),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetCurrent records the key the UI is currently showing. A signature change
// evicts every entry cached under other signatures.
func (c *Cache) SetCurrent(key Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if key.Signature != c.current.Signature {
		for k := range c.entries {
			if k.Signature != key.Signature {
				delete(c.entries, k)
			}
		}
	}
	c.current = key
}

// Current returns the key set by SetCurrent.
func (c *Cache) Current() Key {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

// Get returns the cart cached under key. fresh is false once the entry has
// been marked stale or has outlived the TTL.
func (c *Cache) Get(key Key) (cart *model.RemoteCart, fresh, ok bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, false, false
	}
	return e.cart, c.freshLocked(e), true
}

// Latest returns the most recently written cart for the current signature,
// whatever payment hint it was fetched with. Used while the exact key has not
// answered yet, e.g. right after a payment-method switch.
func (c *Cache) Latest() (*model.RemoteCart, Key, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if e, ok := c.entries[c.current]; ok {
		return e.cart, c.current, true
	}
	var (
		best    *entry
		bestKey Key
	)
	for k, e := range c.entries {
		if k.Signature != c.current.Signature {
			continue
		}
		if best == nil || e.gen > best.gen {
			best, bestKey = e, k
		}
	}
	if best == nil {
		return nil, Key{}, false
	}
	return best.cart, bestKey, true
}

// LastWritten returns the most recent accepted write under any key. Unlike
// entries it survives signature changes.
func (c *Cache) LastWritten() *model.RemoteCart {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.last
}

// Generation returns a token for a fetch about to start. Pass it to
// PutIfNewer so a slow response cannot clobber a later write.
func (c *Cache) Generation() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.gen
}

// Put overwrites key unconditionally.
func (c *Cache) Put(key Key, cart *model.RemoteCart) {
	c.mu.Lock()
	if key.Signature != c.current.Signature {
		c.mu.Unlock()
		return
	}
	c.writeLocked(key, cart)
	listeners := c.listenersLocked()
	c.mu.Unlock()

	notifyListeners(listeners, key, cart)
}

// PutIfNewer writes cart unless key was written after since was taken, or the
// key belongs to a signature that is no longer current. Reports whether the
// write was accepted.
func (c *Cache) PutIfNewer(key Key, cart *model.RemoteCart, since uint64) bool {
	c.mu.Lock()
	if key.Signature != c.current.Signature {
		c.mu.Unlock()
		return false
	}
	if e, ok := c.entries[key]; ok && e.gen > since {
		c.mu.Unlock()
		return false
	}
	c.writeLocked(key, cart)
	listeners := c.listenersLocked()
	c.mu.Unlock()

	notifyListeners(listeners, key, cart)
	return true
}

// Commit is the optimistic write used by mutations: the confirmed response
// replaces the current key, then the whole family is marked stale. The order
// is fixed; a revalidation can only start after the write is visible.
func (c *Cache) Commit(cart *model.RemoteCart) {
	if cart == nil {
		return
	}
	c.Put(c.Current(), cart)
	c.MarkStale()
}

// MarkStale flags every entry for background revalidation on next read.
func (c *Cache) MarkStale() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.entries {
		e.stale = true
	}
}

// Clear drops every entry. Called when the session ends.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[Key]*entry)
	c.last = nil
}

// Subscribe registers l and returns a function that removes it.
func (c *Cache) Subscribe(l Listener) (unsubscribe func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = l
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.listeners, id)
	}
}

func (c *Cache) writeLocked(key Key, cart *model.RemoteCart) {
	c.gen++
	c.entries[key] = &entry{
		cart:      cart,
		fetchedAt: c.now(),
		gen:       c.gen,
	}
	c.last = cart
}

func (c *Cache) freshLocked(e *entry) bool {
	return !e.stale && c.now().Sub(e.fetchedAt) < c.ttl
}

func (c *Cache) listenersLocked() []Listener {
	out := make([]Listener, 0, len(c.listeners))
	for _, l := range c.listeners {
		out = append(out, l)
	}
	return out
}

func notifyListeners(listeners []Listener, key Key, cart *model.RemoteCart) {
	for _, l := range listeners {
		l(key, cart)
	}
}
