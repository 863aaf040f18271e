package storefront

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"Storefront/internal/cart"
	"Storefront/internal/persist"
	"Storefront/internal/session"
	"Storefront/internal/wishlist"
)

const defaultLoadTimeout = 5 * time.Second

// Publisher receives every committed cart and wishlist collection.
type Publisher interface {
	Publish(clientID, slot string, items any)
}

// Client is everything the storefront holds for one browser. Each store is
// the only writer of its own state; readers subscribe.
type Client struct {
	ID       string
	Cart     *cart.Store
	Wishlist *wishlist.Store
	Gate     *session.Gate

	lastSeen time.Time
	cancels  []func()
	moving   sync.Mutex
}

// MoveToCart adds wishlist entry id to the cart, then drops it from the
// wishlist. It reports false when id is not on the wishlist.
func (c *Client) MoveToCart(ctx context.Context, id int64) (bool, error) {
	c.moving.Lock()
	defer c.moving.Unlock()

	e, ok := c.Wishlist.Lookup(id)
	if !ok {
		return false, nil
	}
	return true, c.move(ctx, e)
}

// MoveAllToCart moves every wishlist entry in order and stops at the first
// failure. Entries moved before the failure stay moved.
func (c *Client) MoveAllToCart(ctx context.Context) (int, error) {
	c.moving.Lock()
	defer c.moving.Unlock()

	moved := 0
	for _, e := range c.Wishlist.Entries() {
		if err := c.move(ctx, e); err != nil {
			return moved, err
		}
		moved++
	}
	return moved, nil
}

func (c *Client) move(ctx context.Context, e wishlist.Entry) error {
	line := cart.Line{ID: e.ID, Title: e.Title, UnitPrice: e.UnitPrice, Image: e.Image}
	if err := c.Cart.Add(ctx, line); err != nil {
		return err
	}
	return c.Wishlist.Remove(ctx, e.ID)
}

func (c *Client) close() {
	for _, cancel := range c.cancels {
		cancel()
	}
	c.Gate.Close()
}

// Registry creates client contexts on first use and evicts them once idle.
// Evicted clients lose only their in-memory session; carts and wishlists
// are reloaded from the bridge.
type Registry struct {
	bridge    persist.Bridge
	provider  session.Provider
	roles     session.RoleLookup
	publisher Publisher
	log       *zap.Logger
	idleTTL   time.Duration
	loadTTL   time.Duration
	now       func() time.Time

	mu      sync.Mutex
	clients map[string]*Client
}

type RegistryDeps struct {
	Bridge    persist.Bridge
	Provider  session.Provider
	Roles     session.RoleLookup
	Publisher Publisher
	Log       *zap.Logger
	IdleTTL   time.Duration
}

func NewRegistry(deps RegistryDeps) *Registry {
	log := deps.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{
		bridge:    deps.Bridge,
		provider:  deps.Provider,
		roles:     deps.Roles,
		publisher: deps.Publisher,
		log:       log,
		idleTTL:   deps.IdleTTL,
		loadTTL:   defaultLoadTimeout,
		now:       time.Now,
		clients:   make(map[string]*Client),
	}
}

// Get returns the context for id, loading its persisted collections the
// first time id is seen. A failed load is returned and nothing is cached,
// so the next request retries against the bridge.
func (r *Registry) Get(ctx context.Context, id string) (*Client, error) {
	r.mu.Lock()
	if c, ok := r.clients[id]; ok {
		c.lastSeen = r.now()
		r.mu.Unlock()
		return c, nil
	}
	r.mu.Unlock()

	fresh, err := r.build(ctx, id)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.clients[id]; ok {
		fresh.close()
		c.lastSeen = r.now()
		return c, nil
	}
	fresh.lastSeen = r.now()
	r.clients[id] = fresh
	return fresh, nil
}

func (r *Registry) build(ctx context.Context, id string) (*Client, error) {
	log := r.log.With(zap.String("client", id))

	// The load is detached from the request; a client disconnect must not
	// abort it half way.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.loadTTL)
	defer cancel()

	cartStore, err := cart.New(ctx, r.bridge, persist.SlotKey(id, persist.SlotCart), log)
	if err != nil {
		return nil, fmt.Errorf("client %s: %w", id, err)
	}
	wishStore, err := wishlist.New(ctx, r.bridge, persist.SlotKey(id, persist.SlotWishlist), log)
	if err != nil {
		return nil, fmt.Errorf("client %s: %w", id, err)
	}

	c := &Client{
		ID:       id,
		Cart:     cartStore,
		Wishlist: wishStore,
		Gate:     session.NewGate(r.provider, r.roles, log),
	}

	if r.publisher != nil {
		c.cancels = append(c.cancels,
			c.Cart.Subscribe(func(s cart.Snapshot) {
				r.publisher.Publish(id, persist.SlotCart, s.Lines)
			}),
			c.Wishlist.Subscribe(func(entries []wishlist.Entry) {
				r.publisher.Publish(id, persist.SlotWishlist, entries)
			}),
		)
	}
	return c, nil
}

// Sweep evicts clients idle for longer than the TTL and reports how many
// were removed.
func (r *Registry) Sweep() int {
	if r.idleTTL <= 0 {
		return 0
	}
	cutoff := r.now().Add(-r.idleTTL)

	r.mu.Lock()
	var idle []*Client
	for id, c := range r.clients {
		if c.lastSeen.Before(cutoff) {
			idle = append(idle, c)
			delete(r.clients, id)
		}
	}
	r.mu.Unlock()

	for _, c := range idle {
		c.close()
	}
	return len(idle)
}

// Run sweeps periodically until ctx is done.
func (r *Registry) Run(ctx context.Context) {
	if r.idleTTL <= 0 {
		return
	}
	interval := max(r.idleTTL/4, time.Second)
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := r.Sweep(); n > 0 {
				r.log.Info("evicted idle clients", zap.Int("count", n))
			}
		}
	}
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}

func (r *Registry) Close() {
	r.mu.Lock()
	clients := r.clients
	r.clients = make(map[string]*Client)
	r.mu.Unlock()

	for _, c := range clients {
		c.close()
	}
}

func (r *Registry) Ping(ctx context.Context) error {
	return r.bridge.Ping(ctx)
}
