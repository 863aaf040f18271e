package catalog

import (
	"context"
	"sort"
	"strconv"
	"sync"

	"github.com/shopspring/decimal"
)

// MemStore issues sequential numeric ids, like the public fakestore API.
type MemStore struct {
	mu     sync.RWMutex
	m      map[string]Product
	nextID int64
}

func NewMemStore() *MemStore {
	return &MemStore{m: map[string]Product{}, nextID: 1}
}

// SeedProducts is the demo catalog loaded when CATALOG_SEED is on.
var SeedProducts = []Fields{
	{Title: "Mechanical Keyboard", Price: decimal.RequireFromString("49.90"), Description: "Tenkeyless, brown switches", Image: "https://img.example.com/keyboard.png", Category: "electronics", Rating: Rating{Rate: 4.4, Count: 310}},
	{Title: "Wireless Mouse", Price: decimal.RequireFromString("19.90"), Description: "2.4 GHz, silent clicks", Image: "https://img.example.com/mouse.png", Category: "electronics", Rating: Rating{Rate: 3.8, Count: 542}},
	{Title: "Canvas Backpack", Price: decimal.RequireFromString("109.95"), Description: "Fits 15 inch laptops", Image: "https://img.example.com/backpack.png", Category: "men's clothing", Rating: Rating{Rate: 3.9, Count: 120}},
	{Title: "Silver Ring", Price: decimal.RequireFromString("10.99"), Description: "Sterling silver band", Image: "https://img.example.com/ring.png", Category: "jewelery", Rating: Rating{Rate: 4.6, Count: 95}},
}

func (s *MemStore) Seed(ctx context.Context, items []Fields) error {
	for _, f := range items {
		if _, err := s.Create(ctx, f); err != nil {
			return err
		}
	}
	return nil
}

func (s *MemStore) Ping(ctx context.Context) error { return nil }

func (s *MemStore) ListSortedByID(ctx context.Context) ([]Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Product, 0, len(s.m))
	for _, p := range s.m {
		out = append(out, p)
	}

	sort.Slice(out, func(i, j int) bool { return lessID(out[i].ID, out[j].ID) })
	return out, nil
}

func (s *MemStore) Get(ctx context.Context, id string) (Product, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.m[id]
	return p, ok, nil
}

func (s *MemStore) Create(ctx context.Context, f Fields) (Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := strconv.FormatInt(s.nextID, 10)
	s.nextID++

	p := f.product(id)
	s.m[id] = p
	return p, nil
}

func (s *MemStore) Update(ctx context.Context, id string, patch Patch) (Product, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.m[id]
	if !ok {
		return Product{}, false, nil
	}
	p = patch.Apply(p)
	s.m[id] = p
	return p, true, nil
}

func (s *MemStore) Delete(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.m[id]; !ok {
		return false, nil
	}
	delete(s.m, id)
	return true, nil
}

// lessID orders numeric ids numerically and falls back to string order.
func lessID(a, b string) bool {
	ai, aerr := strconv.ParseInt(a, 10, 64)
	bi, berr := strconv.ParseInt(b, 10, 64)
	if aerr == nil && berr == nil {
		return ai < bi
	}
	return a < b
}
