// Package wishlist is the per-client set of saved products.
package wishlist

import (
	"context"
	"slices"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"Storefront/internal/persist"
	"Storefront/pkg/kit"
)

type Entry struct {
	ID        int64           `json:"id"`
	Title     string          `json:"title"`
	UnitPrice decimal.Decimal `json:"price"`
	Image     string          `json:"image"`
}

type Snapshot struct {
	Entries []Entry         `json:"items"`
	Total   decimal.Decimal `json:"total"`
}

// Store holds at most one entry per id. Entries keep insertion order, but
// callers should not depend on it.
type Store struct {
	commit  sync.Mutex
	mu      sync.Mutex
	entries []Entry
	bridge  persist.Bridge
	key     string
	log     *zap.Logger

	subs kit.Listeners[[]Entry]
}

func New(ctx context.Context, bridge persist.Bridge, key string, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	saved, _, err := persist.Load[Entry](ctx, bridge, key, log)
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(saved))
	for _, e := range saved {
		if !contains(entries, e.ID) {
			entries = append(entries, e)
		}
	}

	return &Store{
		entries: entries,
		bridge:  bridge,
		key:     key,
		log:     log,
	}, nil
}

// Add inserts entry unless its id is already present.
func (s *Store) Add(ctx context.Context, entry Entry) error {
	return s.mutate(ctx, func(cur []Entry) []Entry {
		if contains(cur, entry.ID) {
			return cur
		}
		return append(slices.Clone(cur), entry)
	})
}

// Remove deletes id if present.
func (s *Store) Remove(ctx context.Context, id int64) error {
	return s.mutate(ctx, func(cur []Entry) []Entry {
		return slices.DeleteFunc(slices.Clone(cur), func(e Entry) bool { return e.ID == id })
	})
}

func (s *Store) Contains(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return contains(s.entries, id)
}

// Lookup returns the entry saved under id.
func (s *Store) Lookup(id int64) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := slices.IndexFunc(s.entries, func(e Entry) bool { return e.ID == id }); i >= 0 {
		return s.entries[i], true
	}
	return Entry{}, false
}

func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Entries: append(make([]Entry, 0, len(s.entries)), s.entries...),
		Total:   total(s.entries),
	}
}

func (s *Store) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append(make([]Entry, 0, len(s.entries)), s.entries...)
}

// Total is the sum of the saved unit prices.
func (s *Store) Total() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return total(s.entries)
}

func (s *Store) Subscribe(fn func([]Entry)) (cancel func()) {
	return s.subs.Subscribe(fn)
}

// mutate holds commit across save and notify so subscribers observe
// collections in commit order.
func (s *Store) mutate(ctx context.Context, fn func([]Entry) []Entry) error {
	s.commit.Lock()
	defer s.commit.Unlock()

	s.mu.Lock()
	cur := s.entries
	s.mu.Unlock()

	next := fn(cur)
	if err := persist.Save(ctx, s.bridge, s.key, next); err != nil {
		s.log.Error("wishlist not persisted", zap.String("key", s.key), zap.Error(err))
		return err
	}

	s.mu.Lock()
	s.entries = next
	out := append(make([]Entry, 0, len(next)), next...)
	s.mu.Unlock()

	s.subs.Notify(out)
	return nil
}

func contains(entries []Entry, id int64) bool {
	return slices.ContainsFunc(entries, func(e Entry) bool { return e.ID == id })
}

func total(entries []Entry) decimal.Decimal {
	sum := decimal.Zero
	for _, e := range entries {
		sum = sum.Add(e.UnitPrice)
	}
	return sum
}
