// Package cart is the per-client shopping cart: an ordered collection of
// lines merged by product id and written through to a persist.Bridge on
// every mutation.
package cart

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"Storefront/internal/persist"
	"Storefront/pkg/kit"
)

var ErrInvalidQuantity = errors.New("quantity must be at least 1")

type Line struct {
	ID        int64           `json:"id"`
	Title     string          `json:"title"`
	UnitPrice decimal.Decimal `json:"price"`
	Image     string          `json:"image"`
	Quantity  int             `json:"quantity"`
}

func (l Line) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

type Snapshot struct {
	Lines []Line          `json:"items"`
	Total decimal.Decimal `json:"total"`
}

// Store serializes all mutations; a mutation is visible to readers only
// after the bridge accepted the new collection. Subscribers see commits in
// commit order and must not mutate the store from their callback.
type Store struct {
	commit sync.Mutex
	mu     sync.Mutex
	lines  []Line
	bridge persist.Bridge
	key    string
	log    *zap.Logger

	subs kit.Listeners[Snapshot]
}

// New loads the previously persisted cart for key before returning, so the
// store never accepts an operation against an unloaded collection. A failed
// read returns an error instead of an empty cart.
func New(ctx context.Context, bridge persist.Bridge, key string, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	saved, _, err := persist.Load[Line](ctx, bridge, key, log)
	if err != nil {
		return nil, err
	}

	return &Store{
		lines:  normalize(saved),
		bridge: bridge,
		key:    key,
		log:    log,
	}, nil
}

// Add merges by id: an existing line gains one unit, a new line starts at
// quantity 1. line.Quantity is ignored.
func (s *Store) Add(ctx context.Context, line Line) error {
	return s.mutate(ctx, func(cur []Line) ([]Line, error) {
		next := slices.Clone(cur)
		if i := indexOf(next, line.ID); i >= 0 {
			next[i].Quantity++
			return next, nil
		}
		line.Quantity = 1
		return append(next, line), nil
	})
}

// Remove deletes the line with id. Removing an absent id succeeds.
func (s *Store) Remove(ctx context.Context, id int64) error {
	return s.mutate(ctx, func(cur []Line) ([]Line, error) {
		return slices.DeleteFunc(slices.Clone(cur), func(l Line) bool { return l.ID == id }), nil
	})
}

// UpdateQuantity sets the quantity of line id exactly. quantity < 1 is
// rejected with ErrInvalidQuantity and the cart is left untouched.
func (s *Store) UpdateQuantity(ctx context.Context, id int64, quantity int) error {
	if quantity < 1 {
		return ErrInvalidQuantity
	}
	return s.mutate(ctx, func(cur []Line) ([]Line, error) {
		next := slices.Clone(cur)
		if i := indexOf(next, id); i >= 0 {
			next[i].Quantity = quantity
		}
		return next, nil
	})
}

func (s *Store) Lines() []Line {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.lines)
}

// Total is recomputed on every call.
func (s *Store) Total() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return total(s.lines)
}

func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return snapshot(s.lines)
}

// Subscribe registers fn for every committed mutation.
func (s *Store) Subscribe(fn func(Snapshot)) (cancel func()) {
	return s.subs.Subscribe(fn)
}

func (s *Store) mutate(ctx context.Context, fn func([]Line) ([]Line, error)) error {
	s.commit.Lock()
	defer s.commit.Unlock()

	s.mu.Lock()
	cur := s.lines
	s.mu.Unlock()

	next, err := fn(cur)
	if err != nil {
		return err
	}
	if err := persist.Save(ctx, s.bridge, s.key, next); err != nil {
		s.log.Error("cart not persisted", zap.String("key", s.key), zap.Error(err))
		return err
	}

	s.mu.Lock()
	s.lines = next
	snap := snapshot(next)
	s.mu.Unlock()

	s.subs.Notify(snap)
	return nil
}

func snapshot(lines []Line) Snapshot {
	return Snapshot{Lines: append(make([]Line, 0, len(lines)), lines...), Total: total(lines)}
}

func total(lines []Line) decimal.Decimal {
	sum := decimal.Zero
	for _, l := range lines {
		sum = sum.Add(l.Subtotal())
	}
	return sum
}

func indexOf(lines []Line, id int64) int {
	return slices.IndexFunc(lines, func(l Line) bool { return l.ID == id })
}

// normalize restores the line invariants on data read back from storage:
// one line per id, quantity at least 1.
func normalize(saved []Line) []Line {
	out := make([]Line, 0, len(saved))
	for _, l := range saved {
		if l.Quantity < 1 {
			l.Quantity = 1
		}
		if i := indexOf(out, l.ID); i >= 0 {
			out[i].Quantity += l.Quantity
			continue
		}
		out = append(out, l)
	}
	return out
}
