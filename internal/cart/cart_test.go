package cart

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"Storefront/internal/persist"
)

const key = "storefront:c1:cart"

func newStore(t *testing.T, b persist.Bridge) *Store {
	t.Helper()
	s, err := New(context.Background(), b, key, zap.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func price(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestAdd_SameIDIncrementsIgnoringQuantity(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, persist.NewMemBridge())

	for i := 0; i < 5; i++ {
		if err := s.Add(ctx, Line{ID: 1, Title: "Bag", UnitPrice: price("3.50"), Quantity: 40}); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}

	lines := s.Lines()
	if len(lines) != 1 {
		t.Fatalf("lines=%d", len(lines))
	}
	if lines[0].Quantity != 5 {
		t.Fatalf("quantity=%d want=5", lines[0].Quantity)
	}
}

func TestAdd_TwiceTotals(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, persist.NewMemBridge())

	_ = s.Add(ctx, Line{ID: 1, UnitPrice: price("10.00")})
	_ = s.Add(ctx, Line{ID: 1, UnitPrice: price("10.00")})

	lines := s.Lines()
	if len(lines) != 1 || lines[0].Quantity != 2 {
		t.Fatalf("lines=%+v", lines)
	}
	if !s.Total().Equal(price("20.00")) {
		t.Fatalf("total=%s", s.Total())
	}
}

func TestAdd_KeepsInsertionOrder(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, persist.NewMemBridge())

	for _, id := range []int64{3, 1, 2, 1} {
		_ = s.Add(ctx, Line{ID: id})
	}

	lines := s.Lines()
	want := []int64{3, 1, 2}
	if len(lines) != len(want) {
		t.Fatalf("lines=%+v", lines)
	}
	for i, id := range want {
		if lines[i].ID != id {
			t.Fatalf("pos %d id=%d want=%d", i, lines[i].ID, id)
		}
	}
}

func TestUpdateQuantity(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		q       int
		wantQty int
		wantErr error
	}{
		{name: "sets exactly", q: 7, wantQty: 7},
		{name: "one is allowed", q: 1, wantQty: 1},
		{name: "zero rejected", q: 0, wantQty: 3, wantErr: ErrInvalidQuantity},
		{name: "negative rejected", q: -2, wantQty: 3, wantErr: ErrInvalidQuantity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStore(t, persist.NewMemBridge())
			for i := 0; i < 3; i++ {
				_ = s.Add(ctx, Line{ID: 4, UnitPrice: price("1")})
			}

			err := s.UpdateQuantity(ctx, 4, tt.q)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err=%v want=%v", err, tt.wantErr)
			}
			if got := s.Lines()[0].Quantity; got != tt.wantQty {
				t.Fatalf("quantity=%d want=%d", got, tt.wantQty)
			}
		})
	}
}

func TestUpdateQuantity_RejectedDoesNotPersist(t *testing.T) {
	ctx := context.Background()
	b := persist.NewMemBridge()
	s := newStore(t, b)
	_ = s.Add(ctx, Line{ID: 1})

	before, _ := b.Get(ctx, key)
	_ = s.UpdateQuantity(ctx, 1, 0)
	after, _ := b.Get(ctx, key)

	if string(before) != string(after) {
		t.Fatalf("persisted value changed: %s -> %s", before, after)
	}
}

func TestUpdateQuantity_UnknownIDIsNoop(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, persist.NewMemBridge())
	_ = s.Add(ctx, Line{ID: 1})

	if err := s.UpdateQuantity(ctx, 99, 5); err != nil {
		t.Fatalf("UpdateQuantity: %v", err)
	}
	lines := s.Lines()
	if len(lines) != 1 || lines[0].Quantity != 1 {
		t.Fatalf("lines=%+v", lines)
	}
}

func TestRemove_Idempotent(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, persist.NewMemBridge())
	_ = s.Add(ctx, Line{ID: 1})
	_ = s.Add(ctx, Line{ID: 2})

	for i := 0; i < 2; i++ {
		if err := s.Remove(ctx, 1); err != nil {
			t.Fatalf("Remove: %v", err)
		}
	}

	lines := s.Lines()
	if len(lines) != 1 || lines[0].ID != 2 {
		t.Fatalf("lines=%+v", lines)
	}
}

func TestRemove_AbsentIsNoError(t *testing.T) {
	s := newStore(t, persist.NewMemBridge())
	if err := s.Remove(context.Background(), 42); err != nil {
		t.Fatalf("Remove: %v", err)
	}
}

func TestPersistence_RoundTrip(t *testing.T) {
	ctx := context.Background()
	b := persist.NewMemBridge()

	s := newStore(t, b)
	_ = s.Add(ctx, Line{ID: 1, Title: "Hat", UnitPrice: price("12.25"), Image: "hat.png"})
	_ = s.Add(ctx, Line{ID: 2, Title: "Scarf", UnitPrice: price("7.10")})
	_ = s.UpdateQuantity(ctx, 2, 3)

	fresh := newStore(t, b)
	got, want := fresh.Lines(), s.Lines()
	if len(got) != len(want) {
		t.Fatalf("got=%+v want=%+v", got, want)
	}
	for i := range want {
		if got[i].ID != want[i].ID || got[i].Quantity != want[i].Quantity ||
			got[i].Title != want[i].Title || got[i].Image != want[i].Image ||
			!got[i].UnitPrice.Equal(want[i].UnitPrice) {
			t.Fatalf("line %d: got=%+v want=%+v", i, got[i], want[i])
		}
	}
	if !fresh.Total().Equal(price("33.55")) {
		t.Fatalf("total=%s", fresh.Total())
	}
}

func TestNew_NoPriorSaveIsEmpty(t *testing.T) {
	s := newStore(t, persist.NewMemBridge())
	if len(s.Lines()) != 0 {
		t.Fatalf("lines=%+v", s.Lines())
	}
	if !s.Total().IsZero() {
		t.Fatalf("total=%s", s.Total())
	}
}

func TestNew_CorruptValueIsEmpty(t *testing.T) {
	ctx := context.Background()
	b := persist.NewMemBridge()
	_ = b.Set(ctx, key, []byte(`[{"id":1,"quantity":`))

	s := newStore(t, b)
	if len(s.Lines()) != 0 {
		t.Fatalf("lines=%+v", s.Lines())
	}
}

func TestNew_NormalizesStoredLines(t *testing.T) {
	ctx := context.Background()
	b := persist.NewMemBridge()
	_ = b.Set(ctx, key, []byte(`[{"id":1,"price":"2","quantity":0},{"id":1,"price":"2","quantity":2}]`))

	s := newStore(t, b)
	lines := s.Lines()
	if len(lines) != 1 || lines[0].Quantity != 3 {
		t.Fatalf("lines=%+v", lines)
	}
}

type brokenBridge struct{ *persist.MemBridge }

func (brokenBridge) Set(context.Context, string, []byte) error { return errors.New("disk full") }

func TestMutation_FailedSaveLeavesStoreUnchanged(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, brokenBridge{persist.NewMemBridge()})

	notified := 0
	s.Subscribe(func(Snapshot) { notified++ })

	if err := s.Add(ctx, Line{ID: 1}); err == nil {
		t.Fatalf("expected error")
	}
	if len(s.Lines()) != 0 {
		t.Fatalf("lines=%+v", s.Lines())
	}
	if notified != 0 {
		t.Fatalf("notified=%d", notified)
	}
}

func TestSubscribe_ReceivesCommittedSnapshots(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, persist.NewMemBridge())

	var got []Snapshot
	cancel := s.Subscribe(func(snap Snapshot) { got = append(got, snap) })

	_ = s.Add(ctx, Line{ID: 1, UnitPrice: price("4")})
	_ = s.Add(ctx, Line{ID: 1, UnitPrice: price("4")})
	cancel()
	_ = s.Remove(ctx, 1)

	if len(got) != 2 {
		t.Fatalf("notifications=%d", len(got))
	}
	if !got[1].Total.Equal(price("8")) {
		t.Fatalf("total=%s", got[1].Total)
	}
}

func TestLines_ReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, persist.NewMemBridge())
	_ = s.Add(ctx, Line{ID: 1})

	lines := s.Lines()
	lines[0].Quantity = 100

	if s.Lines()[0].Quantity != 1 {
		t.Fatalf("store mutated through returned slice")
	}
}

// flakyBridge fails the next failGets reads and then behaves like MemBridge.
type flakyBridge struct {
	*persist.MemBridge
	failGets int
}

func (b *flakyBridge) Get(ctx context.Context, key string) ([]byte, error) {
	if b.failGets > 0 {
		b.failGets--
		return nil, errors.New("connection refused")
	}
	return b.MemBridge.Get(ctx, key)
}

func TestNew_ReadFailureKeepsSavedCart(t *testing.T) {
	ctx := context.Background()
	b := &flakyBridge{MemBridge: persist.NewMemBridge()}

	s := newStore(t, b)
	for _, id := range []int64{1, 1, 1, 2} {
		_ = s.Add(ctx, Line{ID: id, UnitPrice: price("1")})
	}

	b.failGets = 1
	if _, err := New(ctx, b, key, zap.NewNop()); err == nil {
		t.Fatalf("expected load error")
	}

	fresh := newStore(t, b)
	_ = fresh.Add(ctx, Line{ID: 9, UnitPrice: price("1")})

	got := newStore(t, b).Lines()
	want := map[int64]int{1: 3, 2: 1, 9: 1}
	if len(got) != len(want) {
		t.Fatalf("lines=%+v", got)
	}
	for _, l := range got {
		if want[l.ID] != l.Quantity {
			t.Fatalf("line %d quantity=%d want=%d", l.ID, l.Quantity, want[l.ID])
		}
	}
}

func TestSubscribe_ConcurrentCommitsArriveInOrder(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, persist.NewMemBridge())

	var (
		mu   sync.Mutex
		seen []int
	)
	s.Subscribe(func(snap Snapshot) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, snap.Lines[0].Quantity)
	})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Add(ctx, Line{ID: 1})
		}()
	}
	wg.Wait()

	if len(seen) != 50 {
		t.Fatalf("notifications=%d", len(seen))
	}
	for i, q := range seen {
		if q != i+1 {
			t.Fatalf("notification %d carried quantity %d", i, q)
		}
	}
}
