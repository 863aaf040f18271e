package wishlist

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"Storefront/internal/persist"
)

const key = "storefront:c1:wishlist"

func newStore(t *testing.T, b persist.Bridge) *Store {
	t.Helper()
	s, err := New(context.Background(), b, key, zap.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestAdd_SameIDTwiceYieldsOneEntry(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, persist.NewMemBridge())

	_ = s.Add(ctx, Entry{ID: 5, Title: "Watch"})
	_ = s.Add(ctx, Entry{ID: 5, Title: "Watch (again)"})

	entries := s.Entries()
	if len(entries) != 1 || entries[0].ID != 5 {
		t.Fatalf("entries=%+v", entries)
	}
	if entries[0].Title != "Watch" {
		t.Fatalf("first insert must win, got %q", entries[0].Title)
	}
}

func TestRemove_IdempotentAndAbsent(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, persist.NewMemBridge())
	_ = s.Add(ctx, Entry{ID: 1})
	_ = s.Add(ctx, Entry{ID: 2})

	for i := 0; i < 2; i++ {
		if err := s.Remove(ctx, 1); err != nil {
			t.Fatalf("Remove: %v", err)
		}
	}
	if err := s.Remove(ctx, 404); err != nil {
		t.Fatalf("Remove absent: %v", err)
	}

	if s.Contains(1) || !s.Contains(2) {
		t.Fatalf("entries=%+v", s.Entries())
	}
}

func TestPersistence_RoundTrip(t *testing.T) {
	ctx := context.Background()
	b := persist.NewMemBridge()

	s := newStore(t, b)
	_ = s.Add(ctx, Entry{ID: 1, Title: "Ring", UnitPrice: decimal.RequireFromString("99.99"), Image: "ring.png"})
	_ = s.Add(ctx, Entry{ID: 2, Title: "Chain", UnitPrice: decimal.RequireFromString("15")})

	got := newStore(t, b).Entries()
	want := s.Entries()
	if len(got) != len(want) {
		t.Fatalf("got=%+v want=%+v", got, want)
	}
	for i := range want {
		if got[i].ID != want[i].ID || got[i].Title != want[i].Title ||
			got[i].Image != want[i].Image || !got[i].UnitPrice.Equal(want[i].UnitPrice) {
			t.Fatalf("entry %d: got=%+v want=%+v", i, got[i], want[i])
		}
	}
}

func TestNew_EmptyWithoutPriorSave(t *testing.T) {
	if n := len(newStore(t, persist.NewMemBridge()).Entries()); n != 0 {
		t.Fatalf("entries=%d", n)
	}
}

func TestNew_DropsDuplicateStoredIDs(t *testing.T) {
	ctx := context.Background()
	b := persist.NewMemBridge()
	_ = b.Set(ctx, key, []byte(`[{"id":3,"title":"a"},{"id":3,"title":"b"}]`))

	entries := newStore(t, b).Entries()
	if len(entries) != 1 || entries[0].Title != "a" {
		t.Fatalf("entries=%+v", entries)
	}
}

func TestNew_CorruptValueIsEmpty(t *testing.T) {
	ctx := context.Background()
	b := persist.NewMemBridge()
	_ = b.Set(ctx, key, []byte(`"not a list"`))

	if n := len(newStore(t, b).Entries()); n != 0 {
		t.Fatalf("entries=%d", n)
	}
}

type brokenBridge struct{ *persist.MemBridge }

func (brokenBridge) Set(context.Context, string, []byte) error { return errors.New("quota exceeded") }

func TestAdd_FailedSaveLeavesStoreUnchanged(t *testing.T) {
	s := newStore(t, brokenBridge{persist.NewMemBridge()})

	if err := s.Add(context.Background(), Entry{ID: 1}); err == nil {
		t.Fatalf("expected error")
	}
	if s.Contains(1) {
		t.Fatalf("entry committed despite failed save")
	}
}

func TestSubscribe_NotifiedOnCommit(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, persist.NewMemBridge())

	var sizes []int
	s.Subscribe(func(e []Entry) { sizes = append(sizes, len(e)) })

	_ = s.Add(ctx, Entry{ID: 1})
	_ = s.Add(ctx, Entry{ID: 1})
	_ = s.Remove(ctx, 1)

	want := []int{1, 1, 0}
	if len(sizes) != len(want) {
		t.Fatalf("sizes=%v", sizes)
	}
	for i := range want {
		if sizes[i] != want[i] {
			t.Fatalf("sizes=%v want=%v", sizes, want)
		}
	}
}

type unreachableBridge struct{ *persist.MemBridge }

func (unreachableBridge) Get(context.Context, string) ([]byte, error) {
	return nil, errors.New("i/o timeout")
}

func TestNew_ReadFailureIsAnError(t *testing.T) {
	if _, err := New(context.Background(), unreachableBridge{persist.NewMemBridge()}, key, zap.NewNop()); err == nil {
		t.Fatalf("expected error")
	}
}

func TestTotal_SumsUnitPrices(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, persist.NewMemBridge())

	_ = s.Add(ctx, Entry{ID: 1, UnitPrice: decimal.RequireFromString("19.90")})
	_ = s.Add(ctx, Entry{ID: 2, UnitPrice: decimal.RequireFromString("5.10")})
	_ = s.Add(ctx, Entry{ID: 2, UnitPrice: decimal.RequireFromString("5.10")})

	if !s.Total().Equal(decimal.RequireFromString("25.00")) {
		t.Fatalf("total=%s", s.Total())
	}
}

func TestLookupAndSnapshot(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, persist.NewMemBridge())
	_ = s.Add(ctx, Entry{ID: 4, Title: "Scarf", UnitPrice: decimal.RequireFromString("12.00")})

	e, ok := s.Lookup(4)
	if !ok || e.Title != "Scarf" {
		t.Fatalf("lookup=%+v ok=%v", e, ok)
	}
	if _, ok := s.Lookup(5); ok {
		t.Fatalf("absent id found")
	}

	snap := s.Snapshot()
	if len(snap.Entries) != 1 || !snap.Total.Equal(decimal.RequireFromString("12")) {
		t.Fatalf("snapshot=%+v", snap)
	}
}
