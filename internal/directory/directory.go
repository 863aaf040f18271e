// Package directory mirrors the remote product catalog. The local cache
// only ever reflects mutations the catalog has confirmed.
package directory

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"Storefront/pkg/kit"
)

type Remote interface {
	List(ctx context.Context) ([]Product, error)
	Get(ctx context.Context, id string) (Product, error)
	Create(ctx context.Context, n NewProduct) (Product, error)
	Update(ctx context.Context, id string, patch ProductPatch) (Product, error)
	Delete(ctx context.Context, id string) error
}

// Op names a remote mutation in flight for a cached record.
type Op string

const (
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Entry is a cached record and its reconciliation tag. An empty Pending
// means the record is confirmed.
type Entry struct {
	Product Product `json:"product"`
	Pending Op      `json:"pending,omitempty"`
}

type entry struct {
	Entry
	seq uint64
}

type Directory struct {
	remote Remote
	log    *zap.Logger
	calls  *prometheus.CounterVec

	mu    sync.RWMutex
	cache []*entry
	seq   uint64

	subs kit.Listeners[[]Product]
}

func New(remote Remote, log *zap.Logger, reg prometheus.Registerer) *Directory {
	if log == nil {
		log = zap.NewNop()
	}
	return &Directory{
		remote: remote,
		log:    log,
		calls: kit.NewCounterVec(reg, "storefront_catalog_calls_total",
			"Remote catalog calls by operation and outcome", "op", "outcome"),
	}
}

// List fetches the whole catalog and replaces the cache with it. On failure
// the cache is kept, and List returns an empty slice together with the
// error so callers can render an empty page and flag it as degraded.
func (d *Directory) List(ctx context.Context) ([]Product, error) {
	products, err := d.remote.List(ctx)
	d.observe("list", err)
	if err != nil {
		d.log.Error("catalog list failed", zap.Error(err))
		return []Product{}, fmt.Errorf("list products: %w", err)
	}

	d.mu.Lock()
	prev := d.cache
	d.cache = make([]*entry, 0, len(products))
	for _, p := range products {
		e := &entry{Entry: Entry{Product: p}}
		if old := find(prev, p.ID); old != nil {
			e.Pending, e.seq = old.Pending, old.seq
		}
		d.cache = append(d.cache, e)
	}
	out := d.productsLocked()
	d.mu.Unlock()

	d.subs.Notify(out)
	return slices.Clone(out), nil
}

// Get asks the catalog for one record; any failure reports ok=false.
func (d *Directory) Get(ctx context.Context, id string) (Product, bool) {
	p, err := d.remote.Get(ctx, id)
	d.observe("get", err)
	if err != nil {
		d.log.Warn("catalog get failed", zap.String("id", id), zap.Error(err))
		return Product{}, false
	}
	return p, true
}

func (d *Directory) Create(ctx context.Context, n NewProduct) (Product, error) {
	if err := n.Validate(); err != nil {
		return Product{}, err
	}

	p, err := d.remote.Create(ctx, n)
	d.observe("create", err)
	if err != nil {
		d.log.Error("catalog create failed", zap.Error(err))
		return Product{}, fmt.Errorf("create product: %w", err)
	}
	if p.ID == "" {
		return Product{}, fmt.Errorf("create product: %w: no id issued", ErrCatalogBadStatus)
	}

	d.commit(func() {
		d.cache = append(d.cache, &entry{Entry: Entry{Product: p}})
	})
	return p, nil
}

// Update sends patch to the catalog and, once confirmed, applies the patch
// and the catalog's reply to the cached record with the same id.
func (d *Directory) Update(ctx context.Context, id string, patch ProductPatch) (Product, error) {
	if err := patch.Validate(); err != nil {
		return Product{}, err
	}

	seq := d.markPending(id, OpUpdate)
	reply, err := d.remote.Update(ctx, id, patch)
	d.observe("update", err)
	if err != nil {
		d.clearPending(id, seq)
		d.log.Error("catalog update failed", zap.String("id", id), zap.Error(err))
		return Product{}, fmt.Errorf("update product %s: %w", id, err)
	}

	var updated Product
	d.commit(func() {
		e := find(d.cache, id)
		if e == nil {
			updated = reply
			return
		}
		e.Product = merge(patch.apply(e.Product), reply)
		if e.seq == seq {
			e.Pending = ""
		}
		updated = e.Product
	})
	return updated, nil
}

func (d *Directory) Delete(ctx context.Context, id string) error {
	seq := d.markPending(id, OpDelete)
	err := d.remote.Delete(ctx, id)
	d.observe("delete", err)
	if err != nil {
		d.clearPending(id, seq)
		d.log.Error("catalog delete failed", zap.String("id", id), zap.Error(err))
		return fmt.Errorf("delete product %s: %w", id, err)
	}

	d.commit(func() {
		d.cache = slices.DeleteFunc(d.cache, func(e *entry) bool { return e.Product.ID == id })
	})
	return nil
}

// Products returns the cached records in catalog order.
func (d *Directory) Products() []Product {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.productsLocked()
}

// Cached returns the cached records with their reconciliation tags.
func (d *Directory) Cached() []Entry {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]Entry, 0, len(d.cache))
	for _, e := range d.cache {
		out = append(out, e.Entry)
	}
	return out
}

func (d *Directory) Subscribe(fn func([]Product)) (cancel func()) {
	return d.subs.Subscribe(fn)
}

func (d *Directory) commit(fn func()) {
	d.mu.Lock()
	fn()
	out := d.productsLocked()
	d.mu.Unlock()

	d.subs.Notify(out)
}

func (d *Directory) markPending(id string, op Op) uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.seq++
	if e := find(d.cache, id); e != nil {
		e.Pending, e.seq = op, d.seq
	}
	return d.seq
}

// clearPending drops the tag unless a later mutation has taken it over.
func (d *Directory) clearPending(id string, seq uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if e := find(d.cache, id); e != nil && e.seq == seq {
		e.Pending = ""
	}
}

func (d *Directory) productsLocked() []Product {
	out := make([]Product, 0, len(d.cache))
	for _, e := range d.cache {
		out = append(out, e.Product)
	}
	return out
}

func (d *Directory) observe(op string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	d.calls.WithLabelValues(op, outcome).Inc()
}

func find(cache []*entry, id string) *entry {
	for _, e := range cache {
		if e.Product.ID == id {
			return e
		}
	}
	return nil
}
