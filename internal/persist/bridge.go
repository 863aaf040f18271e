// Package persist is the durable per-client key-value bridge behind the cart
// and wishlist stores.
package persist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

var ErrNotFound = errors.New("persist: key not found")

const (
	SlotCart     = "cart"
	SlotWishlist = "wishlist"

	keyPrefix = "storefront"
)

// Bridge stores opaque values under string keys. Get returns ErrNotFound
// when nothing was ever saved under key. Set is synchronous: when it
// returns nil the value is durable for that backend.
type Bridge interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Ping(ctx context.Context) error
	Close() error
}

// SlotKey names one client's slot.
func SlotKey(clientID, slot string) string {
	return keyPrefix + ":" + clientID + ":" + slot
}

// Load reads a JSON-encoded collection. Missing and corrupt values report
// ok=false and the caller starts empty. A failed read is returned as an
// error: the saved value may still exist and must not be overwritten.
func Load[T any](ctx context.Context, b Bridge, key string, log *zap.Logger) (items []T, ok bool, err error) {
	raw, err := b.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load %s: %w", key, err)
	}

	if err := json.Unmarshal(raw, &items); err != nil {
		log.Warn("persisted value corrupt, starting empty", zap.String("key", key), zap.Error(err))
		return nil, false, nil
	}
	return items, true, nil
}

// Save writes the whole collection. A nil slice is stored as [].
func Save[T any](ctx context.Context, b Bridge, key string, items []T) error {
	if items == nil {
		items = []T{}
	}
	raw, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := b.Set(ctx, key, raw); err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}
