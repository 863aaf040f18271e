package persist

import (
	"context"
	"sync"
)

type MemBridge struct {
	mu sync.RWMutex
	m  map[string][]byte
}

func NewMemBridge() *MemBridge {
	return &MemBridge{m: map[string][]byte{}}
}

func (b *MemBridge) Get(_ context.Context, key string) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	v, ok := b.m[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (b *MemBridge) Set(_ context.Context, key string, value []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.m[key] = append([]byte(nil), value...)
	return nil
}

func (b *MemBridge) Ping(context.Context) error { return nil }

func (b *MemBridge) Close() error { return nil }
