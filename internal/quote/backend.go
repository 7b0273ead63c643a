package quote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/dgraph-io/ristretto"
	"github.com/redis/go-redis/v9"
)

// MemoryBackend keeps every symbol ever priced in a map. Growth is bounded
// by the symbol universe users actually touch.
type MemoryBackend struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewMemoryBackend creates an empty in-process backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{entries: make(map[string]Entry)}
}

func (b *MemoryBackend) Load(_ context.Context, symbol string) (Entry, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	e, ok := b.entries[symbol]
	return e, ok, nil
}

func (b *MemoryBackend) Store(_ context.Context, symbol string, e Entry) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.entries[symbol] = e
	return nil
}

// BoundedBackend caps the number of cached symbols with a ristretto cache.
// Entries carry no ristretto TTL so stale prices remain usable as a
// fallback until the admission policy evicts them.
type BoundedBackend struct {
	c *ristretto.Cache
}

// NewBoundedBackend creates a backend holding at most maxSymbols entries.
func NewBoundedBackend(maxSymbols int64) (*BoundedBackend, error) {
	if maxSymbols <= 0 {
		return nil, fmt.Errorf("quote: bounded backend needs a positive size, got %d", maxSymbols)
	}
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxSymbols * 10,
		MaxCost:     maxSymbols,
		BufferItems: 64,
		// Cost counts symbols, not bytes.
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, err
	}
	return &BoundedBackend{c: c}, nil
}

func (b *BoundedBackend) Load(_ context.Context, symbol string) (Entry, bool, error) {
	v, ok := b.c.Get(symbol)
	if !ok {
		return Entry{}, false, nil
	}
	e, ok := v.(Entry)
	return e, ok, nil
}

// Store waits for the write buffer to drain so the entry is visible to
// the next Load.
func (b *BoundedBackend) Store(_ context.Context, symbol string, e Entry) error {
	b.c.Set(symbol, e, 1)
	b.c.Wait()
	return nil
}

// Close stops the ristretto background goroutines.
func (b *BoundedBackend) Close() { b.c.Close() }

// RedisBackend shares cached prices between processes. Keys never expire
// in Redis; freshness is still judged from FetchedAt.
type RedisBackend struct {
	rdb *redis.Client
}

// NewRedisBackend creates a backend on an existing client.
func NewRedisBackend(rdb *redis.Client) *RedisBackend {
	return &RedisBackend{rdb: rdb}
}

func (b *RedisBackend) Load(ctx context.Context, symbol string) (Entry, bool, error) {
	data, err := b.rdb.Get(ctx, priceKey(symbol)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, err
	}

	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return Entry{}, false, fmt.Errorf("decode cached price %s: %w", symbol, err)
	}
	return e, true, nil
}

func (b *RedisBackend) Store(ctx context.Context, symbol string, e Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return b.rdb.Set(ctx, priceKey(symbol), data, 0).Err()
}

func priceKey(symbol string) string { return fmt.Sprintf("quote:%s", symbol) }
