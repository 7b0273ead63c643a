// Package quote provides current prices for equities: a time-boxed price
// cache with pluggable backends, and a Provider that fronts a market data
// Source with that cache.
package quote

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/papertrade/simulator/internal/metrics"
)

// DefaultTTL is how long a cached price counts as fresh.
const DefaultTTL = 60 * time.Second

// Entry is a cached price and the time it was fetched.
type Entry struct {
	Price     decimal.Decimal `json:"price"`
	FetchedAt time.Time       `json:"fetched_at"`
}

// Backend stores cache entries. Load returns entries regardless of age;
// freshness is decided by Cache at read time.
type Backend interface {
	Load(ctx context.Context, symbol string) (Entry, bool, error)
	Store(ctx context.Context, symbol string, e Entry) error
}

// Cache holds the last known price per symbol. Stale entries are never
// evicted by age: they stay available through Last as a fallback.
type Cache struct {
	backend Backend
	ttl     time.Duration
	now     func() time.Time
	logger  *zap.Logger
}

// NewCache creates a cache over backend. A non-positive ttl means DefaultTTL.
func NewCache(backend Backend, ttl time.Duration, logger *zap.Logger) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{
		backend: backend,
		ttl:     ttl,
		now:     time.Now,
		logger:  logger,
	}
}

// TTL returns the freshness window.
func (c *Cache) TTL() time.Duration { return c.ttl }

// Get returns the cached price only if it was fetched within the TTL.
func (c *Cache) Get(ctx context.Context, symbol string) (decimal.Decimal, bool) {
	e, ok := c.load(ctx, symbol)
	if !ok || c.now().Sub(e.FetchedAt) > c.ttl {
		metrics.QuoteCacheLookups.WithLabelValues("miss").Inc()
		return decimal.Zero, false
	}
	metrics.QuoteCacheLookups.WithLabelValues("hit").Inc()
	return e.Price, true
}

// Last returns the cached price whatever its age.
func (c *Cache) Last(ctx context.Context, symbol string) (decimal.Decimal, bool) {
	e, ok := c.load(ctx, symbol)
	if !ok {
		return decimal.Zero, false
	}
	return e.Price, true
}

// Put overwrites the entry for symbol with a fresh timestamp.
func (c *Cache) Put(ctx context.Context, symbol string, price decimal.Decimal) {
	e := Entry{Price: price, FetchedAt: c.now()}
	if err := c.backend.Store(ctx, symbol, e); err != nil {
		c.logger.Warn("price cache write failed", zap.String("symbol", symbol), zap.Error(err))
	}
}

// load treats backend errors as a miss.
func (c *Cache) load(ctx context.Context, symbol string) (Entry, bool) {
	e, ok, err := c.backend.Load(ctx, symbol)
	if err != nil {
		c.logger.Warn("price cache read failed", zap.String("symbol", symbol), zap.Error(err))
		return Entry{}, false
	}
	return e, ok
}
