package quote

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

// fakeClock is a settable time source.
type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(dur time.Duration) { c.t = c.t.Add(dur) }

func newTestCache(t *testing.T, b Backend) (*Cache, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2025, 3, 14, 15, 30, 0, 0, time.UTC)}
	c := NewCache(b, DefaultTTL, zap.NewNop())
	c.now = clock.Now
	return c, clock
}

func newRedisBackend(t *testing.T) (*RedisBackend, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewRedisBackend(rdb), mr
}

func backends(t *testing.T) map[string]Backend {
	t.Helper()
	bounded, err := NewBoundedBackend(100)
	if err != nil {
		t.Fatalf("bounded backend: %v", err)
	}
	t.Cleanup(bounded.Close)
	rb, _ := newRedisBackend(t)
	return map[string]Backend{
		"memory":  NewMemoryBackend(),
		"bounded": bounded,
		"redis":   rb,
	}
}

func TestCache_FreshWithinTTL(t *testing.T) {
	ctx := context.Background()
	for name, b := range backends(t) {
		c, clock := newTestCache(t, b)
		c.Put(ctx, "AAPL", d(150))

		clock.Advance(59 * time.Second)
		price, ok := c.Get(ctx, "AAPL")
		if !ok {
			t.Errorf("%s: expected fresh hit after 59s", name)
			continue
		}
		if !price.Equal(d(150)) {
			t.Errorf("%s: expected 150, got %s", name, price)
		}

		// Exactly at the TTL boundary still counts as fresh.
		clock.Advance(time.Second)
		if _, ok := c.Get(ctx, "AAPL"); !ok {
			t.Errorf("%s: expected hit at exactly 60s", name)
		}
	}
}

func TestCache_StaleAfterTTLButKeptForFallback(t *testing.T) {
	ctx := context.Background()
	for name, b := range backends(t) {
		c, clock := newTestCache(t, b)
		c.Put(ctx, "MSFT", d(410.25))

		clock.Advance(61 * time.Second)
		if _, ok := c.Get(ctx, "MSFT"); ok {
			t.Errorf("%s: expected miss after TTL", name)
		}
		last, ok := c.Last(ctx, "MSFT")
		if !ok {
			t.Errorf("%s: stale entry should remain for fallback", name)
			continue
		}
		if !last.Equal(d(410.25)) {
			t.Errorf("%s: expected 410.25, got %s", name, last)
		}
	}
}

func TestCache_PutOverwritesAndRefreshes(t *testing.T) {
	ctx := context.Background()
	for name, b := range backends(t) {
		c, clock := newTestCache(t, b)
		c.Put(ctx, "TSLA", d(200))
		clock.Advance(2 * time.Minute)
		c.Put(ctx, "TSLA", d(210))

		price, ok := c.Get(ctx, "TSLA")
		if !ok || !price.Equal(d(210)) {
			t.Errorf("%s: expected fresh 210, got %s ok=%v", name, price, ok)
		}
	}
}

func TestCache_UnknownSymbol(t *testing.T) {
	ctx := context.Background()
	for name, b := range backends(t) {
		c, _ := newTestCache(t, b)
		if _, ok := c.Get(ctx, "NOPE"); ok {
			t.Errorf("%s: unexpected hit", name)
		}
		if _, ok := c.Last(ctx, "NOPE"); ok {
			t.Errorf("%s: unexpected fallback", name)
		}
	}
}

func TestCache_RedisReadErrorIsMiss(t *testing.T) {
	ctx := context.Background()
	rb, mr := newRedisBackend(t)
	c, _ := newTestCache(t, rb)
	c.Put(ctx, "AAPL", d(150))

	mr.SetError("ERR simulated outage")
	if _, ok := c.Get(ctx, "AAPL"); ok {
		t.Error("expected miss when redis is down")
	}
}

func TestCache_RedisCorruptEntryIsMiss(t *testing.T) {
	ctx := context.Background()
	rb, mr := newRedisBackend(t)
	c, _ := newTestCache(t, rb)

	mr.Set("quote:AAPL", "not-json")
	if _, ok := c.Last(ctx, "AAPL"); ok {
		t.Error("expected miss for undecodable entry")
	}
}

func TestNewBoundedBackend_RejectsZeroSize(t *testing.T) {
	if _, err := NewBoundedBackend(0); err == nil {
		t.Error("expected error for zero size")
	}
}

func TestNewCache_DefaultTTL(t *testing.T) {
	c := NewCache(NewMemoryBackend(), 0, nil)
	if c.TTL() != DefaultTTL {
		t.Errorf("expected default TTL %s, got %s", DefaultTTL, c.TTL())
	}
}
