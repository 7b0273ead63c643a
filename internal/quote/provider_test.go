package quote

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/papertrade/simulator/internal/model"
)

// fakeSource serves canned quotes and counts calls per symbol.
type fakeSource struct {
	mu     sync.Mutex
	quotes map[string]*model.Quote
	errs   map[string]error
	calls  map[string]int
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		quotes: make(map[string]*model.Quote),
		errs:   make(map[string]error),
		calls:  make(map[string]int),
	}
}

func (f *fakeSource) set(symbol string, price float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.quotes[symbol] = &model.Quote{Symbol: symbol, Price: d(price), Volume: 1000}
	delete(f.errs, symbol)
}

func (f *fakeSource) fail(symbol string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[symbol] = err
}

func (f *fakeSource) count(symbol string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[symbol]
}

func (f *fakeSource) Quote(_ context.Context, symbol string) (*model.Quote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[symbol]++
	if err := f.errs[symbol]; err != nil {
		return nil, err
	}
	q, ok := f.quotes[symbol]
	if !ok {
		return nil, fmt.Errorf("no data: %w", ErrNotFound)
	}
	cp := *q
	return &cp, nil
}

func (f *fakeSource) Overview(_ context.Context, symbol string) (*model.Overview, error) {
	if symbol == "LIMIT" {
		return nil, ErrRateLimited
	}
	return &model.Overview{Symbol: symbol, Name: "Apple Inc"}, nil
}

func (f *fakeSource) Search(_ context.Context, keywords string) ([]model.SearchMatch, error) {
	return []model.SearchMatch{{Symbol: "AAPL", Name: keywords}}, nil
}

func (f *fakeSource) Series(_ context.Context, symbol, _ string) ([]model.Bar, error) {
	if symbol == "EMPTY" {
		return nil, nil
	}
	return []model.Bar{{Close: d(1)}}, nil
}

func newTestProvider(t *testing.T) (*Provider, *fakeSource, *fakeClock) {
	t.Helper()
	src := newFakeSource()
	cache, clock := newTestCache(t, NewMemoryBackend())
	return NewProvider(src, cache, zap.NewNop()), src, clock
}

func TestProvider_CachesWithinTTL(t *testing.T) {
	p, src, clock := newTestProvider(t)
	ctx := context.Background()
	src.set("AAPL", 150)

	q, err := p.Quote(ctx, "AAPL")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q.Cached {
		t.Error("first lookup should not be cached")
	}
	if q.Volume != 1000 {
		t.Errorf("expected full quote fields, got volume=%d", q.Volume)
	}

	clock.Advance(30 * time.Second)
	src.set("AAPL", 155)

	q, err = p.Quote(ctx, "AAPL")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !q.Cached {
		t.Error("second lookup within TTL should come from cache")
	}
	if !q.Price.Equal(d(150)) {
		t.Errorf("expected cached 150, got %s", q.Price)
	}
	if n := src.count("AAPL"); n != 1 {
		t.Errorf("expected 1 source call, got %d", n)
	}
}

func TestProvider_RefreshesAfterTTL(t *testing.T) {
	p, src, clock := newTestProvider(t)
	ctx := context.Background()
	src.set("AAPL", 150)

	p.CurrentPrice(ctx, "AAPL")
	clock.Advance(61 * time.Second)
	src.set("AAPL", 155)

	price, err := p.CurrentPrice(ctx, "AAPL")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !price.Equal(d(155)) {
		t.Errorf("expected refreshed 155, got %s", price)
	}
	if n := src.count("AAPL"); n != 2 {
		t.Errorf("expected 2 source calls, got %d", n)
	}
}

func TestProvider_SinglePathPropagatesErrorDespiteStaleCache(t *testing.T) {
	p, src, clock := newTestProvider(t)
	ctx := context.Background()
	src.set("AAPL", 150)
	p.CurrentPrice(ctx, "AAPL")

	clock.Advance(5 * time.Minute)
	src.fail("AAPL", fmt.Errorf("upstream note: %w", ErrRateLimited))

	_, err := p.CurrentPrice(ctx, "AAPL")
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected error to match ErrUnavailable, got %v", err)
	}
	var ue *UnavailableError
	if !errors.As(err, &ue) || ue.Symbol != "AAPL" {
		t.Errorf("expected *UnavailableError for AAPL, got %#v", err)
	}
}

func TestProvider_BatchFallsBackToStale(t *testing.T) {
	p, src, clock := newTestProvider(t)
	ctx := context.Background()
	src.set("AAPL", 150)
	src.set("MSFT", 400)
	p.Prices(ctx, []string{"AAPL", "MSFT"})

	clock.Advance(5 * time.Minute)
	src.fail("AAPL", errors.New("connection reset"))
	src.set("MSFT", 410)
	src.fail("TSLA", errors.New("connection reset"))

	prices := p.Prices(ctx, []string{"AAPL", "MSFT", "TSLA", "AAPL"})

	if got := prices["AAPL"]; !got.Equal(d(150)) {
		t.Errorf("expected stale AAPL 150, got %s", got)
	}
	if got := prices["MSFT"]; !got.Equal(d(410)) {
		t.Errorf("expected fresh MSFT 410, got %s", got)
	}
	if _, ok := prices["TSLA"]; ok {
		t.Error("TSLA has no cached price and should be omitted")
	}
	if n := src.count("AAPL"); n != 2 {
		t.Errorf("duplicate symbols should be looked up once per batch, got %d calls", n)
	}
}

func TestProvider_ClassifiesErrors(t *testing.T) {
	p, src, _ := newTestProvider(t)
	ctx := context.Background()

	tests := []struct {
		name string
		err  error
		want error
	}{
		{"rate limited", fmt.Errorf("x: %w", ErrRateLimited), ErrRateLimited},
		{"not found", ErrNotFound, ErrNotFound},
		{"network", errors.New("dial tcp: refused"), ErrTransport},
		{"timeout", context.DeadlineExceeded, ErrTransport},
	}
	for _, tt := range tests {
		src.fail("X", tt.err)
		_, err := p.Quote(ctx, "X")
		if !errors.Is(err, tt.want) {
			t.Errorf("%s: expected %v, got %v", tt.name, tt.want, err)
		}
	}
}

func TestProvider_NonPositivePriceIsTransportFailure(t *testing.T) {
	p, src, _ := newTestProvider(t)
	src.set("ZERO", 0)

	_, err := p.Quote(context.Background(), "ZERO")
	if !errors.Is(err, ErrTransport) {
		t.Errorf("expected ErrTransport, got %v", err)
	}
}

func TestProvider_PassThroughs(t *testing.T) {
	p, _, _ := newTestProvider(t)
	ctx := context.Background()

	o, err := p.Overview(ctx, "AAPL")
	if err != nil || o.Name != "Apple Inc" {
		t.Errorf("unexpected overview %v, %v", o, err)
	}
	if _, err := p.Overview(ctx, "LIMIT"); !errors.Is(err, ErrRateLimited) {
		t.Errorf("expected ErrRateLimited, got %v", err)
	}
	if m, err := p.Search(ctx, "apple"); err != nil || len(m) != 1 {
		t.Errorf("unexpected search %v, %v", m, err)
	}
	if _, err := p.Series(ctx, "EMPTY", "daily"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for empty series, got %v", err)
	}
}

func TestProvider_ConcurrentLookups(t *testing.T) {
	p, src, _ := newTestProvider(t)
	ctx := context.Background()
	for _, s := range []string{"A", "B", "C"} {
		src.set(s, 10)
	}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.Prices(ctx, []string{"A", "B", "C"})
		}()
	}
	wg.Wait()
}
