package quote

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/papertrade/simulator/internal/metrics"
	"github.com/papertrade/simulator/internal/model"
)

// Source is an external market data API. Implementations mark failures
// with ErrRateLimited or ErrNotFound where they can tell; any other error
// is treated as a transport failure.
type Source interface {
	Quote(ctx context.Context, symbol string) (*model.Quote, error)
	Overview(ctx context.Context, symbol string) (*model.Overview, error)
	Search(ctx context.Context, keywords string) ([]model.SearchMatch, error)
	Series(ctx context.Context, symbol, interval string) ([]model.Bar, error)
}

// Provider serves prices from the Cache and falls through to the Source
// on a miss. Company data, search and series are not cached.
type Provider struct {
	source Source
	cache  *Cache
	logger *zap.Logger
}

// NewProvider creates a provider. Pass nil logger to discard logs.
func NewProvider(src Source, cache *Cache, logger *zap.Logger) *Provider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{source: src, cache: cache, logger: logger}
}

// Quote returns a quote for symbol. A fresh cached price is returned as a
// quote with only Price set and Cached true. Source failures propagate as
// *UnavailableError; no stale fallback is applied here.
func (p *Provider) Quote(ctx context.Context, symbol string) (*model.Quote, error) {
	if price, ok := p.cache.Get(ctx, symbol); ok {
		return &model.Quote{Symbol: symbol, Price: price, Cached: true}, nil
	}

	q, err := p.source.Quote(ctx, symbol)
	if err != nil {
		return nil, p.fail(symbol, err)
	}
	if !q.Price.IsPositive() {
		return nil, p.fail(symbol, errors.New("non-positive price in quote"))
	}

	q.Symbol = symbol
	q.Cached = false
	p.cache.Put(ctx, symbol, q.Price)
	return q, nil
}

// CurrentPrice returns the price for a single symbol, surfacing failures
// so callers can react to rate limiting.
func (p *Provider) CurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	q, err := p.Quote(ctx, symbol)
	if err != nil {
		return decimal.Zero, err
	}
	return q.Price, nil
}

// Prices looks up many symbols for valuation. A failed lookup falls back
// to the last cached price of any age; symbols with neither are omitted.
func (p *Provider) Prices(ctx context.Context, symbols []string) map[string]decimal.Decimal {
	prices := make(map[string]decimal.Decimal, len(symbols))
	for _, sym := range symbols {
		if _, done := prices[sym]; done {
			continue
		}
		price, err := p.CurrentPrice(ctx, sym)
		if err == nil {
			prices[sym] = price
			continue
		}
		if last, ok := p.cache.Last(ctx, sym); ok {
			metrics.QuoteCacheLookups.WithLabelValues("fallback").Inc()
			p.logger.Info("using stale price",
				zap.String("symbol", sym),
				zap.Stringer("price", last),
				zap.Error(err),
			)
			prices[sym] = last
		}
	}
	return prices
}

// Overview returns company fields for symbol.
func (p *Provider) Overview(ctx context.Context, symbol string) (*model.Overview, error) {
	o, err := p.source.Overview(ctx, symbol)
	if err != nil {
		return nil, p.fail(symbol, err)
	}
	return o, nil
}

// Search finds symbols by ticker or company name.
func (p *Provider) Search(ctx context.Context, keywords string) ([]model.SearchMatch, error) {
	matches, err := p.source.Search(ctx, keywords)
	if err != nil {
		return nil, p.fail(keywords, err)
	}
	return matches, nil
}

// Series returns daily or intraday bars for symbol, newest first.
func (p *Provider) Series(ctx context.Context, symbol, interval string) ([]model.Bar, error) {
	bars, err := p.source.Series(ctx, symbol, interval)
	if err != nil {
		return nil, p.fail(symbol, err)
	}
	if len(bars) == 0 {
		return nil, p.fail(symbol, ErrNotFound)
	}
	return bars, nil
}

func (p *Provider) fail(symbol string, err error) error {
	ue := classify(symbol, err)
	metrics.QuoteErrors.WithLabelValues(ue.KindName()).Inc()
	p.logger.Warn("market data lookup failed",
		zap.String("symbol", symbol),
		zap.String("kind", ue.KindName()),
		zap.Error(err),
	)
	return ue
}
