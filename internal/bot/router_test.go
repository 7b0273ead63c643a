package bot

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/papertrade/simulator/internal/ledger"
	"github.com/papertrade/simulator/internal/model"
	"github.com/papertrade/simulator/internal/quote"
	"github.com/papertrade/simulator/internal/store"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

// fakeQuotes serves fixed prices. Symbols listed in errs fail with the
// given kind the way quote.Provider reports failures.
type fakeQuotes struct {
	mu     sync.Mutex
	prices map[string]decimal.Decimal
	errs   map[string]error
	cached map[string]bool
	bars   []model.Bar
}

func newFakeQuotes() *fakeQuotes {
	return &fakeQuotes{
		prices: make(map[string]decimal.Decimal),
		errs:   make(map[string]error),
		cached: make(map[string]bool),
	}
}

func (f *fakeQuotes) set(symbol string, price float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prices[symbol] = d(price)
}

func (f *fakeQuotes) fail(symbol string, kind error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[symbol] = &quote.UnavailableError{Symbol: symbol, Kind: kind}
}

func (f *fakeQuotes) Quote(_ context.Context, symbol string) (*model.Quote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs[symbol]; err != nil {
		return nil, err
	}
	p, ok := f.prices[symbol]
	if !ok {
		return nil, &quote.UnavailableError{Symbol: symbol, Kind: quote.ErrNotFound}
	}
	if f.cached[symbol] {
		return &model.Quote{Symbol: symbol, Price: p, Cached: true}, nil
	}
	return &model.Quote{Symbol: symbol, Price: p, Change: d(1.5), ChangePercent: d(0.84), Volume: 52164500}, nil
}

func (f *fakeQuotes) CurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	q, err := f.Quote(ctx, symbol)
	if err != nil {
		return decimal.Zero, err
	}
	return q.Price, nil
}

func (f *fakeQuotes) Prices(_ context.Context, symbols []string) map[string]decimal.Decimal {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]decimal.Decimal)
	for _, s := range symbols {
		if p, ok := f.prices[s]; ok {
			out[s] = p
		}
	}
	return out
}

func (f *fakeQuotes) Overview(_ context.Context, symbol string) (*model.Overview, error) {
	return &model.Overview{
		Symbol:      symbol,
		Name:        "Apple Inc",
		Sector:      "TECHNOLOGY",
		Industry:    "None",
		MarketCap:   "2850000000000",
		PERatio:     "29.5",
		Description: strings.Repeat("a", 400),
	}, nil
}

func (f *fakeQuotes) Search(_ context.Context, keywords string) ([]model.SearchMatch, error) {
	if keywords == "nothing" {
		return nil, nil
	}
	var out []model.SearchMatch
	for i := 0; i < 8; i++ {
		out = append(out, model.SearchMatch{Symbol: fmt.Sprintf("S%d", i), Name: keywords, Type: "Equity", Region: "United States"})
	}
	return out, nil
}

func (f *fakeQuotes) Series(_ context.Context, symbol, _ string) ([]model.Bar, error) {
	if len(f.bars) == 0 {
		return nil, &quote.UnavailableError{Symbol: symbol, Kind: quote.ErrNotFound}
	}
	return f.bars, nil
}

type fixture struct {
	router *Router
	quotes *fakeQuotes
	ledger *ledger.Service
	user   model.Profile
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	q := newFakeQuotes()
	l := ledger.NewService(store.NewMemoryStore(), d(10000), nil, nil)
	return &fixture{
		router: NewRouter(l, q, Options{}, nil),
		quotes: q,
		ledger: l,
		user:   model.Profile{UserID: "42", Username: "trader", FirstName: "Ada"},
	}
}

func (f *fixture) send(text string) string {
	return f.router.Handle(context.Background(), Request{User: f.user, Text: text})
}

func mustContain(t *testing.T, reply string, parts ...string) {
	t.Helper()
	for _, p := range parts {
		if !strings.Contains(reply, p) {
			t.Errorf("reply missing %q:\n%s", p, reply)
		}
	}
}

func TestStart_RegistersUser(t *testing.T) {
	f := newFixture(t)
	reply := f.send("/start")
	mustContain(t, reply, "$10,000.00")

	acct, err := f.ledger.Account(context.Background(), "42")
	if err != nil {
		t.Fatalf("account after /start: %v", err)
	}
	if !acct.CashBalance.Equal(d(10000)) {
		t.Errorf("balance = %s, want 10000", acct.CashBalance)
	}
}

func TestUnknownCommand(t *testing.T) {
	f := newFixture(t)
	if got := f.send("/dance"); got != unknownReply {
		t.Errorf("reply = %q", got)
	}
	if got := f.send("   "); got != unknownReply {
		t.Errorf("blank reply = %q", got)
	}
}

func TestAliasesAndBotSuffix(t *testing.T) {
	f := newFixture(t)
	f.quotes.set("AAPL", 178.5)
	for _, text := range []string{"/price AAPL", "/prezzo aapl", "/PRICE@PaperBot aapl"} {
		mustContain(t, f.send(text), "AAPL", "$178.50")
	}
}

func TestUsageReplies(t *testing.T) {
	f := newFixture(t)
	cases := map[string]string{
		"/price":    "/price AAPL",
		"/buy AAPL": "/buy AAPL 10",
		"/sell":     "/sell AAPL 5",
		"/watch":    "/watch TSLA",
		"/info":     "/info AAPL",
	}
	for text, usage := range cases {
		reply := f.send(text)
		if !strings.HasPrefix(reply, "❌ Usage:") || !strings.Contains(reply, usage) {
			t.Errorf("%s -> %q", text, reply)
		}
	}
}

func TestPrice_FreshAndCached(t *testing.T) {
	f := newFixture(t)
	f.quotes.set("AAPL", 178.5)
	mustContain(t, f.send("/price AAPL"), "📈", "+$1.50", "+0.84%", "52,164,500", "/buy AAPL")

	f.quotes.cached["AAPL"] = true
	reply := f.send("/price AAPL")
	mustContain(t, reply, "Cached", "$178.50")
	if strings.Contains(reply, "Volume") {
		t.Errorf("cached reply shows volume:\n%s", reply)
	}
}

func TestPrice_Errors(t *testing.T) {
	f := newFixture(t)
	f.quotes.fail("TSLA", quote.ErrRateLimited)
	f.quotes.fail("MSFT", quote.ErrTransport)

	if got := f.send("/price TSLA"); got != rateLimitedReply {
		t.Errorf("rate limited reply = %q", got)
	}
	mustContain(t, f.send("/price ZZZZ"), "No data for ZZZZ")
	mustContain(t, f.send("/price MSFT"), "unavailable")
	mustContain(t, f.send("/price $$$"), "Invalid symbol")
}

func TestInfo(t *testing.T) {
	f := newFixture(t)
	reply := f.send("/info aapl")
	mustContain(t, reply, "Apple Inc (AAPL)", "$2.85T", "Industry: N/A", "29.5", "...")
	if strings.Contains(reply, strings.Repeat("a", 298)) {
		t.Errorf("description was not truncated")
	}
}

func TestSearch(t *testing.T) {
	f := newFixture(t)
	reply := f.send("/search apple inc")
	mustContain(t, reply, "S0", "S4", "apple inc")
	if strings.Contains(reply, "S5") {
		t.Errorf("search shows more than five results:\n%s", reply)
	}
	mustContain(t, f.send("/cerca nothing"), "No results for: nothing")
}

func TestBuySell_Scenario(t *testing.T) {
	f := newFixture(t)
	f.quotes.set("AAPL", 150)

	mustContain(t, f.send("/buy AAPL 10"), "PURCHASE COMPLETED", "$1,500.00", "$8,500.00")

	f.quotes.set("AAPL", 160)
	mustContain(t, f.send("/compra aapl 2.5"), "2.5", "$400.00", "$8,100.00")

	mustContain(t, f.send("/sell AAPL 12.5"), "SALE COMPLETED", "$2,000.00", "$10,100.00")

	reply := f.send("/portfolio")
	mustContain(t, reply, "empty")

	mustContain(t, f.send("/stats"), "Total trades: 3", "Profitable trades: 1", "33.3%")
}

func TestBuy_InsufficientFunds(t *testing.T) {
	f := newFixture(t)
	f.quotes.set("AAPL", 150)

	reply := f.send("/buy AAPL 100")
	mustContain(t, reply, "Insufficient funds", "$15,000.00", "$10,000.00", "$5,000.00")

	acct, _ := f.ledger.Account(context.Background(), "42")
	if !acct.CashBalance.Equal(d(10000)) {
		t.Errorf("balance changed to %s", acct.CashBalance)
	}
}

func TestBuy_BadQuantity(t *testing.T) {
	f := newFixture(t)
	f.quotes.set("AAPL", 150)
	mustContain(t, f.send("/buy AAPL ten"), "Invalid quantity")
	mustContain(t, f.send("/buy AAPL 0"), "greater than 0")
	mustContain(t, f.send("/buy AAPL -3"), "greater than 0")
}

func TestBuy_RejectsOutOfRangeQuantity(t *testing.T) {
	f := newFixture(t)
	f.quotes.set("AAPL", 150)

	start := time.Now()
	for _, qty := range []string{
		"1e50000000",
		"1e-40",
		"1E3",
		"0.000000001",
		"10000000000000",
		strings.Repeat("9", 40),
	} {
		mustContain(t, f.send("/buy AAPL "+qty), "Invalid quantity")
		mustContain(t, f.send("/sell AAPL "+qty), "Invalid quantity")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("rejecting quantities took %s", elapsed)
	}

	acct, _ := f.ledger.Account(context.Background(), "42")
	if !acct.CashBalance.Equal(d(10000)) || acct.TotalTrades != 0 {
		t.Errorf("account changed: balance %s, trades %d", acct.CashBalance, acct.TotalTrades)
	}

	mustContain(t, f.send("/buy AAPL 0.00000001"), "PURCHASE COMPLETED")
}

func TestSell_NotEnoughShares(t *testing.T) {
	f := newFixture(t)
	f.quotes.set("AAPL", 150)
	mustContain(t, f.send("/sell AAPL 1"), "SALE FAILED", "AAPL")

	f.send("/buy AAPL 2")
	mustContain(t, f.send("/vendi AAPL 3"), "SALE FAILED")
}

func TestPortfolio_ListsPositionsAndUnpriced(t *testing.T) {
	f := newFixture(t)
	f.quotes.set("AAPL", 100)
	f.quotes.set("MSFT", 50)
	f.send("/buy AAPL 10")
	f.send("/buy MSFT 1")

	f.quotes.set("AAPL", 110)
	delete(f.quotes.prices, "MSFT")

	reply := f.send("/portfolio")
	mustContain(t, reply,
		"📈 AAPL", "$1,100.00", "+$100.00", "+10.00%",
		"No current price for: MSFT",
		"Cash available: $8,950.00",
	)
}

func TestHistory(t *testing.T) {
	f := newFixture(t)
	mustContain(t, f.send("/history"), "No transactions")

	f.quotes.set("AAPL", 100)
	f.send("/buy AAPL 2")
	f.quotes.set("AAPL", 90)
	f.send("/sell AAPL 1")

	reply := f.send("/storico")
	mustContain(t, reply, "🔴 SELL AAPL", "🟢 BUY AAPL", "P/L: -$10.00")
	if strings.Index(reply, "SELL") > strings.Index(reply, "BUY") {
		t.Errorf("history not newest first:\n%s", reply)
	}
}

func TestWatch(t *testing.T) {
	f := newFixture(t)
	f.quotes.set("TSLA", 250)
	f.quotes.fail("LIMIT", quote.ErrRateLimited)

	mustContain(t, f.send("/watchlist"), "empty")
	mustContain(t, f.send("/watch tsla"), "TSLA added")
	mustContain(t, f.send("/watch TSLA"), "already")
	mustContain(t, f.send("/watch NOPE"), "Invalid symbol or not found")
	if got := f.send("/watch LIMIT"); got != rateLimitedReply {
		t.Errorf("rate limited watch = %q", got)
	}

	reply := f.send("/watchlist")
	if strings.Count(reply, "📌") != 1 {
		t.Errorf("watchlist:\n%s", reply)
	}
}

func TestChart(t *testing.T) {
	f := newFixture(t)
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 12; i++ {
		// Newest first.
		day := base.AddDate(0, 0, -i)
		f.quotes.bars = append(f.quotes.bars, model.Bar{
			Time: day, Open: d(100), High: d(112), Low: d(99), Close: d(float64(110 - i)),
		})
	}

	reply := f.send("/chart AAPL")
	mustContain(t, reply, "AAPL (daily)", "2024-03-01", "C 110.00", "Change over 10 bars")
	if strings.Contains(reply, "2024-02-19") {
		t.Errorf("chart shows more than ten bars:\n%s", reply)
	}
	mustContain(t, f.send("/chart AAPL weekly"), "Unknown interval")
}

func TestReset_RestoresCashOnly(t *testing.T) {
	f := newFixture(t)
	f.quotes.set("AAPL", 100)
	f.send("/buy AAPL 10")

	mustContain(t, f.send("/reset"), "$10,000.00")
	mustContain(t, f.send("/balance"), "$10,000.00")
	mustContain(t, f.send("/portfolio"), "AAPL")
	mustContain(t, f.send("/history"), "BUY AAPL")
}

type panicQuotes struct{ *fakeQuotes }

func (panicQuotes) Quote(context.Context, string) (*model.Quote, error) {
	panic("boom")
}

func TestHandle_RecoversPanics(t *testing.T) {
	q := panicQuotes{newFakeQuotes()}
	l := ledger.NewService(store.NewMemoryStore(), d(10000), nil, nil)
	r := NewRouter(l, q, Options{}, nil)

	got := r.Handle(context.Background(), Request{User: model.Profile{UserID: "7"}, Text: "/price AAPL"})
	if got != genericFailureReply {
		t.Errorf("reply = %q", got)
	}
}

func TestCommands_ListsPrimaryNames(t *testing.T) {
	f := newFixture(t)
	names := f.router.Commands()
	if len(names) != 16 {
		t.Fatalf("got %d commands: %v", len(names), names)
	}
	for _, n := range names {
		if n == "/prezzo" || n == "/vendi" {
			t.Errorf("alias %s listed as a command", n)
		}
	}
}

func TestFormatHelpers(t *testing.T) {
	if got := groupDigits(1234567); got != "1,234,567" {
		t.Errorf("groupDigits = %q", got)
	}
	if got := groupDigits(999); got != "999" {
		t.Errorf("groupDigits = %q", got)
	}
	if got := truncate("héllo world", 8); got != "héllo..." {
		t.Errorf("truncate = %q", got)
	}
	m := newMoneyFormatter("USD")
	if got := m.marketCap("850000000000"); got != "$850.00B" {
		t.Errorf("marketCap = %q", got)
	}
	if got := m.marketCap("n/a"); got != "n/a" {
		t.Errorf("marketCap passthrough = %q", got)
	}

	huge := decimal.New(15, 31)
	want := "$15" + strings.Repeat("0", 31) + ".00"
	if got := m.Format(huge); got != want {
		t.Errorf("Format(1.5e32) = %q, want %q", got, want)
	}
	if got := m.Format(huge.Neg()); got != "-"+want {
		t.Errorf("Format(-1.5e32) = %q", got)
	}
	if got := m.Format(decimal.New(1, 17)); got != "$100000000000000000.00" {
		t.Errorf("Format(1e17) = %q", got)
	}
	if got := m.Format(decimal.RequireFromString("92233720368547.75")); got != "$92,233,720,368,547.75" {
		t.Errorf("Format below the int64 limit = %q", got)
	}
}
