package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/papertrade/simulator/internal/accounting"
	"github.com/papertrade/simulator/internal/ledger"
	"github.com/papertrade/simulator/internal/quote"
	"github.com/papertrade/simulator/internal/symbol"
)

const (
	descriptionLimit = 300
	searchLimit      = 5
	chartBars        = 10
	separator        = "━━━━━━━━━━━━━━━━━━━━"
)

func (r *Router) start(ctx context.Context, req Request, _ []string) (string, error) {
	return fmt.Sprintf(`💼 Welcome to the Trading Simulator! 📈

Start virtual trading with %s!

🎯 What you can do:
• Buy and sell real stocks with virtual money
• Track your portfolio
• Check live prices
• Review your performance

💡 Tip: start with /price AAPL to see Apple's price!

Use /help for every command.`, r.money.Format(r.ledger.StartingBalance())), nil
}

func (r *Router) help(context.Context, Request, []string) (string, error) {
	return `📚 AVAILABLE COMMANDS:

📊 QUOTES:
/price [SYMBOL] - Current price of a stock
/info [SYMBOL] - Company details
/search [NAME] - Find a symbol by company name
/chart [SYMBOL] [INTERVAL] - Recent price bars
/top - Popular stocks

💰 TRADING:
/buy [SYMBOL] [QTY] - Buy shares
/sell [SYMBOL] [QTY] - Sell shares
/balance - Your available cash

📈 PORTFOLIO:
/portfolio - Your full portfolio
/history - Transaction history
/stats - Your trading statistics

⭐ WATCHLIST:
/watch [SYMBOL] - Add to your watchlist
/watchlist - Show your watchlist

🔄 OTHER:
/reset - Reset your cash balance
/help - Show this message

💡 Examples:
/price AAPL
/buy TSLA 5
/sell MSFT 2`, nil
}

func (r *Router) price(ctx context.Context, _ Request, args []string) (string, error) {
	sym, err := symbol.Parse(args[0])
	if err != nil {
		return "", err
	}
	q, err := r.quotes.Quote(ctx, sym)
	if err != nil {
		return "", err
	}

	if q.Cached {
		return fmt.Sprintf("📊 %s\n💵 Price: %s\n\n⚡ Cached price (refreshed within the last minute)",
			sym, r.money.Format(q.Price)), nil
	}

	trend, dot := "📈", "🟢"
	if q.Change.IsNegative() {
		trend, dot = "📉", "🔴"
	}
	return fmt.Sprintf(`📊 %s
💵 Price: %s
%s Change: %s%s (%s)
📊 Volume: %s

💡 Use /buy %s [quantity] to buy`,
		sym,
		r.money.Format(q.Price),
		trend, dot, r.money.Signed(q.Change), signedPercent(q.ChangePercent),
		groupDigits(q.Volume),
		sym), nil
}

func (r *Router) info(ctx context.Context, _ Request, args []string) (string, error) {
	sym, err := symbol.Parse(args[0])
	if err != nil {
		return "", err
	}
	o, err := r.quotes.Overview(ctx, sym)
	if err != nil {
		if errors.Is(err, quote.ErrNotFound) {
			return fmt.Sprintf("❌ No company information for %s.", sym), nil
		}
		return "", err
	}

	marketCap := orNA(o.MarketCap)
	if marketCap != "N/A" {
		marketCap = r.money.marketCap(marketCap)
	}
	description := orNA(o.Description)
	if description == "N/A" {
		description = "No description available"
	}

	return fmt.Sprintf(`🏢 %s (%s)

📊 Sector: %s
🏭 Industry: %s
💰 Market Cap: %s
📈 P/E Ratio: %s

📝 Description:
%s

💡 Use /price %s for the current price`,
		o.Name, sym,
		orNA(o.Sector),
		orNA(o.Industry),
		marketCap,
		orNA(o.PERatio),
		truncate(description, descriptionLimit),
		sym), nil
}

func (r *Router) search(ctx context.Context, _ Request, args []string) (string, error) {
	keywords := strings.Join(args, " ")
	matches, err := r.quotes.Search(ctx, keywords)
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		return "❌ No results for: " + keywords, nil
	}

	var b strings.Builder
	b.WriteString("🔍 SEARCH RESULTS:\n\n")
	for i, m := range matches {
		if i == searchLimit {
			break
		}
		fmt.Fprintf(&b, "📊 %s - %s\n   Type: %s | Region: %s\n\n", m.Symbol, m.Name, m.Type, m.Region)
	}
	b.WriteString("💡 Use /price [SYMBOL] to see the price")
	return b.String(), nil
}

func (r *Router) top(context.Context, Request, []string) (string, error) {
	return `🔥 POPULAR STOCKS:

🍎 AAPL - Apple Inc.
💻 MSFT - Microsoft Corporation
🚗 TSLA - Tesla Inc.
📦 AMZN - Amazon.com Inc.
🔍 GOOGL - Alphabet Inc. (Google)
💳 V - Visa Inc.
🎮 NVDA - NVIDIA Corporation
☕ SBUX - Starbucks Corporation
🎬 DIS - The Walt Disney Company
✈️ BA - Boeing Company

💡 Use /price [SYMBOL] to see the price
💡 Use /info [SYMBOL] for company details`, nil
}

// parseTrade reads the SYMBOL QTY arguments of buy and sell.
func parseTrade(args []string) (string, decimal.Decimal, error) {
	sym, err := symbol.Parse(args[0])
	if err != nil {
		return "", decimal.Zero, err
	}
	qty, err := parseQuantity(args[1])
	if err != nil {
		return "", decimal.Zero, err
	}
	return sym, qty, nil
}

// maxQuantityLen bounds the raw argument before it reaches the parser.
const maxQuantityLen = 32

// parseQuantity accepts plain decimal notation only: exponents such as
// 1e9 are refused, as are values outside accounting.QuantityInRange.
func parseQuantity(raw string) (decimal.Decimal, error) {
	if len(raw) > maxQuantityLen || strings.ContainsAny(raw, "eE") {
		return decimal.Zero, fmt.Errorf("%w: %q", errInvalidQuantity, raw)
	}
	qty, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", errInvalidQuantity, raw)
	}
	if !qty.IsPositive() {
		return decimal.Zero, accounting.ErrNonPositiveQuantity
	}
	if !accounting.QuantityInRange(qty) {
		return decimal.Zero, fmt.Errorf("%w: %q", errInvalidQuantity, raw)
	}
	return qty, nil
}

func (r *Router) buy(ctx context.Context, req Request, args []string) (string, error) {
	sym, qty, err := parseTrade(args)
	if err != nil {
		return "", err
	}
	price, err := r.quotes.CurrentPrice(ctx, sym)
	if err != nil {
		return "", err
	}

	fill, err := r.ledger.Buy(ctx, req.User.UserID, sym, qty, price)
	if errors.Is(err, ledger.ErrInsufficientFunds) {
		acct, aerr := r.ledger.Account(ctx, req.User.UserID)
		if aerr != nil {
			return "", aerr
		}
		cost := qty.Mul(price)
		return fmt.Sprintf(`❌ Insufficient funds!

💵 Total cost: %s
💳 Available: %s
💰 Missing: %s`,
			r.money.Format(cost),
			r.money.Format(acct.CashBalance),
			r.money.Format(cost.Sub(acct.CashBalance))), nil
	}
	if err != nil {
		return "", err
	}

	return fmt.Sprintf(`✅ PURCHASE COMPLETED!

📊 %s
📦 Quantity: %s
💵 Price: %s
💰 Total: %s
💳 New balance: %s

💡 Use /portfolio to see your portfolio`,
		sym,
		quantity(qty),
		r.money.Format(price),
		r.money.Format(fill.Transaction.TotalAmount),
		r.money.Format(fill.CashBalance)), nil
}

func (r *Router) sell(ctx context.Context, req Request, args []string) (string, error) {
	sym, qty, err := parseTrade(args)
	if err != nil {
		return "", err
	}
	price, err := r.quotes.CurrentPrice(ctx, sym)
	if err != nil {
		return "", err
	}

	fill, ok, err := r.ledger.Sell(ctx, req.User.UserID, sym, qty, price)
	if err != nil {
		return "", err
	}
	if !ok {
		return fmt.Sprintf(`❌ SALE FAILED!

You do not own enough shares of %s.
Check your portfolio with /portfolio`, sym), nil
	}

	pl := *fill.Transaction.ProfitLoss
	plIcon := "💚"
	if pl.IsNegative() {
		plIcon = "❤️"
	}
	return fmt.Sprintf(`✅ SALE COMPLETED!

📊 %s
📦 Quantity: %s
💵 Price: %s
💰 Proceeds: %s
%s Realized P/L: %s
💳 New balance: %s

💡 Use /history to see every transaction`,
		sym,
		quantity(qty),
		r.money.Format(price),
		r.money.Format(fill.Transaction.TotalAmount),
		plIcon, r.money.Signed(pl),
		r.money.Format(fill.CashBalance)), nil
}

func (r *Router) balance(ctx context.Context, req Request, _ []string) (string, error) {
	acct, err := r.ledger.Account(ctx, req.User.UserID)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(`💳 AVAILABLE BALANCE

💰 %s

💡 Use /buy to invest
💡 Use /portfolio to see your investments`, r.money.Format(acct.CashBalance)), nil
}

func (r *Router) portfolio(ctx context.Context, req Request, _ []string) (string, error) {
	p, err := r.ledger.Portfolio(ctx, req.User.UserID, r.quotes)
	if err != nil {
		return "", err
	}
	if p.HoldingCount == 0 {
		return "📊 Your portfolio is empty. Start investing with /buy!", nil
	}

	var b strings.Builder
	b.WriteString("📊 YOUR PORTFOLIO:\n\n")
	for _, pos := range p.Positions {
		icon := "📈"
		if pos.UnrealizedPnL.IsNegative() {
			icon = "📉"
		}
		fmt.Fprintf(&b, "%s %s\n", icon, pos.Symbol)
		fmt.Fprintf(&b, "Quantity: %s\n", quantity(pos.Quantity))
		fmt.Fprintf(&b, "Average cost: %s\n", r.money.Format(pos.AvgCost))
		fmt.Fprintf(&b, "Current price: %s\n", r.money.Format(pos.CurrentPrice))
		fmt.Fprintf(&b, "Value: %s\n", r.money.Format(pos.CurrentValue))
		fmt.Fprintf(&b, "P/L: %s (%s)\n\n", r.money.Signed(pos.UnrealizedPnL), signedPercent(pos.UnrealizedPnLPercent))
	}
	if len(p.Unpriced) > 0 {
		fmt.Fprintf(&b, "⚠️ No current price for: %s (left out of the totals)\n\n", strings.Join(p.Unpriced, ", "))
	}

	b.WriteString(separator + "\n")
	fmt.Fprintf(&b, "💰 Total value: %s\n", r.money.Format(p.TotalValue))
	fmt.Fprintf(&b, "💵 Invested: %s\n", r.money.Format(p.TotalInvested))
	fmt.Fprintf(&b, "📊 Total P/L: %s (%s)\n", r.money.Signed(p.TotalUnrealizedPnL), signedPercent(p.TotalUnrealizedPercent))
	fmt.Fprintf(&b, "💳 Cash available: %s", r.money.Format(p.Cash))
	return b.String(), nil
}

func (r *Router) history(ctx context.Context, req Request, _ []string) (string, error) {
	txs, err := r.ledger.History(ctx, req.User.UserID, r.historyLimit)
	if err != nil {
		return "", err
	}
	if len(txs) == 0 {
		return "📜 No transactions yet.", nil
	}

	var b strings.Builder
	b.WriteString("📜 TRANSACTION HISTORY:\n\n")
	for _, t := range txs {
		icon := "🟢"
		if t.Side == "SELL" {
			icon = "🔴"
		}
		fmt.Fprintf(&b, "%s %s %s\n", icon, t.Side, t.Symbol)
		fmt.Fprintf(&b, "Quantity: %s @ %s\n", quantity(t.Quantity), r.money.Format(t.Price))
		fmt.Fprintf(&b, "Total: %s\n", r.money.Format(t.TotalAmount))
		if t.ProfitLoss != nil {
			plIcon := "💚"
			if t.ProfitLoss.IsNegative() {
				plIcon = "❤️"
			}
			fmt.Fprintf(&b, "%s P/L: %s\n", plIcon, r.money.Signed(*t.ProfitLoss))
		}
		fmt.Fprintf(&b, "📅 %s\n\n", t.Timestamp.UTC().Format("2006-01-02 15:04"))
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func (r *Router) stats(ctx context.Context, req Request, _ []string) (string, error) {
	st, err := r.ledger.Stats(ctx, req.User.UserID)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(`📊 YOUR STATISTICS:

💰 Balance: %s
📈 Total trades: %d
✅ Profitable trades: %d
📊 Win rate: %s%%
📅 Member since: %s`,
		r.money.Format(st.CashBalance),
		st.TotalTrades,
		st.ProfitableTrades,
		st.WinRate.StringFixed(1),
		st.MemberSince.UTC().Format("2006-01-02")), nil
}

func (r *Router) watch(ctx context.Context, req Request, args []string) (string, error) {
	sym, err := symbol.Parse(args[0])
	if err != nil {
		return "", err
	}
	// The symbol must resolve to a price before it is saved.
	if _, err := r.quotes.CurrentPrice(ctx, sym); err != nil {
		if errors.Is(err, quote.ErrRateLimited) {
			return "", err
		}
		return "❌ Invalid symbol or not found.", nil
	}

	added, err := r.ledger.Watch(ctx, req.User.UserID, sym)
	if err != nil {
		return "", err
	}
	if !added {
		return fmt.Sprintf("⭐ %s is already on your watchlist.", sym), nil
	}
	return fmt.Sprintf(`⭐ %s added to your watchlist!

💡 Use /watchlist to see every saved symbol
💡 Use /price %s to see the price`, sym, sym), nil
}

func (r *Router) watchlist(ctx context.Context, req Request, _ []string) (string, error) {
	entries, err := r.ledger.Watchlist(ctx, req.User.UserID)
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return "⭐ Your watchlist is empty. Add symbols with /watch [SYMBOL]", nil
	}

	var b strings.Builder
	b.WriteString("⭐ YOUR WATCHLIST:\n\n")
	for _, e := range entries {
		fmt.Fprintf(&b, "📌 %s\n", e.Symbol)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func (r *Router) chart(ctx context.Context, _ Request, args []string) (string, error) {
	sym, err := symbol.Parse(args[0])
	if err != nil {
		return "", err
	}
	interval := "daily"
	if len(args) > 1 {
		interval = strings.ToLower(args[1])
	}
	if !quote.ValidInterval(interval) {
		return fmt.Sprintf("❌ Unknown interval %q. Use one of: %s", interval, strings.Join(quote.Intervals, ", ")), nil
	}

	bars, err := r.quotes.Series(ctx, sym, interval)
	if err != nil {
		return "", err
	}
	if len(bars) > chartBars {
		bars = bars[:chartBars]
	}

	layout := "2006-01-02"
	if interval != "daily" {
		layout = "01-02 15:04"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "📉 %s (%s)\n\n", sym, interval)
	for _, bar := range bars {
		fmt.Fprintf(&b, "%s  O %s  H %s  L %s  C %s\n",
			bar.Time.Format(layout),
			bar.Open.StringFixed(2), bar.High.StringFixed(2),
			bar.Low.StringFixed(2), bar.Close.StringFixed(2))
	}

	newest, oldest := bars[0], bars[len(bars)-1]
	move := newest.Close.Sub(oldest.Open)
	fmt.Fprintf(&b, "\n%s\nChange over %d bars: %s (%s)",
		separator, len(bars),
		r.money.Signed(move), signedPercent(accounting.Percent(move, oldest.Open)))
	return b.String(), nil
}

func (r *Router) reset(ctx context.Context, req Request, _ []string) (string, error) {
	acct, err := r.ledger.Reset(ctx, req.User.UserID)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(`🔄 ACCOUNT RESET!

💰 New balance: %s

⚠️ Note: your portfolio and history were not cleared,
but you can start again with a fresh balance.

💡 Happy trading!`, r.money.Format(acct.CashBalance)), nil
}
