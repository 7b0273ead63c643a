// Package bot turns chat commands into ledger and quote operations and
// renders the replies. It is transport-agnostic: text in, text out.
package bot

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/papertrade/simulator/internal/accounting"
	"github.com/papertrade/simulator/internal/ledger"
	"github.com/papertrade/simulator/internal/metrics"
	"github.com/papertrade/simulator/internal/model"
	"github.com/papertrade/simulator/internal/quote"
	"github.com/papertrade/simulator/internal/symbol"
)

// Quotes is the market data the commands need. *quote.Provider
// implements it.
type Quotes interface {
	Quote(ctx context.Context, symbol string) (*model.Quote, error)
	CurrentPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
	Prices(ctx context.Context, symbols []string) map[string]decimal.Decimal
	Overview(ctx context.Context, symbol string) (*model.Overview, error)
	Search(ctx context.Context, keywords string) ([]model.SearchMatch, error)
	Series(ctx context.Context, symbol, interval string) ([]model.Bar, error)
}

// Request is one inbound chat message.
type Request struct {
	User model.Profile
	Text string
}

// Options tune reply rendering.
type Options struct {
	// Currency is the ISO code used to display amounts. Default USD.
	Currency string
	// HistoryLimit caps the history command. Default 10.
	HistoryLimit int
}

var errInvalidQuantity = errors.New("bot: invalid quantity")

type handlerFunc func(ctx context.Context, req Request, args []string) (string, error)

type command struct {
	name    string
	aliases []string
	usage   string
	minArgs int
	run     handlerFunc
}

// Router dispatches commands by name. Every command runs isolated: a
// failure or panic produces an error reply and never escapes Handle.
type Router struct {
	ledger       *ledger.Service
	quotes       Quotes
	money        moneyFormatter
	historyLimit int
	logger       *zap.Logger
	commands     map[string]*command
}

// NewRouter wires the command set.
func NewRouter(l *ledger.Service, q Quotes, opts Options, logger *zap.Logger) *Router {
	if opts.Currency == "" {
		opts.Currency = "USD"
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = 10
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Router{
		ledger:       l,
		quotes:       q,
		money:        newMoneyFormatter(opts.Currency),
		historyLimit: opts.HistoryLimit,
		logger:       logger,
		commands:     make(map[string]*command),
	}
	r.register()
	return r
}

func (r *Router) register() {
	for _, c := range []*command{
		{name: "/start", run: r.start},
		{name: "/help", run: r.help},
		{name: "/price", aliases: []string{"/prezzo"}, usage: "/price AAPL", minArgs: 1, run: r.price},
		{name: "/info", usage: "/info AAPL", minArgs: 1, run: r.info},
		{name: "/search", aliases: []string{"/cerca"}, usage: "/search Apple", minArgs: 1, run: r.search},
		{name: "/top", run: r.top},
		{name: "/buy", aliases: []string{"/compra"}, usage: "/buy AAPL 10", minArgs: 2, run: r.buy},
		{name: "/sell", aliases: []string{"/vendi"}, usage: "/sell AAPL 5", minArgs: 2, run: r.sell},
		{name: "/balance", run: r.balance},
		{name: "/portfolio", run: r.portfolio},
		{name: "/history", aliases: []string{"/storico"}, run: r.history},
		{name: "/stats", run: r.stats},
		{name: "/watch", usage: "/watch TSLA", minArgs: 1, run: r.watch},
		{name: "/watchlist", run: r.watchlist},
		{name: "/chart", usage: "/chart AAPL [daily|1min|5min|15min|30min|60min]", minArgs: 1, run: r.chart},
		{name: "/reset", run: r.reset},
	} {
		r.commands[c.name] = c
		for _, a := range c.aliases {
			r.commands[a] = c
		}
	}
}

// Commands returns the primary command names, sorted.
func (r *Router) Commands() []string {
	var names []string
	for key, c := range r.commands {
		if key == c.name {
			names = append(names, key)
		}
	}
	sort.Strings(names)
	return names
}

// Handle registers or refreshes the user, runs the command and returns
// the reply.
func (r *Router) Handle(ctx context.Context, req Request) (reply string) {
	fields := strings.Fields(req.Text)
	if len(fields) == 0 {
		return unknownReply
	}
	name := strings.ToLower(fields[0])
	// Group chats address commands as /price@SomeBot.
	if at := strings.IndexByte(name, '@'); at > 0 {
		name = name[:at]
	}
	args := fields[1:]

	cmd, ok := r.commands[name]
	if !ok {
		metrics.CommandsTotal.WithLabelValues("unknown", "unknown").Inc()
		return unknownReply
	}

	outcome := "ok"
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("command panicked",
				zap.String("command", cmd.name),
				zap.String("user", req.User.UserID),
				zap.Any("panic", p),
				zap.Stack("stack"),
			)
			outcome = "panic"
			reply = genericFailureReply
		}
		metrics.CommandsTotal.WithLabelValues(cmd.name, outcome).Inc()
	}()

	if _, err := r.ledger.Open(ctx, req.User); err != nil {
		outcome = "error"
		return r.renderError(cmd, err)
	}

	if len(args) < cmd.minArgs {
		outcome = "usage"
		return fmt.Sprintf("❌ Usage: %s", cmd.usage)
	}

	reply, err := cmd.run(ctx, req, args)
	if err != nil {
		outcome = "error"
		return r.renderError(cmd, err)
	}
	return reply
}

// renderError maps a failure to the reply the user sees.
func (r *Router) renderError(cmd *command, err error) string {
	var unavailable *quote.UnavailableError
	switch {
	case errors.Is(err, symbol.ErrInvalidSymbol):
		return fmt.Sprintf("❌ Invalid symbol. Example: %s", cmd.usage)
	case errors.Is(err, errInvalidQuantity), errors.Is(err, accounting.ErrQuantityOutOfRange):
		return "❌ Invalid quantity. Use a number (e.g. 10 or 5.5) with at most 8 decimal places."
	case errors.Is(err, accounting.ErrNonPositiveQuantity):
		return "❌ Quantity must be greater than 0."
	case errors.Is(err, quote.ErrRateLimited):
		return rateLimitedReply
	case errors.Is(err, quote.ErrNotFound) && errors.As(err, &unavailable):
		return fmt.Sprintf("❌ No data for %s. Check that the symbol is correct.", unavailable.Symbol)
	case errors.Is(err, quote.ErrUnavailable):
		return "❌ Market data is unavailable right now. Please try again later."
	case errors.Is(err, ledger.ErrPersistence):
		return "❌ Your request could not be saved. Please try again."
	}
	r.logger.Error("command failed", zap.String("command", cmd.name), zap.Error(err))
	return genericFailureReply
}

const (
	unknownReply        = "❓ Unknown command. Use /help to see every command."
	genericFailureReply = "❌ Something went wrong. Please try again."
	rateLimitedReply    = "⚠️ Market data API limit reached. Try again in a few minutes.\nThe free plan allows 25 requests per day."
)
