// Package ledger executes virtual trades against a store.Store.
//
// Each buy, sell and reset runs as one store.Update, so the holding, the
// transaction record, the cash balance and the trade counters of a user
// change together or not at all.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/papertrade/simulator/internal/accounting"
	"github.com/papertrade/simulator/internal/events"
	"github.com/papertrade/simulator/internal/metrics"
	"github.com/papertrade/simulator/internal/model"
	"github.com/papertrade/simulator/internal/store"
)

var (
	// ErrInsufficientFunds is returned when a buy costs more than the cash
	// balance. Nothing is applied.
	ErrInsufficientFunds = errors.New("ledger: insufficient funds")

	// ErrPersistence wraps store failures other than a missing account.
	ErrPersistence = errors.New("ledger: persistence failure")

	// errInsufficientHoldings aborts a sell's Update; Sell reports it as
	// ok == false.
	errInsufficientHoldings = errors.New("ledger: insufficient holdings")
)

// Fill is the outcome of an executed trade.
type Fill struct {
	Transaction model.Transaction
	// Holding is the position after the trade; nil when a sell closed it.
	Holding     *model.Holding
	CashBalance decimal.Decimal
}

// Pricer supplies current prices for valuation. Symbols without a price
// are omitted from the result.
type Pricer interface {
	Prices(ctx context.Context, symbols []string) map[string]decimal.Decimal
}

// Stats summarizes a user's trading record.
type Stats struct {
	CashBalance      decimal.Decimal `json:"cash_balance"`
	TotalTrades      int64           `json:"total_trades"`
	ProfitableTrades int64           `json:"profitable_trades"`
	WinRate          decimal.Decimal `json:"win_rate"`
	MemberSince      time.Time       `json:"member_since"`
}

// Service owns every mutation of accounts and positions.
type Service struct {
	store    store.Store
	starting decimal.Decimal
	pub      events.Publisher
	logger   *zap.Logger
	now      func() time.Time
	newID    func() string
}

// NewService creates a ledger. startingBalance funds new accounts and is
// restored by Reset. A nil publisher discards events.
func NewService(st store.Store, startingBalance decimal.Decimal, pub events.Publisher, logger *zap.Logger) *Service {
	if pub == nil {
		pub = events.Nop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:    st,
		starting: startingBalance,
		pub:      pub,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
		newID:    func() string { return uuid.New().String() },
	}
}

// StartingBalance is the balance new and reset accounts receive.
func (s *Service) StartingBalance() decimal.Decimal { return s.starting }

// Open registers the user on first contact and refreshes the profile
// afterwards.
func (s *Service) Open(ctx context.Context, p model.Profile) (*model.Account, error) {
	a, err := s.store.EnsureAccount(ctx, p, s.starting)
	if err != nil {
		return nil, s.storeErr(err)
	}
	return a, nil
}

// Account returns the user's account.
func (s *Service) Account(ctx context.Context, userID string) (*model.Account, error) {
	a, err := s.store.GetAccount(ctx, userID)
	if err != nil {
		return nil, s.storeErr(err)
	}
	return a, nil
}

// Buy debits qty*price and blends the shares into the user's holding.
func (s *Service) Buy(ctx context.Context, userID, symbol string, qty, price decimal.Decimal) (*Fill, error) {
	start := time.Now()
	if err := accounting.ValidateTrade(qty, price); err != nil {
		return nil, err
	}

	var fill Fill
	err := s.store.Update(ctx, userID, func(tx store.Tx) error {
		acct, err := tx.Account(ctx)
		if err != nil {
			return err
		}
		cost := qty.Mul(price)
		if cost.GreaterThan(acct.CashBalance) {
			return ErrInsufficientFunds
		}

		current, err := tx.Holding(ctx, symbol)
		if err != nil {
			return err
		}
		next, err := accounting.ApplyBuy(current, qty, price)
		if err != nil {
			return err
		}
		now := s.now()
		if current == nil {
			next.UserID = userID
			next.Symbol = symbol
			next.OpenedAt = now
		}
		if err := tx.PutHolding(ctx, &next); err != nil {
			return err
		}

		record := model.Transaction{
			ID:          s.newID(),
			UserID:      userID,
			Symbol:      symbol,
			Side:        model.SideBuy,
			Quantity:    qty,
			Price:       price,
			TotalAmount: cost,
			Timestamp:   now,
		}
		if err := tx.AppendTransaction(ctx, &record); err != nil {
			return err
		}

		acct.CashBalance = acct.CashBalance.Sub(cost)
		acct.TotalTrades++
		acct.LastActivity = now
		if err := tx.SaveAccount(ctx, acct); err != nil {
			return err
		}

		fill = Fill{Transaction: record, Holding: &next, CashBalance: acct.CashBalance}
		return nil
	})
	if errors.Is(err, ErrInsufficientFunds) {
		metrics.TradeRejections.WithLabelValues("insufficient_funds").Inc()
		return nil, err
	}
	if err != nil {
		return nil, s.storeErr(err)
	}

	s.executed(ctx, &fill, start)
	return &fill, nil
}

// Sell removes qty shares at price. It returns ok == false, with no
// error and nothing applied, when the user holds fewer than qty shares.
func (s *Service) Sell(ctx context.Context, userID, symbol string, qty, price decimal.Decimal) (*Fill, bool, error) {
	start := time.Now()
	if err := accounting.ValidateTrade(qty, price); err != nil {
		return nil, false, err
	}

	var fill Fill
	err := s.store.Update(ctx, userID, func(tx store.Tx) error {
		held, err := tx.Holding(ctx, symbol)
		if err != nil {
			return err
		}
		if held == nil || held.Quantity.LessThan(qty) {
			return errInsufficientHoldings
		}

		remaining, closed, err := accounting.ApplySell(*held, qty)
		if err != nil {
			return err
		}
		if closed {
			err = tx.DeleteHolding(ctx, symbol)
		} else {
			err = tx.PutHolding(ctx, &remaining)
		}
		if err != nil {
			return err
		}

		now := s.now()
		realized := accounting.RealizedPL(held.AvgCost, price, qty)
		proceeds := qty.Mul(price)
		record := model.Transaction{
			ID:          s.newID(),
			UserID:      userID,
			Symbol:      symbol,
			Side:        model.SideSell,
			Quantity:    qty,
			Price:       price,
			TotalAmount: proceeds,
			ProfitLoss:  &realized,
			Timestamp:   now,
		}
		if err := tx.AppendTransaction(ctx, &record); err != nil {
			return err
		}

		acct, err := tx.Account(ctx)
		if err != nil {
			return err
		}
		acct.CashBalance = acct.CashBalance.Add(proceeds)
		acct.TotalTrades++
		if realized.IsPositive() {
			acct.ProfitableTrades++
		}
		acct.LastActivity = now
		if err := tx.SaveAccount(ctx, acct); err != nil {
			return err
		}

		fill = Fill{Transaction: record, CashBalance: acct.CashBalance}
		if !closed {
			fill.Holding = &remaining
		}
		return nil
	})
	if errors.Is(err, errInsufficientHoldings) {
		metrics.TradeRejections.WithLabelValues("insufficient_holdings").Inc()
		return nil, false, nil
	}
	if err != nil {
		return nil, false, s.storeErr(err)
	}

	s.executed(ctx, &fill, start)
	return &fill, true, nil
}

// Reset restores the starting cash balance. Holdings, transactions and
// the watchlist are kept.
func (s *Service) Reset(ctx context.Context, userID string) (*model.Account, error) {
	var out *model.Account
	err := s.store.Update(ctx, userID, func(tx store.Tx) error {
		acct, err := tx.Account(ctx)
		if err != nil {
			return err
		}
		acct.CashBalance = s.starting
		acct.LastActivity = s.now()
		if err := tx.SaveAccount(ctx, acct); err != nil {
			return err
		}
		out = acct
		return nil
	})
	if err != nil {
		return nil, s.storeErr(err)
	}

	s.logger.Info("account reset",
		zap.String("user", userID),
		zap.String("balance", s.starting.String()),
	)
	return out, nil
}

// Portfolio values the user's holdings at the prices pricer can supply.
func (s *Service) Portfolio(ctx context.Context, userID string, pricer Pricer) (*model.Portfolio, error) {
	acct, err := s.store.GetAccount(ctx, userID)
	if err != nil {
		return nil, s.storeErr(err)
	}
	holdings, err := s.store.GetHoldings(ctx, userID)
	if err != nil {
		return nil, s.storeErr(err)
	}

	prices := map[string]decimal.Decimal{}
	if len(holdings) > 0 {
		symbols := make([]string, len(holdings))
		for i, h := range holdings {
			symbols[i] = h.Symbol
		}
		prices = pricer.Prices(ctx, symbols)
	}

	p := accounting.Value(holdings, prices)
	p.UserID = userID
	p.Cash = acct.CashBalance
	return &p, nil
}

// Stats returns the user's counters and win rate.
func (s *Service) Stats(ctx context.Context, userID string) (*Stats, error) {
	acct, err := s.store.GetAccount(ctx, userID)
	if err != nil {
		return nil, s.storeErr(err)
	}
	return &Stats{
		CashBalance:      acct.CashBalance,
		TotalTrades:      acct.TotalTrades,
		ProfitableTrades: acct.ProfitableTrades,
		WinRate:          accounting.WinRate(acct.TotalTrades, acct.ProfitableTrades),
		MemberSince:      acct.RegisteredAt,
	}, nil
}

// History returns the newest limit transactions, newest first.
func (s *Service) History(ctx context.Context, userID string, limit int) ([]model.Transaction, error) {
	txs, err := s.store.GetTransactions(ctx, userID, limit)
	if err != nil {
		return nil, s.storeErr(err)
	}
	return txs, nil
}

// Watch adds symbol to the watchlist and reports whether it was new.
func (s *Service) Watch(ctx context.Context, userID, symbol string) (bool, error) {
	added, err := s.store.AddWatch(ctx, userID, symbol, s.now())
	if err != nil {
		return false, s.storeErr(err)
	}
	return added, nil
}

// Watchlist returns the watched symbols in the order they were added.
func (s *Service) Watchlist(ctx context.Context, userID string) ([]model.WatchlistEntry, error) {
	entries, err := s.store.GetWatchlist(ctx, userID)
	if err != nil {
		return nil, s.storeErr(err)
	}
	return entries, nil
}

// executed records metrics, logs the fill and publishes it. Publishing
// happens after commit and its failure never undoes the trade.
func (s *Service) executed(ctx context.Context, f *Fill, start time.Time) {
	tr := f.Transaction
	side := string(tr.Side)
	metrics.TradesTotal.WithLabelValues(side).Inc()
	metrics.TradeLatency.WithLabelValues(side).Observe(time.Since(start).Seconds())

	fields := []zap.Field{
		zap.String("trade_id", tr.ID),
		zap.String("user", tr.UserID),
		zap.String("symbol", tr.Symbol),
		zap.String("side", side),
		zap.String("qty", tr.Quantity.String()),
		zap.String("price", tr.Price.String()),
		zap.String("total", tr.TotalAmount.String()),
		zap.String("balance", f.CashBalance.String()),
	}
	if tr.ProfitLoss != nil {
		fields = append(fields, zap.String("realized_pl", tr.ProfitLoss.String()))
	}
	s.logger.Info("trade executed", fields...)

	err := s.pub.Publish(ctx, events.TradeEvent{
		Type:          events.TypeTradeExecuted,
		TransactionID: tr.ID,
		UserID:        tr.UserID,
		Symbol:        tr.Symbol,
		Side:          tr.Side,
		Quantity:      tr.Quantity,
		Price:         tr.Price,
		TotalAmount:   tr.TotalAmount,
		ProfitLoss:    tr.ProfitLoss,
		CashBalance:   f.CashBalance,
		Timestamp:     tr.Timestamp,
	})
	if err != nil {
		s.logger.Warn("publish trade event failed", zap.String("trade_id", tr.ID), zap.Error(err))
	}
}

// storeErr keeps store.ErrNotFound matchable and classifies everything
// else as a persistence failure.
func (s *Service) storeErr(err error) error {
	if errors.Is(err, store.ErrNotFound) || errors.Is(err, ErrPersistence) {
		return err
	}
	s.logger.Error("store operation failed", zap.Error(err))
	return fmt.Errorf("%w: %w", ErrPersistence, err)
}
