// Package events fans executed trades out to live subscribers: websocket
// clients through Hub and downstream consumers through KafkaPublisher.
package events

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/papertrade/simulator/internal/model"
)

// TypeTradeExecuted is the Type of every TradeEvent published by the ledger.
const TypeTradeExecuted = "trade_executed"

// TradeEvent describes one committed fill.
type TradeEvent struct {
	Type          string           `json:"type"`
	TransactionID string           `json:"transaction_id"`
	UserID        string           `json:"user_id"`
	Symbol        string           `json:"symbol"`
	Side          model.Side       `json:"side"`
	Quantity      decimal.Decimal  `json:"quantity"`
	Price         decimal.Decimal  `json:"price"`
	TotalAmount   decimal.Decimal  `json:"total_amount"`
	ProfitLoss    *decimal.Decimal `json:"profit_loss,omitempty"`
	CashBalance   decimal.Decimal  `json:"cash_balance"`
	Timestamp     time.Time        `json:"timestamp"`
}

// Publisher delivers trade events. Callers treat errors as non-fatal.
type Publisher interface {
	Publish(ctx context.Context, ev TradeEvent) error
}

// Multi publishes to every publisher in order and joins their errors.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, ev TradeEvent) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(context.Context, TradeEvent) error { return nil }
