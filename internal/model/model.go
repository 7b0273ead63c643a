// Package model defines the core domain types shared across the simulator.
// All monetary values and share quantities use shopspring/decimal.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is the direction of a trade.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Profile carries the identity fields the chat platform reports for a user.
type Profile struct {
	UserID    string `json:"user_id"`
	Username  string `json:"username,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

// Account is a user's cash position and trade counters.
// Accounts are created on first interaction and never deleted.
type Account struct {
	Profile
	CashBalance      decimal.Decimal `json:"cash_balance" db:"cash_balance"`
	TotalTrades      int64           `json:"total_trades" db:"total_trades"`
	ProfitableTrades int64           `json:"profitable_trades" db:"profitable_trades"`
	RegisteredAt     time.Time       `json:"registered_at" db:"registered_at"`
	LastActivity     time.Time       `json:"last_activity" db:"last_activity"`
}

// Holding is the open position of one user in one symbol.
// Invariant: TotalInvested == Quantity * AvgCost, and Quantity > 0 while
// the row exists.
type Holding struct {
	UserID        string          `json:"user_id" db:"user_id"`
	Symbol        string          `json:"symbol" db:"symbol"`
	Quantity      decimal.Decimal `json:"quantity" db:"quantity"`
	AvgCost       decimal.Decimal `json:"avg_cost" db:"avg_cost"`
	TotalInvested decimal.Decimal `json:"total_invested" db:"total_invested"`
	OpenedAt      time.Time       `json:"opened_at" db:"opened_at"`
}

// Transaction is an immutable record of an executed trade.
// ProfitLoss is set for sells only.
type Transaction struct {
	ID          string           `json:"id" db:"id"`
	UserID      string           `json:"user_id" db:"user_id"`
	Symbol      string           `json:"symbol" db:"symbol"`
	Side        Side             `json:"side" db:"side"`
	Quantity    decimal.Decimal  `json:"quantity" db:"quantity"`
	Price       decimal.Decimal  `json:"price" db:"price"`
	TotalAmount decimal.Decimal  `json:"total_amount" db:"total_amount"`
	ProfitLoss  *decimal.Decimal `json:"profit_loss,omitempty" db:"profit_loss"`
	Timestamp   time.Time        `json:"timestamp" db:"timestamp"`
}

// WatchlistEntry is a symbol a user tracks without a position.
type WatchlistEntry struct {
	UserID  string    `json:"user_id" db:"user_id"`
	Symbol  string    `json:"symbol" db:"symbol"`
	AddedAt time.Time `json:"added_at" db:"added_at"`
}

// Quote is a last-trade snapshot for a symbol. Cached quotes carry only
// the price.
type Quote struct {
	Symbol        string          `json:"symbol"`
	Price         decimal.Decimal `json:"price"`
	Change        decimal.Decimal `json:"change"`
	ChangePercent decimal.Decimal `json:"change_percent"`
	Volume        int64           `json:"volume"`
	Cached        bool            `json:"cached"`
}

// Overview holds the company fields shown by the info command.
type Overview struct {
	Symbol      string `json:"symbol"`
	Name        string `json:"name"`
	Sector      string `json:"sector"`
	Industry    string `json:"industry"`
	MarketCap   string `json:"market_cap"`
	PERatio     string `json:"pe_ratio"`
	Description string `json:"description"`
}

// SearchMatch is one result of a symbol search.
type SearchMatch struct {
	Symbol string `json:"symbol"`
	Name   string `json:"name"`
	Type   string `json:"type"`
	Region string `json:"region"`
}

// Bar is one OHLCV point of a price series.
type Bar struct {
	Time   time.Time       `json:"time"`
	Open   decimal.Decimal `json:"open"`
	High   decimal.Decimal `json:"high"`
	Low    decimal.Decimal `json:"low"`
	Close  decimal.Decimal `json:"close"`
	Volume int64           `json:"volume"`
}

// Position is a holding marked to a current price.
type Position struct {
	Holding
	CurrentPrice         decimal.Decimal `json:"current_price"`
	CurrentValue         decimal.Decimal `json:"current_value"`
	UnrealizedPnL        decimal.Decimal `json:"unrealized_pnl"`
	UnrealizedPnLPercent decimal.Decimal `json:"unrealized_pnl_percent"`
}

// Portfolio is the valuation of a user's holdings. Holdings without a
// current price are listed in Unpriced and excluded from every total.
type Portfolio struct {
	UserID                 string          `json:"user_id"`
	Positions              []Position      `json:"positions"`
	Unpriced               []string        `json:"unpriced,omitempty"`
	TotalValue             decimal.Decimal `json:"total_value"`
	TotalInvested          decimal.Decimal `json:"total_invested"`
	TotalUnrealizedPnL     decimal.Decimal `json:"total_unrealized_pnl"`
	TotalUnrealizedPercent decimal.Decimal `json:"total_unrealized_percent"`
	Cash                   decimal.Decimal `json:"cash"`
	HoldingCount           int             `json:"holding_count"`
}
