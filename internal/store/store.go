// Package store defines the persistence interface for the simulator.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// cache over another store), and in-memory (for testing and local play).
package store

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/papertrade/simulator/internal/model"
)

// ErrNotFound is returned when a user account does not exist.
var ErrNotFound = errors.New("store: not found")

// Store is the persistence interface. All mutations of an account, its
// holdings and its transaction log go through Update so they commit
// together or not at all.
type Store interface {
	// --- Accounts ---

	// EnsureAccount creates the account with startingBalance on first
	// sight of a user, otherwise refreshes profile fields and last activity.
	EnsureAccount(ctx context.Context, p model.Profile, startingBalance decimal.Decimal) (*model.Account, error)

	// GetAccount returns ErrNotFound for unknown users.
	GetAccount(ctx context.Context, userID string) (*model.Account, error)

	// --- Positions and history ---

	// GetHoldings returns open positions ordered by symbol.
	GetHoldings(ctx context.Context, userID string) ([]model.Holding, error)

	// GetTransactions returns the newest limit transactions, newest first.
	// A non-positive limit returns all of them.
	GetTransactions(ctx context.Context, userID string, limit int) ([]model.Transaction, error)

	// --- Watchlist ---

	// AddWatch inserts the pair if absent and reports whether it did.
	AddWatch(ctx context.Context, userID, symbol string, at time.Time) (bool, error)

	// GetWatchlist returns entries in insertion order.
	GetWatchlist(ctx context.Context, userID string) ([]model.WatchlistEntry, error)

	// --- Atomic mutation ---

	// Update runs fn against a per-user unit of work. Updates for the same
	// user are serialized. If fn returns an error nothing is applied.
	Update(ctx context.Context, userID string, fn func(tx Tx) error) error
}

// Tx is the view of one user's rows inside Update.
type Tx interface {
	// Account returns a copy of the locked account.
	Account(ctx context.Context) (*model.Account, error)

	// Holding returns nil, nil when the user holds no shares of symbol.
	Holding(ctx context.Context, symbol string) (*model.Holding, error)

	SaveAccount(ctx context.Context, a *model.Account) error
	PutHolding(ctx context.Context, h *model.Holding) error
	DeleteHolding(ctx context.Context, symbol string) error

	// AppendTransaction adds an immutable record to the log.
	AppendTransaction(ctx context.Context, t *model.Transaction) error
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*PostgresStore)(nil)
	_ Store = (*CachedStore)(nil)
)
