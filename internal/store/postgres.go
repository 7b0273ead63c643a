package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/papertrade/simulator/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All monetary values are stored as NUMERIC for exact decimal precision.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Migrate applies Schema.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const accountColumns = `user_id, username, first_name, last_name,
		        cash_balance::TEXT, total_trades, profitable_trades,
		        registered_at, last_activity`

func (s *PostgresStore) EnsureAccount(ctx context.Context, p model.Profile, startingBalance decimal.Decimal) (*model.Account, error) {
	now := time.Now().UTC()
	row := s.pool.QueryRow(ctx,
		`INSERT INTO accounts (user_id, username, first_name, last_name, cash_balance, registered_at, last_activity)
		 VALUES ($1, $2, $3, $4, $5::NUMERIC, $6, $6)
		 ON CONFLICT (user_id) DO UPDATE
		 SET username = EXCLUDED.username,
		     first_name = EXCLUDED.first_name,
		     last_name = EXCLUDED.last_name,
		     last_activity = EXCLUDED.last_activity
		 RETURNING `+accountColumns,
		p.UserID, p.Username, p.FirstName, p.LastName, startingBalance.String(), now,
	)
	a, err := scanAccount(row)
	if err != nil {
		return nil, fmt.Errorf("ensure account %s: %w", p.UserID, err)
	}
	return a, nil
}

func (s *PostgresStore) GetAccount(ctx context.Context, userID string) (*model.Account, error) {
	return getAccount(ctx, s.pool, userID, false)
}

func getAccount(ctx context.Context, q querier, userID string, forUpdate bool) (*model.Account, error) {
	sql := `SELECT ` + accountColumns + ` FROM accounts WHERE user_id = $1`
	if forUpdate {
		sql += ` FOR UPDATE`
	}
	a, err := scanAccount(q.QueryRow(ctx, sql, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("account %s: %w", userID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get account %s: %w", userID, err)
	}
	return a, nil
}

func (s *PostgresStore) GetHoldings(ctx context.Context, userID string) ([]model.Holding, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT user_id, symbol, quantity::TEXT, avg_cost::TEXT, total_invested::TEXT, opened_at
		 FROM holdings WHERE user_id = $1 ORDER BY symbol`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var holdings []model.Holding
	for rows.Next() {
		h, err := scanHolding(rows)
		if err != nil {
			return nil, err
		}
		holdings = append(holdings, *h)
	}
	return holdings, rows.Err()
}

func (s *PostgresStore) GetTransactions(ctx context.Context, userID string, limit int) ([]model.Transaction, error) {
	sql := `SELECT id, user_id, symbol, side,
	               quantity::TEXT, price::TEXT, total_amount::TEXT, profit_loss::TEXT,
	               timestamp
	        FROM transactions WHERE user_id = $1
	        ORDER BY timestamp DESC, seq DESC`
	args := []any{userID}
	if limit > 0 {
		sql += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txs []model.Transaction
	for rows.Next() {
		var t model.Transaction
		var side, qtyS, priceS, totalS string
		var plS *string

		if err := rows.Scan(&t.ID, &t.UserID, &t.Symbol, &side,
			&qtyS, &priceS, &totalS, &plS, &t.Timestamp); err != nil {
			return nil, err
		}

		t.Side = model.Side(side)
		t.Quantity, _ = decimal.NewFromString(qtyS)
		t.Price, _ = decimal.NewFromString(priceS)
		t.TotalAmount, _ = decimal.NewFromString(totalS)
		if plS != nil {
			pl, _ := decimal.NewFromString(*plS)
			t.ProfitLoss = &pl
		}
		txs = append(txs, t)
	}
	return txs, rows.Err()
}

func (s *PostgresStore) AddWatch(ctx context.Context, userID, symbol string, at time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO watchlist (user_id, symbol, added_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (user_id, symbol) DO NOTHING`,
		userID, symbol, at,
	)
	if err != nil {
		return false, fmt.Errorf("add watch %s/%s: %w", userID, symbol, err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) GetWatchlist(ctx context.Context, userID string) ([]model.WatchlistEntry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT user_id, symbol, added_at FROM watchlist WHERE user_id = $1 ORDER BY seq`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []model.WatchlistEntry
	for rows.Next() {
		var e model.WatchlistEntry
		if err := rows.Scan(&e.UserID, &e.Symbol, &e.AddedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Update runs fn in a database transaction holding a row lock on the
// user's account, so concurrent updates for the same user queue behind
// each other while other users proceed.
func (s *PostgresStore) Update(ctx context.Context, userID string, fn func(tx Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()

	a, err := getAccount(ctx, tx, userID, true)
	if err != nil {
		return err
	}

	if err := fn(&pgTx{tx: tx, account: *a}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	return nil
}

// pgTx is the Tx handed to fn by PostgresStore.Update.
type pgTx struct {
	tx      pgx.Tx
	account model.Account
}

func (t *pgTx) Account(_ context.Context) (*model.Account, error) {
	out := t.account
	return &out, nil
}

func (t *pgTx) Holding(ctx context.Context, symbol string) (*model.Holding, error) {
	row := t.tx.QueryRow(ctx,
		`SELECT user_id, symbol, quantity::TEXT, avg_cost::TEXT, total_invested::TEXT, opened_at
		 FROM holdings WHERE user_id = $1 AND symbol = $2`, t.account.UserID, symbol)
	h, err := scanHolding(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get holding %s/%s: %w", t.account.UserID, symbol, err)
	}
	return h, nil
}

func (t *pgTx) SaveAccount(ctx context.Context, a *model.Account) error {
	_, err := t.tx.Exec(ctx,
		`UPDATE accounts
		 SET cash_balance = $2::NUMERIC, total_trades = $3, profitable_trades = $4, last_activity = $5
		 WHERE user_id = $1`,
		a.UserID, a.CashBalance.String(), a.TotalTrades, a.ProfitableTrades, a.LastActivity,
	)
	if err != nil {
		return fmt.Errorf("save account %s: %w", a.UserID, err)
	}
	t.account = *a
	return nil
}

func (t *pgTx) PutHolding(ctx context.Context, h *model.Holding) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO holdings (user_id, symbol, quantity, avg_cost, total_invested, opened_at)
		 VALUES ($1, $2, $3::NUMERIC, $4::NUMERIC, $5::NUMERIC, $6)
		 ON CONFLICT (user_id, symbol) DO UPDATE
		 SET quantity = EXCLUDED.quantity,
		     avg_cost = EXCLUDED.avg_cost,
		     total_invested = EXCLUDED.total_invested`,
		h.UserID, h.Symbol, h.Quantity.String(), h.AvgCost.String(), h.TotalInvested.String(), h.OpenedAt,
	)
	if err != nil {
		return fmt.Errorf("put holding %s/%s: %w", h.UserID, h.Symbol, err)
	}
	return nil
}

func (t *pgTx) DeleteHolding(ctx context.Context, symbol string) error {
	_, err := t.tx.Exec(ctx,
		`DELETE FROM holdings WHERE user_id = $1 AND symbol = $2`, t.account.UserID, symbol)
	if err != nil {
		return fmt.Errorf("delete holding %s/%s: %w", t.account.UserID, symbol, err)
	}
	return nil
}

func (t *pgTx) AppendTransaction(ctx context.Context, tr *model.Transaction) error {
	var pl any
	if tr.ProfitLoss != nil {
		pl = tr.ProfitLoss.String()
	}
	_, err := t.tx.Exec(ctx,
		`INSERT INTO transactions (id, user_id, symbol, side, quantity, price, total_amount, profit_loss, timestamp)
		 VALUES ($1, $2, $3, $4, $5::NUMERIC, $6::NUMERIC, $7::NUMERIC, $8::NUMERIC, $9)`,
		tr.ID, tr.UserID, tr.Symbol, string(tr.Side),
		tr.Quantity.String(), tr.Price.String(), tr.TotalAmount.String(), pl,
		tr.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("append transaction %s: %w", tr.ID, err)
	}
	return nil
}

// --- Scan helpers ---

func scanAccount(row pgx.Row) (*model.Account, error) {
	var a model.Account
	var cashS string
	if err := row.Scan(&a.UserID, &a.Username, &a.FirstName, &a.LastName,
		&cashS, &a.TotalTrades, &a.ProfitableTrades,
		&a.RegisteredAt, &a.LastActivity); err != nil {
		return nil, err
	}
	a.CashBalance, _ = decimal.NewFromString(cashS)
	return &a, nil
}

func scanHolding(row pgx.Row) (*model.Holding, error) {
	var h model.Holding
	var qtyS, avgS, investedS string
	if err := row.Scan(&h.UserID, &h.Symbol, &qtyS, &avgS, &investedS, &h.OpenedAt); err != nil {
		return nil, err
	}
	h.Quantity, _ = decimal.NewFromString(qtyS)
	h.AvgCost, _ = decimal.NewFromString(avgS)
	h.TotalInvested, _ = decimal.NewFromString(investedS)
	return &h, nil
}
