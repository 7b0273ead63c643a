package store

// Schema is the PostgreSQL DDL for PostgresStore. Every statement is
// idempotent so `simulator migrate` can run on each deploy.
const Schema = `
CREATE TABLE IF NOT EXISTS accounts (
    user_id           TEXT PRIMARY KEY,
    username          TEXT NOT NULL DEFAULT '',
    first_name        TEXT NOT NULL DEFAULT '',
    last_name         TEXT NOT NULL DEFAULT '',
    cash_balance      NUMERIC NOT NULL CHECK (cash_balance >= 0),
    total_trades      BIGINT NOT NULL DEFAULT 0,
    profitable_trades BIGINT NOT NULL DEFAULT 0,
    registered_at     TIMESTAMPTZ NOT NULL,
    last_activity     TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS holdings (
    user_id        TEXT NOT NULL REFERENCES accounts (user_id),
    symbol         TEXT NOT NULL,
    quantity       NUMERIC NOT NULL CHECK (quantity > 0),
    avg_cost       NUMERIC NOT NULL,
    total_invested NUMERIC NOT NULL,
    opened_at      TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (user_id, symbol)
);

CREATE TABLE IF NOT EXISTS transactions (
    id           TEXT PRIMARY KEY,
    seq          BIGSERIAL,
    user_id      TEXT NOT NULL REFERENCES accounts (user_id),
    symbol       TEXT NOT NULL,
    side         TEXT NOT NULL CHECK (side IN ('BUY', 'SELL')),
    quantity     NUMERIC NOT NULL,
    price        NUMERIC NOT NULL,
    total_amount NUMERIC NOT NULL,
    profit_loss  NUMERIC,
    timestamp    TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS transactions_user_time_idx
    ON transactions (user_id, timestamp DESC, seq DESC);

CREATE TABLE IF NOT EXISTS watchlist (
    user_id  TEXT NOT NULL REFERENCES accounts (user_id),
    symbol   TEXT NOT NULL,
    added_at TIMESTAMPTZ NOT NULL,
    seq      BIGSERIAL,
    PRIMARY KEY (user_id, symbol)
);
`
