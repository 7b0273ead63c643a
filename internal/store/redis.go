package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/papertrade/simulator/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache for holdings and watchlists. Writes go to the primary store and
// invalidate the cache; reads check Redis first then fall back to the
// primary.
//
// Every cached key has a generation counter bumped on invalidation. A
// reader only fills the cache if the generation did not move while it was
// reading the primary, so a fill racing a commit cannot reinstate
// pre-commit data.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
	logger  *zap.Logger
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *CachedStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
		logger:  logger,
	}
}

// --- Write-through (write to primary, invalidate cache) ---

func (s *CachedStore) Update(ctx context.Context, userID string, fn func(tx Tx) error) error {
	if err := s.primary.Update(ctx, userID, fn); err != nil {
		return err
	}
	s.invalidate(ctx, holdingsKey(userID))
	return nil
}

func (s *CachedStore) AddWatch(ctx context.Context, userID, symbol string, at time.Time) (bool, error) {
	added, err := s.primary.AddWatch(ctx, userID, symbol, at)
	if err != nil {
		return false, err
	}
	if added {
		s.invalidate(ctx, watchlistKey(userID))
	}
	return added, nil
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetHoldings(ctx context.Context, userID string) ([]model.Holding, error) {
	return readThrough(ctx, s, holdingsKey(userID), func(ctx context.Context) ([]model.Holding, error) {
		return s.primary.GetHoldings(ctx, userID)
	})
}

func (s *CachedStore) GetWatchlist(ctx context.Context, userID string) ([]model.WatchlistEntry, error) {
	return readThrough(ctx, s, watchlistKey(userID), func(ctx context.Context) ([]model.WatchlistEntry, error) {
		return s.primary.GetWatchlist(ctx, userID)
	})
}

// --- Passthrough (not cached) ---

func (s *CachedStore) EnsureAccount(ctx context.Context, p model.Profile, startingBalance decimal.Decimal) (*model.Account, error) {
	return s.primary.EnsureAccount(ctx, p, startingBalance)
}

func (s *CachedStore) GetAccount(ctx context.Context, userID string) (*model.Account, error) {
	return s.primary.GetAccount(ctx, userID)
}

func (s *CachedStore) GetTransactions(ctx context.Context, userID string, limit int) ([]model.Transaction, error) {
	return s.primary.GetTransactions(ctx, userID, limit)
}

// --- Cache helpers ---

// readThrough serves key from Redis or loads it from the primary. The
// fill runs in a WATCH on the key's generation and is dropped when an
// invalidation lands in between. Redis failures never fail the read.
func readThrough[T any](ctx context.Context, s *CachedStore, key string, fetch func(context.Context) (T, error)) (T, error) {
	var v T
	if data, err := s.rdb.Get(ctx, key).Bytes(); err == nil && json.Unmarshal(data, &v) == nil {
		return v, nil
	}

	var (
		fetched  bool
		fetchErr error
	)
	err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		v, fetchErr = fetch(ctx)
		fetched = true
		if fetchErr != nil {
			return fetchErr
		}
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, s.ttl)
			return nil
		})
		return err
	}, generationKey(key))

	switch {
	case fetchErr != nil:
		var zero T
		return zero, fetchErr
	case !fetched:
		// Redis refused the WATCH; serve straight from the primary.
		s.logger.Warn("cache unavailable", zap.String("key", key), zap.Error(err))
		return fetch(ctx)
	case errors.Is(err, redis.TxFailedErr):
		// Invalidated mid-read; the next read fills the cache.
	case err != nil:
		s.logger.Warn("cache fill failed", zap.String("key", key), zap.Error(err))
	}
	return v, nil
}

// invalidate bumps the key's generation and deletes it in one MULTI.
func (s *CachedStore) invalidate(ctx context.Context, key string) {
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, generationKey(key))
		pipe.Del(ctx, key)
		return nil
	})
	if err != nil {
		s.logger.Warn("cache invalidation failed", zap.String("key", key), zap.Error(err))
	}
}

func holdingsKey(uid string) string   { return fmt.Sprintf("holdings:%s", uid) }
func watchlistKey(uid string) string  { return fmt.Sprintf("watchlist:%s", uid) }
func generationKey(key string) string { return key + ":gen" }
