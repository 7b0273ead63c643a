package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/papertrade/simulator/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu        sync.RWMutex
	accounts  map[string]*model.Account
	holdings  map[string]map[string]model.Holding // user → symbol → holding
	ledger    []model.Transaction
	watchlist map[string][]model.WatchlistEntry
	now       func() time.Time
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts:  make(map[string]*model.Account),
		holdings:  make(map[string]map[string]model.Holding),
		watchlist: make(map[string][]model.WatchlistEntry),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) EnsureAccount(_ context.Context, p model.Profile, startingBalance decimal.Decimal) (*model.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	a, ok := s.accounts[p.UserID]
	if !ok {
		a = &model.Account{
			CashBalance:  startingBalance,
			RegisteredAt: now,
		}
		s.accounts[p.UserID] = a
	}
	a.Profile = p
	a.LastActivity = now

	out := *a
	return &out, nil
}

func (s *MemoryStore) GetAccount(_ context.Context, userID string) (*model.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.accounts[userID]
	if !ok {
		return nil, fmt.Errorf("account %s: %w", userID, ErrNotFound)
	}
	out := *a
	return &out, nil
}

func (s *MemoryStore) GetHoldings(_ context.Context, userID string) ([]model.Holding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Holding
	for _, h := range s.holdings[userID] {
		result = append(result, h)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Symbol < result[j].Symbol })
	return result, nil
}

func (s *MemoryStore) GetTransactions(_ context.Context, userID string, limit int) ([]model.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Transaction
	// Walk backwards so equal timestamps still come out newest first.
	for i := len(s.ledger) - 1; i >= 0; i-- {
		if s.ledger[i].UserID != userID {
			continue
		}
		result = append(result, s.ledger[i])
		if limit > 0 && len(result) == limit {
			break
		}
	}
	return result, nil
}

func (s *MemoryStore) AddWatch(_ context.Context, userID, symbol string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.watchlist[userID] {
		if e.Symbol == symbol {
			return false, nil
		}
	}
	s.watchlist[userID] = append(s.watchlist[userID], model.WatchlistEntry{
		UserID:  userID,
		Symbol:  symbol,
		AddedAt: at,
	})
	return true, nil
}

func (s *MemoryStore) GetWatchlist(_ context.Context, userID string) ([]model.WatchlistEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := s.watchlist[userID]
	result := make([]model.WatchlistEntry, len(entries))
	copy(result, entries)
	return result, nil
}

// Update stages every change on copies and applies them only when fn
// succeeds. The store lock is held for the whole unit, which serializes
// updates across all users; fn must not call back into the store.
func (s *MemoryStore) Update(ctx context.Context, userID string, fn func(tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[userID]
	if !ok {
		return fmt.Errorf("account %s: %w", userID, ErrNotFound)
	}

	staged := &memTx{
		account:  *a,
		holdings: make(map[string]model.Holding, len(s.holdings[userID])),
	}
	for sym, h := range s.holdings[userID] {
		staged.holdings[sym] = h
	}

	if err := fn(staged); err != nil {
		return err
	}

	*a = staged.account
	s.holdings[userID] = staged.holdings
	s.ledger = append(s.ledger, staged.appended...)
	return nil
}

// memTx is the staging area of one MemoryStore.Update.
type memTx struct {
	account  model.Account
	holdings map[string]model.Holding
	appended []model.Transaction
}

func (t *memTx) Account(_ context.Context) (*model.Account, error) {
	out := t.account
	return &out, nil
}

func (t *memTx) Holding(_ context.Context, symbol string) (*model.Holding, error) {
	h, ok := t.holdings[symbol]
	if !ok {
		return nil, nil
	}
	return &h, nil
}

func (t *memTx) SaveAccount(_ context.Context, a *model.Account) error {
	t.account = *a
	return nil
}

func (t *memTx) PutHolding(_ context.Context, h *model.Holding) error {
	t.holdings[h.Symbol] = *h
	return nil
}

func (t *memTx) DeleteHolding(_ context.Context, symbol string) error {
	delete(t.holdings, symbol)
	return nil
}

func (t *memTx) AppendTransaction(_ context.Context, tr *model.Transaction) error {
	t.appended = append(t.appended, *tr)
	return nil
}
