package store

import (
	"context"
	"sync"

	"trade-journal/internal/errors"
	"trade-journal/internal/models"
)

// MemoryStore implements Port in process memory. Atomically works on a copy
// and swaps it in only when fn succeeds.
type MemoryStore struct {
	mu   sync.RWMutex
	data *memData
}

type memData struct {
	accounts map[string]models.Account
	trades   map[string]models.Trade
	txs      map[string]models.Transaction
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: &memData{
		accounts: make(map[string]models.Account),
		trades:   make(map[string]models.Trade),
		txs:      make(map[string]models.Transaction),
	}}
}

func (d *memData) clone() *memData {
	c := &memData{
		accounts: make(map[string]models.Account, len(d.accounts)),
		trades:   make(map[string]models.Trade, len(d.trades)),
		txs:      make(map[string]models.Transaction, len(d.txs)),
	}
	for k, v := range d.accounts {
		c.accounts[k] = v
	}
	for k, v := range d.trades {
		c.trades[k] = v.Clone()
	}
	for k, v := range d.txs {
		c.txs[k] = v
	}
	return c
}

// Atomically runs fn against a private copy and commits it on success.
func (s *MemoryStore) Atomically(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return errors.NewPersistenceError("begin", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.data.clone()
	if err := fn(&memTx{d: work}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return errors.NewPersistenceError("commit", err)
	}
	s.data = work
	return nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error {
	return nil
}

func (s *MemoryStore) LoadAccount(ctx context.Context, accountID string) (models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return (&memTx{d: s.data}).LoadAccount(ctx, accountID)
}

func (s *MemoryStore) ListAccounts(ctx context.Context, userID string) ([]models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return (&memTx{d: s.data}).ListAccounts(ctx, userID)
}

func (s *MemoryStore) LoadTrades(ctx context.Context, accountID string) ([]models.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return (&memTx{d: s.data}).LoadTrades(ctx, accountID)
}

func (s *MemoryStore) ListTransactions(ctx context.Context, accountID string) ([]models.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return (&memTx{d: s.data}).ListTransactions(ctx, accountID)
}

func (s *MemoryStore) SaveAccount(ctx context.Context, account models.Account) error {
	return s.Atomically(ctx, func(tx Tx) error { return tx.SaveAccount(ctx, account) })
}

func (s *MemoryStore) DeleteAccount(ctx context.Context, accountID string) error {
	return s.Atomically(ctx, func(tx Tx) error { return tx.DeleteAccount(ctx, accountID) })
}

func (s *MemoryStore) UpsertTrade(ctx context.Context, trade models.Trade) error {
	return s.Atomically(ctx, func(tx Tx) error { return tx.UpsertTrade(ctx, trade) })
}

func (s *MemoryStore) DeleteTrade(ctx context.Context, tradeID string) error {
	return s.Atomically(ctx, func(tx Tx) error { return tx.DeleteTrade(ctx, tradeID) })
}

func (s *MemoryStore) InsertTransaction(ctx context.Context, t models.Transaction) error {
	return s.Atomically(ctx, func(tx Tx) error { return tx.InsertTransaction(ctx, t) })
}

func (s *MemoryStore) DeleteTransaction(ctx context.Context, txID string) error {
	return s.Atomically(ctx, func(tx Tx) error { return tx.DeleteTransaction(ctx, txID) })
}

// memTx implements Tx over one memData. It is not safe for concurrent use;
// MemoryStore guards it.
type memTx struct {
	d *memData
}

func (t *memTx) LoadAccount(_ context.Context, accountID string) (models.Account, error) {
	a, ok := t.d.accounts[accountID]
	if !ok {
		return models.Account{}, errors.NewNotFoundError("account", accountID)
	}
	return a, nil
}

func (t *memTx) ListAccounts(_ context.Context, userID string) ([]models.Account, error) {
	var out []models.Account
	for _, a := range t.d.accounts {
		if userID == "" || a.UserID == userID {
			out = append(out, a)
		}
	}
	sortAccounts(out)
	return out, nil
}

func (t *memTx) LoadTrades(_ context.Context, accountID string) ([]models.Trade, error) {
	var out []models.Trade
	for _, tr := range t.d.trades {
		if tr.AccountID == accountID {
			out = append(out, tr.Clone())
		}
	}
	SortTrades(out)
	return out, nil
}

func (t *memTx) ListTransactions(_ context.Context, accountID string) ([]models.Transaction, error) {
	var out []models.Transaction
	for _, tx := range t.d.txs {
		if tx.AccountID == accountID {
			out = append(out, tx)
		}
	}
	SortTransactions(out)
	return out, nil
}

func (t *memTx) SaveAccount(_ context.Context, account models.Account) error {
	t.d.accounts[account.ID] = account
	return nil
}

func (t *memTx) DeleteAccount(_ context.Context, accountID string) error {
	if _, ok := t.d.accounts[accountID]; !ok {
		return errors.NewNotFoundError("account", accountID)
	}
	delete(t.d.accounts, accountID)
	for id, tr := range t.d.trades {
		if tr.AccountID == accountID {
			delete(t.d.trades, id)
		}
	}
	for id, tx := range t.d.txs {
		if tx.AccountID == accountID {
			delete(t.d.txs, id)
		}
	}
	return nil
}

func (t *memTx) UpsertTrade(_ context.Context, trade models.Trade) error {
	if cur, ok := t.d.trades[trade.ID]; ok {
		if cur.AccountID != trade.AccountID {
			return errors.NewConflictError("trade", trade.ID, "id belongs to another account")
		}
		if stale(cur.UpdatedAt, trade.UpdatedAt) {
			return errors.NewConflictError("trade", trade.ID, "stored revision is newer")
		}
	}
	t.d.trades[trade.ID] = trade.Clone()
	return nil
}

func (t *memTx) DeleteTrade(_ context.Context, tradeID string) error {
	if _, ok := t.d.trades[tradeID]; !ok {
		return errors.NewNotFoundError("trade", tradeID)
	}
	delete(t.d.trades, tradeID)
	return nil
}

func (t *memTx) InsertTransaction(_ context.Context, tx models.Transaction) error {
	if _, ok := t.d.txs[tx.ID]; ok {
		return errors.NewConflictError("transaction", tx.ID, "already exists")
	}
	t.d.txs[tx.ID] = tx
	return nil
}

func (t *memTx) DeleteTransaction(_ context.Context, txID string) error {
	if _, ok := t.d.txs[txID]; !ok {
		return errors.NewNotFoundError("transaction", txID)
	}
	delete(t.d.txs, txID)
	return nil
}
