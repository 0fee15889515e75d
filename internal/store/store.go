// Package store provides the journal persistence port and its adapters.
package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"trade-journal/internal/models"
)

// Reader defines the read side of the persistence port.
type Reader interface {
	// LoadAccount returns NotFound when the account does not exist.
	LoadAccount(ctx context.Context, accountID string) (models.Account, error)
	// ListAccounts returns the accounts owned by userID, or every account
	// when userID is empty.
	ListAccounts(ctx context.Context, userID string) ([]models.Account, error)
	// LoadTrades returns the account's trades ordered by entry date and
	// entry time ascending.
	LoadTrades(ctx context.Context, accountID string) ([]models.Trade, error)
	// ListTransactions returns the account's ledger ordered by date ascending.
	ListTransactions(ctx context.Context, accountID string) ([]models.Transaction, error)
}

// Writer defines the write side of the persistence port.
type Writer interface {
	SaveAccount(ctx context.Context, account models.Account) error
	// DeleteAccount removes the account with its trades and transactions.
	DeleteAccount(ctx context.Context, accountID string) error
	// UpsertTrade fails with ConflictingEdit when the stored row has a newer
	// updated_at than the incoming one.
	UpsertTrade(ctx context.Context, trade models.Trade) error
	DeleteTrade(ctx context.Context, tradeID string) error
	InsertTransaction(ctx context.Context, tx models.Transaction) error
	DeleteTransaction(ctx context.Context, txID string) error
}

// Tx is a view of the store inside one atomic unit of work.
type Tx interface {
	Reader
	Writer
}

// Port is the persistence port used by the engine.
type Port interface {
	Tx
	// Atomically runs fn in a single transaction. Either every write made
	// through the Tx commits or none does.
	Atomically(ctx context.Context, fn func(tx Tx) error) error
	Close() error
}

// Driver names accepted by Open.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Options selects and configures an adapter.
type Options struct {
	Driver      string
	Path        string // sqlite database file
	PostgresDSN string
}

// Open creates the adapter named by opts.Driver.
func Open(ctx context.Context, opts Options) (Port, error) {
	switch strings.ToLower(opts.Driver) {
	case "", DriverSQLite, "sqlite3":
		return NewSQLiteStore(opts.Path)
	case DriverPostgres, "pg", "pgx":
		return NewPostgresStore(ctx, opts.PostgresDSN)
	case DriverMemory:
		return NewMemoryStore(), nil
	}
	return nil, fmt.Errorf("unknown store driver %q", opts.Driver)
}

// SortTrades orders trades by entry date, then entry time, then creation.
func SortTrades(trades []models.Trade) {
	sort.SliceStable(trades, func(i, j int) bool {
		a, b := trades[i], trades[j]
		if !a.EntryDate.Equal(b.EntryDate) {
			return a.EntryDate.Before(b.EntryDate)
		}
		if a.EntryTime != b.EntryTime {
			return a.EntryTime < b.EntryTime
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}

// SortTransactions orders ledger entries by date, then creation.
func SortTransactions(txs []models.Transaction) {
	sort.SliceStable(txs, func(i, j int) bool {
		a, b := txs[i], txs[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}

func sortAccounts(accts []models.Account) {
	sort.SliceStable(accts, func(i, j int) bool {
		if !accts[i].CreatedAt.Equal(accts[j].CreatedAt) {
			return accts[i].CreatedAt.Before(accts[j].CreatedAt)
		}
		return accts[i].ID < accts[j].ID
	})
}

// stale reports whether an incoming revision is older than the stored one.
func stale(stored, incoming time.Time) bool {
	return stored.After(incoming)
}
