package engine

import (
	"sort"
	"strings"
	"time"

	"trade-journal/internal/market"
	"trade-journal/internal/models"
	"trade-journal/internal/store"
)

// Book is an immutable snapshot of one account: the account row, its trades
// keyed by id and its ledger. Mutating helpers return a new Book.
type Book struct {
	account models.Account
	trades  map[string]models.Trade
	txs     []models.Transaction
}

func newBook(acct models.Account, trades []models.Trade, txs []models.Transaction) *Book {
	b := &Book{
		account: acct,
		trades:  make(map[string]models.Trade, len(trades)),
		txs:     append([]models.Transaction(nil), txs...),
	}
	for _, t := range trades {
		b.trades[t.ID] = t.Clone()
	}
	store.SortTransactions(b.txs)
	return b
}

// Account returns the account row.
func (b *Book) Account() models.Account {
	return b.account
}

// Get returns the trade with id.
func (b *Book) Get(id string) (models.Trade, bool) {
	t, ok := b.trades[id]
	if !ok {
		return models.Trade{}, false
	}
	return t.Clone(), true
}

// Len returns the number of trades.
func (b *Book) Len() int {
	return len(b.trades)
}

// Trades returns every trade ordered by entry date and time ascending.
func (b *Book) Trades() []models.Trade {
	out := make([]models.Trade, 0, len(b.trades))
	for _, t := range b.trades {
		out = append(out, t.Clone())
	}
	store.SortTrades(out)
	return out
}

// Transactions returns the ledger ordered by date.
func (b *Book) Transactions() []models.Transaction {
	return append([]models.Transaction(nil), b.txs...)
}

// Journal returns the book as a detached snapshot.
func (b *Book) Journal() models.Journal {
	return models.Journal{
		Account:      b.account,
		Trades:       b.Trades(),
		Transactions: b.Transactions(),
	}
}

func (b *Book) clone() *Book {
	c := &Book{
		account: b.account,
		trades:  make(map[string]models.Trade, len(b.trades)),
		txs:     append([]models.Transaction(nil), b.txs...),
	}
	for k, v := range b.trades {
		c.trades[k] = v
	}
	return c
}

func (b *Book) withAccount(acct models.Account) *Book {
	c := b.clone()
	c.account = acct
	return c
}

// Upsert returns a book with t stored under its id.
func (b *Book) Upsert(t models.Trade) *Book {
	c := b.clone()
	c.trades[t.ID] = t.Clone()
	return c
}

// Delete returns a book without the trade id.
func (b *Book) Delete(id string) *Book {
	c := b.clone()
	delete(c.trades, id)
	return c
}

func (b *Book) withTransaction(tx models.Transaction) *Book {
	c := b.clone()
	c.txs = append(c.txs, tx)
	store.SortTransactions(c.txs)
	return c
}

func (b *Book) withoutTransaction(id string) *Book {
	c := b.clone()
	out := c.txs[:0]
	for _, tx := range c.txs {
		if tx.ID != id {
			out = append(out, tx)
		}
	}
	c.txs = out
	return c
}

func (b *Book) transaction(id string) (models.Transaction, bool) {
	for _, tx := range b.txs {
		if tx.ID == id {
			return tx, true
		}
	}
	return models.Transaction{}, false
}

// PnLSign selects trades by the sign of realized P&L.
type PnLSign string

const (
	PnLPositive PnLSign = "positive"
	PnLNegative PnLSign = "negative"
	PnLZero     PnLSign = "zero"
)

// Filter narrows a trade listing. Zero values match everything. From and To
// bound the entry date inclusively. A P&L sign only matches closed trades.
type Filter struct {
	State     models.TradeState
	From      time.Time
	To        time.Time
	Symbol    string
	Direction models.Direction
	Status    models.TradeStatus
	PnLSign   PnLSign
}

// Match reports whether t passes the filter.
func (f Filter) Match(t models.Trade) bool {
	if f.State != "" && t.State != f.State {
		return false
	}
	if !f.From.IsZero() && t.EntryDate.Before(models.DateOnly(f.From)) {
		return false
	}
	if !f.To.IsZero() && t.EntryDate.After(models.DateOnly(f.To)) {
		return false
	}
	if f.Symbol != "" && t.Symbol != market.Normalize(f.Symbol) {
		return false
	}
	if f.Direction != "" && t.Direction != f.Direction {
		return false
	}
	if f.Status != "" && t.Status != f.Status {
		return false
	}
	if f.PnLSign != "" {
		if !t.IsClosed() {
			return false
		}
		switch f.PnLSign {
		case PnLPositive:
			return t.PnL().IsPositive()
		case PnLNegative:
			return t.PnL().IsNegative()
		case PnLZero:
			return t.PnL().IsZero()
		}
	}
	return true
}

// SortKey names a trade ordering.
type SortKey string

const (
	SortEntryDate  SortKey = "entryDate"
	SortExitDate   SortKey = "exitDate"
	SortPnL        SortKey = "pnl"
	SortPnLPercent SortKey = "pnlPercent"
	SortSymbol     SortKey = "symbol"
	SortDirection  SortKey = "direction"
)

// ParseSortKey accepts the key names in camelCase or snake_case.
func ParseSortKey(s string) (SortKey, bool) {
	switch strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), "_", "")) {
	case "", "entrydate", "date":
		return SortEntryDate, true
	case "exitdate":
		return SortExitDate, true
	case "pnl", "pnlcurrency":
		return SortPnL, true
	case "pnlpercent":
		return SortPnLPercent, true
	case "symbol", "pair":
		return SortSymbol, true
	case "direction", "type":
		return SortDirection, true
	}
	return "", false
}

// Query is a filtered, sorted listing request. Listings are descending
// unless Ascending is set.
type Query struct {
	Filter
	Sort      SortKey
	Ascending bool
}

// List returns the trades matching q in the requested order.
func (b *Book) List(q Query) []models.Trade {
	var out []models.Trade
	for _, t := range b.Trades() {
		if q.Match(t) {
			out = append(out, t)
		}
	}
	sortTrades(out, q.Sort, q.Ascending)
	return out
}

func sortTrades(trades []models.Trade, key SortKey, ascending bool) {
	// entry date, entry time, then id break every tie
	chrono := func(a, b models.Trade) int {
		switch {
		case a.EntryDate.Before(b.EntryDate):
			return -1
		case a.EntryDate.After(b.EntryDate):
			return 1
		case a.EntryTime != b.EntryTime:
			return strings.Compare(a.EntryTime, b.EntryTime)
		}
		return strings.Compare(a.ID, b.ID)
	}

	cmp := func(a, b models.Trade) int {
		switch key {
		case SortExitDate:
			if c := compareExit(a, b); c != 0 {
				return c
			}
		case SortPnL:
			if c := a.PnL().Cmp(b.PnL()); c != 0 {
				return c
			}
		case SortPnLPercent:
			ap, bp := a.PnLPercent.Decimal, b.PnLPercent.Decimal
			if c := ap.Cmp(bp); c != 0 {
				return c
			}
		case SortSymbol:
			if c := strings.Compare(a.Symbol, b.Symbol); c != 0 {
				return c
			}
		case SortDirection:
			if c := strings.Compare(string(a.Direction), string(b.Direction)); c != 0 {
				return c
			}
		}
		return chrono(a, b)
	}

	sort.SliceStable(trades, func(i, j int) bool {
		c := cmp(trades[i], trades[j])
		if ascending {
			return c < 0
		}
		return c > 0
	})
}

// open trades sort before any exit date
func compareExit(a, b models.Trade) int {
	switch {
	case a.ExitDate == nil && b.ExitDate == nil:
		return 0
	case a.ExitDate == nil:
		return -1
	case b.ExitDate == nil:
		return 1
	case a.ExitDate.Before(*b.ExitDate):
		return -1
	case a.ExitDate.After(*b.ExitDate):
		return 1
	}
	return 0
}
