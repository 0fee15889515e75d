// Package engine implements the journal's command and query operations over
// per-account books. Each account has a single writer; readers see the last
// published book without locking.
package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"trade-journal/internal/audit"
	"trade-journal/internal/errors"
	"trade-journal/internal/identity"
	"trade-journal/internal/logging"
	"trade-journal/internal/models"
	"trade-journal/internal/risk"
	"trade-journal/internal/store"
)

// Options configures an Engine. Zero values pick defaults.
type Options struct {
	Limits   risk.Limits
	Timeout  time.Duration // per persistence call
	Audit    audit.Sink
	Logger   *zerolog.Logger
	Clock    func() time.Time
	NewID    func() string
	Location *time.Location // journal zone for exit days; nil is UTC
}

// Engine executes journal commands against a persistence port.
type Engine struct {
	port    store.Port
	gate    *risk.Gate
	audit   audit.Sink
	logger  zerolog.Logger
	clock   func() time.Time
	newID   func() string
	timeout time.Duration
	loc     *time.Location

	state atomic.Pointer[State]
	locks sync.Map // account id -> *sync.Mutex
}

// State is the published set of loaded books, keyed by account id. A State
// is never mutated after it is published.
type State struct {
	books map[string]*Book
}

func (s *State) with(id string, b *Book) *State {
	next := &State{books: make(map[string]*Book, len(s.books)+1)}
	for k, v := range s.books {
		next.books[k] = v
	}
	if b == nil {
		delete(next.books, id)
	} else {
		next.books[id] = b
	}
	return next
}

// New creates an engine over port.
func New(port store.Port, opts Options) *Engine {
	limits := opts.Limits
	if limits == (risk.Limits{}) {
		limits = risk.DefaultLimits()
	}
	e := &Engine{
		port:    port,
		gate:    risk.NewGate(limits),
		audit:   opts.Audit,
		clock:   opts.Clock,
		newID:   opts.NewID,
		timeout: opts.Timeout,
		loc:     opts.Location,
	}
	if e.loc == nil {
		e.loc = time.UTC
	}
	if e.audit == nil {
		e.audit = audit.Nop{}
	}
	if opts.Logger != nil {
		e.logger = *opts.Logger
	} else {
		e.logger = zerolog.Nop()
	}
	if e.clock == nil {
		e.clock = func() time.Time { return time.Now().UTC() }
	}
	if e.newID == nil {
		e.newID = uuid.NewString
	}
	if e.timeout <= 0 {
		e.timeout = 10 * time.Second
	}
	e.state.Store(&State{books: map[string]*Book{}})
	return e
}

// Limits returns the risk limits the engine enforces.
func (e *Engine) Limits() risk.Limits {
	return e.gate.Limits()
}

func (e *Engine) lock(accountID string) func() {
	m, _ := e.locks.LoadOrStore(accountID, &sync.Mutex{})
	mu := m.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func (e *Engine) cached(accountID string) (*Book, bool) {
	b, ok := e.state.Load().books[accountID]
	return b, ok
}

// publish swaps in a new State with b stored under id, or removed when b is
// nil. Callers hold the account lock.
func (e *Engine) publish(id string, b *Book) {
	for {
		cur := e.state.Load()
		if e.state.CompareAndSwap(cur, cur.with(id, b)) {
			return
		}
	}
}

// book returns the published book for who.AccountID, loading it from the
// store under the account lock on first use.
func (e *Engine) book(ctx context.Context, who identity.Identity) (*Book, error) {
	if err := who.Validate(); err != nil {
		return nil, err
	}
	if b, ok := e.cached(who.AccountID); ok {
		return owned(b, who)
	}
	unlock := e.lock(who.AccountID)
	defer unlock()
	b, err := e.loadLocked(ctx, who.AccountID)
	if err != nil {
		return nil, err
	}
	return owned(b, who)
}

func (e *Engine) loadLocked(ctx context.Context, accountID string) (*Book, error) {
	if b, ok := e.cached(accountID); ok {
		return b, nil
	}
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	acct, err := e.port.LoadAccount(ctx, accountID)
	if err != nil {
		return nil, e.persistenceErr("load account", err)
	}
	trades, err := e.port.LoadTrades(ctx, accountID)
	if err != nil {
		return nil, e.persistenceErr("load trades", err)
	}
	txs, err := e.port.ListTransactions(ctx, accountID)
	if err != nil {
		return nil, e.persistenceErr("load transactions", err)
	}
	b := newBook(acct, trades, txs)
	e.publish(accountID, b)
	return b, nil
}

// owned hides other users' accounts behind NotFound.
func owned(b *Book, who identity.Identity) (*Book, error) {
	if b.account.UserID != who.UserID {
		return nil, errors.NewNotFoundError("account", who.AccountID)
	}
	return b, nil
}

// Mutation is one write against the store inside a command's transaction.
type Mutation func(ctx context.Context, w store.Writer) error

// outcome is what a command computes from the current book.
type outcome struct {
	book    *Book // nil removes the account
	writes  []Mutation
	events  []audit.Event
	onApply func(zerolog.Logger)
}

// run executes one command for who under the account lock. The new book is
// published only after every write has committed.
func (e *Engine) run(ctx context.Context, who identity.Identity, op string, cmd func(b *Book, now time.Time) (outcome, error)) (*Book, error) {
	return e.runTrade(ctx, who, op, "", cmd)
}

// runTrade is run for a command on an existing trade; its log lines carry
// the trade id.
func (e *Engine) runTrade(ctx context.Context, who identity.Identity, op, tradeID string, cmd func(b *Book, now time.Time) (outcome, error)) (*Book, error) {
	if err := who.Validate(); err != nil {
		return nil, err
	}
	logger := logging.WithOperation(logging.WithAccount(e.logger, who.AccountID), op)
	if tradeID != "" {
		logger = logging.WithTrade(logger, tradeID)
	}

	unlock := e.lock(who.AccountID)
	defer unlock()

	b, err := e.loadLocked(ctx, who.AccountID)
	if err != nil {
		return nil, err
	}
	if b, err = owned(b, who); err != nil {
		return nil, err
	}

	out, err := cmd(b, e.clock())
	if err != nil {
		logging.LogRejection(logger, op, err)
		return nil, err
	}
	if err := e.commit(ctx, logger, op, who.AccountID, out); err != nil {
		return nil, err
	}
	return out.book, nil
}

// create runs a command for an account that does not exist yet.
func (e *Engine) create(ctx context.Context, accountID, op string, out outcome) error {
	logger := logging.WithOperation(logging.WithAccount(e.logger, accountID), op)
	unlock := e.lock(accountID)
	defer unlock()
	return e.commit(ctx, logger, op, accountID, out)
}

func (e *Engine) commit(ctx context.Context, logger zerolog.Logger, op, accountID string, out outcome) error {
	start := time.Now()
	pctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	err := e.port.Atomically(pctx, func(tx store.Tx) error {
		for _, w := range out.writes {
			if err := w(pctx, tx); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		err = e.persistenceErr(op, err)
		if errors.Is(err, errors.ErrPersistence) {
			logging.LogPersistenceFailure(logger, op, errors.Unwrap(err), time.Since(start))
		} else {
			logging.LogRejection(logger, op, err)
		}
		return err
	}

	e.publish(accountID, out.book)

	if out.onApply != nil {
		out.onApply(logger)
	}
	for _, ev := range out.events {
		if ev.Timestamp.IsZero() {
			ev.Timestamp = e.clock()
		}
		ev.AccountID = accountID
		ev.Success = true
		if err := e.audit.Log(ctx, ev); err != nil {
			logger.Warn().Err(err).Str("event_type", string(ev.EventType)).Msg("Audit write failed")
		}
	}
	return nil
}

// persistenceErr keeps domain errors from the store as they are and turns
// anything else into a PersistenceFailure.
func (e *Engine) persistenceErr(op string, err error) error {
	switch errors.KindOf(err) {
	case errors.KindInternal:
		return errors.NewPersistenceError(op, err)
	}
	return err
}

// Snapshot returns the account's current journal.
func (e *Engine) Snapshot(ctx context.Context, who identity.Identity) (models.Journal, error) {
	b, err := e.book(ctx, who)
	if err != nil {
		return models.Journal{}, err
	}
	return b.Journal(), nil
}

// Book returns the published book for the account.
func (e *Engine) Book(ctx context.Context, who identity.Identity) (*Book, error) {
	return e.book(ctx, who)
}

func later(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

func upsertTrade(t models.Trade) Mutation {
	return func(ctx context.Context, w store.Writer) error { return w.UpsertTrade(ctx, t) }
}

func deleteTrade(id string) Mutation {
	return func(ctx context.Context, w store.Writer) error { return w.DeleteTrade(ctx, id) }
}

func saveAccount(a models.Account) Mutation {
	return func(ctx context.Context, w store.Writer) error { return w.SaveAccount(ctx, a) }
}

func insertTransaction(tx models.Transaction) Mutation {
	return func(ctx context.Context, w store.Writer) error { return w.InsertTransaction(ctx, tx) }
}

func deleteTransaction(id string) Mutation {
	return func(ctx context.Context, w store.Writer) error { return w.DeleteTransaction(ctx, id) }
}
