package store

import (
	"context"
	stderrors "errors"
	"sync"
	"time"

	"trade-journal/internal/errors"
	"trade-journal/internal/models"
)

// BreakerState is the state of a circuit breaker.
type BreakerState string

const (
	BreakerClosed   BreakerState = "CLOSED"
	BreakerOpen     BreakerState = "OPEN"
	BreakerHalfOpen BreakerState = "HALF_OPEN"
)

// ErrBreakerOpen is wrapped in the PersistenceError returned while the
// breaker refuses calls.
var ErrBreakerOpen = stderrors.New("store unavailable: circuit breaker is open")

// BreakerConfig holds circuit breaker settings.
type BreakerConfig struct {
	// FailureThreshold consecutive failures open the breaker. Zero disables it.
	FailureThreshold int
	// Cooldown is how long an open breaker refuses calls before letting one
	// probe through.
	Cooldown time.Duration
}

// DefaultBreakerConfig returns the settings used when none are configured.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{FailureThreshold: 5, Cooldown: 30 * time.Second}
}

// Breaker stops calling a failing store so callers fail fast instead of
// waiting on timeouts. Only persistence failures count; NotFound, validation
// and conflict errors are answers, not outages.
type Breaker struct {
	config BreakerConfig
	now    func() time.Time

	mu          sync.Mutex
	state       BreakerState
	failures    int
	openedAt    time.Time
	probing     bool
	totalFailed int64
	rejected    int64
}

// NewBreaker creates a closed breaker.
func NewBreaker(config BreakerConfig) *Breaker {
	if config.Cooldown <= 0 {
		config.Cooldown = DefaultBreakerConfig().Cooldown
	}
	return &Breaker{config: config, now: time.Now, state: BreakerClosed}
}

// Do runs fn unless the breaker is open.
func (b *Breaker) Do(op string, fn func() error) error {
	if err := b.allow(); err != nil {
		return errors.NewPersistenceError(op, err)
	}
	err := fn()
	b.record(err)
	return err
}

func (b *Breaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerOpen:
		if b.now().Sub(b.openedAt) < b.config.Cooldown {
			b.rejected++
			return ErrBreakerOpen
		}
		b.state = BreakerHalfOpen
		b.probing = true
		return nil
	case BreakerHalfOpen:
		// one probe at a time
		if b.probing {
			b.rejected++
			return ErrBreakerOpen
		}
		b.probing = true
	}
	return nil
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	failed := err != nil && countsAsOutage(err)
	if b.state == BreakerHalfOpen {
		b.probing = false
		if failed {
			b.trip()
		} else {
			b.state = BreakerClosed
			b.failures = 0
		}
		return
	}
	if !failed {
		b.failures = 0
		return
	}
	b.totalFailed++
	b.failures++
	if b.config.FailureThreshold > 0 && b.failures >= b.config.FailureThreshold {
		b.trip()
	}
}

func (b *Breaker) trip() {
	b.state = BreakerOpen
	b.openedAt = b.now()
	b.failures = 0
}

func countsAsOutage(err error) bool {
	switch errors.KindOf(err) {
	case errors.KindPersistence, errors.KindInternal:
		return !stderrors.Is(err, context.Canceled)
	}
	return false
}

// State returns the current breaker state.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// BreakerStats is a snapshot of breaker counters.
type BreakerStats struct {
	State    BreakerState `json:"state"`
	Failures int64        `json:"failures"`
	Rejected int64        `json:"rejected"`
}

// Stats returns the breaker counters.
func (b *Breaker) Stats() BreakerStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BreakerStats{State: b.state, Failures: b.totalFailed, Rejected: b.rejected}
}

// Guarded wraps a Port so every call passes through a Breaker. A zero
// FailureThreshold returns port unchanged.
func Guarded(port Port, config BreakerConfig) Port {
	if config.FailureThreshold <= 0 {
		return port
	}
	return &guardedPort{port: port, breaker: NewBreaker(config)}
}

type guardedPort struct {
	port    Port
	breaker *Breaker
}

func (g *guardedPort) LoadAccount(ctx context.Context, accountID string) (models.Account, error) {
	var out models.Account
	err := g.breaker.Do("load account", func() error {
		var err error
		out, err = g.port.LoadAccount(ctx, accountID)
		return err
	})
	return out, err
}

func (g *guardedPort) ListAccounts(ctx context.Context, userID string) ([]models.Account, error) {
	var out []models.Account
	err := g.breaker.Do("list accounts", func() error {
		var err error
		out, err = g.port.ListAccounts(ctx, userID)
		return err
	})
	return out, err
}

func (g *guardedPort) LoadTrades(ctx context.Context, accountID string) ([]models.Trade, error) {
	var out []models.Trade
	err := g.breaker.Do("load trades", func() error {
		var err error
		out, err = g.port.LoadTrades(ctx, accountID)
		return err
	})
	return out, err
}

func (g *guardedPort) ListTransactions(ctx context.Context, accountID string) ([]models.Transaction, error) {
	var out []models.Transaction
	err := g.breaker.Do("list transactions", func() error {
		var err error
		out, err = g.port.ListTransactions(ctx, accountID)
		return err
	})
	return out, err
}

func (g *guardedPort) SaveAccount(ctx context.Context, account models.Account) error {
	return g.breaker.Do("save account", func() error { return g.port.SaveAccount(ctx, account) })
}

func (g *guardedPort) DeleteAccount(ctx context.Context, accountID string) error {
	return g.breaker.Do("delete account", func() error { return g.port.DeleteAccount(ctx, accountID) })
}

func (g *guardedPort) UpsertTrade(ctx context.Context, trade models.Trade) error {
	return g.breaker.Do("upsert trade", func() error { return g.port.UpsertTrade(ctx, trade) })
}

func (g *guardedPort) DeleteTrade(ctx context.Context, tradeID string) error {
	return g.breaker.Do("delete trade", func() error { return g.port.DeleteTrade(ctx, tradeID) })
}

func (g *guardedPort) InsertTransaction(ctx context.Context, tx models.Transaction) error {
	return g.breaker.Do("insert transaction", func() error { return g.port.InsertTransaction(ctx, tx) })
}

func (g *guardedPort) DeleteTransaction(ctx context.Context, txID string) error {
	return g.breaker.Do("delete transaction", func() error { return g.port.DeleteTransaction(ctx, txID) })
}

// Atomically counts the whole unit of work as one call.
func (g *guardedPort) Atomically(ctx context.Context, fn func(tx Tx) error) error {
	return g.breaker.Do("atomic write", func() error { return g.port.Atomically(ctx, fn) })
}

func (g *guardedPort) Close() error {
	return g.port.Close()
}
