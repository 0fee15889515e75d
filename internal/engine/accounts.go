package engine

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"trade-journal/internal/audit"
	"trade-journal/internal/errors"
	"trade-journal/internal/identity"
	"trade-journal/internal/ledger"
	"trade-journal/internal/logging"
	"trade-journal/internal/models"
	"trade-journal/internal/store"
)

// CreateAccount creates an empty account owned by userID.
func (e *Engine) CreateAccount(ctx context.Context, userID string, p ledger.AccountParams) (models.Account, error) {
	if strings.TrimSpace(userID) == "" {
		return models.Account{}, errors.NewValidationError("user_id", "", "is required")
	}
	acct, err := ledger.NewAccount(e.newID(), userID, p, e.clock())
	if err != nil {
		logging.LogRejection(logging.WithOperation(e.logger, "create_account"), "create_account", err)
		return models.Account{}, err
	}
	out := outcome{
		book:   newBook(acct, nil, nil),
		writes: []Mutation{saveAccount(acct)},
		events: []audit.Event{{
			EventType: audit.AccountCreated,
			UserID:    userID,
			Details: map[string]interface{}{
				"name":     acct.Name,
				"plan":     acct.Plan,
				"tier":     acct.Tier,
				"currency": acct.Currency,
			},
		}},
	}
	if err := e.create(ctx, acct.ID, "create_account", out); err != nil {
		return models.Account{}, err
	}
	return acct, nil
}

// ListAccounts returns the accounts owned by userID.
func (e *Engine) ListAccounts(ctx context.Context, userID string) ([]models.Account, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	accts, err := e.port.ListAccounts(ctx, userID)
	if err != nil {
		return nil, e.persistenceErr("list accounts", err)
	}
	// prefer published rows, which are never older than the store's
	for i, a := range accts {
		if b, ok := e.cached(a.ID); ok {
			accts[i] = b.account
		}
	}
	return accts, nil
}

// Account returns the account who targets.
func (e *Engine) Account(ctx context.Context, who identity.Identity) (models.Account, error) {
	b, err := e.book(ctx, who)
	if err != nil {
		return models.Account{}, err
	}
	return b.account, nil
}

// UpdateAccount applies an edit to the account's settings.
func (e *Engine) UpdateAccount(ctx context.Context, who identity.Identity, patch ledger.AccountPatch) (models.Account, error) {
	b, err := e.run(ctx, who, "update_account", func(b *Book, now time.Time) (outcome, error) {
		acct, err := ledger.ApplyPatch(b.account, patch, now)
		if err != nil {
			return outcome{}, err
		}
		return outcome{
			book:   b.withAccount(acct),
			writes: []Mutation{saveAccount(acct)},
			events: []audit.Event{{
				EventType: audit.AccountUpdated,
				UserID:    who.UserID,
				Details: map[string]interface{}{
					"name":             acct.Name,
					"plan":             acct.Plan,
					"tier":             acct.Tier,
					"deposit_enabled":  acct.DepositEnabled,
					"withdraw_enabled": acct.WithdrawEnabled,
				},
			}},
		}, nil
	})
	if err != nil {
		return models.Account{}, err
	}
	return b.account, nil
}

// DeleteAccount removes the account with its trades and transactions.
func (e *Engine) DeleteAccount(ctx context.Context, who identity.Identity) error {
	_, err := e.run(ctx, who, "delete_account", func(b *Book, _ time.Time) (outcome, error) {
		return outcome{
			book: nil,
			writes: []Mutation{func(ctx context.Context, w store.Writer) error {
				return w.DeleteAccount(ctx, who.AccountID)
			}},
			events: []audit.Event{{
				EventType: audit.AccountDeleted,
				UserID:    who.UserID,
				Details: map[string]interface{}{
					"trades":       b.Len(),
					"transactions": len(b.txs),
				},
			}},
		}, nil
	})
	return err
}

// Movement is a deposit or withdrawal request. A zero Date means now.
type Movement struct {
	Amount      decimal.Decimal
	Date        time.Time
	Description string
}

// Deposit adds capital and records a ledger entry.
func (e *Engine) Deposit(ctx context.Context, who identity.Identity, m Movement) (models.Transaction, error) {
	var tx models.Transaction
	_, err := e.run(ctx, who, "deposit", func(b *Book, now time.Time) (outcome, error) {
		acct, err := ledger.Deposit(b.account, m.Amount, now)
		if err != nil {
			return outcome{}, err
		}
		tx = e.transaction(who, models.TransactionDeposit, m, now)
		return outcome{
			book:   b.withAccount(acct).withTransaction(tx),
			writes: []Mutation{saveAccount(acct), insertTransaction(tx)},
			events: []audit.Event{movementEvent(audit.Deposit, who, tx)},
		}, nil
	})
	if err != nil {
		return models.Transaction{}, err
	}
	return tx, nil
}

// Withdraw takes money out of profit first, then capital. confirm is asked
// before capital is touched; nil means the caller never confirms.
func (e *Engine) Withdraw(ctx context.Context, who identity.Identity, m Movement, confirm ledger.ConfirmFunc) (models.Transaction, error) {
	var tx models.Transaction
	_, err := e.run(ctx, who, "withdraw", func(b *Book, now time.Time) (outcome, error) {
		acct, split, err := ledger.Withdraw(b.account, m.Amount, confirm, now)
		if err != nil {
			return outcome{}, err
		}
		tx = e.transaction(who, models.TransactionWithdraw, m, now)
		tx.FromProfit = split.FromProfit
		tx.FromCapital = split.FromCapital
		return outcome{
			book:   b.withAccount(acct).withTransaction(tx),
			writes: []Mutation{saveAccount(acct), insertTransaction(tx)},
			events: []audit.Event{movementEvent(audit.Withdrawal, who, tx)},
		}, nil
	})
	if err != nil {
		return models.Transaction{}, err
	}
	return tx, nil
}

// Transactions returns the account's ledger ordered by date.
func (e *Engine) Transactions(ctx context.Context, who identity.Identity) ([]models.Transaction, error) {
	b, err := e.book(ctx, who)
	if err != nil {
		return nil, err
	}
	return b.Transactions(), nil
}

// DeleteTransaction removes a ledger entry and reverses its effect.
func (e *Engine) DeleteTransaction(ctx context.Context, who identity.Identity, txID string) (models.Account, error) {
	b, err := e.run(ctx, who, "delete_transaction", func(b *Book, now time.Time) (outcome, error) {
		tx, ok := b.transaction(txID)
		if !ok {
			return outcome{}, errors.NewNotFoundError("transaction", txID)
		}
		acct, err := ledger.Reverse(b.account, tx, now)
		if err != nil {
			return outcome{}, err
		}
		ev := movementEvent(audit.TransactionDeleted, who, tx)
		return outcome{
			book:   b.withAccount(acct).withoutTransaction(txID),
			writes: []Mutation{deleteTransaction(txID), saveAccount(acct)},
			events: []audit.Event{ev},
		}, nil
	})
	if err != nil {
		return models.Account{}, err
	}
	return b.account, nil
}

// RecomputeEquity resets equity to capital plus profit and persists it.
func (e *Engine) RecomputeEquity(ctx context.Context, who identity.Identity) (models.Account, error) {
	b, err := e.run(ctx, who, "recompute_equity", func(b *Book, now time.Time) (outcome, error) {
		acct := ledger.RecomputeEquity(b.account)
		acct.UpdatedAt = later(now, acct.UpdatedAt)
		return outcome{
			book:   b.withAccount(acct),
			writes: []Mutation{saveAccount(acct)},
			events: []audit.Event{{
				EventType: audit.EquityRecomputed,
				UserID:    who.UserID,
				Details:   map[string]interface{}{"equity": acct.Equity.String()},
			}},
		}, nil
	})
	if err != nil {
		return models.Account{}, err
	}
	return b.account, nil
}

func (e *Engine) transaction(who identity.Identity, kind models.TransactionKind, m Movement, now time.Time) models.Transaction {
	date := m.Date
	if date.IsZero() {
		date = now
	}
	return models.Transaction{
		ID:          e.newID(),
		AccountID:   who.AccountID,
		UserID:      who.UserID,
		Kind:        kind,
		Amount:      m.Amount,
		Date:        date.UTC(),
		Description: strings.TrimSpace(m.Description),
		FromProfit:  decimal.Zero,
		FromCapital: decimal.Zero,
		CreatedAt:   now,
	}
}

func movementEvent(t audit.EventType, who identity.Identity, tx models.Transaction) audit.Event {
	return audit.Event{
		EventType: t,
		UserID:    who.UserID,
		Action:    string(tx.Kind),
		Details: map[string]interface{}{
			"transaction_id": tx.ID,
			"amount":         tx.Amount.String(),
			"from_profit":    tx.FromProfit.String(),
			"from_capital":   tx.FromCapital.String(),
		},
	}
}
