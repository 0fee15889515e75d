package engine

import (
	"context"
	"time"

	"trade-journal/internal/audit"
	"trade-journal/internal/errors"
	"trade-journal/internal/identity"
	"trade-journal/internal/ledger"
	"trade-journal/internal/models"
)

// RestoreOptions controls how a journal snapshot is applied.
type RestoreOptions struct {
	// FreshIDs assigns new ids to every trade and transaction. Ids are
	// global across accounts, so restoring a copy next to its source needs
	// this.
	FreshIDs bool
}

// Restore replaces the account's trades, transactions and money snapshot
// with those of j in one write. Rows are re-keyed to who; the account keeps
// its own name and settings.
func (e *Engine) Restore(ctx context.Context, who identity.Identity, j models.Journal, opts RestoreOptions) (models.Journal, error) {
	b, err := e.run(ctx, who, "restore", func(b *Book, now time.Time) (outcome, error) {
		trades, txs, err := e.rekey(who, j, opts.FreshIDs)
		if err != nil {
			return outcome{}, err
		}

		acct := b.account
		acct.Capital = j.Account.Capital
		acct.Profit = j.Account.Profit
		acct = ledger.RecomputeEquity(acct)
		acct.UpdatedAt = later(now, acct.UpdatedAt)
		if err := ledger.Validate(acct); err != nil {
			return outcome{}, err
		}

		var writes []Mutation
		for _, t := range b.Trades() {
			writes = append(writes, deleteTrade(t.ID))
		}
		for _, tx := range b.txs {
			writes = append(writes, deleteTransaction(tx.ID))
		}
		writes = append(writes, saveAccount(acct))
		for _, t := range trades {
			writes = append(writes, upsertTrade(t))
		}
		for _, tx := range txs {
			writes = append(writes, insertTransaction(tx))
		}

		return outcome{
			book:   newBook(acct, trades, txs),
			writes: writes,
			events: []audit.Event{{
				EventType: audit.BackupImported,
				UserID:    who.UserID,
				Details: map[string]interface{}{
					"source_account": j.Account.ID,
					"trades":         len(trades),
					"transactions":   len(txs),
					"replaced":       b.Len(),
					"fresh_ids":      opts.FreshIDs,
				},
			}},
		}, nil
	})
	if err != nil {
		return models.Journal{}, err
	}
	return b.Journal(), nil
}

func (e *Engine) rekey(who identity.Identity, j models.Journal, fresh bool) ([]models.Trade, []models.Transaction, error) {
	seen := make(map[string]bool, len(j.Trades)+len(j.Transactions))
	claim := func(kind, id string) error {
		if id == "" {
			return errors.NewValidationError("id", "", kind+" without id")
		}
		if seen[kind+id] {
			return errors.NewValidationError("id", id, "duplicate "+kind+" id")
		}
		seen[kind+id] = true
		return nil
	}

	trades := make([]models.Trade, 0, len(j.Trades))
	for _, t := range j.Trades {
		if err := claim("trade", t.ID); err != nil {
			return nil, nil, err
		}
		if err := checkLifecycle(t); err != nil {
			return nil, nil, err
		}
		t = t.Clone()
		if fresh {
			t.ID = e.newID()
		}
		t.UserID = who.UserID
		t.AccountID = who.AccountID
		trades = append(trades, t)
	}

	txs := make([]models.Transaction, 0, len(j.Transactions))
	for _, tx := range j.Transactions {
		if err := claim("transaction", tx.ID); err != nil {
			return nil, nil, err
		}
		if !tx.Amount.IsPositive() {
			return nil, nil, errors.NewValidationError("amount", tx.Amount, "must be positive")
		}
		if fresh {
			tx.ID = e.newID()
		}
		tx.UserID = who.UserID
		tx.AccountID = who.AccountID
		txs = append(txs, tx)
	}
	return trades, txs, nil
}

// checkLifecycle enforces that close fields are present exactly when the
// trade is Closed.
func checkLifecycle(t models.Trade) error {
	switch t.State {
	case models.StateClosed:
		if t.ExitDate == nil || !t.ExitPrice.Valid || !t.PnLCurrency.Valid || !t.PnLPercent.Valid {
			return errors.NewValidationError("state", t.ID, "closed trade is missing exit fields")
		}
	case models.StateActive:
		if t.ExitDate != nil || t.ExitPrice.Valid || t.PnLCurrency.Valid {
			return errors.NewValidationError("state", t.ID, "active trade carries exit fields")
		}
	default:
		return errors.NewValidationError("state", t.State, "must be Active or Closed")
	}
	if _, ok := models.ParseDirection(string(t.Direction)); !ok {
		return errors.NewValidationError("type", t.Direction, "must be Long or Short")
	}
	return nil
}
