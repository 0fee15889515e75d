package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account represents a trading account and its money snapshot.
type Account struct {
	ID              string
	UserID          string
	Name            string
	Plan            AccountPlan
	Tier            AccountTier
	Currency        string
	Capital         decimal.Decimal
	Profit          decimal.Decimal
	Equity          decimal.Decimal
	DepositEnabled  bool
	WithdrawEnabled bool
	Target          decimal.NullDecimal // Challenge only
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// IsChallenge reports whether the account trades under a Challenge plan.
func (a Account) IsChallenge() bool {
	return a.Plan == PlanChallenge
}

// Transaction represents a deposit or withdrawal ledger entry.
type Transaction struct {
	ID          string
	AccountID   string
	UserID      string
	Kind        TransactionKind
	Amount      decimal.Decimal
	Date        time.Time
	Description string

	// Split applied by a withdrawal. Both zero for deposits and for
	// withdrawals recorded before the split was tracked.
	FromProfit  decimal.Decimal
	FromCapital decimal.Decimal

	CreatedAt time.Time
}
