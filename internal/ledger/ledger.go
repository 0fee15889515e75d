// Package ledger implements the account money rules: creation, plan
// constraints, deposits, withdrawals and their reversal.
package ledger

import (
	"strings"
	"time"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"

	"trade-journal/internal/errors"
	"trade-journal/internal/models"
)

// AccountParams holds the fields needed to create an account.
type AccountParams struct {
	Name            string
	Plan            models.AccountPlan
	Tier            models.AccountTier
	Currency        string
	DepositEnabled  bool
	WithdrawEnabled bool
	Target          decimal.NullDecimal
}

// AccountPatch holds optional account edits. Nil fields are left unchanged.
type AccountPatch struct {
	Name            *string
	Plan            *models.AccountPlan
	Tier            *models.AccountTier
	Currency        *string
	DepositEnabled  *bool
	WithdrawEnabled *bool
	Target          *decimal.NullDecimal
}

// Split records how a withdrawal was drawn.
type Split struct {
	FromProfit  decimal.Decimal
	FromCapital decimal.Decimal
}

// ConfirmFunc is asked before a withdrawal dips into capital. It receives the
// requested amount and the split that would be applied.
type ConfirmFunc func(amount decimal.Decimal, split Split) bool

// NewAccount builds a fresh account with zero capital, profit and equity.
func NewAccount(id, userID string, p AccountParams, now time.Time) (models.Account, error) {
	acct := models.Account{
		ID:              id,
		UserID:          userID,
		Name:            strings.TrimSpace(p.Name),
		Plan:            p.Plan,
		Tier:            p.Tier,
		Currency:        strings.ToUpper(strings.TrimSpace(p.Currency)),
		Capital:         decimal.Zero,
		Profit:          decimal.Zero,
		Equity:          decimal.Zero,
		DepositEnabled:  p.DepositEnabled,
		WithdrawEnabled: p.WithdrawEnabled,
		Target:          p.Target,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if acct.Currency == "" {
		acct.Currency = money.USD
	}
	if acct.Tier == "" {
		acct.Tier = models.TierStandard
	}
	if acct.Plan == "" {
		acct.Plan = models.PlanNormal
	}
	acct = applyPlanRules(acct)
	if err := Validate(acct); err != nil {
		return models.Account{}, err
	}
	return acct, nil
}

// ApplyPatch applies an edit and re-validates the plan constraints. Money
// fields are never touched.
func ApplyPatch(acct models.Account, patch AccountPatch, now time.Time) (models.Account, error) {
	if patch.Name != nil {
		acct.Name = strings.TrimSpace(*patch.Name)
	}
	if patch.Plan != nil {
		acct.Plan = *patch.Plan
	}
	if patch.Tier != nil {
		acct.Tier = *patch.Tier
	}
	if patch.Currency != nil {
		acct.Currency = strings.ToUpper(strings.TrimSpace(*patch.Currency))
	}
	if patch.DepositEnabled != nil {
		acct.DepositEnabled = *patch.DepositEnabled
	}
	if patch.WithdrawEnabled != nil {
		acct.WithdrawEnabled = *patch.WithdrawEnabled
	}
	if patch.Target != nil {
		acct.Target = *patch.Target
	}
	acct = applyPlanRules(acct)
	if err := Validate(acct); err != nil {
		return models.Account{}, err
	}
	acct.UpdatedAt = laterOf(now, acct.UpdatedAt)
	return acct, nil
}

// applyPlanRules forces withdrawals off for Challenge accounts and drops the
// target from Normal accounts.
func applyPlanRules(acct models.Account) models.Account {
	switch acct.Plan {
	case models.PlanChallenge:
		acct.WithdrawEnabled = false
	case models.PlanNormal:
		acct.Target = decimal.NullDecimal{}
	}
	return acct
}

// Validate checks the static account invariants.
func Validate(acct models.Account) error {
	if acct.Name == "" {
		return errors.NewValidationError("account_name", "", "name is required")
	}
	if _, ok := models.ParseAccountPlan(string(acct.Plan)); !ok {
		return errors.NewValidationError("account_plan", acct.Plan, "must be Normal or Challenge")
	}
	if _, ok := models.ParseAccountTier(string(acct.Tier)); !ok {
		return errors.NewValidationError("account_type", acct.Tier, "must be Standard, Mini or Micro")
	}
	if money.GetCurrency(acct.Currency) == nil {
		return errors.NewValidationError("currency", acct.Currency, "unknown currency code")
	}
	if acct.Plan == models.PlanChallenge && (!acct.Target.Valid || !acct.Target.Decimal.IsPositive()) {
		return errors.NewValidationError("target", acct.Target.Decimal, "challenge accounts need a positive target percent")
	}
	if acct.Capital.IsNegative() {
		return errors.NewValidationError("capital", acct.Capital, "must not be negative")
	}
	return nil
}

// Deposit adds amount to capital.
func Deposit(acct models.Account, amount decimal.Decimal, now time.Time) (models.Account, error) {
	if !acct.DepositEnabled {
		return models.Account{}, errors.NewPolicyError(errors.RuleDepositDisabled, time.Time{}, amount, decimal.Zero)
	}
	if !amount.IsPositive() {
		return models.Account{}, errors.NewValidationError("amount", amount, "must be positive")
	}
	acct.Capital = acct.Capital.Add(amount)
	return touch(RecomputeEquity(acct), now), nil
}

// Withdraw draws amount from realized profit first. When the amount exceeds
// available profit the remainder comes out of capital, but only after
// confirm approves it. Equity never goes below zero: amount may not exceed
// profit + capital, whatever the sign of profit.
func Withdraw(acct models.Account, amount decimal.Decimal, confirm ConfirmFunc, now time.Time) (models.Account, Split, error) {
	if !acct.WithdrawEnabled || acct.IsChallenge() {
		return models.Account{}, Split{}, errors.NewPolicyError(errors.RuleWithdrawDisabled, time.Time{}, amount, decimal.Zero)
	}
	if !amount.IsPositive() {
		return models.Account{}, Split{}, errors.NewValidationError("amount", amount, "must be positive")
	}

	available := decimal.Max(acct.Profit, decimal.Zero)
	if amount.LessThanOrEqual(available) {
		acct.Profit = acct.Profit.Sub(amount)
		return touch(RecomputeEquity(acct), now), Split{FromProfit: amount, FromCapital: decimal.Zero}, nil
	}

	total := acct.Profit.Add(acct.Capital)
	if amount.GreaterThan(total) {
		return models.Account{}, Split{}, errors.NewInsufficientFundsError(amount, total)
	}

	split := Split{FromProfit: available, FromCapital: amount.Sub(available)}
	if confirm == nil || !confirm(amount, split) {
		return models.Account{}, Split{}, errors.NewPolicyError(errors.RuleWithdrawNotConfirmed, time.Time{}, amount, available)
	}
	acct.Profit = acct.Profit.Sub(split.FromProfit)
	acct.Capital = acct.Capital.Sub(split.FromCapital)
	return touch(RecomputeEquity(acct), now), split, nil
}

// Reverse undoes the effect of a ledger entry. Withdrawals without a recorded
// split are returned to profit.
func Reverse(acct models.Account, tx models.Transaction, now time.Time) (models.Account, error) {
	switch tx.Kind {
	case models.TransactionDeposit:
		if tx.Amount.GreaterThan(acct.Capital) {
			return models.Account{}, errors.NewInsufficientFundsError(tx.Amount, acct.Capital)
		}
		acct.Capital = acct.Capital.Sub(tx.Amount)
	case models.TransactionWithdraw:
		if tx.FromProfit.IsZero() && tx.FromCapital.IsZero() {
			acct.Profit = acct.Profit.Add(tx.Amount)
		} else {
			acct.Profit = acct.Profit.Add(tx.FromProfit)
			acct.Capital = acct.Capital.Add(tx.FromCapital)
		}
	default:
		return models.Account{}, errors.NewValidationError("type", tx.Kind, "unknown transaction type")
	}
	return touch(RecomputeEquity(acct), now), nil
}

// ApplyPnL adds realized P&L (or a P&L delta) to profit.
func ApplyPnL(acct models.Account, delta decimal.Decimal, now time.Time) models.Account {
	if delta.IsZero() {
		return acct
	}
	acct.Profit = acct.Profit.Add(delta)
	return touch(RecomputeEquity(acct), now)
}

// RecomputeEquity sets equity to capital plus realized profit.
func RecomputeEquity(acct models.Account) models.Account {
	acct.Equity = acct.Capital.Add(acct.Profit)
	return acct
}

// TargetEquity returns the equity a Challenge account must reach.
func TargetEquity(acct models.Account) (decimal.Decimal, bool) {
	if !acct.IsChallenge() || !acct.Target.Valid {
		return decimal.Zero, false
	}
	factor := decimal.NewFromInt(1).Add(acct.Target.Decimal.Div(decimal.NewFromInt(100)))
	return acct.Capital.Mul(factor), true
}

func touch(acct models.Account, now time.Time) models.Account {
	acct.UpdatedAt = laterOf(now, acct.UpdatedAt)
	return acct
}

func laterOf(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}
