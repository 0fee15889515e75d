package ledger

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trade-journal/internal/errors"
	"trade-journal/internal/models"
)

var now = time.Date(2024, 6, 3, 12, 0, 0, 0, time.UTC)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func funded(capital, profit string) models.Account {
	acct, _ := NewAccount("a1", "u1", AccountParams{
		Name:            "Main",
		Plan:            models.PlanNormal,
		Tier:            models.TierStandard,
		Currency:        "USD",
		DepositEnabled:  true,
		WithdrawEnabled: true,
	}, now)
	acct.Capital = d(capital)
	acct.Profit = d(profit)
	return RecomputeEquity(acct)
}

func always(decimal.Decimal, Split) bool { return true }

func never(decimal.Decimal, Split) bool { return false }

func TestNewAccountStartsEmpty(t *testing.T) {
	acct, err := NewAccount("a1", "u1", AccountParams{Name: "Main", Currency: "eur"}, now)
	require.NoError(t, err)

	assert.True(t, acct.Capital.IsZero())
	assert.True(t, acct.Profit.IsZero())
	assert.True(t, acct.Equity.IsZero())
	assert.Equal(t, "EUR", acct.Currency)
	assert.Equal(t, models.PlanNormal, acct.Plan)
	assert.Equal(t, models.TierStandard, acct.Tier)
	assert.False(t, acct.Target.Valid)
}

func TestNewAccountChallengeRules(t *testing.T) {
	_, err := NewAccount("a1", "u1", AccountParams{Name: "Prop", Plan: models.PlanChallenge, Currency: "USD"}, now)
	assert.True(t, errors.Is(err, errors.ErrValidation))

	acct, err := NewAccount("a1", "u1", AccountParams{
		Name:            "Prop",
		Plan:            models.PlanChallenge,
		Currency:        "USD",
		WithdrawEnabled: true,
		Target:          decimal.NewNullDecimal(d("10")),
	}, now)
	require.NoError(t, err)
	assert.False(t, acct.WithdrawEnabled)
}

func TestNewAccountRejectsUnknownCurrency(t *testing.T) {
	_, err := NewAccount("a1", "u1", AccountParams{Name: "Main", Currency: "XYZ"}, now)
	assert.True(t, errors.Is(err, errors.ErrValidation))
}

func TestWithdrawMechanics(t *testing.T) {
	acct := funded("1000", "120")

	acct, split, err := Withdraw(acct, d("100"), never, now)
	require.NoError(t, err)
	assert.True(t, acct.Profit.Equal(d("20")))
	assert.True(t, acct.Capital.Equal(d("1000")))
	assert.True(t, split.FromProfit.Equal(d("100")))

	_, _, err = Withdraw(acct, d("200"), never, now)
	var perr *errors.PolicyError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, errors.RuleWithdrawNotConfirmed, perr.Rule)

	var asked Split
	acct, split, err = Withdraw(acct, d("200"), func(_ decimal.Decimal, s Split) bool {
		asked = s
		return true
	}, now)
	require.NoError(t, err)
	assert.True(t, acct.Profit.IsZero())
	assert.True(t, acct.Capital.Equal(d("820")))
	assert.True(t, acct.Equity.Equal(d("820")))
	assert.True(t, asked.FromCapital.Equal(d("180")))
	assert.True(t, split.FromProfit.Equal(d("20")))
}

func TestWithdrawExactlyProfit(t *testing.T) {
	acct, _, err := Withdraw(funded("1000", "120"), d("120"), never, now)
	require.NoError(t, err)
	assert.True(t, acct.Profit.IsZero())
	assert.True(t, acct.Capital.Equal(d("1000")))
}

func TestWithdrawInsufficientFunds(t *testing.T) {
	_, _, err := Withdraw(funded("1000", "120"), d("1120.01"), always, now)
	assert.True(t, errors.Is(err, errors.ErrInsufficientFunds))
}

func TestWithdrawWithNegativeProfitDrawsCapital(t *testing.T) {
	acct, split, err := Withdraw(funded("1000", "-50"), d("100"), always, now)
	require.NoError(t, err)
	assert.True(t, split.FromProfit.IsZero())
	assert.True(t, acct.Capital.Equal(d("900")))
	assert.True(t, acct.Profit.Equal(d("-50")))
}

func TestWithdrawBoundIncludesNegativeProfit(t *testing.T) {
	_, _, err := Withdraw(funded("1000", "-100"), d("950"), always, now)
	var ferr *errors.InsufficientFundsError
	require.True(t, errors.As(err, &ferr), "got %v", err)
	assert.True(t, ferr.Available.Equal(d("900")))

	acct, split, err := Withdraw(funded("1000", "-100"), d("900"), always, now)
	require.NoError(t, err)
	assert.True(t, split.FromCapital.Equal(d("900")))
	assert.True(t, acct.Equity.IsZero())
}

func TestWithdrawDisabled(t *testing.T) {
	acct := funded("1000", "120")
	acct.WithdrawEnabled = false

	_, _, err := Withdraw(acct, d("10"), always, now)
	var perr *errors.PolicyError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, errors.RuleWithdrawDisabled, perr.Rule)
}

func TestDeposit(t *testing.T) {
	acct, err := Deposit(funded("0", "0"), d("500"), now)
	require.NoError(t, err)
	assert.True(t, acct.Capital.Equal(d("500")))
	assert.True(t, acct.Equity.Equal(d("500")))

	_, err = Deposit(acct, d("-1"), now)
	assert.True(t, errors.Is(err, errors.ErrValidation))

	acct.DepositEnabled = false
	_, err = Deposit(acct, d("1"), now)
	assert.True(t, errors.Is(err, errors.ErrPolicyViolation))
}

func TestReverseRestoresSnapshot(t *testing.T) {
	start := funded("1000", "120")

	after, split, err := Withdraw(start, d("200"), always, now)
	require.NoError(t, err)

	back, err := Reverse(after, models.Transaction{
		Kind:        models.TransactionWithdraw,
		Amount:      d("200"),
		FromProfit:  split.FromProfit,
		FromCapital: split.FromCapital,
	}, now)
	require.NoError(t, err)
	assert.True(t, back.Capital.Equal(start.Capital))
	assert.True(t, back.Profit.Equal(start.Profit))

	back, err = Reverse(back, models.Transaction{Kind: models.TransactionDeposit, Amount: d("1000")}, now)
	require.NoError(t, err)
	assert.True(t, back.Capital.IsZero())

	_, err = Reverse(back, models.Transaction{Kind: models.TransactionDeposit, Amount: d("1")}, now)
	assert.True(t, errors.Is(err, errors.ErrInsufficientFunds))
}

func TestApplyPatchSwitchingToChallenge(t *testing.T) {
	acct := funded("1000", "0")
	plan := models.PlanChallenge
	target := decimal.NewNullDecimal(d("8"))

	patched, err := ApplyPatch(acct, AccountPatch{Plan: &plan, Target: &target}, now.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, patched.WithdrawEnabled)
	assert.True(t, patched.Capital.Equal(d("1000")))

	eq, ok := TargetEquity(patched)
	require.True(t, ok)
	assert.True(t, eq.Equal(d("1080")))
}
