// Package models provides domain models for the trading journal.
package models

import (
	"strings"
)

// Direction represents the side of a trade.
type Direction string

const (
	DirectionLong  Direction = "Long"
	DirectionShort Direction = "Short"
)

// ParseDirection accepts long/short and buy/sell in any case.
func ParseDirection(s string) (Direction, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "long", "buy":
		return DirectionLong, true
	case "short", "sell":
		return DirectionShort, true
	}
	return "", false
}

// TradeState represents the lifecycle state of a trade.
type TradeState string

const (
	StateActive TradeState = "Active"
	StateClosed TradeState = "Closed"
)

// ParseTradeState parses a lifecycle state name.
func ParseTradeState(s string) (TradeState, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "active", "open":
		return StateActive, true
	case "closed":
		return StateClosed, true
	}
	return "", false
}

// TradeStatus represents the validity of a closed trade.
type TradeStatus string

const (
	StatusValid   TradeStatus = "Valid"
	StatusInvalid TradeStatus = "Invalid"
)

// ParseTradeStatus parses a validity status name.
func ParseTradeStatus(s string) (TradeStatus, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "valid":
		return StatusValid, true
	case "invalid", "cancelled", "canceled":
		return StatusInvalid, true
	}
	return "", false
}

// AccountPlan represents the plan an account trades under.
type AccountPlan string

const (
	PlanNormal    AccountPlan = "Normal"
	PlanChallenge AccountPlan = "Challenge"
)

// ParseAccountPlan parses a plan name. "Target" is accepted as a Challenge alias.
func ParseAccountPlan(s string) (AccountPlan, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "normal":
		return PlanNormal, true
	case "challenge", "target":
		return PlanChallenge, true
	}
	return "", false
}

// AccountTier represents the lot convention of an account.
type AccountTier string

const (
	TierStandard AccountTier = "Standard"
	TierMini     AccountTier = "Mini"
	TierMicro    AccountTier = "Micro"
)

// ParseAccountTier parses a tier name.
func ParseAccountTier(s string) (AccountTier, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "standard":
		return TierStandard, true
	case "mini":
		return TierMini, true
	case "micro":
		return TierMicro, true
	}
	return "", false
}

// TransactionKind represents a ledger entry type.
type TransactionKind string

const (
	TransactionDeposit  TransactionKind = "Deposit"
	TransactionWithdraw TransactionKind = "Withdraw"
)

// ParseTransactionKind parses a ledger entry type.
func ParseTransactionKind(s string) (TransactionKind, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "deposit":
		return TransactionDeposit, true
	case "withdraw", "withdrawal":
		return TransactionWithdraw, true
	}
	return "", false
}

// Journal is a complete snapshot of one account: the account row plus
// its trades and ledger entries.
type Journal struct {
	Account      Account
	Trades       []Trade
	Transactions []Transaction
}

// Sessions lists the recognized market session labels, overlaps last.
var Sessions = []string{
	"Sydney",
	"Tokyo",
	"London",
	"New-York",
	"Sydney-Tokyo",
	"Tokyo-London",
	"London-New-York",
}

// ParseSession matches a session label ignoring case, spaces and
// underscores ("new york" → "New-York").
func ParseSession(s string) (string, bool) {
	key := strings.NewReplacer(" ", "", "_", "", "-", "").Replace(strings.ToLower(s))
	for _, name := range Sessions {
		if strings.ToLower(strings.ReplaceAll(name, "-", "")) == key {
			return name, true
		}
	}
	return "", false
}
