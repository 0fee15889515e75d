// Package errors provides the journal's error taxonomy.
package errors

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Standard sentinel errors. Every typed error below matches exactly one of
// these with errors.Is.
var (
	ErrValidation        = errors.New("validation failed")
	ErrPolicyViolation   = errors.New("policy violation")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrNotFound          = errors.New("not found")
	ErrConflictingEdit   = errors.New("conflicting edit")
	ErrPersistence       = errors.New("persistence failure")
	ErrConfigInvalid     = errors.New("invalid configuration")
	ErrUnauthorized      = errors.New("unauthorized")
)

// ValidationError represents a missing or malformed input.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ValidationError) Error() string {
	if e.Value == nil || e.Value == "" {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("invalid %s (%v): %s", e.Field, e.Value, e.Message)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// PolicyRule names the rule a PolicyError violated.
type PolicyRule string

const (
	RulePerTradeRisk         PolicyRule = "PerTradeRiskExceeded"
	RuleDailyRisk            PolicyRule = "DailyRiskExceeded"
	RuleDailyCount           PolicyRule = "DailyCountExceeded"
	RuleDailyActive          PolicyRule = "DailyActiveExceeded"
	RuleDailyCancel          PolicyRule = "DailyCancelExceeded"
	RuleWithdrawDisabled     PolicyRule = "WithdrawDisabled"
	RuleDepositDisabled      PolicyRule = "DepositDisabled"
	RuleWithdrawNotConfirmed PolicyRule = "WithdrawNotConfirmed"
)

// PolicyError represents a rejected command. Date is zero for rules that
// are not tied to a trading day.
type PolicyError struct {
	Rule    PolicyRule
	Date    time.Time
	Current decimal.Decimal
	Limit   decimal.Decimal
	Message string
}

func (e *PolicyError) Error() string {
	return e.Message
}

func (e *PolicyError) Is(target error) bool {
	return target == ErrPolicyViolation
}

// NewPolicyError creates a PolicyError with a user-renderable message.
func NewPolicyError(rule PolicyRule, date time.Time, current, limit decimal.Decimal) *PolicyError {
	return &PolicyError{
		Rule:    rule,
		Date:    date,
		Current: current,
		Limit:   limit,
		Message: policyMessage(rule, date, current, limit),
	}
}

func policyMessage(rule PolicyRule, date time.Time, current, limit decimal.Decimal) string {
	day := date.Format("2006-01-02")
	switch rule {
	case RulePerTradeRisk:
		return fmt.Sprintf("Per-trade risk limit of %s%% exceeded (requested %s%%)", limit, current)
	case RuleDailyRisk:
		return fmt.Sprintf("Daily risk limit of %s%% exceeded for %s", limit, day)
	case RuleDailyCount:
		return fmt.Sprintf("Daily trade limit of %s exceeded for %s", limit, day)
	case RuleDailyActive:
		return fmt.Sprintf("Daily active trade limit of %s exceeded for %s", limit, day)
	case RuleDailyCancel:
		return fmt.Sprintf("Daily cancellation limit of %s exceeded for %s", limit, day)
	case RuleWithdrawDisabled:
		return "Withdrawals are disabled for this account"
	case RuleDepositDisabled:
		return "Deposits are disabled for this account"
	case RuleWithdrawNotConfirmed:
		return fmt.Sprintf("Withdrawal of %s exceeds available profit of %s and was not confirmed", current, limit)
	}
	return fmt.Sprintf("policy violation [%s]", rule)
}

// InsufficientFundsError represents a withdrawal larger than profit plus capital.
type InsufficientFundsError struct {
	Requested decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: requested %s, available %s", e.Requested, e.Available)
}

func (e *InsufficientFundsError) Is(target error) bool {
	return target == ErrInsufficientFunds
}

// NewInsufficientFundsError creates a new InsufficientFundsError.
func NewInsufficientFundsError(requested, available decimal.Decimal) *InsufficientFundsError {
	return &InsufficientFundsError{Requested: requested, Available: available}
}

// NotFoundError represents a missing account, trade or transaction.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// NewNotFoundError creates a new NotFoundError.
func NewNotFoundError(kind, id string) *NotFoundError {
	return &NotFoundError{Kind: kind, ID: id}
}

// ConflictError represents an edit against a stale revision or a
// transition the current state does not allow.
type ConflictError struct {
	Kind   string
	ID     string
	Reason string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflicting edit on %s %s: %s", e.Kind, e.ID, e.Reason)
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrConflictingEdit
}

// NewConflictError creates a new ConflictError.
func NewConflictError(kind, id, reason string) *ConflictError {
	return &ConflictError{Kind: kind, ID: id, Reason: reason}
}

// PersistenceError represents a storage failure. The message names only the
// operation; the transport error stays reachable through Unwrap for logging.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure: %s", e.Op)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

func (e *PersistenceError) Is(target error) bool {
	return target == ErrPersistence
}

// NewPersistenceError creates a new PersistenceError.
func NewPersistenceError(op string, err error) *PersistenceError {
	return &PersistenceError{Op: op, Err: err}
}

// Kind classifies an error for outer layers.
type Kind string

const (
	KindValidation        Kind = "validation"
	KindPolicy            Kind = "policy_violation"
	KindInsufficientFunds Kind = "insufficient_funds"
	KindNotFound          Kind = "not_found"
	KindConflict          Kind = "conflicting_edit"
	KindPersistence       Kind = "persistence_failure"
	KindUnauthorized      Kind = "unauthorized"
	KindInternal          Kind = "internal"
)

// KindOf returns the taxonomy kind of err.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrPolicyViolation):
		return KindPolicy
	case errors.Is(err, ErrInsufficientFunds):
		return KindInsufficientFunds
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrConflictingEdit):
		return KindConflict
	case errors.Is(err, ErrPersistence):
		return KindPersistence
	case errors.Is(err, ErrUnauthorized):
		return KindUnauthorized
	}
	return KindInternal
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// New returns an error that formats as the given text.
func New(text string) error {
	return errors.New(text)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// Unwrap returns the result of calling the Unwrap method on err.
func Unwrap(err error) error {
	return errors.Unwrap(err)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
