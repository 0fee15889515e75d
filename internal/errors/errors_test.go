package errors

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestPolicyErrorMessage(t *testing.T) {
	date := time.Date(2024, 4, 12, 0, 0, 0, 0, time.UTC)
	err := NewPolicyError(RuleDailyRisk, date, decimal.NewFromFloat(5.5), decimal.NewFromInt(5))

	assert.Equal(t, "Daily risk limit of 5% exceeded for 2024-04-12", err.Error())
	assert.True(t, Is(err, ErrPolicyViolation))
	assert.Equal(t, KindPolicy, KindOf(fmt.Errorf("open trade: %w", err)))
}

func TestPersistenceErrorHidesTransportDetail(t *testing.T) {
	cause := fmt.Errorf("dial tcp 10.0.0.1:5432: connection refused")
	err := NewPersistenceError("save account", cause)

	assert.Equal(t, "persistence failure: save account", err.Error())
	assert.NotContains(t, err.Error(), "10.0.0.1")
	assert.True(t, Is(err, ErrPersistence))
	assert.Same(t, cause, err.Unwrap())
}

func TestPersistenceErrorKeepsContextCause(t *testing.T) {
	err := NewPersistenceError("upsert trade", context.DeadlineExceeded)

	assert.True(t, Is(err, context.DeadlineExceeded))
	assert.Equal(t, KindPersistence, KindOf(err))
}

func TestKindOf(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, ""},
		{"validation", NewValidationError("entry_price", "", "required"), KindValidation},
		{"funds", NewInsufficientFundsError(decimal.NewFromInt(10), decimal.NewFromInt(5)), KindInsufficientFunds},
		{"not found", Wrap(NewNotFoundError("trade", "t1"), "close"), KindNotFound},
		{"conflict", NewConflictError("trade", "t1", "already closed"), KindConflict},
		{"plain", fmt.Errorf("boom"), KindInternal},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}
