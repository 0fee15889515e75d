package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the calendar-date layout used for entry dates.
const DateLayout = "2006-01-02"

// TimeLayout is the wall-clock layout used for entry times.
const TimeLayout = "15:04"

// Trade represents a journal trade across its lifecycle.
type Trade struct {
	ID        string
	UserID    string
	AccountID string

	// Plan fields, set when the trade is opened.
	Symbol      string
	Direction   Direction
	EntryDate   time.Time // calendar date at midnight UTC
	EntryTime   string    // HH:MM
	EntryPrice  decimal.Decimal
	StopLoss    decimal.Decimal
	TakeProfit  decimal.Decimal
	RiskPercent decimal.Decimal
	LotSize     decimal.Decimal
	ValuePerPip decimal.Decimal
	Ratio       decimal.NullDecimal
	BeforeImage string
	Session     string
	Strategy    string

	State  TradeState
	Status TradeStatus

	// Close fields, populated on transition to Closed.
	ExitDate    *time.Time
	ExitPrice   decimal.NullDecimal
	Points      *int64
	PnLCurrency decimal.NullDecimal
	PnLPercent  decimal.NullDecimal
	AfterImage  string
	Note        string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsActive reports whether the trade is still open.
func (t Trade) IsActive() bool {
	return t.State == StateActive
}

// IsClosed reports whether the trade has been closed.
func (t Trade) IsClosed() bool {
	return t.State == StateClosed
}

// IsCancellation reports whether the trade was closed as Invalid.
func (t Trade) IsCancellation() bool {
	return t.State == StateClosed && t.Status == StatusInvalid
}

// EntryDay returns the entry date as YYYY-MM-DD.
func (t Trade) EntryDay() string {
	return t.EntryDate.Format(DateLayout)
}

// PnL returns the realized P&L, or zero for open trades.
func (t Trade) PnL() decimal.Decimal {
	if t.PnLCurrency.Valid {
		return t.PnLCurrency.Decimal
	}
	return decimal.Zero
}

// Clone returns a copy that shares no pointers with t.
func (t Trade) Clone() Trade {
	c := t
	if t.ExitDate != nil {
		d := *t.ExitDate
		c.ExitDate = &d
	}
	if t.Points != nil {
		p := *t.Points
		c.Points = &p
	}
	return c
}

// DateOnly truncates t to its calendar date at midnight UTC.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Equivalent reports whether t and o carry the same values. Decimals and
// timestamps are compared by value, so representation differences such as
// trailing zeros or time zones do not matter.
func (t Trade) Equivalent(o Trade) bool {
	return t.ID == o.ID &&
		t.UserID == o.UserID &&
		t.AccountID == o.AccountID &&
		t.Symbol == o.Symbol &&
		t.Direction == o.Direction &&
		t.EntryDate.Equal(o.EntryDate) &&
		t.EntryTime == o.EntryTime &&
		t.EntryPrice.Equal(o.EntryPrice) &&
		t.StopLoss.Equal(o.StopLoss) &&
		t.TakeProfit.Equal(o.TakeProfit) &&
		t.RiskPercent.Equal(o.RiskPercent) &&
		t.LotSize.Equal(o.LotSize) &&
		t.ValuePerPip.Equal(o.ValuePerPip) &&
		nullEqual(t.Ratio, o.Ratio) &&
		t.BeforeImage == o.BeforeImage &&
		t.Session == o.Session &&
		t.Strategy == o.Strategy &&
		t.State == o.State &&
		t.Status == o.Status &&
		timePtrEqual(t.ExitDate, o.ExitDate) &&
		nullEqual(t.ExitPrice, o.ExitPrice) &&
		int64PtrEqual(t.Points, o.Points) &&
		nullEqual(t.PnLCurrency, o.PnLCurrency) &&
		nullEqual(t.PnLPercent, o.PnLPercent) &&
		t.AfterImage == o.AfterImage &&
		t.Note == o.Note &&
		t.CreatedAt.Equal(o.CreatedAt) &&
		t.UpdatedAt.Equal(o.UpdatedAt)
}

func nullEqual(a, b decimal.NullDecimal) bool {
	if a.Valid != b.Valid {
		return false
	}
	return !a.Valid || a.Decimal.Equal(b.Decimal)
}

func timePtrEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func int64PtrEqual(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
