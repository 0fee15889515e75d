// Package risk implements the daily admission gate for journal trades.
package risk

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"trade-journal/internal/errors"
	"trade-journal/internal/models"
)

// Limits holds the per-trade and per-day caps.
type Limits struct {
	MaxTradeRisk    decimal.Decimal
	MaxDailyRisk    decimal.Decimal
	MaxDailyTrades  int
	MaxDailyActive  int
	MaxDailyCancels int
}

// DefaultLimits returns the standard discipline caps.
func DefaultLimits() Limits {
	return Limits{
		MaxTradeRisk:    decimal.NewFromInt(3),
		MaxDailyRisk:    decimal.NewFromInt(5),
		MaxDailyTrades:  3,
		MaxDailyActive:  2,
		MaxDailyCancels: 1,
	}
}

// Candidate describes a trade asking for admission. TradeID is set when an
// existing trade is re-validated so it is not counted against itself.
type Candidate struct {
	TradeID     string
	EntryDate   time.Time
	RiskPercent decimal.Decimal
}

// Usage summarizes one trading day.
type Usage struct {
	Date        time.Time
	RiskPercent decimal.Decimal
	Trades      int
	Active      int
	Cancels     int
}

// Decision contains the result of an admission check.
type Decision struct {
	Admitted     bool
	ChecksPassed []string
	ChecksFailed []string
	Err          error
}

// Gate is a read-only admission controller.
type Gate struct {
	limits Limits
}

// NewGate creates a new gate with the given limits.
func NewGate(limits Limits) *Gate {
	return &Gate{limits: limits}
}

// Limits returns the configured limits.
func (g *Gate) Limits() Limits {
	return g.limits
}

// Evaluate runs the open-trade checks in order and stops at the first
// failure: per-trade risk, daily risk, daily count, daily active count.
func (g *Gate) Evaluate(c Candidate, trades []models.Trade) Decision {
	d := Decision{Admitted: true}
	u := g.usage(c.EntryDate, c.TradeID, trades)
	date := models.DateOnly(c.EntryDate)

	if c.RiskPercent.GreaterThan(g.limits.MaxTradeRisk) {
		return d.fail("per_trade_risk", errors.NewPolicyError(errors.RulePerTradeRisk, date, c.RiskPercent, g.limits.MaxTradeRisk))
	}
	d.ChecksPassed = append(d.ChecksPassed, "per_trade_risk")

	if total := u.RiskPercent.Add(c.RiskPercent); total.GreaterThan(g.limits.MaxDailyRisk) {
		return d.fail("daily_risk", errors.NewPolicyError(errors.RuleDailyRisk, date, total, g.limits.MaxDailyRisk))
	}
	d.ChecksPassed = append(d.ChecksPassed, "daily_risk")

	if n := u.Trades + 1; n > g.limits.MaxDailyTrades {
		return d.fail("daily_count", errors.NewPolicyError(errors.RuleDailyCount, date, decimal.NewFromInt(int64(n)), decimal.NewFromInt(int64(g.limits.MaxDailyTrades))))
	}
	d.ChecksPassed = append(d.ChecksPassed, "daily_count")

	if n := u.Active + 1; n > g.limits.MaxDailyActive {
		return d.fail("daily_active", errors.NewPolicyError(errors.RuleDailyActive, date, decimal.NewFromInt(int64(n)), decimal.NewFromInt(int64(g.limits.MaxDailyActive))))
	}
	d.ChecksPassed = append(d.ChecksPassed, "daily_active")

	return d
}

// Admit returns nil when the candidate passes every open-trade check.
func (g *Gate) Admit(c Candidate, trades []models.Trade) error {
	return g.Evaluate(c, trades).Err
}

// AdmitCancellation checks the daily cancellation cap for a trade that is
// about to be closed as Invalid.
func (g *Gate) AdmitCancellation(c Candidate, trades []models.Trade) error {
	u := g.usage(c.EntryDate, c.TradeID, trades)
	if n := u.Cancels + 1; n > g.limits.MaxDailyCancels {
		return errors.NewPolicyError(errors.RuleDailyCancel, models.DateOnly(c.EntryDate),
			decimal.NewFromInt(int64(n)), decimal.NewFromInt(int64(g.limits.MaxDailyCancels)))
	}
	return nil
}

// Utilization reports how much of the day's allowance is used.
func (g *Gate) Utilization(date time.Time, trades []models.Trade) Usage {
	return g.usage(date, "", trades)
}

func (g *Gate) usage(date time.Time, exclude string, trades []models.Trade) Usage {
	day := models.DateOnly(date).Format(models.DateLayout)
	u := Usage{Date: models.DateOnly(date), RiskPercent: decimal.Zero}
	for _, t := range trades {
		if t.ID == exclude && exclude != "" {
			continue
		}
		if t.EntryDay() != day {
			continue
		}
		u.Trades++
		u.RiskPercent = u.RiskPercent.Add(t.RiskPercent)
		if t.IsActive() {
			u.Active++
		}
		if t.IsCancellation() {
			u.Cancels++
		}
	}
	return u
}

func (d Decision) fail(check string, err error) Decision {
	d.Admitted = false
	d.ChecksFailed = append(d.ChecksFailed, check)
	d.Err = err
	return d
}

// String renders the usage for log lines.
func (u Usage) String() string {
	return fmt.Sprintf("risk %s%% trades %d active %d cancels %d", u.RiskPercent, u.Trades, u.Active, u.Cancels)
}
