package engine

import (
	"context"
	"time"

	"trade-journal/internal/errors"
	"trade-journal/internal/identity"
	"trade-journal/internal/market"
	"trade-journal/internal/models"
	"trade-journal/internal/risk"
	"trade-journal/internal/sizing"
)

// Trade returns one trade of the account.
func (e *Engine) Trade(ctx context.Context, who identity.Identity, tradeID string) (models.Trade, error) {
	b, err := e.book(ctx, who)
	if err != nil {
		return models.Trade{}, err
	}
	t, ok := b.Get(tradeID)
	if !ok {
		return models.Trade{}, errors.NewNotFoundError("trade", tradeID)
	}
	return t, nil
}

// Trades lists the account's trades matching q.
func (e *Engine) Trades(ctx context.Context, who identity.Identity, q Query) ([]models.Trade, error) {
	b, err := e.book(ctx, who)
	if err != nil {
		return nil, err
	}
	return b.List(q), nil
}

// Preview is the sizing of a plan and what the gate would decide for it.
type Preview struct {
	Sizing sizing.Result
	Gate   risk.Decision
}

// Preview sizes a possibly incomplete plan against the account without
// writing anything. Only the symbol is required; the gate decision is
// filled when the plan carries an entry date and risk.
func (e *Engine) Preview(ctx context.Context, who identity.Identity, plan Plan) (Preview, error) {
	b, err := e.book(ctx, who)
	if err != nil {
		return Preview{}, err
	}
	inst, ok := market.Lookup(plan.Symbol)
	if !ok {
		return Preview{}, errors.NewValidationError("pair", plan.Symbol, "unknown instrument")
	}
	if d, ok := models.ParseDirection(string(plan.Direction)); ok {
		plan.Direction = d
	}
	out := Preview{Sizing: sizing.Calculate(sizingInput(plan, inst, b.account))}
	if !plan.EntryDate.IsZero() && plan.RiskPercent.Valid {
		cand := risk.Candidate{EntryDate: plan.EntryDate, RiskPercent: plan.RiskPercent.Decimal}
		out.Gate = e.gate.Evaluate(cand, b.Trades())
	}
	return out, nil
}

// Utilization reports the account's usage of the daily limits on date.
func (e *Engine) Utilization(ctx context.Context, who identity.Identity, date time.Time) (risk.Usage, error) {
	b, err := e.book(ctx, who)
	if err != nil {
		return risk.Usage{}, err
	}
	return e.gate.Utilization(date, b.Trades()), nil
}
