// Package sizing computes position size, stop and target distances, and
// realized P&L for journal trades.
package sizing

import (
	"github.com/shopspring/decimal"

	"trade-journal/internal/market"
	"trade-journal/internal/models"
)

var hundred = decimal.NewFromInt(100)

// Input holds a planned trade. Prices and risk are nullable so partially
// filled forms can be sized.
type Input struct {
	Instrument  market.Instrument
	Tier        models.AccountTier
	Direction   models.Direction
	Entry       decimal.NullDecimal
	Stop        decimal.NullDecimal
	TakeProfit  decimal.NullDecimal
	RiskPercent decimal.NullDecimal
	Capital     decimal.Decimal
}

// Result holds the derived sizing fields.
type Result struct {
	StopPoints             int64
	TPPoints               int64
	Ratio                  decimal.NullDecimal
	AdjustedValuePerPip    decimal.Decimal
	LotSize                decimal.Decimal
	EstimatedRisk          decimal.Decimal
	EstimatedProfit        decimal.Decimal
	EstimatedRiskPercent   decimal.Decimal
	EstimatedProfitPercent decimal.Decimal
}

// TierDivisor returns the value-per-pip divisor for an account tier.
func TierDivisor(tier models.AccountTier) decimal.Decimal {
	switch tier {
	case models.TierMini:
		return decimal.NewFromInt(10)
	case models.TierMicro:
		return decimal.NewFromInt(100)
	}
	return decimal.NewFromInt(1)
}

// AdjustedValuePerPip scales a standard-lot value-per-pip to the tier.
func AdjustedValuePerPip(base decimal.Decimal, tier models.AccountTier) decimal.Decimal {
	return base.Div(TierDivisor(tier))
}

// Calculate sizes a planned trade. Missing inputs or a zero stop distance
// yield a zero lot and zero estimates.
func Calculate(in Input) Result {
	vp := AdjustedValuePerPip(in.Instrument.BaseValuePerPip, in.Tier)
	res := Result{AdjustedValuePerPip: vp}

	mult := decimal.NewFromInt(in.Instrument.Multiplier)

	var stopDist, tpDist decimal.Decimal
	if in.Entry.Valid && in.Stop.Valid {
		stopDist = in.Entry.Decimal.Sub(in.Stop.Decimal).Abs()
		res.StopPoints = toPoints(stopDist.Mul(mult))
	}
	if in.Entry.Valid && in.TakeProfit.Valid {
		tpDist = in.TakeProfit.Decimal.Sub(in.Entry.Decimal).Abs()
		res.TPPoints = toPoints(tpDist.Mul(mult))
	}
	if in.TakeProfit.Valid && stopDist.IsPositive() {
		res.Ratio = decimal.NewNullDecimal(tpDist.Div(stopDist))
	}

	if !in.Entry.Valid || !in.Stop.Valid || !in.TakeProfit.Valid || !in.RiskPercent.Valid {
		return res
	}
	if !stopDist.IsPositive() || !in.RiskPercent.Decimal.IsPositive() || !in.Instrument.Sizable() {
		return res
	}

	res.LotSize = LotSize(in.RiskPercent.Decimal, in.Capital, vp, stopDist, in.Instrument.Multiplier)
	if res.LotSize.IsZero() {
		return res
	}

	res.EstimatedRisk = res.LotSize.Mul(decimal.NewFromInt(res.StopPoints)).Mul(vp)
	res.EstimatedProfit = res.LotSize.Mul(decimal.NewFromInt(res.TPPoints)).Mul(vp)
	res.EstimatedRiskPercent = Percent(res.EstimatedRisk, in.Capital)
	res.EstimatedProfitPercent = Percent(res.EstimatedProfit, in.Capital)
	return res
}

// LotSize returns round2((risk/100 * capital) / (vp * distance * multiplier)),
// or zero when the denominator or capital is not positive.
func LotSize(riskPercent, capital, vp, distance decimal.Decimal, multiplier int64) decimal.Decimal {
	denom := vp.Mul(distance).Mul(decimal.NewFromInt(multiplier))
	if !denom.IsPositive() || !capital.IsPositive() || !riskPercent.IsPositive() {
		return decimal.Zero
	}
	return RiskAmount(riskPercent, capital).Div(denom).Round(2)
}

// RiskAmount returns risk/100 * capital.
func RiskAmount(riskPercent, capital decimal.Decimal) decimal.Decimal {
	return riskPercent.Div(hundred).Mul(capital)
}

// Points returns the signed points moved from entry to exit, rounded to the
// nearest integer.
func Points(dir models.Direction, entry, exit decimal.Decimal, multiplier int64) int64 {
	diff := exit.Sub(entry)
	if dir == models.DirectionShort {
		diff = entry.Sub(exit)
	}
	return toPoints(diff.Mul(decimal.NewFromInt(multiplier)))
}

// PnL returns points * lot * vp. The product is exact; rounding is left to
// display.
func PnL(points int64, lot, vp decimal.Decimal) decimal.Decimal {
	return decimal.NewFromInt(points).Mul(lot).Mul(vp)
}

// Percent returns amount / capital * 100, or zero for non-positive capital.
func Percent(amount, capital decimal.Decimal) decimal.Decimal {
	if !capital.IsPositive() {
		return decimal.Zero
	}
	return amount.Mul(hundred).Div(capital)
}

func toPoints(d decimal.Decimal) int64 {
	return d.Round(0).IntPart()
}
