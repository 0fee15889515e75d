package sizing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trade-journal/internal/market"
	"trade-journal/internal/models"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func nd(s string) decimal.NullDecimal { return decimal.NewNullDecimal(d(s)) }

func lookup(t *testing.T, symbol string) market.Instrument {
	t.Helper()
	inst, ok := market.Lookup(symbol)
	require.True(t, ok, symbol)
	return inst
}

func TestCalculate_EURUSDStandardRoundsToZero(t *testing.T) {
	res := Calculate(Input{
		Instrument:  lookup(t, "EUR/USD"),
		Tier:        models.TierStandard,
		Direction:   models.DirectionLong,
		Entry:       nd("1.10000"),
		Stop:        nd("1.09500"),
		TakeProfit:  nd("1.11000"),
		RiskPercent: nd("2"),
		Capital:     d("1000"),
	})

	assert.Equal(t, int64(500), res.StopPoints)
	assert.Equal(t, int64(1000), res.TPPoints)
	assert.True(t, res.AdjustedValuePerPip.Equal(d("10")))
	assert.True(t, res.LotSize.Equal(d("0.00")), "lot=%s", res.LotSize)
	assert.True(t, res.EstimatedRisk.IsZero())
	assert.True(t, res.EstimatedProfit.IsZero())
	require.True(t, res.Ratio.Valid)
	assert.True(t, res.Ratio.Decimal.Equal(d("2")))
}

func TestCalculate_XAUUSDMini(t *testing.T) {
	res := Calculate(Input{
		Instrument:  lookup(t, "XAU/USD"),
		Tier:        models.TierMini,
		Direction:   models.DirectionLong,
		Entry:       nd("2000.00"),
		Stop:        nd("1995.00"),
		TakeProfit:  nd("2010.00"),
		RiskPercent: nd("2"),
		Capital:     d("10000"),
	})

	assert.Equal(t, int64(500), res.StopPoints)
	assert.True(t, res.AdjustedValuePerPip.Equal(d("1")))
	assert.True(t, res.LotSize.Equal(d("0.40")), "lot=%s", res.LotSize)
	assert.True(t, res.EstimatedRisk.Equal(d("200")), "risk=%s", res.EstimatedRisk)
	assert.True(t, res.EstimatedProfit.Equal(d("400")))
	assert.True(t, res.EstimatedRiskPercent.Equal(d("2")))
	assert.True(t, res.EstimatedProfitPercent.Equal(d("4")))
}

func TestCalculate_ZeroStopDistance(t *testing.T) {
	res := Calculate(Input{
		Instrument:  lookup(t, "EUR/USD"),
		Tier:        models.TierStandard,
		Entry:       nd("1.1"),
		Stop:        nd("1.1"),
		TakeProfit:  nd("1.2"),
		RiskPercent: nd("1"),
		Capital:     d("100000"),
	})

	assert.True(t, res.LotSize.IsZero())
	assert.False(t, res.Ratio.Valid)
	assert.True(t, res.EstimatedRisk.IsZero())
	assert.True(t, res.EstimatedProfit.IsZero())
}

func TestCalculate_MissingInputs(t *testing.T) {
	t.Parallel()

	base := Input{
		Instrument:  lookup(t, "GBP/USD"),
		Tier:        models.TierStandard,
		Entry:       nd("1.25"),
		Stop:        nd("1.24"),
		TakeProfit:  nd("1.27"),
		RiskPercent: nd("1"),
		Capital:     d("100000"),
	}
	require.True(t, Calculate(base).LotSize.IsPositive())

	tests := []struct {
		name   string
		mutate func(in *Input)
	}{
		{"no entry", func(in *Input) { in.Entry = decimal.NullDecimal{} }},
		{"no stop", func(in *Input) { in.Stop = decimal.NullDecimal{} }},
		{"no take profit", func(in *Input) { in.TakeProfit = decimal.NullDecimal{} }},
		{"no risk", func(in *Input) { in.RiskPercent = decimal.NullDecimal{} }},
		{"zero capital", func(in *Input) { in.Capital = decimal.Zero }},
		{"unknown instrument", func(in *Input) { in.Instrument = market.Instrument{} }},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			in := base
			tt.mutate(&in)
			res := Calculate(in)
			assert.True(t, res.LotSize.IsZero())
			assert.True(t, res.EstimatedRisk.IsZero())
			assert.True(t, res.EstimatedProfit.IsZero())
		})
	}
}

func TestAdjustedValuePerPip(t *testing.T) {
	assert.True(t, AdjustedValuePerPip(d("6.8"), models.TierStandard).Equal(d("6.8")))
	assert.True(t, AdjustedValuePerPip(d("6.8"), models.TierMini).Equal(d("0.68")))
	assert.True(t, AdjustedValuePerPip(d("6.8"), models.TierMicro).Equal(d("0.068")))
}

func TestPointsSignedByDirection(t *testing.T) {
	assert.Equal(t, int64(500), Points(models.DirectionLong, d("1.10000"), d("1.10500"), 100000))
	assert.Equal(t, int64(-500), Points(models.DirectionShort, d("1.10000"), d("1.10500"), 100000))
	assert.Equal(t, int64(250), Points(models.DirectionShort, d("150.500"), d("150.250"), 1000))
	// half away from zero
	assert.Equal(t, int64(3), Points(models.DirectionLong, d("1.000000"), d("1.000025"), 100000))
}

func TestPnLAndPercent(t *testing.T) {
	pnl := PnL(500, d("0.10"), d("10"))
	assert.True(t, pnl.Equal(d("500")))
	assert.True(t, Percent(pnl, d("10000")).Equal(d("5")))
	assert.True(t, Percent(pnl, decimal.Zero).IsZero())
}
