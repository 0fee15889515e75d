package analytics

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trade-journal/internal/models"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func account(capital string) models.Account {
	return models.Account{
		ID:       "a1",
		UserID:   "u1",
		Name:     "Main",
		Plan:     models.PlanNormal,
		Tier:     models.TierStandard,
		Currency: "USD",
		Capital:  d(capital),
		Profit:   decimal.Zero,
		Equity:   d(capital),
	}
}

func closedTrade(id, symbol string, entry time.Time, at string, exit time.Time, risk, pnl string) models.Trade {
	e := exit
	return models.Trade{
		ID:          id,
		Symbol:      symbol,
		Direction:   models.DirectionLong,
		EntryDate:   models.DateOnly(entry),
		EntryTime:   at,
		RiskPercent: d(risk),
		State:       models.StateClosed,
		Status:      models.StatusValid,
		ExitDate:    &e,
		ExitPrice:   decimal.NewNullDecimal(d("1")),
		PnLCurrency: decimal.NewNullDecimal(d(pnl)),
		PnLPercent:  decimal.NewNullDecimal(decimal.Zero),
	}
}

func activeTrade(id string, entry time.Time, risk string) models.Trade {
	return models.Trade{
		ID:          id,
		Symbol:      "EUR/USD",
		EntryDate:   models.DateOnly(entry),
		RiskPercent: d(risk),
		State:       models.StateActive,
		Status:      models.StatusValid,
	}
}

func TestClassify(t *testing.T) {
	capital := d("1000") // 1% risk = 10
	at := time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		pnl  string
		want Outcome
	}{
		{"-0.01", Loss},
		{"0", Breakeven},
		{"10", Breakeven},
		{"10.01", Win},
	}
	for _, c := range cases {
		tr := closedTrade("t", "EUR/USD", at, "", at, "1", c.pnl)
		assert.Equal(t, c.want, Classify(tr, capital), c.pnl)
	}
	assert.Equal(t, Outcome(""), Classify(activeTrade("a", at, "1"), capital))
}

func TestWeek_ISO(t *testing.T) {
	w := Week(2024, 23, time.UTC)
	assert.Equal(t, "2024-W23", w.Label)
	assert.Equal(t, time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC), w.Start)
	assert.Equal(t, time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC), w.End)

	// 2021-01-03 is a Sunday that still belongs to 2020-W53
	p := WeekOf(time.Date(2021, 1, 3, 12, 0, 0, 0, time.UTC), time.UTC)
	assert.Equal(t, "2020-W53", p.Label)
	assert.Equal(t, time.Date(2020, 12, 28, 0, 0, 0, 0, time.UTC), p.Start)

	// week 1 of 2026 starts in December 2025
	assert.Equal(t, time.Date(2025, 12, 29, 0, 0, 0, 0, time.UTC), Week(2026, 1, time.UTC).Start)
}

// Sunday 23:59:59 is the last instant of week W; Monday 00:00 starts W+1.
func TestReview_WeekBoundaries(t *testing.T) {
	acct := account("1000")
	entry := time.Date(2024, 6, 7, 0, 0, 0, 0, time.UTC)
	late := closedTrade("late", "EUR/USD", entry, "10:00", time.Date(2024, 6, 9, 23, 59, 59, 0, time.UTC), "1", "30")
	next := closedTrade("next", "EUR/USD", entry, "11:00", time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC), "1", "50")
	trades := []models.Trade{late, next}

	w := BuildReview(acct, trades, Week(2024, 23, time.UTC))
	require.Equal(t, 1, w.Trades)
	assert.Equal(t, "late", w.Curve[1].TradeID)
	assert.True(t, w.TotalPnL.Equal(d("30")))

	w1 := BuildReview(acct, trades, Week(2024, 24, time.UTC))
	require.Equal(t, 1, w1.Trades)
	assert.Equal(t, "next", w1.Curve[1].TradeID)
	assert.True(t, w1.StartEquity.Equal(d("1030")), "week start carries earlier P&L")
}

func TestReview_TimeZone(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skip("tzdata unavailable")
	}
	acct := account("1000")
	// Monday 02:00 UTC is still Sunday evening in New York
	exit := time.Date(2024, 6, 10, 2, 0, 0, 0, time.UTC)
	tr := closedTrade("t", "EUR/USD", time.Date(2024, 6, 7, 0, 0, 0, 0, time.UTC), "", exit, "1", "20")

	assert.Equal(t, 1, BuildReview(acct, []models.Trade{tr}, WeekOf(time.Date(2024, 6, 5, 12, 0, 0, 0, ny), ny)).Trades)
	assert.Equal(t, 0, BuildReview(acct, []models.Trade{tr}, Week(2024, 24, ny)).Trades)

	r := BuildReview(acct, []models.Trade{tr}, Week(2024, 23, ny))
	require.Len(t, r.Daily, 1)
	assert.Equal(t, "2024-06-09", r.Daily[0].Date)
}

func TestReview_Figures(t *testing.T) {
	acct := account("10000") // 1% risk = 100
	mon := time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)
	tue := mon.AddDate(0, 0, 1)
	before := closedTrade("old", "EUR/USD", mon.AddDate(0, 0, -7), "09:00", mon.AddDate(0, 0, -6), "1", "250")
	trades := []models.Trade{
		before,
		closedTrade("t3", "USD/JPY", tue, "09:00", tue.Add(5*time.Hour), "1", "-80"),
		closedTrade("t1", "EUR/USD", mon, "10:00", mon.Add(12*time.Hour), "1", "300"),
		closedTrade("t2", "GBP/USD", mon, "14:00", mon.Add(15*time.Hour), "1", "40"),
		closedTrade("t4", "GBP/USD", tue, "11:00", tue.Add(6*time.Hour), "1", "60"),
		activeTrade("open", tue, "1"),
	}

	r := BuildReview(acct, trades, Week(2024, 23, time.UTC))
	assert.True(t, r.StartEquity.Equal(d("10250")))
	assert.True(t, r.TotalPnL.Equal(d("320")))
	assert.True(t, r.EndEquity.Equal(d("10570")))
	assert.True(t, r.Percent.Equal(d("3.2")))
	assert.Equal(t, 4, r.Trades)
	assert.Equal(t, 1, r.Wins)
	assert.Equal(t, 1, r.Losses)
	assert.Equal(t, 2, r.Breakevens)

	// curve follows entry date then entry time
	var ids []string
	for _, p := range r.Curve[1:] {
		ids = append(ids, p.TradeID)
	}
	assert.Equal(t, []string{"t1", "t2", "t3", "t4"}, ids)
	assert.Equal(t, "Start", r.Curve[0].Label)
	assert.True(t, r.Curve[len(r.Curve)-1].Equity.Equal(r.EndEquity))

	assert.Equal(t, "GBP/USD", r.MostTraded)
	assert.Equal(t, "EUR/USD", r.MostProfitable)
	assert.Equal(t, "USD/JPY", r.MostLosing)
	assert.Equal(t, "GBP/USD", r.MostBreakeven)

	require.Len(t, r.Daily, 2)
	assert.Equal(t, "2024-06-03", r.Daily[0].Date)
	assert.Equal(t, 2, r.Daily[0].Trades)
	assert.True(t, r.Daily[0].PnL.Equal(d("340")))
	assert.True(t, r.Daily[0].Percent.Equal(d("3.4")))
	assert.True(t, r.Daily[1].PnL.Equal(d("-20")))

	assert.True(t, r.Target.Equal(d("11275")))
	assert.True(t, r.Drawdown.Equal(d("9225")))
}

func TestReview_MostTradedTieGoesToFirstSeen(t *testing.T) {
	acct := account("1000")
	mon := time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)
	trades := []models.Trade{
		closedTrade("a", "USD/CAD", mon, "09:00", mon.Add(time.Hour), "1", "5"),
		closedTrade("b", "AUD/USD", mon, "10:00", mon.Add(2*time.Hour), "1", "5"),
	}
	r := BuildReview(acct, trades, Week(2024, 23, time.UTC))
	assert.Equal(t, "USD/CAD", r.MostTraded)
	assert.Equal(t, "USD/CAD", r.MostProfitable)
	assert.Equal(t, "USD/CAD", r.MostBreakeven)
	assert.Empty(t, r.MostLosing)
}

func TestReferenceLines(t *testing.T) {
	target, dd := referenceLines(d("1000"), d("1050"), d("1000"))
	assert.True(t, target.Equal(d("1100")))
	assert.True(t, dd.Equal(d("900")))

	target, dd = referenceLines(d("950"), d("940"), d("1000"))
	assert.True(t, target.Equal(d("1000")))
	assert.True(t, dd.Equal(d("940")))
}

func TestReview_EmptyPeriod(t *testing.T) {
	r := BuildReview(account("500"), nil, Month(2024, time.February, time.UTC))
	assert.Equal(t, "2024-02", r.Period.Label)
	assert.Len(t, r.Curve, 1)
	assert.Empty(t, r.Daily)
	assert.True(t, r.EndEquity.Equal(d("500")))
	assert.True(t, r.Period.End.Equal(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)))
}

func TestDailyRiskUtilization(t *testing.T) {
	mon := time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)
	tue := mon.AddDate(0, 0, 1)
	trades := []models.Trade{
		activeTrade("a", tue, "1.5"),
		activeTrade("b", mon, "2"),
		activeTrade("c", mon, "0.5"),
		closedTrade("d", "EUR/USD", mon, "", mon, "2", "10"),
	}
	got := DailyRiskUtilization(trades)
	require.Len(t, got, 2)
	assert.Equal(t, "2024-06-03", got[0].Date)
	assert.True(t, got[0].Risk.Equal(d("2.5")))
	assert.Equal(t, 2, got[0].Active)
	assert.True(t, got[1].Risk.Equal(d("1.5")))
}

func TestGroupBy(t *testing.T) {
	mon := time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)
	fri := mon.AddDate(0, 0, 4)
	london := closedTrade("a", "EUR/USD", fri, "", fri, "1", "50")
	london.Session = "London"
	trades := []models.Trade{
		london,
		closedTrade("b", "XAU/USD", mon, "", mon, "1", "-20"),
		closedTrade("c", "EUR/USD", mon, "", mon, "1", "15"),
		activeTrade("d", fri, "1"),
	}

	pairs := GroupBy(trades, ByPair, d("1000"))
	require.Len(t, pairs, 2)
	assert.Equal(t, "EUR/USD", pairs[0].Key)
	assert.Equal(t, 3, pairs[0].Trades)
	assert.Equal(t, 2, pairs[0].Closed)
	assert.True(t, pairs[0].PnL.Equal(d("65")))

	sessions := GroupBy(trades, BySession, d("1000"))
	require.Len(t, sessions, 2)
	assert.Equal(t, "London", sessions[0].Key)
	assert.Equal(t, Unspecified, sessions[1].Key)

	days := GroupBy(trades, ByWeekday, d("1000"))
	require.Len(t, days, 2)
	assert.Equal(t, "Monday", days[0].Key)
	assert.Equal(t, "Friday", days[1].Key)

	outcomes := GroupBy(trades, ByOutcome, d("1000"))
	assert.Len(t, outcomes, 2)
}

func TestSummarize(t *testing.T) {
	acct := account("1000")
	at := time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)
	cancelled := closedTrade("x", "EUR/USD", at, "", at, "1", "0")
	cancelled.Status = models.StatusInvalid
	trades := []models.Trade{
		closedTrade("a", "EUR/USD", at, "", at, "1", "30"),
		closedTrade("b", "EUR/USD", at, "", at, "1", "50"),
		closedTrade("c", "EUR/USD", at, "", at, "1", "-40"),
		cancelled,
		activeTrade("d", at, "1"),
	}
	s := Summarize(acct, trades)
	assert.Equal(t, 5, s.Trades)
	assert.Equal(t, 1, s.Open)
	assert.Equal(t, 4, s.Closed)
	assert.Equal(t, 1, s.Cancelled)
	assert.Equal(t, 2, s.Wins)
	assert.Equal(t, 1, s.Losses)
	assert.Equal(t, 1, s.Breakevens)
	assert.True(t, s.WinRate.Equal(d("50")))
	assert.True(t, s.NetPnL.Equal(d("40")))
	assert.True(t, s.GrossProfit.Equal(d("80")))
	assert.True(t, s.GrossLoss.Equal(d("40")))
	require.True(t, s.ProfitFactor.Valid)
	assert.True(t, s.ProfitFactor.Decimal.Equal(d("2")))
	assert.True(t, s.AverageWin.Equal(d("40")))
	assert.True(t, s.AverageLoss.Equal(d("-40")))
	assert.True(t, s.LargestWin.Equal(d("50")))
	assert.True(t, s.LargestLoss.Equal(d("-40")))
	assert.Nil(t, s.Challenge)

	noLoss := Summarize(acct, trades[:2])
	assert.False(t, noLoss.ProfitFactor.Valid)
}

func TestSummarize_ChallengeProgress(t *testing.T) {
	acct := account("5000")
	acct.Plan = models.PlanChallenge
	acct.Target = decimal.NewNullDecimal(d("8"))
	acct.Profit = d("200")
	acct.Equity = d("5200")

	s := Summarize(acct, nil)
	require.NotNil(t, s.Challenge)
	assert.True(t, s.Challenge.TargetEquity.Equal(d("5400")))
	assert.True(t, s.Challenge.Percent.Equal(d("50")))
	assert.False(t, s.Challenge.Reached)
}

// Property: the review's end equity is its start equity plus the P&L of
// its curve, and weeks tile time without overlap.
func TestProperty_ReviewConsistency(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	properties.Property("end = start + Σ curve P&L", prop.ForAll(
		func(offsets []int64, pnls []int64) bool {
			var trades []models.Trade
			for i, off := range offsets {
				if i >= len(pnls) {
					break
				}
				exit := base.Add(time.Duration(off) * time.Minute)
				tr := closedTrade(string(rune('a'+i%26))+exit.Format("150405"), "EUR/USD", exit, "", exit, "1", decimal.New(pnls[i], -2).String())
				trades = append(trades, tr)
			}
			w := WeekOf(base.AddDate(0, 0, 14), time.UTC)
			r := BuildReview(account("1000"), trades, w)
			sum := decimal.Zero
			for _, p := range r.Curve[1:] {
				sum = sum.Add(p.PnL)
			}
			return r.EndEquity.Equal(r.StartEquity.Add(sum)) && len(r.Curve) == r.Trades+1
		},
		gen.SliceOf(gen.Int64Range(0, 60*24*60)),
		gen.SliceOf(gen.Int64Range(-50000, 50000)),
	))

	properties.Property("every instant is in exactly one week", prop.ForAll(
		func(minutes int64) bool {
			at := base.Add(time.Duration(minutes) * time.Minute)
			w := WeekOf(at, time.UTC)
			prev := WeekOf(w.Start.Add(-time.Nanosecond), time.UTC)
			return w.Contains(at) && !prev.Contains(at) && prev.End.Equal(w.Start) &&
				w.Start.Weekday() == time.Monday
		},
		gen.Int64Range(0, 3*365*24*60),
	))

	properties.TestingRun(t)
}

func TestParseWeekAndMonth(t *testing.T) {
	w, err := ParseWeek("2024-W23", time.UTC)
	require.NoError(t, err)
	assert.Equal(t, "2024-W23", w.Label)
	assert.Equal(t, time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC), w.Start)

	w, err = ParseWeek("2024-06-09", time.UTC)
	require.NoError(t, err)
	assert.Equal(t, "2024-W23", w.Label)

	_, err = ParseWeek("2023-W53", time.UTC)
	assert.Error(t, err)
	_, err = ParseWeek("2020-W53", time.UTC)
	assert.NoError(t, err)
	_, err = ParseWeek("june", time.UTC)
	assert.Error(t, err)

	m, err := ParseMonth("2024-06", time.UTC)
	require.NoError(t, err)
	assert.Equal(t, "2024-06", m.Label)
	m, err = ParseMonth("2024-02-29", time.UTC)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), m.End)
	_, err = ParseMonth("2024/06", time.UTC)
	assert.Error(t, err)
}
