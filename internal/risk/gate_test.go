package risk

import (
	"fmt"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trade-journal/internal/errors"
	"trade-journal/internal/models"
)

var day = time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func trade(id string, date time.Time, risk string, state models.TradeState, status models.TradeStatus) models.Trade {
	return models.Trade{
		ID:          id,
		EntryDate:   date,
		RiskPercent: d(risk),
		State:       state,
		Status:      status,
	}
}

func rule(t *testing.T, err error) errors.PolicyRule {
	t.Helper()
	var perr *errors.PolicyError
	require.True(t, errors.As(err, &perr), "expected policy error, got %v", err)
	return perr.Rule
}

func TestGate_PerTradeRisk(t *testing.T) {
	g := NewGate(DefaultLimits())

	err := g.Admit(Candidate{EntryDate: day, RiskPercent: d("3.01")}, nil)
	assert.Equal(t, errors.RulePerTradeRisk, rule(t, err))

	assert.NoError(t, g.Admit(Candidate{EntryDate: day, RiskPercent: d("3")}, nil))
}

func TestGate_DailyRiskCountsEveryState(t *testing.T) {
	g := NewGate(DefaultLimits())
	trades := []models.Trade{
		trade("a", day, "2", models.StateClosed, models.StatusValid),
		trade("b", day, "2", models.StateClosed, models.StatusInvalid),
	}

	dec := g.Evaluate(Candidate{EntryDate: day, RiskPercent: d("1.5")}, trades)
	assert.False(t, dec.Admitted)
	assert.Equal(t, []string{"per_trade_risk"}, dec.ChecksPassed)
	assert.Equal(t, []string{"daily_risk"}, dec.ChecksFailed)
	assert.Equal(t, "Daily risk limit of 5% exceeded for 2024-06-03", dec.Err.Error())

	assert.NoError(t, g.Admit(Candidate{EntryDate: day, RiskPercent: d("1")}, trades))
}

func TestGate_OtherDaysIgnored(t *testing.T) {
	g := NewGate(DefaultLimits())
	trades := []models.Trade{
		trade("a", day.AddDate(0, 0, -1), "3", models.StateActive, models.StatusValid),
		trade("b", day.AddDate(0, 0, -1), "2", models.StateActive, models.StatusValid),
	}
	assert.NoError(t, g.Admit(Candidate{EntryDate: day, RiskPercent: d("3")}, trades))
}

func TestGate_DailyCount(t *testing.T) {
	g := NewGate(DefaultLimits())
	trades := []models.Trade{
		trade("a", day, "1", models.StateClosed, models.StatusValid),
		trade("b", day, "1", models.StateClosed, models.StatusValid),
		trade("c", day, "1", models.StateClosed, models.StatusValid),
	}
	err := g.Admit(Candidate{EntryDate: day, RiskPercent: d("1")}, trades)
	assert.Equal(t, errors.RuleDailyCount, rule(t, err))
}

func TestGate_DailyActive(t *testing.T) {
	g := NewGate(DefaultLimits())
	trades := []models.Trade{
		trade("a", day, "1", models.StateActive, models.StatusValid),
		trade("b", day, "1", models.StateActive, models.StatusValid),
	}
	err := g.Admit(Candidate{EntryDate: day, RiskPercent: d("1")}, trades)
	assert.Equal(t, errors.RuleDailyActive, rule(t, err))
}

func TestGate_EditExcludesSelf(t *testing.T) {
	g := NewGate(DefaultLimits())
	trades := []models.Trade{
		trade("a", day, "3", models.StateActive, models.StatusValid),
		trade("b", day, "2", models.StateActive, models.StatusValid),
	}

	assert.NoError(t, g.Admit(Candidate{TradeID: "a", EntryDate: day, RiskPercent: d("2.5")}, trades))

	err := g.Admit(Candidate{TradeID: "a", EntryDate: day, RiskPercent: d("3.5")}, trades)
	assert.Equal(t, errors.RulePerTradeRisk, rule(t, err))
}

func TestGate_CancellationCap(t *testing.T) {
	g := NewGate(DefaultLimits())
	trades := []models.Trade{
		trade("a", day, "1", models.StateClosed, models.StatusInvalid),
		trade("b", day, "1", models.StateActive, models.StatusValid),
	}

	err := g.AdmitCancellation(Candidate{TradeID: "b", EntryDate: day}, trades)
	assert.Equal(t, errors.RuleDailyCancel, rule(t, err))

	// re-saving the existing cancellation does not count it twice
	assert.NoError(t, g.AdmitCancellation(Candidate{TradeID: "a", EntryDate: day}, trades))
}

func TestGate_Utilization(t *testing.T) {
	g := NewGate(DefaultLimits())
	u := g.Utilization(day.Add(15*time.Hour), []models.Trade{
		trade("a", day, "1.5", models.StateActive, models.StatusValid),
		trade("b", day, "2", models.StateClosed, models.StatusInvalid),
	})
	assert.True(t, u.RiskPercent.Equal(d("3.5")))
	assert.Equal(t, 2, u.Trades)
	assert.Equal(t, 1, u.Active)
	assert.Equal(t, 1, u.Cancels)
}

// Property: admitting trades one by one through the gate never lets a day
// exceed the daily risk sum or the daily count.
func TestProperty_GateKeepsDailyCaps(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)
	limits := DefaultLimits()

	properties.Property("daily risk <= 5 and count <= 3 after any admission sequence", prop.ForAll(
		func(risks []int, days []int, closeMask []bool) bool {
			g := NewGate(limits)
			var book []models.Trade
			for i, r := range risks {
				date := day.AddDate(0, 0, days[i%len(days)]%3)
				c := Candidate{EntryDate: date, RiskPercent: decimal.New(int64(r), -1)}
				if g.Admit(c, book) != nil {
					continue
				}
				tr := trade(fmt.Sprintf("t%d", i), date, c.RiskPercent.String(), models.StateActive, models.StatusValid)
				if closeMask[i%len(closeMask)] {
					tr.State = models.StateClosed
				}
				book = append(book, tr)
			}
			for offset := 0; offset < 3; offset++ {
				u := g.Utilization(day.AddDate(0, 0, offset), book)
				if u.RiskPercent.GreaterThan(limits.MaxDailyRisk) || u.Trades > limits.MaxDailyTrades {
					return false
				}
			}
			return true
		},
		gen.SliceOfN(12, gen.IntRange(1, 40)),
		gen.SliceOfN(4, gen.IntRange(0, 2)),
		gen.SliceOfN(3, gen.Bool()),
	))

	properties.TestingRun(t)
}
