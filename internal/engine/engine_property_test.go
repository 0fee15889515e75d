package engine

import (
	"context"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"

	"trade-journal/internal/audit"
	"trade-journal/internal/identity"
	"trade-journal/internal/ledger"
	"trade-journal/internal/models"
	"trade-journal/internal/risk"
	"trade-journal/internal/store"
)

// step is one random command: open on a day, or close the n-th trade.
type step struct {
	Open   bool
	Day    int
	Risk   int64 // tenths of a percent
	Target int
	Exit   int64 // points from entry
	Cancel bool
}

func genStep() gopter.Gen {
	return gopter.CombineGens(
		gen.Bool(),
		gen.IntRange(3, 5),
		gen.Int64Range(5, 35),
		gen.IntRange(0, 9),
		gen.Int64Range(-400, 400),
		gen.Bool(),
	).Map(func(v []interface{}) step {
		return step{
			Open:   v[0].(bool),
			Day:    v[1].(int),
			Risk:   v[2].(int64),
			Target: v[3].(int),
			Exit:   v[4].(int64),
			Cancel: v[5].(bool),
		}
	})
}

func replay(steps []step) (models.Journal, bool) {
	ctx := context.Background()
	clk := &stepClock{t: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)}
	e := New(store.NewMemoryStore(), Options{Audit: audit.Nop{}, Clock: clk.Now})
	acct, err := e.CreateAccount(ctx, "u1", ledger.AccountParams{Name: "Prop", DepositEnabled: true})
	if err != nil {
		return models.Journal{}, false
	}
	who := identity.Identity{UserID: "u1", AccountID: acct.ID}
	if _, err := e.Deposit(ctx, who, Movement{Amount: decimal.NewFromInt(25000)}); err != nil {
		return models.Journal{}, false
	}

	for _, s := range steps {
		if s.Open {
			p := eurPlan(s.Day, "1")
			p.RiskPercent = decimal.NewNullDecimal(decimal.New(s.Risk, -1))
			_, _ = e.Open(ctx, who, p)
			continue
		}
		trades, _ := e.Trades(ctx, who, Query{Ascending: true})
		if len(trades) == 0 {
			continue
		}
		t := trades[s.Target%len(trades)]
		req := CloseRequest{
			ExitDate:  t.EntryDate.Add(12 * time.Hour),
			ExitPrice: decimal.NewNullDecimal(t.EntryPrice.Add(decimal.New(s.Exit, -5))),
		}
		if s.Cancel {
			req.Status = models.StatusInvalid
		}
		_, _ = e.Close(ctx, who, t.ID, req)
	}

	j, err := e.Snapshot(ctx, who)
	return j, err == nil
}

// Property: whatever commands run, the daily caps and the lifecycle field
// rules hold for every stored trade, and profit equals the sum of P&L.
func TestProperty_EngineInvariants(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)
	limits := risk.DefaultLimits()

	properties.Property("caps, lifecycle fields and profit hold", prop.ForAll(
		func(steps []step) bool {
			j, ok := replay(steps)
			if !ok {
				return false
			}
			dayRisk := map[string]decimal.Decimal{}
			count := map[string]int{}
			active := map[string]int{}
			cancels := map[string]int{}
			profit := decimal.Zero

			for _, tr := range j.Trades {
				day := tr.EntryDay()
				dayRisk[day] = dayRisk[day].Add(tr.RiskPercent)
				count[day]++
				switch tr.State {
				case models.StateClosed:
					if tr.ExitDate == nil || !tr.ExitPrice.Valid || !tr.PnLCurrency.Valid || !tr.PnLPercent.Valid {
						return false
					}
					if tr.Points == nil || decimalSign(*tr.Points) != tr.PnL().Sign() {
						return false
					}
					if tr.IsCancellation() {
						cancels[day]++
					}
					profit = profit.Add(tr.PnL())
				case models.StateActive:
					if tr.ExitDate != nil || tr.ExitPrice.Valid || tr.PnLCurrency.Valid {
						return false
					}
					active[day]++
				default:
					return false
				}
			}
			for day := range count {
				if dayRisk[day].GreaterThan(limits.MaxDailyRisk) ||
					count[day] > limits.MaxDailyTrades ||
					active[day] > limits.MaxDailyActive ||
					cancels[day] > limits.MaxDailyCancels {
					return false
				}
			}
			return j.Account.Profit.Equal(profit) &&
				j.Account.Equity.Equal(j.Account.Capital.Add(profit))
		},
		gen.SliceOf(genStep()),
	))

	properties.TestingRun(t)
}

func decimalSign(n int64) int {
	switch {
	case n > 0:
		return 1
	case n < 0:
		return -1
	}
	return 0
}
