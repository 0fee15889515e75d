package store

import (
	"encoding/json"
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

func TestTradeRow_AcceptsCamelCase(t *testing.T) {
	raw := `{
		"id": "t1",
		"userId": "u1",
		"accountId": "a1",
		"pair": "GBP/USD",
		"type": "Sell",
		"entryDate": "2024-06-03T00:00:00.000Z",
		"tradeTime": "10:05",
		"entryPrice": 1.2711,
		"sl": "1.2741",
		"tp": 1.2651,
		"risk": 1,
		"lotSize": 0.03,
		"valuePerPip": 10,
		"state": "Closed",
		"status": "Invalid",
		"beforeImage": "https://example.com/b.png",
		"exitDate": "2024-06-03T15:00:00Z",
		"exitPrice": 1.2700,
		"points": 110,
		"pnlCurrency": -33,
		"pnlPercent": "-0.33"
	}`
	var row TradeRow
	require.NoError(t, json.Unmarshal([]byte(raw), &row))

	tr, err := TradeFromRow(row)
	require.NoError(t, err)
	assert.Equal(t, "u1", tr.UserID)
	assert.Equal(t, "a1", tr.AccountID)
	assert.Equal(t, models.DirectionShort, tr.Direction)
	assert.Equal(t, "2024-06-03", tr.EntryDay())
	assert.Equal(t, "10:05", tr.EntryTime)
	assert.True(t, tr.StopLoss.Equal(dec("1.2741")))
	assert.Equal(t, models.StatusInvalid, tr.Status)
	assert.Equal(t, "https://example.com/b.png", tr.BeforeImage)
	require.NotNil(t, tr.Points)
	assert.Equal(t, int64(110), *tr.Points)
	assert.True(t, tr.PnLCurrency.Decimal.Equal(dec("-33")))
	assert.True(t, tr.PnLPercent.Decimal.Equal(dec("-0.33")))
	require.NotNil(t, tr.ExitDate)
	assert.Equal(t, 15, tr.ExitDate.Hour())
}

func TestTradeRow_SnakeCaseWins(t *testing.T) {
	var row TradeRow
	require.NoError(t, json.Unmarshal([]byte(`{"id":"t1","note":"snake","lot_size":"0.2","lotSize":"0.9"}`), &row))
	assert.True(t, row.LotSize.Equal(dec("0.2")))
	assert.Equal(t, "snake", row.Note)
}

func TestTradeFromRow_RequiresID(t *testing.T) {
	_, err := TradeFromRow(TradeRow{Type: "long", State: "Active", EntryDate: "2024-06-03"})
	assert.True(t, errors.Is(err, errors.ErrValidation))
}

func TestAccountRow_Defaults(t *testing.T) {
	var row AccountRow
	require.NoError(t, json.Unmarshal([]byte(`{"id":"a1","accountName":"Prop","accountPlan":"Target","accountType":"Mini","capital":5000,"target":"8"}`), &row))

	a, err := AccountFromRow(row)
	require.NoError(t, err)
	assert.Equal(t, "Prop", a.Name)
	assert.Equal(t, models.PlanChallenge, a.Plan)
	assert.Equal(t, models.TierMini, a.Tier)
	assert.True(t, a.DepositEnabled)
	assert.True(t, a.Capital.Equal(dec("5000")))
	assert.True(t, a.Target.Decimal.Equal(dec("8")))
}

func TestTransactionRow_LegacyKind(t *testing.T) {
	var row TransactionRow
	require.NoError(t, json.Unmarshal([]byte(`{"id":"x1","accountId":"a1","type":"Withdrawal","amount":"50","date":"2024-06-01"}`), &row))
	tx, err := TransactionFromRow(row)
	require.NoError(t, err)
	assert.Equal(t, models.TransactionWithdraw, tx.Kind)
	assert.True(t, tx.FromProfit.IsZero())
}

func TestParseWireTimeIn(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	got, err := ParseWireTimeIn("2024-06-10", ny)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 6, 10, 4, 0, 0, 0, time.UTC), got)

	got, err = ParseWireTimeIn("2024-06-10T09:30:00Z", ny)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 6, 10, 9, 30, 0, 0, time.UTC), got, "explicit zone wins")

	got, err = ParseWireTime("2024-06-10")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC), got)
}

func TestNormalizeKey(t *testing.T) {
	cases := map[string]string{
		"entryPrice":        "entry_price",
		"entry_price":       "entry_price",
		"beforeImage":       "beforeimage",
		"afterimage":        "afterimage",
		"valuePerPip":       "value_per_pip",
		"pnlCurrency":       "pnl_currency",
		"withdrawalEnabled": "withdrawal_enabled",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeKey(in), in)
	}
}

func genTrade() gopter.Gen {
	return gopter.CombineGens(
		gen.Identifier(),
		gen.OneConstOf("EUR/USD", "USD/JPY", "XAU/USD"),
		gen.Bool(),
		gen.IntRange(1, 28),
		gen.Int64Range(100000, 200000),
		gen.Int64Range(1, 500),
		gen.IntRange(1, 300),
		gen.Bool(),
		gen.Int64Range(-5000, 5000),
		gen.AlphaString(),
	).Map(func(v []interface{}) models.Trade {
		entry := decimal.New(v[4].(int64), -5)
		dist := decimal.New(v[5].(int64), -5)
		t := models.Trade{
			ID:          v[0].(string),
			UserID:      "u1",
			AccountID:   "a1",
			Symbol:      v[1].(string),
			Direction:   models.DirectionLong,
			EntryDate:   time.Date(2024, 2, v[3].(int), 0, 0, 0, 0, time.UTC),
			EntryTime:   "09:30",
			EntryPrice:  entry,
			StopLoss:    entry.Sub(dist),
			TakeProfit:  entry.Add(dist.Mul(decimal.NewFromInt(2))),
			RiskPercent: decimal.New(int64(v[6].(int)), -2),
			LotSize:     decimal.New(12, -2),
			ValuePerPip: decimal.NewFromInt(10),
			Ratio:       decimal.NewNullDecimal(decimal.NewFromInt(2)),
			Strategy:    v[9].(string),
			State:       models.StateActive,
			Status:      models.StatusValid,
			CreatedAt:   baseTime,
			UpdatedAt:   baseTime,
		}
		if !v[2].(bool) {
			t.Direction = models.DirectionShort
		}
		if v[7].(bool) {
			exit := baseTime.Add(90 * time.Minute)
			points := v[8].(int64)
			t.State = models.StateClosed
			t.ExitDate = &exit
			t.ExitPrice = decimal.NewNullDecimal(entry.Add(decimal.New(points, -5)))
			t.Points = &points
			t.PnLCurrency = decimal.NewNullDecimal(decimal.New(points*12, -1))
			t.PnLPercent = decimal.NewNullDecimal(decimal.New(points, -3))
			t.UpdatedAt = exit
		}
		return t
	})
}

// Property: encoding a trade to its wire row and decoding it again yields
// an equivalent trade.
func TestProperty_TradeWireRoundTrip(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("parse(serialize(T)) = T", prop.ForAll(
		func(tr models.Trade) bool {
			buf, err := json.Marshal(TradeToRow(tr))
			if err != nil {
				return false
			}
			var row TradeRow
			if err := json.Unmarshal(buf, &row); err != nil {
				return false
			}
			got, err := TradeFromRow(row)
			if err != nil {
				return false
			}
			return tr.Equivalent(got)
		},
		genTrade(),
	))

	properties.TestingRun(t)
}
