package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trade-journal/internal/errors"
	"trade-journal/internal/models"
)

var baseTime = time.Date(2024, 6, 3, 9, 30, 0, 0, time.UTC)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func sampleAccount(id string) models.Account {
	return models.Account{
		ID:              id,
		UserID:          "u1",
		Name:            "Main",
		Plan:            models.PlanNormal,
		Tier:            models.TierStandard,
		Currency:        "USD",
		Capital:         dec("1000"),
		Profit:          dec("120.5"),
		Equity:          dec("1120.5"),
		DepositEnabled:  true,
		WithdrawEnabled: true,
		CreatedAt:       baseTime,
		UpdatedAt:       baseTime,
	}
}

func sampleTrade(id, accountID string, day int, at string) models.Trade {
	return models.Trade{
		ID:          id,
		UserID:      "u1",
		AccountID:   accountID,
		Symbol:      "EUR/USD",
		Direction:   models.DirectionLong,
		EntryDate:   time.Date(2024, 6, day, 0, 0, 0, 0, time.UTC),
		EntryTime:   at,
		EntryPrice:  dec("1.10000"),
		StopLoss:    dec("1.09500"),
		TakeProfit:  dec("1.11000"),
		RiskPercent: dec("1.5"),
		LotSize:     dec("0.10"),
		ValuePerPip: dec("10"),
		Ratio:       decimal.NewNullDecimal(dec("2")),
		Session:     "London",
		State:       models.StateActive,
		Status:      models.StatusValid,
		CreatedAt:   baseTime,
		UpdatedAt:   baseTime,
	}
}

func closed(t models.Trade) models.Trade {
	exit := baseTime.Add(6 * time.Hour)
	points := int64(500)
	t.State = models.StateClosed
	t.ExitDate = &exit
	t.ExitPrice = decimal.NewNullDecimal(dec("1.10500"))
	t.Points = &points
	t.PnLCurrency = decimal.NewNullDecimal(dec("500"))
	t.PnLPercent = decimal.NewNullDecimal(dec("50"))
	t.Note = "hit target"
	t.UpdatedAt = exit
	return t
}

type portFactory func(t *testing.T) Port

func adapters(t *testing.T) map[string]portFactory {
	out := map[string]portFactory{
		"memory": func(t *testing.T) Port { return NewMemoryStore() },
		"sqlite": func(t *testing.T) Port {
			s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "journal.db"))
			require.NoError(t, err)
			return s
		},
	}
	if dsn := os.Getenv("JOURNAL_TEST_PG_DSN"); dsn != "" {
		out["postgres"] = func(t *testing.T) Port {
			s, err := NewPostgresStore(context.Background(), dsn)
			require.NoError(t, err)
			ctx := context.Background()
			_, err = s.pool.Exec(ctx, "TRUNCATE trades, transactions, accounts")
			require.NoError(t, err)
			return s
		}
	}
	return out
}

func TestPort_AccountRoundTrip(t *testing.T) {
	for name, open := range adapters(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := open(t)
			defer s.Close()

			acct := sampleAccount("a1")
			acct.Plan = models.PlanChallenge
			acct.WithdrawEnabled = false
			acct.Target = decimal.NewNullDecimal(dec("10"))
			require.NoError(t, s.SaveAccount(ctx, acct))

			got, err := s.LoadAccount(ctx, "a1")
			require.NoError(t, err)
			assert.Equal(t, acct.Name, got.Name)
			assert.Equal(t, models.PlanChallenge, got.Plan)
			assert.True(t, got.Capital.Equal(acct.Capital))
			assert.True(t, got.Profit.Equal(acct.Profit))
			assert.True(t, got.Target.Valid)
			assert.True(t, got.Target.Decimal.Equal(dec("10")))
			assert.False(t, got.WithdrawEnabled)
			assert.True(t, got.CreatedAt.Equal(acct.CreatedAt))

			_, err = s.LoadAccount(ctx, "missing")
			assert.True(t, errors.Is(err, errors.ErrNotFound))
		})
	}
}

func TestPort_ListAccountsByOwner(t *testing.T) {
	for name, open := range adapters(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := open(t)
			defer s.Close()

			a1 := sampleAccount("a1")
			a2 := sampleAccount("a2")
			a2.CreatedAt = baseTime.Add(time.Hour)
			a3 := sampleAccount("a3")
			a3.UserID = "u2"
			for _, a := range []models.Account{a2, a1, a3} {
				require.NoError(t, s.SaveAccount(ctx, a))
			}

			mine, err := s.ListAccounts(ctx, "u1")
			require.NoError(t, err)
			require.Len(t, mine, 2)
			assert.Equal(t, "a1", mine[0].ID)
			assert.Equal(t, "a2", mine[1].ID)

			all, err := s.ListAccounts(ctx, "")
			require.NoError(t, err)
			assert.Len(t, all, 3)
		})
	}
}

func TestPort_TradesOrderedByEntry(t *testing.T) {
	for name, open := range adapters(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := open(t)
			defer s.Close()
			require.NoError(t, s.SaveAccount(ctx, sampleAccount("a1")))

			require.NoError(t, s.UpsertTrade(ctx, sampleTrade("t3", "a1", 5, "08:00")))
			require.NoError(t, s.UpsertTrade(ctx, sampleTrade("t2", "a1", 3, "14:00")))
			require.NoError(t, s.UpsertTrade(ctx, sampleTrade("t1", "a1", 3, "09:15")))

			trades, err := s.LoadTrades(ctx, "a1")
			require.NoError(t, err)
			require.Len(t, trades, 3)
			assert.Equal(t, []string{"t1", "t2", "t3"}, []string{trades[0].ID, trades[1].ID, trades[2].ID})
		})
	}
}

func TestPort_ClosedTradeRoundTrip(t *testing.T) {
	for name, open := range adapters(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := open(t)
			defer s.Close()
			require.NoError(t, s.SaveAccount(ctx, sampleAccount("a1")))

			tr := closed(sampleTrade("t1", "a1", 3, "09:15"))
			require.NoError(t, s.UpsertTrade(ctx, tr))

			trades, err := s.LoadTrades(ctx, "a1")
			require.NoError(t, err)
			require.Len(t, trades, 1)
			assert.True(t, tr.Equivalent(trades[0]), "stored %+v", trades[0])
		})
	}
}

func TestPort_UpsertIdempotentAndStale(t *testing.T) {
	for name, open := range adapters(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := open(t)
			defer s.Close()
			require.NoError(t, s.SaveAccount(ctx, sampleAccount("a1")))

			tr := sampleTrade("t1", "a1", 3, "09:15")
			require.NoError(t, s.UpsertTrade(ctx, tr))
			require.NoError(t, s.UpsertTrade(ctx, tr))

			trades, err := s.LoadTrades(ctx, "a1")
			require.NoError(t, err)
			require.Len(t, trades, 1)

			newer := closed(tr)
			require.NoError(t, s.UpsertTrade(ctx, newer))

			err = s.UpsertTrade(ctx, tr)
			assert.True(t, errors.Is(err, errors.ErrConflictingEdit))
		})
	}
}

func TestPort_UpsertRefusesForeignAccount(t *testing.T) {
	for name, open := range adapters(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := open(t)
			defer s.Close()
			require.NoError(t, s.SaveAccount(ctx, sampleAccount("a1")))
			require.NoError(t, s.SaveAccount(ctx, sampleAccount("a2")))

			require.NoError(t, s.UpsertTrade(ctx, sampleTrade("t1", "a1", 3, "09:15")))
			moved := sampleTrade("t1", "a2", 3, "09:15")
			moved.UpdatedAt = baseTime.Add(time.Hour)

			err := s.UpsertTrade(ctx, moved)
			assert.True(t, errors.Is(err, errors.ErrConflictingEdit))

			trades, err := s.LoadTrades(ctx, "a1")
			require.NoError(t, err)
			assert.Len(t, trades, 1)
		})
	}
}

func TestPort_DeleteAccountCascades(t *testing.T) {
	for name, open := range adapters(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := open(t)
			defer s.Close()
			require.NoError(t, s.SaveAccount(ctx, sampleAccount("a1")))
			require.NoError(t, s.SaveAccount(ctx, sampleAccount("a2")))
			require.NoError(t, s.UpsertTrade(ctx, sampleTrade("t1", "a1", 3, "09:15")))
			require.NoError(t, s.UpsertTrade(ctx, sampleTrade("t2", "a2", 3, "09:15")))
			require.NoError(t, s.InsertTransaction(ctx, models.Transaction{
				ID: "x1", AccountID: "a1", UserID: "u1", Kind: models.TransactionDeposit,
				Amount: dec("100"), Date: baseTime, CreatedAt: baseTime,
			}))

			require.NoError(t, s.DeleteAccount(ctx, "a1"))

			trades, err := s.LoadTrades(ctx, "a1")
			require.NoError(t, err)
			assert.Empty(t, trades)
			txs, err := s.ListTransactions(ctx, "a1")
			require.NoError(t, err)
			assert.Empty(t, txs)

			other, err := s.LoadTrades(ctx, "a2")
			require.NoError(t, err)
			assert.Len(t, other, 1)

			assert.True(t, errors.Is(s.DeleteAccount(ctx, "a1"), errors.ErrNotFound))
		})
	}
}

func TestPort_Transactions(t *testing.T) {
	for name, open := range adapters(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := open(t)
			defer s.Close()
			require.NoError(t, s.SaveAccount(ctx, sampleAccount("a1")))

			w := models.Transaction{
				ID: "x2", AccountID: "a1", UserID: "u1", Kind: models.TransactionWithdraw,
				Amount: dec("200"), Date: baseTime.Add(24 * time.Hour), Description: "payout",
				FromProfit: dec("20"), FromCapital: dec("180"), CreatedAt: baseTime,
			}
			d := models.Transaction{
				ID: "x1", AccountID: "a1", UserID: "u1", Kind: models.TransactionDeposit,
				Amount: dec("1000"), Date: baseTime, CreatedAt: baseTime,
			}
			require.NoError(t, s.InsertTransaction(ctx, w))
			require.NoError(t, s.InsertTransaction(ctx, d))

			txs, err := s.ListTransactions(ctx, "a1")
			require.NoError(t, err)
			require.Len(t, txs, 2)
			assert.Equal(t, "x1", txs[0].ID)
			assert.Equal(t, models.TransactionWithdraw, txs[1].Kind)
			assert.True(t, txs[1].FromCapital.Equal(dec("180")))
			assert.Equal(t, "payout", txs[1].Description)

			err = s.InsertTransaction(ctx, d)
			assert.True(t, errors.Is(err, errors.ErrConflictingEdit), "got %v", err)

			require.NoError(t, s.DeleteTransaction(ctx, "x1"))
			assert.True(t, errors.Is(s.DeleteTransaction(ctx, "x1"), errors.ErrNotFound))
		})
	}
}

func TestPort_AtomicallyRollsBack(t *testing.T) {
	for name, open := range adapters(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := open(t)
			defer s.Close()
			require.NoError(t, s.SaveAccount(ctx, sampleAccount("a1")))

			err := s.Atomically(ctx, func(tx Tx) error {
				if err := tx.UpsertTrade(ctx, sampleTrade("t1", "a1", 3, "09:15")); err != nil {
					return err
				}
				acct := sampleAccount("a1")
				acct.Profit = dec("999")
				if err := tx.SaveAccount(ctx, acct); err != nil {
					return err
				}
				return tx.DeleteTrade(ctx, "missing")
			})
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.ErrNotFound))

			trades, err := s.LoadTrades(ctx, "a1")
			require.NoError(t, err)
			assert.Empty(t, trades)
			acct, err := s.LoadAccount(ctx, "a1")
			require.NoError(t, err)
			assert.True(t, acct.Profit.Equal(dec("120.5")))
		})
	}
}

func TestPort_CancelledContext(t *testing.T) {
	s := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.SaveAccount(ctx, sampleAccount("a1"))
	assert.True(t, errors.Is(err, errors.ErrPersistence))
	assert.Equal(t, "persistence failure: begin", err.Error())

	_, err = s.LoadAccount(context.Background(), "a1")
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestOpen_Drivers(t *testing.T) {
	ctx := context.Background()

	p, err := Open(ctx, Options{Driver: DriverMemory})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, p)

	p, err = Open(ctx, Options{Driver: "sqlite3", Path: filepath.Join(t.TempDir(), "j.db")})
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, p)
	p.Close()

	_, err = Open(ctx, Options{Driver: "postgres"})
	assert.True(t, errors.Is(err, errors.ErrValidation))

	_, err = Open(ctx, Options{Driver: "mongo"})
	assert.Error(t, err)
}
