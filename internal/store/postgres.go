package store

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"trade-journal/internal/errors"
	"trade-journal/internal/models"
)

// PostgresStore implements Port on a pgx connection pool. NUMERIC columns
// are written and read as text so decimals stay exact.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to dsn and creates the schema if needed.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	if dsn == "" {
		return nil, errors.NewValidationError("postgres_dsn", "", "is required for the postgres driver")
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres dsn: %w", err)
	}
	cfg.MaxConns = 10
	cfg.MaxConnLifetime = time.Hour

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	store := &PostgresStore{pool: pool}
	if err := store.initSchema(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *PostgresStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS accounts (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		account_name TEXT NOT NULL,
		account_plan TEXT NOT NULL,
		account_type TEXT NOT NULL,
		currency TEXT NOT NULL,
		capital NUMERIC NOT NULL DEFAULT 0,
		profit NUMERIC NOT NULL DEFAULT 0,
		equity NUMERIC NOT NULL DEFAULT 0,
		deposit_enabled BOOLEAN NOT NULL DEFAULT TRUE,
		withdrawal_enabled BOOLEAN NOT NULL DEFAULT TRUE,
		target NUMERIC,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_accounts_user ON accounts(user_id);

	CREATE TABLE IF NOT EXISTS trades (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		account_id TEXT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
		pair TEXT NOT NULL,
		type TEXT NOT NULL,
		entry_date DATE NOT NULL,
		trade_time TEXT NOT NULL DEFAULT '',
		entry_price NUMERIC NOT NULL,
		sl NUMERIC NOT NULL,
		tp NUMERIC NOT NULL,
		risk NUMERIC NOT NULL,
		lot_size NUMERIC NOT NULL,
		value_per_pip NUMERIC NOT NULL,
		state TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'Valid',
		ratio NUMERIC,
		beforeimage TEXT NOT NULL DEFAULT '',
		afterimage TEXT NOT NULL DEFAULT '',
		exit_date TIMESTAMPTZ,
		exit_price NUMERIC,
		points BIGINT,
		pnl_currency NUMERIC,
		pnl_percent NUMERIC,
		session TEXT NOT NULL DEFAULT '',
		strategy TEXT NOT NULL DEFAULT '',
		note TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_trades_account_entry ON trades(account_id, entry_date, trade_time);

	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		account_id TEXT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
		user_id TEXT NOT NULL,
		type TEXT NOT NULL,
		amount NUMERIC NOT NULL,
		date TIMESTAMPTZ NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		from_profit NUMERIC NOT NULL DEFAULT 0,
		from_capital NUMERIC NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_transactions_account ON transactions(account_id, date);
	`
	_, err := s.pool.Exec(ctx, schema)
	return err
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// Atomically runs fn inside a serializable transaction.
func (s *PostgresStore) Atomically(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return errors.NewPersistenceError("begin transaction", err)
	}
	if err := fn(&pgTx{q: tx}); err != nil {
		tx.Rollback(ctx)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return errors.NewPersistenceError("commit transaction", err)
	}
	return nil
}

func (s *PostgresStore) reader() *pgTx {
	return &pgTx{q: s.pool}
}

func (s *PostgresStore) LoadAccount(ctx context.Context, accountID string) (models.Account, error) {
	return s.reader().LoadAccount(ctx, accountID)
}

func (s *PostgresStore) ListAccounts(ctx context.Context, userID string) ([]models.Account, error) {
	return s.reader().ListAccounts(ctx, userID)
}

func (s *PostgresStore) LoadTrades(ctx context.Context, accountID string) ([]models.Trade, error) {
	return s.reader().LoadTrades(ctx, accountID)
}

func (s *PostgresStore) ListTransactions(ctx context.Context, accountID string) ([]models.Transaction, error) {
	return s.reader().ListTransactions(ctx, accountID)
}

func (s *PostgresStore) SaveAccount(ctx context.Context, account models.Account) error {
	return s.Atomically(ctx, func(tx Tx) error { return tx.SaveAccount(ctx, account) })
}

func (s *PostgresStore) DeleteAccount(ctx context.Context, accountID string) error {
	return s.Atomically(ctx, func(tx Tx) error { return tx.DeleteAccount(ctx, accountID) })
}

func (s *PostgresStore) UpsertTrade(ctx context.Context, trade models.Trade) error {
	return s.Atomically(ctx, func(tx Tx) error { return tx.UpsertTrade(ctx, trade) })
}

func (s *PostgresStore) DeleteTrade(ctx context.Context, tradeID string) error {
	return s.Atomically(ctx, func(tx Tx) error { return tx.DeleteTrade(ctx, tradeID) })
}

func (s *PostgresStore) InsertTransaction(ctx context.Context, t models.Transaction) error {
	return s.Atomically(ctx, func(tx Tx) error { return tx.InsertTransaction(ctx, t) })
}

func (s *PostgresStore) DeleteTransaction(ctx context.Context, txID string) error {
	return s.Atomically(ctx, func(tx Tx) error { return tx.DeleteTransaction(ctx, txID) })
}

// pgQuerier is satisfied by both *pgxpool.Pool and pgx.Tx.
type pgQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type pgTx struct {
	q pgQuerier
}

const pgAccountSelect = `SELECT id, user_id, account_name, account_plan, account_type, currency,
	capital::text, profit::text, equity::text, deposit_enabled, withdrawal_enabled, target::text,
	created_at, updated_at FROM accounts`

const pgTradeSelect = `SELECT id, user_id, account_id, pair, type, entry_date, trade_time,
	entry_price::text, sl::text, tp::text, risk::text, lot_size::text, value_per_pip::text,
	state, status, ratio::text, beforeimage, afterimage, exit_date, exit_price::text, points,
	pnl_currency::text, pnl_percent::text, session, strategy, note, created_at, updated_at FROM trades`

const pgTransactionSelect = `SELECT id, account_id, user_id, type, amount::text, date, description,
	from_profit::text, from_capital::text, created_at FROM transactions`

func (t *pgTx) LoadAccount(ctx context.Context, accountID string) (models.Account, error) {
	a, err := scanPgAccount(t.q.QueryRow(ctx, pgAccountSelect+" WHERE id = $1", accountID))
	if stderrors.Is(err, pgx.ErrNoRows) {
		return models.Account{}, errors.NewNotFoundError("account", accountID)
	}
	if err != nil {
		return models.Account{}, errors.NewPersistenceError("load account", err)
	}
	return a, nil
}

func (t *pgTx) ListAccounts(ctx context.Context, userID string) ([]models.Account, error) {
	query := pgAccountSelect + " WHERE 1=1"
	args := []any{}
	if userID != "" {
		query += " AND user_id = $1"
		args = append(args, userID)
	}
	query += " ORDER BY created_at ASC, id ASC"

	rows, err := t.q.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.NewPersistenceError("list accounts", err)
	}
	defer rows.Close()

	var accounts []models.Account
	for rows.Next() {
		a, err := scanPgAccount(rows)
		if err != nil {
			return nil, errors.NewPersistenceError("scan account", err)
		}
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewPersistenceError("list accounts", err)
	}
	return accounts, nil
}

func (t *pgTx) LoadTrades(ctx context.Context, accountID string) ([]models.Trade, error) {
	rows, err := t.q.Query(ctx, pgTradeSelect+`
		WHERE account_id = $1
		ORDER BY entry_date ASC, trade_time ASC, created_at ASC, id ASC`, accountID)
	if err != nil {
		return nil, errors.NewPersistenceError("load trades", err)
	}
	defer rows.Close()

	var trades []models.Trade
	for rows.Next() {
		tr, err := scanPgTrade(rows)
		if err != nil {
			return nil, errors.NewPersistenceError("scan trade", err)
		}
		trades = append(trades, tr)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewPersistenceError("load trades", err)
	}
	return trades, nil
}

func (t *pgTx) ListTransactions(ctx context.Context, accountID string) ([]models.Transaction, error) {
	rows, err := t.q.Query(ctx, pgTransactionSelect+`
		WHERE account_id = $1
		ORDER BY date ASC, created_at ASC, id ASC`, accountID)
	if err != nil {
		return nil, errors.NewPersistenceError("list transactions", err)
	}
	defer rows.Close()

	var txs []models.Transaction
	for rows.Next() {
		var (
			tx                                    models.Transaction
			kind, amount, fromProfit, fromCapital string
		)
		if err := rows.Scan(&tx.ID, &tx.AccountID, &tx.UserID, &kind, &amount, &tx.Date, &tx.Description,
			&fromProfit, &fromCapital, &tx.CreatedAt); err != nil {
			return nil, errors.NewPersistenceError("scan transaction", err)
		}
		tx.Kind = models.TransactionKind(kind)
		tx.Amount = parseDecimal(amount)
		tx.FromProfit = parseDecimal(fromProfit)
		tx.FromCapital = parseDecimal(fromCapital)
		tx.Date = tx.Date.UTC()
		tx.CreatedAt = tx.CreatedAt.UTC()
		txs = append(txs, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewPersistenceError("list transactions", err)
	}
	return txs, nil
}

func (t *pgTx) SaveAccount(ctx context.Context, a models.Account) error {
	_, err := t.q.Exec(ctx, `
		INSERT INTO accounts (id, user_id, account_name, account_plan, account_type, currency,
			capital, profit, equity, deposit_enabled, withdrawal_enabled, target, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO UPDATE SET
			user_id = EXCLUDED.user_id,
			account_name = EXCLUDED.account_name,
			account_plan = EXCLUDED.account_plan,
			account_type = EXCLUDED.account_type,
			currency = EXCLUDED.currency,
			capital = EXCLUDED.capital,
			profit = EXCLUDED.profit,
			equity = EXCLUDED.equity,
			deposit_enabled = EXCLUDED.deposit_enabled,
			withdrawal_enabled = EXCLUDED.withdrawal_enabled,
			target = EXCLUDED.target,
			updated_at = EXCLUDED.updated_at
	`, a.ID, a.UserID, a.Name, string(a.Plan), string(a.Tier), a.Currency,
		a.Capital.String(), a.Profit.String(), a.Equity.String(),
		a.DepositEnabled, a.WithdrawEnabled, nullDecimalText(a.Target), a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return errors.NewPersistenceError("save account", err)
	}
	return nil
}

func (t *pgTx) DeleteAccount(ctx context.Context, accountID string) error {
	if _, err := t.q.Exec(ctx, "DELETE FROM trades WHERE account_id = $1", accountID); err != nil {
		return errors.NewPersistenceError("delete account trades", err)
	}
	if _, err := t.q.Exec(ctx, "DELETE FROM transactions WHERE account_id = $1", accountID); err != nil {
		return errors.NewPersistenceError("delete account transactions", err)
	}
	tag, err := t.q.Exec(ctx, "DELETE FROM accounts WHERE id = $1", accountID)
	if err != nil {
		return errors.NewPersistenceError("delete account", err)
	}
	if tag.RowsAffected() == 0 {
		return errors.NewNotFoundError("account", accountID)
	}
	return nil
}

func (t *pgTx) UpsertTrade(ctx context.Context, tr models.Trade) error {
	var (
		storedAccount string
		storedAt      time.Time
	)
	err := t.q.QueryRow(ctx, "SELECT account_id, updated_at FROM trades WHERE id = $1 FOR UPDATE", tr.ID).Scan(&storedAccount, &storedAt)
	switch {
	case err == nil:
		if storedAccount != tr.AccountID {
			return errors.NewConflictError("trade", tr.ID, "id belongs to another account")
		}
		if stale(storedAt, tr.UpdatedAt) {
			return errors.NewConflictError("trade", tr.ID, "stored revision is newer")
		}
	case !stderrors.Is(err, pgx.ErrNoRows):
		return errors.NewPersistenceError("read trade revision", err)
	}

	_, err = t.q.Exec(ctx, `
		INSERT INTO trades (id, user_id, account_id, pair, type, entry_date, trade_time, entry_price, sl, tp,
			risk, lot_size, value_per_pip, state, status, ratio, beforeimage, afterimage, exit_date,
			exit_price, points, pnl_currency, pnl_percent, session, strategy, note, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19,
			$20, $21, $22, $23, $24, $25, $26, $27, $28)
		ON CONFLICT (id) DO UPDATE SET
			user_id = EXCLUDED.user_id,
			account_id = EXCLUDED.account_id,
			pair = EXCLUDED.pair,
			type = EXCLUDED.type,
			entry_date = EXCLUDED.entry_date,
			trade_time = EXCLUDED.trade_time,
			entry_price = EXCLUDED.entry_price,
			sl = EXCLUDED.sl,
			tp = EXCLUDED.tp,
			risk = EXCLUDED.risk,
			lot_size = EXCLUDED.lot_size,
			value_per_pip = EXCLUDED.value_per_pip,
			state = EXCLUDED.state,
			status = EXCLUDED.status,
			ratio = EXCLUDED.ratio,
			beforeimage = EXCLUDED.beforeimage,
			afterimage = EXCLUDED.afterimage,
			exit_date = EXCLUDED.exit_date,
			exit_price = EXCLUDED.exit_price,
			points = EXCLUDED.points,
			pnl_currency = EXCLUDED.pnl_currency,
			pnl_percent = EXCLUDED.pnl_percent,
			session = EXCLUDED.session,
			strategy = EXCLUDED.strategy,
			note = EXCLUDED.note,
			updated_at = EXCLUDED.updated_at
	`, tr.ID, tr.UserID, tr.AccountID, tr.Symbol, string(tr.Direction), tr.EntryDate, tr.EntryTime,
		tr.EntryPrice.String(), tr.StopLoss.String(), tr.TakeProfit.String(), tr.RiskPercent.String(),
		tr.LotSize.String(), tr.ValuePerPip.String(), string(tr.State), string(tr.Status),
		nullDecimalText(tr.Ratio), tr.BeforeImage, tr.AfterImage, tr.ExitDate,
		nullDecimalText(tr.ExitPrice), tr.Points, nullDecimalText(tr.PnLCurrency), nullDecimalText(tr.PnLPercent),
		tr.Session, tr.Strategy, tr.Note, tr.CreatedAt, tr.UpdatedAt)
	if err != nil {
		return errors.NewPersistenceError("upsert trade", err)
	}
	return nil
}

func (t *pgTx) DeleteTrade(ctx context.Context, tradeID string) error {
	tag, err := t.q.Exec(ctx, "DELETE FROM trades WHERE id = $1", tradeID)
	if err != nil {
		return errors.NewPersistenceError("delete trade", err)
	}
	if tag.RowsAffected() == 0 {
		return errors.NewNotFoundError("trade", tradeID)
	}
	return nil
}

func (t *pgTx) InsertTransaction(ctx context.Context, tx models.Transaction) error {
	_, err := t.q.Exec(ctx, `
		INSERT INTO transactions (id, account_id, user_id, type, amount, date, description,
			from_profit, from_capital, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, tx.ID, tx.AccountID, tx.UserID, string(tx.Kind), tx.Amount.String(), tx.Date, tx.Description,
		tx.FromProfit.String(), tx.FromCapital.String(), tx.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if stderrors.As(err, &pgErr) && pgErr.Code == "23505" {
			return errors.NewConflictError("transaction", tx.ID, "already exists")
		}
		return errors.NewPersistenceError("insert transaction", err)
	}
	return nil
}

func (t *pgTx) DeleteTransaction(ctx context.Context, txID string) error {
	tag, err := t.q.Exec(ctx, "DELETE FROM transactions WHERE id = $1", txID)
	if err != nil {
		return errors.NewPersistenceError("delete transaction", err)
	}
	if tag.RowsAffected() == 0 {
		return errors.NewNotFoundError("transaction", txID)
	}
	return nil
}

func scanPgAccount(row pgx.Row) (models.Account, error) {
	var (
		a                       models.Account
		plan, tier              string
		capital, profit, equity string
		target                  *string
	)
	err := row.Scan(&a.ID, &a.UserID, &a.Name, &plan, &tier, &a.Currency, &capital, &profit, &equity,
		&a.DepositEnabled, &a.WithdrawEnabled, &target, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return models.Account{}, err
	}
	a.Plan = models.AccountPlan(plan)
	a.Tier = models.AccountTier(tier)
	a.Capital = parseDecimal(capital)
	a.Profit = parseDecimal(profit)
	a.Equity = parseDecimal(equity)
	a.Target = parseNullDecimalText(target)
	a.CreatedAt = a.CreatedAt.UTC()
	a.UpdatedAt = a.UpdatedAt.UTC()
	return a, nil
}

func scanPgTrade(row pgx.Row) (models.Trade, error) {
	var (
		tr                           models.Trade
		direction, state, status     string
		entry, sl, tp, risk, lot, vp string
		ratio, exitPrice, pnl, pnlP  *string
		exitDate                     *time.Time
	)
	err := row.Scan(&tr.ID, &tr.UserID, &tr.AccountID, &tr.Symbol, &direction, &tr.EntryDate, &tr.EntryTime,
		&entry, &sl, &tp, &risk, &lot, &vp, &state, &status, &ratio, &tr.BeforeImage, &tr.AfterImage,
		&exitDate, &exitPrice, &tr.Points, &pnl, &pnlP, &tr.Session, &tr.Strategy, &tr.Note,
		&tr.CreatedAt, &tr.UpdatedAt)
	if err != nil {
		return models.Trade{}, err
	}
	tr.Direction = models.Direction(direction)
	tr.EntryDate = models.DateOnly(tr.EntryDate)
	tr.EntryPrice = parseDecimal(entry)
	tr.StopLoss = parseDecimal(sl)
	tr.TakeProfit = parseDecimal(tp)
	tr.RiskPercent = parseDecimal(risk)
	tr.LotSize = parseDecimal(lot)
	tr.ValuePerPip = parseDecimal(vp)
	tr.State = models.TradeState(state)
	tr.Status = models.TradeStatus(status)
	tr.Ratio = parseNullDecimalText(ratio)
	if exitDate != nil {
		ts := exitDate.UTC()
		tr.ExitDate = &ts
	}
	tr.ExitPrice = parseNullDecimalText(exitPrice)
	tr.PnLCurrency = parseNullDecimalText(pnl)
	tr.PnLPercent = parseNullDecimalText(pnlP)
	tr.CreatedAt = tr.CreatedAt.UTC()
	tr.UpdatedAt = tr.UpdatedAt.UTC()
	return tr, nil
}

func nullDecimalText(d decimal.NullDecimal) *string {
	if !d.Valid {
		return nil
	}
	s := d.Decimal.String()
	return &s
}

func parseNullDecimalText(s *string) decimal.NullDecimal {
	if s == nil {
		return decimal.NullDecimal{}
	}
	d, err := decimal.NewFromString(*s)
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(d)
}
