package store

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"trade-journal/internal/errors"
	"trade-journal/internal/models"
)

// SQLiteStore implements Port using SQLite. Money and prices are stored as
// decimal text so they round-trip exactly.
type SQLiteStore struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLiteStore opens (or creates) the database at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS accounts (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		account_name TEXT NOT NULL,
		account_plan TEXT NOT NULL,
		account_type TEXT NOT NULL,
		currency TEXT NOT NULL,
		capital TEXT NOT NULL DEFAULT '0',
		profit TEXT NOT NULL DEFAULT '0',
		equity TEXT NOT NULL DEFAULT '0',
		deposit_enabled INTEGER NOT NULL DEFAULT 1,
		withdrawal_enabled INTEGER NOT NULL DEFAULT 1,
		target TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_accounts_user ON accounts(user_id);

	CREATE TABLE IF NOT EXISTS trades (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		account_id TEXT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
		pair TEXT NOT NULL,
		type TEXT NOT NULL,
		entry_date TEXT NOT NULL,
		trade_time TEXT NOT NULL DEFAULT '',
		entry_price TEXT NOT NULL,
		sl TEXT NOT NULL,
		tp TEXT NOT NULL,
		risk TEXT NOT NULL,
		lot_size TEXT NOT NULL,
		value_per_pip TEXT NOT NULL,
		state TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'Valid',
		ratio TEXT,
		beforeimage TEXT NOT NULL DEFAULT '',
		afterimage TEXT NOT NULL DEFAULT '',
		exit_date TEXT,
		exit_price TEXT,
		points INTEGER,
		pnl_currency TEXT,
		pnl_percent TEXT,
		session TEXT NOT NULL DEFAULT '',
		strategy TEXT NOT NULL DEFAULT '',
		note TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_trades_account_entry ON trades(account_id, entry_date, trade_time);

	CREATE TABLE IF NOT EXISTS transactions (
		id TEXT PRIMARY KEY,
		account_id TEXT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
		user_id TEXT NOT NULL,
		type TEXT NOT NULL,
		amount TEXT NOT NULL,
		date TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		from_profit TEXT NOT NULL DEFAULT '0',
		from_capital TEXT NOT NULL DEFAULT '0',
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_transactions_account ON transactions(account_id, date);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Atomically runs fn inside a database transaction.
func (s *SQLiteStore) Atomically(ctx context.Context, fn func(tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.NewPersistenceError("begin transaction", err)
	}
	if err := fn(&sqliteTx{q: sqlTx}); err != nil {
		sqlTx.Rollback()
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return errors.NewPersistenceError("commit transaction", err)
	}
	return nil
}

func (s *SQLiteStore) reader() *sqliteTx {
	return &sqliteTx{q: s.db}
}

func (s *SQLiteStore) LoadAccount(ctx context.Context, accountID string) (models.Account, error) {
	return s.reader().LoadAccount(ctx, accountID)
}

func (s *SQLiteStore) ListAccounts(ctx context.Context, userID string) ([]models.Account, error) {
	return s.reader().ListAccounts(ctx, userID)
}

func (s *SQLiteStore) LoadTrades(ctx context.Context, accountID string) ([]models.Trade, error) {
	return s.reader().LoadTrades(ctx, accountID)
}

func (s *SQLiteStore) ListTransactions(ctx context.Context, accountID string) ([]models.Transaction, error) {
	return s.reader().ListTransactions(ctx, accountID)
}

func (s *SQLiteStore) SaveAccount(ctx context.Context, account models.Account) error {
	return s.Atomically(ctx, func(tx Tx) error { return tx.SaveAccount(ctx, account) })
}

func (s *SQLiteStore) DeleteAccount(ctx context.Context, accountID string) error {
	return s.Atomically(ctx, func(tx Tx) error { return tx.DeleteAccount(ctx, accountID) })
}

func (s *SQLiteStore) UpsertTrade(ctx context.Context, trade models.Trade) error {
	return s.Atomically(ctx, func(tx Tx) error { return tx.UpsertTrade(ctx, trade) })
}

func (s *SQLiteStore) DeleteTrade(ctx context.Context, tradeID string) error {
	return s.Atomically(ctx, func(tx Tx) error { return tx.DeleteTrade(ctx, tradeID) })
}

func (s *SQLiteStore) InsertTransaction(ctx context.Context, t models.Transaction) error {
	return s.Atomically(ctx, func(tx Tx) error { return tx.InsertTransaction(ctx, t) })
}

func (s *SQLiteStore) DeleteTransaction(ctx context.Context, txID string) error {
	return s.Atomically(ctx, func(tx Tx) error { return tx.DeleteTransaction(ctx, txID) })
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// sqliteTx implements Tx over a *sql.DB or *sql.Tx.
type sqliteTx struct {
	q querier
}

const accountColumns = `id, user_id, account_name, account_plan, account_type, currency, capital, profit, equity,
	deposit_enabled, withdrawal_enabled, target, created_at, updated_at`

const tradeColumns = `id, user_id, account_id, pair, type, entry_date, trade_time, entry_price, sl, tp, risk,
	lot_size, value_per_pip, state, status, ratio, beforeimage, afterimage, exit_date, exit_price, points,
	pnl_currency, pnl_percent, session, strategy, note, created_at, updated_at`

const transactionColumns = `id, account_id, user_id, type, amount, date, description, from_profit, from_capital, created_at`

func (t *sqliteTx) LoadAccount(ctx context.Context, accountID string) (models.Account, error) {
	row := t.q.QueryRowContext(ctx, "SELECT "+accountColumns+" FROM accounts WHERE id = ?", accountID)
	a, err := scanSQLiteAccount(row)
	if stderrors.Is(err, sql.ErrNoRows) {
		return models.Account{}, errors.NewNotFoundError("account", accountID)
	}
	if err != nil {
		return models.Account{}, errors.NewPersistenceError("load account", err)
	}
	return a, nil
}

func (t *sqliteTx) ListAccounts(ctx context.Context, userID string) ([]models.Account, error) {
	query := "SELECT " + accountColumns + " FROM accounts WHERE 1=1"
	args := []interface{}{}
	if userID != "" {
		query += " AND user_id = ?"
		args = append(args, userID)
	}
	query += " ORDER BY created_at ASC, id ASC"

	rows, err := t.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.NewPersistenceError("list accounts", err)
	}
	defer rows.Close()

	var accounts []models.Account
	for rows.Next() {
		a, err := scanSQLiteAccount(rows)
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

func (t *sqliteTx) LoadTrades(ctx context.Context, accountID string) ([]models.Trade, error) {
	rows, err := t.q.QueryContext(ctx, "SELECT "+tradeColumns+` FROM trades
		WHERE account_id = ?
		ORDER BY entry_date ASC, trade_time ASC, created_at ASC, id ASC`, accountID)
	if err != nil {
		return nil, errors.NewPersistenceError("load trades", err)
	}
	defer rows.Close()

	var trades []models.Trade
	for rows.Next() {
		tr, err := scanSQLiteTrade(rows)
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

func (t *sqliteTx) ListTransactions(ctx context.Context, accountID string) ([]models.Transaction, error) {
	rows, err := t.q.QueryContext(ctx, "SELECT "+transactionColumns+` FROM transactions
		WHERE account_id = ?
		ORDER BY date ASC, created_at ASC, id ASC`, accountID)
	if err != nil {
		return nil, errors.NewPersistenceError("list transactions", err)
	}
	defer rows.Close()

	var txs []models.Transaction
	for rows.Next() {
		var (
			tx                                          models.Transaction
			kind, amount, date, fromProfit, fromCapital string
			created                                     string
		)
		if err := rows.Scan(&tx.ID, &tx.AccountID, &tx.UserID, &kind, &amount, &date, &tx.Description, &fromProfit, &fromCapital, &created); err != nil {
			return nil, errors.NewPersistenceError("scan transaction", err)
		}
		tx.Kind = models.TransactionKind(kind)
		tx.Amount = parseDecimal(amount)
		tx.Date = parseTime(date)
		tx.FromProfit = parseDecimal(fromProfit)
		tx.FromCapital = parseDecimal(fromCapital)
		tx.CreatedAt = parseTime(created)
		txs = append(txs, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewPersistenceError("list transactions", err)
	}
	return txs, nil
}

func (t *sqliteTx) SaveAccount(ctx context.Context, a models.Account) error {
	_, err := t.q.ExecContext(ctx, `
		INSERT OR REPLACE INTO accounts (`+accountColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, a.ID, a.UserID, a.Name, string(a.Plan), string(a.Tier), a.Currency,
		a.Capital.String(), a.Profit.String(), a.Equity.String(),
		boolInt(a.DepositEnabled), boolInt(a.WithdrawEnabled), nullDecimalString(a.Target),
		formatTime(a.CreatedAt), formatTime(a.UpdatedAt))
	if err != nil {
		return errors.NewPersistenceError("save account", err)
	}
	return nil
}

func (t *sqliteTx) DeleteAccount(ctx context.Context, accountID string) error {
	if _, err := t.q.ExecContext(ctx, "DELETE FROM trades WHERE account_id = ?", accountID); err != nil {
		return errors.NewPersistenceError("delete account trades", err)
	}
	if _, err := t.q.ExecContext(ctx, "DELETE FROM transactions WHERE account_id = ?", accountID); err != nil {
		return errors.NewPersistenceError("delete account transactions", err)
	}
	res, err := t.q.ExecContext(ctx, "DELETE FROM accounts WHERE id = ?", accountID)
	if err != nil {
		return errors.NewPersistenceError("delete account", err)
	}
	return requireAffected(res, "account", accountID)
}

func (t *sqliteTx) UpsertTrade(ctx context.Context, tr models.Trade) error {
	var storedAccount, storedAt string
	err := t.q.QueryRowContext(ctx, "SELECT account_id, updated_at FROM trades WHERE id = ?", tr.ID).Scan(&storedAccount, &storedAt)
	switch {
	case err == nil:
		if storedAccount != tr.AccountID {
			return errors.NewConflictError("trade", tr.ID, "id belongs to another account")
		}
		if stale(parseTime(storedAt), tr.UpdatedAt) {
			return errors.NewConflictError("trade", tr.ID, "stored revision is newer")
		}
	case !stderrors.Is(err, sql.ErrNoRows):
		return errors.NewPersistenceError("read trade revision", err)
	}

	_, err = t.q.ExecContext(ctx, `
		INSERT OR REPLACE INTO trades (`+tradeColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, tr.ID, tr.UserID, tr.AccountID, tr.Symbol, string(tr.Direction),
		tr.EntryDate.Format(models.DateLayout), tr.EntryTime,
		tr.EntryPrice.String(), tr.StopLoss.String(), tr.TakeProfit.String(), tr.RiskPercent.String(),
		tr.LotSize.String(), tr.ValuePerPip.String(), string(tr.State), string(tr.Status),
		nullDecimalString(tr.Ratio), tr.BeforeImage, tr.AfterImage,
		nullTimeString(tr.ExitDate), nullDecimalString(tr.ExitPrice), nullInt64(tr.Points),
		nullDecimalString(tr.PnLCurrency), nullDecimalString(tr.PnLPercent),
		tr.Session, tr.Strategy, tr.Note, formatTime(tr.CreatedAt), formatTime(tr.UpdatedAt))
	if err != nil {
		return errors.NewPersistenceError("upsert trade", err)
	}
	return nil
}

func (t *sqliteTx) DeleteTrade(ctx context.Context, tradeID string) error {
	res, err := t.q.ExecContext(ctx, "DELETE FROM trades WHERE id = ?", tradeID)
	if err != nil {
		return errors.NewPersistenceError("delete trade", err)
	}
	return requireAffected(res, "trade", tradeID)
}

func (t *sqliteTx) InsertTransaction(ctx context.Context, tx models.Transaction) error {
	_, err := t.q.ExecContext(ctx, `
		INSERT INTO transactions (`+transactionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, tx.ID, tx.AccountID, tx.UserID, string(tx.Kind), tx.Amount.String(), formatTime(tx.Date),
		tx.Description, tx.FromProfit.String(), tx.FromCapital.String(), formatTime(tx.CreatedAt))
	if err != nil {
		var sqlErr sqlite3.Error
		if stderrors.As(err, &sqlErr) && sqlErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey {
			return errors.NewConflictError("transaction", tx.ID, "already exists")
		}
		return errors.NewPersistenceError("insert transaction", err)
	}
	return nil
}

func (t *sqliteTx) DeleteTransaction(ctx context.Context, txID string) error {
	res, err := t.q.ExecContext(ctx, "DELETE FROM transactions WHERE id = ?", txID)
	if err != nil {
		return errors.NewPersistenceError("delete transaction", err)
	}
	return requireAffected(res, "transaction", txID)
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanSQLiteAccount(row scanner) (models.Account, error) {
	var (
		a                               models.Account
		plan, tier                      string
		capital, profit, equity         string
		depositEnabled, withdrawEnabled int
		target                          sql.NullString
		created, updated                string
	)
	err := row.Scan(&a.ID, &a.UserID, &a.Name, &plan, &tier, &a.Currency, &capital, &profit, &equity,
		&depositEnabled, &withdrawEnabled, &target, &created, &updated)
	if err != nil {
		return models.Account{}, err
	}
	a.Plan = models.AccountPlan(plan)
	a.Tier = models.AccountTier(tier)
	a.Capital = parseDecimal(capital)
	a.Profit = parseDecimal(profit)
	a.Equity = parseDecimal(equity)
	a.DepositEnabled = depositEnabled == 1
	a.WithdrawEnabled = withdrawEnabled == 1
	a.Target = parseNullDecimal(target)
	a.CreatedAt = parseTime(created)
	a.UpdatedAt = parseTime(updated)
	return a, nil
}

func scanSQLiteTrade(row scanner) (models.Trade, error) {
	var (
		tr                                    models.Trade
		direction, entryDate                  string
		entry, sl, tp, risk, lot, vp          string
		state, status                         string
		ratio, exitDate, exitPrice, pnl, pnlP sql.NullString
		points                                sql.NullInt64
		created, updated                      string
	)
	err := row.Scan(&tr.ID, &tr.UserID, &tr.AccountID, &tr.Symbol, &direction, &entryDate, &tr.EntryTime,
		&entry, &sl, &tp, &risk, &lot, &vp, &state, &status, &ratio, &tr.BeforeImage, &tr.AfterImage,
		&exitDate, &exitPrice, &points, &pnl, &pnlP, &tr.Session, &tr.Strategy, &tr.Note, &created, &updated)
	if err != nil {
		return models.Trade{}, err
	}
	tr.Direction = models.Direction(direction)
	if d, err := time.Parse(models.DateLayout, entryDate); err == nil {
		tr.EntryDate = d
	}
	tr.EntryPrice = parseDecimal(entry)
	tr.StopLoss = parseDecimal(sl)
	tr.TakeProfit = parseDecimal(tp)
	tr.RiskPercent = parseDecimal(risk)
	tr.LotSize = parseDecimal(lot)
	tr.ValuePerPip = parseDecimal(vp)
	tr.State = models.TradeState(state)
	tr.Status = models.TradeStatus(status)
	tr.Ratio = parseNullDecimal(ratio)
	if exitDate.Valid {
		ts := parseTime(exitDate.String)
		tr.ExitDate = &ts
	}
	tr.ExitPrice = parseNullDecimal(exitPrice)
	if points.Valid {
		p := points.Int64
		tr.Points = &p
	}
	tr.PnLCurrency = parseNullDecimal(pnl)
	tr.PnLPercent = parseNullDecimal(pnlP)
	tr.CreatedAt = parseTime(created)
	tr.UpdatedAt = parseTime(updated)
	return tr, nil
}

func requireAffected(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return errors.NewPersistenceError("rows affected", err)
	}
	if n == 0 {
		return errors.NewNotFoundError(kind, id)
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nullTimeString(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func nullDecimalString(d decimal.NullDecimal) sql.NullString {
	if !d.Valid {
		return sql.NullString{}
	}
	return sql.NullString{String: d.Decimal.String(), Valid: true}
}

func parseNullDecimal(s sql.NullString) decimal.NullDecimal {
	if !s.Valid {
		return decimal.NullDecimal{}
	}
	d, err := decimal.NewFromString(s.String)
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(d)
}

func nullInt64(p *int64) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *p, Valid: true}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
