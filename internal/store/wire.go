package store

import (
	"encoding/json"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"

	"trade-journal/internal/errors"
	"trade-journal/internal/models"
)

// TradeRow is the snake_case wire shape of a trade.
type TradeRow struct {
	ID          string              `json:"id"`
	UserID      string              `json:"user_id"`
	AccountID   string              `json:"account_id"`
	Pair        string              `json:"pair"`
	Type        string              `json:"type"`
	EntryDate   string              `json:"entry_date"`
	TradeTime   string              `json:"trade_time"`
	EntryPrice  decimal.Decimal     `json:"entry_price"`
	SL          decimal.Decimal     `json:"sl"`
	TP          decimal.Decimal     `json:"tp"`
	Risk        decimal.Decimal     `json:"risk"`
	LotSize     decimal.Decimal     `json:"lot_size"`
	ValuePerPip decimal.Decimal     `json:"value_per_pip"`
	State       string              `json:"state"`
	Status      string              `json:"status"`
	Ratio       decimal.NullDecimal `json:"ratio"`
	BeforeImage string              `json:"beforeimage"`
	AfterImage  string              `json:"afterimage"`
	ExitDate    *string             `json:"exit_date"`
	ExitPrice   decimal.NullDecimal `json:"exit_price"`
	Points      decimal.NullDecimal `json:"points"`
	PnLCurrency decimal.NullDecimal `json:"pnl_currency"`
	PnLPercent  decimal.NullDecimal `json:"pnl_percent"`
	Session     string              `json:"session"`
	Strategy    string              `json:"strategy"`
	Note        string              `json:"note"`
	CreatedAt   string              `json:"created_at"`
	UpdatedAt   string              `json:"updated_at"`
}

// AccountRow is the snake_case wire shape of an account.
type AccountRow struct {
	ID                string              `json:"id"`
	UserID            string              `json:"user_id"`
	AccountName       string              `json:"account_name"`
	AccountPlan       string              `json:"account_plan"`
	AccountType       string              `json:"account_type"`
	Currency          string              `json:"currency"`
	Capital           decimal.Decimal     `json:"capital"`
	Profit            decimal.Decimal     `json:"profit"`
	Equity            decimal.Decimal     `json:"equity"`
	DepositEnabled    bool                `json:"deposit_enabled"`
	WithdrawalEnabled bool                `json:"withdrawal_enabled"`
	Target            decimal.NullDecimal `json:"target"`
	CreatedAt         string              `json:"created_at"`
	UpdatedAt         string              `json:"updated_at"`
}

// TransactionRow is the snake_case wire shape of a ledger entry.
type TransactionRow struct {
	ID          string          `json:"id"`
	AccountID   string          `json:"account_id"`
	UserID      string          `json:"user_id"`
	Type        string          `json:"type"`
	Amount      decimal.Decimal `json:"amount"`
	Date        string          `json:"date"`
	Description string          `json:"description"`
	FromProfit  decimal.Decimal `json:"from_profit"`
	FromCapital decimal.Decimal `json:"from_capital"`
	CreatedAt   string          `json:"created_at"`
}

// keyAliases maps legacy or camelCase-derived keys to their wire names.
var keyAliases = map[string]string{
	"before_image":     "beforeimage",
	"after_image":      "afterimage",
	"symbol":           "pair",
	"direction":        "type",
	"kind":             "type",
	"entry_time":       "trade_time",
	"stop_loss":        "sl",
	"take_profit":      "tp",
	"risk_percent":     "risk",
	"name":             "account_name",
	"plan":             "account_plan",
	"tier":             "account_type",
	"withdraw_enabled": "withdrawal_enabled",
	"pnl":              "pnl_currency",
}

// UnmarshalJSON accepts snake_case or camelCase keys.
func (r *TradeRow) UnmarshalJSON(data []byte) error {
	type plain TradeRow
	return DecodeNormalized(data, (*plain)(r))
}

// UnmarshalJSON accepts snake_case or camelCase keys.
func (r *AccountRow) UnmarshalJSON(data []byte) error {
	type plain AccountRow
	// rows written before the flags existed default to enabled
	p := plain{DepositEnabled: true, WithdrawalEnabled: true}
	if err := DecodeNormalized(data, &p); err != nil {
		return err
	}
	*r = AccountRow(p)
	return nil
}

// UnmarshalJSON accepts snake_case or camelCase keys.
func (r *TransactionRow) UnmarshalJSON(data []byte) error {
	type plain TransactionRow
	return DecodeNormalized(data, (*plain)(r))
}

// DecodeNormalized rewrites object keys to the canonical wire names and
// decodes into v. A key already in canonical form wins over a converted one.
func DecodeNormalized(data []byte, v interface{}) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	norm := make(map[string]json.RawMessage, len(raw))
	for k, val := range raw {
		if nk := NormalizeKey(k); nk != k {
			if _, exact := raw[nk]; !exact {
				norm[nk] = val
			}
			continue
		}
		norm[k] = val
	}
	buf, err := json.Marshal(norm)
	if err != nil {
		return err
	}
	return json.Unmarshal(buf, v)
}

// NormalizeKey converts a camelCase key to snake_case and resolves aliases.
func NormalizeKey(key string) string {
	var b strings.Builder
	for i, r := range key {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	out := b.String()
	if alias, ok := keyAliases[out]; ok {
		return alias
	}
	return out
}

// TradeToRow converts a trade to its wire shape.
func TradeToRow(t models.Trade) TradeRow {
	row := TradeRow{
		ID:          t.ID,
		UserID:      t.UserID,
		AccountID:   t.AccountID,
		Pair:        t.Symbol,
		Type:        string(t.Direction),
		EntryDate:   t.EntryDay(),
		TradeTime:   t.EntryTime,
		EntryPrice:  t.EntryPrice,
		SL:          t.StopLoss,
		TP:          t.TakeProfit,
		Risk:        t.RiskPercent,
		LotSize:     t.LotSize,
		ValuePerPip: t.ValuePerPip,
		State:       string(t.State),
		Status:      string(t.Status),
		Ratio:       t.Ratio,
		BeforeImage: t.BeforeImage,
		AfterImage:  t.AfterImage,
		ExitPrice:   t.ExitPrice,
		PnLCurrency: t.PnLCurrency,
		PnLPercent:  t.PnLPercent,
		Session:     t.Session,
		Strategy:    t.Strategy,
		Note:        t.Note,
		CreatedAt:   formatTime(t.CreatedAt),
		UpdatedAt:   formatTime(t.UpdatedAt),
	}
	if t.ExitDate != nil {
		s := formatTime(*t.ExitDate)
		row.ExitDate = &s
	}
	if t.Points != nil {
		row.Points = decimal.NewNullDecimal(decimal.NewFromInt(*t.Points))
	}
	return row
}

// TradeFromRow converts a wire row to a trade.
func TradeFromRow(r TradeRow) (models.Trade, error) {
	if strings.TrimSpace(r.ID) == "" {
		return models.Trade{}, errors.NewValidationError("trade.id", "", "is required")
	}
	t := models.Trade{
		ID:          r.ID,
		UserID:      r.UserID,
		AccountID:   r.AccountID,
		Symbol:      r.Pair,
		EntryTime:   r.TradeTime,
		EntryPrice:  r.EntryPrice,
		StopLoss:    r.SL,
		TakeProfit:  r.TP,
		RiskPercent: r.Risk,
		LotSize:     r.LotSize,
		ValuePerPip: r.ValuePerPip,
		Ratio:       r.Ratio,
		BeforeImage: r.BeforeImage,
		AfterImage:  r.AfterImage,
		ExitPrice:   r.ExitPrice,
		PnLCurrency: r.PnLCurrency,
		PnLPercent:  r.PnLPercent,
		Session:     r.Session,
		Strategy:    r.Strategy,
		Note:        r.Note,
		Status:      models.StatusValid,
	}

	dir, ok := models.ParseDirection(r.Type)
	if !ok {
		return models.Trade{}, errors.NewValidationError("trade.type", r.Type, "must be long or short")
	}
	t.Direction = dir

	entry, err := ParseWireTime(r.EntryDate)
	if err != nil {
		return models.Trade{}, errors.NewValidationError("trade.entry_date", r.EntryDate, "is not a date")
	}
	t.EntryDate = models.DateOnly(entry)

	state, ok := models.ParseTradeState(r.State)
	if !ok {
		return models.Trade{}, errors.NewValidationError("trade.state", r.State, "must be Active or Closed")
	}
	t.State = state

	if r.Status != "" {
		status, ok := models.ParseTradeStatus(r.Status)
		if !ok {
			return models.Trade{}, errors.NewValidationError("trade.status", r.Status, "must be Valid or Invalid")
		}
		t.Status = status
	}

	if r.ExitDate != nil && *r.ExitDate != "" {
		exit, err := ParseWireTime(*r.ExitDate)
		if err != nil {
			return models.Trade{}, errors.NewValidationError("trade.exit_date", *r.ExitDate, "is not a timestamp")
		}
		t.ExitDate = &exit
	}
	if r.Points.Valid {
		p := r.Points.Decimal.Round(0).IntPart()
		t.Points = &p
	}

	if t.CreatedAt, err = parseOptionalTime(r.CreatedAt); err != nil {
		return models.Trade{}, errors.NewValidationError("trade.created_at", r.CreatedAt, "is not a timestamp")
	}
	if t.UpdatedAt, err = parseOptionalTime(r.UpdatedAt); err != nil {
		return models.Trade{}, errors.NewValidationError("trade.updated_at", r.UpdatedAt, "is not a timestamp")
	}
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = t.CreatedAt
	}
	return t, nil
}

// AccountToRow converts an account to its wire shape.
func AccountToRow(a models.Account) AccountRow {
	return AccountRow{
		ID:                a.ID,
		UserID:            a.UserID,
		AccountName:       a.Name,
		AccountPlan:       string(a.Plan),
		AccountType:       string(a.Tier),
		Currency:          a.Currency,
		Capital:           a.Capital,
		Profit:            a.Profit,
		Equity:            a.Equity,
		DepositEnabled:    a.DepositEnabled,
		WithdrawalEnabled: a.WithdrawEnabled,
		Target:            a.Target,
		CreatedAt:         formatTime(a.CreatedAt),
		UpdatedAt:         formatTime(a.UpdatedAt),
	}
}

// AccountFromRow converts a wire row to an account.
func AccountFromRow(r AccountRow) (models.Account, error) {
	if strings.TrimSpace(r.ID) == "" {
		return models.Account{}, errors.NewValidationError("account.id", "", "is required")
	}
	a := models.Account{
		ID:              r.ID,
		UserID:          r.UserID,
		Name:            r.AccountName,
		Currency:        strings.ToUpper(r.Currency),
		Capital:         r.Capital,
		Profit:          r.Profit,
		Equity:          r.Equity,
		DepositEnabled:  r.DepositEnabled,
		WithdrawEnabled: r.WithdrawalEnabled,
		Target:          r.Target,
		Plan:            models.PlanNormal,
		Tier:            models.TierStandard,
	}
	if r.AccountPlan != "" {
		plan, ok := models.ParseAccountPlan(r.AccountPlan)
		if !ok {
			return models.Account{}, errors.NewValidationError("account.account_plan", r.AccountPlan, "must be Normal or Challenge")
		}
		a.Plan = plan
	}
	if r.AccountType != "" {
		tier, ok := models.ParseAccountTier(r.AccountType)
		if !ok {
			return models.Account{}, errors.NewValidationError("account.account_type", r.AccountType, "must be Standard, Mini or Micro")
		}
		a.Tier = tier
	}
	var err error
	if a.CreatedAt, err = parseOptionalTime(r.CreatedAt); err != nil {
		return models.Account{}, errors.NewValidationError("account.created_at", r.CreatedAt, "is not a timestamp")
	}
	if a.UpdatedAt, err = parseOptionalTime(r.UpdatedAt); err != nil {
		return models.Account{}, errors.NewValidationError("account.updated_at", r.UpdatedAt, "is not a timestamp")
	}
	return a, nil
}

// TransactionToRow converts a ledger entry to its wire shape.
func TransactionToRow(t models.Transaction) TransactionRow {
	return TransactionRow{
		ID:          t.ID,
		AccountID:   t.AccountID,
		UserID:      t.UserID,
		Type:        string(t.Kind),
		Amount:      t.Amount,
		Date:        formatTime(t.Date),
		Description: t.Description,
		FromProfit:  t.FromProfit,
		FromCapital: t.FromCapital,
		CreatedAt:   formatTime(t.CreatedAt),
	}
}

// TransactionFromRow converts a wire row to a ledger entry.
func TransactionFromRow(r TransactionRow) (models.Transaction, error) {
	if strings.TrimSpace(r.ID) == "" {
		return models.Transaction{}, errors.NewValidationError("transaction.id", "", "is required")
	}
	kind, ok := models.ParseTransactionKind(r.Type)
	if !ok {
		return models.Transaction{}, errors.NewValidationError("transaction.type", r.Type, "must be Deposit or Withdraw")
	}
	t := models.Transaction{
		ID:          r.ID,
		AccountID:   r.AccountID,
		UserID:      r.UserID,
		Kind:        kind,
		Amount:      r.Amount,
		Description: r.Description,
		FromProfit:  r.FromProfit,
		FromCapital: r.FromCapital,
	}
	var err error
	if t.Date, err = ParseWireTime(r.Date); err != nil {
		return models.Transaction{}, errors.NewValidationError("transaction.date", r.Date, "is not a date")
	}
	if t.CreatedAt, err = parseOptionalTime(r.CreatedAt); err != nil {
		return models.Transaction{}, errors.NewValidationError("transaction.created_at", r.CreatedAt, "is not a timestamp")
	}
	return t, nil
}

var wireTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	models.DateLayout,
}

// ParseWireTime parses an ISO 8601 timestamp or calendar date. Values
// without a zone are read as UTC.
func ParseWireTime(s string) (time.Time, error) {
	return ParseWireTimeIn(s, time.UTC)
}

// ParseWireTimeIn is ParseWireTime with zone-less values read in loc. The
// result is always UTC.
func ParseWireTimeIn(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	s = strings.TrimSpace(s)
	var lastErr error
	for _, layout := range wireTimeLayouts {
		t, err := time.ParseInLocation(layout, s, loc)
		if err == nil {
			return t.UTC(), nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

func parseOptionalTime(s string) (time.Time, error) {
	if strings.TrimSpace(s) == "" {
		return time.Time{}, nil
	}
	return ParseWireTime(s)
}
