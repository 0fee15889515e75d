package api

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"trade-journal/internal/engine"
	"trade-journal/internal/errors"
	"trade-journal/internal/market"
	"trade-journal/internal/models"
	"trade-journal/internal/risk"
	"trade-journal/internal/sizing"
	"trade-journal/internal/store"
)

// tradeRequest carries plan fields for open and preview, and any subset of
// plan or close fields for an edit.
type tradeRequest struct {
	Pair        *string             `json:"pair"`
	Type        *string             `json:"type"`
	EntryDate   *string             `json:"entry_date"`
	TradeTime   *string             `json:"trade_time"`
	EntryPrice  decimal.NullDecimal `json:"entry_price"`
	SL          decimal.NullDecimal `json:"sl"`
	TP          decimal.NullDecimal `json:"tp"`
	Risk        decimal.NullDecimal `json:"risk"`
	BeforeImage *string             `json:"beforeimage"`
	Session     *string             `json:"session"`
	Strategy    *string             `json:"strategy"`

	ExitDate    *string             `json:"exit_date"`
	ExitPrice   decimal.NullDecimal `json:"exit_price"`
	PnLCurrency decimal.NullDecimal `json:"pnl_currency"`
	AfterImage  *string             `json:"afterimage"`
	Note        *string             `json:"note"`
	Status      *string             `json:"status"`
}

func str(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func (req tradeRequest) plan() (engine.Plan, error) {
	entry, err := parseTime("entry_date", str(req.EntryDate))
	if err != nil {
		return engine.Plan{}, err
	}
	return engine.Plan{
		Symbol:      str(req.Pair),
		Direction:   models.Direction(str(req.Type)),
		EntryDate:   entry,
		EntryTime:   str(req.TradeTime),
		EntryPrice:  req.EntryPrice,
		StopLoss:    req.SL,
		TakeProfit:  req.TP,
		RiskPercent: req.Risk,
		BeforeImage: str(req.BeforeImage),
		Session:     str(req.Session),
		Strategy:    str(req.Strategy),
	}, nil
}

func (req tradeRequest) hasCloseFields() bool {
	return req.ExitDate != nil || req.ExitPrice.Valid || req.PnLCurrency.Valid ||
		req.AfterImage != nil || req.Note != nil || req.Status != nil
}

func (req tradeRequest) hasPlanFields() bool {
	return req.Pair != nil || req.Type != nil || req.EntryDate != nil || req.TradeTime != nil ||
		req.EntryPrice.Valid || req.SL.Valid || req.TP.Valid || req.Risk.Valid ||
		req.BeforeImage != nil || req.Session != nil || req.Strategy != nil
}

func parseStatus(s string) (models.TradeStatus, error) {
	if strings.TrimSpace(s) == "" {
		return "", nil
	}
	st, ok := models.ParseTradeStatus(s)
	if !ok {
		return "", errors.NewValidationError("status", s, "must be Valid or Invalid")
	}
	return st, nil
}

func (req tradeRequest) activePatch() (engine.ActivePatch, error) {
	if req.hasCloseFields() {
		return engine.ActivePatch{}, errors.NewValidationError("body", "", "close fields apply to closed trades only")
	}
	p := engine.ActivePatch{
		Symbol:      req.Pair,
		EntryTime:   req.TradeTime,
		EntryPrice:  req.EntryPrice,
		StopLoss:    req.SL,
		TakeProfit:  req.TP,
		RiskPercent: req.Risk,
		BeforeImage: req.BeforeImage,
		Session:     req.Session,
		Strategy:    req.Strategy,
	}
	if req.Type != nil {
		d := models.Direction(*req.Type)
		p.Direction = &d
	}
	if req.EntryDate != nil {
		entry, err := parseTime("entry_date", *req.EntryDate)
		if err != nil {
			return p, err
		}
		p.EntryDate = &entry
	}
	return p, nil
}

func (req tradeRequest) closedPatch(loc *time.Location) (engine.ClosedPatch, error) {
	if req.hasPlanFields() {
		return engine.ClosedPatch{}, errors.NewValidationError("body", "", "plan fields cannot change once a trade is closed")
	}
	p := engine.ClosedPatch{
		ExitPrice:  req.ExitPrice,
		ManualPnL:  req.PnLCurrency,
		AfterImage: req.AfterImage,
		Note:       req.Note,
	}
	if req.ExitDate != nil {
		exit, err := parseMoment("exit_date", *req.ExitDate, loc)
		if err != nil {
			return p, err
		}
		if exit.IsZero() {
			return p, errors.NewValidationError("exit_date", "", "cannot be cleared")
		}
		p.ExitDate = &exit
	}
	if req.Status != nil {
		st, err := parseStatus(*req.Status)
		if err != nil {
			return p, err
		}
		if st == "" {
			return p, errors.NewValidationError("status", "", "cannot be cleared")
		}
		p.Status = &st
	}
	return p, nil
}

func (req tradeRequest) closeRequest(loc *time.Location) (engine.CloseRequest, error) {
	exit, err := parseMoment("exit_date", str(req.ExitDate), loc)
	if err != nil {
		return engine.CloseRequest{}, err
	}
	st, err := parseStatus(str(req.Status))
	if err != nil {
		return engine.CloseRequest{}, err
	}
	return engine.CloseRequest{
		ExitDate:   exit,
		ExitPrice:  req.ExitPrice,
		ManualPnL:  req.PnLCurrency,
		AfterImage: str(req.AfterImage),
		Note:       str(req.Note),
		Status:     st,
	}, nil
}

// queryFrom builds a trade listing request from URL parameters.
func queryFrom(v url.Values) (engine.Query, error) {
	var q engine.Query
	if s := v.Get("state"); s != "" {
		st, ok := models.ParseTradeState(s)
		if !ok {
			return q, errors.NewValidationError("state", s, "must be Active or Closed")
		}
		q.State = st
	}
	if s := v.Get("status"); s != "" {
		st, err := parseStatus(s)
		if err != nil {
			return q, err
		}
		q.Status = st
	}
	if s := v.Get("type"); s != "" {
		d, ok := models.ParseDirection(s)
		if !ok {
			return q, errors.NewValidationError("type", s, "must be Long or Short")
		}
		q.Direction = d
	}
	if s := v.Get("pnl"); s != "" {
		switch sign := engine.PnLSign(strings.ToLower(s)); sign {
		case engine.PnLPositive, engine.PnLNegative, engine.PnLZero:
			q.PnLSign = sign
		default:
			return q, errors.NewValidationError("pnl", s, "must be positive, negative or zero")
		}
	}
	var err error
	if q.From, err = parseTime("from", v.Get("from")); err != nil {
		return q, err
	}
	if q.To, err = parseTime("to", v.Get("to")); err != nil {
		return q, err
	}
	q.Symbol = v.Get("pair")

	key, ok := engine.ParseSortKey(v.Get("sort"))
	if !ok {
		return q, errors.NewValidationError("sort", v.Get("sort"), "unknown sort key")
	}
	q.Sort = key
	switch strings.ToLower(v.Get("order")) {
	case "", "desc":
	case "asc":
		q.Ascending = true
	default:
		return q, errors.NewValidationError("order", v.Get("order"), "must be asc or desc")
	}
	return q, nil
}

func tradeRows(trades []models.Trade) []store.TradeRow {
	rows := make([]store.TradeRow, 0, len(trades))
	for _, t := range trades {
		rows = append(rows, store.TradeToRow(t))
	}
	return rows
}

// ListTrades returns a filtered, sorted trade listing.
func (h *Handler) ListTrades(w http.ResponseWriter, r *http.Request) {
	who, _ := Identity(r)
	q, err := queryFrom(r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}
	trades, err := h.engine.Trades(r.Context(), who, q)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tradeRows(trades))
}

// GetTrade returns one trade.
func (h *Handler) GetTrade(w http.ResponseWriter, r *http.Request) {
	who, _ := Identity(r)
	t, err := h.engine.Trade(r.Context(), who, chi.URLParam(r, "tradeID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, store.TradeToRow(t))
}

// OpenTrade admits and records a new trade.
func (h *Handler) OpenTrade(w http.ResponseWriter, r *http.Request) {
	who, _ := Identity(r)
	var req tradeRequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	plan, err := req.plan()
	if err != nil {
		writeError(w, r, err)
		return
	}
	t, err := h.engine.Open(r.Context(), who, plan)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, store.TradeToRow(t))
}

// CloseTrade records the exit of an active trade.
func (h *Handler) CloseTrade(w http.ResponseWriter, r *http.Request) {
	who, _ := Identity(r)
	var req tradeRequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	cr, err := req.closeRequest(h.loc)
	if err != nil {
		writeError(w, r, err)
		return
	}
	t, err := h.engine.Close(r.Context(), who, chi.URLParam(r, "tradeID"), cr)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, store.TradeToRow(t))
}

// EditTrade patches a trade. Active trades accept plan fields, closed
// trades accept close fields.
func (h *Handler) EditTrade(w http.ResponseWriter, r *http.Request) {
	who, _ := Identity(r)
	id := chi.URLParam(r, "tradeID")
	var req tradeRequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	current, err := h.engine.Trade(r.Context(), who, id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var t models.Trade
	if current.IsActive() {
		patch, perr := req.activePatch()
		if perr != nil {
			writeError(w, r, perr)
			return
		}
		t, err = h.engine.EditActive(r.Context(), who, id, patch)
	} else {
		patch, perr := req.closedPatch(h.loc)
		if perr != nil {
			writeError(w, r, perr)
			return
		}
		t, err = h.engine.EditClosed(r.Context(), who, id, patch)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, store.TradeToRow(t))
}

// DeleteTrade removes a trade and reverses its P&L.
func (h *Handler) DeleteTrade(w http.ResponseWriter, r *http.Request) {
	who, _ := Identity(r)
	if err := h.engine.DeleteTrade(r.Context(), who, chi.URLParam(r, "tradeID")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type previewResponse struct {
	StopPoints             int64               `json:"stop_points"`
	TPPoints               int64               `json:"tp_points"`
	Ratio                  decimal.NullDecimal `json:"ratio"`
	ValuePerPip            decimal.Decimal     `json:"value_per_pip"`
	LotSize                decimal.Decimal     `json:"lot_size"`
	EstimatedRisk          decimal.Decimal     `json:"estimated_risk"`
	EstimatedProfit        decimal.Decimal     `json:"estimated_profit"`
	EstimatedRiskPercent   decimal.Decimal     `json:"estimated_risk_percent"`
	EstimatedProfitPercent decimal.Decimal     `json:"estimated_profit_percent"`
	Admitted               *bool               `json:"admitted,omitempty"`
	ChecksPassed           []string            `json:"checks_passed,omitempty"`
	ChecksFailed           []string            `json:"checks_failed,omitempty"`
	Rejection              string              `json:"rejection,omitempty"`
}

func previewView(p engine.Preview, gated bool) previewResponse {
	out := sizingView(p.Sizing)
	if gated {
		admitted := p.Gate.Admitted
		out.Admitted = &admitted
		out.ChecksPassed = p.Gate.ChecksPassed
		out.ChecksFailed = p.Gate.ChecksFailed
		if p.Gate.Err != nil {
			out.Rejection = p.Gate.Err.Error()
		}
	}
	return out
}

func sizingView(s sizing.Result) previewResponse {
	return previewResponse{
		StopPoints:             s.StopPoints,
		TPPoints:               s.TPPoints,
		Ratio:                  s.Ratio,
		ValuePerPip:            s.AdjustedValuePerPip,
		LotSize:                s.LotSize,
		EstimatedRisk:          s.EstimatedRisk,
		EstimatedProfit:        s.EstimatedProfit,
		EstimatedRiskPercent:   s.EstimatedRiskPercent,
		EstimatedProfitPercent: s.EstimatedProfitPercent,
	}
}

// PreviewSizing sizes a plan without recording it.
func (h *Handler) PreviewSizing(w http.ResponseWriter, r *http.Request) {
	who, _ := Identity(r)
	var req tradeRequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	plan, err := req.plan()
	if err != nil {
		writeError(w, r, err)
		return
	}
	p, err := h.engine.Preview(r.Context(), who, plan)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, previewView(p, !plan.EntryDate.IsZero() && plan.RiskPercent.Valid))
}

type usageResponse struct {
	Date        string          `json:"date"`
	RiskPercent decimal.Decimal `json:"risk_percent"`
	Trades      int             `json:"trades"`
	Active      int             `json:"active"`
	Cancels     int             `json:"cancels"`
	Limits      limitsView      `json:"limits"`
}

type limitsView struct {
	MaxTradeRisk    decimal.Decimal `json:"max_trade_risk"`
	MaxDailyRisk    decimal.Decimal `json:"max_daily_risk"`
	MaxDailyTrades  int             `json:"max_daily_trades"`
	MaxDailyActive  int             `json:"max_daily_active"`
	MaxDailyCancels int             `json:"max_daily_cancels"`
}

func viewLimits(l risk.Limits) limitsView {
	return limitsView{
		MaxTradeRisk:    l.MaxTradeRisk,
		MaxDailyRisk:    l.MaxDailyRisk,
		MaxDailyTrades:  l.MaxDailyTrades,
		MaxDailyActive:  l.MaxDailyActive,
		MaxDailyCancels: l.MaxDailyCancels,
	}
}

// RiskUsage reports the daily limit usage for ?date= (default today).
func (h *Handler) RiskUsage(w http.ResponseWriter, r *http.Request) {
	who, _ := Identity(r)
	date, err := parseTime("date", r.URL.Query().Get("date"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if date.IsZero() {
		date = models.DateOnly(h.clock().In(h.loc))
	}
	u, err := h.engine.Utilization(r.Context(), who, date)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, usageResponse{
		Date:        models.DateOnly(date).Format(models.DateLayout),
		RiskPercent: u.RiskPercent,
		Trades:      u.Trades,
		Active:      u.Active,
		Cancels:     u.Cancels,
		Limits:      viewLimits(h.engine.Limits()),
	})
}

type instrumentView struct {
	Symbol          string          `json:"symbol"`
	Multiplier      int64           `json:"multiplier"`
	BaseValuePerPip decimal.Decimal `json:"base_value_per_pip"`
	Sizable         bool            `json:"sizable"`
}

// Instruments lists the supported symbols.
func (h *Handler) Instruments(w http.ResponseWriter, r *http.Request) {
	var out []instrumentView
	for _, s := range market.Symbols() {
		inst, _ := market.Lookup(s)
		out = append(out, instrumentView{
			Symbol:          inst.Symbol,
			Multiplier:      inst.Multiplier,
			BaseValuePerPip: inst.BaseValuePerPip,
			Sizable:         inst.Sizable(),
		})
	}
	writeJSON(w, http.StatusOK, out)
}
