package engine

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"trade-journal/internal/audit"
	"trade-journal/internal/errors"
	"trade-journal/internal/identity"
	"trade-journal/internal/ledger"
	"trade-journal/internal/logging"
	"trade-journal/internal/market"
	"trade-journal/internal/models"
	"trade-journal/internal/risk"
	"trade-journal/internal/sizing"
)

// Plan holds the user-entered fields of a new trade. Sizing fields are
// derived by the engine.
type Plan struct {
	Symbol      string
	Direction   models.Direction
	EntryDate   time.Time
	EntryTime   string // HH:MM, optional
	EntryPrice  decimal.NullDecimal
	StopLoss    decimal.NullDecimal
	TakeProfit  decimal.NullDecimal
	RiskPercent decimal.NullDecimal
	BeforeImage string
	Session     string
	Strategy    string
}

func planOf(t models.Trade) Plan {
	return Plan{
		Symbol:      t.Symbol,
		Direction:   t.Direction,
		EntryDate:   t.EntryDate,
		EntryTime:   t.EntryTime,
		EntryPrice:  decimal.NewNullDecimal(t.EntryPrice),
		StopLoss:    decimal.NewNullDecimal(t.StopLoss),
		TakeProfit:  decimal.NewNullDecimal(t.TakeProfit),
		RiskPercent: decimal.NewNullDecimal(t.RiskPercent),
		BeforeImage: t.BeforeImage,
		Session:     t.Session,
		Strategy:    t.Strategy,
	}
}

// normalize validates p and returns it with canonical symbol, session and
// date, plus the instrument it trades.
func (p Plan) normalize() (Plan, market.Instrument, error) {
	inst, ok := market.Lookup(p.Symbol)
	if !ok {
		return p, inst, errors.NewValidationError("pair", p.Symbol, "unknown instrument")
	}
	p.Symbol = inst.Symbol

	d, ok := models.ParseDirection(string(p.Direction))
	if !ok {
		return p, inst, errors.NewValidationError("type", p.Direction, "must be Long or Short")
	}
	p.Direction = d

	if p.EntryDate.IsZero() {
		return p, inst, errors.NewValidationError("entry_date", "", "is required")
	}
	p.EntryDate = models.DateOnly(p.EntryDate)

	p.EntryTime = strings.TrimSpace(p.EntryTime)
	if p.EntryTime != "" {
		if _, err := time.Parse(models.TimeLayout, p.EntryTime); err != nil {
			return p, inst, errors.NewValidationError("trade_time", p.EntryTime, "must be HH:MM")
		}
	}

	for _, f := range []struct {
		name string
		v    decimal.NullDecimal
	}{
		{"entry_price", p.EntryPrice},
		{"sl", p.StopLoss},
		{"tp", p.TakeProfit},
		{"risk", p.RiskPercent},
	} {
		if !f.v.Valid {
			return p, inst, errors.NewValidationError(f.name, "", "is required")
		}
		if !f.v.Decimal.IsPositive() {
			return p, inst, errors.NewValidationError(f.name, f.v.Decimal, "must be positive")
		}
	}
	if p.StopLoss.Decimal.Equal(p.EntryPrice.Decimal) {
		return p, inst, errors.NewValidationError("sl", p.StopLoss.Decimal, "must differ from the entry price")
	}

	if p.Session = strings.TrimSpace(p.Session); p.Session != "" {
		s, ok := models.ParseSession(p.Session)
		if !ok {
			return p, inst, errors.NewValidationError("session", p.Session, "unknown session")
		}
		p.Session = s
	}
	p.Strategy = strings.TrimSpace(p.Strategy)

	var err error
	if p.BeforeImage, err = imageURL("beforeimage", p.BeforeImage); err != nil {
		return p, inst, err
	}
	return p, inst, nil
}

// imageURL accepts an empty string or an absolute http(s) URL.
func imageURL(field, raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", errors.NewValidationError(field, raw, "must be an http or https URL")
	}
	return raw, nil
}

func sizingInput(p Plan, inst market.Instrument, acct models.Account) sizing.Input {
	return sizing.Input{
		Instrument:  inst,
		Tier:        acct.Tier,
		Direction:   p.Direction,
		Entry:       p.EntryPrice,
		Stop:        p.StopLoss,
		TakeProfit:  p.TakeProfit,
		RiskPercent: p.RiskPercent,
		Capital:     acct.Capital,
	}
}

// size runs the calculator and refuses plans that cannot be traded.
func size(p Plan, inst market.Instrument, acct models.Account) (sizing.Result, error) {
	if !inst.Sizable() {
		return sizing.Result{}, errors.NewValidationError("pair", inst.Symbol, "no value-per-pip for this instrument")
	}
	res := sizing.Calculate(sizingInput(p, inst, acct))
	if res.LotSize.IsZero() {
		return res, errors.NewValidationError("lot_size", res.LotSize.StringFixed(2), "position size rounds to zero for this capital and stop")
	}
	return res, nil
}

// Open admits a new Active trade for who.
func (e *Engine) Open(ctx context.Context, who identity.Identity, plan Plan) (models.Trade, error) {
	var trade models.Trade
	_, err := e.run(ctx, who, "open_trade", func(b *Book, now time.Time) (outcome, error) {
		p, inst, err := plan.normalize()
		if err != nil {
			return outcome{}, err
		}
		res, err := size(p, inst, b.account)
		if err != nil {
			return outcome{}, err
		}
		cand := risk.Candidate{EntryDate: p.EntryDate, RiskPercent: p.RiskPercent.Decimal}
		if err := e.gate.Admit(cand, b.Trades()); err != nil {
			return outcome{}, err
		}

		trade = models.Trade{
			ID:          e.newID(),
			UserID:      who.UserID,
			AccountID:   who.AccountID,
			Symbol:      p.Symbol,
			Direction:   p.Direction,
			EntryDate:   p.EntryDate,
			EntryTime:   p.EntryTime,
			EntryPrice:  p.EntryPrice.Decimal,
			StopLoss:    p.StopLoss.Decimal,
			TakeProfit:  p.TakeProfit.Decimal,
			RiskPercent: p.RiskPercent.Decimal,
			LotSize:     res.LotSize,
			ValuePerPip: res.AdjustedValuePerPip,
			Ratio:       res.Ratio,
			BeforeImage: p.BeforeImage,
			Session:     p.Session,
			Strategy:    p.Strategy,
			State:       models.StateActive,
			Status:      models.StatusValid,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		t := trade
		return outcome{
			book:   b.Upsert(t),
			writes: []Mutation{upsertTrade(t)},
			events: []audit.Event{tradeEvent(audit.TradeOpened, who, t)},
			onApply: func(l zerolog.Logger) {
				logging.LogTradeOpened(l, t.ID, t.Symbol, string(t.Direction), t.LotSize, t.RiskPercent)
			},
		}, nil
	})
	if err != nil {
		return models.Trade{}, err
	}
	return trade, nil
}

// CloseRequest carries the exit of an Active trade. A zero ExitDate means
// now; an empty Status means Valid. A ManualPnL that is absent or zero
// leaves the computed P&L in place.
type CloseRequest struct {
	ExitDate   time.Time
	ExitPrice  decimal.NullDecimal
	ManualPnL  decimal.NullDecimal
	AfterImage string
	Note       string
	Status     models.TradeStatus
}

// settle fills the close fields of t from its exit. The exit day is read in
// loc. Percent is always taken from the currency P&L against current capital.
func settle(t models.Trade, exit time.Time, loc *time.Location, price, manual decimal.NullDecimal, capital decimal.Decimal) (models.Trade, error) {
	if !price.Valid {
		return t, errors.NewValidationError("exit_price", "", "is required")
	}
	if !price.Decimal.IsPositive() {
		return t, errors.NewValidationError("exit_price", price.Decimal, "must be positive")
	}
	if err := checkExit(t, exit, loc); err != nil {
		return t, err
	}

	points := sizing.Points(t.Direction, t.EntryPrice, price.Decimal, market.MultiplierFor(t.Symbol))
	pnl := sizing.PnL(points, t.LotSize, t.ValuePerPip)
	if manual.Valid && !manual.Decimal.IsZero() {
		pnl = manual.Decimal
	}

	exit = exit.UTC()
	t.State = models.StateClosed
	t.ExitDate = &exit
	t.ExitPrice = price
	t.Points = &points
	t.PnLCurrency = decimal.NewNullDecimal(pnl)
	t.PnLPercent = decimal.NewNullDecimal(sizing.Percent(pnl, capital))
	return t, nil
}

func checkExit(t models.Trade, exit time.Time, loc *time.Location) error {
	if models.DateOnly(exit.In(loc)).Before(t.EntryDate) {
		return errors.NewValidationError("exit_date", exit.Format(time.RFC3339), "is before the entry date")
	}
	return nil
}

// Close moves an Active trade to Closed and books its P&L against the
// account in the same write.
func (e *Engine) Close(ctx context.Context, who identity.Identity, tradeID string, req CloseRequest) (models.Trade, error) {
	var closed models.Trade
	_, err := e.runTrade(ctx, who, "close_trade", tradeID, func(b *Book, now time.Time) (outcome, error) {
		t, ok := b.Get(tradeID)
		if !ok {
			return outcome{}, errors.NewNotFoundError("trade", tradeID)
		}
		if !t.IsActive() {
			return outcome{}, errors.NewConflictError("trade", tradeID, "trade is already closed")
		}

		status := req.Status
		if status == "" {
			status = models.StatusValid
		}
		if s, ok := models.ParseTradeStatus(string(status)); ok {
			status = s
		} else {
			return outcome{}, errors.NewValidationError("status", req.Status, "must be Valid or Invalid")
		}
		if status == models.StatusInvalid {
			cand := risk.Candidate{TradeID: t.ID, EntryDate: t.EntryDate, RiskPercent: t.RiskPercent}
			if err := e.gate.AdmitCancellation(cand, b.Trades()); err != nil {
				return outcome{}, err
			}
		}

		after, err := imageURL("afterimage", req.AfterImage)
		if err != nil {
			return outcome{}, err
		}
		exit := req.ExitDate
		if exit.IsZero() {
			exit = now
		}
		t, err = settle(t, exit, e.loc, req.ExitPrice, req.ManualPnL, b.account.Capital)
		if err != nil {
			return outcome{}, err
		}
		t.Status = status
		t.AfterImage = after
		t.Note = strings.TrimSpace(req.Note)
		t.UpdatedAt = later(now, t.UpdatedAt)

		acct := ledger.ApplyPnL(b.account, t.PnL(), now)
		closed = t
		return outcome{
			book:   b.withAccount(acct).Upsert(t),
			writes: []Mutation{upsertTrade(t), saveAccount(acct)},
			events: []audit.Event{tradeEvent(audit.TradeClosed, who, t)},
			onApply: func(l zerolog.Logger) {
				logging.LogTradeClosed(l, t.Symbol, string(t.Status), *t.Points, t.PnL())
			},
		}, nil
	})
	if err != nil {
		return models.Trade{}, err
	}
	return closed, nil
}

// ClosedPatch edits a Closed trade. Nil fields are left unchanged. Setting
// ExitPrice or ManualPnL recomputes points and P&L; ExitDate alone only
// moves the exit.
type ClosedPatch struct {
	ExitDate   *time.Time
	ExitPrice  decimal.NullDecimal
	ManualPnL  decimal.NullDecimal
	AfterImage *string
	Note       *string
	Status     *models.TradeStatus
}

func (p ClosedPatch) recomputes() bool {
	return p.ExitPrice.Valid || p.ManualPnL.Valid
}

// EditClosed applies a patch to a Closed trade and moves the account's
// profit by the change in P&L.
func (e *Engine) EditClosed(ctx context.Context, who identity.Identity, tradeID string, patch ClosedPatch) (models.Trade, error) {
	var edited models.Trade
	_, err := e.runTrade(ctx, who, "edit_closed_trade", tradeID, func(b *Book, now time.Time) (outcome, error) {
		prev, ok := b.Get(tradeID)
		if !ok {
			return outcome{}, errors.NewNotFoundError("trade", tradeID)
		}
		if !prev.IsClosed() {
			return outcome{}, errors.NewConflictError("trade", tradeID, "trade is not closed")
		}
		t := prev.Clone()

		switch {
		case patch.recomputes():
			exit := *prev.ExitDate
			if patch.ExitDate != nil {
				exit = *patch.ExitDate
			}
			price := prev.ExitPrice
			if patch.ExitPrice.Valid {
				price = patch.ExitPrice
			}
			var err error
			if t, err = settle(t, exit, e.loc, price, patch.ManualPnL, b.account.Capital); err != nil {
				return outcome{}, err
			}
		case patch.ExitDate != nil:
			if err := checkExit(t, *patch.ExitDate, e.loc); err != nil {
				return outcome{}, err
			}
			exit := patch.ExitDate.UTC()
			t.ExitDate = &exit
		}

		if patch.Status != nil {
			s, ok := models.ParseTradeStatus(string(*patch.Status))
			if !ok {
				return outcome{}, errors.NewValidationError("status", *patch.Status, "must be Valid or Invalid")
			}
			if s == models.StatusInvalid && prev.Status != models.StatusInvalid {
				cand := risk.Candidate{TradeID: t.ID, EntryDate: t.EntryDate, RiskPercent: t.RiskPercent}
				if err := e.gate.AdmitCancellation(cand, b.Trades()); err != nil {
					return outcome{}, err
				}
			}
			t.Status = s
		}
		if patch.AfterImage != nil {
			after, err := imageURL("afterimage", *patch.AfterImage)
			if err != nil {
				return outcome{}, err
			}
			t.AfterImage = after
		}
		if patch.Note != nil {
			t.Note = strings.TrimSpace(*patch.Note)
		}
		t.UpdatedAt = later(now, t.UpdatedAt)

		delta := t.PnL().Sub(prev.PnL())
		acct := ledger.ApplyPnL(b.account, delta, now)
		writes := []Mutation{upsertTrade(t)}
		if !delta.IsZero() {
			writes = append(writes, saveAccount(acct))
		}
		ev := tradeEvent(audit.TradeEdited, who, t)
		ev.Details["pnl_delta"] = delta.String()
		edited = t
		return outcome{
			book:   b.withAccount(acct).Upsert(t),
			writes: writes,
			events: []audit.Event{ev},
		}, nil
	})
	if err != nil {
		return models.Trade{}, err
	}
	return edited, nil
}

// ActivePatch edits the plan of an Active trade. Nil pointers and invalid
// NullDecimals are left unchanged.
type ActivePatch struct {
	Symbol      *string
	Direction   *models.Direction
	EntryDate   *time.Time
	EntryTime   *string
	EntryPrice  decimal.NullDecimal
	StopLoss    decimal.NullDecimal
	TakeProfit  decimal.NullDecimal
	RiskPercent decimal.NullDecimal
	BeforeImage *string
	Session     *string
	Strategy    *string
}

func (p ActivePatch) apply(plan Plan) Plan {
	if p.Symbol != nil {
		plan.Symbol = *p.Symbol
	}
	if p.Direction != nil {
		plan.Direction = *p.Direction
	}
	if p.EntryDate != nil {
		plan.EntryDate = *p.EntryDate
	}
	if p.EntryTime != nil {
		plan.EntryTime = *p.EntryTime
	}
	if p.EntryPrice.Valid {
		plan.EntryPrice = p.EntryPrice
	}
	if p.StopLoss.Valid {
		plan.StopLoss = p.StopLoss
	}
	if p.TakeProfit.Valid {
		plan.TakeProfit = p.TakeProfit
	}
	if p.RiskPercent.Valid {
		plan.RiskPercent = p.RiskPercent
	}
	if p.BeforeImage != nil {
		plan.BeforeImage = *p.BeforeImage
	}
	if p.Session != nil {
		plan.Session = *p.Session
	}
	if p.Strategy != nil {
		plan.Strategy = *p.Strategy
	}
	return plan
}

// EditActive re-plans an Active trade. The trade is re-sized against the
// current capital and re-admitted by the gate without counting itself.
func (e *Engine) EditActive(ctx context.Context, who identity.Identity, tradeID string, patch ActivePatch) (models.Trade, error) {
	var edited models.Trade
	_, err := e.runTrade(ctx, who, "edit_active_trade", tradeID, func(b *Book, now time.Time) (outcome, error) {
		prev, ok := b.Get(tradeID)
		if !ok {
			return outcome{}, errors.NewNotFoundError("trade", tradeID)
		}
		if !prev.IsActive() {
			return outcome{}, errors.NewConflictError("trade", tradeID, "trade is closed")
		}

		p, inst, err := patch.apply(planOf(prev)).normalize()
		if err != nil {
			return outcome{}, err
		}
		res, err := size(p, inst, b.account)
		if err != nil {
			return outcome{}, err
		}
		cand := risk.Candidate{TradeID: prev.ID, EntryDate: p.EntryDate, RiskPercent: p.RiskPercent.Decimal}
		if err := e.gate.Admit(cand, b.Trades()); err != nil {
			return outcome{}, err
		}

		t := prev.Clone()
		t.Symbol = p.Symbol
		t.Direction = p.Direction
		t.EntryDate = p.EntryDate
		t.EntryTime = p.EntryTime
		t.EntryPrice = p.EntryPrice.Decimal
		t.StopLoss = p.StopLoss.Decimal
		t.TakeProfit = p.TakeProfit.Decimal
		t.RiskPercent = p.RiskPercent.Decimal
		t.LotSize = res.LotSize
		t.ValuePerPip = res.AdjustedValuePerPip
		t.Ratio = res.Ratio
		t.BeforeImage = p.BeforeImage
		t.Session = p.Session
		t.Strategy = p.Strategy
		t.UpdatedAt = later(now, t.UpdatedAt)

		edited = t
		return outcome{
			book:   b.Upsert(t),
			writes: []Mutation{upsertTrade(t)},
			events: []audit.Event{tradeEvent(audit.TradeEdited, who, t)},
		}, nil
	})
	if err != nil {
		return models.Trade{}, err
	}
	return edited, nil
}

// DeleteTrade removes a trade. A closed trade takes its P&L back out of the
// account's profit.
func (e *Engine) DeleteTrade(ctx context.Context, who identity.Identity, tradeID string) error {
	_, err := e.runTrade(ctx, who, "delete_trade", tradeID, func(b *Book, now time.Time) (outcome, error) {
		t, ok := b.Get(tradeID)
		if !ok {
			return outcome{}, errors.NewNotFoundError("trade", tradeID)
		}
		next := b.Delete(tradeID)
		writes := []Mutation{deleteTrade(tradeID)}
		if t.IsClosed() && !t.PnL().IsZero() {
			acct := ledger.ApplyPnL(b.account, t.PnL().Neg(), now)
			next = next.withAccount(acct)
			writes = append(writes, saveAccount(acct))
		}
		return outcome{
			book:   next,
			writes: writes,
			events: []audit.Event{tradeEvent(audit.TradeDeleted, who, t)},
		}, nil
	})
	return err
}

func tradeEvent(typ audit.EventType, who identity.Identity, t models.Trade) audit.Event {
	details := map[string]interface{}{
		"state":    string(t.State),
		"lot_size": t.LotSize.StringFixed(2),
		"risk":     t.RiskPercent.String(),
	}
	if t.IsClosed() {
		details["status"] = string(t.Status)
		details["pnl"] = t.PnL().String()
	}
	return audit.Event{
		EventType: typ,
		UserID:    who.UserID,
		TradeID:   t.ID,
		Symbol:    t.Symbol,
		Action:    string(t.Direction),
		Details:   details,
	}
}
