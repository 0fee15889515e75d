// Package analytics computes read-only performance views over a journal:
// trade classification, weekly and monthly reviews, equity curves and
// groupings. Every function is pure over the trades it is given.
package analytics

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"trade-journal/internal/errors"
	"trade-journal/internal/ledger"
	"trade-journal/internal/models"
	"trade-journal/internal/sizing"
)

var (
	hundred       = decimal.NewFromInt(100)
	targetFactor  = decimal.RequireFromString("1.10")
	drawdownRatio = decimal.RequireFromString("0.90")
)

// Outcome classifies a closed trade against its planned risk.
type Outcome string

const (
	Win       Outcome = "win"
	Loss      Outcome = "loss"
	Breakeven Outcome = "breakeven"
)

// Classify compares realized P&L with the planned risk amount
// (risk/100 * capital): below zero is a loss, up to the risk amount is
// breakeven, above it a win. Active trades classify as "".
func Classify(t models.Trade, capital decimal.Decimal) Outcome {
	if !t.IsClosed() {
		return ""
	}
	pnl := t.PnL()
	switch {
	case pnl.IsNegative():
		return Loss
	case pnl.LessThanOrEqual(sizing.RiskAmount(t.RiskPercent, capital)):
		return Breakeven
	}
	return Win
}

// Period is a half-open time range [Start, End).
type Period struct {
	Label string    `json:"label"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether t falls inside the period.
func (p Period) Contains(t time.Time) bool {
	return !t.Before(p.Start) && t.Before(p.End)
}

// Week returns ISO week w of year in loc. Weeks start on Monday; week 1 is
// the week containing January 4th.
func Week(year, week int, loc *time.Location) Period {
	if loc == nil {
		loc = time.UTC
	}
	jan4 := time.Date(year, time.January, 4, 0, 0, 0, 0, loc)
	offset := (int(jan4.Weekday()) + 6) % 7 // days since Monday
	start := jan4.AddDate(0, 0, -offset+(week-1)*7)
	return Period{
		Label: fmt.Sprintf("%04d-W%02d", year, week),
		Start: start,
		End:   start.AddDate(0, 0, 7),
	}
}

// WeekOf returns the ISO week containing t as seen in loc.
func WeekOf(t time.Time, loc *time.Location) Period {
	if loc == nil {
		loc = time.UTC
	}
	y, w := t.In(loc).ISOWeek()
	return Week(y, w, loc)
}

// Month returns the calendar month in loc.
func Month(year int, month time.Month, loc *time.Location) Period {
	if loc == nil {
		loc = time.UTC
	}
	start := time.Date(year, month, 1, 0, 0, 0, 0, loc)
	return Period{
		Label: start.Format("2006-01"),
		Start: start,
		End:   start.AddDate(0, 1, 0),
	}
}

// MonthOf returns the calendar month containing t as seen in loc.
func MonthOf(t time.Time, loc *time.Location) Period {
	if loc == nil {
		loc = time.UTC
	}
	l := t.In(loc)
	return Month(l.Year(), l.Month(), loc)
}

// ParseWeek reads an ISO week label such as "2024-W23", or a date inside
// the week.
func ParseWeek(s string, loc *time.Location) (Period, error) {
	s = strings.TrimSpace(s)
	var year, week int
	if _, err := fmt.Sscanf(strings.ToUpper(s), "%d-W%d", &year, &week); err == nil {
		if week < 1 || week > isoWeeks(year) {
			return Period{}, errors.NewValidationError("week", s, "is out of range")
		}
		return Week(year, week, loc), nil
	}
	d, err := time.ParseInLocation(models.DateLayout, s, locOrUTC(loc))
	if err != nil {
		return Period{}, errors.NewValidationError("week", s, "must look like 2024-W23 or 2024-06-05")
	}
	return WeekOf(d, loc), nil
}

// ParseMonth reads a month label such as "2024-06", or a date inside the
// month.
func ParseMonth(s string, loc *time.Location) (Period, error) {
	s = strings.TrimSpace(s)
	if m, err := time.ParseInLocation("2006-01", s, locOrUTC(loc)); err == nil {
		return Month(m.Year(), m.Month(), loc), nil
	}
	d, err := time.ParseInLocation(models.DateLayout, s, locOrUTC(loc))
	if err != nil {
		return Period{}, errors.NewValidationError("month", s, "must look like 2024-06 or 2024-06-05")
	}
	return MonthOf(d, loc), nil
}

// isoWeeks returns 52 or 53.
func isoWeeks(year int) int {
	_, w := time.Date(year, time.December, 28, 0, 0, 0, 0, time.UTC).ISOWeek()
	return w
}

func locOrUTC(loc *time.Location) *time.Location {
	if loc == nil {
		return time.UTC
	}
	return loc
}

// EquityPoint is one step of an equity curve.
type EquityPoint struct {
	Label   string          `json:"label"`
	TradeID string          `json:"trade_id,omitempty"`
	PnL     decimal.Decimal `json:"pnl"`
	Equity  decimal.Decimal `json:"equity"`
}

// Day aggregates the trades closed on one calendar date.
type Day struct {
	Date       string          `json:"date"`
	Trades     int             `json:"trades"`
	Wins       int             `json:"wins"`
	Losses     int             `json:"losses"`
	Breakevens int             `json:"breakevens"`
	PnL        decimal.Decimal `json:"pnl"`
	Percent    decimal.Decimal `json:"percent"`
}

// Review is the performance of one period.
type Review struct {
	Period      Period          `json:"period"`
	Capital     decimal.Decimal `json:"capital"`
	StartEquity decimal.Decimal `json:"start_equity"`
	TotalPnL    decimal.Decimal `json:"total_pnl"`
	EndEquity   decimal.Decimal `json:"end_equity"`
	Percent     decimal.Decimal `json:"percent"`

	Trades     int `json:"trades"`
	Wins       int `json:"wins"`
	Losses     int `json:"losses"`
	Breakevens int `json:"breakevens"`

	MostTraded     string `json:"most_traded,omitempty"`
	MostProfitable string `json:"most_profitable,omitempty"`
	MostLosing     string `json:"most_losing,omitempty"`
	MostBreakeven  string `json:"most_breakeven,omitempty"`

	Curve    []EquityPoint   `json:"curve"`
	Daily    []Day           `json:"daily"`
	Target   decimal.Decimal `json:"target"`
	Drawdown decimal.Decimal `json:"drawdown"`
}

// BuildReview computes the review of trades closed within p. The start
// equity is capital plus the P&L of everything closed before p.Start.
func BuildReview(acct models.Account, trades []models.Trade, p Period) Review {
	r := Review{
		Period:      p,
		Capital:     acct.Capital,
		StartEquity: acct.Capital,
		TotalPnL:    decimal.Zero,
	}

	var in []models.Trade
	for _, t := range trades {
		if !t.IsClosed() || t.ExitDate == nil {
			continue
		}
		switch {
		case t.ExitDate.Before(p.Start):
			r.StartEquity = r.StartEquity.Add(t.PnL())
		case p.Contains(*t.ExitDate):
			in = append(in, t)
		}
	}
	sortByEntry(in)

	r.Curve = []EquityPoint{{Label: "Start", PnL: decimal.Zero, Equity: r.StartEquity}}
	equity := r.StartEquity
	pairs := newTally()
	days := map[string]*Day{}
	var dayOrder []string

	for _, t := range in {
		pnl := t.PnL()
		outcome := Classify(t, acct.Capital)
		r.Trades++
		r.TotalPnL = r.TotalPnL.Add(pnl)
		switch outcome {
		case Win:
			r.Wins++
		case Loss:
			r.Losses++
		case Breakeven:
			r.Breakevens++
		}

		equity = equity.Add(pnl)
		r.Curve = append(r.Curve, EquityPoint{
			Label:   t.EntryDay() + " " + t.Symbol,
			TradeID: t.ID,
			PnL:     pnl,
			Equity:  equity,
		})
		pairs.add(t.Symbol, pnl, outcome)

		key := t.ExitDate.In(p.Start.Location()).Format(models.DateLayout)
		day, ok := days[key]
		if !ok {
			day = &Day{Date: key, PnL: decimal.Zero}
			days[key] = day
			dayOrder = append(dayOrder, key)
		}
		day.Trades++
		day.PnL = day.PnL.Add(pnl)
		switch outcome {
		case Win:
			day.Wins++
		case Loss:
			day.Losses++
		case Breakeven:
			day.Breakevens++
		}
	}

	sort.Strings(dayOrder)
	for _, k := range dayOrder {
		day := days[k]
		day.Percent = sizing.Percent(day.PnL, acct.Capital)
		r.Daily = append(r.Daily, *day)
	}

	r.EndEquity = r.StartEquity.Add(r.TotalPnL)
	r.Percent = sizing.Percent(r.TotalPnL, acct.Capital)
	r.MostTraded, r.MostProfitable, r.MostLosing, r.MostBreakeven = pairs.leaders()
	r.Target, r.Drawdown = referenceLines(r.StartEquity, r.EndEquity, acct.Capital)
	return r
}

// referenceLines returns the target and drawdown lines of the equity chart.
func referenceLines(start, end, capital decimal.Decimal) (target, drawdown decimal.Decimal) {
	if start.GreaterThanOrEqual(capital) {
		return start.Mul(targetFactor), start.Mul(drawdownRatio)
	}
	return capital, end
}

// tally accumulates per-pair figures in first-seen order.
type tally struct {
	order []string
	stats map[string]*pairStat
}

type pairStat struct {
	count      int
	pnl        decimal.Decimal
	breakevens int
}

func newTally() *tally {
	return &tally{stats: map[string]*pairStat{}}
}

func (t *tally) add(pair string, pnl decimal.Decimal, o Outcome) {
	s, ok := t.stats[pair]
	if !ok {
		s = &pairStat{pnl: decimal.Zero}
		t.stats[pair] = s
		t.order = append(t.order, pair)
	}
	s.count++
	s.pnl = s.pnl.Add(pnl)
	if o == Breakeven {
		s.breakevens++
	}
}

// leaders picks the extremes. Only a strictly better value replaces the
// current leader, so ties go to the pair seen first. Profitable and losing
// leaders need a positive or negative total; breakeven needs one breakeven.
func (t *tally) leaders() (traded, profitable, losing, breakeven string) {
	var (
		maxCount, maxBE int
		best, worst     decimal.Decimal
	)
	for _, pair := range t.order {
		s := t.stats[pair]
		if s.count > maxCount {
			maxCount, traded = s.count, pair
		}
		if s.pnl.IsPositive() && (profitable == "" || s.pnl.GreaterThan(best)) {
			best, profitable = s.pnl, pair
		}
		if s.pnl.IsNegative() && (losing == "" || s.pnl.LessThan(worst)) {
			worst, losing = s.pnl, pair
		}
		if s.breakevens > maxBE {
			maxBE, breakeven = s.breakevens, pair
		}
	}
	return traded, profitable, losing, breakeven
}

func sortByEntry(trades []models.Trade) {
	sort.SliceStable(trades, func(i, j int) bool {
		a, b := trades[i], trades[j]
		if !a.EntryDate.Equal(b.EntryDate) {
			return a.EntryDate.Before(b.EntryDate)
		}
		return a.EntryTime < b.EntryTime
	})
}

// DayRisk is the planned risk of Active trades entered on one date.
type DayRisk struct {
	Date   string          `json:"date"`
	Risk   decimal.Decimal `json:"risk"`
	Active int             `json:"active"`
}

// DailyRiskUtilization sums the planned risk of Active trades per entry
// date, oldest first.
func DailyRiskUtilization(trades []models.Trade) []DayRisk {
	byDay := map[string]*DayRisk{}
	var keys []string
	for _, t := range trades {
		if !t.IsActive() {
			continue
		}
		k := t.EntryDay()
		dr, ok := byDay[k]
		if !ok {
			dr = &DayRisk{Date: k, Risk: decimal.Zero}
			byDay[k] = dr
			keys = append(keys, k)
		}
		dr.Risk = dr.Risk.Add(t.RiskPercent)
		dr.Active++
	}
	sort.Strings(keys)
	out := make([]DayRisk, 0, len(keys))
	for _, k := range keys {
		out = append(out, *byDay[k])
	}
	return out
}

// GroupKey selects what GroupBy groups on.
type GroupKey string

const (
	ByPair    GroupKey = "pair"
	BySession GroupKey = "session"
	ByWeekday GroupKey = "weekday"
	ByOutcome GroupKey = "outcome"
)

// ParseGroupKey parses a grouping name.
func ParseGroupKey(s string) (GroupKey, bool) {
	switch GroupKey(s) {
	case ByPair, BySession, ByWeekday, ByOutcome:
		return GroupKey(s), true
	case "symbol":
		return ByPair, true
	case "day":
		return ByWeekday, true
	}
	return "", false
}

// Group is the frequency and realized P&L of one key.
type Group struct {
	Key    string          `json:"key"`
	Trades int             `json:"trades"`
	Closed int             `json:"closed"`
	PnL    decimal.Decimal `json:"pnl"`
}

// Unspecified labels trades with no session.
const Unspecified = "Unspecified"

// GroupBy counts trades and sums realized P&L per key. Weekdays are keyed
// on the entry date and listed Monday first; other keys keep first-seen
// order.
func GroupBy(trades []models.Trade, key GroupKey, capital decimal.Decimal) []Group {
	idx := map[string]int{}
	var out []Group
	for _, t := range trades {
		k := groupValue(t, key, capital)
		if k == "" {
			continue
		}
		i, ok := idx[k]
		if !ok {
			i = len(out)
			idx[k] = i
			out = append(out, Group{Key: k, PnL: decimal.Zero})
		}
		out[i].Trades++
		if t.IsClosed() {
			out[i].Closed++
			out[i].PnL = out[i].PnL.Add(t.PnL())
		}
	}
	if key == ByWeekday {
		sort.SliceStable(out, func(i, j int) bool {
			return weekdayIndex(out[i].Key) < weekdayIndex(out[j].Key)
		})
	}
	return out
}

func groupValue(t models.Trade, key GroupKey, capital decimal.Decimal) string {
	switch key {
	case ByPair:
		return t.Symbol
	case BySession:
		if t.Session == "" {
			return Unspecified
		}
		return t.Session
	case ByWeekday:
		return t.EntryDate.Weekday().String()
	case ByOutcome:
		return string(Classify(t, capital))
	}
	return ""
}

func weekdayIndex(name string) int {
	for i := 0; i < 7; i++ {
		wd := time.Weekday((i + 1) % 7) // Monday first
		if wd.String() == name {
			return i
		}
	}
	return 7
}

// Progress tracks a Challenge account toward its target equity.
type Progress struct {
	TargetPercent decimal.Decimal `json:"target_percent"`
	TargetEquity  decimal.Decimal `json:"target_equity"`
	Equity        decimal.Decimal `json:"equity"`
	Percent       decimal.Decimal `json:"percent"`
	Reached       bool            `json:"reached"`
}

// Summary is the all-time performance of an account.
type Summary struct {
	Trades       int                 `json:"trades"`
	Open         int                 `json:"open"`
	Closed       int                 `json:"closed"`
	Cancelled    int                 `json:"cancelled"`
	Wins         int                 `json:"wins"`
	Losses       int                 `json:"losses"`
	Breakevens   int                 `json:"breakevens"`
	WinRate      decimal.Decimal     `json:"win_rate"`
	NetPnL       decimal.Decimal     `json:"net_pnl"`
	GrossProfit  decimal.Decimal     `json:"gross_profit"`
	GrossLoss    decimal.Decimal     `json:"gross_loss"`
	ProfitFactor decimal.NullDecimal `json:"profit_factor"`
	AverageWin   decimal.Decimal     `json:"average_win"`
	AverageLoss  decimal.Decimal     `json:"average_loss"`
	LargestWin   decimal.Decimal     `json:"largest_win"`
	LargestLoss  decimal.Decimal     `json:"largest_loss"`
	Challenge    *Progress           `json:"challenge,omitempty"`
}

// Summarize computes the account summary. Win rate counts classified wins
// over closed trades; gross figures and averages use the sign of P&L.
// Profit factor is null when there are no losing trades.
func Summarize(acct models.Account, trades []models.Trade) Summary {
	s := Summary{
		WinRate:     decimal.Zero,
		NetPnL:      decimal.Zero,
		GrossProfit: decimal.Zero,
		GrossLoss:   decimal.Zero,
		AverageWin:  decimal.Zero,
		AverageLoss: decimal.Zero,
		LargestWin:  decimal.Zero,
		LargestLoss: decimal.Zero,
	}
	var winners, losers int64
	for _, t := range trades {
		s.Trades++
		if !t.IsClosed() {
			s.Open++
			continue
		}
		s.Closed++
		if t.IsCancellation() {
			s.Cancelled++
		}
		switch Classify(t, acct.Capital) {
		case Win:
			s.Wins++
		case Loss:
			s.Losses++
		case Breakeven:
			s.Breakevens++
		}

		pnl := t.PnL()
		s.NetPnL = s.NetPnL.Add(pnl)
		switch {
		case pnl.IsPositive():
			winners++
			s.GrossProfit = s.GrossProfit.Add(pnl)
			s.LargestWin = decimal.Max(s.LargestWin, pnl)
		case pnl.IsNegative():
			losers++
			s.GrossLoss = s.GrossLoss.Add(pnl.Abs())
			s.LargestLoss = decimal.Min(s.LargestLoss, pnl)
		}
	}

	if s.Closed > 0 {
		s.WinRate = decimal.NewFromInt(int64(s.Wins)).Mul(hundred).Div(decimal.NewFromInt(int64(s.Closed)))
	}
	if winners > 0 {
		s.AverageWin = s.GrossProfit.Div(decimal.NewFromInt(winners))
	}
	if losers > 0 {
		s.AverageLoss = s.GrossLoss.Neg().Div(decimal.NewFromInt(losers))
		s.ProfitFactor = decimal.NewNullDecimal(s.GrossProfit.Div(s.GrossLoss))
	}

	if target, ok := ledger.TargetEquity(acct); ok {
		p := &Progress{
			TargetPercent: acct.Target.Decimal,
			TargetEquity:  target,
			Equity:        acct.Equity,
			Percent:       decimal.Zero,
			Reached:       acct.Equity.GreaterThanOrEqual(target),
		}
		if goal := target.Sub(acct.Capital); goal.IsPositive() {
			p.Percent = acct.Equity.Sub(acct.Capital).Mul(hundred).Div(goal)
		}
		s.Challenge = p
	}
	return s
}
