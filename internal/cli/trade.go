package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"trade-journal/internal/engine"
	"trade-journal/internal/errors"
	"trade-journal/internal/market"
	"trade-journal/internal/models"
	"trade-journal/internal/store"
	"trade-journal/pkg/utils"
)

func addTradeCommands(rootCmd *cobra.Command, app *App) {
	cmd := &cobra.Command{
		Use:   "trade",
		Short: "Open, close and review journal trades",
	}
	cmd.AddCommand(newTradeOpenCmd(app))
	cmd.AddCommand(newTradeListCmd(app))
	cmd.AddCommand(newTradeShowCmd(app))
	cmd.AddCommand(newTradeCloseCmd(app))
	cmd.AddCommand(newTradeEditCmd(app))
	cmd.AddCommand(newTradeDeleteCmd(app))
	rootCmd.AddCommand(cmd)
	rootCmd.AddCommand(newSizeCmd(app))
	rootCmd.AddCommand(newRiskCmd(app))
}

// planFlags are the user-entered fields of a trade plan.
type planFlags struct {
	date, at, entry, sl, tp, risk string
	image, session, strategy      string
}

func (f *planFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.date, "date", "", "entry date, YYYY-MM-DD (default today)")
	cmd.Flags().StringVar(&f.at, "time", "", "entry time, HH:MM")
	cmd.Flags().StringVarP(&f.entry, "entry", "e", "", "entry price")
	cmd.Flags().StringVar(&f.sl, "sl", "", "stop loss price")
	cmd.Flags().StringVar(&f.tp, "tp", "", "take profit price")
	cmd.Flags().StringVarP(&f.risk, "risk", "r", "", "risk, percent of capital")
	cmd.Flags().StringVar(&f.image, "image", "", "chart URL before entry")
	cmd.Flags().StringVar(&f.session, "session", "", "market session, or 'auto' to derive it from the entry time")
	cmd.Flags().StringVar(&f.strategy, "strategy", "", "strategy label")
}

func (f *planFlags) plan(app *App, pair, side string) (engine.Plan, error) {
	plan := engine.Plan{
		Symbol:      pair,
		EntryTime:   strings.TrimSpace(f.at),
		BeforeImage: f.image,
		Strategy:    f.strategy,
	}
	dir, ok := models.ParseDirection(side)
	if !ok {
		return plan, errors.NewValidationError("type", side, "must be long or short")
	}
	plan.Direction = dir

	var err error
	dateInput := f.date
	if dateInput == "" {
		dateInput = "today"
	}
	if plan.EntryDate, err = parseDate("entry_date", dateInput, app.now(), app.Location); err != nil {
		return plan, err
	}
	if plan.EntryPrice, err = parseDecimal("entry_price", f.entry); err != nil {
		return plan, err
	}
	if plan.StopLoss, err = parseDecimal("sl", f.sl); err != nil {
		return plan, err
	}
	if plan.TakeProfit, err = parseDecimal("tp", f.tp); err != nil {
		return plan, err
	}
	if plan.RiskPercent, err = parseDecimal("risk", f.risk); err != nil {
		return plan, err
	}
	if plan.Session, err = sessionFor(f.session, plan.EntryDate, plan.EntryTime, app.Location); err != nil {
		return plan, err
	}
	return plan, nil
}

// sessionFor resolves "auto" to the session trading at the entry moment.
func sessionFor(session string, date time.Time, at string, loc *time.Location) (string, error) {
	if !strings.EqualFold(strings.TrimSpace(session), "auto") {
		return session, nil
	}
	if at == "" {
		return "", errors.NewValidationError("session", session, "auto needs --time")
	}
	clock, err := time.Parse(models.TimeLayout, at)
	if err != nil {
		return "", errors.NewValidationError("trade_time", at, "must be HH:MM")
	}
	moment := time.Date(date.Year(), date.Month(), date.Day(), clock.Hour(), clock.Minute(), 0, 0, loc)
	name, open := utils.SessionAt(moment)
	if !open {
		return "", errors.NewValidationError("session", session, "the market is closed at "+moment.UTC().Format(time.RFC3339))
	}
	return name, nil
}

func newTradeOpenCmd(app *App) *cobra.Command {
	var flags planFlags
	cmd := &cobra.Command{
		Use:   "open <pair> <long|short>",
		Short: "Record a new trade; lot size is derived from risk",
		Example: `  journal trade open EURUSD long --entry 1.0850 --sl 1.0820 --tp 1.0910 --risk 1
  journal trade open XAU/USD sell -e 2350 --sl 2356 --tp 2338 -r 0.5 --time 14:05 --session auto`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			who, err := app.identity(cmd)
			if err != nil {
				return err
			}
			plan, err := flags.plan(app, args[0], args[1])
			if err != nil {
				return err
			}
			var trade models.Trade
			var acct models.Account
			err = app.run(cmd, func(ctx context.Context, e *engine.Engine) error {
				var err error
				if trade, err = e.Open(ctx, who, plan); err != nil {
					return err
				}
				acct, err = e.Account(ctx, who)
				return err
			})
			if err != nil {
				return err
			}
			if output.IsStructured() {
				return output.Structured(store.TradeToRow(trade))
			}
			output.Success("✓ Trade %s opened", trade.ID)
			printTrade(output, trade, acct.Currency, app.Location)
			return nil
		},
	}
	flags.bind(cmd)
	return cmd
}

type listFlags struct {
	state, status, side, pnl, from, to, pair, sort string
	asc                                            bool
	limit                                          int
}

func (f *listFlags) query(app *App) (engine.Query, error) {
	var q engine.Query
	if f.state != "" {
		s, ok := models.ParseTradeState(f.state)
		if !ok {
			return q, errors.NewValidationError("state", f.state, "must be active or closed")
		}
		q.State = s
	}
	if f.status != "" {
		s, ok := models.ParseTradeStatus(f.status)
		if !ok {
			return q, errors.NewValidationError("status", f.status, "must be valid or invalid")
		}
		q.Status = s
	}
	if f.side != "" {
		d, ok := models.ParseDirection(f.side)
		if !ok {
			return q, errors.NewValidationError("type", f.side, "must be long or short")
		}
		q.Direction = d
	}
	switch engine.PnLSign(strings.ToLower(f.pnl)) {
	case "":
	case engine.PnLPositive, engine.PnLNegative, engine.PnLZero:
		q.PnLSign = engine.PnLSign(strings.ToLower(f.pnl))
	default:
		return q, errors.NewValidationError("pnl", f.pnl, "must be positive, negative or zero")
	}
	var err error
	if q.From, err = parseDate("from", f.from, app.now(), app.Location); err != nil {
		return q, err
	}
	if q.To, err = parseDate("to", f.to, app.now(), app.Location); err != nil {
		return q, err
	}
	if f.pair != "" {
		q.Symbol = market.Normalize(f.pair)
	}
	key, ok := engine.ParseSortKey(f.sort)
	if !ok {
		return q, errors.NewValidationError("sort", f.sort, "unknown sort key")
	}
	q.Sort = key
	q.Ascending = f.asc
	return q, nil
}

func newTradeListCmd(app *App) *cobra.Command {
	var flags listFlags
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List trades, newest first",
		Example: `  journal trade list --state active
  journal trade list --pair eurusd --pnl negative --from 2024-06-01 --sort pnl`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			who, err := app.identity(cmd)
			if err != nil {
				return err
			}
			q, err := flags.query(app)
			if err != nil {
				return err
			}
			var trades []models.Trade
			var acct models.Account
			err = app.run(cmd, func(ctx context.Context, e *engine.Engine) error {
				var err error
				if acct, err = e.Account(ctx, who); err != nil {
					return err
				}
				trades, err = e.Trades(ctx, who, q)
				return err
			})
			if err != nil {
				return err
			}
			if flags.limit > 0 && len(trades) > flags.limit {
				trades = trades[:flags.limit]
			}
			if output.IsStructured() {
				rows := make([]store.TradeRow, 0, len(trades))
				for _, t := range trades {
					rows = append(rows, store.TradeToRow(t))
				}
				return output.Structured(rows)
			}
			if len(trades) == 0 {
				output.Dim("No trades match")
				return nil
			}
			table := NewTable(output, "ID", "DATE", "PAIR", "TYPE", "LOTS", "RISK", "STATE", "EXIT", "POINTS", "P&L")
			for _, t := range trades {
				state := output.Yellow(string(t.State))
				pnl := "-"
				if t.IsClosed() {
					state = string(t.State)
					if t.IsCancellation() {
						state = output.DimText("Invalid")
					}
					pnl = output.FormatPnL(t.PnL(), acct.Currency)
				}
				table.AddRow(shortID(t.ID), t.EntryDay(), t.Symbol, string(t.Direction),
					utils.FormatLots(t.LotSize), t.RiskPercent.String()+"%", state,
					FormatExit(t.ExitDate, app.Location), FormatPoints(t.Points), pnl)
			}
			table.Render()
			return nil
		},
	}
	cmd.Flags().StringVar(&flags.state, "state", "", "active or closed")
	cmd.Flags().StringVar(&flags.status, "status", "", "valid or invalid")
	cmd.Flags().StringVar(&flags.side, "type", "", "long or short")
	cmd.Flags().StringVar(&flags.pnl, "pnl", "", "positive, negative or zero")
	cmd.Flags().StringVar(&flags.from, "from", "", "first entry date")
	cmd.Flags().StringVar(&flags.to, "to", "", "last entry date")
	cmd.Flags().StringVar(&flags.pair, "pair", "", "instrument")
	cmd.Flags().StringVar(&flags.sort, "sort", "", "entryDate, exitDate, pnl, pnlPercent, symbol or direction")
	cmd.Flags().BoolVar(&flags.asc, "asc", false, "ascending order")
	cmd.Flags().IntVarP(&flags.limit, "limit", "n", 0, "show at most n trades")
	return cmd
}

// shortID keeps listings narrow; commands accept the full id.
func shortID(id string) string {
	if len(id) > 8 && strings.Count(id, "-") == 4 {
		return id[:8]
	}
	return id
}

// resolveTrade accepts a full id or a unique prefix of one.
func resolveTrade(ctx context.Context, e *engine.Engine, app *App, cmd *cobra.Command, ref string) (models.Trade, error) {
	who, err := app.identity(cmd)
	if err != nil {
		return models.Trade{}, err
	}
	ref = strings.TrimSpace(ref)
	t, err := e.Trade(ctx, who, ref)
	if err == nil || !errors.Is(err, errors.ErrNotFound) || len(ref) < 4 {
		return t, err
	}
	all, lerr := e.Trades(ctx, who, engine.Query{})
	if lerr != nil {
		return models.Trade{}, lerr
	}
	var match []models.Trade
	for _, c := range all {
		if strings.HasPrefix(c.ID, ref) {
			match = append(match, c)
		}
	}
	switch len(match) {
	case 1:
		return match[0], nil
	case 0:
		return models.Trade{}, err
	}
	return models.Trade{}, errors.NewValidationError("trade_id", ref, "matches more than one trade")
}

func newTradeShowCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "show <trade-id>",
		Short: "Show one trade",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			who, err := app.identity(cmd)
			if err != nil {
				return err
			}
			var trade models.Trade
			var acct models.Account
			err = app.run(cmd, func(ctx context.Context, e *engine.Engine) error {
				var err error
				if trade, err = resolveTrade(ctx, e, app, cmd, args[0]); err != nil {
					return err
				}
				acct, err = e.Account(ctx, who)
				return err
			})
			if err != nil {
				return err
			}
			if output.IsStructured() {
				return output.Structured(store.TradeToRow(trade))
			}
			printTrade(output, trade, acct.Currency, app.Location)
			return nil
		},
	}
}

func printTrade(output *Output, t models.Trade, currency string, loc *time.Location) {
	side := output.Green(string(t.Direction))
	if t.Direction == models.DirectionShort {
		side = output.Red(string(t.Direction))
	}
	output.Bold("%s %s  %s", t.Symbol, side, output.DimText(t.ID))
	entered := t.EntryDay()
	if t.EntryTime != "" {
		entered += " " + t.EntryTime
	}
	output.Printf("  Entered:      %s\n", entered)
	output.Printf("  Entry:        %s\n", utils.FormatPrice(t.EntryPrice))
	output.Printf("  Stop / TP:    %s / %s (%s)\n", utils.FormatPrice(t.StopLoss), utils.FormatPrice(t.TakeProfit), utils.FormatRatio(t.Ratio))
	output.Printf("  Risk:         %s%% → %s lots at %s/pip\n", t.RiskPercent.String(), utils.FormatLots(t.LotSize), t.ValuePerPip.String())
	if t.Session != "" || t.Strategy != "" {
		output.Printf("  Setup:        %s\n", strings.Trim(t.Session+" · "+t.Strategy, " ·"))
	}
	if t.BeforeImage != "" {
		output.Printf("  Chart:        %s\n", t.BeforeImage)
	}
	if !t.IsClosed() {
		output.Printf("  State:        %s\n", output.Yellow(string(t.State)))
		return
	}
	status := string(t.Status)
	if t.IsCancellation() {
		status = output.DimText(status + " (cancelled)")
	}
	output.Printf("  State:        %s, %s\n", t.State, status)
	output.Printf("  Exit:         %s at %s\n", FormatExit(t.ExitDate, loc), FormatOptionalPrice(t.ExitPrice))
	pct := decimal.Zero
	if t.PnLPercent.Valid {
		pct = t.PnLPercent.Decimal
	}
	output.Printf("  Result:       %s points, %s (%s)\n", FormatPoints(t.Points),
		output.FormatPnL(t.PnL(), currency), output.FormatPercent(pct))
	if t.AfterImage != "" {
		output.Printf("  Exit Chart:   %s\n", t.AfterImage)
	}
	if t.Note != "" {
		output.Printf("  Note:         %s\n", t.Note)
	}
}

type closeFlags struct {
	date, price, pnl, status, note, image string
}

// bind registers the exit flags. Edit shares --image with the plan flags.
func (f *closeFlags) bind(cmd *cobra.Command, withImage bool) {
	cmd.Flags().StringVar(&f.date, "exit-date", "", "exit date, YYYY-MM-DD (default today)")
	cmd.Flags().StringVarP(&f.price, "exit", "x", "", "exit price")
	cmd.Flags().StringVar(&f.pnl, "pnl", "", "broker P&L in account currency; overrides the computed value")
	cmd.Flags().StringVar(&f.status, "status", "", "valid or invalid (invalid counts as a cancellation)")
	cmd.Flags().StringVar(&f.note, "note", "", "review note")
	if withImage {
		cmd.Flags().StringVar(&f.image, "image", "", "chart URL after exit")
	}
}

func newTradeCloseCmd(app *App) *cobra.Command {
	var flags closeFlags
	cmd := &cobra.Command{
		Use:   "close <trade-id>",
		Short: "Close an active trade and realize its P&L",
		Example: `  journal trade close 3f2a91c0 --exit 1.0910
  journal trade close 3f2a91c0 --exit 1.0845 --pnl -12.40 --note "moved SL too early"
  journal trade close 3f2a91c0 --status invalid`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			who, err := app.identity(cmd)
			if err != nil {
				return err
			}
			req := engine.CloseRequest{Note: flags.note, AfterImage: flags.image}
			if req.ExitDate, err = parseMoment("exit_date", flags.date, app.now(), app.Location); err != nil {
				return err
			}
			if req.ExitPrice, err = parseDecimal("exit_price", flags.price); err != nil {
				return err
			}
			if req.ManualPnL, err = parseDecimal("pnl_currency", flags.pnl); err != nil {
				return err
			}
			if flags.status != "" {
				s, ok := models.ParseTradeStatus(flags.status)
				if !ok {
					return errors.NewValidationError("status", flags.status, "must be valid or invalid")
				}
				req.Status = s
			}

			var trade models.Trade
			var acct models.Account
			err = app.run(cmd, func(ctx context.Context, e *engine.Engine) error {
				t, err := resolveTrade(ctx, e, app, cmd, args[0])
				if err != nil {
					return err
				}
				if trade, err = e.Close(ctx, who, t.ID, req); err != nil {
					return err
				}
				acct, err = e.Account(ctx, who)
				return err
			})
			if err != nil {
				return err
			}
			if output.IsStructured() {
				return output.Structured(store.TradeToRow(trade))
			}
			output.Success("✓ Trade %s closed: %s", shortID(trade.ID), output.FormatPnL(trade.PnL(), acct.Currency))
			output.Printf("  Equity now %s\n", utils.FormatMoney(acct.Equity, acct.Currency))
			return nil
		},
	}
	flags.bind(cmd, true)
	return cmd
}

func newTradeEditCmd(app *App) *cobra.Command {
	var plan planFlags
	var exit closeFlags
	var pair, side string
	cmd := &cobra.Command{
		Use:   "edit <trade-id>",
		Short: "Edit a trade; plan fields while active, exit fields once closed",
		Long: `Edit a trade. While it is active the plan flags apply and the trade is
re-sized and re-checked against the daily limits. Once closed only the exit
flags apply; --image then replaces the exit chart.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			who, err := app.identity(cmd)
			if err != nil {
				return err
			}
			var trade models.Trade
			err = app.run(cmd, func(ctx context.Context, e *engine.Engine) error {
				current, err := resolveTrade(ctx, e, app, cmd, args[0])
				if err != nil {
					return err
				}
				if current.IsActive() {
					patch, err := activePatch(cmd, app, &plan, pair, side, current)
					if err != nil {
						return err
					}
					trade, err = e.EditActive(ctx, who, current.ID, patch)
					return err
				}
				exit.image = plan.image
				patch, err := closedPatch(cmd, app, &exit)
				if err != nil {
					return err
				}
				trade, err = e.EditClosed(ctx, who, current.ID, patch)
				return err
			})
			if err != nil {
				return err
			}
			if output.IsStructured() {
				return output.Structured(store.TradeToRow(trade))
			}
			output.Success("✓ Trade %s updated", shortID(trade.ID))
			return nil
		},
	}
	plan.bind(cmd)
	exit.bind(cmd, false)
	cmd.Flags().StringVar(&pair, "pair", "", "instrument")
	cmd.Flags().StringVar(&side, "type", "", "long or short")
	return cmd
}

var (
	planFlagNames  = []string{"pair", "type", "date", "time", "entry", "sl", "tp", "risk", "session", "strategy"}
	closeFlagNames = []string{"exit-date", "exit", "pnl", "status", "note"}
)

func rejectFlags(cmd *cobra.Command, names []string, state models.TradeState) error {
	for _, n := range names {
		if cmd.Flags().Changed(n) {
			return errors.NewConflictError("trade", cmd.Flags().Arg(0),
				fmt.Sprintf("--%s cannot be edited while the trade is %s", n, state))
		}
	}
	return nil
}

func activePatch(cmd *cobra.Command, app *App, f *planFlags, pair, side string, current models.Trade) (engine.ActivePatch, error) {
	var p engine.ActivePatch
	if err := rejectFlags(cmd, closeFlagNames, models.StateActive); err != nil {
		return p, err
	}
	changed := cmd.Flags().Changed
	if changed("pair") {
		p.Symbol = &pair
	}
	if changed("type") {
		d, ok := models.ParseDirection(side)
		if !ok {
			return p, errors.NewValidationError("type", side, "must be long or short")
		}
		p.Direction = &d
	}
	if changed("date") {
		d, err := parseDate("entry_date", f.date, app.now(), app.Location)
		if err != nil {
			return p, err
		}
		p.EntryDate = &d
	}
	if changed("time") {
		p.EntryTime = &f.at
	}
	var err error
	if p.EntryPrice, err = parseDecimal("entry_price", f.entry); err != nil {
		return p, err
	}
	if p.StopLoss, err = parseDecimal("sl", f.sl); err != nil {
		return p, err
	}
	if p.TakeProfit, err = parseDecimal("tp", f.tp); err != nil {
		return p, err
	}
	if p.RiskPercent, err = parseDecimal("risk", f.risk); err != nil {
		return p, err
	}
	if changed("image") {
		p.BeforeImage = &f.image
	}
	if changed("session") {
		date, at := current.EntryDate, current.EntryTime
		if p.EntryDate != nil {
			date = *p.EntryDate
		}
		if p.EntryTime != nil {
			at = *p.EntryTime
		}
		s, err := sessionFor(f.session, date, at, app.Location)
		if err != nil {
			return p, err
		}
		p.Session = &s
	}
	if changed("strategy") {
		p.Strategy = &f.strategy
	}
	return p, nil
}

func closedPatch(cmd *cobra.Command, app *App, f *closeFlags) (engine.ClosedPatch, error) {
	var p engine.ClosedPatch
	if err := rejectFlags(cmd, planFlagNames, models.StateClosed); err != nil {
		return p, err
	}
	changed := cmd.Flags().Changed
	if changed("exit-date") {
		d, err := parseMoment("exit_date", f.date, app.now(), app.Location)
		if err != nil {
			return p, err
		}
		p.ExitDate = &d
	}
	var err error
	if p.ExitPrice, err = parseDecimal("exit_price", f.price); err != nil {
		return p, err
	}
	if p.ManualPnL, err = parseDecimal("pnl_currency", f.pnl); err != nil {
		return p, err
	}
	if changed("status") {
		s, ok := models.ParseTradeStatus(f.status)
		if !ok {
			return p, errors.NewValidationError("status", f.status, "must be valid or invalid")
		}
		p.Status = &s
	}
	if changed("note") {
		p.Note = &f.note
	}
	if changed("image") {
		p.AfterImage = &f.image
	}
	return p, nil
}

func newTradeDeleteCmd(app *App) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "delete <trade-id>",
		Short: "Delete a trade; a closed trade's P&L is reversed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			who, err := app.identity(cmd)
			if err != nil {
				return err
			}
			var deleted models.Trade
			err = app.run(cmd, func(ctx context.Context, e *engine.Engine) error {
				t, err := resolveTrade(ctx, e, app, cmd, args[0])
				if err != nil {
					return err
				}
				if !yes && !app.confirm(output, fmt.Sprintf("Delete %s %s from %s?", t.Symbol, t.Direction, t.EntryDay())) {
					return errors.NewValidationError("confirm", "", "deletion not confirmed")
				}
				deleted = t
				return e.DeleteTrade(ctx, who, t.ID)
			})
			if err != nil {
				return err
			}
			if output.IsStructured() {
				return output.Structured(map[string]string{"deleted": deleted.ID})
			}
			output.Success("✓ Trade %s deleted", shortID(deleted.ID))
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	return cmd
}

type sizeView struct {
	Pair                   string              `json:"pair"`
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
	Rejection              string              `json:"rejection,omitempty"`
}

func newSizeCmd(app *App) *cobra.Command {
	var flags planFlags
	cmd := &cobra.Command{
		Use:   "size <pair> <long|short>",
		Short: "Preview lot size and risk without recording a trade",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			who, err := app.identity(cmd)
			if err != nil {
				return err
			}
			plan, err := flags.plan(app, args[0], args[1])
			if err != nil {
				return err
			}
			var preview engine.Preview
			var acct models.Account
			err = app.run(cmd, func(ctx context.Context, e *engine.Engine) error {
				var err error
				if acct, err = e.Account(ctx, who); err != nil {
					return err
				}
				preview, err = e.Preview(ctx, who, plan)
				return err
			})
			if err != nil {
				return err
			}
			r := preview.Sizing
			view := sizeView{
				Pair:                   market.Normalize(plan.Symbol),
				StopPoints:             r.StopPoints,
				TPPoints:               r.TPPoints,
				Ratio:                  r.Ratio,
				ValuePerPip:            r.AdjustedValuePerPip,
				LotSize:                r.LotSize,
				EstimatedRisk:          r.EstimatedRisk,
				EstimatedProfit:        r.EstimatedProfit,
				EstimatedRiskPercent:   r.EstimatedRiskPercent,
				EstimatedProfitPercent: r.EstimatedProfitPercent,
			}
			if plan.RiskPercent.Valid {
				admitted := preview.Gate.Admitted
				view.Admitted = &admitted
				if preview.Gate.Err != nil {
					view.Rejection = preview.Gate.Err.Error()
				}
			}
			if output.IsStructured() {
				return output.Structured(view)
			}
			output.Bold("%s %s", view.Pair, plan.Direction)
			output.Printf("  Stop:         %d points\n", view.StopPoints)
			output.Printf("  Target:       %d points (%s)\n", view.TPPoints, utils.FormatRatio(view.Ratio))
			output.Printf("  Value/Pip:    %s\n", view.ValuePerPip.String())
			output.Printf("  Lot Size:     %s\n", output.BoldText(utils.FormatLots(view.LotSize)))
			output.Printf("  At Risk:      %s (%s%%)\n", utils.FormatMoney(view.EstimatedRisk, acct.Currency), view.EstimatedRiskPercent.StringFixed(2))
			output.Printf("  To Gain:      %s (%s%%)\n", utils.FormatMoney(view.EstimatedProfit, acct.Currency), view.EstimatedProfitPercent.StringFixed(2))
			if view.Admitted != nil {
				if *view.Admitted {
					output.Success("✓ Within today's limits")
				} else {
					output.Warning("✗ %s", view.Rejection)
				}
			}
			return nil
		},
	}
	flags.bind(cmd)
	return cmd
}

type usageView struct {
	Date            string          `json:"date"`
	RiskPercent     decimal.Decimal `json:"risk_percent"`
	MaxDailyRisk    decimal.Decimal `json:"max_daily_risk"`
	Trades          int             `json:"trades"`
	MaxDailyTrades  int             `json:"max_daily_trades"`
	Active          int             `json:"active"`
	MaxDailyActive  int             `json:"max_daily_active"`
	Cancels         int             `json:"cancels"`
	MaxDailyCancels int             `json:"max_daily_cancels"`
	MaxTradeRisk    decimal.Decimal `json:"max_trade_risk"`
}

func newRiskCmd(app *App) *cobra.Command {
	var date string
	cmd := &cobra.Command{
		Use:   "risk",
		Short: "Show today's use of the daily limits",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			who, err := app.identity(cmd)
			if err != nil {
				return err
			}
			if date == "" {
				date = "today"
			}
			day, err := parseDate("date", date, app.now(), app.Location)
			if err != nil {
				return err
			}
			var view usageView
			err = app.run(cmd, func(ctx context.Context, e *engine.Engine) error {
				u, err := e.Utilization(ctx, who, day)
				if err != nil {
					return err
				}
				l := e.Limits()
				view = usageView{
					Date:            FormatDate(day),
					RiskPercent:     u.RiskPercent,
					MaxDailyRisk:    l.MaxDailyRisk,
					Trades:          u.Trades,
					MaxDailyTrades:  l.MaxDailyTrades,
					Active:          u.Active,
					MaxDailyActive:  l.MaxDailyActive,
					Cancels:         u.Cancels,
					MaxDailyCancels: l.MaxDailyCancels,
					MaxTradeRisk:    l.MaxTradeRisk,
				}
				return nil
			})
			if err != nil {
				return err
			}
			if output.IsStructured() {
				return output.Structured(view)
			}
			output.Bold("Limits for %s", view.Date)
			table := NewTable(output, "LIMIT", "USED", "CAP")
			table.AddRow("Risk", view.RiskPercent.String()+"%", view.MaxDailyRisk.String()+"%")
			table.AddRow("Trades", fmt.Sprint(view.Trades), fmt.Sprint(view.MaxDailyTrades))
			table.AddRow("Active", fmt.Sprint(view.Active), fmt.Sprint(view.MaxDailyActive))
			table.AddRow("Cancels", fmt.Sprint(view.Cancels), fmt.Sprint(view.MaxDailyCancels))
			table.Render()
			output.Dim("Per-trade risk cap: %s%%", view.MaxTradeRisk.String())
			return nil
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "day to report, YYYY-MM-DD (default today)")
	return cmd
}
