package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"trade-journal/internal/analytics"
	"trade-journal/internal/engine"
	"trade-journal/internal/errors"
	"trade-journal/internal/models"
	"trade-journal/pkg/utils"
)

func addReviewCommands(rootCmd *cobra.Command, app *App) {
	cmd := &cobra.Command{
		Use:   "review",
		Short: "Weekly and monthly reviews and aggregate statistics",
	}
	cmd.AddCommand(newPeriodReviewCmd(app, "week"))
	cmd.AddCommand(newPeriodReviewCmd(app, "month"))
	cmd.AddCommand(newSummaryCmd(app))
	cmd.AddCommand(newGroupsCmd(app))
	cmd.AddCommand(newDailyRiskCmd(app))
	rootCmd.AddCommand(cmd)
}

// loadJournal reads the account and its trades in entry order.
func (a *App) loadJournal(cmd *cobra.Command) (models.Account, []models.Trade, error) {
	who, err := a.identity(cmd)
	if err != nil {
		return models.Account{}, nil, err
	}
	var acct models.Account
	var trades []models.Trade
	err = a.run(cmd, func(ctx context.Context, e *engine.Engine) error {
		var err error
		if acct, err = e.Account(ctx, who); err != nil {
			return err
		}
		trades, err = e.Trades(ctx, who, engine.Query{Ascending: true})
		return err
	})
	return acct, trades, err
}

func newPeriodReviewCmd(app *App, unit string) *cobra.Command {
	example := "  journal review week\n  journal review week 2024-W23\n  journal review week 2024-06-05 --format yaml"
	if unit == "month" {
		example = "  journal review month\n  journal review month 2024-06"
	}
	return &cobra.Command{
		Use:     unit + " [period]",
		Short:   fmt.Sprintf("Review a %s: equity curve, daily rows and leaders", unit),
		Example: example,
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			now := app.now()
			period := analytics.WeekOf(now, app.Location)
			if unit == "month" {
				period = analytics.MonthOf(now, app.Location)
			}
			if len(args) == 1 {
				var err error
				if unit == "month" {
					period, err = analytics.ParseMonth(args[0], app.Location)
				} else {
					period, err = analytics.ParseWeek(args[0], app.Location)
				}
				if err != nil {
					return err
				}
			}
			acct, trades, err := app.loadJournal(cmd)
			if err != nil {
				return err
			}
			review := analytics.BuildReview(acct, trades, period)
			if output.IsStructured() {
				return output.Structured(review)
			}
			return output.Markdown(ReviewMarkdown(review, acct.Currency))
		},
	}
}

// ReviewMarkdown renders a review as a markdown report.
func ReviewMarkdown(r analytics.Review, currency string) string {
	money := func(d decimal.Decimal) string { return utils.FormatMoney(d, currency) }
	var b strings.Builder

	fmt.Fprintf(&b, "# Review %s\n\n", r.Period.Label)
	fmt.Fprintf(&b, "%s to %s\n\n", r.Period.Start.Format(models.DateLayout), r.Period.End.AddDate(0, 0, -1).Format(models.DateLayout))

	b.WriteString("| | |\n|---|---|\n")
	fmt.Fprintf(&b, "| Start equity | %s |\n", money(r.StartEquity))
	fmt.Fprintf(&b, "| P&L | %s (%s) |\n", utils.FormatPnL(r.TotalPnL, currency), utils.FormatPercent(r.Percent))
	fmt.Fprintf(&b, "| End equity | %s |\n", money(r.EndEquity))
	fmt.Fprintf(&b, "| Trades | %d: %d won, %d lost, %d breakeven |\n", r.Trades, r.Wins, r.Losses, r.Breakevens)
	fmt.Fprintf(&b, "| Target line | %s |\n", money(r.Target))
	fmt.Fprintf(&b, "| Drawdown line | %s |\n", money(r.Drawdown))
	b.WriteString("\n")

	if r.Trades == 0 {
		b.WriteString("_No trades closed in this period._\n")
		return b.String()
	}

	leaders := [][2]string{
		{"Most traded", r.MostTraded},
		{"Most profitable", r.MostProfitable},
		{"Most losing", r.MostLosing},
		{"Most breakeven", r.MostBreakeven},
	}
	b.WriteString("## Pairs\n\n")
	for _, l := range leaders {
		if l[1] != "" {
			fmt.Fprintf(&b, "- **%s:** %s\n", l[0], l[1])
		}
	}
	b.WriteString("\n")

	if len(r.Daily) > 0 {
		b.WriteString("## Days\n\n| Date | Trades | W/L/B | P&L | % |\n|---|---:|---|---:|---:|\n")
		for _, d := range r.Daily {
			fmt.Fprintf(&b, "| %s | %d | %d/%d/%d | %s | %s |\n", d.Date, d.Trades, d.Wins, d.Losses, d.Breakevens,
				utils.FormatPnL(d.PnL, currency), utils.FormatPercent(d.Percent))
		}
		b.WriteString("\n")
	}

	if len(r.Curve) > 0 {
		b.WriteString("## Equity curve\n\n| Point | P&L | Equity |\n|---|---:|---:|\n")
		for _, p := range r.Curve {
			fmt.Fprintf(&b, "| %s | %s | %s |\n", p.Label, utils.FormatPnL(p.PnL, currency), money(p.Equity))
		}
	}
	return b.String()
}

func newSummaryCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "summary",
		Short: "All-time performance of the selected account",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			acct, trades, err := app.loadJournal(cmd)
			if err != nil {
				return err
			}
			s := analytics.Summarize(acct, trades)
			if output.IsStructured() {
				return output.Structured(s)
			}
			c := acct.Currency
			output.Bold("%s: all time", acct.Name)
			output.Printf("  Trades:         %d (%d open, %d closed, %d cancelled)\n", s.Trades, s.Open, s.Closed, s.Cancelled)
			output.Printf("  Outcomes:       %s won, %s lost, %d breakeven\n",
				output.Green(fmt.Sprint(s.Wins)), output.Red(fmt.Sprint(s.Losses)), s.Breakevens)
			output.Printf("  Win Rate:       %s%%\n", s.WinRate.StringFixed(1))
			output.Printf("  Net P&L:        %s\n", output.FormatPnL(s.NetPnL, c))
			output.Printf("  Gross:          %s / %s\n", output.Green(utils.FormatMoney(s.GrossProfit, c)), output.Red(utils.FormatMoney(s.GrossLoss.Neg(), c)))
			pf := "-"
			if s.ProfitFactor.Valid {
				pf = s.ProfitFactor.Decimal.StringFixed(2)
			}
			output.Printf("  Profit Factor:  %s\n", pf)
			output.Printf("  Avg Win/Loss:   %s / %s\n", utils.FormatMoney(s.AverageWin, c), utils.FormatMoney(s.AverageLoss, c))
			output.Printf("  Largest:        %s / %s\n", utils.FormatMoney(s.LargestWin, c), utils.FormatMoney(s.LargestLoss, c))
			if p := s.Challenge; p != nil {
				state := output.Yellow("in progress")
				if p.Reached {
					state = output.Green("reached")
				}
				output.Printf("  Challenge:      %s of the way to %s, %s\n", utils.FormatPercent(p.Percent), utils.FormatMoney(p.TargetEquity, c), state)
			}
			return nil
		},
	}
}

func newGroupsCmd(app *App) *cobra.Command {
	var by string
	cmd := &cobra.Command{
		Use:   "groups",
		Short: "Trade count and P&L per pair, session, weekday or outcome",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			key, ok := analytics.ParseGroupKey(by)
			if !ok {
				return errors.NewValidationError("by", by, "must be pair, session, weekday or outcome")
			}
			acct, trades, err := app.loadJournal(cmd)
			if err != nil {
				return err
			}
			groups := analytics.GroupBy(trades, key, acct.Capital)
			if groups == nil {
				groups = []analytics.Group{}
			}
			if output.IsStructured() {
				return output.Structured(groups)
			}
			if len(groups) == 0 {
				output.Dim("No trades")
				return nil
			}
			table := NewTable(output, strings.ToUpper(string(key)), "TRADES", "CLOSED", "P&L")
			for _, g := range groups {
				table.AddRow(g.Key, fmt.Sprint(g.Trades), fmt.Sprint(g.Closed), output.FormatPnL(g.PnL, acct.Currency))
			}
			table.Render()
			return nil
		},
	}
	cmd.Flags().StringVar(&by, "by", string(analytics.ByPair), "pair, session, weekday or outcome")
	return cmd
}

func newDailyRiskCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "daily-risk",
		Short: "Risk committed by active trades per entry day",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			_, trades, err := app.loadJournal(cmd)
			if err != nil {
				return err
			}
			days := analytics.DailyRiskUtilization(trades)
			if days == nil {
				days = []analytics.DayRisk{}
			}
			if output.IsStructured() {
				return output.Structured(days)
			}
			if len(days) == 0 {
				output.Dim("No active trades")
				return nil
			}
			limit := app.Config.Limits().MaxDailyRisk
			table := NewTable(output, "DATE", "ACTIVE", "RISK")
			for _, d := range days {
				pct := d.Risk.String() + "%"
				if d.Risk.GreaterThan(limit) {
					pct = output.Red(pct)
				}
				table.AddRow(d.Date, fmt.Sprint(d.Active), pct)
			}
			table.Render()
			return nil
		},
	}
}
