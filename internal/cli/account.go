package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"trade-journal/internal/analytics"
	"trade-journal/internal/config"
	"trade-journal/internal/engine"
	"trade-journal/internal/errors"
	"trade-journal/internal/ledger"
	"trade-journal/internal/models"
	"trade-journal/internal/store"
	"trade-journal/pkg/utils"
)

func addAccountCommands(rootCmd *cobra.Command, app *App) {
	cmd := &cobra.Command{
		Use:     "account",
		Aliases: []string{"acct"},
		Short:   "Manage accounts, deposits and withdrawals",
	}
	cmd.AddCommand(newAccountCreateCmd(app))
	cmd.AddCommand(newAccountListCmd(app))
	cmd.AddCommand(newAccountShowCmd(app))
	cmd.AddCommand(newAccountUseCmd(app))
	cmd.AddCommand(newAccountUpdateCmd(app))
	cmd.AddCommand(newAccountDeleteCmd(app))
	cmd.AddCommand(newMovementCmd(app, false))
	cmd.AddCommand(newMovementCmd(app, true))
	cmd.AddCommand(newTransactionsCmd(app))
	cmd.AddCommand(newRecomputeCmd(app))
	rootCmd.AddCommand(cmd)
}

// accountFlags binds the editable account settings to a command.
type accountFlags struct {
	name, plan, tier, currency, target string
	deposits, withdrawals              bool
}

func (f *accountFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.name, "name", "", "account name")
	cmd.Flags().StringVar(&f.plan, "plan", "", "Normal or Challenge")
	cmd.Flags().StringVar(&f.tier, "type", "", "lot convention: Standard, Mini or Micro")
	cmd.Flags().StringVar(&f.currency, "currency", "", "ISO currency code (default USD)")
	cmd.Flags().StringVar(&f.target, "target", "", "Challenge target, percent of capital")
	cmd.Flags().BoolVar(&f.deposits, "deposits", true, "allow deposits")
	cmd.Flags().BoolVar(&f.withdrawals, "withdrawals", true, "allow withdrawals (never on Challenge)")
}

// patch collects only the flags the user set.
func (f *accountFlags) patch(cmd *cobra.Command) (ledger.AccountPatch, error) {
	var p ledger.AccountPatch
	changed := cmd.Flags().Changed
	if changed("name") {
		p.Name = &f.name
	}
	if changed("plan") {
		plan, ok := models.ParseAccountPlan(f.plan)
		if !ok {
			return p, errors.NewValidationError("plan", f.plan, "must be Normal or Challenge")
		}
		p.Plan = &plan
	}
	if changed("type") {
		tier, ok := models.ParseAccountTier(f.tier)
		if !ok {
			return p, errors.NewValidationError("type", f.tier, "must be Standard, Mini or Micro")
		}
		p.Tier = &tier
	}
	if changed("currency") {
		p.Currency = &f.currency
	}
	if changed("target") {
		target, err := parseDecimal("target", f.target)
		if err != nil {
			return p, err
		}
		p.Target = &target
	}
	if changed("deposits") {
		p.DepositEnabled = &f.deposits
	}
	if changed("withdrawals") {
		p.WithdrawEnabled = &f.withdrawals
	}
	return p, nil
}

func (f *accountFlags) params(cmd *cobra.Command) (ledger.AccountParams, error) {
	patch, err := f.patch(cmd)
	if err != nil {
		return ledger.AccountParams{}, err
	}
	p := ledger.AccountParams{
		Name:            f.name,
		Plan:            models.PlanNormal,
		Tier:            models.TierStandard,
		Currency:        f.currency,
		DepositEnabled:  f.deposits,
		WithdrawEnabled: f.withdrawals,
	}
	if patch.Plan != nil {
		p.Plan = *patch.Plan
	}
	if patch.Tier != nil {
		p.Tier = *patch.Tier
	}
	if patch.Target != nil {
		p.Target = *patch.Target
	}
	return p, nil
}

func newAccountCreateCmd(app *App) *cobra.Command {
	var flags accountFlags
	var use bool
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an empty account",
		Example: `  journal account create --name "FTMO 100k" --plan challenge --target 10 --use
  journal account create --name Personal --type mini --currency EUR`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			params, err := flags.params(cmd)
			if err != nil {
				return err
			}
			var acct models.Account
			err = app.run(cmd, func(ctx context.Context, e *engine.Engine) error {
				var err error
				acct, err = e.CreateAccount(ctx, app.Config.Journal.UserID, params)
				return err
			})
			if err != nil {
				return err
			}
			if use {
				if err := config.Set(app.Config.Dir, "journal.account_id", acct.ID); err != nil {
					return err
				}
			}
			if output.IsStructured() {
				return output.Structured(store.AccountToRow(acct))
			}
			output.Success("✓ Account %s created", acct.ID)
			if use {
				output.Dim("Selected as the default account")
			} else {
				output.Dim("Select it with: journal account use %s", acct.ID)
			}
			return nil
		},
	}
	flags.bind(cmd)
	cmd.Flags().BoolVar(&use, "use", false, "make it the default account")
	return cmd
}

func newAccountListCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List your accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			var accts []models.Account
			err := app.run(cmd, func(ctx context.Context, e *engine.Engine) error {
				var err error
				accts, err = e.ListAccounts(ctx, app.Config.Journal.UserID)
				return err
			})
			if err != nil {
				return err
			}
			if output.IsStructured() {
				rows := make([]store.AccountRow, 0, len(accts))
				for _, a := range accts {
					rows = append(rows, store.AccountToRow(a))
				}
				return output.Structured(rows)
			}
			if len(accts) == 0 {
				output.Dim("No accounts yet. Create one with: journal account create --name <name>")
				return nil
			}
			current := app.Config.Journal.AccountID
			table := NewTable(output, "", "ID", "NAME", "PLAN", "TYPE", "CAPITAL", "PROFIT", "EQUITY")
			for _, a := range accts {
				mark := ""
				if a.ID == current {
					mark = "*"
				}
				table.AddRow(mark, a.ID, a.Name, string(a.Plan), string(a.Tier),
					utils.FormatMoney(a.Capital, a.Currency),
					output.FormatPnL(a.Profit, a.Currency),
					utils.FormatMoney(a.Equity, a.Currency))
			}
			table.Render()
			return nil
		},
	}
}

func newAccountShowCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the selected account",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			who, err := app.identity(cmd)
			if err != nil {
				return err
			}
			var acct models.Account
			var trades []models.Trade
			err = app.run(cmd, func(ctx context.Context, e *engine.Engine) error {
				var err error
				if acct, err = e.Account(ctx, who); err != nil {
					return err
				}
				trades, err = e.Trades(ctx, who, engine.Query{Ascending: true})
				return err
			})
			if err != nil {
				return err
			}
			summary := analytics.Summarize(acct, trades)
			if output.IsStructured() {
				return output.Structured(struct {
					Account store.AccountRow  `json:"account"`
					Summary analytics.Summary `json:"summary"`
				}{store.AccountToRow(acct), summary})
			}
			printAccount(output, acct, summary)
			return nil
		},
	}
}

func printAccount(output *Output, a models.Account, s analytics.Summary) {
	output.Bold("%s  %s", a.Name, output.DimText(a.ID))
	output.Printf("  Plan:         %s (%s lots, %s)\n", a.Plan, a.Tier, a.Currency)
	output.Printf("  Capital:      %s\n", utils.FormatMoney(a.Capital, a.Currency))
	output.Printf("  Profit:       %s\n", output.FormatPnL(a.Profit, a.Currency))
	output.Printf("  Equity:       %s\n", utils.FormatMoney(a.Equity, a.Currency))
	output.Printf("  Deposits:     %s\n", enabled(output, a.DepositEnabled))
	output.Printf("  Withdrawals:  %s\n", enabled(output, a.WithdrawEnabled))
	if p := s.Challenge; p != nil {
		status := output.Yellow("in progress")
		if p.Reached {
			status = output.Green("reached")
		}
		output.Printf("  Target:       %s%% → %s (%s of goal, %s)\n",
			p.TargetPercent.String(), utils.FormatMoney(p.TargetEquity, a.Currency),
			utils.FormatPercent(p.Percent), status)
	}
	output.Println()
	output.Printf("  Trades:       %d (%d open, %d closed, %d cancelled)\n", s.Trades, s.Open, s.Closed, s.Cancelled)
	output.Printf("  Win Rate:     %s%%\n", s.WinRate.StringFixed(1))
	output.Printf("  Net P&L:      %s\n", output.FormatPnL(s.NetPnL, a.Currency))
}

func enabled(output *Output, on bool) string {
	if on {
		return output.Green("enabled")
	}
	return output.DimText("disabled")
}

func newAccountUseCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "use <account-id>",
		Short: "Select the default account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			who := app.Config.Identity().WithAccount(args[0])
			var acct models.Account
			err := app.run(cmd, func(ctx context.Context, e *engine.Engine) error {
				var err error
				acct, err = e.Account(ctx, who)
				return err
			})
			if err != nil {
				return err
			}
			if err := config.Set(app.Config.Dir, "journal.account_id", acct.ID); err != nil {
				return err
			}
			if output.IsStructured() {
				return output.Structured(store.AccountToRow(acct))
			}
			output.Success("✓ Using %s (%s)", acct.Name, acct.ID)
			return nil
		},
	}
}

func newAccountUpdateCmd(app *App) *cobra.Command {
	var flags accountFlags
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Change the selected account's settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			who, err := app.identity(cmd)
			if err != nil {
				return err
			}
			patch, err := flags.patch(cmd)
			if err != nil {
				return err
			}
			var acct models.Account
			err = app.run(cmd, func(ctx context.Context, e *engine.Engine) error {
				var err error
				acct, err = e.UpdateAccount(ctx, who, patch)
				return err
			})
			if err != nil {
				return err
			}
			if output.IsStructured() {
				return output.Structured(store.AccountToRow(acct))
			}
			output.Success("✓ Account %s updated", acct.ID)
			return nil
		},
	}
	flags.bind(cmd)
	return cmd
}

func newAccountDeleteCmd(app *App) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete the selected account with its trades and ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			who, err := app.identity(cmd)
			if err != nil {
				return err
			}
			if !yes && !app.confirm(output, fmt.Sprintf("Delete account %s and everything in it?", who.AccountID)) {
				return errors.NewValidationError("confirm", "", "deletion not confirmed")
			}
			err = app.run(cmd, func(ctx context.Context, e *engine.Engine) error {
				return e.DeleteAccount(ctx, who)
			})
			if err != nil {
				return err
			}
			if who.AccountID == app.Config.Journal.AccountID {
				if err := config.Set(app.Config.Dir, "journal.account_id", ""); err != nil {
					return err
				}
			}
			if output.IsStructured() {
				return output.Structured(map[string]string{"deleted": who.AccountID})
			}
			output.Success("✓ Account %s deleted", who.AccountID)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	return cmd
}

func newMovementCmd(app *App, withdraw bool) *cobra.Command {
	var date, description string
	var yes bool
	use, short := "deposit <amount>", "Add capital to the selected account"
	if withdraw {
		use, short = "withdraw <amount>", "Take money out, profit first"
	}
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			who, err := app.identity(cmd)
			if err != nil {
				return err
			}
			amount, err := parseDecimal("amount", args[0])
			if err != nil {
				return err
			}
			if !amount.Valid {
				return errors.NewValidationError("amount", args[0], "is required")
			}
			when, err := parseMoment("date", date, app.now(), app.Location)
			if err != nil {
				return err
			}
			m := engine.Movement{Amount: amount.Decimal, Date: when, Description: description}

			var tx models.Transaction
			var acct models.Account
			err = app.run(cmd, func(ctx context.Context, e *engine.Engine) error {
				before, err := e.Account(ctx, who)
				if err != nil {
					return err
				}
				if withdraw {
					confirm := func(_ decimal.Decimal, split ledger.Split) bool {
						if yes {
							return true
						}
						return app.confirm(output, fmt.Sprintf("Profit covers %s; take %s from capital?",
							utils.FormatMoney(split.FromProfit, before.Currency),
							utils.FormatMoney(split.FromCapital, before.Currency)))
					}
					tx, err = e.Withdraw(ctx, who, m, confirm)
				} else {
					tx, err = e.Deposit(ctx, who, m)
				}
				if err != nil {
					return err
				}
				acct, err = e.Account(ctx, who)
				return err
			})
			if err != nil {
				return err
			}
			if output.IsStructured() {
				return output.Structured(struct {
					Transaction store.TransactionRow `json:"transaction"`
					Account     store.AccountRow     `json:"account"`
				}{store.TransactionToRow(tx), store.AccountToRow(acct)})
			}
			output.Success("✓ %s of %s recorded", tx.Kind, utils.FormatMoney(tx.Amount, acct.Currency))
			if withdraw && !tx.FromCapital.IsZero() {
				output.Dim("  %s from profit, %s from capital",
					utils.FormatMoney(tx.FromProfit, acct.Currency), utils.FormatMoney(tx.FromCapital, acct.Currency))
			}
			output.Printf("  Capital %s  Profit %s  Equity %s\n",
				utils.FormatMoney(acct.Capital, acct.Currency),
				output.FormatPnL(acct.Profit, acct.Currency),
				utils.FormatMoney(acct.Equity, acct.Currency))
			return nil
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "value date, YYYY-MM-DD (default today)")
	cmd.Flags().StringVarP(&description, "description", "d", "", "ledger note")
	if withdraw {
		cmd.Flags().BoolVarP(&yes, "yes", "y", false, "allow drawing on capital without asking")
	}
	return cmd
}

func newTransactionsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "transactions",
		Aliases: []string{"tx", "ledger"},
		Short:   "List deposits and withdrawals",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			who, err := app.identity(cmd)
			if err != nil {
				return err
			}
			var txs []models.Transaction
			var acct models.Account
			err = app.run(cmd, func(ctx context.Context, e *engine.Engine) error {
				var err error
				if acct, err = e.Account(ctx, who); err != nil {
					return err
				}
				txs, err = e.Transactions(ctx, who)
				return err
			})
			if err != nil {
				return err
			}
			if output.IsStructured() {
				rows := make([]store.TransactionRow, 0, len(txs))
				for _, tx := range txs {
					rows = append(rows, store.TransactionToRow(tx))
				}
				return output.Structured(rows)
			}
			if len(txs) == 0 {
				output.Dim("No transactions")
				return nil
			}
			table := NewTable(output, "ID", "DATE", "TYPE", "AMOUNT", "FROM PROFIT", "FROM CAPITAL", "DESCRIPTION")
			for _, tx := range txs {
				amount := utils.FormatMoney(tx.Amount, acct.Currency)
				if tx.Kind == models.TransactionWithdraw {
					amount = output.Red("-" + amount)
				} else {
					amount = output.Green("+" + amount)
				}
				split := []string{"-", "-"}
				if tx.Kind == models.TransactionWithdraw {
					split = []string{utils.FormatMoney(tx.FromProfit, acct.Currency), utils.FormatMoney(tx.FromCapital, acct.Currency)}
				}
				table.AddRow(tx.ID, FormatDate(tx.Date), string(tx.Kind), amount, split[0], split[1],
					TruncateString(tx.Description, 32))
			}
			table.Render()
			return nil
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <transaction-id>",
		Short: "Remove a ledger entry and reverse its effect",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			who, err := app.identity(cmd)
			if err != nil {
				return err
			}
			var acct models.Account
			err = app.run(cmd, func(ctx context.Context, e *engine.Engine) error {
				var err error
				acct, err = e.DeleteTransaction(ctx, who, strings.TrimSpace(args[0]))
				return err
			})
			if err != nil {
				return err
			}
			if output.IsStructured() {
				return output.Structured(store.AccountToRow(acct))
			}
			output.Success("✓ Transaction %s reversed", args[0])
			output.Printf("  Capital %s  Profit %s  Equity %s\n",
				utils.FormatMoney(acct.Capital, acct.Currency),
				output.FormatPnL(acct.Profit, acct.Currency),
				utils.FormatMoney(acct.Equity, acct.Currency))
			return nil
		},
	})
	return cmd
}

func newRecomputeCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "recompute",
		Short: "Reset equity to capital plus profit",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			who, err := app.identity(cmd)
			if err != nil {
				return err
			}
			var acct models.Account
			err = app.run(cmd, func(ctx context.Context, e *engine.Engine) error {
				var err error
				acct, err = e.RecomputeEquity(ctx, who)
				return err
			})
			if err != nil {
				return err
			}
			if output.IsStructured() {
				return output.Structured(store.AccountToRow(acct))
			}
			output.Success("✓ Equity is %s", utils.FormatMoney(acct.Equity, acct.Currency))
			return nil
		},
	}
}
