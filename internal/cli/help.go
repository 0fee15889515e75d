package cli

import (
	"github.com/spf13/cobra"
)

type helpEntry struct {
	cmd  string
	desc string
}

var commandCategories = []struct {
	name     string
	commands []helpEntry
}{
	{
		name: "Accounts",
		commands: []helpEntry{
			{"account create --name <name>", "Create an account (--use to select it)"},
			{"account list", "List your accounts"},
			{"account use <id>", "Select the default account"},
			{"account show", "Balances and all-time stats"},
			{"account deposit <amount>", "Add capital"},
			{"account withdraw <amount>", "Take money out, profit first"},
			{"account transactions", "Ledger entries"},
		},
	},
	{
		name: "Trades",
		commands: []helpEntry{
			{"size <pair> <long|short>", "Lot size and risk check for a plan"},
			{"trade open <pair> <long|short>", "Record an active trade"},
			{"trade close <id>", "Close, stop out or cancel"},
			{"trade edit <id>", "Edit an active or closed trade"},
			{"trade list", "Filter and sort trades"},
			{"trade delete <id>", "Remove a trade"},
			{"risk", "Today's risk usage against the limits"},
		},
	},
	{
		name: "Reviews",
		commands: []helpEntry{
			{"review week [period]", "Weekly review"},
			{"review month [period]", "Monthly review"},
			{"review summary", "All-time statistics"},
			{"review groups --by session", "P&L per pair, session, weekday or outcome"},
			{"review daily-risk", "Committed risk per entry day"},
		},
	},
	{
		name: "Data",
		commands: []helpEntry{
			{"backup export [file]", "Export the account to JSON"},
			{"backup import <file>", "Replace the account from a backup"},
			{"instruments", "Supported symbols"},
		},
	},
	{
		name: "Server",
		commands: []helpEntry{
			{"serve", "JSON API over HTTP"},
			{"token", "Mint an API bearer token"},
		},
	},
	{
		name: "Utilities",
		commands: []helpEntry{
			{"config show/path/set/validate", "Configuration"},
			{"commands", "This list"},
			{"quickstart", "New user guide"},
			{"version", "Version information"},
		},
	},
}

func addHelpCommands(rootCmd *cobra.Command) {
	rootCmd.AddCommand(newCommandsCmd())
	rootCmd.AddCommand(newQuickstartCmd())
}

func newCommandsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "commands",
		Short: "List all commands by category",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			for _, cat := range commandCategories {
				output.Bold("%s", cat.name)
				for _, c := range cat.commands {
					output.Printf("  %-32s %s\n", output.Cyan(c.cmd), c.desc)
				}
				output.Println()
			}
			output.Dim("Use 'journal help <command>' for detailed help on any command")
			return nil
		},
	}
}

func newQuickstartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "quickstart",
		Short: "New user guide",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			output.Bold("Trade Journal - Quick Start")
			output.Println()

			steps := []struct {
				title string
				desc  string
				cmd   string
			}{
				{"Create an account", "The plan and target drive the challenge progress line.",
					`journal account create --name "FTMO 10k" --plan challenge --target 10 --use`},
				{"Fund it", "Capital is what risk percentages are measured against.",
					"journal account deposit 10000"},
				{"Size a trade", "Lots follow from the stop distance and the percent you risk.",
					"journal size EUR/USD long --entry 1.0850 --sl 1.0830 --risk 1"},
				{"Open it", "The daily limits are checked before anything is written.",
					"journal trade open EUR/USD long --entry 1.0850 --sl 1.0830 --tp 1.0900 --risk 1 --time 09:15 --session auto"},
				{"Close it", "P&L is computed from the lot size unless you pass --pnl.",
					"journal trade close <id> --exit 1.0900"},
				{"Review the week", "Equity curve, daily rows and best and worst pairs.",
					"journal review week"},
			}
			for i, s := range steps {
				output.Printf("%s Step %d: %s\n", output.Cyan("→"), i+1, output.BoldText(s.title))
				output.Printf("  %s\n", s.desc)
				output.Printf("  %s\n\n", output.DimText(s.cmd))
			}

			output.Bold("Files")
			output.Printf("  %s  settings, risk limits, database location\n", output.Cyan("config.toml"))
			output.Printf("  %s  trades and ledger (SQLite)\n", output.Cyan("journal.db"))
			output.Dim("  run 'journal config path' to see where they live")
			output.Println()

			output.Bold("Notes")
			output.Printf("  %s Cancelling an active trade counts against the daily cancel limit\n", output.Yellow("⚠"))
			output.Printf("  %s Withdrawals take profit before capital\n", output.Yellow("⚠"))
			return nil
		},
	}
}
