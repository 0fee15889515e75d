package cli

import (
	"context"
	"io"
	"os"

	"github.com/spf13/cobra"

	"trade-journal/internal/backup"
	"trade-journal/internal/engine"
	"trade-journal/internal/errors"
	"trade-journal/internal/models"
)

func addBackupCommands(rootCmd *cobra.Command, app *App) {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Export or import an account as a single JSON file",
	}
	cmd.AddCommand(newExportCmd(app))
	cmd.AddCommand(newImportCmd(app))
	rootCmd.AddCommand(cmd)
}

func newExportCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:     "export [file]",
		Short:   "Write the selected account, its trades and ledger to a file",
		Example: "  journal backup export journal-2024-06.json\n  journal backup export - > copy.json",
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			who, err := app.identity(cmd)
			if err != nil {
				return err
			}
			var j models.Journal
			err = app.run(cmd, func(ctx context.Context, e *engine.Engine) error {
				var err error
				j, err = e.Snapshot(ctx, who)
				return err
			})
			if err != nil {
				return err
			}

			if len(args) == 0 || args[0] == "-" {
				return backup.Write(cmd.OutOrStdout(), j, app.now())
			}
			f, err := os.Create(args[0])
			if err != nil {
				return errors.Wrapf(err, "cannot create %s", args[0])
			}
			if err := backup.Write(f, j, app.now()); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return errors.Wrapf(err, "cannot write %s", args[0])
			}
			if output.IsStructured() {
				return output.Structured(map[string]interface{}{
					"file": args[0], "trades": len(j.Trades), "transactions": len(j.Transactions),
				})
			}
			output.Success("Exported %s: %d trades, %d ledger entries to %s", j.Account.Name, len(j.Trades), len(j.Transactions), args[0])
			return nil
		},
	}
}

func newImportCmd(app *App) *cobra.Command {
	var freshIDs bool
	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Replace the selected account's trades and ledger with a backup",
		Long: `Replace the trades and ledger entries of the selected account with the
contents of a backup file. The account keeps its own id and owner; its
balances are taken from the file.

Ids are global, so importing a copy next to the account it was exported
from needs --fresh-ids.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			who, err := app.identity(cmd)
			if err != nil {
				return err
			}

			var r io.Reader = cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return errors.Wrapf(err, "cannot open %s", args[0])
				}
				defer f.Close()
				r = f
			}
			j, meta, err := backup.Read(r)
			if err != nil {
				return err
			}

			var restored models.Journal
			err = app.run(cmd, func(ctx context.Context, e *engine.Engine) error {
				var err error
				restored, err = e.Restore(ctx, who, j, engine.RestoreOptions{FreshIDs: freshIDs})
				return err
			})
			if err != nil {
				return err
			}
			if output.IsStructured() {
				return output.Structured(restored)
			}
			output.Success("Restored %d trades and %d ledger entries into %s", len(restored.Trades), len(restored.Transactions), who.AccountID)
			if !meta.ExportedAt.IsZero() {
				output.Dim("  exported %s", meta.ExportedAt.In(app.Location).Format("2006-01-02 15:04 MST"))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&freshIDs, "fresh-ids", false, "assign new ids to every trade and ledger entry")
	return cmd
}
