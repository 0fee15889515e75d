package cli

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"trade-journal/internal/api"
	"trade-journal/internal/errors"
	"trade-journal/internal/market"
)

func addServerCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newServeCmd(app))
	rootCmd.AddCommand(newTokenCmd(app))
}

func newServeCmd(app *App) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the journal over HTTP",
		Long: `Serve the journal as a JSON API. Every request needs a bearer token
minted with 'journal token'; the X-Account-ID header selects the account
when the token carries none.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			tokens, err := app.Config.Tokens()
			if err != nil {
				return err
			}
			if addr == "" {
				addr = app.Config.Server.Addr
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			e, err := app.engine(ctx)
			if err != nil {
				return err
			}

			srv := &http.Server{
				Addr: addr,
				Handler: api.NewRouter(api.Deps{
					Engine:   e,
					Tokens:   tokens,
					Logger:   app.Logger,
					Location: app.Location,
					Clock:    app.clock,
				}),
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				app.Logger.Info().Str("addr", addr).Msg("api listening")
				errCh <- srv.ListenAndServe()
			}()
			output.Info("Listening on %s (Ctrl+C to stop)", addr)

			select {
			case err := <-errCh:
				if err != nil && !errors.Is(err, http.ErrServerClosed) {
					return errors.Wrap(err, "server failed")
				}
				return nil
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			app.Logger.Info().Msg("shutting down api")
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return errors.Wrap(err, "shutdown")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default: server.addr)")
	return cmd
}

func newTokenCmd(app *App) *cobra.Command {
	var anyAccount bool
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an API bearer token for the configured user",
		Long: `Mint a bearer token for the API. The token is bound to the selected
account unless --any-account is given, in which case clients pick the
account with the X-Account-ID header.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			tokens, err := app.Config.Tokens()
			if err != nil {
				return err
			}
			who := app.Config.Identity()
			if acct, _ := cmd.Flags().GetString("account"); acct != "" {
				who = who.WithAccount(acct)
			}
			if anyAccount {
				who = who.WithAccount("")
			}
			token, err := tokens.Sign(who)
			if err != nil {
				return err
			}
			expires := app.now().Add(app.Config.Server.TokenTTL).UTC()
			if output.IsStructured() {
				return output.Structured(map[string]interface{}{
					"token":      token,
					"user_id":    who.UserID,
					"account_id": who.AccountID,
					"expires_at": expires,
				})
			}
			output.Println(token)
			return nil
		},
	}
	cmd.Flags().BoolVar(&anyAccount, "any-account", false, "leave the account out of the token")
	return cmd
}

type instrumentView struct {
	Symbol          string `json:"symbol"`
	Multiplier      int64  `json:"multiplier"`
	BaseValuePerPip string `json:"base_value_per_pip"`
}

func newInstrumentsCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "instruments",
		Aliases: []string{"pairs"},
		Short:   "List the supported symbols with their point multiplier and pip value",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			var views []instrumentView
			for _, s := range market.Symbols() {
				inst, _ := market.Lookup(s)
				views = append(views, instrumentView{
					Symbol:          inst.Symbol,
					Multiplier:      inst.Multiplier,
					BaseValuePerPip: inst.BaseValuePerPip.String(),
				})
			}
			if output.IsStructured() {
				return output.Structured(views)
			}
			table := NewTable(output, "SYMBOL", "MULTIPLIER", "PIP VALUE / LOT")
			for _, v := range views {
				pip := v.BaseValuePerPip
				if pip == "0" {
					pip = output.DimText("n/a")
				}
				table.AddRow(v.Symbol, strconv.FormatInt(v.Multiplier, 10), pip)
			}
			table.Render()
			return nil
		},
	}
}
