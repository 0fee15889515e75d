package cli

import (
	"bufio"
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"trade-journal/internal/audit"
	"trade-journal/internal/config"
	"trade-journal/internal/engine"
	"trade-journal/internal/errors"
	"trade-journal/internal/identity"
	"trade-journal/internal/logging"
	"trade-journal/internal/store"
	"trade-journal/pkg/utils"
)

// Version information
const (
	Version   = "0.1.0"
	BuildDate = "2026-10-18"
)

// Options overrides collaborators, mainly for tests. Zero values use the
// configured ones.
type Options struct {
	Port   store.Port
	Audit  audit.Sink
	Logger *zerolog.Logger
	Clock  func() time.Time
	In     io.Reader // answers to confirmation prompts
}

// App holds the application dependencies. The store and engine are opened
// on first use so config commands work without a database.
type App struct {
	Config   *config.Config
	Logger   zerolog.Logger
	Store    store.Port
	Engine   *engine.Engine
	Audit    audit.Sink
	Location *time.Location

	opts    Options
	clock   func() time.Time
	in      *bufio.Reader
	closers []io.Closer
}

// NewApp creates an unconfigured App; NewRootCmd loads its config before
// any command runs.
func NewApp(opts Options) *App {
	a := &App{opts: opts, clock: opts.Clock, Location: time.UTC}
	if a.clock == nil {
		a.clock = time.Now
	}
	in := opts.In
	if in == nil {
		in = os.Stdin
	}
	a.in = bufio.NewReader(in)
	return a
}

// NewRootCmd creates the root command for the CLI.
func NewRootCmd(app *App) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "journal",
		Short: "Forex and CFD trading journal",
		Long: `journal records planned and executed trades, sizes positions from risk,
enforces daily discipline limits and reviews performance by week and month.

Data lives in a local SQLite file by default; see 'journal config path'.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return app.setup(cmd)
		},
	}

	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/trade-journal)")
	rootCmd.PersistentFlags().String("account", "", "account id (default: journal.account_id)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().String("format", FormatText, "output format: text, json or yaml")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	addCoreCommands(rootCmd, app)
	addAccountCommands(rootCmd, app)
	addTradeCommands(rootCmd, app)
	addReviewCommands(rootCmd, app)
	addBackupCommands(rootCmd, app)
	addServerCommands(rootCmd, app)

	return rootCmd
}

func (a *App) setup(cmd *cobra.Command) error {
	dir, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(dir)
	if err != nil {
		return err
	}
	a.Config = cfg
	a.Location = cfg.Location()

	if a.opts.Logger != nil {
		a.Logger = *a.opts.Logger
	} else {
		a.Logger = logging.NewLoggerWithConfig(cfg.LogConfig())
	}
	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		a.Logger = a.Logger.Level(zerolog.DebugLevel)
	}

	format, _ := cmd.Flags().GetString("format")
	switch strings.ToLower(format) {
	case FormatText, FormatJSON, FormatYAML:
	default:
		return errors.NewValidationError("format", format, "must be text, json or yaml")
	}
	return nil
}

// engine opens the store, audit trail and engine on first use.
func (a *App) engine(ctx context.Context) (*engine.Engine, error) {
	if a.Engine != nil {
		return a.Engine, nil
	}

	port := a.opts.Port
	if port == nil {
		opts := a.Config.StoreOptions()
		var err error
		port, err = utils.RetryWithResult(ctx, a.retryConfig(), func() (store.Port, error) {
			return store.Open(ctx, opts)
		})
		if err != nil {
			return nil, errors.NewPersistenceError("open store", err)
		}
		port = store.Guarded(port, a.Config.BreakerConfig())
		a.closers = append(a.closers, port)
		a.Logger.Debug().Str("driver", opts.Driver).Str("dsn", logging.Redact(opts.PostgresDSN)).Msg("store opened")
	}
	a.Store = port

	a.Audit = a.opts.Audit
	if a.Audit == nil {
		a.Audit = audit.Nop{}
		if a.Config.Audit.Enabled {
			trail, err := audit.NewLogger(a.Config.AuditConfig())
			if err != nil {
				a.Logger.Warn().Err(err).Msg("audit trail unavailable")
			} else {
				a.Audit = trail
				a.closers = append(a.closers, trail)
			}
		}
	}

	logger := a.Logger
	a.Engine = engine.New(port, engine.Options{
		Limits:   a.Config.Limits(),
		Timeout:  a.Config.Persistence.Timeout,
		Audit:    a.Audit,
		Logger:   &logger,
		Clock:    func() time.Time { return a.clock().UTC() },
		Location: a.Location,
	})
	return a.Engine, nil
}

// retryConfig retries persistence failures only.
func (a *App) retryConfig() utils.RetryConfig {
	cfg := utils.DefaultRetryConfig().WithAttempts(a.Config.Persistence.RetryAttempts)
	cfg.Retryable = func(err error) bool {
		k := errors.KindOf(err)
		return k == errors.KindPersistence || k == errors.KindInternal
	}
	return cfg
}

// run executes fn against the engine, retrying persistence failures. The
// engine reverts a failed write, so a retry starts from the same state.
func (a *App) run(cmd *cobra.Command, fn func(ctx context.Context, e *engine.Engine) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	e, err := a.engine(ctx)
	if err != nil {
		return err
	}
	cfg := a.retryConfig()
	cfg.Retryable = func(err error) bool { return errors.KindOf(err) == errors.KindPersistence }
	return utils.Retry(ctx, cfg, func() error { return fn(ctx, e) })
}

// identity returns the acting user and selected account.
func (a *App) identity(cmd *cobra.Command) (identity.Identity, error) {
	who := a.Config.Identity()
	if acct, _ := cmd.Flags().GetString("account"); acct != "" {
		who = who.WithAccount(acct)
	}
	if who.AccountID == "" {
		return who, errors.NewValidationError("account", "",
			"no account selected; pass --account or run 'journal account use <id>'")
	}
	return who, who.Validate()
}

// confirm asks a yes/no question on the prompt stream.
func (a *App) confirm(out *Output, question string) bool {
	out.Printf("%s [y/N]: ", question)
	line, err := a.in.ReadString('\n')
	if err != nil && line == "" {
		out.Println()
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}

func (a *App) now() time.Time {
	return a.clock()
}

// Close releases the store and audit trail.
func (a *App) Close() error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	a.closers = nil
	return first
}

// ExitCode maps an error to a process exit status.
func ExitCode(err error) int {
	switch errors.KindOf(err) {
	case "":
		return 0
	case errors.KindValidation:
		return 2
	case errors.KindPolicy, errors.KindInsufficientFunds:
		return 3
	case errors.KindNotFound:
		return 4
	case errors.KindConflict:
		return 5
	case errors.KindPersistence:
		return 6
	}
	return 1
}

// addCoreCommands adds core utility commands.
func addCoreCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd(app))
	rootCmd.AddCommand(newInstrumentsCmd())
	addHelpCommands(rootCmd)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsStructured() {
				return output.Structured(map[string]string{
					"version":    Version,
					"build_date": BuildDate,
				})
			}
			output.Printf("trade-journal v%s\n", Version)
			output.Dim("Build date: %s", BuildDate)
			return nil
		},
	}
}

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long:  "View and manage application configuration.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			view := configView(app.Config)
			if output.IsStructured() {
				return output.Structured(view)
			}
			return showConfig(output, view)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration file path",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			path := config.Path(app.Config.Dir)
			if output.IsStructured() {
				return output.Structured(map[string]string{"path": path})
			}
			output.Println(path)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration value",
		Long:  "Set a dotted key such as journal.account_id or risk.max_daily_risk.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := config.Set(app.Config.Dir, args[0], args[1]); err != nil {
				return err
			}
			if output.IsStructured() {
				return output.Structured(map[string]string{"key": args[0], "value": args[1]})
			}
			output.Success("✓ %s = %s", args[0], args[1])
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.Config.Validate(); err != nil {
				output.Error("Configuration validation failed: %v", err)
				return err
			}
			if output.IsStructured() {
				return output.Structured(map[string]bool{"valid": true})
			}
			output.Success("✓ Configuration is valid")
			return nil
		},
	})

	return cmd
}

type configSummary struct {
	Driver          string  `json:"driver"`
	Database        string  `json:"database,omitempty"`
	PostgresDSN     string  `json:"postgres_dsn,omitempty"`
	Timezone        string  `json:"timezone"`
	UserID          string  `json:"user_id"`
	AccountID       string  `json:"account_id"`
	MaxTradeRisk    float64 `json:"max_trade_risk"`
	MaxDailyRisk    float64 `json:"max_daily_risk"`
	MaxDailyTrades  int     `json:"max_daily_trades"`
	MaxDailyActive  int     `json:"max_daily_active"`
	MaxDailyCancels int     `json:"max_daily_cancels"`
	Timeout         string  `json:"timeout"`
	RetryAttempts   int     `json:"retry_attempts"`
	LogLevel        string  `json:"log_level"`
	AuditEnabled    bool    `json:"audit_enabled"`
	AuditDir        string  `json:"audit_dir"`
	ServerAddr      string  `json:"server_addr"`
	JWTConfigured   bool    `json:"jwt_configured"`
}

// configView omits secrets.
func configView(cfg *config.Config) configSummary {
	v := configSummary{
		Driver:          cfg.Journal.Driver,
		Timezone:        cfg.Journal.Timezone,
		UserID:          cfg.Journal.UserID,
		AccountID:       cfg.Journal.AccountID,
		MaxTradeRisk:    cfg.Risk.MaxTradeRisk,
		MaxDailyRisk:    cfg.Risk.MaxDailyRisk,
		MaxDailyTrades:  cfg.Risk.MaxDailyTrades,
		MaxDailyActive:  cfg.Risk.MaxDailyActive,
		MaxDailyCancels: cfg.Risk.MaxDailyCancels,
		Timeout:         cfg.Persistence.Timeout.String(),
		RetryAttempts:   cfg.Persistence.RetryAttempts,
		LogLevel:        cfg.Logging.Level,
		AuditEnabled:    cfg.Audit.Enabled,
		AuditDir:        cfg.Audit.Dir,
		ServerAddr:      cfg.Server.Addr,
		JWTConfigured:   cfg.Server.JWTSecret != "",
	}
	switch strings.ToLower(cfg.Journal.Driver) {
	case store.DriverSQLite:
		v.Database = cfg.Journal.Database
	case store.DriverPostgres:
		v.PostgresDSN = logging.Redact(cfg.Journal.PostgresDSN)
	}
	return v
}

func showConfig(output *Output, v configSummary) error {
	output.Bold("Journal")
	output.Printf("  Driver:          %s\n", v.Driver)
	if v.Database != "" {
		output.Printf("  Database:        %s\n", v.Database)
	}
	if v.PostgresDSN != "" {
		output.Printf("  Postgres:        %s\n", v.PostgresDSN)
	}
	output.Printf("  Timezone:        %s\n", v.Timezone)
	output.Printf("  User:            %s\n", v.UserID)
	account := v.AccountID
	if account == "" {
		account = output.DimText("(none)")
	}
	output.Printf("  Account:         %s\n", account)
	output.Println()

	output.Bold("Risk Limits")
	output.Printf("  Max Trade Risk:  %.2f%%\n", v.MaxTradeRisk)
	output.Printf("  Max Daily Risk:  %.2f%%\n", v.MaxDailyRisk)
	output.Printf("  Trades / Day:    %d\n", v.MaxDailyTrades)
	output.Printf("  Active / Day:    %d\n", v.MaxDailyActive)
	output.Printf("  Cancels / Day:   %d\n", v.MaxDailyCancels)
	output.Println()

	output.Bold("Persistence")
	output.Printf("  Timeout:         %s\n", v.Timeout)
	output.Printf("  Retry Attempts:  %d\n", v.RetryAttempts)
	output.Println()

	output.Bold("Logging & Audit")
	output.Printf("  Log Level:       %s\n", v.LogLevel)
	output.Printf("  Audit Trail:     %v (%s)\n", v.AuditEnabled, v.AuditDir)
	output.Println()

	output.Bold("Server")
	output.Printf("  Address:         %s\n", v.ServerAddr)
	output.Printf("  JWT Secret Set:  %v\n", v.JWTConfigured)
	return nil
}

// printErr writes err for the user, or as JSON in structured modes.
func printErr(cmd *cobra.Command, err error) {
	output := NewOutput(cmd)
	output.writer = cmd.ErrOrStderr()
	if output.IsStructured() {
		_ = output.Structured(map[string]string{"error": err.Error(), "kind": string(errors.KindOf(err))})
		return
	}
	output.Error("Error: %v", err)
}

// Execute runs the CLI with args and returns the process exit code.
func Execute(ctx context.Context, app *App, args []string) int {
	root := NewRootCmd(app)
	root.SetArgs(args)
	cmd, err := root.ExecuteContextC(ctx)
	if closeErr := app.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	if err != nil {
		if cmd == nil {
			cmd = root
		}
		printErr(cmd, err)
		return ExitCode(err)
	}
	return 0
}
