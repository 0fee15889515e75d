package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trade-journal/internal/errors"
	"trade-journal/internal/risk"
)

func clearEnv(t *testing.T) {
	for _, k := range []string{"JOURNAL_DB", "JOURNAL_DRIVER", "JOURNAL_PG_DSN", "JOURNAL_ACCOUNT", "JOURNAL_JWT_SECRET"} {
		t.Setenv(k, "")
	}
}

func TestLoad_WritesTemplateAndUsesDefaults(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()

	cfg, err := Load(dir)
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(dir, "config.toml"))
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Journal.Driver)
	assert.Equal(t, filepath.Join(dir, "journal.db"), cfg.Journal.Database)
	assert.Equal(t, filepath.Join(dir, "audit"), cfg.Audit.Dir)
	assert.Equal(t, 10*time.Second, cfg.Persistence.Timeout)
	assert.Equal(t, 3, cfg.Persistence.RetryAttempts)
	assert.Equal(t, time.UTC, cfg.Location())

	limits := cfg.Limits()
	def := risk.DefaultLimits()
	assert.True(t, limits.MaxTradeRisk.Equal(def.MaxTradeRisk))
	assert.True(t, limits.MaxDailyRisk.Equal(def.MaxDailyRisk))
	assert.Equal(t, def.MaxDailyTrades, limits.MaxDailyTrades)
	assert.Equal(t, def.MaxDailyActive, limits.MaxDailyActive)
	assert.Equal(t, def.MaxDailyCancels, limits.MaxDailyCancels)
}

func TestLoad_ReadsFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	body := `
[journal]
driver = "memory"
timezone = "America/New_York"
account_id = "acc-1"

[risk]
max_trade_risk = 1.5
max_daily_risk = 4
max_daily_trades = 5
max_daily_active = 3
max_daily_cancels = 2

[persistence]
timeout = "250ms"
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte(body), 0600))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.StoreOptions().Driver)
	assert.Equal(t, "America/New_York", cfg.Location().String())
	assert.Equal(t, "acc-1", cfg.Identity().AccountID)
	assert.Equal(t, "local", cfg.Identity().UserID)
	assert.Equal(t, 250*time.Millisecond, cfg.Persistence.Timeout)
	assert.True(t, cfg.Limits().MaxTradeRisk.Equal(decimal.RequireFromString("1.5")))
	assert.Equal(t, 5, cfg.Limits().MaxDailyTrades)
	// unset sections keep defaults
	assert.Equal(t, "127.0.0.1:8080", cfg.Server.Addr)
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	t.Setenv("JOURNAL_DRIVER", "memory")
	t.Setenv("JOURNAL_DB", "/tmp/other.db")
	t.Setenv("JOURNAL_ACCOUNT", "acc-env")
	t.Setenv("JOURNAL_JWT_SECRET", "0123456789abcdef0123")

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Journal.Driver)
	assert.Equal(t, "/tmp/other.db", cfg.Journal.Database)
	assert.Equal(t, "acc-env", cfg.Journal.AccountID)

	tokens, err := cfg.Tokens()
	require.NoError(t, err)
	assert.NotNil(t, tokens)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"unknown driver", func(c *Config) { c.Journal.Driver = "mongo" }},
		{"postgres without dsn", func(c *Config) { c.Journal.Driver = "postgres" }},
		{"bad zone", func(c *Config) { c.Journal.Timezone = "Mars/Olympus" }},
		{"empty user", func(c *Config) { c.Journal.UserID = " " }},
		{"zero trade risk", func(c *Config) { c.Risk.MaxTradeRisk = 0 }},
		{"daily below trade", func(c *Config) { c.Risk.MaxDailyRisk = 2 }},
		{"active above count", func(c *Config) { c.Risk.MaxDailyActive = 4 }},
		{"negative cancels", func(c *Config) { c.Risk.MaxDailyCancels = -1 }},
		{"zero timeout", func(c *Config) { c.Persistence.Timeout = 0 }},
		{"no attempts", func(c *Config) { c.Persistence.RetryAttempts = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default(t.TempDir())
			require.NoError(t, cfg.Validate())
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.ErrConfigInvalid))
		})
	}
}

func TestTokens_RequireSecret(t *testing.T) {
	cfg := Default(t.TempDir())
	_, err := cfg.Tokens()
	assert.True(t, errors.Is(err, errors.ErrConfigInvalid))
}

func TestSet(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()

	require.NoError(t, Set(dir, "journal.account_id", "acc-7"))
	require.NoError(t, Set(dir, "risk.max_daily_trades", "4"))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "acc-7", cfg.Journal.AccountID)
	assert.Equal(t, 4, cfg.Risk.MaxDailyTrades)

	err = Set(dir, "journal.colour", "blue")
	assert.True(t, errors.Is(err, errors.ErrConfigInvalid))

	err = Set(dir, "risk.max_trade_risk", "0")
	assert.True(t, errors.Is(err, errors.ErrConfigInvalid))
}
