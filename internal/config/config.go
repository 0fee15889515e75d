// Package config provides configuration management for the journal.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"trade-journal/internal/audit"
	"trade-journal/internal/errors"
	"trade-journal/internal/identity"
	"trade-journal/internal/logging"
	"trade-journal/internal/risk"
	"trade-journal/internal/store"
)

// Config holds all application configuration.
type Config struct {
	Journal     JournalConfig     `mapstructure:"journal"`
	Risk        RiskConfig        `mapstructure:"risk"`
	Persistence PersistenceConfig `mapstructure:"persistence"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Audit       AuditConfig       `mapstructure:"audit"`
	Server      ServerConfig      `mapstructure:"server"`

	Dir string `mapstructure:"-"` // directory the file was read from
}

// JournalConfig selects the store and the acting identity.
type JournalConfig struct {
	Driver      string `mapstructure:"driver"`   // sqlite, postgres, memory
	Database    string `mapstructure:"database"` // sqlite file
	PostgresDSN string `mapstructure:"postgres_dsn"`
	Timezone    string `mapstructure:"timezone"`
	UserID      string `mapstructure:"user_id"`
	AccountID   string `mapstructure:"account_id"`
}

// RiskConfig holds the discipline caps. Percentages are of account capital.
type RiskConfig struct {
	MaxTradeRisk    float64 `mapstructure:"max_trade_risk"`
	MaxDailyRisk    float64 `mapstructure:"max_daily_risk"`
	MaxDailyTrades  int     `mapstructure:"max_daily_trades"`
	MaxDailyActive  int     `mapstructure:"max_daily_active"`
	MaxDailyCancels int     `mapstructure:"max_daily_cancels"`
}

// PersistenceConfig bounds store calls.
type PersistenceConfig struct {
	Timeout       time.Duration `mapstructure:"timeout"`
	RetryAttempts int           `mapstructure:"retry_attempts"`
	// BreakerThreshold consecutive store failures stop further calls for
	// BreakerCooldown. Zero disables the breaker.
	BreakerThreshold int           `mapstructure:"breaker_threshold"`
	BreakerCooldown  time.Duration `mapstructure:"breaker_cooldown"`
}

// LoggingConfig mirrors logging.LogConfig.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Console    bool   `mapstructure:"console"`
	File       bool   `mapstructure:"file"`
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
}

// AuditConfig controls the audit trail.
type AuditConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Dir        string `mapstructure:"dir"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// ServerConfig holds HTTP API settings.
type ServerConfig struct {
	Addr      string        `mapstructure:"addr"`
	JWTSecret string        `mapstructure:"jwt_secret"`
	JWTIssuer string        `mapstructure:"jwt_issuer"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/trade-journal"
	}
	return filepath.Join(home, ".config", "trade-journal")
}

// Path returns the config file path inside configDir.
func Path(configDir string) string {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}
	return filepath.Join(configDir, "config.toml")
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory. A missing file
// is replaced by the commented template before reading.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	v := newViper(configDir)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("loading config.toml: %w", err)
		}
		if err := createTemplateConfig(configDir); err != nil {
			return nil, err
		}
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("loading config.toml: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding config.toml: %w", err)
	}
	cfg.Dir = configDir
	cfg.fillPaths()

	// Apply environment variable overrides
	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// Default returns the built-in configuration rooted at configDir without
// touching the filesystem.
func Default(configDir string) *Config {
	v := newViper(configDir)
	cfg := &Config{}
	// defaults always decode
	_ = v.Unmarshal(cfg)
	cfg.Dir = configDir
	cfg.fillPaths()
	return cfg
}

// Set writes key = value into the config file in configDir, creating the
// file from the template first when needed. Keys use dotted section paths
// such as "journal.account_id".
func Set(configDir, key, value string) error {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}
	if _, err := os.Stat(Path(configDir)); os.IsNotExist(err) {
		if err := createTemplateConfig(configDir); err != nil {
			return err
		}
	}

	v := newViper(configDir)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("loading config.toml: %w", err)
	}
	if !knownKey(key) {
		return errors.Wrap(errors.ErrConfigInvalid, fmt.Sprintf("unknown key %q", key))
	}
	v.Set(key, value)

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return errors.Wrap(errors.ErrConfigInvalid, fmt.Sprintf("%s: %v", key, err))
	}
	cfg.Dir = configDir
	cfg.fillPaths()
	if err := cfg.Validate(); err != nil {
		return err
	}
	return v.WriteConfigAs(Path(configDir))
}

func newViper(configDir string) *viper.Viper {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	v.SetDefault("journal.driver", "sqlite")
	v.SetDefault("journal.database", "")
	v.SetDefault("journal.postgres_dsn", "")
	v.SetDefault("journal.timezone", "UTC")
	v.SetDefault("journal.user_id", "local")
	v.SetDefault("journal.account_id", "")

	limits := risk.DefaultLimits()
	v.SetDefault("risk.max_trade_risk", limits.MaxTradeRisk.InexactFloat64())
	v.SetDefault("risk.max_daily_risk", limits.MaxDailyRisk.InexactFloat64())
	v.SetDefault("risk.max_daily_trades", limits.MaxDailyTrades)
	v.SetDefault("risk.max_daily_active", limits.MaxDailyActive)
	v.SetDefault("risk.max_daily_cancels", limits.MaxDailyCancels)

	v.SetDefault("persistence.timeout", "10s")
	v.SetDefault("persistence.retry_attempts", 3)
	v.SetDefault("persistence.breaker_threshold", 5)
	v.SetDefault("persistence.breaker_cooldown", "30s")

	logs := logging.DefaultLogConfig()
	v.SetDefault("logging.level", logs.Level)
	v.SetDefault("logging.console", logs.Console)
	v.SetDefault("logging.file", logs.File)
	v.SetDefault("logging.file_path", "")
	v.SetDefault("logging.max_size", logs.MaxSize)
	v.SetDefault("logging.max_backups", logs.MaxBackups)
	v.SetDefault("logging.max_age", logs.MaxAge)

	trail := audit.DefaultConfig()
	v.SetDefault("audit.enabled", true)
	v.SetDefault("audit.dir", "")
	v.SetDefault("audit.max_size", trail.MaxSize)
	v.SetDefault("audit.max_backups", trail.MaxBackups)
	v.SetDefault("audit.max_age", trail.MaxAge)
	v.SetDefault("audit.compress", trail.Compress)

	v.SetDefault("server.addr", "127.0.0.1:8080")
	v.SetDefault("server.jwt_secret", "")
	v.SetDefault("server.jwt_issuer", "trade-journal")
	v.SetDefault("server.token_ttl", "24h")
	return v
}

var knownKeys = map[string]bool{}

func init() {
	for _, k := range newViper("").AllKeys() {
		knownKeys[k] = true
	}
}

func knownKey(key string) bool {
	return knownKeys[strings.ToLower(key)]
}

// fillPaths roots empty file locations in the config directory.
func (c *Config) fillPaths() {
	if c.Journal.Database == "" {
		c.Journal.Database = filepath.Join(c.Dir, "journal.db")
	}
	if c.Logging.FilePath == "" {
		c.Logging.FilePath = filepath.Join(c.Dir, "logs", "journal.log")
	}
	if c.Audit.Dir == "" {
		c.Audit.Dir = filepath.Join(c.Dir, "audit")
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("JOURNAL_DB"); v != "" {
		cfg.Journal.Database = v
	}
	if v := os.Getenv("JOURNAL_DRIVER"); v != "" {
		cfg.Journal.Driver = v
	}
	if v := os.Getenv("JOURNAL_PG_DSN"); v != "" {
		cfg.Journal.PostgresDSN = v
	}
	if v := os.Getenv("JOURNAL_ACCOUNT"); v != "" {
		cfg.Journal.AccountID = v
	}
	if v := os.Getenv("JOURNAL_JWT_SECRET"); v != "" {
		cfg.Server.JWTSecret = v
	}
}

func invalid(format string, args ...interface{}) error {
	return errors.Wrap(errors.ErrConfigInvalid, fmt.Sprintf(format, args...))
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Journal.Driver) {
	case "sqlite", "memory":
	case "postgres":
		if c.Journal.PostgresDSN == "" {
			return invalid("journal.postgres_dsn is required for the postgres driver")
		}
	default:
		return invalid("journal.driver must be sqlite, postgres or memory, got %q", c.Journal.Driver)
	}
	if _, err := time.LoadLocation(c.Journal.Timezone); err != nil {
		return invalid("journal.timezone %q is not a known zone", c.Journal.Timezone)
	}
	if strings.TrimSpace(c.Journal.UserID) == "" {
		return invalid("journal.user_id must not be empty")
	}

	if c.Risk.MaxTradeRisk <= 0 || c.Risk.MaxTradeRisk > 100 {
		return invalid("risk.max_trade_risk must be in (0, 100]")
	}
	if c.Risk.MaxDailyRisk < c.Risk.MaxTradeRisk || c.Risk.MaxDailyRisk > 100 {
		return invalid("risk.max_daily_risk must be between max_trade_risk and 100")
	}
	if c.Risk.MaxDailyTrades < 1 || c.Risk.MaxDailyActive < 1 {
		return invalid("risk.max_daily_trades and risk.max_daily_active must be at least 1")
	}
	if c.Risk.MaxDailyActive > c.Risk.MaxDailyTrades {
		return invalid("risk.max_daily_active cannot exceed risk.max_daily_trades")
	}
	if c.Risk.MaxDailyCancels < 0 {
		return invalid("risk.max_daily_cancels must be non-negative")
	}

	if c.Persistence.Timeout <= 0 {
		return invalid("persistence.timeout must be positive")
	}
	if c.Persistence.RetryAttempts < 1 {
		return invalid("persistence.retry_attempts must be at least 1")
	}
	if c.Persistence.BreakerThreshold < 0 {
		return invalid("persistence.breaker_threshold must not be negative")
	}
	if c.Server.TokenTTL <= 0 {
		return invalid("server.token_ttl must be positive")
	}
	return nil
}

// Location returns the journal time zone.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Journal.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Limits returns the discipline caps.
func (c *Config) Limits() risk.Limits {
	return risk.Limits{
		MaxTradeRisk:    decimal.NewFromFloat(c.Risk.MaxTradeRisk),
		MaxDailyRisk:    decimal.NewFromFloat(c.Risk.MaxDailyRisk),
		MaxDailyTrades:  c.Risk.MaxDailyTrades,
		MaxDailyActive:  c.Risk.MaxDailyActive,
		MaxDailyCancels: c.Risk.MaxDailyCancels,
	}
}

// StoreOptions returns the options for store.Open.
func (c *Config) StoreOptions() store.Options {
	return store.Options{
		Driver:      strings.ToLower(c.Journal.Driver),
		Path:        c.Journal.Database,
		PostgresDSN: c.Journal.PostgresDSN,
	}
}

// BreakerConfig returns the store circuit breaker settings.
func (c *Config) BreakerConfig() store.BreakerConfig {
	return store.BreakerConfig{
		FailureThreshold: c.Persistence.BreakerThreshold,
		Cooldown:         c.Persistence.BreakerCooldown,
	}
}

// LogConfig returns the logger configuration.
func (c *Config) LogConfig() logging.LogConfig {
	return logging.LogConfig{
		Level:      c.Logging.Level,
		Console:    c.Logging.Console,
		File:       c.Logging.File,
		FilePath:   c.Logging.FilePath,
		MaxSize:    c.Logging.MaxSize,
		MaxBackups: c.Logging.MaxBackups,
		MaxAge:     c.Logging.MaxAge,
	}
}

// AuditConfig returns the audit trail configuration.
func (c *Config) AuditConfig() audit.Config {
	return audit.Config{
		LogDir:     c.Audit.Dir,
		MaxSize:    c.Audit.MaxSize,
		MaxBackups: c.Audit.MaxBackups,
		MaxAge:     c.Audit.MaxAge,
		Compress:   c.Audit.Compress,
	}
}

// Identity returns the configured acting identity. AccountID may be empty.
func (c *Config) Identity() identity.Identity {
	return identity.Identity{UserID: c.Journal.UserID, AccountID: c.Journal.AccountID}
}

// Tokens returns the API token issuer, or an error when no secret is set.
func (c *Config) Tokens() (*identity.Tokens, error) {
	if len(c.Server.JWTSecret) < 16 {
		return nil, invalid("server.jwt_secret must be at least 16 characters (or set JOURNAL_JWT_SECRET)")
	}
	return identity.NewTokens(c.Server.JWTIssuer, []byte(c.Server.JWTSecret), c.Server.TokenTTL), nil
}
