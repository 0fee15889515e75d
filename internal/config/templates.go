package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const configTemplate = `# Trade Journal Configuration

[journal]
# Store driver: "sqlite", "postgres" or "memory"
driver = "sqlite"
# SQLite database file (defaults to journal.db next to this file)
database = ""
# Postgres connection string, used when driver = "postgres"
postgres_dsn = ""
# Time zone for trading days, weeks and months
timezone = "UTC"
# Acting user written on every row
user_id = "local"
# Account selected when --account is not given
account_id = ""

[risk]
# Maximum risk per trade, percent of capital
max_trade_risk = 3.0
# Maximum summed risk per entry day, percent of capital
max_daily_risk = 5.0
# Maximum trades per entry day
max_daily_trades = 3
# Maximum trades still active per entry day
max_daily_active = 2
# Maximum trades closed as Invalid per entry day
max_daily_cancels = 1

[persistence]
# Deadline for one atomic write
timeout = "10s"
# Attempts made by the CLI before giving up on a persistence failure
retry_attempts = 3
# Consecutive store failures before calls are refused for breaker_cooldown (0 disables)
breaker_threshold = 5
breaker_cooldown = "30s"

[logging]
# debug, info, warn, error
level = "info"
console = true
file = false
# Rotated log file (defaults to logs/journal.log next to this file)
file_path = ""
max_size = 50
max_backups = 5
max_age = 30

[audit]
# Append every committed command to audit/audit.log
enabled = true
dir = ""
max_size = 20
max_backups = 10
max_age = 365
compress = true

[server]
# Listen address for "journal serve"
addr = "127.0.0.1:8080"
# HS256 signing secret for API tokens (or JOURNAL_JWT_SECRET)
jwt_secret = ""
jwt_issuer = "trade-journal"
token_ttl = "24h"
`

func createTemplateConfig(configDir string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, "config.toml")
	// the file may hold a jwt secret
	if err := os.WriteFile(path, []byte(configTemplate), 0600); err != nil {
		return fmt.Errorf("writing config template: %w", err)
	}
	return nil
}
