package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const configTemplate = `# Trade Journal Configuration

[server]
# Address the HTTP API listens on
listen_addr = "127.0.0.1:8000"
# Origins allowed to call the API from a browser
cors_origins = ["http://localhost:3000"]
request_timeout = "30s"

[database]
# SQLite file, relative paths resolve against this directory
path = "journal.db"

[cache]
# Where the broker access token is kept: "sqlite" or "redis"
backend = "sqlite"
redis_addr = "127.0.0.1:6379"
redis_db = 0
key_prefix = "journal:"

[broker]
# Contract master cache: exchanges and underlyings to keep (futures only)
master_exchanges = ["MCX"]
master_underlyings = ["GOLDM", "SILVERM"]
# Cron schedules (seconds field first), evaluated in IST
master_refresh_cron = "0 30 8 * * *"
session_expiry_cron = "0 0 6 * * *"
master_max_age = "24h"
request_timeout = "10s"
# Stop calling Kite for breaker_cooldown after this many failed quote calls
breaker_failures = 5
breaker_cooldown = "30s"

# Snapshot baskets. A basket combines fixed ETF tickers with the
# nearest-expiry future on a root symbol.
[[snapshot.baskets]]
name = "goldm"
etf_tickers = ["NSE:GOLDIETF-EQ", "NSE:SETFGOLD-EQ", "NSE:GROWWGOLD-EQ", "NSE:GOLDBEES-EQ"]
futures_exchange = "MCX"
futures_root = "GOLDM"

[security]
# Encrypt the stored access token (needs kite.token_passphrase)
encrypt_tokens = false
audit_enabled = true

[log]
level = "info"
console = true
file = true
`

const credentialsTemplate = `# Trade Journal Credentials
# Keep this file private. Environment variables override these values.

[kite]
api_key = ""
api_secret = ""
user_id = ""
# Base32 TOTP secret for "journal auth totp"
totp_secret = ""
# Passphrase sealing the stored access token
token_passphrase = ""
`

func createTemplateConfig(configDir string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, "config.toml")
	if err := os.WriteFile(path, []byte(configTemplate), 0644); err != nil {
		return fmt.Errorf("writing config template: %w", err)
	}
	return nil
}

func createTemplateCredentials(configDir string) error {
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, "credentials.toml")
	// Use restricted permissions for credentials file
	if err := os.WriteFile(path, []byte(credentialsTemplate), 0600); err != nil {
		return fmt.Errorf("writing credentials template: %w", err)
	}
	return nil
}
