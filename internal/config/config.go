// Package config provides configuration management for the trade journal.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"

	"trade-journal/internal/errors"
	"trade-journal/internal/logging"
)

// Config holds all application configuration.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Cache       CacheConfig       `mapstructure:"cache"`
	Broker      BrokerConfig      `mapstructure:"broker"`
	Snapshot    SnapshotConfig    `mapstructure:"snapshot"`
	Security    SecurityConfig    `mapstructure:"security"`
	Log         logging.LogConfig `mapstructure:"log"`
	Credentials Credentials       `mapstructure:"-"` // Loaded separately
	Dir         string            `mapstructure:"-"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	ListenAddr     string        `mapstructure:"listen_addr"`
	CORSOrigins    []string      `mapstructure:"cors_origins"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// DatabaseConfig holds the SQLite database location.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// CacheConfig selects where access tokens are kept.
type CacheConfig struct {
	Backend       string        `mapstructure:"backend"` // "sqlite", "redis"
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
	KeyPrefix     string        `mapstructure:"key_prefix"`
	TTL           time.Duration `mapstructure:"ttl"`
}

// BrokerConfig holds market data and contract master settings.
type BrokerConfig struct {
	MasterExchanges   []string      `mapstructure:"master_exchanges"`
	MasterUnderlyings []string      `mapstructure:"master_underlyings"`
	MasterRefreshCron string        `mapstructure:"master_refresh_cron"`
	MasterMaxAge      time.Duration `mapstructure:"master_max_age"`
	SessionExpiryCron string        `mapstructure:"session_expiry_cron"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
	BreakerFailures   int           `mapstructure:"breaker_failures"` // consecutive quote failures before failing fast
	BreakerCooldown   time.Duration `mapstructure:"breaker_cooldown"`
}

// SnapshotConfig holds basket definitions for automatic snapshots.
type SnapshotConfig struct {
	Baskets []BasketConfig `mapstructure:"baskets"`
}

// BasketConfig defines one snapshot basket.
type BasketConfig struct {
	Name            string   `mapstructure:"name"`
	ETFTickers      []string `mapstructure:"etf_tickers"`
	FuturesExchange string   `mapstructure:"futures_exchange"`
	FuturesRoot     string   `mapstructure:"futures_root"`
}

// SecurityConfig holds security-related configuration.
type SecurityConfig struct {
	EncryptTokens bool   `mapstructure:"encrypt_tokens"`
	AuditEnabled  bool   `mapstructure:"audit_enabled"`
	AuditDir      string `mapstructure:"audit_dir"`
}

// Credentials holds API credentials.
type Credentials struct {
	Kite KiteCredentials `mapstructure:"kite"`
}

// KiteCredentials holds Kite Connect credentials.
type KiteCredentials struct {
	APIKey          string `mapstructure:"api_key"`
	APISecret       string `mapstructure:"api_secret"`
	UserID          string `mapstructure:"user_id"`
	TOTPSecret      string `mapstructure:"totp_secret"`
	TokenPassphrase string `mapstructure:"token_passphrase"` // seals the stored access token
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/trade-journal"
	}
	return filepath.Join(home, ".config", "trade-journal")
}

// Load loads configuration from the specified directory, writing templates for
// missing files. If configDir is empty, uses the default config directory.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	// A missing .env file is fine.
	_ = godotenv.Load()

	cfg := &Config{Dir: configDir}

	if err := loadConfigFile(configDir, cfg); err != nil {
		return nil, fmt.Errorf("loading config.toml: %w", err)
	}

	if err := loadCredentials(configDir, &cfg.Credentials); err != nil {
		return nil, fmt.Errorf("loading credentials.toml: %w", err)
	}

	applyEnvOverrides(cfg)
	cfg.resolvePaths()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.listen_addr", "127.0.0.1:8000")
	v.SetDefault("server.cors_origins", []string{"http://localhost:3000"})
	v.SetDefault("server.request_timeout", "30s")

	v.SetDefault("database.path", "journal.db")

	v.SetDefault("cache.backend", "sqlite")
	v.SetDefault("cache.redis_addr", "127.0.0.1:6379")
	v.SetDefault("cache.key_prefix", "journal:")

	v.SetDefault("broker.master_exchanges", []string{"MCX"})
	v.SetDefault("broker.master_underlyings", []string{"GOLDM", "SILVERM"})
	v.SetDefault("broker.master_refresh_cron", "0 30 8 * * *")
	v.SetDefault("broker.master_max_age", "24h")
	v.SetDefault("broker.session_expiry_cron", "0 0 6 * * *")
	v.SetDefault("broker.request_timeout", "10s")
	v.SetDefault("broker.breaker_failures", 5)
	v.SetDefault("broker.breaker_cooldown", "30s")

	v.SetDefault("security.encrypt_tokens", false)
	v.SetDefault("security.audit_enabled", true)

	logDefaults := logging.DefaultLogConfig()
	v.SetDefault("log.level", logDefaults.Level)
	v.SetDefault("log.console", logDefaults.Console)
	v.SetDefault("log.file", logDefaults.File)
	v.SetDefault("log.file_path", logDefaults.FilePath)
	v.SetDefault("log.max_size", logDefaults.MaxSize)
	v.SetDefault("log.max_backups", logDefaults.MaxBackups)
	v.SetDefault("log.max_age", logDefaults.MaxAge)
}

func loadConfigFile(configDir string, cfg *Config) error {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return err
		}
		if err := createTemplateConfig(configDir); err != nil {
			return err
		}
		if err := v.ReadInConfig(); err != nil {
			return err
		}
	}

	return v.Unmarshal(cfg)
}

func loadCredentials(configDir string, creds *Credentials) error {
	v := viper.New()
	v.SetConfigName("credentials")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return createTemplateCredentials(configDir)
		}
		return err
	}

	return v.Unmarshal(creds)
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("KITE_API_KEY"); v != "" {
		cfg.Credentials.Kite.APIKey = v
	}
	if v := os.Getenv("KITE_API_SECRET"); v != "" {
		cfg.Credentials.Kite.APISecret = v
	}
	if v := os.Getenv("KITE_TOTP_SECRET"); v != "" {
		cfg.Credentials.Kite.TOTPSecret = v
	}
	if v := os.Getenv("KITE_TOKEN_PASSPHRASE"); v != "" {
		cfg.Credentials.Kite.TokenPassphrase = v
	}

	if v := os.Getenv("JOURNAL_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("JOURNAL_REDIS_ADDR"); v != "" {
		cfg.Cache.Backend = "redis"
		cfg.Cache.RedisAddr = v
	}
	if v := os.Getenv("JOURNAL_LISTEN_ADDR"); v != "" {
		cfg.Server.ListenAddr = v
	}
}

// resolvePaths anchors relative file locations at the config directory.
func (c *Config) resolvePaths() {
	if c.Database.Path != "" && c.Database.Path != ":memory:" && !filepath.IsAbs(c.Database.Path) {
		c.Database.Path = filepath.Join(c.Dir, c.Database.Path)
	}
	if c.Security.AuditDir == "" {
		c.Security.AuditDir = filepath.Join(c.Dir, "audit")
	}
}

// Validate checks enumerations and ranges.
func (c *Config) Validate() error {
	invalid := func(format string, args ...interface{}) error {
		return fmt.Errorf("%w: %s", errors.ErrConfigInvalid, fmt.Sprintf(format, args...))
	}

	if c.Server.ListenAddr == "" {
		return invalid("server.listen_addr is required")
	}
	if c.Server.RequestTimeout < 0 {
		return invalid("server.request_timeout must be non-negative")
	}
	if c.Database.Path == "" {
		return invalid("database.path is required")
	}

	switch c.Cache.Backend {
	case "sqlite":
	case "redis":
		if c.Cache.RedisAddr == "" {
			return invalid("cache.redis_addr is required for the redis backend")
		}
		if c.Cache.RedisDB < 0 {
			return invalid("cache.redis_db must be non-negative")
		}
	default:
		return invalid("invalid cache backend: %s (must be 'sqlite' or 'redis')", c.Cache.Backend)
	}

	parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	for name, spec := range map[string]string{
		"broker.master_refresh_cron": c.Broker.MasterRefreshCron,
		"broker.session_expiry_cron": c.Broker.SessionExpiryCron,
	} {
		if spec == "" {
			continue
		}
		if _, err := parser.Parse(spec); err != nil {
			return invalid("%s: %v", name, err)
		}
	}
	if c.Broker.RequestTimeout <= 0 {
		return invalid("broker.request_timeout must be positive")
	}
	if c.Broker.BreakerFailures < 0 || c.Broker.BreakerCooldown < 0 {
		return invalid("broker breaker settings must be non-negative")
	}

	seen := make(map[string]bool, len(c.Snapshot.Baskets))
	for _, b := range c.Snapshot.Baskets {
		name := strings.ToLower(strings.TrimSpace(b.Name))
		if name == "" {
			return invalid("snapshot basket name is required")
		}
		if seen[name] {
			return invalid("duplicate snapshot basket: %s", b.Name)
		}
		seen[name] = true
		if len(b.ETFTickers) == 0 && b.FuturesRoot == "" {
			return invalid("snapshot basket %s has no tickers", b.Name)
		}
	}

	if c.Security.EncryptTokens && c.Credentials.Kite.TokenPassphrase == "" {
		return invalid("security.encrypt_tokens requires kite.token_passphrase")
	}

	switch strings.ToLower(c.Log.Level) {
	case "", "trace", "debug", "info", "warn", "warning", "error", "fatal", "panic", "disabled":
	default:
		return invalid("invalid log level: %s", c.Log.Level)
	}

	return nil
}

// BrokerConfigured reports whether Kite credentials are present.
func (c *Config) BrokerConfigured() bool {
	return c.Credentials.Kite.APIKey != ""
}
