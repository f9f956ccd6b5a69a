package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trade-journal/internal/errors"
)

func TestLoadWritesTemplates(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.FileExists(t, filepath.Join(dir, "config.toml"))
	assert.FileExists(t, filepath.Join(dir, "credentials.toml"))

	info, err := os.Stat(filepath.Join(dir, "credentials.toml"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	assert.Equal(t, "127.0.0.1:8000", cfg.Server.ListenAddr)
	assert.Equal(t, 30*time.Second, cfg.Server.RequestTimeout)
	assert.Equal(t, filepath.Join(dir, "journal.db"), cfg.Database.Path)
	assert.Equal(t, "sqlite", cfg.Cache.Backend)
	assert.Equal(t, []string{"MCX"}, cfg.Broker.MasterExchanges)
	assert.Equal(t, 24*time.Hour, cfg.Broker.MasterMaxAge)
	assert.Equal(t, 5, cfg.Broker.BreakerFailures)
	assert.Equal(t, 30*time.Second, cfg.Broker.BreakerCooldown)
	require.Len(t, cfg.Snapshot.Baskets, 1)
	assert.Equal(t, "goldm", cfg.Snapshot.Baskets[0].Name)
	assert.Len(t, cfg.Snapshot.Baskets[0].ETFTickers, 4)
	assert.Equal(t, filepath.Join(dir, "audit"), cfg.Security.AuditDir)
	assert.False(t, cfg.BrokerConfigured())
}

func TestLoadReadsCredentialsAndEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "credentials.toml"), []byte(`
[kite]
api_key = "file-key"
api_secret = "file-secret"
`), 0600))

	t.Setenv("KITE_API_SECRET", "env-secret")
	t.Setenv("JOURNAL_REDIS_ADDR", "redis:6379")
	t.Setenv("JOURNAL_DB_PATH", "/var/lib/journal/journal.db")

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "file-key", cfg.Credentials.Kite.APIKey)
	assert.Equal(t, "env-secret", cfg.Credentials.Kite.APISecret)
	assert.Equal(t, "redis", cfg.Cache.Backend)
	assert.Equal(t, "redis:6379", cfg.Cache.RedisAddr)
	assert.Equal(t, "/var/lib/journal/journal.db", cfg.Database.Path)
	assert.True(t, cfg.BrokerConfigured())
}

func TestLoadRejectsInvalidFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte(`
[cache]
backend = "memcached"
`), 0644))

	_, err := Load(dir)
	assert.ErrorIs(t, err, errors.ErrConfigInvalid)
}

func validConfig(t *testing.T) *Config {
	t.Helper()
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"empty listen addr", func(c *Config) { c.Server.ListenAddr = "" }},
		{"bad cron", func(c *Config) { c.Broker.MasterRefreshCron = "every day" }},
		{"zero broker timeout", func(c *Config) { c.Broker.RequestTimeout = 0 }},
		{"negative breaker cooldown", func(c *Config) { c.Broker.BreakerCooldown = -time.Second }},
		{"duplicate basket", func(c *Config) { c.Snapshot.Baskets = append(c.Snapshot.Baskets, c.Snapshot.Baskets[0]) }},
		{"empty basket", func(c *Config) { c.Snapshot.Baskets = []BasketConfig{{Name: "x"}} }},
		{"encryption without passphrase", func(c *Config) { c.Security.EncryptTokens = true }},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }},
		{"redis without addr", func(c *Config) {
			c.Cache.Backend = "redis"
			c.Cache.RedisAddr = ""
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			require.NoError(t, cfg.Validate())
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), errors.ErrConfigInvalid)
		})
	}
}
