package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"trade-journal/internal/broker"
	"trade-journal/internal/config"
	"trade-journal/internal/enrich"
	"trade-journal/internal/journal"
	"trade-journal/internal/metrics"
	"trade-journal/internal/models"
	"trade-journal/internal/resilience"
	"trade-journal/internal/security"
	"trade-journal/internal/store"
	"trade-journal/internal/store/redis"
)

// wire builds the store, broker, enrichment pipeline and journal service from
// the loaded configuration.
func (a *App) wire() error {
	cfg := a.Config

	if cfg.Database.Path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0755); err != nil {
			return fmt.Errorf("creating database directory: %w", err)
		}
	}
	st, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return err
	}
	a.Store = st
	a.closers = append(a.closers, st.Close)
	a.Logger.Debug().Str("path", cfg.Database.Path).Msg("SQLite store initialized")

	tokens, err := a.tokenStore(st)
	if err != nil {
		return err
	}
	a.Tokens = tokens

	if cfg.Security.AuditEnabled {
		auditCfg := security.DefaultAuditConfig()
		auditCfg.LogDir = cfg.Security.AuditDir
		audit, err := security.NewAuditLogger(auditCfg)
		if err != nil {
			a.Logger.Warn().Err(err).Msg("Audit log unavailable")
		} else {
			a.Audit = audit
			a.closers = append(a.closers, audit.Close)
		}
	}

	a.Metrics = metrics.New()

	var quotes enrich.QuoteProvider
	var source broker.InstrumentSource
	if cfg.BrokerConfigured() {
		a.Kite = broker.NewKiteClient(broker.KiteConfig{
			APIKey:    cfg.Credentials.Kite.APIKey,
			APISecret: cfg.Credentials.Kite.APISecret,
		}, tokens, a.Audit, a.Logger)
		breaker := resilience.New("kite-quotes", resilience.Config{
			FailureThreshold: cfg.Broker.BreakerFailures,
			Cooldown:         cfg.Broker.BreakerCooldown,
		}, a.Logger)
		quotes = breaker.Quotes(a.Metrics.QuoteProvider("kite", a.Kite))
		source = a.Kite
		a.Logger.Debug().Msg("Kite client initialized")
	}

	a.Master = broker.NewMasterService(st, source, masterConfig(cfg), a.Audit, a.Logger)
	master := a.Metrics.MasterProvider("master", a.Master)

	pipeline := enrich.NewPipeline(quotes, master, baskets(cfg), a.Logger)
	a.Journal = journal.NewService(st, st, pipeline, a.Logger,
		journal.WithAudit(a.Audit),
		journal.WithMetrics(a.Metrics),
	)
	return nil
}

// tokenStore returns where the broker access token is kept, sealed when
// token encryption is on.
func (a *App) tokenStore(st *store.SQLiteStore) (store.KeyValueStore, error) {
	cfg := a.Config
	var kv store.KeyValueStore = st

	if cfg.Cache.Backend == "redis" {
		r, err := redis.New(redis.Config{
			Addr:      cfg.Cache.RedisAddr,
			Password:  cfg.Cache.RedisPassword,
			DB:        cfg.Cache.RedisDB,
			KeyPrefix: cfg.Cache.KeyPrefix,
			TTL:       cfg.Cache.TTL,
		}, a.Logger)
		if err != nil {
			return nil, fmt.Errorf("connecting token cache: %w", err)
		}
		a.closers = append(a.closers, r.Close)
		kv = r
	}

	if cfg.Security.EncryptTokens {
		kv = security.NewTokenSealer(kv, cfg.Credentials.Kite.TokenPassphrase)
	}
	return kv, nil
}

func masterConfig(cfg *config.Config) broker.MasterConfig {
	mc := broker.DefaultMasterConfig()
	if len(cfg.Broker.MasterExchanges) > 0 {
		mc.Exchanges = mc.Exchanges[:0]
		for _, e := range cfg.Broker.MasterExchanges {
			mc.Exchanges = append(mc.Exchanges, models.Exchange(strings.ToUpper(e)))
		}
	}
	if cfg.Broker.MasterUnderlyings != nil {
		mc.Underlyings = cfg.Broker.MasterUnderlyings
	}
	return mc
}

// baskets converts configured snapshot baskets, falling back to the built-in set.
func baskets(cfg *config.Config) []enrich.Basket {
	if len(cfg.Snapshot.Baskets) == 0 {
		return enrich.DefaultBaskets()
	}
	out := make([]enrich.Basket, len(cfg.Snapshot.Baskets))
	for i, b := range cfg.Snapshot.Baskets {
		out[i] = enrich.Basket{
			Name:            b.Name,
			ETFTickers:      b.ETFTickers,
			FuturesExchange: models.Exchange(strings.ToUpper(b.FuturesExchange)),
			FuturesRoot:     strings.ToUpper(b.FuturesRoot),
		}
	}
	return out
}
