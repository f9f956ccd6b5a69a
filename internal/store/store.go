// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"trade-journal/internal/models"
)

// TradeStore persists trades with their legs.
type TradeStore interface {
	CreateTrade(ctx context.Context, in models.NewTrade) (*models.Trade, error)
	GetTrade(ctx context.Context, tradeID int64) (*models.Trade, error)
	ListTrades(ctx context.Context, page, pageSize int) ([]models.Trade, models.Pagination, error)
	UpdateTrade(ctx context.Context, tradeID int64, upd models.TradeUpdate) (*models.Trade, error)
	DeleteTrade(ctx context.Context, tradeID int64) error

	// AllTrades returns every trade with its legs, newest first.
	AllTrades(ctx context.Context) ([]models.Trade, error)
	// OpenTrades returns the trades that have at least one open leg.
	OpenTrades(ctx context.Context) ([]models.Trade, error)
}

// SnapshotStore persists snapshots with their legs.
type SnapshotStore interface {
	CreateSnapshot(ctx context.Context, in models.NewSnapshot) (*models.Snapshot, error)
	GetSnapshot(ctx context.Context, snapshotID int64) (*models.Snapshot, error)
	ListSnapshots(ctx context.Context, page, pageSize int) ([]models.Snapshot, models.Pagination, error)
	UpdateSnapshot(ctx context.Context, snapshotID int64, upd models.SnapshotUpdate) (*models.Snapshot, error)
	DeleteSnapshot(ctx context.Context, snapshotID int64) error
}

// KeyValueStore persists small configuration values such as access tokens.
// Get returns "" with no error for a missing key.
type KeyValueStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// MasterStore caches contract master records.
type MasterStore interface {
	ReplaceMasterRecords(ctx context.Context, exchange models.Exchange, records []models.MasterRecord) (int, error)
	MasterBySymbols(ctx context.Context, tickers []string) (map[string]models.MasterRecord, error)
	MasterByUnderlying(ctx context.Context, underlying string) ([]models.MasterRecord, error)
	MasterCount(ctx context.Context) (int, error)
}

// DataStore is the full persistence surface of the journal.
type DataStore interface {
	TradeStore
	SnapshotStore
	KeyValueStore
	MasterStore

	// Sync bookkeeping
	GetLastSync(dataType SyncDataType) time.Time
	SetLastSync(dataType SyncDataType, t time.Time) error

	Ping(ctx context.Context) error
	Close() error
}

// SyncDataType names a dataset refreshed from the broker.
type SyncDataType string

const (
	SyncTypeMaster SyncDataType = "master"
)
