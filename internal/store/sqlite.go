package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"trade-journal/internal/errors"
)

// SQLiteStore implements DataStore using SQLite.
type SQLiteStore struct {
	db        *sql.DB
	mu        sync.RWMutex // serializes write transactions
	syncMu    sync.RWMutex
	syncTimes map[SyncDataType]time.Time
	now       func() time.Time
}

// NewSQLiteStore creates a new SQLite-based data store.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open database: %v", errors.ErrDatabaseError, err)
	}

	// Configure connection pool for concurrent access
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	store := &SQLiteStore{
		db:        db,
		syncTimes: make(map[SyncDataType]time.Time),
		now:       time.Now,
	}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: failed to initialize schema: %v", errors.ErrDatabaseError, err)
	}

	return store, nil
}

// initSchema creates all required tables and indexes.
func (s *SQLiteStore) initSchema() error {
	schema := `
	-- Trades: a named group of legs
	CREATE TABLE IF NOT EXISTS trades (
		trade_id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS trade_legs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		trade_id INTEGER NOT NULL REFERENCES trades(trade_id) ON DELETE CASCADE,
		ticker TEXT NOT NULL,
		entry_date TEXT NOT NULL,
		exit_date TEXT,
		entry_price TEXT NOT NULL,
		exit_price TEXT,
		quantity INTEGER NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_trade_legs_trade ON trade_legs(trade_id);
	CREATE INDEX IF NOT EXISTS idx_trade_legs_open ON trade_legs(exit_price) WHERE exit_price IS NULL;

	-- Snapshots: point-in-time ticker baskets
	CREATE TABLE IF NOT EXISTS snapshots (
		snapshot_id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS snapshot_legs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		snapshot_id INTEGER NOT NULL REFERENCES snapshots(snapshot_id) ON DELETE CASCADE,
		ticker TEXT NOT NULL,
		date TEXT NOT NULL,
		price TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_snapshot_legs_snapshot ON snapshot_legs(snapshot_id);
	CREATE INDEX IF NOT EXISTS idx_snapshot_legs_date ON snapshot_legs(date);

	-- Highest id ever issued per entity, so deleted ids are not reused
	CREATE TABLE IF NOT EXISTS id_sequences (
		name TEXT PRIMARY KEY,
		last_id INTEGER NOT NULL
	);

	-- Key/value configuration (access tokens)
	CREATE TABLE IF NOT EXISTS configuration (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at DATETIME NOT NULL
	);

	-- Contract master cache
	CREATE TABLE IF NOT EXISTS master_data (
		exchange_symbol TEXT PRIMARY KEY,
		underlying TEXT NOT NULL,
		exchange TEXT NOT NULL,
		segment TEXT,
		instrument_type TEXT,
		symbol_details TEXT,
		expiry_epoch INTEGER,
		lot_size INTEGER,
		tick_size TEXT,
		instrument_key TEXT,
		raw TEXT,
		updated_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_master_underlying ON master_data(underlying COLLATE NOCASE);
	CREATE INDEX IF NOT EXISTS idx_master_exchange ON master_data(exchange);

	-- Sync status tracking
	CREATE TABLE IF NOT EXISTS sync_status (
		data_type TEXT PRIMARY KEY,
		last_sync DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Ping verifies the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrDatabaseError, err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ============================================================================
// Id Sequences
// ============================================================================

// nextID issues max(max existing id, highest id ever issued) + 1 for an entity.
// table and column are package constants, never user input.
func nextID(ctx context.Context, tx *sql.Tx, sequence, table, column string) (int64, error) {
	var maxExisting int64
	query := fmt.Sprintf("SELECT COALESCE(MAX(%s), 0) FROM %s", column, table)
	if err := tx.QueryRowContext(ctx, query).Scan(&maxExisting); err != nil {
		return 0, fmt.Errorf("failed to read max %s: %w", column, err)
	}

	var lastIssued int64
	err := tx.QueryRowContext(ctx, `SELECT last_id FROM id_sequences WHERE name = ?`, sequence).Scan(&lastIssued)
	if err != nil && err != sql.ErrNoRows {
		return 0, fmt.Errorf("failed to read sequence %s: %w", sequence, err)
	}

	next := max(maxExisting, lastIssued) + 1
	_, err = tx.ExecContext(ctx, `
		INSERT INTO id_sequences (name, last_id) VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET last_id = excluded.last_id
	`, sequence, next)
	if err != nil {
		return 0, fmt.Errorf("failed to advance sequence %s: %w", sequence, err)
	}
	return next, nil
}

// ============================================================================
// Configuration Methods
// ============================================================================

// Get returns a configuration value, or "" if the key is not set.
func (s *SQLiteStore) Get(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM configuration WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get configuration %s: %w", key, err)
	}
	return value, nil
}

// Set stores a configuration value.
func (s *SQLiteStore) Set(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO configuration (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value, s.now())
	if err != nil {
		return fmt.Errorf("failed to set configuration %s: %w", key, err)
	}
	return nil
}

// Delete removes a configuration value.
func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM configuration WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete configuration %s: %w", key, err)
	}
	return nil
}

// ============================================================================
// Sync Methods
// ============================================================================

// GetLastSync returns the last sync time for a data type.
func (s *SQLiteStore) GetLastSync(dataType SyncDataType) time.Time {
	s.syncMu.RLock()
	if t, ok := s.syncTimes[dataType]; ok {
		s.syncMu.RUnlock()
		return t
	}
	s.syncMu.RUnlock()

	var lastSync time.Time
	err := s.db.QueryRow(`
		SELECT last_sync FROM sync_status WHERE data_type = ?
	`, string(dataType)).Scan(&lastSync)
	if err != nil {
		return time.Time{}
	}

	s.syncMu.Lock()
	s.syncTimes[dataType] = lastSync
	s.syncMu.Unlock()

	return lastSync
}

// SetLastSync sets the last sync time for a data type.
func (s *SQLiteStore) SetLastSync(dataType SyncDataType, t time.Time) error {
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO sync_status (data_type, last_sync, updated_at)
		VALUES (?, ?, ?)
	`, string(dataType), t, s.now())
	if err != nil {
		return fmt.Errorf("failed to set last sync: %w", err)
	}

	s.syncMu.Lock()
	s.syncTimes[dataType] = t
	s.syncMu.Unlock()

	return nil
}

// placeholders returns "?, ?, ..." for n parameters.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

var _ DataStore = (*SQLiteStore)(nil)
