package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"trade-journal/internal/models"
)

// ============================================================================
// Contract Master Methods
// ============================================================================

// ReplaceMasterRecords swaps the cached records of one exchange for a fresh set.
func (s *SQLiteStore) ReplaceMasterRecords(ctx context.Context, exchange models.Exchange, records []models.MasterRecord) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM master_data WHERE exchange = ?`, string(exchange)); err != nil {
		return 0, fmt.Errorf("failed to clear master data: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO master_data
			(exchange_symbol, underlying, exchange, segment, instrument_type, symbol_details,
			 expiry_epoch, lot_size, tick_size, instrument_key, raw, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	now := s.now()
	for _, r := range records {
		_, err := stmt.ExecContext(ctx, r.ExchangeSymbol, strings.ToUpper(r.Underlying), string(exchange),
			r.Segment, r.InstrumentType, r.SymbolDetails, r.ExpiryEpoch, r.LotSize, r.TickSize.String(),
			r.InstrumentKey, r.Raw, now)
		if err != nil {
			return 0, fmt.Errorf("failed to insert master record %s: %w", r.ExchangeSymbol, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return len(records), nil
}

// MasterBySymbols returns the cached record for each known ticker, matched
// case-insensitively and keyed by the ticker as requested.
func (s *SQLiteStore) MasterBySymbols(ctx context.Context, tickers []string) (map[string]models.MasterRecord, error) {
	out := make(map[string]models.MasterRecord, len(tickers))
	if len(tickers) == 0 {
		return out, nil
	}

	requested := make(map[string][]string, len(tickers))
	args := make([]interface{}, 0, len(tickers))
	for _, t := range tickers {
		key := strings.ToUpper(t)
		if _, ok := requested[key]; !ok {
			args = append(args, key)
		}
		requested[key] = append(requested[key], t)
	}

	records, err := s.queryMaster(ctx, `
		WHERE UPPER(exchange_symbol) IN (`+placeholders(len(args))+`)
		ORDER BY expiry_epoch
	`, args...)
	if err != nil {
		return nil, err
	}

	for _, r := range records {
		for _, t := range requested[strings.ToUpper(r.ExchangeSymbol)] {
			if _, seen := out[t]; !seen {
				out[t] = r
			}
		}
	}
	return out, nil
}

// MasterByUnderlying returns cached futures on an underlying, nearest expiry first.
func (s *SQLiteStore) MasterByUnderlying(ctx context.Context, underlying string) ([]models.MasterRecord, error) {
	return s.queryMaster(ctx, `
		WHERE underlying = ? COLLATE NOCASE
		ORDER BY expiry_epoch IS NULL, expiry_epoch, exchange_symbol
	`, strings.ToUpper(underlying))
}

// MasterCount returns the number of cached records.
func (s *SQLiteStore) MasterCount(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM master_data`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count master data: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) queryMaster(ctx context.Context, clause string, args ...interface{}) ([]models.MasterRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT exchange_symbol, underlying, exchange, segment, instrument_type, symbol_details,
		       expiry_epoch, lot_size, tick_size, instrument_key, raw, updated_at
		FROM master_data `+clause, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query master data: %w", err)
	}
	defer rows.Close()

	var records []models.MasterRecord
	for rows.Next() {
		var r models.MasterRecord
		var exchange string
		var segment, instrType, details, tick, key, raw sql.NullString
		var expiry, lot sql.NullInt64
		err := rows.Scan(&r.ExchangeSymbol, &r.Underlying, &exchange, &segment, &instrType, &details,
			&expiry, &lot, &tick, &key, &raw, &r.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan master record: %w", err)
		}
		r.Exchange = models.Exchange(exchange)
		r.Segment = segment.String
		r.InstrumentType = instrType.String
		r.SymbolDetails = details.String
		r.InstrumentKey = key.String
		r.Raw = raw.String
		r.LotSize = lot.Int64
		if expiry.Valid {
			e := expiry.Int64
			r.ExpiryEpoch = &e
		}
		if tick.Valid && tick.String != "" {
			if d, err := decimal.NewFromString(tick.String); err == nil {
				r.TickSize = d
			}
		}
		records = append(records, r)
	}
	return records, rows.Err()
}
