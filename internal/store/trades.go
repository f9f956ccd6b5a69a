package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"trade-journal/internal/errors"
	"trade-journal/internal/models"
)

const tradeSequence = "trades"

// ============================================================================
// Trade Methods
// ============================================================================

// CreateTrade inserts a trade and its legs in one transaction.
func (s *SQLiteStore) CreateTrade(ctx context.Context, in models.NewTrade) (*models.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	id, err := nextID(ctx, tx, tradeSequence, "trades", "trade_id")
	if err != nil {
		return nil, err
	}

	now := s.now()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO trades (trade_id, name, description, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`, id, in.Name, in.Description, now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to insert trade: %w", err)
	}

	for _, leg := range in.Legs {
		if err := insertTradeLeg(ctx, tx, id, leg, now); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return s.GetTrade(ctx, id)
}

// GetTrade loads one trade with its legs.
func (s *SQLiteStore) GetTrade(ctx context.Context, tradeID int64) (*models.Trade, error) {
	trades, err := s.queryTrades(ctx, `
		SELECT trade_id, name, description, created_at, updated_at
		FROM trades WHERE trade_id = ?
	`, tradeID)
	if err != nil {
		return nil, err
	}
	if len(trades) == 0 {
		return nil, errors.NewNotFoundError("trade", tradeID)
	}
	return &trades[0], nil
}

// ListTrades returns one page of trades, newest first.
func (s *SQLiteStore) ListTrades(ctx context.Context, page, pageSize int) ([]models.Trade, models.Pagination, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM trades`).Scan(&total); err != nil {
		return nil, models.Pagination{}, fmt.Errorf("failed to count trades: %w", err)
	}

	p := models.NewPagination(page, pageSize, total)
	trades, err := s.queryTrades(ctx, `
		SELECT trade_id, name, description, created_at, updated_at
		FROM trades ORDER BY trade_id DESC LIMIT ? OFFSET ?
	`, p.PageSize, p.Offset())
	if err != nil {
		return nil, models.Pagination{}, err
	}
	return trades, p, nil
}

// AllTrades returns every trade with its legs, newest first.
func (s *SQLiteStore) AllTrades(ctx context.Context) ([]models.Trade, error) {
	return s.queryTrades(ctx, `
		SELECT trade_id, name, description, created_at, updated_at
		FROM trades ORDER BY trade_id DESC
	`)
}

// OpenTrades returns the trades that have at least one open leg.
func (s *SQLiteStore) OpenTrades(ctx context.Context) ([]models.Trade, error) {
	return s.queryTrades(ctx, `
		SELECT trade_id, name, description, created_at, updated_at
		FROM trades
		WHERE trade_id IN (
			SELECT DISTINCT trade_id FROM trade_legs WHERE exit_date IS NULL OR exit_price IS NULL
		)
		ORDER BY trade_id DESC
	`)
}

// UpdateTrade applies field changes and, when legs are given, reconciles the
// stored legs against them: known ids are updated, new or unknown ids created
// and omitted legs deleted.
func (s *SQLiteStore) UpdateTrade(ctx context.Context, tradeID int64, upd models.TradeUpdate) (*models.Trade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM trades WHERE trade_id = ?`, tradeID).Scan(&exists)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError("trade", tradeID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load trade: %w", err)
	}

	now := s.now()
	if upd.Name != nil {
		if _, err := tx.ExecContext(ctx, `UPDATE trades SET name = ? WHERE trade_id = ?`, *upd.Name, tradeID); err != nil {
			return nil, fmt.Errorf("failed to update trade name: %w", err)
		}
	}
	if upd.Description != nil {
		if _, err := tx.ExecContext(ctx, `UPDATE trades SET description = ? WHERE trade_id = ?`, *upd.Description, tradeID); err != nil {
			return nil, fmt.Errorf("failed to update trade description: %w", err)
		}
	}

	if upd.Legs != nil {
		existing, err := legIDs(ctx, tx, `SELECT id FROM trade_legs WHERE trade_id = ? ORDER BY id`, tradeID)
		if err != nil {
			return nil, err
		}

		diff := models.PlanLegDiff(existing, models.PatchIDs(upd.Legs))
		for _, id := range diff.Delete {
			if _, err := tx.ExecContext(ctx, `DELETE FROM trade_legs WHERE id = ?`, id); err != nil {
				return nil, fmt.Errorf("failed to delete leg %d: %w", id, err)
			}
		}
		for _, i := range diff.Update {
			patch := upd.Legs[i]
			_, err := tx.ExecContext(ctx, `
				UPDATE trade_legs
				SET ticker = ?, entry_date = ?, exit_date = ?, entry_price = ?, exit_price = ?, quantity = ?, updated_at = ?
				WHERE id = ? AND trade_id = ?
			`, patch.Ticker, models.FormatDate(patch.EntryDate), nullableDate(patch.ExitDate),
				patch.EntryPrice, nullableDecimal(patch.ExitPrice), patch.Quantity, now, *patch.ID, tradeID)
			if err != nil {
				return nil, fmt.Errorf("failed to update leg %d: %w", *patch.ID, err)
			}
		}
		for _, i := range diff.Create {
			if err := insertTradeLeg(ctx, tx, tradeID, upd.Legs[i].LegInput, now); err != nil {
				return nil, err
			}
		}
	}

	if _, err := tx.ExecContext(ctx, `UPDATE trades SET updated_at = ? WHERE trade_id = ?`, now, tradeID); err != nil {
		return nil, fmt.Errorf("failed to touch trade: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return s.GetTrade(ctx, tradeID)
}

// DeleteTrade removes a trade and its legs.
func (s *SQLiteStore) DeleteTrade(ctx context.Context, tradeID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM trade_legs WHERE trade_id = ?`, tradeID); err != nil {
		return fmt.Errorf("failed to delete trade legs: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM trades WHERE trade_id = ?`, tradeID)
	if err != nil {
		return fmt.Errorf("failed to delete trade: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.NewNotFoundError("trade", tradeID)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func insertTradeLeg(ctx context.Context, tx *sql.Tx, tradeID int64, leg models.LegInput, now time.Time) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO trade_legs (trade_id, ticker, entry_date, exit_date, entry_price, exit_price, quantity, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, tradeID, leg.Ticker, models.FormatDate(leg.EntryDate), nullableDate(leg.ExitDate),
		leg.EntryPrice, nullableDecimal(leg.ExitPrice), leg.Quantity, now, now)
	if err != nil {
		return fmt.Errorf("failed to insert leg: %w", err)
	}
	return nil
}

// queryTrades runs a trade header query and attaches each trade's legs.
func (s *SQLiteStore) queryTrades(ctx context.Context, query string, args ...interface{}) ([]models.Trade, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	defer rows.Close()

	var trades []models.Trade
	index := make(map[int64]int)
	for rows.Next() {
		var t models.Trade
		var desc sql.NullString
		if err := rows.Scan(&t.TradeID, &t.Name, &desc, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		if desc.Valid {
			t.Description = &desc.String
		}
		t.Legs = []models.Leg{}
		index[t.TradeID] = len(trades)
		trades = append(trades, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(trades) == 0 {
		return []models.Trade{}, nil
	}

	ids := make([]interface{}, len(trades))
	for i, t := range trades {
		ids[i] = t.TradeID
	}
	legRows, err := s.db.QueryContext(ctx, `
		SELECT id, trade_id, ticker, entry_date, exit_date, entry_price, exit_price, quantity, created_at, updated_at
		FROM trade_legs
		WHERE trade_id IN (`+placeholders(len(ids))+`)
		ORDER BY trade_id, entry_date DESC, id
	`, ids...)
	if err != nil {
		return nil, fmt.Errorf("failed to query trade legs: %w", err)
	}
	defer legRows.Close()

	for legRows.Next() {
		leg, err := scanTradeLeg(legRows)
		if err != nil {
			return nil, err
		}
		i := index[leg.TradeID]
		trades[i].Legs = append(trades[i].Legs, leg)
	}
	return trades, legRows.Err()
}

func scanTradeLeg(rows *sql.Rows) (models.Leg, error) {
	var leg models.Leg
	var entryDate string
	var exitDate sql.NullString
	var exitPrice decimal.NullDecimal
	err := rows.Scan(&leg.ID, &leg.TradeID, &leg.Ticker, &entryDate, &exitDate,
		&leg.EntryPrice, &exitPrice, &leg.Quantity, &leg.CreatedAt, &leg.UpdatedAt)
	if err != nil {
		return leg, fmt.Errorf("failed to scan trade leg: %w", err)
	}

	if leg.EntryDate, err = models.ParseDate(entryDate); err != nil {
		return leg, fmt.Errorf("leg %d: %w", leg.ID, err)
	}
	if exitDate.Valid {
		d, err := models.ParseDate(exitDate.String)
		if err != nil {
			return leg, fmt.Errorf("leg %d: %w", leg.ID, err)
		}
		leg.ExitDate = &d
	}
	if exitPrice.Valid {
		leg.ExitPrice = &exitPrice.Decimal
	}
	return leg, nil
}

func legIDs(ctx context.Context, tx *sql.Tx, query string, parentID int64) ([]int64, error) {
	rows, err := tx.QueryContext(ctx, query, parentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query leg ids: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan leg id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func nullableDate(d *time.Time) interface{} {
	if d == nil {
		return nil
	}
	return models.FormatDate(*d)
}

func nullableDecimal(d *decimal.Decimal) interface{} {
	if d == nil {
		return nil
	}
	return d.String()
}
