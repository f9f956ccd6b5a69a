package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"trade-journal/internal/errors"
	"trade-journal/internal/models"
)

const snapshotSequence = "snapshots"

// ============================================================================
// Snapshot Methods
// ============================================================================

// CreateSnapshot inserts a snapshot and its legs in one transaction.
func (s *SQLiteStore) CreateSnapshot(ctx context.Context, in models.NewSnapshot) (*models.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	id, err := nextID(ctx, tx, snapshotSequence, "snapshots", "snapshot_id")
	if err != nil {
		return nil, err
	}

	now := s.now()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO snapshots (snapshot_id, name, description, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`, id, in.Name, in.Description, now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to insert snapshot: %w", err)
	}

	for _, leg := range in.Legs {
		if err := insertSnapshotLeg(ctx, tx, id, leg, now); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return s.GetSnapshot(ctx, id)
}

// GetSnapshot loads one snapshot with its legs.
func (s *SQLiteStore) GetSnapshot(ctx context.Context, snapshotID int64) (*models.Snapshot, error) {
	snaps, err := s.querySnapshots(ctx, `
		SELECT snapshot_id, name, description, created_at, updated_at
		FROM snapshots WHERE snapshot_id = ?
	`, snapshotID)
	if err != nil {
		return nil, err
	}
	if len(snaps) == 0 {
		return nil, errors.NewNotFoundError("snapshot", snapshotID)
	}
	return &snaps[0], nil
}

// ListSnapshots returns one page of snapshots, newest first.
func (s *SQLiteStore) ListSnapshots(ctx context.Context, page, pageSize int) ([]models.Snapshot, models.Pagination, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM snapshots`).Scan(&total); err != nil {
		return nil, models.Pagination{}, fmt.Errorf("failed to count snapshots: %w", err)
	}

	p := models.NewPagination(page, pageSize, total)
	snaps, err := s.querySnapshots(ctx, `
		SELECT snapshot_id, name, description, created_at, updated_at
		FROM snapshots ORDER BY snapshot_id DESC LIMIT ? OFFSET ?
	`, p.PageSize, p.Offset())
	if err != nil {
		return nil, models.Pagination{}, err
	}
	return snaps, p, nil
}

// UpdateSnapshot applies field changes and reconciles legs the same way as UpdateTrade.
func (s *SQLiteStore) UpdateSnapshot(ctx context.Context, snapshotID int64, upd models.SnapshotUpdate) (*models.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM snapshots WHERE snapshot_id = ?`, snapshotID).Scan(&exists)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError("snapshot", snapshotID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}

	now := s.now()
	if upd.Name != nil {
		if _, err := tx.ExecContext(ctx, `UPDATE snapshots SET name = ? WHERE snapshot_id = ?`, *upd.Name, snapshotID); err != nil {
			return nil, fmt.Errorf("failed to update snapshot name: %w", err)
		}
	}
	if upd.Description != nil {
		if _, err := tx.ExecContext(ctx, `UPDATE snapshots SET description = ? WHERE snapshot_id = ?`, *upd.Description, snapshotID); err != nil {
			return nil, fmt.Errorf("failed to update snapshot description: %w", err)
		}
	}

	if upd.Legs != nil {
		existing, err := legIDs(ctx, tx, `SELECT id FROM snapshot_legs WHERE snapshot_id = ? ORDER BY id`, snapshotID)
		if err != nil {
			return nil, err
		}

		diff := models.PlanLegDiff(existing, models.SnapshotPatchIDs(upd.Legs))
		for _, id := range diff.Delete {
			if _, err := tx.ExecContext(ctx, `DELETE FROM snapshot_legs WHERE id = ?`, id); err != nil {
				return nil, fmt.Errorf("failed to delete snapshot leg %d: %w", id, err)
			}
		}
		for _, i := range diff.Update {
			patch := upd.Legs[i]
			_, err := tx.ExecContext(ctx, `
				UPDATE snapshot_legs
				SET ticker = ?, date = ?, price = ?, quantity = ?, updated_at = ?
				WHERE id = ? AND snapshot_id = ?
			`, patch.Ticker, models.FormatDate(patch.Date), patch.Price, patch.Quantity, now, *patch.ID, snapshotID)
			if err != nil {
				return nil, fmt.Errorf("failed to update snapshot leg %d: %w", *patch.ID, err)
			}
		}
		for _, i := range diff.Create {
			if err := insertSnapshotLeg(ctx, tx, snapshotID, upd.Legs[i].SnapshotLegInput, now); err != nil {
				return nil, err
			}
		}
	}

	if _, err := tx.ExecContext(ctx, `UPDATE snapshots SET updated_at = ? WHERE snapshot_id = ?`, now, snapshotID); err != nil {
		return nil, fmt.Errorf("failed to touch snapshot: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return s.GetSnapshot(ctx, snapshotID)
}

// DeleteSnapshot removes a snapshot and its legs.
func (s *SQLiteStore) DeleteSnapshot(ctx context.Context, snapshotID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM snapshot_legs WHERE snapshot_id = ?`, snapshotID); err != nil {
		return fmt.Errorf("failed to delete snapshot legs: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM snapshots WHERE snapshot_id = ?`, snapshotID)
	if err != nil {
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.NewNotFoundError("snapshot", snapshotID)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func insertSnapshotLeg(ctx context.Context, tx *sql.Tx, snapshotID int64, leg models.SnapshotLegInput, now time.Time) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO snapshot_legs (snapshot_id, ticker, date, price, quantity, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, snapshotID, leg.Ticker, models.FormatDate(leg.Date), leg.Price, leg.Quantity, now, now)
	if err != nil {
		return fmt.Errorf("failed to insert snapshot leg: %w", err)
	}
	return nil
}

func (s *SQLiteStore) querySnapshots(ctx context.Context, query string, args ...interface{}) ([]models.Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer rows.Close()

	var snaps []models.Snapshot
	index := make(map[int64]int)
	for rows.Next() {
		var snap models.Snapshot
		var desc sql.NullString
		if err := rows.Scan(&snap.SnapshotID, &snap.Name, &desc, &snap.CreatedAt, &snap.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		if desc.Valid {
			snap.Description = &desc.String
		}
		snap.Legs = []models.SnapshotLeg{}
		index[snap.SnapshotID] = len(snaps)
		snaps = append(snaps, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(snaps) == 0 {
		return []models.Snapshot{}, nil
	}

	ids := make([]interface{}, len(snaps))
	for i, snap := range snaps {
		ids[i] = snap.SnapshotID
	}
	legRows, err := s.db.QueryContext(ctx, `
		SELECT id, snapshot_id, ticker, date, price, quantity, created_at, updated_at
		FROM snapshot_legs
		WHERE snapshot_id IN (`+placeholders(len(ids))+`)
		ORDER BY snapshot_id, date DESC, id
	`, ids...)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshot legs: %w", err)
	}
	defer legRows.Close()

	for legRows.Next() {
		var leg models.SnapshotLeg
		var date string
		err := legRows.Scan(&leg.ID, &leg.SnapshotID, &leg.Ticker, &date, &leg.Price, &leg.Quantity, &leg.CreatedAt, &leg.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan snapshot leg: %w", err)
		}
		if leg.Date, err = models.ParseDate(date); err != nil {
			return nil, fmt.Errorf("snapshot leg %d: %w", leg.ID, err)
		}
		i := index[leg.SnapshotID]
		snaps[i].Legs = append(snaps[i].Legs, leg)
	}
	return snaps, legRows.Err()
}
