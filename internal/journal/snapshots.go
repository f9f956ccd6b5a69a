package journal

import (
	"context"
	"fmt"
	"strings"

	"trade-journal/internal/enrich"
	"trade-journal/internal/errors"
	"trade-journal/internal/logging"
	"trade-journal/internal/models"
	"trade-journal/internal/security"
)

// BasketSnapshotRequest creates a snapshot. With no explicit legs the legs are
// seeded from live quotes of the basket named by SnapshotType.
type BasketSnapshotRequest struct {
	Name         string
	Description  *string
	SnapshotType string
	Legs         []models.SnapshotLegInput
}

// CreateSnapshot stores a snapshot, seeding basket legs when none are given.
func (s *Service) CreateSnapshot(ctx context.Context, req BasketSnapshotRequest) (*enrich.EnrichedSnapshot, error) {
	legs := req.Legs
	if len(legs) == 0 && strings.TrimSpace(req.SnapshotType) != "" {
		seeded, err := s.seedBasket(ctx, req.SnapshotType)
		if err != nil {
			return nil, err
		}
		legs = seeded
	}

	in := models.NewSnapshot{Name: req.Name, Description: req.Description, Legs: legs}
	if err := in.Validate(); err != nil {
		return nil, err
	}
	snap, err := s.snapshots.CreateSnapshot(ctx, in)
	if err != nil {
		return nil, err
	}

	logging.WithSnapshot(s.logger, snap.SnapshotID).Info().
		Str("type", req.SnapshotType).
		Int("legs", len(snap.Legs)).
		Msg("Snapshot created")
	_ = s.audit.LogEntity(ctx, security.AuditSnapshotCreated, snap.SnapshotID, map[string]interface{}{"type": req.SnapshotType, "legs": len(snap.Legs)})

	es := s.describeSnapshot(*snap)
	return &es, nil
}

func (s *Service) seedBasket(ctx context.Context, basketType string) ([]models.SnapshotLegInput, error) {
	tickers, err := s.pipeline.DiscoverTickers(ctx, basketType)
	if err != nil {
		// Discovery is best-effort; the ETF tickers are still usable.
		s.logger.Warn().Err(err).Str("type", basketType).Msg("Futures discovery failed")
	}
	if len(tickers) == 0 {
		return nil, errors.NewValidationError("snapshot_type", basketType, "unknown snapshot type")
	}

	legs, err := s.pipeline.SeedLegs(ctx, tickers, s.Today())
	if err != nil {
		return nil, fmt.Errorf("seeding %s snapshot: %w", basketType, err)
	}
	return legs, nil
}

// GetSnapshot loads a snapshot and computes live movement per leg.
func (s *Service) GetSnapshot(ctx context.Context, snapshotID int64) (*enrich.EnrichedSnapshot, error) {
	snap, err := s.snapshots.GetSnapshot(ctx, snapshotID)
	if err != nil {
		return nil, err
	}
	es := s.pipeline.EnrichSnapshot(ctx, *snap, s.Today())
	s.metrics.ObserveEnrichment("snapshot", es.QuoteError != "")
	return &es, nil
}

// ListSnapshots returns one page of snapshots without live data.
func (s *Service) ListSnapshots(ctx context.Context, page, pageSize int) ([]enrich.EnrichedSnapshot, models.Pagination, error) {
	snaps, p, err := s.snapshots.ListSnapshots(ctx, page, pageSize)
	if err != nil {
		return nil, models.Pagination{}, err
	}
	out := make([]enrich.EnrichedSnapshot, len(snaps))
	for i, snap := range snaps {
		out[i] = s.describeSnapshot(snap)
	}
	return out, p, nil
}

// UpdateSnapshot applies an update and reconciles legs by diff.
func (s *Service) UpdateSnapshot(ctx context.Context, snapshotID int64, upd models.SnapshotUpdate) (*enrich.EnrichedSnapshot, error) {
	if err := upd.Validate(); err != nil {
		return nil, err
	}
	snap, err := s.snapshots.UpdateSnapshot(ctx, snapshotID, upd)
	if err != nil {
		return nil, err
	}
	_ = s.audit.LogEntity(ctx, security.AuditSnapshotUpdated, snapshotID, map[string]interface{}{"legs": len(snap.Legs)})

	es := s.describeSnapshot(*snap)
	return &es, nil
}

// DeleteSnapshot removes a snapshot and its legs.
func (s *Service) DeleteSnapshot(ctx context.Context, snapshotID int64) error {
	if err := s.snapshots.DeleteSnapshot(ctx, snapshotID); err != nil {
		return err
	}
	logging.WithSnapshot(s.logger, snapshotID).Info().Msg("Snapshot deleted")
	_ = s.audit.LogEntity(ctx, security.AuditSnapshotDeleted, snapshotID, nil)
	return nil
}

// describeSnapshot builds the stored view of a snapshot with only the
// quote-independent movement field.
func (s *Service) describeSnapshot(snap models.Snapshot) enrich.EnrichedSnapshot {
	return enrich.DescribeSnapshot(snap, s.Today())
}
