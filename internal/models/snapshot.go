package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"trade-journal/internal/errors"
)

// Snapshot is a named point-in-time basket of ticker prices.
type Snapshot struct {
	SnapshotID  int64
	Name        string
	Description *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Legs        []SnapshotLeg
}

// SnapshotLeg is one ticker observation within a snapshot.
type SnapshotLeg struct {
	ID         int64
	SnapshotID int64
	Ticker     string
	Date       time.Time
	Price      decimal.Decimal
	Quantity   int64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// SnapshotLegInput carries the mutable fields of a snapshot leg.
type SnapshotLegInput struct {
	Ticker   string
	Date     time.Time
	Price    decimal.Decimal
	Quantity int64
}

// SnapshotLegPatch is one entry of a replacement snapshot leg list.
type SnapshotLegPatch struct {
	ID *int64
	SnapshotLegInput
}

// NewSnapshot holds the fields for creating a snapshot with its legs.
type NewSnapshot struct {
	Name        string
	Description *string
	Legs        []SnapshotLegInput
}

// SnapshotUpdate mirrors TradeUpdate for snapshots.
type SnapshotUpdate struct {
	Name        *string
	Description *string
	Legs        []SnapshotLegPatch
}

// Validate checks a single snapshot leg.
func (in SnapshotLegInput) Validate() error {
	if strings.TrimSpace(in.Ticker) == "" {
		return errors.NewValidationError("ticker", in.Ticker, "ticker is required")
	}
	if in.Date.IsZero() {
		return errors.NewValidationError("date", nil, "date is required")
	}
	if in.Price.IsNegative() {
		return errors.NewValidationError("price", in.Price.String(), "price must not be negative")
	}
	return nil
}

// Validate checks a snapshot creation request.
func (n NewSnapshot) Validate() error {
	if strings.TrimSpace(n.Name) == "" {
		return errors.NewValidationError("name", n.Name, "name is required")
	}
	if len(n.Legs) == 0 {
		return errors.NewValidationError("legs", 0, "at least one leg is required")
	}
	for i, leg := range n.Legs {
		if err := leg.Validate(); err != nil {
			return errors.Wrapf(err, "leg %d", i)
		}
	}
	return nil
}

// Validate checks a snapshot update request.
func (u SnapshotUpdate) Validate() error {
	if u.Name != nil && strings.TrimSpace(*u.Name) == "" {
		return errors.NewValidationError("name", *u.Name, "name must not be empty")
	}
	if u.Legs == nil {
		return nil
	}
	if len(u.Legs) == 0 {
		return errors.NewValidationError("legs", 0, "at least one leg is required")
	}
	for i, leg := range u.Legs {
		if err := leg.Validate(); err != nil {
			return errors.Wrapf(err, "leg %d", i)
		}
	}
	return nil
}

// SnapshotPatchIDs extracts the optional identifiers of a snapshot leg patch list.
func SnapshotPatchIDs(patches []SnapshotLegPatch) []*int64 {
	ids := make([]*int64, len(patches))
	for i := range patches {
		ids[i] = patches[i].ID
	}
	return ids
}
