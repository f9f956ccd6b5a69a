package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"trade-journal/internal/errors"
)

// Trade is a named group of legs sharing a generated integer identifier.
type Trade struct {
	TradeID     int64
	Name        string
	Description *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Legs        []Leg
}

// Leg is one priced position within a trade.
type Leg struct {
	ID         int64
	TradeID    int64
	Ticker     string
	EntryDate  time.Time
	ExitDate   *time.Time
	EntryPrice decimal.Decimal
	ExitPrice  *decimal.Decimal
	Quantity   int64 // signed; negative is short
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// IsOpen reports whether the leg has no exit yet.
func (l Leg) IsOpen() bool {
	return l.ExitDate == nil || l.ExitPrice == nil
}

// LegInput carries the mutable fields of a leg.
type LegInput struct {
	Ticker     string
	EntryDate  time.Time
	ExitDate   *time.Time
	EntryPrice decimal.Decimal
	ExitPrice  *decimal.Decimal
	Quantity   int64
}

// LegPatch is one entry of a replacement leg list. A nil or unknown ID creates a leg.
type LegPatch struct {
	ID *int64
	LegInput
}

// NewTrade holds the fields for creating a trade with its legs.
type NewTrade struct {
	Name        string
	Description *string
	Legs        []LegInput
}

// TradeUpdate replaces trade fields. Nil fields are left untouched; a non-nil Legs
// slice replaces the leg set by diff.
type TradeUpdate struct {
	Name        *string
	Description *string
	Legs        []LegPatch
}

// Validate checks a single leg's fields.
func (in LegInput) Validate() error {
	if strings.TrimSpace(in.Ticker) == "" {
		return errors.NewValidationError("ticker", in.Ticker, "ticker is required")
	}
	if in.EntryDate.IsZero() {
		return errors.NewValidationError("entry_date", nil, "entry date is required")
	}
	if in.EntryPrice.IsNegative() {
		return errors.NewValidationError("entry_price", in.EntryPrice.String(), "entry price must not be negative")
	}
	if (in.ExitDate == nil) != (in.ExitPrice == nil) {
		return errors.NewValidationError("exit_price", nil, "exit date and exit price must be set together")
	}
	if in.ExitPrice != nil && in.ExitPrice.IsNegative() {
		return errors.NewValidationError("exit_price", in.ExitPrice.String(), "exit price must not be negative")
	}
	return nil
}

// Validate checks a trade creation request.
func (n NewTrade) Validate() error {
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

// Validate checks a trade update request.
func (u TradeUpdate) Validate() error {
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

// LegDiff is the reconciliation plan of a replacement leg list against stored legs.
// Update and Create hold indexes into the patch list.
type LegDiff struct {
	Update []int
	Create []int
	Delete []int64
}

// PlanLegDiff reconciles patch ids against the ids of the currently stored legs.
// Known ids are updated in place, missing or unknown ids are created and stored
// legs absent from the patch list are deleted. A known id listed twice is updated
// once; later duplicates are created.
func PlanLegDiff(existing []int64, patchIDs []*int64) LegDiff {
	known := make(map[int64]bool, len(existing))
	for _, id := range existing {
		known[id] = true
	}

	var diff LegDiff
	kept := make(map[int64]bool, len(patchIDs))
	for i, id := range patchIDs {
		if id != nil && known[*id] && !kept[*id] {
			kept[*id] = true
			diff.Update = append(diff.Update, i)
			continue
		}
		diff.Create = append(diff.Create, i)
	}

	for _, id := range existing {
		if !kept[id] {
			diff.Delete = append(diff.Delete, id)
		}
	}
	return diff
}

// PatchIDs extracts the optional identifiers of a leg patch list.
func PatchIDs(patches []LegPatch) []*int64 {
	ids := make([]*int64, len(patches))
	for i := range patches {
		ids[i] = patches[i].ID
	}
	return ids
}
