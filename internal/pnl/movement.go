package pnl

import (
	"time"

	"github.com/shopspring/decimal"

	"trade-journal/internal/models"
)

// Movement is how far a snapshot leg's ticker has moved since it was recorded.
type Movement struct {
	CurrentPrice      *decimal.Decimal
	PointsMoved       *decimal.Decimal
	PercentageMoved   *decimal.Decimal
	DaysSinceSnapshot int
}

// ComputeMovement compares a snapshot price with a live price. Points and
// percentage are set only when a live price exists and the snapshot price is
// positive, and are rounded to two places. Days since the snapshot is always set.
func ComputeMovement(leg models.SnapshotLeg, live *decimal.Decimal, today time.Time) Movement {
	m := Movement{DaysSinceSnapshot: models.DaysBetween(leg.Date, today)}

	if live == nil {
		return m
	}
	current := *live
	m.CurrentPrice = &current

	if !leg.Price.IsPositive() {
		return m
	}
	points := current.Sub(leg.Price)
	percent := points.Div(leg.Price).Mul(hundred).Round(2)
	points = points.Round(2)
	m.PointsMoved = &points
	m.PercentageMoved = &percent
	return m
}
