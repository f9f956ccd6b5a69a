package pnl

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"trade-journal/internal/models"
)

// TradeSummary is the trade-level roll-up of a leg set.
type TradeSummary struct {
	IsOpen    bool
	PnL       decimal.Decimal
	LegCount  int
	Tickers   []string
	EntryDate *time.Time
}

// Aggregate rolls legs up into a trade summary. A trade is open while any of
// its legs is open. PnL sums closed legs whose entry and exit prices are both
// positive; legs with placeholder zero prices are left out.
func Aggregate(legs []models.Leg) TradeSummary {
	summary := TradeSummary{
		PnL:      decimal.Zero,
		LegCount: len(legs),
		Tickers:  []string{},
	}

	seen := make(map[string]bool, len(legs))
	for i := range legs {
		leg := legs[i]

		if leg.IsOpen() {
			summary.IsOpen = true
		} else if leg.EntryPrice.IsPositive() && leg.ExitPrice.IsPositive() {
			summary.PnL = summary.PnL.Add(LegPnL(leg))
		}

		if leg.Ticker != "" && !seen[leg.Ticker] {
			seen[leg.Ticker] = true
			summary.Tickers = append(summary.Tickers, leg.Ticker)
		}

		if summary.EntryDate == nil || leg.EntryDate.Before(*summary.EntryDate) {
			d := leg.EntryDate
			summary.EntryDate = &d
		}
	}

	return summary
}

// SortLegs orders legs for display: by trade id, then newest entry first.
func SortLegs(legs []models.Leg) {
	sort.SliceStable(legs, func(i, j int) bool {
		if legs[i].TradeID != legs[j].TradeID {
			return legs[i].TradeID < legs[j].TradeID
		}
		return legs[i].EntryDate.After(legs[j].EntryDate)
	})
}

// SortSnapshotLegs orders snapshot legs by snapshot id, then newest date first.
func SortSnapshotLegs(legs []models.SnapshotLeg) {
	sort.SliceStable(legs, func(i, j int) bool {
		if legs[i].SnapshotID != legs[j].SnapshotID {
			return legs[i].SnapshotID < legs[j].SnapshotID
		}
		return legs[i].Date.After(legs[j].Date)
	})
}
