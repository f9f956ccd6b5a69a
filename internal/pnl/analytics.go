package pnl

import (
	"sort"

	"github.com/shopspring/decimal"

	"trade-journal/internal/models"
)

// MonthlyPnL is the realized PnL of legs closed within one calendar month.
type MonthlyPnL struct {
	Month string // YYYY-MM
	PnL   decimal.Decimal
}

// AnalyticsSummary is the journal-wide realized PnL roll-up.
type AnalyticsSummary struct {
	TotalOpenTrades   int
	TotalClosedTrades int
	OverallPnL        decimal.Decimal
	OpenTradesPnL     decimal.Decimal // realized legs inside still-open trades
	ClosedTradesPnL   decimal.Decimal
	PnLOverTime       []MonthlyPnL
}

// Summarize partitions trades into open and closed sets and sums realized PnL
// across them. A trade without legs counts as closed. Legs whose trade id is not
// in tradeIDs still contribute to the overall and monthly figures.
func Summarize(tradeIDs []int64, legs []models.Leg) AnalyticsSummary {
	summary := AnalyticsSummary{
		OverallPnL:      decimal.Zero,
		OpenTradesPnL:   decimal.Zero,
		ClosedTradesPnL: decimal.Zero,
		PnLOverTime:     []MonthlyPnL{},
	}

	open := make(map[int64]bool)
	for i := range legs {
		if legs[i].IsOpen() {
			open[legs[i].TradeID] = true
		}
	}

	closed := make(map[int64]bool, len(tradeIDs))
	counted := make(map[int64]bool, len(tradeIDs))
	for _, id := range tradeIDs {
		if counted[id] {
			continue
		}
		counted[id] = true
		if open[id] {
			summary.TotalOpenTrades++
		} else {
			closed[id] = true
			summary.TotalClosedTrades++
		}
	}

	byMonth := make(map[string]decimal.Decimal)
	for i := range legs {
		leg := legs[i]
		realized := LegPnL(leg)
		summary.OverallPnL = summary.OverallPnL.Add(realized)

		switch {
		case open[leg.TradeID]:
			summary.OpenTradesPnL = summary.OpenTradesPnL.Add(realized)
		case closed[leg.TradeID]:
			summary.ClosedTradesPnL = summary.ClosedTradesPnL.Add(realized)
		}

		if !leg.IsOpen() {
			month := leg.ExitDate.Format("2006-01")
			byMonth[month] = byMonth[month].Add(realized)
		}
	}

	for month, total := range byMonth {
		summary.PnLOverTime = append(summary.PnLOverTime, MonthlyPnL{Month: month, PnL: total})
	}
	sort.Slice(summary.PnLOverTime, func(i, j int) bool {
		return summary.PnLOverTime[i].Month < summary.PnLOverTime[j].Month
	})

	return summary
}
