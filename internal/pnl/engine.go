// Package pnl computes realized, unrealized and percentage profit-and-loss for
// journal legs, and aggregates it per trade, per month and across the journal.
//
// Every function here is pure: prices arrive as decimals, nothing is rounded
// internally, and rounding to two places is left to presentation.
package pnl

import (
	"github.com/shopspring/decimal"

	"trade-journal/internal/models"
)

var hundred = decimal.NewFromInt(100)

// LegPnL returns the realized PnL of a leg. Open legs realize nothing.
func LegPnL(leg models.Leg) decimal.Decimal {
	if leg.IsOpen() {
		return decimal.Zero
	}
	return Realized(leg.EntryPrice, *leg.ExitPrice, leg.Quantity)
}

// Realized returns (exit - entry) * qty.
func Realized(entry, exit decimal.Decimal, qty int64) decimal.Decimal {
	return exit.Sub(entry).Mul(decimal.NewFromInt(qty))
}

// UnrealizedPnL returns (current - entry) * qty. It reports false when there is
// no usable current price, which callers must keep distinct from a zero PnL.
func UnrealizedPnL(entry decimal.Decimal, current *decimal.Decimal, qty int64) (decimal.Decimal, bool) {
	if current == nil || !current.IsPositive() {
		return decimal.Zero, false
	}
	return current.Sub(entry).Mul(decimal.NewFromInt(qty)), true
}

// PnLPercentage returns ((price - entry) / entry) * 100 * qty and reports false
// when entry is not positive.
//
// The result is scaled by the signed quantity, so a 10% move on 5 lots reads
// as 50. Journal consumers rely on this figure; do not normalize it.
func PnLPercentage(entry, price decimal.Decimal, qty int64) (decimal.Decimal, bool) {
	if !entry.IsPositive() {
		return decimal.Zero, false
	}
	return price.Sub(entry).Div(entry).Mul(hundred).Mul(decimal.NewFromInt(qty)), true
}

// Round2 rounds a decimal to two places for presentation.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}
