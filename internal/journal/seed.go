package journal

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"trade-journal/internal/models"
)

// demoTrades returns sample trades covering closed, open, short and
// multi-leg positions.
func demoTrades() []models.NewTrade {
	day := func(y int, m time.Month, d int) time.Time { return time.Date(y, m, d, 0, 0, 0, 0, time.UTC) }
	price := decimal.RequireFromString
	closed := func(ticker string, entry, exit time.Time, in, out string, qty int64) models.LegInput {
		p := price(out)
		return models.LegInput{Ticker: ticker, EntryDate: entry, ExitDate: &exit, EntryPrice: price(in), ExitPrice: &p, Quantity: qty}
	}
	open := func(ticker string, entry time.Time, in string, qty int64) models.LegInput {
		return models.LegInput{Ticker: ticker, EntryDate: entry, EntryPrice: price(in), Quantity: qty}
	}
	desc := func(s string) *string { return &s }

	return []models.NewTrade{
		{
			Name: "Gold BeES swing",
			Legs: []models.LegInput{
				closed("NSE:GOLDBEES-EQ", day(2025, 1, 6), day(2025, 1, 27), "62.40", "65.10", 500),
			},
		},
		{
			Name:        "Gold ETF vs MCX carry",
			Description: desc("Long ETF, short mini future"),
			Legs: []models.LegInput{
				closed("NSE:SETFGOLD-EQ", day(2025, 2, 3), day(2025, 3, 14), "71.20", "74.05", 100),
				closed("MCX:GOLDM25MARFUT", day(2025, 2, 3), day(2025, 3, 14), "83950", "86120", -1),
			},
		},
		{
			Name: "Silver mini breakout",
			Legs: []models.LegInput{
				closed("MCX:SILVERM25APRFUT", day(2025, 3, 18), day(2025, 4, 2), "99800", "97650", 1),
			},
		},
		{
			Name:        "Gold ETF accumulation",
			Description: desc("Staggered buys, still holding"),
			Legs: []models.LegInput{
				open("NSE:GOLDIETF-EQ", day(2025, 9, 1), "88.15", 200),
				open("NSE:GOLDIETF-EQ", day(2025, 10, 6), "94.60", 200),
			},
		},
		{
			Name: "Partial exit on Groww gold",
			Legs: []models.LegInput{
				closed("NSE:GROWWGOLD-EQ", day(2025, 8, 11), day(2025, 9, 22), "9.85", "10.70", 1000),
				open("NSE:GROWWGOLD-EQ", day(2025, 8, 11), "9.85", 1000),
			},
		},
	}
}

// Seed inserts the demo trades. With clear set, every stored trade is deleted first.
func (s *Service) Seed(ctx context.Context, clear bool) (int, error) {
	if clear {
		existing, err := s.trades.AllTrades(ctx)
		if err != nil {
			return 0, err
		}
		for _, t := range existing {
			if err := s.trades.DeleteTrade(ctx, t.TradeID); err != nil {
				return 0, fmt.Errorf("clearing trade %d: %w", t.TradeID, err)
			}
		}
		s.logger.Info().Int("trades", len(existing)).Msg("Cleared trades before seeding")
	}

	created := 0
	for _, in := range demoTrades() {
		if _, err := s.CreateTrade(ctx, in); err != nil {
			return created, fmt.Errorf("seeding %q: %w", in.Name, err)
		}
		created++
	}
	return created, nil
}
