package enrich

import (
	"context"
	"fmt"
	"strings"
	"time"

	"trade-journal/internal/errors"
	"trade-journal/internal/logging"
	"trade-journal/internal/models"
	"trade-journal/internal/pnl"
)

// futuresMarker identifies futures contracts in exchange symbols.
const futuresMarker = "FUT"

// Basket is a recognized snapshot category whose tickers are discovered
// automatically: a fixed ETF list plus the nearest-expiry future on a root.
type Basket struct {
	Name            string
	ETFTickers      []string
	FuturesExchange models.Exchange
	FuturesRoot     string
}

// DefaultBaskets returns the built-in basket definitions.
func DefaultBaskets() []Basket {
	return []Basket{
		{
			Name:            "goldm",
			ETFTickers:      []string{"NSE:GOLDIETF-EQ", "NSE:SETFGOLD-EQ", "NSE:GROWWGOLD-EQ", "NSE:GOLDBEES-EQ"},
			FuturesExchange: models.MCX,
			FuturesRoot:     "GOLDM",
		},
	}
}

func basketKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// EnrichedSnapshotLeg is a stored snapshot leg plus its movement since recording.
type EnrichedSnapshotLeg struct {
	models.SnapshotLeg
	pnl.Movement
}

// EnrichedSnapshot is a snapshot with live movement per leg.
type EnrichedSnapshot struct {
	Snapshot   models.Snapshot
	LegCount   int
	Tickers    []string
	Legs       []EnrichedSnapshotLeg
	QuoteError string
}

// DescribeSnapshot returns the snapshot with legs in display order and only
// the quote-independent movement field filled in.
func DescribeSnapshot(snap models.Snapshot, today time.Time) EnrichedSnapshot {
	legs := append([]models.SnapshotLeg(nil), snap.Legs...)
	pnl.SortSnapshotLegs(legs)

	out := EnrichedSnapshot{
		Snapshot: snap,
		LegCount: len(legs),
		Tickers:  distinctTickers(legs, func(l models.SnapshotLeg) string { return l.Ticker }),
		Legs:     make([]EnrichedSnapshotLeg, len(legs)),
	}
	for i, leg := range legs {
		out.Legs[i] = EnrichedSnapshotLeg{
			SnapshotLeg: leg,
			Movement:    pnl.ComputeMovement(leg, nil, today),
		}
	}
	return out
}

// EnrichSnapshot computes movement for every leg. Days since the snapshot are
// always filled in; price movement only when quotes are available.
func (p *Pipeline) EnrichSnapshot(ctx context.Context, snap models.Snapshot, today time.Time) EnrichedSnapshot {
	out := DescribeSnapshot(snap, today)
	if len(out.Tickers) == 0 {
		return out
	}

	quotes, err := p.fetchQuotes(ctx, out.Tickers)
	if err != nil {
		out.QuoteError = err.Error()
	}

	for i := range out.Legs {
		leg := out.Legs[i].SnapshotLeg
		q, ok := quotes[leg.Ticker]
		if !ok {
			continue
		}
		ltp := q.LTP
		if !q.HasPrice() {
			// Untraded: show the quoted price, but a zero LTP is not a move.
			out.Legs[i].CurrentPrice = &ltp
			continue
		}
		out.Legs[i].Movement = pnl.ComputeMovement(leg, &ltp, today)
	}

	logging.LogEnrichment(p.logger, "snapshot", snap.SnapshotID, len(out.Tickers), len(quotes), out.QuoteError, "")
	return out
}

// DiscoverTickers resolves the tickers of a basket type. Unknown baskets yield
// an empty list. When the contract master lookup fails the ETF tickers are still
// returned alongside the error.
func (p *Pipeline) DiscoverTickers(ctx context.Context, basketType string) ([]string, error) {
	basket, ok := p.baskets[basketKey(basketType)]
	if !ok {
		return []string{}, nil
	}

	tickers := append([]string{}, basket.ETFTickers...)
	if basket.FuturesRoot == "" {
		return tickers, nil
	}
	if p.master == nil {
		return tickers, fmt.Errorf("discovering %s futures: %w", basket.Name, errors.ErrBrokerUnavailable)
	}

	futures, err := p.master.ByUnderlying(ctx, basket.FuturesRoot)
	if err != nil {
		return tickers, fmt.Errorf("discovering %s futures: %w", basket.Name, err)
	}

	prefix := strings.ToUpper(models.Ticker(basket.FuturesExchange, basket.FuturesRoot))
	for _, sym := range futures {
		upper := strings.ToUpper(sym)
		if strings.Contains(upper, futuresMarker) && strings.Contains(upper, prefix) {
			tickers = append(tickers, sym)
		}
	}
	return tickers, nil
}

// SeedLegs fetches quotes for tickers and seeds one leg per quoted ticker with
// the live price, quantity 1 and today's date. Tickers without a price are skipped.
func (p *Pipeline) SeedLegs(ctx context.Context, tickers []string, today time.Time) ([]models.SnapshotLegInput, error) {
	if len(tickers) == 0 {
		return []models.SnapshotLegInput{}, nil
	}
	quotes, err := p.fetchQuotes(ctx, tickers)
	if err != nil {
		return nil, fmt.Errorf("fetching seed quotes: %w", err)
	}

	legs := make([]models.SnapshotLegInput, 0, len(tickers))
	for _, t := range tickers {
		q, ok := quotes[t]
		if !ok || !q.HasPrice() {
			p.logger.Debug().Str("ticker", t).Msg("No live price, skipping seed leg")
			continue
		}
		legs = append(legs, models.SnapshotLegInput{
			Ticker:   t,
			Date:     models.Day(today),
			Price:    q.LTP,
			Quantity: 1,
		})
	}
	return legs, nil
}
