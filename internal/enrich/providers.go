// Package enrich decorates stored trades and snapshots with live market data.
//
// Enrichment is best-effort. A failing quote or contract-master provider never
// fails the call; the affected live fields stay nil and the failure is reported
// as a diagnostic message on the result.
package enrich

import (
	"context"

	"trade-journal/internal/models"
)

// QuoteProvider fetches live quotes. Tickers without a quote are absent from
// the result; an error means the whole call failed.
type QuoteProvider interface {
	GetQuotes(ctx context.Context, tickers []string) (map[string]models.Quote, error)
}

// MasterDataProvider looks up contract master records.
type MasterDataProvider interface {
	// BySymbols returns the record for each known "EXCH:SYMBOL" ticker.
	BySymbols(ctx context.Context, tickers []string) (map[string]models.MasterRecord, error)
	// ByUnderlying returns the tickers of the nearest-expiry futures on an underlying.
	ByUnderlying(ctx context.Context, underlying string) ([]string, error)
}

func distinctTickers[T any](items []T, ticker func(T) string) []string {
	seen := make(map[string]bool, len(items))
	out := make([]string, 0, len(items))
	for _, it := range items {
		t := ticker(it)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}
