package enrich

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trade-journal/internal/models"
)

type fakeQuotes struct {
	quotes map[string]models.Quote
	err    error
	calls  [][]string
}

func (f *fakeQuotes) GetQuotes(_ context.Context, tickers []string) (map[string]models.Quote, error) {
	f.calls = append(f.calls, tickers)
	if f.err != nil {
		return nil, f.err
	}
	out := make(map[string]models.Quote)
	for _, t := range tickers {
		if q, ok := f.quotes[t]; ok {
			out[t] = q
		}
	}
	return out, nil
}

type fakeMaster struct {
	records    map[string]models.MasterRecord
	underlying map[string][]string
	err        error
}

func (f *fakeMaster) BySymbols(_ context.Context, tickers []string) (map[string]models.MasterRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make(map[string]models.MasterRecord)
	for _, t := range tickers {
		if r, ok := f.records[t]; ok {
			out[t] = r
		}
	}
	return out, nil
}

func (f *fakeMaster) ByUnderlying(_ context.Context, root string) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.underlying[root], nil
}

var today = time.Date(2025, 11, 20, 0, 0, 0, 0, time.UTC)

const (
	etf    = "NSE:GOLDBEES-EQ"
	future = "MCX:GOLDM25DECFUT"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func quote(ltp, spread string) models.Quote {
	return models.Quote{LTP: d(ltp), Spread: d(spread)}
}

func expiryEpoch(y int, m time.Month, day int) *int64 {
	e := time.Date(y, m, day, 23, 59, 59, 0, models.IST).Unix()
	return &e
}

func sampleTrade() models.Trade {
	exitDate := today.AddDate(0, 0, -1)
	exitPrice := d("110")
	return models.Trade{
		TradeID: 7,
		Name:    "gold spread",
		Legs: []models.Leg{
			{ID: 1, TradeID: 7, Ticker: etf, EntryDate: today.AddDate(0, 0, -10), EntryPrice: d("100"),
				ExitDate: &exitDate, ExitPrice: &exitPrice, Quantity: 10},
			{ID: 2, TradeID: 7, Ticker: future, EntryDate: today.AddDate(0, 0, -5), EntryPrice: d("50"), Quantity: -5},
		},
	}
}

func newPipeline(q QuoteProvider, m MasterDataProvider) *Pipeline {
	return NewPipeline(q, m, DefaultBaskets(), zerolog.Nop())
}

func TestEnrichFillsLiveFields(t *testing.T) {
	q := &fakeQuotes{quotes: map[string]models.Quote{
		future: quote("48", "0.5"),
		etf:    quote("112", "0.1"),
	}}
	m := &fakeMaster{records: map[string]models.MasterRecord{
		future: {ExchangeSymbol: future, ExpiryEpoch: expiryEpoch(2025, 12, 5)},
	}}

	out := newPipeline(q, m).Enrich(context.Background(), sampleTrade(), today)

	assert.Empty(t, out.QuoteError)
	assert.Empty(t, out.MasterError)
	require.Len(t, q.calls, 1)
	assert.ElementsMatch(t, []string{etf, future}, q.calls[0])

	assert.True(t, out.Summary.IsOpen)
	assert.Equal(t, "100.00", out.Summary.PnL.StringFixed(2))

	// newest entry first within the trade
	fut := out.Legs[0]
	require.Equal(t, future, fut.Ticker)
	require.NotNil(t, fut.DaysLeftForExpiry)
	assert.Equal(t, 14, *fut.DaysLeftForExpiry)
	assert.Equal(t, "2025-12-05", models.FormatDate(*fut.ExpiryDate))
	assert.Equal(t, "48", fut.LTP.String())
	assert.Equal(t, "0.5", fut.Spread.String())
	assert.Equal(t, "10.00", fut.PnL.StringFixed(2))
	assert.Equal(t, "20.00", fut.PnLPercentage.StringFixed(2))

	closed := out.Legs[1]
	assert.Nil(t, closed.DaysLeftForExpiry)
	assert.Equal(t, "100.00", closed.PnL.StringFixed(2))
	assert.Equal(t, "100.00", closed.PnLPercentage.StringFixed(2))

	require.NotNil(t, out.EnrichedPnL)
	assert.Equal(t, "110.00", out.EnrichedPnL.StringFixed(2))
}

func TestEnrichSurvivesQuoteFailure(t *testing.T) {
	q := &fakeQuotes{err: errors.New("token expired")}
	m := &fakeMaster{records: map[string]models.MasterRecord{
		future: {ExchangeSymbol: future, ExpiryEpoch: expiryEpoch(2025, 12, 5)},
	}}

	out := newPipeline(q, m).Enrich(context.Background(), sampleTrade(), today)

	assert.Equal(t, "token expired", out.QuoteError)
	assert.Nil(t, out.EnrichedPnL)
	for _, leg := range out.Legs {
		assert.Nil(t, leg.LTP)
		assert.Nil(t, leg.Spread)
		assert.Nil(t, leg.PnL)
		assert.Nil(t, leg.PnLPercentage)
	}
	// expiry enrichment does not depend on quotes
	assert.NotNil(t, out.Legs[0].DaysLeftForExpiry)
	assert.Equal(t, "100.00", out.Summary.PnL.StringFixed(2))
}

func TestEnrichSurvivesMasterFailure(t *testing.T) {
	q := &fakeQuotes{quotes: map[string]models.Quote{future: quote("48", "0.5")}}
	m := &fakeMaster{err: errors.New("master cache missing")}

	out := newPipeline(q, m).Enrich(context.Background(), sampleTrade(), today)

	assert.Equal(t, "master cache missing", out.MasterError)
	assert.Nil(t, out.Legs[0].DaysLeftForExpiry)
	assert.NotNil(t, out.Legs[0].LTP)
}

func TestEnrichWithoutBroker(t *testing.T) {
	out := newPipeline(nil, nil).Enrich(context.Background(), sampleTrade(), today)

	assert.NotEmpty(t, out.QuoteError)
	assert.NotEmpty(t, out.MasterError)
	assert.Nil(t, out.EnrichedPnL)
}

func TestEnrichZeroLTPLeavesOpenLegUnpriced(t *testing.T) {
	q := &fakeQuotes{quotes: map[string]models.Quote{future: quote("0", "0")}}

	out := newPipeline(q, &fakeMaster{}).Enrich(context.Background(), sampleTrade(), today)

	assert.Nil(t, out.Legs[0].PnL)
	require.NotNil(t, out.EnrichedPnL)
	assert.Equal(t, "100.00", out.EnrichedPnL.StringFixed(2))
}

func TestDaysLeftForExpiry(t *testing.T) {
	expiry := time.Date(2025, 11, 30, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, 9, DaysLeftForExpiry(expiry, today))
	assert.Equal(t, -1, DaysLeftForExpiry(today, today))
}

func TestLivePrices(t *testing.T) {
	closedOnly := models.Trade{TradeID: 3, Name: "done", Legs: []models.Leg{sampleTrade().Legs[0]}}
	q := &fakeQuotes{quotes: map[string]models.Quote{future: quote("45", "0.5")}}

	view := newPipeline(q, nil).LivePrices(context.Background(), []models.Trade{sampleTrade(), closedOnly})

	assert.True(t, view.BrokerConfigured)
	assert.Empty(t, view.BrokerError)
	require.Len(t, view.OpenTrades, 1)
	lt := view.OpenTrades[0]
	assert.Equal(t, int64(7), lt.TradeID)
	require.Len(t, lt.Legs, 2)
	assert.Equal(t, "25.00", lt.Legs[0].UnrealizedPnL.StringFixed(2))
	assert.Equal(t, "-5.00", lt.Legs[0].PriceChange.StringFixed(2))
	assert.Equal(t, "-10.00", lt.Legs[0].PriceChangePercent.StringFixed(2))
	assert.Nil(t, lt.Legs[1].UnrealizedPnL)
	assert.Equal(t, "100.00", lt.Legs[1].StoredPnL.StringFixed(2))
	assert.Equal(t, "25.00", view.TotalUnrealizedPnL.StringFixed(2))

	// only open-leg tickers are quoted
	require.Len(t, q.calls, 1)
	assert.Equal(t, []string{future}, q.calls[0])
}

func TestLivePricesBrokerError(t *testing.T) {
	q := &fakeQuotes{err: errors.New("network down")}

	view := newPipeline(q, nil).LivePrices(context.Background(), []models.Trade{sampleTrade()})

	assert.Equal(t, "network down", view.BrokerError)
	require.Len(t, view.OpenTrades, 1)
	assert.True(t, view.TotalUnrealizedPnL.IsZero())
}

func TestLivePricesWithoutBroker(t *testing.T) {
	view := newPipeline(nil, nil).LivePrices(context.Background(), []models.Trade{sampleTrade()})

	assert.False(t, view.BrokerConfigured)
	assert.Empty(t, view.BrokerError)
	require.Len(t, view.OpenTrades, 1)
}
