package journal

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trade-journal/internal/enrich"
	journalerrors "trade-journal/internal/errors"
	"trade-journal/internal/models"
	"trade-journal/internal/security"
	"trade-journal/internal/store"
)

type fakeQuotes struct {
	quotes map[string]models.Quote
	err    error
}

func (f *fakeQuotes) GetQuotes(_ context.Context, tickers []string) (map[string]models.Quote, error) {
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
	futures []string
}

func (f *fakeMaster) BySymbols(context.Context, []string) (map[string]models.MasterRecord, error) {
	return map[string]models.MasterRecord{}, nil
}

func (f *fakeMaster) ByUnderlying(context.Context, string) ([]string, error) {
	return f.futures, nil
}

type bufCloser struct{ bytes.Buffer }

func (b *bufCloser) Close() error { return nil }

var now = time.Date(2025, 11, 20, 10, 0, 0, 0, models.IST)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func quote(ltp string) models.Quote { return models.Quote{LTP: dec(ltp)} }

func newTestService(t *testing.T, quotes enrich.QuoteProvider, master enrich.MasterDataProvider, opts ...Option) *Service {
	t.Helper()
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	pipeline := enrich.NewPipeline(quotes, master, enrich.DefaultBaskets(), zerolog.Nop())
	opts = append([]Option{WithClock(func() time.Time { return now })}, opts...)
	return NewService(st, st, pipeline, zerolog.Nop(), opts...)
}

func TestCreateTradeValidates(t *testing.T) {
	svc := newTestService(t, nil, nil)
	_, err := svc.CreateTrade(context.Background(), models.NewTrade{Name: "no legs"})
	assert.ErrorIs(t, err, journalerrors.ErrInputValidation)
}

func TestTradeLifecycleIsAudited(t *testing.T) {
	buf := &bufCloser{}
	svc := newTestService(t, nil, nil, WithAudit(security.NewAuditLoggerWithWriter(buf)))
	ctx := context.Background()

	v, err := svc.CreateTrade(ctx, demoTrades()[0])
	require.NoError(t, err)
	assert.False(t, v.Summary.IsOpen)
	assert.Equal(t, "1350.00", v.Summary.PnL.StringFixed(2))

	name := "renamed"
	_, err = svc.UpdateTrade(ctx, v.Trade.TradeID, models.TradeUpdate{Name: &name})
	require.NoError(t, err)
	require.NoError(t, svc.DeleteTrade(ctx, v.Trade.TradeID))

	_, err = svc.GetTrade(ctx, v.Trade.TradeID)
	assert.ErrorIs(t, err, journalerrors.ErrNotFound)

	log := buf.String()
	assert.Contains(t, log, string(security.AuditTradeCreated))
	assert.Contains(t, log, string(security.AuditTradeUpdated))
	assert.Contains(t, log, string(security.AuditTradeDeleted))
}

func TestGetTradeEnrichesOpenLegs(t *testing.T) {
	q := &fakeQuotes{quotes: map[string]models.Quote{"NSE:GOLDIETF-EQ": quote("100.15")}}
	svc := newTestService(t, q, nil)
	ctx := context.Background()

	v, err := svc.CreateTrade(ctx, demoTrades()[3])
	require.NoError(t, err)

	et, err := svc.GetTrade(ctx, v.Trade.TradeID)
	require.NoError(t, err)
	assert.True(t, et.Summary.IsOpen)
	assert.Empty(t, et.QuoteError)
	require.NotNil(t, et.EnrichedPnL)
	// (100.15-88.15)*200 + (100.15-94.60)*200
	assert.Equal(t, "3510.00", et.EnrichedPnL.StringFixed(2))
}

func TestGetTradeWithoutBrokerKeepsStoredValues(t *testing.T) {
	svc := newTestService(t, nil, nil)
	ctx := context.Background()

	v, err := svc.CreateTrade(ctx, demoTrades()[1])
	require.NoError(t, err)

	et, err := svc.GetTrade(ctx, v.Trade.TradeID)
	require.NoError(t, err)
	assert.NotEmpty(t, et.QuoteError)
	assert.Equal(t, "-1885.00", et.Summary.PnL.StringFixed(2))
	for _, leg := range et.Legs {
		assert.Nil(t, leg.PnL)
	}
}

func TestSeedAndAnalytics(t *testing.T) {
	svc := newTestService(t, nil, nil)
	ctx := context.Background()

	n, err := svc.Seed(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, len(demoTrades()), n)

	summary, err := svc.Analytics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.TotalOpenTrades)
	assert.Equal(t, 3, summary.TotalClosedTrades)
	assert.Equal(t, "-1835.00", summary.OverallPnL.StringFixed(2))
	assert.Equal(t, "850.00", summary.OpenTradesPnL.StringFixed(2))
	assert.Equal(t, "-2685.00", summary.ClosedTradesPnL.StringFixed(2))

	months := make([]string, len(summary.PnLOverTime))
	for i, m := range summary.PnLOverTime {
		months[i] = m.Month
	}
	assert.Equal(t, []string{"2025-01", "2025-03", "2025-04", "2025-09"}, months)

	n, err = svc.Seed(ctx, true)
	require.NoError(t, err)
	views, p, err := svc.ListTrades(ctx, 1, 100)
	require.NoError(t, err)
	assert.Len(t, views, n)
	assert.Equal(t, n, p.Count)
}

func TestLivePricesOnlyOpenTrades(t *testing.T) {
	q := &fakeQuotes{quotes: map[string]models.Quote{
		"NSE:GOLDIETF-EQ":  quote("90.15"),
		"NSE:GROWWGOLD-EQ": quote("10.85"),
	}}
	svc := newTestService(t, q, nil)
	ctx := context.Background()
	_, err := svc.Seed(ctx, false)
	require.NoError(t, err)

	view, err := svc.LivePrices(ctx)
	require.NoError(t, err)
	assert.True(t, view.BrokerConfigured)
	assert.Empty(t, view.BrokerError)
	assert.Len(t, view.OpenTrades, 2)
	// GOLDIETF: (90.15-88.15)*200 + (90.15-94.60)*200 = -490; GROWWGOLD open: (10.85-9.85)*1000 = 1000
	assert.Equal(t, "510.00", view.TotalUnrealizedPnL.StringFixed(2))
}

func TestCreateBasketSnapshot(t *testing.T) {
	q := &fakeQuotes{quotes: map[string]models.Quote{
		"NSE:GOLDBEES-EQ":   quote("65.10"),
		"NSE:SETFGOLD-EQ":   quote("74.05"),
		"MCX:GOLDM25DECFUT": quote("121500"),
	}}
	master := &fakeMaster{futures: []string{"MCX:GOLDM25DECFUT"}}
	svc := newTestService(t, q, master)
	ctx := context.Background()

	es, err := svc.CreateSnapshot(ctx, BasketSnapshotRequest{Name: "gold", SnapshotType: "GoldM"})
	require.NoError(t, err)
	assert.Equal(t, 3, es.LegCount)
	for _, leg := range es.Legs {
		assert.Equal(t, int64(1), leg.Quantity)
		assert.Equal(t, "2025-11-20", models.FormatDate(leg.Date))
		assert.Equal(t, 0, leg.DaysSinceSnapshot)
	}

	got, err := svc.GetSnapshot(ctx, es.Snapshot.SnapshotID)
	require.NoError(t, err)
	for _, leg := range got.Legs {
		require.NotNil(t, leg.PointsMoved)
		assert.True(t, leg.PointsMoved.IsZero())
	}
}

func TestCreateSnapshotUnknownType(t *testing.T) {
	svc := newTestService(t, &fakeQuotes{}, &fakeMaster{})
	_, err := svc.CreateSnapshot(context.Background(), BasketSnapshotRequest{Name: "x", SnapshotType: "platinum"})
	assert.ErrorIs(t, err, journalerrors.ErrInputValidation)
}

func TestCreateSnapshotQuoteFailure(t *testing.T) {
	svc := newTestService(t, &fakeQuotes{err: errors.New("rate limited")}, &fakeMaster{})
	_, err := svc.CreateSnapshot(context.Background(), BasketSnapshotRequest{Name: "x", SnapshotType: "goldm"})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "rate limited"))
}

func TestSnapshotExplicitLegsAndUpdate(t *testing.T) {
	svc := newTestService(t, nil, nil)
	ctx := context.Background()

	es, err := svc.CreateSnapshot(ctx, BasketSnapshotRequest{
		Name: "manual",
		Legs: []models.SnapshotLegInput{
			{Ticker: "NSE:GOLDBEES-EQ", Date: time.Date(2025, 11, 10, 0, 0, 0, 0, time.UTC), Price: dec("64"), Quantity: 2},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 10, es.Legs[0].DaysSinceSnapshot)

	id := es.Legs[0].ID
	upd := models.SnapshotUpdate{Legs: []models.SnapshotLegPatch{
		{ID: &id, SnapshotLegInput: models.SnapshotLegInput{Ticker: "NSE:GOLDBEES-EQ", Date: time.Date(2025, 11, 10, 0, 0, 0, 0, time.UTC), Price: dec("64.5"), Quantity: 3}},
		{SnapshotLegInput: models.SnapshotLegInput{Ticker: "NSE:SETFGOLD-EQ", Date: time.Date(2025, 11, 12, 0, 0, 0, 0, time.UTC), Price: dec("73"), Quantity: 1}},
	}}
	updated, err := svc.UpdateSnapshot(ctx, es.Snapshot.SnapshotID, upd)
	require.NoError(t, err)
	assert.Equal(t, 2, updated.LegCount)

	list, p, err := svc.ListSnapshots(ctx, 1, 10)
	require.NoError(t, err)
	assert.Len(t, list, 1)
	assert.Equal(t, 1, p.Count)

	require.NoError(t, svc.DeleteSnapshot(ctx, es.Snapshot.SnapshotID))
	assert.ErrorIs(t, svc.DeleteSnapshot(ctx, es.Snapshot.SnapshotID), journalerrors.ErrNotFound)
}
