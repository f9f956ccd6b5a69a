package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trade-journal/internal/errors"
	"trade-journal/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func ptr[T any](v T) *T { return &v }

func openLegInput(ticker string) models.LegInput {
	return models.LegInput{Ticker: ticker, EntryDate: day(2025, 1, 2), EntryPrice: dec("100.50"), Quantity: 10}
}

func closedLegInput(ticker string) models.LegInput {
	leg := openLegInput(ticker)
	leg.ExitDate = ptr(day(2025, 1, 20))
	leg.ExitPrice = ptr(dec("110.25"))
	return leg
}

func createTrade(t *testing.T, s *SQLiteStore, name string, legs ...models.LegInput) *models.Trade {
	t.Helper()
	tr, err := s.CreateTrade(context.Background(), models.NewTrade{Name: name, Legs: legs})
	require.NoError(t, err)
	return tr
}

func TestCreateAndGetTrade(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created, err := s.CreateTrade(ctx, models.NewTrade{
		Name:        "gold carry",
		Description: ptr("etf vs future"),
		Legs:        []models.LegInput{closedLegInput("NSE:GOLDBEES-EQ"), openLegInput("MCX:GOLDM25DECFUT")},
	})
	require.NoError(t, err)

	assert.Equal(t, int64(1), created.TradeID)
	assert.Equal(t, "etf vs future", *created.Description)
	require.Len(t, created.Legs, 2)

	got, err := s.GetTrade(ctx, created.TradeID)
	require.NoError(t, err)
	var closed models.Leg
	for _, l := range got.Legs {
		if !l.IsOpen() {
			closed = l
		}
	}
	require.NotNil(t, closed.ExitPrice)
	assert.Equal(t, "110.25", closed.ExitPrice.String())
	assert.Equal(t, "100.5", closed.EntryPrice.String())
	assert.Equal(t, day(2025, 1, 20), *closed.ExitDate)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestGetTradeNotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetTrade(context.Background(), 99)

	assert.True(t, errors.Is(err, errors.ErrNotFound))
	assert.False(t, errors.Is(err, errors.ErrInputValidation))
}

func TestTradeIDsAreNeverReused(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 7; i++ {
		createTrade(t, s, "t", openLegInput("NSE:INFY-EQ"))
	}
	eighth := createTrade(t, s, "t", openLegInput("NSE:INFY-EQ"))
	assert.Equal(t, int64(8), eighth.TradeID)

	require.NoError(t, s.DeleteTrade(ctx, 8))
	ninth := createTrade(t, s, "t", openLegInput("NSE:INFY-EQ"))
	assert.Equal(t, int64(9), ninth.TradeID)
}

func TestProperty_TradeIDsStrictlyIncrease(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 30
	properties := gopter.NewProperties(parameters)

	properties.Property("a new trade id exceeds every id issued before", prop.ForAll(
		func(deleteLast bool) bool {
			before, err := s.AllTrades(ctx)
			if err != nil {
				return false
			}
			tr, err := s.CreateTrade(ctx, models.NewTrade{Name: "p", Legs: []models.LegInput{openLegInput("NSE:X")}})
			if err != nil {
				return false
			}
			for _, b := range before {
				if b.TradeID >= tr.TradeID {
					return false
				}
			}
			if deleteLast {
				return s.DeleteTrade(ctx, tr.TradeID) == nil
			}
			return true
		},
		gen.Bool(),
	))

	properties.TestingRun(t)
}

func TestUpdateTradeByDiff(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	tr := createTrade(t, s, "diff", openLegInput("A"), openLegInput("B"), openLegInput("C"))
	ids := map[string]int64{}
	for _, l := range tr.Legs {
		ids[l.Ticker] = l.ID
	}

	modified := closedLegInput("A2")
	updated, err := s.UpdateTrade(ctx, tr.TradeID, models.TradeUpdate{
		Name: ptr("renamed"),
		Legs: []models.LegPatch{
			{ID: ptr(ids["A"]), LegInput: modified},
			{LegInput: openLegInput("D")},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "renamed", updated.Name)
	require.Len(t, updated.Legs, 2)
	byTicker := map[string]models.Leg{}
	for _, l := range updated.Legs {
		byTicker[l.Ticker] = l
	}
	assert.Equal(t, ids["A"], byTicker["A2"].ID)
	assert.False(t, byTicker["A2"].IsOpen())
	assert.NotContains(t, []int64{ids["B"], ids["C"]}, byTicker["D"].ID)
}

func TestUpdateTradeUnknownLegIDCreates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	tr := createTrade(t, s, "x", openLegInput("A"))
	other := createTrade(t, s, "y", openLegInput("B"))

	updated, err := s.UpdateTrade(ctx, tr.TradeID, models.TradeUpdate{
		Legs: []models.LegPatch{{ID: ptr(other.Legs[0].ID), LegInput: openLegInput("C")}},
	})
	require.NoError(t, err)

	require.Len(t, updated.Legs, 1)
	assert.Equal(t, "C", updated.Legs[0].Ticker)
	assert.NotEqual(t, other.Legs[0].ID, updated.Legs[0].ID)

	untouched, err := s.GetTrade(ctx, other.TradeID)
	require.NoError(t, err)
	assert.Equal(t, "B", untouched.Legs[0].Ticker)
}

func TestUpdateTradeWithoutLegsKeepsLegs(t *testing.T) {
	s := newTestStore(t)
	tr := createTrade(t, s, "x", openLegInput("A"), openLegInput("B"))

	updated, err := s.UpdateTrade(context.Background(), tr.TradeID, models.TradeUpdate{Description: ptr("note")})
	require.NoError(t, err)

	assert.Len(t, updated.Legs, 2)
	assert.Equal(t, "note", *updated.Description)
}

func TestUpdateAndDeleteMissingTrade(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.UpdateTrade(ctx, 5, models.TradeUpdate{Name: ptr("x")})
	assert.True(t, errors.Is(err, errors.ErrNotFound))

	err = s.DeleteTrade(ctx, 5)
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestListTradesPaginates(t *testing.T) {
	s := newTestStore(t)
	for i := 0; i < 12; i++ {
		createTrade(t, s, "t", openLegInput("NSE:X"))
	}

	page, p, err := s.ListTrades(context.Background(), 2, 5)
	require.NoError(t, err)

	assert.Equal(t, models.Pagination{Count: 12, TotalPages: 3, CurrentPage: 2, PageSize: 5}, p)
	require.Len(t, page, 5)
	assert.Equal(t, int64(7), page[0].TradeID)
	assert.Equal(t, int64(3), page[4].TradeID)
}

func TestOpenTrades(t *testing.T) {
	s := newTestStore(t)
	createTrade(t, s, "closed", closedLegInput("A"))
	open := createTrade(t, s, "open", closedLegInput("A"), openLegInput("B"))

	trades, err := s.OpenTrades(context.Background())
	require.NoError(t, err)

	require.Len(t, trades, 1)
	assert.Equal(t, open.TradeID, trades[0].TradeID)
	assert.Len(t, trades[0].Legs, 2)
}

func TestSnapshotLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	snap, err := s.CreateSnapshot(ctx, models.NewSnapshot{
		Name: "goldm",
		Legs: []models.SnapshotLegInput{
			{Ticker: "NSE:GOLDBEES-EQ", Date: day(2025, 3, 1), Price: dec("61.2"), Quantity: 1},
			{Ticker: "MCX:GOLDM25APRFUT", Date: day(2025, 3, 1), Price: dec("86000"), Quantity: 1},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), snap.SnapshotID)
	require.Len(t, snap.Legs, 2)

	keep := snap.Legs[0]
	updated, err := s.UpdateSnapshot(ctx, snap.SnapshotID, models.SnapshotUpdate{
		Legs: []models.SnapshotLegPatch{{ID: &keep.ID, SnapshotLegInput: models.SnapshotLegInput{
			Ticker: keep.Ticker, Date: keep.Date, Price: dec("62"), Quantity: 2,
		}}},
	})
	require.NoError(t, err)
	require.Len(t, updated.Legs, 1)
	assert.Equal(t, keep.ID, updated.Legs[0].ID)
	assert.Equal(t, "62", updated.Legs[0].Price.String())

	list, p, err := s.ListSnapshots(ctx, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, p.Count)
	assert.Len(t, list, 1)

	require.NoError(t, s.DeleteSnapshot(ctx, snap.SnapshotID))
	_, err = s.GetSnapshot(ctx, snap.SnapshotID)
	assert.True(t, errors.Is(err, errors.ErrNotFound))

	again, err := s.CreateSnapshot(ctx, models.NewSnapshot{
		Name: "again",
		Legs: []models.SnapshotLegInput{{Ticker: "NSE:X", Date: day(2025, 3, 2), Price: dec("1"), Quantity: 1}},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), again.SnapshotID)
}

func TestConfigurationKeyValue(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	v, err := s.Get(ctx, "kite_access_token")
	require.NoError(t, err)
	assert.Empty(t, v)

	require.NoError(t, s.Set(ctx, "kite_access_token", "abc"))
	require.NoError(t, s.Set(ctx, "kite_access_token", "def"))
	v, err = s.Get(ctx, "kite_access_token")
	require.NoError(t, err)
	assert.Equal(t, "def", v)

	require.NoError(t, s.Delete(ctx, "kite_access_token"))
	v, err = s.Get(ctx, "kite_access_token")
	require.NoError(t, err)
	assert.Empty(t, v)
}

func TestMasterRecords(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	near, far := int64(1764959399), int64(1767637799)

	n, err := s.ReplaceMasterRecords(ctx, models.MCX, []models.MasterRecord{
		{ExchangeSymbol: "MCX:GOLDM26JANFUT", Underlying: "goldm", InstrumentType: "FUT", ExpiryEpoch: &far, LotSize: 10, TickSize: dec("1")},
		{ExchangeSymbol: "MCX:GOLDM25DECFUT", Underlying: "GOLDM", InstrumentType: "FUT", ExpiryEpoch: &near, LotSize: 10, TickSize: dec("1")},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	recs, err := s.MasterByUnderlying(ctx, "goldm")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "MCX:GOLDM25DECFUT", recs[0].ExchangeSymbol)

	bySym, err := s.MasterBySymbols(ctx, []string{"mcx:goldm26janfut", "NSE:NOPE"})
	require.NoError(t, err)
	require.Contains(t, bySym, "mcx:goldm26janfut")
	assert.Equal(t, far, *bySym["mcx:goldm26janfut"].ExpiryEpoch)
	assert.NotContains(t, bySym, "NSE:NOPE")

	// a refresh replaces the exchange's records
	_, err = s.ReplaceMasterRecords(ctx, models.MCX, []models.MasterRecord{
		{ExchangeSymbol: "MCX:GOLDM26FEBFUT", Underlying: "GOLDM", InstrumentType: "FUT"},
	})
	require.NoError(t, err)
	count, err := s.MasterCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestLastSync(t *testing.T) {
	s := newTestStore(t)
	assert.True(t, s.GetLastSync(SyncTypeMaster).IsZero())

	at := time.Date(2025, 6, 1, 9, 15, 0, 0, time.UTC)
	require.NoError(t, s.SetLastSync(SyncTypeMaster, at))
	assert.True(t, at.Equal(s.GetLastSync(SyncTypeMaster)))
}

func TestOpenFailureIsDatabaseError(t *testing.T) {
	_, err := NewSQLiteStore(filepath.Join(t.TempDir(), "missing", "journal.db"))
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrDatabaseError)
}

func TestSQLiteStoreAsDataStore(t *testing.T) {
	var ds DataStore = newTestStore(t)
	ctx := context.Background()

	require.NoError(t, ds.Ping(ctx))
	require.NoError(t, ds.Set(ctx, "kite_access_token", "abc"))
	v, err := ds.Get(ctx, "kite_access_token")
	require.NoError(t, err)
	assert.Equal(t, "abc", v)

	tr, err := ds.CreateTrade(ctx, models.NewTrade{Name: "via interface", Legs: []models.LegInput{openLegInput("NSE:GOLDBEES-EQ")}})
	require.NoError(t, err)
	open, err := ds.OpenTrades(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, tr.TradeID, open[0].TradeID)
}
