package models

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trade-journal/internal/errors"
)

func ptr[T any](v T) *T { return &v }

func validLeg() LegInput {
	return LegInput{
		Ticker:     "NSE:GOLDBEES-EQ",
		EntryDate:  time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC),
		EntryPrice: decimal.NewFromInt(100),
		Quantity:   10,
	}
}

func TestLegIsOpen(t *testing.T) {
	d := time.Date(2025, 1, 5, 0, 0, 0, 0, time.UTC)
	p := decimal.NewFromInt(110)

	assert.True(t, Leg{}.IsOpen())
	assert.True(t, Leg{ExitDate: &d}.IsOpen())
	assert.True(t, Leg{ExitPrice: &p}.IsOpen())
	assert.False(t, Leg{ExitDate: &d, ExitPrice: &p}.IsOpen())
}

func TestLegValidation(t *testing.T) {
	leg := validLeg()
	require.NoError(t, leg.Validate())

	halfClosed := validLeg()
	halfClosed.ExitPrice = ptr(decimal.NewFromInt(110))
	err := halfClosed.Validate()
	assert.True(t, errors.Is(err, errors.ErrInputValidation))

	noTicker := validLeg()
	noTicker.Ticker = "  "
	assert.Error(t, noTicker.Validate())

	negative := validLeg()
	negative.EntryPrice = decimal.NewFromInt(-1)
	assert.Error(t, negative.Validate())

	short := validLeg()
	short.Quantity = -5
	assert.NoError(t, short.Validate())
}

func TestNewTradeValidation(t *testing.T) {
	assert.Error(t, NewTrade{Name: "x"}.Validate())
	assert.Error(t, NewTrade{Legs: []LegInput{validLeg()}}.Validate())
	assert.NoError(t, NewTrade{Name: "x", Legs: []LegInput{validLeg()}}.Validate())
}

func TestTradeUpdateValidation(t *testing.T) {
	assert.NoError(t, TradeUpdate{Name: ptr("renamed")}.Validate())
	assert.Error(t, TradeUpdate{Legs: []LegPatch{}}.Validate())
	assert.Error(t, TradeUpdate{Name: ptr("")}.Validate())
}

func TestPlanLegDiff(t *testing.T) {
	diff := PlanLegDiff([]int64{1, 2, 3}, []*int64{ptr(int64(2)), nil, ptr(int64(99))})

	assert.Equal(t, []int{0}, diff.Update)
	assert.Equal(t, []int{1, 2}, diff.Create)
	assert.Equal(t, []int64{1, 3}, diff.Delete)
}

func TestPlanLegDiffDuplicateID(t *testing.T) {
	diff := PlanLegDiff([]int64{5}, []*int64{ptr(int64(5)), ptr(int64(5))})

	assert.Equal(t, []int{0}, diff.Update)
	assert.Equal(t, []int{1}, diff.Create)
	assert.Empty(t, diff.Delete)
}

func TestProperty_LegDiffPartitionsPatches(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("every patch is either updated or created, every stored leg kept or deleted", prop.ForAll(
		func(existing []int64, raw []int64) bool {
			ids := make([]*int64, len(raw))
			for i, v := range raw {
				if v%3 != 0 {
					ids[i] = ptr(v)
				}
			}
			diff := PlanLegDiff(existing, ids)
			if len(diff.Update)+len(diff.Create) != len(ids) {
				return false
			}
			distinct := map[int64]bool{}
			for _, id := range existing {
				distinct[id] = true
			}
			deleted := map[int64]bool{}
			for _, id := range diff.Delete {
				deleted[id] = true
			}
			return len(diff.Update)+len(deleted) == len(distinct)
		},
		gen.SliceOf(gen.Int64Range(1, 20)).Map(dedupe),
		gen.SliceOf(gen.Int64Range(1, 30)),
	))

	properties.TestingRun(t)
}

func dedupe(in []int64) []int64 {
	seen := map[int64]bool{}
	out := []int64{}
	for _, v := range in {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}

func TestDaysBetween(t *testing.T) {
	from := time.Date(2025, 1, 31, 23, 0, 0, 0, time.UTC)
	to := time.Date(2025, 3, 1, 1, 0, 0, 0, time.UTC)
	assert.Equal(t, 29, DaysBetween(from, to))
	assert.Equal(t, -29, DaysBetween(to, from))
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2025-02-14")
	require.NoError(t, err)
	assert.Equal(t, "2025-02-14", FormatDate(d))

	_, err = ParseDate("14/02/2025")
	assert.Error(t, err)
}

func TestNewPagination(t *testing.T) {
	p := NewPagination(0, 0, 25)
	assert.Equal(t, Pagination{Count: 25, TotalPages: 3, CurrentPage: 1, PageSize: 10}, p)
	assert.Equal(t, 0, p.Offset())

	p = NewPagination(3, 10, 25)
	assert.Equal(t, 20, p.Offset())
}

func TestMasterRecordExpiryDate(t *testing.T) {
	// 2025-12-05 23:59:59 IST
	epoch := time.Date(2025, 12, 5, 23, 59, 59, 0, IST).Unix()
	rec := MasterRecord{ExpiryEpoch: &epoch}

	require.NotNil(t, rec.ExpiryDate())
	assert.Equal(t, "2025-12-05", FormatDate(*rec.ExpiryDate()))
	assert.Nil(t, MasterRecord{}.ExpiryDate())
}

func TestSplitTicker(t *testing.T) {
	ex, sym := SplitTicker("MCX:GOLDM25DECFUT")
	assert.Equal(t, MCX, ex)
	assert.Equal(t, "GOLDM25DECFUT", sym)
	assert.Equal(t, "NSE:INFY", Ticker(NSE, "INFY"))

	ex, sym = SplitTicker("INFY")
	assert.Equal(t, Exchange(""), ex)
	assert.Equal(t, "INFY", sym)
}
