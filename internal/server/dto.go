package server

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"trade-journal/internal/enrich"
	"trade-journal/internal/errors"
	"trade-journal/internal/journal"
	"trade-journal/internal/models"
	"trade-journal/internal/pnl"
)

// ============================================================================
// Requests
// ============================================================================

type legRequest struct {
	ID         *int64           `json:"id"`
	Ticker     string           `json:"ticker"`
	EntryDate  string           `json:"entry_date"`
	ExitDate   *string          `json:"exit_date"`
	EntryPrice decimal.Decimal  `json:"entry_price"`
	ExitPrice  *decimal.Decimal `json:"exit_price"`
	Quantity   int64            `json:"quantity"`
}

func (r legRequest) input() (models.LegInput, error) {
	entry, err := parseDate("entry_date", r.EntryDate)
	if err != nil {
		return models.LegInput{}, err
	}
	exit, err := parseOptionalDate("exit_date", r.ExitDate)
	if err != nil {
		return models.LegInput{}, err
	}
	return models.LegInput{
		Ticker:     strings.TrimSpace(r.Ticker),
		EntryDate:  entry,
		ExitDate:   exit,
		EntryPrice: r.EntryPrice,
		ExitPrice:  r.ExitPrice,
		Quantity:   r.Quantity,
	}, nil
}

type tradeRequest struct {
	Name        *string      `json:"name"`
	Description *string      `json:"description"`
	Legs        []legRequest `json:"legs"`
}

func (r tradeRequest) newTrade() (models.NewTrade, error) {
	in := models.NewTrade{Description: r.Description}
	if r.Name != nil {
		in.Name = *r.Name
	}
	for i, leg := range r.Legs {
		li, err := leg.input()
		if err != nil {
			return models.NewTrade{}, errors.Wrapf(err, "leg %d", i)
		}
		in.Legs = append(in.Legs, li)
	}
	return in, nil
}

func (r tradeRequest) update() (models.TradeUpdate, error) {
	upd := models.TradeUpdate{Name: r.Name, Description: r.Description}
	if r.Legs == nil {
		return upd, nil
	}
	upd.Legs = make([]models.LegPatch, 0, len(r.Legs))
	for i, leg := range r.Legs {
		li, err := leg.input()
		if err != nil {
			return models.TradeUpdate{}, errors.Wrapf(err, "leg %d", i)
		}
		upd.Legs = append(upd.Legs, models.LegPatch{ID: leg.ID, LegInput: li})
	}
	return upd, nil
}

type snapshotLegRequest struct {
	ID       *int64          `json:"id"`
	Ticker   string          `json:"ticker"`
	Date     string          `json:"date"`
	Price    decimal.Decimal `json:"price"`
	Quantity int64           `json:"quantity"`
}

func (r snapshotLegRequest) input() (models.SnapshotLegInput, error) {
	date, err := parseDate("date", r.Date)
	if err != nil {
		return models.SnapshotLegInput{}, err
	}
	return models.SnapshotLegInput{
		Ticker:   strings.TrimSpace(r.Ticker),
		Date:     date,
		Price:    r.Price,
		Quantity: r.Quantity,
	}, nil
}

type snapshotRequest struct {
	Name         *string              `json:"name"`
	Description  *string              `json:"description"`
	SnapshotType string               `json:"snapshot_type"`
	Legs         []snapshotLegRequest `json:"legs"`
}

func (r snapshotRequest) basket() (journal.BasketSnapshotRequest, error) {
	req := journal.BasketSnapshotRequest{Description: r.Description, SnapshotType: r.SnapshotType}
	if r.Name != nil {
		req.Name = *r.Name
	}
	for i, leg := range r.Legs {
		li, err := leg.input()
		if err != nil {
			return journal.BasketSnapshotRequest{}, errors.Wrapf(err, "leg %d", i)
		}
		req.Legs = append(req.Legs, li)
	}
	return req, nil
}

func (r snapshotRequest) update() (models.SnapshotUpdate, error) {
	upd := models.SnapshotUpdate{Name: r.Name, Description: r.Description}
	if r.Legs == nil {
		return upd, nil
	}
	upd.Legs = make([]models.SnapshotLegPatch, 0, len(r.Legs))
	for i, leg := range r.Legs {
		li, err := leg.input()
		if err != nil {
			return models.SnapshotUpdate{}, errors.Wrapf(err, "leg %d", i)
		}
		upd.Legs = append(upd.Legs, models.SnapshotLegPatch{ID: leg.ID, SnapshotLegInput: li})
	}
	return upd, nil
}

type tokenRequest struct {
	RequestToken string `json:"request_token"`
}

func parseDate(field, s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, errors.NewValidationError(field, s, "date is required")
	}
	t, err := models.ParseDate(s)
	if err != nil {
		return time.Time{}, errors.NewValidationError(field, s, err.Error())
	}
	return t, nil
}

// parseOptionalDate treats a missing or blank date as absent.
func parseOptionalDate(field string, s *string) (*time.Time, error) {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil, nil
	}
	t, err := parseDate(field, *s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// ============================================================================
// Responses
// ============================================================================

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func optMoney(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	s := money(*d)
	return &s
}

func optDate(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := models.FormatDate(*t)
	return &s
}

type page[T any] struct {
	models.Pagination
	Results []T `json:"results"`
}

type legResponse struct {
	ID         int64   `json:"id"`
	TradeID    int64   `json:"trade_id"`
	Ticker     string  `json:"ticker"`
	EntryDate  string  `json:"entry_date"`
	ExitDate   *string `json:"exit_date"`
	EntryPrice string  `json:"entry_price"`
	ExitPrice  *string `json:"exit_price"`
	Quantity   int64   `json:"quantity"`
	IsOpen     bool    `json:"is_open"`
	PnL        string  `json:"pnl"`
}

func newLegResponse(l models.Leg) legResponse {
	return legResponse{
		ID:         l.ID,
		TradeID:    l.TradeID,
		Ticker:     l.Ticker,
		EntryDate:  models.FormatDate(l.EntryDate),
		ExitDate:   optDate(l.ExitDate),
		EntryPrice: money(l.EntryPrice),
		ExitPrice:  optMoney(l.ExitPrice),
		Quantity:   l.Quantity,
		IsOpen:     l.IsOpen(),
		PnL:        money(pnl.LegPnL(l)),
	}
}

type tradeResponse struct {
	TradeID     int64     `json:"trade_id"`
	Name        string    `json:"name"`
	Description *string   `json:"description"`
	IsOpen      bool      `json:"is_open"`
	PnL         string    `json:"pnl"`
	LegCount    int       `json:"leg_count"`
	Tickers     []string  `json:"tickers"`
	EntryDate   *string   `json:"entry_date"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func newTradeResponse(t models.Trade, s pnl.TradeSummary) tradeResponse {
	return tradeResponse{
		TradeID:     t.TradeID,
		Name:        t.Name,
		Description: t.Description,
		IsOpen:      s.IsOpen,
		PnL:         money(s.PnL),
		LegCount:    s.LegCount,
		Tickers:     s.Tickers,
		EntryDate:   optDate(s.EntryDate),
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}

type tradeWithLegs struct {
	tradeResponse
	Legs []legResponse `json:"legs"`
}

func newTradeWithLegs(v journal.TradeView) tradeWithLegs {
	out := tradeWithLegs{
		tradeResponse: newTradeResponse(v.Trade, v.Summary),
		Legs:          make([]legResponse, len(v.Trade.Legs)),
	}
	for i, l := range v.Trade.Legs {
		out.Legs[i] = newLegResponse(l)
	}
	return out
}

// enrichedLegResponse replaces the stored pnl with the live-derived value and
// keeps the stored one under stored_pnl.
type enrichedLegResponse struct {
	legResponse
	StoredPnL         string  `json:"stored_pnl"`
	PnL               *string `json:"pnl"`
	PnLPercentage     *string `json:"pnl_percentage"`
	LTP               *string `json:"ltp"`
	Spread            *string `json:"spread"`
	ExpiryDate        *string `json:"expiry_date"`
	DaysLeftForExpiry *int    `json:"days_left_for_expiry"`
}

type enrichedTradeResponse struct {
	tradeResponse
	EnrichedPnL *string               `json:"enriched_pnl"`
	Legs        []enrichedLegResponse `json:"legs"`
	QuoteError  string                `json:"quote_error,omitempty"`
	MasterError string                `json:"master_error,omitempty"`
}

func newEnrichedTradeResponse(et enrich.EnrichedTrade) enrichedTradeResponse {
	out := enrichedTradeResponse{
		tradeResponse: newTradeResponse(et.Trade, et.Summary),
		EnrichedPnL:   optMoney(et.EnrichedPnL),
		Legs:          make([]enrichedLegResponse, len(et.Legs)),
		QuoteError:    et.QuoteError,
		MasterError:   et.MasterError,
	}
	for i, l := range et.Legs {
		out.Legs[i] = enrichedLegResponse{
			legResponse:       newLegResponse(l.Leg),
			StoredPnL:         money(l.StoredPnL),
			PnL:               optMoney(l.PnL),
			PnLPercentage:     optMoney(l.PnLPercentage),
			LTP:               optMoney(l.LTP),
			Spread:            optMoney(l.Spread),
			ExpiryDate:        optDate(l.ExpiryDate),
			DaysLeftForExpiry: l.DaysLeftForExpiry,
		}
	}
	return out
}

type liveLegResponse struct {
	legResponse
	CurrentPrice       *string `json:"current_price"`
	UnrealizedPnL      *string `json:"unrealized_pnl"`
	PriceChange        *string `json:"price_change"`
	PriceChangePercent *string `json:"price_change_percent"`
}

type liveTradeResponse struct {
	TradeID            int64             `json:"trade_id"`
	Name               string            `json:"name"`
	Legs               []liveLegResponse `json:"legs"`
	TotalUnrealizedPnL string            `json:"total_unrealized_pnl"`
}

type liveViewResponse struct {
	BrokerConfigured   bool                `json:"broker_configured"`
	BrokerError        string              `json:"broker_error,omitempty"`
	OpenTrades         []liveTradeResponse `json:"open_trades"`
	TotalUnrealizedPnL string              `json:"total_unrealized_pnl"`
}

func newLiveViewResponse(v enrich.LiveView) liveViewResponse {
	out := liveViewResponse{
		BrokerConfigured:   v.BrokerConfigured,
		BrokerError:        v.BrokerError,
		OpenTrades:         make([]liveTradeResponse, len(v.OpenTrades)),
		TotalUnrealizedPnL: money(v.TotalUnrealizedPnL),
	}
	for i, t := range v.OpenTrades {
		lt := liveTradeResponse{
			TradeID:            t.TradeID,
			Name:               t.Name,
			Legs:               make([]liveLegResponse, len(t.Legs)),
			TotalUnrealizedPnL: money(t.TotalUnrealizedPnL),
		}
		for j, l := range t.Legs {
			lt.Legs[j] = liveLegResponse{
				legResponse:        newLegResponse(l.Leg),
				CurrentPrice:       optMoney(l.CurrentPrice),
				UnrealizedPnL:      optMoney(l.UnrealizedPnL),
				PriceChange:        optMoney(l.PriceChange),
				PriceChangePercent: optMoney(l.PriceChangePercent),
			}
		}
		out.OpenTrades[i] = lt
	}
	return out
}

type snapshotLegResponse struct {
	ID                int64   `json:"id"`
	SnapshotID        int64   `json:"snapshot_id"`
	Ticker            string  `json:"ticker"`
	Date              string  `json:"date"`
	Price             string  `json:"price"`
	Quantity          int64   `json:"quantity"`
	CurrentPrice      *string `json:"current_price"`
	PointsMoved       *string `json:"points_moved"`
	PercentageMoved   *string `json:"percentage_moved"`
	DaysSinceSnapshot int     `json:"days_since_snapshot"`
}

type snapshotResponse struct {
	SnapshotID  int64                 `json:"snapshot_id"`
	Name        string                `json:"name"`
	Description *string               `json:"description"`
	LegCount    int                   `json:"leg_count"`
	Tickers     []string              `json:"tickers"`
	CreatedAt   time.Time             `json:"created_at"`
	UpdatedAt   time.Time             `json:"updated_at"`
	Legs        []snapshotLegResponse `json:"legs"`
	QuoteError  string                `json:"quote_error,omitempty"`
}

func newSnapshotResponse(es enrich.EnrichedSnapshot) snapshotResponse {
	out := snapshotResponse{
		SnapshotID:  es.Snapshot.SnapshotID,
		Name:        es.Snapshot.Name,
		Description: es.Snapshot.Description,
		LegCount:    es.LegCount,
		Tickers:     es.Tickers,
		CreatedAt:   es.Snapshot.CreatedAt,
		UpdatedAt:   es.Snapshot.UpdatedAt,
		Legs:        make([]snapshotLegResponse, len(es.Legs)),
		QuoteError:  es.QuoteError,
	}
	for i, l := range es.Legs {
		out.Legs[i] = snapshotLegResponse{
			ID:                l.ID,
			SnapshotID:        l.SnapshotID,
			Ticker:            l.Ticker,
			Date:              models.FormatDate(l.Date),
			Price:             money(l.Price),
			Quantity:          l.Quantity,
			CurrentPrice:      optMoney(l.CurrentPrice),
			PointsMoved:       optMoney(l.PointsMoved),
			PercentageMoved:   optMoney(l.PercentageMoved),
			DaysSinceSnapshot: l.DaysSinceSnapshot,
		}
	}
	return out
}

type monthlyPnLResponse struct {
	Date string `json:"date"`
	PnL  string `json:"pnl"`
}

type analyticsResponse struct {
	TotalOpenTrades   int                  `json:"total_open_trades"`
	TotalClosedTrades int                  `json:"total_closed_trades"`
	OverallPnL        string               `json:"overall_pnl"`
	OpenTradesPnL     string               `json:"open_trades_pnl"`
	ClosedTradesPnL   string               `json:"closed_trades_pnl"`
	PnLOverTime       []monthlyPnLResponse `json:"pnl_over_time"`
}

func newAnalyticsResponse(s pnl.AnalyticsSummary) analyticsResponse {
	out := analyticsResponse{
		TotalOpenTrades:   s.TotalOpenTrades,
		TotalClosedTrades: s.TotalClosedTrades,
		OverallPnL:        money(s.OverallPnL),
		OpenTradesPnL:     money(s.OpenTradesPnL),
		ClosedTradesPnL:   money(s.ClosedTradesPnL),
		PnLOverTime:       make([]monthlyPnLResponse, len(s.PnLOverTime)),
	}
	for i, m := range s.PnLOverTime {
		out.PnLOverTime[i] = monthlyPnLResponse{Date: m.Month, PnL: money(m.PnL)}
	}
	return out
}
