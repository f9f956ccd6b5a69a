package enrich

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"trade-journal/internal/errors"
	"trade-journal/internal/logging"
	"trade-journal/internal/models"
	"trade-journal/internal/pnl"
)

// Pipeline enriches trades and snapshots using injected providers. Either
// provider may be nil when the broker is not configured.
type Pipeline struct {
	quotes  QuoteProvider
	master  MasterDataProvider
	baskets map[string]Basket
	logger  zerolog.Logger
}

// NewPipeline creates an enrichment pipeline.
func NewPipeline(quotes QuoteProvider, master MasterDataProvider, baskets []Basket, logger zerolog.Logger) *Pipeline {
	p := &Pipeline{
		quotes:  quotes,
		master:  master,
		baskets: make(map[string]Basket, len(baskets)),
		logger:  logger.With().Str("component", "enrich").Logger(),
	}
	for _, b := range baskets {
		p.baskets[basketKey(b.Name)] = b
	}
	return p
}

// BrokerConfigured reports whether a quote provider is wired.
func (p *Pipeline) BrokerConfigured() bool {
	return p.quotes != nil
}

// EnrichedLeg is a stored leg plus its live-derived fields.
type EnrichedLeg struct {
	models.Leg
	StoredPnL         decimal.Decimal
	LTP               *decimal.Decimal
	Spread            *decimal.Decimal
	ExpiryDate        *time.Time
	DaysLeftForExpiry *int
	PnL               *decimal.Decimal
	PnLPercentage     *decimal.Decimal
}

// EnrichedTrade is a trade, its stored summary and its live view.
type EnrichedTrade struct {
	Trade       models.Trade
	Summary     pnl.TradeSummary
	Legs        []EnrichedLeg
	EnrichedPnL *decimal.Decimal
	QuoteError  string
	MasterError string
}

// Enrich returns the trade with live fields filled in where data is available.
// Stored values are never modified.
func (p *Pipeline) Enrich(ctx context.Context, trade models.Trade, today time.Time) EnrichedTrade {
	legs := append([]models.Leg(nil), trade.Legs...)
	pnl.SortLegs(legs)

	out := EnrichedTrade{
		Trade:   trade,
		Summary: pnl.Aggregate(legs),
		Legs:    make([]EnrichedLeg, len(legs)),
	}
	for i, leg := range legs {
		out.Legs[i] = EnrichedLeg{Leg: leg, StoredPnL: pnl.LegPnL(leg)}
	}

	tickers := distinctTickers(legs, func(l models.Leg) string { return l.Ticker })
	if len(tickers) == 0 {
		return out
	}

	quotes, qerr := p.fetchQuotes(ctx, tickers)
	if qerr != nil {
		out.QuoteError = qerr.Error()
	}
	records, merr := p.fetchMaster(ctx, tickers)
	if merr != nil {
		out.MasterError = merr.Error()
	}

	for i := range out.Legs {
		leg := &out.Legs[i]

		if rec, ok := records[leg.Ticker]; ok {
			if expiry := rec.ExpiryDate(); expiry != nil {
				days := DaysLeftForExpiry(*expiry, today)
				leg.ExpiryDate = expiry
				leg.DaysLeftForExpiry = &days
			}
		}

		if qerr != nil {
			continue
		}
		if q, ok := quotes[leg.Ticker]; ok {
			ltp, spread := q.LTP, q.Spread
			leg.LTP = &ltp
			leg.Spread = &spread
		}
		enrichLegPnL(leg)
	}

	if qerr == nil {
		total := decimal.Zero
		priced := false
		for _, leg := range out.Legs {
			if leg.PnL != nil {
				total = total.Add(*leg.PnL)
				priced = true
			}
		}
		if priced {
			out.EnrichedPnL = &total
		}
	}

	logging.LogEnrichment(p.logger, "trade", trade.TradeID, len(tickers), len(quotes), out.QuoteError, out.MasterError)
	return out
}

// DaysLeftForExpiry counts calendar days to expiry less one, matching the
// broker feed's settlement-date convention.
func DaysLeftForExpiry(expiry, today time.Time) int {
	return models.DaysBetween(today, expiry) - 1
}

func enrichLegPnL(leg *EnrichedLeg) {
	var price *decimal.Decimal
	if leg.IsOpen() {
		price = leg.LTP
	} else {
		price = leg.ExitPrice
	}
	if price == nil || !price.IsPositive() {
		return
	}

	var value decimal.Decimal
	if leg.IsOpen() {
		value, _ = pnl.UnrealizedPnL(leg.EntryPrice, price, leg.Quantity)
	} else {
		value = pnl.Realized(leg.EntryPrice, *price, leg.Quantity)
	}
	leg.PnL = &value

	if pct, ok := pnl.PnLPercentage(leg.EntryPrice, *price, leg.Quantity); ok {
		leg.PnLPercentage = &pct
	}
}

func (p *Pipeline) fetchQuotes(ctx context.Context, tickers []string) (map[string]models.Quote, error) {
	if p.quotes == nil {
		return nil, errors.ErrBrokerUnavailable
	}
	quotes, err := p.quotes.GetQuotes(ctx, tickers)
	if err != nil {
		p.logger.Warn().Err(err).Int("tickers", len(tickers)).Msg("Quote fetch failed, continuing without live prices")
		return nil, err
	}
	return quotes, nil
}

func (p *Pipeline) fetchMaster(ctx context.Context, tickers []string) (map[string]models.MasterRecord, error) {
	if p.master == nil {
		return nil, errors.ErrBrokerUnavailable
	}
	records, err := p.master.BySymbols(ctx, tickers)
	if err != nil {
		p.logger.Warn().Err(err).Int("tickers", len(tickers)).Msg("Contract master lookup failed, continuing without expiry data")
		return nil, err
	}
	return records, nil
}
