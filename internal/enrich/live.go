package enrich

import (
	"context"

	"github.com/shopspring/decimal"

	"trade-journal/internal/models"
	"trade-journal/internal/pnl"
)

// LiveLeg is one leg of an open trade in the live prices view.
type LiveLeg struct {
	models.Leg
	CurrentPrice       *decimal.Decimal
	UnrealizedPnL      *decimal.Decimal
	PriceChange        *decimal.Decimal
	PriceChangePercent *decimal.Decimal
	StoredPnL          decimal.Decimal
}

// LiveTrade groups the live legs of one open trade.
type LiveTrade struct {
	TradeID            int64
	Name               string
	Legs               []LiveLeg
	TotalUnrealizedPnL decimal.Decimal
}

// LiveView is the unrealized PnL of every trade that still has open legs.
type LiveView struct {
	BrokerConfigured   bool
	BrokerError        string
	OpenTrades         []LiveTrade
	TotalUnrealizedPnL decimal.Decimal
}

// LivePrices prices the open legs of trades with the current LTP. Trades
// without open legs are left out. Closed legs carry their stored realized PnL.
func (p *Pipeline) LivePrices(ctx context.Context, trades []models.Trade) LiveView {
	view := LiveView{
		BrokerConfigured:   p.BrokerConfigured(),
		OpenTrades:         []LiveTrade{},
		TotalUnrealizedPnL: decimal.Zero,
	}

	var open []models.Trade
	var openLegs []models.Leg
	for _, t := range trades {
		hasOpen := false
		for _, leg := range t.Legs {
			if leg.IsOpen() {
				hasOpen = true
				openLegs = append(openLegs, leg)
			}
		}
		if hasOpen {
			open = append(open, t)
		}
	}
	if len(open) == 0 {
		return view
	}

	var quotes map[string]models.Quote
	tickers := distinctTickers(openLegs, func(l models.Leg) string { return l.Ticker })
	if view.BrokerConfigured && len(tickers) > 0 {
		var err error
		quotes, err = p.fetchQuotes(ctx, tickers)
		if err != nil {
			view.BrokerError = err.Error()
		}
	}

	for _, t := range open {
		lt := LiveTrade{
			TradeID:            t.TradeID,
			Name:               t.Name,
			Legs:               make([]LiveLeg, 0, len(t.Legs)),
			TotalUnrealizedPnL: decimal.Zero,
		}
		legs := append([]models.Leg(nil), t.Legs...)
		pnl.SortLegs(legs)

		for _, leg := range legs {
			ll := LiveLeg{Leg: leg, StoredPnL: pnl.LegPnL(leg)}
			if leg.IsOpen() {
				if q, ok := quotes[leg.Ticker]; ok && q.HasPrice() {
					ltp := q.LTP
					ll.CurrentPrice = &ltp
					if u, ok := pnl.UnrealizedPnL(leg.EntryPrice, &ltp, leg.Quantity); ok {
						ll.UnrealizedPnL = &u
						lt.TotalUnrealizedPnL = lt.TotalUnrealizedPnL.Add(u)
					}
					change := ltp.Sub(leg.EntryPrice)
					ll.PriceChange = &change
					if leg.EntryPrice.IsPositive() {
						pct := change.Div(leg.EntryPrice).Mul(decimal.NewFromInt(100)).Round(2)
						ll.PriceChangePercent = &pct
					}
				}
			}
			lt.Legs = append(lt.Legs, ll)
		}

		view.TotalUnrealizedPnL = view.TotalUnrealizedPnL.Add(lt.TotalUnrealizedPnL)
		view.OpenTrades = append(view.OpenTrades, lt)
	}

	return view
}
