package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Quote is a live market quote for one ticker.
type Quote struct {
	Symbol        string
	LTP           decimal.Decimal
	Open          decimal.Decimal
	High          decimal.Decimal
	Low           decimal.Decimal
	Close         decimal.Decimal
	Volume        int64
	Change        decimal.Decimal
	ChangePercent decimal.Decimal
	Bid           decimal.Decimal
	Ask           decimal.Decimal
	Spread        decimal.Decimal
	Timestamp     time.Time
}

// HasPrice reports whether the quote carries a usable last traded price.
func (q Quote) HasPrice() bool {
	return q.LTP.IsPositive()
}

// MasterRecord is one contract master row for a tradable instrument.
type MasterRecord struct {
	ExchangeSymbol string // "EXCH:TRADINGSYMBOL"
	Underlying     string
	Exchange       Exchange
	Segment        string
	InstrumentType string
	SymbolDetails  string
	ExpiryEpoch    *int64
	LotSize        int64
	TickSize       decimal.Decimal
	InstrumentKey  string
	Raw            string // provider payload, JSON
	UpdatedAt      time.Time
}

// ExpiryDate returns the contract expiry as a calendar date in IST.
func (m MasterRecord) ExpiryDate() *time.Time {
	if m.ExpiryEpoch == nil {
		return nil
	}
	d := Day(time.Unix(*m.ExpiryEpoch, 0).In(IST))
	return &d
}

// IsFuture reports whether the record describes a futures contract.
func (m MasterRecord) IsFuture() bool {
	return strings.EqualFold(m.InstrumentType, "FUT") ||
		strings.Contains(strings.ToUpper(m.SymbolDetails), "FUT")
}

// IST is India Standard Time, the exchanges' calendar zone.
var IST = time.FixedZone("IST", 5*60*60+30*60)

// Ticker joins an exchange and trading symbol into the "EXCH:SYMBOL" form.
func Ticker(exchange Exchange, symbol string) string {
	return string(exchange) + ":" + symbol
}

// SplitTicker separates an "EXCH:SYMBOL" ticker. A ticker without exchange yields an empty exchange.
func SplitTicker(ticker string) (Exchange, string) {
	if i := strings.IndexByte(ticker, ':'); i >= 0 {
		return Exchange(ticker[:i]), ticker[i+1:]
	}
	return "", ticker
}
