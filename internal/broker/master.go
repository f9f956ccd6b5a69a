package broker

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"trade-journal/internal/errors"
	"trade-journal/internal/models"
	"trade-journal/internal/security"
	"trade-journal/internal/store"
)

// InstrumentSource downloads instrument dumps from the broker.
type InstrumentSource interface {
	Instruments(ctx context.Context, exchange models.Exchange) ([]models.MasterRecord, error)
}

// MasterCache is the storage the master service reads and refreshes.
type MasterCache interface {
	store.MasterStore
	GetLastSync(dataType store.SyncDataType) time.Time
	SetLastSync(dataType store.SyncDataType, t time.Time) error
}

// MasterConfig selects which contracts are cached.
type MasterConfig struct {
	Exchanges   []models.Exchange
	Underlyings []string // empty keeps every future
}

// DefaultMasterConfig caches MCX gold and silver minis.
func DefaultMasterConfig() MasterConfig {
	return MasterConfig{
		Exchanges:   []models.Exchange{models.MCX},
		Underlyings: []string{"GOLDM", "SILVERM"},
	}
}

// MasterService serves contract master lookups from the local cache and
// refreshes it from the broker or a CSV file.
type MasterService struct {
	cache  MasterCache
	source InstrumentSource
	cfg    MasterConfig
	audit  *security.AuditLogger
	logger zerolog.Logger
	now    func() time.Time
}

// NewMasterService creates a master service. source may be nil when no broker is configured.
func NewMasterService(cache MasterCache, source InstrumentSource, cfg MasterConfig, audit *security.AuditLogger, logger zerolog.Logger) *MasterService {
	return &MasterService{
		cache:  cache,
		source: source,
		cfg:    cfg,
		audit:  audit,
		logger: logger.With().Str("component", "master").Logger(),
		now:    time.Now,
	}
}

// BySymbols returns the cached record for each known ticker.
func (m *MasterService) BySymbols(ctx context.Context, tickers []string) (map[string]models.MasterRecord, error) {
	return m.cache.MasterBySymbols(ctx, tickers)
}

// ByUnderlying returns the tickers of the nearest unexpired futures on an underlying.
func (m *MasterService) ByUnderlying(ctx context.Context, underlying string) ([]string, error) {
	records, err := m.cache.MasterByUnderlying(ctx, underlying)
	if err != nil {
		return nil, err
	}
	return NearestFutures(records, m.now()), nil
}

// NearestFutures picks the futures sharing the earliest expiry on or after today (IST).
func NearestFutures(records []models.MasterRecord, now time.Time) []string {
	today := models.Day(now.In(models.IST))
	var nearest *int64
	var out []string
	for _, r := range records {
		if !r.IsFuture() || r.ExpiryEpoch == nil {
			continue
		}
		expiry := *r.ExpiryDate()
		if expiry.Before(today) {
			continue
		}
		switch {
		case nearest == nil || expiry.Unix() < *nearest:
			e := expiry.Unix()
			nearest = &e
			out = []string{r.ExchangeSymbol}
		case expiry.Unix() == *nearest:
			out = append(out, r.ExchangeSymbol)
		}
	}
	if out == nil {
		return []string{}
	}
	sort.Strings(out)
	return out
}

// Count returns the number of cached records.
func (m *MasterService) Count(ctx context.Context) (int, error) {
	return m.cache.MasterCount(ctx)
}

// LastRefresh returns when the cache was last refreshed, zero if never.
func (m *MasterService) LastRefresh() time.Time {
	return m.cache.GetLastSync(store.SyncTypeMaster)
}

// Stale reports whether the cache is older than maxAge.
func (m *MasterService) Stale(maxAge time.Duration) bool {
	last := m.LastRefresh()
	return last.IsZero() || m.now().Sub(last) > maxAge
}

// Refresh downloads the configured exchanges and replaces their cached futures.
func (m *MasterService) Refresh(ctx context.Context) (int, error) {
	if m.source == nil {
		return 0, errors.ErrBrokerUnavailable
	}

	total := 0
	for _, exchange := range m.cfg.Exchanges {
		all, err := m.source.Instruments(ctx, exchange)
		if err != nil {
			_ = m.audit.LogMasterRefresh(ctx, "kite", total, err)
			return total, fmt.Errorf("downloading %s instruments: %w", exchange, err)
		}

		records := m.filter(all)
		n, err := m.cache.ReplaceMasterRecords(ctx, exchange, records)
		if err != nil {
			return total, err
		}
		total += n
		m.logger.Info().Str("exchange", string(exchange)).Int("downloaded", len(all)).Int("cached", n).Msg("Contract master refreshed")
	}

	if err := m.cache.SetLastSync(store.SyncTypeMaster, m.now()); err != nil {
		return total, err
	}
	_ = m.audit.LogMasterRefresh(ctx, "kite", total, nil)
	return total, nil
}

func (m *MasterService) filter(records []models.MasterRecord) []models.MasterRecord {
	wanted := make(map[string]bool, len(m.cfg.Underlyings))
	for _, u := range m.cfg.Underlyings {
		wanted[strings.ToUpper(u)] = true
	}
	out := make([]models.MasterRecord, 0, len(records))
	for _, r := range records {
		if !r.IsFuture() {
			continue
		}
		if len(wanted) > 0 && !wanted[strings.ToUpper(r.Underlying)] {
			continue
		}
		out = append(out, r)
	}
	return out
}

// masterRow is the CSV layout accepted by ImportCSV and written by ExportCSV.
type masterRow struct {
	ExchangeSymbol string `csv:"exchange_symbol"`
	Underlying     string `csv:"underlying"`
	Exchange       string `csv:"exchange"`
	Segment        string `csv:"segment"`
	InstrumentType string `csv:"instrument_type"`
	SymbolDetails  string `csv:"symbol_details"`
	ExpiryEpoch    string `csv:"expiry_epoch"`
	LotSize        string `csv:"lot_size"`
	TickSize       string `csv:"tick_size"`
	InstrumentKey  string `csv:"instrument_key"`
}

// ImportCSV replaces the cache with the rows of a CSV file, per exchange.
func (m *MasterService) ImportCSV(ctx context.Context, r io.Reader) (int, error) {
	var rows []*masterRow
	if err := gocsv.Unmarshal(r, &rows); err != nil {
		return 0, errors.NewValidationError("csv", "", fmt.Sprintf("unreadable master csv: %v", err))
	}

	byExchange := make(map[models.Exchange][]models.MasterRecord)
	var order []models.Exchange
	for i, row := range rows {
		rec, err := row.record()
		if err != nil {
			return 0, fmt.Errorf("master csv row %d: %w: %w", i+2, errors.ErrInputValidation, err)
		}
		if _, ok := byExchange[rec.Exchange]; !ok {
			order = append(order, rec.Exchange)
		}
		byExchange[rec.Exchange] = append(byExchange[rec.Exchange], rec)
	}

	total := 0
	for _, exchange := range order {
		n, err := m.cache.ReplaceMasterRecords(ctx, exchange, byExchange[exchange])
		if err != nil {
			return total, err
		}
		total += n
	}
	if err := m.cache.SetLastSync(store.SyncTypeMaster, m.now()); err != nil {
		return total, err
	}
	_ = m.audit.LogMasterRefresh(ctx, "csv", total, nil)
	return total, nil
}

// ExportCSV writes the cached records on an underlying as CSV.
func (m *MasterService) ExportCSV(ctx context.Context, underlying string, w io.Writer) error {
	records, err := m.cache.MasterByUnderlying(ctx, underlying)
	if err != nil {
		return err
	}
	rows := make([]*masterRow, len(records))
	for i, r := range records {
		row := &masterRow{
			ExchangeSymbol: r.ExchangeSymbol,
			Underlying:     r.Underlying,
			Exchange:       string(r.Exchange),
			Segment:        r.Segment,
			InstrumentType: r.InstrumentType,
			SymbolDetails:  r.SymbolDetails,
			LotSize:        strconv.FormatInt(r.LotSize, 10),
			TickSize:       r.TickSize.String(),
			InstrumentKey:  r.InstrumentKey,
		}
		if r.ExpiryEpoch != nil {
			row.ExpiryEpoch = strconv.FormatInt(*r.ExpiryEpoch, 10)
		}
		rows[i] = row
	}
	return gocsv.Marshal(&rows, w)
}

func (row *masterRow) record() (models.MasterRecord, error) {
	rec := models.MasterRecord{
		ExchangeSymbol: strings.TrimSpace(row.ExchangeSymbol),
		Underlying:     strings.ToUpper(strings.TrimSpace(row.Underlying)),
		Exchange:       models.Exchange(strings.ToUpper(strings.TrimSpace(row.Exchange))),
		Segment:        row.Segment,
		InstrumentType: row.InstrumentType,
		SymbolDetails:  row.SymbolDetails,
		InstrumentKey:  row.InstrumentKey,
	}
	if rec.ExchangeSymbol == "" {
		return rec, errors.NewDataError("csv", "", "exchange_symbol", fmt.Errorf("required"))
	}
	if rec.Exchange == "" {
		rec.Exchange, _ = models.SplitTicker(rec.ExchangeSymbol)
	}
	if rec.Exchange == "" {
		return rec, errors.NewDataError("csv", rec.ExchangeSymbol, "exchange", fmt.Errorf("required"))
	}
	if !strings.Contains(rec.ExchangeSymbol, ":") {
		rec.ExchangeSymbol = models.Ticker(rec.Exchange, rec.ExchangeSymbol)
	}
	if v := strings.TrimSpace(row.ExpiryEpoch); v != "" {
		epoch, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return rec, errors.NewDataError("csv", rec.ExchangeSymbol, "expiry_epoch", err)
		}
		rec.ExpiryEpoch = &epoch
	}
	if v := strings.TrimSpace(row.LotSize); v != "" {
		lot, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return rec, errors.NewDataError("csv", rec.ExchangeSymbol, "lot_size", err)
		}
		rec.LotSize = int64(lot)
	}
	if v := strings.TrimSpace(row.TickSize); v != "" {
		tick, err := decimal.NewFromString(v)
		if err != nil {
			return rec, errors.NewDataError("csv", rec.ExchangeSymbol, "tick_size", err)
		}
		rec.TickSize = tick
	}
	return rec, nil
}
