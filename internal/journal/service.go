// Package journal is the application layer: it validates requests, persists
// trades and snapshots, and runs them through the live enrichment pipeline.
package journal

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"trade-journal/internal/enrich"
	"trade-journal/internal/logging"
	"trade-journal/internal/metrics"
	"trade-journal/internal/models"
	"trade-journal/internal/pnl"
	"trade-journal/internal/security"
	"trade-journal/internal/store"
)

// Service coordinates the stores and the enrichment pipeline.
type Service struct {
	trades    store.TradeStore
	snapshots store.SnapshotStore
	pipeline  *enrich.Pipeline
	audit     *security.AuditLogger
	metrics   *metrics.Metrics
	logger    zerolog.Logger
	now       func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the wall clock used for "today".
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithAudit records mutations to an audit log.
func WithAudit(audit *security.AuditLogger) Option {
	return func(s *Service) { s.audit = audit }
}

// WithMetrics counts enrichments.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// NewService creates the journal service.
func NewService(trades store.TradeStore, snapshots store.SnapshotStore, pipeline *enrich.Pipeline, logger zerolog.Logger, opts ...Option) *Service {
	s := &Service{
		trades:    trades,
		snapshots: snapshots,
		pipeline:  pipeline,
		logger:    logger.With().Str("component", "journal").Logger(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Today is the current calendar date in IST.
func (s *Service) Today() time.Time {
	return models.Day(s.now().In(models.IST))
}

// BrokerConfigured reports whether live quotes are available at all.
func (s *Service) BrokerConfigured() bool {
	return s.pipeline.BrokerConfigured()
}

// TradeView is a stored trade with its derived summary.
type TradeView struct {
	Trade   models.Trade
	Summary pnl.TradeSummary
}

func viewOf(t models.Trade) TradeView {
	legs := append([]models.Leg(nil), t.Legs...)
	pnl.SortLegs(legs)
	t.Legs = legs
	return TradeView{Trade: t, Summary: pnl.Aggregate(legs)}
}

// CreateTrade validates and stores a new trade.
func (s *Service) CreateTrade(ctx context.Context, in models.NewTrade) (*TradeView, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	t, err := s.trades.CreateTrade(ctx, in)
	if err != nil {
		return nil, err
	}

	logging.WithTrade(s.logger, t.TradeID).Info().Int("legs", len(t.Legs)).Msg("Trade created")
	_ = s.audit.LogEntity(ctx, security.AuditTradeCreated, t.TradeID, map[string]interface{}{"name": t.Name, "legs": len(t.Legs)})

	v := viewOf(*t)
	return &v, nil
}

// GetTrade loads a trade and enriches it with live data.
func (s *Service) GetTrade(ctx context.Context, tradeID int64) (*enrich.EnrichedTrade, error) {
	t, err := s.trades.GetTrade(ctx, tradeID)
	if err != nil {
		return nil, err
	}
	et := s.pipeline.Enrich(ctx, *t, s.Today())
	s.metrics.ObserveEnrichment("trade", et.QuoteError != "" || et.MasterError != "")
	return &et, nil
}

// ListTrades returns one page of trades with their stored summaries.
func (s *Service) ListTrades(ctx context.Context, page, pageSize int) ([]TradeView, models.Pagination, error) {
	trades, p, err := s.trades.ListTrades(ctx, page, pageSize)
	if err != nil {
		return nil, models.Pagination{}, err
	}
	views := make([]TradeView, len(trades))
	for i, t := range trades {
		views[i] = viewOf(t)
	}
	return views, p, nil
}

// UpdateTrade applies an update and reconciles legs by diff.
func (s *Service) UpdateTrade(ctx context.Context, tradeID int64, upd models.TradeUpdate) (*TradeView, error) {
	if err := upd.Validate(); err != nil {
		return nil, err
	}
	t, err := s.trades.UpdateTrade(ctx, tradeID, upd)
	if err != nil {
		return nil, err
	}

	logging.WithTrade(s.logger, tradeID).Info().Int("legs", len(t.Legs)).Msg("Trade updated")
	_ = s.audit.LogEntity(ctx, security.AuditTradeUpdated, tradeID, map[string]interface{}{"legs": len(t.Legs)})

	v := viewOf(*t)
	return &v, nil
}

// DeleteTrade removes a trade and its legs.
func (s *Service) DeleteTrade(ctx context.Context, tradeID int64) error {
	if err := s.trades.DeleteTrade(ctx, tradeID); err != nil {
		return err
	}
	logging.WithTrade(s.logger, tradeID).Info().Msg("Trade deleted")
	_ = s.audit.LogEntity(ctx, security.AuditTradeDeleted, tradeID, nil)
	return nil
}

// LivePrices prices every open trade with current quotes.
func (s *Service) LivePrices(ctx context.Context) (enrich.LiveView, error) {
	trades, err := s.trades.OpenTrades(ctx)
	if err != nil {
		return enrich.LiveView{}, err
	}
	view := s.pipeline.LivePrices(ctx, trades)
	s.metrics.ObserveEnrichment("live", view.BrokerError != "")
	return view, nil
}

// Analytics summarizes realized PnL across every stored trade.
func (s *Service) Analytics(ctx context.Context) (pnl.AnalyticsSummary, error) {
	trades, err := s.trades.AllTrades(ctx)
	if err != nil {
		return pnl.AnalyticsSummary{}, err
	}
	ids := make([]int64, len(trades))
	var legs []models.Leg
	for i, t := range trades {
		ids[i] = t.TradeID
		legs = append(legs, t.Legs...)
	}
	return pnl.Summarize(ids, legs), nil
}
