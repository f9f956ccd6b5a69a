// Package metrics exposes Prometheus instrumentation for the journal.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"trade-journal/internal/enrich"
	"trade-journal/internal/models"
)

// Metrics holds the journal's Prometheus collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	ProviderCalls   *prometheus.CounterVec   // labels: provider, outcome
	ProviderLatency *prometheus.HistogramVec // labels: provider
	Enrichments     *prometheus.CounterVec   // labels: kind, outcome
	HTTPRequests    *prometheus.CounterVec   // labels: method, route, status
	HTTPDuration    *prometheus.HistogramVec // labels: route
	MasterRecords   prometheus.Gauge
	JobRuns         *prometheus.CounterVec // labels: job, outcome
}

// New registers and returns all collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ProviderCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "journal_provider_calls_total",
			Help: "Market data provider calls by outcome",
		}, []string{"provider", "outcome"}),
		ProviderLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "journal_provider_call_duration_seconds",
			Help:    "Market data provider call latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"provider"}),
		Enrichments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "journal_enrichments_total",
			Help: "Trade and snapshot enrichments, degraded when live data was missing",
		}, []string{"kind", "outcome"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "journal_http_requests_total",
			Help: "HTTP requests by route and status",
		}, []string{"method", "route", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "journal_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		MasterRecords: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "journal_master_records",
			Help: "Contract master records in the local cache",
		}),
		JobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "journal_job_runs_total",
			Help: "Scheduled job runs by outcome",
		}, []string{"job", "outcome"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.ProviderCalls,
		m.ProviderLatency,
		m.Enrichments,
		m.HTTPRequests,
		m.HTTPDuration,
		m.MasterRecords,
		m.JobRuns,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveEnrichment counts one enrichment. A nil receiver is a no-op.
func (m *Metrics) ObserveEnrichment(kind string, degraded bool) {
	if m == nil {
		return
	}
	m.Enrichments.WithLabelValues(kind, outcomeLabel(!degraded, "ok", "degraded")).Inc()
}

// ObserveJob counts one scheduled job run.
func (m *Metrics) ObserveJob(job string, err error) {
	if m == nil {
		return
	}
	m.JobRuns.WithLabelValues(job, outcomeLabel(err == nil, "ok", "error")).Inc()
}

// SetMasterRecords records the size of the contract master cache.
func (m *Metrics) SetMasterRecords(n int) {
	if m == nil {
		return
	}
	m.MasterRecords.Set(float64(n))
}

func (m *Metrics) observeCall(provider string, start time.Time, err error) {
	m.ProviderLatency.WithLabelValues(provider).Observe(time.Since(start).Seconds())
	m.ProviderCalls.WithLabelValues(provider, outcomeLabel(err == nil, "ok", "error")).Inc()
}

func outcomeLabel(ok bool, yes, no string) string {
	if ok {
		return yes
	}
	return no
}

// QuoteProvider wraps a quote provider with call metrics.
func (m *Metrics) QuoteProvider(name string, next enrich.QuoteProvider) enrich.QuoteProvider {
	if m == nil || next == nil {
		return next
	}
	return &instrumentedQuotes{metrics: m, name: name, next: next}
}

// MasterProvider wraps a contract master provider with call metrics.
func (m *Metrics) MasterProvider(name string, next enrich.MasterDataProvider) enrich.MasterDataProvider {
	if m == nil || next == nil {
		return next
	}
	return &instrumentedMaster{metrics: m, name: name, next: next}
}

type instrumentedQuotes struct {
	metrics *Metrics
	name    string
	next    enrich.QuoteProvider
}

func (q *instrumentedQuotes) GetQuotes(ctx context.Context, tickers []string) (map[string]models.Quote, error) {
	start := time.Now()
	out, err := q.next.GetQuotes(ctx, tickers)
	q.metrics.observeCall(q.name+".quotes", start, err)
	return out, err
}

type instrumentedMaster struct {
	metrics *Metrics
	name    string
	next    enrich.MasterDataProvider
}

func (mp *instrumentedMaster) BySymbols(ctx context.Context, tickers []string) (map[string]models.MasterRecord, error) {
	start := time.Now()
	out, err := mp.next.BySymbols(ctx, tickers)
	mp.metrics.observeCall(mp.name+".by_symbols", start, err)
	return out, err
}

func (mp *instrumentedMaster) ByUnderlying(ctx context.Context, underlying string) ([]string, error) {
	start := time.Now()
	out, err := mp.next.ByUnderlying(ctx, underlying)
	mp.metrics.observeCall(mp.name+".by_underlying", start, err)
	return out, err
}
