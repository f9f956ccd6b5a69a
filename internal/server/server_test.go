package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trade-journal/internal/broker"
	"trade-journal/internal/enrich"
	"trade-journal/internal/errors"
	"trade-journal/internal/journal"
	"trade-journal/internal/metrics"
	"trade-journal/internal/models"
	"trade-journal/internal/store"
)

type fakeQuotes struct {
	ltp map[string]string
	err error
}

func (f *fakeQuotes) GetQuotes(_ context.Context, tickers []string) (map[string]models.Quote, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make(map[string]models.Quote)
	for _, t := range tickers {
		if v, ok := f.ltp[t]; ok {
			out[t] = models.Quote{Symbol: t, LTP: decimal.RequireFromString(v)}
		}
	}
	return out, nil
}

type fakeBroker struct {
	profile *broker.Profile
	err     error
	token   string
}

func (f *fakeBroker) LoginURL() (string, error) {
	return "https://kite.zerodha.com/connect/login?api_key=test&v=3", nil
}

func (f *fakeBroker) ExchangeToken(_ context.Context, input string) (*broker.Profile, error) {
	f.token = input
	return f.profile, f.err
}

func (f *fakeBroker) Profile(context.Context) (*broker.Profile, error) {
	return f.profile, f.err
}

type fakeRefresher struct{ n int }

func (f *fakeRefresher) Refresh(context.Context) (int, error) { return f.n, nil }

var testNow = time.Date(2025, 11, 20, 10, 0, 0, 0, models.IST)

type testServer struct {
	*Server
	quotes *fakeQuotes
}

func newTestServer(t *testing.T, cfg Config) *testServer {
	t.Helper()
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	quotes := &fakeQuotes{ltp: map[string]string{}}
	pipeline := enrich.NewPipeline(quotes, nil, enrich.DefaultBaskets(), zerolog.Nop())
	cfg.Journal = journal.NewService(st, st, pipeline, zerolog.Nop(),
		journal.WithClock(func() time.Time { return testNow }))
	cfg.DB = st
	cfg.Log = zerolog.Nop()
	return &testServer{Server: New(cfg), quotes: quotes}
}

func (ts *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	ts.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

const mixedTrade = `{
	"name": "Gold spread",
	"description": "one closed, one open",
	"legs": [
		{"ticker": "NSE:A", "entry_date": "2025-01-05", "exit_date": "2025-01-20", "entry_price": "100", "exit_price": "110", "quantity": 10},
		{"ticker": "NSE:B", "entry_date": "2025-02-01", "entry_price": 50, "quantity": 5}
	]
}`

func TestTradeCRUD(t *testing.T) {
	ts := newTestServer(t, Config{})

	rec := ts.do(t, http.MethodPost, "/api/trades", mixedTrade)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode(t, rec)
	assert.Equal(t, float64(1), created["trade_id"])
	assert.Equal(t, "100.00", created["pnl"])
	assert.Equal(t, true, created["is_open"])
	assert.Equal(t, "2025-01-05", created["entry_date"])
	assert.Len(t, created["legs"], 2)

	rec = ts.do(t, http.MethodGet, "/api/trades?page=1&page_size=5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode(t, rec)
	assert.Equal(t, float64(1), list["count"])
	assert.Equal(t, float64(1), list["total_pages"])
	assert.Equal(t, float64(5), list["page_size"])
	assert.Len(t, list["results"], 1)

	legs := created["legs"].([]interface{})
	openLeg := legs[0].(map[string]interface{})
	require.Equal(t, "NSE:B", openLeg["ticker"], "legs are ordered by descending entry date")

	update := fmt.Sprintf(`{"name": "Gold spread v2", "legs": [
		{"id": %v, "ticker": "NSE:B", "entry_date": "2025-02-01", "exit_date": "2025-03-01", "entry_price": "50", "exit_price": "40", "quantity": 5}
	]}`, openLeg["id"])
	rec = ts.do(t, http.MethodPut, "/api/trades/1", update)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode(t, rec)
	assert.Equal(t, "Gold spread v2", updated["name"])
	assert.Equal(t, false, updated["is_open"])
	assert.Equal(t, "-50.00", updated["pnl"])
	assert.Len(t, updated["legs"], 1)

	rec = ts.do(t, http.MethodDelete, "/api/trades/1", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/trades/1", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetTradeEnriched(t *testing.T) {
	ts := newTestServer(t, Config{})
	ts.quotes.ltp["NSE:B"] = "60"

	require.Equal(t, http.StatusCreated, ts.do(t, http.MethodPost, "/api/trades", mixedTrade).Code)

	rec := ts.do(t, http.MethodGet, "/api/trades/1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "100.00", body["pnl"])
	// realized 100 + unrealized (60-50)*5
	assert.Equal(t, "150.00", body["enriched_pnl"])

	open := body["legs"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "60.00", open["ltp"])
	assert.Equal(t, "50.00", open["pnl"])
	assert.Equal(t, "0.00", open["stored_pnl"])
	assert.Equal(t, "100.00", open["pnl_percentage"])
}

func TestGetTradeSurvivesQuoteFailure(t *testing.T) {
	ts := newTestServer(t, Config{})
	ts.quotes.err = fmt.Errorf("network down")

	require.Equal(t, http.StatusCreated, ts.do(t, http.MethodPost, "/api/trades", mixedTrade).Code)

	rec := ts.do(t, http.MethodGet, "/api/trades/1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Nil(t, body["enriched_pnl"])
	assert.Equal(t, "network down", body["quote_error"])
	for _, l := range body["legs"].([]interface{}) {
		leg := l.(map[string]interface{})
		assert.Nil(t, leg["ltp"])
		assert.Nil(t, leg["pnl"])
	}
}

func TestCreateTradeValidation(t *testing.T) {
	ts := newTestServer(t, Config{})

	tests := []struct {
		name string
		body string
	}{
		{"exit date without price", `{"name": "x", "legs": [{"ticker": "NSE:A", "entry_date": "2025-01-01", "exit_date": "2025-01-02", "entry_price": "1", "quantity": 1}]}`},
		{"no legs", `{"name": "x", "legs": []}`},
		{"missing name", `{"legs": [{"ticker": "NSE:A", "entry_date": "2025-01-01", "entry_price": "1", "quantity": 1}]}`},
		{"bad date", `{"name": "x", "legs": [{"ticker": "NSE:A", "entry_date": "01/01/2025", "entry_price": "1", "quantity": 1}]}`},
		{"malformed json", `{"name":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, http.MethodPost, "/api/trades", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			assert.NotEmpty(t, decode(t, rec)["error"])
		})
	}
}

func TestInvalidTradeID(t *testing.T) {
	ts := newTestServer(t, Config{})
	assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodGet, "/api/trades/abc", "").Code)
}

func TestTradeIDsAreNotReused(t *testing.T) {
	ts := newTestServer(t, Config{})
	require.Equal(t, http.StatusCreated, ts.do(t, http.MethodPost, "/api/trades", mixedTrade).Code)
	require.Equal(t, http.StatusCreated, ts.do(t, http.MethodPost, "/api/trades", mixedTrade).Code)
	require.Equal(t, http.StatusNoContent, ts.do(t, http.MethodDelete, "/api/trades/2", "").Code)

	rec := ts.do(t, http.MethodPost, "/api/trades", mixedTrade)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, float64(3), decode(t, rec)["trade_id"])
}

func TestLivePrices(t *testing.T) {
	ts := newTestServer(t, Config{})
	ts.quotes.ltp["NSE:B"] = "55"

	require.Equal(t, http.StatusCreated, ts.do(t, http.MethodPost, "/api/trades", mixedTrade).Code)

	rec := ts.do(t, http.MethodGet, "/api/trades/live", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, true, body["broker_configured"])
	assert.Equal(t, "25.00", body["total_unrealized_pnl"])

	trades := body["open_trades"].([]interface{})
	require.Len(t, trades, 1)
	legs := trades[0].(map[string]interface{})["legs"].([]interface{})
	open := legs[0].(map[string]interface{})
	assert.Equal(t, "55.00", open["current_price"])
	assert.Equal(t, "5.00", open["price_change"])
	assert.Equal(t, "10.00", open["price_change_percent"])
	closed := legs[1].(map[string]interface{})
	assert.Nil(t, closed["current_price"])
	assert.Equal(t, "100.00", closed["pnl"])
}

func TestAnalyticsSummary(t *testing.T) {
	ts := newTestServer(t, Config{})
	closed := `{"name": "c", "legs": [
		{"ticker": "NSE:A", "entry_date": "2025-01-02", "exit_date": "2025-01-10", "entry_price": "100", "exit_price": "115", "quantity": 10},
		{"ticker": "NSE:C", "entry_date": "2025-02-02", "exit_date": "2025-02-10", "entry_price": "100", "exit_price": "97", "quantity": 10}
	]}`
	require.Equal(t, http.StatusCreated, ts.do(t, http.MethodPost, "/api/trades", closed).Code)

	rec := ts.do(t, http.MethodGet, "/api/analytics/summary", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, float64(0), body["total_open_trades"])
	assert.Equal(t, float64(1), body["total_closed_trades"])
	assert.Equal(t, "120.00", body["overall_pnl"])
	assert.Equal(t, "120.00", body["closed_trades_pnl"])
	assert.Equal(t, "0.00", body["open_trades_pnl"])
	assert.Equal(t, []interface{}{
		map[string]interface{}{"date": "2025-01", "pnl": "150.00"},
		map[string]interface{}{"date": "2025-02", "pnl": "-30.00"},
	}, body["pnl_over_time"])
}

func TestSnapshotMovement(t *testing.T) {
	ts := newTestServer(t, Config{})
	ts.quotes.ltp["NSE:GOLDBEES-EQ"] = "110"

	create := `{"name": "gold", "legs": [
		{"ticker": "NSE:GOLDBEES-EQ", "date": "2025-11-10", "price": "100", "quantity": 1},
		{"ticker": "NSE:ZERO", "date": "2025-11-10", "price": "0", "quantity": 1}
	]}`
	rec := ts.do(t, http.MethodPost, "/api/snapshots", create)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	id := decode(t, rec)["snapshot_id"]

	rec = ts.do(t, http.MethodGet, fmt.Sprintf("/api/snapshots/%v", id), "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, float64(2), body["leg_count"])

	byTicker := map[string]map[string]interface{}{}
	for _, l := range body["legs"].([]interface{}) {
		leg := l.(map[string]interface{})
		byTicker[leg["ticker"].(string)] = leg
	}
	gold := byTicker["NSE:GOLDBEES-EQ"]
	assert.Equal(t, "110.00", gold["current_price"])
	assert.Equal(t, "10.00", gold["points_moved"])
	assert.Equal(t, "10.00", gold["percentage_moved"])
	assert.Equal(t, float64(10), gold["days_since_snapshot"])

	zero := byTicker["NSE:ZERO"]
	assert.Nil(t, zero["points_moved"])
	assert.Nil(t, zero["percentage_moved"])
	assert.Equal(t, float64(10), zero["days_since_snapshot"])

	rec = ts.do(t, http.MethodGet, "/api/snapshots", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode(t, rec)["results"], 1)

	rec = ts.do(t, http.MethodDelete, fmt.Sprintf("/api/snapshots/%v", id), "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestCreateBasketSnapshot(t *testing.T) {
	ts := newTestServer(t, Config{})
	ts.quotes.ltp["NSE:GOLDBEES-EQ"] = "72.40"
	ts.quotes.ltp["NSE:SETFGOLD-EQ"] = "75.10"

	rec := ts.do(t, http.MethodPost, "/api/snapshots", `{"name": "gold basket", "snapshot_type": "goldm"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, float64(2), body["leg_count"])
	for _, l := range body["legs"].([]interface{}) {
		assert.Equal(t, "2025-11-20", l.(map[string]interface{})["date"])
	}

	rec = ts.do(t, http.MethodPost, "/api/snapshots", `{"name": "x", "snapshot_type": "platinum"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBrokerRoutes(t *testing.T) {
	t.Run("not configured", func(t *testing.T) {
		ts := newTestServer(t, Config{})
		for _, path := range []string{"/api/brokers/kite/auth-url", "/api/brokers/kite/profile"} {
			assert.Equal(t, http.StatusServiceUnavailable, ts.do(t, http.MethodGet, path, "").Code, path)
		}
		assert.Equal(t, http.StatusServiceUnavailable, ts.do(t, http.MethodPost, "/api/brokers/kite/master", "").Code)
	})

	t.Run("login flow", func(t *testing.T) {
		fb := &fakeBroker{profile: &broker.Profile{UserID: "AB1234", UserName: "Test"}}
		ts := newTestServer(t, Config{Broker: fb, Master: &fakeRefresher{n: 12}})

		rec := ts.do(t, http.MethodGet, "/api/brokers/kite/auth-url", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, decode(t, rec)["login_url"], "api_key=test")

		rec = ts.do(t, http.MethodPost, "/api/brokers/kite/token", `{"request_token": "abc123"}`)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "AB1234", decode(t, rec)["user_id"])
		assert.Equal(t, "abc123", fb.token)

		rec = ts.do(t, http.MethodPost, "/api/brokers/kite/master", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, float64(12), decode(t, rec)["records"])
	})

	t.Run("expired session", func(t *testing.T) {
		fb := &fakeBroker{err: fmt.Errorf("%w: token invalid", errors.ErrSessionExpired)}
		ts := newTestServer(t, Config{Broker: fb})
		assert.Equal(t, http.StatusUnauthorized, ts.do(t, http.MethodGet, "/api/brokers/kite/profile", "").Code)
	})
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{errors.NewValidationError("f", 1, "bad"), http.StatusBadRequest},
		{errors.NewNotFoundError("trade", 3), http.StatusNotFound},
		{errors.ErrNotAuthenticated, http.StatusUnauthorized},
		{errors.ErrBrokerUnavailable, http.StatusServiceUnavailable},
		{errors.NewBrokerError("KITE", "request failed", fmt.Errorf("boom")), http.StatusBadGateway},
		{fmt.Errorf("disk full"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}

func TestHealthAndMetrics(t *testing.T) {
	m := metrics.New()
	ts := newTestServer(t, Config{Metrics: m})

	rec := ts.do(t, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode(t, rec)["status"])
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))

	rec = ts.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `journal_http_requests_total{method="GET",route="/healthz",status="200"} 1`)
}

func TestRequestIDPropagates(t *testing.T) {
	ts := newTestServer(t, Config{})
	req := httptest.NewRequest(http.MethodGet, "/api/trades/99", nil)
	req.Header.Set(RequestIDHeader, "req-42")
	rec := httptest.NewRecorder()
	ts.Handler().ServeHTTP(rec, req)

	assert.Equal(t, "req-42", rec.Header().Get(RequestIDHeader))
	assert.Equal(t, "req-42", decode(t, rec)["request_id"])
}
