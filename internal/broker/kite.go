package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	kiteconnect "github.com/zerodha/gokiteconnect/v4"

	"trade-journal/internal/errors"
	"trade-journal/internal/logging"
	"trade-journal/internal/models"
	"trade-journal/internal/security"
	"trade-journal/internal/store"
)

// maxQuoteBatch is the number of instruments Kite accepts per quote call.
const maxQuoteBatch = 500

// KiteConfig holds Kite Connect credentials.
type KiteConfig struct {
	APIKey    string
	APISecret string
}

// KiteClient fetches quotes and instruments from Kite Connect. The access
// token lives in a KeyValueStore and is dropped when Kite rejects it.
type KiteClient struct {
	api       kiteAPI
	apiKey    string
	apiSecret string
	tokens    store.KeyValueStore
	audit     *security.AuditLogger
	logger    zerolog.Logger
	now       func() time.Time
	mu        sync.Mutex // guards the access token on api
}

// NewKiteClient creates a Kite client. tokens persists the access token.
func NewKiteClient(cfg KiteConfig, tokens store.KeyValueStore, audit *security.AuditLogger, logger zerolog.Logger) *KiteClient {
	return newKiteClient(kiteconnect.New(cfg.APIKey), cfg, tokens, audit, logger)
}

func newKiteClient(api kiteAPI, cfg KiteConfig, tokens store.KeyValueStore, audit *security.AuditLogger, logger zerolog.Logger) *KiteClient {
	return &KiteClient{
		api:       api,
		apiKey:    cfg.APIKey,
		apiSecret: cfg.APISecret,
		tokens:    tokens,
		audit:     audit,
		logger:    logger.With().Str("component", "kite").Logger(),
		now:       time.Now,
	}
}

// Configured reports whether API credentials are present.
func (k *KiteClient) Configured() bool {
	return k != nil && k.apiKey != ""
}

// LoginURL returns the Kite login page URL.
func (k *KiteClient) LoginURL() (string, error) {
	if !k.Configured() {
		return "", errors.ErrBrokerUnavailable
	}
	return k.api.GetLoginURL(), nil
}

// ExchangeToken trades a request token for an access token and stores it.
// input may be the bare token or the redirect URL carrying request_token.
func (k *KiteClient) ExchangeToken(ctx context.Context, input string) (*Profile, error) {
	if !k.Configured() || k.apiSecret == "" {
		return nil, errors.ErrBrokerUnavailable
	}
	requestToken := ParseRequestToken(input)
	if requestToken == "" {
		return nil, errors.NewValidationError("request_token", input, "request token is required")
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	session, err := k.api.GenerateSession(requestToken, k.apiSecret)
	if err != nil {
		_ = k.audit.LogLogin(ctx, "", false, security.MaskSensitive(err.Error()))
		return nil, errors.NewBrokerError("SESSION", "failed to generate session", err)
	}
	if err := k.tokens.Set(ctx, AccessTokenKey, session.AccessToken); err != nil {
		return nil, fmt.Errorf("storing access token: %w", err)
	}
	k.api.SetAccessToken(session.AccessToken)

	_ = k.audit.LogLogin(ctx, session.UserID, true, "")
	k.logger.Info().Str("user_id", session.UserID).Msg("Kite session established")

	return profileFrom(session.UserProfile), nil
}

// Profile returns the user owning the stored access token.
func (k *KiteClient) Profile(ctx context.Context) (*Profile, error) {
	var profile kiteconnect.UserProfile
	err := k.call(ctx, func() error {
		var err error
		profile, err = k.api.GetUserProfile()
		return err
	})
	if err != nil {
		return nil, err
	}
	return profileFrom(profile), nil
}

// Status reports whether a usable session exists, probing Kite when a token is stored.
func (k *KiteClient) Status(ctx context.Context) AuthStatus {
	status := AuthStatus{Configured: k.Configured(), CheckedAt: k.now()}
	if !status.Configured {
		return status
	}
	token, err := k.tokens.Get(ctx, AccessTokenKey)
	if err != nil {
		status.Error = err.Error()
		return status
	}
	status.HasToken = token != ""
	if !status.HasToken {
		return status
	}
	profile, err := k.Profile(ctx)
	if err != nil {
		status.Error = err.Error()
		status.HasToken = !errors.Is(err, errors.ErrSessionExpired)
		return status
	}
	status.Valid = true
	status.UserID = profile.UserID
	return status
}

// Logout invalidates the session at Kite and forgets the stored token.
func (k *KiteClient) Logout(ctx context.Context) error {
	if !k.Configured() {
		return errors.ErrBrokerUnavailable
	}
	token, err := k.tokens.Get(ctx, AccessTokenKey)
	if err != nil {
		return err
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	if token != "" {
		k.api.SetAccessToken(token)
		if _, err := k.api.InvalidateAccessToken(); err != nil {
			k.logger.Warn().Err(err).Msg("Failed to invalidate Kite token")
		}
	}
	if err := k.tokens.Delete(ctx, AccessTokenKey); err != nil {
		return fmt.Errorf("clearing access token: %w", err)
	}
	_ = k.audit.LogLogout(ctx)
	return nil
}

// GetQuotes fetches quotes for "EXCH:SYMBOL" tickers. Tickers Kite does not
// know are absent from the result.
func (k *KiteClient) GetQuotes(ctx context.Context, tickers []string) (map[string]models.Quote, error) {
	out := make(map[string]models.Quote, len(tickers))
	if len(tickers) == 0 {
		return out, nil
	}

	start := time.Now()
	for i := 0; i < len(tickers); i += maxQuoteBatch {
		batch := tickers[i:min(i+maxQuoteBatch, len(tickers))]

		var quotes kiteconnect.Quote
		err := k.call(ctx, func() error {
			var err error
			quotes, err = k.api.GetQuote(batch...)
			return err
		})
		if err != nil {
			logging.LogProviderCall(k.logger, "kite.quote", len(tickers), time.Since(start), err)
			return nil, err
		}

		for symbol, q := range quotes {
			quote := models.Quote{
				Symbol:    symbol,
				LTP:       decimal.NewFromFloat(q.LastPrice),
				Open:      decimal.NewFromFloat(q.OHLC.Open),
				High:      decimal.NewFromFloat(q.OHLC.High),
				Low:       decimal.NewFromFloat(q.OHLC.Low),
				Close:     decimal.NewFromFloat(q.OHLC.Close),
				Volume:    int64(q.Volume),
				Change:    decimal.NewFromFloat(q.NetChange),
				Timestamp: q.LastTradeTime.Time,
			}
			if q.OHLC.Close > 0 {
				quote.ChangePercent = decimal.NewFromFloat(q.NetChange / q.OHLC.Close * 100)
			}
			if len(q.Depth.Buy) > 0 && len(q.Depth.Sell) > 0 {
				quote.Bid = decimal.NewFromFloat(q.Depth.Buy[0].Price)
				quote.Ask = decimal.NewFromFloat(q.Depth.Sell[0].Price)
				if quote.Bid.IsPositive() && quote.Ask.IsPositive() {
					quote.Spread = quote.Ask.Sub(quote.Bid)
				}
			}
			out[symbol] = quote
		}
	}

	logging.LogProviderCall(k.logger, "kite.quote", len(tickers), time.Since(start), nil)
	return out, nil
}

// Instruments downloads the instrument dump of one exchange as master records.
func (k *KiteClient) Instruments(ctx context.Context, exchange models.Exchange) ([]models.MasterRecord, error) {
	var instruments kiteconnect.Instruments
	err := k.call(ctx, func() error {
		var err error
		instruments, err = k.api.GetInstrumentsByExchange(string(exchange))
		return err
	})
	if err != nil {
		return nil, err
	}

	records := make([]models.MasterRecord, 0, len(instruments))
	for _, inst := range instruments {
		r := models.MasterRecord{
			ExchangeSymbol: models.Ticker(models.Exchange(inst.Exchange), inst.Tradingsymbol),
			Underlying:     strings.ToUpper(inst.Name),
			Exchange:       models.Exchange(inst.Exchange),
			Segment:        inst.Segment,
			InstrumentType: inst.InstrumentType,
			SymbolDetails:  inst.Tradingsymbol + " " + inst.InstrumentType,
			LotSize:        int64(inst.LotSize),
			TickSize:       decimal.NewFromFloat(inst.TickSize),
			InstrumentKey:  fmt.Sprintf("%d", inst.InstrumentToken),
		}
		if !inst.Expiry.Time.IsZero() {
			// Contracts expire at the end of the IST trading day.
			d := inst.Expiry.Time
			epoch := time.Date(d.Year(), d.Month(), d.Day(), 23, 59, 59, 0, models.IST).Unix()
			r.ExpiryEpoch = &epoch
		}
		if raw, err := json.Marshal(inst); err == nil {
			r.Raw = string(raw)
		}
		records = append(records, r)
	}
	return records, nil
}

// call runs fn with the stored access token applied. A token rejected by Kite
// is deleted so the next call reports an unauthenticated state.
func (k *KiteClient) call(ctx context.Context, fn func() error) error {
	if !k.Configured() {
		return errors.ErrBrokerUnavailable
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	token, err := k.tokens.Get(ctx, AccessTokenKey)
	if err != nil {
		return fmt.Errorf("loading access token: %w", err)
	}
	if token == "" {
		return errors.ErrNotAuthenticated
	}

	k.mu.Lock()
	k.api.SetAccessToken(token)
	err = fn()
	k.mu.Unlock()

	if err == nil {
		return nil
	}
	if isTokenError(err) {
		if delErr := k.tokens.Delete(ctx, AccessTokenKey); delErr != nil {
			k.logger.Error().Err(delErr).Msg("Failed to clear rejected access token")
		}
		_ = k.audit.LogSessionExpired(ctx, err.Error())
		k.logger.Warn().Err(err).Msg("Kite rejected access token, cleared")
		return fmt.Errorf("%w: %s", errors.ErrSessionExpired, security.MaskSensitive(err.Error()))
	}
	return errors.NewBrokerError("KITE", "request failed", err)
}

// isTokenError reports whether Kite rejected the access token.
func isTokenError(err error) bool {
	var kerr kiteconnect.Error
	if errors.As(err, &kerr) && kerr.ErrorType == "TokenException" {
		return true
	}
	var kerrPtr *kiteconnect.Error
	if errors.As(err, &kerrPtr) && kerrPtr.ErrorType == "TokenException" {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "tokenexception") ||
		strings.Contains(msg, "incorrect `api_key` or `access_token`") ||
		strings.Contains(msg, "invalid token")
}

// ParseRequestToken extracts request_token from a redirect URL, or returns
// the trimmed input when it is already a bare token.
func ParseRequestToken(input string) string {
	input = strings.TrimSpace(input)
	if !strings.Contains(input, "request_token=") {
		return input
	}
	query := input
	if u, err := url.Parse(input); err == nil && u.RawQuery != "" {
		query = u.RawQuery
	} else if i := strings.IndexByte(input, '?'); i >= 0 {
		query = input[i+1:]
	}
	values, err := url.ParseQuery(query)
	if err != nil {
		return ""
	}
	return values.Get("request_token")
}
