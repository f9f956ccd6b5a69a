// Package broker provides the Kite Connect integration: live quotes, the
// login flow and the contract master cache.
package broker

import (
	"time"

	kiteconnect "github.com/zerodha/gokiteconnect/v4"
)

// AccessTokenKey is the configuration key holding the Kite access token.
const AccessTokenKey = "kite_access_token"

// kiteAPI is the part of the Kite Connect client the journal calls.
type kiteAPI interface {
	SetAccessToken(accessToken string)
	GetLoginURL() string
	GenerateSession(requestToken string, apiSecret string) (kiteconnect.UserSession, error)
	GetUserProfile() (kiteconnect.UserProfile, error)
	InvalidateAccessToken() (bool, error)
	GetQuote(instruments ...string) (kiteconnect.Quote, error)
	GetInstrumentsByExchange(exchange string) (kiteconnect.Instruments, error)
}

// Profile is the logged-in broker user.
type Profile struct {
	UserID    string   `json:"user_id"`
	UserName  string   `json:"user_name"`
	Email     string   `json:"email"`
	Broker    string   `json:"broker"`
	Exchanges []string `json:"exchanges"`
}

// AuthStatus describes the broker session state.
type AuthStatus struct {
	Configured bool      `json:"configured"`
	HasToken   bool      `json:"has_token"`
	Valid      bool      `json:"valid"`
	UserID     string    `json:"user_id,omitempty"`
	Error      string    `json:"error,omitempty"`
	CheckedAt  time.Time `json:"checked_at"`
}

func profileFrom(p kiteconnect.UserProfile) *Profile {
	return &Profile{
		UserID:    p.UserID,
		UserName:  p.UserName,
		Email:     p.Email,
		Broker:    p.Broker,
		Exchanges: p.Exchanges,
	}
}
