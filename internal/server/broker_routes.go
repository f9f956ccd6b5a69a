package server

import (
	"net/http"

	"trade-journal/internal/errors"
)

// handleAuthURL returns the Kite login page.
// GET /api/brokers/kite/auth-url
func (s *Server) handleAuthURL(w http.ResponseWriter, r *http.Request) {
	if s.broker == nil {
		writeError(w, r, errors.ErrBrokerUnavailable)
		return
	}
	url, err := s.broker.LoginURL()
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"login_url": url})
}

// handleExchangeToken completes the login with the redirect's request token.
// POST /api/brokers/kite/token
func (s *Server) handleExchangeToken(w http.ResponseWriter, r *http.Request) {
	if s.broker == nil {
		writeError(w, r, errors.ErrBrokerUnavailable)
		return
	}
	var req tokenRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	profile, err := s.broker.ExchangeToken(r.Context(), req.RequestToken)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// handleProfile returns the user owning the stored session.
// GET /api/brokers/kite/profile
func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	if s.broker == nil {
		writeError(w, r, errors.ErrBrokerUnavailable)
		return
	}
	profile, err := s.broker.Profile(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// handleRefreshMaster reloads futures contracts into the master cache.
// POST /api/brokers/kite/master
func (s *Server) handleRefreshMaster(w http.ResponseWriter, r *http.Request) {
	if s.master == nil {
		writeError(w, r, errors.ErrBrokerUnavailable)
		return
	}
	n, err := s.master.Refresh(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"records": n})
}
