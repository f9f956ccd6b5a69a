package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"trade-journal/internal/errors"
	"trade-journal/internal/logging"
	"trade-journal/internal/models"
)

type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	var brokerErr *errors.BrokerError
	switch {
	case errors.Is(err, errors.ErrInputValidation):
		return http.StatusBadRequest
	case errors.Is(err, errors.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, errors.ErrNotAuthenticated), errors.Is(err, errors.ErrSessionExpired):
		return http.StatusUnauthorized
	case errors.Is(err, errors.ErrBrokerUnavailable):
		return http.StatusServiceUnavailable
	case errors.As(err, &brokerErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	logger := logging.FromContext(r.Context())
	if status >= http.StatusInternalServerError {
		logger.Error().Err(err).Str("path", r.URL.Path).Msg("Request failed")
	} else {
		logger.Debug().Err(err).Int("status", status).Msg("Request rejected")
	}

	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = http.StatusText(status)
	}
	writeJSON(w, status, errorResponse{Error: msg, RequestID: logging.RequestID(r.Context())})
}

func decodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		return errors.NewValidationError("body", nil, "invalid JSON: "+err.Error())
	}
	return nil
}

// pathID parses an integer URL parameter.
func pathID(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 1 {
		return 0, errors.NewValidationError(name, raw, "must be a positive integer")
	}
	return id, nil
}

// pageParams reads page and page_size; invalid values fall back to defaults.
func pageParams(r *http.Request) (int, int) {
	page, size := models.DefaultPage, models.DefaultPageSize
	q := r.URL.Query()
	if v, err := strconv.Atoi(q.Get("page")); err == nil && v > 0 {
		page = v
	}
	if v, err := strconv.Atoi(q.Get("page_size")); err == nil && v > 0 {
		size = v
	}
	return page, size
}
