package server

import (
	"net/http"

	"trade-journal/internal/enrich"
	"trade-journal/internal/errors"
)

// ============================================================================
// Trades
// ============================================================================

// handleListTrades returns one page of trades with stored summaries.
// GET /api/trades?page=N&page_size=M
func (s *Server) handleListTrades(w http.ResponseWriter, r *http.Request) {
	pageNum, size := pageParams(r)
	views, p, err := s.journal.ListTrades(r.Context(), pageNum, size)
	if err != nil {
		writeError(w, r, err)
		return
	}

	out := page[tradeWithLegs]{Pagination: p, Results: make([]tradeWithLegs, len(views))}
	for i, v := range views {
		out.Results[i] = newTradeWithLegs(v)
	}
	writeJSON(w, http.StatusOK, out)
}

// handleCreateTrade creates a trade with its legs.
// POST /api/trades
func (s *Server) handleCreateTrade(w http.ResponseWriter, r *http.Request) {
	var req tradeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	in, err := req.newTrade()
	if err != nil {
		writeError(w, r, err)
		return
	}

	view, err := s.journal.CreateTrade(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newTradeWithLegs(*view))
}

// handleGetTrade returns a trade enriched with live quotes and expiries.
// GET /api/trades/{tradeID}
func (s *Server) handleGetTrade(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "tradeID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	et, err := s.journal.GetTrade(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newEnrichedTradeResponse(*et))
}

// handleUpdateTrade replaces trade fields and reconciles legs.
// PUT|PATCH /api/trades/{tradeID}
func (s *Server) handleUpdateTrade(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "tradeID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req tradeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	upd, err := req.update()
	if err != nil {
		writeError(w, r, err)
		return
	}

	view, err := s.journal.UpdateTrade(r.Context(), id, upd)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newTradeWithLegs(*view))
}

// handleDeleteTrade deletes a trade and its legs.
// DELETE /api/trades/{tradeID}
func (s *Server) handleDeleteTrade(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "tradeID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.journal.DeleteTrade(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleLivePrices prices every open trade with current quotes.
// GET /api/trades/live
func (s *Server) handleLivePrices(w http.ResponseWriter, r *http.Request) {
	view, err := s.journal.LivePrices(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newLiveViewResponse(view))
}

// ============================================================================
// Snapshots
// ============================================================================

// handleListSnapshots returns one page of snapshots without live data.
// GET /api/snapshots?page=N&page_size=M
func (s *Server) handleListSnapshots(w http.ResponseWriter, r *http.Request) {
	pageNum, size := pageParams(r)
	snaps, p, err := s.journal.ListSnapshots(r.Context(), pageNum, size)
	if err != nil {
		writeError(w, r, err)
		return
	}

	out := page[snapshotResponse]{Pagination: p, Results: make([]snapshotResponse, len(snaps))}
	for i, es := range snaps {
		out.Results[i] = newSnapshotResponse(es)
	}
	writeJSON(w, http.StatusOK, out)
}

// handleCreateSnapshot records a snapshot from explicit legs or a basket type.
// POST /api/snapshots
func (s *Server) handleCreateSnapshot(w http.ResponseWriter, r *http.Request) {
	var req snapshotRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	in, err := req.basket()
	if err != nil {
		writeError(w, r, err)
		return
	}

	es, err := s.journal.CreateSnapshot(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newSnapshotResponse(*es))
}

// handleGetSnapshot returns a snapshot with movement since it was recorded.
// GET /api/snapshots/{snapshotID}
func (s *Server) handleGetSnapshot(w http.ResponseWriter, r *http.Request) {
	s.withSnapshot(w, r, func(id int64) (*enrich.EnrichedSnapshot, error) {
		return s.journal.GetSnapshot(r.Context(), id)
	})
}

// handleUpdateSnapshot replaces snapshot fields and reconciles legs.
// PUT|PATCH /api/snapshots/{snapshotID}
func (s *Server) handleUpdateSnapshot(w http.ResponseWriter, r *http.Request) {
	s.withSnapshot(w, r, func(id int64) (*enrich.EnrichedSnapshot, error) {
		var req snapshotRequest
		if err := decodeJSON(r, &req); err != nil {
			return nil, err
		}
		if req.SnapshotType != "" {
			return nil, errors.NewValidationError("snapshot_type", req.SnapshotType, "cannot be changed after creation")
		}
		upd, err := req.update()
		if err != nil {
			return nil, err
		}
		return s.journal.UpdateSnapshot(r.Context(), id, upd)
	})
}

func (s *Server) withSnapshot(w http.ResponseWriter, r *http.Request, fn func(id int64) (*enrich.EnrichedSnapshot, error)) {
	id, err := pathID(r, "snapshotID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	es, err := fn(id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newSnapshotResponse(*es))
}

// handleDeleteSnapshot deletes a snapshot and its legs.
// DELETE /api/snapshots/{snapshotID}
func (s *Server) handleDeleteSnapshot(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "snapshotID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.journal.DeleteSnapshot(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ============================================================================
// Analytics
// ============================================================================

// handleAnalytics returns journal-wide realized PnL figures.
// GET /api/analytics/summary
func (s *Server) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	summary, err := s.journal.Analytics(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newAnalyticsResponse(summary))
}
