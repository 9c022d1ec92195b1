package handler

import (
	"net/http"

	"github.com/quantfold/polyscout/internal/domain"
)

// PositionHandler serves open positions (from the snapshot, so reads are
// consistent with the last cycle) and closed history (from the store).
type PositionHandler struct {
	source SnapshotSource
	store  domain.PositionStore
}

func NewPositionHandler(source SnapshotSource, store domain.PositionStore) *PositionHandler {
	return &PositionHandler{source: source, store: store}
}

// ListOpen returns the open positions of the last cycle.
// GET /api/positions
func (h *PositionHandler) ListOpen(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.source.Latest()
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "no cycle completed yet")
		return
	}
	positions := snap.OpenPositions
	if positions == nil {
		positions = []domain.Position{}
	}
	writeJSON(w, http.StatusOK, positions)
}

// History returns closed and resolved positions, newest first.
// GET /api/positions/history
func (h *PositionHandler) History(w http.ResponseWriter, r *http.Request) {
	positions, err := h.store.ListHistory(r.Context(), parseListOpts(r))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "position history unavailable")
		return
	}
	if positions == nil {
		positions = []domain.Position{}
	}
	writeJSON(w, http.StatusOK, positions)
}

// Pnl aggregates realized results over the stored history plus the
// unrealized mark of the open book.
// GET /api/pnl
func (h *PositionHandler) Pnl(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.source.Latest()
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "no cycle completed yet")
		return
	}

	history, err := h.store.ListHistory(r.Context(), domain.ListOpts{Limit: 10000})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "position history unavailable")
		return
	}

	var realized float64
	wins, losses := 0, 0
	for _, p := range history {
		realized += p.RealizedPnl
		if p.RealizedPnl > 0 {
			wins++
		} else {
			losses++
		}
	}
	winRate := 0.0
	if wins+losses > 0 {
		winRate = float64(wins) / float64(wins+losses)
	}

	var unrealized float64
	for _, p := range snap.OpenPositions {
		unrealized += p.UnrealizedPnl()
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"realized_pnl_usd":   realized,
		"unrealized_pnl_usd": unrealized,
		"closed_positions":   len(history),
		"wins":               wins,
		"losses":             losses,
		"win_rate":           winRate,
		"equity_usd":         snap.EquityUSD,
		"cash_usd":           snap.CashUSD,
	})
}
