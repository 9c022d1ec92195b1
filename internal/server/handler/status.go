package handler

import (
	"net/http"
)

// StatusHandler serves views over the latest cycle snapshot.
type StatusHandler struct {
	source SnapshotSource
}

func NewStatusHandler(source SnapshotSource) *StatusHandler {
	return &StatusHandler{source: source}
}

// Status summarizes the last completed cycle.
// GET /api/status
func (h *StatusHandler) Status(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.source.Latest()
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "no cycle completed yet")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"cycle":            snap.Cycle,
		"at":               snap.At,
		"stale":            snap.Stale,
		"dry_run":          snap.DryRun,
		"markets_fetched":  snap.MarketsFetched,
		"markets_scanned":  snap.MarketsScanned,
		"opportunities":    len(snap.Opportunities),
		"open_positions":   len(snap.OpenPositions),
		"cash_usd":         snap.CashUSD,
		"equity_usd":       snap.EquityUSD,
		"realized_pnl_usd": snap.RealizedPnlUSD,
		"trading_allowed":  snap.RiskState.IsTradingAllowed,
	})
}

// Opportunities returns the last ranked opportunity list, best first.
// GET /api/opportunities
func (h *StatusHandler) Opportunities(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.source.Latest()
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "no cycle completed yet")
		return
	}
	writeJSON(w, http.StatusOK, snap.Opportunities)
}

// Risk returns the current risk state.
// GET /api/risk
func (h *StatusHandler) Risk(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.source.Latest()
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "no cycle completed yet")
		return
	}
	writeJSON(w, http.StatusOK, snap.RiskState)
}

// Detectors returns the per-detector counters.
// GET /api/detectors
func (h *StatusHandler) Detectors(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.source.Latest()
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "no cycle completed yet")
		return
	}
	writeJSON(w, http.StatusOK, snap.DetectorStats)
}
