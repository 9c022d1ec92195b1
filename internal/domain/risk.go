package domain

import "time"

// PauseKind distinguishes the drawdown state machine's paused states.
type PauseKind string

const (
	PauseNone        PauseKind = ""             // trading allowed
	PauseDaily       PauseKind = "daily_loss"   // auto-clears after 24h
	PauseWeekly      PauseKind = "weekly_loss"  // auto-clears after 7d
	PauseMaxDrawdown PauseKind = "max_drawdown" // manual clear only
)

// DailyPnl is one day's realized result, recorded once per UTC day.
type DailyPnl struct {
	Date   string // YYYY-MM-DD
	Pnl    float64
	PnlPct float64 // fraction, e.g. -0.12
	Trades int
	Wins   int
	Losses int
}

// DailyPnlHistoryDays bounds the daily P&L ring.
const DailyPnlHistoryDays = 30

// RiskState is the process-wide risk snapshot, owned exclusively by the risk
// manager and persisted between cycles. CurrentDrawdownPct is a fraction
// relative to peak (negative when under water).
type RiskState struct {
	IsTradingAllowed   bool
	PauseKind          PauseKind
	PauseUntil         *time.Time // nil for indefinite or no pause
	PauseReason        string
	PeakBalance        float64
	CurrentDrawdownPct float64
	DailyPnlHistory    []DailyPnl // bounded to DailyPnlHistoryDays entries
	UpdatedAt          time.Time
}

// Today returns the record for the given UTC date, nil when absent.
func (s *RiskState) Today(date string) *DailyPnl {
	for i := range s.DailyPnlHistory {
		if s.DailyPnlHistory[i].Date == date {
			return &s.DailyPnlHistory[i]
		}
	}
	return nil
}

// DetectorStats are the per-detector counters persisted across restarts and
// exposed on the status API.
type DetectorStats struct {
	Name               string
	TotalScans         int64
	OpportunitiesFound int64
	Errors             int64
	LastScan           *time.Time
}
