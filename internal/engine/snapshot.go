package engine

import (
	"context"
	"time"

	"github.com/quantfold/polyscout/internal/domain"
)

// Snapshot is the immutable end-of-cycle view published to every reader:
// the status API, the websocket hub and the archiver. Readers never see a
// cycle in progress.
type Snapshot struct {
	Cycle          int64                  `json:"cycle"`
	At             time.Time              `json:"at"`
	Stale          bool                   `json:"stale"`
	DryRun         bool                   `json:"dry_run"`
	MarketsFetched int                    `json:"markets_fetched"`
	MarketsScanned int                    `json:"markets_scanned"`
	Opportunities  []domain.Opportunity   `json:"opportunities"`
	OpenPositions  []domain.Position      `json:"open_positions"`
	ClosedThisCycle []domain.Position     `json:"closed_this_cycle"`
	RiskState      domain.RiskState       `json:"risk_state"`
	DetectorStats  []domain.DetectorStats `json:"detector_stats"`
	CashUSD        float64                `json:"cash_usd"`
	EquityUSD      float64                `json:"equity_usd"`
	RealizedPnlUSD float64                `json:"realized_pnl_usd"`
}

// Sink receives the published snapshot. Sink errors degrade to a log line;
// they never fail the cycle.
type Sink interface {
	PublishSnapshot(ctx context.Context, snap Snapshot) error
}

// Alerter dispatches a high-ranked opportunity to the notification
// channels. Implementations own formatting and rate limiting.
type Alerter interface {
	AlertOpportunity(ctx context.Context, o domain.Opportunity) error
}

// ContextEnricher supplies the optional auxiliary detector feeds (whale
// trades, volume history, sentiment). The engine runs without one; absent
// feeds simply mute the detectors that need them.
type ContextEnricher interface {
	Enrich(ctx context.Context, dctx *domain.DetectionContext) error
}
