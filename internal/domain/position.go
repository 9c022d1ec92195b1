package domain

import "time"

// Side is the outcome a position is long.
type Side string

const (
	SideYes Side = "yes"
	SideNo  Side = "no"
)

// PositionStatus tracks the position state machine: OPEN -> CLOSED|RESOLVED,
// both terminal.
type PositionStatus string

const (
	PositionOpen     PositionStatus = "open"
	PositionClosed   PositionStatus = "closed"   // exited early
	PositionResolved PositionStatus = "resolved" // market settled
)

// Exit reasons recorded on CLOSED/RESOLVED positions.
const (
	ExitTakeProfit = "TAKE_PROFIT"
	ExitStopLoss   = "STOP_LOSS"
	ExitTimeLimit  = "TIME_EXIT"
	ExitResolved   = "RESOLVED"
)

// PositionLeg is one underlying market of a multi-outcome arbitrage position.
// Weight is the share of AmountUSD allocated to the leg.
type PositionLeg struct {
	MarketID string
	Side     Side
	Weight   float64
}

// Position is an owned trade. Shares are fixed at open time
// (shares = amountUSD / entryPrice); only the lifecycle component mutates a
// position, and only while it is OPEN. EntryPrice and CurrentPrice are
// denominated in the held side: a NO position entered at YES=0.70 records
// EntryPrice 0.30 and tracks the NO price thereafter.
type Position struct {
	ID              string
	MarketID        string
	MarketQuestion  string
	OpportunityType OpportunityType
	Side            Side
	EntryPrice      float64
	AmountUSD       float64
	Shares          float64
	CurrentPrice    float64
	Status          PositionStatus
	ExitPrice       *float64
	ExitReason      string
	RealizedPnl     float64
	Legs            []PositionLeg // multi-outcome positions only
	OpenedAt        time.Time
	ClosedAt        *time.Time
}

// UnrealizedPnl is shares x price move in the held side's terms. It is zero
// once the position is no longer open; the frozen result lives in
// RealizedPnl.
func (p Position) UnrealizedPnl() float64 {
	if p.Status != PositionOpen {
		return 0
	}
	return p.Shares * (p.CurrentPrice - p.EntryPrice)
}

// UnrealizedPnlPct is the unrealized P&L as a fraction of invested capital.
func (p Position) UnrealizedPnlPct() float64 {
	if p.AmountUSD == 0 {
		return 0
	}
	return p.UnrealizedPnl() / p.AmountUSD
}

// HoursOpen is the wall-clock age of the position at now (or at close time,
// whichever came first).
func (p Position) HoursOpen(now time.Time) float64 {
	end := now
	if p.ClosedAt != nil {
		end = *p.ClosedAt
	}
	return end.Sub(p.OpenedAt).Hours()
}

// CurrentValue is the mark-to-market value of the held shares.
func (p Position) CurrentValue() float64 {
	return p.Shares * p.CurrentPrice
}
