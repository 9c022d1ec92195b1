// Package lifecycle drives the position state machine: OPEN positions are
// refreshed against the latest market snapshot every cycle and transition to
// CLOSED or RESOLVED through exactly one of four triggers, evaluated in
// strict priority order: resolution, take-profit, stop-loss, time-forced
// exit.
package lifecycle

import (
	"log/slog"
	"time"

	"github.com/quantfold/polyscout/internal/config"
	"github.com/quantfold/polyscout/internal/domain"
)

// Price boundaries treated as settlement.
const (
	settledHigh = 0.99
	settledLow  = 0.01
	// A price pinned at the boundary before the venue flags closure still
	// means the outcome is decided; exit at the boundary price.
	nearCertainHigh = 0.98
	nearCertainLow  = 0.02
)

// Decision is the outcome of evaluating one open position for one cycle.
type Decision struct {
	Exit      bool
	Status    domain.PositionStatus // CLOSED or RESOLVED when Exit
	Reason    string
	ExitPrice float64
}

// Resolver evaluates exits. Stateless apart from config; the orchestrator
// owns persistence and calls Close only after the store accepted the
// transition.
type Resolver struct {
	cfg    config.TradingConfig
	logger *slog.Logger
	now    func() time.Time
}

func NewResolver(cfg config.TradingConfig, logger *slog.Logger) *Resolver {
	return &Resolver{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "lifecycle")),
		now:    time.Now,
	}
}

// RefreshPrice updates CurrentPrice from the cycle's market snapshot. A
// missing market leaves the price unchanged so a fetch gap never fabricates
// an exit. Multi-leg positions take the weight-averaged price of the legs
// that resolved this cycle; if none did, the price holds.
func (r *Resolver) RefreshPrice(p *domain.Position, markets map[string]domain.Market) {
	if p.Status != domain.PositionOpen {
		return
	}
	if len(p.Legs) > 0 {
		r.refreshLegs(p, markets)
		return
	}
	m, ok := markets[p.MarketID]
	if !ok {
		return
	}
	p.CurrentPrice = sidePrice(m, p.Side)
}

func (r *Resolver) refreshLegs(p *domain.Position, markets map[string]domain.Market) {
	var sum, weight float64
	for _, leg := range p.Legs {
		m, ok := markets[leg.MarketID]
		if !ok {
			continue
		}
		sum += sidePrice(m, leg.Side) * leg.Weight
		weight += leg.Weight
	}
	if weight == 0 {
		return
	}
	p.CurrentPrice = sum / weight
}

func sidePrice(m domain.Market, side domain.Side) float64 {
	if side == domain.SideNo {
		return m.NoPrice
	}
	return m.YesPrice
}

// Evaluate runs the transition triggers in priority order against the
// position's refreshed price. status may be nil when the venue poll failed;
// the price-based checks still run.
func (r *Resolver) Evaluate(p domain.Position, status *domain.MarketStatus) Decision {
	if p.Status != domain.PositionOpen {
		return Decision{}
	}

	if d, ok := r.checkResolution(p, status); ok {
		return d
	}

	pnlPct := p.UnrealizedPnlPct()

	if pnlPct >= r.TakeProfitTarget(p) {
		return Decision{Exit: true, Status: domain.PositionClosed, Reason: domain.ExitTakeProfit, ExitPrice: p.CurrentPrice}
	}
	if r.cfg.StopLossEnabled && pnlPct <= r.cfg.StopLossPct {
		return Decision{Exit: true, Status: domain.PositionClosed, Reason: domain.ExitStopLoss, ExitPrice: p.CurrentPrice}
	}
	if p.HoursOpen(r.now()) >= r.cfg.MaxHoldHours && p.UnrealizedPnl() > 0 {
		return Decision{Exit: true, Status: domain.PositionClosed, Reason: domain.ExitTimeLimit, ExitPrice: p.CurrentPrice}
	}
	return Decision{}
}

// checkResolution detects settlement three ways: an explicit venue outcome,
// a closed market pinned at a boundary, or the held price itself reaching
// the near-certain band before the venue catches up.
func (r *Resolver) checkResolution(p domain.Position, status *domain.MarketStatus) (Decision, bool) {
	if status != nil && status.Closed {
		if settledYes, ok := settledYesPrice(*status); ok {
			exit := settledYes
			if p.Side == domain.SideNo {
				exit = 1 - settledYes
			}
			return Decision{Exit: true, Status: domain.PositionResolved, Reason: domain.ExitResolved, ExitPrice: exit}, true
		}
		// Closed without a definitive price: fall through to the held
		// price, which may already sit in the near-certain band.
	}

	if p.CurrentPrice >= nearCertainHigh || p.CurrentPrice <= nearCertainLow {
		return Decision{Exit: true, Status: domain.PositionResolved, Reason: domain.ExitResolved, ExitPrice: p.CurrentPrice}, true
	}
	return Decision{}, false
}

// settledYesPrice extracts the definitive YES settlement from a closed
// status: an explicit outcome, or a price pinned past the settled boundary.
func settledYesPrice(s domain.MarketStatus) (float64, bool) {
	switch {
	case s.Outcome == string(domain.SideYes):
		return 1, true
	case s.Outcome == string(domain.SideNo):
		return 0, true
	case s.YesPrice >= settledHigh:
		return 1, true
	case s.YesPrice <= settledLow:
		return 0, true
	}
	return 0, false
}

// TakeProfitTarget computes the current take-profit threshold: a base by
// entry tier, then capped by the decay schedule as the hold ages. The
// schedule is non-increasing over time by construction (validated at config
// load).
func (r *Resolver) TakeProfitTarget(p domain.Position) float64 {
	var target float64
	switch {
	case p.EntryPrice < 0.30:
		target = r.cfg.TakeProfitLow
	case p.EntryPrice <= 0.60:
		target = r.cfg.TakeProfitMedium
	default:
		target = r.cfg.TakeProfitHigh
	}

	if r.cfg.TPDecayEnabled {
		hours := p.HoursOpen(r.now())
		for i, threshold := range r.cfg.TPDecayHours {
			if hours >= threshold {
				target = min(target, r.cfg.TPDecayTargets[i])
			}
		}
	}
	return target
}

// Close applies a Decision to the position. The caller persists the mutated
// position before treating the transition as complete.
func (r *Resolver) Close(p *domain.Position, d Decision) {
	if !d.Exit || p.Status != domain.PositionOpen {
		return
	}
	now := r.now()
	exit := d.ExitPrice
	p.CurrentPrice = exit
	p.ExitPrice = &exit
	p.ExitReason = d.Reason
	p.RealizedPnl = p.Shares * (exit - p.EntryPrice)
	p.Status = d.Status
	p.ClosedAt = &now

	r.logger.Info("position closed",
		slog.String("position", p.ID),
		slog.String("market", p.MarketID),
		slog.String("reason", d.Reason),
		slog.Float64("exit_price", exit),
		slog.Float64("pnl", p.RealizedPnl),
	)
}
