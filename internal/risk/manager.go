// Package risk owns the quality filter, Kelly position sizing, and the
// drawdown circuit breaker. A single Manager instance belongs to the
// orchestrator's cycle goroutine; concurrent readers get snapshots through
// State(), never the live struct.
package risk

import (
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/quantfold/polyscout/internal/config"
	"github.com/quantfold/polyscout/internal/domain"
)

const extremePriceDamping = 0.8

// Manager evaluates whether and how much to trade. It mutates RiskState
// exclusively; persistence happens in the orchestrator after each cycle.
type Manager struct {
	cfg     config.RiskConfig
	trading config.TradingConfig
	state   domain.RiskState
	logger  *slog.Logger
	now     func() time.Time
}

// NewManager builds a Manager around a previously persisted state. A zero
// state is valid for a fresh start; the peak initializes on the first
// balance update.
func NewManager(cfg config.RiskConfig, trading config.TradingConfig, state domain.RiskState, logger *slog.Logger) *Manager {
	if state.PeakBalance <= 0 && state.PauseKind == domain.PauseNone {
		state.IsTradingAllowed = true
	}
	return &Manager{
		cfg:     cfg,
		trading: trading,
		state:   state,
		logger:  logger.With(slog.String("component", "risk")),
		now:     time.Now,
	}
}

// FilterMarket is the pure quality gate: liquidity, volume, price bounds and
// spread. It returns the rejection reason for logging.
func (m *Manager) FilterMarket(mkt domain.Market) (bool, string) {
	if mkt.Liquidity < m.cfg.MinLiquidity {
		return false, fmt.Sprintf("liquidity %.0f below %.0f", mkt.Liquidity, m.cfg.MinLiquidity)
	}
	if mkt.Volume24h < m.cfg.MinVolume24h {
		return false, fmt.Sprintf("volume %.0f below %.0f", mkt.Volume24h, m.cfg.MinVolume24h)
	}
	if mkt.YesPrice < m.cfg.MinPrice {
		return false, fmt.Sprintf("price %.2f below %.2f", mkt.YesPrice, m.cfg.MinPrice)
	}
	if mkt.YesPrice > m.cfg.MaxPrice {
		return false, fmt.Sprintf("price %.2f above %.2f", mkt.YesPrice, m.cfg.MaxPrice)
	}
	if spread := math.Abs(mkt.PriceSum() - 1); spread > m.cfg.MaxSpread {
		return false, fmt.Sprintf("spread %.2f above %.2f", spread, m.cfg.MaxSpread)
	}
	if days, ok := mkt.DaysToResolution(m.now()); ok && days > m.cfg.MaxDaysToResolution {
		return false, fmt.Sprintf("resolves in %.0f days, ceiling %.0f", days, m.cfg.MaxDaysToResolution)
	}
	return true, ""
}

// FilterMarkets keeps the markets passing the quality gate.
func (m *Manager) FilterMarkets(markets []domain.Market) []domain.Market {
	out := make([]domain.Market, 0, len(markets))
	for _, mkt := range markets {
		if ok, reason := m.FilterMarket(mkt); ok {
			out = append(out, mkt)
		} else {
			m.logger.Debug("market filtered", slog.String("market", mkt.ID), slog.String("reason", reason))
		}
	}
	return out
}

// PositionSize computes the fractional-Kelly dollar size for an opportunity.
// The second return is false when Kelly says the edge is non-positive; the
// amount then floors at the minimum bet and the caller decides whether to
// skip.
//
// p comes from confidence, damped for extreme entry prices. b is the payout
// ratio (1-entry)/entry of a binary contract bought at entry.
func (m *Manager) PositionSize(o domain.Opportunity, balance float64) (float64, bool) {
	entry := entryPrice(o)
	if entry <= 0 || entry >= 1 {
		return m.cfg.MinBetUSD, false
	}

	p := o.Confidence / 100
	if entry < 0.10 || entry > 0.90 {
		p *= extremePriceDamping
	}
	if p <= 0 || p >= 1 {
		return m.cfg.MinBetUSD, false
	}

	b := (1 - entry) / entry
	kelly := (p*b - (1 - p)) / b
	if kelly <= 0 {
		return m.cfg.MinBetUSD, false
	}

	amount := balance * kelly * m.cfg.KellyFraction
	amount = math.Min(amount, m.cfg.MaxBetUSD)
	amount = math.Min(amount, balance*m.cfg.MaxPortfolioPct)
	amount = math.Max(amount, m.cfg.MinBetUSD)
	return math.Round(amount*100) / 100, true
}

// entryPrice is the cost basis the sizing assumes: the bought side's price,
// or the full pair price for both-sided arbitrage where the payoff is 1.
func entryPrice(o domain.Opportunity) float64 {
	switch {
	case o.Action.NoFlavored():
		return o.NoPrice
	case o.Action == domain.ActionBuyBoth:
		return o.YesPrice + o.NoPrice
	default:
		return o.YesPrice
	}
}

// AllowEntry applies the diversification caps and the momentum-horizon rule
// on top of the circuit breaker. It assumes CanTrade was already consulted
// for the cycle.
func (m *Manager) AllowEntry(o domain.Opportunity, open []domain.Position, investedUSD float64) (bool, string) {
	if len(open) >= m.trading.MaxOpenPositions {
		return false, fmt.Sprintf("open positions at cap %d", m.trading.MaxOpenPositions)
	}

	perMarket := 0
	for _, p := range open {
		if p.MarketID == o.MarketID {
			perMarket++
		}
	}
	if perMarket >= m.trading.MaxPositionsPerMarket {
		return false, fmt.Sprintf("market %s at per-market cap %d", o.MarketID, m.trading.MaxPositionsPerMarket)
	}

	if investedUSD >= m.trading.MaxDailyExposureUSD {
		return false, fmt.Sprintf("exposure %.2f at cap %.2f", investedUSD, m.trading.MaxDailyExposureUSD)
	}

	// Momentum plays need room to run; a market resolving within hours
	// leaves none.
	if isMomentumType(o.Type) && o.DaysToResolution != nil {
		if hours := *o.DaysToResolution * 24; hours < m.trading.MinHoursForMomentum {
			return false, fmt.Sprintf("momentum with %.1fh to resolution, floor %.0fh", hours, m.trading.MinHoursForMomentum)
		}
	}
	return true, ""
}

func isMomentumType(t domain.OpportunityType) bool {
	switch t {
	case domain.TypeMomentumShort, domain.TypeMomentumLong, domain.TypeContrarian:
		return true
	}
	return false
}

// UpdateBalance maintains the high-water mark and the drawdown from it. The
// peak only rises, except for the sanity reset: a peak more than twice the
// current balance is treated as corrupted, replaced by the balance, and any
// active pause is cleared.
func (m *Manager) UpdateBalance(balance float64) {
	if balance <= 0 {
		return
	}
	if m.state.PeakBalance <= 0 {
		m.state.PeakBalance = balance
		m.state.CurrentDrawdownPct = 0
		m.state.UpdatedAt = m.now()
		return
	}

	if m.state.PeakBalance > balance*2 {
		m.logger.Info("resetting implausible peak balance",
			slog.Float64("peak", m.state.PeakBalance),
			slog.Float64("balance", balance),
		)
		m.state.PeakBalance = balance
		m.clearPause()
	}

	if balance > m.state.PeakBalance {
		m.state.PeakBalance = balance
	}
	m.state.CurrentDrawdownPct = (balance - m.state.PeakBalance) / m.state.PeakBalance
	m.state.UpdatedAt = m.now()
}

// RecordDailyPnl upserts today's realized result and trims the history ring.
func (m *Manager) RecordDailyPnl(pnl, pnlPct float64, trades, wins, losses int) {
	today := m.now().UTC().Format("2006-01-02")
	if rec := m.state.Today(today); rec != nil {
		rec.Pnl = pnl
		rec.PnlPct = pnlPct
		rec.Trades = trades
		rec.Wins = wins
		rec.Losses = losses
	} else {
		m.state.DailyPnlHistory = append(m.state.DailyPnlHistory, domain.DailyPnl{
			Date:   today,
			Pnl:    pnl,
			PnlPct: pnlPct,
			Trades: trades,
			Wins:   wins,
			Losses: losses,
		})
	}
	if n := len(m.state.DailyPnlHistory); n > domain.DailyPnlHistoryDays {
		m.state.DailyPnlHistory = m.state.DailyPnlHistory[n-domain.DailyPnlHistoryDays:]
	}
	m.state.UpdatedAt = m.now()
}

// CanTrade runs the drawdown state machine: expire timed pauses, then check
// max drawdown, today's loss, and the trailing 7-day loss, in that order.
// Returns the pause reason when trading is blocked.
func (m *Manager) CanTrade() (bool, string) {
	now := m.now()

	if m.state.PauseKind != domain.PauseNone {
		if m.state.PauseUntil == nil {
			// Indefinite pause, manual clear only.
			return false, m.state.PauseReason
		}
		if now.Before(*m.state.PauseUntil) {
			return false, m.state.PauseReason
		}
		m.clearPause()
		m.logger.Info("trading pause expired, resuming")
	}

	if m.state.CurrentDrawdownPct <= m.cfg.MaxDrawdown {
		m.pause(domain.PauseMaxDrawdown, nil,
			fmt.Sprintf("max drawdown %.1f%%", m.state.CurrentDrawdownPct*100))
		return false, m.state.PauseReason
	}

	today := now.UTC().Format("2006-01-02")
	if rec := m.state.Today(today); rec != nil && rec.PnlPct <= m.cfg.DailyLossLimit {
		until := now.Add(24 * time.Hour)
		m.pause(domain.PauseDaily, &until,
			fmt.Sprintf("daily loss %.1f%%", rec.PnlPct*100))
		return false, m.state.PauseReason
	}

	weekAgo := now.UTC().AddDate(0, 0, -7).Format("2006-01-02")
	weekly := 0.0
	for _, rec := range m.state.DailyPnlHistory {
		if rec.Date >= weekAgo {
			weekly += rec.PnlPct
		}
	}
	if weekly <= m.cfg.WeeklyLossLimit {
		until := now.Add(7 * 24 * time.Hour)
		m.pause(domain.PauseWeekly, &until,
			fmt.Sprintf("weekly loss %.1f%%", weekly*100))
		return false, m.state.PauseReason
	}

	return true, ""
}

// ResumeTrading is the operator's manual clear for an indefinite pause.
func (m *Manager) ResumeTrading() {
	m.clearPause()
	m.logger.Info("trading resumed by operator")
}

func (m *Manager) pause(kind domain.PauseKind, until *time.Time, reason string) {
	m.state.IsTradingAllowed = false
	m.state.PauseKind = kind
	m.state.PauseUntil = until
	m.state.PauseReason = reason
	m.state.UpdatedAt = m.now()
	m.logger.Warn("trading paused",
		slog.String("kind", string(kind)),
		slog.String("reason", reason),
	)
}

func (m *Manager) clearPause() {
	m.state.IsTradingAllowed = true
	m.state.PauseKind = domain.PauseNone
	m.state.PauseUntil = nil
	m.state.PauseReason = ""
	m.state.UpdatedAt = m.now()
}

// State returns a copy safe to publish to concurrent readers.
func (m *Manager) State() domain.RiskState {
	st := m.state
	st.DailyPnlHistory = append([]domain.DailyPnl(nil), m.state.DailyPnlHistory...)
	if m.state.PauseUntil != nil {
		until := *m.state.PauseUntil
		st.PauseUntil = &until
	}
	return st
}
