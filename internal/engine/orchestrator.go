// Package engine owns the scan cycle: fetch, filter, detect, rank, trade,
// manage, publish. One Orchestrator goroutine mutates all trading state;
// everything concurrent reads the published Snapshot.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/quantfold/polyscout/internal/config"
	"github.com/quantfold/polyscout/internal/detector"
	"github.com/quantfold/polyscout/internal/domain"
	"github.com/quantfold/polyscout/internal/lifecycle"
	"github.com/quantfold/polyscout/internal/metrics"
	"github.com/quantfold/polyscout/internal/rank"
	"github.com/quantfold/polyscout/internal/risk"
)

// ledgerHistoryLimit bounds the closed-position scan at startup.
const ledgerHistoryLimit = 10000

// Deps are the orchestrator's collaborators. Venues must hold at least the
// home venue; additional venues feed cross-platform detection. StatusClient,
// Submitter, Alerter, Enricher and Sinks are optional.
type Deps struct {
	Engine  config.EngineConfig
	Trading config.TradingConfig

	Venues       []domain.VenueClient
	StatusClient domain.MarketStatusClient
	Submitter    domain.OrderSubmitter

	Runner   *detector.Runner
	Ranker   *rank.Ranker
	Risk     *risk.Manager
	Resolver *lifecycle.Resolver

	Positions domain.PositionStore
	RiskStore domain.RiskStateStore
	Stats     domain.DetectorStatsStore

	Alerter  Alerter
	Enricher ContextEnricher
	Sinks    []Sink

	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// dayLedger accumulates today's realized results; it resets on the UTC day
// boundary and feeds the daily loss check.
type dayLedger struct {
	date        string
	startEquity float64
	pnl         float64
	trades      int
	wins        int
	losses      int
	investedUSD float64
}

// Orchestrator runs the cycle loop. All fields past the injected
// collaborators belong to the cycle goroutine; Latest is the only
// cross-goroutine surface.
type Orchestrator struct {
	d   Deps
	log *slog.Logger
	now func() time.Time

	cash     float64
	realized float64
	day      dayLedger
	cycle    int64

	mu     sync.RWMutex
	latest *Snapshot
}

func New(d Deps) (*Orchestrator, error) {
	if len(d.Venues) == 0 {
		return nil, fmt.Errorf("engine: at least one venue client required")
	}
	return &Orchestrator{
		d:   d,
		log: d.Logger.With(slog.String("component", "engine")),
		now: time.Now,
	}, nil
}

// Latest returns the most recently published snapshot.
func (o *Orchestrator) Latest() (Snapshot, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.latest == nil {
		return Snapshot{}, false
	}
	return *o.latest, true
}

// Run rebuilds the cash ledger from the store, then cycles until the
// context ends. The first cycle runs immediately.
func (o *Orchestrator) Run(ctx context.Context) error {
	if err := o.bootstrap(ctx); err != nil {
		return fmt.Errorf("engine: bootstrap: %w", err)
	}
	o.log.Info("engine starting",
		slog.Duration("scan_interval", o.d.Engine.ScanInterval.Duration),
		slog.Bool("dry_run", o.d.Engine.DryRun),
		slog.Float64("cash_usd", o.cash),
	)

	o.runCycle(ctx)

	ticker := time.NewTicker(o.d.Engine.ScanInterval.Duration)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			o.log.Info("engine stopped")
			return ctx.Err()
		case <-ticker.C:
			o.runCycle(ctx)
		}
	}
}

// bootstrap derives cash and today's counters from persisted positions:
// cash = starting balance + realized P&L of every closed position - capital
// tied up in open ones.
func (o *Orchestrator) bootstrap(ctx context.Context) error {
	open, err := o.d.Positions.ListOpen(ctx)
	if err != nil {
		return err
	}
	history, err := o.d.Positions.ListHistory(ctx, domain.ListOpts{Limit: ledgerHistoryLimit})
	if err != nil {
		return err
	}

	invested := 0.0
	for _, p := range open {
		invested += p.AmountUSD
	}
	for _, p := range history {
		o.realized += p.RealizedPnl
	}
	o.cash = o.d.Trading.StartingBalanceUSD + o.realized - invested

	today := o.now().UTC().Format("2006-01-02")
	o.day = dayLedger{date: today}
	for _, p := range history {
		if p.ClosedAt == nil || p.ClosedAt.UTC().Format("2006-01-02") != today {
			continue
		}
		o.day.pnl += p.RealizedPnl
		o.day.trades++
		if p.RealizedPnl > 0 {
			o.day.wins++
		} else {
			o.day.losses++
		}
	}
	o.day.startEquity = o.equity(open) - o.day.pnl
	return nil
}

func (o *Orchestrator) equity(open []domain.Position) float64 {
	eq := o.cash
	for _, p := range open {
		eq += p.CurrentValue()
	}
	return eq
}

func (o *Orchestrator) runCycle(ctx context.Context) {
	started := o.now()
	o.cycle++
	o.rollDay()

	markets, stale := o.fetchMarkets(ctx)
	priceMap := make(map[string]domain.Market, len(markets))
	for _, m := range markets {
		priceMap[m.ID] = m
	}

	closed, open := o.managePositions(ctx, priceMap)

	scanned := o.d.Risk.FilterMarkets(markets)
	dctx := o.buildContext(ctx)
	found := o.d.Runner.Run(ctx, scanned, dctx)
	for _, opp := range found {
		o.d.Metrics.OpportunitiesFound.WithLabelValues(opp.DetectorName).Inc()
	}
	o.persistStats(ctx)

	ranked := o.d.Ranker.Rank(found)

	open = o.openPositions(ctx, ranked, open)

	equity := o.equity(open)
	o.d.Risk.UpdateBalance(equity)
	dayPct := 0.0
	if o.day.startEquity > 0 {
		dayPct = o.day.pnl / o.day.startEquity
	}
	o.d.Risk.RecordDailyPnl(o.day.pnl, dayPct, o.day.trades, o.day.wins, o.day.losses)
	riskState := o.d.Risk.State()
	if err := o.d.RiskStore.Save(ctx, riskState); err != nil {
		o.log.Error("risk state save failed", slog.String("error", err.Error()))
	}

	o.maybeAlert(ctx, ranked)

	snap := Snapshot{
		Cycle:           o.cycle,
		At:              o.now(),
		Stale:           stale,
		DryRun:          o.d.Engine.DryRun,
		MarketsFetched:  len(markets),
		MarketsScanned:  len(scanned),
		Opportunities:   ranked,
		OpenPositions:   open,
		ClosedThisCycle: closed,
		RiskState:       riskState,
		DetectorStats:   o.d.Runner.Stats(),
		CashUSD:         o.cash,
		EquityUSD:       equity,
		RealizedPnlUSD:  o.realized,
	}
	o.publish(ctx, snap)

	o.observe(snap, started)
	o.log.Info("cycle complete",
		slog.Int64("cycle", o.cycle),
		slog.Int("markets", len(markets)),
		slog.Int("scanned", len(scanned)),
		slog.Int("opportunities", len(ranked)),
		slog.Int("open_positions", len(open)),
		slog.Int("closed", len(closed)),
		slog.Duration("took", o.now().Sub(started)),
	)
}

func (o *Orchestrator) rollDay() {
	today := o.now().UTC().Format("2006-01-02")
	if o.day.date == today {
		return
	}
	snap, ok := o.Latest()
	start := o.d.Trading.StartingBalanceUSD
	if ok {
		start = snap.EquityUSD
	}
	o.day = dayLedger{date: today, startEquity: start}
}

// fetchMarkets pulls the home venue's snapshot, tolerating a stale cache
// copy, and drops records violating the price invariant.
func (o *Orchestrator) fetchMarkets(ctx context.Context) ([]domain.Market, bool) {
	fctx, cancel := context.WithTimeout(ctx, o.d.Engine.FetchTimeout.Duration)
	defer cancel()

	raw, err := o.d.Venues[0].FetchMarkets(fctx, o.d.Engine.MarketFetchLimit)
	stale := errors.Is(err, domain.ErrStaleCache)
	if err != nil && !stale {
		o.log.Error("market fetch failed", slog.String("error", err.Error()))
		return nil, false
	}
	if stale {
		o.log.Warn("running on stale market snapshot")
		o.d.Metrics.StaleSnapshots.Inc()
	}

	markets := raw[:0]
	dropped := 0
	for _, m := range raw {
		if !m.Valid() {
			dropped++
			continue
		}
		markets = append(markets, m)
	}
	if dropped > 0 {
		o.log.Warn("dropped markets violating price invariant", slog.Int("count", dropped))
	}
	return markets, stale
}

// buildContext assembles the auxiliary detector feeds: events and secondary
// venues from venue clients, everything else from the optional enricher.
func (o *Orchestrator) buildContext(ctx context.Context) domain.DetectionContext {
	fctx, cancel := context.WithTimeout(ctx, o.d.Engine.FetchTimeout.Duration)
	defer cancel()

	var dctx domain.DetectionContext

	events, err := o.d.Venues[0].FetchEvents(fctx, o.d.Engine.EventFetchLimit)
	if err != nil && !errors.Is(err, domain.ErrStaleCache) {
		o.log.Warn("event fetch failed", slog.String("error", err.Error()))
	}
	dctx.Events = events

	for _, v := range o.d.Venues[1:] {
		cross, err := v.FetchMarkets(fctx, o.d.Engine.MarketFetchLimit)
		if err != nil && !errors.Is(err, domain.ErrStaleCache) {
			o.log.Warn("cross-venue fetch failed",
				slog.String("venue", v.Name()),
				slog.String("error", err.Error()),
			)
			continue
		}
		dctx.CrossVenueMarkets = append(dctx.CrossVenueMarkets, cross...)
	}

	if o.d.Enricher != nil {
		if err := o.d.Enricher.Enrich(fctx, &dctx); err != nil {
			o.log.Warn("context enrichment failed", slog.String("error", err.Error()))
		}
	}
	return dctx
}

// managePositions refreshes every open position and applies the lifecycle
// decision. A close counts only after the store accepted the transition; a
// failed write leaves the position open for the next cycle.
func (o *Orchestrator) managePositions(ctx context.Context, markets map[string]domain.Market) (closed, open []domain.Position) {
	positions, err := o.d.Positions.ListOpen(ctx)
	if err != nil {
		o.log.Error("open position list failed", slog.String("error", err.Error()))
		return nil, nil
	}

	for _, p := range positions {
		o.d.Resolver.RefreshPrice(&p, markets)

		var status *domain.MarketStatus
		if o.d.StatusClient != nil {
			if st, err := o.d.StatusClient.FetchMarketStatus(ctx, p.MarketID); err == nil {
				status = &st
			} else {
				o.log.Debug("market status fetch failed",
					slog.String("market", p.MarketID),
					slog.String("error", err.Error()),
				)
			}
		}

		decision := o.d.Resolver.Evaluate(p, status)
		if !decision.Exit {
			if err := o.d.Positions.Update(ctx, p); err != nil {
				o.log.Error("position refresh write failed",
					slog.String("position", p.ID), slog.String("error", err.Error()))
			}
			open = append(open, p)
			continue
		}

		o.d.Resolver.Close(&p, decision)
		if err := o.d.Positions.Update(ctx, p); err != nil {
			o.log.Error("position close write failed, keeping open",
				slog.String("position", p.ID), slog.String("error", err.Error()))
			p.Status = domain.PositionOpen
			open = append(open, p)
			continue
		}

		o.cash += p.Shares * *p.ExitPrice
		o.realized += p.RealizedPnl
		o.day.pnl += p.RealizedPnl
		o.day.trades++
		if p.RealizedPnl > 0 {
			o.day.wins++
		} else {
			o.day.losses++
		}
		o.d.Metrics.PositionsClosed.WithLabelValues(p.ExitReason).Inc()
		closed = append(closed, p)
	}
	return closed, open
}

// openPositions walks the ranked list best-first, applying the circuit
// breaker, the diversification caps and Kelly sizing, and persists each
// accepted entry before counting it.
func (o *Orchestrator) openPositions(ctx context.Context, ranked []domain.Opportunity, open []domain.Position) []domain.Position {
	if len(ranked) == 0 {
		return open
	}

	if allowed, reason := o.d.Risk.CanTrade(); !allowed {
		o.log.Warn("entries blocked", slog.String("reason", reason))
		return open
	}

	for _, opp := range ranked {
		allowed, reason := o.d.Risk.AllowEntry(opp, open, o.day.investedUSD)
		if !allowed {
			o.log.Debug("entry rejected", slog.String("market", opp.MarketID), slog.String("reason", reason))
			continue
		}

		amount, ok := o.d.Risk.PositionSize(opp, o.equity(open))
		if !ok {
			o.log.Debug("no positive edge", slog.String("market", opp.MarketID))
			continue
		}
		if amount > o.cash {
			o.log.Debug("insufficient cash",
				slog.String("market", opp.MarketID), slog.Float64("amount", amount))
			continue
		}

		pos, err := o.buildPosition(opp, amount)
		if err != nil {
			o.log.Warn("position build failed",
				slog.String("market", opp.MarketID), slog.String("error", err.Error()))
			continue
		}

		if err := o.submitOrders(ctx, opp, pos); err != nil {
			o.log.Error("order submission failed",
				slog.String("market", opp.MarketID), slog.String("error", err.Error()))
			continue
		}

		if err := o.d.Positions.Create(ctx, pos); err != nil {
			o.log.Error("position create failed",
				slog.String("market", opp.MarketID), slog.String("error", err.Error()))
			continue
		}

		o.cash -= amount
		o.day.investedUSD += amount
		open = append(open, pos)
		o.d.Metrics.PositionsOpened.Inc()
		o.log.Info("position opened",
			slog.String("position", pos.ID),
			slog.String("market", pos.MarketID),
			slog.String("type", string(opp.Type)),
			slog.String("side", string(pos.Side)),
			slog.Float64("entry", pos.EntryPrice),
			slog.Float64("amount", amount),
			slog.Bool("dry_run", o.d.Engine.DryRun),
		)
	}
	return open
}

// buildPosition turns a sized opportunity into an OPEN position. Both-sided
// and multi-outcome entries become leg baskets whose weighted side price
// settles to the basket's payout.
func (o *Orchestrator) buildPosition(opp domain.Opportunity, amount float64) (domain.Position, error) {
	var (
		entry float64
		side  domain.Side
		legs  []domain.PositionLeg
	)

	switch opp.Action {
	case domain.ActionBuyBoth:
		// One unit is a YES+NO pair; half weights make the averaged side
		// price settle to 0.5 per unit, i.e. payout 1 per pair.
		side = domain.SideYes
		entry = (opp.YesPrice + opp.NoPrice) / 2
		legs = []domain.PositionLeg{
			{MarketID: opp.MarketID, Side: domain.SideYes, Weight: 0.5},
			{MarketID: opp.MarketID, Side: domain.SideNo, Weight: 0.5},
		}
	case domain.ActionBuyAllYes, domain.ActionBuyAllNo:
		if len(opp.Legs) == 0 {
			return domain.Position{}, fmt.Errorf("engine: %s without legs", opp.Action)
		}
		side = domain.SideYes
		if opp.Action == domain.ActionBuyAllNo {
			side = domain.SideNo
		}
		w := 1.0 / float64(len(opp.Legs))
		for _, leg := range opp.Legs {
			price := leg.YesPrice
			if side == domain.SideNo {
				price = 1 - leg.YesPrice
			}
			entry += price * w
			legs = append(legs, domain.PositionLeg{MarketID: leg.MarketID, Side: side, Weight: w})
		}
	case domain.ActionBuyNo:
		side = domain.SideNo
		entry = opp.NoPrice
	default:
		side = domain.SideYes
		entry = opp.YesPrice
	}

	if entry <= 0 || entry >= 1 {
		return domain.Position{}, fmt.Errorf("engine: entry price %.4f outside (0,1)", entry)
	}

	return domain.Position{
		ID:              uuid.NewString(),
		MarketID:        opp.MarketID,
		MarketQuestion:  opp.MarketQuestion,
		OpportunityType: opp.Type,
		Side:            side,
		EntryPrice:      entry,
		AmountUSD:       amount,
		Shares:          amount / entry,
		CurrentPrice:    entry,
		Status:          domain.PositionOpen,
		Legs:            legs,
		OpenedAt:        o.now(),
	}, nil
}

// submitOrders hands the sized entry to the order collaborator, one order
// per leg. Dry-run mode and a missing submitter both mean paper trading.
func (o *Orchestrator) submitOrders(ctx context.Context, opp domain.Opportunity, pos domain.Position) error {
	if o.d.Engine.DryRun || o.d.Submitter == nil {
		return nil
	}
	if len(pos.Legs) == 0 {
		res, err := o.d.Submitter.SubmitOrder(ctx, pos.MarketID, pos.Side, pos.AmountUSD, pos.EntryPrice)
		if err != nil {
			return err
		}
		if !res.OK {
			return fmt.Errorf("engine: order rejected for market %s", pos.MarketID)
		}
		return nil
	}
	for _, leg := range pos.Legs {
		price := legPrice(opp, leg)
		res, err := o.d.Submitter.SubmitOrder(ctx, leg.MarketID, leg.Side, pos.AmountUSD*leg.Weight, price)
		if err != nil {
			return err
		}
		if !res.OK {
			return fmt.Errorf("engine: order rejected for market %s", leg.MarketID)
		}
	}
	return nil
}

func legPrice(opp domain.Opportunity, leg domain.PositionLeg) float64 {
	if leg.MarketID == opp.MarketID {
		if leg.Side == domain.SideNo {
			return opp.NoPrice
		}
		return opp.YesPrice
	}
	for _, ol := range opp.Legs {
		if ol.MarketID == leg.MarketID {
			if leg.Side == domain.SideNo {
				return 1 - ol.YesPrice
			}
			return ol.YesPrice
		}
	}
	return 0
}

func (o *Orchestrator) persistStats(ctx context.Context) {
	for _, st := range o.d.Runner.Stats() {
		if err := o.d.Stats.Upsert(ctx, st); err != nil {
			o.log.Error("detector stats save failed",
				slog.String("detector", st.Name), slog.String("error", err.Error()))
		}
	}
}

// maybeAlert pushes the best opportunity of the cycle when its rank score
// clears the alert threshold. The alerter owns the cooldown.
func (o *Orchestrator) maybeAlert(ctx context.Context, ranked []domain.Opportunity) {
	if o.d.Alerter == nil || len(ranked) == 0 {
		return
	}
	top := ranked[0]
	if top.RankScore < o.d.Trading.AlertMinRankScore {
		return
	}
	if err := o.d.Alerter.AlertOpportunity(ctx, top); err != nil {
		if errors.Is(err, domain.ErrRateLimited) {
			o.log.Debug("alert suppressed by cooldown")
			return
		}
		o.log.Warn("alert failed", slog.String("error", err.Error()))
		return
	}
	o.d.Metrics.AlertsSent.Inc()
}

func (o *Orchestrator) publish(ctx context.Context, snap Snapshot) {
	o.mu.Lock()
	o.latest = &snap
	o.mu.Unlock()

	for _, sink := range o.d.Sinks {
		if err := sink.PublishSnapshot(ctx, snap); err != nil {
			o.log.Warn("snapshot sink failed", slog.String("error", err.Error()))
		}
	}
}

func (o *Orchestrator) observe(snap Snapshot, started time.Time) {
	m := o.d.Metrics
	m.CycleDuration.Observe(o.now().Sub(started).Seconds())
	m.CyclesTotal.Inc()
	m.MarketsScanned.Set(float64(snap.MarketsScanned))
	m.RankedOpportunities.Set(float64(len(snap.Opportunities)))
	m.OpenPositions.Set(float64(len(snap.OpenPositions)))
	m.RealizedPnlUSD.Set(o.realized)
	m.EquityUSD.Set(snap.EquityUSD)
	if snap.RiskState.IsTradingAllowed {
		m.TradingPaused.Set(0)
	} else {
		m.TradingPaused.Set(1)
	}
}
